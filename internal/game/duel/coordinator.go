package duel

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/slipspeak/slipspeak/internal/game/session"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/observe"
	"github.com/slipspeak/slipspeak/internal/store"
)

const (
	defaultBestOf       = 3
	defaultAcceptWindow = 120 * time.Second
)

// TurnRunner plays one twister for one player and returns the scored
// attempt, recorded under the given mode. *session.Manager satisfies this
// via PlayTwister.
type TurnRunner interface {
	PlayTwister(ctx context.Context, guildID, playerID string, tw twisters.Twister, mode store.Mode) (store.Attempt, error)
}

// Notifier receives duel lifecycle events for display. A nil Notifier is
// valid and drops all events.
type Notifier interface {
	// DuelExpired fires when an accept window lapses unanswered.
	DuelExpired(d *Duel)

	// RoundFinished fires after both players played a round, ties included.
	RoundFinished(d *Duel, r RoundResult)

	// DuelFinished fires once a winner is decided.
	DuelFinished(d *Duel)
}

// Config configures a [Coordinator].
type Config struct {
	// Turns runs individual duel turns. Required.
	Turns TurnRunner

	// Library supplies the shared twisters. Required.
	Library *twisters.Library

	// Store persists duel outcomes. May be nil.
	Store store.Store

	// Notifier receives lifecycle events. May be nil.
	Notifier Notifier

	// AcceptWindow is how long a challenge waits for Accept before
	// expiring. Defaults to 120s if zero.
	AcceptWindow time.Duration

	// BestOf is the default round count for challenges that do not specify
	// one. Defaults to 3 if zero; even values are rounded up.
	BestOf int

	// Metrics receives duel telemetry. Defaults to [observe.DefaultMetrics].
	Metrics *observe.Metrics
}

type pendingKey struct {
	guildID    string
	opponentID string
}

// Coordinator owns all duels in flight. All methods are safe for concurrent
// use.
type Coordinator struct {
	turns        TurnRunner
	library      *twisters.Library
	store        store.Store
	notifier     Notifier
	acceptWindow time.Duration
	bestOf       int
	metrics      *observe.Metrics

	nextID atomic.Int64

	mu      sync.Mutex
	byID    map[string]*Duel
	pending map[pendingKey]*Duel
}

// NewCoordinator creates a Coordinator from cfg.
func NewCoordinator(cfg Config) (*Coordinator, error) {
	if cfg.Turns == nil {
		return nil, fmt.Errorf("duel coordinator: Turns must not be nil")
	}
	if cfg.Library == nil {
		return nil, fmt.Errorf("duel coordinator: Library must not be nil")
	}

	window := cfg.AcceptWindow
	if window <= 0 {
		window = defaultAcceptWindow
	}
	bestOf := cfg.BestOf
	if bestOf <= 0 {
		bestOf = defaultBestOf
	}
	if bestOf%2 == 0 {
		bestOf++
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	return &Coordinator{
		turns:        cfg.Turns,
		library:      cfg.Library,
		store:        cfg.Store,
		notifier:     cfg.Notifier,
		acceptWindow: window,
		bestOf:       bestOf,
		metrics:      metrics,
		byID:         make(map[string]*Duel),
		pending:      make(map[pendingKey]*Duel),
	}, nil
}

func (c *Coordinator) lib() *twisters.Library {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.library
}

// SetLibrary swaps the twister corpus, for configuration reloads. Duels
// already drawing from the old corpus pick up the new one on their next
// round. A nil library is ignored.
func (c *Coordinator) SetLibrary(l *twisters.Library) {
	if l == nil {
		return
	}
	c.mu.Lock()
	c.library = l
	c.mu.Unlock()
}

// Challenge issues a duel challenge and starts the accept window. bestOf 0
// uses the coordinator default; even values are rounded up to the next odd
// count.
func (c *Coordinator) Challenge(guildID, challengerID, opponentID string, bestOf int) (*Duel, error) {
	if challengerID == opponentID {
		return nil, ErrSelfChallenge
	}
	if bestOf <= 0 {
		bestOf = c.bestOf
	}
	if bestOf%2 == 0 {
		bestOf++
	}

	key := pendingKey{guildID: guildID, opponentID: opponentID}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, busy := c.pending[key]; busy {
		return nil, ErrDuelPending
	}

	d := &Duel{
		ID:           fmt.Sprintf("duel-%d", c.nextID.Add(1)),
		GuildID:      guildID,
		ChallengerID: challengerID,
		OpponentID:   opponentID,
		BestOf:       bestOf,
		CreatedAt:    time.Now(),
		state:        StateAwaitingAccept,
		mode:         store.ModeDuel,
	}
	d.acceptTimer = time.AfterFunc(c.acceptWindow, func() { c.expire(d) })

	c.byID[d.ID] = d
	c.pending[key] = d

	slog.Info("duel challenge issued",
		"duel_id", d.ID,
		"guild_id", guildID,
		"challenger_id", challengerID,
		"opponent_id", opponentID,
		"best_of", bestOf,
	)
	return d, nil
}

// StartMatch creates an already-running duel between two players, skipping
// the accept window. Tournament brackets use this: consent was given at
// registration. A non-empty tiers pool pins the twister difficulties for
// every round instead of the usual ramp.
func (c *Coordinator) StartMatch(guildID, playerA, playerB string, bestOf int, tiers []twisters.Difficulty) (*Duel, error) {
	if playerA == playerB {
		return nil, ErrSelfChallenge
	}
	if bestOf <= 0 {
		bestOf = c.bestOf
	}
	if bestOf%2 == 0 {
		bestOf++
	}

	d := &Duel{
		ID:           fmt.Sprintf("duel-%d", c.nextID.Add(1)),
		GuildID:      guildID,
		ChallengerID: playerA,
		OpponentID:   playerB,
		BestOf:       bestOf,
		CreatedAt:    time.Now(),
		state:        StateInProgress,
		tiers:        tiers,
		mode:         store.ModeTournament,
	}

	c.mu.Lock()
	c.byID[d.ID] = d
	c.mu.Unlock()
	return d, nil
}

// RunMatch plays a full match between two players and returns the winner.
// It satisfies the bracket package's runner contract.
func (c *Coordinator) RunMatch(ctx context.Context, guildID, playerA, playerB string, tiers []twisters.Difficulty) (string, error) {
	d, err := c.StartMatch(guildID, playerA, playerB, 0, tiers)
	if err != nil {
		return "", err
	}
	if _, err := c.Run(ctx, d.ID); err != nil {
		return "", err
	}
	return d.WinnerID(), nil
}

// Accept answers the pending challenge against the player and moves the
// duel to InProgress. The caller then drives rounds via Run.
func (c *Coordinator) Accept(guildID, opponentID string) (*Duel, error) {
	c.mu.Lock()
	key := pendingKey{guildID: guildID, opponentID: opponentID}
	d, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return nil, ErrNoPendingDuel
	}
	delete(c.pending, key)
	c.mu.Unlock()

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.state != StateAwaitingAccept {
		return nil, ErrNoPendingDuel
	}
	d.acceptTimer.Stop()
	d.state = StateInProgress
	return d, nil
}

// Decline rejects the pending challenge against the player.
func (c *Coordinator) Decline(guildID, opponentID string) error {
	c.mu.Lock()
	key := pendingKey{guildID: guildID, opponentID: opponentID}
	d, ok := c.pending[key]
	if !ok {
		c.mu.Unlock()
		return ErrNoPendingDuel
	}
	delete(c.pending, key)
	c.mu.Unlock()

	d.mu.Lock()
	d.acceptTimer.Stop()
	d.state = StateExpired
	d.mu.Unlock()
	return nil
}

// Get returns a duel by ID.
func (c *Coordinator) Get(duelID string) (*Duel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	d, ok := c.byID[duelID]
	if !ok {
		return nil, ErrDuelNotFound
	}
	return d, nil
}

// ActiveFor returns the in-progress duel the player is part of, if any.
func (c *Coordinator) ActiveFor(guildID, playerID string) (*Duel, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, d := range c.byID {
		if d.GuildID != guildID {
			continue
		}
		if d.ChallengerID != playerID && d.OpponentID != playerID {
			continue
		}
		if d.State() == StateInProgress {
			return d, nil
		}
	}
	return nil, ErrDuelNotFound
}

// Run plays an accepted duel to completion: each round both players speak
// the same twister, challenger first, and the higher score takes the round.
// Tied rounds are replayed with a fresh twister and count towards neither
// player. Difficulty ramps as the duel goes on.
func (c *Coordinator) Run(ctx context.Context, duelID string) (*Duel, error) {
	d, err := c.Get(duelID)
	if err != nil {
		return nil, err
	}
	if d.State() != StateInProgress {
		return nil, ErrNotInProgress
	}

	c.metrics.ActiveDuels.Add(ctx, 1)
	defer c.metrics.ActiveDuels.Add(ctx, -1)

	needed := d.roundsNeeded()
	for round := 1; ; round++ {
		if err := ctx.Err(); err != nil {
			return d, err
		}

		tw, err := c.lib().Random(d.roundTiers(round)...)
		if err != nil {
			return d, fmt.Errorf("duel: draw twister: %w", err)
		}

		challengerAttempt, err := c.turns.PlayTwister(ctx, d.GuildID, d.ChallengerID, tw, d.mode)
		if err != nil {
			return d, c.forfeitOnError(d, d.ChallengerID, err)
		}
		opponentAttempt, err := c.turns.PlayTwister(ctx, d.GuildID, d.OpponentID, tw, d.mode)
		if err != nil {
			return d, c.forfeitOnError(d, d.OpponentID, err)
		}

		r := RoundResult{
			Round:            round,
			TwisterID:        tw.ID,
			ChallengerPoints: challengerAttempt.Points,
			OpponentPoints:   opponentAttempt.Points,
		}

		d.mu.Lock()
		switch {
		case r.ChallengerPoints > r.OpponentPoints:
			r.WinnerID = d.ChallengerID
			d.challengerWins++
		case r.OpponentPoints > r.ChallengerPoints:
			r.WinnerID = d.OpponentID
			d.opponentWins++
		}
		d.rounds = append(d.rounds, r)
		done := d.challengerWins >= needed || d.opponentWins >= needed
		d.mu.Unlock()

		if c.notifier != nil {
			c.notifier.RoundFinished(d, r)
		}
		if done {
			break
		}
	}

	d.mu.Lock()
	if d.challengerWins > d.opponentWins {
		d.winnerID = d.ChallengerID
	} else {
		d.winnerID = d.OpponentID
	}
	d.state = StateComplete
	d.mu.Unlock()

	c.finish(ctx, d)
	return d, nil
}

// Forfeit ends a running duel with the given player losing.
func (c *Coordinator) Forfeit(ctx context.Context, duelID, playerID string) (*Duel, error) {
	d, err := c.Get(duelID)
	if err != nil {
		return nil, err
	}

	d.mu.Lock()
	if d.state != StateInProgress {
		d.mu.Unlock()
		return nil, ErrNotInProgress
	}
	switch playerID {
	case d.ChallengerID:
		d.winnerID = d.OpponentID
	case d.OpponentID:
		d.winnerID = d.ChallengerID
	default:
		d.mu.Unlock()
		return nil, fmt.Errorf("duel: player %s is not part of %s", playerID, d.ID)
	}
	d.state = StateComplete
	d.mu.Unlock()

	c.finish(ctx, d)
	return d, nil
}

// forfeitOnError resolves a duel when one player's turn could not run at
// all, for example because they left the channel. Cancellation is passed
// through without deciding a winner.
func (c *Coordinator) forfeitOnError(d *Duel, playerID string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	slog.Warn("duel turn failed, treating as forfeit",
		"duel_id", d.ID,
		"player_id", playerID,
		"error", err,
	)
	if _, ferr := c.Forfeit(context.Background(), d.ID, playerID); ferr != nil {
		// Already resolved, e.g. by PlayerLeft racing this turn.
		if errors.Is(ferr, ErrNotInProgress) {
			return nil
		}
		return fmt.Errorf("duel: turn failed (%w) and forfeit failed: %v", err, ferr)
	}
	return nil
}

// finish emits completion events and persists the outcome.
func (c *Coordinator) finish(ctx context.Context, d *Duel) {
	if c.notifier != nil {
		c.notifier.DuelFinished(d)
	}

	slog.Info("duel finished",
		"duel_id", d.ID,
		"winner_id", d.WinnerID(),
	)

	if c.store == nil {
		return
	}
	cw, ow := d.Score()
	rec := store.DuelRecord{
		GuildID:        d.GuildID,
		ChallengerID:   d.ChallengerID,
		OpponentID:     d.OpponentID,
		WinnerID:       d.WinnerID(),
		Rounds:         len(d.Rounds()),
		ChallengerWins: cw,
		OpponentWins:   ow,
		CompletedAt:    time.Now(),
	}
	if err := c.store.RecordDuel(ctx, rec); err != nil {
		slog.Warn("failed to persist duel", "duel_id", d.ID, "error", err)
	}
}

// PlayerLeft cancels the player's duel activity after a voice disconnect:
// pending challenges they issued or received expire, and an in-progress
// duel is forfeited to the opponent. Designed to be registered with
// session.Manager.OnPlayerLeave.
func (c *Coordinator) PlayerLeft(guildID, playerID string) {
	c.mu.Lock()
	var dropped []*Duel
	for key, d := range c.pending {
		if d.GuildID != guildID {
			continue
		}
		if d.ChallengerID != playerID && d.OpponentID != playerID {
			continue
		}
		delete(c.pending, key)
		dropped = append(dropped, d)
	}
	c.mu.Unlock()

	for _, d := range dropped {
		d.mu.Lock()
		d.acceptTimer.Stop()
		d.state = StateExpired
		d.mu.Unlock()

		slog.Info("duel challenge cancelled, player left voice",
			"duel_id", d.ID,
			"player_id", playerID,
		)
		if c.notifier != nil {
			c.notifier.DuelExpired(d)
		}
	}

	d, err := c.ActiveFor(guildID, playerID)
	if err != nil {
		return
	}
	// The running turn may forfeit the duel first; losing that race is fine.
	if _, err := c.Forfeit(context.Background(), d.ID, playerID); err != nil && !errors.Is(err, ErrNotInProgress) {
		slog.Warn("failed to forfeit duel after player left",
			"duel_id", d.ID,
			"player_id", playerID,
			"error", err,
		)
	}
}

// expire times out an unanswered challenge.
func (c *Coordinator) expire(d *Duel) {
	c.mu.Lock()
	delete(c.pending, pendingKey{guildID: d.GuildID, opponentID: d.OpponentID})
	c.mu.Unlock()

	d.mu.Lock()
	if d.state != StateAwaitingAccept {
		d.mu.Unlock()
		return
	}
	d.state = StateExpired
	d.mu.Unlock()

	slog.Info("duel challenge expired", "duel_id", d.ID)
	if c.notifier != nil {
		c.notifier.DuelExpired(d)
	}
}

// rampDifficulty maps a round number to its tier: rounds 1-2 are easy, 3-4
// medium, everything later hard.
func rampDifficulty(round int) twisters.Difficulty {
	switch {
	case round <= 2:
		return twisters.Easy
	case round <= 4:
		return twisters.Medium
	default:
		return twisters.Hard
	}
}

// Compile-time check that the session manager satisfies TurnRunner.
var _ TurnRunner = (*session.Manager)(nil)
