// Package duel coordinates head-to-head matches: a challenge that must be
// accepted within a window, then alternating turns on shared twisters until
// one player takes the majority of rounds.
package duel

import (
	"errors"
	"sync"
	"time"

	"github.com/slipspeak/slipspeak/internal/game/twisters"
	"github.com/slipspeak/slipspeak/internal/store"
)

// Challenge and lifecycle errors.
var (
	// ErrSelfChallenge is returned when a player challenges themselves.
	ErrSelfChallenge = errors.New("duel: cannot challenge yourself")

	// ErrDuelPending is returned when the opponent already has an
	// unanswered challenge.
	ErrDuelPending = errors.New("duel: opponent already has a pending challenge")

	// ErrNoPendingDuel is returned by Accept and Decline when no challenge
	// is waiting for the player.
	ErrNoPendingDuel = errors.New("duel: no pending challenge")

	// ErrNotInProgress is returned when an operation needs a running duel.
	ErrNotInProgress = errors.New("duel: not in progress")

	// ErrDuelNotFound is returned for unknown duel IDs.
	ErrDuelNotFound = errors.New("duel: not found")
)

// State is the duel lifecycle phase.
type State int

const (
	// StateAwaitingAccept means the challenge was issued and the accept
	// window is running.
	StateAwaitingAccept State = iota
	// StateInProgress means both players are playing rounds.
	StateInProgress
	// StateComplete means a winner was decided (including forfeits).
	StateComplete
	// StateExpired means the accept window lapsed or the challenge was
	// declined.
	StateExpired
)

// String returns the lowercase phase name.
func (s State) String() string {
	switch s {
	case StateAwaitingAccept:
		return "awaiting-accept"
	case StateInProgress:
		return "in-progress"
	case StateComplete:
		return "complete"
	case StateExpired:
		return "expired"
	default:
		return "unknown"
	}
}

// RoundResult is the outcome of one shared-twister round. A tie leaves
// WinnerID empty and the round is replayed with a fresh twister.
type RoundResult struct {
	Round            int
	TwisterID        int
	ChallengerPoints int
	OpponentPoints   int
	WinnerID         string
}

// Duel is one head-to-head match. Fields are written by the coordinator
// under its lock; read snapshots via the accessor methods.
type Duel struct {
	ID           string
	GuildID      string
	ChallengerID string
	OpponentID   string
	BestOf       int
	CreatedAt    time.Time

	mu             sync.Mutex
	state          State
	challengerWins int
	opponentWins   int
	rounds         []RoundResult
	winnerID       string
	acceptTimer    *time.Timer

	// tiers, when non-empty, restricts twister draws to these difficulties
	// instead of the round-number ramp. Set for tournament matches.
	tiers []twisters.Difficulty

	// mode is the store mode every attempt of this duel is recorded under:
	// ModeDuel for challenged duels, ModeTournament for bracket matches.
	mode store.Mode
}

// Mode returns the store mode this duel's attempts are recorded under.
func (d *Duel) Mode() store.Mode { return d.mode }

// State returns the current lifecycle phase.
func (d *Duel) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Score returns the rounds won by challenger and opponent so far.
func (d *Duel) Score() (challenger, opponent int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.challengerWins, d.opponentWins
}

// WinnerID returns the winner once the duel is complete, else "".
func (d *Duel) WinnerID() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.winnerID
}

// Rounds returns a copy of the completed rounds, replayed ties included.
func (d *Duel) Rounds() []RoundResult {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]RoundResult, len(d.rounds))
	copy(out, d.rounds)
	return out
}

// roundsNeeded is the majority required to win: ceil(bestOf/2).
func (d *Duel) roundsNeeded() int {
	return d.BestOf/2 + 1
}

// roundTiers returns the allowed twister difficulties for a round: a fixed
// pool for tournament matches, otherwise the ramp by round number.
func (d *Duel) roundTiers(round int) []twisters.Difficulty {
	if len(d.tiers) > 0 {
		return d.tiers
	}
	return []twisters.Difficulty{rampDifficulty(round)}
}
