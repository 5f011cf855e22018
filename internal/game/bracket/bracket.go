// Package bracket runs single-elimination tournaments. Seeds are padded to
// the next power of two with byes, matches resolve bottom-up through duel
// matches, and twister difficulty escalates as rounds approach the final.
package bracket

import (
	"context"
	"errors"
	"fmt"
	"math/bits"
	"sync"

	"github.com/slipspeak/slipspeak/internal/game/twisters"
)

// Construction and resolution errors.
var (
	// ErrTooFewPlayers is returned for fewer than two seeds.
	ErrTooFewPlayers = errors.New("bracket: need at least two players")

	// ErrDuplicateSeed is returned when the same player is seeded twice.
	ErrDuplicateSeed = errors.New("bracket: duplicate seed")

	// ErrPlayerNotPending is returned by Forfeit when the player has no
	// unresolved match.
	ErrPlayerNotPending = errors.New("bracket: player has no unresolved match")

	// ErrComplete is returned by Play when the bracket is already decided.
	ErrComplete = errors.New("bracket: already complete")
)

// MatchRunner plays one bracket match and returns the winner's player ID.
// The duel coordinator's RunMatch satisfies this.
type MatchRunner interface {
	RunMatch(ctx context.Context, guildID, playerA, playerB string, tiers []twisters.Difficulty) (string, error)
}

// Match is one node of the bracket tree. An empty player slot is a bye or a
// winner not yet propagated from below.
type Match struct {
	Round   int
	Index   int
	PlayerA string
	PlayerB string
	Winner  string
	// Forfeited marks a match decided without play.
	Forfeited bool
}

// decided reports whether the match has a winner.
func (m *Match) decided() bool { return m.Winner != "" }

// ready reports whether both slots are filled and no winner is set.
func (m *Match) ready() bool {
	return m.PlayerA != "" && m.PlayerB != "" && m.Winner == ""
}

// Bracket is a single-elimination tree. All methods are safe for concurrent
// use; Play serialises the actual matches round by round.
type Bracket struct {
	GuildID string

	mu        sync.Mutex
	rounds    [][]*Match
	tiers     map[int][]twisters.Difficulty
	withdrawn map[string]struct{}
}

// Option is a functional option for configuring a Bracket.
type Option func(*Bracket)

// WithRoundTiers overrides the difficulty pool for specific rounds
// (1-based). Rounds without an entry keep the default escalation.
func WithRoundTiers(tiers map[int][]twisters.Difficulty) Option {
	return func(b *Bracket) {
		for round, pool := range tiers {
			b.tiers[round] = pool
		}
	}
}

// New builds a bracket from the ordered seed list, best seed first. When
// the count is not a power of two, byes are inserted so the top seeds
// advance past round one automatically.
func New(guildID string, seeds []string, opts ...Option) (*Bracket, error) {
	if len(seeds) < 2 {
		return nil, ErrTooFewPlayers
	}
	seen := make(map[string]struct{}, len(seeds))
	for _, s := range seeds {
		if s == "" {
			return nil, fmt.Errorf("bracket: empty seed: %w", ErrTooFewPlayers)
		}
		if _, dup := seen[s]; dup {
			return nil, fmt.Errorf("bracket: seed %s: %w", s, ErrDuplicateSeed)
		}
		seen[s] = struct{}{}
	}

	size := nextPowerOfTwo(len(seeds))
	padded := make([]string, size)
	copy(padded, seeds)

	totalRounds := bits.TrailingZeros(uint(size))
	b := &Bracket{
		GuildID:   guildID,
		rounds:    make([][]*Match, totalRounds),
		tiers:     defaultRoundTiers(totalRounds),
		withdrawn: make(map[string]struct{}),
	}
	for _, o := range opts {
		o(b)
	}

	// Round one pairs best against worst: seed i meets seed size-1-i.
	first := make([]*Match, size/2)
	for i := range first {
		first[i] = &Match{
			Round:   1,
			Index:   i,
			PlayerA: padded[i],
			PlayerB: padded[size-1-i],
		}
	}
	b.rounds[0] = first
	for r := 1; r < totalRounds; r++ {
		matches := make([]*Match, len(b.rounds[r-1])/2)
		for i := range matches {
			matches[i] = &Match{Round: r + 1, Index: i}
		}
		b.rounds[r] = matches
	}

	// Byes resolve immediately and cascade upward.
	b.mu.Lock()
	for _, m := range first {
		if m.PlayerB == "" && m.PlayerA != "" {
			b.resolveLocked(m, m.PlayerA, true)
		}
	}
	b.mu.Unlock()

	return b, nil
}

// Rounds returns the total number of rounds.
func (b *Bracket) Rounds() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.rounds)
}

// Winner returns the champion once the root match is decided, else "".
func (b *Bracket) Winner() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.rounds[len(b.rounds)-1][0].Winner
}

// Complete reports whether the bracket has a champion.
func (b *Bracket) Complete() bool { return b.Winner() != "" }

// Pending returns copies of the matches that are up next. Matches resolve
// strictly round by round, so a later-round pairing already filled by byes
// is not pending while an earlier round still has matches to play.
func (b *Bracket) Pending() []Match {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []Match
	for _, round := range b.rounds {
		done := true
		for _, m := range round {
			if m.ready() {
				out = append(out, *m)
			}
			if !m.decided() {
				done = false
			}
		}
		if !done {
			break
		}
	}
	return out
}

// Matches returns a snapshot of the whole tree, round by round.
func (b *Bracket) Matches() [][]Match {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([][]Match, len(b.rounds))
	for r, round := range b.rounds {
		out[r] = make([]Match, len(round))
		for i, m := range round {
			out[r][i] = *m
		}
	}
	return out
}

// RoundTiers returns the twister difficulty pool for a round (1-based).
func (b *Bracket) RoundTiers(round int) []twisters.Difficulty {
	b.mu.Lock()
	defer b.mu.Unlock()
	if pool, ok := b.tiers[round]; ok {
		return pool
	}
	return []twisters.Difficulty{twisters.Easy, twisters.Medium}
}

// Play resolves the bracket bottom-up: every ready match in a round runs
// before the next round starts. Match failures that the runner resolves as
// forfeits are ordinary results here; an error from the runner (typically
// cancellation) stops the bracket with its state preserved, and Play may be
// called again to resume.
func (b *Bracket) Play(ctx context.Context, runner MatchRunner) (string, error) {
	if b.Complete() {
		return "", ErrComplete
	}

	for {
		m, ok := b.nextReady()
		if !ok {
			break
		}
		tiers := b.RoundTiers(m.Round)
		winner, err := runner.RunMatch(ctx, b.GuildID, m.PlayerA, m.PlayerB, tiers)
		if err != nil {
			return "", err
		}
		if err := b.resolve(m.Round, m.Index, winner, false); err != nil {
			return "", err
		}
	}

	champion := b.Winner()
	if champion == "" {
		return "", fmt.Errorf("bracket: no match ready but no champion decided")
	}
	return champion, nil
}

// Forfeit withdraws a player: their current match, and any future match
// they would have reached, resolves as a forfeit win for the other side.
// If the opponent is still working up from below, the resolution happens
// once that opponent arrives.
func (b *Bracket) Forfeit(playerID string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	var pending *Match
	for _, round := range b.rounds {
		for _, m := range round {
			if !m.decided() && (m.PlayerA == playerID || m.PlayerB == playerID) {
				pending = m
			}
		}
	}
	if pending == nil {
		return ErrPlayerNotPending
	}

	b.withdrawn[playerID] = struct{}{}
	b.maybeAutoResolve(pending)
	return nil
}

// nextReady returns a snapshot of the earliest ready match.
func (b *Bracket) nextReady() (Match, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, round := range b.rounds {
		for _, m := range round {
			if m.ready() {
				return *m, true
			}
		}
	}
	return Match{}, false
}

// resolve records a winner for the given match and propagates it upward.
func (b *Bracket) resolve(round, index int, winnerID string, forfeit bool) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	m := b.rounds[round-1][index]
	if m.Winner != "" {
		return fmt.Errorf("bracket: match round %d index %d already decided", round, index)
	}
	if winnerID != m.PlayerA && winnerID != m.PlayerB {
		return fmt.Errorf("bracket: %s did not play match round %d index %d", winnerID, round, index)
	}
	b.resolveLocked(m, winnerID, forfeit)
	return nil
}

// resolveLocked sets the winner and cascades upward. Caller holds mu.
func (b *Bracket) resolveLocked(m *Match, winnerID string, forfeit bool) {
	m.Winner = winnerID
	m.Forfeited = forfeit

	if m.Round >= len(b.rounds) {
		return
	}
	parent := b.rounds[m.Round][m.Index/2]
	if m.Index%2 == 0 {
		parent.PlayerA = winnerID
	} else {
		parent.PlayerB = winnerID
	}
	b.maybeAutoResolve(parent)
}

// maybeAutoResolve settles a ready match without play when one side has
// withdrawn. When both sides are gone the better seed advances hollowly so
// the tree still completes. Caller holds mu.
func (b *Bracket) maybeAutoResolve(m *Match) {
	if !m.ready() {
		return
	}
	_, aOut := b.withdrawn[m.PlayerA]
	_, bOut := b.withdrawn[m.PlayerB]
	switch {
	case aOut && !bOut:
		b.resolveLocked(m, m.PlayerB, true)
	case bOut && !aOut:
		b.resolveLocked(m, m.PlayerA, true)
	case aOut && bOut:
		b.resolveLocked(m, m.PlayerA, true)
	}
}

// defaultRoundTiers escalates difficulty towards the final: opening rounds
// draw easy/medium, the semi-final hard, the final hard/insane.
func defaultRoundTiers(totalRounds int) map[int][]twisters.Difficulty {
	tiers := make(map[int][]twisters.Difficulty, totalRounds)
	for round := 1; round <= totalRounds; round++ {
		switch totalRounds - round {
		case 0:
			tiers[round] = []twisters.Difficulty{twisters.Hard, twisters.Insane}
		case 1:
			tiers[round] = []twisters.Difficulty{twisters.Hard}
		case 2:
			tiers[round] = []twisters.Difficulty{twisters.Medium}
		default:
			tiers[round] = []twisters.Difficulty{twisters.Easy, twisters.Medium}
		}
	}
	return tiers
}

// nextPowerOfTwo rounds n up to the nearest power of two.
func nextPowerOfTwo(n int) int {
	size := 1
	for size < n {
		size *= 2
	}
	return size
}
