// Package store persists game results: individual attempts, completed
// sessions, and duel outcomes. Player statistics and leaderboards are
// derived from the attempt log rather than maintained as counters, so a
// crashed write can never leave totals out of sync.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/slipspeak/slipspeak/internal/game/scoring"
	"github.com/slipspeak/slipspeak/internal/game/twisters"
)

// ErrNotFound is returned when a lookup matches no rows.
var ErrNotFound = errors.New("store: not found")

// Mode labels which game flow produced an attempt.
type Mode string

const (
	ModeSolo       Mode = "solo"
	ModeChallenge  Mode = "challenge"
	ModePractice   Mode = "practice"
	ModeDuel       Mode = "duel"
	ModeTournament Mode = "tournament"
)

// Attempt is one scored utterance.
type Attempt struct {
	GuildID    string
	PlayerID   string
	PlayerName string
	TwisterID  int
	Difficulty twisters.Difficulty
	Spoken     string
	Accuracy   float64
	Points     int
	Successful bool
	Elapsed    time.Duration
	Mode       Mode
	CreatedAt  time.Time

	// Mismatches lists where the spoken text diverged from the target,
	// in order of appearance. Player feedback only; never persisted.
	Mismatches []scoring.Mismatch
}

// SessionRecord summarises a finished session.
type SessionRecord struct {
	GuildID     string
	PlayerID    string
	Mode        Mode
	Turns       int
	TotalPoints int
	StartedAt   time.Time
	EndedAt     time.Time
}

// DuelRecord is the outcome of a completed duel.
type DuelRecord struct {
	GuildID        string
	ChallengerID   string
	OpponentID     string
	WinnerID       string
	Rounds         int
	ChallengerWins int
	OpponentWins   int
	CompletedAt    time.Time
}

// PlayerStats are lifetime aggregates for one player in one guild.
type PlayerStats struct {
	PlayerID     string
	PlayerName   string
	TotalPoints  int64
	Attempts     int
	Successes    int
	BestAccuracy float64
	BestPoints   int

	// BestTwisterID is the twister of the highest-scoring attempt, 0 when
	// the player has none.
	BestTwisterID int

	// FastestTime is the shortest elapsed time among successful attempts,
	// 0 when the player has never succeeded.
	FastestTime time.Duration

	LastPlayed time.Time
}

// LeaderboardQuery selects a ranking. The zero value ranks every guild
// across all difficulties.
type LeaderboardQuery struct {
	// GuildID scopes the ranking to one guild; empty means global.
	GuildID string

	// Difficulty keeps only attempts of one tier; empty means all tiers.
	Difficulty twisters.Difficulty

	// Limit caps the number of entries; non-positive means 10.
	Limit int
}

// LeaderboardEntry is one row of a ranking, ordered by TotalPoints.
type LeaderboardEntry struct {
	Rank        int
	PlayerID    string
	PlayerName  string
	TotalPoints int64
	Attempts    int
	Successes   int
	BestPoints  int
}

// Store is the persistence boundary for game results. Implementations must
// be safe for concurrent use.
type Store interface {
	// RecordAttempt appends one scored attempt to the log.
	RecordAttempt(ctx context.Context, a Attempt) error

	// RecordSession stores a finished session summary.
	RecordSession(ctx context.Context, s SessionRecord) error

	// RecordDuel stores a completed duel outcome.
	RecordDuel(ctx context.Context, d DuelRecord) error

	// PlayerStats returns lifetime aggregates for a player in a guild.
	// Returns ErrNotFound when the player has no recorded attempts there.
	PlayerStats(ctx context.Context, guildID, playerID string) (PlayerStats, error)

	// Leaderboard returns the ranking selected by q, ordered by total
	// points.
	Leaderboard(ctx context.Context, q LeaderboardQuery) ([]LeaderboardEntry, error)
}
