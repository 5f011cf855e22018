package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/slipspeak/slipspeak/internal/store"
)

// Compile-time interface check.
var _ store.Store = (*Store)(nil)

// Store is the PostgreSQL-backed game result store. All operations are safe
// for concurrent use.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore establishes a connection pool to the database at dsn and runs
// [Migrate] to ensure all required tables exist.
func NewStore(ctx context.Context, dsn string) (*Store, error) {
	cfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres store: parse dsn: %w", err)
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("postgres store: create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: ping: %w", err)
	}

	if err := Migrate(ctx, pool); err != nil {
		pool.Close()
		return nil, fmt.Errorf("postgres store: migrate: %w", err)
	}

	return &Store{pool: pool}, nil
}

// Close releases all connections held by the underlying connection pool.
func (s *Store) Close() {
	s.pool.Close()
}

// Ping verifies database connectivity. Used by the readiness probe.
func (s *Store) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// RecordAttempt implements [store.Store].
func (s *Store) RecordAttempt(ctx context.Context, a store.Attempt) error {
	const q = `
		INSERT INTO attempts
		    (guild_id, player_id, player_name, twister_id, difficulty, spoken,
		     accuracy, points, successful, elapsed_ns, mode, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	createdAt := a.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now()
	}

	_, err := s.pool.Exec(ctx, q,
		a.GuildID,
		a.PlayerID,
		a.PlayerName,
		a.TwisterID,
		string(a.Difficulty),
		a.Spoken,
		a.Accuracy,
		a.Points,
		a.Successful,
		a.Elapsed.Nanoseconds(),
		string(a.Mode),
		createdAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: record attempt: %w", err)
	}
	return nil
}

// RecordSession implements [store.Store].
func (s *Store) RecordSession(ctx context.Context, rec store.SessionRecord) error {
	const q = `
		INSERT INTO sessions
		    (guild_id, player_id, mode, turns, total_points, started_at, ended_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := s.pool.Exec(ctx, q,
		rec.GuildID,
		rec.PlayerID,
		string(rec.Mode),
		rec.Turns,
		rec.TotalPoints,
		rec.StartedAt,
		rec.EndedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: record session: %w", err)
	}
	return nil
}

// RecordDuel implements [store.Store].
func (s *Store) RecordDuel(ctx context.Context, d store.DuelRecord) error {
	const q = `
		INSERT INTO duels
		    (guild_id, challenger_id, opponent_id, winner_id, rounds,
		     challenger_wins, opponent_wins, completed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`

	_, err := s.pool.Exec(ctx, q,
		d.GuildID,
		d.ChallengerID,
		d.OpponentID,
		d.WinnerID,
		d.Rounds,
		d.ChallengerWins,
		d.OpponentWins,
		d.CompletedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres store: record duel: %w", err)
	}
	return nil
}

// PlayerStats implements [store.Store]. Aggregates are computed from the
// attempt log on read.
func (s *Store) PlayerStats(ctx context.Context, guildID, playerID string) (store.PlayerStats, error) {
	const q = `
		SELECT player_id,
		       max(player_name)                            AS player_name,
		       coalesce(sum(points), 0)                    AS total_points,
		       count(*)                                    AS attempts,
		       count(*) FILTER (WHERE successful)          AS successes,
		       coalesce(max(accuracy), 0)                  AS best_accuracy,
		       coalesce(max(points), 0)                    AS best_points,
		       (SELECT twister_id FROM attempts
		        WHERE  guild_id = $1 AND player_id = $2
		        ORDER  BY points DESC, created_at
		        LIMIT  1)                                  AS best_twister_id,
		       coalesce(min(elapsed_ns) FILTER (WHERE successful), 0)
		                                                   AS fastest_ns,
		       max(created_at)                             AS last_played
		FROM   attempts
		WHERE  guild_id = $1 AND player_id = $2
		GROUP  BY player_id`

	row := s.pool.QueryRow(ctx, q, guildID, playerID)

	var (
		st        store.PlayerStats
		fastestNs int64
	)
	err := row.Scan(
		&st.PlayerID,
		&st.PlayerName,
		&st.TotalPoints,
		&st.Attempts,
		&st.Successes,
		&st.BestAccuracy,
		&st.BestPoints,
		&st.BestTwisterID,
		&fastestNs,
		&st.LastPlayed,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return store.PlayerStats{}, fmt.Errorf("postgres store: player %s: %w", playerID, store.ErrNotFound)
	}
	if err != nil {
		return store.PlayerStats{}, fmt.Errorf("postgres store: player stats: %w", err)
	}
	st.FastestTime = time.Duration(fastestNs)
	return st, nil
}

// Leaderboard implements [store.Store]. An empty GuildID ranks players
// across all guilds; a non-empty Difficulty keeps only attempts of that tier.
func (s *Store) Leaderboard(ctx context.Context, q store.LeaderboardQuery) ([]store.LeaderboardEntry, error) {
	var (
		conds []string
		args  []any
	)
	if q.GuildID != "" {
		args = append(args, q.GuildID)
		conds = append(conds, fmt.Sprintf("guild_id = $%d", len(args)))
	}
	if q.Difficulty != "" {
		args = append(args, string(q.Difficulty))
		conds = append(conds, fmt.Sprintf("difficulty = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 10
	}
	args = append(args, limit)

	query := fmt.Sprintf(`
		SELECT player_id,
		       max(player_name)                   AS player_name,
		       coalesce(sum(points), 0)           AS total_points,
		       count(*)                           AS attempts,
		       count(*) FILTER (WHERE successful) AS successes,
		       coalesce(max(points), 0)           AS best_points
		FROM   attempts
		%s
		GROUP  BY player_id
		ORDER  BY total_points DESC, player_id
		LIMIT  $%d`, where, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres store: leaderboard: %w", err)
	}

	entries, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.LeaderboardEntry, error) {
		var e store.LeaderboardEntry
		err := row.Scan(&e.PlayerID, &e.PlayerName, &e.TotalPoints, &e.Attempts, &e.Successes, &e.BestPoints)
		return e, err
	})
	if err != nil {
		return nil, fmt.Errorf("postgres store: scan leaderboard: %w", err)
	}

	for i := range entries {
		entries[i].Rank = i + 1
	}
	if entries == nil {
		entries = []store.LeaderboardEntry{}
	}
	return entries, nil
}
