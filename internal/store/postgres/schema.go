// Package postgres provides the PostgreSQL-backed implementation of
// [store.Store]. All tables share a single [pgxpool.Pool]; [Migrate] is
// idempotent and safe to run on every application start.
package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

const ddlAttempts = `
CREATE TABLE IF NOT EXISTS attempts (
    id           BIGSERIAL    PRIMARY KEY,
    guild_id     TEXT         NOT NULL,
    player_id    TEXT         NOT NULL,
    player_name  TEXT         NOT NULL DEFAULT '',
    twister_id   INTEGER      NOT NULL,
    difficulty   TEXT         NOT NULL,
    spoken       TEXT         NOT NULL DEFAULT '',
    accuracy     DOUBLE PRECISION NOT NULL DEFAULT 0,
    points       INTEGER      NOT NULL DEFAULT 0,
    successful   BOOLEAN      NOT NULL DEFAULT FALSE,
    elapsed_ns   BIGINT       NOT NULL DEFAULT 0,
    mode         TEXT         NOT NULL DEFAULT 'solo',
    created_at   TIMESTAMPTZ  NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_attempts_guild_player
    ON attempts (guild_id, player_id);

CREATE INDEX IF NOT EXISTS idx_attempts_created_at
    ON attempts (created_at);
`

const ddlSessions = `
CREATE TABLE IF NOT EXISTS sessions (
    id           BIGSERIAL    PRIMARY KEY,
    guild_id     TEXT         NOT NULL,
    player_id    TEXT         NOT NULL,
    mode         TEXT         NOT NULL DEFAULT 'solo',
    turns        INTEGER      NOT NULL DEFAULT 0,
    total_points INTEGER      NOT NULL DEFAULT 0,
    started_at   TIMESTAMPTZ  NOT NULL,
    ended_at     TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_guild_player
    ON sessions (guild_id, player_id);
`

const ddlDuels = `
CREATE TABLE IF NOT EXISTS duels (
    id              BIGSERIAL    PRIMARY KEY,
    guild_id        TEXT         NOT NULL,
    challenger_id   TEXT         NOT NULL,
    opponent_id     TEXT         NOT NULL,
    winner_id       TEXT         NOT NULL DEFAULT '',
    rounds          INTEGER      NOT NULL DEFAULT 0,
    challenger_wins INTEGER      NOT NULL DEFAULT 0,
    opponent_wins   INTEGER      NOT NULL DEFAULT 0,
    completed_at    TIMESTAMPTZ  NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_duels_guild
    ON duels (guild_id);
`

// Migrate creates or ensures all required tables and indexes exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool) error {
	statements := []string{
		ddlAttempts,
		ddlSessions,
		ddlDuels,
	}

	for _, stmt := range statements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("postgres migrate: %w", err)
		}
	}
	return nil
}
