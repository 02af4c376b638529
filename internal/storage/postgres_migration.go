package storage

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

var migrationStatements = []string{
	`CREATE TABLE IF NOT EXISTS creators (
		id TEXT PRIMARY KEY,
		display_name TEXT NOT NULL,
		channel_name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'ACTIVE',
		total_streams INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS creators_channel_name_key
		ON creators (lower(channel_name))`,
	`CREATE TABLE IF NOT EXISTS stream_categories (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		slug TEXT NOT NULL UNIQUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS streams (
		id TEXT PRIMARY KEY,
		creator_id TEXT NOT NULL REFERENCES creators(id),
		title TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		category_id TEXT REFERENCES stream_categories(id),
		stream_key TEXT NOT NULL,
		status TEXT NOT NULL,
		is_public BOOLEAN NOT NULL DEFAULT TRUE,
		is_mature BOOLEAN NOT NULL DEFAULT FALSE,
		recording_path TEXT NOT NULL DEFAULT '',
		playback_url TEXT NOT NULL DEFAULT '',
		duration_seconds INTEGER NOT NULL DEFAULT 0,
		started_at TIMESTAMPTZ NOT NULL,
		ended_at TIMESTAMPTZ,
		scheduled_at TIMESTAMPTZ,
		current_viewers INTEGER NOT NULL DEFAULT 0,
		peak_viewers INTEGER NOT NULL DEFAULT 0,
		total_views INTEGER NOT NULL DEFAULT 0,
		total_likes INTEGER NOT NULL DEFAULT 0,
		deleted BOOLEAN NOT NULL DEFAULT FALSE,
		deleted_at TIMESTAMPTZ,
		created_at TIMESTAMPTZ NOT NULL,
		updated_at TIMESTAMPTZ NOT NULL
	)`,
	// A creator can only be live once; the partial index enforces it even
	// under concurrent go-live requests.
	`CREATE UNIQUE INDEX IF NOT EXISTS streams_one_live_per_creator
		ON streams (creator_id) WHERE status = 'LIVE' AND NOT deleted`,
	`CREATE INDEX IF NOT EXISTS streams_status_idx
		ON streams (status) WHERE NOT deleted`,
	`CREATE INDEX IF NOT EXISTS streams_unmatched_idx
		ON streams (started_at) WHERE status = 'OFFLINE' AND recording_path = '' AND NOT deleted`,
}

// MigratePostgres applies the schema idempotently.
func MigratePostgres(ctx context.Context, dsn string) error {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return fmt.Errorf("open postgres pool: %w", err)
	}
	defer pool.Close()
	return migratePool(ctx, pool)
}

func migratePool(ctx context.Context, pool *pgxpool.Pool) error {
	for _, stmt := range migrationStatements {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply migration: %w", err)
		}
	}
	return nil
}
