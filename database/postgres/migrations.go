package postgres

import (
	"context"
	"fmt"

	"github.com/galexite/guildsync"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate creates the state table if it does not exist.
func Migrate(ctx context.Context, pool *pgxpool.Pool, tables guildsync.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	if err := createStateTable(ctx, pool, tables.State); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func createStateTable(ctx context.Context, pool *pgxpool.Pool, tableName string) error {
	sql := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			resource TEXT PRIMARY KEY,
			last_modified TIMESTAMPTZ NOT NULL,
			etag TEXT NOT NULL,
			size_bytes BIGINT NOT NULL,
			synced_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			run_id UUID NOT NULL
		)
	`, pgx.Identifier{tableName}.Sanitize())

	if _, err := pool.Exec(ctx, sql); err != nil {
		return fmt.Errorf("create state table: %w", err)
	}
	return nil
}
