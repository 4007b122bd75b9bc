// Package postgres implements guildsync.StateRepo on PostgreSQL using pgx.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/galexite/guildsync"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repo stores sync state in a single table keyed by resource.
type Repo struct {
	pool      *pgxpool.Pool
	tableName string
}

// NewRepo returns a Repo over pool. The table must already exist; see Migrate.
func NewRepo(pool *pgxpool.Pool, tables guildsync.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &Repo{pool: pool, tableName: pgx.Identifier{tables.State}.Sanitize()}, nil
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.pool.Ping(ctx)
}

func (r *Repo) Get(ctx context.Context, resource guildsync.Resource) (guildsync.SyncState, error) {
	query := fmt.Sprintf(`
		SELECT resource, last_modified, etag, size_bytes, synced_at, run_id
		FROM %s
		WHERE resource = $1
	`, r.tableName)

	s, err := scanState(r.pool.QueryRow(ctx, query, string(resource)))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return guildsync.SyncState{}, guildsync.ErrNotFound
		}
		return guildsync.SyncState{}, fmt.Errorf("get: %w", err)
	}

	return s, nil
}

func (r *Repo) Upsert(ctx context.Context, state guildsync.SyncState) (guildsync.SyncState, bool, error) {
	if !state.Resource.IsValid() {
		return guildsync.SyncState{}, false, fmt.Errorf("upsert: %w: %q", guildsync.ErrUnknownResource, state.Resource)
	}

	query := fmt.Sprintf(`
		INSERT INTO %s (resource, last_modified, etag, size_bytes, synced_at, run_id)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (resource) DO UPDATE
		SET last_modified = EXCLUDED.last_modified,
			etag = EXCLUDED.etag,
			size_bytes = EXCLUDED.size_bytes,
			synced_at = EXCLUDED.synced_at,
			run_id = EXCLUDED.run_id
		RETURNING resource, last_modified, etag, size_bytes, synced_at, run_id,
			(xmax = 0) AS inserted
	`, r.tableName)

	var s guildsync.SyncState
	var resource string
	var inserted bool

	err := r.pool.QueryRow(ctx, query,
		string(state.Resource),
		state.LastModified.UTC(),
		state.ETag,
		state.SizeBytes,
		state.SyncedAt.UTC(),
		state.RunID,
	).Scan(&resource, &s.LastModified, &s.ETag, &s.SizeBytes, &s.SyncedAt, &s.RunID, &inserted)
	if err != nil {
		return guildsync.SyncState{}, false, fmt.Errorf("upsert: %w", err)
	}

	s.Resource = guildsync.Resource(resource)
	s.LastModified = s.LastModified.UTC()
	s.SyncedAt = s.SyncedAt.UTC()

	return s, inserted, nil
}

func (r *Repo) List(ctx context.Context) ([]guildsync.SyncState, error) {
	query := fmt.Sprintf(`
		SELECT resource, last_modified, etag, size_bytes, synced_at, run_id
		FROM %s
		ORDER BY resource
	`, r.tableName)

	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	states := []guildsync.SyncState{}
	for rows.Next() {
		s, err := scanState(rows)
		if err != nil {
			return nil, fmt.Errorf("list: scan: %w", err)
		}
		states = append(states, s)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows: %w", err)
	}

	return states, nil
}

func scanState(row pgx.Row) (guildsync.SyncState, error) {
	var s guildsync.SyncState
	var resource string

	if err := row.Scan(&resource, &s.LastModified, &s.ETag, &s.SizeBytes, &s.SyncedAt, &s.RunID); err != nil {
		return guildsync.SyncState{}, err
	}

	s.Resource = guildsync.Resource(resource)
	s.LastModified = s.LastModified.UTC()
	s.SyncedAt = s.SyncedAt.UTC()

	return s, nil
}
