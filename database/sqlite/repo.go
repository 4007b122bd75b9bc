// Package sqlite implements guildsync.StateRepo on SQLite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/galexite/guildsync"
	"github.com/google/uuid"

	_ "modernc.org/sqlite" // SQLite driver
)

// Repo stores sync state in a single SQLite table keyed by resource.
type Repo struct {
	db        *sql.DB
	tableName string
}

// NewRepo returns a Repo over db. The table must already exist; see Migrate.
func NewRepo(db *sql.DB, tables guildsync.Tables) (*Repo, error) {
	if err := tables.Validate(); err != nil {
		return nil, fmt.Errorf("new repo: %w", err)
	}

	return &Repo{db: db, tableName: quoteIdentifier(tables.State)}, nil
}

// Ping verifies database connectivity
func (r *Repo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

func (r *Repo) Get(ctx context.Context, resource guildsync.Resource) (guildsync.SyncState, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT resource, last_modified, etag, size_bytes, synced_at, run_id
		FROM %s
		WHERE resource = ?`, r.tableName)

	state, err := scanState(r.db.QueryRowContext(ctx, query, string(resource)))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return guildsync.SyncState{}, guildsync.ErrNotFound
		}
		return guildsync.SyncState{}, fmt.Errorf("get: %w", err)
	}

	return state, nil
}

func (r *Repo) Upsert(ctx context.Context, state guildsync.SyncState) (guildsync.SyncState, bool, error) {
	if !state.Resource.IsValid() {
		return guildsync.SyncState{}, false, fmt.Errorf("upsert: %w: %q", guildsync.ErrUnknownResource, state.Resource)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return guildsync.SyncState{}, false, fmt.Errorf("upsert: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var existing string
	checkQuery := fmt.Sprintf(`SELECT resource FROM %s WHERE resource = ?`, r.tableName) //nolint:gosec // table name is validated
	err = tx.QueryRowContext(ctx, checkQuery, string(state.Resource)).Scan(&existing)
	isInsert := errors.Is(err, sql.ErrNoRows)
	if err != nil && !isInsert {
		return guildsync.SyncState{}, false, fmt.Errorf("upsert: check existing: %w", err)
	}

	upsertQuery := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`INSERT INTO %s (resource, last_modified, etag, size_bytes, synced_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (resource) DO UPDATE
		SET last_modified = excluded.last_modified,
			etag = excluded.etag,
			size_bytes = excluded.size_bytes,
			synced_at = excluded.synced_at,
			run_id = excluded.run_id
		RETURNING resource, last_modified, etag, size_bytes, synced_at, run_id`, r.tableName)

	stored, err := scanState(tx.QueryRowContext(ctx, upsertQuery,
		string(state.Resource),
		formatTime(state.LastModified),
		state.ETag,
		state.SizeBytes,
		formatTime(state.SyncedAt),
		state.RunID.String(),
	))
	if err != nil {
		return guildsync.SyncState{}, false, fmt.Errorf("upsert: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return guildsync.SyncState{}, false, fmt.Errorf("upsert: commit: %w", err)
	}

	return stored, isInsert, nil
}

func (r *Repo) List(ctx context.Context) ([]guildsync.SyncState, error) {
	query := fmt.Sprintf( //nolint:gosec // G201: table name is validated
		`SELECT resource, last_modified, etag, size_bytes, synced_at, run_id
		FROM %s
		ORDER BY resource`, r.tableName)

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer func() { _ = rows.Close() }()

	states := []guildsync.SyncState{}
	for rows.Next() {
		state, scanErr := scanState(rows)
		if scanErr != nil {
			return nil, fmt.Errorf("list: %w", scanErr)
		}
		states = append(states, state)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: rows: %w", err)
	}

	return states, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanState(row rowScanner) (guildsync.SyncState, error) {
	var s guildsync.SyncState
	var resource, lastModified, syncedAt, runID string

	if err := row.Scan(&resource, &lastModified, &s.ETag, &s.SizeBytes, &syncedAt, &runID); err != nil {
		return guildsync.SyncState{}, err
	}

	s.Resource = guildsync.Resource(resource)

	var err error
	if s.LastModified, err = parseTime(lastModified); err != nil {
		return guildsync.SyncState{}, fmt.Errorf("parse last_modified: %w", err)
	}
	if s.SyncedAt, err = parseTime(syncedAt); err != nil {
		return guildsync.SyncState{}, fmt.Errorf("parse synced_at: %w", err)
	}
	if s.RunID, err = uuid.Parse(runID); err != nil {
		return guildsync.SyncState{}, fmt.Errorf("parse run_id: %w", err)
	}

	return s, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
