// Package database connects to the backend that records sync state.
//
// Two backends are supported:
//
//   - SQLite (modernc.org/sqlite): the default, a single file next to the payloads
//   - PostgreSQL (pgx connection pool): for deployments sharing state between hosts
//
// # Usage
//
//	repo, cleanup, err := database.Connect(ctx, database.Config{
//	    Type:  "sqlite",
//	    DSN:   "guildsync.db",
//	    Table: "guildsync_state",
//	})
//	if err != nil {
//	    return err
//	}
//	defer cleanup()
//
// Connect runs migrations and validates the schema before returning, so the
// repo is ready to use.
package database
