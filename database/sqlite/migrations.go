package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/galexite/guildsync"
)

// quoteIdentifier safely quotes a SQLite identifier
func quoteIdentifier(name string) string {
	return `"` + name + `"`
}

type TableMigration struct {
	TableName string
	Up        func(ctx context.Context, db *sql.DB) error
	Down      func(ctx context.Context, db *sql.DB) error
}

// getTableMigrations returns all table migrations for the app
func getTableMigrations(tables guildsync.Tables) []TableMigration {
	return []TableMigration{
		{
			TableName: tables.State,
			Up:        createStateTable(tables.State),
			Down:      dropTable(tables.State),
		},
	}
}

// Migrate creates the state table if it does not exist.
func Migrate(ctx context.Context, db *sql.DB, tables guildsync.Tables) error {
	if err := tables.Validate(); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}

	for _, migration := range getTableMigrations(tables) {
		if err := migration.Up(ctx, db); err != nil {
			return fmt.Errorf("migrate up %s: %w", migration.TableName, err)
		}
	}

	return nil
}

// DropTables drops every table Migrate creates, in reverse order.
func DropTables(ctx context.Context, db *sql.DB, tables guildsync.Tables) error {
	migrations := getTableMigrations(tables)

	for i := len(migrations) - 1; i >= 0; i-- {
		migration := migrations[i]
		if err := migration.Down(ctx, db); err != nil {
			return fmt.Errorf("migrate down %s: %w", migration.TableName, err)
		}
	}

	return nil
}

// Timestamps are stored as RFC 3339 text in UTC so they sort lexically.
func createStateTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		createTableSQL := fmt.Sprintf(`
			CREATE TABLE IF NOT EXISTS %s (
				resource TEXT NOT NULL PRIMARY KEY,
				last_modified TEXT NOT NULL,
				etag TEXT NOT NULL,
				size_bytes INTEGER NOT NULL,
				synced_at TEXT NOT NULL,
				run_id TEXT NOT NULL
			)
		`, quoteIdentifier(tableName))

		if _, err := db.ExecContext(ctx, createTableSQL); err != nil {
			return fmt.Errorf("create table: %w", err)
		}

		return nil
	}
}

func dropTable(tableName string) func(context.Context, *sql.DB) error {
	return func(ctx context.Context, db *sql.DB) error {
		dropSQL := fmt.Sprintf("DROP TABLE IF EXISTS %s", quoteIdentifier(tableName))

		_, err := db.ExecContext(ctx, dropSQL)
		return err
	}
}
