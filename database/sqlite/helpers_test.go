package sqlite_test

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"math"
	"math/big"
	"path/filepath"
	"testing"

	"github.com/galexite/guildsync"
	"github.com/galexite/guildsync/database/sqlite"
	"github.com/stretchr/testify/require"
)

func getRandomString(t *testing.T) string {
	t.Helper()
	n, err := rand.Int(rand.Reader, big.NewInt(math.MaxInt64))
	require.NoError(t, err, "random string")
	return fmt.Sprintf("test%x", n.Int64())
}

// openTestDB opens a file-backed database in a temp dir, limited to one
// connection the same way database.Connect does.
func openTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "state.db"))
	require.NoError(t, err, "failed to open")
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = db.Close() })

	return db
}

// setupTestRepo creates a migrated repo with a unique table name for test isolation
func setupTestRepo(t *testing.T) *sqlite.Repo {
	t.Helper()

	ctx := context.Background()
	db := openTestDB(t)
	tables := guildsync.Tables{State: "state_" + getRandomString(t)}

	require.NoError(t, sqlite.Migrate(ctx, db, tables), "failed to migrate")

	repo, err := sqlite.NewRepo(db, tables)
	require.NoError(t, err, "failed to create repo")

	return repo
}
