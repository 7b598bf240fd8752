// Package testutil provides fixtures shared by package tests.
package testutil

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/iliyamo/trainer-slot-booking/internal/database"
)

// OpenSQLite returns a migrated SQLite database in a per-test temp
// directory.  It is closed when the test ends.
func OpenSQLite(t testing.TB) *sql.DB {
	t.Helper()
	db, err := database.OpenSQLite(filepath.Join(t.TempDir(), "booking.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	_, err = database.Migrate(context.Background(), db, database.SQLite)
	require.NoError(t, err)
	return db
}
