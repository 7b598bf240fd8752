package database

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	in := `-- header
CREATE TABLE a (
    id INTEGER
);

-- second
CREATE INDEX i ON a (id);
`
	got := SplitStatements(in)
	require.Len(t, got, 2)
	assert.Equal(t, "CREATE TABLE a (\n    id INTEGER\n)", got[0])
	assert.Equal(t, "CREATE INDEX i ON a (id)", got[1])
}

func TestMigrateSQLiteIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db, err := OpenSQLite(filepath.Join(t.TempDir(), "m.db"))
	require.NoError(t, err)
	defer db.Close()

	applied, err := Migrate(ctx, db, SQLite)
	require.NoError(t, err)
	assert.Equal(t, []string{"0001_init.sql"}, applied)

	applied, err = Migrate(ctx, db, SQLite)
	require.NoError(t, err)
	assert.Empty(t, applied)

	var n int
	require.NoError(t, db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM sqlite_master WHERE type = 'index' AND name = 'ux_sessions_active_slot'").Scan(&n))
	assert.Equal(t, 1, n)
}

func TestMySQLMigrationsSplit(t *testing.T) {
	content, err := migrationFS.ReadFile("migrations/mysql/0001_init.sql")
	require.NoError(t, err)
	stmts := SplitStatements(string(content))
	require.Len(t, stmts, 2)
	assert.Contains(t, stmts[1], "ux_sessions_active_slot")
}

func TestParseDialect(t *testing.T) {
	d, err := ParseDialect("SQLite3")
	require.NoError(t, err)
	assert.Equal(t, SQLite, d)

	d, err = ParseDialect("mysql")
	require.NoError(t, err)
	assert.Equal(t, MySQL, d)

	_, err = ParseDialect("postgres")
	assert.Error(t, err)
}
