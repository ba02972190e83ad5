package db

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrate_SQLiteIsIdempotent(t *testing.T) {
	sqlDB, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "actionflow.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	ctx := context.Background()
	require.NoError(t, Migrate(ctx, sqlDB, DriverSQLite))
	require.NoError(t, Migrate(ctx, sqlDB, DriverSQLite))

	var tables []string
	require.NoError(t, sqlDB.Select(&tables,
		`SELECT name FROM sqlite_master WHERE type = 'table' AND name IN ('events','actions','receipts') ORDER BY name`))
	require.Equal(t, []string{"actions", "events", "receipts"}, tables)
}

func TestMigrate_UnknownDialect(t *testing.T) {
	sqlDB, err := NewSQLiteConnection(filepath.Join(t.TempDir(), "x.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.Error(t, Migrate(context.Background(), sqlDB, "oracle"))
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("-- header\nCREATE TABLE a (x INT);\n\n-- next\nCREATE INDEX i ON a (x);\n")
	require.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, stmts)
}

func TestEmptyOptionalConnections(t *testing.T) {
	rdb, err := NewRedisClient(RedisOpts{})
	require.NoError(t, err)
	require.Nil(t, rdb)

	ch, err := NewClickHouseConnection(ClickHouseOpts{})
	require.NoError(t, err)
	require.Nil(t, ch)
}
