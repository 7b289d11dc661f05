// Package dbtest opens throwaway migrated databases for tests.
package dbtest

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"spis/m/internal/config"
	"spis/m/internal/database"
	"spis/m/internal/migrations"
)

// PostgresDSNEnv names the variable holding a postgres URL for the postgres-backed tests.
const PostgresDSNEnv = "SPIS_TEST_POSTGRES_DSN"

// Open returns an in-memory sqlite database with every migration applied.
func Open(t testing.TB) *database.DB {
	t.Helper()

	ctx := context.Background()
	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_pragma=foreign_keys(1)&_time_format=sqlite", uuid.NewString())
	db, err := database.Connect(ctx, config.DBConfig{Driver: config.DriverSQLite, DSN: dsn})
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(ctx, db.DB.DB, db.Dialect(), nil))
	return db
}

// OpenPostgres migrates a fresh schema in the database named by SPIS_TEST_POSTGRES_DSN and drops
// it on cleanup. The test is skipped under -short or when the variable is unset.
func OpenPostgres(t testing.TB) *database.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres tests skipped in short mode")
	}
	base := os.Getenv(PostgresDSNEnv)
	if base == "" {
		t.Skipf("%s not set", PostgresDSNEnv)
	}

	ctx := context.Background()
	schema := "spis_test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	cfg := config.DBConfig{Driver: config.DriverPostgres, DSN: base, MaxOpenConns: 2, MaxIdleConns: 1}

	admin, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	_, err = admin.ExecContext(ctx, `CREATE SCHEMA `+schema)
	require.NoError(t, err)
	t.Cleanup(func() {
		_, _ = admin.ExecContext(context.Background(), `DROP SCHEMA `+schema+` CASCADE`)
		_ = admin.Close()
	})

	u, err := url.Parse(base)
	require.NoError(t, err)
	q := u.Query()
	q.Set("search_path", schema)
	u.RawQuery = q.Encode()
	cfg.DSN = u.String()
	cfg.MaxOpenConns = 16
	cfg.MaxIdleConns = 16

	db, err := database.Connect(ctx, cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	require.NoError(t, migrations.Up(ctx, db.DB.DB, db.Dialect(), nil))
	return db
}
