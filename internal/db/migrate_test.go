package db

import (
	"io/fs"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMigrateURL(t *testing.T) {
	require.Equal(t, "pgx5://u:p@localhost:5432/autobidder?sslmode=disable", MigrateURL("postgres://u:p@localhost:5432/autobidder?sslmode=disable"))
	require.Equal(t, "pgx5://localhost/autobidder", MigrateURL("postgresql://localhost/autobidder"))
	require.Equal(t, "pgx5://already", MigrateURL("pgx5://already"))
}

func TestMigrationsArePaired(t *testing.T) {
	entries, err := fs.ReadDir(migrationFS, "migrations")
	require.NoError(t, err)
	require.NotEmpty(t, entries)

	ups, downs := map[string]bool{}, map[string]bool{}
	for _, e := range entries {
		name := e.Name()
		switch {
		case strings.HasSuffix(name, ".up.sql"):
			ups[strings.TrimSuffix(name, ".up.sql")] = true
		case strings.HasSuffix(name, ".down.sql"):
			downs[strings.TrimSuffix(name, ".down.sql")] = true
		default:
			t.Fatalf("unexpected migration file %s", name)
		}
	}
	require.Equal(t, ups, downs)

	schema, err := fs.ReadFile(migrationFS, "migrations/0001_init.up.sql")
	require.NoError(t, err)
	for _, table := range []string{"formulas", "pricing_settings", "quotes", "domain_events", "webhook_endpoints", "queue_dlq", "admin_audit_log"} {
		require.Contains(t, string(schema), "CREATE TABLE IF NOT EXISTS "+table+" ")
	}
}
