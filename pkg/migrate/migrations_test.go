package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ajme-abes/blockchain-marketplace-mvp-sub003/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "expected one %s migration", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestWorkflowMigrationsCarryConstraints(t *testing.T) {
	cases := map[string][]string{
		"create_orders": {
			"CREATE TABLE IF NOT EXISTS orders",
			"payment_reference text UNIQUE",
			"CHECK (refunded_cents >= 0 AND refunded_cents <= total_cents)",
			"CHECK (quantity > 0)",
			"DROP TABLE IF EXISTS order_status_history",
		},
		"create_disputes": {
			"CREATE UNIQUE INDEX IF NOT EXISTS ux_disputes_active_order",
			"WHERE status IN ('OPEN','UNDER_REVIEW')",
			"CHECK (evidence_type IN ('IMAGE','DOCUMENT','VIDEO','OTHER'))",
		},
		"create_ledger_records": {
			"order_id uuid NOT NULL UNIQUE",
			"CREATE INDEX IF NOT EXISTS idx_ledger_anchor_jobs_due",
		},
		"create_gateway_events": {
			"event_id text PRIMARY KEY",
			"event_id text NOT NULL UNIQUE",
		},
		"create_outbox": {
			"WHERE published_at IS NULL",
			"CHECK (error_reason IN ('max_attempts','non_retryable'))",
		},
	}
	for suffix, checks := range cases {
		content := readMigration(t, suffix)
		for _, want := range checks {
			if !strings.Contains(content, want) {
				t.Fatalf("%s migration missing %q", suffix, want)
			}
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Refund Index!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_refund_index.sql"))
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "  !!  ")
	require.Error(t, err)
}

func TestCreateSQLMigrationVersionsAfterNewestFile(t *testing.T) {
	dir := t.TempDir()
	future := "29991231235959_seed_far_future.sql"
	require.NoError(t, os.WriteFile(filepath.Join(dir, future), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))

	first, err := migrate.CreateSQLMigration(dir, "add dispute index")
	require.NoError(t, err)
	second, err := migrate.CreateSQLMigration(dir, "add dispute index")
	require.NoError(t, err)
	require.Equal(t, "29991231235960_add_dispute_index.sql", filepath.Base(first))
	require.Equal(t, "29991231235961_add_dispute_index.sql", filepath.Base(second))
	require.NoError(t, migrate.ValidateDir(dir))
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_bad.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}
