package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/stockledger/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestLedgerMigrationGuardsBalanceInvariant(t *testing.T) {
	content := readMigration(t, "create_ledger_core")
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS balances",
		"CHECK (reserved >= 0 AND reserved <= quantity)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_balances_key ON balances (tenant_id, item_id, location_id)",
		"CREATE UNIQUE INDEX IF NOT EXISTS ux_cost_layers_sequence",
		"INSERT INTO audit_chain_heads (id) VALUES (1)",
		"CHECK (min_quantity >= 0 AND max_quantity >= min_quantity)",
	} {
		if !strings.Contains(content, want) {
			t.Fatalf("ledger migration missing %q", want)
		}
	}
}

func TestSeparationMigrationCoversStateMachine(t *testing.T) {
	content := readMigration(t, "create_separation_orders")
	for _, status := range []string{"OPEN", "IN_PREP", "READY", "PICKED_UP", "CANCELLED", "EXPIRED"} {
		require.Contains(t, content, "'"+status+"'")
	}
	require.Contains(t, content, "CHECK (quantity_picked >= 0 AND quantity_picked <= quantity_requested)")
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Lot Numbers!")
	require.NoError(t, err)
	require.True(t, strings.HasSuffix(path, "_add_lot_numbers.sql"))
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "!!!")
	require.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	require.Error(t, migrate.ValidateDir(dir))
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20260101000000_first.sql", "-- +goose Down\nDROP TABLE x;\n-- +goose Up\nCREATE TABLE x();\n")
	write("20260101000001_second.sql", "-- +goose Up\n-- +goose StatementBegin\nSELECT 1;\n-- +goose Down\n")
	write("bad.sql", "-- +goose Up\n-- +goose Down\n")

	err := migrate.ValidateDir(dir)
	require.Error(t, err)
	msg := err.Error()
	require.Contains(t, msg, "20260101000000_first.sql: Down section precedes Up")
	require.Contains(t, msg, "20260101000001_second.sql: 1 StatementBegin vs 0 StatementEnd")
	require.Contains(t, msg, "bad.sql: expected YYYYMMDDHHMMSS_name.sql")
}
