package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/settlement-core/pkg/migrate"
)

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("expected migrations to validate: %v", err)
	}
}

func TestMigrationsContainConstraints(t *testing.T) {
	tests := []struct {
		pattern string
		checks  []string
	}{
		{
			pattern: "*_create_catalog.sql",
			checks: []string{
				"CREATE TABLE IF NOT EXISTS products",
				"CHECK (stock >= 0)",
				"DROP TABLE IF EXISTS products",
			},
		},
		{
			pattern: "*_create_orders.sql",
			checks: []string{
				"CONSTRAINT orders_code_key UNIQUE (code)",
				"CHECK (quantity > 0)",
				"WHERE payment_status IN ('pending', 'unpaid')",
				"DROP TABLE IF EXISTS orders",
			},
		},
		{
			pattern: "*_create_balances.sql",
			checks: []string{
				"CONSTRAINT store_balances_store_id_key UNIQUE (store_id)",
				"counts_toward_balance boolean NOT NULL DEFAULT true",
				"BEFORE UPDATE OR DELETE ON ledger_entries",
				"DROP TABLE IF EXISTS ledger_entries",
			},
		},
	}

	for _, tt := range tests {
		matches, err := filepath.Glob(filepath.Join("migrations", tt.pattern))
		if err != nil {
			t.Fatalf("glob migrations: %v", err)
		}
		if len(matches) != 1 {
			t.Fatalf("expected one migration for %s, got %d", tt.pattern, len(matches))
		}
		data, err := os.ReadFile(matches[0])
		if err != nil {
			t.Fatalf("read migration file: %v", err)
		}
		content := string(data)
		for _, sub := range tt.checks {
			if !strings.Contains(content, sub) {
				t.Errorf("%s missing expected statement %q", matches[0], sub)
			}
		}
	}
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Withdrawal Index!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_withdrawal_index.sql") {
		t.Fatalf("unexpected file name %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("created migration should validate: %v", err)
	}
}
