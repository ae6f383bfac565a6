package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/salesledger/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected exactly one %s migration, got %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func assertContains(t *testing.T, content string, checks []string) {
	t.Helper()
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestMigrationsDirIsValid(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("validate migrations: %v", err)
	}
}

func TestReferenceMigrationKeepsPriceHistoryAppendOnly(t *testing.T) {
	content := readMigration(t, "create_reference_tables")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS customers",
		"CREATE TABLE IF NOT EXISTS employees",
		"CREATE TABLE IF NOT EXISTS products",
		"CREATE TABLE IF NOT EXISTS price_records",
		"PRIMARY KEY (product_id, effective_date)",
		"BEFORE UPDATE OR DELETE ON price_records",
	})
}

func TestOrdersMigrationEnforcesLineItemRules(t *testing.T) {
	content := readMigration(t, "create_orders_tables")
	assertContains(t, content, []string{
		"CONSTRAINT orders_pkey PRIMARY KEY (id)",
		"REFERENCES orders(id) ON DELETE CASCADE",
		"REFERENCES products(id)",
		"CHECK (quantity >= 1)",
		"PRIMARY KEY (order_id, product_id)",
		"charged_unit_price NUMERIC(10,2)",
	})
}

func TestPrincipalsMigrationRestrictsRoles(t *testing.T) {
	content := readMigration(t, "create_principals_tables")
	assertContains(t, content, []string{
		"CHECK (role IN ('admin', 'user', 'blocked'))",
		"CREATE TABLE IF NOT EXISTS feature_permissions",
		"ux_principals_email",
	})
}

func TestOutboxMigration(t *testing.T) {
	content := readMigration(t, "create_outbox_tables")
	assertContains(t, content, []string{
		"CREATE TABLE IF NOT EXISTS outbox_events",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
		"WHERE published_at IS NULL",
	})
}

func TestCreateSQLMigrationWritesTemplate(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Order Notes!")
	if err != nil {
		t.Fatalf("create migration: %v", err)
	}
	if !strings.HasSuffix(path, "_add_order_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}

func TestCreateSQLMigrationNeverReusesAVersion(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "29991231235959_future.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	first, err := migrate.CreateSQLMigration(dir, "one")
	if err != nil {
		t.Fatalf("create first: %v", err)
	}
	second, err := migrate.CreateSQLMigration(dir, "two")
	if err != nil {
		t.Fatalf("create second: %v", err)
	}
	if filepath.Base(first) != "30000101000000_one.sql" {
		t.Fatalf("unexpected first file %s", first)
	}
	if filepath.Base(second) != "30000101000001_two.sql" {
		t.Fatalf("unexpected second file %s", second)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("validate: %v", err)
	}
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	files := map[string]string{
		"20250101000000_ok.sql":       "-- +goose Up\nSELECT 1;\n-- +goose Down\nSELECT 1;\n",
		"20250101000000_dup.sql":      "-- +goose Up\n-- +goose Down\n",
		"bad-name.sql":                "-- +goose Up\n-- +goose Down\n",
		"20250102000000_no_down.sql":  "-- +goose Up\n-- +goose StatementBegin\n",
		"20250103000000_reversed.sql": "-- +goose Down\n-- +goose Up\n",
		"README.md":                   "ignored",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	err := migrate.ValidateDir(dir)
	if err == nil {
		t.Fatal("expected validation errors")
	}
	for _, want := range []string{
		"already used by",
		"bad-name.sql: expected",
		"no_down.sql: missing -- +goose Down",
		"no_down.sql: 1 StatementBegin vs 0 StatementEnd",
		"reversed.sql: Down section precedes Up",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q missing %q", err, want)
		}
	}
}

func TestValidateDirRejectsEmptyDir(t *testing.T) {
	if err := migrate.ValidateDir(t.TempDir()); err == nil {
		t.Fatal("expected error for empty dir")
	}
}
