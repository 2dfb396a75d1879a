package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/angelmondragon/invoice-ledger/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) != 1 {
		t.Fatalf("expected one %s migration, found %d", suffix, len(matches))
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}

func TestInvoicesMigrationEnforcesNumbering(t *testing.T) {
	content := readMigration(t, "create_invoices")
	checks := []string{
		"CREATE TABLE IF NOT EXISTS invoices",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_invoices_owner_number",
		"ON invoices (owner_id, invoice_number)\n    WHERE NOT is_deleted",
		"CREATE UNIQUE INDEX IF NOT EXISTS uq_invoices_external_reference",
		"CHECK (grand_total = subtotal + vat_total - discount)",
		"CREATE TABLE IF NOT EXISTS invoice_lines",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestVersionsMigrationIsAppendOnly(t *testing.T) {
	content := readMigration(t, "create_invoice_versions")
	checks := []string{
		"CONSTRAINT uq_invoice_versions_number UNIQUE (invoice_id, version_number)",
		"CONSTRAINT ck_invoice_versions_edit_reason",
		"BEFORE UPDATE OR DELETE ON invoice_versions",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentsMigrationHasIdempotencyKey(t *testing.T) {
	content := readMigration(t, "create_payments")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS payment_idempotency_records",
		"idempotency_key text PRIMARY KEY",
		"response_snapshot jsonb NOT NULL",
	} {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestEmbeddedMigrationsValidate(t *testing.T) {
	if err := migrate.ValidateFS(migrate.Embedded(), "migrations"); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("on-disk migrations invalid: %v", err)
	}
}

func TestCreateSQLMigration(t *testing.T) {
	dir := t.TempDir()
	path, err := migrate.CreateSQLMigration(dir, "Add Customer Notes!")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !strings.HasSuffix(path, "_add_customer_notes.sql") {
		t.Fatalf("unexpected filename %s", path)
	}
	if err := migrate.ValidateDir(dir); err != nil {
		t.Fatalf("generated migration should validate: %v", err)
	}
}
