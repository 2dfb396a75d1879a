// Package testdb provisions SQLite databases that mirror the Postgres schema
// closely enough for repository and service tests: the partial unique indexes,
// the version uniqueness and edit-reason checks and the append-only trigger are
// all present. Exact numeric CHECKs are left to Postgres because SQLite stores
// fractional NUMERIC values as REAL.
package testdb

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

var schema = []string{
	`CREATE TABLE customers (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		tenant_id TEXT NULL,
		name TEXT NOT NULL,
		credit_limit NUMERIC NULL,
		total_sales NUMERIC NOT NULL DEFAULT 0,
		total_payments NUMERIC NOT NULL DEFAULT 0,
		total_returns NUMERIC NOT NULL DEFAULT 0,
		pending_balance NUMERIC NOT NULL DEFAULT 0,
		balance NUMERIC NOT NULL DEFAULT 0,
		last_activity DATETIME NULL,
		last_payment_date DATETIME NULL,
		concurrency_token INTEGER NOT NULL DEFAULT 1,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE invoices (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		tenant_id TEXT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		invoice_number TEXT NOT NULL,
		invoice_seq INTEGER NOT NULL,
		external_reference TEXT NULL,
		subtotal NUMERIC NOT NULL,
		vat_total NUMERIC NOT NULL,
		discount NUMERIC NOT NULL DEFAULT 0,
		grand_total NUMERIC NOT NULL,
		paid_amount NUMERIC NOT NULL DEFAULT 0,
		payment_status TEXT NOT NULL DEFAULT 'unpaid' CHECK (payment_status IN ('unpaid', 'partially_paid', 'paid')),
		is_overpaid BOOLEAN NOT NULL DEFAULT 0,
		is_finalized BOOLEAN NOT NULL DEFAULT 0,
		finalized_at DATETIME NULL,
		is_locked BOOLEAN NOT NULL DEFAULT 0,
		locked_at DATETIME NULL,
		version INTEGER NOT NULL DEFAULT 1,
		edit_reason TEXT NULL,
		is_deleted BOOLEAN NOT NULL DEFAULT 0,
		deleted_at DATETIME NULL,
		deleted_by TEXT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL,
		CHECK (NOT is_locked OR is_finalized)
	)`,
	`CREATE UNIQUE INDEX uq_invoices_owner_number ON invoices (owner_id, invoice_number) WHERE is_deleted = 0`,
	`CREATE UNIQUE INDEX uq_invoices_external_reference ON invoices (external_reference) WHERE external_reference IS NOT NULL AND is_deleted = 0`,
	`CREATE TABLE invoice_lines (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		position INTEGER NOT NULL,
		description TEXT NOT NULL,
		quantity NUMERIC NOT NULL CHECK (quantity > 0),
		unit_price NUMERIC NOT NULL CHECK (unit_price >= 0),
		discount NUMERIC NOT NULL DEFAULT 0,
		vat_rate NUMERIC NOT NULL DEFAULT 0,
		vat_amount NUMERIC NOT NULL,
		line_total NUMERIC NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX uq_invoice_lines_position ON invoice_lines (invoice_id, position)`,
	`CREATE TABLE invoice_versions (
		id TEXT PRIMARY KEY,
		invoice_id TEXT NOT NULL REFERENCES invoices(id),
		version_number INTEGER NOT NULL CHECK (version_number >= 1),
		change_type TEXT NOT NULL CHECK (change_type IN ('created', 'finalized', 'edited', 'locked', 'deleted')),
		was_finalized BOOLEAN NOT NULL,
		snapshot TEXT NOT NULL,
		diff_summary TEXT NOT NULL,
		edited_by TEXT NOT NULL,
		edit_reason TEXT NULL,
		created_at DATETIME NOT NULL,
		CONSTRAINT uq_invoice_versions_number UNIQUE (invoice_id, version_number),
		CONSTRAINT ck_invoice_versions_edit_reason CHECK (change_type <> 'edited' OR NOT was_finalized OR (edit_reason IS NOT NULL AND trim(edit_reason) <> ''))
	)`,
	`CREATE TRIGGER trg_invoice_versions_no_update BEFORE UPDATE ON invoice_versions
		BEGIN SELECT RAISE(ABORT, 'invoice_versions is append-only'); END`,
	`CREATE TRIGGER trg_invoice_versions_no_delete BEFORE DELETE ON invoice_versions
		BEGIN SELECT RAISE(ABORT, 'invoice_versions is append-only'); END`,
	`CREATE TABLE payments (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		invoice_id TEXT NULL REFERENCES invoices(id),
		amount NUMERIC NOT NULL CHECK (amount > 0),
		mode TEXT NOT NULL,
		status TEXT NOT NULL CHECK (status IN ('pending', 'completed', 'failed', 'reversed')),
		reference TEXT NULL,
		concurrency_token INTEGER NOT NULL DEFAULT 1,
		created_by TEXT NOT NULL,
		reversed_at DATETIME NULL,
		reversed_by TEXT NULL,
		reversal_reason TEXT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE TABLE payment_idempotency_records (
		idempotency_key TEXT PRIMARY KEY,
		payment_id TEXT NOT NULL REFERENCES payments(id),
		user_id TEXT NOT NULL,
		request_hash TEXT NOT NULL,
		response_snapshot TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE credit_notes (
		id TEXT PRIMARY KEY,
		owner_id TEXT NOT NULL,
		customer_id TEXT NOT NULL REFERENCES customers(id),
		invoice_id TEXT NULL REFERENCES invoices(id),
		amount NUMERIC NOT NULL CHECK (amount > 0),
		reason TEXT NOT NULL,
		created_by TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE TABLE outbox_events (
		id TEXT PRIMARY KEY,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		published_at DATETIME NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		last_error TEXT NULL
	)`,
	`CREATE TABLE outbox_dlq (
		id TEXT PRIMARY KEY,
		event_id TEXT NOT NULL,
		event_type TEXT NOT NULL,
		aggregate_type TEXT NOT NULL,
		aggregate_id TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		error_reason TEXT NOT NULL,
		error_message TEXT NULL,
		attempt_count INTEGER NOT NULL DEFAULT 0,
		failed_at DATETIME NOT NULL,
		created_at DATETIME NOT NULL
	)`,
}

// Open returns a gorm handle on a fresh file-backed SQLite database with the
// ledger schema applied. Transactions take the write lock up front so
// concurrent writers queue on the busy timeout instead of failing.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "ledger.db")
	dsn := fmt.Sprintf("file:%s?_busy_timeout=30000&_txlock=immediate&_journal_mode=WAL&_foreign_keys=1", path)
	conn, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger:                 gormlogger.Default.LogMode(gormlogger.Silent),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := conn.DB()
	if err != nil {
		t.Fatalf("sql handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(16)
	t.Cleanup(func() { _ = sqlDB.Close() })

	for _, stmt := range schema {
		if err := conn.Exec(stmt).Error; err != nil {
			t.Fatalf("apply schema: %v\n%s", err, stmt)
		}
	}
	return conn
}

// Client wraps Open in the db.Client used by services.
func Client(t testing.TB) (*db.Client, *gorm.DB) {
	t.Helper()
	conn := Open(t)
	return db.NewFromGorm(conn), conn
}
