package repo

import (
	"context"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Base provides the shared connection handling for domain repositories.
type Base struct {
	db *gorm.DB
}

// NewBase constructs a Base repository backed by the provided GORM connection.
func NewBase(db *gorm.DB) Base {
	return Base{db: db}
}

// Bind returns a copy that runs on tx. A nil tx keeps the current connection.
func (b Base) Bind(tx *gorm.DB) Base {
	if tx == nil {
		return b
	}
	return Base{db: tx}
}

// DB returns the GORM connection bound to the supplied context (if any).
func (b Base) DB(ctx context.Context) *gorm.DB {
	if ctx == nil {
		return b.db
	}
	return b.db.WithContext(ctx)
}

// IsPostgres reports whether the bound connection speaks Postgres.
func (b Base) IsPostgres() bool {
	return b.db != nil && b.db.Dialector != nil && b.db.Dialector.Name() == "postgres"
}

// ForUpdate adds a row lock on Postgres. SQLite serializes writers at the
// database level, so the clause is omitted there.
func (b Base) ForUpdate(q *gorm.DB) *gorm.DB {
	if !b.IsPostgres() {
		return q
	}
	return q.Clauses(clause.Locking{Strength: "UPDATE"})
}
