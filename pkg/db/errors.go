package db

import (
	"errors"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"
	"gorm.io/gorm"
)

const pgUniqueViolation = "23505"

// IsUniqueViolation reports whether err is a unique constraint violation from
// Postgres or SQLite. When hints are provided, at least one must appear in the
// violated constraint name or in the driver message; SQLite reports columns
// ("invoices.invoice_number") rather than index names, so callers usually pass
// both forms.
func IsUniqueViolation(err error, hints ...string) bool {
	if err == nil {
		return false
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		if pgErr.Code != pgUniqueViolation {
			return false
		}
		return matchesHint(pgErr.ConstraintName+" "+pgErr.Message, hints)
	}

	// wrappers may not repeat the driver message, so inspect every link
	for e := err; e != nil; e = errors.Unwrap(e) {
		msg := e.Error()
		if errors.Is(e, gorm.ErrDuplicatedKey) ||
			strings.Contains(msg, "duplicate key value") ||
			strings.Contains(msg, "UNIQUE constraint failed") {
			if matchesHint(msg, hints) {
				return true
			}
		}
	}
	return false
}

func matchesHint(haystack string, hints []string) bool {
	if len(hints) == 0 {
		return true
	}
	for _, hint := range hints {
		if hint != "" && strings.Contains(haystack, hint) {
			return true
		}
	}
	return false
}
