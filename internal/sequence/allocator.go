// Package sequence hands out per-owner invoice numbers by optimistic
// allocation: read the highest sequence, propose the next one and let the
// unique index on (owner_id, invoice_number) arbitrate. A losing writer
// re-reads and tries again, a bounded number of times.
package sequence

import (
	"context"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/repo"
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/metrics"
)

const (
	DefaultPrefix     = "INV-"
	DefaultStart      = int64(1001)
	DefaultMaxRetries = 5
)

// Unique index hints for invoice numbers: Postgres reports the index name,
// SQLite the column.
var numberConstraintHints = []string{"uq_invoices_owner_number", "invoices.invoice_number"}

// Number is an allocated invoice number.
type Number struct {
	Seq     int64
	Value   string
	Attempt int
}

// Source reads the highest sequence already used by an owner.
type Source interface {
	MaxSeq(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error)
}

// Attempt persists an invoice under the proposed number inside tx. It must
// return the unique-violation error when the number is already taken so the
// transaction rolls back and a fresh number is tried.
type Attempt func(ctx context.Context, tx *gorm.DB, number Number) error

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

// Options tunes numbering.
type Options struct {
	Prefix     string
	Start      int64
	MaxRetries int
}

// Allocator implements compare-and-retry numbering.
type Allocator struct {
	source     Source
	tx         txRunner
	logg       *logger.Logger
	metrics    *metrics.LedgerMetrics
	prefix     string
	start      int64
	maxRetries int
}

// NewAllocator builds an Allocator; zero options fall back to INV-1001 and five attempts.
func NewAllocator(source Source, tx txRunner, opts Options, logg *logger.Logger, m *metrics.LedgerMetrics) (*Allocator, error) {
	if source == nil {
		return nil, fmt.Errorf("sequence source required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	a := &Allocator{
		source:     source,
		tx:         tx,
		logg:       logg,
		metrics:    m,
		prefix:     opts.Prefix,
		start:      opts.Start,
		maxRetries: opts.MaxRetries,
	}
	if a.prefix == "" {
		a.prefix = DefaultPrefix
	}
	if a.start <= 0 {
		a.start = DefaultStart
	}
	if a.maxRetries <= 0 {
		a.maxRetries = DefaultMaxRetries
	}
	return a, nil
}

// Format renders a sequence as an invoice number.
func (a *Allocator) Format(seq int64) string {
	return a.prefix + strconv.FormatInt(seq, 10)
}

// Next proposes the number following the owner's current maximum as seen by tx.
func (a *Allocator) Next(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (Number, error) {
	current, err := a.source.MaxSeq(ctx, tx, ownerID)
	if err != nil {
		return Number{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read invoice sequence")
	}
	seq := current + 1
	if seq < a.start {
		seq = a.start
	}
	return Number{Seq: seq, Value: a.Format(seq)}, nil
}

// Allocate opens one transaction per try, proposes the next number inside it
// and hands both to attempt. A number collision rolls the try back and starts
// another; any other error is returned unchanged. After maxRetries collisions
// it fails with NUMBER_ALLOCATION_EXHAUSTED.
func (a *Allocator) Allocate(ctx context.Context, ownerID uuid.UUID, attempt Attempt) (Number, error) {
	if ownerID == uuid.Nil {
		return Number{}, pkgerrors.New(pkgerrors.CodeValidation, "owner id required")
	}
	if attempt == nil {
		return Number{}, pkgerrors.New(pkgerrors.CodeInternal, "allocation attempt required")
	}

	for i := 1; i <= a.maxRetries; i++ {
		if err := ctx.Err(); err != nil {
			return Number{}, err
		}
		var number Number
		err := a.tx.WithTx(ctx, func(tx *gorm.DB) error {
			next, err := a.Next(ctx, tx, ownerID)
			if err != nil {
				return err
			}
			next.Attempt = i
			number = next
			return attempt(ctx, tx, number)
		})
		if err == nil {
			return number, nil
		}
		if !IsNumberCollision(err) {
			return Number{}, err
		}

		a.metrics.IncAllocationRetry()
		logCtx := a.logg.WithOwnerID(ctx, ownerID.String())
		logCtx = a.logg.WithFields(logCtx, map[string]any{
			"invoice_number": number.Value,
			"attempt":        i,
		})
		a.logg.Debug(logCtx, "invoice number taken, retrying")
	}

	a.metrics.IncAllocationExhausted()
	exhausted := pkgerrors.New(pkgerrors.CodeNumberExhausted, "could not allocate an invoice number").
		WithDetails(map[string]any{"attempts": a.maxRetries})
	a.logg.Error(a.logg.WithOwnerID(ctx, ownerID.String()), "invoice number allocation exhausted", exhausted)
	return Number{}, exhausted
}

// IsNumberCollision reports whether err is a violation of the per-owner invoice number index.
func IsNumberCollision(err error) bool {
	return db.IsUniqueViolation(err, numberConstraintHints...)
}

// RepositorySource reads MAX(invoice_seq) from the invoices table. Deleted
// invoices are included so a number is never reissued.
type RepositorySource struct {
	repo.Base
}

// NewRepositorySource binds a Source to conn.
func NewRepositorySource(conn *gorm.DB) *RepositorySource {
	return &RepositorySource{Base: repo.NewBase(conn)}
}

func (s *RepositorySource) MaxSeq(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) (int64, error) {
	var current int64
	err := s.Bind(tx).DB(ctx).
		Table("invoices").
		Select("COALESCE(MAX(invoice_seq), 0)").
		Where("owner_id = ?", ownerID).
		Scan(&current).Error
	return current, err
}
