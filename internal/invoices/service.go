// Package invoices owns the invoice aggregate: numbering on create, the
// Draft → Finalized → Locked state machine, line replacement and soft delete.
// Every mutation is one transaction that updates the row conditionally on its
// version, appends a ledger version, moves the customer rollups and records
// an outbox event.
package invoices

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/balances"
	"github.com/angelmondragon/invoice-ledger/internal/ledger"
	"github.com/angelmondragon/invoice-ledger/internal/sequence"
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/metrics"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox/payloads"
	"github.com/angelmondragon/invoice-ledger/pkg/pagination"
)

// SystemActor is recorded as the editor of changes made by background jobs.
var SystemActor = uuid.MustParse("00000000-0000-0000-0000-000000000001")

var externalReferenceHints = []string{"uq_invoices_external_reference", "invoices.external_reference"}

// Service is the invoice aggregate.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*CreateResult, error)
	Finalize(ctx context.Context, input MutationInput) (*Detail, error)
	Edit(ctx context.Context, input EditInput) (*Detail, error)
	Lock(ctx context.Context, invoiceID, ownerID, userID uuid.UUID, expectedVersion int) (*Detail, error)
	SoftDelete(ctx context.Context, input MutationInput) (*Detail, error)
	Get(ctx context.Context, ownerID, invoiceID uuid.UUID) (*Detail, error)
	List(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error)
	LockCandidates(ctx context.Context, finalizedBefore time.Time, limit int) ([]models.Invoice, error)
}

// CreateInput carries a new invoice.
type CreateInput struct {
	OwnerID           uuid.UUID
	TenantID          *uuid.UUID
	CustomerID        uuid.UUID
	UserID            uuid.UUID
	ExternalReference *string
	Lines             []LineInput
}

// MutationInput addresses one invoice at an expected version.
type MutationInput struct {
	InvoiceID       uuid.UUID
	OwnerID         uuid.UUID
	UserID          uuid.UUID
	ExpectedVersion int
}

// EditInput replaces the invoice lines.
type EditInput struct {
	MutationInput
	Lines      []LineInput
	EditReason *string
}

// Detail is an invoice with its lines.
type Detail struct {
	Invoice models.Invoice       `json:"invoice"`
	Lines   []models.InvoiceLine `json:"lines"`
}

// CreateResult reports Existing when an invoice with the same external reference was returned instead.
type CreateResult struct {
	Detail
	Existing bool `json:"existing"`
}

type ListResult struct {
	Items      []models.Invoice `json:"items"`
	NextCursor string           `json:"nextCursor,omitempty"`
}

// Params wires the aggregate's collaborators.
type Params struct {
	Repository Repository
	DB         db.TxRunner
	Allocator  *sequence.Allocator
	Ledger     *ledger.Service
	Balances   *balances.Reconciler
	Outbox     outbox.Emitter
	Logger     *logger.Logger
	Metrics    *metrics.LedgerMetrics
}

type service struct {
	repo      Repository
	db        db.TxRunner
	allocator *sequence.Allocator
	ledger    *ledger.Service
	balances  *balances.Reconciler
	outbox    outbox.Emitter
	logg      *logger.Logger
	metrics   *metrics.LedgerMetrics
	now       func() time.Time
}

// NewService wires the invoice aggregate.
func NewService(params Params) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("invoices repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if params.Allocator == nil {
		return nil, fmt.Errorf("sequence allocator required")
	}
	if params.Ledger == nil {
		return nil, fmt.Errorf("version ledger required")
	}
	if params.Balances == nil {
		return nil, fmt.Errorf("balance reconciler required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{
		repo:      params.Repository,
		db:        params.DB,
		allocator: params.Allocator,
		ledger:    params.Ledger,
		balances:  params.Balances,
		outbox:    params.Outbox,
		logg:      logg,
		metrics:   params.Metrics,
		now:       func() time.Time { return time.Now().UTC() },
	}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*CreateResult, error) {
	if input.OwnerID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	lines, totals, err := ComputeLines(input.Lines)
	if err != nil {
		return nil, err
	}
	reference := normalizeReference(input.ExternalReference)

	if reference != nil {
		existing, err := s.existingByReference(ctx, input.OwnerID, *reference)
		if err != nil || existing != nil {
			return existing, err
		}
	}

	ok, err := s.repo.CustomerOwnedBy(ctx, input.OwnerID, input.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}

	var created Detail
	_, err = s.allocator.Allocate(ctx, input.OwnerID, func(ctx context.Context, tx *gorm.DB, number sequence.Number) error {
		now := s.now()
		invoice := models.Invoice{
			OwnerID:           input.OwnerID,
			TenantID:          input.TenantID,
			CustomerID:        input.CustomerID,
			InvoiceNumber:     number.Value,
			InvoiceSeq:        number.Seq,
			ExternalReference: reference,
			Subtotal:          totals.Subtotal,
			VATTotal:          totals.VATTotal,
			Discount:          totals.Discount,
			GrandTotal:        totals.GrandTotal,
			PaidAmount:        decimal.Zero,
			PaymentStatus:     enums.InvoiceUnpaid,
			Version:           1,
			CreatedBy:         input.UserID,
			CreatedAt:         now,
			UpdatedAt:         now,
		}
		repo := s.repo.WithTx(tx)
		if err := repo.Create(ctx, &invoice); err != nil {
			return err
		}
		rows := make([]models.InvoiceLine, len(lines))
		copy(rows, lines)
		for i := range rows {
			rows[i].InvoiceID = invoice.ID
		}
		if err := repo.CreateLines(ctx, rows); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert invoice lines")
		}
		if err := s.record(ctx, tx, invoice, rows, enums.VersionCreated, false, input.UserID, nil); err != nil {
			return err
		}
		if err := s.balances.ApplyDelta(ctx, tx, invoice.CustomerID, balances.Delta{Sales: invoice.GrandTotal, At: now}); err != nil {
			return err
		}
		created = Detail{Invoice: invoice, Lines: rows}
		return nil
	})
	if err != nil {
		if reference != nil && db.IsUniqueViolation(err, externalReferenceHints...) {
			// a concurrent create with the same reference won
			existing, lookupErr := s.existingByReference(ctx, input.OwnerID, *reference)
			if lookupErr != nil {
				return nil, lookupErr
			}
			if existing != nil {
				return existing, nil
			}
		}
		var typed *pkgerrors.Error
		if errors.As(err, &typed) {
			return nil, err
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create invoice")
	}

	logCtx := s.logCtx(ctx, created.Invoice)
	logCtx = s.logg.WithField(logCtx, "invoice_number", created.Invoice.InvoiceNumber)
	s.logg.Info(logCtx, "invoice.created")
	return &CreateResult{Detail: created}, nil
}

func (s *service) existingByReference(ctx context.Context, ownerID uuid.UUID, reference string) (*CreateResult, error) {
	invoice, err := s.repo.FindByExternalReference(ctx, reference)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup external reference")
	}
	if invoice.OwnerID != ownerID {
		return nil, pkgerrors.New(pkgerrors.CodeConflict, "external reference already used")
	}
	lines, err := s.repo.Lines(ctx, invoice.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice lines")
	}
	return &CreateResult{Detail: Detail{Invoice: *invoice, Lines: lines}, Existing: true}, nil
}

func (s *service) Finalize(ctx context.Context, input MutationInput) (*Detail, error) {
	return s.mutate(ctx, input, mutation{
		name:       "finalize",
		changeType: enums.VersionFinalized,
		prepare: func(current *models.Invoice, now time.Time) (map[string]any, []guard, error) {
			if current.IsFinalized {
				return nil, nil, pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already finalized")
			}
			updates := map[string]any{"is_finalized": true, "finalized_at": now}
			return updates, []guard{func(q *gorm.DB) *gorm.DB { return q.Where("is_finalized = ?", false) }}, nil
		},
		onZeroRows: func(current *models.Invoice) error {
			if current.IsFinalized {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice already finalized")
			}
			return nil
		},
	})
}

func (s *service) Edit(ctx context.Context, input EditInput) (*Detail, error) {
	lines, totals, err := ComputeLines(input.Lines)
	if err != nil {
		return nil, err
	}
	reason := normalizeReference(input.EditReason)

	return s.mutate(ctx, input.MutationInput, mutation{
		name:       "edit",
		changeType: enums.VersionEdited,
		lines:      lines,
		prepare: func(current *models.Invoice, now time.Time) (map[string]any, []guard, error) {
			if current.IsFinalized && reason == nil {
				return nil, nil, pkgerrors.New(pkgerrors.CodeInvoiceLocked, "an edit reason is required to change a finalized invoice")
			}
			if totals.GrandTotal.LessThan(current.PaidAmount) {
				return nil, nil, belowPaidError(totals.GrandTotal, current.PaidAmount)
			}
			updates := map[string]any{
				"subtotal":       totals.Subtotal,
				"vat_total":      totals.VATTotal,
				"discount":       totals.Discount,
				"grand_total":    totals.GrandTotal,
				"payment_status": paymentStatusExpr(totals.GrandTotal),
				"is_overpaid":    gorm.Expr("paid_amount > ?", totals.GrandTotal),
			}
			if reason != nil {
				updates["edit_reason"] = *reason
			}
			// payments do not bump the version, so the paid amount is re-checked at write time
			return updates, []guard{func(q *gorm.DB) *gorm.DB { return q.Where("paid_amount <= ?", totals.GrandTotal) }}, nil
		},
		onZeroRows: func(current *models.Invoice) error {
			if totals.GrandTotal.LessThan(current.PaidAmount) {
				return belowPaidError(totals.GrandTotal, current.PaidAmount)
			}
			return nil
		},
		editReason: reason,
	})
}

func (s *service) SoftDelete(ctx context.Context, input MutationInput) (*Detail, error) {
	return s.mutate(ctx, input, mutation{
		name:       "delete",
		changeType: enums.VersionDeleted,
		prepare: func(current *models.Invoice, now time.Time) (map[string]any, []guard, error) {
			deletedBy := input.UserID
			return map[string]any{"is_deleted": true, "deleted_at": now, "deleted_by": deletedBy}, nil, nil
		},
	})
}

// Lock is idempotent: locking an already locked invoice returns it unchanged
// without a new version, whatever expectedVersion says. An expectedVersion of
// zero skips the version check.
func (s *service) Lock(ctx context.Context, invoiceID, ownerID, userID uuid.UUID, expectedVersion int) (*Detail, error) {
	if err := validateActor(invoiceID, ownerID, userID); err != nil {
		return nil, err
	}
	if expectedVersion < 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expectedVersion must not be negative")
	}

	var (
		result  Detail
		changed bool
	)
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, ownerID, invoiceID)
		if err != nil {
			return err
		}
		switch {
		case current.IsDeleted:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is deleted")
		case current.IsLocked:
			lines, err := repo.Lines(ctx, invoiceID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice lines")
			}
			result = Detail{Invoice: *current, Lines: lines}
			return nil
		case !current.IsFinalized:
			return pkgerrors.New(pkgerrors.CodeStateConflict, "only finalized invoices can be locked")
		}

		version := current.Version
		if expectedVersion > 0 {
			if expectedVersion != current.Version {
				s.metrics.IncVersionConflict("lock")
				return versionMismatch(expectedVersion, current.Version)
			}
			version = expectedVersion
		}

		now := s.now()
		rows, err := repo.UpdateVersioned(ctx, ownerID, invoiceID, version,
			map[string]any{"is_locked": true, "locked_at": now, "updated_at": now},
			func(q *gorm.DB) *gorm.DB { return q.Where("is_finalized = ?", true) })
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lock invoice")
		}
		if rows == 0 {
			s.metrics.IncVersionConflict("lock")
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "invoice changed while locking")
		}
		detail, err := s.reload(ctx, repo, ownerID, invoiceID)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, detail.Invoice, detail.Lines, enums.VersionLocked, true, userID, nil); err != nil {
			return err
		}
		result = *detail
		changed = true
		return nil
	})
	if err != nil {
		return nil, err
	}
	if changed {
		s.logg.Info(s.logCtx(ctx, result.Invoice), "invoice.locked")
	}
	return &result, nil
}

func (s *service) Get(ctx context.Context, ownerID, invoiceID uuid.UUID) (*Detail, error) {
	if invoiceID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	return s.reload(ctx, s.repo, ownerID, invoiceID)
}

func (s *service) List(ctx context.Context, ownerID uuid.UUID, params pagination.Params) (*ListResult, error) {
	if ownerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	limit := pagination.NormalizeLimit(params.Limit)
	rows, err := s.repo.List(ctx, ownerID, cursor, pagination.LimitWithBuffer(params.Limit))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list invoices")
	}

	result := &ListResult{Items: rows}
	if len(rows) > limit {
		result.Items = rows[:limit]
		last := result.Items[limit-1]
		result.NextCursor = pagination.EncodeCursor(pagination.Cursor{Key: last.InvoiceSeq, ID: last.ID})
	}
	return result, nil
}

func (s *service) LockCandidates(ctx context.Context, finalizedBefore time.Time, limit int) ([]models.Invoice, error) {
	if limit <= 0 {
		limit = pagination.DefaultLimit
	}
	rows, err := s.repo.ListLockCandidates(ctx, finalizedBefore.UTC(), limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list lock candidates")
	}
	return rows, nil
}

type guard = func(*gorm.DB) *gorm.DB

// mutation describes one versioned change. prepare sees the row as read in the
// transaction and returns the column updates plus extra WHERE guards;
// onZeroRows may explain a lost conditional update that is not a plain version race.
type mutation struct {
	name       string
	changeType enums.VersionChangeType
	lines      []models.InvoiceLine
	editReason *string
	prepare    func(current *models.Invoice, now time.Time) (map[string]any, []guard, error)
	onZeroRows func(current *models.Invoice) error
}

func (s *service) mutate(ctx context.Context, input MutationInput, m mutation) (*Detail, error) {
	if err := validateActor(input.InvoiceID, input.OwnerID, input.UserID); err != nil {
		return nil, err
	}
	if input.ExpectedVersion < 1 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "expected version required")
	}

	var result Detail
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		current, err := s.load(ctx, repo, input.OwnerID, input.InvoiceID)
		if err != nil {
			return err
		}
		if err := s.precondition(current, input.ExpectedVersion, m.name); err != nil {
			return err
		}

		now := s.now()
		updates, guards, err := m.prepare(current, now)
		if err != nil {
			return err
		}
		updates["updated_at"] = now
		rows, err := repo.UpdateVersioned(ctx, input.OwnerID, input.InvoiceID, input.ExpectedVersion, updates, guards...)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, m.name+" invoice")
		}
		if rows == 0 {
			return s.resolveLostUpdate(ctx, repo, input, m)
		}

		if m.lines != nil {
			lines := make([]models.InvoiceLine, len(m.lines))
			copy(lines, m.lines)
			if err := repo.ReplaceLines(ctx, input.InvoiceID, lines); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "replace invoice lines")
			}
		}

		detail, err := s.reload(ctx, repo, input.OwnerID, input.InvoiceID)
		if err != nil {
			return err
		}
		if err := s.record(ctx, tx, detail.Invoice, detail.Lines, m.changeType, current.IsFinalized, input.UserID, m.editReason); err != nil {
			return err
		}

		sales := salesDelta(current, &detail.Invoice)
		if !sales.IsZero() {
			if err := s.balances.ApplyDelta(ctx, tx, detail.Invoice.CustomerID, balances.Delta{Sales: sales, At: now}); err != nil {
				return err
			}
		}
		result = *detail
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logg.Info(s.logCtx(ctx, result.Invoice), "invoice."+string(m.changeType))
	return &result, nil
}

// precondition fails fast on the row read inside the transaction. The
// conditional update still decides; this only gives a precise error early.
func (s *service) precondition(current *models.Invoice, expectedVersion int, op string) error {
	switch {
	case current.IsLocked:
		return pkgerrors.New(pkgerrors.CodeInvoiceLocked, "invoice is locked")
	case current.IsDeleted:
		return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice is deleted")
	case current.Version != expectedVersion:
		s.metrics.IncVersionConflict(op)
		return versionMismatch(expectedVersion, current.Version)
	}
	return nil
}

func (s *service) resolveLostUpdate(ctx context.Context, repo Repository, input MutationInput, m mutation) error {
	current, err := s.load(ctx, repo, input.OwnerID, input.InvoiceID)
	if err != nil {
		return err
	}
	if err := s.precondition(current, input.ExpectedVersion, m.name); err != nil {
		return err
	}
	if m.onZeroRows != nil {
		if err := m.onZeroRows(current); err != nil {
			return err
		}
	}
	s.metrics.IncVersionConflict(m.name)
	return pkgerrors.New(pkgerrors.CodeConcurrentModification, "invoice changed concurrently")
}

func (s *service) record(ctx context.Context, tx *gorm.DB, invoice models.Invoice, lines []models.InvoiceLine, change enums.VersionChangeType, wasFinalized bool, userID uuid.UUID, reason *string) error {
	if _, err := s.ledger.Append(ctx, tx, ledger.AppendInput{
		InvoiceID:     invoice.ID,
		ChangeType:    change,
		WasFinalized:  wasFinalized,
		Snapshot:      ledger.NewSnapshot(invoice, lines),
		EditedBy:      userID,
		EditReason:    reason,
		ExpectVersion: invoice.Version,
	}); err != nil {
		return err
	}

	event := payloads.InvoiceLifecycleEvent{
		InvoiceID:     invoice.ID,
		OwnerID:       invoice.OwnerID,
		CustomerID:    invoice.CustomerID,
		InvoiceNumber: invoice.InvoiceNumber,
		Version:       invoice.Version,
		ChangeType:    change,
		State:         invoice.State(),
		GrandTotal:    invoice.GrandTotal,
		PaidAmount:    invoice.PaidAmount,
		PaymentStatus: invoice.PaymentStatus,
		EditReason:    reason,
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     lifecycleEventType(change),
		AggregateType: enums.AggregateInvoice,
		AggregateID:   invoice.ID,
		Actor:         outbox.NewActor(userID, invoice.OwnerID),
		Data:          event,
	}); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit invoice event")
	}
	return nil
}

func (s *service) load(ctx context.Context, repo Repository, ownerID, invoiceID uuid.UUID) (*models.Invoice, error) {
	invoice, err := repo.FindByID(ctx, ownerID, invoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	return invoice, nil
}

func (s *service) reload(ctx context.Context, repo Repository, ownerID, invoiceID uuid.UUID) (*Detail, error) {
	invoice, err := s.load(ctx, repo, ownerID, invoiceID)
	if err != nil {
		return nil, err
	}
	lines, err := repo.Lines(ctx, invoiceID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice lines")
	}
	return &Detail{Invoice: *invoice, Lines: lines}, nil
}

func (s *service) logCtx(ctx context.Context, invoice models.Invoice) context.Context {
	ctx = s.logg.WithOwnerID(ctx, invoice.OwnerID.String())
	ctx = s.logg.WithInvoiceID(ctx, invoice.ID.String())
	return s.logg.WithField(ctx, "version", invoice.Version)
}

// salesDelta is the change in the invoice's contribution to the customer's total sales.
func salesDelta(before, after *models.Invoice) decimal.Decimal {
	contribution := func(inv *models.Invoice) decimal.Decimal {
		if inv.IsDeleted {
			return decimal.Zero
		}
		return inv.GrandTotal
	}
	return contribution(after).Sub(contribution(before))
}

func paymentStatusExpr(grandTotal decimal.Decimal) any {
	return gorm.Expr("CASE WHEN paid_amount <= 0 THEN ? WHEN paid_amount >= ? THEN ? ELSE ? END",
		string(enums.InvoiceUnpaid), grandTotal, string(enums.InvoicePaid), string(enums.InvoicePartiallyPaid))
}

func lifecycleEventType(change enums.VersionChangeType) enums.OutboxEventType {
	switch change {
	case enums.VersionFinalized:
		return enums.EventInvoiceFinalized
	case enums.VersionEdited:
		return enums.EventInvoiceEdited
	case enums.VersionLocked:
		return enums.EventInvoiceLocked
	case enums.VersionDeleted:
		return enums.EventInvoiceDeleted
	default:
		return enums.EventInvoiceCreated
	}
}

func validateActor(invoiceID, ownerID, userID uuid.UUID) error {
	if ownerID == uuid.Nil || userID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	}
	if invoiceID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id required")
	}
	return nil
}

func versionMismatch(expected, current int) error {
	return pkgerrors.New(pkgerrors.CodeConcurrentModification, "invoice version mismatch").
		WithDetails(map[string]any{"expectedVersion": expected, "currentVersion": current})
}

func belowPaidError(grandTotal, paid decimal.Decimal) error {
	return pkgerrors.New(pkgerrors.CodeValidation, "grand total cannot drop below the amount already paid").
		WithDetails(map[string]any{"grandTotal": grandTotal.StringFixed(2), "paidAmount": paid.StringFixed(2)})
}

func normalizeReference(value *string) *string {
	if value == nil {
		return nil
	}
	trimmed := strings.TrimSpace(*value)
	if trimmed == "" {
		return nil
	}
	return &trimmed
}
