// Package payments applies customer payments at most once per idempotency
// key. The first request for a key runs the whole payment in one transaction
// and stores its response; every later request with the same key and the same
// parameters gets those bytes back without touching the ledger.
package payments

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/balances"
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/metrics"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox/payloads"
)

const maxKeyLength = 255

// Service is the payment idempotency guard plus reversal.
type Service interface {
	Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error)
	Reverse(ctx context.Context, input ReverseInput) (*PaymentView, error)
	PurgeRecords(ctx context.Context, olderThan time.Time, limit int) (int64, error)
}

// ApplyInput is one payment request.
type ApplyInput struct {
	IdempotencyKey   string
	OwnerID          uuid.UUID
	UserID           uuid.UUID
	CustomerID       uuid.UUID
	InvoiceID        *uuid.UUID
	Amount           decimal.Decimal
	Mode             enums.PaymentMode
	Reference        *string
	AllowOverpayment bool
}

// ApplyResult carries the stored response bytes; Replayed is set when they came from an earlier request.
type ApplyResult struct {
	PaymentID uuid.UUID
	Response  json.RawMessage
	Replayed  bool
}

// ReverseInput backs out a completed payment.
type ReverseInput struct {
	PaymentID uuid.UUID
	OwnerID   uuid.UUID
	UserID    uuid.UUID
	Reason    string
}

// PaymentView is the response body of a payment. It is what gets stored for replay.
type PaymentView struct {
	PaymentID            uuid.UUID                   `json:"paymentId"`
	CustomerID           uuid.UUID                   `json:"customerId"`
	InvoiceID            *uuid.UUID                  `json:"invoiceId,omitempty"`
	Amount               string                      `json:"amount"`
	Mode                 enums.PaymentMode           `json:"mode"`
	Status               enums.PaymentStatus         `json:"status"`
	Reference            *string                     `json:"reference,omitempty"`
	InvoicePaidAmount    *string                     `json:"invoicePaidAmount,omitempty"`
	InvoicePaymentStatus *enums.InvoicePaymentStatus `json:"invoicePaymentStatus,omitempty"`
	InvoiceOverpaid      bool                        `json:"invoiceOverpaid,omitempty"`
	CreatedAt            time.Time                   `json:"createdAt"`
	ReversedAt           *time.Time                  `json:"reversedAt,omitempty"`
}

// Params wires the payment service.
type Params struct {
	Repository       Repository
	DB               db.TxRunner
	Balances         *balances.Reconciler
	Outbox           outbox.Emitter
	Logger           *logger.Logger
	Metrics          *metrics.LedgerMetrics
	AllowOverpayment bool
}

type service struct {
	repo             Repository
	db               db.TxRunner
	balances         *balances.Reconciler
	outbox           outbox.Emitter
	logg             *logger.Logger
	metrics          *metrics.LedgerMetrics
	allowOverpayment bool
	now              func() time.Time
}

// NewService wires the payment service.
func NewService(params Params) (Service, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("payments repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
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
		repo:             params.Repository,
		db:               params.DB,
		balances:         params.Balances,
		outbox:           params.Outbox,
		logg:             logg,
		metrics:          params.Metrics,
		allowOverpayment: params.AllowOverpayment,
		now:              func() time.Time { return time.Now().UTC() },
	}, nil
}

// RequestHash fingerprints the parameters a key is bound to.
func RequestHash(customerID uuid.UUID, invoiceID *uuid.UUID, amount decimal.Decimal, mode enums.PaymentMode) string {
	invoice := ""
	if invoiceID != nil {
		invoice = invoiceID.String()
	}
	sum := sha256.Sum256([]byte(strings.Join([]string{
		customerID.String(), invoice, amount.StringFixed(2), string(mode),
	}, "|")))
	return hex.EncodeToString(sum[:])
}

func (s *service) Apply(ctx context.Context, input ApplyInput) (*ApplyResult, error) {
	input.IdempotencyKey = strings.TrimSpace(input.IdempotencyKey)
	if err := validateApply(input); err != nil {
		return nil, err
	}
	input.Amount = input.Amount.Round(2)
	hash := RequestHash(input.CustomerID, input.InvoiceID, input.Amount, input.Mode)

	ctx = s.logg.WithFields(ctx, map[string]any{
		"idempotency_key": input.IdempotencyKey,
		"customer_id":     input.CustomerID.String(),
	})

	replay, err := s.lookup(ctx, input.IdempotencyKey, hash)
	if err != nil || replay != nil {
		if replay != nil {
			s.metrics.IncIdempotency(metrics.OutcomeReplayed)
			s.logg.Info(ctx, "payment.replayed")
		}
		return replay, err
	}

	ok, err := s.repo.CustomerOwnedBy(ctx, input.OwnerID, input.CustomerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}

	var result *ApplyResult
	err = s.db.WithTx(ctx, func(tx *gorm.DB) error {
		var err error
		result, err = s.execute(ctx, tx, input, hash)
		return err
	})
	if err != nil {
		// A request with the same key may have committed while this one ran.
		// Whichever statement failed (the record insert, or the invoice update
		// against the winner's paid amount), the stored response wins.
		replay, lookupErr := s.lookup(ctx, input.IdempotencyKey, hash)
		switch {
		case replay != nil:
			s.metrics.IncIdempotency(metrics.OutcomeRaceLost)
			s.logg.Info(ctx, "payment.replayed")
			return replay, nil
		case pkgerrors.IsCode(lookupErr, pkgerrors.CodeIdempotency):
			return nil, lookupErr
		}
		return nil, err
	}

	s.metrics.IncIdempotency(metrics.OutcomeApplied)
	s.logg.Info(s.logg.WithField(ctx, "payment_id", result.PaymentID.String()), "payment.applied")
	return result, nil
}

// lookup returns the stored response for key, nil when the key is new, or
// IDEMPOTENCY_KEY_REUSED when the key was used with other parameters.
func (s *service) lookup(ctx context.Context, key, hash string) (*ApplyResult, error) {
	record, err := s.repo.FindRecord(ctx, key)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "lookup idempotency key")
	}
	if record.RequestHash != hash {
		s.metrics.IncIdempotency(metrics.OutcomeConflict)
		return nil, pkgerrors.New(pkgerrors.CodeIdempotency, "idempotency key was already used with different payment parameters")
	}
	return &ApplyResult{
		PaymentID: record.PaymentID,
		Response:  json.RawMessage(record.ResponseSnapshot),
		Replayed:  true,
	}, nil
}

func (s *service) execute(ctx context.Context, tx *gorm.DB, input ApplyInput, hash string) (*ApplyResult, error) {
	repo := s.repo.WithTx(tx)
	now := s.now()

	payment := &models.Payment{
		OwnerID:    input.OwnerID,
		CustomerID: input.CustomerID,
		InvoiceID:  input.InvoiceID,
		Amount:     input.Amount,
		Mode:       input.Mode,
		Status:     enums.PaymentStatusCompleted,
		Reference:  input.Reference,
		CreatedBy:  input.UserID,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	if err := repo.CreatePayment(ctx, payment); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert payment")
	}

	view := viewOf(payment)
	if input.InvoiceID != nil {
		invoice, err := s.applyToInvoice(ctx, repo, input, now)
		if err != nil {
			return nil, err
		}
		paid := invoice.PaidAmount.StringFixed(2)
		status := invoice.PaymentStatus
		view.InvoicePaidAmount = &paid
		view.InvoicePaymentStatus = &status
		view.InvoiceOverpaid = invoice.IsOverpaid
	}

	if err := s.balances.ApplyDelta(ctx, tx, input.CustomerID, balances.Delta{
		Payments:  input.Amount,
		At:        now,
		PaymentAt: &now,
	}); err != nil {
		return nil, err
	}

	response, err := json.Marshal(view)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, err, "encode payment response")
	}
	if err := repo.CreateRecord(ctx, &models.PaymentIdempotencyRecord{
		IdempotencyKey:   input.IdempotencyKey,
		PaymentID:        payment.ID,
		UserID:           input.UserID,
		RequestHash:      hash,
		ResponseSnapshot: response,
		CreatedAt:        now,
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert idempotency record")
	}

	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventPaymentApplied,
		AggregateType: enums.AggregatePayment,
		AggregateID:   payment.ID,
		Actor:         outbox.NewActor(input.UserID, input.OwnerID),
		Data: payloads.PaymentAppliedEvent{
			PaymentID:            payment.ID,
			OwnerID:              input.OwnerID,
			CustomerID:           input.CustomerID,
			InvoiceID:            input.InvoiceID,
			Amount:               input.Amount,
			Mode:                 input.Mode,
			InvoicePaymentStatus: view.InvoicePaymentStatus,
			IdempotencyKey:       input.IdempotencyKey,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "emit payment event")
	}

	return &ApplyResult{PaymentID: payment.ID, Response: response}, nil
}

func (s *service) applyToInvoice(ctx context.Context, repo Repository, input ApplyInput, now time.Time) (*models.Invoice, error) {
	allow := input.AllowOverpayment || s.allowOverpayment
	target := InvoiceTarget{OwnerID: input.OwnerID, CustomerID: input.CustomerID, InvoiceID: *input.InvoiceID}
	rows, err := repo.AddToInvoice(ctx, target, input.Amount, allow, now)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply payment to invoice")
	}

	invoice, err := repo.FindInvoice(ctx, input.OwnerID, *input.InvoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if rows == 1 {
		return invoice, nil
	}

	switch {
	case invoice.IsDeleted:
		return nil, pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
	case invoice.CustomerID != input.CustomerID:
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invoice belongs to another customer")
	default:
		due := invoice.GrandTotal.Sub(invoice.PaidAmount)
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment exceeds the amount due").
			WithDetails(map[string]any{"amountDue": due.StringFixed(2), "amount": input.Amount.StringFixed(2)})
	}
}

func (s *service) Reverse(ctx context.Context, input ReverseInput) (*PaymentView, error) {
	if input.OwnerID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	}
	if input.PaymentID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "payment id required")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reversal reason required")
	}

	var view PaymentView
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		payment, err := repo.FindPayment(ctx, input.OwnerID, input.PaymentID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.New(pkgerrors.CodeNotFound, "payment not found")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load payment")
		}
		if payment.Status != enums.PaymentStatusCompleted {
			return pkgerrors.New(pkgerrors.CodeStateConflict, fmt.Sprintf("payment is %s", payment.Status))
		}

		now := s.now()
		rows, err := repo.MarkReversed(ctx, payment, input.UserID, reason, now)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "reverse payment")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeConcurrentModification, "payment changed concurrently")
		}

		payment.Status = enums.PaymentStatusReversed
		payment.ReversedAt = &now
		view = viewOf(payment)

		if payment.InvoiceID != nil {
			rows, err := repo.SubtractFromInvoice(ctx, *payment.InvoiceID, payment.Amount, now)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "revert invoice payment")
			}
			if rows == 0 {
				return pkgerrors.New(pkgerrors.CodeStateConflict, "invoice paid amount is below the payment amount")
			}
			invoice, err := repo.FindInvoice(ctx, input.OwnerID, *payment.InvoiceID)
			if err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
			}
			paid := invoice.PaidAmount.StringFixed(2)
			status := invoice.PaymentStatus
			view.InvoicePaidAmount = &paid
			view.InvoicePaymentStatus = &status
		}

		if err := s.balances.ApplyDelta(ctx, tx, payment.CustomerID, balances.Delta{
			Payments: payment.Amount.Neg(),
			At:       now,
		}); err != nil {
			return err
		}

		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventPaymentReversed,
			AggregateType: enums.AggregatePayment,
			AggregateID:   payment.ID,
			Actor:         outbox.NewActor(input.UserID, input.OwnerID),
			Data: payloads.PaymentReversedEvent{
				PaymentID:  payment.ID,
				OwnerID:    payment.OwnerID,
				CustomerID: payment.CustomerID,
				InvoiceID:  payment.InvoiceID,
				Amount:     payment.Amount,
				Reason:     reason,
				ReversedAt: now,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCustomerID(ctx, view.CustomerID.String())
	s.logg.Info(s.logg.WithField(logCtx, "payment_id", view.PaymentID.String()), "payment.reversed")
	return &view, nil
}

// PurgeRecords deletes idempotency records older than the retention cutoff.
// A purged key is treated as new if it is ever presented again.
func (s *service) PurgeRecords(ctx context.Context, olderThan time.Time, limit int) (int64, error) {
	if limit <= 0 {
		limit = 500
	}
	deleted, err := s.repo.DeleteRecordsBefore(ctx, olderThan.UTC(), limit)
	if err != nil {
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "purge idempotency records")
	}
	return deleted, nil
}

func viewOf(payment *models.Payment) PaymentView {
	return PaymentView{
		PaymentID:  payment.ID,
		CustomerID: payment.CustomerID,
		InvoiceID:  payment.InvoiceID,
		Amount:     payment.Amount.StringFixed(2),
		Mode:       payment.Mode,
		Status:     payment.Status,
		Reference:  payment.Reference,
		CreatedAt:  payment.CreatedAt.UTC(),
		ReversedAt: payment.ReversedAt,
	}
}

func validateApply(input ApplyInput) error {
	switch {
	case input.OwnerID == uuid.Nil || input.UserID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	case input.IdempotencyKey == "":
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key required")
	case len(input.IdempotencyKey) > maxKeyLength:
		return pkgerrors.New(pkgerrors.CodeValidation, "idempotency key too long")
	case input.CustomerID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	case input.InvoiceID != nil && *input.InvoiceID == uuid.Nil:
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice id is invalid")
	case !input.Amount.Round(2).IsPositive():
		return pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	case !input.Mode.IsValid():
		return pkgerrors.New(pkgerrors.CodeValidation, fmt.Sprintf("invalid payment mode %q", input.Mode))
	}
	return nil
}
