// Package creditnotes records returns credited back to a customer. Each note
// lowers the pending balance through the returns rollup.
package creditnotes

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
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox/payloads"
)

type Service interface {
	Issue(ctx context.Context, input IssueInput) (*models.CreditNote, error)
	List(ctx context.Context, ownerID, customerID uuid.UUID) ([]models.CreditNote, error)
}

// IssueInput describes a return. InvoiceID is optional; when set the invoice
// must be live and belong to the customer, and all notes against it together
// may not exceed its grand total.
type IssueInput struct {
	OwnerID    uuid.UUID
	UserID     uuid.UUID
	CustomerID uuid.UUID
	InvoiceID  *uuid.UUID
	Amount     decimal.Decimal
	Reason     string
}

type service struct {
	repo     Repository
	db       db.TxRunner
	balances *balances.Reconciler
	outbox   outbox.Emitter
	logg     *logger.Logger
}

func NewService(repo Repository, tx db.TxRunner, rec *balances.Reconciler, emitter outbox.Emitter, logg *logger.Logger) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("credit notes repository required")
	}
	if tx == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	if rec == nil {
		return nil, fmt.Errorf("balance reconciler required")
	}
	if emitter == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	return &service{repo: repo, db: tx, balances: rec, outbox: emitter, logg: logg}, nil
}

func (s *service) Issue(ctx context.Context, input IssueInput) (*models.CreditNote, error) {
	if input.OwnerID == uuid.Nil || input.UserID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	}
	if input.CustomerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	amount := input.Amount.Round(2)
	if !amount.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "amount must be positive")
	}
	reason := strings.TrimSpace(input.Reason)
	if reason == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reason required")
	}

	var note *models.CreditNote
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)
		ok, err := repo.CustomerOwnedBy(ctx, input.OwnerID, input.CustomerID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
		}
		if !ok {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		if input.InvoiceID != nil {
			if err := s.checkInvoice(ctx, repo, input, amount); err != nil {
				return err
			}
		}

		now := time.Now().UTC()
		note = &models.CreditNote{
			OwnerID:    input.OwnerID,
			CustomerID: input.CustomerID,
			InvoiceID:  input.InvoiceID,
			Amount:     amount,
			Reason:     reason,
			CreatedBy:  input.UserID,
			CreatedAt:  now,
		}
		if err := repo.Create(ctx, note); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "insert credit note")
		}
		if err := s.balances.ApplyDelta(ctx, tx, input.CustomerID, balances.Delta{Returns: amount, At: now}); err != nil {
			return err
		}
		return s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventCreditNoteIssued,
			AggregateType: enums.AggregateCreditNote,
			AggregateID:   note.ID,
			Actor:         outbox.NewActor(input.UserID, input.OwnerID),
			Data: payloads.CreditNoteIssuedEvent{
				CreditNoteID: note.ID,
				OwnerID:      input.OwnerID,
				CustomerID:   input.CustomerID,
				InvoiceID:    input.InvoiceID,
				Amount:       amount,
				Reason:       reason,
			},
		})
	})
	if err != nil {
		return nil, err
	}

	logCtx := s.logg.WithCustomerID(ctx, input.CustomerID.String())
	s.logg.Info(s.logg.WithField(logCtx, "credit_note_id", note.ID.String()), "credit_note.issued")
	return note, nil
}

func (s *service) checkInvoice(ctx context.Context, repo Repository, input IssueInput, amount decimal.Decimal) error {
	invoice, err := repo.FindInvoice(ctx, input.OwnerID, *input.InvoiceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return pkgerrors.New(pkgerrors.CodeNotFound, "invoice not found")
		}
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load invoice")
	}
	if invoice.CustomerID != input.CustomerID {
		return pkgerrors.New(pkgerrors.CodeValidation, "invoice belongs to another customer")
	}
	credited, err := repo.CreditedOnInvoice(ctx, input.OwnerID, invoice.ID)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum credit notes")
	}
	if credited.Add(amount).GreaterThan(invoice.GrandTotal) {
		return pkgerrors.New(pkgerrors.CodeValidation, "credit notes exceed the invoice total").WithDetails(map[string]string{
			"grandTotal": invoice.GrandTotal.StringFixed(2),
			"credited":   credited.StringFixed(2),
			"remaining":  invoice.GrandTotal.Sub(credited).StringFixed(2),
		})
	}
	return nil
}

func (s *service) List(ctx context.Context, ownerID, customerID uuid.UUID) ([]models.CreditNote, error) {
	notes, err := s.repo.ListByCustomer(ctx, ownerID, customerID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list credit notes")
	}
	return notes, nil
}
