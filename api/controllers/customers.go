package controllers

import (
	"context"
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/invoice-ledger/api/responses"
	"github.com/angelmondragon/invoice-ledger/api/validators"
	"github.com/angelmondragon/invoice-ledger/internal/balances"
	"github.com/angelmondragon/invoice-ledger/internal/creditnotes"
	"github.com/angelmondragon/invoice-ledger/internal/customers"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

// LedgerReconciler reads and rebuilds customer rollups.
type LedgerReconciler interface {
	Stored(ctx context.Context, customerID uuid.UUID) (*balances.LedgerSnapshot, error)
	Verify(ctx context.Context, customerID uuid.UUID) (*balances.Drift, error)
	Repair(ctx context.Context, customerID uuid.UUID) (*balances.Drift, error)
}

type createCustomerRequest struct {
	Name        string           `json:"name" validate:"required,max=255"`
	CreditLimit *decimal.Decimal `json:"creditLimit" validate:"omitempty,money"`
}

type issueCreditNoteRequest struct {
	InvoiceID *string         `json:"invoiceId" validate:"omitempty,uuid"`
	Amount    decimal.Decimal `json:"amount" validate:"positive_money"`
	Reason    string          `json:"reason" validate:"required,max=1000"`
}

type recomputeResponse struct {
	*balances.Drift
	Drifted  bool `json:"drifted"`
	Repaired bool `json:"repaired"`
}

func CreateCustomer(svc customers.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customers service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createCustomerRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		customer, err := svc.Create(r.Context(), customers.CreateInput{
			OwnerID:     a.OwnerID,
			TenantID:    a.TenantID,
			Name:        validators.SanitizeString(body.Name, 255),
			CreditLimit: body.CreditLimit,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, customer)
	}
}

// GetCustomerLedger returns the stored rollups without recomputing them.
func GetCustomerLedger(svc customers.Service, rec LedgerReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := ownedCustomer(w, r, svc, rec, logg)
		if !ok {
			return
		}
		snapshot, err := rec.Stored(r.Context(), customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, snapshot)
	}
}

// RecomputeCustomerLedger recomputes the rollups from source rows and
// compares them with the stored values. ?repair=true overwrites drifted rollups.
func RecomputeCustomerLedger(svc customers.Service, rec LedgerReconciler, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		customerID, ok := ownedCustomer(w, r, svc, rec, logg)
		if !ok {
			return
		}
		repair, err := validators.ParseQueryBool(r, "repair")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var drift *balances.Drift
		if repair {
			drift, err = rec.Repair(r.Context(), customerID)
		} else {
			drift, err = rec.Verify(r.Context(), customerID)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, recomputeResponse{
			Drift:    drift,
			Drifted:  drift.HasDrift(),
			Repaired: repair && drift.HasDrift(),
		})
	}
}

func IssueCreditNote(svc creditnotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit notes service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := uuidParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body issueCreditNoteRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := creditnotes.IssueInput{
			OwnerID:    a.OwnerID,
			UserID:     a.UserID,
			CustomerID: customerID,
			Amount:     body.Amount,
			Reason:     validators.SanitizeString(body.Reason, 1000),
		}
		if body.InvoiceID != nil {
			invoiceID := uuid.MustParse(*body.InvoiceID)
			input.InvoiceID = &invoiceID
		}

		note, err := svc.Issue(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, note)
	}
}

func ListCreditNotes(svc creditnotes.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "credit notes service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		customerID, err := uuidParam(r, "customerId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		notes, err := svc.List(r.Context(), a.OwnerID, customerID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": notes})
	}
}

func ownedCustomer(w http.ResponseWriter, r *http.Request, svc customers.Service, rec LedgerReconciler, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil || rec == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "customer ledger unavailable"))
		return uuid.Nil, false
	}
	a, err := actorFromRequest(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	customerID, err := uuidParam(r, "customerId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	if _, err := svc.Get(r.Context(), a.OwnerID, customerID); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return customerID, true
}
