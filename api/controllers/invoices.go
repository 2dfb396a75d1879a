package controllers

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/angelmondragon/invoice-ledger/api/responses"
	"github.com/angelmondragon/invoice-ledger/api/validators"
	"github.com/angelmondragon/invoice-ledger/internal/invoices"
	"github.com/angelmondragon/invoice-ledger/internal/ledger"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/pagination"
)

type createInvoiceRequest struct {
	CustomerID        string               `json:"customerId" validate:"required,uuid"`
	ExternalReference *string              `json:"externalReference" validate:"omitempty,max=255"`
	Lines             []invoices.LineInput `json:"lines" validate:"required,min=1,dive"`
}

type updateInvoiceRequest struct {
	Action     string               `json:"action" validate:"required,oneof=edit finalize lock"`
	Lines      []invoices.LineInput `json:"lines" validate:"omitempty,dive"`
	EditReason *string              `json:"editReason" validate:"omitempty,max=1000"`
}

// VersionReader reads the append-only history of an invoice.
type VersionReader interface {
	List(ctx context.Context, invoiceID uuid.UUID) ([]ledger.Version, error)
	Get(ctx context.Context, invoiceID uuid.UUID, number int) (*ledger.Version, error)
}

// CreateInvoice allocates a number and stores a draft invoice. A request whose
// externalReference matches an existing invoice returns that invoice with 200.
func CreateInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body createInvoiceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		result, err := svc.Create(r.Context(), invoices.CreateInput{
			OwnerID:           a.OwnerID,
			TenantID:          a.TenantID,
			CustomerID:        uuid.MustParse(body.CustomerID),
			UserID:            a.UserID,
			ExternalReference: validators.SanitizeOptional(body.ExternalReference, 255),
			Lines:             body.Lines,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Existing {
			status = http.StatusOK
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// ListInvoices pages the owner's invoices newest first.
func ListInvoices(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		limit, err := validators.ParseQueryInt(r, "limit", pagination.DefaultLimit, 1, pagination.MaxLimit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		params := pagination.Params{
			Limit:  limit,
			Cursor: strings.TrimSpace(r.URL.Query().Get("cursor")),
		}

		result, err := svc.List(r.Context(), a.OwnerID, params)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

func GetInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := uuidParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.Get(r.Context(), a.OwnerID, invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// UpdateInvoice dispatches the edit, finalize and lock actions. Every action
// is conditional on ?expectedVersion=.
func UpdateInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := uuidParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expected, err := validators.ParseQueryVersion(r, "expectedVersion")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body updateInvoiceRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		action, err := enums.ParseInvoiceAction(body.Action)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid action"))
			return
		}

		mutation := invoices.MutationInput{
			InvoiceID:       invoiceID,
			OwnerID:         a.OwnerID,
			UserID:          a.UserID,
			ExpectedVersion: expected,
		}

		var detail *invoices.Detail
		switch action {
		case enums.InvoiceActionEdit:
			if len(body.Lines) == 0 {
				responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "lines required for edit").WithDetails(map[string]string{"lines": "is required"}))
				return
			}
			detail, err = svc.Edit(r.Context(), invoices.EditInput{
				MutationInput: mutation,
				Lines:         body.Lines,
				EditReason:    validators.SanitizeOptional(body.EditReason, 1000),
			})
		case enums.InvoiceActionFinalize:
			detail, err = svc.Finalize(r.Context(), mutation)
		case enums.InvoiceActionLock:
			detail, err = svc.Lock(r.Context(), mutation.InvoiceID, mutation.OwnerID, mutation.UserID, mutation.ExpectedVersion)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// DeleteInvoice soft deletes the invoice. Its number is never reissued.
func DeleteInvoice(svc invoices.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoices service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		invoiceID, err := uuidParam(r, "invoiceId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		expected, err := validators.ParseQueryVersion(r, "expectedVersion")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		detail, err := svc.SoftDelete(r.Context(), invoices.MutationInput{
			InvoiceID:       invoiceID,
			OwnerID:         a.OwnerID,
			UserID:          a.UserID,
			ExpectedVersion: expected,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, detail)
	}
}

// ListInvoiceVersions returns the invoice history. Ownership is checked
// through the aggregate before the ledger is read.
func ListInvoiceVersions(svc invoices.Service, versions VersionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := ownedInvoice(w, r, svc, versions, logg)
		if !ok {
			return
		}
		items, err := versions.List(r.Context(), invoiceID)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, map[string]any{"items": items})
	}
}

func GetInvoiceVersion(svc invoices.Service, versions VersionReader, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		invoiceID, ok := ownedInvoice(w, r, svc, versions, logg)
		if !ok {
			return
		}
		number, err := strconv.Atoi(strings.TrimSpace(chi.URLParam(r, "versionNumber")))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid version number"))
			return
		}
		version, err := versions.Get(r.Context(), invoiceID, number)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, version)
	}
}

func ownedInvoice(w http.ResponseWriter, r *http.Request, svc invoices.Service, versions VersionReader, logg *logger.Logger) (uuid.UUID, bool) {
	if svc == nil || versions == nil {
		responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "invoice history unavailable"))
		return uuid.Nil, false
	}
	a, err := actorFromRequest(r)
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	invoiceID, err := uuidParam(r, "invoiceId")
	if err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	if _, err := svc.Get(r.Context(), a.OwnerID, invoiceID); err != nil {
		responses.WriteError(r.Context(), logg, w, err)
		return uuid.Nil, false
	}
	return invoiceID, true
}
