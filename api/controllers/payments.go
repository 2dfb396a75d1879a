package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/angelmondragon/invoice-ledger/api/responses"
	"github.com/angelmondragon/invoice-ledger/api/validators"
	"github.com/angelmondragon/invoice-ledger/internal/payments"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

const idempotencyKeyHeader = "Idempotency-Key"

type applyPaymentRequest struct {
	IdempotencyKey   string          `json:"idempotencyKey" validate:"omitempty,max=255"`
	CustomerID       string          `json:"customerId" validate:"required,uuid"`
	InvoiceID        *string         `json:"invoiceId" validate:"omitempty,uuid"`
	Amount           decimal.Decimal `json:"amount" validate:"positive_money"`
	Mode             string          `json:"mode" validate:"required"`
	Reference        *string         `json:"reference" validate:"omitempty,max=255"`
	AllowOverpayment bool            `json:"allowOverpayment"`
}

type reversePaymentRequest struct {
	Reason string `json:"reason" validate:"required,max=1000"`
}

// ApplyPayment records a payment exactly once per idempotency key. The key
// comes from the Idempotency-Key header or, failing that, the body. A replay
// returns the stored bytes with the Idempotent-Replayed marker.
func ApplyPayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body applyPaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		key := strings.TrimSpace(r.Header.Get(idempotencyKeyHeader))
		if key == "" {
			key = strings.TrimSpace(body.IdempotencyKey)
		}
		if key == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "Idempotency-Key header or idempotencyKey field required"))
			return
		}

		mode, err := enums.ParsePaymentMode(strings.TrimSpace(body.Mode))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid payment mode").WithDetails(map[string]string{"mode": "is invalid"}))
			return
		}

		input := payments.ApplyInput{
			IdempotencyKey:   key,
			OwnerID:          a.OwnerID,
			UserID:           a.UserID,
			CustomerID:       uuid.MustParse(body.CustomerID),
			Amount:           body.Amount,
			Mode:             mode,
			Reference:        validators.SanitizeOptional(body.Reference, 255),
			AllowOverpayment: body.AllowOverpayment,
		}
		if body.InvoiceID != nil {
			invoiceID := uuid.MustParse(*body.InvoiceID)
			input.InvoiceID = &invoiceID
		}

		result, err := svc.Apply(r.Context(), input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		status := http.StatusCreated
		if result.Replayed {
			status = http.StatusOK
		}
		responses.WriteRawData(w, status, result.Response, result.Replayed)
	}
}

// ReversePayment backs a completed payment out of the invoice and the customer rollups.
func ReversePayment(svc payments.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "payments service unavailable"))
			return
		}
		a, err := actorFromRequest(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		paymentID, err := uuidParam(r, "paymentId")
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		var body reversePaymentRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		view, err := svc.Reverse(r.Context(), payments.ReverseInput{
			PaymentID: paymentID,
			OwnerID:   a.OwnerID,
			UserID:    a.UserID,
			Reason:    validators.SanitizeString(body.Reason, 1000),
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, view)
	}
}
