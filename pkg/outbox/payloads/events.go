package payloads

import (
	"time"

	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// InvoiceLifecycleEvent is emitted for every versioned invoice change.
type InvoiceLifecycleEvent struct {
	InvoiceID     uuid.UUID                  `json:"invoiceId"`
	OwnerID       uuid.UUID                  `json:"ownerId"`
	CustomerID    uuid.UUID                  `json:"customerId"`
	InvoiceNumber string                     `json:"invoiceNumber"`
	Version       int                        `json:"version"`
	ChangeType    enums.VersionChangeType    `json:"changeType"`
	State         enums.InvoiceState         `json:"state"`
	GrandTotal    decimal.Decimal            `json:"grandTotal"`
	PaidAmount    decimal.Decimal            `json:"paidAmount"`
	PaymentStatus enums.InvoicePaymentStatus `json:"paymentStatus"`
	EditReason    *string                    `json:"editReason,omitempty"`
}

// PaymentAppliedEvent is emitted once per idempotency key.
type PaymentAppliedEvent struct {
	PaymentID            uuid.UUID                   `json:"paymentId"`
	OwnerID              uuid.UUID                   `json:"ownerId"`
	CustomerID           uuid.UUID                   `json:"customerId"`
	InvoiceID            *uuid.UUID                  `json:"invoiceId,omitempty"`
	Amount               decimal.Decimal             `json:"amount"`
	Mode                 enums.PaymentMode           `json:"mode"`
	InvoicePaymentStatus *enums.InvoicePaymentStatus `json:"invoicePaymentStatus,omitempty"`
	IdempotencyKey       string                      `json:"idempotencyKey"`
}

// PaymentReversedEvent is emitted when a completed payment is backed out.
type PaymentReversedEvent struct {
	PaymentID  uuid.UUID       `json:"paymentId"`
	OwnerID    uuid.UUID       `json:"ownerId"`
	CustomerID uuid.UUID       `json:"customerId"`
	InvoiceID  *uuid.UUID      `json:"invoiceId,omitempty"`
	Amount     decimal.Decimal `json:"amount"`
	Reason     string          `json:"reason"`
	ReversedAt time.Time       `json:"reversedAt"`
}

// CreditNoteIssuedEvent reports returned value credited to a customer.
type CreditNoteIssuedEvent struct {
	CreditNoteID uuid.UUID       `json:"creditNoteId"`
	OwnerID      uuid.UUID       `json:"ownerId"`
	CustomerID   uuid.UUID       `json:"customerId"`
	InvoiceID    *uuid.UUID      `json:"invoiceId,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Reason       string          `json:"reason"`
}

// BalanceDrift is one rollup column whose cached value disagrees with the source rows.
type BalanceDrift struct {
	Field    string          `json:"field"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

// BalanceDriftDetectedEvent is raised by the reconciliation job.
type BalanceDriftDetectedEvent struct {
	CustomerID uuid.UUID      `json:"customerId"`
	OwnerID    uuid.UUID      `json:"ownerId"`
	Drifts     []BalanceDrift `json:"drifts"`
	Repaired   bool           `json:"repaired"`
	DetectedAt time.Time      `json:"detectedAt"`
}
