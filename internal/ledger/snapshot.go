package ledger

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
)

// Snapshot is the full, self-contained state of an invoice at one version.
// Money is rendered as fixed two-decimal strings so snapshots compare byte for byte.
type Snapshot struct {
	Invoice InvoiceSnapshot `json:"invoice"`
	Lines   []LineSnapshot  `json:"lines"`
}

type InvoiceSnapshot struct {
	ID                uuid.UUID                  `json:"id"`
	OwnerID           uuid.UUID                  `json:"ownerId"`
	TenantID          *uuid.UUID                 `json:"tenantId,omitempty"`
	CustomerID        uuid.UUID                  `json:"customerId"`
	InvoiceNumber     string                     `json:"invoiceNumber"`
	InvoiceSeq        int64                      `json:"invoiceSeq"`
	ExternalReference *string                    `json:"externalReference,omitempty"`
	State             enums.InvoiceState         `json:"state"`
	Subtotal          string                     `json:"subtotal"`
	VATTotal          string                     `json:"vatTotal"`
	Discount          string                     `json:"discount"`
	GrandTotal        string                     `json:"grandTotal"`
	PaidAmount        string                     `json:"paidAmount"`
	PaymentStatus     enums.InvoicePaymentStatus `json:"paymentStatus"`
	IsOverpaid        bool                       `json:"isOverpaid"`
	FinalizedAt       *time.Time                 `json:"finalizedAt,omitempty"`
	LockedAt          *time.Time                 `json:"lockedAt,omitempty"`
	DeletedAt         *time.Time                 `json:"deletedAt,omitempty"`
	DeletedBy         *uuid.UUID                 `json:"deletedBy,omitempty"`
	Version           int                        `json:"version"`
	EditReason        *string                    `json:"editReason,omitempty"`
	CreatedBy         uuid.UUID                  `json:"createdBy"`
	CreatedAt         time.Time                  `json:"createdAt"`
}

type LineSnapshot struct {
	Position    int    `json:"position"`
	Description string `json:"description"`
	Quantity    string `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	Discount    string `json:"discount"`
	VATRate     string `json:"vatRate"`
	VATAmount   string `json:"vatAmount"`
	LineTotal   string `json:"lineTotal"`
}

// NewSnapshot captures invoice and lines as they will be after the mutation.
func NewSnapshot(invoice models.Invoice, lines []models.InvoiceLine) Snapshot {
	snap := Snapshot{
		Invoice: InvoiceSnapshot{
			ID:                invoice.ID,
			OwnerID:           invoice.OwnerID,
			TenantID:          invoice.TenantID,
			CustomerID:        invoice.CustomerID,
			InvoiceNumber:     invoice.InvoiceNumber,
			InvoiceSeq:        invoice.InvoiceSeq,
			ExternalReference: invoice.ExternalReference,
			State:             invoice.State(),
			Subtotal:          invoice.Subtotal.StringFixed(2),
			VATTotal:          invoice.VATTotal.StringFixed(2),
			Discount:          invoice.Discount.StringFixed(2),
			GrandTotal:        invoice.GrandTotal.StringFixed(2),
			PaidAmount:        invoice.PaidAmount.StringFixed(2),
			PaymentStatus:     invoice.PaymentStatus,
			IsOverpaid:        invoice.IsOverpaid,
			FinalizedAt:       utc(invoice.FinalizedAt),
			LockedAt:          utc(invoice.LockedAt),
			DeletedAt:         utc(invoice.DeletedAt),
			DeletedBy:         invoice.DeletedBy,
			Version:           invoice.Version,
			EditReason:        invoice.EditReason,
			CreatedBy:         invoice.CreatedBy,
			CreatedAt:         invoice.CreatedAt.UTC(),
		},
		Lines: make([]LineSnapshot, 0, len(lines)),
	}
	for _, line := range lines {
		snap.Lines = append(snap.Lines, LineSnapshot{
			Position:    line.Position,
			Description: line.Description,
			Quantity:    line.Quantity.StringFixed(3),
			UnitPrice:   line.UnitPrice.StringFixed(2),
			Discount:    line.Discount.StringFixed(2),
			VATRate:     line.VATRate.StringFixed(2),
			VATAmount:   line.VATAmount.StringFixed(2),
			LineTotal:   line.LineTotal.StringFixed(2),
		})
	}
	return snap
}

// DecodeSnapshot parses a stored snapshot document.
func DecodeSnapshot(raw []byte) (*Snapshot, error) {
	var snap Snapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func utc(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.UTC()
	return &v
}
