package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/pkg/enums"
)

// Invoice is the billable document. Version doubles as the optimistic
// concurrency token: every mutation is conditional on it and bumps it.
type Invoice struct {
	ID                uuid.UUID                  `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID           uuid.UUID                  `gorm:"column:owner_id;type:uuid;not null" json:"ownerId"`
	TenantID          *uuid.UUID                 `gorm:"column:tenant_id;type:uuid" json:"tenantId,omitempty"`
	CustomerID        uuid.UUID                  `gorm:"column:customer_id;type:uuid;not null" json:"customerId"`
	InvoiceNumber     string                     `gorm:"column:invoice_number;not null" json:"invoiceNumber"`
	InvoiceSeq        int64                      `gorm:"column:invoice_seq;not null" json:"invoiceSeq"`
	ExternalReference *string                    `gorm:"column:external_reference" json:"externalReference,omitempty"`
	Subtotal          decimal.Decimal            `gorm:"column:subtotal;type:numeric(12,2);not null" json:"subtotal"`
	VATTotal          decimal.Decimal            `gorm:"column:vat_total;type:numeric(12,2);not null" json:"vatTotal"`
	Discount          decimal.Decimal            `gorm:"column:discount;type:numeric(12,2);not null" json:"discount"`
	GrandTotal        decimal.Decimal            `gorm:"column:grand_total;type:numeric(12,2);not null" json:"grandTotal"`
	PaidAmount        decimal.Decimal            `gorm:"column:paid_amount;type:numeric(12,2);not null;default:0" json:"paidAmount"`
	PaymentStatus     enums.InvoicePaymentStatus `gorm:"column:payment_status;not null;default:unpaid" json:"paymentStatus"`
	IsOverpaid        bool                       `gorm:"column:is_overpaid;not null;default:false" json:"isOverpaid"`
	IsFinalized       bool                       `gorm:"column:is_finalized;not null;default:false" json:"isFinalized"`
	FinalizedAt       *time.Time                 `gorm:"column:finalized_at" json:"finalizedAt,omitempty"`
	IsLocked          bool                       `gorm:"column:is_locked;not null;default:false" json:"isLocked"`
	LockedAt          *time.Time                 `gorm:"column:locked_at" json:"lockedAt,omitempty"`
	Version           int                        `gorm:"column:version;not null;default:1" json:"version"`
	EditReason        *string                    `gorm:"column:edit_reason" json:"editReason,omitempty"`
	IsDeleted         bool                       `gorm:"column:is_deleted;not null;default:false" json:"isDeleted"`
	DeletedAt         *time.Time                 `gorm:"column:deleted_at" json:"deletedAt,omitempty"`
	DeletedBy         *uuid.UUID                 `gorm:"column:deleted_by;type:uuid" json:"deletedBy,omitempty"`
	CreatedBy         uuid.UUID                  `gorm:"column:created_by;type:uuid;not null" json:"createdBy"`
	CreatedAt         time.Time                  `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt         time.Time                  `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Invoice) TableName() string { return "invoices" }

func (i *Invoice) BeforeCreate(*gorm.DB) error {
	if i.ID == uuid.Nil {
		i.ID = uuid.New()
	}
	if i.Version == 0 {
		i.Version = 1
	}
	if i.PaymentStatus == "" {
		i.PaymentStatus = enums.InvoiceUnpaid
	}
	return nil
}

// State reports the lifecycle position derived from the flags.
func (i Invoice) State() enums.InvoiceState {
	return enums.DeriveInvoiceState(i.IsFinalized, i.IsLocked, i.IsDeleted)
}

// InvoiceLine belongs to exactly one invoice and is replaced wholesale on edit.
type InvoiceLine struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	InvoiceID   uuid.UUID       `gorm:"column:invoice_id;type:uuid;not null" json:"invoiceId"`
	Position    int             `gorm:"column:position;not null" json:"position"`
	Description string          `gorm:"column:description;not null" json:"description"`
	Quantity    decimal.Decimal `gorm:"column:quantity;type:numeric(12,3);not null" json:"quantity"`
	UnitPrice   decimal.Decimal `gorm:"column:unit_price;type:numeric(12,2);not null" json:"unitPrice"`
	Discount    decimal.Decimal `gorm:"column:discount;type:numeric(12,2);not null;default:0" json:"discount"`
	VATRate     decimal.Decimal `gorm:"column:vat_rate;type:numeric(5,2);not null;default:0" json:"vatRate"`
	VATAmount   decimal.Decimal `gorm:"column:vat_amount;type:numeric(12,2);not null" json:"vatAmount"`
	LineTotal   decimal.Decimal `gorm:"column:line_total;type:numeric(12,2);not null" json:"lineTotal"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (InvoiceLine) TableName() string { return "invoice_lines" }

func (l *InvoiceLine) BeforeCreate(*gorm.DB) error {
	if l.ID == uuid.Nil {
		l.ID = uuid.New()
	}
	return nil
}
