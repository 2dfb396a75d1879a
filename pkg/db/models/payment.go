package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	dbtypes "github.com/angelmondragon/invoice-ledger/pkg/db/types"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
)

// Payment is money received from a customer, optionally against one invoice.
type Payment struct {
	ID               uuid.UUID           `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID          uuid.UUID           `gorm:"column:owner_id;type:uuid;not null"`
	CustomerID       uuid.UUID           `gorm:"column:customer_id;type:uuid;not null"`
	InvoiceID        *uuid.UUID          `gorm:"column:invoice_id;type:uuid"`
	Amount           decimal.Decimal     `gorm:"column:amount;type:numeric(12,2);not null"`
	Mode             enums.PaymentMode   `gorm:"column:mode;not null"`
	Status           enums.PaymentStatus `gorm:"column:status;not null"`
	Reference        *string             `gorm:"column:reference"`
	ConcurrencyToken int64               `gorm:"column:concurrency_token;not null;default:1"`
	CreatedBy        uuid.UUID           `gorm:"column:created_by;type:uuid;not null"`
	ReversedAt       *time.Time          `gorm:"column:reversed_at"`
	ReversedBy       *uuid.UUID          `gorm:"column:reversed_by;type:uuid"`
	ReversalReason   *string             `gorm:"column:reversal_reason"`
	CreatedAt        time.Time           `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time           `gorm:"column:updated_at;autoUpdateTime"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) BeforeCreate(*gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	if p.ConcurrencyToken == 0 {
		p.ConcurrencyToken = 1
	}
	return nil
}

// PaymentIdempotencyRecord pins an idempotency key to the first response it produced.
// ResponseSnapshot is text, not jsonb, so replays return the original bytes.
type PaymentIdempotencyRecord struct {
	IdempotencyKey   string               `gorm:"column:idempotency_key;primaryKey"`
	PaymentID        uuid.UUID            `gorm:"column:payment_id;type:uuid;not null"`
	UserID           uuid.UUID            `gorm:"column:user_id;type:uuid;not null"`
	RequestHash      string               `gorm:"column:request_hash;not null"`
	ResponseSnapshot dbtypes.JSONDocument `gorm:"column:response_snapshot;type:text;not null"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
}

func (PaymentIdempotencyRecord) TableName() string { return "payment_idempotency_records" }
