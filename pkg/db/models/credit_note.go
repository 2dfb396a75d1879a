package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// CreditNote records goods returned or value credited back to a customer.
type CreditNote struct {
	ID         uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID    uuid.UUID       `gorm:"column:owner_id;type:uuid;not null" json:"ownerId"`
	CustomerID uuid.UUID       `gorm:"column:customer_id;type:uuid;not null" json:"customerId"`
	InvoiceID  *uuid.UUID      `gorm:"column:invoice_id;type:uuid" json:"invoiceId,omitempty"`
	Amount     decimal.Decimal `gorm:"column:amount;type:numeric(12,2);not null" json:"amount"`
	Reason     string          `gorm:"column:reason;not null" json:"reason"`
	CreatedBy  uuid.UUID       `gorm:"column:created_by;type:uuid;not null" json:"createdBy"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
}

func (CreditNote) TableName() string { return "credit_notes" }

func (c *CreditNote) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	return nil
}
