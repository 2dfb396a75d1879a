package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Customer carries the denormalized ledger rollups. The rollups are a cache over
// invoices, completed payments and credit notes; balances.Reconciler owns them.
type Customer struct {
	ID               uuid.UUID        `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey" json:"id"`
	OwnerID          uuid.UUID        `gorm:"column:owner_id;type:uuid;not null" json:"ownerId"`
	TenantID         *uuid.UUID       `gorm:"column:tenant_id;type:uuid" json:"tenantId,omitempty"`
	Name             string           `gorm:"column:name;not null" json:"name"`
	CreditLimit      *decimal.Decimal `gorm:"column:credit_limit;type:numeric(12,2)" json:"creditLimit,omitempty"`
	TotalSales       decimal.Decimal  `gorm:"column:total_sales;type:numeric(12,2);not null;default:0" json:"totalSales"`
	TotalPayments    decimal.Decimal  `gorm:"column:total_payments;type:numeric(12,2);not null;default:0" json:"totalPayments"`
	TotalReturns     decimal.Decimal  `gorm:"column:total_returns;type:numeric(12,2);not null;default:0" json:"totalReturns"`
	PendingBalance   decimal.Decimal  `gorm:"column:pending_balance;type:numeric(12,2);not null;default:0" json:"pendingBalance"`
	Balance          decimal.Decimal  `gorm:"column:balance;type:numeric(12,2);not null;default:0" json:"balance"`
	LastActivity     *time.Time       `gorm:"column:last_activity" json:"lastActivity,omitempty"`
	LastPaymentDate  *time.Time       `gorm:"column:last_payment_date" json:"lastPaymentDate,omitempty"`
	ConcurrencyToken int64            `gorm:"column:concurrency_token;not null;default:1" json:"-"`
	CreatedAt        time.Time        `gorm:"column:created_at;autoCreateTime" json:"createdAt"`
	UpdatedAt        time.Time        `gorm:"column:updated_at;autoUpdateTime" json:"updatedAt"`
}

func (Customer) TableName() string { return "customers" }

func (c *Customer) BeforeCreate(*gorm.DB) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.ConcurrencyToken == 0 {
		c.ConcurrencyToken = 1
	}
	return nil
}
