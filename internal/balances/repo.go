package balances

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/repo"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
)

// Repository reads and writes the customer rollup columns and the source rows they cache.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error)
	ApplyDelta(ctx context.Context, customerID uuid.UUID, delta Delta) (int64, error)
	InvoiceTotals(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error)
	CompletedPaymentAmounts(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error)
	CreditNoteAmounts(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error)
	OverwriteRollups(ctx context.Context, snapshot LedgerSnapshot, at time.Time) (int64, error)
	ListCustomerIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a balances repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindCustomer(ctx context.Context, customerID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	if err := r.DB(ctx).Where("id = ?", customerID).First(&customer).Error; err != nil {
		return nil, err
	}
	return &customer, nil
}

// ApplyDelta is a single UPDATE: every right-hand side sees the pre-update row,
// so concurrent deltas commute without a read.
func (r *repository) ApplyDelta(ctx context.Context, customerID uuid.UUID, delta Delta) (int64, error) {
	net := delta.Net()
	updates := map[string]any{
		"total_sales":       gorm.Expr("total_sales + ?", delta.Sales),
		"total_payments":    gorm.Expr("total_payments + ?", delta.Payments),
		"total_returns":     gorm.Expr("total_returns + ?", delta.Returns),
		"pending_balance":   gorm.Expr("pending_balance + ?", net),
		"balance":           gorm.Expr("CASE WHEN credit_limit IS NOT NULL AND pending_balance + ? > credit_limit THEN credit_limit ELSE pending_balance + ? END", net, net),
		"concurrency_token": gorm.Expr("concurrency_token + 1"),
		"last_activity":     delta.At,
		"updated_at":        delta.At,
	}
	if delta.PaymentAt != nil {
		updates["last_payment_date"] = *delta.PaymentAt
	}
	res := r.DB(ctx).Model(&models.Customer{}).
		Where("id = ?", customerID).
		UpdateColumns(updates)
	return res.RowsAffected, res.Error
}

func (r *repository) InvoiceTotals(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error) {
	var totals []decimal.Decimal
	err := r.DB(ctx).Model(&models.Invoice{}).
		Where("customer_id = ? AND is_deleted = ?", customerID, false).
		Pluck("grand_total", &totals).Error
	return totals, err
}

func (r *repository) CompletedPaymentAmounts(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.DB(ctx).Model(&models.Payment{}).
		Where("customer_id = ? AND status = ?", customerID, enums.PaymentStatusCompleted).
		Pluck("amount", &amounts).Error
	return amounts, err
}

func (r *repository) CreditNoteAmounts(ctx context.Context, customerID uuid.UUID) ([]decimal.Decimal, error) {
	var amounts []decimal.Decimal
	err := r.DB(ctx).Model(&models.CreditNote{}).
		Where("customer_id = ?", customerID).
		Pluck("amount", &amounts).Error
	return amounts, err
}

func (r *repository) OverwriteRollups(ctx context.Context, snapshot LedgerSnapshot, at time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.Customer{}).
		Where("id = ?", snapshot.CustomerID).
		UpdateColumns(map[string]any{
			"total_sales":       snapshot.TotalSales,
			"total_payments":    snapshot.TotalPayments,
			"total_returns":     snapshot.TotalReturns,
			"pending_balance":   snapshot.PendingBalance,
			"balance":           snapshot.Balance,
			"concurrency_token": gorm.Expr("concurrency_token + 1"),
			"updated_at":        at,
		})
	return res.RowsAffected, res.Error
}

// ListCustomerIDs pages customers by id for batch verification.
func (r *repository) ListCustomerIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	query := r.DB(ctx).Model(&models.Customer{}).Order("id ASC").Limit(limit)
	if after != uuid.Nil {
		query = query.Where("id > ?", after)
	}
	var ids []uuid.UUID
	err := query.Pluck("id", &ids).Error
	return ids, err
}
