package payments

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

// Repository persists payments, idempotency records and the invoice paid amounts they move.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindRecord(ctx context.Context, key string) (*models.PaymentIdempotencyRecord, error)
	CreateRecord(ctx context.Context, record *models.PaymentIdempotencyRecord) error
	DeleteRecordsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error)
	CustomerOwnedBy(ctx context.Context, ownerID, customerID uuid.UUID) (bool, error)
	CreatePayment(ctx context.Context, payment *models.Payment) error
	FindPayment(ctx context.Context, ownerID, paymentID uuid.UUID) (*models.Payment, error)
	MarkReversed(ctx context.Context, payment *models.Payment, by uuid.UUID, reason string, at time.Time) (int64, error)
	FindInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (*models.Invoice, error)
	AddToInvoice(ctx context.Context, target InvoiceTarget, amount decimal.Decimal, allowOverpayment bool, at time.Time) (int64, error)
	SubtractFromInvoice(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, at time.Time) (int64, error)
}

// InvoiceTarget scopes an invoice update to the owner and paying customer.
type InvoiceTarget struct {
	OwnerID    uuid.UUID
	CustomerID uuid.UUID
	InvoiceID  uuid.UUID
}

type repository struct {
	repo.Base
}

// NewRepository returns a payments repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) FindRecord(ctx context.Context, key string) (*models.PaymentIdempotencyRecord, error) {
	var record models.PaymentIdempotencyRecord
	if err := r.DB(ctx).Where("idempotency_key = ?", key).First(&record).Error; err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *repository) CreateRecord(ctx context.Context, record *models.PaymentIdempotencyRecord) error {
	return r.DB(ctx).Create(record).Error
}

// DeleteRecordsBefore removes at most limit records created before cutoff.
func (r *repository) DeleteRecordsBefore(ctx context.Context, cutoff time.Time, limit int) (int64, error) {
	keys := r.DB(ctx).Model(&models.PaymentIdempotencyRecord{}).
		Select("idempotency_key").
		Where("created_at < ?", cutoff).
		Order("created_at ASC").
		Limit(limit)
	res := r.DB(ctx).
		Where("idempotency_key IN (?)", keys).
		Delete(&models.PaymentIdempotencyRecord{})
	return res.RowsAffected, res.Error
}

func (r *repository) CustomerOwnedBy(ctx context.Context, ownerID, customerID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Customer{}).
		Where("id = ? AND owner_id = ?", customerID, ownerID).
		Count(&count).Error
	return count > 0, err
}

func (r *repository) CreatePayment(ctx context.Context, payment *models.Payment) error {
	return r.DB(ctx).Create(payment).Error
}

func (r *repository) FindPayment(ctx context.Context, ownerID, paymentID uuid.UUID) (*models.Payment, error) {
	var payment models.Payment
	if err := r.DB(ctx).
		Where("id = ? AND owner_id = ?", paymentID, ownerID).
		First(&payment).Error; err != nil {
		return nil, err
	}
	return &payment, nil
}

// MarkReversed moves a completed payment to reversed, conditional on the token read by the caller.
func (r *repository) MarkReversed(ctx context.Context, payment *models.Payment, by uuid.UUID, reason string, at time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.Payment{}).
		Where("id = ? AND status = ? AND concurrency_token = ?", payment.ID, enums.PaymentStatusCompleted, payment.ConcurrencyToken).
		UpdateColumns(map[string]any{
			"status":            enums.PaymentStatusReversed,
			"reversed_at":       at,
			"reversed_by":       by,
			"reversal_reason":   reason,
			"concurrency_token": gorm.Expr("concurrency_token + 1"),
			"updated_at":        at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) FindInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.DB(ctx).
		Where("id = ? AND owner_id = ?", invoiceID, ownerID).
		First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

// AddToInvoice raises paid_amount in place and re-derives the payment status
// from the post-update amount. Unless overpayment is allowed the WHERE clause
// refuses to push paid_amount past grand_total.
func (r *repository) AddToInvoice(ctx context.Context, target InvoiceTarget, amount decimal.Decimal, allowOverpayment bool, at time.Time) (int64, error) {
	q := r.DB(ctx).Model(&models.Invoice{}).
		Where("id = ? AND owner_id = ? AND customer_id = ? AND is_deleted = ?", target.InvoiceID, target.OwnerID, target.CustomerID, false)
	if !allowOverpayment {
		q = q.Where("paid_amount + ? <= grand_total", amount)
	}
	res := q.UpdateColumns(map[string]any{
		"paid_amount":    gorm.Expr("paid_amount + ?", amount),
		"payment_status": statusAfter("paid_amount + ?", amount),
		"is_overpaid":    gorm.Expr("paid_amount + ? > grand_total", amount),
		"updated_at":     at,
	})
	return res.RowsAffected, res.Error
}

// SubtractFromInvoice backs a reversed payment out of paid_amount.
func (r *repository) SubtractFromInvoice(ctx context.Context, invoiceID uuid.UUID, amount decimal.Decimal, at time.Time) (int64, error) {
	res := r.DB(ctx).Model(&models.Invoice{}).
		Where("id = ? AND paid_amount >= ?", invoiceID, amount).
		UpdateColumns(map[string]any{
			"paid_amount":    gorm.Expr("paid_amount - ?", amount),
			"payment_status": statusAfter("paid_amount - ?", amount),
			"is_overpaid":    gorm.Expr("paid_amount - ? > grand_total", amount),
			"updated_at":     at,
		})
	return res.RowsAffected, res.Error
}

// statusAfter derives payment_status from the paid amount the same statement writes.
func statusAfter(paid string, amount decimal.Decimal) any {
	return gorm.Expr(
		"CASE WHEN "+paid+" <= 0 THEN ? WHEN "+paid+" >= grand_total THEN ? ELSE ? END",
		amount, string(enums.InvoiceUnpaid), amount, string(enums.InvoicePaid), string(enums.InvoicePartiallyPaid),
	)
}
