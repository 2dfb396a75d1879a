package creditnotes

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/repo"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
)

type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CustomerOwnedBy(ctx context.Context, ownerID, customerID uuid.UUID) (bool, error)
	FindInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (*models.Invoice, error)
	CreditedOnInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (decimal.Decimal, error)
	Create(ctx context.Context, note *models.CreditNote) error
	ListByCustomer(ctx context.Context, ownerID, customerID uuid.UUID) ([]models.CreditNote, error)
}

type repository struct {
	repo.Base
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) CustomerOwnedBy(ctx context.Context, ownerID, customerID uuid.UUID) (bool, error) {
	var count int64
	err := r.DB(ctx).Model(&models.Customer{}).
		Where("id = ? AND owner_id = ?", customerID, ownerID).
		Count(&count).Error
	return count > 0, err
}

// FindInvoice row-locks the invoice so notes against it are issued one at a time.
func (r *repository) FindInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.ForUpdate(r.DB(ctx)).
		Where("id = ? AND owner_id = ? AND is_deleted = ?", invoiceID, ownerID, false).
		First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) CreditedOnInvoice(ctx context.Context, ownerID, invoiceID uuid.UUID) (decimal.Decimal, error) {
	var amounts []decimal.Decimal
	if err := r.DB(ctx).Model(&models.CreditNote{}).
		Where("owner_id = ? AND invoice_id = ?", ownerID, invoiceID).
		Pluck("amount", &amounts).Error; err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, amount := range amounts {
		total = total.Add(amount)
	}
	return total, nil
}

func (r *repository) Create(ctx context.Context, note *models.CreditNote) error {
	return r.DB(ctx).Create(note).Error
}

func (r *repository) ListByCustomer(ctx context.Context, ownerID, customerID uuid.UUID) ([]models.CreditNote, error) {
	var notes []models.CreditNote
	if err := r.DB(ctx).
		Where("owner_id = ? AND customer_id = ?", ownerID, customerID).
		Order("created_at ASC").
		Find(&notes).Error; err != nil {
		return nil, err
	}
	return notes, nil
}
