package ledger

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/repo"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
)

// Repository persists invoice versions. There is deliberately no update or delete.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Latest(ctx context.Context, invoiceID uuid.UUID) (*models.InvoiceVersion, error)
	Create(ctx context.Context, version *models.InvoiceVersion) error
	List(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceVersion, error)
	Get(ctx context.Context, invoiceID uuid.UUID, number int) (*models.InvoiceVersion, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a version repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

// Latest returns the highest version for the invoice, or nil when none exists yet.
func (r *repository) Latest(ctx context.Context, invoiceID uuid.UUID) (*models.InvoiceVersion, error) {
	var versions []models.InvoiceVersion
	if err := r.DB(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("version_number DESC").
		Limit(1).
		Find(&versions).Error; err != nil {
		return nil, err
	}
	if len(versions) == 0 {
		return nil, nil
	}
	return &versions[0], nil
}

func (r *repository) Create(ctx context.Context, version *models.InvoiceVersion) error {
	return r.DB(ctx).Create(version).Error
}

func (r *repository) List(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceVersion, error) {
	var versions []models.InvoiceVersion
	if err := r.DB(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("version_number ASC").
		Find(&versions).Error; err != nil {
		return nil, err
	}
	return versions, nil
}

func (r *repository) Get(ctx context.Context, invoiceID uuid.UUID, number int) (*models.InvoiceVersion, error) {
	var version models.InvoiceVersion
	if err := r.DB(ctx).
		Where("invoice_id = ? AND version_number = ?", invoiceID, number).
		First(&version).Error; err != nil {
		return nil, err
	}
	return &version, nil
}
