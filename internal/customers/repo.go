package customers

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/repo"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
)

// Repository persists customers.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, customer *models.Customer) error
	FindByID(ctx context.Context, ownerID, customerID uuid.UUID) (*models.Customer, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns a customers repository bound to db.
func NewRepository(db *gorm.DB) Repository {
	return &repository{Base: repo.NewBase(db)}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	return &repository{Base: r.Bind(tx)}
}

func (r *repository) Create(ctx context.Context, customer *models.Customer) error {
	return r.DB(ctx).Create(customer).Error
}

func (r *repository) FindByID(ctx context.Context, ownerID, customerID uuid.UUID) (*models.Customer, error) {
	var customer models.Customer
	err := r.DB(ctx).
		Where("id = ? AND owner_id = ?", customerID, ownerID).
		First(&customer).Error
	if err != nil {
		return nil, err
	}
	return &customer, nil
}
