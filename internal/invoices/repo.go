package invoices

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/repo"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/pagination"
)

// Repository persists invoices and their lines.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	CustomerOwnedBy(ctx context.Context, ownerID, customerID uuid.UUID) (bool, error)
	FindByExternalReference(ctx context.Context, reference string) (*models.Invoice, error)
	FindByID(ctx context.Context, ownerID, invoiceID uuid.UUID) (*models.Invoice, error)
	Lines(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceLine, error)
	Create(ctx context.Context, invoice *models.Invoice) error
	CreateLines(ctx context.Context, lines []models.InvoiceLine) error
	ReplaceLines(ctx context.Context, invoiceID uuid.UUID, lines []models.InvoiceLine) error
	UpdateVersioned(ctx context.Context, ownerID, invoiceID uuid.UUID, expectedVersion int, updates map[string]any, guards ...func(*gorm.DB) *gorm.DB) (int64, error)
	List(ctx context.Context, ownerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Invoice, error)
	ListLockCandidates(ctx context.Context, finalizedBefore time.Time, limit int) ([]models.Invoice, error)
}

type repository struct {
	repo.Base
}

// NewRepository returns an invoice repository bound to db.
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

// FindByExternalReference only considers live invoices; a deleted invoice releases its reference.
func (r *repository) FindByExternalReference(ctx context.Context, reference string) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.DB(ctx).
		Where("external_reference = ? AND is_deleted = ?", reference, false).
		First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) FindByID(ctx context.Context, ownerID, invoiceID uuid.UUID) (*models.Invoice, error) {
	var invoice models.Invoice
	if err := r.DB(ctx).
		Where("id = ? AND owner_id = ?", invoiceID, ownerID).
		First(&invoice).Error; err != nil {
		return nil, err
	}
	return &invoice, nil
}

func (r *repository) Lines(ctx context.Context, invoiceID uuid.UUID) ([]models.InvoiceLine, error) {
	var lines []models.InvoiceLine
	if err := r.DB(ctx).
		Where("invoice_id = ?", invoiceID).
		Order("position ASC").
		Find(&lines).Error; err != nil {
		return nil, err
	}
	return lines, nil
}

func (r *repository) Create(ctx context.Context, invoice *models.Invoice) error {
	return r.DB(ctx).Create(invoice).Error
}

func (r *repository) CreateLines(ctx context.Context, lines []models.InvoiceLine) error {
	if len(lines) == 0 {
		return nil
	}
	return r.DB(ctx).Create(&lines).Error
}

func (r *repository) ReplaceLines(ctx context.Context, invoiceID uuid.UUID, lines []models.InvoiceLine) error {
	if err := r.DB(ctx).Where("invoice_id = ?", invoiceID).Delete(&models.InvoiceLine{}).Error; err != nil {
		return err
	}
	for i := range lines {
		lines[i].InvoiceID = invoiceID
	}
	return r.CreateLines(ctx, lines)
}

// UpdateVersioned is the optimistic write every invoice mutation goes through:
// it only matches a live, unlocked row still at expectedVersion and always
// bumps the version. Zero rows affected means the caller lost.
func (r *repository) UpdateVersioned(ctx context.Context, ownerID, invoiceID uuid.UUID, expectedVersion int, updates map[string]any, guards ...func(*gorm.DB) *gorm.DB) (int64, error) {
	updates["version"] = gorm.Expr("version + 1")
	if _, ok := updates["updated_at"]; !ok {
		updates["updated_at"] = time.Now().UTC()
	}
	res := r.DB(ctx).Model(&models.Invoice{}).
		Where("id = ? AND owner_id = ? AND version = ?", invoiceID, ownerID, expectedVersion).
		Where("is_locked = ? AND is_deleted = ?", false, false).
		Scopes(guards...).
		UpdateColumns(updates)
	return res.RowsAffected, res.Error
}

// List pages live invoices newest number first.
func (r *repository) List(ctx context.Context, ownerID uuid.UUID, cursor *pagination.Cursor, limit int) ([]models.Invoice, error) {
	q := r.DB(ctx).
		Where("owner_id = ? AND is_deleted = ?", ownerID, false)
	if cursor != nil {
		q = q.Where("(invoice_seq < ? OR (invoice_seq = ? AND id < ?))", cursor.Key, cursor.Key, cursor.ID)
	}
	var invoices []models.Invoice
	if err := q.Order("invoice_seq DESC").Order("id DESC").Limit(limit).Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// ListLockCandidates returns finalized, unlocked invoices finalized before the cutoff, across owners.
func (r *repository) ListLockCandidates(ctx context.Context, finalizedBefore time.Time, limit int) ([]models.Invoice, error) {
	var invoices []models.Invoice
	if err := r.DB(ctx).
		Where("is_finalized = ? AND is_locked = ? AND is_deleted = ?", true, false, false).
		Where("finalized_at < ?", finalizedBefore).
		Order("finalized_at ASC").
		Limit(limit).
		Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}
