package customers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
)

// Service manages the customer records that own ledger rollups.
type Service interface {
	Create(ctx context.Context, input CreateInput) (*models.Customer, error)
	Get(ctx context.Context, ownerID, customerID uuid.UUID) (*models.Customer, error)
}

// CreateInput carries a new customer. Rollups always start at zero.
type CreateInput struct {
	OwnerID     uuid.UUID
	TenantID    *uuid.UUID
	Name        string
	CreditLimit *decimal.Decimal
}

type service struct {
	repo Repository
}

// NewService wires a customers service.
func NewService(repo Repository) (Service, error) {
	if repo == nil {
		return nil, fmt.Errorf("customers repository required")
	}
	return &service{repo: repo}, nil
}

func (s *service) Create(ctx context.Context, input CreateInput) (*models.Customer, error) {
	if input.OwnerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeForbidden, "owner context missing")
	}
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer name required")
	}
	if input.CreditLimit != nil && input.CreditLimit.IsNegative() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "credit limit must not be negative")
	}
	var limit *decimal.Decimal
	if input.CreditLimit != nil {
		rounded := input.CreditLimit.Round(2)
		limit = &rounded
	}

	customer := &models.Customer{
		OwnerID:     input.OwnerID,
		TenantID:    input.TenantID,
		Name:        name,
		CreditLimit: limit,
	}
	if err := s.repo.Create(ctx, customer); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create customer")
	}
	return customer, nil
}

func (s *service) Get(ctx context.Context, ownerID, customerID uuid.UUID) (*models.Customer, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	customer, err := s.repo.FindByID(ctx, ownerID, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}
