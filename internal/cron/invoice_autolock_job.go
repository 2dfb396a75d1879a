package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/invoice-ledger/internal/invoices"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

const (
	InvoiceAutoLockJobName   = "invoice-autolock"
	defaultAutoLockBatch     = 100
	defaultEditAllowance     = 30 * 24 * time.Hour
	maxAutoLockBatchesPerRun = 50
)

type invoiceLocker interface {
	LockCandidates(ctx context.Context, finalizedBefore time.Time, limit int) ([]models.Invoice, error)
	Lock(ctx context.Context, invoiceID, ownerID, userID uuid.UUID, expectedVersion int) (*invoices.Detail, error)
}

type InvoiceAutoLockJobParams struct {
	Logger        *logger.Logger
	Invoices      invoiceLocker
	EditAllowance time.Duration
	BatchSize     int
}

// NewInvoiceAutoLockJob locks finalized invoices once their edit allowance has elapsed.
func NewInvoiceAutoLockJob(params InvoiceAutoLockJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Invoices == nil {
		return nil, fmt.Errorf("invoice service required")
	}
	allowance := params.EditAllowance
	if allowance <= 0 {
		allowance = defaultEditAllowance
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultAutoLockBatch
	}
	return &invoiceAutoLockJob{
		logg:      params.Logger,
		invoices:  params.Invoices,
		allowance: allowance,
		batch:     batch,
		now:       time.Now,
	}, nil
}

type invoiceAutoLockJob struct {
	logg      *logger.Logger
	invoices  invoiceLocker
	allowance time.Duration
	batch     int
	now       func() time.Time
}

func (j *invoiceAutoLockJob) Name() string { return InvoiceAutoLockJobName }

func (j *invoiceAutoLockJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.allowance)
	var (
		locked int
		errs   error
	)
	for batches := 0; batches < maxAutoLockBatchesPerRun; batches++ {
		candidates, err := j.invoices.LockCandidates(ctx, cutoff, j.batch)
		if err != nil {
			return multierr.Append(errs, fmt.Errorf("list lock candidates: %w", err))
		}
		skipped := 0
		for _, inv := range candidates {
			if _, err := j.invoices.Lock(ctx, inv.ID, inv.OwnerID, invoices.SystemActor, 0); err != nil {
				skipped++
				if !lostToConcurrentChange(err) {
					errs = multierr.Append(errs, fmt.Errorf("lock %s: %w", inv.InvoiceNumber, err))
				}
				continue
			}
			locked++
		}
		// skipped rows may still be candidates; the next run retries them
		if len(candidates) < j.batch || skipped > 0 {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":          cutoff,
		"invoices_locked": locked,
	})
	j.logg.Info(logCtx, "invoice auto-lock complete")
	return errs
}

func lostToConcurrentChange(err error) bool {
	return pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) ||
		pkgerrors.IsCode(err, pkgerrors.CodeInvoiceLocked) ||
		pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification)
}
