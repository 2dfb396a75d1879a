package app

import (
	"fmt"

	"github.com/angelmondragon/invoice-ledger/internal/cron"
	"github.com/angelmondragon/invoice-ledger/pkg/config"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
)

// Jobs holds the scheduled maintenance jobs. Drift is exposed separately so
// ledgerctl can run a scan on demand.
type Jobs struct {
	Registry *cron.Registry
	Drift    *cron.BalanceDriftJob
}

func (s *Services) CronJobs(cfg *config.Config, logg *logger.Logger) (*Jobs, error) {
	if logg == nil {
		logg = logger.Nop()
	}
	drift, err := cron.NewBalanceDriftJob(cron.BalanceDriftJobParams{
		Logger:      logg,
		DB:          s.DB,
		Reconciler:  s.Balances,
		Outbox:      s.Outbox,
		BatchSize:   cfg.Cron.DriftBatchSize,
		Concurrency: cfg.Cron.DriftConcurrency,
		Repair:      cfg.Cron.RepairDrift,
	})
	if err != nil {
		return nil, fmt.Errorf("balance drift job: %w", err)
	}
	autolock, err := cron.NewInvoiceAutoLockJob(cron.InvoiceAutoLockJobParams{
		Logger:        logg,
		Invoices:      s.Invoices,
		EditAllowance: cfg.Ledger.EditAllowanceWindow,
		BatchSize:     cfg.Cron.AutoLockBatchSize,
	})
	if err != nil {
		return nil, fmt.Errorf("invoice autolock job: %w", err)
	}
	idempotency, err := cron.NewIdempotencyRetentionJob(cron.IdempotencyRetentionJobParams{
		Logger:    logg,
		Payments:  s.Payments,
		Retention: cfg.Ledger.IdempotencyRetention,
	})
	if err != nil {
		return nil, fmt.Errorf("idempotency retention job: %w", err)
	}
	outboxRetention, err := cron.NewOutboxRetentionJob(cron.OutboxRetentionJobParams{
		Logger:      logg,
		DB:          s.DB,
		Repository:  outbox.NewRepository(s.DB.DB()),
		Retention:   cfg.Outbox.Retention,
		MinAttempts: cfg.Outbox.MaxAttempts,
	})
	if err != nil {
		return nil, fmt.Errorf("outbox retention job: %w", err)
	}

	registry, err := cron.NewRegistry(drift, autolock, idempotency, outboxRetention)
	if err != nil {
		return nil, err
	}
	return &Jobs{Registry: registry, Drift: drift}, nil
}
