package cron

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/balances"
	"github.com/angelmondragon/invoice-ledger/internal/invoices"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox/payloads"
)

const (
	BalanceDriftJobName     = "balance-drift"
	defaultDriftBatchSize   = 200
	defaultDriftConcurrency = 4
)

type driftReconciler interface {
	CustomerIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error)
	Verify(ctx context.Context, customerID uuid.UUID) (*balances.Drift, error)
	Repair(ctx context.Context, customerID uuid.UUID) (*balances.Drift, error)
}

type BalanceDriftJobParams struct {
	Logger      *logger.Logger
	DB          txRunner
	Reconciler  driftReconciler
	Outbox      outbox.Emitter
	BatchSize   int
	Concurrency int
	Repair      bool
}

// DriftReport summarises one verification pass.
type DriftReport struct {
	Checked  int
	Drifted  int
	Repaired int
	Drifts   []balances.Drift
}

// BalanceDriftJob compares every customer's stored rollups with a fresh
// recomputation and raises balance_drift_detected for each mismatch.
type BalanceDriftJob struct {
	logg        *logger.Logger
	db          txRunner
	reconciler  driftReconciler
	outbox      outbox.Emitter
	batchSize   int
	concurrency int
	repair      bool
	now         func() time.Time
}

func NewBalanceDriftJob(params BalanceDriftJobParams) (*BalanceDriftJob, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db runner required")
	}
	if params.Reconciler == nil {
		return nil, fmt.Errorf("reconciler required")
	}
	if params.Outbox == nil {
		return nil, fmt.Errorf("outbox emitter required")
	}
	batch := params.BatchSize
	if batch <= 0 {
		batch = defaultDriftBatchSize
	}
	concurrency := params.Concurrency
	if concurrency <= 0 {
		concurrency = defaultDriftConcurrency
	}
	return &BalanceDriftJob{
		logg:        params.Logger,
		db:          params.DB,
		reconciler:  params.Reconciler,
		outbox:      params.Outbox,
		batchSize:   batch,
		concurrency: concurrency,
		repair:      params.Repair,
		now:         time.Now,
	}, nil
}

func (j *BalanceDriftJob) Name() string { return BalanceDriftJobName }

func (j *BalanceDriftJob) Run(ctx context.Context) error {
	report, err := j.Scan(ctx, j.repair)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"customers_checked":  report.Checked,
		"customers_drifted":  report.Drifted,
		"customers_repaired": report.Repaired,
	})
	j.logg.Info(logCtx, "balance drift verification complete")
	return err
}

// Scan verifies every customer, optionally repairing the ones that drifted.
// A failure on one customer does not stop the others.
func (j *BalanceDriftJob) Scan(ctx context.Context, repair bool) (DriftReport, error) {
	var (
		mu     sync.Mutex
		report DriftReport
		errs   error
		after  uuid.UUID
	)
	for {
		ids, err := j.reconciler.CustomerIDs(ctx, after, j.batchSize)
		if err != nil {
			return report, multierr.Append(errs, fmt.Errorf("list customers: %w", err))
		}
		if len(ids) == 0 {
			break
		}
		group, groupCtx := errgroup.WithContext(ctx)
		group.SetLimit(j.concurrency)
		for _, id := range ids {
			customerID := id
			group.Go(func() error {
				drift, repaired, err := j.check(groupCtx, customerID, repair)
				mu.Lock()
				defer mu.Unlock()
				report.Checked++
				if err != nil {
					errs = multierr.Append(errs, fmt.Errorf("customer %s: %w", customerID, err))
					return nil
				}
				if drift.HasDrift() {
					report.Drifted++
					report.Drifts = append(report.Drifts, *drift)
				}
				if repaired {
					report.Repaired++
				}
				return nil
			})
		}
		if err := group.Wait(); err != nil {
			return report, multierr.Append(errs, err)
		}
		if err := ctx.Err(); err != nil {
			return report, multierr.Append(errs, err)
		}
		after = ids[len(ids)-1]
		if len(ids) < j.batchSize {
			break
		}
	}
	return report, errs
}

func (j *BalanceDriftJob) check(ctx context.Context, customerID uuid.UUID, repair bool) (*balances.Drift, bool, error) {
	drift, err := j.reconciler.Verify(ctx, customerID)
	if err != nil {
		return nil, false, err
	}
	if !drift.HasDrift() {
		return drift, false, nil
	}
	repaired := false
	if repair {
		fixed, err := j.reconciler.Repair(ctx, customerID)
		if err != nil {
			return drift, false, fmt.Errorf("repair: %w", err)
		}
		repaired = fixed.HasDrift()
	}
	if err := j.emit(ctx, drift, repaired); err != nil {
		return drift, repaired, fmt.Errorf("emit drift event: %w", err)
	}
	return drift, repaired, nil
}

func (j *BalanceDriftJob) emit(ctx context.Context, drift *balances.Drift, repaired bool) error {
	fields := make([]payloads.BalanceDrift, 0, len(drift.Fields))
	for _, field := range drift.Fields {
		fields = append(fields, payloads.BalanceDrift{
			Field:    field.Field,
			Stored:   field.Stored,
			Expected: field.Expected,
		})
	}
	detectedAt := j.now().UTC()
	return j.db.WithTx(ctx, func(tx *gorm.DB) error {
		return j.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventBalanceDriftDetected,
			AggregateType: enums.AggregateCustomer,
			AggregateID:   drift.CustomerID,
			Actor:         outbox.NewActor(invoices.SystemActor, drift.OwnerID),
			OccurredAt:    detectedAt,
			Data: payloads.BalanceDriftDetectedEvent{
				CustomerID: drift.CustomerID,
				OwnerID:    drift.OwnerID,
				Drifts:     fields,
				Repaired:   repaired,
				DetectedAt: detectedAt,
			},
		})
	})
}
