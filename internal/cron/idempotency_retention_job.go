package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

const (
	IdempotencyRetentionJobName = "idempotency-retention"
	defaultIdempotencyRetention = 90 * 24 * time.Hour
	idempotencyPurgeBatch       = 500
	maxIdempotencyPurgeBatches  = 100
)

type idempotencyPurger interface {
	PurgeRecords(ctx context.Context, olderThan time.Time, limit int) (int64, error)
}

type IdempotencyRetentionJobParams struct {
	Logger    *logger.Logger
	Payments  idempotencyPurger
	Retention time.Duration
}

// NewIdempotencyRetentionJob deletes payment idempotency records past retention.
// Once a record is gone a retried key is treated as new.
func NewIdempotencyRetentionJob(params IdempotencyRetentionJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Payments == nil {
		return nil, fmt.Errorf("payment service required")
	}
	retention := params.Retention
	if retention <= 0 {
		retention = defaultIdempotencyRetention
	}
	return &idempotencyRetentionJob{
		logg:      params.Logger,
		payments:  params.Payments,
		retention: retention,
		now:       time.Now,
	}, nil
}

type idempotencyRetentionJob struct {
	logg      *logger.Logger
	payments  idempotencyPurger
	retention time.Duration
	now       func() time.Time
}

func (j *idempotencyRetentionJob) Name() string { return IdempotencyRetentionJobName }

func (j *idempotencyRetentionJob) Run(ctx context.Context) error {
	cutoff := j.now().UTC().Add(-j.retention)
	var total int64
	for i := 0; i < maxIdempotencyPurgeBatches; i++ {
		deleted, err := j.payments.PurgeRecords(ctx, cutoff, idempotencyPurgeBatch)
		if err != nil {
			return fmt.Errorf("purge idempotency records: %w", err)
		}
		total += deleted
		if deleted < idempotencyPurgeBatch {
			break
		}
	}
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"cutoff":       cutoff,
		"rows_deleted": total,
	})
	j.logg.Info(logCtx, "idempotency retention cleanup complete")
	return nil
}
