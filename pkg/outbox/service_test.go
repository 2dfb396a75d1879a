package outbox

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/testdb"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
)

func TestEmitWritesEnvelopeInsideTransaction(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())
	ctx := context.Background()

	invoiceID := uuid.New()
	actor := NewActor(uuid.New(), uuid.New())
	err := conn.Transaction(func(tx *gorm.DB) error {
		return svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventInvoiceCreated,
			AggregateType: enums.AggregateInvoice,
			AggregateID:   invoiceID,
			Actor:         actor,
			Data:          map[string]string{"invoiceNumber": "INV-1001"},
		})
	})
	require.NoError(t, err)

	rows, err := repo.ListByAggregate(ctx, invoiceID)
	require.NoError(t, err)
	require.Len(t, rows, 1)

	var envelope PayloadEnvelope
	require.NoError(t, json.Unmarshal(rows[0].Payload, &envelope))
	require.Equal(t, 1, envelope.Version)
	require.NotEmpty(t, envelope.EventID)
	require.Equal(t, actor.UserID, envelope.Actor.UserID)
	require.JSONEq(t, `{"invoiceNumber":"INV-1001"}`, string(envelope.Data))
}

func TestEmitRolledBackWithCaller(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, logger.Nop())
	ctx := context.Background()

	aggregateID := uuid.New()
	boom := errors.New("boom")
	err := conn.Transaction(func(tx *gorm.DB) error {
		if err := svc.Emit(ctx, tx, DomainEvent{
			EventType:     enums.EventPaymentApplied,
			AggregateType: enums.AggregatePayment,
			AggregateID:   aggregateID,
			Data:          struct{}{},
		}); err != nil {
			return err
		}
		return boom
	})
	require.ErrorIs(t, err, boom)

	rows, err := repo.ListByAggregate(ctx, aggregateID)
	require.NoError(t, err)
	require.Empty(t, rows)
}

func TestEmitRequiresTransactionAndKnownType(t *testing.T) {
	svc := NewService(NewRepository(nil), nil)
	require.Error(t, svc.Emit(context.Background(), nil, DomainEvent{EventType: enums.EventInvoiceCreated}))

	conn := testdb.Open(t)
	require.Error(t, svc.Emit(context.Background(), conn, DomainEvent{EventType: "nope"}))
}

func TestRepositoryPublishLifecycle(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	svc := NewService(repo, nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
			return svc.Emit(ctx, tx, DomainEvent{
				EventType:     enums.EventInvoiceEdited,
				AggregateType: enums.AggregateInvoice,
				AggregateID:   uuid.New(),
				Data:          map[string]int{"i": i},
			})
		}))
	}

	var batch []models.OutboxEvent
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		var err error
		batch, err = repo.FetchUnpublishedForPublish(tx, 10, 3)
		if err != nil {
			return err
		}
		if err := repo.MarkPublishedTx(tx, batch[0].ID); err != nil {
			return err
		}
		if err := repo.MarkFailedTx(tx, batch[1].ID, errors.New("transient")); err != nil {
			return err
		}
		return repo.MarkTerminalTx(tx, batch[2].ID, errors.New("fatal"), 3)
	}))
	require.Len(t, batch, 3)

	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		remaining, err := repo.FetchUnpublishedForPublish(tx, 10, 3)
		require.Len(t, remaining, 1)
		require.Equal(t, batch[1].ID, remaining[0].ID)
		require.Equal(t, 1, remaining[0].AttemptCount)
		require.NotNil(t, remaining[0].LastError)
		return err
	}))
}

func TestDeletePublishedBeforeKeepsRecentAndPending(t *testing.T) {
	conn := testdb.Open(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	old := time.Now().UTC().Add(-60 * 24 * time.Hour)
	recent := time.Now().UTC()
	rows := []models.OutboxEvent{
		{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: old, PublishedAt: &old},
		{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: recent, PublishedAt: &recent},
		{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: old},
		{EventType: enums.EventInvoiceCreated, AggregateType: enums.AggregateInvoice, AggregateID: uuid.New(), Payload: []byte(`{}`), CreatedAt: old, AttemptCount: 9},
	}
	for i := range rows {
		require.NoError(t, conn.Create(&rows[i]).Error)
	}

	cutoff := time.Now().UTC().Add(-30 * 24 * time.Hour)
	deleted, err := repo.DeletePublishedBefore(ctx, nil, cutoff, 5)
	require.NoError(t, err)
	require.EqualValues(t, 2, deleted)

	var count int64
	require.NoError(t, conn.Model(&models.OutboxEvent{}).Count(&count).Error)
	require.EqualValues(t, 2, count)
}

func TestDLQRequeueResetsOutboxRow(t *testing.T) {
	conn := testdb.Open(t)
	dlq := NewDLQRepository(conn)
	ctx := context.Background()

	lastErr := "publish failed"
	event := models.OutboxEvent{
		EventType:     enums.EventPaymentApplied,
		AggregateType: enums.AggregatePayment,
		AggregateID:   uuid.New(),
		Payload:       []byte(`{"version":1}`),
		AttemptCount:  10,
		LastError:     &lastErr,
	}
	require.NoError(t, conn.Create(&event).Error)
	require.NoError(t, conn.Transaction(func(tx *gorm.DB) error {
		return dlq.InsertTx(tx, models.OutboxDLQ{
			EventID:       event.ID,
			EventType:     event.EventType,
			AggregateType: event.AggregateType,
			AggregateID:   event.AggregateID,
			Payload:       event.Payload,
			ErrorReason:   enums.OutboxDLQReasonMaxAttempts,
			ErrorMessage:  &lastErr,
			AttemptCount:  event.AttemptCount,
		})
	}))

	entries, err := dlq.List(ctx, 0)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	require.NoError(t, dlq.Requeue(ctx, event.ID))
	require.ErrorIs(t, dlq.Requeue(ctx, event.ID), ErrDLQEntryNotFound)

	found, err := dlq.FindByEventID(ctx, event.ID)
	require.NoError(t, err)
	require.Nil(t, found)

	var reloaded models.OutboxEvent
	require.NoError(t, conn.First(&reloaded, "id = ?", event.ID).Error)
	require.Zero(t, reloaded.AttemptCount)
	require.Nil(t, reloaded.LastError)
}

func TestTruncateDLQError(t *testing.T) {
	long := make([]byte, maxDLQErrorLen+10)
	for i := range long {
		long[i] = 'x'
	}
	require.Len(t, truncateDLQError(string(long)), maxDLQErrorLen)
	require.Equal(t, "short", truncateDLQError("short"))
}
