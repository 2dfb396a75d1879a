package payments

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/balances"
	"github.com/angelmondragon/invoice-ledger/internal/invoices"
	"github.com/angelmondragon/invoice-ledger/internal/ledger"
	"github.com/angelmondragon/invoice-ledger/internal/sequence"
	"github.com/angelmondragon/invoice-ledger/internal/testdb"
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fixture struct {
	conn     *gorm.DB
	client   *db.Client
	balances *balances.Reconciler
	invoices invoices.Service
	emitter  outbox.Emitter
	svc      Service
	owner    uuid.UUID
	user     uuid.UUID
	customer uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := testdb.Client(t)
	rec, err := balances.NewReconciler(balances.Params{Repository: balances.NewRepository(conn), DB: client})
	require.NoError(t, err)
	emitter := outbox.NewService(outbox.NewRepository(conn), logger.Nop())

	allocator, err := sequence.NewAllocator(sequence.NewRepositorySource(conn), client, sequence.Options{}, nil, nil)
	require.NoError(t, err)
	versions, err := ledger.NewService(ledger.NewRepository(conn), nil)
	require.NoError(t, err)
	invoiceSvc, err := invoices.NewService(invoices.Params{
		Repository: invoices.NewRepository(conn),
		DB:         client,
		Allocator:  allocator,
		Ledger:     versions,
		Balances:   rec,
		Outbox:     emitter,
	})
	require.NoError(t, err)

	f := &fixture{conn: conn, client: client, balances: rec, invoices: invoiceSvc, emitter: emitter, owner: uuid.New(), user: uuid.New()}
	f.svc = f.service(t, NewRepository(conn))

	customer := models.Customer{OwnerID: f.owner, Name: "Acme Traders"}
	require.NoError(t, conn.Create(&customer).Error)
	f.customer = customer.ID
	return f
}

func (f *fixture) service(t *testing.T, repo Repository) Service {
	t.Helper()
	svc, err := NewService(Params{Repository: repo, DB: f.client, Balances: f.balances, Outbox: f.emitter})
	require.NoError(t, err)
	return svc
}

// scenarioInvoice is INV-1001: 2 × 50.00 and 1 × 100.00 at 5% VAT, grand total 210.00.
func (f *fixture) scenarioInvoice(t *testing.T) models.Invoice {
	t.Helper()
	res, err := f.invoices.Create(context.Background(), invoices.CreateInput{
		OwnerID: f.owner, CustomerID: f.customer, UserID: f.user,
		Lines: []invoices.LineInput{
			{Quantity: dec("2"), UnitPrice: dec("50.00"), VATRate: dec("5")},
			{Quantity: dec("1"), UnitPrice: dec("100.00"), VATRate: dec("5")},
		},
	})
	require.NoError(t, err)
	require.Equal(t, "INV-1001", res.Invoice.InvoiceNumber)
	return res.Invoice
}

func (f *fixture) input(key string, invoiceID *uuid.UUID, amount string) ApplyInput {
	return ApplyInput{
		IdempotencyKey: key,
		OwnerID:        f.owner,
		UserID:         f.user,
		CustomerID:     f.customer,
		InvoiceID:      invoiceID,
		Amount:         dec(amount),
		Mode:           enums.PaymentModeCash,
	}
}

func (f *fixture) customerRow(t *testing.T) models.Customer {
	t.Helper()
	var c models.Customer
	require.NoError(t, f.conn.First(&c, "id = ?", f.customer).Error)
	return c
}

func (f *fixture) invoiceRow(t *testing.T, id uuid.UUID) models.Invoice {
	t.Helper()
	var inv models.Invoice
	require.NoError(t, f.conn.First(&inv, "id = ?", id).Error)
	return inv
}

func (f *fixture) count(t *testing.T, model any) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.conn.Model(model).Count(&n).Error)
	return n
}

func requireAmount(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Round(2).Equal(dec(want)) {
		t.Fatalf("expected %s, got %s", want, got.StringFixed(2))
	}
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func TestPaymentScenarioIsAppliedOnce(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.scenarioInvoice(t)
	requireAmount(t, "200.00", inv.Subtotal)
	requireAmount(t, "10.00", inv.VATTotal)
	requireAmount(t, "210.00", inv.GrandTotal)

	first, err := f.svc.Apply(ctx, f.input("pay-abc", &inv.ID, "100.00"))
	require.NoError(t, err)
	require.False(t, first.Replayed)

	row := f.invoiceRow(t, inv.ID)
	requireAmount(t, "100.00", row.PaidAmount)
	require.Equal(t, enums.InvoicePartiallyPaid, row.PaymentStatus)
	require.Equal(t, 1, row.Version)
	requireAmount(t, "100.00", f.customerRow(t).TotalPayments)
	requireAmount(t, "110.00", f.customerRow(t).PendingBalance)

	replay, err := f.svc.Apply(ctx, f.input("pay-abc", &inv.ID, "100.00"))
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	require.Equal(t, first.PaymentID, replay.PaymentID)
	require.Equal(t, string(first.Response), string(replay.Response))

	requireAmount(t, "100.00", f.customerRow(t).TotalPayments)
	requireAmount(t, "100.00", f.invoiceRow(t, inv.ID).PaidAmount)
	require.EqualValues(t, 1, f.count(t, &models.Payment{}))

	drift, err := f.balances.Verify(ctx, f.customer)
	require.NoError(t, err)
	require.False(t, drift.HasDrift())
}

func TestKeyReuseWithDifferentParameters(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.scenarioInvoice(t)

	_, err := f.svc.Apply(ctx, f.input("pay-abc", &inv.ID, "100.00"))
	require.NoError(t, err)

	_, err = f.svc.Apply(ctx, f.input("pay-abc", &inv.ID, "90.00"))
	requireCode(t, err, pkgerrors.CodeIdempotency)

	other := f.input("pay-abc", nil, "100.00")
	_, err = f.svc.Apply(ctx, other)
	requireCode(t, err, pkgerrors.CodeIdempotency)

	requireAmount(t, "100.00", f.customerRow(t).TotalPayments)
}

func TestPaymentSettlesInvoice(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.scenarioInvoice(t)

	_, err := f.svc.Apply(ctx, f.input("k1", &inv.ID, "100"))
	require.NoError(t, err)
	res, err := f.svc.Apply(ctx, f.input("k2", &inv.ID, "110"))
	require.NoError(t, err)
	require.Contains(t, string(res.Response), `"invoicePaymentStatus":"paid"`)

	row := f.invoiceRow(t, inv.ID)
	require.Equal(t, enums.InvoicePaid, row.PaymentStatus)
	require.False(t, row.IsOverpaid)
	requireAmount(t, "0.00", f.customerRow(t).PendingBalance)
}

func TestOverpaymentNeedsFlag(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.scenarioInvoice(t)

	_, err := f.svc.Apply(ctx, f.input("over-1", &inv.ID, "250"))
	requireCode(t, err, pkgerrors.CodeValidation)
	require.EqualValues(t, 0, f.count(t, &models.Payment{}))
	require.EqualValues(t, 0, f.count(t, &models.PaymentIdempotencyRecord{}))
	requireAmount(t, "0.00", f.customerRow(t).TotalPayments)

	in := f.input("over-2", &inv.ID, "250")
	in.AllowOverpayment = true
	_, err = f.svc.Apply(ctx, in)
	require.NoError(t, err)

	row := f.invoiceRow(t, inv.ID)
	require.True(t, row.IsOverpaid)
	require.Equal(t, enums.InvoicePaid, row.PaymentStatus)
	requireAmount(t, "-40.00", f.customerRow(t).PendingBalance)
}

func TestPaymentWithoutInvoice(t *testing.T) {
	f := newFixture(t)
	res, err := f.svc.Apply(context.Background(), f.input("on-account", nil, "25.50"))
	require.NoError(t, err)
	require.NotContains(t, string(res.Response), "invoicePaidAmount")
	requireAmount(t, "25.50", f.customerRow(t).TotalPayments)
	require.NotNil(t, f.customerRow(t).LastPaymentDate)
}

func TestApplyValidation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, f.input("  ", nil, "10"))
	requireCode(t, err, pkgerrors.CodeValidation)
	_, err = f.svc.Apply(ctx, f.input("k", nil, "0.001"))
	requireCode(t, err, pkgerrors.CodeValidation)

	bad := f.input("k", nil, "10")
	bad.Mode = "barter"
	_, err = f.svc.Apply(ctx, bad)
	requireCode(t, err, pkgerrors.CodeValidation)

	missing := uuid.New()
	_, err = f.svc.Apply(ctx, f.input("k", &missing, "10"))
	requireCode(t, err, pkgerrors.CodeNotFound)

	stranger := f.input("k", nil, "10")
	stranger.OwnerID = uuid.New()
	_, err = f.svc.Apply(ctx, stranger)
	requireCode(t, err, pkgerrors.CodeNotFound)

	require.EqualValues(t, 0, f.count(t, &models.Payment{}))
}

// racingRepository hides existing idempotency records from the first lookups,
// as if the competing request had not committed yet when they ran.
type racingRepository struct {
	Repository
	mu   sync.Mutex
	hide int
}

func (r *racingRepository) WithTx(tx *gorm.DB) Repository {
	return r.Repository.WithTx(tx)
}

func (r *racingRepository) FindRecord(ctx context.Context, key string) (*models.PaymentIdempotencyRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.hide > 0 {
		r.hide--
		return nil, gorm.ErrRecordNotFound
	}
	return r.Repository.FindRecord(ctx, key)
}

func TestLosingRaceRollsBackAndReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.scenarioInvoice(t)

	winner, err := f.svc.Apply(ctx, f.input("pay-abc", &inv.ID, "100.00"))
	require.NoError(t, err)

	racer := f.service(t, &racingRepository{Repository: NewRepository(f.conn), hide: 1})
	loser, err := racer.Apply(ctx, f.input("pay-abc", &inv.ID, "100.00"))
	require.NoError(t, err)
	require.True(t, loser.Replayed)
	require.Equal(t, winner.PaymentID, loser.PaymentID)
	require.Equal(t, string(winner.Response), string(loser.Response))

	require.EqualValues(t, 1, f.count(t, &models.Payment{}))
	requireAmount(t, "100.00", f.customerRow(t).TotalPayments)
	requireAmount(t, "100.00", f.invoiceRow(t, inv.ID).PaidAmount)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).Where("event_type = ?", enums.EventPaymentApplied).Count(&events).Error)
	require.EqualValues(t, 1, events)
}

func TestLosingRaceOnSettledInvoiceReplays(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.scenarioInvoice(t)

	winner, err := f.svc.Apply(ctx, f.input("pay-full", &inv.ID, "210.00"))
	require.NoError(t, err)

	// the late request misses the record, then finds the invoice already paid in full
	racer := f.service(t, &racingRepository{Repository: NewRepository(f.conn), hide: 1})
	loser, err := racer.Apply(ctx, f.input("pay-full", &inv.ID, "210.00"))
	require.NoError(t, err)
	require.True(t, loser.Replayed)
	require.Equal(t, winner.PaymentID, loser.PaymentID)
	require.Equal(t, string(winner.Response), string(loser.Response))

	require.EqualValues(t, 1, f.count(t, &models.Payment{}))
	requireAmount(t, "210.00", f.customerRow(t).TotalPayments)
	requireAmount(t, "210.00", f.invoiceRow(t, inv.ID).PaidAmount)
}

func TestConcurrentSameKeySettlingPaymentAppliesOnce(t *testing.T) {
	f := newFixture(t)
	inv := f.scenarioInvoice(t)

	const callers = 8
	results := make([]*ApplyResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Apply(context.Background(), f.input("pay-full", &inv.ID, "210.00"))
		}(i)
	}
	wg.Wait()

	for i := range results {
		if errs[i] != nil {
			t.Fatalf("caller %d: %v", i, errs[i])
		}
		require.Equal(t, results[0].PaymentID, results[i].PaymentID)
	}
	require.EqualValues(t, 1, f.count(t, &models.Payment{}))
	requireAmount(t, "210.00", f.customerRow(t).TotalPayments)
}

func TestConcurrentSameKeyAppliesOnce(t *testing.T) {
	f := newFixture(t)
	inv := f.scenarioInvoice(t)

	const callers = 8
	results := make([]*ApplyResult, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], errs[i] = f.svc.Apply(context.Background(), f.input("pay-abc", &inv.ID, "100.00"))
		}(i)
	}
	wg.Wait()

	applied := 0
	for i := range results {
		require.NoError(t, errs[i])
		require.Equal(t, results[0].PaymentID, results[i].PaymentID)
		require.Equal(t, string(results[0].Response), string(results[i].Response))
		if !results[i].Replayed {
			applied++
		}
	}
	require.Equal(t, 1, applied)
	require.EqualValues(t, 1, f.count(t, &models.Payment{}))
	requireAmount(t, "100.00", f.customerRow(t).TotalPayments)
}

// failingBalancesRepository makes the rollup update fail after the payment insert.
type failingBalancesRepository struct {
	balances.Repository
}

func (r failingBalancesRepository) WithTx(tx *gorm.DB) balances.Repository {
	return failingBalancesRepository{Repository: r.Repository.WithTx(tx)}
}

func (failingBalancesRepository) ApplyDelta(context.Context, uuid.UUID, balances.Delta) (int64, error) {
	return 0, errors.New("customer row unavailable")
}

func TestFailedRollupLeavesNoOrphanPayment(t *testing.T) {
	f := newFixture(t)
	inv := f.scenarioInvoice(t)

	rec, err := balances.NewReconciler(balances.Params{Repository: failingBalancesRepository{balances.NewRepository(f.conn)}, DB: f.client})
	require.NoError(t, err)
	svc, err := NewService(Params{Repository: NewRepository(f.conn), DB: f.client, Balances: rec, Outbox: f.emitter})
	require.NoError(t, err)

	_, err = svc.Apply(context.Background(), f.input("pay-abc", &inv.ID, "100.00"))
	requireCode(t, err, pkgerrors.CodeDependency)

	require.EqualValues(t, 0, f.count(t, &models.Payment{}))
	require.EqualValues(t, 0, f.count(t, &models.PaymentIdempotencyRecord{}))
	requireAmount(t, "0.00", f.invoiceRow(t, inv.ID).PaidAmount)
}

func TestReverseBacksOutPayment(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.scenarioInvoice(t)

	res, err := f.svc.Apply(ctx, f.input("pay-abc", &inv.ID, "100.00"))
	require.NoError(t, err)

	_, err = f.svc.Reverse(ctx, ReverseInput{PaymentID: res.PaymentID, OwnerID: f.owner, UserID: f.user})
	requireCode(t, err, pkgerrors.CodeValidation)

	view, err := f.svc.Reverse(ctx, ReverseInput{PaymentID: res.PaymentID, OwnerID: f.owner, UserID: f.user, Reason: "cheque bounced"})
	require.NoError(t, err)
	require.Equal(t, enums.PaymentStatusReversed, view.Status)
	require.Equal(t, enums.InvoiceUnpaid, *view.InvoicePaymentStatus)

	requireAmount(t, "0.00", f.invoiceRow(t, inv.ID).PaidAmount)
	requireAmount(t, "0.00", f.customerRow(t).TotalPayments)
	requireAmount(t, "210.00", f.customerRow(t).PendingBalance)

	_, err = f.svc.Reverse(ctx, ReverseInput{PaymentID: res.PaymentID, OwnerID: f.owner, UserID: f.user, Reason: "again"})
	requireCode(t, err, pkgerrors.CodeStateConflict)

	// the key still replays the original response
	replay, err := f.svc.Apply(ctx, f.input("pay-abc", &inv.ID, "100.00"))
	require.NoError(t, err)
	require.True(t, replay.Replayed)
	requireAmount(t, "0.00", f.customerRow(t).TotalPayments)

	drift, err := f.balances.Verify(ctx, f.customer)
	require.NoError(t, err)
	require.False(t, drift.HasDrift())
}

func TestPurgeRecords(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Apply(ctx, f.input("old", nil, "10"))
	require.NoError(t, err)
	_, err = f.svc.Apply(ctx, f.input("new", nil, "10"))
	require.NoError(t, err)
	require.NoError(t, f.conn.Model(&models.PaymentIdempotencyRecord{}).
		Where("idempotency_key = ?", "old").
		UpdateColumn("created_at", time.Now().UTC().Add(-100*24*time.Hour)).Error)

	deleted, err := f.svc.PurgeRecords(ctx, time.Now().UTC().Add(-90*24*time.Hour), 10)
	require.NoError(t, err)
	require.EqualValues(t, 1, deleted)
	require.EqualValues(t, 1, f.count(t, &models.PaymentIdempotencyRecord{}))
}

func TestRequestHashIsStable(t *testing.T) {
	customer := uuid.New()
	invoice := uuid.New()
	a := RequestHash(customer, &invoice, dec("100"), enums.PaymentModeCash)
	b := RequestHash(customer, &invoice, dec("100.00"), enums.PaymentModeCash)
	require.Equal(t, a, b)
	require.NotEqual(t, a, RequestHash(customer, nil, dec("100"), enums.PaymentModeCash))
	require.NotEqual(t, a, RequestHash(customer, &invoice, dec("100"), enums.PaymentModeCard))
	require.Len(t, a, 64)
}
