package invoices

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/internal/balances"
	"github.com/angelmondragon/invoice-ledger/internal/ledger"
	"github.com/angelmondragon/invoice-ledger/internal/sequence"
	"github.com/angelmondragon/invoice-ledger/internal/testdb"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	"github.com/angelmondragon/invoice-ledger/pkg/enums"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
	"github.com/angelmondragon/invoice-ledger/pkg/pagination"
)

func dec(v string) decimal.Decimal { return decimal.RequireFromString(v) }

type fixture struct {
	conn     *gorm.DB
	svc      Service
	ledger   *ledger.Service
	balances *balances.Reconciler
	owner    uuid.UUID
	user     uuid.UUID
	customer uuid.UUID
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	client, conn := testdb.Client(t)

	allocator, err := sequence.NewAllocator(sequence.NewRepositorySource(conn), client, sequence.Options{}, nil, nil)
	require.NoError(t, err)
	versions, err := ledger.NewService(ledger.NewRepository(conn), nil)
	require.NoError(t, err)
	rec, err := balances.NewReconciler(balances.Params{Repository: balances.NewRepository(conn), DB: client})
	require.NoError(t, err)

	svc, err := NewService(Params{
		Repository: NewRepository(conn),
		DB:         client,
		Allocator:  allocator,
		Ledger:     versions,
		Balances:   rec,
		Outbox:     outbox.NewService(outbox.NewRepository(conn), logger.Nop()),
	})
	require.NoError(t, err)

	f := &fixture{conn: conn, svc: svc, ledger: versions, balances: rec, owner: uuid.New(), user: uuid.New()}
	customer := models.Customer{OwnerID: f.owner, Name: "Acme Traders"}
	require.NoError(t, conn.Create(&customer).Error)
	f.customer = customer.ID
	return f
}

// scenarioLines are two lines at 5% VAT: 2 × 50.00 and 1 × 100.00.
func scenarioLines() []LineInput {
	return []LineInput{
		{Description: "Widget", Quantity: dec("2"), UnitPrice: dec("50.00"), VATRate: dec("5")},
		{Description: "Gadget", Quantity: dec("1"), UnitPrice: dec("100.00"), VATRate: dec("5")},
	}
}

func (f *fixture) create(t *testing.T, lines []LineInput) *CreateResult {
	t.Helper()
	res, err := f.svc.Create(context.Background(), CreateInput{
		OwnerID: f.owner, CustomerID: f.customer, UserID: f.user, Lines: lines,
	})
	require.NoError(t, err)
	return res
}

func (f *fixture) mutation(inv models.Invoice) MutationInput {
	return MutationInput{InvoiceID: inv.ID, OwnerID: f.owner, UserID: f.user, ExpectedVersion: inv.Version}
}

func (f *fixture) customerRow(t *testing.T) models.Customer {
	t.Helper()
	var c models.Customer
	require.NoError(t, f.conn.First(&c, "id = ?", f.customer).Error)
	return c
}

func requireCode(t *testing.T, err error, code pkgerrors.Code) {
	t.Helper()
	if !pkgerrors.IsCode(err, code) {
		t.Fatalf("expected %s, got %v", code, err)
	}
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	if !got.Round(2).Equal(dec(want)) {
		t.Fatalf("expected %s, got %s", want, got.StringFixed(2))
	}
}

func TestCreateComputesTotalsAndNumbers(t *testing.T) {
	f := newFixture(t)
	res := f.create(t, scenarioLines())

	inv := res.Invoice
	require.False(t, res.Existing)
	require.Equal(t, "INV-1001", inv.InvoiceNumber)
	require.Equal(t, 1, inv.Version)
	require.Equal(t, enums.InvoiceStateDraft, inv.State())
	requireDecimal(t, "200.00", inv.Subtotal)
	requireDecimal(t, "10.00", inv.VATTotal)
	requireDecimal(t, "210.00", inv.GrandTotal)
	require.Len(t, res.Lines, 2)
	requireDecimal(t, "105.00", res.Lines[0].LineTotal)

	requireDecimal(t, "210.00", f.customerRow(t).TotalSales)

	versions, err := f.ledger.List(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, versions, 1)
	require.Equal(t, enums.VersionCreated, versions[0].ChangeType)

	var events int64
	require.NoError(t, f.conn.Model(&models.OutboxEvent{}).
		Where("aggregate_id = ? AND event_type = ?", inv.ID, enums.EventInvoiceCreated).
		Count(&events).Error)
	require.EqualValues(t, 1, events)

	second := f.create(t, scenarioLines())
	require.Equal(t, "INV-1002", second.Invoice.InvoiceNumber)
}

func TestCreateValidatesLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, CreateInput{OwnerID: f.owner, CustomerID: f.customer, UserID: f.user})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Create(ctx, CreateInput{OwnerID: f.owner, CustomerID: f.customer, UserID: f.user,
		Lines: []LineInput{{Quantity: dec("-1"), UnitPrice: dec("10")}}})
	requireCode(t, err, pkgerrors.CodeValidation)

	_, err = f.svc.Create(ctx, CreateInput{OwnerID: f.owner, CustomerID: uuid.New(), UserID: f.user, Lines: scenarioLines()})
	requireCode(t, err, pkgerrors.CodeNotFound)

	var count int64
	require.NoError(t, f.conn.Model(&models.Invoice{}).Count(&count).Error)
	require.Zero(t, count)
}

func TestCreateDeduplicatesByExternalReference(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	ref := "shop-order-77"

	first, err := f.svc.Create(ctx, CreateInput{OwnerID: f.owner, CustomerID: f.customer, UserID: f.user, ExternalReference: &ref, Lines: scenarioLines()})
	require.NoError(t, err)
	second, err := f.svc.Create(ctx, CreateInput{OwnerID: f.owner, CustomerID: f.customer, UserID: f.user, ExternalReference: &ref, Lines: scenarioLines()})
	require.NoError(t, err)

	require.True(t, second.Existing)
	require.Equal(t, first.Invoice.ID, second.Invoice.ID)
	require.Len(t, second.Lines, 2)
	requireDecimal(t, "210.00", f.customerRow(t).TotalSales)

	other := uuid.New()
	_, err = f.svc.Create(ctx, CreateInput{OwnerID: other, CustomerID: f.customer, UserID: f.user, ExternalReference: &ref, Lines: scenarioLines()})
	requireCode(t, err, pkgerrors.CodeConflict)
}

func TestFinalizeChecksExpectedVersion(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, scenarioLines()).Invoice

	stale := f.mutation(inv)
	stale.ExpectedVersion = 2
	_, err := f.svc.Finalize(ctx, stale)
	requireCode(t, err, pkgerrors.CodeConcurrentModification)

	got, err := f.svc.Finalize(ctx, f.mutation(inv))
	require.NoError(t, err)
	require.Equal(t, 2, got.Invoice.Version)
	require.True(t, got.Invoice.IsFinalized)
	require.NotNil(t, got.Invoice.FinalizedAt)

	_, err = f.svc.Finalize(ctx, f.mutation(got.Invoice))
	requireCode(t, err, pkgerrors.CodeStateConflict)
}

func TestConcurrentFinalizeHasOneWinner(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, scenarioLines()).Invoice

	const writers = 6
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.Finalize(context.Background(), f.mutation(inv))
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		if !pkgerrors.IsCode(err, pkgerrors.CodeConcurrentModification) && !pkgerrors.IsCode(err, pkgerrors.CodeStateConflict) {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	require.Equal(t, 1, wins)

	versions, err := f.ledger.List(context.Background(), inv.ID)
	require.NoError(t, err)
	require.Len(t, versions, 2)
}

func TestEditAfterFinalizeNeedsReason(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, scenarioLines()).Invoice
	finalized, err := f.svc.Finalize(ctx, f.mutation(inv))
	require.NoError(t, err)

	newLines := []LineInput{
		{Quantity: dec("2"), UnitPrice: dec("50.00"), VATRate: dec("5")},
		{Quantity: dec("1"), UnitPrice: dec("100.00"), VATRate: dec("5")},
		{Quantity: dec("1"), UnitPrice: dec("40.00")},
	}
	_, err = f.svc.Edit(ctx, EditInput{MutationInput: f.mutation(finalized.Invoice), Lines: newLines})
	requireCode(t, err, pkgerrors.CodeInvoiceLocked)

	reason := "customer added an item"
	edited, err := f.svc.Edit(ctx, EditInput{MutationInput: f.mutation(finalized.Invoice), Lines: newLines, EditReason: &reason})
	require.NoError(t, err)
	require.Equal(t, 3, edited.Invoice.Version)
	requireDecimal(t, "250.00", edited.Invoice.GrandTotal)
	require.Len(t, edited.Lines, 3)
	require.Equal(t, reason, *edited.Invoice.EditReason)

	requireDecimal(t, "250.00", f.customerRow(t).TotalSales)

	versions, err := f.ledger.List(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	for i, v := range versions {
		require.Equal(t, i+1, v.VersionNumber)
	}
	require.Contains(t, versions[2].DiffSummary, "GrandTotal 210.00 → 250.00")
	require.Contains(t, versions[2].DiffSummary, "Lines 2 → 3")
	require.True(t, versions[2].WasFinalized)

	drift, err := f.balances.Verify(ctx, f.customer)
	require.NoError(t, err)
	require.False(t, drift.HasDrift())
}

func TestEditCannotDropBelowPaidAmount(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, scenarioLines()).Invoice
	require.NoError(t, f.conn.Model(&models.Invoice{}).Where("id = ?", inv.ID).
		UpdateColumn("paid_amount", dec("150")).Error)

	_, err := f.svc.Edit(ctx, EditInput{MutationInput: f.mutation(inv), Lines: []LineInput{{Quantity: dec("1"), UnitPrice: dec("100")}}})
	requireCode(t, err, pkgerrors.CodeValidation)

	edited, err := f.svc.Edit(ctx, EditInput{MutationInput: f.mutation(inv), Lines: []LineInput{{Quantity: dec("1"), UnitPrice: dec("200")}}})
	require.NoError(t, err)
	require.Equal(t, enums.InvoicePartiallyPaid, edited.Invoice.PaymentStatus)
}

func TestLockIsTerminal(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, scenarioLines()).Invoice

	_, err := f.svc.Lock(ctx, inv.ID, f.owner, f.user, 0)
	requireCode(t, err, pkgerrors.CodeStateConflict)

	finalized, err := f.svc.Finalize(ctx, f.mutation(inv))
	require.NoError(t, err)
	locked, err := f.svc.Lock(ctx, inv.ID, f.owner, f.user, 0)
	require.NoError(t, err)
	require.True(t, locked.Invoice.IsLocked)
	require.Equal(t, 3, locked.Invoice.Version)

	again, err := f.svc.Lock(ctx, inv.ID, f.owner, f.user, 0)
	require.NoError(t, err)
	require.Equal(t, 3, again.Invoice.Version)

	reason := "late correction"
	for _, version := range []int{finalized.Invoice.Version, locked.Invoice.Version} {
		in := f.mutation(locked.Invoice)
		in.ExpectedVersion = version
		_, err = f.svc.Edit(ctx, EditInput{MutationInput: in, Lines: scenarioLines(), EditReason: &reason})
		requireCode(t, err, pkgerrors.CodeInvoiceLocked)
		_, err = f.svc.SoftDelete(ctx, in)
		requireCode(t, err, pkgerrors.CodeInvoiceLocked)
	}

	versions, err := f.ledger.List(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
	require.Equal(t, enums.VersionLocked, versions[2].ChangeType)
}

func TestLockChecksExpectedVersionUntilLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, scenarioLines()).Invoice
	finalized, err := f.svc.Finalize(ctx, f.mutation(inv))
	require.NoError(t, err)
	require.Equal(t, 2, finalized.Invoice.Version)

	_, err = f.svc.Lock(ctx, inv.ID, f.owner, f.user, 1)
	requireCode(t, err, pkgerrors.CodeConcurrentModification)
	_, err = f.svc.Lock(ctx, inv.ID, f.owner, f.user, -1)
	requireCode(t, err, pkgerrors.CodeValidation)

	current, err := f.svc.Get(ctx, f.owner, inv.ID)
	require.NoError(t, err)
	require.False(t, current.Invoice.IsLocked)
	require.Equal(t, 2, current.Invoice.Version)

	locked, err := f.svc.Lock(ctx, inv.ID, f.owner, f.user, 2)
	require.NoError(t, err)
	require.True(t, locked.Invoice.IsLocked)
	require.Equal(t, 3, locked.Invoice.Version)

	// Already locked: the stale version is ignored and nothing changes.
	again, err := f.svc.Lock(ctx, inv.ID, f.owner, f.user, 1)
	require.NoError(t, err)
	require.Equal(t, 3, again.Invoice.Version)

	versions, err := f.ledger.List(ctx, inv.ID)
	require.NoError(t, err)
	require.Len(t, versions, 3)
}

func TestSoftDeleteRemovesSalesAndKeepsNumber(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, scenarioLines()).Invoice

	deleted, err := f.svc.SoftDelete(ctx, f.mutation(inv))
	require.NoError(t, err)
	require.True(t, deleted.Invoice.IsDeleted)
	require.Equal(t, f.user, *deleted.Invoice.DeletedBy)
	requireDecimal(t, "0.00", f.customerRow(t).TotalSales)

	_, err = f.svc.Finalize(ctx, f.mutation(deleted.Invoice))
	requireCode(t, err, pkgerrors.CodeStateConflict)

	next := f.create(t, scenarioLines())
	require.Equal(t, "INV-1002", next.Invoice.InvoiceNumber)

	list, err := f.svc.List(ctx, f.owner, pagination.Params{})
	require.NoError(t, err)
	require.Len(t, list.Items, 1)

	got, err := f.svc.Get(ctx, f.owner, inv.ID)
	require.NoError(t, err)
	require.Equal(t, enums.InvoiceStateDeleted, got.Invoice.State())

	drift, err := f.balances.Verify(ctx, f.customer)
	require.NoError(t, err)
	require.False(t, drift.HasDrift())
}

func TestGetIsOwnerScoped(t *testing.T) {
	f := newFixture(t)
	inv := f.create(t, scenarioLines()).Invoice

	_, err := f.svc.Get(context.Background(), uuid.New(), inv.ID)
	requireCode(t, err, pkgerrors.CodeNotFound)
}

func TestListPaginatesNewestFirst(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	for i := 0; i < 5; i++ {
		f.create(t, scenarioLines())
	}

	page, err := f.svc.List(ctx, f.owner, pagination.Params{Limit: 2})
	require.NoError(t, err)
	require.Len(t, page.Items, 2)
	require.Equal(t, "INV-1005", page.Items[0].InvoiceNumber)
	require.NotEmpty(t, page.NextCursor)

	var seen []string
	cursor := ""
	for {
		page, err := f.svc.List(ctx, f.owner, pagination.Params{Limit: 2, Cursor: cursor})
		require.NoError(t, err)
		for _, inv := range page.Items {
			seen = append(seen, inv.InvoiceNumber)
		}
		if page.NextCursor == "" {
			break
		}
		cursor = page.NextCursor
	}
	require.Equal(t, []string{"INV-1005", "INV-1004", "INV-1003", "INV-1002", "INV-1001"}, seen)
}

func TestConcurrentCreatesYieldDistinctNumbers(t *testing.T) {
	if testing.Short() {
		t.Skip("concurrency property")
	}
	f := newFixture(t)

	const workers, perWorker = 8, 25
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		numbers = map[string]bool{}
		errs    []error
	)
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				res, err := f.svc.Create(context.Background(), CreateInput{
					OwnerID: f.owner, CustomerID: f.customer, UserID: f.user,
					Lines: []LineInput{{Quantity: dec("1"), UnitPrice: dec("10")}},
				})
				mu.Lock()
				if err != nil {
					errs = append(errs, err)
				} else {
					numbers[res.Invoice.InvoiceNumber] = true
				}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	require.Empty(t, errs)
	require.Len(t, numbers, workers*perWorker)
	for seq := 1001; seq < 1001+workers*perWorker; seq++ {
		require.True(t, numbers[fmt.Sprintf("INV-%d", seq)], "missing INV-%d", seq)
	}
	requireDecimal(t, "2000.00", f.customerRow(t).TotalSales)
}

func TestLockCandidates(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	inv := f.create(t, scenarioLines()).Invoice
	_, err := f.svc.Finalize(ctx, f.mutation(inv))
	require.NoError(t, err)
	f.create(t, scenarioLines())

	fin, err := f.svc.Get(ctx, f.owner, inv.ID)
	require.NoError(t, err)
	candidates, err := f.svc.LockCandidates(ctx, fin.Invoice.FinalizedAt.Add(1), 10)
	require.NoError(t, err)
	require.Len(t, candidates, 1)
	require.Equal(t, inv.ID, candidates[0].ID)

	candidates, err = f.svc.LockCandidates(ctx, fin.Invoice.FinalizedAt.Add(-1), 10)
	require.NoError(t, err)
	require.Empty(t, candidates)
}
