// Package balances maintains the customer ledger rollups: total sales, total
// payments, total returns, pending balance and balance. The rollups are a cache
// over invoices, completed payments and credit notes. Writers move them with
// ApplyDelta inside their own transaction; Recompute derives them from scratch
// and Verify/Repair compare and correct the two.
package balances

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/db/models"
	pkgerrors "github.com/angelmondragon/invoice-ledger/pkg/errors"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/metrics"
)

// DefaultEpsilon is the tolerated absolute difference between cached and recomputed values.
var DefaultEpsilon = decimal.New(5, -3)

// Rollup field names, as reported in Drift.
const (
	FieldTotalSales     = "total_sales"
	FieldTotalPayments  = "total_payments"
	FieldTotalReturns   = "total_returns"
	FieldPendingBalance = "pending_balance"
	FieldBalance        = "balance"
)

// Delta is the effect of one ledger write on a customer's rollups.
type Delta struct {
	Sales     decimal.Decimal
	Payments  decimal.Decimal
	Returns   decimal.Decimal
	At        time.Time
	PaymentAt *time.Time
}

// Net is the change to the pending balance.
func (d Delta) Net() decimal.Decimal {
	return d.Sales.Sub(d.Payments).Sub(d.Returns)
}

// IsZero reports whether the delta moves no money.
func (d Delta) IsZero() bool {
	return d.Sales.IsZero() && d.Payments.IsZero() && d.Returns.IsZero()
}

// LedgerSnapshot is a customer's rollup values, either as stored or as recomputed.
type LedgerSnapshot struct {
	CustomerID     uuid.UUID        `json:"customerId"`
	TotalSales     decimal.Decimal  `json:"totalSales"`
	TotalPayments  decimal.Decimal  `json:"totalPayments"`
	TotalReturns   decimal.Decimal  `json:"totalReturns"`
	PendingBalance decimal.Decimal  `json:"pendingBalance"`
	Balance        decimal.Decimal  `json:"balance"`
	CreditLimit    *decimal.Decimal `json:"creditLimit,omitempty"`
}

func (s LedgerSnapshot) fields() map[string]decimal.Decimal {
	return map[string]decimal.Decimal{
		FieldTotalSales:     s.TotalSales,
		FieldTotalPayments:  s.TotalPayments,
		FieldTotalReturns:   s.TotalReturns,
		FieldPendingBalance: s.PendingBalance,
		FieldBalance:        s.Balance,
	}
}

// FieldDrift is one rollup column outside tolerance.
type FieldDrift struct {
	Field    string          `json:"field"`
	Stored   decimal.Decimal `json:"stored"`
	Expected decimal.Decimal `json:"expected"`
}

// Drift compares the stored rollups of a customer with a fresh recomputation.
type Drift struct {
	CustomerID uuid.UUID      `json:"customerId"`
	OwnerID    uuid.UUID      `json:"ownerId"`
	Stored     LedgerSnapshot `json:"stored"`
	Expected   LedgerSnapshot `json:"expected"`
	Fields     []FieldDrift   `json:"fields"`
}

// HasDrift reports whether any field is out of tolerance.
func (d *Drift) HasDrift() bool {
	return d != nil && len(d.Fields) > 0
}

// ClampBalance applies the credit-limit ceiling to a pending balance.
func ClampBalance(pending decimal.Decimal, creditLimit *decimal.Decimal) decimal.Decimal {
	if creditLimit != nil && pending.GreaterThan(*creditLimit) {
		return *creditLimit
	}
	return pending
}

// Reconciler owns the customer rollups.
type Reconciler struct {
	repo    Repository
	tx      db.TxRunner
	logg    *logger.Logger
	metrics *metrics.LedgerMetrics
	epsilon decimal.Decimal
	now     func() time.Time
}

// Params configures a Reconciler.
type Params struct {
	Repository Repository
	DB         db.TxRunner
	Logger     *logger.Logger
	Metrics    *metrics.LedgerMetrics
	Epsilon    decimal.Decimal
}

// NewReconciler validates the dependencies and builds a Reconciler.
func NewReconciler(params Params) (*Reconciler, error) {
	if params.Repository == nil {
		return nil, fmt.Errorf("balances repository required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("transaction runner required")
	}
	logg := params.Logger
	if logg == nil {
		logg = logger.Nop()
	}
	eps := params.Epsilon
	if eps.IsZero() || eps.IsNegative() {
		eps = DefaultEpsilon
	}
	return &Reconciler{
		repo:    params.Repository,
		tx:      params.DB,
		logg:    logg,
		metrics: params.Metrics,
		epsilon: eps,
		now:     time.Now,
	}, nil
}

// ApplyDelta moves the rollups of customerID inside tx, the caller's transaction.
func (r *Reconciler) ApplyDelta(ctx context.Context, tx *gorm.DB, customerID uuid.UUID, delta Delta) error {
	if tx == nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "balance delta requires a transaction")
	}
	if customerID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	if delta.At.IsZero() {
		delta.At = r.now().UTC()
	}
	rows, err := r.repo.WithTx(tx).ApplyDelta(ctx, customerID, delta)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "apply balance delta")
	}
	if rows == 0 {
		return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
	}
	return nil
}

// Stored returns the cached rollups.
func (r *Reconciler) Stored(ctx context.Context, customerID uuid.UUID) (*LedgerSnapshot, error) {
	customer, err := r.loadCustomer(ctx, r.repo, customerID)
	if err != nil {
		return nil, err
	}
	snapshot := storedSnapshot(customer)
	return &snapshot, nil
}

// Recompute derives the rollups from invoices, completed payments and credit
// notes. On Postgres the three scans share one repeatable-read snapshot.
func (r *Reconciler) Recompute(ctx context.Context, customerID uuid.UUID) (*LedgerSnapshot, error) {
	var snapshot *LedgerSnapshot
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := r.tx.WithTxOptions(ctx, opts, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		customer, err := r.loadCustomer(ctx, repo, customerID)
		if err != nil {
			return err
		}
		snapshot, err = recompute(ctx, repo, customer)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snapshot, nil
}

// Verify compares stored and recomputed rollups within the configured epsilon.
func (r *Reconciler) Verify(ctx context.Context, customerID uuid.UUID) (*Drift, error) {
	var drift *Drift
	opts := &sql.TxOptions{Isolation: sql.LevelRepeatableRead, ReadOnly: true}
	err := r.tx.WithTxOptions(ctx, opts, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		customer, err := r.loadCustomer(ctx, repo, customerID)
		if err != nil {
			return err
		}
		expected, err := recompute(ctx, repo, customer)
		if err != nil {
			return err
		}
		drift = r.compare(customer, storedSnapshot(customer), *expected)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if drift.HasDrift() {
		for _, field := range drift.Fields {
			r.metrics.IncBalanceDrift(field.Field)
		}
		logCtx := r.logg.WithCustomerID(ctx, customerID.String())
		logCtx = r.logg.WithFields(logCtx, map[string]any{
			"event":        "balance.drift_detected",
			"drift_fields": len(drift.Fields),
		})
		r.logg.Warn(logCtx, "customer rollups drifted from source rows")
	}
	return drift, nil
}

// Repair overwrites the stored rollups with a recomputation taken under a
// serializable transaction and returns the drift that was corrected.
func (r *Reconciler) Repair(ctx context.Context, customerID uuid.UUID) (*Drift, error) {
	var drift *Drift
	opts := &sql.TxOptions{Isolation: sql.LevelSerializable}
	err := r.tx.WithTxOptions(ctx, opts, func(tx *gorm.DB) error {
		repo := r.repo.WithTx(tx)
		customer, err := r.loadCustomer(ctx, repo, customerID)
		if err != nil {
			return err
		}
		expected, err := recompute(ctx, repo, customer)
		if err != nil {
			return err
		}
		drift = r.compare(customer, storedSnapshot(customer), *expected)
		if !drift.HasDrift() {
			return nil
		}
		rows, err := repo.OverwriteRollups(ctx, *expected, r.now().UTC())
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "overwrite rollups")
		}
		if rows == 0 {
			return pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if drift.HasDrift() {
		logCtx := r.logg.WithCustomerID(ctx, customerID.String())
		logCtx = r.logg.WithField(logCtx, "event", "balance.repaired")
		r.logg.Info(logCtx, "customer rollups rebuilt from source rows")
	}
	return drift, nil
}

// CustomerIDs pages through customer ids in ascending order.
func (r *Reconciler) CustomerIDs(ctx context.Context, after uuid.UUID, limit int) ([]uuid.UUID, error) {
	if limit <= 0 {
		limit = 100
	}
	ids, err := r.repo.ListCustomerIDs(ctx, after, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list customers")
	}
	return ids, nil
}

func (r *Reconciler) loadCustomer(ctx context.Context, repo Repository, customerID uuid.UUID) (*models.Customer, error) {
	if customerID == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "customer id required")
	}
	customer, err := repo.FindCustomer(ctx, customerID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "customer not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load customer")
	}
	return customer, nil
}

func (r *Reconciler) compare(customer *models.Customer, stored, expected LedgerSnapshot) *Drift {
	drift := &Drift{
		CustomerID: customer.ID,
		OwnerID:    customer.OwnerID,
		Stored:     stored,
		Expected:   expected,
	}
	storedFields := stored.fields()
	for _, name := range []string{FieldTotalSales, FieldTotalPayments, FieldTotalReturns, FieldPendingBalance, FieldBalance} {
		want := expected.fields()[name]
		got := storedFields[name]
		if got.Sub(want).Abs().GreaterThan(r.epsilon) {
			drift.Fields = append(drift.Fields, FieldDrift{Field: name, Stored: got, Expected: want})
		}
	}
	return drift
}

func recompute(ctx context.Context, repo Repository, customer *models.Customer) (*LedgerSnapshot, error) {
	invoices, err := repo.InvoiceTotals(ctx, customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum invoices")
	}
	payments, err := repo.CompletedPaymentAmounts(ctx, customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum payments")
	}
	returns, err := repo.CreditNoteAmounts(ctx, customer.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "sum credit notes")
	}

	sales := sum(invoices)
	paid := sum(payments)
	returned := sum(returns)
	pending := sales.Sub(paid).Sub(returned)
	return &LedgerSnapshot{
		CustomerID:     customer.ID,
		TotalSales:     sales,
		TotalPayments:  paid,
		TotalReturns:   returned,
		PendingBalance: pending,
		Balance:        ClampBalance(pending, customer.CreditLimit),
		CreditLimit:    customer.CreditLimit,
	}, nil
}

func storedSnapshot(customer *models.Customer) LedgerSnapshot {
	return LedgerSnapshot{
		CustomerID:     customer.ID,
		TotalSales:     customer.TotalSales.Round(2),
		TotalPayments:  customer.TotalPayments.Round(2),
		TotalReturns:   customer.TotalReturns.Round(2),
		PendingBalance: customer.PendingBalance.Round(2),
		Balance:        customer.Balance.Round(2),
		CreditLimit:    customer.CreditLimit,
	}
}

func sum(values []decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, v := range values {
		total = total.Add(v)
	}
	return total.Round(2)
}
