// Package app assembles the ledger services from configuration so the API,
// the cron worker and ledgerctl share one wiring.
package app

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/invoice-ledger/internal/balances"
	"github.com/angelmondragon/invoice-ledger/internal/creditnotes"
	"github.com/angelmondragon/invoice-ledger/internal/customers"
	"github.com/angelmondragon/invoice-ledger/internal/invoices"
	"github.com/angelmondragon/invoice-ledger/internal/ledger"
	"github.com/angelmondragon/invoice-ledger/internal/payments"
	"github.com/angelmondragon/invoice-ledger/internal/sequence"
	"github.com/angelmondragon/invoice-ledger/pkg/config"
	"github.com/angelmondragon/invoice-ledger/pkg/db"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/metrics"
	"github.com/angelmondragon/invoice-ledger/pkg/outbox"
)

type Services struct {
	DB          *db.Client
	Metrics     *metrics.LedgerMetrics
	Outbox      *outbox.Service
	Allocator   *sequence.Allocator
	Versions    *ledger.Service
	Balances    *balances.Reconciler
	Invoices    invoices.Service
	Payments    payments.Service
	Customers   customers.Service
	CreditNotes creditnotes.Service
}

// NewServices wires every ledger service against client. reg may be nil, in
// which case no metrics are recorded.
func NewServices(cfg *config.Config, client *db.Client, logg *logger.Logger, reg prometheus.Registerer) (*Services, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if client == nil {
		return nil, fmt.Errorf("db client required")
	}
	if logg == nil {
		logg = logger.Nop()
	}
	conn := client.DB()
	m := metrics.NewLedgerMetrics(reg)

	emitter := outbox.NewService(outbox.NewRepository(conn), logg)

	allocator, err := sequence.NewAllocator(sequence.NewRepositorySource(conn), client, sequence.Options{
		Prefix:     cfg.Ledger.InvoicePrefix,
		Start:      cfg.Ledger.InvoiceStartNumber,
		MaxRetries: cfg.Ledger.NumberMaxRetries,
	}, logg, m)
	if err != nil {
		return nil, fmt.Errorf("sequence allocator: %w", err)
	}

	versions, err := ledger.NewService(ledger.NewRepository(conn), logg)
	if err != nil {
		return nil, fmt.Errorf("version ledger: %w", err)
	}

	rec, err := balances.NewReconciler(balances.Params{
		Repository: balances.NewRepository(conn),
		DB:         client,
		Logger:     logg,
		Metrics:    m,
		Epsilon:    cfg.Ledger.Epsilon(),
	})
	if err != nil {
		return nil, fmt.Errorf("balance reconciler: %w", err)
	}

	invoiceSvc, err := invoices.NewService(invoices.Params{
		Repository: invoices.NewRepository(conn),
		DB:         client,
		Allocator:  allocator,
		Ledger:     versions,
		Balances:   rec,
		Outbox:     emitter,
		Logger:     logg,
		Metrics:    m,
	})
	if err != nil {
		return nil, fmt.Errorf("invoices service: %w", err)
	}

	paymentSvc, err := payments.NewService(payments.Params{
		Repository:       payments.NewRepository(conn),
		DB:               client,
		Balances:         rec,
		Outbox:           emitter,
		Logger:           logg,
		Metrics:          m,
		AllowOverpayment: cfg.Ledger.AllowOverpayment,
	})
	if err != nil {
		return nil, fmt.Errorf("payments service: %w", err)
	}

	customerSvc, err := customers.NewService(customers.NewRepository(conn))
	if err != nil {
		return nil, fmt.Errorf("customers service: %w", err)
	}

	creditSvc, err := creditnotes.NewService(creditnotes.NewRepository(conn), client, rec, emitter, logg)
	if err != nil {
		return nil, fmt.Errorf("credit notes service: %w", err)
	}

	return &Services{
		DB:          client,
		Metrics:     m,
		Outbox:      emitter,
		Allocator:   allocator,
		Versions:    versions,
		Balances:    rec,
		Invoices:    invoiceSvc,
		Payments:    paymentSvc,
		Customers:   customerSvc,
		CreditNotes: creditSvc,
	}, nil
}
