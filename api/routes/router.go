package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/angelmondragon/invoice-ledger/api/controllers"
	"github.com/angelmondragon/invoice-ledger/api/middleware"
	"github.com/angelmondragon/invoice-ledger/internal/creditnotes"
	"github.com/angelmondragon/invoice-ledger/internal/customers"
	"github.com/angelmondragon/invoice-ledger/internal/invoices"
	"github.com/angelmondragon/invoice-ledger/internal/payments"
	"github.com/angelmondragon/invoice-ledger/pkg/config"
	"github.com/angelmondragon/invoice-ledger/pkg/logger"
	"github.com/angelmondragon/invoice-ledger/pkg/metrics"
	"github.com/angelmondragon/invoice-ledger/pkg/redis"
)

// Dependencies are the services the API routes to. Redis is optional: without
// it invoice creation skips response replay and payments fall back to an
// in-process rate limiter.
type Dependencies struct {
	DB          controllers.Pinger
	Redis       *redis.Client
	Gatherer    prometheus.Gatherer
	Invoices    invoices.Service
	Versions    controllers.VersionReader
	Payments    payments.Service
	Customers   customers.Service
	CreditNotes creditnotes.Service
	Balances    controllers.LedgerReconciler
}

func NewRouter(cfg *config.Config, logg *logger.Logger, deps Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(
		middleware.Recoverer(logg),
		middleware.RequestID(logg),
		middleware.Logging(logg),
		middleware.SecureHeaders(cfg.App.IsProd()),
		middleware.CORS(cfg.HTTP.CORSAllowedOrigins),
	)

	var (
		idempotencyStore redis.IdempotencyStore
		rateCounter      *redis.Client
		readiness        = map[string]controllers.Pinger{"database": deps.DB}
	)
	if deps.Redis != nil {
		idempotencyStore = deps.Redis
		rateCounter = deps.Redis
		readiness["redis"] = deps.Redis
	}

	invoiceReplay := middleware.Idempotency(idempotencyStore, middleware.IdempotencyPolicy{TTL: cfg.HTTP.InvoiceIdempotencyTTL}, logg)
	paymentsLimit := paymentRateLimit(cfg, rateCounter, logg)

	r.Route("/health", func(r chi.Router) {
		r.Get("/live", controllers.HealthLive(cfg))
		r.Get("/ready", controllers.HealthReady(cfg, logg, readiness))
	})
	if deps.Gatherer != nil {
		r.Handle("/metrics", metrics.Handler(deps.Gatherer))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(middleware.Auth(cfg.JWT, logg))

		r.Route("/invoices", func(r chi.Router) {
			r.With(invoiceReplay).Post("/", controllers.CreateInvoice(deps.Invoices, logg))
			r.Get("/", controllers.ListInvoices(deps.Invoices, logg))
			r.Get("/{invoiceId}", controllers.GetInvoice(deps.Invoices, logg))
			r.Put("/{invoiceId}", controllers.UpdateInvoice(deps.Invoices, logg))
			r.Delete("/{invoiceId}", controllers.DeleteInvoice(deps.Invoices, logg))
			r.Get("/{invoiceId}/versions", controllers.ListInvoiceVersions(deps.Invoices, deps.Versions, logg))
			r.Get("/{invoiceId}/versions/{versionNumber}", controllers.GetInvoiceVersion(deps.Invoices, deps.Versions, logg))
		})

		r.Route("/payments", func(r chi.Router) {
			r.Use(paymentsLimit)
			r.Post("/", controllers.ApplyPayment(deps.Payments, logg))
			r.Post("/{paymentId}/reverse", controllers.ReversePayment(deps.Payments, logg))
		})

		r.Route("/customers", func(r chi.Router) {
			r.Post("/", controllers.CreateCustomer(deps.Customers, logg))
			r.Get("/{customerId}/ledger", controllers.GetCustomerLedger(deps.Customers, deps.Balances, logg))
			r.Post("/{customerId}/ledger/recompute", controllers.RecomputeCustomerLedger(deps.Customers, deps.Balances, logg))
			r.Post("/{customerId}/credit-notes", controllers.IssueCreditNote(deps.CreditNotes, logg))
			r.Get("/{customerId}/credit-notes", controllers.ListCreditNotes(deps.CreditNotes, logg))
		})
	})

	return r
}

func paymentRateLimit(cfg *config.Config, counter *redis.Client, logg *logger.Logger) func(http.Handler) http.Handler {
	policy := middleware.RateLimitPolicy{
		Name:   "payments",
		Limit:  cfg.HTTP.PaymentsPerMinute,
		Window: time.Minute,
	}
	if counter == nil {
		return middleware.RateLimit(policy, nil, logg)
	}
	return middleware.RateLimit(policy, counter, logg)
}
