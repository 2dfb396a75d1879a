package metrics

import "github.com/prometheus/client_golang/prometheus"

// LedgerMetrics counts the contention and recovery paths of the ledger.
// A nil *LedgerMetrics is valid and records nothing.
type LedgerMetrics struct {
	allocationRetries   prometheus.Counter
	allocationExhausted prometheus.Counter
	idempotency         *prometheus.CounterVec
	versionConflicts    *prometheus.CounterVec
	balanceDrift        *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return nil
	}
	m := &LedgerMetrics{
		allocationRetries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_invoice_number_retries_total",
			Help: "Invoice number allocations retried after a uniqueness collision.",
		}),
		allocationExhausted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "ledger_invoice_number_exhausted_total",
			Help: "Invoice creations rejected after the retry budget was spent.",
		}),
		idempotency: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_payment_idempotency_total",
			Help: "Payment requests by idempotency outcome.",
		}, []string{"outcome"}),
		versionConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_version_conflicts_total",
			Help: "Optimistic concurrency rejections by operation.",
		}, []string{"operation"}),
		balanceDrift: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_balance_drift_total",
			Help: "Customer rollup fields found out of line with source rows.",
		}, []string{"field"}),
	}
	reg.MustRegister(m.allocationRetries, m.allocationExhausted, m.idempotency, m.versionConflicts, m.balanceDrift)
	return m
}

func (m *LedgerMetrics) IncAllocationRetry() {
	if m == nil {
		return
	}
	m.allocationRetries.Inc()
}

func (m *LedgerMetrics) IncAllocationExhausted() {
	if m == nil {
		return
	}
	m.allocationExhausted.Inc()
}

// Idempotency outcomes.
const (
	OutcomeApplied  = "applied"
	OutcomeReplayed = "replayed"
	OutcomeRaceLost = "race_lost"
	OutcomeConflict = "conflict"
)

func (m *LedgerMetrics) IncIdempotency(outcome string) {
	if m == nil {
		return
	}
	m.idempotency.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *LedgerMetrics) IncVersionConflict(operation string) {
	if m == nil {
		return
	}
	m.versionConflicts.WithLabelValues(normalizeLabel(operation)).Inc()
}

func (m *LedgerMetrics) IncBalanceDrift(field string) {
	if m == nil {
		return
	}
	m.balanceDrift.WithLabelValues(normalizeLabel(field)).Inc()
}
