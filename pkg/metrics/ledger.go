package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "stockledger"

// LedgerMetrics tracks movement throughput, stock rejections, balance lock
// contention and audit chain health.
type LedgerMetrics struct {
	movements         *prometheus.CounterVec
	rejections        *prometheus.CounterVec
	lockWait          prometheus.Histogram
	auditCorruptions  *prometheus.CounterVec
	approvalDecisions *prometheus.CounterVec
}

// NewLedgerMetrics registers the ledger collectors on reg. A nil registerer
// yields a no-op instance.
func NewLedgerMetrics(reg prometheus.Registerer) *LedgerMetrics {
	if reg == nil {
		return &LedgerMetrics{}
	}
	movements := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "movements_recorded_total",
		Help:      "Ledger movements recorded, by type and approval status.",
	}, []string{"type", "status"})
	rejections := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "stock_rejections_total",
		Help:      "Operations rejected for insufficient stock.",
	}, []string{"operation"})
	lockWait := prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "balance_lock_wait_seconds",
		Help:      "Time spent waiting for balance locks.",
		Buckets:   []float64{.0005, .001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5},
	})
	auditCorruptions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "audit_corruptions_total",
		Help:      "Audit chain corruptions found during verification.",
	}, []string{"kind"})
	approvalDecisions := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "approval_decisions_total",
		Help:      "Approval workflow decisions.",
	}, []string{"decision"})
	reg.MustRegister(movements, rejections, lockWait, auditCorruptions, approvalDecisions)
	return &LedgerMetrics{
		movements:         movements,
		rejections:        rejections,
		lockWait:          lockWait,
		auditCorruptions:  auditCorruptions,
		approvalDecisions: approvalDecisions,
	}
}

// IncMovement counts one recorded movement.
func (m *LedgerMetrics) IncMovement(movementType, status string) {
	if m == nil || m.movements == nil {
		return
	}
	m.movements.WithLabelValues(normalizeLabel(movementType), normalizeLabel(status)).Inc()
}

// IncStockRejection counts one insufficient-stock failure.
func (m *LedgerMetrics) IncStockRejection(operation string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.WithLabelValues(normalizeLabel(operation)).Inc()
}

// ObserveLockWait records how long a caller waited for balance locks.
func (m *LedgerMetrics) ObserveLockWait(d time.Duration) {
	if m == nil || m.lockWait == nil {
		return
	}
	m.lockWait.Observe(d.Seconds())
}

// AddAuditCorruptions counts corruptions of one kind.
func (m *LedgerMetrics) AddAuditCorruptions(kind string, count int) {
	if m == nil || m.auditCorruptions == nil || count <= 0 {
		return
	}
	m.auditCorruptions.WithLabelValues(normalizeLabel(kind)).Add(float64(count))
}

// IncApprovalDecision counts an approve or reject decision.
func (m *LedgerMetrics) IncApprovalDecision(decision string) {
	if m == nil || m.approvalDecisions == nil {
		return
	}
	m.approvalDecisions.WithLabelValues(normalizeLabel(decision)).Inc()
}
