package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func TestLedgerMetricsExportsCollectors(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewLedgerMetrics(reg)
	m.IncMovement("EXIT", "APPROVED")
	m.IncMovement("EXIT", "APPROVED")
	m.IncStockRejection("reservation.create")
	m.ObserveLockWait(5 * time.Millisecond)
	m.AddAuditCorruptions("payload", 3)
	m.IncApprovalDecision("")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchCounterValue(mfs, "stockledger_movements_recorded_total", "type", "EXIT"); err != nil || got != 2 {
		t.Fatalf("expected 2 movements, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockledger_stock_rejections_total", "operation", "reservation.create"); err != nil || got != 1 {
		t.Fatalf("expected 1 rejection, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockledger_audit_corruptions_total", "kind", "payload"); err != nil || got != 3 {
		t.Fatalf("expected 3 corruptions, got %f err=%v", got, err)
	}
	if got, err := fetchCounterValue(mfs, "stockledger_approval_decisions_total", "decision", "unknown"); err != nil || got != 1 {
		t.Fatalf("expected unknown decision label, got %f err=%v", got, err)
	}
	mf := findMetricFamily(mfs, "stockledger_balance_lock_wait_seconds")
	if mf == nil || mf.GetMetric()[0].GetHistogram().GetSampleCount() != 1 {
		t.Fatal("expected one lock wait observation")
	}
}

func TestLedgerMetricsNilSafe(t *testing.T) {
	var m *LedgerMetrics
	m.IncMovement("ENTRY", "APPROVED")
	m.IncStockRejection("exit")
	m.ObserveLockWait(time.Second)
	m.AddAuditCorruptions("linkage", 1)
	m.IncApprovalDecision("approved")

	noop := NewLedgerMetrics(nil)
	noop.IncMovement("ENTRY", "APPROVED")
}
