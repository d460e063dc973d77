package observability

import (
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gatherFamily(t *testing.T, name string) *dto.MetricFamily {
	t.Helper()
	families, err := prometheus.DefaultGatherer.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func labelValue(metric *dto.Metric, name string) string {
	for _, pair := range metric.GetLabel() {
		if pair.GetName() == name {
			return pair.GetValue()
		}
	}
	return ""
}

func counterFor(t *testing.T, family string, labels map[string]string) float64 {
	t.Helper()
	fam := gatherFamily(t, family)
	if fam == nil {
		return 0
	}
	for _, metric := range fam.GetMetric() {
		match := true
		for k, v := range labels {
			if labelValue(metric, k) != v {
				match = false
				break
			}
		}
		if match {
			return metric.GetCounter().GetValue()
		}
	}
	return 0
}

func TestLedgerObserveCountsOutcomes(t *testing.T) {
	m := Ledger()
	before := counterFor(t, "nexum_ledger_operations_total", map[string]string{"operation": "metrics_test", "outcome": "error"})
	m.Observe("metrics_test", time.Millisecond, nil)
	m.Observe("metrics_test", time.Millisecond, errors.New("vault: paused"))

	if got := counterFor(t, "nexum_ledger_operations_total", map[string]string{"operation": "metrics_test", "outcome": "error"}); got != before+1 {
		t.Fatalf("expected one more error outcome, got %v (before %v)", got, before)
	}
	if got := counterFor(t, "nexum_ledger_failures_total", map[string]string{"operation": "metrics_test", "reason": "vault: paused"}); got < 1 {
		t.Fatalf("failure reason not recorded")
	}
}

func TestRecordVaultUtilizationRatio(t *testing.T) {
	m := Ledger()
	m.RecordVault(big.NewInt(1000), big.NewInt(250), big.NewInt(5))
	fam := gatherFamily(t, "nexum_vault_utilization_ratio")
	if fam == nil || len(fam.GetMetric()) != 1 {
		t.Fatalf("utilization gauge missing")
	}
	if got := fam.GetMetric()[0].GetGauge().GetValue(); got != 0.25 {
		t.Fatalf("unexpected utilization %v", got)
	}

	m.RecordVault(big.NewInt(0), big.NewInt(0), nil)
	if got := gatherFamily(t, "nexum_vault_utilization_ratio").GetMetric()[0].GetGauge().GetValue(); got != 0 {
		t.Fatalf("empty vault should report zero utilization, got %v", got)
	}
}

func TestRecordEventSplitsModule(t *testing.T) {
	before := counterFor(t, "nexum_events_published_total", map[string]string{"module": "borrow", "type": "borrow.repaid"})
	Events().RecordEvent("Borrow.Repaid")
	Events().RecordEvent("orphan")
	if got := counterFor(t, "nexum_events_published_total", map[string]string{"module": "borrow", "type": "borrow.repaid"}); got != before+1 {
		t.Fatalf("expected borrow.repaid to increment, got %v", got)
	}
	if got := counterFor(t, "nexum_events_published_total", map[string]string{"module": "unknown", "type": "orphan"}); got < 1 {
		t.Fatalf("expected undotted event under unknown module")
	}
}

func TestNilMetricsAreSafe(t *testing.T) {
	var m *LedgerMetrics
	m.Observe("x", 0, nil)
	m.RecordVault(big.NewInt(1), big.NewInt(1), big.NewInt(1))
	m.RecordLoans(3)
	m.SetPaused("vault", true)
}

func TestBigToFloat(t *testing.T) {
	if bigToFloat(nil) != 0 {
		t.Fatalf("nil should be zero")
	}
	if bigToFloat(big.NewInt(42)) != 42 {
		t.Fatalf("unexpected conversion")
	}
}
