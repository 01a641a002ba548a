package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestObserveGeneration(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveGeneration("completed")
	m.ObserveGeneration("completed")
	m.ObserveGeneration("upload_failed")

	if got := testutil.ToFloat64(m.Generations.WithLabelValues("completed")); got != 2 {
		t.Fatalf("expected 2 completed generations got %v", got)
	}
	if got := testutil.ToFloat64(m.Generations.WithLabelValues("upload_failed")); got != 1 {
		t.Fatalf("expected 1 upload failure got %v", got)
	}
}

func TestObserveCodeExchangeCountsTimeouts(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.ObserveCodeExchange("success", true)
	m.ObserveCodeExchange("success", false)

	if got := testutil.ToFloat64(m.CookieWaitLapse); got != 1 {
		t.Fatalf("expected 1 cookie wait timeout got %v", got)
	}
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveGeneration("completed")
	m.ObserveGuardDecision("allow")
	m.ObserveCodeExchange("failure", true)
	m.ObserveAuthEvent("SIGNED_IN")
}
