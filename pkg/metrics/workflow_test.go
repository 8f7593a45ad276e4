package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
)

func TestWorkflowMetricsCountOutcomes(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewWorkflowMetrics(reg)
	m.ObserveAnchor("submitted")
	m.ObserveAnchor("submitted")
	m.ObserveAnchor("deferred")
	m.ObserveGatewayEvent("duplicate")
	m.ObserveConflict("payment")

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	checks := []struct {
		name  string
		label string
		value string
		want  float64
	}{
		{name: "ledger_anchor_outcomes_total", label: "outcome", value: "submitted", want: 2},
		{name: "ledger_anchor_outcomes_total", label: "outcome", value: "deferred", want: 1},
		{name: "gateway_event_outcomes_total", label: "outcome", value: "duplicate", want: 1},
		{name: "status_conflicts_total", label: "axis", value: "payment", want: 1},
	}
	for _, c := range checks {
		got, err := fetchCounterValue(mfs, c.name, c.label, c.value)
		if err != nil {
			t.Fatalf("fetch %s: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%s{%s=%s} expected %f got %f", c.name, c.label, c.value, c.want, got)
		}
	}
}

func TestWorkflowMetricsNilSafe(t *testing.T) {
	var m *WorkflowMetrics
	m.ObserveAnchor("submitted")
	NewWorkflowMetrics(nil).ObserveGatewayEvent("applied")
}
