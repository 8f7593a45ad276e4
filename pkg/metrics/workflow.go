package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// WorkflowMetrics counts outcomes of the background reconcilers.
type WorkflowMetrics struct {
	anchors  *prometheus.CounterVec
	gateway  *prometheus.CounterVec
	conflict *prometheus.CounterVec
}

// NewWorkflowMetrics registers the reconciler counters on the provided registerer.
func NewWorkflowMetrics(reg prometheus.Registerer) *WorkflowMetrics {
	if reg == nil {
		return &WorkflowMetrics{}
	}
	anchors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "ledger_anchor_outcomes_total",
		Help: "Ledger anchoring attempts by outcome.",
	}, []string{"outcome"})
	gateway := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "gateway_event_outcomes_total",
		Help: "Payment gateway callbacks by outcome.",
	}, []string{"outcome"})
	conflict := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "status_conflicts_total",
		Help: "Optimistic status writes that lost a race.",
	}, []string{"axis"})
	reg.MustRegister(anchors, gateway, conflict)
	return &WorkflowMetrics{anchors: anchors, gateway: gateway, conflict: conflict}
}

func (m *WorkflowMetrics) ObserveAnchor(outcome string) {
	if m == nil || m.anchors == nil {
		return
	}
	m.anchors.WithLabelValues(normalizeLabel(outcome)).Inc()
}

func (m *WorkflowMetrics) ObserveGatewayEvent(outcome string) {
	if m == nil || m.gateway == nil {
		return
	}
	m.gateway.WithLabelValues(normalizeLabel(outcome)).Inc()
}

// ObserveConflict counts a precondition miss on the named status axis.
func (m *WorkflowMetrics) ObserveConflict(axis string) {
	if m == nil || m.conflict == nil {
		return
	}
	m.conflict.WithLabelValues(normalizeLabel(axis)).Inc()
}
