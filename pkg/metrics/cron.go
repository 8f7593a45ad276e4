package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sweep outcomes reported by the cron worker.
const (
	SweepSucceeded = "succeeded"
	SweepFailed    = "failed"
	SweepAborted   = "aborted"
)

// SweepMetrics tracks cron sweeps per job.
type SweepMetrics struct {
	runs        *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lastSuccess *prometheus.GaugeVec
}

func NewSweepMetrics(reg prometheus.Registerer) *SweepMetrics {
	if reg == nil {
		return &SweepMetrics{}
	}
	m := &SweepMetrics{
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "marketplace_sweep_runs_total",
			Help: "Cron sweeps by job and outcome.",
		}, []string{"job", "outcome"}),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "marketplace_sweep_duration_seconds",
			Help:    "Wall time of a single sweep.",
			Buckets: []float64{0.05, 0.25, 1, 5, 15, 60, 300},
		}, []string{"job"}),
		lastSuccess: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "marketplace_sweep_last_success_timestamp_seconds",
			Help: "Unix time the job last finished without error.",
		}, []string{"job"}),
	}
	reg.MustRegister(m.runs, m.duration, m.lastSuccess)
	return m
}

// ObserveSweep records one finished run. Aborted runs never executed, so they
// carry no duration sample.
func (m *SweepMetrics) ObserveSweep(job, outcome string, elapsed time.Duration, finishedAt time.Time) {
	if m == nil || m.runs == nil {
		return
	}
	job = normalizeLabel(job)
	m.runs.WithLabelValues(job, normalizeLabel(outcome)).Inc()
	if outcome == SweepAborted {
		return
	}
	m.duration.WithLabelValues(job).Observe(elapsed.Seconds())
	if outcome == SweepSucceeded {
		m.lastSuccess.WithLabelValues(job).Set(float64(finishedAt.Unix()))
	}
}

func normalizeLabel(value string) string {
	if value == "" {
		return "unknown"
	}
	return value
}
