package orchestrator

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the pipeline's Prometheus collectors.
//
// Metrics:
//   - ledgerd_pipeline_messages_total{outcome}
//   - ledgerd_pipeline_stage_duration_seconds{stage}
//   - ledgerd_pipeline_actions_total{function,result}
//   - ledgerd_pipeline_decision_record_failures_total
//   - ledgerd_pipeline_version_conflicts_total
type Metrics struct {
	MessagesTotal          *prometheus.CounterVec
	StageDuration          *prometheus.HistogramVec
	ActionsTotal           *prometheus.CounterVec
	DecisionRecordFailures prometheus.Counter
	VersionConflicts       prometheus.Counter
}

// NewMetrics registers the collectors with reg. Pass a fresh
// prometheus.NewRegistry() in tests to avoid duplicate registration.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		MessagesTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgerd",
				Subsystem: "pipeline",
				Name:      "messages_total",
				Help:      "Total number of processed messages by outcome",
			},
			[]string{"outcome"},
		),
		StageDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: "ledgerd",
				Subsystem: "pipeline",
				Name:      "stage_duration_seconds",
				Help:      "Duration of pipeline stages in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.005, 2, 12), // 5ms to ~10s
			},
			[]string{"stage"},
		),
		ActionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "ledgerd",
				Subsystem: "pipeline",
				Name:      "actions_total",
				Help:      "Total number of executed functions by result",
			},
			[]string{"function", "result"},
		),
		DecisionRecordFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledgerd",
				Subsystem: "pipeline",
				Name:      "decision_record_failures_total",
				Help:      "Total number of audit decision records that could not be saved",
			},
		),
		VersionConflicts: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: "ledgerd",
				Subsystem: "pipeline",
				Name:      "version_conflicts_total",
				Help:      "Total number of context saves rejected by optimistic locking",
			},
		),
	}
}

// nil receivers are allowed so a pipeline may run without metrics.

func (m *Metrics) observeStage(stage Stage, start time.Time) {
	if m == nil {
		return
	}
	m.StageDuration.WithLabelValues(string(stage)).Observe(time.Since(start).Seconds())
}

func (m *Metrics) recordMessage(outcome string) {
	if m == nil {
		return
	}
	m.MessagesTotal.WithLabelValues(outcome).Inc()
}

func (m *Metrics) recordAction(function, result string) {
	if m == nil {
		return
	}
	m.ActionsTotal.WithLabelValues(function, result).Inc()
}

func (m *Metrics) recordDecisionFailure() {
	if m == nil {
		return
	}
	m.DecisionRecordFailures.Inc()
}

func (m *Metrics) recordVersionConflict() {
	if m == nil {
		return
	}
	m.VersionConflicts.Inc()
}
