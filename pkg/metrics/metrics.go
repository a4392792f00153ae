// Package metrics defines the Sink seam used throughout the migration
// engine. The default sink is a no-op; NewPrometheusSink wires counters
// and histograms via github.com/prometheus/client_golang for operators
// who want to scrape progress.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Sink receives point-in-time migration events. Implementations must be
// safe for concurrent use: every table worker and every constraint/FK/view
// task reports through the same Sink instance.
type Sink interface {
	// RowsCopied records rows successfully COPYed for one table.
	RowsCopied(table string, n uint64)
	// BatchFlushed records one COPY round-trip and its wall time.
	BatchFlushed(table string, rows int, d time.Duration)
	// ConstraintApplied records the outcome of one constraint statement.
	ConstraintApplied(table, kind string, ok bool)
	// PhaseDuration records how long an orchestrator phase took.
	PhaseDuration(phase string, d time.Duration)
}

// NoopSink discards every event. It is the default Sink so callers never
// need a nil check.
type NoopSink struct{}

func (NoopSink) RowsCopied(string, uint64)               {}
func (NoopSink) BatchFlushed(string, int, time.Duration) {}
func (NoopSink) ConstraintApplied(string, string, bool)  {}
func (NoopSink) PhaseDuration(string, time.Duration)     {}

// PrometheusSink implements Sink on top of a dedicated prometheus.Registry,
// so embedding applications can mount it under their own HTTP handler.
type PrometheusSink struct {
	Registry *prometheus.Registry

	rowsCopied        *prometheus.CounterVec
	batchDuration     *prometheus.HistogramVec
	constraintApplied *prometheus.CounterVec
	phaseDuration     *prometheus.HistogramVec
}

// NewPrometheusSink constructs a PrometheusSink with its own registry and
// registers all metrics.
func NewPrometheusSink() *PrometheusSink {
	reg := prometheus.NewRegistry()
	s := &PrometheusSink{
		Registry: reg,
		rowsCopied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgbridge",
			Name:      "rows_copied_total",
			Help:      "Rows copied from source to target, by table.",
		}, []string{"table"}),
		batchDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgbridge",
			Name:      "batch_copy_seconds",
			Help:      "Duration of one COPY batch submission, by table.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"table"}),
		constraintApplied: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pgbridge",
			Name:      "constraints_applied_total",
			Help:      "Constraint statements applied, by table, kind and outcome.",
		}, []string{"table", "kind", "ok"}),
		phaseDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pgbridge",
			Name:      "phase_seconds",
			Help:      "Duration of one orchestrator phase.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"phase"}),
	}
	reg.MustRegister(s.rowsCopied, s.batchDuration, s.constraintApplied, s.phaseDuration)
	return s
}

func (s *PrometheusSink) RowsCopied(table string, n uint64) {
	s.rowsCopied.WithLabelValues(table).Add(float64(n))
}

func (s *PrometheusSink) BatchFlushed(table string, _ int, d time.Duration) {
	s.batchDuration.WithLabelValues(table).Observe(d.Seconds())
}

func (s *PrometheusSink) ConstraintApplied(table, kind string, ok bool) {
	s.constraintApplied.WithLabelValues(table, kind, boolLabel(ok)).Inc()
}

func (s *PrometheusSink) PhaseDuration(phase string, d time.Duration) {
	s.phaseDuration.WithLabelValues(phase).Observe(d.Seconds())
}

func boolLabel(ok bool) string {
	if ok {
		return "true"
	}
	return "false"
}
