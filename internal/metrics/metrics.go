// Package metrics exposes Prometheus collectors for validation and load runs.
package metrics

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "tracebase"

// Recorder publishes pipeline counters and stage timings. A nil *Recorder is
// valid and records nothing.
type Recorder struct {
	rows       *prometheus.CounterVec
	exceptions *prometheus.CounterVec
	stages     *prometheus.HistogramVec
	operations *prometheus.HistogramVec
}

// NewRecorder creates the collectors and registers them on reg. A nil reg
// leaves the collectors unregistered, which is convenient in tests.
func NewRecorder(reg prometheus.Registerer) (*Recorder, error) {
	r := &Recorder{
		rows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rows_total",
			Help:      "Sheet rows processed, by sheet and outcome.",
		}, []string{"sheet", "outcome"}),
		exceptions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "exceptions_total",
			Help:      "Exceptions recorded, by class and severity.",
		}, []string{"class", "severity"}),
		stages: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of one loader stage.",
			Buckets:   prometheus.ExponentialBuckets(0.001, 4, 8),
		}, []string{"stage"}),
		operations: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "operation_duration_seconds",
			Help:      "Duration of service operations, by operation and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
	}
	if reg != nil {
		for _, c := range []prometheus.Collector{r.rows, r.exceptions, r.stages, r.operations} {
			if err := reg.Register(c); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

// Row counts one processed row. outcome is "loaded", "skipped" or "failed".
func (r *Recorder) Row(sheet, outcome string) {
	if r == nil {
		return
	}
	r.rows.WithLabelValues(sheet, outcome).Inc()
}

// Exception counts one recorded exception.
func (r *Recorder) Exception(class, severity string) {
	if r == nil {
		return
	}
	r.exceptions.WithLabelValues(class, severity).Inc()
}

// Stage observes the duration of one loader stage.
func (r *Recorder) Stage(stage string, d time.Duration) {
	if r == nil {
		return
	}
	r.stages.WithLabelValues(stage).Observe(d.Seconds())
}

// Observe records a service operation outcome.
func (r *Recorder) Observe(_ context.Context, operation string, success bool, d time.Duration) {
	if r == nil || operation == "" {
		return
	}
	status := "error"
	if success {
		status = "success"
	}
	r.operations.WithLabelValues(operation, status).Observe(d.Seconds())
}
