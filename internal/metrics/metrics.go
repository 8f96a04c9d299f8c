// Package metrics counts the work done by one stage invocation and pushes it
// to a Prometheus Pushgateway.
package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

// Metrics holds the per-invocation collectors.
type Metrics struct {
	reg *prometheus.Registry

	RecordsFlattened prometheus.Counter
	BatchesEmitted   prometheus.Counter
	PointsWritten    prometheus.Counter
	PointsFailed     prometheus.Counter
	ManifestsStaged  *prometheus.CounterVec
	StageDuration    *prometheus.HistogramVec
}

// New creates the collectors on a private registry.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		RecordsFlattened: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sstpoints_records_flattened_total",
			Help: "Grid cells flattened into point records.",
		}),
		BatchesEmitted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sstpoints_batches_emitted_total",
			Help: "Batches emitted to the write stage.",
		}),
		PointsWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sstpoints_points_written_total",
			Help: "Point artifacts uploaded.",
		}),
		PointsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "sstpoints_points_failed_total",
			Help: "Point records skipped after a serialization or upload failure.",
		}),
		ManifestsStaged: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "sstpoints_manifests_staged_total",
			Help: "Manifests uploaded by stage.",
		}, []string{"stage"}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "sstpoints_stage_duration_seconds",
			Help:    "Stage invocation duration.",
			Buckets: prometheus.ExponentialBuckets(0.5, 2, 12),
		}, []string{"stage", "outcome"}),
	}
	m.reg.MustRegister(
		m.RecordsFlattened,
		m.BatchesEmitted,
		m.PointsWritten,
		m.PointsFailed,
		m.ManifestsStaged,
		m.StageDuration,
	)
	return m
}

// Registry returns the registry holding the collectors.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.reg
}

// ObserveStage records how long a stage ran and whether it failed.
func (m *Metrics) ObserveStage(stage string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.StageDuration.WithLabelValues(stage, outcome).Observe(time.Since(start).Seconds())
}

// Push sends the collectors to the Pushgateway at url under the job name,
// grouped by invocation. An empty url disables pushing.
func (m *Metrics) Push(ctx context.Context, url, job, invocationID string) error {
	if url == "" {
		return nil
	}
	err := push.New(url, job).
		Gatherer(m.reg).
		Grouping("invocation", invocationID).
		PushContext(ctx)
	if err != nil {
		return fmt.Errorf("cannot push metrics to %s: %w", url, err)
	}
	return nil
}
