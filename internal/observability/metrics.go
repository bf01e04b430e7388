// Package observability holds the Prometheus metrics of the susceptibility
// pipeline.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "landslide"

// Run outcomes used as the runs_total label.
const (
	OutcomeComplete = "complete"
	OutcomeFailed   = "failed"
)

// Metrics holds the Prometheus counters and histograms for pipeline runs.
type Metrics struct {
	RunsTotal   *prometheus.CounterVec // labels: outcome={complete,failed}
	RunDuration prometheus.Histogram

	// Per-stage timings.
	StageDuration *prometheus.HistogramVec // labels: stage

	CellsProcessed prometheus.Counter
	NodataCells    prometheus.Counter
}

// NewMetrics creates and registers all pipeline metrics with the default Prometheus registry.
func NewMetrics() *Metrics {
	m := &Metrics{
		RunsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Susceptibility runs by outcome.",
		}, []string{"outcome"}),
		RunDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a complete susceptibility run.",
			Buckets:   []float64{0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 300},
		}),
		StageDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Wall time of each pipeline stage.",
			Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 2.5, 5, 10, 30},
		}, []string{"stage"}),
		CellsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cells_processed_total",
			Help:      "AOI cells that received a susceptibility value.",
		}),
		NodataCells: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "nodata_cells_total",
			Help:      "AOI cells left as nodata because an input was missing.",
		}),
	}

	prometheus.MustRegister(
		m.RunsTotal,
		m.RunDuration,
		m.StageDuration,
		m.CellsProcessed,
		m.NodataCells,
	)

	return m
}

// NewMetricsForTesting creates Metrics without registering them, so tests
// can build as many as they like.
func NewMetricsForTesting() *Metrics {
	return &Metrics{
		RunsTotal:      prometheus.NewCounterVec(prometheus.CounterOpts{Namespace: namespace, Name: "runs_total"}, []string{"outcome"}),
		RunDuration:    prometheus.NewHistogram(prometheus.HistogramOpts{Namespace: namespace, Name: "run_duration_seconds"}),
		StageDuration:  prometheus.NewHistogramVec(prometheus.HistogramOpts{Namespace: namespace, Name: "stage_duration_seconds"}, []string{"stage"}),
		CellsProcessed: prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "cells_processed_total"}),
		NodataCells:    prometheus.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "nodata_cells_total"}),
	}
}
