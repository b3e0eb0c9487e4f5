package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "kpi"

// Collector owns the service registry and the KPI load metrics.
type Collector struct {
	registry *prometheus.Registry

	LoadsTotal      *prometheus.CounterVec
	LoadDuration    *prometheus.HistogramVec
	CellsLoaded     *prometheus.CounterVec
	LiveSubscribers *prometheus.GaugeVec
	RefreshRuns     *prometheus.CounterVec
}

// NewCollector creates a new metrics collector
func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	c := &Collector{
		registry: registry,
		LoadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "loads_total",
				Help:      "Total number of KPI data loads by outcome",
			},
			[]string{"kpi", "outcome"},
		),
		LoadDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "load_duration_seconds",
				Help:      "KPI data load duration in seconds, all ranges included",
				Buckets:   []float64{0.005, 0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
			},
			[]string{"kpi"},
		),
		CellsLoaded: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cells_loaded_total",
				Help:      "Total number of dataset cells produced",
			},
			[]string{"kpi"},
		),
		LiveSubscribers: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "live_subscribers",
				Help:      "Number of websocket subscribers per KPI",
			},
			[]string{"kpi"},
		),
		RefreshRuns: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "refresh_runs_total",
				Help:      "Total number of scheduled KPI refreshes by outcome",
			},
			[]string{"kpi", "outcome"},
		),
	}

	registry.MustRegister(
		c.LoadsTotal,
		c.LoadDuration,
		c.CellsLoaded,
		c.LiveSubscribers,
		c.RefreshRuns,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return c
}

// ObserveLoad records one finished load.
func (c *Collector) ObserveLoad(kpiID string, took time.Duration, cells int, err error) {
	outcome := "success"
	if err != nil {
		outcome = "error"
	}
	c.LoadsTotal.WithLabelValues(kpiID, outcome).Inc()
	c.LoadDuration.WithLabelValues(kpiID).Observe(took.Seconds())
	if err == nil {
		c.CellsLoaded.WithLabelValues(kpiID).Add(float64(cells))
	}
}

func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler exposes the registry in the Prometheus text format.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}
