// Package metrics exposes Prometheus instrumentation for the merge agent.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/weirlab/weir/pkg/bridge"
)

const prefix = "weir_"

// Metrics holds the agent's Prometheus collectors.
type Metrics struct {
	registry *prometheus.Registry

	MergedRecords  prometheus.Counter
	EmittedBatches prometheus.Counter
	ForcedFlushes  prometheus.Counter
	PendingTicks   prometheus.Counter
	ShipErrors     prometheus.Counter

	ActiveSources    prometheus.Gauge
	BufferedRecords  prometheus.Gauge
	MaxSpreadSeconds prometheus.Gauge

	prev bridge.Stats
}

// New creates and registers the full collector set on a fresh registry.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		MergedRecords: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "merged_records_total",
			Help: "total records emitted by the merger",
		}),
		EmittedBatches: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "emitted_batches_total",
			Help: "total merged batches shipped downstream",
		}),
		ForcedFlushes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "forced_flushes_total",
			Help: "flushes forced by the latency bound",
		}),
		PendingTicks: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "pending_ticks_total",
			Help: "ticks in which every source stalled",
		}),
		ShipErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "ship_errors_total",
			Help: "failed shipment attempts",
		}),
		ActiveSources: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "active_sources",
			Help: "sources not yet exhausted",
		}),
		BufferedRecords: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "buffered_records",
			Help: "records currently held back in source buffers",
		}),
		MaxSpreadSeconds: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: prefix + "max_spread_seconds",
			Help: "widest buffered time window across sources",
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.MergedRecords,
		m.EmittedBatches,
		m.ForcedFlushes,
		m.PendingTicks,
		m.ShipErrors,
		m.ActiveSources,
		m.BufferedRecords,
		m.MaxSpreadSeconds,
	)
	return m
}

// ObserveBridge folds a bridge stats snapshot into the collectors. Must be
// called from the agent loop, never concurrently.
func (m *Metrics) ObserveBridge(s bridge.Stats) {
	if d := s.ForcedFlushes - m.prev.ForcedFlushes; d > 0 {
		m.ForcedFlushes.Add(float64(d))
	}
	if d := s.PendingTicks - m.prev.PendingTicks; d > 0 {
		m.PendingTicks.Add(float64(d))
	}
	m.prev = s

	m.ActiveSources.Set(float64(s.ActiveSources))
	m.BufferedRecords.Set(float64(s.BufferedRecords))
	m.MaxSpreadSeconds.Set(s.MaxSpread.Seconds())
}

// Handler returns the scrape handler for the registry.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Serve exposes /metrics on addr until the server is shut down. The
// returned server is already listening when Serve returns.
func (m *Metrics) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		_ = srv.ListenAndServe()
	}()
	return srv
}
