// Package telemetry exposes the poller's own health as Prometheus metrics.
// Every method is safe on a nil *Metrics so components can run without it.
package telemetry

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Cycle and export results.
const (
	ResultOK      = "ok"
	ResultError   = "error"
	ResultEmpty   = "empty"
	ResultDropped = "dropped"
)

// Metrics holds the self-observability instruments on a private registry.
type Metrics struct {
	reg *prometheus.Registry

	cycles          *prometheus.CounterVec
	cycleDuration   *prometheus.HistogramVec
	activeTasks     prometheus.Gauge
	devices         *prometheus.GaugeVec
	exportBatches   *prometheus.CounterVec
	exportAttempts  *prometheus.CounterVec
	exportedMetrics *prometheus.CounterVec
}

// New registers the instruments. collectorID is attached to every series.
func New(collectorID string) *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	constLabels := prometheus.Labels{"collector_id": collectorID}
	f := promauto.With(reg)

	return &Metrics{
		reg: reg,
		cycles: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "netpaca_collection_cycles_total",
			Help:        "Collection cycles by collector and result",
			ConstLabels: constLabels,
		}, []string{"collector", "result"}),
		cycleDuration: f.NewHistogramVec(prometheus.HistogramOpts{
			Name:        "netpaca_collection_duration_seconds",
			Help:        "Time spent in one collection cycle",
			Buckets:     prometheus.DefBuckets,
			ConstLabels: constLabels,
		}, []string{"collector"}),
		activeTasks: f.NewGauge(prometheus.GaugeOpts{
			Name:        "netpaca_active_tasks",
			Help:        "Collector tasks currently scheduled",
			ConstLabels: constLabels,
		}),
		devices: f.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "netpaca_devices",
			Help:        "Inventory devices by setup state",
			ConstLabels: constLabels,
		}, []string{"state"}),
		exportBatches: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "netpaca_export_batches_total",
			Help:        "Export batches by exporter and result",
			ConstLabels: constLabels,
		}, []string{"exporter", "result"}),
		exportAttempts: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "netpaca_export_attempts_total",
			Help:        "Delivery attempts, retries included",
			ConstLabels: constLabels,
		}, []string{"exporter"}),
		exportedMetrics: f.NewCounterVec(prometheus.CounterOpts{
			Name:        "netpaca_exported_metrics_total",
			Help:        "Metrics delivered to the exporter",
			ConstLabels: constLabels,
		}, []string{"exporter"}),
	}
}

// Registry returns the registry the instruments live on.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// CycleDone records one finished collection cycle.
func (m *Metrics) CycleDone(collector, result string, d time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(collector, result).Inc()
	m.cycleDuration.WithLabelValues(collector).Observe(d.Seconds())
}

// TaskStarted and TaskStopped track the active task gauge.
func (m *Metrics) TaskStarted() {
	if m != nil {
		m.activeTasks.Inc()
	}
}

func (m *Metrics) TaskStopped() {
	if m != nil {
		m.activeTasks.Dec()
	}
}

// SetDevices records the setup outcome of the inventory.
func (m *Metrics) SetDevices(ready, failed int) {
	if m == nil {
		return
	}
	m.devices.WithLabelValues("ready").Set(float64(ready))
	m.devices.WithLabelValues("failed").Set(float64(failed))
}

// ExportAttempt counts one delivery attempt.
func (m *Metrics) ExportAttempt(exporter string) {
	if m != nil {
		m.exportAttempts.WithLabelValues(exporter).Inc()
	}
}

// ExportDone records the final outcome of one batch of n metrics.
func (m *Metrics) ExportDone(exporter, result string, n int) {
	if m == nil {
		return
	}
	m.exportBatches.WithLabelValues(exporter, result).Inc()
	if result == ResultOK {
		m.exportedMetrics.WithLabelValues(exporter).Add(float64(n))
	}
}
