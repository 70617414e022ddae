// Package metrics registers the service's Prometheus collectors.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const prefix = "aquawatch_detector_"

// Metrics bundles the service counters. A single instance is created at
// startup and shared by the pipeline and the ingress adapters.
type Metrics struct {
	ReadingsProcessed prometheus.Counter
	ReadingsRejected  prometheus.Counter
	Anomalies         *prometheus.CounterVec
	PersistFailures   prometheus.Counter
	PersistDropped    prometheus.Counter
}

// New creates and registers the collectors. bufferLen feeds a live gauge of
// the current buffer size.
func New(reg prometheus.Registerer, bufferLen func() int) *Metrics {
	m := &Metrics{
		ReadingsProcessed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "readings_processed_total",
			Help: "Sensor readings accepted by the pipeline",
		}),
		ReadingsRejected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "readings_rejected_total",
			Help: "Sensor readings rejected at the ingress boundary",
		}),
		Anomalies: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: prefix + "anomalies_total",
			Help: "Detected anomalies by type",
		}, []string{"type"}),
		PersistFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "persist_failures_total",
			Help: "Durable-store writes that failed and were dropped",
		}),
		PersistDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: prefix + "persist_queue_dropped_total",
			Help: "Anomalies dropped because the persistence queue was full",
		}),
	}
	reg.MustRegister(
		m.ReadingsProcessed,
		m.ReadingsRejected,
		m.Anomalies,
		m.PersistFailures,
		m.PersistDropped,
		prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: prefix + "buffered_anomalies",
			Help: "Anomalies currently held in the in-memory buffer",
		}, func() float64 { return float64(bufferLen()) }),
	)
	return m
}
