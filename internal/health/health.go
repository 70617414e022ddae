// Package health aggregates liveness and activity counters for the service.
package health

import (
	"sync"
	"time"

	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

// Aggregator tracks subsystem liveness and anomaly activity. Writers are the
// ingest loop, the pipeline, and the sweeper; readers are the query surface.
type Aggregator struct {
	mu          sync.RWMutex
	ingress     bool
	detector    bool
	persistence bool
	lastAnomaly time.Time
	count       int
}

// New creates an aggregator; the detector is considered live from the start.
func New() *Aggregator {
	return &Aggregator{detector: true}
}

// SetIngressActive records whether the message bus is currently reachable.
func (a *Aggregator) SetIngressActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ingress = active
}

// SetPersistenceActive records whether the durable store is currently reachable.
func (a *Aggregator) SetPersistenceActive(active bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.persistence = active
}

// RecordAnomalies notes a detection batch and the new buffer size.
func (a *Aggregator) RecordAnomalies(at time.Time, bufferLen int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.lastAnomaly = at
	a.count = bufferLen
}

// SetCount refreshes the buffered-anomaly count, typically after a sweep.
func (a *Aggregator) SetCount(n int) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.count = n
}

// Snapshot returns the current health status.
func (a *Aggregator) Snapshot() models.HealthStatus {
	a.mu.RLock()
	defer a.mu.RUnlock()
	status := models.HealthStatus{
		IngressActive:     a.ingress,
		DetectorActive:    a.detector,
		PersistenceActive: a.persistence,
		AnomaliesCount:    a.count,
	}
	if !a.lastAnomaly.IsZero() {
		t := a.lastAnomaly
		status.LastAnomaly = &t
	}
	return status
}
