// Package buffer holds the time-retained in-memory anomaly collection that
// backs the query API.
package buffer

import (
	"sync"
	"time"

	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

// Buffer is a thread-safe, insertion-ordered collection of recent anomalies.
// It has no size cap of its own; the retention sweeper bounds it in time.
type Buffer struct {
	mu        sync.RWMutex
	anomalies []models.Anomaly
}

// New creates an empty buffer.
func New() *Buffer {
	return &Buffer{}
}

// Append adds a detection batch in order.
func (b *Buffer) Append(batch []models.Anomaly) {
	if len(batch) == 0 {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.anomalies = append(b.anomalies, batch...)
}

// Snapshot returns a point-in-time copy in insertion order, most recent last.
func (b *Buffer) Snapshot() []models.Anomaly {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]models.Anomaly, len(b.anomalies))
	copy(out, b.anomalies)
	return out
}

// EvictBefore removes every anomaly with timestamp at or before cutoff and
// returns how many remain. Survivor order is preserved.
func (b *Buffer) EvictBefore(cutoff time.Time) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	kept := b.anomalies[:0]
	for _, a := range b.anomalies {
		if a.Timestamp.After(cutoff) {
			kept = append(kept, a)
		}
	}
	// Release references held past the new length.
	for i := len(kept); i < len(b.anomalies); i++ {
		b.anomalies[i] = models.Anomaly{}
	}
	b.anomalies = kept
	return len(kept)
}

// Len reports the current number of buffered anomalies.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.anomalies)
}
