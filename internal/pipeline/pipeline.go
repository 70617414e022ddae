// Package pipeline runs readings through normalization and detection, fans
// detected anomalies out to the buffer, the durable sink, the snapshot, and
// the notifier, and hosts the retention sweeper.
package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/BarirNada00/AquaWatch-Ms/internal/buffer"
	"github.com/BarirNada00/AquaWatch-Ms/internal/detector"
	"github.com/BarirNada00/AquaWatch-Ms/internal/health"
	"github.com/BarirNada00/AquaWatch-Ms/internal/logger"
	"github.com/BarirNada00/AquaWatch-Ms/internal/metrics"
	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

// Sink is the durable-store write half consumed by the pipeline.
type Sink interface {
	SaveAnomaly(ctx context.Context, a models.Anomaly) error
}

// Notifier pushes a detection batch to an operator channel.
type Notifier interface {
	Notify(anomalies []models.Anomaly) error
}

// SnapshotWriter mirrors the buffer into the local fallback document.
type SnapshotWriter interface {
	Write(anomalies []models.Anomaly) error
	Load() ([]models.Anomaly, error)
}

const persistTimeout = 5 * time.Second

// Config holds pipeline behavior settings.
type Config struct {
	// Retention is how long an anomaly stays in the buffer.
	Retention time.Duration
	// SweepInterval is the period of the retention sweeper.
	SweepInterval time.Duration
	// QueueSize bounds the async persistence queue.
	QueueSize int
}

// Pipeline owns the detection data flow. Detection and buffering never fail
// because of the sink: writes go through a bounded queue and are dropped,
// with a log line and a counter, when the queue is full or the store is down.
type Pipeline struct {
	config   Config
	detector *detector.Detector
	buffer   *buffer.Buffer
	health   *health.Aggregator
	metrics  *metrics.Metrics
	snapshot SnapshotWriter
	sink     Sink
	notifier Notifier

	queueMu sync.RWMutex
	queue   chan models.Anomaly
	closed  bool
	drained chan struct{}

	// snapMu orders the buffer read with the snapshot rewrite, so a slower
	// batch can never publish an older buffer state over a newer one.
	snapMu sync.Mutex

	now func() time.Time
}

// New assembles a pipeline. sink and notifier may be nil: a nil sink means
// buffer-plus-snapshot degraded mode, a nil notifier disables alerts. The
// snapshot is not optional: it is the degraded-mode read path and is written
// on every detection batch.
func New(
	config Config,
	det *detector.Detector,
	buf *buffer.Buffer,
	agg *health.Aggregator,
	m *metrics.Metrics,
	snapshot SnapshotWriter,
	sink Sink,
	notifier Notifier,
) *Pipeline {
	if config.QueueSize < 1 {
		config.QueueSize = 1
	}
	return &Pipeline{
		config:   config,
		detector: det,
		buffer:   buf,
		health:   agg,
		metrics:  m,
		snapshot: snapshot,
		sink:     sink,
		notifier: notifier,
		queue:    make(chan models.Anomaly, config.QueueSize),
		drained:  make(chan struct{}),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// ProcessRaw decodes one wire payload and runs it through the pipeline.
// Returns the number of anomalies detected, or a validation/decoding error.
func (p *Pipeline) ProcessRaw(data []byte) (int, error) {
	var raw models.RawReading
	if err := json.Unmarshal(data, &raw); err != nil {
		p.metrics.ReadingsRejected.Inc()
		return 0, fmt.Errorf("%w: malformed payload: %v", models.ErrValidation, err)
	}
	reading, err := raw.Normalize()
	if err != nil {
		p.metrics.ReadingsRejected.Inc()
		return 0, err
	}
	return p.Process(reading), nil
}

// Process runs one validated reading through detection and fans out the
// resulting anomalies. It never fails: downstream problems are logged and
// absorbed here.
func (p *Pipeline) Process(reading models.SensorReading) int {
	p.metrics.ReadingsProcessed.Inc()

	anomalies := p.detector.Detect(reading)
	if len(anomalies) == 0 {
		return 0
	}

	p.buffer.Append(anomalies)
	p.health.RecordAnomalies(p.now(), p.buffer.Len())
	for _, a := range anomalies {
		p.metrics.Anomalies.WithLabelValues(a.Type).Inc()
		logger.Info("Detected anomaly: type=%s sensor=%s parameter=%s value=%v id=%s",
			a.Type, a.SensorID, a.Parameter, a.Value, a.ID)
	}

	p.snapMu.Lock()
	err := p.snapshot.Write(p.buffer.Snapshot())
	p.snapMu.Unlock()
	if err != nil {
		logger.Error("Failed to write anomaly snapshot: %v", err)
	}

	for _, a := range anomalies {
		p.enqueue(a)
	}

	if p.notifier != nil {
		batch := anomalies
		go func() {
			if err := p.notifier.Notify(batch); err != nil {
				logger.Warn("Failed to send anomaly notification: %v", err)
			}
		}()
	}

	return len(anomalies)
}

// enqueue hands an anomaly to the persister without ever blocking detection.
func (p *Pipeline) enqueue(a models.Anomaly) {
	if p.sink == nil {
		return
	}
	p.queueMu.RLock()
	defer p.queueMu.RUnlock()
	if p.closed {
		return
	}
	select {
	case p.queue <- a:
	default:
		p.metrics.PersistDropped.Inc()
		logger.Warn("Persistence queue full, dropping anomaly %s", a.ID)
	}
}

// RunPersister drains the queue into the durable store. Individual failures
// are logged and dropped; they never propagate to the detection path. It
// returns once Close has been called and the queue is fully drained.
func (p *Pipeline) RunPersister() {
	defer close(p.drained)
	if p.sink == nil {
		// Degraded mode: nothing is ever queued.
		return
	}
	for a := range p.queue {
		ctx, cancel := context.WithTimeout(context.Background(), persistTimeout)
		err := p.sink.SaveAnomaly(ctx, a)
		cancel()
		if err != nil {
			p.metrics.PersistFailures.Inc()
			p.health.SetPersistenceActive(false)
			logger.Error("Failed to persist anomaly %s: %v", a.ID, err)
			continue
		}
		p.health.SetPersistenceActive(true)
		logger.Debug("Anomaly saved: %s", a.ID)
	}
}

// Close stops accepting persistence work and waits for the queue to drain.
// Call it after the ingress adapters have stopped and before the store is
// closed, so no write races the connection-pool teardown.
func (p *Pipeline) Close() {
	p.queueMu.Lock()
	if p.closed {
		p.queueMu.Unlock()
		<-p.drained
		return
	}
	p.closed = true
	close(p.queue)
	p.queueMu.Unlock()
	<-p.drained
}

// RunSweeper evicts anomalies older than the retention window on a fixed
// period until ctx is cancelled.
func (p *Pipeline) RunSweeper(ctx context.Context) {
	ticker := time.NewTicker(p.config.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			cutoff := p.now().Add(-p.config.Retention)
			remaining := p.buffer.EvictBefore(cutoff)
			p.health.SetCount(remaining)
			logger.Debug("Retention sweep complete: %d anomalies remain", remaining)
		}
	}
}

// WarmStart rehydrates the buffer from the snapshot document, skipping
// entries already past the retention window.
func (p *Pipeline) WarmStart() {
	saved, err := p.snapshot.Load()
	if err != nil {
		logger.Warn("Failed to load anomaly snapshot: %v", err)
		return
	}
	if len(saved) == 0 {
		return
	}
	cutoff := p.now().Add(-p.config.Retention)
	fresh := saved[:0]
	for _, a := range saved {
		if a.Timestamp.After(cutoff) {
			fresh = append(fresh, a)
		}
	}
	if len(fresh) == 0 {
		return
	}
	p.buffer.Append(fresh)
	p.health.SetCount(p.buffer.Len())
	logger.Info("Restored %d anomalies from snapshot", len(fresh))
}
