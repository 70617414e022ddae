package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/BarirNada00/AquaWatch-Ms/internal/buffer"
	"github.com/BarirNada00/AquaWatch-Ms/internal/detector"
	"github.com/BarirNada00/AquaWatch-Ms/internal/health"
	"github.com/BarirNada00/AquaWatch-Ms/internal/metrics"
	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
	"github.com/BarirNada00/AquaWatch-Ms/internal/storage"
)

type fakeSink struct {
	mu       sync.Mutex
	saved    []models.Anomaly
	failWith error
}

func (f *fakeSink) SaveAnomaly(_ context.Context, a models.Anomaly) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failWith != nil {
		return f.failWith
	}
	f.saved = append(f.saved, a)
	return nil
}

func (f *fakeSink) savedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.saved))
	for i, a := range f.saved {
		ids[i] = a.ID
	}
	return ids
}

type testEnv struct {
	pipeline *Pipeline
	buffer   *buffer.Buffer
	health   *health.Aggregator
	sink     *fakeSink
	snapshot *storage.Snapshot
}

func newTestEnv(t *testing.T, sink Sink) *testEnv {
	t.Helper()
	buf := buffer.New()
	agg := health.New()
	m := metrics.New(prometheus.NewRegistry(), buf.Len)
	snap, err := storage.NewSnapshot(filepath.Join(t.TempDir(), "anomalies.json"))
	if err != nil {
		t.Fatalf("NewSnapshot: %v", err)
	}

	p := New(Config{
		Retention:     2 * time.Minute,
		SweepInterval: 10 * time.Millisecond,
		QueueSize:     8,
	}, detector.New(detector.DefaultConfig()), buf, agg, m, snap, sink, nil)

	env := &testEnv{pipeline: p, buffer: buf, health: agg, snapshot: snap}
	if fs, ok := sink.(*fakeSink); ok {
		env.sink = fs
	}
	return env
}

func readingPayload(sensorID string, temperature float64, ts time.Time) []byte {
	return []byte(fmt.Sprintf(`{
		"sensor_id": %q,
		"timestamp": %q,
		"latitude": 48.85, "longitude": 2.35,
		"temperature": %v, "pressure": 2, "flow": 50,
		"ph": 7, "turbidity": 1, "conductivity": 50
	}`, sensorID, ts.Format(time.RFC3339), temperature))
}

func TestProcessRaw_SpikeEndToEnd(t *testing.T) {
	env := newTestEnv(t, &fakeSink{})
	go env.pipeline.RunPersister()
	t.Cleanup(env.pipeline.Close)

	n, err := env.pipeline.ProcessRaw(readingPayload("s1", 40, time.Now()))
	if err != nil {
		t.Fatalf("ProcessRaw: %v", err)
	}
	if n != 1 {
		t.Fatalf("got %d anomalies, want 1", n)
	}

	snap := env.buffer.Snapshot()
	if len(snap) != 1 {
		t.Fatalf("buffer holds %d anomalies, want 1", len(snap))
	}
	a := snap[0]
	if a.Type != models.TypeSpike || a.Parameter != "temperature" || a.Value != 40 {
		t.Errorf("unexpected anomaly: %+v", a)
	}
	if a.ID == "" {
		t.Error("anomaly reached the buffer without an ID")
	}

	status := env.health.Snapshot()
	if status.AnomaliesCount != 1 {
		t.Errorf("health count %d, want 1", status.AnomaliesCount)
	}
	if status.LastAnomaly == nil {
		t.Error("last-anomaly timestamp not recorded")
	}

	// The snapshot document mirrors the buffer.
	fromDisk, err := env.snapshot.Load()
	if err != nil {
		t.Fatalf("snapshot load: %v", err)
	}
	if len(fromDisk) != 1 || fromDisk[0].ID != a.ID {
		t.Errorf("snapshot does not mirror buffer: %+v", fromDisk)
	}
}

func TestProcessRaw_RejectsInvalid(t *testing.T) {
	env := newTestEnv(t, nil)

	if _, err := env.pipeline.ProcessRaw([]byte(`not json`)); !errors.Is(err, models.ErrValidation) {
		t.Errorf("malformed payload: got %v, want ErrValidation", err)
	}
	if _, err := env.pipeline.ProcessRaw([]byte(`{"sensor_id":"s1"}`)); !errors.Is(err, models.ErrValidation) {
		t.Errorf("incomplete payload: got %v, want ErrValidation", err)
	}
	if env.buffer.Len() != 0 {
		t.Errorf("rejected readings reached the buffer: %d", env.buffer.Len())
	}
}

func TestPersister_SavesAndDrains(t *testing.T) {
	sink := &fakeSink{}
	env := newTestEnv(t, sink)
	go env.pipeline.RunPersister()

	base := time.Now()
	env.pipeline.Process(mustNormalize(t, readingPayload("s1", 40, base)))
	env.pipeline.Process(mustNormalize(t, readingPayload("s1", 41, base.Add(time.Second))))

	// Close waits for the queue to drain, so every save lands before this
	// returns.
	env.pipeline.Close()

	ids := sink.savedIDs()
	if len(ids) != 2 {
		t.Fatalf("persisted %d anomalies, want 2", len(ids))
	}
	bufIDs := env.buffer.Snapshot()
	if ids[0] != bufIDs[0].ID || ids[1] != bufIDs[1].ID {
		t.Error("persistence order differs from detection order")
	}

	status := env.health.Snapshot()
	if !status.PersistenceActive {
		t.Error("persistence flag must be active after successful writes")
	}
}

func TestPersister_FailureNeverBlocksDetection(t *testing.T) {
	sink := &fakeSink{failWith: errors.New("connection refused")}
	env := newTestEnv(t, sink)
	go env.pipeline.RunPersister()

	n, err := env.pipeline.ProcessRaw(readingPayload("s1", 40, time.Now()))
	if err != nil || n != 1 {
		t.Fatalf("ProcessRaw: n=%d err=%v", n, err)
	}
	env.pipeline.Close()

	// The anomaly stays queryable even though the write failed.
	if env.buffer.Len() != 1 {
		t.Errorf("buffer holds %d anomalies, want 1", env.buffer.Len())
	}
	if env.health.Snapshot().PersistenceActive {
		t.Error("persistence flag must drop after a failed write")
	}
}

func TestDegradedMode_NilSink(t *testing.T) {
	env := newTestEnv(t, nil)
	go env.pipeline.RunPersister()
	t.Cleanup(env.pipeline.Close)

	n, err := env.pipeline.ProcessRaw(readingPayload("s1", 40, time.Now()))
	if err != nil || n != 1 {
		t.Fatalf("ProcessRaw: n=%d err=%v", n, err)
	}
	if env.buffer.Len() != 1 {
		t.Errorf("buffer holds %d anomalies, want 1", env.buffer.Len())
	}
	if env.health.Snapshot().PersistenceActive {
		t.Error("persistence flag must stay inactive without a store")
	}
}

func TestProcess_ConcurrentBatchesMirrorSnapshot(t *testing.T) {
	env := newTestEnv(t, nil)
	base := time.Now()

	// Readings for distinct sensors are processed in parallel; each batch
	// rewrites the snapshot, and the final document must equal the buffer.
	perSensor := make(map[string][]models.SensorReading)
	for _, sensor := range []string{"s1", "s2", "s3", "s4"} {
		for i := 0; i < 50; i++ {
			ts := base.Add(time.Duration(i) * time.Second)
			perSensor[sensor] = append(perSensor[sensor], mustNormalize(t, readingPayload(sensor, 40, ts)))
		}
	}

	var wg sync.WaitGroup
	for _, readings := range perSensor {
		wg.Add(1)
		go func(readings []models.SensorReading) {
			defer wg.Done()
			for _, r := range readings {
				env.pipeline.Process(r)
			}
		}(readings)
	}
	wg.Wait()

	if env.buffer.Len() != 200 {
		t.Fatalf("buffer holds %d anomalies, want 200", env.buffer.Len())
	}
	fromDisk, err := env.snapshot.Load()
	if err != nil {
		t.Fatalf("snapshot load: %v", err)
	}
	if len(fromDisk) != 200 {
		t.Errorf("snapshot holds %d anomalies, want 200 (buffer state lost)", len(fromDisk))
	}
}

func TestSweeper_EvictsOldAnomalies(t *testing.T) {
	env := newTestEnv(t, nil)

	old := models.Anomaly{ID: "old", Type: models.TypeSpike, Timestamp: time.Now().UTC().Add(-10 * time.Minute), SensorID: "s1", Parameter: "ph", Value: 9}
	fresh := models.Anomaly{ID: "fresh", Type: models.TypeSpike, Timestamp: time.Now().UTC(), SensorID: "s1", Parameter: "ph", Value: 9}
	env.buffer.Append([]models.Anomaly{old, fresh})
	env.health.SetCount(env.buffer.Len())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		env.pipeline.RunSweeper(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for env.buffer.Len() != 1 {
		select {
		case <-deadline:
			t.Fatal("sweeper did not evict the old anomaly in time")
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()
	<-done

	snap := env.buffer.Snapshot()
	if len(snap) != 1 || snap[0].ID != "fresh" {
		t.Fatalf("unexpected survivors: %+v", snap)
	}
	if env.health.Snapshot().AnomaliesCount != 1 {
		t.Errorf("health count %d, want 1", env.health.Snapshot().AnomaliesCount)
	}
}

func TestWarmStart(t *testing.T) {
	env := newTestEnv(t, nil)

	old := models.Anomaly{ID: "stale", Type: models.TypeSpike, Timestamp: time.Now().UTC().Add(-time.Hour), SensorID: "s1", Parameter: "ph", Value: 9}
	fresh := models.Anomaly{ID: "fresh", Type: models.TypeSpike, Timestamp: time.Now().UTC(), SensorID: "s1", Parameter: "ph", Value: 9}
	if err := env.snapshot.Write([]models.Anomaly{old, fresh}); err != nil {
		t.Fatalf("snapshot write: %v", err)
	}

	env.pipeline.WarmStart()
	snap := env.buffer.Snapshot()
	if len(snap) != 1 || snap[0].ID != "fresh" {
		t.Fatalf("warm start restored %+v, want only fresh", snap)
	}
}

func mustNormalize(t *testing.T, payload []byte) models.SensorReading {
	t.Helper()
	var raw models.RawReading
	if err := json.Unmarshal(payload, &raw); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	reading, err := raw.Normalize()
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	return reading
}
