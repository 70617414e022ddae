// Package detector classifies sensor readings into spike, drift, and dropout
// anomalies, keeping per-sensor detection state across calls.
package detector

import (
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

// Config holds detection thresholds and windows.
type Config struct {
	// SpikeThresholds maps a parameter name to its upper bound. Only the
	// high bound is checked; low bounds are configured platform-wide but
	// deliberately not evaluated here.
	SpikeThresholds map[string]float64
	// DriftWindow is the number of consecutive values kept per parameter.
	DriftWindow int
	// DriftDelta is the max-min spread over a full window that triggers DRIFT.
	DriftDelta float64
	// DropoutAfter is the largest tolerated gap between consecutive readings.
	DropoutAfter time.Duration
}

// DefaultConfig returns the production detection parameters.
func DefaultConfig() Config {
	return Config{
		SpikeThresholds: map[string]float64{
			"temperature":  35.0,
			"pressure":     3.0,
			"flow":         100.0,
			"ph":           8.0,
			"turbidity":    5.0,
			"conductivity": 200.0,
		},
		DriftWindow:  8,
		DriftDelta:   2.0,
		DropoutAfter: 10 * time.Second,
	}
}

// sensorState is the detection memory for one sensor. Access is serialized
// by its mutex: two readings for the same sensor are never processed
// concurrently, while distinct sensors proceed in parallel.
type sensorState struct {
	mu       sync.Mutex
	windows  map[string]*window
	lastSeen time.Time
}

// Detector is a stateful per-sensor anomaly classifier.
type Detector struct {
	config Config

	mu     sync.RWMutex
	states map[string]*sensorState

	// now is stubbed in tests; anomalies are stamped with detection time.
	now func() time.Time
}

// New creates a detector with the given configuration.
func New(config Config) *Detector {
	return &Detector{
		config: config,
		states: make(map[string]*sensorState),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (d *Detector) getOrCreateState(sensorID string) *sensorState {
	d.mu.RLock()
	state, exists := d.states[sensorID]
	d.mu.RUnlock()
	if exists {
		return state
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if state, exists = d.states[sensorID]; exists {
		return state
	}
	state = &sensorState{windows: make(map[string]*window)}
	d.states[sensorID] = state
	return state
}

// Detect runs the spike, drift, and dropout checks against one reading and
// returns the detected anomalies in that fixed order (spikes and drifts in
// parameter table order). Every returned anomaly carries a non-empty ID.
func (d *Detector) Detect(reading models.SensorReading) []models.Anomaly {
	state := d.getOrCreateState(reading.SensorID)
	state.mu.Lock()
	defer state.mu.Unlock()

	now := d.now()
	lat, lon := reading.Latitude, reading.Longitude
	var anomalies []models.Anomaly

	// Spikes: one anomaly per parameter above its high threshold.
	for _, param := range models.ParameterOrder {
		limit, ok := d.config.SpikeThresholds[param]
		if !ok {
			continue
		}
		value := reading.Parameter(param)
		if value > limit {
			anomalies = append(anomalies, models.Anomaly{
				Type:      models.TypeSpike,
				Timestamp: now,
				SensorID:  reading.SensorID,
				Parameter: param,
				Value:     value,
				Message:   fmt.Sprintf("%s spike detected", capitalize(param)),
				Latitude:  &lat,
				Longitude: &lon,
			})
		}
	}

	// Drifts: the window slides and is never reset, so the same drift keeps
	// firing while the spread stays above the delta.
	for _, param := range models.ParameterOrder {
		w, ok := state.windows[param]
		if !ok {
			w = newWindow(d.config.DriftWindow)
			state.windows[param] = w
		}
		value := reading.Parameter(param)
		w.push(value)
		if w.full() && w.spread() > d.config.DriftDelta {
			anomalies = append(anomalies, models.Anomaly{
				Type:      models.TypeDrift,
				Timestamp: now,
				SensorID:  reading.SensorID,
				Parameter: param,
				Value:     value,
				Message:   fmt.Sprintf("%s drift detected", capitalize(param)),
				Latitude:  &lat,
				Longitude: &lon,
			})
		}
	}

	// Dropout: one anomaly when the gap since the previous reading exceeds
	// the threshold. The last-seen timestamp is updated unconditionally.
	if !state.lastSeen.IsZero() {
		gap := reading.Timestamp.Sub(state.lastSeen).Seconds()
		if gap > d.config.DropoutAfter.Seconds() {
			duration := gap
			anomalies = append(anomalies, models.Anomaly{
				Type:            models.TypeDropout,
				Timestamp:       now,
				SensorID:        reading.SensorID,
				Parameter:       models.ParameterAll,
				Value:           0,
				DurationSeconds: &duration,
				Message:         fmt.Sprintf("Sensor inactive for %.1f seconds", gap),
				Latitude:        &lat,
				Longitude:       &lon,
			})
		}
	}
	state.lastSeen = reading.Timestamp

	for i := range anomalies {
		anomalies[i].EnsureID()
	}
	return anomalies
}

// SensorCount reports how many distinct sensors the detector has seen.
func (d *Detector) SensorCount() int {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return len(d.states)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
