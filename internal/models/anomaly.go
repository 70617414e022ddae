package models

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Anomaly types.
const (
	TypeSpike   = "SPIKE"
	TypeDrift   = "DRIFT"
	TypeDropout = "DROPOUT"
)

// ParameterAll is the parameter name used when an anomaly concerns the whole
// sensor rather than one measurement, as with dropouts.
const ParameterAll = "all"

// Anomaly is one detected abnormal condition. The id doubles as the primary
// key in the durable store and must never be empty once the anomaly leaves
// the detector.
type Anomaly struct {
	ID              string    `json:"id"`
	Type            string    `json:"type"`
	Timestamp       time.Time `json:"timestamp"`
	SensorID        string    `json:"sensor_id"`
	Parameter       string    `json:"parameter"`
	Value           float64   `json:"value"`
	DurationSeconds *float64  `json:"duration_seconds,omitempty"`
	Message         string    `json:"message"`
	Latitude        *float64  `json:"latitude"`
	Longitude       *float64  `json:"longitude"`
}

// EnsureID assigns a fresh UUID if the anomaly has none.
func (a *Anomaly) EnsureID() {
	if a.ID == "" {
		a.ID = uuid.New().String()
	}
}

// Validate checks anomaly field constraints.
func (a *Anomaly) Validate() error {
	if a.ID == "" {
		return errors.New("anomaly ID must not be empty")
	}
	switch a.Type {
	case TypeSpike, TypeDrift, TypeDropout:
	default:
		return errors.New("anomaly type must be SPIKE, DRIFT, or DROPOUT")
	}
	if a.Timestamp.IsZero() {
		return errors.New("anomaly timestamp must not be zero")
	}
	if a.SensorID == "" {
		return errors.New("anomaly sensor ID must not be empty")
	}
	if a.Parameter == "" {
		return errors.New("anomaly parameter must not be empty")
	}
	return nil
}
