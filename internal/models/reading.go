// Package models defines the core domain entities: sensor readings, anomalies,
// and the service health status.
package models

import (
	"errors"
	"fmt"
	"time"
)

// ErrValidation marks a reading that was rejected at the ingress boundary.
// Callers test for it with errors.Is.
var ErrValidation = errors.New("invalid reading")

// ParameterOrder fixes the order in which the six water-quality parameters
// are evaluated and reported. Detection output depends on this order, so it
// is a single shared table rather than map iteration.
var ParameterOrder = []string{
	"temperature",
	"pressure",
	"flow",
	"ph",
	"turbidity",
	"conductivity",
}

// SensorReading is one validated, timestamped observation from one sensor.
// Instances are produced by RawReading.Normalize and never mutated afterwards.
type SensorReading struct {
	SensorID     string    `json:"sensor_id"`
	Timestamp    time.Time `json:"timestamp"`
	Latitude     float64   `json:"latitude"`
	Longitude    float64   `json:"longitude"`
	Temperature  float64   `json:"temperature"`
	Pressure     float64   `json:"pressure"`
	Flow         float64   `json:"flow"`
	PH           float64   `json:"ph"`
	Turbidity    float64   `json:"turbidity"`
	Conductivity float64   `json:"conductivity"`
}

// Parameter returns the value of the named water-quality parameter.
func (r *SensorReading) Parameter(name string) float64 {
	switch name {
	case "temperature":
		return r.Temperature
	case "pressure":
		return r.Pressure
	case "flow":
		return r.Flow
	case "ph":
		return r.PH
	case "turbidity":
		return r.Turbidity
	case "conductivity":
		return r.Conductivity
	}
	return 0
}

// RawReading is the wire form of a sensor reading. Pointer fields distinguish
// an absent field from a zero value so that incomplete readings are rejected
// rather than silently defaulted.
type RawReading struct {
	SensorID     string     `json:"sensor_id"`
	Timestamp    *time.Time `json:"timestamp"`
	Latitude     *float64   `json:"latitude"`
	Longitude    *float64   `json:"longitude"`
	Temperature  *float64   `json:"temperature"`
	Pressure     *float64   `json:"pressure"`
	Flow         *float64   `json:"flow"`
	PH           *float64   `json:"ph"`
	Turbidity    *float64   `json:"turbidity"`
	Conductivity *float64   `json:"conductivity"`
}

// Normalize validates the raw reading and shapes it into a SensorReading.
// The returned error wraps ErrValidation and names the first offending field.
func (r *RawReading) Normalize() (SensorReading, error) {
	if r.SensorID == "" {
		return SensorReading{}, fmt.Errorf("%w: sensor_id must not be empty", ErrValidation)
	}
	if r.Timestamp == nil || r.Timestamp.IsZero() {
		return SensorReading{}, fmt.Errorf("%w: timestamp is missing", ErrValidation)
	}
	for _, f := range []struct {
		name  string
		value *float64
	}{
		{"latitude", r.Latitude},
		{"longitude", r.Longitude},
		{"temperature", r.Temperature},
		{"pressure", r.Pressure},
		{"flow", r.Flow},
		{"ph", r.PH},
		{"turbidity", r.Turbidity},
		{"conductivity", r.Conductivity},
	} {
		if f.value == nil {
			return SensorReading{}, fmt.Errorf("%w: %s is missing", ErrValidation, f.name)
		}
	}
	if *r.Latitude < -90 || *r.Latitude > 90 {
		return SensorReading{}, fmt.Errorf("%w: latitude out of range: %v", ErrValidation, *r.Latitude)
	}
	if *r.Longitude < -180 || *r.Longitude > 180 {
		return SensorReading{}, fmt.Errorf("%w: longitude out of range: %v", ErrValidation, *r.Longitude)
	}
	return SensorReading{
		SensorID:     r.SensorID,
		Timestamp:    r.Timestamp.UTC(),
		Latitude:     *r.Latitude,
		Longitude:    *r.Longitude,
		Temperature:  *r.Temperature,
		Pressure:     *r.Pressure,
		Flow:         *r.Flow,
		PH:           *r.PH,
		Turbidity:    *r.Turbidity,
		Conductivity: *r.Conductivity,
	}, nil
}
