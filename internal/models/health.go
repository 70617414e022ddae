package models

import "time"

// HealthStatus is the snapshot served by GET /status. The *_active flags
// report live reachability of each subsystem, not historical success.
type HealthStatus struct {
	IngressActive     bool       `json:"ingress_active"`
	DetectorActive    bool       `json:"detector_active"`
	PersistenceActive bool       `json:"persistence_active"`
	LastAnomaly       *time.Time `json:"last_anomaly_detected"`
	AnomaliesCount    int        `json:"current_anomalies_count"`
}
