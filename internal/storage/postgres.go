// Package storage provides the durable Postgres sink and the local JSON
// snapshot for detected anomalies.
package storage

import (
	"context"
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

// Store writes anomalies to the shared anomalies table. Writes are keyed by
// anomaly ID and idempotent, so a redelivered anomaly is a no-op.
type Store struct {
	db *sql.DB
}

// Open connects to Postgres and bootstraps the anomalies table. The caller
// decides whether a failure here is fatal; the service runs without a store.
func Open(ctx context.Context, dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to reach database: %w", err)
	}
	s := &Store{db: db}
	if err := s.createTables(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}
	return s, nil
}

// Close closes the underlying connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
CREATE TABLE IF NOT EXISTS anomalies (
	id               TEXT PRIMARY KEY,
	type             TEXT NOT NULL,
	timestamp        TIMESTAMPTZ NOT NULL,
	sensor_id        TEXT NOT NULL,
	parameter        TEXT NOT NULL,
	value            DOUBLE PRECISION NOT NULL,
	duration_seconds DOUBLE PRECISION,
	message          TEXT NOT NULL,
	latitude         DOUBLE PRECISION,
	longitude        DOUBLE PRECISION
)`)
	return err
}

// SaveAnomaly inserts one anomaly. A duplicate ID is silently ignored.
func (s *Store) SaveAnomaly(ctx context.Context, a models.Anomaly) error {
	if err := a.Validate(); err != nil {
		return fmt.Errorf("invalid anomaly: %w", err)
	}
	_, err := s.db.ExecContext(ctx, `
INSERT INTO anomalies (
	id, type, timestamp, sensor_id, parameter, value, duration_seconds, message, latitude, longitude
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (id) DO NOTHING`,
		a.ID,
		a.Type,
		a.Timestamp,
		a.SensorID,
		a.Parameter,
		a.Value,
		nullableFloat(a.DurationSeconds),
		a.Message,
		nullableFloat(a.Latitude),
		nullableFloat(a.Longitude),
	)
	if err != nil {
		return fmt.Errorf("failed to insert anomaly: %w", err)
	}
	return nil
}

// RecentAnomalies returns the newest stored anomalies, oldest first.
func (s *Store) RecentAnomalies(ctx context.Context, limit int) ([]models.Anomaly, error) {
	rows, err := s.db.QueryContext(ctx, `
SELECT id, type, timestamp, sensor_id, parameter, value, duration_seconds, message, latitude, longitude
FROM (
	SELECT * FROM anomalies ORDER BY timestamp DESC LIMIT $1
) newest
ORDER BY timestamp ASC`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query anomalies: %w", err)
	}
	defer rows.Close()

	var anomalies []models.Anomaly
	for rows.Next() {
		var a models.Anomaly
		var duration, lat, lon sql.NullFloat64
		if err := rows.Scan(
			&a.ID, &a.Type, &a.Timestamp, &a.SensorID, &a.Parameter, &a.Value,
			&duration, &a.Message, &lat, &lon,
		); err != nil {
			return nil, fmt.Errorf("failed to scan anomaly: %w", err)
		}
		a.Timestamp = a.Timestamp.UTC()
		if duration.Valid {
			a.DurationSeconds = &duration.Float64
		}
		if lat.Valid {
			a.Latitude = &lat.Float64
		}
		if lon.Valid {
			a.Longitude = &lon.Float64
		}
		anomalies = append(anomalies, a)
	}
	return anomalies, rows.Err()
}

func nullableFloat(v *float64) sql.NullFloat64 {
	if v == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *v, Valid: true}
}
