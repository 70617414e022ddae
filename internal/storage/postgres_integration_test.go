package storage

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

func TestStore_SaveAnomaly_Postgres(t *testing.T) {
	dsn := os.Getenv("AQUAWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AQUAWATCH_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	lat, lon := 48.85, 2.35
	a := models.Anomaly{
		ID:        uuid.New().String(),
		Type:      models.TypeSpike,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		SensorID:  "sensor-it",
		Parameter: "temperature",
		Value:     40,
		Message:   "Temperature spike detected",
		Latitude:  &lat,
		Longitude: &lon,
	}

	if err := store.SaveAnomaly(ctx, a); err != nil {
		t.Fatalf("SaveAnomaly: %v", err)
	}
	// A duplicate ID must be a silent no-op.
	if err := store.SaveAnomaly(ctx, a); err != nil {
		t.Fatalf("SaveAnomaly duplicate: %v", err)
	}

	got, err := store.RecentAnomalies(ctx, 1000)
	if err != nil {
		t.Fatalf("RecentAnomalies: %v", err)
	}
	var matches int
	for _, row := range got {
		if row.ID == a.ID {
			matches++
			if row.Parameter != "temperature" || row.Value != 40 {
				t.Errorf("stored anomaly does not match: %+v", row)
			}
		}
	}
	if matches != 1 {
		t.Errorf("got %d rows for id %s, want 1", matches, a.ID)
	}
}

func TestStore_SaveAnomaly_RejectsEmptyID(t *testing.T) {
	dsn := os.Getenv("AQUAWATCH_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("AQUAWATCH_TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	store, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })

	a := models.Anomaly{Type: models.TypeSpike, Timestamp: time.Now(), SensorID: "s1", Parameter: "ph"}
	if err := store.SaveAnomaly(ctx, a); err == nil {
		t.Error("expected error for anomaly without ID")
	}
}
