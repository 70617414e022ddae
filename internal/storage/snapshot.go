package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/BarirNada00/AquaWatch-Ms/internal/models"
)

// Snapshot mirrors the anomaly buffer into a JSON document on disk. The file
// is the fallback read path other services use when the durable store is
// unreachable, so each write replaces it atomically. Writes are serialized:
// concurrent detection batches for distinct sensors all rewrite the same
// document, and the rename must not race a parallel writer's temp file.
type Snapshot struct {
	mu   sync.Mutex
	path string
}

// NewSnapshot prepares the snapshot at path, creating parent directories.
func NewSnapshot(path string) (*Snapshot, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return &Snapshot{path: path}, nil
}

// Write replaces the snapshot with the given anomalies.
func (s *Snapshot) Write(anomalies []models.Anomaly) error {
	if anomalies == nil {
		anomalies = []models.Anomaly{}
	}
	data, err := json.MarshalIndent(anomalies, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal anomalies: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("failed to replace snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot back. A missing file yields an empty slice.
func (s *Snapshot) Load() ([]models.Anomaly, error) {
	data, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read snapshot: %w", err)
	}
	var anomalies []models.Anomaly
	if err := json.Unmarshal(data, &anomalies); err != nil {
		return nil, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return anomalies, nil
}
