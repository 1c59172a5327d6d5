package planner

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
)

// FailureRecord preserves everything needed to diagnose a goal whose plan
// could not be synthesized.
type FailureRecord struct {
	ID        string    `json:"id"`
	Goal      string    `json:"goal"`
	Prompt    string    `json:"prompt"`
	RawOutput string    `json:"raw_output"`
	Error     string    `json:"error"`
	CreatedAt time.Time `json:"created_at"`
}

// writeFailureRecord stores rec as <dir>/<id>.json. The id is a UUIDv7, so
// records sort by creation time.
func writeFailureRecord(dir string, rec FailureRecord) (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", fmt.Errorf("failed to generate failure id: %w", err)
	}
	rec.ID = id.String()
	rec.CreatedAt = time.Now().UTC()

	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", fmt.Errorf("failed to create failures directory: %w", err)
	}

	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal failure record: %w", err)
	}

	path := filepath.Join(dir, rec.ID+".json")
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write failure record: %w", err)
	}
	return path, nil
}
