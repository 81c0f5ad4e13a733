package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"inspection-reviews/models"
)

// ReadDataset loads a merged dataset written by JSONWriter. A null record is
// rejected so callers never see a nil entry.
func ReadDataset(path string) (models.Dataset, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("json: read %q: %w", path, err)
	}
	var data models.Dataset
	if err := json.Unmarshal(b, &data); err != nil {
		return nil, fmt.Errorf("json: decode %q: %w", path, err)
	}
	if data == nil {
		data = make(models.Dataset)
	}
	for _, key := range data.Keys() {
		if data[key] == nil {
			return nil, fmt.Errorf("json: decode %q: record %q is null", path, key)
		}
	}
	return data, nil
}

// JSONWriter writes the dataset as a single JSON object keyed by entity.
type JSONWriter struct {
	path string
}

// NewJSONWriter creates a writer for path. Intermediate directories are created on Write.
func NewJSONWriter(path string) *JSONWriter {
	return &JSONWriter{path: path}
}

// Write replaces the output file atomically: data goes to a temp file in the
// same directory which is then renamed over the target.
func (w *JSONWriter) Write(_ context.Context, data models.Dataset) error {
	dir := filepath.Dir(w.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("json: create output dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".dataset-*.json")
	if err != nil {
		return fmt.Errorf("json: create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	enc := json.NewEncoder(tmp)
	if err := enc.Encode(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("json: encode dataset: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("json: close temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), w.path); err != nil {
		return fmt.Errorf("json: rename into %q: %w", w.path, err)
	}
	return nil
}

func (w *JSONWriter) Close() error { return nil }
