package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// CSVWriter writes one derived table (header row plus data rows) to a CSV file.
// It is safe for concurrent use.
type CSVWriter struct {
	mu     sync.Mutex
	file   *os.File
	writer *csv.Writer
}

// NewCSVWriter creates (or truncates) the CSV file at the given path and
// writes the header row. Intermediate directories are created automatically.
func NewCSVWriter(path string, header []string) (*CSVWriter, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("csv: create output dir: %w", err)
	}

	f, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("csv: create file %q: %w", path, err)
	}

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("csv: write header: %w", err)
	}
	w.Flush()

	return &CSVWriter{file: f, writer: w}, nil
}

// WriteRows appends rows and flushes.
func (c *CSVWriter) WriteRows(rows [][]string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, row := range rows {
		if err := c.writer.Write(row); err != nil {
			return fmt.Errorf("csv: write row: %w", err)
		}
	}

	c.writer.Flush()
	return c.writer.Error()
}

// Close flushes and closes the underlying file.
func (c *CSVWriter) Close() error {
	c.writer.Flush()
	return c.file.Close()
}

// WriteTable is a convenience for a one-shot header + rows file.
func WriteTable(path string, header []string, rows [][]string) error {
	w, err := NewCSVWriter(path, header)
	if err != nil {
		return err
	}
	if err := w.WriteRows(rows); err != nil {
		_ = w.Close()
		return err
	}
	return w.Close()
}
