package storage

import (
	"context"

	"inspection-reviews/models"
)

// DatasetWriter is the interface any merged-dataset sink must satisfy.
type DatasetWriter interface {
	Write(ctx context.Context, data models.Dataset) error
	Close() error
}

// CheckpointEntry is the persisted outcome of one record's lookup.
type CheckpointEntry struct {
	Key        string
	Status     models.EnrichStatus
	Detail     string
	Enrichment *models.Enrichment
}

// Checkpointer persists per-record progress so an interrupted run can resume.
type Checkpointer interface {
	Load(ctx context.Context) (map[string]CheckpointEntry, error)
	Save(ctx context.Context, entries []CheckpointEntry) error
	Close() error
}
