package storage

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"inspection-reviews/models"
)

// SQLiteCheckpoint keeps per-record enrichment progress in a local SQLite file.
// Rows belong to a scope; Load only sees rows saved under the same scope, and
// saves are idempotent on (scope, entity key).
type SQLiteCheckpoint struct {
	db    *sql.DB
	runID string
	scope string
}

// CheckpointScope identifies one input file under one key mode. Entity keys
// from a different file or key mode never match it.
func CheckpointScope(inputPath, keyMode string) (string, error) {
	f, err := os.Open(inputPath)
	if err != nil {
		return "", fmt.Errorf("checkpoint: fingerprint: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("checkpoint: fingerprint %s: %w", inputPath, err)
	}
	return keyMode + ":" + hex.EncodeToString(h.Sum(nil))[:16], nil
}

// NewSQLiteCheckpoint opens (or creates) the checkpoint database at path.
func NewSQLiteCheckpoint(path, runID, scope string) (*SQLiteCheckpoint, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("checkpoint: create dir: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: open: %w", err)
	}
	// One writer; the aggregator goroutine is the only caller of Save.
	db.SetMaxOpenConns(1)

	cp := &SQLiteCheckpoint{db: db, runID: runID, scope: scope}
	if err := cp.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("checkpoint: migrate: %w", err)
	}
	return cp, nil
}

func (cp *SQLiteCheckpoint) migrate() error {
	_, err := cp.db.Exec(`
		PRAGMA journal_mode = WAL;

		CREATE TABLE IF NOT EXISTS enrichment_checkpoint (
			scope         TEXT NOT NULL,
			entity_key    TEXT NOT NULL,
			status        TEXT NOT NULL,
			status_detail TEXT NOT NULL DEFAULT '',
			enrichment    TEXT,
			run_id        TEXT NOT NULL,
			updated_at    TEXT NOT NULL,
			PRIMARY KEY (scope, entity_key)
		);

		CREATE INDEX IF NOT EXISTS idx_enrichment_checkpoint_status ON enrichment_checkpoint(scope, status);
	`)
	return err
}

// Load returns the entries saved under this checkpoint's scope, keyed by entity.
func (cp *SQLiteCheckpoint) Load(ctx context.Context) (map[string]CheckpointEntry, error) {
	rows, err := cp.db.QueryContext(ctx, `
		SELECT entity_key, status, status_detail, enrichment
		FROM enrichment_checkpoint
		WHERE scope = ?
	`, cp.scope)
	if err != nil {
		return nil, fmt.Errorf("checkpoint: load: %w", err)
	}
	defer rows.Close()

	out := make(map[string]CheckpointEntry)
	for rows.Next() {
		var (
			e       CheckpointEntry
			status  string
			payload sql.NullString
		)
		if err := rows.Scan(&e.Key, &status, &e.Detail, &payload); err != nil {
			return nil, fmt.Errorf("checkpoint: scan row: %w", err)
		}
		e.Status = models.EnrichStatus(status)
		if payload.Valid && payload.String != "" {
			e.Enrichment = &models.Enrichment{}
			if err := json.Unmarshal([]byte(payload.String), e.Enrichment); err != nil {
				return nil, fmt.Errorf("checkpoint: decode %q: %w", e.Key, err)
			}
		}
		out[e.Key] = e
	}
	return out, rows.Err()
}

// Save upserts entries in a single transaction.
func (cp *SQLiteCheckpoint) Save(ctx context.Context, entries []CheckpointEntry) error {
	if len(entries) == 0 {
		return nil
	}

	tx, err := cp.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("checkpoint: begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO enrichment_checkpoint (scope, entity_key, status, status_detail, enrichment, run_id, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(scope, entity_key) DO UPDATE SET
			status        = excluded.status,
			status_detail = excluded.status_detail,
			enrichment    = excluded.enrichment,
			run_id        = excluded.run_id,
			updated_at    = excluded.updated_at
	`)
	if err != nil {
		return fmt.Errorf("checkpoint: prepare: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC().Format(time.RFC3339)
	for _, e := range entries {
		var payload any
		if e.Enrichment != nil {
			b, err := json.Marshal(e.Enrichment)
			if err != nil {
				return fmt.Errorf("checkpoint: encode %q: %w", e.Key, err)
			}
			payload = string(b)
		}
		if _, err := stmt.ExecContext(ctx, cp.scope, e.Key, string(e.Status), e.Detail, payload, cp.runID, now); err != nil {
			return fmt.Errorf("checkpoint: upsert %q: %w", e.Key, err)
		}
	}
	return tx.Commit()
}

func (cp *SQLiteCheckpoint) Close() error {
	return cp.db.Close()
}
