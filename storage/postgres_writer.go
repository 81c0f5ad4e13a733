package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"inspection-reviews/models"
)

// PostgresWriter persists the merged dataset to PostgreSQL.
type PostgresWriter struct {
	db *sql.DB
}

// NewPostgresWriter opens a connection to PostgreSQL, runs schema migrations,
// and returns a ready-to-use PostgresWriter.
func NewPostgresWriter(dsn string) (*PostgresWriter, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("postgres: open: %w", err)
	}

	for i := 0; i < 10; i++ {
		if err = db.Ping(); err == nil {
			break
		}
		time.Sleep(2 * time.Second)
	}
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: ping failed after retries: %w", err)
	}

	pw := &PostgresWriter{db: db}
	if err := pw.migrate(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("postgres: migrate: %w", err)
	}

	return pw, nil
}

func (pw *PostgresWriter) migrate() error {
	_, err := pw.db.Exec(`
		CREATE TABLE IF NOT EXISTS establishments (
			entity_key         TEXT PRIMARY KEY,
			name               TEXT         NOT NULL,
			inspection_id      TEXT         NOT NULL DEFAULT '',
			facility_type      TEXT         NOT NULL DEFAULT '',
			risk               INTEGER,
			address            TEXT         NOT NULL DEFAULT '',
			zip                VARCHAR(10)  NOT NULL DEFAULT '',
			inspection_date    DATE,
			inspection_type    TEXT         NOT NULL DEFAULT '',
			result             TEXT         NOT NULL DEFAULT '',
			latitude           TEXT         NOT NULL DEFAULT '',
			longitude          TEXT         NOT NULL DEFAULT '',
			place_id           TEXT,
			rating             NUMERIC(3,2),
			website            TEXT,
			phone              TEXT,
			user_ratings_total INTEGER,
			n_photos           INTEGER,
			reviews            JSONB,
			status             VARCHAR(20)  NOT NULL DEFAULT '',
			updated_at         TIMESTAMPTZ  NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_establishments_result ON establishments(result);
		CREATE INDEX IF NOT EXISTS idx_establishments_status ON establishments(status);
	`)
	return err
}

// Write batch-upserts every record in the dataset.
func (pw *PostgresWriter) Write(ctx context.Context, data models.Dataset) error {
	keys := data.Keys()

	const batchSize = 50
	for i := 0; i < len(keys); i += batchSize {
		end := i + batchSize
		if end > len(keys) {
			end = len(keys)
		}
		if err := pw.upsertBatch(ctx, keys[i:end], data); err != nil {
			return err
		}
	}
	return nil
}

const establishmentColumns = 20

func (pw *PostgresWriter) upsertBatch(ctx context.Context, keys []string, data models.Dataset) error {
	valueStrings := make([]string, 0, len(keys))
	valueArgs := make([]any, 0, len(keys)*establishmentColumns)

	for idx, key := range keys {
		r := data[key]
		base := idx * establishmentColumns
		ph := make([]string, establishmentColumns)
		for c := range ph {
			ph[c] = fmt.Sprintf("$%d", base+c+1)
		}
		valueStrings = append(valueStrings, "("+strings.Join(ph, ",")+")")

		var date any
		if !r.InspectionDate.IsZero() {
			date = r.InspectionDate
		}
		var (
			placeID, website, phone, reviews any
			rating                           any
			total, photos                    any
		)
		if r.Enriched() {
			placeID = r.PlaceID
			photos = r.PhotoCount
			if r.Rating != nil {
				rating = *r.Rating
			}
			if r.Website != nil {
				website = *r.Website
			}
			if r.Phone != nil {
				phone = *r.Phone
			}
			if r.UserRatingsTotal != nil {
				total = *r.UserRatingsTotal
			}
			b, err := json.Marshal(r.Reviews)
			if err != nil {
				return fmt.Errorf("postgres: encode reviews for %q: %w", key, err)
			}
			reviews = string(b)
		}
		var risk any
		if r.Risk != nil {
			risk = *r.Risk
		}

		valueArgs = append(valueArgs,
			key, r.Name, r.InspectionID, r.FacilityType, risk, r.Address, r.ZIP, date,
			r.InspectionType, r.Result, r.Latitude, r.Longitude,
			placeID, rating, website, phone, total, photos, reviews, string(r.Status))
	}

	query := fmt.Sprintf(`
		INSERT INTO establishments (
			entity_key, name, inspection_id, facility_type, risk, address, zip, inspection_date,
			inspection_type, result, latitude, longitude,
			place_id, rating, website, phone, user_ratings_total, n_photos, reviews, status)
		VALUES %s
		ON CONFLICT (entity_key) DO UPDATE SET
			name = EXCLUDED.name,
			inspection_id = EXCLUDED.inspection_id,
			facility_type = EXCLUDED.facility_type,
			risk = EXCLUDED.risk,
			address = EXCLUDED.address,
			zip = EXCLUDED.zip,
			inspection_date = EXCLUDED.inspection_date,
			inspection_type = EXCLUDED.inspection_type,
			result = EXCLUDED.result,
			latitude = EXCLUDED.latitude,
			longitude = EXCLUDED.longitude,
			place_id = EXCLUDED.place_id,
			rating = EXCLUDED.rating,
			website = EXCLUDED.website,
			phone = EXCLUDED.phone,
			user_ratings_total = EXCLUDED.user_ratings_total,
			n_photos = EXCLUDED.n_photos,
			reviews = EXCLUDED.reviews,
			status = EXCLUDED.status,
			updated_at = NOW()
	`, strings.Join(valueStrings, ","))

	if _, err := pw.db.ExecContext(ctx, query, valueArgs...); err != nil {
		return fmt.Errorf("postgres: upsert batch: %w", err)
	}
	return nil
}

func (pw *PostgresWriter) Close() error {
	return pw.db.Close()
}
