package services

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"inspection-reviews/models"
	"inspection-reviews/utils"
)

// Column positions in the inspection export.
const (
	colInspectionID = 0
	colName         = 2
	colFacilityType = 4
	colRisk         = 5
	colAddress      = 6
	colZIP          = 9
	colDate         = 10
	colType         = 11
	colResults      = 12
	colViolations   = 13
	colLatitude     = 14
	colLongitude    = 15

	requiredColumns = 16
)

const inspectionDateLayout = "01/02/2006"

// riskRegexp captures the first run of digits in a risk label such as "Risk 1 (High)".
var riskRegexp = regexp.MustCompile(`\d+`)

// KeyMode selects how loaded records are keyed.
type KeyMode string

const (
	// KeyByName keeps the most recent inspection per entity name.
	KeyByName KeyMode = "name"
	// KeyByInspectionID keeps one record per inspection.
	KeyByInspectionID KeyMode = "inspection_id"
)

// LoadStats summarises a load.
type LoadStats struct {
	Rows     int
	Loaded   int
	Skipped  int
	Replaced int
}

// Loader parses inspection rows into a keyed dataset.
type Loader struct {
	logger     *utils.Logger
	mode       KeyMode
	skipHeader bool
}

// NewLoader creates a Loader.
func NewLoader(logger *utils.Logger, mode KeyMode, skipHeader bool) *Loader {
	return &Loader{logger: logger, mode: mode, skipHeader: skipHeader}
}

// LoadFile opens path and loads it.
func (l *Loader) LoadFile(path string) (models.Dataset, LoadStats, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, LoadStats{}, fmt.Errorf("loader: open %q: %w", path, err)
	}
	defer f.Close()

	return l.Load(f)
}

// Load reads every row from r. Malformed rows are logged and skipped; only a
// failure of the underlying reader is returned as an error.
func (l *Loader) Load(r io.Reader) (models.Dataset, LoadStats, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	data := make(models.Dataset)
	var stats LoadStats
	records := 0

	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		records++

		var parseErr *csv.ParseError
		if errors.As(err, &parseErr) {
			l.logger.Warn("[loader] Excluding line %d: %v", parseErr.StartLine, err)
			stats.Skipped++
			continue
		}
		if err != nil {
			return data, stats, fmt.Errorf("loader: read record %d: %w", records, err)
		}

		// Quoted fields may span lines, so report the physical line the record starts on.
		line, _ := reader.FieldPos(0)

		if records == 1 && l.skipHeader {
			continue
		}
		stats.Rows++

		rec, err := parseRow(row)
		if err != nil {
			l.logger.Warn("[loader] Excluding line %d: %v", line, err)
			stats.Skipped++
			continue
		}

		key := l.keyFor(rec)
		if key == "" {
			l.logger.Warn("[loader] Excluding line %d: empty %s", line, l.mode)
			stats.Skipped++
			continue
		}

		existing, ok := data[key]
		switch {
		case !ok:
			data[key] = &models.Record{InspectionRecord: *rec}
			stats.Loaded++
		case l.mode == KeyByName && rec.InspectionDate.After(existing.InspectionDate):
			// Identical dates keep the first row seen.
			existing.InspectionRecord = *rec
			stats.Replaced++
		default:
			l.logger.Debug("[loader] Line %d superseded for key %q", line, key)
		}
	}

	l.logger.Info("[loader] Read %d rows → %d records (skipped %d, replaced %d)",
		stats.Rows, len(data), stats.Skipped, stats.Replaced)
	return data, stats, nil
}

func (l *Loader) keyFor(rec *models.InspectionRecord) string {
	if l.mode == KeyByInspectionID {
		return rec.InspectionID
	}
	return rec.Name
}

// parseRow extracts an InspectionRecord from the fixed column layout.
func parseRow(row []string) (*models.InspectionRecord, error) {
	if len(row) < requiredColumns {
		return nil, fmt.Errorf("expected %d columns, got %d", requiredColumns, len(row))
	}

	date, err := time.Parse(inspectionDateLayout, strings.TrimSpace(row[colDate]))
	if err != nil {
		return nil, fmt.Errorf("inspection date %q: %w", row[colDate], err)
	}

	return &models.InspectionRecord{
		Name:           normaliseText(row[colName]),
		InspectionID:   strings.TrimSpace(row[colInspectionID]),
		FacilityType:   normaliseText(row[colFacilityType]),
		Risk:           parseRisk(row[colRisk]),
		Address:        normaliseText(row[colAddress]),
		ZIP:            strings.TrimSpace(row[colZIP]),
		InspectionDate: date,
		InspectionType: normaliseText(row[colType]),
		Result:         normaliseText(row[colResults]),
		Violations:     row[colViolations],
		Latitude:       strings.TrimSpace(row[colLatitude]),
		Longitude:      strings.TrimSpace(row[colLongitude]),
	}, nil
}

// parseRisk returns the first run of digits in raw, or nil if there is none.
func parseRisk(raw string) *int {
	match := riskRegexp.FindString(raw)
	if match == "" {
		return nil
	}
	n, err := strconv.Atoi(match)
	if err != nil {
		return nil
	}
	return &n
}
