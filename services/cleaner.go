package services

import (
	"strings"
	"unicode"

	"inspection-reviews/models"
	"inspection-reviews/utils"
)

const (
	minRating = 0.0
	maxRating = 5.0
)

// CleanStats counts what Clean changed.
type CleanStats struct {
	Records        int
	FieldsCleared  int
	ReviewsDropped int
}

// Cleaner normalises a stored dataset before analysis.
type Cleaner struct {
	logger *utils.Logger
}

// NewCleaner creates a Cleaner with the given logger.
func NewCleaner(logger *utils.Logger) *Cleaner {
	return &Cleaner{logger: logger}
}

// Clean rewrites data in place:
//   - result labels and review text have their whitespace collapsed
//   - blank websites and phone numbers become absent
//   - ratings outside 0–5 become absent
//   - reviews with no text, or repeating an earlier review of the same place, are dropped
func (c *Cleaner) Clean(data models.Dataset) CleanStats {
	stats := CleanStats{Records: len(data)}

	for _, key := range data.Keys() {
		rec := data[key]
		rec.Result = normaliseText(rec.Result)

		if rec.Enrichment == nil {
			continue
		}
		e := rec.Enrichment

		if clearBlank(&e.Website) {
			stats.FieldsCleared++
		}
		if clearBlank(&e.Phone) {
			stats.FieldsCleared++
		}
		if e.Rating != nil && (*e.Rating < minRating || *e.Rating > maxRating) {
			c.logger.Debug("[cleaner] %s: rating %.2f out of range, clearing", key, *e.Rating)
			e.Rating = nil
			stats.FieldsCleared++
		}
		if e.PhotoCount < 0 {
			e.PhotoCount = 0
			stats.FieldsCleared++
		}

		seen := make(map[string]struct{}, len(e.Reviews))
		kept := e.Reviews[:0]
		for _, r := range e.Reviews {
			r.Text = normaliseText(r.Text)
			if r.Text == "" {
				stats.ReviewsDropped++
				continue
			}
			if _, dup := seen[r.Text]; dup {
				c.logger.Debug("[cleaner] %s: duplicate review skipped", key)
				stats.ReviewsDropped++
				continue
			}
			seen[r.Text] = struct{}{}
			kept = append(kept, r)
		}
		e.Reviews = kept
	}

	c.logger.Info("[cleaner] Cleaned %d records (%d fields cleared, %d reviews dropped)",
		stats.Records, stats.FieldsCleared, stats.ReviewsDropped)
	return stats
}

// clearBlank trims *p and sets it to nil when nothing remains. It reports
// whether the field was cleared.
func clearBlank(p **string) bool {
	if *p == nil {
		return false
	}
	v := strings.TrimSpace(**p)
	if v == "" {
		*p = nil
		return true
	}
	*p = &v
	return false
}

// normaliseText strips leading/trailing whitespace and collapses internal whitespace.
func normaliseText(s string) string {
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return unicode.IsSpace(r)
	})
	return strings.Join(fields, " ")
}
