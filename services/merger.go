package services

import (
	"inspection-reviews/models"
	"inspection-reviews/utils"
)

// MergeMode selects which keys survive a merge.
type MergeMode string

const (
	// MergeUnion keeps keys from both datasets.
	MergeUnion MergeMode = "union"
	// MergeLeft keeps only keys present in the first dataset.
	MergeLeft MergeMode = "left"
)

// Merger combines two independently enriched datasets keyed the same way.
type Merger struct {
	logger *utils.Logger
}

// NewMerger creates a Merger with the given logger.
func NewMerger(logger *utils.Logger) *Merger {
	return &Merger{logger: logger}
}

// Merge returns a new dataset. For keys present in both inputs, every field
// set in b overrides the same field from a. Neither input is modified.
func (m *Merger) Merge(a, b models.Dataset, mode MergeMode) models.Dataset {
	out := make(models.Dataset, len(a))
	overlap, dropped := 0, 0

	for key, rec := range a {
		merged := cloneRecord(rec)
		if other, ok := b[key]; ok {
			mergeInto(merged, other)
			overlap++
		}
		out[key] = merged
	}

	for key, rec := range b {
		if _, ok := a[key]; ok {
			continue
		}
		if mode == MergeLeft {
			dropped++
			continue
		}
		out[key] = cloneRecord(rec)
	}

	m.logger.Info("[merger] Merged %d + %d records → %d (overlap %d, dropped %d)",
		len(a), len(b), len(out), overlap, dropped)
	return out
}

func cloneRecord(r *models.Record) *models.Record {
	c := *r
	if r.Enrichment != nil {
		e := *r.Enrichment
		e.Reviews = append([]models.Review(nil), r.Enrichment.Reviews...)
		c.Enrichment = &e
	}
	return &c
}

// mergeInto overlays every set field of src onto dst.
func mergeInto(dst, src *models.Record) {
	d, s := &dst.InspectionRecord, &src.InspectionRecord
	setString(&d.Name, s.Name)
	setString(&d.InspectionID, s.InspectionID)
	setString(&d.FacilityType, s.FacilityType)
	if s.Risk != nil {
		d.Risk = s.Risk
	}
	setString(&d.Address, s.Address)
	setString(&d.ZIP, s.ZIP)
	if !s.InspectionDate.IsZero() {
		d.InspectionDate = s.InspectionDate
	}
	setString(&d.InspectionType, s.InspectionType)
	setString(&d.Result, s.Result)
	setString(&d.Violations, s.Violations)
	setString(&d.Latitude, s.Latitude)
	setString(&d.Longitude, s.Longitude)

	if src.Enrichment != nil {
		if dst.Enrichment == nil {
			dst.Enrichment = &models.Enrichment{}
		}
		de, se := dst.Enrichment, src.Enrichment
		setString(&de.PlaceID, se.PlaceID)
		if se.Rating != nil {
			de.Rating = se.Rating
		}
		if se.Website != nil {
			de.Website = se.Website
		}
		if se.Phone != nil {
			de.Phone = se.Phone
		}
		if se.UserRatingsTotal != nil {
			de.UserRatingsTotal = se.UserRatingsTotal
		}
		de.PhotoCount = se.PhotoCount
		if se.Reviews != nil {
			de.Reviews = append([]models.Review(nil), se.Reviews...)
		}
	}

	if src.Status != models.StatusPending {
		dst.Status = src.Status
		dst.StatusDetail = src.StatusDetail
	}
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}
