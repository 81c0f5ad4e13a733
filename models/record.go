package models

import (
	"sort"
	"time"
)

// Inspection result labels. The set is closed; TF-IDF treats each label as one document.
const (
	ResultPass               = "Pass"
	ResultFail               = "Fail"
	ResultPassWithConditions = "Pass w/ Conditions"
	ResultOutOfBusiness      = "Out of Business"
	ResultNoEntry            = "No Entry"
	ResultNotReady           = "Not Ready"
	ResultBusinessNotLocated = "Business Not Located"
)

// Results lists every inspection result label.
var Results = []string{
	ResultPass,
	ResultFail,
	ResultPassWithConditions,
	ResultOutOfBusiness,
	ResultNoEntry,
	ResultNotReady,
	ResultBusinessNotLocated,
}

// EnrichStatus records what happened when a record went through the place lookup.
type EnrichStatus string

const (
	StatusPending    EnrichStatus = ""
	StatusEnriched   EnrichStatus = "enriched"
	StatusUnresolved EnrichStatus = "unresolved"
	StatusFailed     EnrichStatus = "failed"
)

// InspectionRecord is one row of the inspection file after parsing.
type InspectionRecord struct {
	Name           string    `json:"name"`
	InspectionID   string    `json:"inspection_id"`
	FacilityType   string    `json:"facility_type"`
	Risk           *int      `json:"risk,omitempty"`
	Address        string    `json:"address"`
	ZIP            string    `json:"zip"`
	InspectionDate time.Time `json:"inspection_date"`
	InspectionType string    `json:"inspection_type"`
	Result         string    `json:"results"`
	Violations     string    `json:"violations,omitempty"`
	Latitude       string    `json:"lat"`
	Longitude      string    `json:"long"`
}

// Review is a single upstream review: star rating, free text, and an optional unix timestamp.
type Review struct {
	Rating float64 `json:"rating"`
	Text   string  `json:"text"`
	Time   *int64  `json:"time,omitempty"`
}

// Enrichment holds the place-details fields. Absent upstream fields stay nil;
// PhotoCount is the only field defaulted (to 0).
type Enrichment struct {
	PlaceID          string   `json:"place_id,omitempty"`
	Rating           *float64 `json:"rating,omitempty"`
	Website          *string  `json:"website,omitempty"`
	Phone            *string  `json:"formatted_phone_number,omitempty"`
	UserRatingsTotal *int     `json:"user_ratings_total,omitempty"`
	PhotoCount       int      `json:"n_photos"`
	Reviews          []Review `json:"reviews,omitempty"`
}

// Record is the merged dataset entry. Enrichment fields are flattened into the
// JSON object and omitted entirely when the record was never enriched.
type Record struct {
	InspectionRecord
	*Enrichment

	Status       EnrichStatus `json:"status,omitempty"`
	StatusDetail string       `json:"status_detail,omitempty"`
}

// Enriched reports whether place data has been attached.
func (r *Record) Enriched() bool {
	return r.Enrichment != nil
}

// Settled reports whether the record needs no further lookup: it was enriched,
// or the search ran cleanly and found no candidate.
func (r *Record) Settled() bool {
	switch r.Status {
	case StatusEnriched:
		return true
	case StatusUnresolved:
		return r.StatusDetail == ""
	}
	return false
}

// Dataset maps an entity key (name or inspection id) to its record.
type Dataset map[string]*Record

// Keys returns the dataset keys in sorted order.
func (d Dataset) Keys() []string {
	keys := make([]string, 0, len(d))
	for k := range d {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
