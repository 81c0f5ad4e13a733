package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-reviews/models"
)

func strPtr(s string) *string { return &s }

func floatPtr(f float64) *float64 { return &f }

func mergeInputs() (models.Dataset, models.Dataset) {
	a := models.Dataset{
		"SHARED": {
			InspectionRecord: models.InspectionRecord{Name: "SHARED", Result: models.ResultPass, ZIP: "60601"},
			Enrichment:       &models.Enrichment{PlaceID: "p1", Rating: floatPtr(3.0), Website: strPtr("http://a.example.com")},
			Status:           models.StatusEnriched,
		},
		"ONLY_A": {InspectionRecord: models.InspectionRecord{Name: "ONLY_A", Result: models.ResultFail}},
	}
	b := models.Dataset{
		"SHARED": {
			InspectionRecord: models.InspectionRecord{Name: "SHARED", Result: models.ResultFail},
			Enrichment:       &models.Enrichment{PlaceID: "p1", Rating: floatPtr(4.5), Phone: strPtr("(312) 555-0100"), PhotoCount: 3},
			Status:           models.StatusEnriched,
		},
		"ONLY_B": {InspectionRecord: models.InspectionRecord{Name: "ONLY_B", Result: models.ResultPass}},
	}
	return a, b
}

func TestMergeSecondWinsOnOverlap(t *testing.T) {
	a, b := mergeInputs()
	out := NewMerger(newTestLogger()).Merge(a, b, MergeUnion)

	shared := out["SHARED"]
	require.NotNil(t, shared)
	assert.Equal(t, models.ResultFail, shared.Result)
	assert.Equal(t, "60601", shared.ZIP)
	require.True(t, shared.Enriched())
	assert.Equal(t, 4.5, *shared.Rating)
	assert.Equal(t, "http://a.example.com", *shared.Website)
	assert.Equal(t, "(312) 555-0100", *shared.Phone)
	assert.Equal(t, 3, shared.PhotoCount)
}

func TestMergeUnionKeepsAllKeys(t *testing.T) {
	a, b := mergeInputs()
	out := NewMerger(newTestLogger()).Merge(a, b, MergeUnion)

	assert.ElementsMatch(t, []string{"SHARED", "ONLY_A", "ONLY_B"}, out.Keys())
}

func TestMergeLeftDropsKeysOnlyInSecond(t *testing.T) {
	a, b := mergeInputs()
	out := NewMerger(newTestLogger()).Merge(a, b, MergeLeft)

	assert.ElementsMatch(t, []string{"SHARED", "ONLY_A"}, out.Keys())
}

func TestMergeDoesNotMutateInputs(t *testing.T) {
	a, b := mergeInputs()
	NewMerger(newTestLogger()).Merge(a, b, MergeUnion)

	assert.Equal(t, models.ResultPass, a["SHARED"].Result)
	assert.Equal(t, 3.0, *a["SHARED"].Rating)
	assert.Nil(t, a["SHARED"].Phone)
}
