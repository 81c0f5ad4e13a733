package storage

import (
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-reviews/models"
)

func strPtr(s string) *string { return &s }
func floatPtr(f float64) *float64 { return &f }

func sampleDataset() models.Dataset {
	return models.Dataset{
		"JOE'S DINER": {
			InspectionRecord: models.InspectionRecord{
				Name:           "JOE'S DINER",
				InspectionID:   "2",
				Result:         models.ResultPass,
				InspectionDate: time.Date(2016, 3, 2, 0, 0, 0, 0, time.UTC),
			},
			Enrichment: &models.Enrichment{
				PlaceID:    "abc",
				Rating:     floatPtr(4.5),
				Website:    strPtr("http://joes.example.com"),
				PhotoCount: 0,
				Reviews:    []models.Review{{Rating: 5, Text: "great"}},
			},
			Status: models.StatusEnriched,
		},
		"TACO PLACE": {
			InspectionRecord: models.InspectionRecord{Name: "TACO PLACE", Result: models.ResultFail},
			Status:           models.StatusUnresolved,
		},
	}
}

func TestJSONRoundTripKeepsAbsentFields(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dataset.json")
	require.NoError(t, NewJSONWriter(path).Write(context.Background(), sampleDataset()))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"n_photos":0`)

	data, err := ReadDataset(path)
	require.NoError(t, err)
	require.Len(t, data, 2)

	joe := data["JOE'S DINER"]
	require.True(t, joe.Enriched())
	assert.Equal(t, 4.5, *joe.Rating)
	assert.Nil(t, joe.Phone)
	assert.Equal(t, "great", joe.Reviews[0].Text)

	taco := data["TACO PLACE"]
	assert.False(t, taco.Enriched())
	assert.Equal(t, models.StatusUnresolved, taco.Status)
}

func TestReadDatasetRejectsNullRecord(t *testing.T) {
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"A": {"name": "A"}, "B": null}`), 0644))

	data, err := ReadDataset(path)
	require.Error(t, err)
	assert.Nil(t, data)
	assert.Contains(t, err.Error(), `"B"`)
}

func TestWriteTable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "stats", "table.csv")
	require.NoError(t, WriteTable(path, []string{"Result", "Num_result"}, [][]string{{"Pass", "3"}, {"Fail", "1"}}))

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	rows, err := csv.NewReader(f).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{{"Result", "Num_result"}, {"Pass", "3"}, {"Fail", "1"}}, rows)
}

func TestSQLiteCheckpointUpsertAndLoad(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.sqlite")

	cp, err := NewSQLiteCheckpoint(path, "run-1", "name:abc")
	require.NoError(t, err)

	require.NoError(t, cp.Save(ctx, []CheckpointEntry{
		{Key: "A", Status: models.StatusFailed, Detail: "timeout"},
		{Key: "B", Status: models.StatusUnresolved},
	}))
	require.NoError(t, cp.Save(ctx, []CheckpointEntry{
		{Key: "A", Status: models.StatusEnriched, Enrichment: &models.Enrichment{PlaceID: "p1", PhotoCount: 2}},
	}))
	require.NoError(t, cp.Close())

	reopened, err := NewSQLiteCheckpoint(path, "run-2", "name:abc")
	require.NoError(t, err)
	defer reopened.Close()

	entries, err := reopened.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 2)

	a := entries["A"]
	assert.Equal(t, models.StatusEnriched, a.Status)
	assert.Empty(t, a.Detail)
	require.NotNil(t, a.Enrichment)
	assert.Equal(t, "p1", a.Enrichment.PlaceID)
	assert.Equal(t, 2, a.Enrichment.PhotoCount)

	b := entries["B"]
	assert.Equal(t, models.StatusUnresolved, b.Status)
	assert.Nil(t, b.Enrichment)
}

func TestSQLiteCheckpointIgnoresOtherScopes(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "checkpoint.sqlite")

	cp, err := NewSQLiteCheckpoint(path, "run-1", "name:aaa")
	require.NoError(t, err)
	require.NoError(t, cp.Save(ctx, []CheckpointEntry{{Key: "A", Status: models.StatusUnresolved}}))
	require.NoError(t, cp.Close())

	other, err := NewSQLiteCheckpoint(path, "run-2", "inspection_id:aaa")
	require.NoError(t, err)
	entries, err := other.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, entries)
	require.NoError(t, other.Save(ctx, []CheckpointEntry{{Key: "A", Status: models.StatusFailed, Detail: "timeout"}}))
	require.NoError(t, other.Close())

	same, err := NewSQLiteCheckpoint(path, "run-3", "name:aaa")
	require.NoError(t, err)
	defer same.Close()
	entries, err = same.Load(ctx)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, models.StatusUnresolved, entries["A"].Status)
}

func TestCheckpointScope(t *testing.T) {
	dir := t.TempDir()
	first := filepath.Join(dir, "first.csv")
	second := filepath.Join(dir, "second.csv")
	require.NoError(t, os.WriteFile(first, []byte("1,JOE'S DINER\n"), 0644))
	require.NoError(t, os.WriteFile(second, []byte("1,TACO PLACE\n"), 0644))

	a, err := CheckpointScope(first, "name")
	require.NoError(t, err)
	again, err := CheckpointScope(first, "name")
	require.NoError(t, err)
	assert.Equal(t, a, again)

	byID, err := CheckpointScope(first, "inspection_id")
	require.NoError(t, err)
	assert.NotEqual(t, a, byID)

	b, err := CheckpointScope(second, "name")
	require.NoError(t, err)
	assert.NotEqual(t, a, b)

	_, err = CheckpointScope(filepath.Join(dir, "missing.csv"), "name")
	assert.Error(t, err)
}
