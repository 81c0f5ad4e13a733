package services

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"inspection-reviews/utils"
)

const inspectionHeader = "Inspection ID,DBA Name,AKA Name,License #,Facility Type,Risk,Address,City,State,Zip,Inspection Date,Inspection Type,Results,Violations,Latitude,Longitude,Location\n"

func inspectionRow(id, name, date, result string) string {
	return strings.Join([]string{
		id, name, name, "1234", "Restaurant", "Risk 1 (High)", "11 N STATE ST ", "CHICAGO", "IL", "60602",
		date, "Canvass", result, "32. FOOD AND NON-FOOD CONTACT SURFACES", "41.88", "-87.62", "(41.88, -87.62)",
	}, ",") + "\n"
}

func newTestLogger() *utils.Logger { return utils.Discard() }

func TestLoaderKeepsMostRecentInspection(t *testing.T) {
	input := inspectionHeader +
		inspectionRow("1", "JOE'S DINER", "01/15/2015", "Fail") +
		inspectionRow("2", "JOE'S DINER", "03/02/2016", "Pass") +
		inspectionRow("3", "JOE'S DINER", "06/30/2014", "Pass w/ Conditions") +
		inspectionRow("4", "TACO PLACE", "05/05/2015", "Pass")

	data, stats, err := NewLoader(newTestLogger(), KeyByName, true).Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, data, 2)

	joe := data["JOE'S DINER"]
	require.NotNil(t, joe)
	assert.Equal(t, "2", joe.InspectionID)
	assert.Equal(t, "Pass", joe.Result)
	assert.Equal(t, time.Date(2016, 3, 2, 0, 0, 0, 0, time.UTC), joe.InspectionDate)
	assert.Equal(t, 4, stats.Rows)
	assert.Equal(t, 1, stats.Replaced)
}

func TestLoaderSameDateFirstWins(t *testing.T) {
	input := inspectionHeader +
		inspectionRow("10", "CAFE", "02/02/2016", "Fail") +
		inspectionRow("11", "CAFE", "02/02/2016", "Pass")

	data, _, err := NewLoader(newTestLogger(), KeyByName, true).Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Equal(t, "10", data["CAFE"].InspectionID)
}

func TestLoaderSkipsMalformedRows(t *testing.T) {
	input := inspectionHeader +
		"5,SHORT ROW,only,a,few\n" +
		inspectionRow("6", "BAD DATE", "2016-02-02", "Pass") +
		inspectionRow("7", "GOOD", "02/02/2016", "Pass")

	data, stats, err := NewLoader(newTestLogger(), KeyByName, true).Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, data, 1)
	assert.Contains(t, data, "GOOD")
	assert.Equal(t, 2, stats.Skipped)
}

func TestLoaderReportsPhysicalLineAfterMultilineField(t *testing.T) {
	multiline := strings.Replace(inspectionRow("8", "LONG NOTES", "02/02/2016", "Fail"),
		"32. FOOD AND NON-FOOD CONTACT SURFACES", "\"32. SURFACES\nCOMMENTS: grease\nCORRECTED\"", 1)
	input := inspectionHeader + multiline + "9,SHORT ROW,only,a,few\n"

	var logs bytes.Buffer
	logger := utils.NewLoggerTo(&logs, &logs, "info")

	data, stats, err := NewLoader(logger, KeyByName, true).Load(strings.NewReader(input))
	require.NoError(t, err)
	require.Contains(t, data, "LONG NOTES")
	assert.Equal(t, "32. SURFACES\nCOMMENTS: grease\nCORRECTED", data["LONG NOTES"].Violations)
	assert.Equal(t, 1, stats.Skipped)
	assert.Contains(t, logs.String(), "Excluding line 5:")
}

func TestLoaderKeyByInspectionID(t *testing.T) {
	input := inspectionHeader +
		inspectionRow("1", "JOE'S DINER", "01/15/2015", "Fail") +
		inspectionRow("2", "JOE'S DINER", "03/02/2016", "Pass")

	data, _, err := NewLoader(newTestLogger(), KeyByInspectionID, true).Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, data, 2)
	assert.Equal(t, "Fail", data["1"].Result)
	assert.Equal(t, "Pass", data["2"].Result)
}

func TestLoaderWithoutHeaderSkip(t *testing.T) {
	input := inspectionRow("1", "JOE'S DINER", "01/15/2015", "Fail")

	data, stats, err := NewLoader(newTestLogger(), KeyByName, false).Load(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, data, 1)
	assert.Equal(t, 0, stats.Skipped)
}

func TestLoaderParsesFields(t *testing.T) {
	input := inspectionHeader + inspectionRow("42", "  JOE'S   DINER ", "01/15/2015", "Fail")

	data, _, err := NewLoader(newTestLogger(), KeyByName, true).Load(strings.NewReader(input))
	require.NoError(t, err)
	rec := data["JOE'S DINER"]
	require.NotNil(t, rec)
	require.NotNil(t, rec.Risk)
	assert.Equal(t, 1, *rec.Risk)
	assert.Equal(t, "11 N STATE ST", rec.Address)
	assert.Equal(t, "60602", rec.ZIP)
	assert.Equal(t, "Canvass", rec.InspectionType)
	assert.Equal(t, "41.88", rec.Latitude)
	assert.Equal(t, "-87.62", rec.Longitude)
	assert.False(t, rec.Enriched())
}

func TestParseRisk(t *testing.T) {
	tests := []struct {
		raw  string
		want *int
	}{
		{"Risk 1 (High)", intPtr(1)},
		{"Risk 3 (Low)", intPtr(3)},
		{"All", nil},
		{"", nil},
	}

	for _, tt := range tests {
		got := parseRisk(tt.raw)
		assert.Equal(t, tt.want, got, "parseRisk(%q)", tt.raw)
	}
}

func TestLoadFileMissing(t *testing.T) {
	_, _, err := NewLoader(newTestLogger(), KeyByName, true).LoadFile(filepath.Join(t.TempDir(), "nope.csv"))
	assert.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "inspections.csv")
	require.NoError(t, os.WriteFile(path, []byte(inspectionHeader+inspectionRow("1", "A", "01/01/2016", "Pass")), 0644))

	data, _, err := NewLoader(newTestLogger(), KeyByName, true).LoadFile(path)
	require.NoError(t, err)
	assert.Len(t, data, 1)
}

func intPtr(n int) *int { return &n }
