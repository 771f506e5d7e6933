package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"w2wcli/internal/aggregate"
	apperrors "w2wcli/internal/errors"
)

func writeCSV(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "weights.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

const validHeader = "Date,Weight (kg),Fat mass (kg),Muscle mass (kg),Bone mass (kg),Hydration (kg),Comments\n"

func TestCSVSourceFetch(t *testing.T) {
	content := validHeader +
		"2025-01-01 08:00:00,80.0,16.0,35.0,3.2,45.0,morning\n" +
		"2025-01-01 21:30:00,82.0,16.2,35.5,3.25,44.8,\n" +
		"2025-01-02 08:05:00,81.0,16.1,35.2,3.22,44.9,after run\n"

	src := NewCSVSource(writeCSV(t, content), nil)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 3)

	first := records[0]
	want := time.Date(2025, 1, 1, 8, 0, 0, 0, time.Local)
	assert.Equal(t, want, first.Timestamp)
	assert.InDelta(t, 80.0, first.Metrics[aggregate.MetricWeight], 1e-9)
	assert.InDelta(t, 45.0, first.Metrics[aggregate.MetricHydration], 1e-9)
	assert.Equal(t, "line 2", first.Ref)

	// The Comments column is non-numeric and silently dropped.
	_, hasComments := first.Metrics["Comments"]
	assert.False(t, hasComments)
}

func TestCSVSourceDateOnly(t *testing.T) {
	content := validHeader + "2025-01-06,70.0,16.0,35.0,3.2,45.0,\n"
	src := NewCSVSource(writeCSV(t, content), nil)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, time.Date(2025, 1, 6, 0, 0, 0, 0, time.Local), records[0].Timestamp)
}

func TestCSVSourceMissingColumns(t *testing.T) {
	content := "Date,Weight (kg),Comments\n2025-01-01 08:00:00,80.0,hi\n"
	src := NewCSVSource(writeCSV(t, content), nil)

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))
	assert.Contains(t, err.Error(), aggregate.MetricFatMass)
	assert.Contains(t, err.Error(), aggregate.MetricMuscleMass)
	assert.Contains(t, err.Error(), aggregate.MetricBoneMass)
	assert.Contains(t, err.Error(), aggregate.MetricHydration)
}

func TestCSVSourceBadDate(t *testing.T) {
	content := validHeader +
		"2025-01-01 08:00:00,80.0,16.0,35.0,3.2,45.0,\n" +
		"not-a-date,81.0,16.0,35.0,3.2,45.0,\n"
	src := NewCSVSource(writeCSV(t, content), nil)

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParse))
	assert.Contains(t, err.Error(), "line 3")
	assert.Contains(t, err.Error(), "not-a-date")
}

func TestCSVSourceTruncatedRow(t *testing.T) {
	// Date is not the first column, so a short row has no Date cell at all.
	content := "Weight (kg),Date,Fat mass (kg),Muscle mass (kg),Bone mass (kg),Hydration (kg)\n" +
		"80.0,2025-01-01 08:00:00,16.0,35.0,3.2,45.0\n" +
		"81.0\n"
	src := NewCSVSource(writeCSV(t, content), nil)

	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParse))
	assert.Contains(t, err.Error(), "line 3")
}

func TestCSVSourceEmptyMetricCells(t *testing.T) {
	content := validHeader + "2025-01-01 08:00:00,80.0,,35.0,,45.0,\n"
	src := NewCSVSource(writeCSV(t, content), nil)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	require.Len(t, records, 1)

	metrics := records[0].Metrics
	_, hasFat := metrics[aggregate.MetricFatMass]
	assert.False(t, hasFat)
	_, hasBone := metrics[aggregate.MetricBoneMass]
	assert.False(t, hasBone)
	assert.InDelta(t, 35.0, metrics[aggregate.MetricMuscleMass], 1e-9)
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"), nil)
	_, err := src.Fetch(context.Background())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestCSVSourceNoDataRows(t *testing.T) {
	src := NewCSVSource(writeCSV(t, validHeader), nil)
	records, err := src.Fetch(context.Background())
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestCSVSourceFeedsAggregator(t *testing.T) {
	content := validHeader +
		"2025-01-06 07:00:00,70.0,16.0,35.0,3.2,45.0,\n" +
		"2025-01-06 22:00:00,71.0,16.2,35.5,3.25,44.8,\n" +
		"2025-01-13 08:00:00,72.0,16.1,35.2,3.22,44.9,\n"
	src := NewCSVSource(writeCSV(t, content), nil)

	records, err := src.Fetch(context.Background())
	require.NoError(t, err)

	table, err := aggregate.Aggregate(records)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2025W02", table.Rows[0].Label)
	assert.Equal(t, "70.50", table.Rows[0].Values[0].Format())
	assert.Equal(t, "2025W03", table.Rows[1].Label)
	assert.Equal(t, "72.00", table.Rows[1].Values[0].Format())
}
