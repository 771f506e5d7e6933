package exporter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"w2wcli/internal/aggregate"
	apperrors "w2wcli/internal/errors"
)

func sampleTable() *aggregate.OutputTable {
	return &aggregate.OutputTable{
		Columns: append([]string{aggregate.WeekLabelColumn}, aggregate.RequiredMetrics()...),
		Rows: []aggregate.Row{
			{
				Week:  aggregate.ISOWeek{Year: 2025, Week: 2},
				Label: "2025W02",
				Values: []aggregate.Cell{
					{Value: 70.5, Valid: true},
					{Value: 35.25, Valid: true},
					{Value: 44.9, Valid: true},
					{Value: 16.123, Valid: true},
					{Value: 3.2, Valid: true},
				},
			},
			{
				Week:  aggregate.ISOWeek{Year: 2025, Week: 3},
				Label: "2025W03",
				Values: []aggregate.Cell{
					{Value: 72.0, Valid: true},
					{Value: 35.0, Valid: true},
					{Value: 45.0, Valid: true},
					{Value: 16.0, Valid: true},
					{}, // bone mass missing this week
				},
			},
		},
	}
}

func TestDeriveOutputPath(t *testing.T) {
	assert.Equal(t, filepath.Join("data", "weights-pivot.xlsx"), DeriveOutputPath(filepath.Join("data", "weights.csv"), "xlsx"))
	assert.Equal(t, "weights-pivot.csv", DeriveOutputPath("weights.csv", "csv"))
}

func TestNormalizeExtension(t *testing.T) {
	assert.Equal(t, "out.xlsx", NormalizeExtension("out.xlsx", "xlsx"))
	assert.Equal(t, "out.xlsx", NormalizeExtension("out.XLSX", "xlsx"))
	assert.Equal(t, "out.xlsx", NormalizeExtension("out.ods", "xlsx"))
	assert.Equal(t, "out.xlsx", NormalizeExtension("out", "xlsx"))
}

func TestXLSXSinkRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly.xlsx")
	sink := NewXLSXSink(path, false, nil)
	require.NoError(t, sink.Write(context.Background(), sampleTable()))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(SheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)

	assert.Equal(t, aggregate.WeekLabelColumn, rows[0][0])
	assert.Equal(t, aggregate.MetricWeight, rows[0][1])

	assert.Equal(t, "2025W02", rows[1][0])
	assert.Equal(t, "70.5", rows[1][1])
	// Display rounding to two decimals happens in the sink.
	assert.Equal(t, "16.12", rows[1][4])

	assert.Equal(t, "2025W03", rows[2][0])
	// Missing bone mass leaves the cell empty.
	if len(rows[2]) > 5 {
		assert.Equal(t, "", rows[2][5])
	}
}

func TestXLSXSinkOverwriteProtection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o600))

	sink := NewXLSXSink(path, false, nil)
	err := sink.Write(context.Background(), sampleTable())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))

	// The existing file is untouched.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "existing", string(data))

	// With overwrite set the write goes through.
	sink = NewXLSXSink(path, true, nil)
	require.NoError(t, sink.Write(context.Background(), sampleTable()))
	_, err = excelize.OpenFile(path)
	assert.NoError(t, err)
}

func TestCSVSinkWrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly.csv")
	sink := NewCSVSink(path, false, nil)
	require.NoError(t, sink.Write(context.Background(), sampleTable()))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, lines, 3)

	assert.Equal(t, "Week number,Weight (kg),Muscle mass (kg),Hydration (kg),Fat mass (kg),Bone mass (kg)", lines[0])
	assert.Equal(t, "2025W02,70.50,35.25,44.90,16.12,3.20", lines[1])
	assert.Equal(t, "2025W03,72.00,35.00,45.00,16.00,", lines[2])
}

func TestCSVSinkOverwriteProtection(t *testing.T) {
	path := filepath.Join(t.TempDir(), "weekly.csv")
	require.NoError(t, os.WriteFile(path, []byte("existing"), 0o600))

	sink := NewCSVSink(path, false, nil)
	err := sink.Write(context.Background(), sampleTable())
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeStorage))
}

func TestConsoleSinkWrite(t *testing.T) {
	var buf bytes.Buffer
	sink := NewConsoleSink(&buf)
	require.NoError(t, sink.Write(context.Background(), sampleTable()))

	out := buf.String()
	assert.Contains(t, out, "Week number")
	assert.Contains(t, out, "Weight (kg)")
	assert.Contains(t, out, "2025W02")
	assert.Contains(t, out, "70.50")

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 3)
	// Missing bone mass renders as a dash.
	assert.Contains(t, lines[2], "-")
}
