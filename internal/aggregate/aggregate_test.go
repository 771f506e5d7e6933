package aggregate

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "w2wcli/internal/errors"
)

func record(ts string, metrics map[string]float64) RawRecord {
	t, err := time.ParseInLocation("2006-01-02 15:04:05", ts, time.Local)
	if err != nil {
		panic(err)
	}
	return RawRecord{Timestamp: t, Metrics: metrics}
}

// fullMetrics returns a record carrying every required metric, with the
// given weight.
func fullMetrics(weight float64) map[string]float64 {
	return map[string]float64{
		MetricWeight:     weight,
		MetricMuscleMass: 35.0,
		MetricHydration:  45.0,
		MetricFatMass:    16.0,
		MetricBoneMass:   3.2,
	}
}

func weightAt(t *testing.T, table *OutputTable, label string) Cell {
	t.Helper()
	require.Equal(t, WeekLabelColumn, table.Columns[0])
	require.Equal(t, MetricWeight, table.Columns[1])
	for _, row := range table.Rows {
		if row.Label == label {
			return row.Values[0]
		}
	}
	t.Fatalf("no row with label %s", label)
	return Cell{}
}

func TestAggregateEmptyInput(t *testing.T) {
	_, err := Aggregate(nil)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeEmptyInput))
}

func TestAggregateMissingRequiredColumns(t *testing.T) {
	records := []RawRecord{
		record("2025-01-06 08:00:00", map[string]float64{
			MetricWeight:    70.0,
			MetricHydration: 45.0,
		}),
	}
	_, err := Aggregate(records)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeSchema))
	assert.Contains(t, err.Error(), MetricMuscleMass)
	assert.Contains(t, err.Error(), MetricFatMass)
	assert.Contains(t, err.Error(), MetricBoneMass)
	assert.NotContains(t, err.Error(), MetricHydration)
}

func TestAggregateUnparseableTimestamp(t *testing.T) {
	records := []RawRecord{
		record("2025-01-06 08:00:00", fullMetrics(70.0)),
		{Metrics: fullMetrics(71.0), Ref: "line 3"},
	}
	_, err := Aggregate(records)
	require.Error(t, err)
	assert.True(t, apperrors.IsType(err, apperrors.ErrTypeParse))
	assert.Contains(t, err.Error(), "line 3")
}

func TestAggregateWeeklyScenario(t *testing.T) {
	// Two records on 2025-01-06 and one on 2025-01-13 land in ISO weeks
	// 2025W02 and 2025W03 with daily means 70.5 and 72.0.
	records := []RawRecord{
		record("2025-01-06 07:30:00", fullMetrics(70.0)),
		record("2025-01-06 21:10:00", fullMetrics(71.0)),
		record("2025-01-13 08:00:00", fullMetrics(72.0)),
	}

	table, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)
	assert.Equal(t, "2025W02", table.Rows[0].Label)
	assert.Equal(t, "2025W03", table.Rows[1].Label)

	w02 := weightAt(t, table, "2025W02")
	require.True(t, w02.Valid)
	assert.InDelta(t, 70.5, w02.Value, 1e-9)

	w03 := weightAt(t, table, "2025W03")
	require.True(t, w03.Valid)
	assert.InDelta(t, 72.0, w03.Value, 1e-9)
}

func TestAggregateEqualWeightPerDay(t *testing.T) {
	// One day with ten measurements averaging 70.0 and a second day in the
	// same week with a single 80.0. The week must average the two daily
	// means, not the eleven raw records.
	var records []RawRecord
	for i := 0; i < 5; i++ {
		records = append(records, record("2025-01-06 08:00:00", fullMetrics(69.0)))
		records = append(records, record("2025-01-06 20:00:00", fullMetrics(71.0)))
	}
	records = append(records, record("2025-01-07 08:00:00", fullMetrics(80.0)))

	table, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	w := weightAt(t, table, "2025W02")
	require.True(t, w.Valid)
	assert.InDelta(t, 75.0, w.Value, 1e-9)
	flat := (70.0*10 + 80.0) / 11
	assert.Greater(t, w.Value-flat, 1.0, "weekly mean must not collapse to the flat record mean")
}

func TestAggregateISOWeekYearBoundary(t *testing.T) {
	// 2024-12-31 is a Tuesday in ISO week 2025W01.
	records := []RawRecord{
		record("2024-12-31 09:00:00", fullMetrics(70.0)),
	}
	table, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)
	assert.Equal(t, "2025W01", table.Rows[0].Label)
	assert.Equal(t, ISOWeek{Year: 2025, Week: 1}, table.Rows[0].Week)
}

func TestAggregateOrderIndependence(t *testing.T) {
	base := []RawRecord{
		record("2025-01-06 07:30:00", fullMetrics(70.0)),
		record("2025-01-06 21:10:00", fullMetrics(71.0)),
		record("2025-01-08 08:00:00", fullMetrics(70.6)),
		record("2025-01-13 08:00:00", fullMetrics(72.0)),
		record("2025-01-14 08:00:00", fullMetrics(72.4)),
	}

	want, err := Aggregate(base)
	require.NoError(t, err)

	shuffled := make([]RawRecord, len(base))
	copy(shuffled, base)
	rng := rand.New(rand.NewSource(42))
	for trial := 0; trial < 5; trial++ {
		rng.Shuffle(len(shuffled), func(i, j int) {
			shuffled[i], shuffled[j] = shuffled[j], shuffled[i]
		})
		got, err := Aggregate(shuffled)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestAggregatePartialMetrics(t *testing.T) {
	// A record missing hydration must not corrupt the other averages, and
	// the hydration mean must cover only the values present.
	records := []RawRecord{
		record("2025-01-06 08:00:00", fullMetrics(70.0)),
		record("2025-01-06 20:00:00", map[string]float64{
			MetricWeight: 72.0,
		}),
	}

	table, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, table.Rows, 1)

	row := table.Rows[0]
	weight := row.Values[0]
	require.True(t, weight.Valid)
	assert.InDelta(t, 71.0, weight.Value, 1e-9)

	hydrationIdx := -1
	for i, col := range table.Columns[1:] {
		if col == MetricHydration {
			hydrationIdx = i
		}
	}
	require.GreaterOrEqual(t, hydrationIdx, 0)
	hydration := row.Values[hydrationIdx]
	require.True(t, hydration.Valid)
	assert.InDelta(t, 45.0, hydration.Value, 1e-9)
}

func TestAggregateExtraMetricColumns(t *testing.T) {
	metrics := fullMetrics(70.0)
	metrics["Fat-free mass (kg)"] = 54.0
	records := []RawRecord{
		record("2025-01-06 08:00:00", metrics),
	}

	table, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, table.Columns, 7)
	assert.Equal(t, []string{
		WeekLabelColumn,
		MetricWeight,
		MetricMuscleMass,
		MetricHydration,
		MetricFatMass,
		MetricBoneMass,
		"Fat-free mass (kg)",
	}, table.Columns)

	extra := table.Rows[0].Values[5]
	require.True(t, extra.Valid)
	assert.InDelta(t, 54.0, extra.Value, 1e-9)
}

func TestAggregateMissingMetricWholeWeek(t *testing.T) {
	// Bone mass present only in the first week; the second week's cell is
	// empty rather than zero.
	withBone := fullMetrics(70.0)
	withoutBone := map[string]float64{
		MetricWeight:     72.0,
		MetricMuscleMass: 35.0,
		MetricHydration:  45.0,
		MetricFatMass:    16.0,
	}
	records := []RawRecord{
		record("2025-01-06 08:00:00", withBone),
		record("2025-01-13 08:00:00", withoutBone),
	}

	table, err := Aggregate(records)
	require.NoError(t, err)
	require.Len(t, table.Rows, 2)

	boneIdx := 4 // Bone mass is the fifth metric column
	assert.True(t, table.Rows[0].Values[boneIdx].Valid)
	assert.False(t, table.Rows[1].Values[boneIdx].Valid)
	assert.Equal(t, "", table.Rows[1].Values[boneIdx].Format())
}

func TestCellFormat(t *testing.T) {
	assert.Equal(t, "70.50", Cell{Value: 70.5, Valid: true}.Format())
	assert.Equal(t, "13.40", Cell{Value: 13.4, Valid: true}.Format())
	assert.Equal(t, "", Cell{}.Format())
}
