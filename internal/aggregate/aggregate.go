package aggregate

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"w2wcli/internal/errors"
)

// Canonical metric column names as they appear in Withings exports.
const (
	MetricWeight     = "Weight (kg)"
	MetricMuscleMass = "Muscle mass (kg)"
	MetricHydration  = "Hydration (kg)"
	MetricFatMass    = "Fat mass (kg)"
	MetricBoneMass   = "Bone mass (kg)"
)

// RequiredMetrics returns the metric columns that must be present somewhere
// in the input, in display order.
func RequiredMetrics() []string {
	return []string{
		MetricWeight,
		MetricMuscleMass,
		MetricHydration,
		MetricFatMass,
		MetricBoneMass,
	}
}

// WeekLabelColumn is the header of the first output column.
const WeekLabelColumn = "Week number"

// RawRecord is a single measurement event. Metrics maps metric column names
// to values; a metric absent from the map was not measured in this record.
// Ref identifies the record in its source (CSV line, API group id) for error
// reporting.
type RawRecord struct {
	Timestamp time.Time
	Metrics   map[string]float64
	Ref       string
}

// DailyAggregate holds per-metric means for one calendar date.
type DailyAggregate struct {
	Date    time.Time
	Metrics map[string]float64
}

// ISOWeek identifies a week in the ISO 8601 week-numbering scheme.
type ISOWeek struct {
	Year int
	Week int
}

// Label formats the week as YYYYWww with a zero-padded week number.
func (w ISOWeek) Label() string {
	return fmt.Sprintf("%04dW%02d", w.Year, w.Week)
}

// Before reports whether w sorts before other.
func (w ISOWeek) Before(other ISOWeek) bool {
	if w.Year != other.Year {
		return w.Year < other.Year
	}
	return w.Week < other.Week
}

// WeeklyAggregate holds per-metric means for one ISO week.
type WeeklyAggregate struct {
	Week    ISOWeek
	Metrics map[string]float64
}

// Cell is a single table value. Valid is false when the metric was never
// measured during that week.
type Cell struct {
	Value float64
	Valid bool
}

// Format renders the cell for display, rounded to two decimal places.
// Missing values render empty.
func (c Cell) Format() string {
	if !c.Valid {
		return ""
	}
	return fmt.Sprintf("%.2f", c.Value)
}

// Row is one output table row: a week label and its metric cells, aligned
// with OutputTable.Columns[1:].
type Row struct {
	Week   ISOWeek
	Label  string
	Values []Cell
}

// OutputTable is the finalized weekly pivot, sorted ascending by ISO
// (year, week). Columns starts with the week label column followed by the
// required metrics in fixed order, then any extra metrics in first-seen
// order. Cell values keep full precision; rounding happens in Cell.Format.
type OutputTable struct {
	Columns []string
	Rows    []Row
}

// Aggregate reduces raw records to the weekly pivot table.
//
// It validates that every required metric column is present somewhere in the
// input, partitions records by calendar date and averages each metric over
// the values present that day, then partitions the daily means by ISO week
// and averages again with equal weight per day. The result is either a
// complete table or a typed error; no partial output is produced.
func Aggregate(records []RawRecord) (*OutputTable, error) {
	if len(records) == 0 {
		return nil, errors.NewEmptyInputError("no measurements to aggregate")
	}
	if err := validate(records); err != nil {
		return nil, err
	}

	extras := extraMetrics(records)
	daily := reduceDaily(records)
	weekly := reduceWeekly(daily)

	return finalize(weekly, extras), nil
}

// validate confirms timestamps are usable and that each required metric
// appears in at least one record.
func validate(records []RawRecord) error {
	seen := make(map[string]bool)
	for i, r := range records {
		if r.Timestamp.IsZero() {
			ref := r.Ref
			if ref == "" {
				ref = fmt.Sprintf("record %d", i+1)
			}
			return errors.NewParseError(fmt.Sprintf("unparseable timestamp in %s", ref), nil)
		}
		for name := range r.Metrics {
			seen[name] = true
		}
	}

	var missing []string
	for _, name := range RequiredMetrics() {
		if !seen[name] {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return errors.NewSchemaError("missing required columns: " + strings.Join(missing, ", "))
	}
	return nil
}

// extraMetrics collects non-required metric columns in first-seen order.
// Ties within a single record resolve alphabetically since map iteration
// order is undefined.
func extraMetrics(records []RawRecord) []string {
	required := make(map[string]bool)
	for _, name := range RequiredMetrics() {
		required[name] = true
	}

	seen := make(map[string]bool)
	var extras []string
	for _, r := range records {
		var names []string
		for name := range r.Metrics {
			if !required[name] && !seen[name] {
				names = append(names, name)
			}
		}
		sort.Strings(names)
		for _, name := range names {
			seen[name] = true
			extras = append(extras, name)
		}
	}
	return extras
}

// metricSum accumulates a running mean per metric.
type metricSum struct {
	sum   map[string]float64
	count map[string]int
}

func newMetricSum() *metricSum {
	return &metricSum{sum: make(map[string]float64), count: make(map[string]int)}
}

func (m *metricSum) add(metrics map[string]float64) {
	for name, v := range metrics {
		m.sum[name] += v
		m.count[name]++
	}
}

func (m *metricSum) means() map[string]float64 {
	out := make(map[string]float64, len(m.sum))
	for name, total := range m.sum {
		out[name] = total / float64(m.count[name])
	}
	return out
}

// dateKey truncates a timestamp to its calendar date. Timestamps are treated
// as already-local; no timezone conversion is applied.
func dateKey(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// reduceDaily partitions records by calendar date and averages each metric
// over the values present that day. A record missing one metric does not
// block averaging of the others.
func reduceDaily(records []RawRecord) []DailyAggregate {
	byDate := make(map[time.Time]*metricSum)
	for _, r := range records {
		key := dateKey(r.Timestamp)
		acc, ok := byDate[key]
		if !ok {
			acc = newMetricSum()
			byDate[key] = acc
		}
		acc.add(r.Metrics)
	}

	daily := make([]DailyAggregate, 0, len(byDate))
	for date, acc := range byDate {
		daily = append(daily, DailyAggregate{Date: date, Metrics: acc.means()})
	}
	sort.Slice(daily, func(i, j int) bool { return daily[i].Date.Before(daily[j].Date) })
	return daily
}

// reduceWeekly partitions daily aggregates by ISO week and averages each
// metric over the days it was measured. Every day carries equal weight.
func reduceWeekly(daily []DailyAggregate) []WeeklyAggregate {
	byWeek := make(map[ISOWeek]*metricSum)
	for _, d := range daily {
		year, week := d.Date.ISOWeek()
		key := ISOWeek{Year: year, Week: week}
		acc, ok := byWeek[key]
		if !ok {
			acc = newMetricSum()
			byWeek[key] = acc
		}
		acc.add(d.Metrics)
	}

	weekly := make([]WeeklyAggregate, 0, len(byWeek))
	for week, acc := range byWeek {
		weekly = append(weekly, WeeklyAggregate{Week: week, Metrics: acc.means()})
	}
	sort.Slice(weekly, func(i, j int) bool { return weekly[i].Week.Before(weekly[j].Week) })
	return weekly
}

// finalize assembles the ordered output table from sorted weekly aggregates.
func finalize(weekly []WeeklyAggregate, extras []string) *OutputTable {
	metricCols := append(RequiredMetrics(), extras...)
	columns := append([]string{WeekLabelColumn}, metricCols...)

	rows := make([]Row, 0, len(weekly))
	for _, w := range weekly {
		values := make([]Cell, len(metricCols))
		for i, name := range metricCols {
			if v, ok := w.Metrics[name]; ok {
				values[i] = Cell{Value: v, Valid: true}
			}
		}
		rows = append(rows, Row{Week: w.Week, Label: w.Week.Label(), Values: values})
	}
	return &OutputTable{Columns: columns, Rows: rows}
}
