package source

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/withings"
)

// metricNames maps Withings measure types to the aggregator's column names.
// Fat-free mass has no column in the export format, so it joins the table as
// an extra metric column.
var metricNames = map[withings.MeasureType]string{
	withings.MeasureWeightKG:      aggregate.MetricWeight,
	withings.MeasureMuscleMassKG:  aggregate.MetricMuscleMass,
	withings.MeasureHydrationKG:   aggregate.MetricHydration,
	withings.MeasureFatMassKG:     aggregate.MetricFatMass,
	withings.MeasureBoneMassKG:    aggregate.MetricBoneMass,
	withings.MeasureFatFreeMassKG: "Fat-free mass (kg)",
}

// MeasureFetcher is the part of the Withings client the API source needs.
type MeasureFetcher interface {
	FetchAllMeasures(ctx context.Context, start, end time.Time, opts withings.FetchOptions) ([]withings.Record, error)
}

// APISource fetches measurements for a resolved week range from the
// Withings measure API.
type APISource struct {
	client     MeasureFetcher
	weekRange  aggregate.WeekRange
	lastUpdate time.Time
	logger     *slog.Logger
}

// NewAPISource creates a source covering the given week range. A non-zero
// lastUpdate restricts the fetch to groups modified since that instant.
func NewAPISource(client MeasureFetcher, weekRange aggregate.WeekRange, lastUpdate time.Time, logger *slog.Logger) *APISource {
	if logger == nil {
		logger = slog.Default()
	}
	return &APISource{client: client, weekRange: weekRange, lastUpdate: lastUpdate, logger: logger}
}

// Fetch retrieves all pages for the range and converts them to raw records.
func (s *APISource) Fetch(ctx context.Context) ([]aggregate.RawRecord, error) {
	// The API range is inclusive while the week range end is exclusive.
	start := s.weekRange.Start
	end := s.weekRange.End.Add(-time.Second)

	s.logger.InfoContext(ctx, "fetching measurements",
		slog.String("start_week", s.weekRange.StartCode),
		slog.String("end_week", s.weekRange.EndCode))

	measures, err := s.client.FetchAllMeasures(ctx, start, end, withings.FetchOptions{
		LastUpdate: s.lastUpdate,
	})
	if err != nil {
		return nil, err
	}

	records := make([]aggregate.RawRecord, 0, len(measures))
	for _, m := range measures {
		metrics := make(map[string]float64, len(m.Values))
		for mt, v := range m.Values {
			name, ok := metricNames[mt]
			if !ok {
				continue
			}
			metrics[name] = v
		}
		records = append(records, aggregate.RawRecord{
			Timestamp: m.Timestamp,
			Metrics:   metrics,
			Ref:       fmt.Sprintf("measure group %d", m.GroupID),
		})
	}

	s.logger.InfoContext(ctx, "fetched measurements", slog.Int("records", len(records)))
	return records, nil
}
