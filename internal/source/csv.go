package source

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/errors"
)

// dateColumn is the timestamp column of a Withings export.
const dateColumn = "Date"

// Timestamp layouts accepted in the Date column, tried in order.
var dateLayouts = []string{
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05",
	"2006-01-02",
}

// CSVSource reads a Withings weights.csv export.
type CSVSource struct {
	path   string
	logger *slog.Logger
}

// NewCSVSource creates a source reading the export at path.
func NewCSVSource(path string, logger *slog.Logger) *CSVSource {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSource{path: path, logger: logger}
}

// Fetch reads and parses the whole export.
//
// The header is validated once: the Date column and every required metric
// column must be present, otherwise a schema error naming all missing
// columns is returned. Unparseable Date values abort the read with a parse
// error naming the line. Non-numeric cells in other columns (such as a
// Comments column) are dropped silently.
func (s *CSVSource) Fetch(ctx context.Context) ([]aggregate.RawRecord, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, errors.NewStorageError("failed to open CSV export", err).
			WithContext("path", s.path)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = -1

	header, err := reader.Read()
	if err != nil {
		if err == io.EOF {
			return nil, errors.NewSchemaError("CSV export is empty")
		}
		return nil, errors.NewParseError("failed to read CSV header", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	dateIdx, err := validateHeader(header)
	if err != nil {
		return nil, err
	}

	s.logger.DebugContext(ctx, "reading CSV export",
		slog.String("path", s.path),
		slog.Int("columns", len(header)))

	var records []aggregate.RawRecord
	line := 1
	for {
		if err := ctx.Err(); err != nil {
			return nil, errors.NewStorageError("CSV read interrupted", err)
		}
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, errors.NewParseError(fmt.Sprintf("malformed CSV on line %d", line), err)
		}
		if len(row) <= dateIdx {
			return nil, errors.NewParseError(fmt.Sprintf("malformed CSV on line %d: %d columns, Date expected in column %d", line, len(row), dateIdx+1), nil)
		}

		ts, err := parseDate(row[dateIdx])
		if err != nil {
			return nil, errors.NewParseError(fmt.Sprintf("unparseable Date value %q on line %d", row[dateIdx], line), err)
		}

		metrics := make(map[string]float64)
		for i, cell := range row {
			if i == dateIdx || i >= len(header) {
				continue
			}
			cell = strings.TrimSpace(cell)
			if cell == "" {
				continue
			}
			v, err := strconv.ParseFloat(cell, 64)
			if err != nil {
				continue // non-numeric column, dropped
			}
			metrics[header[i]] = v
		}

		records = append(records, aggregate.RawRecord{
			Timestamp: ts,
			Metrics:   metrics,
			Ref:       fmt.Sprintf("line %d", line),
		})
	}

	s.logger.InfoContext(ctx, "read CSV export",
		slog.String("path", s.path),
		slog.Int("records", len(records)))
	return records, nil
}

// validateHeader checks for the Date column and all required metric columns,
// returning the Date column index.
func validateHeader(header []string) (int, error) {
	index := make(map[string]int, len(header))
	for i, name := range header {
		index[strings.TrimSpace(name)] = i
	}

	var missing []string
	dateIdx, ok := index[dateColumn]
	if !ok {
		missing = append(missing, dateColumn)
	}
	for _, name := range aggregate.RequiredMetrics() {
		if _, ok := index[name]; !ok {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return 0, errors.NewSchemaError("missing required columns: " + strings.Join(missing, ", "))
	}
	return dateIdx, nil
}

// parseDate parses a Date cell as already-local time.
func parseDate(value string) (time.Time, error) {
	value = strings.TrimSpace(value)
	var lastErr error
	for _, layout := range dateLayouts {
		t, err := time.ParseInLocation(layout, value, time.Local)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}
	return time.Time{}, lastErr
}
