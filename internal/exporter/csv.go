package exporter

import (
	"context"
	"encoding/csv"
	"log/slog"
	"os"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/errors"
)

// CSVSink writes the table as a CSV file.
type CSVSink struct {
	path      string
	overwrite bool
	logger    *slog.Logger
}

// NewCSVSink creates a sink writing to path. Existing files are only
// replaced when overwrite is set.
func NewCSVSink(path string, overwrite bool, logger *slog.Logger) *CSVSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &CSVSink{path: path, overwrite: overwrite, logger: logger}
}

// Write persists the table. Values are formatted with two decimal places;
// missing cells stay empty.
func (s *CSVSink) Write(ctx context.Context, table *aggregate.OutputTable) error {
	if err := ensureWritable(s.path, s.overwrite); err != nil {
		return err
	}

	f, err := os.Create(s.path)
	if err != nil {
		return errors.NewStorageError("failed to create CSV file", err).
			WithContext("path", s.path)
	}
	defer f.Close()

	writer := csv.NewWriter(f)
	if err := writer.Write(table.Columns); err != nil {
		return errors.NewStorageError("failed to write CSV header", err)
	}
	for _, row := range table.Rows {
		record := make([]string, 0, len(row.Values)+1)
		record = append(record, row.Label)
		for _, value := range row.Values {
			record = append(record, value.Format())
		}
		if err := writer.Write(record); err != nil {
			return errors.NewStorageError("failed to write CSV row", err)
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return errors.NewStorageError("CSV flush error", err)
	}

	s.logger.InfoContext(ctx, "wrote weekly pivot CSV",
		slog.String("path", s.path),
		slog.Int("weeks", len(table.Rows)))
	return nil
}
