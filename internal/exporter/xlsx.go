package exporter

import (
	"context"
	"log/slog"
	"math"

	"github.com/xuri/excelize/v2"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/errors"
)

// SheetName is the worksheet holding the weekly pivot.
const SheetName = "Weekly Averages"

// XLSXSink writes the table to an xlsx workbook.
type XLSXSink struct {
	path      string
	overwrite bool
	logger    *slog.Logger
}

// NewXLSXSink creates a sink writing to path. Existing files are only
// replaced when overwrite is set.
func NewXLSXSink(path string, overwrite bool, logger *slog.Logger) *XLSXSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &XLSXSink{path: path, overwrite: overwrite, logger: logger}
}

// Write persists the table as a single-sheet workbook. Numeric cells carry
// the display-rounded two-decimal values; missing cells stay empty.
func (s *XLSXSink) Write(ctx context.Context, table *aggregate.OutputTable) error {
	if err := ensureWritable(s.path, s.overwrite); err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return errors.NewStorageError("failed to name worksheet", err)
	}

	for col, name := range table.Columns {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return errors.NewStorageError("failed to compute header cell", err)
		}
		if err := f.SetCellValue(SheetName, cell, name); err != nil {
			return errors.NewStorageError("failed to write header cell", err)
		}
	}

	for i, row := range table.Rows {
		rowNum := i + 2
		cell, err := excelize.CoordinatesToCellName(1, rowNum)
		if err != nil {
			return errors.NewStorageError("failed to compute cell", err)
		}
		if err := f.SetCellValue(SheetName, cell, row.Label); err != nil {
			return errors.NewStorageError("failed to write week label", err)
		}
		for j, value := range row.Values {
			if !value.Valid {
				continue
			}
			cell, err := excelize.CoordinatesToCellName(j+2, rowNum)
			if err != nil {
				return errors.NewStorageError("failed to compute cell", err)
			}
			rounded := math.Round(value.Value*100) / 100
			if err := f.SetCellValue(SheetName, cell, rounded); err != nil {
				return errors.NewStorageError("failed to write value cell", err)
			}
		}
	}

	if err := f.SaveAs(s.path); err != nil {
		return errors.NewStorageError("failed to save workbook", err).
			WithContext("path", s.path)
	}

	s.logger.InfoContext(ctx, "wrote weekly pivot workbook",
		slog.String("path", s.path),
		slog.Int("weeks", len(table.Rows)))
	return nil
}
