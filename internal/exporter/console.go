package exporter

import (
	"context"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/errors"
)

// ConsoleSink renders the table as an aligned text table.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink creates a sink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

// Write renders the table. Missing cells render as "-".
func (s *ConsoleSink) Write(ctx context.Context, table *aggregate.OutputTable) error {
	tw := tabwriter.NewWriter(s.w, 0, 4, 2, ' ', 0)

	fmt.Fprintln(tw, strings.Join(table.Columns, "\t"))
	for _, row := range table.Rows {
		fields := make([]string, 0, len(row.Values)+1)
		fields = append(fields, row.Label)
		for _, value := range row.Values {
			if value.Valid {
				fields = append(fields, value.Format())
			} else {
				fields = append(fields, "-")
			}
		}
		fmt.Fprintln(tw, strings.Join(fields, "\t"))
	}

	if err := tw.Flush(); err != nil {
		return errors.NewStorageError("failed to render table", err)
	}
	return nil
}
