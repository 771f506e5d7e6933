// Command csvweeks converts a Withings weights.csv export into weekly
// pivot averages, written as a spreadsheet, CSV, or terminal table.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/config"
	"w2wcli/internal/exporter"
	"w2wcli/internal/infrastructure"
	"w2wcli/internal/source"
)

func main() {
	csvPath := flag.String("csv", "", "path to the Withings weights.csv export (required)")
	out := flag.String("out", "", "output file path (defaults to <input>-pivot.<format> next to the input)")
	format := flag.String("format", "xlsx", "output format: xlsx | csv")
	stdout := flag.Bool("stdout", false, "print the table to stdout instead of writing a file")
	overwrite := flag.Bool("overwrite", false, "replace the output file if it exists")
	flag.Parse()

	if *csvPath == "" {
		fmt.Fprintln(os.Stderr, "csvweeks: -csv is required")
		flag.Usage()
		os.Exit(2)
	}
	if *format != "xlsx" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "csvweeks: unsupported format %q\n", *format)
		os.Exit(2)
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Warn("Failed to load config, using defaults", "error", err)
		cfg = config.Default()
	}

	logger, err := infrastructure.InitializeLogger(cfg.Logging)
	if err != nil {
		slog.Warn("Failed to initialize logger, using default", "error", err)
		logger = slog.Default()
	}

	ctx := infrastructure.WithTraceID(context.Background(), infrastructure.NewTraceID())
	logger.InfoContext(ctx, "Starting CSV conversion",
		slog.String("csv_path", *csvPath),
		slog.String("format", *format),
		slog.Bool("stdout", *stdout))

	records, err := source.NewCSVSource(*csvPath, logger).Fetch(ctx)
	if err != nil {
		fail(ctx, logger, "Failed to read CSV export", err)
	}

	table, err := aggregate.Aggregate(records)
	if err != nil {
		fail(ctx, logger, "Aggregation failed", err)
	}

	var sink exporter.Sink
	var path string
	if *stdout {
		sink = exporter.NewConsoleSink(os.Stdout)
	} else {
		path = *out
		if path == "" {
			path = exporter.DeriveOutputPath(*csvPath, *format)
		} else {
			path = exporter.NormalizeExtension(path, *format)
		}
		switch *format {
		case "csv":
			sink = exporter.NewCSVSink(path, *overwrite, logger)
		default:
			sink = exporter.NewXLSXSink(path, *overwrite, logger)
		}
	}

	if err := sink.Write(ctx, table); err != nil {
		fail(ctx, logger, "Failed to write output", err)
	}
	if path != "" {
		fmt.Printf("Wrote weekly averages to %s\n", path)
	}

	logger.InfoContext(ctx, "CSV conversion completed", slog.Int("weeks", len(table.Rows)))
}

func fail(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	fmt.Fprintf(os.Stderr, "csvweeks: %v\n", err)
	os.Exit(1)
}
