// Command fetchweeks downloads scale measurements for a week range from the
// Withings API and writes weekly pivot averages.
//
// Weeks are given in ISO form ("2025W40") or short form ("40", resolved
// against the current ISO year). When -end is omitted the range ends with
// the last fully completed week.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"w2wcli/internal/aggregate"
	"w2wcli/internal/config"
	apperrors "w2wcli/internal/errors"
	"w2wcli/internal/exporter"
	"w2wcli/internal/infrastructure"
	"w2wcli/internal/source"
	"w2wcli/internal/withings"
)

func main() {
	startWeek := flag.String("start", "", "first week of the range, YYYYWww or ww (required)")
	endWeek := flag.String("end", "", "last week of the range (defaults to the last completed week)")
	out := flag.String("out", "", "output file path (defaults to weekly-<start>-<end>.<format>)")
	format := flag.String("format", "xlsx", "output format: xlsx | csv")
	stdout := flag.Bool("stdout", false, "print the table to stdout instead of writing a file")
	overwrite := flag.Bool("overwrite", false, "replace the output file if it exists")
	lastUpdate := flag.String("lastupdate", "", "only fetch groups modified since this date (2006-01-02)")
	flag.Parse()

	if *startWeek == "" {
		fmt.Fprintln(os.Stderr, "fetchweeks: -start is required")
		flag.Usage()
		os.Exit(2)
	}
	if *format != "xlsx" && *format != "csv" {
		fmt.Fprintf(os.Stderr, "fetchweeks: unsupported format %q\n", *format)
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

	if !cfg.Withings.HasCredentials() {
		fail(ctx, logger, "Missing Withings credentials",
			apperrors.NewConfigError("withings client_id and client_secret are not configured", nil).
				WithContext("config_file", config.ConfigFilePath()))
	}

	weekRange, err := aggregate.ResolveWeekRange(*startWeek, *endWeek, time.Now())
	if err != nil {
		fail(ctx, logger, "Invalid week range", err)
	}

	var since time.Time
	if *lastUpdate != "" {
		since, err = time.ParseInLocation("2006-01-02", *lastUpdate, time.Local)
		if err != nil {
			fail(ctx, logger, "Invalid -lastupdate value", err)
		}
	}

	logger.InfoContext(ctx, "Starting measurement fetch",
		slog.String("start_week", weekRange.StartCode),
		slog.String("end_week", weekRange.EndCode))

	if _, err := config.EnsureConfigDir(); err != nil {
		fail(ctx, logger, "Failed to prepare config directory", err)
	}
	client := withings.NewClient(cfg.Withings, config.TokenPath(), logger)

	records, err := source.NewAPISource(client, weekRange, since, logger).Fetch(ctx)
	if err != nil {
		fail(ctx, logger, "Failed to fetch measurements", err)
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
			path = fmt.Sprintf("weekly-%s-%s.%s", weekRange.StartCode, weekRange.EndCode, *format)
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

	logger.InfoContext(ctx, "Measurement fetch completed", slog.Int("weeks", len(table.Rows)))
}

func fail(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	fmt.Fprintf(os.Stderr, "fetchweeks: %v\n", err)
	os.Exit(1)
}
