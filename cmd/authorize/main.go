// Command authorize runs the interactive Withings OAuth2 authorization flow
// and stores the resulting tokens for the fetch command.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"time"

	"w2wcli/internal/config"
	"w2wcli/internal/infrastructure"
	"w2wcli/internal/withings"
)

func main() {
	timeout := flag.Duration("timeout", 2*time.Minute, "how long to wait for the browser redirect")
	flag.Parse()

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

	if _, err := config.EnsureConfigDir(); err != nil {
		fail(ctx, logger, "Failed to prepare config directory", err)
	}

	client := withings.NewClient(cfg.Withings, config.TokenPath(), logger)
	tokens, err := client.AuthorizeInteractive(ctx, *timeout)
	if err != nil {
		fail(ctx, logger, "Authorization failed", err)
	}

	logger.InfoContext(ctx, "Authorization completed",
		slog.Int64("userid", tokens.UserID),
		slog.String("token_path", config.TokenPath()))
	fmt.Println("Authorization complete. Tokens stored.")
}

func fail(ctx context.Context, logger *slog.Logger, msg string, err error) {
	logger.ErrorContext(ctx, msg, slog.String("error", err.Error()))
	fmt.Fprintf(os.Stderr, "authorize: %v\n", err)
	os.Exit(1)
}
