package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/askql/askql/internal/app"
	cli "github.com/askql/askql/internal/cli/askql"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/observability"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	timeout := parseDurationWithDefault(strings.TrimSpace(os.Getenv("ASKQL_CLI_TIMEOUT")), 60*time.Second)
	options := cli.Options{
		BaseURL: strings.TrimSpace(os.Getenv("ASKQL_API_URL")),
		APIKey:  strings.TrimSpace(os.Getenv("ASKQL_API_KEY")),
		Timeout: timeout,
		Local:   buildLocal,
		Stdout:  os.Stdout,
		Stderr:  os.Stderr,
	}

	code := cli.Run(ctx, os.Args[1:], options)
	stop()
	os.Exit(code)
}

func buildLocal(ctx context.Context) (cli.Asker, error) {
	cfg, err := config.LoadFromEnv("askql")
	if err != nil {
		return nil, err
	}
	if _, ok := os.LookupEnv("ASKQL_LOG_LEVEL"); !ok {
		cfg.Observability.LogLevel = slog.LevelWarn
	}
	logger := observability.NewLogger(cfg, os.Stderr)
	components, err := app.Build(ctx, cfg, logger, app.Overrides{})
	if err != nil {
		return nil, err
	}
	return components.Pipeline, nil
}

func parseDurationWithDefault(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid ASKQL_CLI_TIMEOUT %q; using %s\n", raw, fallback)
		return fallback
	}
	return parsed
}
