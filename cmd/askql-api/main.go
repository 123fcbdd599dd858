package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/askql/askql/internal/api"
	"github.com/askql/askql/internal/app"
	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/observability"
)

func main() {
	cfg, err := config.LoadFromEnv("askql-api")
	if err != nil {
		slog.Error("failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := observability.NewLogger(cfg, os.Stdout)
	components, err := app.Build(context.Background(), cfg, logger, app.Overrides{})
	if err != nil {
		logger.Error("failed to build question pipeline", slog.Any("error", err))
		os.Exit(1)
	}

	page, err := api.NewPage(logger)
	if err != nil {
		logger.Error("failed to load page template", slog.Any("error", err))
		os.Exit(1)
	}

	deps := api.Dependencies{
		Logger:            logger,
		Asker:             components.Pipeline,
		Schema:            components.Schema,
		Dialect:           string(components.Dialect),
		UI:                page,
		Readiness:         api.CombineReadinessChecks(components.Readiness, components.ArchiveReadiness),
		DependencyTimeout: time.Second,
	}
	if components.Archive != nil {
		deps.Results = components.Archive
	}
	if cfg.Auth.Required {
		validator, err := auth.NewStaticAPIKeyValidator(cfg.Auth.StaticKeys)
		if err != nil {
			logger.Error("failed to parse static auth keys", slog.Any("error", err))
			os.Exit(1)
		}
		deps.AuthMiddleware = auth.Middleware(logger, validator)
	}

	handler := api.NewHandler(cfg, deps)
	server := &http.Server{
		Addr:         cfg.HTTP.Address,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("store_driver", cfg.Store.Driver),
			slog.String("ai_provider", cfg.AI.Provider),
		)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("api server failed", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	logger.Info("shutting down api server")
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", slog.Any("error", err))
		_ = server.Close()
		os.Exit(1)
	}
}
