package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/askql/askql/internal/archive"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/migrations"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/query/sqlstore"
	"github.com/askql/askql/internal/schema"
	"github.com/askql/askql/internal/speech"
	"github.com/askql/askql/internal/storage"
	s3store "github.com/askql/askql/internal/storage/s3"
)

// Components is the wired question pipeline shared by the CLI and the server.
type Components struct {
	Pipeline  *pipeline.Pipeline
	Schema    schema.Descriptor
	Dialect   nl2sql.Dialect
	Readiness func(ctx context.Context) error
	// Archive and ArchiveReadiness are nil unless result archiving is enabled.
	Archive          *archive.Archiver
	ArchiveReadiness func(ctx context.Context) error
}

// Overrides replaces externally reachable collaborators, mainly for tests.
type Overrides struct {
	Completer   nl2sql.TextCompleter
	ObjectStore storage.ObjectStore
}

func Build(ctx context.Context, cfg config.Config, logger *slog.Logger, overrides Overrides) (*Components, error) {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	dialectName, err := sqlstore.Dialect(cfg.Store.Driver)
	if err != nil {
		return nil, err
	}
	dialect := nl2sql.Dialect(dialectName)

	if cfg.Store.AutoMigrate {
		applied, err := Migrate(ctx, cfg.Store)
		if err != nil {
			return nil, err
		}
		if applied > 0 {
			logger.Info("store migrations applied", slog.Int("count", applied))
		}
	}

	descriptor := schema.Default()
	guard, err := query.GuardForMode(cfg.Store.Guard, descriptor)
	if err != nil {
		return nil, err
	}
	executor, err := sqlstore.NewExecutor(sqlstore.Config{
		Driver:  cfg.Store.Driver,
		DSN:     cfg.Store.DSN,
		Timeout: cfg.Store.Timeout,
		Guard:   guard,
	}, logger)
	if err != nil {
		return nil, err
	}

	completer := overrides.Completer
	model := cfg.AI.Model
	if completer == nil {
		completer, model, err = NewCompleter(ctx, cfg.AI)
		if err != nil {
			return nil, err
		}
	}
	generator, err := nl2sql.NewGenerator(completer, nl2sql.GeneratorConfig{
		Schema:   descriptor,
		Dialect:  dialect,
		Timeout:  cfg.AI.Timeout,
		Provider: cfg.AI.Provider,
		Model:    model,
	}, logger)
	if err != nil {
		return nil, err
	}

	var (
		archiver         *archive.Archiver
		archiveReadiness func(ctx context.Context) error
	)
	opts := pipeline.Options{Logger: logger}
	if cfg.Speech.APIKey != "" {
		transcriber, err := speech.NewWhisperTranscriber(speech.WhisperConfig{
			URL:     cfg.Speech.URL,
			APIKey:  cfg.Speech.APIKey,
			Timeout: cfg.Speech.Timeout,
		})
		if err != nil {
			return nil, err
		}
		opts.Transcriber = transcriber
	}
	if cfg.Archive.Enabled {
		store := overrides.ObjectStore
		if store == nil {
			store, err = s3store.New(ctx, s3store.Config{
				Endpoint:         cfg.ObjectStore.Endpoint,
				Region:           cfg.ObjectStore.Region,
				Bucket:           cfg.ObjectStore.Bucket,
				AccessKeyID:      cfg.ObjectStore.AccessKeyID,
				SecretAccessKey:  cfg.ObjectStore.SecretAccessKey,
				UseSSL:           cfg.ObjectStore.UseSSL,
				Prefix:           cfg.ObjectStore.Prefix,
				AutoCreateBucket: cfg.ObjectStore.AutoCreateBucket,
			})
			if err != nil {
				return nil, fmt.Errorf("initialize object store: %w", err)
			}
		}
		if pinger, ok := store.(interface{ Ping(context.Context) error }); ok {
			archiveReadiness = pinger.Ping
		}
		archiver, err = archive.New(store, archive.Config{Prefix: cfg.Archive.Prefix}, logger)
		if err != nil {
			return nil, err
		}
		opts.Archiver = archiver
	}

	p, err := pipeline.New(generator, executor, opts)
	if err != nil {
		return nil, err
	}
	return &Components{
		Pipeline:         p,
		Schema:           descriptor,
		Dialect:          dialect,
		Readiness:        sqlstore.HealthCheck(cfg.Store.Driver, cfg.Store.DSN),
		Archive:          archiver,
		ArchiveReadiness: archiveReadiness,
	}, nil
}

// NewCompleter selects the language-model client for the configured provider
// and reports the model it will use.
func NewCompleter(ctx context.Context, cfg config.AIConfig) (nl2sql.TextCompleter, string, error) {
	switch cfg.Provider {
	case config.ProviderGemini:
		completer, err := nl2sql.NewGeminiCompleter(ctx, nl2sql.GeminiConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
		})
		if err != nil {
			return nil, "", fmt.Errorf("initialize gemini completer: %w", err)
		}
		return completer, completer.Model(), nil
	case config.ProviderOpenAI, "":
		completer, err := nl2sql.NewOpenAICompleter(nl2sql.OpenAIConfig{
			BaseURL:     cfg.BaseURL,
			APIKey:      cfg.APIKey,
			Model:       cfg.Model,
			Temperature: cfg.Temperature,
			Timeout:     cfg.Timeout,
		})
		if err != nil {
			return nil, "", fmt.Errorf("initialize openai completer: %w", err)
		}
		return completer, completer.Model(), nil
	default:
		return nil, "", fmt.Errorf("unsupported ai provider %q", cfg.Provider)
	}
}

// Migrate applies pending store migrations and reports how many ran.
func Migrate(ctx context.Context, cfg config.StoreConfig) (int, error) {
	db, err := sqlstore.Open(ctx, cfg.Driver, cfg.DSN)
	if err != nil {
		return 0, err
	}
	defer func() { _ = db.Close() }()

	applied, err := migrations.NewRunner().Up(ctx, db, 0)
	if err != nil {
		return applied, fmt.Errorf("migrate store: %w", err)
	}
	return applied, nil
}
