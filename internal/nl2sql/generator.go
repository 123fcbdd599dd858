package nl2sql

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"
	"unicode"

	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/schema"
)

// FallbackSQL always executes and yields a single "error" column, so a failed
// generation reaches the caller as data.
const FallbackSQL = "SELECT 'An error occurred while generating SQL' AS error"

var ErrEmptySQL = errors.New("model returned empty SQL")

type GeneratorConfig struct {
	Schema   schema.Descriptor
	Dialect  Dialect
	Timeout  time.Duration
	Provider string
	Model    string
}

type Generator struct {
	completer TextCompleter
	schema    schema.Descriptor
	dialect   Dialect
	timeout   time.Duration
	provider  string
	model     string
	logger    *slog.Logger
}

func NewGenerator(completer TextCompleter, cfg GeneratorConfig, logger *slog.Logger) (*Generator, error) {
	if completer == nil {
		return nil, fmt.Errorf("text completer is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	dialect := cfg.Dialect
	if dialect == "" {
		dialect = DialectSQLite
	}
	return &Generator{
		completer: completer,
		schema:    cfg.Schema,
		dialect:   dialect,
		timeout:   timeout,
		provider:  cfg.Provider,
		model:     cfg.Model,
		logger:    logger,
	}, nil
}

func (g *Generator) Schema() schema.Descriptor {
	return g.schema
}

// Generate never returns an error: failures yield FallbackSQL with Err set.
func (g *Generator) Generate(ctx context.Context, question string) GeneratedQuery {
	start := time.Now()
	prompt := BuildDialectPrompt(g.dialect, g.schema, question)

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	raw, err := g.completer.Complete(callCtx, prompt)
	if err == nil {
		raw = NormalizeSQL(raw)
		if raw == "" {
			err = ErrEmptySQL
		}
	}
	if err != nil {
		observability.ObserveGeneration("failed", time.Since(start))
		if g.logger != nil {
			g.logger.WarnContext(ctx, "sql generation failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("provider", g.provider),
				slog.Any("error", err),
			)
		}
		return GeneratedQuery{SQL: FallbackSQL, Provider: g.provider, Model: g.model, Err: err}
	}

	observability.ObserveGeneration("ok", time.Since(start))
	return GeneratedQuery{SQL: raw, Provider: g.provider, Model: g.model}
}

// NormalizeSQL strips a surrounding markdown code fence, including any
// language tag on the opening fence line, and whitespace.
func NormalizeSQL(value string) string {
	trimmed := strings.TrimSpace(value)
	if body, ok := strings.CutPrefix(trimmed, "```"); ok {
		if tag, rest, found := strings.Cut(body, "\n"); found && isFenceTag(tag) {
			body = rest
		} else if len(body) >= 3 && strings.EqualFold(body[:3], "sql") {
			body = body[3:]
		}
		trimmed = body
	}
	trimmed = strings.TrimSuffix(strings.TrimSpace(trimmed), "```")
	return strings.TrimSpace(trimmed)
}

func isFenceTag(line string) bool {
	line = strings.TrimSpace(line)
	if strings.EqualFold(line, "select") || strings.EqualFold(line, "with") {
		return false
	}
	for _, r := range line {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' && r != '+' {
			return false
		}
	}
	return true
}
