package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/askql/askql/internal/archive"
	"github.com/askql/askql/internal/nl2sql"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/present"
	"github.com/askql/askql/internal/query"
	"github.com/askql/askql/internal/speech"
	"github.com/askql/askql/internal/storage"
)

const transcriberMissingMessage = "Error: speech transcription is not configured."

type SQLGenerator interface {
	Generate(ctx context.Context, question string) nl2sql.GeneratedQuery
}

type ResultArchiver interface {
	Archive(ctx context.Context, record archive.Record) (storage.ObjectInfo, error)
}

type Options struct {
	Transcriber speech.Transcriber
	Archiver    ResultArchiver
	Logger      *slog.Logger
}

// Response carries everything an entry point needs to show one answer.
type Response struct {
	Question        string          `json:"question"`
	SQL             string          `json:"sql"`
	GenerationError string          `json:"generation_error,omitempty"`
	Display         present.Display `json:"display"`
	Duration        time.Duration   `json:"-"`
}

// Pipeline turns a question into a rendered result. It holds no mutable
// state and is safe for concurrent use.
type Pipeline struct {
	generator   SQLGenerator
	executor    query.Executor
	transcriber speech.Transcriber
	archiver    ResultArchiver
	logger      *slog.Logger
}

func New(generator SQLGenerator, executor query.Executor, opts Options) (*Pipeline, error) {
	if generator == nil {
		return nil, fmt.Errorf("sql generator is required")
	}
	if executor == nil {
		return nil, fmt.Errorf("query executor is required")
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Pipeline{
		generator:   generator,
		executor:    executor,
		transcriber: opts.Transcriber,
		archiver:    opts.Archiver,
		logger:      logger,
	}, nil
}

func (p *Pipeline) Ask(ctx context.Context, question string) Response {
	start := time.Now()
	ctx = observability.EnsureTraceID(ctx)
	generated := p.generator.Generate(ctx, question)
	outcome := p.executor.Execute(ctx, generated.SQL)
	display := present.Present(outcome)

	response := Response{
		Question: question,
		SQL:      generated.SQL,
		Display:  display,
		Duration: time.Since(start),
	}
	if generated.Failed() {
		response.GenerationError = generated.Err.Error()
	}

	if display.State == present.StateTable && !generated.Failed() {
		p.archive(ctx, response)
	}

	p.logger.InfoContext(ctx, "question answered",
		slog.String("trace_id", observability.TraceIDFromContext(ctx)),
		slog.String("state", string(display.State)),
		slog.Int("rows", len(display.Rows)),
		slog.Bool("generation_failed", generated.Failed()),
		slog.Int64("duration_ms", response.Duration.Milliseconds()),
	)
	return response
}

// AskAudio transcribes audio and answers the resulting question. A failed
// transcription is returned as an error display without generating SQL.
func (p *Pipeline) AskAudio(ctx context.Context, audio []byte) Response {
	start := time.Now()
	ctx = observability.EnsureTraceID(ctx)
	if p.transcriber == nil {
		return Response{Display: present.Error(transcriberMissingMessage), Duration: time.Since(start)}
	}

	text, err := p.transcriber.Transcribe(ctx, audio)
	if err != nil {
		observability.ObserveTranscription("failed")
		p.logger.WarnContext(ctx, "transcription failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
		return Response{Display: present.Error(err.Error()), Duration: time.Since(start)}
	}
	observability.ObserveTranscription("ok")

	response := p.Ask(ctx, text)
	response.Duration = time.Since(start)
	return response
}

func (p *Pipeline) archive(ctx context.Context, response Response) {
	if p.archiver == nil {
		return
	}
	_, err := p.archiver.Archive(ctx, archive.Record{
		TraceID:  observability.TraceIDFromContext(ctx),
		Question: response.Question,
		SQL:      response.SQL,
		Headers:  response.Display.Headers,
		Rows:     response.Display.Rows,
	})
	if err != nil {
		p.logger.WarnContext(ctx, "archive query result failed",
			slog.String("trace_id", observability.TraceIDFromContext(ctx)),
			slog.Any("error", err),
		)
	}
}
