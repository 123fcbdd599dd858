package query

import (
	"context"
	"time"
)

type Result struct {
	Columns  []string
	Rows     [][]any
	Duration time.Duration
}

type OutcomeKind string

const (
	OutcomeSuccess OutcomeKind = "success"
	OutcomeFailure OutcomeKind = "failure"
)

// Outcome is either a successful Result or a failure Message, discriminated
// by Kind.
type Outcome struct {
	Kind    OutcomeKind
	Result  Result
	Message string
}

func Success(result Result) Outcome {
	return Outcome{Kind: OutcomeSuccess, Result: result}
}

func Failure(message string) Outcome {
	return Outcome{Kind: OutcomeFailure, Message: message}
}

func (o Outcome) Failed() bool {
	return o.Kind != OutcomeSuccess
}

// Executor runs exactly one statement and never returns a raw error.
type Executor interface {
	Execute(ctx context.Context, sql string) Outcome
}
