package nl2sql

import "context"

// TextCompleter is the opaque language-model endpoint: prompt in, text out.
type TextCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}

type CompleterFunc func(ctx context.Context, prompt string) (string, error)

func (f CompleterFunc) Complete(ctx context.Context, prompt string) (string, error) {
	return f(ctx, prompt)
}

// GeneratedQuery is a single normalized SQL statement. When generation failed,
// SQL holds the fallback statement and Err the cause.
type GeneratedQuery struct {
	SQL      string `json:"sql"`
	Provider string `json:"provider,omitempty"`
	Model    string `json:"model,omitempty"`
	Err      error  `json:"-"`
}

func (q GeneratedQuery) Failed() bool {
	return q.Err != nil
}
