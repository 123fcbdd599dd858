package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/query"
)

type Config struct {
	Driver  string
	DSN     string
	Timeout time.Duration
	Guard   query.Guard
}

// Executor opens a dedicated connection for every statement and releases it
// before returning, so concurrent calls share no connection state.
type Executor struct {
	driver  string
	dsn     string
	timeout time.Duration
	guard   query.Guard
	logger  *slog.Logger
}

func NewExecutor(cfg Config, logger *slog.Logger) (*Executor, error) {
	driver := strings.TrimSpace(cfg.Driver)
	if driver == "" {
		return nil, fmt.Errorf("store driver is required")
	}
	if strings.TrimSpace(cfg.DSN) == "" {
		return nil, fmt.Errorf("store dsn is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Executor{
		driver:  driver,
		dsn:     cfg.DSN,
		timeout: timeout,
		guard:   cfg.Guard,
		logger:  logger,
	}, nil
}

func (e *Executor) Execute(ctx context.Context, sqlText string) query.Outcome {
	start := time.Now()
	result, err := e.execute(ctx, sqlText)
	if err != nil {
		outcome := "failed"
		if errors.Is(err, query.ErrStatementRejected) {
			outcome = "rejected"
			observability.IncrementGuardRejections()
		}
		observability.ObserveExecution(outcome, time.Since(start))
		if e.logger != nil {
			e.logger.WarnContext(ctx, "statement execution failed",
				slog.String("trace_id", observability.TraceIDFromContext(ctx)),
				slog.String("driver", e.driver),
				slog.Any("error", err),
			)
		}
		return query.Failure(FormatError(err))
	}
	result.Duration = time.Since(start)
	observability.ObserveExecution("ok", result.Duration)
	return query.Success(result)
}

// FormatError renders an execution error the way it is shown to users.
func FormatError(err error) string {
	return "Error: " + err.Error()
}

func (e *Executor) execute(ctx context.Context, sqlText string) (result query.Result, err error) {
	sqlText, err = query.SingleStatement(sqlText)
	if err != nil {
		return query.Result{}, err
	}
	if sqlText == "" {
		return query.Result{}, fmt.Errorf("sql is required")
	}
	if e.guard != nil {
		if err := e.guard.Check(sqlText); err != nil {
			return query.Result{}, err
		}
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	db, err := sql.Open(e.driver, e.dsn)
	if err != nil {
		return query.Result{}, fmt.Errorf("open store: %w", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(ctx)
	if err != nil {
		return query.Result{}, fmt.Errorf("connect store: %w", err)
	}
	defer func() { _ = conn.Close() }()

	rows, err := conn.QueryContext(ctx, sqlText)
	if err != nil {
		return query.Result{}, err
	}
	defer func() { _ = rows.Close() }()

	columns, err := rows.Columns()
	if err != nil {
		return query.Result{}, fmt.Errorf("query columns: %w", err)
	}

	resultRows := make([][]any, 0)
	for rows.Next() {
		values := make([]any, len(columns))
		scanTargets := make([]any, len(columns))
		for i := range values {
			scanTargets[i] = &values[i]
		}
		if err := rows.Scan(scanTargets...); err != nil {
			return query.Result{}, fmt.Errorf("scan row: %w", err)
		}
		resultRows = append(resultRows, normalizeValues(values))
	}
	if err := rows.Err(); err != nil {
		return query.Result{}, fmt.Errorf("iterate rows: %w", err)
	}

	return query.Result{Columns: columns, Rows: resultRows}, nil
}

func normalizeValues(values []any) []any {
	normalized := make([]any, len(values))
	for i, value := range values {
		switch typed := value.(type) {
		case []byte:
			normalized[i] = string(typed)
		default:
			normalized[i] = typed
		}
	}
	return normalized
}
