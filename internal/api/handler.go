package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/askql/askql/internal/archive"
	"github.com/askql/askql/internal/auth"
	"github.com/askql/askql/internal/config"
	"github.com/askql/askql/internal/observability"
	"github.com/askql/askql/internal/pipeline"
	"github.com/askql/askql/internal/schema"
)

const defaultMaxAudioBytes = 25 << 20

type ReadinessCheck func(ctx context.Context) error

// Asker answers typed and spoken questions.
type Asker interface {
	Ask(ctx context.Context, question string) pipeline.Response
	AskAudio(ctx context.Context, audio []byte) pipeline.Response
}

// ResultLister lists archived query results for one UTC day.
type ResultLister interface {
	List(ctx context.Context, day time.Time) ([]archive.Entry, error)
}

type Dependencies struct {
	Logger            *slog.Logger
	Readiness         ReadinessCheck
	AuthMiddleware    func(http.Handler) http.Handler
	DependencyTimeout time.Duration
	Asker             Asker
	Schema            schema.Descriptor
	Dialect           string
	MaxAudioBytes     int64
	// Results is nil when result archiving is disabled.
	Results ResultLister
	// UI serves the HTML form routes; nil disables them.
	UI *Page
}

type route struct {
	pattern string
	handle  func(Dependencies, http.ResponseWriter, *http.Request)
}

// apiRoutes sit behind API-key auth when it is required.
var apiRoutes = []route{
	{"POST /v1/ask", handleAsk},
	{"POST /v1/ask/audio", handleAskAudio},
	{"GET /v1/schema", handleSchema},
	{"GET /v1/results", handleListResults},
}

func NewHandler(cfg config.Config, deps Dependencies) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /v1/health", func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{"status": "ok", "service": cfg.Service.Name})
	})
	mux.HandleFunc("GET /v1/ready", func(w http.ResponseWriter, r *http.Request) {
		handleReady(deps, w, r)
	})
	mux.Handle("GET /v1/metrics", promhttp.Handler())

	wrap := protect(cfg, deps)
	for _, rt := range apiRoutes {
		handle := rt.handle
		mux.Handle(rt.pattern, wrap(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			handle(deps, w, r)
		})))
	}

	if deps.UI != nil {
		mux.HandleFunc("GET /{$}", func(w http.ResponseWriter, r *http.Request) {
			deps.UI.Render(w, r, PageData{})
		})
		mux.HandleFunc("POST /process-query", func(w http.ResponseWriter, r *http.Request) {
			handleProcessQuery(deps, w, r)
		})
		mux.HandleFunc("POST /process-audio", func(w http.ResponseWriter, r *http.Request) {
			handleProcessAudio(deps, w, r)
		})
	}

	middlewares := []func(http.Handler) http.Handler{
		observability.TraceMiddleware,
		observability.MetricsMiddleware,
	}
	if deps.Logger != nil {
		middlewares = append(middlewares, observability.LoggingMiddleware(deps.Logger))
	}
	return chain(mux, middlewares...)
}

func protect(cfg config.Config, deps Dependencies) func(http.Handler) http.Handler {
	if !cfg.Auth.Required {
		return func(next http.Handler) http.Handler { return next }
	}
	if deps.AuthMiddleware == nil {
		if deps.Logger != nil {
			deps.Logger.Error("auth required but auth middleware missing")
		}
		return func(http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				writeError(r.Context(), w, http.StatusInternalServerError, "AUTH_MIDDLEWARE_MISSING", "auth middleware is required by configuration", false, nil)
			})
		}
	}
	return func(next http.Handler) http.Handler {
		return chain(next, deps.AuthMiddleware, auth.RequireRole(auth.RoleQueryReader))
	}
}

func handleReady(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if deps.Readiness != nil {
		timeout := deps.DependencyTimeout
		if timeout <= 0 {
			timeout = 2 * time.Second
		}
		ctx, cancel := context.WithTimeout(r.Context(), timeout)
		defer cancel()
		if err := deps.Readiness(ctx); err != nil {
			writeError(r.Context(), w, http.StatusServiceUnavailable, "NOT_READY", err.Error(), true, nil)
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func CombineReadinessChecks(checks ...ReadinessCheck) ReadinessCheck {
	filtered := make([]ReadinessCheck, 0, len(checks))
	for _, check := range checks {
		if check != nil {
			filtered = append(filtered, check)
		}
	}
	return func(ctx context.Context) error {
		for _, check := range filtered {
			if err := check(ctx); err != nil {
				return err
			}
		}
		return nil
	}
}

func chain(base http.Handler, middlewares ...func(http.Handler) http.Handler) http.Handler {
	wrapped := base
	for i := len(middlewares) - 1; i >= 0; i-- {
		wrapped = middlewares[i](wrapped)
	}
	return wrapped
}

func maxAudioBytes(deps Dependencies) int64 {
	if deps.MaxAudioBytes > 0 {
		return deps.MaxAudioBytes
	}
	return defaultMaxAudioBytes
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(ctx context.Context, w http.ResponseWriter, status int, code, message string, retryable bool, extra map[string]any) {
	writeJSON(w, status, map[string]any{
		"error_code": code,
		"message":    message,
		"retryable":  retryable,
		"context":    extra,
		"trace_id":   observability.TraceIDFromContext(ctx),
	})
}
