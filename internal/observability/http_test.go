package observability

import (
	"bytes"
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestTraceMiddlewarePreservesIncomingTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := TraceIDFromContext(r.Context()); got != "trace-1" {
			t.Fatalf("TraceIDFromContext() = %q", got)
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set(traceHeader, "trace-1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if got := rr.Header().Get(traceHeader); got != "trace-1" {
		t.Fatalf("trace header = %q", got)
	}
}

func TestTraceMiddlewareReplacesUnsafeTraceID(t *testing.T) {
	var seen string
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = TraceIDFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodPost, "/v1/ask", nil)
	req.Header.Set(traceHeader, "../../results/overwrite")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)

	if seen == "" || strings.Contains(seen, "/") {
		t.Fatalf("trace id = %q", seen)
	}
	if rr.Header().Get(traceHeader) != seen {
		t.Fatalf("trace header = %q, context = %q", rr.Header().Get(traceHeader), seen)
	}
}

func TestTraceMiddlewareGeneratesTraceID(t *testing.T) {
	h := TraceMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if len(TraceIDFromContext(r.Context())) != 32 {
			t.Fatalf("generated trace id = %q", TraceIDFromContext(r.Context()))
		}
		w.WriteHeader(http.StatusNoContent)
	}))

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Header().Get(traceHeader) == "" {
		t.Fatal("expected X-Trace-ID header")
	}
}

func TestEnsureTraceID(t *testing.T) {
	ctx := ContextWithTraceID(context.Background(), "abc123")
	if got := TraceIDFromContext(EnsureTraceID(ctx)); got != "abc123" {
		t.Fatalf("EnsureTraceID() replaced existing id with %q", got)
	}
	if got := TraceIDFromContext(EnsureTraceID(context.Background())); got == "" {
		t.Fatal("expected EnsureTraceID() to attach an id")
	}
}

func TestLoggingMiddlewareLevelFollowsStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))
	h := LoggingMiddleware(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/ask":
			w.WriteHeader(http.StatusBadRequest)
		case "/v1/ready":
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))

	for _, path := range []string{"/v1/health", "/v1/ask", "/v1/ready"} {
		h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("log lines = %q", lines)
	}
	for i, want := range []string{"level=INFO", "level=WARN", "level=ERROR"} {
		if !strings.Contains(lines[i], want) || !strings.Contains(lines[i], "duration_ms=") {
			t.Fatalf("line %d = %q, want %s", i, lines[i], want)
		}
	}
}

func TestRouteLabel(t *testing.T) {
	cases := map[string]string{
		"/v1/ask":        "/v1/ask",
		"/":              "/",
		"/process-query": "/process-query",
		"/wp-admin.php":  "other",
	}
	for path, want := range cases {
		if got := routeLabel(path); got != want {
			t.Fatalf("routeLabel(%q) = %q, want %q", path, got, want)
		}
	}
}
