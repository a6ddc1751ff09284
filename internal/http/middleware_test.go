package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

type pingerFunc func(ctx context.Context) error

func (f pingerFunc) Ping(ctx context.Context) error { return f(ctx) }

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	var sawLogger bool
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sawLogger = LoggerFromContext(r.Context()) != nil
		w.WriteHeader(http.StatusTeapot)
	})
	handler := RequestLogger(logger)(next)

	t.Run("keeps the incoming request id", func(t *testing.T) {
		buf.Reset()
		req := httptest.NewRequest(http.MethodGet, "/v2/schedules/app-1", nil)
		req.Header.Set(requestIDHeader, "req-42")
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)

		if got := rec.Header().Get(requestIDHeader); got != "req-42" {
			t.Fatalf("expected echoed request id, got %q", got)
		}
		if !sawLogger {
			t.Fatal("expected a logger in the request context")
		}
		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("decode log: %v", err)
		}
		if entry["request_id"] != "req-42" || entry["status"] != float64(http.StatusTeapot) {
			t.Fatalf("unexpected log entry %v", entry)
		}
	})

	t.Run("assigns a request id", func(t *testing.T) {
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Header().Get(requestIDHeader) == "" {
			t.Fatal("expected a generated request id")
		}
	})
}

func TestRecoverer(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	handler := Recoverer(slog.New(slog.NewTextHandler(&buf, nil)))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
	if !strings.Contains(buf.String(), "handler panicked") {
		t.Fatalf("expected panic to be logged, got %q", buf.String())
	}
}

func TestHealthz(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		health HealthChecker
		status int
		body   string
	}{
		{name: "no checker", status: http.StatusOK, body: "ok"},
		{name: "healthy", health: pingerFunc(func(context.Context) error { return nil }), status: http.StatusOK, body: "ok"},
		{name: "unhealthy", health: pingerFunc(func(context.Context) error { return errors.New("db closed") }), status: http.StatusServiceUnavailable, body: "unavailable"},
	}

	for _, tc := range tests {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			router := NewRouter(RouterConfig{Health: tc.health})
			rec := httptest.NewRecorder()
			router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
			if rec.Code != tc.status {
				t.Fatalf("expected %d, got %d", tc.status, rec.Code)
			}
			var body map[string]string
			if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil || body["status"] != tc.body {
				t.Fatalf("unexpected body %q", rec.Body.String())
			}
		})
	}
}

func TestRouterAppliesMiddlewareInOrder(t *testing.T) {
	t.Parallel()

	var order []string
	mark := func(name string) func(http.Handler) http.Handler {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	router := NewRouter(RouterConfig{Middleware: []func(http.Handler) http.Handler{mark("outer"), mark("inner")}})
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("expected [outer inner], got %v", order)
	}
}
