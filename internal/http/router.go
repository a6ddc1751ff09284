package http

import (
	"context"
	"net/http"
	"strings"
)

const schedulesPrefix = "/v2/schedules/"

// HealthChecker reports whether the service can reach its dependencies.
type HealthChecker interface {
	Ping(ctx context.Context) error
}

type RouterConfig struct {
	Policies   *PolicyHandler
	Health     HealthChecker
	Middleware []func(http.Handler) http.Handler
}

func NewRouter(cfg RouterConfig) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			methodNotAllowed(w, http.MethodGet, http.MethodHead)
			return
		}
		status, body := http.StatusOK, map[string]string{"status": "ok"}
		if cfg.Health != nil {
			if err := cfg.Health.Ping(r.Context()); err != nil {
				status, body = http.StatusServiceUnavailable, map[string]string{"status": "unavailable"}
			}
		}
		newResponder(nil).writeJSON(r.Context(), w, status, body)
	})

	if cfg.Policies != nil {
		mux.HandleFunc(schedulesPrefix, func(w http.ResponseWriter, r *http.Request) {
			appID := strings.TrimPrefix(r.URL.Path, schedulesPrefix)
			if appID == "" || strings.Contains(appID, "/") {
				http.NotFound(w, r)
				return
			}
			r = r.WithContext(ContextWithAppID(r.Context(), appID))
			switch r.Method {
			case http.MethodPut:
				cfg.Policies.Put(w, r)
			case http.MethodDelete:
				cfg.Policies.Delete(w, r)
			case http.MethodGet:
				cfg.Policies.Get(w, r)
			default:
				methodNotAllowed(w, http.MethodGet, http.MethodPut, http.MethodDelete)
			}
		})
	}

	var handler http.Handler = mux
	for i := len(cfg.Middleware) - 1; i >= 0; i-- {
		if cfg.Middleware[i] != nil {
			handler = cfg.Middleware[i](handler)
		}
	}
	return handler
}

func methodNotAllowed(w http.ResponseWriter, allowed ...string) {
	if len(allowed) > 0 {
		w.Header().Set("Allow", strings.Join(allowed, ", "))
	}
	http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
}
