package server

import (
	"context"
	"net/http"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/gokatarajesh/exam-runner/internal/config"
	"github.com/gokatarajesh/exam-runner/internal/logging"
	httperrors "github.com/gokatarajesh/exam-runner/pkg/http/errors"
)

// PingFunc checks one dependency.
type PingFunc func(ctx context.Context) error

// Options wires the routes mounted next to health and metrics.
type Options struct {
	// Register mounts application routes.
	Register func(mux *http.ServeMux)
	// Dependencies are checked by /v1/ping, keyed by name.
	Dependencies map[string]PingFunc
	// Metrics defaults to the global Prometheus handler.
	Metrics http.Handler
}

// NewUpgrader builds the WebSocket upgrader. Browser origins must appear in the
// CORS allow-list; requests without an Origin header are accepted.
func NewUpgrader(cors config.CORS) *websocket.Upgrader {
	return &websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || originAllowed(cors.AllowedOrigins, origin)
		},
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
	}
}

// NewHTTPServer wires base routes (health, metrics, ping) and the application routes.
func NewHTTPServer(cfg *config.App, logger zerolog.Logger, opts Options) *http.Server {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	if opts.Metrics == nil {
		opts.Metrics = promhttp.Handler()
	}
	mux.Handle("/metrics", opts.Metrics)

	mux.HandleFunc("GET /v1/ping", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(logging.IntoContext(r.Context(), logger), 3*time.Second)
		defer cancel()
		if err := pingDependencies(ctx, opts.Dependencies); err != nil {
			l := logging.FromContext(ctx)
			l.Error().Err(err).Msg("dependency ping failed")
			httperrors.RespondServiceUnavailable(w, httperrors.ErrCodeServiceUnavailable, err.Error())
			return
		}
		httperrors.RespondJSON(w, http.StatusOK, map[string]bool{"pong": true})
	})

	if opts.Register != nil {
		opts.Register(mux)
	}

	return &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           withCORS(cfg.CORS, mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
}

type dependencyError struct {
	name string
	err  error
}

func (e *dependencyError) Error() string { return e.name + ": " + e.err.Error() }
func (e *dependencyError) Unwrap() error { return e.err }

func pingDependencies(ctx context.Context, deps map[string]PingFunc) error {
	names := make([]string, 0, len(deps))
	for name := range deps {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		if err := deps[name](ctx); err != nil {
			return &dependencyError{name: name, err: err}
		}
	}
	return nil
}

// withCORS answers preflight requests and decorates responses for allowed origins.
func withCORS(cors config.CORS, next http.Handler) http.Handler {
	methods := strings.Join(cors.AllowedMethods, ", ")
	headers := strings.Join(cors.AllowedHeaders, ", ")
	maxAge := strconv.Itoa(cors.MaxAge)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin == "" || !originAllowed(cors.AllowedOrigins, origin) {
			next.ServeHTTP(w, r)
			return
		}

		h := w.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		if cors.AllowCredentials {
			h.Set("Access-Control-Allow-Credentials", "true")
		}

		if r.Method == http.MethodOptions && r.Header.Get("Access-Control-Request-Method") != "" {
			h.Set("Access-Control-Allow-Methods", methods)
			h.Set("Access-Control-Allow-Headers", headers)
			h.Set("Access-Control-Max-Age", maxAge)
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func originAllowed(allowed []string, origin string) bool {
	for _, o := range allowed {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
