package httpadapter

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/incident-ingest-service/internal/domain"
	"github.com/couchcryptid/incident-ingest-service/internal/pipeline"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Ingester runs one ingestion for a named source.
type Ingester interface {
	RunIngest(ctx context.Context, source string, params pipeline.Params) (domain.Tally, error)
}

// Server exposes health, readiness, metrics, on-demand ingestion, and the
// notification WebSocket.
type Server struct {
	httpServer *http.Server
	mux        *http.ServeMux
	logger     *slog.Logger
}

// Option registers optional routes.
type Option func(*Server)

// WithIngest mounts GET /ingest/{source}. defaultCity is used for weather
// when the request has no city parameter.
func WithIngest(ing Ingester, defaultCity string) Option {
	return func(s *Server) {
		s.mux.HandleFunc("GET /ingest/{source}", s.handleIngest(ing, defaultCity))
	}
}

// WithWebSocket mounts the notification stream at GET /ws.
func WithWebSocket(h http.Handler) Option {
	return func(s *Server) {
		s.mux.Handle("GET /ws", h)
	}
}

// NewServer creates an HTTP server with /healthz, /readyz, and /metrics routes.
func NewServer(addr string, ready sharedobs.ReadinessChecker, logger *slog.Logger, opts ...Option) *Server {
	mux := http.NewServeMux()

	s := &Server{
		httpServer: &http.Server{
			Addr:        addr,
			Handler:     mux,
			ReadTimeout: 10 * time.Second,
			// Ingestion requests wait for the whole run.
			WriteTimeout: 2 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		mux:    mux,
		logger: logger,
	}

	mux.HandleFunc("GET /healthz", sharedobs.LivenessHandler())
	mux.HandleFunc("GET /readyz", sharedobs.ReadinessHandler(ready))
	mux.Handle("GET /metrics", promhttp.Handler())

	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

type ingestResponse struct {
	Source   string `json:"source"`
	City     string `json:"city,omitempty"`
	Fetched  int    `json:"fetched"`
	Inserted int    `json:"inserted"`
	Skipped  int    `json:"skipped"`
	Failed   int    `json:"failed"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (s *Server) handleIngest(ing Ingester, defaultCity string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		source := r.PathValue("source")
		var params pipeline.Params
		city := ""
		if source == string(domain.SourceWeather) {
			city = r.URL.Query().Get("city")
			if city == "" {
				city = defaultCity
			}
			params = pipeline.Params{"city": city}
		}

		// A started run always completes, even if the caller goes away.
		ctx := context.WithoutCancel(r.Context())
		tally, err := ing.RunIngest(ctx, source, params)
		switch {
		case errors.Is(err, domain.ErrUnknownSource):
			writeJSON(w, http.StatusNotFound, errorResponse{Error: err.Error()})
			return
		case errors.Is(err, domain.ErrNotConfigured):
			writeJSON(w, http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
			return
		case err != nil:
			s.logger.Error("ingest request failed", "source", source, "error", err)
			writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "ingestion failed"})
			return
		}

		writeJSON(w, http.StatusOK, ingestResponse{
			Source:   source,
			City:     city,
			Fetched:  tally.Fetched,
			Inserted: tally.Inserted,
			Skipped:  tally.Skipped,
			Failed:   tally.Failed,
		})
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck // best-effort response
}
