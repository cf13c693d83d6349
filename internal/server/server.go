package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/refmatch/refmatch/internal/aggregate"
	"github.com/refmatch/refmatch/internal/model"
	"github.com/refmatch/refmatch/internal/orchestrator"
	"github.com/refmatch/refmatch/internal/ratelimit"
	"github.com/refmatch/refmatch/internal/recommend"
	"github.com/refmatch/refmatch/internal/repo"
	"github.com/refmatch/refmatch/internal/validation"
)

// Server is the HTTP server for the recommendation engine.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	handlers   *Handlers
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a Server.
// Optional fields (nil-safe): Limiter, Pinger. An empty APIKeyHash disables
// authentication.
type ServerConfig struct {
	// Required dependencies.
	Repo         repo.Repository
	Orchestrator *orchestrator.Orchestrator
	Aggregator   *aggregate.Aggregator
	Pipeline     *validation.Pipeline
	Recommend    *recommend.Service
	Logger       *slog.Logger

	// Optional dependencies (nil = disabled).
	Limiter ratelimit.Limiter
	Pinger  Pinger

	// HTTP server settings.
	Port                int
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	Version             string
	MaxRequestBodyBytes int64

	// APIKeyHash is the Argon2id hash of the API key every caller must
	// present. Empty disables auth (development and tests).
	APIKeyHash string

	// DefaultValidation is the pipeline config used when a validate
	// request supplies none.
	DefaultValidation model.ValidationConfig
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := NewHandlers(HandlersDeps{
		Repo:              cfg.Repo,
		Orchestrator:      cfg.Orchestrator,
		Aggregator:        cfg.Aggregator,
		Pipeline:          cfg.Pipeline,
		Recommend:         cfg.Recommend,
		Pinger:            cfg.Pinger,
		Logger:            cfg.Logger,
		Version:           cfg.Version,
		DefaultValidation: cfg.DefaultValidation,
	})

	rl := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc)

	mux := http.NewServeMux()

	// Process lifecycle.
	mux.Handle("POST /v1/processes", rl(http.HandlerFunc(h.HandleCreateProcess)))
	mux.Handle("GET /v1/processes/{process_id}", rl(http.HandlerFunc(h.HandleGetProcess)))
	mux.Handle("PUT /v1/processes/{process_id}/metadata", rl(http.HandlerFunc(h.HandleUpdateMetadata)))

	// Federated search.
	mux.Handle("POST /v1/processes/{process_id}/search", rl(http.HandlerFunc(h.HandleStartSearch)))
	mux.Handle("GET /v1/processes/{process_id}/search/status", rl(http.HandlerFunc(h.HandleSearchStatus)))
	mux.Handle("DELETE /v1/processes/{process_id}/search/status", rl(http.HandlerFunc(h.HandleClearSearchStatus)))

	// Manual search and candidate management.
	mux.Handle("GET /v1/search/authors", rl(http.HandlerFunc(h.HandleManualSearch)))
	mux.Handle("POST /v1/processes/{process_id}/candidates", rl(http.HandlerFunc(h.HandleAddCandidate)))

	// Validation.
	mux.Handle("POST /v1/processes/{process_id}/validate", rl(http.HandlerFunc(h.HandleValidate)))
	mux.Handle("POST /v1/processes/{process_id}/revalidate", rl(http.HandlerFunc(h.HandleRevalidate)))

	// Recommendations. GET runs the default query; POST accepts a full
	// query object in the body.
	mux.Handle("GET /v1/processes/{process_id}/recommendations", rl(http.HandlerFunc(h.HandleRecommendations)))
	mux.Handle("POST /v1/processes/{process_id}/recommendations", rl(http.HandlerFunc(h.HandleRecommendations)))
	mux.Handle("GET /v1/processes/{process_id}/filter-options", rl(http.HandlerFunc(h.HandleFilterOptions)))

	// Shortlists.
	mux.Handle("POST /v1/processes/{process_id}/shortlists", rl(http.HandlerFunc(h.HandleCreateShortlist)))
	mux.Handle("GET /v1/processes/{process_id}/shortlists", rl(http.HandlerFunc(h.HandleListShortlists)))

	// Health (no auth, no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Middleware chain (outermost executes first):
	// request ID → security headers → tracing → logging → auth → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = authMiddleware(cfg.APIKeyHash, handler)
	handler = bodyLimitMiddleware(cfg.MaxRequestBodyBytes, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = securityHeadersMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler:  handler,
		handlers: h,
		logger:   cfg.Logger,
	}
}

// bodyLimitMiddleware caps request body size. Zero or negative disables
// the limit.
func bodyLimitMiddleware(maxBytes int64, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if maxBytes > 0 && r.Body != nil {
			r.Body = http.MaxBytesReader(w, r.Body, maxBytes)
		}
		next.ServeHTTP(w, r)
	})
}

// Start begins serving HTTP requests.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the HTTP server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("http server shutting down")
	return s.httpServer.Shutdown(ctx)
}
