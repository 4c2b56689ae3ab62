package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/digital-coe/agenthub/internal/ratelimit"
)

// Server is the Agent Hub HTTP server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// Handler returns the root HTTP handler for use in tests.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// ServerConfig holds all dependencies and configuration for creating a
// Server. Limiter is optional; nil disables rate limiting.
type ServerConfig struct {
	Handlers *Handlers
	Limiter  ratelimit.Limiter
	Logger   *slog.Logger

	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// New creates a new HTTP server with all routes configured.
func New(cfg ServerConfig) *Server {
	h := cfg.Handlers

	reqIDFunc := func(r *http.Request) string {
		return RequestIDFromContext(r.Context())
	}

	// Imports and analysis do real work per request; everything else is a
	// cheap read or a single-row write and goes unlimited.
	expensiveRL := ratelimit.Middleware(cfg.Limiter, ratelimit.IPKeyFunc, reqIDFunc)

	mux := http.NewServeMux()

	// Health (no rate limit).
	mux.HandleFunc("GET /health", h.HandleHealth)

	// Catalog.
	mux.HandleFunc("POST /v1/agents", h.HandleCreateAgent)
	mux.HandleFunc("GET /v1/agents", h.HandleListAgents)
	mux.HandleFunc("GET /v1/agents/{id}", h.HandleGetAgent)
	mux.HandleFunc("PATCH /v1/agents/{id}", h.HandleUpdateAgent)
	mux.HandleFunc("POST /v1/workflows", h.HandleCreateWorkflow)
	mux.HandleFunc("GET /v1/workflows", h.HandleListWorkflows)
	mux.HandleFunc("POST /v1/skills", h.HandleCreateSkill)
	mux.HandleFunc("GET /v1/skills", h.HandleListSkills)

	// Gaps and matching.
	mux.HandleFunc("POST /v1/gaps", h.HandleCreateGap)
	mux.HandleFunc("GET /v1/gaps", h.HandleListGaps)
	mux.HandleFunc("GET /v1/gaps/{id}", h.HandleGetGap)
	mux.HandleFunc("PATCH /v1/gaps/{id}", h.HandleUpdateGap)
	mux.HandleFunc("GET /v1/gaps/{id}/matches", h.HandleListGapMatches)
	mux.Handle("POST /v1/gaps/{id}/analyze", expensiveRL(http.HandlerFunc(h.HandleAnalyzeGap)))

	// Usage metrics pipeline.
	mux.Handle("POST /v1/usage/import", expensiveRL(http.HandlerFunc(h.HandleImportUsage)))
	mux.HandleFunc("GET /v1/usage/snapshots", h.HandleListSnapshots)
	mux.HandleFunc("GET /v1/usage/unmatched", h.HandleListUnmatched)
	mux.HandleFunc("POST /v1/usage/unmatched/{id}/resolve", h.HandleResolveUnmatched)
	mux.HandleFunc("GET /v1/usage/aliases", h.HandleListAliases)
	mux.HandleFunc("GET /v1/usage/imports", h.HandleListImports)

	// Dashboard.
	mux.HandleFunc("GET /v1/stats/dashboard", h.HandleDashboardStats)

	// Middleware chain (outermost executes first):
	// request ID → tracing → logging → recovery → handler.
	var handler http.Handler = mux
	handler = recoveryMiddleware(cfg.Logger, handler)
	handler = loggingMiddleware(cfg.Logger, handler)
	handler = tracingMiddleware(handler)
	handler = requestIDMiddleware(handler)

	return &Server{
		httpServer: &http.Server{
			Addr:         fmt.Sprintf(":%d", cfg.Port),
			Handler:      handler,
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
		},
		handler: handler,
		logger:  cfg.Logger,
	}
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
