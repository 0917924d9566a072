// Package server exposes the bridge API over HTTP.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/server/handler"
	"github.com/alanyoungcy/shuttle/internal/server/middleware"
	"github.com/alanyoungcy/shuttle/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port          int
	CORSOrigins   []string
	MaxBodyBytes  int64
	APIKey        string // guards deposit and withdraw; empty disables
	EnableMetrics bool

	RateLimit   bool
	RateMax     int
	RateWindow  time.Duration
	RateScope   string
	RateLimiter domain.RateLimiter
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health     *handler.HealthHandler
	Preflight  *handler.PreflightHandler
	Quote      *handler.QuoteHandler
	Operations *handler.OperationHandler
	Info       *handler.InfoHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// prefixes under which every route is mounted.
var prefixes = []string{"", "/api"}

// NewServer creates a Server with all routes registered. wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           NewHandler(cfg, handlers, wsHub, logger),
			ReadHeaderTimeout: 10 * time.Second,
			// Owner-mode operations poll the chain for up to two minutes.
			WriteTimeout: 5 * time.Minute,
			IdleTimeout:  60 * time.Second,
		},
		logger: logger,
	}
}

// NewHandler builds the routed, middleware-wrapped handler.
func NewHandler(cfg Config, handlers Handlers, wsHub *ws.Hub, logger *slog.Logger) http.Handler {
	mux := http.NewServeMux()
	guard := middleware.Auth(cfg.APIKey)

	for _, p := range prefixes {
		mux.HandleFunc("GET "+p+"/health", handlers.Health.HealthCheck)

		mux.HandleFunc("POST "+p+"/preflight", handlers.Preflight.Preflight)
		mux.HandleFunc("POST "+p+"/quote", handlers.Quote.Quote)
		mux.Handle("POST "+p+"/deposit", guard(http.HandlerFunc(handlers.Operations.Deposit)))
		mux.Handle("POST "+p+"/withdraw", guard(http.HandlerFunc(handlers.Operations.Withdraw)))
		mux.HandleFunc("GET "+p+"/balance", handlers.Operations.Balance)
		mux.HandleFunc("GET "+p+"/apy", handlers.Info.APY)
		mux.HandleFunc("GET "+p+"/history", handlers.Info.History)

		if cfg.EnableMetrics {
			mux.Handle("GET "+p+"/metrics", promhttp.Handler())
		}
		if wsHub != nil {
			mux.HandleFunc("GET "+p+"/ws", wsHub.HandleWS)
		}
	}

	// Applied innermost first: the request id is set before anything logs.
	var h http.Handler = mux
	h = middleware.MaxBody(cfg.MaxBodyBytes)(h)
	if cfg.RateLimit && cfg.RateLimiter != nil {
		h = middleware.RateLimit(cfg.RateLimiter, cfg.RateMax, cfg.RateWindow, cfg.RateScope, logger)(h)
	}
	h = middleware.Logging(logger)(h)
	h = middleware.CORS(cfg.CORSOrigins)(h)
	h = middleware.RequestID(h)
	return h
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting",
		slog.String("addr", s.httpServer.Addr),
	)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
