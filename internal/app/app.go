// Package app provides the top-level application lifecycle for the bridge
// API. It wires together all dependencies (caches, history storage, chain
// and partner clients, services and notifications), starts the HTTP server
// and background workers, and shuts them down when the context ends.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/shuttle/internal/config"
	"github.com/alanyoungcy/shuttle/internal/domain"
	"github.com/alanyoungcy/shuttle/internal/server"
	"github.com/alanyoungcy/shuttle/internal/server/handler"
	"github.com/alanyoungcy/shuttle/internal/server/ws"
	"github.com/alanyoungcy/shuttle/internal/service"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the server and workers, and blocks
// until the context is cancelled or one of them fails. On return it runs
// all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)
	for _, w := range a.cfg.Warnings() {
		a.logger.WarnContext(ctx, w)
	}

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)
	defer a.Close()

	g, ctx := errgroup.WithContext(ctx)

	if deps.QuoteLog != nil {
		g.Go(func() error {
			return deps.QuoteLog.Run(ctx)
		})
	}
	if deps.Archiver != nil {
		g.Go(func() error {
			return deps.Archiver.Run(ctx, deps.Evicted, a.cfg.History.ArchiveBatch, a.cfg.History.ArchiveInterval.Duration)
		})
	}

	if deps.TxGuard != nil {
		g.Go(func() error {
			return deps.TxGuard.Run(ctx, time.Hour)
		})
	}

	var hub *ws.Hub
	if a.cfg.Server.EnableWS {
		hub = ws.NewHub(deps.EventBus, a.logger, ws.Config{
			Mode:      domain.Mode(a.cfg.Mode),
			Channels:  []string{service.HistoryChannel},
			Origins:   a.cfg.Server.CORSOrigins,
			StartedAt: time.Now().UTC(),
		})
		g.Go(func() error {
			return hub.Run(ctx)
		})
	}

	a.startHTTPServer(ctx, g, deps, hub)

	err = g.Wait()
	a.logger.Info("application stopped")
	return err
}

// startHTTPServer adds the API server to the errgroup. The server is shut
// down gracefully when the context is cancelled.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, hub *ws.Hub) {
	mode := domain.Mode(a.cfg.Mode)
	srv := server.NewServer(server.Config{
		Port:          a.cfg.Server.Port,
		CORSOrigins:   a.cfg.Server.CORSOrigins,
		MaxBodyBytes:  a.cfg.Server.MaxBodyBytes,
		APIKey:        a.cfg.Server.APIKey,
		EnableMetrics: a.cfg.Server.EnableMetrics,
		RateLimit:     a.cfg.RateLimit.Enabled,
		RateMax:       a.cfg.RateLimit.Max,
		RateWindow:    a.cfg.RateLimit.Window.Duration,
		RateScope:     a.cfg.RateLimit.Scope,
		RateLimiter:   deps.RateLimiter,
	}, server.Handlers{
		Health:     handler.NewHealthHandler(mode, a.logger),
		Preflight:  handler.NewPreflightHandler(deps.Gate, a.logger),
		Quote:      handler.NewQuoteHandler(deps.Quotes, a.logger),
		Operations: handler.NewOperationHandler(deps.Operations, a.logger),
		Info:       handler.NewInfoHandler(deps.APY, deps.History, a.logger),
	}, hub, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownPeriod.Duration)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
