// Package app provides the top-level application lifecycle for the betting
// backend. It wires together all dependencies (stores, caches, blob storage,
// services and notifications), builds the HTTP/WebSocket surface, and runs the
// goroutines the configured operating mode requires.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/betpal/betpal/internal/config"
	"github.com/betpal/betpal/internal/server"
	"github.com/betpal/betpal/internal/server/handler"
	"github.com/betpal/betpal/internal/server/ws"
	"github.com/betpal/betpal/internal/service"
)

// App is the root application object. It owns the configuration, logger, and
// a list of cleanup functions that are called in reverse order on shutdown.
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

// Run is the main entry point. It wires all dependencies, starts the
// goroutines for the configured mode, and blocks until the context is
// cancelled. On return it runs all registered cleanup functions.
func (a *App) Run(ctx context.Context) error {
	defer a.Close()

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	statsSvc := service.NewStatsService(deps.UserStatsStore, deps.LockManager, a.logger)
	betSvc := service.NewBetService(service.BetServiceDeps{
		Bets:          deps.BetStore,
		Stats:         statsSvc,
		Notifications: deps.NotificationStore,
		Activity:      deps.ActivityStore,
		Cache:         deps.BetCache,
		Locks:         deps.LockManager,
		Bus:           deps.SignalBus,
		Blobs:         deps.BlobWriter,
		Alerts:        deps.Notifier,
		Rules: service.VotingRules{
			MinVotes:  a.cfg.Voting.MinVotes,
			Threshold: a.cfg.Voting.Threshold,
		},
		Logger: a.logger,
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(a.logger),
		Bets:   handler.NewBetHandler(betSvc, deps.BlobReader, a.logger),
		Users:  handler.NewUserHandler(statsSvc, deps.NotificationStore, deps.ActivityStore, a.logger),
	}

	full := strings.ToLower(a.cfg.Mode) == "full"

	var hub *ws.Hub
	if full {
		hub = ws.NewHub(deps.SignalBus, a.logger)
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  time.Duration(a.cfg.Server.RateWindowSeconds) * time.Second,
	}, handlers, hub, deps.RateLimiter, a.logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return srv.Start()
	})
	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if full {
		g.Go(func() error {
			return hub.Run(ctx)
		})
		if a.cfg.Sweep.Enabled {
			g.Go(func() error {
				return a.runDeadlineSweep(ctx, betSvc)
			})
		}
	}

	return g.Wait()
}

// runDeadlineSweep periodically reminds the parties of active bets whose
// deadline has passed. It runs once at startup and then on every tick until
// the context is cancelled.
func (a *App) runDeadlineSweep(ctx context.Context, bets *service.BetService) error {
	interval := time.Duration(a.cfg.Sweep.IntervalMinutes) * time.Minute

	sweep := func() {
		n, err := bets.SweepExpired(ctx, a.cfg.Sweep.BatchSize)
		if err != nil {
			a.logger.ErrorContext(ctx, "deadline sweep failed", slog.Any("error", err))
			return
		}
		if n > 0 {
			a.logger.InfoContext(ctx, "deadline sweep done", slog.Int("overdue", n))
		}
	}

	sweep()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			sweep()
		}
	}
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
