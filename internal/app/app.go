// Package app provides the top-level application lifecycle for darkpool. It
// wires stores, caches, the ledger and oracle clients, services, the keeper
// and the HTTP API, and starts the goroutines the configured mode needs.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/alanyoungcy/darkpool/internal/config"
)

// Operating modes.
const (
	ModeServer = "server"
	ModeKeeper = "keeper"
	ModeFull   = "full"
)

// startupProbeTimeout bounds the first health pass over wired backends.
const startupProbeTimeout = 10 * time.Second

// App owns the configuration and logger for one process run. Close releases
// everything Run wired.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	mu      sync.Mutex
	cleanup []func()
}

func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run wires all dependencies, starts the configured mode and blocks until
// ctx is cancelled or a component fails.
func (a *App) Run(ctx context.Context) error {
	mode := strings.ToLower(a.cfg.Mode)
	a.logger.InfoContext(ctx, "starting darkpool",
		slog.String("mode", mode),
		slog.String("node", a.cfg.Ledger.NodeURL),
		slog.String("contract", a.cfg.Ledger.ContractAddress),
		slog.Any("config", config.RedactedConfig(a.cfg)),
	)

	deps, cleanup, err := Wire(ctx, a.cfg, a.logger)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.mu.Lock()
	a.cleanup = append(a.cleanup, cleanup)
	a.mu.Unlock()

	a.probe(ctx, deps)

	switch mode {
	case ModeServer:
		return a.ServerMode(ctx, deps)
	case ModeKeeper:
		return a.KeeperMode(ctx, deps)
	case ModeFull:
		return a.FullMode(ctx, deps)
	default:
		return fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// probe runs every health check once so a misconfigured backend shows up in
// the startup log rather than on the first request. Failures only warn: the
// ledger or oracle may come back before anyone needs them.
func (a *App) probe(ctx context.Context, deps *Dependencies) {
	ctx, cancel := context.WithTimeout(ctx, startupProbeTimeout)
	defer cancel()

	names := make([]string, 0, len(deps.Health))
	for name := range deps.Health {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if err := deps.Health[name](ctx); err != nil {
			a.logger.WarnContext(ctx, "backend unhealthy at startup",
				slog.String("backend", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		a.logger.DebugContext(ctx, "backend healthy", slog.String("backend", name))
	}
}

// Close releases wired resources, newest first. Later calls do nothing.
func (a *App) Close() {
	a.mu.Lock()
	fns := a.cleanup
	a.cleanup = nil
	a.mu.Unlock()

	if len(fns) == 0 {
		return
	}
	a.logger.Info("shutting down")
	for i := len(fns) - 1; i >= 0; i-- {
		fns[i]()
	}
}
