package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/darkpool/internal/pipeline"
	"github.com/alanyoungcy/darkpool/internal/server"
	"github.com/alanyoungcy/darkpool/internal/server/handler"
	"github.com/alanyoungcy/darkpool/internal/server/ws"
)

// shutdownTimeout bounds the HTTP server's graceful shutdown.
const shutdownTimeout = 5 * time.Second

// ServerMode runs the HTTP API, the websocket hub and the watcher that keeps
// market views and prices fresh.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting server mode")
	return a.run(ctx, deps, true, false)
}

// KeeperMode runs the cron-scheduled keeper jobs only.
func (a *App) KeeperMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting keeper mode")
	return a.run(ctx, deps, false, true)
}

// FullMode runs the server and the keeper in one process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting full mode")
	return a.run(ctx, deps, true, true)
}

func (a *App) run(ctx context.Context, deps *Dependencies, serve, keep bool) error {
	svcs := NewServices(a.cfg, deps, a.logger)

	resolver, err := a.buildResolver(deps, svcs)
	if err != nil {
		return err
	}

	var watcher *pipeline.Watcher
	if serve {
		watcher = pipeline.NewWatcher(
			svcs.Markets,
			svcs.Prices,
			deps.SignalBus,
			a.cfg.Markets.Watch,
			svcs.Predictions.Address(),
			pipeline.WatchIntervals{
				Markets: a.cfg.Poll.Markets.Duration,
				Prices:  a.cfg.Poll.Price.Duration,
				Jitter:  a.cfg.Poll.Jitter,
			},
			a.logger,
		).OnTick(deps.Metrics.ObservePoll)
		svcs.Predictions.WithAfterAction(afterAction(svcs.Markets, watcher.Refresh, 5*time.Second))
	} else {
		svcs.Predictions.WithAfterAction(afterAction(svcs.Markets, nil, 5*time.Second))
	}

	var keeper *pipeline.Keeper
	if keep {
		keeper, err = a.buildKeeper(deps, svcs, resolver)
		if err != nil {
			return err
		}
	}

	g, ctx := errgroup.WithContext(ctx)

	orch := pipeline.NewOrchestrator(watcher, keeper, a.logger)
	g.Go(func() error {
		return orch.Run(ctx)
	})

	if serve && a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, svcs, resolver, watcher)
	}

	return g.Wait()
}

func (a *App) buildResolver(deps *Dependencies, svcs *Services) (*pipeline.Resolver, error) {
	rules, err := pipeline.LoadRules(a.cfg.Keeper.RulesFile)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	a.logger.Info("resolution rules loaded",
		slog.String("file", a.cfg.Keeper.RulesFile),
		slog.Int("rules", len(rules)),
	)
	return pipeline.NewResolver(
		svcs.Markets,
		svcs.Prices,
		svcs.Predictions,
		svcs.Leaderboard,
		rules,
		a.cfg.Keeper.SubmitResolutions,
		a.logger,
	).WithSinks(deps.Sinks...), nil
}

func (a *App) buildKeeper(deps *Dependencies, svcs *Services, resolver *pipeline.Resolver) (*pipeline.Keeper, error) {
	kd := pipeline.KeeperDeps{
		Sweeper:     svcs.Markets,
		Watch:       a.cfg.Markets.Watch,
		Resolver:    resolver,
		Leaderboard: svcs.Leaderboard,
		Sinks:       deps.Sinks,
	}
	if deps.Archiver != nil {
		kd.Archiver = pipeline.NewArchiver(deps.Archiver, deps.Audit, a.cfg.Keeper.RetentionDays, a.logger)
	}
	keeper, err := pipeline.NewKeeper(pipeline.Schedule{
		PhaseSweep:  a.cfg.Keeper.PhaseCron,
		Resolve:     a.cfg.Keeper.ResolveCron,
		Cleanup:     a.cfg.Keeper.CleanupCron,
		Leaderboard: a.cfg.Keeper.LeaderboardCron,
	}, kd, a.logger)
	if err != nil {
		return nil, fmt.Errorf("app: %w", err)
	}
	return keeper.OnJob(deps.Metrics.ObserveJob), nil
}

// startHTTPServer adds the HTTP server, its shutdown watcher and the
// websocket hub to g.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, svcs *Services, resolver *pipeline.Resolver, watcher *pipeline.Watcher) {
	hub := ws.NewHub(deps.SignalBus, a.logger, ws.Config{
		Mode:           a.cfg.Mode,
		StartedAt:      time.Now().UTC(),
		Address:        svcs.Predictions.Address,
		AllowedOrigins: a.cfg.Server.CORSOrigins,
	})
	g.Go(func() error {
		return hub.Run(ctx)
	})

	handlers := server.Handlers{
		Health: handler.NewHealthHandler(deps.Health, a.logger),
		Status: handler.NewStatusHandler(
			a.cfg.Mode,
			a.cfg.Ledger.ContractAddress,
			a.cfg.Markets.Watch,
			svcs.Predictions.Address,
		),
		Markets:     handler.NewMarketHandler(svcs.Markets, svcs.Predictions, a.cfg.Markets.Watch, a.logger),
		Leaderboard: handler.NewLeaderboardHandler(svcs.Leaderboard, a.logger),
		Price:       handler.NewPriceHandler(svcs.Prices, a.logger),
		Resolve:     handler.NewResolveHandler(resolver, a.logger),
		Refresh:     handler.NewRefreshHandler(watcher.Refresh, a.logger),
	}

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimit,
		RateWindow:  a.cfg.Server.RateWindow.Duration,
	}, handlers, hub, deps.RateLimiter, deps.Metrics, a.logger)

	g.Go(func() error {
		a.logger.InfoContext(ctx, "HTTP server listening",
			slog.Int("port", a.cfg.Server.Port),
			slog.String("url", fmt.Sprintf("http://localhost:%d", a.cfg.Server.Port)),
		)
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})
}
