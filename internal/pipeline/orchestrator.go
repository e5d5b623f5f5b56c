// Package pipeline runs the background side of darkpool: the watcher that
// keeps market views and prices fresh, and the keeper that sweeps phases,
// resolves markets, archives history and recomputes the leaderboard.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages the pipeline goroutines. Either component may be nil.
type Orchestrator struct {
	watcher *Watcher
	keeper  *Keeper
	logger  *slog.Logger
}

// NewOrchestrator creates a new Orchestrator.
func NewOrchestrator(watcher *Watcher, keeper *Keeper, logger *slog.Logger) *Orchestrator {
	return &Orchestrator{
		watcher: watcher,
		keeper:  keeper,
		logger:  logger.With(slog.String("component", "orchestrator")),
	}
}

// Run starts every configured sub-pipeline using an errgroup. If any returns
// a non-context error the shared context is cancelled and Run returns it.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("pipeline orchestrator starting",
		slog.Bool("watcher", o.watcher != nil),
		slog.Bool("keeper", o.keeper != nil),
	)

	g, ctx := errgroup.WithContext(ctx)

	if o.watcher != nil {
		g.Go(func() error {
			err := o.watcher.Run(ctx)
			if err == nil || ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("watcher: %w", err)
		})
	}

	if o.keeper != nil {
		g.Go(func() error {
			o.logger.Info("starting keeper", slog.Any("jobs", o.keeper.Jobs()))
			err := o.keeper.Run(ctx)
			if err == nil || ctx.Err() != nil {
				return nil // clean shutdown
			}
			return fmt.Errorf("keeper: %w", err)
		})
	}

	if err := g.Wait(); err != nil {
		o.logger.Error("pipeline orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("pipeline orchestrator stopped cleanly")
	return nil
}
