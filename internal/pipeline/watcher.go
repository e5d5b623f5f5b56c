package pipeline

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/service"
)

// MarketViewer builds per-user market views.
type MarketViewer interface {
	Views(ctx context.Context, ids []uint64, user string) []service.MarketView
}

// PriceRefresher fetches, caches and publishes every configured price.
type PriceRefresher interface {
	Refresh(ctx context.Context) (map[string]domain.PriceData, error)
}

// WatchIntervals configures the watcher's pollers.
type WatchIntervals struct {
	Markets time.Duration
	Prices  time.Duration
	Jitter  float64
}

// Watcher keeps market views and prices fresh for connected clients. Views
// are published on the market views channel only when they are the newest
// result, so a slow read never overwrites a fresher one.
type Watcher struct {
	views   MarketViewer
	bus     domain.SignalBus
	watch   []uint64
	user    string
	logger  *slog.Logger
	markets *service.Poller[[]service.MarketView]
	prices  *service.Poller[map[string]domain.PriceData]

	mu          sync.RWMutex
	latest      []service.MarketView
	latestPrice map[string]domain.PriceData
	runCtx      context.Context
}

// NewWatcher creates a Watcher. prices and bus may be nil.
func NewWatcher(
	views MarketViewer,
	prices PriceRefresher,
	bus domain.SignalBus,
	watch []uint64,
	user string,
	iv WatchIntervals,
	logger *slog.Logger,
) *Watcher {
	w := &Watcher{
		views:  views,
		bus:    bus,
		watch:  append([]uint64(nil), watch...),
		user:   user,
		logger: logger.With(slog.String("component", "watcher")),
		runCtx: context.Background(),
	}
	w.markets = service.NewPoller(
		"markets",
		iv.Markets,
		iv.Jitter,
		func(ctx context.Context) ([]service.MarketView, error) {
			return w.views.Views(ctx, w.watch, w.user), nil
		},
		w.deliverViews,
		logger,
	)
	if prices != nil {
		w.prices = service.NewPoller(
			"prices",
			iv.Prices,
			iv.Jitter,
			prices.Refresh,
			func(p map[string]domain.PriceData) {
				w.mu.Lock()
				w.latestPrice = p
				w.mu.Unlock()
			},
			logger,
		)
	}
	return w
}

// OnTick forwards every poll result to fn, used for metrics.
func (w *Watcher) OnTick(fn func(name string, err error)) *Watcher {
	w.markets.OnTick(fn)
	if w.prices != nil {
		w.prices.OnTick(fn)
	}
	return w
}

// Run polls until ctx is cancelled.
func (w *Watcher) Run(ctx context.Context) error {
	w.mu.Lock()
	w.runCtx = ctx
	w.mu.Unlock()

	w.logger.InfoContext(ctx, "watcher starting", slog.Int("markets", len(w.watch)))
	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return w.markets.Run(ctx) })
	if w.prices != nil {
		g.Go(func() error { return w.prices.Run(ctx) })
	}
	err := g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// Refresh requests an immediate poll, for example after a user action.
func (w *Watcher) Refresh() {
	w.markets.Trigger()
}

// Latest returns the most recently delivered views.
func (w *Watcher) Latest() []service.MarketView {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return append([]service.MarketView(nil), w.latest...)
}

// LatestPrices returns the most recently delivered prices.
func (w *Watcher) LatestPrices() map[string]domain.PriceData {
	w.mu.RLock()
	defer w.mu.RUnlock()
	out := make(map[string]domain.PriceData, len(w.latestPrice))
	for k, v := range w.latestPrice {
		out[k] = v
	}
	return out
}

func (w *Watcher) deliverViews(views []service.MarketView) {
	w.mu.Lock()
	w.latest = views
	ctx := w.runCtx
	w.mu.Unlock()

	if w.bus == nil {
		return
	}
	for _, v := range views {
		payload, err := json.Marshal(v)
		if err != nil {
			continue
		}
		if err := w.bus.Publish(ctx, domain.ChannelMarketViews, payload); err != nil {
			w.logger.WarnContext(ctx, "publish market view failed",
				slog.Uint64("market_id", v.Market.ID),
				slog.String("error", err.Error()),
			)
		}
	}
}
