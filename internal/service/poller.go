package service

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"sync/atomic"
	"time"
)

// Poller runs fetch on an interval with jitter and hands each result to
// deliver. Trigger starts an immediate fetch. Every fetch is stamped with a
// generation; a result is dropped only when a newer one was already
// delivered or the poller was invalidated or stopped after it started, so a
// slow response never overwrites a fresher one yet slow fetches still land.
// Interval ticks are skipped while a fetch is in flight; triggers are not.
type Poller[T any] struct {
	name     string
	interval time.Duration
	jitter   float64
	fetch    func(ctx context.Context) (T, error)
	deliver  func(T)
	logger   *slog.Logger

	trigger  chan struct{}
	gen      atomic.Uint64
	inflight atomic.Int32
	wg       sync.WaitGroup

	mu sync.Mutex // serialises deliver and guards the fields below
	// delivered is the generation of the last delivered result.
	delivered uint64
	// floor marks every generation at or below it stale.
	floor uint64

	onTick func(name string, err error)
}

// NewPoller creates a poller. jitter is a fraction of interval in [0, 1).
func NewPoller[T any](
	name string,
	interval time.Duration,
	jitter float64,
	fetch func(ctx context.Context) (T, error),
	deliver func(T),
	logger *slog.Logger,
) *Poller[T] {
	if interval <= 0 {
		interval = 10 * time.Second
	}
	if jitter < 0 || jitter >= 1 {
		jitter = 0
	}
	return &Poller[T]{
		name:     name,
		interval: interval,
		jitter:   jitter,
		fetch:    fetch,
		deliver:  deliver,
		logger:   logger.With(slog.String("component", "poller"), slog.String("poller", name)),
		trigger:  make(chan struct{}, 1),
	}
}

// OnTick registers a hook called after every fetch, used for metrics.
func (p *Poller[T]) OnTick(fn func(name string, err error)) *Poller[T] {
	p.onTick = fn
	return p
}

// Run polls until ctx is cancelled. The first fetch starts immediately.
func (p *Poller[T]) Run(ctx context.Context) error {
	defer p.wg.Wait()
	defer p.Invalidate()

	p.poll(ctx)
	timer := time.NewTimer(p.nextDelay())
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.trigger:
			p.poll(ctx)
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(p.nextDelay())
		case <-timer.C:
			if p.inflight.Load() == 0 {
				p.poll(ctx)
			} else {
				p.logger.DebugContext(ctx, "skipping tick, previous fetch still running")
			}
			timer.Reset(p.nextDelay())
		}
	}
}

// Trigger requests an immediate fetch. Calls coalesce while one is pending.
func (p *Poller[T]) Trigger() {
	select {
	case p.trigger <- struct{}{}:
	default:
	}
}

// Invalidate marks any in-flight result stale, for example after the wallet
// changes.
func (p *Poller[T]) Invalidate() {
	p.mu.Lock()
	p.floor = p.gen.Load()
	p.mu.Unlock()
}

func (p *Poller[T]) poll(ctx context.Context) {
	gen := p.gen.Add(1)
	p.inflight.Add(1)
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		defer p.inflight.Add(-1)
		v, err := p.fetch(ctx)
		if p.onTick != nil {
			p.onTick(p.name, err)
		}
		if err != nil {
			if ctx.Err() == nil {
				p.logger.WarnContext(ctx, "poll failed", slog.String("error", err.Error()))
			}
			return
		}

		p.mu.Lock()
		defer p.mu.Unlock()
		if ctx.Err() != nil || gen <= p.floor || gen <= p.delivered {
			p.logger.DebugContext(ctx, "dropping stale poll result", slog.Uint64("generation", gen))
			return
		}
		p.delivered = gen
		p.deliver(v)
	}()
}

func (p *Poller[T]) nextDelay() time.Duration {
	if p.jitter == 0 {
		return p.interval
	}
	f := 1 + p.jitter*(2*rand.Float64()-1)
	return time.Duration(float64(p.interval) * f)
}
