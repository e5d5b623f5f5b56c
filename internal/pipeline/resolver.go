package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/service"
)

// MarketRefresher reads current market state, bypassing caches.
type MarketRefresher interface {
	Refresh(ctx context.Context, id uint64) (domain.Market, error)
}

// PriceGetter returns the latest oracle price for a symbol.
type PriceGetter interface {
	GetPrice(ctx context.Context, symbol string) (domain.PriceData, error)
}

// ResolutionSubmitter sends resolve_market transactions.
type ResolutionSubmitter interface {
	Resolve(ctx context.Context, marketID uint64, winner domain.Side) domain.ActionOutcome
}

// Settler marks recorded reveals as won or lost once a winner is known.
type Settler interface {
	Settle(ctx context.Context, marketID uint64, winner domain.Side) (int64, error)
}

// Resolution is the outcome of one resolver pass over a market.
type Resolution struct {
	MarketID  uint64      `json:"marketId"`
	Symbol    string      `json:"symbol,omitempty"`
	Price     float64     `json:"price,omitempty"`
	Target    float64     `json:"target,omitempty"`
	Winner    domain.Side `json:"winner"`
	Submitted bool        `json:"submitted"`
	Settled   int64       `json:"settled"`
	TxHash    string      `json:"txHash,omitempty"`
	Message   string      `json:"message"`
}

// Resolver decides and submits winners for markets whose reveal window has
// closed, using the oracle price against each market's rule.
type Resolver struct {
	markets MarketRefresher
	prices  PriceGetter
	submit  ResolutionSubmitter
	settler Settler
	rules   Rules
	// submitEnabled gates the resolve_market transaction; when false the
	// resolver only reports what it would do.
	submitEnabled bool
	sinks         []service.EventSink
	now           func() time.Time
	logger        *slog.Logger
}

// NewResolver creates a Resolver. submit and settler may be nil.
func NewResolver(
	markets MarketRefresher,
	prices PriceGetter,
	submit ResolutionSubmitter,
	settler Settler,
	rules Rules,
	submitEnabled bool,
	logger *slog.Logger,
) *Resolver {
	if rules == nil {
		rules = Rules{}
	}
	return &Resolver{
		markets:       markets,
		prices:        prices,
		submit:        submit,
		settler:       settler,
		rules:         rules,
		submitEnabled: submitEnabled && submit != nil,
		now:           time.Now,
		logger:        logger.With(slog.String("component", "resolver")),
	}
}

// WithSinks registers side channels notified when a market resolves.
func (r *Resolver) WithSinks(sinks ...service.EventSink) *Resolver {
	r.sinks = append(r.sinks, sinks...)
	return r
}

// Decide returns Yes when price is at or above target, No otherwise.
func Decide(price, target float64) domain.Side {
	if price >= target {
		return domain.SideYes
	}
	return domain.SideNo
}

// NeedsResolution reports whether m is still in Reveal after its reveal
// window closed.
func NeedsResolution(m domain.Market, now time.Time) bool {
	return m.Phase == domain.PhaseReveal && m.RevealEndTime > 0 && !now.Before(m.RevealDeadline())
}

// Check reads market id and reports whether it awaits resolution.
func (r *Resolver) Check(ctx context.Context, id uint64) (domain.Market, bool, error) {
	m, err := r.markets.Refresh(ctx, id)
	if err != nil {
		return domain.Market{}, false, fmt.Errorf("pipeline: check market %d: %w", id, err)
	}
	return m, NeedsResolution(m, r.now()), nil
}

// ResolveMarket resolves one market. A market the ledger already resolved is
// settled in history instead. Markets still in progress are left alone.
func (r *Resolver) ResolveMarket(ctx context.Context, id uint64) (Resolution, error) {
	m, err := r.markets.Refresh(ctx, id)
	if err != nil {
		return Resolution{MarketID: id}, fmt.Errorf("pipeline: resolve market %d: %w", id, err)
	}
	if m.Resolved() {
		res := Resolution{MarketID: id, Winner: m.WinnerSide, Message: "already resolved"}
		res.Settled = r.settle(ctx, id, m.WinnerSide)
		return res, nil
	}
	if !NeedsResolution(m, r.now()) {
		return Resolution{MarketID: id, Message: "market in " + m.Phase.String() + " phase, nothing to resolve"}, nil
	}

	rule, ok := r.rules[id]
	if !ok {
		return Resolution{MarketID: id}, fmt.Errorf("pipeline: %w: no resolution rule for market %d", domain.ErrNotFound, id)
	}
	price, err := r.prices.GetPrice(ctx, rule.Symbol)
	if err != nil {
		return Resolution{MarketID: id, Symbol: rule.Symbol}, fmt.Errorf("pipeline: price for market %d: %w", id, err)
	}

	res := Resolution{
		MarketID: id,
		Symbol:   rule.Symbol,
		Price:    price.Price,
		Target:   rule.TargetPrice,
		Winner:   Decide(price.Price, rule.TargetPrice),
	}
	log := r.logger.With(
		slog.Uint64("market_id", id),
		slog.String("symbol", rule.Symbol),
		slog.Float64("price", price.Price),
		slog.Float64("target", rule.TargetPrice),
		slog.String("winner", res.Winner.String()),
	)

	if !r.submitEnabled {
		res.Message = "resolution decided, submission disabled"
		log.InfoContext(ctx, "market ready to resolve")
		return res, nil
	}

	out := r.submit.Resolve(ctx, id, res.Winner)
	if !out.Success {
		res.Message = out.Message
		return res, fmt.Errorf("pipeline: submit resolution for market %d: %s: %s", id, out.Reason, out.Message)
	}
	res.Submitted = true
	res.TxHash = out.TxHash
	res.Message = "market resolved"
	res.Settled = r.settle(ctx, id, res.Winner)
	log.InfoContext(ctx, "market resolved", slog.String("tx_hash", out.TxHash))

	r.emit(ctx, domain.Event{
		Type:     domain.EventResolved,
		MarketID: id,
		Metadata: map[string]any{
			"winner": res.Winner.String(),
			"symbol": rule.Symbol,
			"price":  strconv.FormatFloat(price.Price, 'f', -1, 64),
			"txHash": out.TxHash,
		},
		At: r.now(),
	})
	return res, nil
}

// RunOnce walks every market with a rule and resolves those that are due.
// One failing market does not stop the rest.
func (r *Resolver) RunOnce(ctx context.Context) ([]Resolution, error) {
	var (
		out  []Resolution
		errs []error
	)
	for _, id := range r.rules.MarketIDs() {
		if ctx.Err() != nil {
			return out, ctx.Err()
		}
		res, err := r.ResolveMarket(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if res.Submitted || res.Settled > 0 || res.Symbol != "" {
			out = append(out, res)
		}
	}
	return out, errors.Join(errs...)
}

func (r *Resolver) settle(ctx context.Context, id uint64, winner domain.Side) int64 {
	if r.settler == nil {
		return 0
	}
	n, err := r.settler.Settle(ctx, id, winner)
	if err != nil {
		r.logger.WarnContext(ctx, "settle history failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
		return 0
	}
	return n
}

func (r *Resolver) emit(ctx context.Context, ev domain.Event) {
	for _, s := range r.sinks {
		if err := s.Publish(ctx, ev); err != nil {
			r.logger.WarnContext(ctx, "resolution event dropped",
				slog.String("sink", s.Name()),
				slog.String("error", err.Error()),
			)
		}
	}
}
