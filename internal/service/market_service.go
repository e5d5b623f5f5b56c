package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// MarketReader reads market state from the ledger.
type MarketReader interface {
	FetchMarket(ctx context.Context, marketID uint64, user string) (domain.Market, error)
	HasCommitted(ctx context.Context, marketID uint64, user string) (bool, error)
}

// PhaseChange records a market moving to a new phase between two reads.
type PhaseChange struct {
	MarketID uint64        `json:"marketId"`
	From     domain.Phase  `json:"from"`
	To       domain.Phase  `json:"to"`
	Market   domain.Market `json:"market"`
}

// MarketService mirrors ledger market state through a short-lived cache and
// builds per-user views.
type MarketService struct {
	reader  MarketReader
	cache   domain.MarketCache
	store   domain.CommitmentStore
	history domain.HistoryStore
	bus     domain.SignalBus
	feeBps  uint64
	now     func() time.Time
	logger  *slog.Logger

	mu     sync.Mutex
	phases map[uint64]domain.Phase
}

// NewMarketService creates a MarketService. history and bus may be nil.
func NewMarketService(
	reader MarketReader,
	cache domain.MarketCache,
	store domain.CommitmentStore,
	history domain.HistoryStore,
	bus domain.SignalBus,
	feeBps uint64,
	logger *slog.Logger,
) *MarketService {
	return &MarketService{
		reader:  reader,
		cache:   cache,
		store:   store,
		history: history,
		bus:     bus,
		feeBps:  feeBps,
		now:     time.Now,
		logger:  logger.With(slog.String("component", "market_service")),
		phases:  make(map[uint64]domain.Phase),
	}
}

// GetMarket returns market state, from the cache when fresh.
func (s *MarketService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	if m, err := s.cache.Get(ctx, id); err == nil {
		return m, nil
	}
	return s.Refresh(ctx, id)
}

// Refresh reads the market from the ledger, bypassing the cache, and
// back-fills the cache.
func (s *MarketService) Refresh(ctx context.Context, id uint64) (domain.Market, error) {
	m, err := s.reader.FetchMarket(ctx, id, "")
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: fetch market %d: %w", id, err)
	}
	if cacheErr := s.cache.Set(ctx, m); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.Uint64("market_id", id),
			slog.String("error", cacheErr.Error()),
		)
	}
	return m, nil
}

// ForUser returns market state with HasCommitted filled in for user.
func (s *MarketService) ForUser(ctx context.Context, id uint64, user string) (domain.Market, error) {
	m, err := s.GetMarket(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	return s.withCommitted(ctx, m, user), nil
}

// RefreshForUser is Refresh with HasCommitted filled in for user. Actions
// use it so they see the current phase and the user's on-chain commitment.
func (s *MarketService) RefreshForUser(ctx context.Context, id uint64, user string) (domain.Market, error) {
	m, err := s.Refresh(ctx, id)
	if err != nil {
		return domain.Market{}, err
	}
	return s.withCommitted(ctx, m, user), nil
}

func (s *MarketService) withCommitted(ctx context.Context, m domain.Market, user string) domain.Market {
	if user == "" {
		return m
	}
	ok, err := s.reader.HasCommitted(ctx, m.ID, user)
	if err != nil {
		s.logger.DebugContext(ctx, "has_committed read failed",
			slog.Uint64("market_id", m.ID),
			slog.String("error", err.Error()),
		)
		return m
	}
	m.HasCommitted = ok
	return m
}

// View builds the market view for user, combining the ledger snapshot with
// the locally stored opening and the user's recorded reveal and claim.
func (s *MarketService) View(ctx context.Context, id uint64, user string) (MarketView, error) {
	m, err := s.ForUser(ctx, id, user)
	if err != nil {
		return MarketView{}, err
	}

	in := ViewInput{Market: m, Now: s.now(), FeeBps: s.feeBps}
	if c, err := s.store.Get(ctx, id); err == nil {
		in.Commitment = &c
	} else if !errors.Is(err, domain.ErrNotFound) {
		return MarketView{}, fmt.Errorf("market_service: read commitment %d: %w", id, err)
	}
	if in.Commitment == nil && s.history != nil && user != "" {
		if rev, err := s.history.LatestReveal(ctx, user, id); err == nil {
			in.Revealed = &rev
		}
		if m.Phase >= domain.PhaseResolved {
			if claim, err := s.history.LatestClaim(ctx, user, id); err == nil {
				in.Claimed = &claim
			}
		}
	}
	return BuildMarketView(in), nil
}

// Views builds views for several markets. Markets that fail to load are
// skipped and logged.
func (s *MarketService) Views(ctx context.Context, ids []uint64, user string) []MarketView {
	out := make([]MarketView, 0, len(ids))
	for _, id := range ids {
		v, err := s.View(ctx, id, user)
		if err != nil {
			s.logger.WarnContext(ctx, "market view failed",
				slog.Uint64("market_id", id),
				slog.String("error", err.Error()),
			)
			continue
		}
		out = append(out, v)
	}
	return out
}

// Invalidate drops the cached state for id.
func (s *MarketService) Invalidate(ctx context.Context, id uint64) {
	if err := s.cache.Invalidate(ctx, id); err != nil {
		s.logger.WarnContext(ctx, "cache invalidate failed",
			slog.Uint64("market_id", id),
			slog.String("error", err.Error()),
		)
	}
}

// SweepPhases refreshes each market and reports those whose phase moved since
// the previous sweep. The first sighting of a market is not a change. Each
// change is published on the phases channel.
func (s *MarketService) SweepPhases(ctx context.Context, ids []uint64) ([]PhaseChange, error) {
	var (
		changes []PhaseChange
		errs    []error
	)
	for _, id := range ids {
		m, err := s.Refresh(ctx, id)
		if err != nil {
			errs = append(errs, err)
			continue
		}

		s.mu.Lock()
		prev, seen := s.phases[id]
		s.phases[id] = m.Phase
		s.mu.Unlock()

		if !seen || prev == m.Phase {
			continue
		}
		ch := PhaseChange{MarketID: id, From: prev, To: m.Phase, Market: m}
		changes = append(changes, ch)
		s.logger.InfoContext(ctx, "market phase changed",
			slog.Uint64("market_id", id),
			slog.String("from", prev.String()),
			slog.String("to", m.Phase.String()),
		)
		s.publish(ctx, domain.ChannelPhases, ch)
	}
	return changes, errors.Join(errs...)
}

func (s *MarketService) publish(ctx context.Context, channel string, v any) {
	if s.bus == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		s.logger.WarnContext(ctx, "marshal bus payload failed", slog.String("error", err.Error()))
		return
	}
	if err := s.bus.Publish(ctx, channel, payload); err != nil {
		s.logger.WarnContext(ctx, "bus publish failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
	}
}
