package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// PriceSource fetches oracle prices.
type PriceSource interface {
	LatestPrice(ctx context.Context, symbol string) (domain.PriceData, error)
	LatestPrices(ctx context.Context, symbols ...string) (map[string]domain.PriceData, error)
	Symbols() []string
}

// PriceService serves oracle prices through the price cache and publishes
// refreshes on the signal bus.
type PriceService struct {
	source PriceSource
	cache  domain.PriceCache
	bus    domain.SignalBus
	logger *slog.Logger
}

// NewPriceService creates a PriceService. bus may be nil.
func NewPriceService(source PriceSource, cache domain.PriceCache, bus domain.SignalBus, logger *slog.Logger) *PriceService {
	return &PriceService{
		source: source,
		cache:  cache,
		bus:    bus,
		logger: logger.With(slog.String("component", "price_service")),
	}
}

// Symbols lists the configured feeds.
func (s *PriceService) Symbols() []string {
	return s.source.Symbols()
}

// GetPrice returns the latest price for symbol, from the cache when fresh.
func (s *PriceService) GetPrice(ctx context.Context, symbol string) (domain.PriceData, error) {
	if p, err := s.cache.GetPrice(ctx, symbol); err == nil {
		return p, nil
	}
	p, err := s.source.LatestPrice(ctx, symbol)
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("price_service: %s: %w", symbol, err)
	}
	if cacheErr := s.cache.SetPrice(ctx, p); cacheErr != nil {
		s.logger.WarnContext(ctx, "cache set failed",
			slog.String("symbol", symbol),
			slog.String("error", cacheErr.Error()),
		)
	}
	return p, nil
}

// Refresh fetches every configured feed in one request, caches the results
// and publishes each on the prices channel.
func (s *PriceService) Refresh(ctx context.Context) (map[string]domain.PriceData, error) {
	prices, err := s.source.LatestPrices(ctx, s.source.Symbols()...)
	if err != nil {
		return nil, fmt.Errorf("price_service: refresh: %w", err)
	}
	for sym, p := range prices {
		if err := s.cache.SetPrice(ctx, p); err != nil {
			s.logger.WarnContext(ctx, "cache set failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
		if s.bus == nil {
			continue
		}
		payload, _ := json.Marshal(p)
		if err := s.bus.Publish(ctx, domain.ChannelPrices, payload); err != nil {
			s.logger.WarnContext(ctx, "publish price failed",
				slog.String("symbol", sym),
				slog.String("error", err.Error()),
			)
		}
	}
	return prices, nil
}
