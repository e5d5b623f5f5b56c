package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// DefaultPriceSymbol is served when no symbol is given.
const DefaultPriceSymbol = "BTC/USD"

// PriceReader is the subset of service.PriceService used by PriceHandler.
type PriceReader interface {
	GetPrice(ctx context.Context, symbol string) (domain.PriceData, error)
}

// PriceHandler serves oracle prices.
type PriceHandler struct {
	svc    PriceReader
	logger *slog.Logger
}

// NewPriceHandler creates a PriceHandler.
func NewPriceHandler(svc PriceReader, logger *slog.Logger) *PriceHandler {
	return &PriceHandler{svc: svc, logger: logHandler(logger, "price")}
}

// GetPrice returns the latest price for a feed.
// GET /api/price?symbol=BTC/USD
func (h *PriceHandler) GetPrice(w http.ResponseWriter, r *http.Request) {
	symbol := strings.TrimSpace(r.URL.Query().Get("symbol"))
	if symbol == "" {
		symbol = DefaultPriceSymbol
	}
	p, err := h.svc.GetPrice(r.Context(), symbol)
	if err != nil {
		if errors.Is(err, domain.ErrInvalidInput) {
			writeError(w, http.StatusBadRequest, "Unknown price feed")
			return
		}
		h.logger.ErrorContext(r.Context(), "price fetch failed",
			slog.String("symbol", symbol),
			slog.String("error", err.Error()),
		)
		writeError(w, http.StatusBadGateway, "Failed to fetch price")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"symbol":     symbol,
		"price":      p.Price,
		"confidence": p.Confidence,
		"timestamp":  p.PublishTime.Unix(),
	})
}
