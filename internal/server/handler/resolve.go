package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/pipeline"
)

// MarketResolver is the subset of pipeline.Resolver used by ResolveHandler.
type MarketResolver interface {
	Check(ctx context.Context, id uint64) (domain.Market, bool, error)
	ResolveMarket(ctx context.Context, id uint64) (pipeline.Resolution, error)
}

// ResolveHandler triggers and inspects market resolution.
type ResolveHandler struct {
	resolver MarketResolver
	logger   *slog.Logger
}

// NewResolveHandler creates a ResolveHandler.
func NewResolveHandler(resolver MarketResolver, logger *slog.Logger) *ResolveHandler {
	return &ResolveHandler{resolver: resolver, logger: logHandler(logger, "resolve")}
}

type resolveRequest struct {
	MarketID json.RawMessage `json:"marketId"`
}

// Resolve runs the resolver for one market.
// POST /api/resolve
func (h *ResolveHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var req resolveRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	id, err := parseMarketID(rawScalar(req.MarketID))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Market ID required")
		return
	}
	res, err := h.resolver.ResolveMarket(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, fmt.Errorf("resolve market %d: %w", id, err), "Failed to resolve market")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":    true,
		"message":    fmt.Sprintf("Market %d resolution triggered", id),
		"resolution": res,
	})
}

// Status reports whether a market awaits resolution.
// GET /api/resolve?marketId=
func (h *ResolveHandler) Status(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r.URL.Query().Get("marketId"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Market ID required")
		return
	}
	m, needs, err := h.resolver.Check(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to check market")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"marketId":        id,
		"needsResolution": needs,
		"phase":           m.Phase,
	})
}
