package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/service"
)

// MarketReader is the subset of service.MarketService used by MarketHandler.
type MarketReader interface {
	RefreshForUser(ctx context.Context, id uint64, user string) (domain.Market, error)
	View(ctx context.Context, id uint64, user string) (service.MarketView, error)
	Views(ctx context.Context, ids []uint64, user string) []service.MarketView
}

// PredictionActions is the subset of service.PredictionService used by
// MarketHandler.
type PredictionActions interface {
	Address() string
	Commit(ctx context.Context, market domain.Market, side domain.Side, amount uint64) domain.ActionOutcome
	Reveal(ctx context.Context, market domain.Market) domain.ActionOutcome
	Claim(ctx context.Context, market domain.Market) domain.ActionOutcome
	CreateMarket(ctx context.Context, question string, commitHours, revealHours uint64) domain.ActionOutcome
	Commitments(ctx context.Context) ([]domain.Commitment, error)
	ClearCommitments(ctx context.Context) error
}

// MarketHandler serves market views and the commit/reveal/claim actions.
type MarketHandler struct {
	markets MarketReader
	actions PredictionActions
	watch   []uint64
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. watch lists the markets
// GET /api/markets returns.
func NewMarketHandler(markets MarketReader, actions PredictionActions, watch []uint64, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		actions: actions,
		watch:   watch,
		logger:  logHandler(logger, "market"),
	}
}

// ListMarkets returns views for every watched market. Markets that fail to
// load are omitted.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	views := h.markets.Views(r.Context(), h.watch, h.actions.Address())
	if views == nil {
		views = []service.MarketView{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"markets": views})
}

// GetMarket returns the view model of one market for the connected wallet.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	view, err := h.markets.View(r.Context(), id, h.actions.Address())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load market")
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type commitRequest struct {
	Side   json.RawMessage `json:"side"`
	Amount json.RawMessage `json:"amount"`
}

// Commit places a hidden prediction. side is "yes"/"no" or 1/2; amount is APT
// as a decimal string or number.
// POST /api/markets/{id}/commit
func (h *MarketHandler) Commit(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	var req commitRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	side, err := domain.ParseSide(rawScalar(req.Side))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	amount, err := domain.ParseAPTToOctas(rawScalar(req.Amount))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	h.withMarket(w, r, id, func(m domain.Market) domain.ActionOutcome {
		return h.actions.Commit(r.Context(), m, side, amount)
	})
}

// Reveal opens the stored commitment for a market.
// POST /api/markets/{id}/reveal
func (h *MarketHandler) Reveal(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withMarket(w, r, id, func(m domain.Market) domain.ActionOutcome {
		return h.actions.Reveal(r.Context(), m)
	})
}

// Claim collects winnings for a resolved market.
// POST /api/markets/{id}/claim
func (h *MarketHandler) Claim(w http.ResponseWriter, r *http.Request) {
	id, err := parseMarketID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.withMarket(w, r, id, func(m domain.Market) domain.ActionOutcome {
		return h.actions.Claim(r.Context(), m)
	})
}

type createRequest struct {
	Question    string `json:"question"`
	CommitHours uint64 `json:"commitHours"`
	RevealHours uint64 `json:"revealHours"`
}

// CreateMarket submits a new market.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	out := h.actions.CreateMarket(r.Context(), strings.TrimSpace(req.Question), req.CommitHours, req.RevealHours)
	writeJSON(w, outcomeStatus(out), out)
}

// commitmentSummary is what the API shows of a stored opening. Side, amount
// and salt stay in the process until reveal.
type commitmentSummary struct {
	MarketID   uint64 `json:"marketId"`
	CommitHash string `json:"commitHash"`
	Timestamp  int64  `json:"timestamp"`
}

// ListCommitments lists the markets with a stored opening.
// GET /api/commitments
func (h *MarketHandler) ListCommitments(w http.ResponseWriter, r *http.Request) {
	list, err := h.actions.Commitments(r.Context())
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to list commitments")
		return
	}
	out := make([]commitmentSummary, 0, len(list))
	for _, c := range list {
		out = append(out, commitmentSummary{MarketID: c.MarketID, CommitHash: c.CommitHash, Timestamp: c.Timestamp})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address":     h.actions.Address(),
		"commitments": out,
	})
}

// ClearCommitments drops every stored opening.
// DELETE /api/commitments
func (h *MarketHandler) ClearCommitments(w http.ResponseWriter, r *http.Request) {
	if err := h.actions.ClearCommitments(r.Context()); err != nil {
		writeServiceError(w, r, h.logger, err, "failed to clear commitments")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "message": "Commitments cleared"})
}

// withMarket reads the live market state, runs act and writes its outcome.
func (h *MarketHandler) withMarket(w http.ResponseWriter, r *http.Request, id uint64, act func(domain.Market) domain.ActionOutcome) {
	m, err := h.markets.RefreshForUser(r.Context(), id, h.actions.Address())
	if err != nil {
		writeServiceError(w, r, h.logger, fmt.Errorf("market %d: %w", id, err), "failed to load market")
		return
	}
	out := act(m)
	writeJSON(w, outcomeStatus(out), out)
}

// rawScalar returns a JSON string or number as plain text.
func rawScalar(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	return strings.TrimSpace(string(raw))
}
