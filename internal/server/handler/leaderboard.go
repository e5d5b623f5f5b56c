package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// LeaderboardReader is the subset of service.LeaderboardService used by
// LeaderboardHandler.
type LeaderboardReader interface {
	AddXP(ctx context.Context, address string, xp int64, action string) (domain.UserStats, error)
	Top(ctx context.Context, limit int) ([]domain.LeaderboardEntry, error)
	Stats(ctx context.Context, address string) (domain.UserStats, error)
	History(ctx context.Context, address string, opts domain.ListOpts) ([]domain.HistoryEntry, error)
}

// LeaderboardHandler serves XP rankings, per-user stats and action history.
type LeaderboardHandler struct {
	svc    LeaderboardReader
	logger *slog.Logger
}

// NewLeaderboardHandler creates a LeaderboardHandler.
func NewLeaderboardHandler(svc LeaderboardReader, logger *slog.Logger) *LeaderboardHandler {
	return &LeaderboardHandler{svc: svc, logger: logHandler(logger, "leaderboard")}
}

// GetLeaderboard returns the top addresses by XP.
// GET /api/leaderboard
func (h *LeaderboardHandler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	top, err := h.svc.Top(r.Context(), opts.Limit)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load leaderboard")
		return
	}
	if top == nil {
		top = []domain.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"leaderboard": top,
		"updatedAt":   time.Now().UTC().Format(time.RFC3339),
	})
}

type addXPRequest struct {
	Address  string `json:"address"`
	XPGained int64  `json:"xpGained"`
	Action   string `json:"action"`
}

// AddXP credits XP to an address.
// POST /api/leaderboard
func (h *LeaderboardHandler) AddXP(w http.ResponseWriter, r *http.Request) {
	var req addXPRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Address == "" || req.XPGained <= 0 {
		writeError(w, http.StatusBadRequest, "Invalid request")
		return
	}
	stats, err := h.svc.AddXP(r.Context(), req.Address, req.XPGained, req.Action)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to update XP")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "XP updated",
		"xp":      stats.XP,
		"level":   stats.Level,
	})
}

// GetStats returns aggregated stats for an address.
// GET /api/stats?address=
func (h *LeaderboardHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	addr := strings.TrimSpace(r.URL.Query().Get("address"))
	if addr == "" {
		writeError(w, http.StatusBadRequest, "Address required")
		return
	}
	stats, err := h.svc.Stats(r.Context(), addr)
	if err != nil {
		writeServiceError(w, r, h.logger, err, "failed to load stats")
		return
	}
	lvl := domain.LevelFor(stats.XP)
	resp := map[string]any{
		"stats":      stats,
		"levelTitle": lvl.Title,
	}
	if next, ok := domain.NextLevel(stats.XP); ok {
		resp["nextLevelXp"] = next.XP
	}
	writeJSON(w, http.StatusOK, resp)
}

type historyItem struct {
	MarketID  uint64         `json:"marketId"`
	Action    string         `json:"action"`
	Question  string         `json:"question"`
	Side      domain.Side    `json:"side"`
	Amount    uint64         `json:"amount"`
	Outcome   domain.Outcome `json:"outcome"`
	Payout    uint64         `json:"payout"`
	TxHash    string         `json:"txHash,omitempty"`
	Timestamp int64          `json:"timestamp"`
}

// GetHistory returns an address's actions, newest first.
// GET /api/history?address=
func (h *LeaderboardHandler) GetHistory(w http.ResponseWriter, r *http.Request) {
	addr := strings.TrimSpace(r.URL.Query().Get("address"))
	if addr == "" {
		writeError(w, http.StatusBadRequest, "Address required")
		return
	}
	entries, err := h.svc.History(r.Context(), addr, parseListOpts(r))
	if err != nil {
		writeServiceError(w, r, h.logger, err, "Failed to fetch history")
		return
	}
	items := make([]historyItem, 0, len(entries))
	for _, e := range entries {
		items = append(items, historyItem{
			MarketID:  e.MarketID,
			Action:    string(e.Action),
			Question:  e.Question,
			Side:      e.Side,
			Amount:    e.Amount,
			Outcome:   e.Outcome,
			Payout:    e.Payout,
			TxHash:    e.TxHash,
			Timestamp: e.CreatedAt.UnixMilli(),
		})
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"address": addr,
		"history": items,
	})
}
