package handler

import (
	"log/slog"
	"net/http"
	"time"
)

// RefreshHandler asks the market watcher for an out-of-band poll.
type RefreshHandler struct {
	trigger func()
	logger  *slog.Logger
}

// NewRefreshHandler creates a RefreshHandler. trigger must not block; the
// watcher coalesces repeated requests.
func NewRefreshHandler(trigger func(), logger *slog.Logger) *RefreshHandler {
	return &RefreshHandler{trigger: trigger, logger: logHandler(logger, "refresh")}
}

// Refresh enqueues one watcher poll.
// POST /api/refresh
func (h *RefreshHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	h.logger.InfoContext(r.Context(), "refresh requested")
	if h.trigger != nil {
		h.trigger()
	}
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":      "accepted",
		"message":     "refresh enqueued",
		"requestedAt": time.Now().UTC().Format(time.RFC3339),
	})
}
