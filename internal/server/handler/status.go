package handler

import (
	"net/http"
)

// StatusHandler serves the backend status (mode, wallet, contract) for the
// dashboard.
type StatusHandler struct {
	Mode     string
	Contract string
	Watch    []uint64
	address  func() string
}

// NewStatusHandler creates a StatusHandler. address reports the connected
// wallet and may be nil.
func NewStatusHandler(mode, contract string, watch []uint64, address func() string) *StatusHandler {
	return &StatusHandler{Mode: mode, Contract: contract, Watch: watch, address: address}
}

// GetStatus responds with the current backend mode and wallet.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	addr := ""
	if h.address != nil {
		addr = h.address()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"mode":            h.Mode,
		"contract":        h.Contract,
		"address":         addr,
		"walletConnected": addr != "",
		"watch":           h.Watch,
	})
}
