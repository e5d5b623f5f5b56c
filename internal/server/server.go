// Package server exposes the prediction client over HTTP and WebSocket.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/metrics"
	"github.com/alanyoungcy/darkpool/internal/server/handler"
	"github.com/alanyoungcy/darkpool/internal/server/middleware"
	"github.com/alanyoungcy/darkpool/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled
	// RateLimit caps mutating requests per client IP per RateWindow. Zero
	// disables limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
// Nil handlers leave their routes unregistered.
type Handlers struct {
	Health      *handler.HealthHandler
	Status      *handler.StatusHandler
	Markets     *handler.MarketHandler
	Leaderboard *handler.LeaderboardHandler
	Price       *handler.PriceHandler
	Resolve     *handler.ResolveHandler
	Refresh     *handler.RefreshHandler
}

// Server is the HTTP + WebSocket API server.
type Server struct {
	httpServer *http.Server
	handler    http.Handler
	logger     *slog.Logger
}

// NewServer creates a Server with all routes registered. limiter, m and
// wsHub may be nil.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, m *metrics.Metrics, logger *slog.Logger) *Server {
	logger = logger.With(slog.String("component", "server"))
	mux := http.NewServeMux()

	if handlers.Health != nil {
		mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)
	}
	if handlers.Status != nil {
		mux.HandleFunc("GET /api/status", handlers.Status.GetStatus)
	}

	if mh := handlers.Markets; mh != nil {
		mux.HandleFunc("GET /api/markets", mh.ListMarkets)
		mux.HandleFunc("POST /api/markets", mh.CreateMarket)
		mux.HandleFunc("GET /api/markets/{id}", mh.GetMarket)
		mux.HandleFunc("POST /api/markets/{id}/commit", mh.Commit)
		mux.HandleFunc("POST /api/markets/{id}/reveal", mh.Reveal)
		mux.HandleFunc("POST /api/markets/{id}/claim", mh.Claim)
		mux.HandleFunc("GET /api/commitments", mh.ListCommitments)
		mux.HandleFunc("DELETE /api/commitments", mh.ClearCommitments)
	}

	if lh := handlers.Leaderboard; lh != nil {
		mux.HandleFunc("GET /api/leaderboard", lh.GetLeaderboard)
		mux.HandleFunc("POST /api/leaderboard", lh.AddXP)
		mux.HandleFunc("GET /api/stats", lh.GetStats)
		mux.HandleFunc("GET /api/history", lh.GetHistory)
	}

	if handlers.Price != nil {
		mux.HandleFunc("GET /api/price", handlers.Price.GetPrice)
	}

	if rh := handlers.Resolve; rh != nil {
		mux.HandleFunc("GET /api/resolve", rh.Status)
		mux.HandleFunc("POST /api/resolve", rh.Resolve)
	}

	if handlers.Refresh != nil {
		mux.HandleFunc("POST /api/refresh", handlers.Refresh.Refresh)
	}

	if m != nil {
		mux.Handle("GET /metrics", m.Handler())
	}
	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}

	// Outermost last: CORS answers preflights before anything else runs.
	var h http.Handler = mux
	h = middleware.RateLimit(limiter, cfg.RateLimit, cfg.RateWindow, logger)(h)
	// Stored openings are private even to read.
	h = middleware.Auth(cfg.APIKey, "/api/commitments")(h)
	h = middleware.Logging(logger)(h)
	if m != nil {
		h = m.InstrumentHandler(h)
	}
	h = middleware.CORS(cfg.CORSOrigins)(h)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      h,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return &Server{
		httpServer: srv,
		handler:    h,
		logger:     logger,
	}
}

// Handler returns the fully wrapped handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
