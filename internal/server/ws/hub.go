// Package ws relays signal bus traffic to browser clients over WebSocket.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// Config captures runtime metadata sent to clients on connect.
type Config struct {
	Mode      string
	StartedAt time.Time
	// Address reports the connected wallet; may be nil.
	Address func() string
	// AllowedOrigins restricts upgrades by Origin header. Empty allows all.
	AllowedOrigins []string
}

// relayed is one bus message tagged with its channel and market.
type relayed struct {
	channel string
	market  uint64
	data    []byte
}

// Hub fans bus messages out to the clients subscribed to each channel and
// watching the message's market. Recent actions can be replayed from the
// durable actions stream.
type Hub struct {
	bus    domain.SignalBus
	logger *slog.Logger
	cfg    Config

	// stream holds replayable entries relayed as streamChannel frames.
	stream        string
	streamChannel string

	upgrader websocket.Upgrader
	inbox    chan relayed
	done     chan struct{}

	mu      sync.RWMutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub creates a hub that bridges bus to connected clients.
func NewHub(bus domain.SignalBus, logger *slog.Logger, cfg Config) *Hub {
	if cfg.Mode == "" {
		cfg.Mode = "unknown"
	}
	if cfg.StartedAt.IsZero() {
		cfg.StartedAt = time.Now().UTC()
	}
	h := &Hub{
		bus:           bus,
		logger:        logger.With(slog.String("component", "ws_hub")),
		cfg:           cfg,
		stream:        domain.StreamActions,
		streamChannel: domain.ChannelActions,
		inbox:         make(chan relayed, 256),
		done:          make(chan struct{}),
		clients:       make(map[*client]struct{}),
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.checkOrigin,
	}
	return h
}

// Run subscribes to every relayed channel and fans messages out until ctx is
// cancelled, then disconnects all clients.
func (h *Hub) Run(ctx context.Context) error {
	defer close(h.done)

	var wg sync.WaitGroup
	for _, ch := range Channels {
		wg.Add(1)
		go func() {
			defer wg.Done()
			h.pump(ctx, ch)
		}()
	}

	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			h.closed = true
			for c := range h.clients {
				c.close()
				delete(h.clients, c)
			}
			h.mu.Unlock()
			wg.Wait()
			return nil
		case msg := <-h.inbox:
			h.fanOut(msg)
		}
	}
}

func (h *Hub) fanOut(msg relayed) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		if !c.wants(msg.channel, msg.market) {
			continue
		}
		if !c.enqueue(msg.data) {
			h.logger.Warn("dropping message for slow client",
				slog.String("client_id", c.id),
				slog.String("channel", msg.channel),
			)
		}
	}
}

// pump forwards one bus channel into the hub loop.
func (h *Hub) pump(ctx context.Context, channel string) {
	in, err := h.bus.Subscribe(ctx, channel)
	if err != nil {
		h.logger.Error("subscribe failed",
			slog.String("channel", channel),
			slog.String("error", err.Error()),
		)
		return
	}
	for payload := range in {
		data, err := frame(channel, "", payload)
		if err != nil {
			continue
		}
		select {
		case h.inbox <- relayed{channel: channel, market: marketOf(channel, payload), data: data}:
		case <-ctx.Done():
			return
		}
	}
}

// HandleWS upgrades the request and registers the connection.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		id:      uuid.NewString(),
		hub:     h,
		conn:    conn,
		send:    make(chan []byte, sendBufferSize),
		done:    make(chan struct{}),
		subs:    make(map[string]bool, len(Channels)),
		markets: map[uint64]bool{},
	}
	for _, ch := range Channels {
		c.subs[ch] = true
	}
	if !h.join(c) {
		conn.Close()
		return
	}
	c.enqueue(h.hello(c))

	go c.writeLoop()
	go c.readLoop()
}

func (h *Hub) join(c *client) bool {
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		return false
	}
	h.clients[c] = struct{}{}
	total := len(h.clients)
	h.mu.Unlock()

	h.logger.Info("client connected", slog.String("client_id", c.id), slog.Int("total_clients", total))
	return true
}

func (h *Hub) leave(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	delete(h.clients, c)
	total := len(h.clients)
	h.mu.Unlock()

	c.close()
	if ok {
		h.logger.Info("client disconnected", slog.String("client_id", c.id), slog.Int("total_clients", total))
	}
}

// ClientCount returns the number of connected clients.
func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// hello lets clients mark the connection healthy before market traffic
// flows.
func (h *Hub) hello(c *client) []byte {
	addr := ""
	if h.cfg.Address != nil {
		addr = h.cfg.Address()
	}
	payload, _ := json.Marshal(map[string]any{
		"clientId":      c.id,
		"mode":          h.cfg.Mode,
		"address":       addr,
		"channels":      Channels,
		"uptimeSeconds": int64(max(0, time.Since(h.cfg.StartedAt).Seconds())),
	})
	b, _ := frame(TypeHello, "", payload)
	return b
}

func (h *Hub) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if len(h.cfg.AllowedOrigins) == 0 || origin == "" {
		return true
	}
	for _, o := range h.cfg.AllowedOrigins {
		if o == "*" || strings.EqualFold(o, origin) {
			return true
		}
	}
	return false
}
