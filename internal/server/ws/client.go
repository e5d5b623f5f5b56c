package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = pongWait * 9 / 10
	maxMessageSize = 4096
	sendBufferSize = 256
	replayTimeout  = 5 * time.Second
)

// client is one websocket connection. subs and markets are written by the
// read goroutine and read by the hub loop.
type client struct {
	id   string
	hub  *Hub
	conn *websocket.Conn
	send chan []byte
	// done is closed by the hub when the client leaves; send is never closed
	// because both the hub and the read loop write to it.
	done      chan struct{}
	closeOnce sync.Once

	mu      sync.RWMutex
	subs    map[string]bool
	markets map[uint64]bool
}

// wants reports whether a message on channel about market should reach c.
// Market 0 means the payload is not market scoped.
func (c *client) wants(channel string, market uint64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.subs[channel] {
		return false
	}
	return market == 0 || len(c.markets) == 0 || c.markets[market]
}

// enqueue drops the frame when the client's buffer is full rather than
// stalling every other client.
func (c *client) enqueue(b []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- b:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.closeOnce.Do(func() { close(c.done) })
}

func (c *client) readLoop() {
	defer func() {
		c.hub.leave(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("unexpected close",
					slog.String("client_id", c.id),
					slog.String("error", err.Error()),
				)
			}
			return
		}
		var req request
		if err := json.Unmarshal(raw, &req); err != nil {
			c.enqueue(errorFrame("malformed request"))
			continue
		}
		c.handle(req)
	}
}

func (c *client) handle(req request) {
	switch req.Action {
	case "subscribe", "unsubscribe":
		c.mu.Lock()
		for _, ch := range req.Channels {
			if !knownChannel(ch) {
				continue
			}
			if req.Action == "subscribe" {
				c.subs[ch] = true
			} else {
				delete(c.subs, ch)
			}
		}
		c.mu.Unlock()
	case "watch":
		c.mu.Lock()
		c.markets = make(map[uint64]bool, len(req.Markets))
		for _, id := range req.Markets {
			c.markets[id] = true
		}
		c.mu.Unlock()
	case "replay":
		c.replay(req)
	default:
		c.enqueue(errorFrame("unknown action " + req.Action))
	}
}

// replay sends recorded actions after req.Since, honouring the market filter,
// then a replay_done frame carrying the last id sent.
func (c *client) replay(req request) {
	since := req.Since
	if since == "" {
		since = domain.StreamStart
	}
	limit := req.Limit
	if limit <= 0 || limit > maxReplayFrames {
		limit = maxReplayFrames
	}

	ctx, cancel := context.WithTimeout(context.Background(), replayTimeout)
	defer cancel()
	msgs, err := c.hub.bus.StreamRead(ctx, c.hub.stream, since, limit)
	if err != nil {
		c.hub.logger.Warn("replay failed",
			slog.String("client_id", c.id),
			slog.String("error", err.Error()),
		)
		c.enqueue(errorFrame("replay unavailable"))
		return
	}

	last := since
	for _, m := range msgs {
		last = m.ID
		if !c.wants(c.hub.streamChannel, marketOf(c.hub.streamChannel, m.Payload)) {
			continue
		}
		b, err := frame(c.hub.streamChannel, m.ID, m.Payload)
		if err != nil || !c.enqueue(b) {
			break
		}
	}
	done, _ := json.Marshal(map[string]any{"last": last, "count": len(msgs)})
	if b, err := frame(TypeReplayDone, "", done); err == nil {
		c.enqueue(b)
	}
}

func (c *client) writeLoop() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case <-c.done:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
