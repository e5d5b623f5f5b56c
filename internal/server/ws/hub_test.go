package ws_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/darkpool/internal/cache/memory"
	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/server/ws"
)

func dial(t *testing.T, bus domain.SignalBus) (*websocket.Conn, context.Context) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	hub := ws.NewHub(bus, slog.New(slog.NewTextHandler(io.Discard, nil)), ws.Config{Mode: "server"})
	go hub.Run(ctx)

	srv := httptest.NewServer(http.HandlerFunc(hub.HandleWS))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	hello := read(t, conn)
	require.Equal(t, ws.TypeHello, hello.Type)
	return conn, ctx
}

func read(t *testing.T, conn *websocket.Conn) ws.Envelope {
	t.Helper()
	var env ws.Envelope
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	require.NoError(t, conn.ReadJSON(&env))
	return env
}

func action(t *testing.T, market uint64) []byte {
	b, err := json.Marshal(domain.Event{Type: domain.EventCommit, Address: "0xa", MarketID: market})
	require.NoError(t, err)
	return b
}

func TestHub_ReplayHonoursWatchFilter(t *testing.T) {
	bus := memory.NewSignalBus()
	for _, m := range []uint64{1, 2, 1} {
		require.NoError(t, bus.StreamAppend(context.Background(), domain.StreamActions, action(t, m)))
	}
	conn, _ := dial(t, bus)

	require.NoError(t, conn.WriteJSON(map[string]any{"action": "watch", "markets": []uint64{1}}))
	require.NoError(t, conn.WriteJSON(map[string]any{"action": "replay", "since": "0"}))

	var ids []string
	for {
		env := read(t, conn)
		if env.Type == ws.TypeReplayDone {
			assert.Equal(t, "3", gjson.GetBytes(env.Payload, "last").String())
			assert.Equal(t, int64(3), gjson.GetBytes(env.Payload, "count").Int())
			break
		}
		require.Equal(t, domain.ChannelActions, env.Type)
		assert.Equal(t, uint64(1), gjson.GetBytes(env.Payload, "marketId").Uint())
		ids = append(ids, env.ID)
	}
	assert.Equal(t, []string{"1", "3"}, ids)
}

func TestHub_LiveFramesFilteredByMarket(t *testing.T) {
	bus := memory.NewSignalBus()
	conn, ctx := dial(t, bus)
	require.NoError(t, conn.WriteJSON(map[string]any{"action": "watch", "markets": []uint64{7}}))
	require.NoError(t, conn.WriteJSON(map[string]any{"action": "unsubscribe", "channels": []string{domain.ChannelPrices}}))
	// Requests are handled in order, so the replay ack means the filters are set.
	require.NoError(t, conn.WriteJSON(map[string]any{"action": "replay"}))
	require.Equal(t, ws.TypeReplayDone, read(t, conn).Type)

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		tick := time.NewTicker(20 * time.Millisecond)
		defer tick.Stop()
		for {
			select {
			case <-stop:
				return
			case <-tick.C:
				_ = bus.Publish(ctx, domain.ChannelPrices, []byte(`{"symbol":"BTC/USD"}`))
				_ = bus.Publish(ctx, domain.ChannelPhases, []byte(`{"marketId":8,"from":0,"to":1}`))
				_ = bus.Publish(ctx, domain.ChannelMarketViews, []byte(`{"market":{"id":7}}`))
			}
		}
	}()

	env := read(t, conn)
	assert.Equal(t, domain.ChannelMarketViews, env.Type)
	assert.Equal(t, uint64(7), gjson.GetBytes(env.Payload, "market.id").Uint())
}

func TestHub_RejectsUnknownAction(t *testing.T) {
	conn, _ := dial(t, memory.NewSignalBus())
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"dance"}`)))

	env := read(t, conn)
	assert.Equal(t, ws.TypeError, env.Type)
	assert.Contains(t, string(env.Payload), "dance")

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(`not json`)))
	assert.Equal(t, ws.TypeError, read(t, conn).Type)
}
