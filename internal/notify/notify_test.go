package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/cache/memory"
	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/notify"
)

const addr = "0x63c5215e87770d17b9f4cd47c777e322f4eb152cfd2054c1080fd9d57c48913b"

var quiet = slog.New(slog.NewTextHandler(io.Discard, nil))

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (r *recordingSender) Send(_ context.Context, title, _ string) error {
	r.titles = append(r.titles, title)
	return r.err
}

func (r *recordingSender) Name() string { return r.name }

func TestNotifier_FiltersEvents(t *testing.T) {
	s := &recordingSender{name: "rec"}
	n := notify.NewNotifier([]notify.Sender{s}, []string{"prediction_win"}, quiet)

	require.NoError(t, n.Publish(context.Background(), domain.Event{Type: domain.EventCommit, MarketID: 1}))
	require.NoError(t, n.Publish(context.Background(), domain.Event{Type: domain.EventWin, MarketID: 1}))
	assert.Equal(t, []string{"Winning claim on market #1"}, s.titles)

	require.NoError(t, n.NotifyAll(context.Background(), "hello", ""))
	assert.Len(t, s.titles, 2)
}

func TestNotifier_OneFailureDoesNotStopOthers(t *testing.T) {
	bad := &recordingSender{name: "bad", err: errors.New("boom")}
	good := &recordingSender{name: "good"}
	n := notify.NewNotifier([]notify.Sender{bad, good}, nil, quiet)

	err := n.Notify(context.Background(), "error", "t", "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad: boom")
	assert.Len(t, good.titles, 1)
}

func TestFormatEvent(t *testing.T) {
	title, msg := notify.FormatEvent(domain.Event{
		Type:     domain.EventPhaseChange,
		Address:  addr,
		MarketID: 4,
		Metadata: map[string]any{"to": "reveal", "from": "commit"},
	})
	assert.Equal(t, "Market #4 changed phase", title)
	assert.Equal(t, "address: 0x63c521…48913b\nfrom: commit\nto: reveal", msg)
}

func TestTelegramAndDiscord(t *testing.T) {
	var got []map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		body["path"] = r.URL.Path
		got = append(got, body)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	tg := notify.NewTelegramSender("TOKEN", "42").WithAPIBase(srv.URL)
	require.NoError(t, tg.Send(context.Background(), "Title", "body"))
	dc := notify.NewDiscordSender(srv.URL + "/hook")
	require.NoError(t, dc.Send(context.Background(), "Title", "body"))

	require.Len(t, got, 2)
	assert.Equal(t, "/botTOKEN/sendMessage", got[0]["path"])
	assert.Equal(t, "42", got[0]["chat_id"])
	assert.Equal(t, "*Title*\nbody", got[0]["text"])
	assert.Equal(t, "**Title**\nbody", got[1]["content"])
	assert.Equal(t, "darkpool", got[1]["username"])
	assert.Equal(t, map[string]any{"parse": []any{}}, got[1]["allowed_mentions"])
}

func TestDiscordClipsLongMessages(t *testing.T) {
	var content string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Content string `json:"content"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		content = body.Content
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	long := strings.Repeat("é", 3000)
	require.NoError(t, notify.NewDiscordSender(srv.URL).Send(context.Background(), "Title", long))
	assert.Equal(t, 2000, utf8.RuneCountInString(content))
	assert.True(t, strings.HasSuffix(content, "…"))
}

func TestPhotonSender(t *testing.T) {
	var (
		body   map[string]any
		apiKey string
		calls  int
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		assert.Equal(t, "/attribution/events/campaign", r.URL.Path)
		apiKey = r.Header.Get("X-API-Key")
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
	}))
	defer srv.Close()

	p := notify.NewPhotonSender(notify.PhotonConfig{
		BaseURL:              srv.URL + "/",
		APIKey:               "secret",
		RewardedCampaignID:   "rewarded",
		UnrewardedCampaignID: "unrewarded",
	})
	at := time.UnixMilli(1_700_000_000_123)

	require.NoError(t, p.Publish(context.Background(), domain.Event{Type: domain.EventCommit, Address: addr, MarketID: 7, At: at,
		Metadata: map[string]any{"amount": "1.5"}}))
	assert.Equal(t, "secret", apiKey)
	assert.Equal(t, "commit-7-"+addr+"-1700000000123", body["event_id"])
	assert.Equal(t, "prediction_commit", body["event_type"])
	assert.Equal(t, addr, body["client_user_id"])
	assert.Equal(t, "rewarded", body["campaign_id"])
	assert.Equal(t, "2023-11-14T22:13:20Z", body["timestamp"])
	meta := body["metadata"].(map[string]any)
	assert.EqualValues(t, 7, meta["marketId"])
	assert.Equal(t, "1.5", meta["amount"])

	require.NoError(t, p.Publish(context.Background(), domain.Event{Type: domain.EventReveal, Address: addr, MarketID: 7, At: at}))
	assert.Equal(t, "unrewarded", body["campaign_id"])
	assert.True(t, strings.HasPrefix(body["event_id"].(string), "reveal-7-"))

	require.NoError(t, p.Publish(context.Background(), domain.Event{Type: domain.EventPhaseChange, MarketID: 7}))
	assert.Equal(t, 2, calls, "phase changes are not attributed")
}

func TestPhotonSender_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		io.WriteString(w, "bad key")
	}))
	defer srv.Close()

	p := notify.NewPhotonSender(notify.PhotonConfig{BaseURL: srv.URL})
	err := p.Publish(context.Background(), domain.Event{Type: domain.EventWin, MarketID: 1, Address: addr})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "401")
}

func TestBusSink(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	bus := memory.NewSignalBus()
	ch, err := bus.Subscribe(ctx, domain.ChannelActions)
	require.NoError(t, err)

	sink := notify.NewBusSink(bus, domain.ChannelActions, domain.StreamActions)
	require.NoError(t, sink.Publish(ctx, domain.Event{Type: domain.EventReveal, MarketID: 9, Address: addr}))

	select {
	case msg := <-ch:
		var ev domain.Event
		require.NoError(t, json.Unmarshal(msg, &ev))
		assert.Equal(t, uint64(9), ev.MarketID)
	case <-time.After(time.Second):
		t.Fatal("no bus message")
	}

	stream, err := bus.StreamRead(ctx, domain.StreamActions, "0", 10)
	require.NoError(t, err)
	assert.Len(t, stream, 1)
}
