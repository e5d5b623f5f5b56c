package pyth_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/platform/pyth"
)

const (
	btcFeed = "0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43"
	ethFeed = "0xff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace"
)

var feeds = map[string]string{"BTC/USD": btcFeed, "ETH/USD": ethFeed}

func TestLatestPrice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/latest_price_feeds", r.URL.Path)
		assert.Equal(t, []string{btcFeed}, r.URL.Query()["ids[]"])
		io.WriteString(w, `[{"id":"e62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43",
			"price":{"price":"6512345000000","conf":"2500000000","expo":-8,"publish_time":1700000000}}]`)
	}))
	defer srv.Close()

	c := pyth.NewHermesClient(srv.URL, feeds, 100)
	p, err := c.LatestPrice(context.Background(), "BTC/USD")
	require.NoError(t, err)
	assert.Equal(t, "BTC/USD", p.Symbol)
	assert.Equal(t, btcFeed, p.FeedID)
	assert.InDelta(t, 65123.45, p.Price, 1e-6)
	assert.InDelta(t, 25.0, p.Confidence, 1e-9)
	assert.Equal(t, time.Unix(1700000000, 0), p.PublishTime)
}

func TestLatestPrices_Many(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Len(t, r.URL.Query()["ids[]"], 2)
		io.WriteString(w, `[
			{"id":"0xe62df6c8b4a85fe1a67db44dc12de5db330f7ac66b72dc658afedf0f4a415b43","price":{"price":"100","conf":"1","expo":0,"publish_time":1}},
			{"id":"ff61491a931112ddf1bd8147cd1b641375f79f5825126d665480874634fd0ace","price":{"price":"3000","conf":"2","expo":-1,"publish_time":1}}]`)
	}))
	defer srv.Close()

	c := pyth.NewHermesClient(srv.URL, feeds, 100)
	prices, err := c.LatestPrices(context.Background(), "BTC/USD", "ETH/USD")
	require.NoError(t, err)
	assert.InDelta(t, 100.0, prices["BTC/USD"].Price, 1e-9)
	assert.InDelta(t, 300.0, prices["ETH/USD"].Price, 1e-9)
	assert.Equal(t, []string{"BTC/USD", "ETH/USD"}, c.Symbols())
}

func TestLatestPrice_Errors(t *testing.T) {
	empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, `[]`)
	}))
	defer empty.Close()

	c := pyth.NewHermesClient(empty.URL, feeds, 100)
	_, err := c.LatestPrice(context.Background(), "DOGE/USD")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)

	_, err = c.LatestPrice(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	down := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer down.Close()
	_, err = pyth.NewHermesClient(down.URL, feeds, 100).LatestPrice(context.Background(), "BTC/USD")
	assert.ErrorIs(t, err, domain.ErrNetwork)
}
