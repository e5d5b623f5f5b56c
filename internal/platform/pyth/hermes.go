// Package pyth is a client for the Pyth Hermes price service.
package pyth

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// HermesClient fetches the latest price for configured feeds.
type HermesClient struct {
	baseURL    string
	feeds      map[string]string // symbol -> feed id
	httpClient *http.Client
	limiter    *rate.Limiter
}

// NewHermesClient creates a client. feeds maps symbols such as "BTC/USD" to
// 0x-prefixed feed ids.
func NewHermesClient(baseURL string, feeds map[string]string, requestsPerSecond float64) *HermesClient {
	if requestsPerSecond <= 0 {
		requestsPerSecond = 5
	}
	return &HermesClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		feeds:   feeds,
		httpClient: &http.Client{
			Timeout: 10 * time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(requestsPerSecond), 1),
	}
}

// Symbols returns the configured symbols in sorted order.
func (h *HermesClient) Symbols() []string {
	out := make([]string, 0, len(h.feeds))
	for s := range h.feeds {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

// FeedID returns the feed id for symbol.
func (h *HermesClient) FeedID(symbol string) (string, bool) {
	id, ok := h.feeds[symbol]
	return id, ok
}

// apiPrice is one price or ema_price block in a Hermes response.
type apiPrice struct {
	Price       string `json:"price"`
	Conf        string `json:"conf"`
	Expo        int    `json:"expo"`
	PublishTime int64  `json:"publish_time"`
}

type apiPriceFeed struct {
	ID    string   `json:"id"`
	Price apiPrice `json:"price"`
}

// LatestPrice returns the current price for symbol. Unknown symbols return
// domain.ErrInvalidInput; an empty response returns domain.ErrNotFound.
func (h *HermesClient) LatestPrice(ctx context.Context, symbol string) (domain.PriceData, error) {
	prices, err := h.LatestPrices(ctx, symbol)
	if err != nil {
		return domain.PriceData{}, err
	}
	p, ok := prices[symbol]
	if !ok {
		return domain.PriceData{}, fmt.Errorf("pyth: %s: %w: no price data", symbol, domain.ErrNotFound)
	}
	return p, nil
}

// LatestPrices fetches several symbols in one request, keyed by symbol.
func (h *HermesClient) LatestPrices(ctx context.Context, symbols ...string) (map[string]domain.PriceData, error) {
	params := url.Values{}
	bySymbol := make(map[string]string, len(symbols))
	for _, s := range symbols {
		id, ok := h.feeds[s]
		if !ok {
			return nil, fmt.Errorf("pyth: %w: unknown price feed %q", domain.ErrInvalidInput, s)
		}
		params.Add("ids[]", id)
		bySymbol[normalizeID(id)] = s
	}
	if len(bySymbol) == 0 {
		return map[string]domain.PriceData{}, nil
	}

	body, err := h.doGet(ctx, "/api/latest_price_feeds?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("pyth: latest prices: %w", err)
	}

	var feeds []apiPriceFeed
	if err := json.Unmarshal(body, &feeds); err != nil {
		return nil, fmt.Errorf("pyth: decode prices: %w", err)
	}

	out := make(map[string]domain.PriceData, len(feeds))
	for _, f := range feeds {
		sym, ok := bySymbol[normalizeID(f.ID)]
		if !ok {
			continue
		}
		p, err := toPriceData(sym, f)
		if err != nil {
			return nil, fmt.Errorf("pyth: %s: %w", sym, err)
		}
		out[sym] = p
	}
	return out, nil
}

// toPriceData applies the exponent: value = price * 10^expo.
func toPriceData(symbol string, f apiPriceFeed) (domain.PriceData, error) {
	raw, err := strconv.ParseFloat(f.Price.Price, 64)
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("parse price %q: %w", f.Price.Price, err)
	}
	conf, err := strconv.ParseFloat(f.Price.Conf, 64)
	if err != nil {
		return domain.PriceData{}, fmt.Errorf("parse conf %q: %w", f.Price.Conf, err)
	}
	scale := math.Pow10(f.Price.Expo)
	return domain.PriceData{
		Symbol:      symbol,
		FeedID:      "0x" + normalizeID(f.ID),
		Price:       raw * scale,
		Confidence:  conf * scale,
		PublishTime: time.Unix(f.Price.PublishTime, 0),
	}, nil
}

func normalizeID(id string) string {
	return strings.TrimPrefix(strings.ToLower(id), "0x")
}

func (h *HermesClient) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := h.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrNetwork, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, h.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := h.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return body, nil
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, body)
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("%w: %s", domain.ErrRateLimited, body)
	case resp.StatusCode >= 500:
		return nil, fmt.Errorf("%w: HTTP %d: %s", domain.ErrNetwork, resp.StatusCode, body)
	default:
		return nil, fmt.Errorf("HTTP %d: %s", resp.StatusCode, body)
	}
}
