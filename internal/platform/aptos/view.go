package aptos

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

func (c *Client) viewFunction(name string) string {
	return c.contract + "::" + c.viewModule + "::" + name
}

// GetMarket reads get_market, which returns
// [phase, commit_end, reveal_end, winner_side, total_yes, total_no].
func (c *Client) GetMarket(ctx context.Context, marketID uint64) (domain.Market, error) {
	res, err := c.View(ctx, c.viewFunction("get_market"), c.contract, strconv.FormatUint(marketID, 10))
	if err != nil {
		return domain.Market{}, err
	}
	vals := res.Array()
	if len(vals) < 6 {
		return domain.Market{}, fmt.Errorf("aptos: get_market %d: %w: expected 6 values, got %d", marketID, domain.ErrUnknownLedger, len(vals))
	}

	phase := domain.Phase(vals[0].Uint())
	if !phase.Valid() {
		return domain.Market{}, fmt.Errorf("aptos: get_market %d: %w: unknown phase %s", marketID, domain.ErrUnknownLedger, vals[0].String())
	}
	m := domain.Market{
		ID:            marketID,
		Phase:         phase,
		CommitEndTime: vals[1].Int(),
		RevealEndTime: vals[2].Int(),
		WinnerSide:    domain.Side(vals[3].Uint()),
		YesPool:       vals[4].Uint(),
		NoPool:        vals[5].Uint(),
		FetchedAt:     time.Now(),
	}
	// Extended deployments append participant counters.
	if len(vals) >= 8 {
		m.TotalParticipants = vals[6].Uint()
		m.TotalRevealed = vals[7].Uint()
	}
	return m, nil
}

// GetQuestion reads get_market_question and decodes the UTF-8 bytes.
func (c *Client) GetQuestion(ctx context.Context, marketID uint64) (string, error) {
	res, err := c.View(ctx, c.viewFunction("get_market_question"), c.contract, strconv.FormatUint(marketID, 10))
	if err != nil {
		return "", err
	}
	raw, err := bytesValue(res.Get("0"))
	if err != nil {
		return "", fmt.Errorf("aptos: get_market_question %d: %w: %v", marketID, domain.ErrUnknownLedger, err)
	}
	if !utf8.Valid(raw) {
		return "", fmt.Errorf("aptos: get_market_question %d: %w: question is not UTF-8", marketID, domain.ErrUnknownLedger)
	}
	return string(raw), nil
}

// HasCommitted reads has_committed for user on marketID.
func (c *Client) HasCommitted(ctx context.Context, marketID uint64, user string) (bool, error) {
	res, err := c.View(ctx, c.viewFunction("has_committed"), c.contract, strconv.FormatUint(marketID, 10), user)
	if err != nil {
		return false, err
	}
	return res.Get("0").Bool(), nil
}

// FetchMarket combines the three views. A missing question falls back to
// "Market N", and has_committed is only read when user is set. Failures of
// the two secondary reads do not fail the fetch.
func (c *Client) FetchMarket(ctx context.Context, marketID uint64, user string) (domain.Market, error) {
	m, err := c.GetMarket(ctx, marketID)
	if err != nil {
		return domain.Market{}, err
	}

	m.Question = fmt.Sprintf("Market %d", marketID)
	if q, err := c.GetQuestion(ctx, marketID); err == nil && q != "" {
		m.Question = q
	} else if err != nil && errors.Is(err, context.Canceled) {
		return domain.Market{}, err
	}

	if user != "" {
		if ok, err := c.HasCommitted(ctx, marketID, user); err == nil {
			m.HasCommitted = ok
		}
	}
	return m, nil
}

// bytesValue decodes a vector<u8> return value, which nodes render either as
// a 0x hex string or as an array of numbers.
func bytesValue(v gjson.Result) ([]byte, error) {
	switch {
	case !v.Exists():
		return nil, errors.New("missing value")
	case v.Type == gjson.String:
		return decodeHex(v.String())
	case v.IsArray():
		items := v.Array()
		out := make([]byte, len(items))
		for i, it := range items {
			n := it.Uint()
			if n > 255 {
				return nil, fmt.Errorf("byte %d out of range: %d", i, n)
			}
			out[i] = byte(n)
		}
		return out, nil
	default:
		return nil, fmt.Errorf("unexpected value %s", v.Raw)
	}
}
