// Package aptos is the REST client for an Aptos fullnode. It reads the
// prediction market through view functions and submits signed entry function
// transactions through the JSON submission API.
package aptos

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/tidwall/gjson"
	"golang.org/x/time/rate"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// ClientConfig holds fullnode connection parameters.
type ClientConfig struct {
	NodeURL           string
	ContractAddress   string
	ViewModule        string
	RequestTimeout    time.Duration
	RequestsPerSecond float64
	Burst             int
}

// Client talks to a fullnode's v1 REST API. Every request is throttled by a
// token bucket and bounded by the request timeout.
type Client struct {
	baseURL    string
	contract   string
	viewModule string
	timeout    time.Duration
	httpClient *http.Client
	limiter    *rate.Limiter

	// observe, when set, receives the duration and outcome of every request.
	observe func(op string, d time.Duration, err error)
}

// NewClient creates a fullnode client.
func NewClient(cfg ClientConfig) *Client {
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 15 * time.Second
	}
	if cfg.RequestsPerSecond <= 0 {
		cfg.RequestsPerSecond = 10
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 1
	}
	if cfg.ViewModule == "" {
		cfg.ViewModule = "prediction_market"
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.NodeURL, "/"),
		contract:   cfg.ContractAddress,
		viewModule: cfg.ViewModule,
		timeout:    cfg.RequestTimeout,
		httpClient: &http.Client{
			Timeout: cfg.RequestTimeout + 5*time.Second,
		},
		limiter: rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), cfg.Burst),
	}
}

// SetObserver registers a hook called after every request, used for metrics.
func (c *Client) SetObserver(fn func(op string, d time.Duration, err error)) {
	c.observe = fn
}

// Contract returns the contract address the client reads from.
func (c *Client) Contract() string {
	return c.contract
}

// LedgerInfo is the subset of GET / the client uses.
type LedgerInfo struct {
	ChainID         uint64
	LedgerVersion   uint64
	LedgerTimestamp time.Time
}

// Info returns the node's ledger summary. It doubles as a health check.
func (c *Client) Info(ctx context.Context) (LedgerInfo, error) {
	body, err := c.do(ctx, "info", http.MethodGet, "/", nil)
	if err != nil {
		return LedgerInfo{}, fmt.Errorf("aptos: ledger info: %w", err)
	}
	r := gjson.ParseBytes(body)
	return LedgerInfo{
		ChainID:         r.Get("chain_id").Uint(),
		LedgerVersion:   r.Get("ledger_version").Uint(),
		LedgerTimestamp: time.UnixMicro(r.Get("ledger_timestamp").Int()),
	}, nil
}

// AccountInfo is the on-chain account resource.
type AccountInfo struct {
	SequenceNumber    uint64
	AuthenticationKey string
}

// Account fetches the sequence number and authentication key for address.
// An address the chain has never seen returns domain.ErrNotFound.
func (c *Client) Account(ctx context.Context, address string) (AccountInfo, error) {
	body, err := c.do(ctx, "account", http.MethodGet, "/accounts/"+url.PathEscape(address), nil)
	if err != nil {
		return AccountInfo{}, fmt.Errorf("aptos: account %s: %w", address, err)
	}
	r := gjson.ParseBytes(body)
	seq := r.Get("sequence_number")
	if !seq.Exists() {
		return AccountInfo{}, fmt.Errorf("aptos: account %s: %w: missing sequence_number", address, domain.ErrUnknownLedger)
	}
	return AccountInfo{
		SequenceNumber:    seq.Uint(),
		AuthenticationKey: r.Get("authentication_key").String(),
	}, nil
}

type viewRequest struct {
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// View calls a view function and returns the JSON array of its return values.
func (c *Client) View(ctx context.Context, function string, args ...any) (gjson.Result, error) {
	if args == nil {
		args = []any{}
	}
	body, err := c.do(ctx, "view", http.MethodPost, "/view", viewRequest{
		Function:      function,
		TypeArguments: []string{},
		Arguments:     args,
	})
	if err != nil {
		return gjson.Result{}, fmt.Errorf("aptos: view %s: %w", function, err)
	}
	r := gjson.ParseBytes(body)
	if !r.IsArray() {
		return gjson.Result{}, fmt.Errorf("aptos: view %s: %w: result is not an array", function, domain.ErrUnknownLedger)
	}
	return r, nil
}

// EncodeSubmission asks the node for the BCS signing message of req.
func (c *Client) EncodeSubmission(ctx context.Context, req TxRequest) ([]byte, error) {
	body, err := c.do(ctx, "encode_submission", http.MethodPost, "/transactions/encode_submission", req)
	if err != nil {
		return nil, fmt.Errorf("aptos: encode submission: %w", err)
	}
	var msgHex string
	if err := json.Unmarshal(body, &msgHex); err != nil {
		return nil, fmt.Errorf("aptos: encode submission: %w: %v", domain.ErrUnknownLedger, err)
	}
	msg, err := decodeHex(msgHex)
	if err != nil {
		return nil, fmt.Errorf("aptos: encode submission: %w: %v", domain.ErrUnknownLedger, err)
	}
	return msg, nil
}

// Submit posts a signed transaction and returns its hash.
func (c *Client) Submit(ctx context.Context, tx SignedTxRequest) (string, error) {
	body, err := c.do(ctx, "submit", http.MethodPost, "/transactions", tx)
	if err != nil {
		return "", fmt.Errorf("aptos: submit transaction: %w", err)
	}
	hash := gjson.GetBytes(body, "hash").String()
	if hash == "" {
		return "", fmt.Errorf("aptos: submit transaction: %w: response has no hash", domain.ErrUnknownLedger)
	}
	return hash, nil
}

// pendingPollInterval is how long WaitForTransaction sleeps between polls of a
// transaction the node still reports as pending.
const pendingPollInterval = 500 * time.Millisecond

// WaitForTransaction blocks until hash is committed or ctx ends. A committed
// transaction whose VM status is not success is reported as an error together
// with its receipt.
func (c *Client) WaitForTransaction(ctx context.Context, hash string) (domain.TxReceipt, error) {
	path := "/transactions/wait_by_hash/" + url.PathEscape(hash)
	for {
		body, err := c.do(ctx, "wait", http.MethodGet, path, nil)
		switch {
		case errors.Is(err, domain.ErrNotFound):
			// Not indexed yet.
		case err != nil:
			return domain.TxReceipt{Hash: hash}, fmt.Errorf("aptos: wait for %s: %w", hash, err)
		default:
			r := gjson.ParseBytes(body)
			if r.Get("type").String() != "pending_transaction" {
				return receiptFrom(hash, r)
			}
		}

		select {
		case <-ctx.Done():
			return domain.TxReceipt{Hash: hash}, fmt.Errorf("aptos: wait for %s: %w: %v", hash, domain.ErrNetwork, ctx.Err())
		case <-time.After(pendingPollInterval):
		}
	}
}

func receiptFrom(hash string, r gjson.Result) (domain.TxReceipt, error) {
	rec := domain.TxReceipt{
		Hash:     hash,
		Version:  r.Get("version").Uint(),
		Success:  r.Get("success").Bool(),
		VMStatus: r.Get("vm_status").String(),
		GasUsed:  r.Get("gas_used").Uint(),
	}
	if h := r.Get("hash").String(); h != "" {
		rec.Hash = h
	}
	if !rec.Success {
		return rec, fmt.Errorf("aptos: transaction %s failed: %w", rec.Hash, classifyVMStatus(rec.VMStatus))
	}
	return rec, nil
}

// do performs one throttled request and returns the body of a 2xx response.
// Non-2xx responses and transport failures are mapped onto domain errors.
func (c *Client) do(ctx context.Context, op, method, path string, payload any) (body []byte, err error) {
	start := time.Now()
	defer func() {
		if c.observe != nil {
			c.observe(op, time.Since(start), err)
		}
	}()

	if err := c.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: rate limiter: %v", domain.ErrNetwork, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if payload != nil {
		buf, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%w: marshal request: %v", domain.ErrInvalidInput, err)
		}
		reader = bytes.NewReader(buf)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrNetwork, err)
	}
	defer resp.Body.Close()

	body, err = io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %v", domain.ErrNetwork, err)
	}
	if err := checkHTTPStatus(resp.StatusCode, body); err != nil {
		return nil, err
	}
	return body, nil
}

// checkHTTPStatus maps a node error response onto the failure taxonomy.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	msg := gjson.GetBytes(body, "message").String()
	if msg == "" {
		msg = strings.TrimSpace(string(body))
	}
	code := gjson.GetBytes(body, "error_code").String()
	detail := msg
	if code != "" {
		detail = code + ": " + msg
	}

	switch {
	case statusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, detail)
	case statusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, detail)
	case statusCode >= 500:
		return fmt.Errorf("%w: HTTP %d: %s", domain.ErrNetwork, statusCode, detail)
	}
	return classifyMessage(fmt.Sprintf("HTTP %d: %s", statusCode, detail))
}

// classifyMessage sorts a rejection message into signer-side and ledger-side
// failures.
func classifyMessage(msg string) error {
	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "insufficient"):
		return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, msg)
	case strings.Contains(lower, "rejected"):
		return fmt.Errorf("%w: %s", domain.ErrSignerRejected, msg)
	default:
		return fmt.Errorf("%w: %s", domain.ErrUnknownLedger, msg)
	}
}

func classifyVMStatus(status string) error {
	if strings.Contains(strings.ToUpper(status), "INSUFFICIENT_BALANCE") {
		return fmt.Errorf("%w: %s", domain.ErrInsufficientFunds, status)
	}
	return fmt.Errorf("%w: %s", domain.ErrUnknownLedger, status)
}
