package aptos_test

import (
	"context"
	"crypto/ed25519"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/crypto"
	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/platform/aptos"
)

const (
	contract = "0xcafe"
	rfcSeed  = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	user     = "0x63c5215e87770d17b9f4cd47c777e322f4eb152cfd2054c1080fd9d57c48913b"
)

func newClient(t *testing.T, h http.Handler) *aptos.Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	return aptos.NewClient(aptos.ClientConfig{
		NodeURL:           srv.URL,
		ContractAddress:   contract,
		ViewModule:        "prediction_market",
		RequestTimeout:    2 * time.Second,
		RequestsPerSecond: 1000,
		Burst:             100,
	})
}

// viewHandler answers /view by function name.
func viewHandler(t *testing.T, results map[string]string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/view", r.URL.Path)
		var req struct {
			Function  string `json:"function"`
			Arguments []any  `json:"arguments"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, contract, req.Arguments[0])
		name := req.Function[strings.LastIndex(req.Function, "::")+2:]
		body, ok := results[name]
		if !ok {
			w.WriteHeader(http.StatusBadRequest)
			io.WriteString(w, `{"message":"function not found","error_code":"invalid_input"}`)
			return
		}
		io.WriteString(w, body)
	}
}

func TestGetMarket(t *testing.T) {
	c := newClient(t, viewHandler(t, map[string]string{
		"get_market": `["2","1700000000","1700086400","0","300000000","100000000"]`,
	}))

	m, err := c.GetMarket(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(7), m.ID)
	assert.Equal(t, domain.PhaseReveal, m.Phase)
	assert.Equal(t, int64(1700000000), m.CommitEndTime)
	assert.Equal(t, int64(1700086400), m.RevealEndTime)
	assert.Equal(t, domain.SideUnset, m.WinnerSide)
	assert.Equal(t, uint64(300000000), m.YesPool)
	assert.Equal(t, uint64(100000000), m.NoPool)
}

func TestGetMarket_ShortTuple(t *testing.T) {
	c := newClient(t, viewHandler(t, map[string]string{"get_market": `["1","2"]`}))
	_, err := c.GetMarket(context.Background(), 1)
	assert.ErrorIs(t, err, domain.ErrUnknownLedger)
}

func TestFetchMarket(t *testing.T) {
	question := "Will BTC close above 100k?"
	c := newClient(t, viewHandler(t, map[string]string{
		"get_market":          `["1","1700000000","1700086400","0","0","0"]`,
		"get_market_question": `["` + hexutil.Encode([]byte(question)) + `"]`,
		"has_committed":       `[true]`,
	}))

	m, err := c.FetchMarket(context.Background(), 3, user)
	require.NoError(t, err)
	assert.Equal(t, question, m.Question)
	assert.True(t, m.HasCommitted)
}

func TestFetchMarket_QuestionFallback(t *testing.T) {
	c := newClient(t, viewHandler(t, map[string]string{
		"get_market": `["1","1700000000","1700086400","0","0","0"]`,
	}))

	m, err := c.FetchMarket(context.Background(), 12, "")
	require.NoError(t, err)
	assert.Equal(t, "Market 12", m.Question)
	assert.False(t, m.HasCommitted)
}

func TestGetQuestion_ByteArray(t *testing.T) {
	c := newClient(t, viewHandler(t, map[string]string{
		"get_market_question": `[[72,105]]`,
	}))
	q, err := c.GetQuestion(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, "Hi", q)
}

func TestErrorClassification(t *testing.T) {
	tests := []struct {
		name   string
		status int
		body   string
		want   error
	}{
		{"not found", http.StatusNotFound, `{"message":"account not found"}`, domain.ErrNotFound},
		{"rate limited", http.StatusTooManyRequests, `{}`, domain.ErrRateLimited},
		{"server error", http.StatusBadGateway, `bad gateway`, domain.ErrNetwork},
		{"insufficient", http.StatusBadRequest, `{"message":"INSUFFICIENT_BALANCE_FOR_TRANSACTION_FEE"}`, domain.ErrInsufficientFunds},
		{"rejected", http.StatusBadRequest, `{"message":"transaction rejected"}`, domain.ErrSignerRejected},
		{"other", http.StatusBadRequest, `{"message":"SEQUENCE_NUMBER_TOO_OLD"}`, domain.ErrUnknownLedger},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				io.WriteString(w, tt.body)
			}))
			_, err := c.Account(context.Background(), user)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestRequestTimeoutIsNetworkError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(time.Second):
		}
	}))
	defer srv.Close()

	c := aptos.NewClient(aptos.ClientConfig{NodeURL: srv.URL, ContractAddress: contract, RequestTimeout: 50 * time.Millisecond})
	_, err := c.Info(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNetwork)
	assert.Equal(t, domain.ReasonNetworkError, domain.ReasonFor(err))
}

func TestPayloadFromIntent(t *testing.T) {
	digest := make([]byte, 32)
	digest[0] = 0xab
	intent := domain.NewIntent(contract, "darkpool", domain.IntentCommitBet,
		domain.AddressArg(contract), domain.U64Arg(7), domain.BytesArg(digest), domain.U64Arg(100_000_000))

	p, err := aptos.PayloadFromIntent(intent)
	require.NoError(t, err)
	assert.Equal(t, "entry_function_payload", p.Type)
	assert.Equal(t, "0xcafe::darkpool::commit_bet", p.Function)
	assert.Equal(t, []any{contract, "7", hexutil.Encode(digest), "100000000"}, p.Arguments)

	reveal := domain.NewIntent(contract, "darkpool", domain.IntentRevealBet,
		domain.AddressArg(contract), domain.U64Arg(7), domain.U8Arg(1), domain.BytesArg(make([]byte, 32)))
	p, err = aptos.PayloadFromIntent(reveal)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), p.Arguments[2])
}

// fakeNode implements the endpoints LocalSigner uses.
type fakeNode struct {
	t         *testing.T
	mu        sync.Mutex
	submitted []map[string]any
	pending   int
	vmStatus  string
}

func (f *fakeNode) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case r.Method == http.MethodGet && strings.HasPrefix(r.URL.Path, "/accounts/"):
		json.NewEncoder(w).Encode(map[string]string{"sequence_number": "5", "authentication_key": user})
	case r.URL.Path == "/transactions/encode_submission":
		io.WriteString(w, `"0x`+strings.Repeat("ab", 40)+`"`)
	case r.Method == http.MethodPost && r.URL.Path == "/transactions":
		var body map[string]any
		assert.NoError(f.t, json.NewDecoder(r.Body).Decode(&body))
		f.submitted = append(f.submitted, body)
		w.WriteHeader(http.StatusAccepted)
		io.WriteString(w, `{"hash":"0xfeed","type":"pending_transaction"}`)
	case strings.HasPrefix(r.URL.Path, "/transactions/wait_by_hash/"):
		if f.pending > 0 {
			f.pending--
			io.WriteString(w, `{"hash":"0xfeed","type":"pending_transaction"}`)
			return
		}
		status := f.vmStatus
		success := status == ""
		if success {
			status = "Executed successfully"
		}
		json.NewEncoder(w).Encode(map[string]any{
			"type": "user_transaction", "hash": "0xfeed", "version": "99",
			"success": success, "vm_status": status, "gas_used": "12",
		})
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newSigner(t *testing.T, node *fakeNode, wait bool) *aptos.LocalSigner {
	t.Helper()
	acct, err := crypto.NewAccount(rfcSeed)
	require.NoError(t, err)
	return aptos.NewLocalSigner(newClient(t, node), acct, aptos.SignerConfig{WaitForTx: wait, TxExpiry: 5 * time.Second})
}

func claimIntent() domain.TransactionIntent {
	return domain.NewIntent(contract, "darkpool", domain.IntentClaimReward, domain.AddressArg(contract), domain.U64Arg(7))
}

func TestLocalSigner_SignAndSubmit(t *testing.T) {
	node := &fakeNode{t: t, pending: 1}
	s := newSigner(t, node, true)
	assert.Equal(t, user, s.Address())

	rec, err := s.SignAndSubmit(context.Background(), claimIntent())
	require.NoError(t, err)
	assert.True(t, rec.Success)
	assert.Equal(t, "0xfeed", rec.Hash)
	assert.Equal(t, uint64(99), rec.Version)

	require.Len(t, node.submitted, 1)
	body := node.submitted[0]
	assert.Equal(t, user, body["sender"])
	assert.Equal(t, "5", body["sequence_number"])

	sig := body["signature"].(map[string]any)
	assert.Equal(t, "ed25519_signature", sig["type"])
	pub, err := hexutil.Decode(sig["public_key"].(string))
	require.NoError(t, err)
	raw, err := hexutil.Decode(sig["signature"].(string))
	require.NoError(t, err)
	msg, _ := hexutil.Decode("0x" + strings.Repeat("ab", 40))
	assert.True(t, ed25519.Verify(pub, msg, raw), "signature covers the encoded submission")
}

func TestLocalSigner_SequenceAdvancesLocally(t *testing.T) {
	node := &fakeNode{t: t}
	s := newSigner(t, node, false)

	for i := 0; i < 2; i++ {
		rec, err := s.SignAndSubmit(context.Background(), claimIntent())
		require.NoError(t, err)
		assert.Equal(t, "pending", rec.VMStatus)
	}
	require.Len(t, node.submitted, 2)
	assert.Equal(t, "5", node.submitted[0]["sequence_number"])
	assert.Equal(t, "6", node.submitted[1]["sequence_number"], "chain still reports 5")
}

func TestLocalSigner_VMAbort(t *testing.T) {
	node := &fakeNode{t: t, vmStatus: "Move abort in 0xcafe::darkpool: E_WRONG_PHASE(0x3)"}
	s := newSigner(t, node, true)

	rec, err := s.SignAndSubmit(context.Background(), claimIntent())
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrUnknownLedger)
	assert.False(t, rec.Success)
	assert.Contains(t, err.Error(), "E_WRONG_PHASE")
}

func TestLocalSigner_RejectsInvalidIntent(t *testing.T) {
	node := &fakeNode{t: t}
	s := newSigner(t, node, true)

	bad := domain.NewIntent(contract, "darkpool", domain.IntentClaimReward, domain.U64Arg(7))
	_, err := s.SignAndSubmit(context.Background(), bad)
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	assert.Empty(t, node.submitted)
}
