package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alanyoungcy/darkpool/internal/cache/memory"
	"github.com/alanyoungcy/darkpool/internal/crypto"
	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/store/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testContract = "0xcafe"
	testAddr     = "0x63c5215e87770d17b9f4cd47c777e322f4eb152cfd2054c1080fd9d57c48913b"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeSigner struct {
	mu      sync.Mutex
	intents []domain.TransactionIntent
	err     error
	// onSubmit runs before the receipt is returned.
	onSubmit func(domain.TransactionIntent)
}

func (f *fakeSigner) Address() string { return testAddr }

func (f *fakeSigner) SignAndSubmit(_ context.Context, intent domain.TransactionIntent) (domain.TxReceipt, error) {
	f.mu.Lock()
	f.intents = append(f.intents, intent)
	f.mu.Unlock()
	if f.onSubmit != nil {
		f.onSubmit(intent)
	}
	if f.err != nil {
		return domain.TxReceipt{}, f.err
	}
	return domain.TxReceipt{Hash: "0xbeef", Version: 42, Success: true, VMStatus: "Executed successfully"}, nil
}

func (f *fakeSigner) calls() []domain.TransactionIntent {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]domain.TransactionIntent(nil), f.intents...)
}

type recordingSink struct {
	mu     sync.Mutex
	events []domain.Event
	err    error
}

func (r *recordingSink) Name() string { return "recording" }

func (r *recordingSink) Publish(_ context.Context, ev domain.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, ev)
	return r.err
}

func (r *recordingSink) types() []domain.EventType {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]domain.EventType, 0, len(r.events))
	for _, ev := range r.events {
		out = append(out, ev.Type)
	}
	return out
}

type recordingObserver struct {
	mu      sync.Mutex
	reasons []domain.Reason
}

func (o *recordingObserver) ObserveAction(_ domain.ActionKind, reason domain.Reason, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.reasons = append(o.reasons, reason)
}

type harness struct {
	svc      *PredictionService
	signer   *fakeSigner
	db       *sqlite.DB
	sink     *recordingSink
	observer *recordingObserver
	touched  []uint64
}

func newHarness(t *testing.T, signer *fakeSigner) *harness {
	t.Helper()
	db, err := sqlite.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := &harness{signer: signer, db: db, sink: &recordingSink{}, observer: &recordingObserver{}}
	deps := PredictionDeps{
		Store:       db.Commitments(),
		Locks:       memory.NewLockManager(),
		History:     db.History(),
		Leaderboard: db.Leaderboard(),
		Audit:       db.Audit(),
		Sinks:       []EventSink{h.sink},
		Observer:    h.observer,
	}
	if signer != nil {
		deps.Signer = signer
	}
	h.svc = NewPredictionService(PredictionConfig{
		Contract:           testContract,
		Module:             "darkpool",
		FeeBps:             250,
		VerifyBeforeReveal: true,
	}, deps, discardLogger()).WithAfterAction(func(_ context.Context, id uint64) {
		h.touched = append(h.touched, id)
	})
	return h
}

func market(id uint64, phase domain.Phase) domain.Market {
	return domain.Market{
		ID:            id,
		Question:      "Will BTC close above 100k?",
		Phase:         phase,
		CommitEndTime: time.Now().Add(time.Hour).Unix(),
		RevealEndTime: time.Now().Add(2 * time.Hour).Unix(),
	}
}

func TestCommit_StoresOpeningAndSubmitsDigest(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)

	// The opening must already be stored when the transaction goes out.
	signer.onSubmit = func(domain.TransactionIntent) {
		_, err := h.db.Commitments().Get(ctx, 7)
		assert.NoError(t, err, "opening stored before submission")
	}

	out := h.svc.Commit(ctx, market(7, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT)
	require.True(t, out.Success, out.Message)
	assert.Equal(t, "0xbeef", out.TxHash)
	assert.Equal(t, domain.ActionCommit, out.Action)

	calls := signer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.IntentCommitBet, calls[0].Kind)
	assert.Equal(t, testContract+"::darkpool::commit_bet", calls[0].Function)

	c, err := h.db.Commitments().Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, domain.SideYes, c.Side)
	assert.NoError(t, crypto.VerifyOpening(c, testAddr))

	digest, err := crypto.DecodeDigest(c.CommitHash)
	require.NoError(t, err)
	assert.Equal(t, digest, calls[0].Args[2].Bytes, "submitted digest matches stored opening")
	for _, arg := range calls[0].Args {
		assert.NotEqual(t, domain.ArgU8, arg.Type, "side never leaves the process on commit")
	}

	st, err := h.db.Leaderboard().GetStats(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.XPCommit, st.XP)
	assert.Equal(t, []domain.EventType{domain.EventCommit}, h.sink.types())
	assert.Equal(t, []uint64{7}, h.touched)
}

func TestCommit_WrongPhaseTouchesNothing(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)

	out := h.svc.Commit(ctx, market(3, domain.PhaseReveal), domain.SideNo, domain.OctasPerAPT)
	assert.False(t, out.Success)
	assert.Equal(t, domain.ReasonInvalidPhase, out.Reason)
	assert.Empty(t, signer.calls())

	list, err := h.db.Commitments().List(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
	assert.Empty(t, h.touched)
}

func TestCommit_InputValidation(t *testing.T) {
	h := newHarness(t, &fakeSigner{})
	ctx := context.Background()

	tests := []struct {
		name   string
		side   domain.Side
		amount uint64
	}{
		{"unset side", domain.SideUnset, domain.OctasPerAPT},
		{"zero amount", domain.SideYes, 0},
		{"below minimum", domain.SideYes, domain.MinCommitOctas - 1},
		{"above maximum", domain.SideNo, domain.MaxCommitOctas + 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := h.svc.Commit(ctx, market(1, domain.PhaseCommit), tt.side, tt.amount)
			assert.False(t, out.Success)
			assert.Equal(t, domain.ReasonInvalidInput, out.Reason)
		})
	}
	assert.Empty(t, h.signer.calls())
}

func TestCommit_FailedSubmissionKeepsOpening(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{err: fmt.Errorf("aptos: submit: %w", domain.ErrInsufficientFunds)}
	h := newHarness(t, signer)

	out := h.svc.Commit(ctx, market(9, domain.PhaseCommit), domain.SideNo, domain.OctasPerAPT)
	assert.False(t, out.Success)
	assert.Equal(t, domain.ReasonSignerRejected, out.Reason)
	assert.True(t, out.Reason.Retryable())

	_, err := h.db.Commitments().Get(ctx, 9)
	assert.NoError(t, err, "opening kept after failed submission")
	assert.Empty(t, h.sink.types())

	audit, err := h.db.Audit().List(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.NotEmpty(t, audit)
	assert.Equal(t, "tx_failed", audit[0].Event)
}

func TestCommit_AlreadyCommittedKeepsOpening(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)
	require.True(t, h.svc.Commit(ctx, market(4, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT).Success)

	before, err := h.db.Commitments().Get(ctx, 4)
	require.NoError(t, err)

	m := market(4, domain.PhaseCommit)
	m.HasCommitted = true
	out := h.svc.Commit(ctx, m, domain.SideNo, 2*domain.OctasPerAPT)
	assert.False(t, out.Success)
	assert.Equal(t, domain.ReasonInvalidInput, out.Reason)
	assert.Contains(t, out.Message, "already committed")
	assert.Len(t, signer.calls(), 1, "second commit never submitted")

	after, err := h.db.Commitments().Get(ctx, 4)
	require.NoError(t, err)
	assert.Equal(t, before.Salt, after.Salt)
	assert.Equal(t, before.CommitHash, after.CommitHash)
	assert.Equal(t, domain.SideYes, after.Side)
}

func TestActions_WalletNotConnected(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, nil)

	assert.Equal(t, "", h.svc.Address())
	outs := []domain.ActionOutcome{
		h.svc.Commit(ctx, market(1, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT),
		h.svc.Reveal(ctx, market(1, domain.PhaseReveal)),
		h.svc.Claim(ctx, market(1, domain.PhaseResolved)),
		h.svc.CreateMarket(ctx, "Will it rain tomorrow in Paris?", 24, 12),
	}
	for _, out := range outs {
		assert.False(t, out.Success)
		assert.Equal(t, domain.ReasonWalletNotConnected, out.Reason, string(out.Action))
	}
}

func TestReveal_WithoutCommitmentSkipsNetwork(t *testing.T) {
	signer := &fakeSigner{}
	h := newHarness(t, signer)

	out := h.svc.Reveal(context.Background(), market(5, domain.PhaseReveal))
	assert.False(t, out.Success)
	assert.Equal(t, domain.ReasonNoCommitmentFound, out.Reason)
	assert.Empty(t, signer.calls())
}

func TestCommitThenReveal(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)

	require.True(t, h.svc.Commit(ctx, market(4, domain.PhaseCommit), domain.SideNo, 2*domain.OctasPerAPT).Success)
	stored, err := h.db.Commitments().Get(ctx, 4)
	require.NoError(t, err)

	early := h.svc.Reveal(ctx, market(4, domain.PhaseCommit))
	assert.Equal(t, domain.ReasonInvalidPhase, early.Reason)

	out := h.svc.Reveal(ctx, market(4, domain.PhaseReveal))
	require.True(t, out.Success, out.Message)

	calls := signer.calls()
	require.Len(t, calls, 2)
	reveal := calls[1]
	assert.Equal(t, domain.IntentRevealBet, reveal.Kind)
	assert.Equal(t, uint8(domain.SideNo), reveal.Args[2].U8)
	salt, err := crypto.DecodeSalt(stored.Salt)
	require.NoError(t, err)
	assert.Equal(t, salt, reveal.Args[3].Bytes)

	_, err = h.db.Commitments().Get(ctx, 4)
	assert.ErrorIs(t, err, domain.ErrNotFound, "opening removed after reveal")

	rev, err := h.db.History().LatestReveal(ctx, testAddr, 4)
	require.NoError(t, err)
	assert.Equal(t, domain.SideNo, rev.Side)
	assert.Equal(t, 2*domain.OctasPerAPT, rev.Amount)

	st, err := h.db.Leaderboard().GetStats(ctx, testAddr)
	require.NoError(t, err)
	assert.Equal(t, domain.XPCommit+domain.XPReveal, st.XP)
}

func TestReveal_FailureKeepsOpening(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)
	require.True(t, h.svc.Commit(ctx, market(2, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT).Success)

	signer.err = fmt.Errorf("aptos: %w: connection reset", domain.ErrNetwork)
	out := h.svc.Reveal(ctx, market(2, domain.PhaseReveal))
	assert.Equal(t, domain.ReasonNetworkError, out.Reason)

	_, err := h.db.Commitments().Get(ctx, 2)
	assert.NoError(t, err)
}

func TestReveal_TamperedOpeningRejected(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)
	require.True(t, h.svc.Commit(ctx, market(6, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT).Success)

	c, err := h.db.Commitments().Get(ctx, 6)
	require.NoError(t, err)
	c.Side = domain.SideNo
	require.NoError(t, h.db.Commitments().Put(ctx, c))

	out := h.svc.Reveal(ctx, market(6, domain.PhaseReveal))
	assert.False(t, out.Success)
	assert.Len(t, signer.calls(), 1, "no reveal submitted")
}

func TestClaim_WinEmitsEventOnlyForWinningSide(t *testing.T) {
	tests := []struct {
		name    string
		side    domain.Side
		wantWin bool
	}{
		{"winner", domain.SideYes, true},
		{"loser", domain.SideNo, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx := context.Background()
			h := newHarness(t, &fakeSigner{})
			require.True(t, h.svc.Commit(ctx, market(8, domain.PhaseCommit), tt.side, domain.OctasPerAPT).Success)
			require.True(t, h.svc.Reveal(ctx, market(8, domain.PhaseReveal)).Success)

			resolved := market(8, domain.PhaseResolved)
			resolved.WinnerSide = domain.SideYes
			resolved.YesPool = 100
			resolved.NoPool = 100

			out := h.svc.Claim(ctx, resolved)
			require.True(t, out.Success, out.Message)

			types := h.sink.types()
			if tt.wantWin {
				assert.Contains(t, types, domain.EventWin)
			} else {
				assert.NotContains(t, types, domain.EventWin)
			}

			st, err := h.db.Leaderboard().GetStats(ctx, testAddr)
			require.NoError(t, err)
			want := domain.XPCommit + domain.XPReveal
			if tt.wantWin {
				want += domain.XPWin
			}
			assert.Equal(t, want, st.XP)
		})
	}
}

func TestClaim_RequiresResolvedMarket(t *testing.T) {
	signer := &fakeSigner{}
	h := newHarness(t, signer)
	out := h.svc.Claim(context.Background(), market(1, domain.PhaseReveal))
	assert.Equal(t, domain.ReasonInvalidPhase, out.Reason)
	assert.Empty(t, signer.calls())
}

func TestSinkFailureDoesNotFailAction(t *testing.T) {
	h := newHarness(t, &fakeSigner{})
	h.sink.err = errors.New("webhook down")

	out := h.svc.Commit(context.Background(), market(1, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT)
	assert.True(t, out.Success)
}

func TestCreateMarket(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)

	out := h.svc.CreateMarket(ctx, "short", 24, 12)
	assert.Equal(t, domain.ReasonInvalidInput, out.Reason)

	out = h.svc.CreateMarket(ctx, "Will ETH flip BTC by 2030?", 24*365, 12)
	assert.Equal(t, domain.ReasonInvalidInput, out.Reason)

	out = h.svc.CreateMarket(ctx, "Will ETH flip BTC by 2030?", 24, 12)
	require.True(t, out.Success, out.Message)
	calls := signer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.IntentCreateMarket, calls[0].Kind)
	assert.Equal(t, []byte("Will ETH flip BTC by 2030?"), calls[0].Args[0].Bytes)
	assert.Equal(t, uint64(24*3600), calls[0].Args[1].U64)
	assert.Equal(t, uint64(12*3600), calls[0].Args[2].U64)
}

func TestResolve(t *testing.T) {
	signer := &fakeSigner{}
	h := newHarness(t, signer)

	out := h.svc.Resolve(context.Background(), 3, domain.SideUnset)
	assert.Equal(t, domain.ReasonInvalidInput, out.Reason)

	out = h.svc.Resolve(context.Background(), 3, domain.SideNo)
	require.True(t, out.Success)
	calls := signer.calls()
	require.Len(t, calls, 1)
	assert.Equal(t, domain.IntentResolveMarket, calls[0].Kind)
	assert.Equal(t, uint8(domain.SideNo), calls[0].Args[2].U8)
}

func TestActionLockContention(t *testing.T) {
	ctx := context.Background()
	signer := &fakeSigner{}
	h := newHarness(t, signer)

	unlock, err := h.svc.locks.Acquire(ctx, "action:"+testAddr+":1", time.Minute)
	require.NoError(t, err)
	defer unlock()

	out := h.svc.Commit(ctx, market(1, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT)
	assert.Equal(t, domain.ReasonNetworkError, out.Reason)
	assert.Empty(t, signer.calls())
}

func TestClearCommitments(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, &fakeSigner{})
	require.True(t, h.svc.Commit(ctx, market(1, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT).Success)
	require.True(t, h.svc.Commit(ctx, market(2, domain.PhaseCommit), domain.SideNo, domain.OctasPerAPT).Success)

	list, err := h.svc.Commitments(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, h.svc.ClearCommitments(ctx))
	list, err = h.svc.Commitments(ctx)
	require.NoError(t, err)
	assert.Empty(t, list)
}

func TestObserverSeesEveryOutcome(t *testing.T) {
	h := newHarness(t, &fakeSigner{})
	ctx := context.Background()
	h.svc.Commit(ctx, market(1, domain.PhaseCommit), domain.SideYes, domain.OctasPerAPT)
	h.svc.Reveal(ctx, market(2, domain.PhaseReveal))

	assert.Equal(t, []domain.Reason{domain.ReasonNone, domain.ReasonNoCommitmentFound}, h.observer.reasons)
}
