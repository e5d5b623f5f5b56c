package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/alanyoungcy/darkpool/internal/crypto"
	"github.com/alanyoungcy/darkpool/internal/domain"
)

// Signer submits transactions on behalf of the connected wallet so the
// service layer never depends on concrete key management.
type Signer interface {
	Address() string
	SignAndSubmit(ctx context.Context, intent domain.TransactionIntent) (domain.TxReceipt, error)
}

// EventSink receives side-channel events. Failures are logged and dropped.
type EventSink interface {
	Publish(ctx context.Context, ev domain.Event) error
	Name() string
}

// ActionObserver records action outcomes, typically as metrics.
type ActionObserver interface {
	ObserveAction(action domain.ActionKind, reason domain.Reason, d time.Duration)
}

// PredictionConfig holds the contract coordinates and flow settings.
type PredictionConfig struct {
	Contract string
	Module   string
	FeeBps   uint64
	// VerifyBeforeReveal recomputes the digest of a stored opening before
	// submitting it.
	VerifyBeforeReveal bool
	LockTTL            time.Duration
}

// PredictionDeps are the collaborators of PredictionService. Signer may be
// nil (no wallet connected). History, Leaderboard, Audit and Observer are
// optional.
type PredictionDeps struct {
	Signer      Signer
	Store       domain.CommitmentStore
	Locks       domain.LockManager
	History     domain.HistoryStore
	Leaderboard domain.LeaderboardStore
	Audit       domain.AuditStore
	Sinks       []EventSink
	Observer    ActionObserver
}

// PredictionService runs the commit, reveal and claim actions. Each action
// moves one (address, market) pair forward through
// NoCommitment -> Committed -> Revealed -> Claimed and reports a structured
// ActionOutcome; errors never escape to callers.
type PredictionService struct {
	cfg         PredictionConfig
	signer      Signer
	store       domain.CommitmentStore
	locks       domain.LockManager
	history     domain.HistoryStore
	leaderboard domain.LeaderboardStore
	audit       domain.AuditStore
	sinks       []EventSink
	observer    ActionObserver
	afterAction func(ctx context.Context, marketID uint64)
	now         func() time.Time
	logger      *slog.Logger
}

// NewPredictionService creates a PredictionService.
func NewPredictionService(cfg PredictionConfig, deps PredictionDeps, logger *slog.Logger) *PredictionService {
	if cfg.Module == "" {
		cfg.Module = "darkpool"
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = 2 * time.Minute
	}
	return &PredictionService{
		cfg:         cfg,
		signer:      deps.Signer,
		store:       deps.Store,
		locks:       deps.Locks,
		history:     deps.History,
		leaderboard: deps.Leaderboard,
		audit:       deps.Audit,
		sinks:       deps.Sinks,
		observer:    deps.Observer,
		now:         time.Now,
		logger:      logger.With(slog.String("component", "prediction_service")),
	}
}

// WithAfterAction registers a hook run after every successful action, used to
// invalidate cached market state and trigger an immediate refresh.
func (s *PredictionService) WithAfterAction(fn func(ctx context.Context, marketID uint64)) *PredictionService {
	s.afterAction = fn
	return s
}

// Address returns the connected wallet address, or "" when none.
func (s *PredictionService) Address() string {
	if s.signer == nil {
		return ""
	}
	return s.signer.Address()
}

// Commitments lists locally stored openings.
func (s *PredictionService) Commitments(ctx context.Context) ([]domain.Commitment, error) {
	list, err := s.store.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("prediction_service: list commitments: %w", err)
	}
	return list, nil
}

// ClearCommitments drops every stored opening, for logout or account switch.
func (s *PredictionService) ClearCommitments(ctx context.Context) error {
	if err := s.store.Clear(ctx); err != nil {
		return fmt.Errorf("prediction_service: clear commitments: %w", err)
	}
	s.auditLog(ctx, "commitments_cleared", map[string]any{"address": s.Address()})
	return nil
}

// Commit locks in a hidden prediction. The opening is stored before the
// transaction is submitted and stays in place if submission fails; side and
// salt never leave the process at this step.
func (s *PredictionService) Commit(ctx context.Context, market domain.Market, side domain.Side, amount uint64) domain.ActionOutcome {
	start := s.now()
	out := s.commit(ctx, market, side, amount)
	s.finish(ctx, out, market.ID, start)
	return out
}

func (s *PredictionService) commit(ctx context.Context, market domain.Market, side domain.Side, amount uint64) domain.ActionOutcome {
	const action = domain.ActionCommit
	if s.signer == nil {
		return failure(action, domain.ErrWalletNotConnected)
	}
	if market.Phase != domain.PhaseCommit {
		return failure(action, fmt.Errorf("%w: market %d is in %s phase, commits need commit phase",
			domain.ErrInvalidPhase, market.ID, market.Phase))
	}
	// The stored opening is the only way to reveal the commitment already on chain.
	if market.HasCommitted {
		return failure(action, fmt.Errorf("%w: already committed to market %d", domain.ErrInvalidInput, market.ID))
	}
	if !side.Valid() {
		return failure(action, fmt.Errorf("%w: side must be yes or no", domain.ErrInvalidInput))
	}
	if amount == 0 {
		return failure(action, fmt.Errorf("%w: amount must be positive", domain.ErrInvalidInput))
	}
	if err := domain.ValidateCommitAmount(amount); err != nil {
		return failure(action, err)
	}

	addr := s.signer.Address()
	unlock, err := s.lock(ctx, addr, market.ID)
	if err != nil {
		return failure(action, err)
	}
	defer unlock()

	c, err := crypto.NewCommitment(side, amount, addr, market.ID, s.now())
	if err != nil {
		return failure(action, err)
	}
	digest, err := crypto.DecodeDigest(c.CommitHash)
	if err != nil {
		return failure(action, err)
	}
	if err := s.store.Put(ctx, c); err != nil {
		return failure(action, fmt.Errorf("storing commitment: %w", err))
	}

	intent := domain.NewIntent(s.cfg.Contract, s.cfg.Module, domain.IntentCommitBet,
		domain.AddressArg(s.cfg.Contract),
		domain.U64Arg(market.ID),
		domain.BytesArg(digest),
		domain.U64Arg(amount),
	)
	rec, err := s.submit(ctx, intent, market.ID)
	if err != nil {
		return failure(action, err)
	}

	s.record(ctx, domain.HistoryEntry{
		Address:  addr,
		MarketID: market.ID,
		Action:   action,
		Amount:   amount,
		Question: market.Question,
		TxHash:   rec.Hash,
	})
	s.award(ctx, addr, domain.XPCommit, action)
	s.emit(ctx, domain.Event{
		Type:     domain.EventCommit,
		Address:  addr,
		MarketID: market.ID,
		Metadata: map[string]any{"amount": domain.FormatOctas(amount), "txHash": rec.Hash},
	})
	return success(action, rec.Hash, "Prediction committed")
}

// Reveal opens the stored commitment for market. Without a stored opening it
// fails with NoCommitmentFound before touching the network. On success the
// opening is deleted; on failure it is kept for another attempt.
func (s *PredictionService) Reveal(ctx context.Context, market domain.Market) domain.ActionOutcome {
	start := s.now()
	out := s.reveal(ctx, market)
	s.finish(ctx, out, market.ID, start)
	return out
}

func (s *PredictionService) reveal(ctx context.Context, market domain.Market) domain.ActionOutcome {
	const action = domain.ActionReveal
	if s.signer == nil {
		return failure(action, domain.ErrWalletNotConnected)
	}

	c, err := s.store.Get(ctx, market.ID)
	if errors.Is(err, domain.ErrNotFound) {
		return failure(action, fmt.Errorf("%w for market %d", domain.ErrNoCommitmentFound, market.ID))
	}
	if err != nil {
		return failure(action, fmt.Errorf("reading commitment: %w", err))
	}
	if market.Phase != domain.PhaseReveal {
		return failure(action, fmt.Errorf("%w: market %d is in %s phase, reveals need reveal phase",
			domain.ErrInvalidPhase, market.ID, market.Phase))
	}

	addr := s.signer.Address()
	unlock, err := s.lock(ctx, addr, market.ID)
	if err != nil {
		return failure(action, err)
	}
	defer unlock()

	if s.cfg.VerifyBeforeReveal {
		if err := crypto.VerifyOpening(c, addr); err != nil {
			return failure(action, err)
		}
	}
	salt, err := crypto.DecodeSalt(c.Salt)
	if err != nil {
		return failure(action, err)
	}

	intent := domain.NewIntent(s.cfg.Contract, s.cfg.Module, domain.IntentRevealBet,
		domain.AddressArg(s.cfg.Contract),
		domain.U64Arg(market.ID),
		domain.U8Arg(uint8(c.Side)),
		domain.BytesArg(salt),
	)
	rec, err := s.submit(ctx, intent, market.ID)
	if err != nil {
		return failure(action, err)
	}

	if err := s.store.Remove(ctx, market.ID); err != nil {
		s.logger.WarnContext(ctx, "remove revealed commitment failed",
			slog.Uint64("market_id", market.ID),
			slog.String("error", err.Error()),
		)
	}
	s.record(ctx, domain.HistoryEntry{
		Address:  addr,
		MarketID: market.ID,
		Action:   action,
		Side:     c.Side,
		Amount:   c.Amount,
		Question: market.Question,
		TxHash:   rec.Hash,
	})
	s.award(ctx, addr, domain.XPReveal, action)
	s.emit(ctx, domain.Event{
		Type:     domain.EventReveal,
		Address:  addr,
		MarketID: market.ID,
		Metadata: map[string]any{"side": c.Side.String(), "txHash": rec.Hash},
	})
	return success(action, rec.Hash, "Prediction revealed")
}

// Claim collects the payout of a resolved market. A win event is emitted only
// when the user's recorded reveal matches the winning side.
func (s *PredictionService) Claim(ctx context.Context, market domain.Market) domain.ActionOutcome {
	start := s.now()
	out := s.claim(ctx, market)
	s.finish(ctx, out, market.ID, start)
	return out
}

func (s *PredictionService) claim(ctx context.Context, market domain.Market) domain.ActionOutcome {
	const action = domain.ActionClaim
	if s.signer == nil {
		return failure(action, domain.ErrWalletNotConnected)
	}
	if market.Phase < domain.PhaseResolved {
		return failure(action, fmt.Errorf("%w: market %d is in %s phase, claims need a resolved market",
			domain.ErrInvalidPhase, market.ID, market.Phase))
	}

	addr := s.signer.Address()
	unlock, err := s.lock(ctx, addr, market.ID)
	if err != nil {
		return failure(action, err)
	}
	defer unlock()

	intent := domain.NewIntent(s.cfg.Contract, s.cfg.Module, domain.IntentClaimReward,
		domain.AddressArg(s.cfg.Contract),
		domain.U64Arg(market.ID),
	)
	rec, err := s.submit(ctx, intent, market.ID)
	if err != nil {
		return failure(action, err)
	}

	entry := domain.HistoryEntry{
		Address:  addr,
		MarketID: market.ID,
		Action:   action,
		Question: market.Question,
		TxHash:   rec.Hash,
	}
	if rev, ok := s.revealedSide(ctx, addr, market.ID); ok && market.WinnerSide.Valid() {
		entry.Side = rev.Side
		entry.Amount = rev.Amount
		if rev.Side == market.WinnerSide {
			own, other := market.Pools(rev.Side)
			entry.Payout = EstimatePayout(rev.Amount, rev.Side, market.WinnerSide, own, other, s.cfg.FeeBps)
			entry.Outcome = domain.OutcomeWin
		} else {
			entry.Outcome = domain.OutcomeLoss
		}
	}
	s.record(ctx, entry)

	if entry.Outcome == domain.OutcomeWin {
		s.award(ctx, addr, domain.XPWin, "win")
		s.emit(ctx, domain.Event{
			Type:     domain.EventWin,
			Address:  addr,
			MarketID: market.ID,
			Metadata: map[string]any{"winAmount": entry.Payout, "txHash": rec.Hash},
		})
	}
	return success(action, rec.Hash, "Reward claimed")
}

// CreateMarket submits a new market with the given question and window
// lengths in hours.
func (s *PredictionService) CreateMarket(ctx context.Context, question string, commitHours, revealHours uint64) domain.ActionOutcome {
	start := s.now()
	out := s.createMarket(ctx, question, commitHours, revealHours)
	s.finish(ctx, out, 0, start)
	return out
}

func (s *PredictionService) createMarket(ctx context.Context, question string, commitHours, revealHours uint64) domain.ActionOutcome {
	const action = domain.ActionCreate
	if s.signer == nil {
		return failure(action, domain.ErrWalletNotConnected)
	}
	if err := domain.ValidateQuestion(question); err != nil {
		return failure(action, err)
	}
	if commitHours > domain.MaxCommitDurationSecs/3600 || revealHours > domain.MaxRevealDurationSecs/3600 {
		return failure(action, fmt.Errorf("%w: window too long", domain.ErrInvalidInput))
	}
	commitSecs, revealSecs := commitHours*3600, revealHours*3600
	if err := domain.ValidateDurations(commitSecs, revealSecs); err != nil {
		return failure(action, err)
	}

	intent := domain.NewIntent(s.cfg.Contract, s.cfg.Module, domain.IntentCreateMarket,
		domain.BytesArg([]byte(question)),
		domain.U64Arg(commitSecs),
		domain.U64Arg(revealSecs),
	)
	rec, err := s.submit(ctx, intent, 0)
	if err != nil {
		return failure(action, err)
	}
	s.record(ctx, domain.HistoryEntry{
		Address:  s.signer.Address(),
		Action:   action,
		Question: question,
		TxHash:   rec.Hash,
	})
	return success(action, rec.Hash, "Market created")
}

// Resolve submits the winning side for a market. Only the keeper calls it.
func (s *PredictionService) Resolve(ctx context.Context, marketID uint64, winner domain.Side) domain.ActionOutcome {
	start := s.now()
	out := s.resolve(ctx, marketID, winner)
	s.finish(ctx, out, marketID, start)
	return out
}

func (s *PredictionService) resolve(ctx context.Context, marketID uint64, winner domain.Side) domain.ActionOutcome {
	const action = domain.ActionResolve
	if s.signer == nil {
		return failure(action, domain.ErrWalletNotConnected)
	}
	if !winner.Valid() {
		return failure(action, fmt.Errorf("%w: winner side %d", domain.ErrInvalidInput, winner))
	}
	intent := domain.NewIntent(s.cfg.Contract, s.cfg.Module, domain.IntentResolveMarket,
		domain.AddressArg(s.cfg.Contract),
		domain.U64Arg(marketID),
		domain.U8Arg(uint8(winner)),
	)
	rec, err := s.submit(ctx, intent, marketID)
	if err != nil {
		return failure(action, err)
	}
	return success(action, rec.Hash, "Market resolved")
}

// submit validates and sends intent, writing an audit entry either way.
func (s *PredictionService) submit(ctx context.Context, intent domain.TransactionIntent, marketID uint64) (domain.TxReceipt, error) {
	if err := intent.Validate(); err != nil {
		return domain.TxReceipt{}, err
	}
	rec, err := s.signer.SignAndSubmit(ctx, intent)
	if err != nil {
		s.auditLog(ctx, "tx_failed", map[string]any{
			"function":  intent.Function,
			"market_id": marketID,
			"reason":    string(domain.ReasonFor(err)),
			"error":     err.Error(),
		})
		return rec, err
	}
	s.auditLog(ctx, "tx_submitted", map[string]any{
		"function":  intent.Function,
		"market_id": marketID,
		"tx_hash":   rec.Hash,
		"version":   rec.Version,
		"gas_used":  rec.GasUsed,
	})
	return rec, nil
}

func (s *PredictionService) lock(ctx context.Context, addr string, marketID uint64) (func(), error) {
	if s.locks == nil {
		return func() {}, nil
	}
	unlock, err := s.locks.Acquire(ctx, "action:"+addr+":"+strconv.FormatUint(marketID, 10), s.cfg.LockTTL)
	if err != nil {
		return nil, fmt.Errorf("another action on market %d is in progress: %w", marketID, err)
	}
	return unlock, nil
}

func (s *PredictionService) revealedSide(ctx context.Context, addr string, marketID uint64) (domain.HistoryEntry, bool) {
	if s.history == nil {
		return domain.HistoryEntry{}, false
	}
	rev, err := s.history.LatestReveal(ctx, addr, marketID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			s.logger.WarnContext(ctx, "history lookup failed",
				slog.Uint64("market_id", marketID),
				slog.String("error", err.Error()),
			)
		}
		return domain.HistoryEntry{}, false
	}
	return rev, true
}

func (s *PredictionService) record(ctx context.Context, e domain.HistoryEntry) {
	if s.history == nil {
		return
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = s.now()
	}
	if err := s.history.Record(ctx, e); err != nil {
		s.logger.WarnContext(ctx, "record history failed",
			slog.String("action", string(e.Action)),
			slog.Uint64("market_id", e.MarketID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PredictionService) award(ctx context.Context, addr string, xp int64, action domain.ActionKind) {
	if s.leaderboard == nil {
		return
	}
	if _, err := s.leaderboard.AddXP(ctx, addr, xp, string(action)); err != nil {
		s.logger.WarnContext(ctx, "award xp failed",
			slog.String("action", string(action)),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PredictionService) emit(ctx context.Context, ev domain.Event) {
	if ev.At.IsZero() {
		ev.At = s.now()
	}
	for _, sink := range s.sinks {
		if err := sink.Publish(ctx, ev); err != nil {
			s.logger.WarnContext(ctx, "side-channel event dropped",
				slog.String("sink", sink.Name()),
				slog.String("event", string(ev.Type)),
				slog.String("error", err.Error()),
			)
		}
	}
}

func (s *PredictionService) auditLog(ctx context.Context, event string, detail map[string]any) {
	if s.audit == nil {
		return
	}
	if err := s.audit.Log(ctx, event, detail); err != nil {
		s.logger.WarnContext(ctx, "audit log failed",
			slog.String("event", event),
			slog.String("error", err.Error()),
		)
	}
}

func (s *PredictionService) finish(ctx context.Context, out domain.ActionOutcome, marketID uint64, start time.Time) {
	if s.observer != nil {
		s.observer.ObserveAction(out.Action, out.Reason, s.now().Sub(start))
	}
	attrs := []any{
		slog.String("action", string(out.Action)),
		slog.Uint64("market_id", marketID),
	}
	if !out.Success {
		s.logger.WarnContext(ctx, "action failed",
			append(attrs, slog.String("reason", string(out.Reason)), slog.String("message", out.Message))...)
		return
	}
	s.logger.InfoContext(ctx, "action succeeded", append(attrs, slog.String("tx_hash", out.TxHash))...)
	if s.afterAction != nil {
		s.afterAction(ctx, marketID)
	}
}

func success(action domain.ActionKind, txHash, msg string) domain.ActionOutcome {
	return domain.ActionOutcome{Action: action, Success: true, Message: msg, TxHash: txHash}
}

func failure(action domain.ActionKind, err error) domain.ActionOutcome {
	return domain.ActionOutcome{
		Action:  action,
		Reason:  domain.ReasonFor(err),
		Message: err.Error(),
	}
}
