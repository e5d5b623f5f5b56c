package aptos

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/darkpool/internal/crypto"
	"github.com/alanyoungcy/darkpool/internal/domain"
)

// SignerConfig holds gas and confirmation settings for LocalSigner.
type SignerConfig struct {
	MaxGasAmount uint64
	GasUnitPrice uint64
	TxExpiry     time.Duration
	WaitForTx    bool
}

// LocalSigner signs transactions with a locally held Ed25519 key. The node
// builds the signing message; only the signature is computed here.
type LocalSigner struct {
	client  *Client
	account *crypto.Account
	cfg     SignerConfig
	now     func() time.Time

	// mu serialises submissions so sequence numbers are handed out in order.
	mu      sync.Mutex
	nextSeq uint64
}

// NewLocalSigner creates a signer for account that submits through client.
func NewLocalSigner(client *Client, account *crypto.Account, cfg SignerConfig) *LocalSigner {
	if cfg.MaxGasAmount == 0 {
		cfg.MaxGasAmount = 20_000
	}
	if cfg.GasUnitPrice == 0 {
		cfg.GasUnitPrice = 100
	}
	if cfg.TxExpiry <= 0 {
		cfg.TxExpiry = 60 * time.Second
	}
	return &LocalSigner{client: client, account: account, cfg: cfg, now: time.Now}
}

// Address returns the signing account's address.
func (s *LocalSigner) Address() string {
	return s.account.Address()
}

// SignAndSubmit validates intent, signs it and submits it. When WaitForTx is
// set it also waits for the transaction to commit and reports VM failures.
func (s *LocalSigner) SignAndSubmit(ctx context.Context, intent domain.TransactionIntent) (domain.TxReceipt, error) {
	if err := intent.Validate(); err != nil {
		return domain.TxReceipt{}, fmt.Errorf("aptos: sign %s: %w", intent.Kind, err)
	}
	payload, err := PayloadFromIntent(intent)
	if err != nil {
		return domain.TxReceipt{}, err
	}

	hash, err := s.submit(ctx, payload)
	if err != nil {
		return domain.TxReceipt{}, fmt.Errorf("aptos: %s: %w", intent.Kind, err)
	}
	if !s.cfg.WaitForTx {
		return domain.TxReceipt{Hash: hash, Success: true, VMStatus: "pending"}, nil
	}

	waitCtx, cancel := context.WithTimeout(ctx, s.cfg.TxExpiry)
	defer cancel()
	rec, err := s.client.WaitForTransaction(waitCtx, hash)
	if err != nil {
		return rec, fmt.Errorf("aptos: %s: %w", intent.Kind, err)
	}
	return rec, nil
}

func (s *LocalSigner) submit(ctx context.Context, payload EntryFunctionPayload) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acct, err := s.client.Account(ctx, s.account.Address())
	if errors.Is(err, domain.ErrNotFound) {
		return "", fmt.Errorf("%w: account %s is not funded", domain.ErrInsufficientFunds, s.account.Address())
	}
	if err != nil {
		return "", err
	}
	seq := acct.SequenceNumber
	if s.nextSeq > seq {
		seq = s.nextSeq
	}

	req := TxRequest{
		Sender:                  s.account.Address(),
		SequenceNumber:          strconv.FormatUint(seq, 10),
		MaxGasAmount:            strconv.FormatUint(s.cfg.MaxGasAmount, 10),
		GasUnitPrice:            strconv.FormatUint(s.cfg.GasUnitPrice, 10),
		ExpirationTimestampSecs: strconv.FormatInt(s.now().Add(s.cfg.TxExpiry).Unix(), 10),
		Payload:                 payload,
	}

	msg, err := s.client.EncodeSubmission(ctx, req)
	if err != nil {
		return "", err
	}
	signed := SignedTxRequest{
		TxRequest: req,
		Signature: Signature{
			Type:      "ed25519_signature",
			PublicKey: s.account.PublicKeyHex(),
			Signature: hexutil.Encode(s.account.Sign(msg)),
		},
	}

	hash, err := s.client.Submit(ctx, signed)
	if err != nil {
		return "", err
	}
	s.nextSeq = seq + 1
	return hash, nil
}
