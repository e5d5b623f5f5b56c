package domain

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrRateLimited  = errors.New("rate limited")
	ErrUnauthorized = errors.New("unauthorized")
	ErrLockHeld     = errors.New("lock already held")

	ErrWalletNotConnected = errors.New("wallet not connected")
	ErrInvalidPhase       = errors.New("invalid market phase")
	ErrInvalidInput       = errors.New("invalid input")
	ErrSignerRejected     = errors.New("transaction rejected by signer")
	ErrNetwork            = errors.New("network error")
	ErrNoCommitmentFound  = errors.New("no commitment found")
	ErrUnknownLedger      = errors.New("unknown ledger error")

	// ErrInsufficientFunds is a signer-side validation failure.
	ErrInsufficientFunds = fmt.Errorf("insufficient funds: %w", ErrSignerRejected)
)
