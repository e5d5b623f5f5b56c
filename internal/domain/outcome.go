package domain

import (
	"context"
	"errors"
)

// Reason classifies why an action failed.
type Reason string

const (
	ReasonNone               Reason = ""
	ReasonWalletNotConnected Reason = "WalletNotConnected"
	ReasonInvalidPhase       Reason = "InvalidPhase"
	ReasonInvalidInput       Reason = "InvalidInput"
	ReasonSignerRejected     Reason = "SignerRejected"
	ReasonNetworkError       Reason = "NetworkError"
	ReasonNoCommitmentFound  Reason = "NoCommitmentFound"
	ReasonUnknownLedgerError Reason = "UnknownLedgerError"
)

// Retryable reports whether the same action may succeed if simply retried.
func (r Reason) Retryable() bool {
	return r == ReasonNetworkError || r == ReasonSignerRejected
}

// ActionOutcome is the structured result of commit, reveal, claim and create.
type ActionOutcome struct {
	Action  ActionKind `json:"action"`
	Success bool       `json:"success"`
	Reason  Reason     `json:"reason,omitempty"`
	Message string     `json:"message"`
	TxHash  string     `json:"txHash,omitempty"`
}

// ReasonFor maps an error onto the failure taxonomy. Anything unrecognised is
// treated as an unknown ledger error.
func ReasonFor(err error) Reason {
	switch {
	case err == nil:
		return ReasonNone
	case errors.Is(err, ErrWalletNotConnected):
		return ReasonWalletNotConnected
	case errors.Is(err, ErrInvalidPhase):
		return ReasonInvalidPhase
	case errors.Is(err, ErrInvalidInput):
		return ReasonInvalidInput
	case errors.Is(err, ErrSignerRejected):
		return ReasonSignerRejected
	case errors.Is(err, ErrNoCommitmentFound):
		return ReasonNoCommitmentFound
	case errors.Is(err, ErrNetwork), errors.Is(err, context.DeadlineExceeded), errors.Is(err, ErrRateLimited), errors.Is(err, ErrLockHeld):
		return ReasonNetworkError
	default:
		return ReasonUnknownLedgerError
	}
}
