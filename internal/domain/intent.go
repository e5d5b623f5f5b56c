package domain

import (
	"fmt"
	"strings"
)

// IntentKind names a ledger entry function.
type IntentKind string

const (
	IntentCommitBet     IntentKind = "commit_bet"
	IntentRevealBet     IntentKind = "reveal_bet"
	IntentClaimReward   IntentKind = "claim_reward"
	IntentCreateMarket  IntentKind = "create_market"
	IntentResolveMarket IntentKind = "resolve_market"
)

// ArgType is the Move type of a single entry function argument.
type ArgType string

const (
	ArgAddress ArgType = "address"
	ArgU8      ArgType = "u8"
	ArgU64     ArgType = "u64"
	ArgBytes   ArgType = "vector<u8>"
)

// IntentArg is one strongly typed argument. Only the field matching Type is read.
type IntentArg struct {
	Type    ArgType
	Address string
	U8      uint8
	U64     uint64
	Bytes   []byte
}

func AddressArg(addr string) IntentArg { return IntentArg{Type: ArgAddress, Address: addr} }
func U8Arg(v uint8) IntentArg          { return IntentArg{Type: ArgU8, U8: v} }
func U64Arg(v uint64) IntentArg        { return IntentArg{Type: ArgU64, U64: v} }
func BytesArg(b []byte) IntentArg      { return IntentArg{Type: ArgBytes, Bytes: b} }

// TransactionIntent is a fully described entry function call, ready for a
// signer. Function is "<contract>::<module>::<kind>".
type TransactionIntent struct {
	Kind     IntentKind
	Function string
	Args     []IntentArg
}

// argSchema lists the exact argument order each entry function expects.
var argSchema = map[IntentKind][]ArgType{
	IntentCommitBet:     {ArgAddress, ArgU64, ArgBytes, ArgU64},
	IntentRevealBet:     {ArgAddress, ArgU64, ArgU8, ArgBytes},
	IntentClaimReward:   {ArgAddress, ArgU64},
	IntentCreateMarket:  {ArgBytes, ArgU64, ArgU64},
	IntentResolveMarket: {ArgAddress, ArgU64, ArgU8},
}

// NewIntent builds an intent for contract::module::kind. It does not validate.
func NewIntent(contract, module string, kind IntentKind, args ...IntentArg) TransactionIntent {
	return TransactionIntent{
		Kind:     kind,
		Function: fmt.Sprintf("%s::%s::%s", contract, module, kind),
		Args:     args,
	}
}

// Validate checks the intent against the entry function schema so an encoding
// mismatch never reaches the signer.
func (t TransactionIntent) Validate() error {
	schema, ok := argSchema[t.Kind]
	if !ok {
		return fmt.Errorf("%w: unknown entry function %q", ErrInvalidInput, t.Kind)
	}

	parts := strings.Split(t.Function, "::")
	if len(parts) != 3 || parts[2] != string(t.Kind) {
		return fmt.Errorf("%w: function %q does not name %s", ErrInvalidInput, t.Function, t.Kind)
	}
	if !IsShortAddress(parts[0]) {
		return fmt.Errorf("%w: function %q has a malformed contract address", ErrInvalidInput, t.Function)
	}
	if parts[1] == "" {
		return fmt.Errorf("%w: function %q has an empty module", ErrInvalidInput, t.Function)
	}

	if len(t.Args) != len(schema) {
		return fmt.Errorf("%w: %s takes %d arguments, got %d", ErrInvalidInput, t.Kind, len(schema), len(t.Args))
	}
	for i, want := range schema {
		if t.Args[i].Type != want {
			return fmt.Errorf("%w: %s argument %d is %s, want %s", ErrInvalidInput, t.Kind, i, t.Args[i].Type, want)
		}
		if want == ArgAddress && !IsShortAddress(t.Args[i].Address) {
			return fmt.Errorf("%w: %s argument %d: malformed address %q", ErrInvalidInput, t.Kind, i, t.Args[i].Address)
		}
	}

	switch t.Kind {
	case IntentCommitBet:
		if len(t.Args[2].Bytes) != DigestSize {
			return fmt.Errorf("%w: commit digest must be %d bytes, got %d", ErrInvalidInput, DigestSize, len(t.Args[2].Bytes))
		}
		if t.Args[3].U64 == 0 {
			return fmt.Errorf("%w: commit amount must be positive", ErrInvalidInput)
		}
	case IntentRevealBet:
		if !Side(t.Args[2].U8).Valid() {
			return fmt.Errorf("%w: reveal side %d", ErrInvalidInput, t.Args[2].U8)
		}
		if len(t.Args[3].Bytes) != SaltSize {
			return fmt.Errorf("%w: salt must be %d bytes, got %d", ErrInvalidInput, SaltSize, len(t.Args[3].Bytes))
		}
	case IntentCreateMarket:
		if len(t.Args[0].Bytes) == 0 {
			return fmt.Errorf("%w: empty market question", ErrInvalidInput)
		}
	case IntentResolveMarket:
		if !Side(t.Args[2].U8).Valid() {
			return fmt.Errorf("%w: winner side %d", ErrInvalidInput, t.Args[2].U8)
		}
	}
	return nil
}

// TxReceipt is what the signer reports back after submission.
type TxReceipt struct {
	Hash     string
	Version  uint64
	Success  bool
	VMStatus string
	GasUsed  uint64
}
