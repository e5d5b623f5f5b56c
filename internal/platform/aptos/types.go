package aptos

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// EntryFunctionPayload is the JSON form of an entry function call.
type EntryFunctionPayload struct {
	Type          string   `json:"type"`
	Function      string   `json:"function"`
	TypeArguments []string `json:"type_arguments"`
	Arguments     []any    `json:"arguments"`
}

// TxRequest is an unsigned user transaction. Integers are decimal strings as
// the node expects.
type TxRequest struct {
	Sender                  string               `json:"sender"`
	SequenceNumber          string               `json:"sequence_number"`
	MaxGasAmount            string               `json:"max_gas_amount"`
	GasUnitPrice            string               `json:"gas_unit_price"`
	ExpirationTimestampSecs string               `json:"expiration_timestamp_secs"`
	Payload                 EntryFunctionPayload `json:"payload"`
}

// Signature is a single-key Ed25519 transaction signature.
type Signature struct {
	Type      string `json:"type"`
	PublicKey string `json:"public_key"`
	Signature string `json:"signature"`
}

// SignedTxRequest is a TxRequest with its signature attached.
type SignedTxRequest struct {
	TxRequest
	Signature Signature `json:"signature"`
}

// PayloadFromIntent converts a validated intent into the JSON payload. u64
// values are decimal strings, u8 values plain numbers, byte vectors 0x hex.
func PayloadFromIntent(intent domain.TransactionIntent) (EntryFunctionPayload, error) {
	args := make([]any, 0, len(intent.Args))
	for i, a := range intent.Args {
		switch a.Type {
		case domain.ArgAddress:
			args = append(args, a.Address)
		case domain.ArgU8:
			args = append(args, a.U8)
		case domain.ArgU64:
			args = append(args, strconv.FormatUint(a.U64, 10))
		case domain.ArgBytes:
			args = append(args, hexutil.Encode(a.Bytes))
		default:
			return EntryFunctionPayload{}, fmt.Errorf("aptos: %w: argument %d has unknown type %q", domain.ErrInvalidInput, i, a.Type)
		}
	}
	return EntryFunctionPayload{
		Type:          "entry_function_payload",
		Function:      intent.Function,
		TypeArguments: []string{},
		Arguments:     args,
	}, nil
}

// decodeHex accepts hex with or without the 0x prefix.
func decodeHex(s string) ([]byte, error) {
	if !strings.HasPrefix(s, "0x") && !strings.HasPrefix(s, "0X") {
		s = "0x" + s
	}
	if s == "0x" {
		return []byte{}, nil
	}
	return hexutil.Decode(strings.ToLower(s))
}
