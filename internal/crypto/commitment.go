// Package crypto provides commitment digests, ledger account keys and
// encrypted key files for the darkpool client.
package crypto

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// addressLen is the canonical ledger address width. Shorter hex forms are
// left-padded with zeros, matching the ledger's own address serialisation.
const addressLen = 32

// GenerateSalt returns 32 bytes from a CSPRNG as 64 lowercase hex characters.
func GenerateSalt() (string, error) {
	b := make([]byte, domain.SaltSize)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("crypto: generating salt: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// CommitDigest hashes a prediction opening with SHA-256 over
//
//	address(32) || u64le(marketID) || u8(side) || u64le(amount) || salt(32)
//
// and returns it as 0x-prefixed lowercase hex. The ledger recomputes the same
// bytes at reveal, so the layout must not change.
func CommitDigest(side domain.Side, amount uint64, saltHex, address string, marketID uint64) (string, error) {
	sum, err := digest(side, amount, saltHex, address, marketID)
	if err != nil {
		return "", err
	}
	return hexutil.Encode(sum[:]), nil
}

func digest(side domain.Side, amount uint64, saltHex, address string, marketID uint64) ([sha256.Size]byte, error) {
	var zero [sha256.Size]byte
	if !side.Valid() {
		return zero, fmt.Errorf("%w: side must be yes(1) or no(2), got %d", domain.ErrInvalidInput, side)
	}
	salt, err := DecodeSalt(saltHex)
	if err != nil {
		return zero, err
	}
	addr, err := AddressBytes(address)
	if err != nil {
		return zero, err
	}

	buf := make([]byte, 0, addressLen+8+1+8+domain.SaltSize)
	buf = append(buf, addr...)
	buf = binary.LittleEndian.AppendUint64(buf, marketID)
	buf = append(buf, byte(side))
	buf = binary.LittleEndian.AppendUint64(buf, amount)
	buf = append(buf, salt...)
	return sha256.Sum256(buf), nil
}

// NewCommitment draws a fresh salt and builds the full opening for a bet.
func NewCommitment(side domain.Side, amount uint64, address string, marketID uint64, now time.Time) (domain.Commitment, error) {
	salt, err := GenerateSalt()
	if err != nil {
		return domain.Commitment{}, err
	}
	hash, err := CommitDigest(side, amount, salt, address, marketID)
	if err != nil {
		return domain.Commitment{}, err
	}
	return domain.Commitment{
		MarketID:   marketID,
		Side:       side,
		Amount:     amount,
		Salt:       salt,
		CommitHash: hash,
		Timestamp:  now.UnixMilli(),
	}, nil
}

// VerifyOpening recomputes the digest of c for address and reports a
// mismatch as invalid input. A stored opening that fails here is corrupt or
// belongs to another account and must not be revealed.
func VerifyOpening(c domain.Commitment, address string) error {
	got, err := CommitDigest(c.Side, c.Amount, c.Salt, address, c.MarketID)
	if err != nil {
		return err
	}
	if !strings.EqualFold(got, c.CommitHash) {
		return fmt.Errorf("%w: stored commitment for market %d does not match its digest", domain.ErrInvalidInput, c.MarketID)
	}
	return nil
}

// DecodeSalt parses a 32-byte salt given as 64 hex characters, with or
// without a 0x prefix.
func DecodeSalt(s string) ([]byte, error) {
	s = strings.TrimPrefix(s, "0x")
	if !domain.IsSaltHex(s) {
		return nil, fmt.Errorf("%w: salt must be %d hex characters", domain.ErrInvalidInput, domain.SaltSize*2)
	}
	b, err := hex.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: salt: %v", domain.ErrInvalidInput, err)
	}
	return b, nil
}

// DecodeDigest parses a 0x-prefixed 32-byte digest.
func DecodeDigest(s string) ([]byte, error) {
	b, err := hexutil.Decode(strings.ToLower(s))
	if err != nil {
		return nil, fmt.Errorf("%w: digest: %v", domain.ErrInvalidInput, err)
	}
	if len(b) != domain.DigestSize {
		return nil, fmt.Errorf("%w: digest must be %d bytes, got %d", domain.ErrInvalidInput, domain.DigestSize, len(b))
	}
	return b, nil
}

// AddressBytes returns the 32-byte form of a hex ledger address.
func AddressBytes(address string) ([]byte, error) {
	h := strings.TrimPrefix(strings.TrimPrefix(address, "0x"), "0X")
	if h == "" || len(h) > addressLen*2 {
		return nil, fmt.Errorf("%w: malformed address %q", domain.ErrInvalidInput, address)
	}
	if len(h)%2 == 1 {
		h = "0" + h
	}
	raw, err := hex.DecodeString(h)
	if err != nil {
		return nil, fmt.Errorf("%w: malformed address %q: %v", domain.ErrInvalidInput, address, err)
	}
	out := make([]byte, addressLen)
	copy(out[addressLen-len(raw):], raw)
	return out, nil
}
