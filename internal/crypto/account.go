package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"golang.org/x/crypto/sha3"
)

// ed25519Scheme is the authentication key scheme byte for single-key
// Ed25519 accounts.
const ed25519Scheme = 0x00

// Account is an Ed25519 ledger account derived from a 32-byte seed.
type Account struct {
	priv    ed25519.PrivateKey
	pub     ed25519.PublicKey
	address string
}

// NewAccount builds an Account from a hex-encoded seed, with or without 0x.
func NewAccount(seedHex string) (*Account, error) {
	if !strings.HasPrefix(seedHex, "0x") {
		seedHex = "0x" + seedHex
	}
	seed, err := hexutil.Decode(strings.ToLower(seedHex))
	if err != nil {
		return nil, fmt.Errorf("crypto/account: invalid private key: %w", err)
	}
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("crypto/account: expected %d-byte key, got %d bytes", ed25519.SeedSize, len(seed))
	}

	priv := ed25519.NewKeyFromSeed(seed)
	pub := priv.Public().(ed25519.PublicKey)
	return &Account{priv: priv, pub: pub, address: deriveAddress(pub)}, nil
}

// GenerateAccount creates a random account and returns its seed as hex.
func GenerateAccount() (*Account, string, error) {
	seed := make([]byte, ed25519.SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return nil, "", fmt.Errorf("crypto/account: generating seed: %w", err)
	}
	seedHex := hex.EncodeToString(seed)
	acct, err := NewAccount(seedHex)
	if err != nil {
		return nil, "", err
	}
	return acct, seedHex, nil
}

// deriveAddress computes sha3-256(pubkey || scheme), the account's
// authentication key, which is also its address for fresh accounts.
func deriveAddress(pub ed25519.PublicKey) string {
	buf := make([]byte, 0, len(pub)+1)
	buf = append(buf, pub...)
	buf = append(buf, ed25519Scheme)
	sum := sha3.Sum256(buf)
	return hexutil.Encode(sum[:])
}

// Address returns the 0x-prefixed 32-byte account address.
func (a *Account) Address() string {
	return a.address
}

// PublicKeyHex returns the 0x-prefixed public key.
func (a *Account) PublicKeyHex() string {
	return hexutil.Encode(a.pub)
}

// Sign signs msg with the account key.
func (a *Account) Sign(msg []byte) []byte {
	return ed25519.Sign(a.priv, msg)
}

// Verify checks a signature against the account's public key.
func (a *Account) Verify(msg, sig []byte) bool {
	return ed25519.Verify(a.pub, msg, sig)
}
