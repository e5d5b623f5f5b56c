package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 480_000
	kdfSaltLen       = 16
	aesKeyLen        = 32
	keyFileVersion   = 1
)

// keyFile is the on-disk format of an encrypted account seed. All byte
// fields are base64 standard encoding.
type keyFile struct {
	Version    int    `json:"version"`
	Address    string `json:"address,omitempty"`
	Salt       string `json:"salt"`
	Nonce      string `json:"nonce"`
	Ciphertext string `json:"ciphertext"`
}

// KeyConfig says where the wallet key comes from.
type KeyConfig struct {
	// RawPrivateKey is a hex seed. It wins over KeyFile when both are set.
	RawPrivateKey string
	KeyFile       string
	KeyPassword   string
}

// Configured reports whether any key source is set.
func (c KeyConfig) Configured() bool {
	return c.RawPrivateKey != "" || c.KeyFile != ""
}

func passwordCipher(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, pbkdf2Iterations, aesKeyLen, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto/keys: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto/keys: creating GCM: %w", err)
	}
	return gcm, nil
}

// SealKey encrypts an account seed under password with PBKDF2-HMAC-SHA256
// and AES-256-GCM, returning the key file JSON.
func SealKey(seedHex, password string) ([]byte, error) {
	if password == "" {
		return nil, errors.New("crypto/keys: password must not be empty")
	}
	acct, err := NewAccount(seedHex)
	if err != nil {
		return nil, err
	}
	seed, _ := hex.DecodeString(strings.TrimPrefix(seedHex, "0x"))

	salt := make([]byte, kdfSaltLen)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("crypto/keys: generating salt: %w", err)
	}
	gcm, err := passwordCipher(password, salt)
	if err != nil {
		return nil, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypto/keys: generating nonce: %w", err)
	}

	enc := base64.StdEncoding
	return json.MarshalIndent(keyFile{
		Version:    keyFileVersion,
		Address:    acct.Address(),
		Salt:       enc.EncodeToString(salt),
		Nonce:      enc.EncodeToString(nonce),
		Ciphertext: enc.EncodeToString(gcm.Seal(nil, nonce, seed, nil)),
	}, "", "  ")
}

// OpenKey decrypts key file JSON and returns the seed as hex.
func OpenKey(data []byte, password string) (string, error) {
	if password == "" {
		return "", errors.New("crypto/keys: password must not be empty")
	}
	var kf keyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return "", fmt.Errorf("crypto/keys: parsing key file: %w", err)
	}
	if kf.Version != keyFileVersion {
		return "", fmt.Errorf("crypto/keys: unsupported key file version %d", kf.Version)
	}

	enc := base64.StdEncoding
	salt, err := enc.DecodeString(kf.Salt)
	if err != nil {
		return "", fmt.Errorf("crypto/keys: decoding salt: %w", err)
	}
	nonce, err := enc.DecodeString(kf.Nonce)
	if err != nil {
		return "", fmt.Errorf("crypto/keys: decoding nonce: %w", err)
	}
	ct, err := enc.DecodeString(kf.Ciphertext)
	if err != nil {
		return "", fmt.Errorf("crypto/keys: decoding ciphertext: %w", err)
	}

	gcm, err := passwordCipher(password, salt)
	if err != nil {
		return "", err
	}
	seed, err := gcm.Open(nil, nonce, ct, nil)
	if err != nil {
		return "", fmt.Errorf("crypto/keys: decryption failed (wrong password?): %w", err)
	}
	return hex.EncodeToString(seed), nil
}

// WriteKeyFile seals seedHex and writes it to path with owner-only access.
func WriteKeyFile(path, seedHex, password string) error {
	data, err := SealKey(seedHex, password)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("crypto/keys: writing %s: %w", path, err)
	}
	return nil
}

// LoadAccount resolves the wallet account from cfg: the raw key first, then
// the encrypted key file.
func LoadAccount(cfg KeyConfig) (*Account, error) {
	if cfg.RawPrivateKey != "" {
		return NewAccount(cfg.RawPrivateKey)
	}
	if cfg.KeyFile != "" {
		data, err := os.ReadFile(cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("crypto/keys: reading key file: %w", err)
		}
		seed, err := OpenKey(data, cfg.KeyPassword)
		if err != nil {
			return nil, err
		}
		return NewAccount(seed)
	}
	return nil, errors.New("crypto/keys: no key source configured (set wallet.private_key or wallet.key_file)")
}
