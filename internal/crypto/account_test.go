package crypto_test

import (
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/darkpool/internal/crypto"
	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// RFC 8032 test vector 1.
const (
	rfcSeed   = "9d61b19deffd5a60ba844af492ec2cc44449c5697b326919703bac031cae7f60"
	rfcPub    = "0xd75a980182b10ab7d54bfed3c964073a0ee172f3daa62325af021a68f707511a"
	rfcAddr   = "0x63c5215e87770d17b9f4cd47c777e322f4eb152cfd2054c1080fd9d57c48913b"
	pwForTest = "correct horse battery staple"
)

func TestNewAccount(t *testing.T) {
	acct, err := crypto.NewAccount(rfcSeed)
	require.NoError(t, err)
	assert.Equal(t, rfcPub, acct.PublicKeyHex())
	assert.Equal(t, rfcAddr, acct.Address())
	assert.True(t, domain.IsAccountAddress(acct.Address()))

	prefixed, err := crypto.NewAccount("0x" + rfcSeed)
	require.NoError(t, err)
	assert.Equal(t, acct.Address(), prefixed.Address())

	msg := []byte("darkpool")
	assert.True(t, acct.Verify(msg, acct.Sign(msg)))
}

func TestNewAccount_Rejects(t *testing.T) {
	_, err := crypto.NewAccount("abcd")
	assert.Error(t, err)
	_, err = crypto.NewAccount("zz")
	assert.Error(t, err)
}

func TestKeyFileRoundTrip(t *testing.T) {
	_, seed, err := crypto.GenerateAccount()
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, crypto.WriteKeyFile(path, seed, pwForTest))

	acct, err := crypto.LoadAccount(crypto.KeyConfig{KeyFile: path, KeyPassword: pwForTest})
	require.NoError(t, err)

	direct, err := crypto.NewAccount(seed)
	require.NoError(t, err)
	assert.Equal(t, direct.Address(), acct.Address())

	_, err = crypto.LoadAccount(crypto.KeyConfig{KeyFile: path, KeyPassword: "wrong"})
	assert.Error(t, err)
}

func TestLoadAccount_RawKeyWins(t *testing.T) {
	acct, err := crypto.LoadAccount(crypto.KeyConfig{RawPrivateKey: rfcSeed, KeyFile: "/does/not/exist"})
	require.NoError(t, err)
	assert.Equal(t, rfcAddr, acct.Address())

	_, err = crypto.LoadAccount(crypto.KeyConfig{})
	assert.Error(t, err)
	assert.False(t, crypto.KeyConfig{}.Configured())
}
