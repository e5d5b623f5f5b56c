package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/darkpool/internal/crypto"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out, errOut bytes.Buffer
	app := newApp(&out, &errOut)
	err := app.Run(append([]string{"darkpoolctl", "-c", filepath.Join(t.TempDir(), "missing.toml")}, args...))
	return out.String(), err
}

func TestKeygen_WritesSealedKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")

	out, err := run(t, "keygen", "--out", path, "--password", "hunter2")
	require.NoError(t, err)

	var printed map[string]string
	require.NoError(t, json.Unmarshal([]byte(out), &printed))
	assert.Equal(t, path, printed["keyFile"])

	acct, err := crypto.LoadAccount(crypto.KeyConfig{KeyFile: path, KeyPassword: "hunter2"})
	require.NoError(t, err)
	assert.Equal(t, printed["address"], acct.Address())

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestKeygen_RefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "wallet.json")
	require.NoError(t, os.WriteFile(path, []byte("{}"), 0o600))

	_, err := run(t, "keygen", "--out", path, "--password", "pw")
	assert.ErrorContains(t, err, "already exists")
}

func TestCommands_RejectBadArguments(t *testing.T) {
	tests := []struct {
		name string
		args []string
		want string
	}{
		{"commit without market", []string{"commit", "--side", "yes", "--amount", "1"}, "market id is required"},
		{"commit bad side", []string{"commit", "-m", "1", "--side", "maybe", "--amount", "1"}, "side"},
		{"commit bad amount", []string{"commit", "-m", "1", "--side", "yes", "--amount", "lots"}, ""},
		{"reveal without market", []string{"reveal"}, "market id is required"},
		{"claim without market", []string{"claim"}, "market id is required"},
		{"create without question", []string{"create"}, "question is required"},
		{"clear without confirmation", []string{"clear"}, "--yes"},
		{"archives bad month", []string{"archives", "--month", "2026-13"}, "not YYYY-MM"},
		{"keygen without output", []string{"keygen", "--password", "pw"}, "output file is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := run(t, tt.args...)
			require.Error(t, err)
			if tt.want != "" {
				assert.Contains(t, err.Error(), tt.want)
			}
		})
	}
}
