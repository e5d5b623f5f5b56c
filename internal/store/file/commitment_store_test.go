package file_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/store/file"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(marketID uint64, side domain.Side) domain.Commitment {
	return domain.Commitment{
		MarketID:   marketID,
		Side:       side,
		Amount:     100_000_000,
		Salt:       "abababababababababababababababababababababababababababababababab",
		CommitHash: "0xd0821d4095d35f965e1e6c1e849efd32ed4927b4c30158b0f6619f741e01e5eb",
		Timestamp:  1_700_000_000_000,
	}
}

func TestCommitmentStore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "commitments.json")
	store, err := file.NewCommitmentStore(path)
	require.NoError(t, err)

	_, err = store.Get(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	c := sample(7, domain.SideYes)
	require.NoError(t, store.Put(ctx, c))
	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, c, got)

	require.NoError(t, store.Remove(ctx, 7))
	_, err = store.Get(ctx, 7)
	assert.ErrorIs(t, err, domain.ErrNotFound)
	assert.NoError(t, store.Remove(ctx, 7))
}

func TestCommitmentStore_PersistsAcrossInstances(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "commitments.json")

	first, err := file.NewCommitmentStore(path)
	require.NoError(t, err)
	require.NoError(t, first.Put(ctx, sample(1, domain.SideYes)))
	require.NoError(t, first.Put(ctx, sample(1, domain.SideNo)))
	require.NoError(t, first.Put(ctx, sample(4, domain.SideYes)))

	second, err := file.NewCommitmentStore(path)
	require.NoError(t, err)
	got, err := second.Get(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, domain.SideNo, got.Side, "later put wins")

	all, err := second.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, uint64(1), all[0].MarketID)

	require.NoError(t, second.Clear(ctx))
	all, err = first.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommitmentStore_DocumentLayout(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "commitments.json")
	store, err := file.NewCommitmentStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, sample(7, domain.SideYes)))

	raw, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc map[string]map[string]map[string]any
	require.NoError(t, json.Unmarshal(raw, &doc))
	entry := doc[file.StorageKey]["7"]
	require.NotNil(t, entry)
	assert.EqualValues(t, 7, entry["marketId"])
	assert.EqualValues(t, 1, entry["side"])
	assert.Contains(t, entry, "commitHash")

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}

func TestCommitmentStore_CorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "commitments.json")
	require.NoError(t, os.WriteFile(path, []byte("{not json"), 0o600))

	_, err := file.NewCommitmentStore(path)
	assert.Error(t, err)
}
