package leveldb_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/alanyoungcy/darkpool/internal/store/leveldb"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sample(marketID uint64, side domain.Side) domain.Commitment {
	return domain.Commitment{
		MarketID:   marketID,
		Side:       side,
		Amount:     2_500_000,
		Salt:       "0101010101010101010101010101010101010101010101010101010101010101",
		CommitHash: "0xee00000000000000000000000000000000000000000000000000000000000000",
		Timestamp:  1_700_000_123_456,
	}
}

func TestCommitmentStore_Memory(t *testing.T) {
	ctx := context.Background()
	store, err := leveldb.OpenMemory()
	require.NoError(t, err)
	defer store.Close()

	_, err = store.Get(ctx, 1)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	for _, id := range []uint64{300, 2, 1 << 40} {
		require.NoError(t, store.Put(ctx, sample(id, domain.SideYes)))
	}
	require.NoError(t, store.Put(ctx, sample(2, domain.SideNo)))

	got, err := store.Get(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, sample(2, domain.SideNo), got)

	all, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []uint64{2, 300, 1 << 40}, []uint64{all[0].MarketID, all[1].MarketID, all[2].MarketID})

	require.NoError(t, store.Remove(ctx, 300))
	require.NoError(t, store.Remove(ctx, 300))
	_, err = store.Get(ctx, 300)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.NoError(t, store.Clear(ctx))
	all, err = store.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestCommitmentStore_Disk(t *testing.T) {
	ctx := context.Background()
	dir := filepath.Join(t.TempDir(), "commitments")

	store, err := leveldb.Open(dir)
	require.NoError(t, err)
	require.NoError(t, store.Put(ctx, sample(7, domain.SideYes)))
	require.NoError(t, store.Close())

	store, err = leveldb.Open(dir)
	require.NoError(t, err)
	defer store.Close()
	got, err := store.Get(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(2_500_000), got.Amount)
}
