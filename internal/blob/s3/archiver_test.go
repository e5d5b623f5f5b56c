package s3blob_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	s3blob "github.com/alanyoungcy/darkpool/internal/blob/s3"
	"github.com/alanyoungcy/darkpool/internal/domain"
)

type memBlobs struct {
	objects map[string][]byte
	dropPut bool
}

func (m *memBlobs) Put(_ context.Context, path string, data io.Reader, _ string) error {
	b, err := io.ReadAll(data)
	if err != nil {
		return err
	}
	if !m.dropPut {
		m.objects[path] = b
	}
	return nil
}

func (m *memBlobs) PutMultipart(ctx context.Context, path string, data io.Reader, _ int64) error {
	return m.Put(ctx, path, data, "")
}

func (m *memBlobs) Get(_ context.Context, path string) (io.ReadCloser, error) {
	b, ok := m.objects[path]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(b)), nil
}

func (m *memBlobs) List(context.Context, string) ([]domain.BlobInfo, error) { return nil, nil }

func (m *memBlobs) Exists(_ context.Context, path string) (bool, error) {
	_, ok := m.objects[path]
	return ok, nil
}

type fakeHistory struct {
	entries []domain.HistoryEntry
	deleted bool
}

func (f *fakeHistory) ListBefore(_ context.Context, before time.Time, _ int) ([]domain.HistoryEntry, error) {
	var out []domain.HistoryEntry
	for _, e := range f.entries {
		if e.CreatedAt.Before(before) {
			out = append(out, e)
		}
	}
	return out, nil
}

func (f *fakeHistory) DeleteBefore(context.Context, time.Time) (int64, error) {
	f.deleted = true
	return int64(len(f.entries)), nil
}

func TestArchivePath(t *testing.T) {
	before := time.Date(2026, 9, 16, 3, 0, 0, 0, time.UTC)
	runAt := time.Date(2026, 10, 16, 3, 0, 0, 0, time.UTC)
	assert.Equal(t, "2026-09/20261016T030000Z.jsonl", s3blob.ArchivePath(before, runAt))
}

func TestArchiver_UploadsThenDeletes(t *testing.T) {
	ctx := context.Background()
	blobs := &memBlobs{objects: map[string][]byte{}}
	old := time.Now().Add(-60 * 24 * time.Hour)
	hist := &fakeHistory{entries: []domain.HistoryEntry{
		{ID: 1, Address: "0xa", MarketID: 7, Action: domain.ActionCommit, CreatedAt: old},
		{ID: 2, Address: "0xa", MarketID: 7, Action: domain.ActionReveal, Side: domain.SideYes, CreatedAt: old},
	}}

	n, err := s3blob.NewArchiver(blobs, blobs, hist, nil).ArchiveHistory(ctx, time.Now().Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)
	assert.True(t, hist.deleted)
	require.Len(t, blobs.objects, 1)

	for _, body := range blobs.objects {
		sc := bufio.NewScanner(bytes.NewReader(body))
		var lines int
		for sc.Scan() {
			var e domain.HistoryEntry
			require.NoError(t, json.Unmarshal(sc.Bytes(), &e))
			assert.Equal(t, uint64(7), e.MarketID)
			lines++
		}
		assert.Equal(t, 2, lines)
	}
}

func TestArchiver_NothingToDo(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}}
	hist := &fakeHistory{}
	n, err := s3blob.NewArchiver(blobs, blobs, hist, nil).ArchiveHistory(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)
	assert.False(t, hist.deleted)
	assert.Empty(t, blobs.objects)
}

func TestArchiver_KeepsRowsWhenUploadMissing(t *testing.T) {
	blobs := &memBlobs{objects: map[string][]byte{}, dropPut: true}
	hist := &fakeHistory{entries: []domain.HistoryEntry{{ID: 1, CreatedAt: time.Now().Add(-time.Hour)}}}

	_, err := s3blob.NewArchiver(blobs, blobs, hist, nil).ArchiveHistory(context.Background(), time.Now())
	require.Error(t, err)
	assert.False(t, errors.Is(err, domain.ErrNotFound))
	assert.False(t, hist.deleted)
}

func TestReadHistory_DecodesArchivedRun(t *testing.T) {
	ctx := context.Background()
	blobs := &memBlobs{objects: map[string][]byte{}}
	old := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	hist := &fakeHistory{entries: []domain.HistoryEntry{
		{ID: 1, Address: "0xa", MarketID: 3, Action: domain.ActionCommit, Amount: 150_000_000, CreatedAt: old},
		{ID: 2, Address: "0xb", MarketID: 3, Action: domain.ActionClaim, Payout: 290_000_000, CreatedAt: old},
	}}
	_, err := s3blob.NewArchiver(blobs, blobs, hist, nil).ArchiveHistory(ctx, old.Add(time.Hour))
	require.NoError(t, err)

	var path string
	for p := range blobs.objects {
		path = p
	}
	got, err := s3blob.ReadHistory(ctx, blobs, path)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, uint64(150_000_000), got[0].Amount)
	assert.Equal(t, "0xb", got[1].Address)
	assert.Equal(t, uint64(290_000_000), got[1].Payout)
	assert.True(t, got[1].CreatedAt.Equal(old))
}

func TestReadHistory_Errors(t *testing.T) {
	ctx := context.Background()
	blobs := &memBlobs{objects: map[string][]byte{
		"2026-08/bad.jsonl": []byte("{\"id\":1}\n\nnot json\n"),
	}}

	_, err := s3blob.ReadHistory(ctx, blobs, "2026-08/missing.jsonl")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = s3blob.ReadHistory(ctx, blobs, "2026-08/bad.jsonl")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 3")
}
