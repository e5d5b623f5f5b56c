// Package leveldb implements domain.CommitmentStore on an embedded LevelDB.
package leveldb

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// commitmentPrefix is the first byte of every commitment key. The remaining
// eight bytes are the big-endian market id, so iteration is ordered by id.
const commitmentPrefix byte = 'c'

var _ domain.CommitmentStore = (*CommitmentStore)(nil)

// CommitmentStore keeps one JSON record per market id.
type CommitmentStore struct {
	db *leveldb.DB
}

// Open opens (or creates) a database directory at path.
func Open(path string) (*CommitmentStore, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open %s: %w", path, err)
	}
	return &CommitmentStore{db: db}, nil
}

// OpenMemory returns a store backed by memory only.
func OpenMemory() (*CommitmentStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, fmt.Errorf("leveldb: open memory: %w", err)
	}
	return &CommitmentStore{db: db}, nil
}

// Close releases the database.
func (s *CommitmentStore) Close() error {
	return s.db.Close()
}

func commitmentKey(marketID uint64) []byte {
	k := make([]byte, 9)
	k[0] = commitmentPrefix
	binary.BigEndian.PutUint64(k[1:], marketID)
	return k
}

// Put overwrites the record for c.MarketID.
func (s *CommitmentStore) Put(_ context.Context, c domain.Commitment) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("leveldb: encode commitment %d: %w", c.MarketID, err)
	}
	if err := s.db.Put(commitmentKey(c.MarketID), data, nil); err != nil {
		return fmt.Errorf("leveldb: put commitment %d: %w", c.MarketID, err)
	}
	return nil
}

// Get returns the record for marketID or domain.ErrNotFound.
func (s *CommitmentStore) Get(_ context.Context, marketID uint64) (domain.Commitment, error) {
	data, err := s.db.Get(commitmentKey(marketID), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return domain.Commitment{}, fmt.Errorf("leveldb: commitment %d: %w", marketID, domain.ErrNotFound)
	}
	if err != nil {
		return domain.Commitment{}, fmt.Errorf("leveldb: get commitment %d: %w", marketID, err)
	}
	var c domain.Commitment
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Commitment{}, fmt.Errorf("leveldb: decode commitment %d: %w", marketID, err)
	}
	return c, nil
}

// Remove deletes the record for marketID. LevelDB deletes of absent keys
// already succeed.
func (s *CommitmentStore) Remove(_ context.Context, marketID uint64) error {
	if err := s.db.Delete(commitmentKey(marketID), nil); err != nil {
		return fmt.Errorf("leveldb: remove commitment %d: %w", marketID, err)
	}
	return nil
}

// Clear deletes every commitment in one batch.
func (s *CommitmentStore) Clear(context.Context) error {
	batch := new(leveldb.Batch)
	iter := s.db.NewIterator(util.BytesPrefix([]byte{commitmentPrefix}), nil)
	for iter.Next() {
		batch.Delete(append([]byte(nil), iter.Key()...))
	}
	iter.Release()
	if err := iter.Error(); err != nil {
		return fmt.Errorf("leveldb: scan commitments: %w", err)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return fmt.Errorf("leveldb: clear commitments: %w", err)
	}
	return nil
}

// List returns every record ordered by market id.
func (s *CommitmentStore) List(context.Context) ([]domain.Commitment, error) {
	iter := s.db.NewIterator(util.BytesPrefix([]byte{commitmentPrefix}), nil)
	defer iter.Release()

	var out []domain.Commitment
	for iter.Next() {
		var c domain.Commitment
		if err := json.Unmarshal(iter.Value(), &c); err != nil {
			return nil, fmt.Errorf("leveldb: decode commitment: %w", err)
		}
		out = append(out, c)
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("leveldb: list commitments: %w", err)
	}
	return out, nil
}
