package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/alanyoungcy/darkpool/internal/domain"
	"github.com/redis/go-redis/v9"
)

// CommitmentStore implements domain.CommitmentStore as one hash per wallet:
//
//	darkpool_commitments:{address} - field {marketId} holding the JSON record
//
// Keys carry no TTL; an opening must outlive the reveal window.
type CommitmentStore struct {
	rdb *redis.Client
	key string
}

// NewCommitmentStore returns the store for the wallet at address.
func NewCommitmentStore(c *Client, address string) *CommitmentStore {
	return &CommitmentStore{rdb: c.Underlying(), key: "darkpool_commitments:" + address}
}

func field(marketID uint64) string {
	return strconv.FormatUint(marketID, 10)
}

// Put overwrites the record for c.MarketID.
func (s *CommitmentStore) Put(ctx context.Context, c domain.Commitment) error {
	data, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("redis: marshal commitment %d: %w", c.MarketID, err)
	}
	if err := s.rdb.HSet(ctx, s.key, field(c.MarketID), data).Err(); err != nil {
		return fmt.Errorf("redis: put commitment %d: %w", c.MarketID, err)
	}
	return nil
}

// Get returns the record for marketID or domain.ErrNotFound.
func (s *CommitmentStore) Get(ctx context.Context, marketID uint64) (domain.Commitment, error) {
	data, err := s.rdb.HGet(ctx, s.key, field(marketID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return domain.Commitment{}, fmt.Errorf("redis: commitment %d: %w", marketID, domain.ErrNotFound)
		}
		return domain.Commitment{}, fmt.Errorf("redis: get commitment %d: %w", marketID, err)
	}
	var c domain.Commitment
	if err := json.Unmarshal(data, &c); err != nil {
		return domain.Commitment{}, fmt.Errorf("redis: unmarshal commitment %d: %w", marketID, err)
	}
	return c, nil
}

// Remove deletes the record for marketID. HDEL of an absent field is a no-op.
func (s *CommitmentStore) Remove(ctx context.Context, marketID uint64) error {
	if err := s.rdb.HDel(ctx, s.key, field(marketID)).Err(); err != nil {
		return fmt.Errorf("redis: remove commitment %d: %w", marketID, err)
	}
	return nil
}

// Clear drops every record for this wallet.
func (s *CommitmentStore) Clear(ctx context.Context) error {
	if err := s.rdb.Del(ctx, s.key).Err(); err != nil {
		return fmt.Errorf("redis: clear commitments: %w", err)
	}
	return nil
}

// List returns every record ordered by market id.
func (s *CommitmentStore) List(ctx context.Context) ([]domain.Commitment, error) {
	vals, err := s.rdb.HGetAll(ctx, s.key).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list commitments: %w", err)
	}
	out := make([]domain.Commitment, 0, len(vals))
	for f, v := range vals {
		var c domain.Commitment
		if err := json.Unmarshal([]byte(v), &c); err != nil {
			return nil, fmt.Errorf("redis: unmarshal commitment %s: %w", f, err)
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out, nil
}

var _ domain.CommitmentStore = (*CommitmentStore)(nil)
