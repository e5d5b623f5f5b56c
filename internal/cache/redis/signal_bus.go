package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

const (
	// streamMaxLen caps each stream; trimming is approximate.
	streamMaxLen int64 = 10000
	// subscriberBuffer is the per-subscription backlog before go-redis drops.
	subscriberBuffer = 128
)

var _ domain.SignalBus = (*SignalBus)(nil)

// SignalBus carries market views, prices, phase changes and actions between
// processes over pub/sub, and keeps actions in a capped stream so a hub can
// replay them. Channels and streams live under the client namespace.
type SignalBus struct {
	rdb  *redis.Client
	keys keyspace
}

func NewSignalBus(c *Client) *SignalBus {
	return &SignalBus{rdb: c.Underlying(), keys: c.keys}
}

func (sb *SignalBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := sb.rdb.Publish(ctx, sb.keys.key("bus", channel), payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe waits for the subscription to be confirmed, so anything
// published after it returns is delivered. The channel closes when ctx ends.
func (sb *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ps := sb.rdb.Subscribe(ctx, sb.keys.key("bus", channel))
	if _, err := ps.Receive(ctx); err != nil {
		_ = ps.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	in := ps.Channel(redis.WithChannelSize(subscriberBuffer))
	out := make(chan []byte)
	go func() {
		defer close(out)
		defer ps.Close()
		for {
			var msg *redis.Message
			select {
			case <-ctx.Done():
				return
			case m, ok := <-in:
				if !ok {
					return
				}
				msg = m
			}
			select {
			case out <- []byte(msg.Payload):
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

func (sb *SignalBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := sb.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: sb.keys.key("stream", stream),
		MaxLen: streamMaxLen,
		Approx: true,
		Values: []any{"payload", payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries strictly after lastID using an
// exclusive XRANGE, or from the oldest entry for domain.StreamStart.
func (sb *SignalBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	start := "-"
	if lastID != "" && lastID != domain.StreamStart && lastID != "0-0" {
		start = "(" + lastID
	}
	key := sb.keys.key("stream", stream)

	var (
		entries []redis.XMessage
		err     error
	)
	if count > 0 {
		entries, err = sb.rdb.XRangeN(ctx, key, start, "+", int64(count)).Result()
	} else {
		entries, err = sb.rdb.XRange(ctx, key, start, "+").Result()
	}
	if err != nil {
		return nil, fmt.Errorf("redis: read %s after %s: %w", stream, lastID, err)
	}

	out := make([]domain.StreamMessage, 0, len(entries))
	for _, e := range entries {
		switch v := e.Values["payload"].(type) {
		case string:
			out = append(out, domain.StreamMessage{ID: e.ID, Payload: []byte(v)})
		case []byte:
			out = append(out, domain.StreamMessage{ID: e.ID, Payload: v})
		}
	}
	return out, nil
}
