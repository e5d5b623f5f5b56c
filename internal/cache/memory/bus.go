package memory

import (
	"context"
	"fmt"
	"strconv"
	"sync"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

const (
	subscriberBuffer = 128
	streamMaxLen     = 1000
)

// SignalBus implements domain.SignalBus in process. Publish never blocks: a
// subscriber whose buffer is full misses the message, matching Redis Pub/Sub
// delivery guarantees.
type SignalBus struct {
	mu      sync.Mutex
	subs    map[string]map[chan []byte]struct{}
	streams map[string][]domain.StreamMessage
	seq     uint64
}

// NewSignalBus returns an empty bus.
func NewSignalBus() *SignalBus {
	return &SignalBus{
		subs:    make(map[string]map[chan []byte]struct{}),
		streams: make(map[string][]domain.StreamMessage),
	}
}

// Publish fans payload out to current subscribers of channel.
func (b *SignalBus) Publish(_ context.Context, channel string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch := range b.subs[channel] {
		msg := append([]byte(nil), payload...)
		select {
		case ch <- msg:
		default:
		}
	}
	return nil
}

// Subscribe returns a channel of payloads that closes when ctx ends.
func (b *SignalBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	ch := make(chan []byte, subscriberBuffer)

	b.mu.Lock()
	if b.subs[channel] == nil {
		b.subs[channel] = make(map[chan []byte]struct{})
	}
	b.subs[channel][ch] = struct{}{}
	b.mu.Unlock()

	go func() {
		<-ctx.Done()
		b.mu.Lock()
		delete(b.subs[channel], ch)
		close(ch)
		b.mu.Unlock()
	}()
	return ch, nil
}

// StreamAppend appends payload to stream, keeping the newest streamMaxLen.
func (b *SignalBus) StreamAppend(_ context.Context, stream string, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.seq++
	msgs := append(b.streams[stream], domain.StreamMessage{
		ID:      strconv.FormatUint(b.seq, 10),
		Payload: append([]byte(nil), payload...),
	})
	if len(msgs) > streamMaxLen {
		msgs = msgs[len(msgs)-streamMaxLen:]
	}
	b.streams[stream] = msgs
	return nil
}

// StreamRead returns up to count messages after lastID. domain.StreamStart,
// "0-0" or "" read from the start.
func (b *SignalBus) StreamRead(_ context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	var after uint64
	if lastID != "" && lastID != "0-0" {
		n, err := strconv.ParseUint(lastID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("memory: stream id %q: %w", lastID, domain.ErrInvalidInput)
		}
		after = n
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	var out []domain.StreamMessage
	for _, m := range b.streams[stream] {
		id, _ := strconv.ParseUint(m.ID, 10, 64)
		if id <= after {
			continue
		}
		out = append(out, m)
		if count > 0 && len(out) == count {
			break
		}
	}
	return out, nil
}

var _ domain.SignalBus = (*SignalBus)(nil)
