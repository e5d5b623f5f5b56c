package notify

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/alanyoungcy/darkpool/internal/domain"
)

// BusSink publishes events on the signal bus for websocket subscribers and
// appends them to the durable actions stream.
type BusSink struct {
	bus     domain.SignalBus
	channel string
	stream  string
}

// NewBusSink publishes to channel and, when stream is non-empty, appends to it.
func NewBusSink(bus domain.SignalBus, channel, stream string) *BusSink {
	return &BusSink{bus: bus, channel: channel, stream: stream}
}

// Publish implements EventSink.
func (b *BusSink) Publish(ctx context.Context, ev domain.Event) error {
	payload, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("notify/bus: marshal event: %w", err)
	}
	if err := b.bus.Publish(ctx, b.channel, payload); err != nil {
		return fmt.Errorf("notify/bus: publish %s: %w", b.channel, err)
	}
	if b.stream != "" {
		if err := b.bus.StreamAppend(ctx, b.stream, payload); err != nil {
			return fmt.Errorf("notify/bus: append %s: %w", b.stream, err)
		}
	}
	return nil
}

// Name implements EventSink.
func (b *BusSink) Name() string {
	return "bus"
}
