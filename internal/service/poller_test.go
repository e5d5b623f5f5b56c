package service

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPoller_DeliversOnStartAndTrigger(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var n atomic.Int64
	got := make(chan int64, 8)
	p := NewPoller(
		"counter",
		time.Hour,
		0,
		func(context.Context) (int64, error) { return n.Add(1), nil },
		func(v int64) { got <- v },
		discardLogger(),
	)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	select {
	case v := <-got:
		assert.Equal(t, int64(1), v)
	case <-time.After(2 * time.Second):
		t.Fatal("no initial poll")
	}

	p.Trigger()
	select {
	case v := <-got:
		assert.Equal(t, int64(2), v)
	case <-time.After(2 * time.Second):
		t.Fatal("trigger did not poll")
	}

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not stop")
	}
}

func TestPoller_InvalidateDropsInFlightResult(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	release := make(chan struct{})
	started := make(chan struct{}, 1)
	var delivered atomic.Int64
	p := NewPoller(
		"slow",
		time.Hour,
		0,
		func(ctx context.Context) (string, error) {
			started <- struct{}{}
			select {
			case <-release:
			case <-ctx.Done():
			}
			return "old", nil
		},
		func(string) { delivered.Add(1) },
		discardLogger(),
	)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	<-started
	p.Invalidate()
	close(release)

	cancel()
	<-done
	assert.Zero(t, delivered.Load(), "stale result must not be delivered")
}

func TestPoller_NewerFetchWins(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var (
		mu       sync.Mutex
		calls    int
		release1 = make(chan struct{})
		results  []int
	)
	secondDone := make(chan struct{})
	p := NewPoller(
		"race",
		time.Hour,
		0,
		func(context.Context) (int, error) {
			mu.Lock()
			calls++
			call := calls
			mu.Unlock()
			if call == 1 {
				<-release1
			}
			return call, nil
		},
		func(v int) {
			mu.Lock()
			results = append(results, v)
			mu.Unlock()
			if v == 2 {
				close(secondDone)
			}
		},
		discardLogger(),
	)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return calls == 1
	}, 2*time.Second, 5*time.Millisecond)

	p.Trigger()
	select {
	case <-secondDone:
	case <-time.After(2 * time.Second):
		t.Fatal("second poll not delivered")
	}
	close(release1)

	cancel()
	<-done

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []int{2}, results, "slow first response is discarded")
}

func TestPoller_ErrorsReachTickHook(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ticks := make(chan error, 1)
	p := NewPoller(
		"failing",
		time.Hour,
		0.1,
		func(context.Context) (int, error) { return 0, errors.New("boom") },
		func(int) { t.Error("deliver called on error") },
		discardLogger(),
	).OnTick(func(name string, err error) {
		assert.Equal(t, "failing", name)
		select {
		case ticks <- err:
		default:
		}
	})

	go p.Run(ctx)
	select {
	case err := <-ticks:
		assert.EqualError(t, err, "boom")
	case <-time.After(2 * time.Second):
		t.Fatal("no tick")
	}
}

func TestPoller_NextDelayWithinJitter(t *testing.T) {
	p := NewPoller("j", time.Second, 0.2,
		func(context.Context) (int, error) { return 0, nil }, func(int) {}, discardLogger())
	for range 100 {
		d := p.nextDelay()
		assert.GreaterOrEqual(t, d, 800*time.Millisecond)
		assert.LessOrEqual(t, d, 1200*time.Millisecond)
	}
}

func TestPoller_SlowFetchStillDelivers(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var fetched, delivered, running, overlap atomic.Int64
	p := NewPoller(
		"slow",
		20*time.Millisecond,
		0,
		func(ctx context.Context) (int, error) {
			if running.Add(1) > 1 {
				overlap.Add(1)
			}
			defer running.Add(-1)
			fetched.Add(1)
			select {
			case <-time.After(50 * time.Millisecond):
			case <-ctx.Done():
			}
			return 1, nil
		},
		func(int) { delivered.Add(1) },
		discardLogger(),
	)

	done := make(chan error, 1)
	go func() { done <- p.Run(ctx) }()

	require.Eventually(t, func() bool { return delivered.Load() >= 3 }, 3*time.Second, 10*time.Millisecond)
	cancel()
	<-done

	assert.Zero(t, overlap.Load(), "interval ticks must not stack fetches")
	assert.LessOrEqual(t, delivered.Load(), fetched.Load())
}
