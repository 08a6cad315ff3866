package events

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"salechain/core/types"
)

func TestBusDeliversAndReplaysFromCursor(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	ch, stop, backlog := bus.Subscribe(ctx, "")
	defer stop()
	require.Empty(t, backlog)

	bus.Publish("tx1", 1, []types.Event{
		{Type: "crowdsale.purchase", Attributes: map[string]string{"amount": "5"}},
		{Type: "crowdsale.withdrawal", Attributes: map[string]string{}},
	})

	select {
	case env := <-ch:
		require.Equal(t, uint64(1), env.Sequence)
		require.Equal(t, "1", env.Cursor)
		require.Equal(t, "tx1", env.TxHash)
		require.Equal(t, "crowdsale.purchase", env.Event.Type)
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for event")
	}

	_, stop2, replay := bus.Subscribe(context.Background(), "1")
	defer stop2()
	require.Len(t, replay, 1)
	require.Equal(t, "crowdsale.withdrawal", replay[0].Event.Type)
}

func TestBusCancelClosesChannel(t *testing.T) {
	bus := NewBus()
	ctx, cancel := context.WithCancel(context.Background())
	ch, _, _ := bus.Subscribe(ctx, "")
	require.Equal(t, 1, bus.Subscribers())
	cancel()

	select {
	case _, ok := <-ch:
		require.False(t, ok)
	case <-time.After(time.Second):
		t.Fatalf("subscription not closed")
	}
	require.Equal(t, 0, bus.Subscribers())
}

func TestBusDisconnectsLaggingSubscriber(t *testing.T) {
	bus := NewBus()
	ch, stop, _ := bus.Subscribe(context.Background(), "")
	defer stop()

	burst := make([]types.Event, 100)
	for i := range burst {
		burst[i] = types.Event{Type: "crowdsale.purchase", Attributes: map[string]string{}}
	}
	bus.Publish("tx1", 1, burst)
	require.Equal(t, 0, bus.Subscribers())
	require.Equal(t, uint64(100), bus.Sequence())

	received := 0
	for range ch {
		received++
	}
	require.Equal(t, 64, received)
}

func TestFollowResumesAfterLag(t *testing.T) {
	bus := NewBus()
	bus.Publish("tx0", 1, []types.Event{{Type: "before", Attributes: map[string]string{}}})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	release := make(chan struct{})
	var seen []uint64
	done := make(chan error, 1)
	go func() {
		done <- bus.Follow(ctx, "", func(env Envelope) error {
			<-release
			seen = append(seen, env.Sequence)
			if len(seen) == 150 {
				cancel()
			}
			return nil
		})
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)

	burst := make([]types.Event, 150)
	for i := range burst {
		burst[i] = types.Event{Type: "crowdsale.purchase", Attributes: map[string]string{}}
	}
	bus.Publish("tx1", 2, burst)
	close(release)

	select {
	case err := <-done:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatalf("follow did not catch up")
	}
	require.Len(t, seen, 150)
	for i, seq := range seen {
		require.Equal(t, uint64(i+2), seq)
	}
}

func TestFollowStopsOnHandlerError(t *testing.T) {
	bus := NewBus()
	boom := errors.New("boom")
	done := make(chan error, 1)
	go func() {
		done <- bus.Follow(context.Background(), "0", func(Envelope) error { return boom })
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, 5*time.Millisecond)
	bus.Publish("tx1", 1, []types.Event{{Type: "x", Attributes: map[string]string{}}})

	select {
	case err := <-done:
		require.ErrorIs(t, err, boom)
	case <-time.After(time.Second):
		t.Fatalf("follow kept running")
	}
	require.Eventually(t, func() bool { return bus.Subscribers() == 0 }, time.Second, 5*time.Millisecond)
}

type plainEvent struct{}

func (plainEvent) EventType() string { return "plain" }

func TestRecorderTruncate(t *testing.T) {
	rec := &Recorder{}
	rec.Emit(plainEvent{})
	rec.Emit(&types.Event{Type: "raw", Attributes: map[string]string{"k": "v"}})
	require.Equal(t, 2, rec.Len())
	rec.Truncate(1)
	evts := rec.Events()
	require.Len(t, evts, 1)
	require.Equal(t, "plain", evts[0].Type)
}
