package monitor

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventBusHandler(t *testing.T) {
	bus := NewEventBus()

	var got []uint64
	unsubscribe := bus.Subscribe(UpdateHandlerFunc(func(u *Update) { got = append(got, u.FrameSeq) }))
	assert.Equal(t, 1, bus.SubscriberCount())

	bus.Publish(&Update{FrameSeq: 1})
	bus.Publish(nil)
	bus.Publish(&Update{FrameSeq: 2})
	assert.Equal(t, []uint64{1, 2}, got)

	unsubscribe()
	bus.Publish(&Update{FrameSeq: 3})
	assert.Equal(t, []uint64{1, 2}, got)
	assert.Equal(t, 0, bus.SubscriberCount())
}

func TestEventBusChannelSkipsWhenFull(t *testing.T) {
	bus := NewEventBus()
	ch, unsubscribe := bus.SubscribeChannel(2)

	for i := uint64(1); i <= 5; i++ {
		bus.Publish(&Update{FrameSeq: i})
	}
	assert.Equal(t, uint64(3), bus.Skipped())

	assert.Equal(t, uint64(1), (<-ch).FrameSeq)
	assert.Equal(t, uint64(2), (<-ch).FrameSeq)

	unsubscribe()
	_, ok := <-ch
	assert.False(t, ok)

	// second unsubscribe is a no-op
	unsubscribe()
}

func TestEventBusAsync(t *testing.T) {
	bus := NewEventBus()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	received := make(chan uint64, 4)
	bus.SubscribeAsync(ctx, 4, UpdateHandlerFunc(func(u *Update) { received <- u.FrameSeq }))

	bus.Publish(&Update{FrameSeq: 7})
	select {
	case seq := <-received:
		assert.Equal(t, uint64(7), seq)
	case <-time.After(time.Second):
		t.Fatal("async handler not called")
	}

	cancel()
	require.Eventually(t, func() bool { return bus.SubscriberCount() == 0 }, time.Second, 10*time.Millisecond)
}

func TestEventBusClose(t *testing.T) {
	bus := NewEventBus()
	ch, _ := bus.SubscribeChannel(1)
	bus.Subscribe(UpdateHandlerFunc(func(*Update) {}))

	bus.Close()
	assert.Equal(t, 0, bus.SubscriberCount())
	_, ok := <-ch
	assert.False(t, ok)
}

func TestEventBusCloseDrainsAsync(t *testing.T) {
	bus := NewEventBus()
	release := make(chan struct{})
	var seen []uint64
	bus.SubscribeAsync(context.Background(), 8, UpdateHandlerFunc(func(u *Update) {
		<-release
		seen = append(seen, u.FrameSeq)
	}))

	for i := 1; i <= 3; i++ {
		bus.Publish(&Update{FrameSeq: uint64(i)})
	}
	bus.Close()
	assert.False(t, bus.Wait(20*time.Millisecond))

	close(release)
	require.True(t, bus.Wait(time.Second))
	assert.Equal(t, []uint64{1, 2, 3}, seen)
}
