package monitor

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// UpdateHandler receives affect updates
type UpdateHandler interface {
	OnUpdate(update *Update)
}

// UpdateHandlerFunc adapts a function to UpdateHandler
type UpdateHandlerFunc func(update *Update)

func (f UpdateHandlerFunc) OnUpdate(update *Update) { f(update) }

// EventBus provides pub/sub for affect updates
type EventBus struct {
	subscribers map[*eventSubscription]bool
	mu          sync.RWMutex
	skipped     atomic.Uint64
	async       sync.WaitGroup
}

type eventSubscription struct {
	channel chan *Update
	handler UpdateHandler
}

// NewEventBus creates a new event bus
func NewEventBus() *EventBus {
	return &EventBus{
		subscribers: make(map[*eventSubscription]bool),
	}
}

// Subscribe registers a handler called synchronously on the publishing
// goroutine. Handlers must not block. Returns an unsubscribe function.
func (b *EventBus) Subscribe(handler UpdateHandler) func() {
	sub := &eventSubscription{
		handler: handler,
	}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	return func() {
		b.mu.Lock()
		delete(b.subscribers, sub)
		b.mu.Unlock()
	}
}

// SubscribeChannel returns a buffered channel that receives updates.
// When the buffer is full new updates are skipped for that subscriber.
func (b *EventBus) SubscribeChannel(bufferSize int) (<-chan *Update, func()) {
	if bufferSize <= 0 {
		bufferSize = 10
	}

	ch := make(chan *Update, bufferSize)
	sub := &eventSubscription{
		channel: ch,
	}

	b.mu.Lock()
	b.subscribers[sub] = true
	b.mu.Unlock()

	unsubscribe := func() {
		b.mu.Lock()
		if _, ok := b.subscribers[sub]; ok {
			delete(b.subscribers, sub)
			close(ch)
		}
		b.mu.Unlock()
	}

	return ch, unsubscribe
}

// SubscribeAsync drains a channel subscription into handler on its own
// goroutine, so a slow sink never stalls the publisher. The goroutine exits
// when ctx is cancelled, or after delivering what is queued once the bus is
// closed.
func (b *EventBus) SubscribeAsync(ctx context.Context, bufferSize int, handler UpdateHandler) func() {
	ch, unsubscribe := b.SubscribeChannel(bufferSize)
	b.async.Add(1)
	go func() {
		defer b.async.Done()
		for {
			select {
			case <-ctx.Done():
				unsubscribe()
				return
			case update, ok := <-ch:
				if !ok {
					return
				}
				handler.OnUpdate(update)
			}
		}
	}()
	return unsubscribe
}

// Publish sends an update to all subscribers
func (b *EventBus) Publish(update *Update) {
	if update == nil {
		return
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for sub := range b.subscribers {
		// Handlers run in publish order so consumers never see an older
		// update after a newer one
		if sub.handler != nil {
			sub.handler.OnUpdate(update)
		} else if sub.channel != nil {
			select {
			case sub.channel <- update:
			default:
				b.skipped.Add(1)
			}
		}
	}
}

// Skipped returns how many channel deliveries were skipped because a subscriber was full
func (b *EventBus) Skipped() uint64 {
	return b.skipped.Load()
}

// SubscriberCount returns the number of active subscribers
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}

// Close unsubscribes all subscribers and closes channels
func (b *EventBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	for sub := range b.subscribers {
		if sub.channel != nil {
			close(sub.channel)
		}
		delete(b.subscribers, sub)
	}
}

// Wait blocks until every SubscribeAsync goroutine has returned or the
// timeout elapses. It reports whether they all returned.
func (b *EventBus) Wait(timeout time.Duration) bool {
	done := make(chan struct{})
	go func() {
		b.async.Wait()
		close(done)
	}()

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-done:
		return true
	case <-timer.C:
		return false
	}
}
