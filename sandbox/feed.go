package sandbox

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/mwantia/mirrorfs/data"
)

// eventBuffer is the channel capacity used for watch subscriptions.
// Publishers block rather than drop once a subscriber falls this far
// behind.
const eventBuffer = 256

type subscription struct {
	events chan data.WatchEvent
	done   chan struct{}

	// Counts in-flight publishes holding a reference to this
	// subscription; the events channel closes only after it drains.
	wg sync.WaitGroup
}

// Feed fans watch events out to any number of subscribers. Backends embed
// one Feed and publish every mutation through it.
type Feed struct {
	mu     sync.RWMutex
	subs   map[string]*subscription
	closed bool
}

func NewFeed() *Feed {
	return &Feed{
		subs: make(map[string]*subscription),
	}
}

// Subscribe registers a new consumer. The subscription is released when
// ctx is cancelled or the feed is closed; the returned channel is closed
// once the release completes.
func (f *Feed) Subscribe(ctx context.Context) <-chan data.WatchEvent {
	sub := &subscription{
		events: make(chan data.WatchEvent, eventBuffer),
		done:   make(chan struct{}),
	}

	id := uuid.Must(uuid.NewV7()).String()

	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		close(sub.events)
		return sub.events
	}
	f.subs[id] = sub
	f.mu.Unlock()

	go func() {
		select {
		case <-ctx.Done():
			f.unsubscribe(id)
		case <-sub.done:
		}
	}()

	return sub.events
}

func (f *Feed) unsubscribe(id string) {
	f.mu.Lock()
	sub, exists := f.subs[id]
	if exists {
		delete(f.subs, id)
	}
	f.mu.Unlock()

	if exists {
		release(sub)
	}
}

// release shuts a subscription down after it left the map. Closing done
// first unblocks any publisher stuck on a full buffer; the wait then
// guarantees no send races the channel close.
func release(sub *subscription) {
	close(sub.done)
	sub.wg.Wait()
	close(sub.events)
}

// Publish delivers the event to every live subscriber. Delivery blocks on
// a full subscriber buffer until the consumer drains or unsubscribes, so
// no event is ever dropped or reordered.
func (f *Feed) Publish(ev data.WatchEvent) {
	f.mu.RLock()
	subs := make([]*subscription, 0, len(f.subs))
	for _, sub := range f.subs {
		sub.wg.Add(1)
		subs = append(subs, sub)
	}
	f.mu.RUnlock()

	for _, sub := range subs {
		select {
		case sub.events <- ev:
		case <-sub.done:
		}
		sub.wg.Done()
	}
}

// Close releases all subscriptions and closes their channels.
func (f *Feed) Close() {
	f.mu.Lock()
	if f.closed {
		f.mu.Unlock()
		return
	}
	f.closed = true

	subs := make([]*subscription, 0, len(f.subs))
	for id, sub := range f.subs {
		delete(f.subs, id)
		subs = append(subs, sub)
	}
	f.mu.Unlock()

	for _, sub := range subs {
		release(sub)
	}
}
