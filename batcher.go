package mirrorfs

import (
	"context"
	"time"

	"github.com/mwantia/mirrorfs/data"
)

// DefaultBatchWindow is the quiet window used to coalesce bursty watch
// notifications when no other window is configured.
const DefaultBatchWindow = 100 * time.Millisecond

// EventBatcher groups watch events arriving within a quiet window into a
// single batch. The first event of an idle period arms the window timer;
// everything arriving before it fires joins the batch. The handler is
// invoked at most once per window even under sustained input, and events
// are never dropped or reordered.
type EventBatcher struct {
	window  time.Duration
	handler func([]data.WatchEvent)
}

func NewEventBatcher(window time.Duration, handler func([]data.WatchEvent)) *EventBatcher {
	if window <= 0 {
		window = DefaultBatchWindow
	}

	return &EventBatcher{
		window:  window,
		handler: handler,
	}
}

// Run consumes events until the channel is closed or ctx is cancelled.
// Any buffered remainder is flushed before returning.
func (b *EventBatcher) Run(ctx context.Context, events <-chan data.WatchEvent) {
	var buffer []data.WatchEvent
	var timer *time.Timer
	var fire <-chan time.Time

	stopTimer := func() {
		if timer != nil {
			timer.Stop()
			timer = nil
			fire = nil
		}
	}
	defer stopTimer()

	flush := func() {
		if len(buffer) == 0 {
			return
		}
		batch := buffer
		buffer = nil
		b.handler(batch)
	}
	defer flush()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}

			buffer = append(buffer, ev)
			if fire == nil {
				timer = time.NewTimer(b.window)
				fire = timer.C
			}

		case <-fire:
			timer = nil
			fire = nil
			flush()

		case <-ctx.Done():
			return
		}
	}
}
