package sandbox

import (
	"context"
	"fmt"

	"github.com/mwantia/mirrorfs/data"
)

// Sandbox is the boundary to the external execution environment that owns
// the real filesystem. Paths at this boundary are sandbox-relative with no
// leading slash; the empty string addresses the sandbox root.
//
// Implementations must publish a watch event for every mutation performed
// through this interface. Backends that cannot observe out-of-band changes
// only echo their own mutations.
type Sandbox interface {
	// Name returns the identifier name defined for this backend.
	Name() string

	// Open is part of the lifecycle behaviour and gets called once before
	// the sandbox is used.
	Open(ctx context.Context) error

	// Close is part of the lifecycle behaviour and gets called when the
	// sandbox is released. Watch feeds are shut down here.
	Close(ctx context.Context) error

	// ReadFile returns the raw content of the file at path.
	ReadFile(ctx context.Context, path string) ([]byte, error)

	// WriteFile creates or overwrites the file at path. Parent directories
	// are created implicitly where the backend supports it.
	WriteFile(ctx context.Context, path string, content []byte) error

	// MakeDirectory creates a directory at path.
	MakeDirectory(ctx context.Context, path string) error

	// Remove deletes the entry at path. Removing a directory removes its
	// contents as well.
	Remove(ctx context.Context, path string) error

	// Watch streams change events, starting with a replay of the current
	// contents as synthetic add events (directories before their files,
	// in key order) followed by live mutations. The channel is closed when
	// ctx is cancelled or the sandbox is closed.
	Watch(ctx context.Context) (<-chan data.WatchEvent, error)
}

// SnapshotFunc lists the current sandbox contents as synthetic add events.
type SnapshotFunc func(ctx context.Context) ([]data.WatchEvent, error)

// WatchFeed implements the shared replay-then-live Watch contract on top
// of a Feed. The live subscription is taken before the snapshot so that no
// mutation falls into the gap; an event observed by both passes is applied
// twice by the consumer, which is harmless under last-applied-wins.
func WatchFeed(ctx context.Context, feed *Feed, snapshot SnapshotFunc) (<-chan data.WatchEvent, error) {
	live := feed.Subscribe(ctx)

	replay, err := snapshot(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to snapshot sandbox contents: %w", err)
	}

	out := make(chan data.WatchEvent, eventBuffer)
	go func() {
		defer close(out)

		for _, ev := range replay {
			select {
			case out <- ev:
			case <-ctx.Done():
				return
			}
		}

		for {
			select {
			case ev, ok := <-live:
				if !ok {
					return
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return out, nil
}

// AbsolutePath converts a sandbox-relative key to the absolute path used
// in watch events and by the mirror store.
func AbsolutePath(key string) string {
	if key == "" {
		return "/"
	}

	return "/" + key
}
