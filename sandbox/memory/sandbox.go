package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mwantia/mirrorfs/data"
	"github.com/mwantia/mirrorfs/sandbox"
	"github.com/tidwall/btree"
)

// MemorySandbox is a thread-safe in-memory sandbox filesystem. All entries
// live in RAM and are lost when the sandbox is closed. Every mutation is
// echoed on the watch feed, which makes this the reference implementation
// for tests and for driving a mirror without a real execution environment.
type MemorySandbox struct {
	mu     sync.RWMutex
	feed   *sandbox.Feed
	closed bool

	// Ordered by key so snapshots list parents before their children.
	entries *btree.Map[string, *memoryEntry]
}

type memoryEntry struct {
	dir     bool
	content []byte
	modTime time.Time
}

// NewMemorySandbox creates an empty in-memory sandbox with a root
// directory pre-created.
func NewMemorySandbox() *MemorySandbox {
	ms := &MemorySandbox{
		feed:    sandbox.NewFeed(),
		entries: btree.NewMap[string, *memoryEntry](0),
	}
	ms.entries.Set("", &memoryEntry{dir: true, modTime: time.Now()})

	return ms
}

// Name returns the identifier name defined for this backend.
func (*MemorySandbox) Name() string {
	return "memory"
}

// Open is part of the lifecycle behaviour and gets called when opening this backend.
func (ms *MemorySandbox) Open(ctx context.Context) error {
	return nil
}

// Close is part of the lifecycle behaviour and gets called when closing this backend.
func (ms *MemorySandbox) Close(ctx context.Context) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	if ms.closed {
		return data.ErrSandboxClosed
	}
	ms.closed = true

	ms.feed.Close()
	ms.entries.Clear()

	return nil
}

func (ms *MemorySandbox) ReadFile(ctx context.Context, path string) ([]byte, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, data.ErrSandboxClosed
	}

	entry, exists := ms.entries.Get(path)
	if !exists {
		return nil, data.ErrNotExist
	}

	if entry.dir {
		return nil, data.ErrIsDirectory
	}

	content := make([]byte, len(entry.content))
	copy(content, entry.content)

	return content, nil
}

func (ms *MemorySandbox) WriteFile(ctx context.Context, path string, content []byte) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	ms.mu.Lock()

	if ms.closed {
		ms.mu.Unlock()
		return data.ErrSandboxClosed
	}

	if entry, exists := ms.entries.Get(path); exists && entry.dir {
		ms.mu.Unlock()
		return data.ErrIsDirectory
	}

	events, err := ms.ensureParentsUnsafe(path)
	if err != nil {
		ms.mu.Unlock()
		return err
	}

	stored := make([]byte, len(content))
	copy(stored, content)

	kind := data.EventAddFile
	if _, exists := ms.entries.Get(path); exists {
		kind = data.EventChangeFile
	}

	ms.entries.Set(path, &memoryEntry{content: stored, modTime: time.Now()})
	events = append(events, data.WatchEvent{
		Kind:    kind,
		Path:    sandbox.AbsolutePath(path),
		Payload: stored,
	})
	ms.mu.Unlock()

	for _, ev := range events {
		ms.feed.Publish(ev)
	}

	return nil
}

func (ms *MemorySandbox) MakeDirectory(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	ms.mu.Lock()

	if ms.closed {
		ms.mu.Unlock()
		return data.ErrSandboxClosed
	}

	if entry, exists := ms.entries.Get(path); exists {
		ms.mu.Unlock()
		if entry.dir {
			return data.ErrExist
		}
		return data.ErrNotDirectory
	}

	events, err := ms.ensureParentsUnsafe(path)
	if err != nil {
		ms.mu.Unlock()
		return err
	}

	ms.entries.Set(path, &memoryEntry{dir: true, modTime: time.Now()})
	events = append(events, data.WatchEvent{
		Kind: data.EventAddDir,
		Path: sandbox.AbsolutePath(path),
	})
	ms.mu.Unlock()

	for _, ev := range events {
		ms.feed.Publish(ev)
	}

	return nil
}

// Remove deletes the entry at path. Directories are removed with their
// whole subtree; a single remove event for the directory is published and
// consumers are expected to cascade.
func (ms *MemorySandbox) Remove(ctx context.Context, path string) error {
	if path == "" {
		return data.ErrInvalidPath
	}

	ms.mu.Lock()

	if ms.closed {
		ms.mu.Unlock()
		return data.ErrSandboxClosed
	}

	entry, exists := ms.entries.Get(path)
	if !exists {
		ms.mu.Unlock()
		return data.ErrNotExist
	}

	kind := data.EventRemoveFile
	if entry.dir {
		kind = data.EventRemoveDir

		prefix := path + "/"
		var children []string
		ms.entries.Ascend(prefix, func(key string, _ *memoryEntry) bool {
			if !strings.HasPrefix(key, prefix) {
				return false
			}
			children = append(children, key)
			return true
		})
		for _, child := range children {
			ms.entries.Delete(child)
		}
	}

	ms.entries.Delete(path)
	ms.mu.Unlock()

	ms.feed.Publish(data.WatchEvent{Kind: kind, Path: sandbox.AbsolutePath(path)})

	return nil
}

// Watch streams change events, replaying current contents first.
func (ms *MemorySandbox) Watch(ctx context.Context) (<-chan data.WatchEvent, error) {
	return sandbox.WatchFeed(ctx, ms.feed, ms.snapshot)
}

func (ms *MemorySandbox) snapshot(ctx context.Context) ([]data.WatchEvent, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	if ms.closed {
		return nil, data.ErrSandboxClosed
	}

	var events []data.WatchEvent
	ms.entries.Scan(func(key string, entry *memoryEntry) bool {
		if key == "" {
			return true
		}

		if entry.dir {
			events = append(events, data.WatchEvent{
				Kind: data.EventAddDir,
				Path: sandbox.AbsolutePath(key),
			})
		} else {
			payload := make([]byte, len(entry.content))
			copy(payload, entry.content)
			events = append(events, data.WatchEvent{
				Kind:    data.EventAddFile,
				Path:    sandbox.AbsolutePath(key),
				Payload: payload,
			})
		}
		return true
	})

	return events, nil
}

// ensureParentsUnsafe creates missing parent directories for path and
// returns the add events to publish. Must be called with lock held.
func (ms *MemorySandbox) ensureParentsUnsafe(path string) ([]data.WatchEvent, error) {
	var events []data.WatchEvent

	segments := strings.Split(path, "/")
	current := ""
	for _, segment := range segments[:len(segments)-1] {
		if current == "" {
			current = segment
		} else {
			current = current + "/" + segment
		}

		entry, exists := ms.entries.Get(current)
		if exists {
			if !entry.dir {
				return nil, data.ErrNotDirectory
			}
			continue
		}

		ms.entries.Set(current, &memoryEntry{dir: true, modTime: time.Now()})
		events = append(events, data.WatchEvent{
			Kind: data.EventAddDir,
			Path: sandbox.AbsolutePath(current),
		})
	}

	return events, nil
}
