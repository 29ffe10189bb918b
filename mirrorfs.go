package mirrorfs

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mwantia/mirrorfs/data"
	"github.com/mwantia/mirrorfs/log"
	"github.com/mwantia/mirrorfs/sandbox"
	"github.com/tidwall/btree"
)

// FileStore is the authoritative in-memory mirror of a sandbox
// filesystem. It ingests batched watch events into a path-keyed entry
// map and layers lock and modification tracking on top. One FileStore
// instance is shared per session; consumers receive read-only snapshots
// and must never mutate them.
type FileStore struct {
	mu  sync.RWMutex
	log *log.Logger

	sb      sandbox.Sandbox
	detect  BinaryDetector
	workDir string
	window  time.Duration

	// Ordered by path so cascade removal is a prefix scan.
	files *btree.Map[string, data.DirEntry]

	// Pre-edit content snapshots, first write wins until reset.
	modified map[string]string

	locked map[string]bool

	// Maintained incrementally from file add/remove events, never
	// recomputed from the map.
	filesCount int

	subMu    sync.RWMutex
	subs     map[string]map[string]SubscribeFunc
	subCount int

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewFileStore creates a mirror over the given sandbox. The store does
// not take ownership of the sandbox lifecycle; callers open and close it
// themselves.
func NewFileStore(sb sandbox.Sandbox, opts ...Option) (*FileStore, error) {
	options := newDefaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	return &FileStore{
		log:      options.Logger,
		sb:       sb,
		detect:   options.Detector,
		workDir:  options.WorkDir,
		window:   options.BatchWindow,
		files:    btree.NewMap[string, data.DirEntry](0),
		modified: make(map[string]string),
		locked:   make(map[string]bool),
		subs:     make(map[string]map[string]SubscribeFunc),
	}, nil
}

// Start subscribes to the sandbox watch feed and begins mirroring. The
// feed is consumed through the event batcher, so a burst of filesystem
// churn collapses into a single batch application.
func (s *FileStore) Start(ctx context.Context) error {
	watchCtx, cancel := context.WithCancel(ctx)

	events, err := s.sb.Watch(watchCtx)
	if err != nil {
		cancel()
		return fmt.Errorf("failed to subscribe to sandbox watch feed: %w", err)
	}

	s.mu.Lock()
	if s.cancel != nil {
		s.mu.Unlock()
		cancel()
		return data.ErrInvalid
	}
	s.cancel = cancel
	s.mu.Unlock()

	batcher := NewEventBatcher(s.window, s.ApplyBatch)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		batcher.Run(watchCtx, events)
	}()

	s.log.Debug("mirroring sandbox '%s' with a %s batch window", s.sb.Name(), s.window)

	return nil
}

// Close stops consuming the watch feed and waits for in-flight batches
// to drain. The mirrored state stays readable afterwards.
func (s *FileStore) Close(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.cancel = nil
	s.mu.Unlock()

	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
