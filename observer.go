package mirrorfs

import (
	"github.com/mwantia/mirrorfs/data"

	"github.com/google/uuid"
)

// SubscribeFunc receives the new entry for a path after a mutation.
// A nil entry means the path became absent.
type SubscribeFunc func(path string, entry *data.DirEntry)

type change struct {
	path  string
	entry *data.DirEntry
}

// Subscribe registers a callback fired whenever the entry at path
// changes. The returned cancel function removes the subscription.
// Callbacks run outside the store lock, after the whole mutation has
// been applied; reading the store from a callback is safe.
func (s *FileStore) Subscribe(path string, fn SubscribeFunc) func() {
	normalized := s.normalize(path)
	id := uuid.Must(uuid.NewV7()).String()

	s.subMu.Lock()
	if s.subs[normalized] == nil {
		s.subs[normalized] = make(map[string]SubscribeFunc)
	}
	s.subs[normalized][id] = fn
	s.subCount++
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		defer s.subMu.Unlock()

		if fns, exists := s.subs[normalized]; exists {
			if _, registered := fns[id]; registered {
				delete(fns, id)
				s.subCount--
			}
			if len(fns) == 0 {
				delete(s.subs, normalized)
			}
		}
	}
}

func (s *FileStore) notify(changes []change) {
	if len(changes) == 0 {
		return
	}

	s.subMu.RLock()
	if s.subCount == 0 {
		s.subMu.RUnlock()
		return
	}

	type fired struct {
		fn    SubscribeFunc
		path  string
		entry *data.DirEntry
	}

	var pending []fired
	for _, ch := range changes {
		for _, fn := range s.subs[ch.path] {
			pending = append(pending, fired{fn: fn, path: ch.path, entry: ch.entry})
		}
	}
	s.subMu.RUnlock()

	for _, f := range pending {
		f.fn(f.path, f.entry)
	}
}
