package mirrorfs

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/mwantia/mirrorfs/data"
)

// ApplyBatch applies a batch of watch events to the mirror in arrival
// order. Conflicting events for the same path are not merged; the last
// applied one wins. Unrecognized event kinds are ignored.
func (s *FileStore) ApplyBatch(events []data.WatchEvent) {
	var changes []change

	s.mu.Lock()

	for _, ev := range events {
		path := s.normalize(ev.Path)
		if path == "" {
			continue
		}

		switch ev.Kind {
		case data.EventAddDir:
			entry := data.NewFolderEntry()
			s.files.Set(path, entry)
			changes = append(changes, change{path: path, entry: &entry})

		case data.EventRemoveDir:
			s.files.Delete(path)
			changes = append(changes, change{path: path})

			// No orphaned children: everything below goes too
			prefix := path + "/"
			var orphans []string
			s.files.Ascend(prefix, func(key string, _ data.DirEntry) bool {
				if !strings.HasPrefix(key, prefix) {
					return false
				}
				orphans = append(orphans, key)
				return true
			})
			for _, orphan := range orphans {
				s.files.Delete(orphan)
				changes = append(changes, change{path: orphan})
			}

		case data.EventAddFile, data.EventChangeFile:
			entry := s.classify(path, ev.Payload)
			s.files.Set(path, entry)
			changes = append(changes, change{path: path, entry: &entry})

			if ev.Kind == data.EventAddFile {
				s.filesCount++
			}

		case data.EventRemoveFile:
			s.files.Delete(path)
			changes = append(changes, change{path: path})
			s.filesCount--

		case data.EventUpdateDir:
			// Reported by some watchers, carries no state change
		}
	}

	s.mu.Unlock()

	s.log.Debug("applied batch of %d events", len(events))
	s.notify(changes)
}

// classify turns a raw file payload into a mirror entry using the binary
// oracle and strict UTF-8 decoding. An invalid byte sequence degrades to
// empty content rather than failing the whole event.
func (s *FileStore) classify(path string, payload []byte) data.DirEntry {
	if s.detect(payload) {
		return data.NewBinaryEntry()
	}

	if !utf8.Valid(payload) {
		s.log.Warn("invalid utf-8 payload for '%s', content dropped", path)
		return data.NewFileEntry("")
	}

	return data.NewFileEntry(string(payload))
}

// GetEntry returns the mirrored entry at path.
func (s *FileStore) GetEntry(path string) (data.DirEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.files.Get(s.normalize(path))
}

// GetFile returns the text content of the file at path. The second
// return is false when the path is absent, a folder, or a binary file.
func (s *FileStore) GetFile(path string) (string, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, exists := s.files.Get(s.normalize(path))
	if !exists || entry.Kind != data.EntryFile || entry.Binary {
		return "", false
	}

	return entry.Content, true
}

// SaveFile writes content through to the sandbox before touching local
// state. A failed write surfaces as an error and leaves the mirror
// unchanged. On success the pre-edit content is captured once into the
// modification set, then the entry is overwritten as a text file.
func (s *FileStore) SaveFile(ctx context.Context, path string, content string) error {
	normalized := s.normalize(path)
	if normalized == "" {
		return data.ErrInvalidPath
	}

	rel := data.ToRelativePath(normalized, "/")
	if err := s.sb.WriteFile(ctx, rel, []byte(content)); err != nil {
		s.log.Error("failed to write '%s' to sandbox: %v", normalized, err)
		return fmt.Errorf("%w: %s: %v", data.ErrWriteFailed, normalized, err)
	}

	s.mu.Lock()

	prev, exists := s.files.Get(normalized)
	if exists && prev.Kind == data.EntryFile && !prev.Binary && prev.Content != "" {
		if _, captured := s.modified[normalized]; !captured {
			s.modified[normalized] = prev.Content
		}
	}

	entry := data.NewFileEntry(content)
	s.files.Set(normalized, entry)

	s.mu.Unlock()

	s.notify([]change{{path: normalized, entry: &entry}})

	return nil
}

// FileModifications lists the paths modified since load, sorted.
func (s *FileStore) FileModifications() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	paths := make([]string, 0, len(s.modified))
	for path := range s.modified {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	return paths
}

// Modifications returns a copy of the pre-edit snapshots keyed by path.
func (s *FileStore) Modifications() map[string]string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	modified := make(map[string]string, len(s.modified))
	for path, original := range s.modified {
		modified[path] = original
	}

	return modified
}

// ResetFileModifications clears the modification set. File contents are
// untouched.
func (s *FileStore) ResetFileModifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.modified = make(map[string]string)
}

// IsFileLocked reports the lock flag for path, independent of whether
// the path currently exists.
func (s *FileStore) IsFileLocked(path string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.locked[s.normalize(path)]
}

// ToggleFileLock flips the lock flag for path. Locking prevents
// selection-triggered navigation, not content updates from the watch
// feed.
func (s *FileStore) ToggleFileLock(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	normalized := s.normalize(path)
	if s.locked[normalized] {
		delete(s.locked, normalized)
	} else {
		s.locked[normalized] = true
	}
}

// FilesCount returns the running count of file entries. It is maintained
// incrementally from file add/remove events and is not reconciled
// against the map.
func (s *FileStore) FilesCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.filesCount
}

// Snapshot returns a read-only copy of the mirrored path map.
func (s *FileStore) Snapshot() map[string]data.DirEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snapshot := make(map[string]data.DirEntry, s.files.Len())
	s.files.Scan(func(path string, entry data.DirEntry) bool {
		snapshot[path] = entry
		return true
	})

	return snapshot
}

// normalize maps an incoming path to the mirror's key space: absolute,
// with the configured work dir stripped off.
func (s *FileStore) normalize(path string) string {
	abs, err := data.ToAbsolutePath(path)
	if err != nil {
		return ""
	}

	if s.workDir != "/" && data.HasPrefix(abs, s.workDir) {
		rel := data.ToRelativePath(abs, s.workDir)
		if rel == "" {
			return "/"
		}
		return "/" + rel
	}

	return abs
}
