package mirrorfs_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mwantia/mirrorfs"
	"github.com/mwantia/mirrorfs/data"
	"github.com/mwantia/mirrorfs/sandbox"
	"github.com/mwantia/mirrorfs/sandbox/memory"
)

func newTestStore(t *testing.T, sb sandbox.Sandbox, opts ...mirrorfs.Option) *mirrorfs.FileStore {
	t.Helper()

	opts = append([]mirrorfs.Option{mirrorfs.WithoutLogging()}, opts...)
	store, err := mirrorfs.NewFileStore(sb, opts...)
	if err != nil {
		t.Fatalf("NewFileStore failed: %v", err)
	}

	return store
}

func addDir(path string) data.WatchEvent {
	return data.WatchEvent{Kind: data.EventAddDir, Path: path}
}

func addFile(path, content string) data.WatchEvent {
	return data.WatchEvent{Kind: data.EventAddFile, Path: path, Payload: []byte(content)}
}

func TestFileStore_ApplyBatch(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	store.ApplyBatch([]data.WatchEvent{
		addDir("/src"),
		addFile("/src/a.ts", "hi"),
		addFile("/readme.md", "# readme"),
	})

	entry, exists := store.GetEntry("/src")
	if !exists || entry.Kind != data.EntryFolder {
		t.Fatal("expected '/src' to be a folder")
	}

	content, ok := store.GetFile("/src/a.ts")
	if !ok || content != "hi" {
		t.Fatalf("expected content 'hi', got %q (ok=%v)", content, ok)
	}

	// Folders have no file content
	if _, ok := store.GetFile("/src"); ok {
		t.Error("expected no content for a folder")
	}

	// Last event wins for the same path
	store.ApplyBatch([]data.WatchEvent{
		{Kind: data.EventChangeFile, Path: "/src/a.ts", Payload: []byte("updated")},
	})
	if content, _ := store.GetFile("/src/a.ts"); content != "updated" {
		t.Errorf("expected content 'updated', got %q", content)
	}
}

func TestFileStore_ApplyBatch_DirectoryRemovalCascades(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	store.ApplyBatch([]data.WatchEvent{
		addDir("/src"),
		addFile("/src/a.ts", "hi"),
		addDir("/src/deep"),
		addFile("/src/deep/b.ts", "deep"),
		addFile("/srctwo", "sibling"),
	})

	store.ApplyBatch([]data.WatchEvent{
		{Kind: data.EventRemoveDir, Path: "/src"},
	})

	for _, path := range []string{"/src", "/src/a.ts", "/src/deep", "/src/deep/b.ts"} {
		if _, exists := store.GetEntry(path); exists {
			t.Errorf("expected %s to be absent after cascade", path)
		}
	}

	// Similarly named siblings survive
	if _, exists := store.GetEntry("/srctwo"); !exists {
		t.Error("expected '/srctwo' to survive removal of '/src'")
	}
}

func TestFileStore_ApplyBatch_Idempotent(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	batch := []data.WatchEvent{
		addDir("/src"),
		addFile("/src/a.ts", "hi"),
		{Kind: data.EventRemoveFile, Path: "/src/gone.ts"},
	}

	store.ApplyBatch(batch)
	first := store.Snapshot()

	store.ApplyBatch(batch)
	second := store.Snapshot()

	if len(first) != len(second) {
		t.Fatalf("map changed size on reapply: %d != %d", len(first), len(second))
	}
	for path, entry := range first {
		if second[path] != entry {
			t.Errorf("entry for %s changed on reapply", path)
		}
	}
}

func TestFileStore_ApplyBatch_BinaryAndInvalidPayloads(t *testing.T) {
	detector := func(payload []byte) bool {
		return len(payload) > 0 && payload[0] == 0xff
	}
	store := newTestStore(t, memory.NewMemorySandbox(), mirrorfs.WithBinaryDetector(detector))

	store.ApplyBatch([]data.WatchEvent{
		{Kind: data.EventAddFile, Path: "/image.png", Payload: []byte{0xff, 0x01, 0x02}},
		{Kind: data.EventAddFile, Path: "/broken.txt", Payload: []byte{0x68, 0x69, 0xc3}},
	})

	entry, exists := store.GetEntry("/image.png")
	if !exists || !entry.Binary {
		t.Fatal("expected '/image.png' to be mirrored as binary")
	}
	if entry.Content != "" {
		t.Error("binary entries must not keep content")
	}
	if _, ok := store.GetFile("/image.png"); ok {
		t.Error("expected no text content for a binary file")
	}

	// Invalid UTF-8 degrades to empty content, not a failure
	content, ok := store.GetFile("/broken.txt")
	if !ok || content != "" {
		t.Errorf("expected empty content for invalid utf-8, got %q (ok=%v)", content, ok)
	}
}

func TestFileStore_ApplyBatch_IgnoresNoopEvents(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	store.ApplyBatch([]data.WatchEvent{
		addDir("/src"),
		{Kind: data.EventUpdateDir, Path: "/src"},
		{Kind: data.WatchEventKind(99), Path: "/bogus"},
	})

	if _, exists := store.GetEntry("/bogus"); exists {
		t.Error("unrecognized event kinds must not create entries")
	}
	if _, exists := store.GetEntry("/src"); !exists {
		t.Error("expected '/src' to exist")
	}
}

func TestFileStore_SaveFile(t *testing.T) {
	ctx := context.Background()
	sb := memory.NewMemorySandbox()
	store := newTestStore(t, sb)

	store.ApplyBatch([]data.WatchEvent{
		addDir("/src"),
		addFile("/src/a.ts", "hi"),
	})

	if err := store.SaveFile(ctx, "/src/a.ts", "bye"); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}

	// Write-through reached the sandbox
	raw, err := sb.ReadFile(ctx, "src/a.ts")
	if err != nil {
		t.Fatalf("sandbox ReadFile failed: %v", err)
	}
	if string(raw) != "bye" {
		t.Errorf("expected sandbox content 'bye', got %q", raw)
	}

	if content, _ := store.GetFile("/src/a.ts"); content != "bye" {
		t.Errorf("expected mirror content 'bye', got %q", content)
	}

	// First save captures the pre-edit snapshot
	modified := store.Modifications()
	if original, exists := modified["/src/a.ts"]; !exists || original != "hi" {
		t.Fatalf("expected snapshot 'hi', got %q (exists=%v)", original, exists)
	}

	// A second save keeps the original snapshot
	if err := store.SaveFile(ctx, "/src/a.ts", "bye2"); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if original := store.Modifications()["/src/a.ts"]; original != "hi" {
		t.Errorf("snapshot must be first-write-wins, got %q", original)
	}
}

type failingSandbox struct {
	*memory.MemorySandbox
}

var errWriteRejected = errors.New("write rejected")

func (fs *failingSandbox) WriteFile(ctx context.Context, path string, content []byte) error {
	return errWriteRejected
}

func TestFileStore_SaveFile_FailedWriteLeavesStateUntouched(t *testing.T) {
	store := newTestStore(t, &failingSandbox{memory.NewMemorySandbox()})

	store.ApplyBatch([]data.WatchEvent{
		addFile("/a.ts", "hi"),
	})

	err := store.SaveFile(context.Background(), "/a.ts", "bye")
	if err == nil {
		t.Fatal("expected SaveFile to fail")
	}
	if !errors.Is(err, data.ErrWriteFailed) {
		t.Errorf("expected ErrWriteFailed, got %v", err)
	}

	if content, _ := store.GetFile("/a.ts"); content != "hi" {
		t.Errorf("failed write must not touch the mirror, got %q", content)
	}
	if len(store.FileModifications()) != 0 {
		t.Error("failed write must not capture a snapshot")
	}
}

func TestFileStore_ResetFileModifications(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	store.ApplyBatch([]data.WatchEvent{addFile("/a.ts", "hi")})
	if err := store.SaveFile(context.Background(), "/a.ts", "bye"); err != nil {
		t.Fatalf("SaveFile failed: %v", err)
	}
	if len(store.FileModifications()) != 1 {
		t.Fatal("expected one modified path")
	}

	store.ResetFileModifications()

	if mods := store.FileModifications(); len(mods) != 0 {
		t.Errorf("expected no modifications after reset, got %v", mods)
	}

	// Content stays as saved
	if content, _ := store.GetFile("/a.ts"); content != "bye" {
		t.Errorf("reset must not touch contents, got %q", content)
	}
}

func TestFileStore_Locks(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	// Locking works independent of file existence
	if store.IsFileLocked("/ghost.ts") {
		t.Error("unknown paths start unlocked")
	}

	store.ToggleFileLock("/ghost.ts")
	if !store.IsFileLocked("/ghost.ts") {
		t.Error("expected path to be locked after toggle")
	}

	store.ToggleFileLock("/ghost.ts")
	if store.IsFileLocked("/ghost.ts") {
		t.Error("expected path to be unlocked after second toggle")
	}

	// A lock does not block updates from the watch feed
	store.ApplyBatch([]data.WatchEvent{addFile("/locked.ts", "v1")})
	store.ToggleFileLock("/locked.ts")
	store.ApplyBatch([]data.WatchEvent{
		{Kind: data.EventChangeFile, Path: "/locked.ts", Payload: []byte("v2")},
	})
	if content, _ := store.GetFile("/locked.ts"); content != "v2" {
		t.Errorf("expected external change to apply to locked file, got %q", content)
	}
}

func TestFileStore_FilesCount(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	store.ApplyBatch([]data.WatchEvent{
		addDir("/src"),
		addFile("/src/a.ts", "a"),
		addFile("/src/b.ts", "b"),
	})
	if count := store.FilesCount(); count != 2 {
		t.Errorf("expected 2 files, got %d", count)
	}

	store.ApplyBatch([]data.WatchEvent{
		{Kind: data.EventRemoveFile, Path: "/src/b.ts"},
	})
	if count := store.FilesCount(); count != 1 {
		t.Errorf("expected 1 file, got %d", count)
	}
}

func TestFileStore_Subscribe(t *testing.T) {
	store := newTestStore(t, memory.NewMemorySandbox())

	var got []string
	cancel := store.Subscribe("/a.ts", func(path string, entry *data.DirEntry) {
		if entry == nil {
			got = append(got, "removed")
		} else {
			got = append(got, entry.Content)
		}
	})

	store.ApplyBatch([]data.WatchEvent{addFile("/a.ts", "v1")})
	store.ApplyBatch([]data.WatchEvent{{Kind: data.EventRemoveFile, Path: "/a.ts"}})

	cancel()
	store.ApplyBatch([]data.WatchEvent{addFile("/a.ts", "v2")})

	if len(got) != 2 || got[0] != "v1" || got[1] != "removed" {
		t.Errorf("unexpected notifications: %v", got)
	}
}

func TestFileStore_StartMirrorsSandbox(t *testing.T) {
	ctx := context.Background()
	sb := memory.NewMemorySandbox()

	// Content present before the mirror starts is replayed
	if err := sb.WriteFile(ctx, "src/a.ts", []byte("hi")); err != nil {
		t.Fatalf("sandbox WriteFile failed: %v", err)
	}

	store := newTestStore(t, sb, mirrorfs.WithBatchWindow(10*time.Millisecond))
	if err := store.Start(ctx); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	defer store.Close(context.Background())

	waitFor(t, func() bool {
		content, ok := store.GetFile("/src/a.ts")
		return ok && content == "hi"
	}, "initial replay to reach the mirror")

	// Live mutations follow
	if err := sb.WriteFile(ctx, "src/b.ts", []byte("live")); err != nil {
		t.Fatalf("sandbox WriteFile failed: %v", err)
	}

	waitFor(t, func() bool {
		content, ok := store.GetFile("/src/b.ts")
		return ok && content == "live"
	}, "live event to reach the mirror")

	if err := sb.Remove(ctx, "src"); err != nil {
		t.Fatalf("sandbox Remove failed: %v", err)
	}

	waitFor(t, func() bool {
		_, exists := store.GetEntry("/src/a.ts")
		return !exists
	}, "directory removal to cascade")
}

func waitFor(t *testing.T, cond func() bool, what string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}

	t.Fatalf("timed out waiting for %s", what)
}
