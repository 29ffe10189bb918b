package tree

import (
	"errors"
	"testing"

	"github.com/mwantia/mirrorfs/data"
)

func testNodes() []data.Node {
	return []data.Node{
		{ID: 0, Kind: data.NodeFolder, Name: "a", FullPath: "/a", Depth: 0},
		{ID: 1, Kind: data.NodeFile, Name: "x.ts", FullPath: "/a/x.ts", Depth: 1},
		{ID: 2, Kind: data.NodeFolder, Name: "b", FullPath: "/a/b", Depth: 1},
		{ID: 3, Kind: data.NodeFile, Name: "y.ts", FullPath: "/a/b/y.ts", Depth: 2},
		{ID: 4, Kind: data.NodeFolder, Name: "c", FullPath: "/c", Depth: 0},
	}
}

func TestView_VisibleCollapsedSubtree(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{CollapsedFolders: []string{"/a"}}, nodes)

	visible := view.Visible(nodes)

	expected := []string{"/a", "/c"}
	if len(visible) != len(expected) {
		t.Fatalf("expected %d visible nodes, got %d: %v", len(expected), len(visible), visible)
	}
	for i, path := range expected {
		if visible[i].FullPath != path {
			t.Errorf("position %d: expected %s, got %s", i, path, visible[i].FullPath)
		}
	}
}

func TestView_VisibleNestedCollapse(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{}, nodes)
	view.Toggle("/a/b")

	visible := view.Visible(nodes)

	expected := []string{"/a", "/a/x.ts", "/a/b", "/c"}
	if len(visible) != len(expected) {
		t.Fatalf("expected %d visible nodes, got %d: %v", len(expected), len(visible), visible)
	}
	for i, path := range expected {
		if visible[i].FullPath != path {
			t.Errorf("position %d: expected %s, got %s", i, path, visible[i].FullPath)
		}
	}
}

func TestView_VisibleEmptyCollapse(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{}, nodes)

	visible := view.Visible(nodes)
	if len(visible) != len(nodes) {
		t.Errorf("expected all %d nodes visible, got %d", len(nodes), len(visible))
	}
}

func TestView_SeedFiltersMissingFolders(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{CollapsedFolders: []string{"/a", "/ghost"}}, nodes)

	if !view.IsCollapsed("/a") {
		t.Error("expected '/a' to seed collapsed")
	}
	if view.IsCollapsed("/ghost") {
		t.Error("expected missing folder to be filtered from the seed")
	}
}

func TestView_ReconcileExternalAuthoritative(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{}, nodes)

	// User collapses a folder, then an external list arrives
	view.Toggle("/a/b")
	view.Reconcile([]string{"/c"}, nodes)

	if view.IsCollapsed("/a/b") {
		t.Error("external list must replace user toggles")
	}
	if !view.IsCollapsed("/c") {
		t.Error("expected '/c' collapsed from external list")
	}
}

func TestView_ReconcilePrunesStaleEntries(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{}, nodes)

	view.Toggle("/a")
	view.Toggle("/a/b")

	// '/a/b' disappears from the tree
	remaining := nodes[:2:2]
	remaining = append(remaining, nodes[4])
	view.Reconcile(nil, remaining)

	if !view.IsCollapsed("/a") {
		t.Error("expected surviving toggle to be preserved")
	}
	if view.IsCollapsed("/a/b") {
		t.Error("expected stale entry to be pruned")
	}
}

func TestView_ReconcileSkipsEqualSets(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{}, nodes)
	view.Toggle("/a")

	before := view.CollapsedFolders()
	view.Reconcile(nil, nodes)
	after := view.CollapsedFolders()

	if len(before) != len(after) {
		t.Errorf("no-op reconcile changed the set: %v -> %v", before, after)
	}
	if !view.IsCollapsed("/a") {
		t.Error("expected '/a' to stay collapsed")
	}
}

func TestView_ToggleAlwaysAvailable(t *testing.T) {
	nodes := testNodes()
	view := NewView(Options{CollapsedFolders: []string{"/a"}}, nodes)

	view.Toggle("/a")
	if view.IsCollapsed("/a") {
		t.Error("toggle must win until the next reconciliation")
	}

	view.Reconcile([]string{"/a"}, nodes)
	if !view.IsCollapsed("/a") {
		t.Error("external reconciliation must overwrite the toggle")
	}
}

func TestView_Select(t *testing.T) {
	view := NewView(Options{}, nil)

	folder := data.Node{Kind: data.NodeFolder, FullPath: "/a"}
	file := data.Node{Kind: data.NodeFile, FullPath: "/a/x.ts"}

	if err := view.Select(folder, nil); !errors.Is(err, data.ErrIsDirectory) {
		t.Errorf("expected folder selection to be rejected, got %v", err)
	}

	allowing := NewView(Options{AllowFolderSelection: true}, nil)
	if err := allowing.Select(folder, nil); err != nil {
		t.Errorf("expected folder selection to pass, got %v", err)
	}

	locked := func(path string) bool { return path == "/a/x.ts" }
	if err := view.Select(file, locked); !errors.Is(err, data.ErrLocked) {
		t.Errorf("expected locked file to refuse selection, got %v", err)
	}

	if err := view.Select(file, func(string) bool { return false }); err != nil {
		t.Errorf("expected unlocked file selection to pass, got %v", err)
	}
}

func TestView_IsUnsaved(t *testing.T) {
	view := NewView(Options{Unsaved: map[string]bool{"/a/x.ts": true}}, nil)

	if !view.IsUnsaved("/a/x.ts") {
		t.Error("expected '/a/x.ts' to be marked unsaved")
	}
	if view.IsUnsaved("/a/y.ts") {
		t.Error("expected '/a/y.ts' to be clean")
	}
}
