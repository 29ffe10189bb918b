package tree

import (
	"github.com/mwantia/mirrorfs/data"
)

// View derives the visible subset of a built node list from the set of
// collapsed folders. The collapsed set is seeded from an externally
// supplied list and reconciled against it on every pass: a non-empty
// external list is authoritative and replaces user toggles, otherwise
// toggles are preserved with stale entries pruned.
type View struct {
	opts      Options
	collapsed map[string]bool
}

// NewView creates a view seeded from opts.CollapsedFolders, filtered to
// folders present in nodes.
func NewView(opts Options, nodes []data.Node) *View {
	v := &View{
		opts:      opts,
		collapsed: make(map[string]bool),
	}

	folders := folderSet(nodes)
	for _, path := range opts.CollapsedFolders {
		if folders[path] {
			v.collapsed[path] = true
		}
	}

	return v
}

// Reconcile re-evaluates the collapsed set against the externally
// supplied list and the folders currently present. The update is skipped
// entirely when the recomputed set equals the current one, so no
// downstream churn happens for a no-op pass.
func (v *View) Reconcile(external []string, nodes []data.Node) {
	folders := folderSet(nodes)

	next := make(map[string]bool)
	if len(external) > 0 {
		// External list is authoritative, user toggles are replaced
		for _, path := range external {
			if folders[path] {
				next[path] = true
			}
		}
	} else {
		// Keep user toggles, prune folders that no longer exist
		for path := range v.collapsed {
			if folders[path] {
				next[path] = true
			}
		}
	}

	if setsEqual(v.collapsed, next) {
		return
	}

	v.collapsed = next
}

// Toggle flips the collapsed state of one folder path. In external-list
// mode the next reconciliation pass overwrites the toggle if the list
// still disagrees.
func (v *View) Toggle(path string) {
	if v.collapsed[path] {
		delete(v.collapsed, path)
	} else {
		v.collapsed[path] = true
	}
}

// IsCollapsed reports whether the folder at path is collapsed.
func (v *View) IsCollapsed(path string) bool {
	return v.collapsed[path]
}

// CollapsedFolders returns a copy of the current collapsed set;
// mutating the result does not affect the view.
func (v *View) CollapsedFolders() []string {
	paths := make([]string, 0, len(v.collapsed))
	for path := range v.collapsed {
		paths = append(paths, path)
	}

	return paths
}

// Visible filters the ordered node list down to what should render.
// Entering a collapsed folder marks its depth as the suppression
// threshold; every subsequent deeper node is dropped, and reaching a node
// back at the threshold depth clears it. Collapsing a folder therefore
// hides its entire subtree while siblings at the same or shallower depth
// stay visible.
func (v *View) Visible(nodes []data.Node) []data.Node {
	visible := make([]data.Node, 0, len(nodes))

	hiddenDepth := -1
	for _, node := range nodes {
		if hiddenDepth >= 0 {
			if node.Depth > hiddenDepth {
				continue
			}
			hiddenDepth = -1
		}

		visible = append(visible, node)

		if node.Kind == data.NodeFolder && v.collapsed[node.FullPath] {
			hiddenDepth = node.Depth
		}
	}

	return visible
}

// Select validates a selection attempt against the view configuration
// and the store's lock table. Folder selection requires the
// AllowFolderSelection flag; locked files refuse navigation.
func (v *View) Select(node data.Node, locked func(string) bool) error {
	if node.Kind == data.NodeFolder {
		if !v.opts.AllowFolderSelection {
			return data.ErrIsDirectory
		}
		return nil
	}

	if locked != nil && locked(node.FullPath) {
		return data.ErrLocked
	}

	return nil
}

// IsUnsaved reports whether path carries the unsaved display marker.
func (v *View) IsUnsaved(path string) bool {
	return v.opts.Unsaved[path]
}

func folderSet(nodes []data.Node) map[string]bool {
	folders := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		if node.Kind == data.NodeFolder {
			folders[node.FullPath] = true
		}
	}

	return folders
}

func setsEqual(a, b map[string]bool) bool {
	if len(a) != len(b) {
		return false
	}

	for key := range a {
		if !b[key] {
			return false
		}
	}

	return true
}
