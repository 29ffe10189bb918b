package tree

import (
	"sort"
	"strings"

	"github.com/mwantia/mirrorfs/data"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Options configures a build pass and the view model layered on top.
type Options struct {
	// RootFolder scopes the tree; only entries at or below it appear.
	// Defaults to "/".
	RootFolder string

	// HideRoot drops the root node itself from the listing.
	HideRoot bool

	// HiddenPatterns are merged with DefaultHiddenPatterns.
	HiddenPatterns []Pattern

	// CollapsedFolders is the externally imposed collapse list. While
	// non-empty it is authoritative over user toggles.
	CollapsedFolders []string

	// AllowFolderSelection permits selecting folder nodes.
	AllowFolderSelection bool

	// Unsaved marks paths rendered with an unsaved indicator.
	Unsaved map[string]bool
}

// Build flattens a path-keyed entry map into an ordered, depth-annotated
// node list. It is a pure function of its inputs: map keys are walked in
// sorted order, so identical inputs produce identical output.
//
// Each entry's path is walked segment by segment, emitting a folder node
// the first time a prefix is reached and a file node at the final segment
// of file entries. Depth counts the in-scope segments walked, offset by
// one when a synthetic root node is seeded. The final ordering is a
// depth-first traversal with folders before files among siblings, names
// compared with locale-aware ordering within each kind.
func Build(files map[string]data.DirEntry, opts Options) []data.Node {
	root := cleanRoot(opts.RootFolder)

	patterns := make([]Pattern, 0, len(DefaultHiddenPatterns)+len(opts.HiddenPatterns))
	patterns = append(patterns, DefaultHiddenPatterns...)
	patterns = append(patterns, opts.HiddenPatterns...)

	var list []data.Node
	defaultDepth := 0

	if root == "/" && !opts.HideRoot {
		list = append(list, data.Node{
			ID:       0,
			Kind:     data.NodeFolder,
			Name:     "/",
			FullPath: "/",
			Depth:    0,
		})
		defaultDepth = 1
	}

	paths := make([]string, 0, len(files))
	for path := range files {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	seen := make(map[string]bool)

	for _, path := range paths {
		entry := files[path]

		abs, err := data.ToAbsolutePath(path)
		if err != nil {
			continue
		}

		segments := data.Split(abs)
		if len(segments) == 0 {
			continue
		}

		if isHidden(abs, segments[len(segments)-1], patterns) {
			continue
		}

		current := ""
		depth := 0
		for i, segment := range segments {
			current += "/" + segment

			// Out-of-scope prefixes consume no depth
			if !data.HasPrefix(current, root) || (opts.HideRoot && current == root) {
				continue
			}

			if i == len(segments)-1 && entry.Kind == data.EntryFile {
				list = append(list, data.Node{
					ID:       len(list),
					Kind:     data.NodeFile,
					Name:     segment,
					FullPath: current,
					Depth:    depth + defaultDepth,
				})
			} else if !seen[current] {
				seen[current] = true
				list = append(list, data.Node{
					ID:       len(list),
					Kind:     data.NodeFolder,
					Name:     segment,
					FullPath: current,
					Depth:    depth + defaultDepth,
				})
			}

			depth++
		}
	}

	return sortTree(list)
}

// sortTree orders the flat node list so that every parent precedes its
// children, with folders before files and locale-aware name ordering
// among siblings. Node ids keep their emission-order values.
func sortTree(nodes []data.Node) []data.Node {
	if len(nodes) == 0 {
		return nodes
	}

	collator := collate.New(language.English)
	less := func(a, b data.Node) bool {
		if a.Kind != b.Kind {
			return a.Kind == data.NodeFolder
		}
		return collator.CompareString(a.Name, b.Name) < 0
	}
	sortSiblings := func(siblings []data.Node) {
		sort.SliceStable(siblings, func(i, j int) bool {
			return less(siblings[i], siblings[j])
		})
	}

	byPath := make(map[string]bool, len(nodes))
	for _, node := range nodes {
		byPath[node.FullPath] = true
	}

	children := make(map[string][]data.Node)
	var roots []data.Node
	for _, node := range nodes {
		parent := parentPath(node.FullPath)
		if parent != node.FullPath && byPath[parent] {
			children[parent] = append(children[parent], node)
		} else {
			roots = append(roots, node)
		}
	}

	sorted := make([]data.Node, 0, len(nodes))
	var walk func(node data.Node)
	walk = func(node data.Node) {
		sorted = append(sorted, node)

		siblings := children[node.FullPath]
		sortSiblings(siblings)
		for _, child := range siblings {
			walk(child)
		}
	}

	sortSiblings(roots)
	for _, root := range roots {
		walk(root)
	}

	return sorted
}

func parentPath(path string) string {
	idx := strings.LastIndex(path, "/")
	if idx <= 0 {
		if path == "/" {
			return ""
		}
		return "/"
	}

	return path[:idx]
}

func cleanRoot(root string) string {
	if root == "" {
		return "/"
	}

	abs, err := data.ToAbsolutePath(root)
	if err != nil {
		return "/"
	}

	if abs != "/" {
		abs = strings.TrimSuffix(abs, "/")
	}

	return abs
}
