package data

// NodeKind identifies the type of a rendered tree node.
type NodeKind int

const (
	NodeFile NodeKind = iota
	NodeFolder
)

func (k NodeKind) String() string {
	switch k {
	case NodeFile:
		return "file"
	case NodeFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// Node is one row of the flattened tree listing produced by the builder.
// ID is assigned by emission order and is only stable within a single
// build pass; it is not a durable identity for the underlying path.
type Node struct {
	ID       int
	Kind     NodeKind
	Name     string
	FullPath string
	Depth    int
}
