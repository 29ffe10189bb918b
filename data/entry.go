package data

// EntryKind identifies the type of entry mirrored at a path.
type EntryKind int

const (
	EntryFile   EntryKind = iota // Regular file
	EntryFolder                  // Directory
)

func (k EntryKind) String() string {
	switch k {
	case EntryFile:
		return "file"
	case EntryFolder:
		return "folder"
	default:
		return "unknown"
	}
}

// DirEntry is the mirrored state of a single path. A path that does not
// exist has no entry at all; absence is represented by removal from the
// map, never by a zero-valued entry.
type DirEntry struct {
	Kind EntryKind

	// Content holds the decoded text of a file. It is always empty for
	// folders and for files classified as binary.
	Content string

	// Binary reports whether the classification oracle flagged the file
	// payload as binary. Binary files are mirrored without content.
	Binary bool
}

// NewFileEntry creates an entry for a text file.
func NewFileEntry(content string) DirEntry {
	return DirEntry{Kind: EntryFile, Content: content}
}

// NewBinaryEntry creates an entry for a binary file. No content is kept.
func NewBinaryEntry() DirEntry {
	return DirEntry{Kind: EntryFile, Binary: true}
}

// NewFolderEntry creates an entry for a directory.
func NewFolderEntry() DirEntry {
	return DirEntry{Kind: EntryFolder}
}
