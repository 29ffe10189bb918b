package data

// WatchEventKind identifies a filesystem change reported by a sandbox
// watch feed.
type WatchEventKind int

const (
	EventAddDir     WatchEventKind = iota // Directory created
	EventRemoveDir                        // Directory removed, cascades
	EventAddFile                          // File created
	EventChangeFile                       // File content changed
	EventRemoveFile                       // File removed
	EventUpdateDir                        // Directory touched, no state change
)

func (k WatchEventKind) String() string {
	switch k {
	case EventAddDir:
		return "add_dir"
	case EventRemoveDir:
		return "remove_dir"
	case EventAddFile:
		return "add_file"
	case EventChangeFile:
		return "change_file"
	case EventRemoveFile:
		return "remove_file"
	case EventUpdateDir:
		return "update_dir"
	default:
		return "unknown"
	}
}

// WatchEvent is a single filesystem change notification. Path is absolute.
// Payload carries the raw file bytes for file events and is nil for
// directory events.
type WatchEvent struct {
	Kind    WatchEventKind
	Path    string
	Payload []byte
}
