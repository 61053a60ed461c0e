package event

import "time"

// Type identifies the kind of event.
type Type int

const (
	ArchiveStarted Type = iota + 1
	ArchiveCompleted
	ArchiveFailed
	EntryEncoded
	EntryExtracted
	EntrySkipped
	EntryFailed
	DirCreated
	HardlinkCreated
	CloneCreated
	MetadataFailed
)

var typeNames = [...]string{
	ArchiveStarted:   "ArchiveStarted",
	ArchiveCompleted: "ArchiveCompleted",
	ArchiveFailed:    "ArchiveFailed",
	EntryEncoded:     "EntryEncoded",
	EntryExtracted:   "EntryExtracted",
	EntrySkipped:     "EntrySkipped",
	EntryFailed:      "EntryFailed",
	DirCreated:       "DirCreated",
	HardlinkCreated:  "HardlinkCreated",
	CloneCreated:     "CloneCreated",
	MetadataFailed:   "MetadataFailed",
}

func (t Type) String() string {
	if t > 0 && int(t) < len(typeNames) {
		return typeNames[t]
	}
	return "Unknown"
}

// Event represents a single progress event from the engine or pipeline.
type Event struct {
	Timestamp time.Time
	Error     error
	Archive   string // archive file the event belongs to
	Path      string // entry path inside the archive
	Size      int64  // payload bytes for entry events, archive bytes otherwise
	Type      Type
}

// Emit sends e on ch without blocking. A nil channel drops the event, as
// does a full one.
func Emit(ch chan<- Event, e Event) {
	if ch == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case ch <- e:
	default:
	}
}
