package tether

import "context"

// Op classifies a change notification.
type Op int

const (
	// OpChange means the record was written or created.
	OpChange Op = iota

	// OpRename means the record was renamed or removed. Editors and atomic
	// write tools do this; it never triggers a reload on its own.
	OpRename
)

// String returns the string representation of the op.
func (o Op) String() string {
	switch o {
	case OpChange:
		return "change"
	case OpRename:
		return "rename"
	default:
		return "unknown"
	}
}

// Event is a single change notification for the record file.
type Event struct {
	Op   Op
	Path string
}

// Watcher observes the record file for changes.
type Watcher interface {
	// Watch begins observing and returns a channel of change notifications.
	// The channel is closed when the context is canceled or an unrecoverable
	// error occurs.
	Watch(ctx context.Context) (<-chan Event, error)
}
