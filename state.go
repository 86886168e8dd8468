package tether

// State represents the current state of a Consumer.
type State int32

const (
	// StateIdle indicates the Consumer has not been started or was deactivated.
	StateIdle State = iota

	// StateWaitingForFile indicates startup is polling for the record file.
	StateWaitingForFile

	// StateLoading indicates the record is being read.
	StateLoading

	// StateValidating indicates the record is being checked and its assets resolved.
	StateValidating

	// StateWaitingForValid indicates the record announced a build in progress.
	StateWaitingForValid

	// StateReady indicates a valid record was installed and the watcher is starting.
	StateReady

	// StateActive indicates a mapping is installed and changes are being watched.
	StateActive

	// StateReloading indicates a change notification is being processed.
	StateReloading

	// StateFailed indicates startup failed terminally.
	StateFailed
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWaitingForFile:
		return "waiting_for_file"
	case StateLoading:
		return "loading"
	case StateValidating:
		return "validating"
	case StateWaitingForValid:
		return "waiting_for_valid"
	case StateReady:
		return "ready"
	case StateActive:
		return "active"
	case StateReloading:
		return "reloading"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}
