package tether

import (
	"errors"
	"fmt"
)

var (
	// ErrConfigNotFound means the record file does not exist (yet).
	ErrConfigNotFound = errors.New("config not found")

	// ErrBadJSON means the record or its assets file could not be parsed.
	ErrBadJSON = errors.New("bad config json")

	// ErrVersionMismatch is matched by *VersionMismatchError.
	ErrVersionMismatch = errors.New("schema version mismatch")

	// ErrWaitingForValid means the record announces a build in progress.
	// It is returned to callers only when no watcher is running to pick up
	// the valid record later.
	ErrWaitingForValid = errors.New("waiting for valid config")

	// ErrInvalidRecord means the record violates a structural invariant.
	ErrInvalidRecord = errors.New("invalid config record")

	// ErrAlreadyStarted is returned when LoadAssets is called on an active consumer.
	ErrAlreadyStarted = errors.New("consumer already started")
)

// VersionMismatchError reports a record written by an incompatible version.
type VersionMismatchError struct {
	Got  string
	Want string
}

func (e *VersionMismatchError) Error() string {
	return fmt.Sprintf("schema version mismatch: record has %q, expected %q", e.Got, e.Want)
}

// Is reports ErrVersionMismatch.
func (*VersionMismatchError) Is(target error) bool {
	return target == ErrVersionMismatch
}
