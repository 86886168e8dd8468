package tether

import "github.com/zoobzio/capitan"

// Field keys for tether events.
var (
	// KeyPath is the file path involved in the event.
	KeyPath = capitan.NewStringKey("path")

	// KeyState is the current state of the Consumer.
	KeyState = capitan.NewStringKey("state")

	// KeyOldState is the previous state before a transition.
	KeyOldState = capitan.NewStringKey("old_state")

	// KeyNewState is the new state after a transition.
	KeyNewState = capitan.NewStringKey("new_state")

	// KeyError is the error message when an operation fails.
	KeyError = capitan.NewStringKey("error")

	// KeyValidity is "valid" or "invalid" for the record involved.
	KeyValidity = capitan.NewStringKey("validity")

	// KeyTimestamp is the record timestamp in milliseconds.
	KeyTimestamp = capitan.NewIntKey("timestamp")

	// KeyElapsed is how long an operation has been running.
	KeyElapsed = capitan.NewDurationKey("elapsed")

	// KeyPending is the number of records waiting in the write queue.
	KeyPending = capitan.NewIntKey("pending")
)

func validity(valid bool) string {
	if valid {
		return "valid"
	}
	return "invalid"
}
