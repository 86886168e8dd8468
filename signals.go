package tether

import "github.com/zoobzio/capitan"

// Consumer lifecycle signals.
var (
	// ConsumerWaiting is emitted periodically while waiting for the record file.
	ConsumerWaiting = capitan.NewSignal(
		"tether.consumer.waiting",
		"Waiting for config record to be generated",
	)

	// ConsumerStateChanged is emitted when a Consumer transitions between states.
	ConsumerStateChanged = capitan.NewSignal(
		"tether.consumer.state.changed",
		"Consumer state transition",
	)

	// ConsumerFailed is emitted when startup reaches the terminal failed state.
	ConsumerFailed = capitan.NewSignal(
		"tether.consumer.failed",
		"Consumer startup failed",
	)

	// ConsumerDeactivated is emitted when a Consumer is torn down.
	ConsumerDeactivated = capitan.NewSignal(
		"tether.consumer.deactivated",
		"Consumer deactivated",
	)
)

// Record processing signals.
var (
	// RecordChangeReceived is emitted for each change notification from the watcher.
	RecordChangeReceived = capitan.NewSignal(
		"tether.record.change.received",
		"Record change notification received",
	)

	// RecordApplied is emitted when a record's asset mapping is installed.
	RecordApplied = capitan.NewSignal(
		"tether.record.applied",
		"Record asset mapping installed",
	)

	// RecordInvalid is emitted when a record announces a build in progress.
	RecordInvalid = capitan.NewSignal(
		"tether.record.invalid",
		"Record marked invalid, waiting for valid config",
	)

	// RecordSkipped is emitted when a reload is discarded as stale.
	RecordSkipped = capitan.NewSignal(
		"tether.record.skipped",
		"Reload skipped, timestamp did not advance",
	)

	// RecordLoadFailed is emitted when loading or parsing a record fails.
	RecordLoadFailed = capitan.NewSignal(
		"tether.record.load.failed",
		"Record load failed",
	)
)

// Producer signals.
var (
	// WriteScheduled is emitted when a record enters the debounce queue.
	WriteScheduled = capitan.NewSignal(
		"tether.producer.write.scheduled",
		"Record write scheduled",
	)

	// WriteSucceeded is emitted after a record is persisted.
	WriteSucceeded = capitan.NewSignal(
		"tether.producer.write.succeeded",
		"Record written",
	)

	// WriteFailed is emitted when persisting a record fails.
	WriteFailed = capitan.NewSignal(
		"tether.producer.write.failed",
		"Record write failed",
	)

	// LockStaleRemoved is emitted when an abandoned lock marker is cleared.
	LockStaleRemoved = capitan.NewSignal(
		"tether.lock.stale.removed",
		"Stale lock marker removed",
	)
)
