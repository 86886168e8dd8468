package tether

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
)

// Default writer timings.
const (
	DefaultWriteDebounce = 100 * time.Millisecond
	DefaultDrainDelay    = 10 * time.Millisecond
)

// Writer coalesces rapid record updates into a throttled stream of writes.
//
// The queue holds at most one record per validity, oldest first. Scheduling a
// record replaces any queued record with the same validity and restarts the
// quiet period. When the quiet period ends the oldest record is written; any
// remaining record follows after the much shorter drain delay.
type Writer struct {
	store      *Store
	debounce   time.Duration
	drainDelay time.Duration
	clock      clockz.Clock
	logger     *slog.Logger
	onWrite    func(*Record, error)

	mu      sync.Mutex
	queue   []*Record
	started bool
	kick    chan struct{}

	// writeMu keeps the loop and Flush from writing out of order.
	writeMu sync.Mutex
}

// NewWriter creates a Writer persisting through store.
func NewWriter(store *Store) *Writer {
	return &Writer{
		store:      store,
		debounce:   DefaultWriteDebounce,
		drainDelay: DefaultDrainDelay,
		clock:      clockz.RealClock,
		logger:     slog.Default(),
		kick:       make(chan struct{}, 1),
	}
}

// Debounce sets the quiet period before a write. Default: 100ms.
// Must be called before Start().
func (w *Writer) Debounce(d time.Duration) *Writer {
	w.debounce = d
	return w
}

// DrainDelay sets the pause between writes once draining has begun.
// Default: 10ms. Must be called before Start().
func (w *Writer) DrainDelay(d time.Duration) *Writer {
	w.drainDelay = d
	return w
}

// Clock sets a custom clock for time operations.
// Use this with clockz.FakeClock for deterministic debounce testing.
func (w *Writer) Clock(clock clockz.Clock) *Writer {
	w.clock = clock
	return w
}

// Logger sets the logger used to report write failures.
func (w *Writer) Logger(l *slog.Logger) *Writer {
	w.logger = l
	return w
}

// OnWrite sets a callback invoked after every write attempt.
func (w *Writer) OnWrite(fn func(*Record, error)) *Writer {
	w.onWrite = fn
	return w
}

// Start runs the write loop until ctx is canceled.
func (w *Writer) Start(ctx context.Context) error {
	w.mu.Lock()
	if w.started {
		w.mu.Unlock()
		return ErrAlreadyStarted
	}
	w.started = true
	pending := len(w.queue)
	w.mu.Unlock()

	if pending > 0 {
		w.signal()
	}
	go w.loop(ctx)
	return nil
}

// Schedule queues rec for writing. It never blocks.
func (w *Writer) Schedule(rec *Record) {
	rec = rec.Clone()

	w.mu.Lock()
	for i, queued := range w.queue {
		if queued.Valid == rec.Valid {
			w.queue = append(w.queue[:i], w.queue[i+1:]...)
			break
		}
	}
	w.queue = append(w.queue, rec)
	pending := len(w.queue)
	w.mu.Unlock()

	capitan.Emit(context.Background(), WriteScheduled,
		KeyValidity.Field(validity(rec.Valid)),
		KeyTimestamp.Field(int(rec.Timestamp)),
		KeyPending.Field(pending),
	)
	w.signal()
}

// Pending returns a snapshot of the queued records, oldest first.
func (w *Writer) Pending() []*Record {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := make([]*Record, len(w.queue))
	copy(out, w.queue)
	return out
}

// Flush writes everything queued right away, oldest first.
func (w *Writer) Flush(ctx context.Context) error {
	for {
		wrote, err := w.writeNext(ctx)
		if err != nil {
			return err
		}
		if !wrote {
			return nil
		}
	}
}

func (w *Writer) signal() {
	select {
	case w.kick <- struct{}{}:
	default:
	}
}

func (w *Writer) loop(ctx context.Context) {
	var timer clockz.Timer

	arm := func(d time.Duration) {
		if timer == nil {
			timer = w.clock.NewTimer(d)
			return
		}
		if !timer.Stop() {
			select {
			case <-timer.C():
			default:
			}
		}
		timer.Reset(d)
	}

	for {
		var timerC <-chan time.Time
		if timer != nil {
			timerC = timer.C()
		}

		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return

		case <-w.kick:
			arm(w.debounce)

		case <-timerC:
			wrote, err := w.writeNext(ctx)
			if wrote && err == nil && w.queued() > 0 {
				arm(w.drainDelay)
			}
		}
	}
}

func (w *Writer) queued() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return len(w.queue)
}

// writeNext pops and writes the oldest queued record. A failed write clears
// the queue so a broken path does not cause a storm of retries.
func (w *Writer) writeNext(ctx context.Context) (bool, error) {
	w.writeMu.Lock()
	defer w.writeMu.Unlock()

	w.mu.Lock()
	if len(w.queue) == 0 {
		w.mu.Unlock()
		return false, nil
	}
	rec := w.queue[0]
	w.queue = w.queue[1:]
	w.mu.Unlock()

	err := w.store.Write(ctx, rec)
	if err != nil {
		w.mu.Lock()
		w.queue = nil
		w.mu.Unlock()

		w.logger.Error("failed to write config", "path", w.store.Path(), "error", err)
		capitan.Emit(ctx, WriteFailed,
			KeyPath.Field(w.store.Path()),
			KeyError.Field(err.Error()),
		)
	} else {
		capitan.Emit(ctx, WriteSucceeded,
			KeyPath.Field(w.store.Path()),
			KeyValidity.Field(validity(rec.Valid)),
			KeyTimestamp.Field(int(rec.Timestamp)),
		)
	}
	if w.onWrite != nil {
		w.onWrite(rec, err)
	}
	return true, err
}
