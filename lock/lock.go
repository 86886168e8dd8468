// Package lock provides an advisory, file-existence based lock for coordinating
// reads and writes of a shared file across processes.
//
// A lock is held while a marker file exists at a well-known path. The marker is
// created atomically with O_CREATE|O_EXCL, so exactly one process wins a race.
// Markers older than the stale threshold are treated as abandoned by a crashed
// holder and removed.
//
// The lock is not reentrant: a process must not Acquire a lock it already holds.
package lock

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/zoobzio/clockz"
)

// Default option values.
const (
	DefaultWait       = 3 * time.Second
	DefaultRetries    = 5
	DefaultRetryWait  = 100 * time.Millisecond
	DefaultPollPeriod = 50 * time.Millisecond
	DefaultStale      = 10 * time.Second
)

// ErrAcquire is matched by every error returned when acquisition gives up.
var ErrAcquire = errors.New("unable to acquire lock")

// AcquireError describes a failed acquisition.
type AcquireError struct {
	Purpose  string
	Path     string
	Attempts int
	Waited   time.Duration
	Err      error
}

func (e *AcquireError) Error() string {
	msg := fmt.Sprintf("can't acquire lock for %s: %s (attempts=%d waited=%s)", e.Purpose, e.Path, e.Attempts, e.Waited)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

// Is reports ErrAcquire so callers can use errors.Is.
func (*AcquireError) Is(target error) bool {
	return target == ErrAcquire
}

func (e *AcquireError) Unwrap() error {
	return e.Err
}

// Options configures acquisition behavior. Zero values take defaults.
type Options struct {
	// Wait is how long a single round keeps polling an existing marker.
	Wait time.Duration

	// Retries is the number of extra rounds after the first one.
	// Negative disables retrying.
	Retries int

	// RetryWait is the pause between rounds.
	RetryWait time.Duration

	// PollPeriod is the interval between creation attempts within a round.
	PollPeriod time.Duration

	// Stale is the marker age after which it may be forcibly removed.
	Stale time.Duration
}

func (o *Options) withDefaults() Options {
	out := Options{}
	if o != nil {
		out = *o
	}
	if out.Wait == 0 {
		out.Wait = DefaultWait
	}
	if out.Retries == 0 {
		out.Retries = DefaultRetries
	}
	if out.Retries < 0 {
		out.Retries = 0
	}
	if out.RetryWait == 0 {
		out.RetryWait = DefaultRetryWait
	}
	if out.PollPeriod == 0 {
		out.PollPeriod = DefaultPollPeriod
	}
	if out.Stale == 0 {
		out.Stale = DefaultStale
	}
	return out
}

// holder is written into the marker for humans inspecting a stuck lock.
type holder struct {
	Token      string    `json:"holder"`
	PID        int       `json:"pid"`
	Purpose    string    `json:"purpose"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Lock is an advisory lock over a marker file.
type Lock struct {
	path    string
	opts    Options
	clock   clockz.Clock
	onStale func(path string, age time.Duration)

	mu    sync.Mutex
	token string
}

// New creates a lock over the marker at path.
func New(path string, opts *Options) *Lock {
	return &Lock{
		path:  path,
		opts:  opts.withDefaults(),
		clock: clockz.RealClock,
	}
}

// Clock sets the clock used for waiting and staleness checks.
func (l *Lock) Clock(clock clockz.Clock) *Lock {
	l.clock = clock
	return l
}

// OnStale registers a callback invoked whenever a stale marker is removed.
func (l *Lock) OnStale(fn func(path string, age time.Duration)) *Lock {
	l.onStale = fn
	return l
}

// Path returns the marker path.
func (l *Lock) Path() string {
	return l.path
}

// Options returns the effective options.
func (l *Lock) Options() Options {
	return l.opts
}

// Acquire creates the marker, waiting and retrying per the options.
// The purpose ("read" or "write") is carried in errors and in the marker.
func (l *Lock) Acquire(ctx context.Context, purpose string) error {
	start := l.clock.Now()
	attempts := 0

	for round := 0; round <= l.opts.Retries; round++ {
		if round > 0 {
			if err := sleep(ctx, l.clock, l.opts.RetryWait); err != nil {
				return l.fail(purpose, attempts, start, err)
			}
		}

		roundStart := l.clock.Now()
		for {
			attempts++
			err := l.tryCreate(purpose)
			if err == nil {
				return nil
			}
			if !os.IsExist(err) {
				return l.fail(purpose, attempts, start, err)
			}
			if l.removeIfStale() {
				continue
			}
			if l.clock.Since(roundStart) >= l.opts.Wait {
				break
			}
			if err := sleep(ctx, l.clock, l.opts.PollPeriod); err != nil {
				return l.fail(purpose, attempts, start, err)
			}
		}
	}

	return l.fail(purpose, attempts, start, nil)
}

// Release removes the marker if this instance still owns it. It never fails:
// a marker already removed by a stale sweep is not an error.
func (l *Lock) Release(_ string) {
	l.mu.Lock()
	token := l.token
	l.token = ""
	l.mu.Unlock()

	if token == "" {
		return
	}

	data, err := os.ReadFile(l.path)
	if err != nil {
		return
	}
	var h holder
	if json.Unmarshal(data, &h) == nil && h.Token != "" && h.Token != token {
		// Someone reclaimed our marker as stale and now holds it.
		return
	}
	_ = os.Remove(l.path)
}

// Locked reports whether a non-stale marker exists.
func (l *Lock) Locked() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		return false
	}
	return l.clock.Now().Sub(info.ModTime()) <= l.opts.Stale
}

// ForceUnlock removes the marker regardless of holder.
func ForceUnlock(path string) error {
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove lock %s: %w", path, err)
	}
	return nil
}

func (l *Lock) tryCreate(purpose string) error {
	if dir := filepath.Dir(l.path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return err
		}
	}

	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		return err
	}

	token := uuid.NewString()
	h := holder{
		Token:      token,
		PID:        os.Getpid(),
		Purpose:    purpose,
		AcquiredAt: l.clock.Now().UTC(),
	}
	if encoded, err := json.Marshal(h); err == nil {
		_, _ = f.Write(append(encoded, '\n'))
	}
	_ = f.Close()

	l.mu.Lock()
	l.token = token
	l.mu.Unlock()
	return nil
}

// removeIfStale deletes the marker when its age exceeds the stale threshold.
func (l *Lock) removeIfStale() bool {
	info, err := os.Stat(l.path)
	if err != nil {
		// Vanished between the failed create and now: try again right away.
		return os.IsNotExist(err)
	}
	age := l.clock.Now().Sub(info.ModTime())
	if age <= l.opts.Stale {
		return false
	}
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return false
	}
	if l.onStale != nil {
		l.onStale(l.path, age)
	}
	return true
}

func (l *Lock) fail(purpose string, attempts int, start time.Time, err error) error {
	return &AcquireError{
		Purpose:  purpose,
		Path:     l.path,
		Attempts: attempts,
		Waited:   l.clock.Since(start),
		Err:      err,
	}
}

func sleep(ctx context.Context, clock clockz.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}
