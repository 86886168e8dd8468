// Package testing provides test utilities for producers and consumers.
package testing

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/zoobzio/tether"
	"github.com/zoobzio/tether/lock"
)

// NewStore creates a store in a fresh temporary directory with a lock tuned
// for tests.
func NewStore(t *testing.T) *tether.Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), tether.ConfigFile(tether.Env{}))
	l := lock.New(tether.LockPathFor(path), &lock.Options{
		Wait:       3 * time.Second,
		Retries:    -1,
		PollPeriod: 5 * time.Millisecond,
		Stale:      time.Minute,
	})
	return tether.NewStore(path).Locker(l)
}

// DevRecord returns a dev record mapping each key to its value.
// A nil mapping leaves Assets unset.
func DevRecord(valid bool, timestamp int64, marked map[string]string) *tether.Record {
	rec := &tether.Record{
		SchemaVersion: tether.SchemaVersion,
		Valid:         valid,
		Timestamp:     timestamp,
		Output:        tether.Output{Path: "dist", PublicPath: "/assets/"},
		Dev:           &tether.DevServer{Enabled: true, SkipSetEnv: true},
	}
	if marked != nil {
		rec.Assets = &tether.Assets{}
		for k, v := range marked {
			rec.Assets.Mark(k, v)
		}
	}
	return rec
}

// WriteRecord writes rec through s and fails the test on error.
func WriteRecord(t *testing.T, s *tether.Store, rec *tether.Record) {
	t.Helper()
	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatalf("failed to write record: %v", err)
	}
}

// WaitFor polls a condition until it returns true or timeout is reached.
// Returns true if the condition was met, false if timeout occurred.
func WaitFor(t *testing.T, timeout time.Duration, condition func() bool) bool {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if condition() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return false
}

// WaitForState waits until the consumer reaches the expected state or timeout occurs.
func WaitForState(t *testing.T, c *tether.Consumer, expected tether.State, timeout time.Duration) bool {
	t.Helper()
	return WaitFor(t, timeout, func() bool {
		return c.State() == expected
	})
}

// RequireState fails the test immediately if the consumer is not in the expected state.
func RequireState(t *testing.T, c *tether.Consumer, expected tether.State) {
	t.Helper()
	if got := c.State(); got != expected {
		t.Fatalf("expected state %s, got %s", expected, got)
	}
}

// RequireURL fails the test unless request resolves to want.
func RequireURL(t *testing.T, c *tether.Consumer, request, want string) {
	t.Helper()
	a, ok := c.Resolve(request, "")
	if !ok {
		t.Fatalf("expected %s to resolve, got no mapping", request)
	}
	if a.URL != want {
		t.Fatalf("expected %s to resolve to %q, got %q", request, want, a.URL)
	}
}

// NewTestConsumer creates a consumer with short timings and a channel
// watcher. Returns the consumer and a channel for sending change events.
func NewTestConsumer(t *testing.T, s *tether.Store) (*tether.Consumer, chan<- tether.Event) {
	t.Helper()
	ch := make(chan tether.Event, 10)
	c := tether.NewConsumer(s).
		Watcher(tether.NewChannelWatcher(ch)).
		PollInterval(10 * time.Millisecond).
		ValidPollInterval(10 * time.Millisecond).
		ReloadDelay(10 * time.Millisecond).
		StartupTimeout(5 * time.Second)
	t.Cleanup(c.Deactivate)
	return c, ch
}
