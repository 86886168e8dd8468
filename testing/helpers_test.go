package testing

import (
	"context"
	"testing"
	"time"

	"github.com/zoobzio/tether"
)

func TestWaitFor(t *testing.T) {
	t.Run("condition met immediately", func(t *testing.T) {
		result := WaitFor(t, 100*time.Millisecond, func() bool {
			return true
		})
		if !result {
			t.Error("expected WaitFor to return true")
		}
	})

	t.Run("condition never met", func(t *testing.T) {
		result := WaitFor(t, 50*time.Millisecond, func() bool {
			return false
		})
		if result {
			t.Error("expected WaitFor to return false")
		}
	})

	t.Run("condition met after delay", func(t *testing.T) {
		start := time.Now()
		result := WaitFor(t, 200*time.Millisecond, func() bool {
			return time.Since(start) > 30*time.Millisecond
		})
		if !result {
			t.Error("expected WaitFor to return true")
		}
	})
}

func TestDevRecord(t *testing.T) {
	rec := DevRecord(true, 7, map[string]string{"a.png": "b.png"})
	if err := rec.Validate(); err != nil {
		t.Fatalf("expected a valid record, got %v", err)
	}
	if !rec.IsDev() || rec.Timestamp != 7 {
		t.Errorf("unexpected record %+v", rec)
	}
	if DevRecord(false, 1, nil).Assets != nil {
		t.Error("expected nil mapping to leave assets unset")
	}
}

func TestNewTestConsumer(t *testing.T) {
	s := NewStore(t)
	WriteRecord(t, s, DevRecord(true, 1, map[string]string{"a.png": "one.png"}))

	c, events := NewTestConsumer(t, s)
	if err := c.LoadAssets(context.Background()); err != nil {
		t.Fatalf("LoadAssets failed: %v", err)
	}
	RequireState(t, c, tether.StateActive)
	RequireURL(t, c, "a.png", "/assets/one.png")

	WriteRecord(t, s, DevRecord(true, 2, map[string]string{"a.png": "two.png"}))
	events <- tether.Event{Op: tether.OpChange, Path: s.Path()}

	if !WaitFor(t, time.Second, func() bool {
		a, _ := c.Resolve("a.png", "")
		return a.URL == "/assets/two.png"
	}) {
		t.Fatal("expected reload after change event")
	}
	if !WaitForState(t, c, tether.StateActive, time.Second) {
		t.Errorf("expected active, got %s", c.State())
	}
}
