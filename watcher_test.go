package tether

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestChannelWatcher_ForwardsEvents(t *testing.T) {
	source := make(chan Event, 2)
	source <- Event{Op: OpChange, Path: "a"}
	source <- Event{Op: OpRename, Path: "a"}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	out, err := NewChannelWatcher(source).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	for _, want := range []Op{OpChange, OpRename} {
		select {
		case ev := <-out:
			if ev.Op != want {
				t.Errorf("expected %v, got %v", want, ev.Op)
			}
		case <-time.After(100 * time.Millisecond):
			t.Fatalf("timeout waiting for %v", want)
		}
	}
}

func TestChannelWatcher_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	out, err := NewChannelWatcher(make(chan Event)).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(100 * time.Millisecond):
		t.Error("timeout waiting for channel close")
	}
}

func nextEvent(t *testing.T, out <-chan Event) Event {
	t.Helper()
	select {
	case ev, ok := <-out:
		if !ok {
			t.Fatal("watcher closed unexpectedly")
		}
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timeout waiting for watch event")
	}
	return Event{}
}

func TestFileWatcher_ReportsWritesOnTarget(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, ConfigBaseName+".dev.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	// Writes to siblings are ignored.
	if err := os.WriteFile(filepath.Join(dir, "other.json"), []byte("{}"), 0o600); err != nil {
		t.Fatalf("failed to write sibling: %v", err)
	}
	if err := os.WriteFile(path, []byte(`{"valid":true}`), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ev := nextEvent(t, out)
	if ev.Op != OpChange {
		t.Errorf("expected OpChange, got %v", ev.Op)
	}
	if ev.Path != path {
		t.Errorf("expected path %q, got %q", path, ev.Path)
	}
}

func TestFileWatcher_ReportsRename(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	if err := os.WriteFile(path, []byte("{}"), 0o600); err != nil {
		t.Fatalf("failed to write file: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	out, err := NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := os.Rename(path, filepath.Join(dir, "moved.json")); err != nil {
		t.Fatalf("failed to rename: %v", err)
	}

	if ev := nextEvent(t, out); ev.Op != OpRename {
		t.Errorf("expected OpRename, got %v", ev.Op)
	}
}

func TestFileWatcher_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "missing", "config.json")
	if _, err := NewFileWatcher(path).Watch(context.Background()); err == nil {
		t.Error("expected error watching a missing directory")
	}
}

func TestFileWatcher_ClosesOnCancel(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")

	ctx, cancel := context.WithCancel(context.Background())
	out, err := NewFileWatcher(path).Watch(ctx)
	if err != nil {
		t.Fatalf("Watch() error = %v", err)
	}
	cancel()

	select {
	case _, ok := <-out:
		if ok {
			t.Error("expected channel to be closed")
		}
	case <-time.After(time.Second):
		t.Error("timeout waiting for channel close")
	}
}
