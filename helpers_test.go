package tether

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/tether/lock"
)

// newTestStore returns a store in a temp dir with a fast lock.
func newTestStore(t *testing.T) *Store {
	t.Helper()
	path := filepath.Join(t.TempDir(), ConfigFile(Env{}))
	return NewStore(path).Locker(lock.New(LockPathFor(path), &lock.Options{
		Wait:       3 * time.Second,
		Retries:    -1,
		PollPeriod: 5 * time.Millisecond,
		Stale:      time.Minute,
	}))
}

func devRecord(valid bool, ts int64, marked map[string]string) *Record {
	rec := &Record{
		SchemaVersion: SchemaVersion,
		Valid:         valid,
		Timestamp:     ts,
		Output:        Output{Path: "dist", PublicPath: "/assets/"},
		Dev:           &DevServer{Enabled: true, SkipSetEnv: true},
	}
	if marked != nil {
		rec.Assets = &Assets{}
		for k, v := range marked {
			rec.Assets.Mark(k, v)
		}
	}
	return rec
}

// writeRaw writes v as JSON straight to path, bypassing the store.
func writeRaw(t *testing.T, path string, v any) {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("failed to encode: %v", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("failed to write %s: %v", path, err)
	}
}

func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before timeout")
}

func markedString(t *testing.T, rec *Record, key string) string {
	t.Helper()
	if rec == nil || rec.Assets == nil {
		t.Fatalf("record has no assets")
	}
	var s string
	if err := json.Unmarshal(rec.Assets.Marked[key], &s); err != nil {
		t.Fatalf("marked %s is not a string: %v", key, err)
	}
	return s
}

// syncBuffer is a goroutine-safe log sink.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
