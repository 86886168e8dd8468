package tether

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/zoobzio/tether/lock"
)

func TestStore_LoadNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrConfigNotFound) {
		t.Fatalf("expected ErrConfigNotFound, got %v", err)
	}
	if !strings.Contains(err.Error(), s.Path()) {
		t.Errorf("expected error to name the path, got %v", err)
	}
}

func TestStore_WriteLoadDev(t *testing.T) {
	s := newTestStore(t)
	rec := devRecord(true, 1000, map[string]string{"a.png": "hash1.png"})

	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if s.Lock().Locked() {
		t.Error("expected lock released after write")
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Timestamp != 1000 || !got.Valid {
		t.Errorf("unexpected record: %+v", got)
	}
	if v := markedString(t, got, "a.png"); v != "hash1.png" {
		t.Errorf("expected hash1.png, got %q", v)
	}
	if s.Lock().Locked() {
		t.Error("expected lock released after load")
	}
}

// Scenario D.
func TestStore_VersionMismatch(t *testing.T) {
	s := newTestStore(t)
	rec := devRecord(true, 1000, map[string]string{"a.png": "hash1.png"})
	rec.SchemaVersion = "0.9.0"
	writeRaw(t, s.Path(), rec)

	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
	var vErr *VersionMismatchError
	if !errors.As(err, &vErr) {
		t.Fatalf("expected *VersionMismatchError, got %T", err)
	}
	for _, v := range []string{"0.9.0", "1.0.0"} {
		if !strings.Contains(err.Error(), v) {
			t.Errorf("expected %q in %q", v, err.Error())
		}
	}
}

func TestStore_CustomSchemaVersion(t *testing.T) {
	s := newTestStore(t).SchemaVersion("2.0.0")
	writeRaw(t, s.Path(), devRecord(true, 1, map[string]string{}))

	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrVersionMismatch) {
		t.Fatalf("expected ErrVersionMismatch, got %v", err)
	}
}

func TestStore_BadJSON(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(s.Path(), []byte(`{"version": "1.0.0",`), 0o600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}

	_, err := s.Load(context.Background())
	if !errors.Is(err, ErrBadJSON) {
		t.Fatalf("expected ErrBadJSON, got %v", err)
	}
	if s.Lock().Locked() {
		t.Error("expected lock released after parse failure")
	}
}

func TestStore_WaitsForWriter(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s.Path(), devRecord(true, 1, map[string]string{}))

	holder := lock.New(s.Lock().Path(), nil)
	if err := holder.Acquire(context.Background(), "write"); err != nil {
		t.Fatalf("Acquire failed: %v", err)
	}
	go func() {
		time.Sleep(50 * time.Millisecond)
		holder.Release("write")
	}()

	start := time.Now()
	if _, err := s.Load(context.Background()); err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if time.Since(start) < 40*time.Millisecond {
		t.Error("expected load to wait for the writer's lock")
	}
}

func TestStore_LockFailureSurfaces(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s.Path(), devRecord(true, 1, map[string]string{}))
	s.Locker(lock.New(s.Lock().Path(), &lock.Options{
		Wait:       20 * time.Millisecond,
		Retries:    -1,
		PollPeriod: 5 * time.Millisecond,
		Stale:      time.Minute,
	}))

	if err := os.WriteFile(s.Lock().Path(), nil, 0o600); err != nil {
		t.Fatalf("failed to create marker: %v", err)
	}

	_, err := s.Load(context.Background())
	if !errors.Is(err, lock.ErrAcquire) {
		t.Fatalf("expected lock.ErrAcquire, got %v", err)
	}
	if !strings.Contains(err.Error(), "read") {
		t.Errorf("expected purpose in error, got %v", err)
	}
}

func TestStore_NonDevSplitsAssets(t *testing.T) {
	s := newTestStore(t)
	rec := &Record{
		SchemaVersion: SchemaVersion,
		Valid:         true,
		Timestamp:     5,
		Output:        Output{Path: "dist", PublicPath: "/static/"},
		Assets:        &Assets{},
	}
	rec.Assets.Mark("img/logo.png", "logo.abc.png")

	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	if rec.AssetsFile != "" || rec.Assets == nil {
		t.Error("Write must not modify the caller's record")
	}

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("failed to read record: %v", err)
	}
	if bytes.Contains(raw, []byte("logo.abc.png")) {
		t.Errorf("expected assets split out of the record, got %s", raw)
	}
	if !bytes.Contains(raw, []byte(`"assetsFile": "dist/tether-assets.json"`)) {
		t.Errorf("expected assets file reference, got %s", raw)
	}
	if _, err := os.Stat(filepath.Join(s.Dir(), "dist", DefaultAssetsFile)); err != nil {
		t.Fatalf("expected assets file: %v", err)
	}

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v := markedString(t, got, "img/logo.png"); v != "logo.abc.png" {
		t.Errorf("expected logo.abc.png, got %q", v)
	}
}

func TestStore_MissingAssetsFile(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s.Path(), &Record{
		SchemaVersion: SchemaVersion,
		Valid:         true,
		AssetsFile:    "dist/missing.json",
	})

	_, err := s.Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "missing.json") {
		t.Fatalf("expected assets file error, got %v", err)
	}
}

func TestStore_BadAssetsFile(t *testing.T) {
	s := newTestStore(t)
	if err := os.WriteFile(filepath.Join(s.Dir(), "assets.json"), []byte("nope"), 0o600); err != nil {
		t.Fatalf("failed to write: %v", err)
	}
	writeRaw(t, s.Path(), &Record{SchemaVersion: SchemaVersion, Valid: true, AssetsFile: "assets.json"})

	if _, err := s.Load(context.Background()); !errors.Is(err, ErrBadJSON) {
		t.Fatalf("expected ErrBadJSON, got %v", err)
	}
}

func TestStore_DevIgnoresAssetsFile(t *testing.T) {
	s := newTestStore(t)
	rec := devRecord(true, 1, map[string]string{"a.png": "mem.png"})
	rec.AssetsFile = "dist/does-not-exist.json"
	writeRaw(t, s.Path(), rec)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if v := markedString(t, got, "a.png"); v != "mem.png" {
		t.Errorf("expected embedded assets, got %q", v)
	}
}

func TestStore_Overrides(t *testing.T) {
	publicPath := "https://cdn.example.com/"
	devURL := "http://localhost:9000"
	addURL := true

	s := newTestStore(t).Overrides(Overrides{
		PublicPath: &publicPath,
		DevURL:     &devURL,
		AddDevURL:  &addURL,
	})
	rec := devRecord(true, 42, map[string]string{"a.png": "a.1.png"})
	writeRaw(t, s.Path(), rec)

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if got.Output.PublicPath != publicPath {
		t.Errorf("expected public path override, got %q", got.Output.PublicPath)
	}
	if got.Dev.URL != devURL || !got.Dev.AddURL {
		t.Errorf("expected dev overrides, got %+v", got.Dev)
	}
	if got.Timestamp != 42 || got.Output.Path != "dist" {
		t.Errorf("structural fields must come from the record: %+v", got)
	}
	// SkipSetEnv was not overridden.
	if !got.Dev.SkipSetEnv {
		t.Error("expected unset override to leave the record alone")
	}
}

func TestStore_OverridesIgnoreDevFieldsOnNonDev(t *testing.T) {
	devURL := "http://localhost:9000"
	s := newTestStore(t).Overrides(Overrides{DevURL: &devURL})

	if err := os.WriteFile(filepath.Join(s.Dir(), "a.json"), []byte(`{"marked": {}}`), 0o600); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	got, err := s.Accept(context.Background(), &Record{SchemaVersion: SchemaVersion, Valid: true, AssetsFile: "a.json"})
	if err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if got.Dev != nil {
		t.Errorf("expected no dev server on a non-dev record, got %+v", got.Dev)
	}
}

func TestStore_AcceptDoesNotModifyInput(t *testing.T) {
	pub := "/x/"
	s := newTestStore(t).Overrides(Overrides{PublicPath: &pub})
	in := devRecord(true, 1, map[string]string{})

	if _, err := s.Accept(context.Background(), in); err != nil {
		t.Fatalf("Accept failed: %v", err)
	}
	if in.Output.PublicPath != "/assets/" {
		t.Errorf("input modified: %q", in.Output.PublicPath)
	}
}

// Concurrent writers never interleave bytes in the record.
func TestStore_ConcurrentWritesProduceOneRecord(t *testing.T) {
	s := newTestStore(t)

	bigA := map[string]string{}
	bigB := map[string]string{}
	for i := 0; i < 500; i++ {
		k := filepath.ToSlash(filepath.Join("img", strings.Repeat("x", i%40), "file.png"))
		bigA[k+string(rune('a'+i%26))] = "aaaaaaaa.png"
		bigB[k+string(rune('a'+i%26))] = "bbbbbbbb.png"
	}
	recA := devRecord(true, 1, bigA)
	recB := devRecord(true, 2, bigB)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			if err := s.Write(context.Background(), recA); err != nil {
				t.Errorf("write A failed: %v", err)
			}
		}()
		go func() {
			defer wg.Done()
			if err := s.Write(context.Background(), recB); err != nil {
				t.Errorf("write B failed: %v", err)
			}
		}()
	}
	wg.Wait()

	raw, err := os.ReadFile(s.Path())
	if err != nil {
		t.Fatalf("failed to read: %v", err)
	}
	wantA, _ := JSONCodec{}.Marshal(recA) //nolint:errcheck // records always encode
	wantB, _ := JSONCodec{}.Marshal(recB) //nolint:errcheck // records always encode
	if !bytes.Equal(raw, wantA) && !bytes.Equal(raw, wantB) {
		t.Errorf("persisted record matches neither writer (%d bytes)", len(raw))
	}
}

func TestStore_Remove(t *testing.T) {
	s := newTestStore(t)
	writeRaw(t, s.Path(), devRecord(true, 1, nil))
	if !s.Exists() {
		t.Fatal("expected record to exist")
	}
	if err := s.Remove(); err != nil {
		t.Fatalf("Remove failed: %v", err)
	}
	if s.Exists() {
		t.Error("expected record removed")
	}
	if err := s.Remove(); err != nil {
		t.Errorf("expected removing a missing record to succeed, got %v", err)
	}
}

func TestLockPathFor(t *testing.T) {
	if got := LockPathFor("/a/.tether-config.dev.json"); got != "/a/.tether-config.dev.lock" {
		t.Errorf("unexpected lock path %q", got)
	}
}

// hookCodec runs hook once, right after the first record is decoded.
type hookCodec struct {
	JSONCodec
	once sync.Once
	hook func()
}

func (c *hookCodec) Unmarshal(data []byte, v any) error {
	err := c.JSONCodec.Unmarshal(data, v)
	if _, ok := v.(*Record); ok {
		c.once.Do(c.hook)
	}
	return err
}

// A writer that grabs the lock between the record read and the assets read
// must not be observed half way through.
func TestStore_LoadReadsAssetsUnderLock(t *testing.T) {
	s := newTestStore(t)
	rec := &Record{
		SchemaVersion: SchemaVersion,
		Valid:         true,
		Timestamp:     1,
		Output:        Output{Path: "dist", PublicPath: "/"},
		Assets:        &Assets{},
	}
	rec.Assets.Mark("a.png", "a.1.png")
	if err := s.Write(context.Background(), rec); err != nil {
		t.Fatalf("Write failed: %v", err)
	}
	assetsPath := filepath.Join(s.Dir(), "dist", DefaultAssetsFile)

	writer := lock.New(LockPathFor(s.Path()), &lock.Options{
		Wait:       3 * time.Second,
		Retries:    -1,
		PollPeriod: 5 * time.Millisecond,
		Stale:      time.Minute,
	})
	written := make(chan error, 1)
	s.Codec(&hookCodec{hook: func() {
		go func() {
			if err := writer.Acquire(context.Background(), "write"); err != nil {
				written <- err
				return
			}
			defer writer.Release("write")
			written <- os.WriteFile(assetsPath, []byte(`{"marked": {"a.p`), 0o600)
		}()
		// Give the writer every chance to slip in.
		time.Sleep(100 * time.Millisecond)
	}})

	got, err := s.Load(context.Background())
	if err != nil {
		t.Fatalf("Load observed a write in progress: %v", err)
	}
	if v := markedString(t, got, "a.png"); v != "a.1.png" {
		t.Errorf("expected a.1.png, got %q", v)
	}
	if err := <-written; err != nil {
		t.Fatalf("concurrent writer failed: %v", err)
	}
}
