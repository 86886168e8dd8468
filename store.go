package tether

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/tether/lock"
)

// Overrides are caller-supplied values laid over every loaded record.
//
// Only the fields below can be overridden. Structural fields (version,
// validity, timestamp, paths, assets) always come from the record. A nil
// field leaves the record value alone.
type Overrides struct {
	PublicPath *string `json:"publicPath,omitempty" yaml:"publicPath,omitempty"`
	DevURL     *string `json:"devUrl,omitempty" yaml:"devUrl,omitempty"`
	AddDevURL  *bool   `json:"addDevUrl,omitempty" yaml:"addDevUrl,omitempty"`
	SkipSetEnv *bool   `json:"skipSetEnv,omitempty" yaml:"skipSetEnv,omitempty"`
}

// apply reconciles o onto rec field by field.
func (o Overrides) apply(rec *Record) {
	if o.PublicPath != nil {
		rec.Output.PublicPath = *o.PublicPath
	}
	// Dev server settings only mean something on a dev record.
	if rec.Dev == nil {
		return
	}
	if o.DevURL != nil {
		rec.Dev.URL = *o.DevURL
	}
	if o.AddDevURL != nil {
		rec.Dev.AddURL = *o.AddDevURL
	}
	if o.SkipSetEnv != nil {
		rec.Dev.SkipSetEnv = *o.SkipSetEnv
	}
}

// Store reads and writes the record file under the advisory lock.
type Store struct {
	path      string
	root      string
	locker    *lock.Lock
	version   string
	overrides Overrides
	codec     Codec
}

// NewStore creates a store for the record file at path. The root defaults to
// the directory holding the record, and the lock marker sits next to it.
func NewStore(path string) *Store {
	s := &Store{
		path:    path,
		root:    filepath.Dir(path),
		version: SchemaVersion,
		codec:   JSONCodec{},
	}
	s.locker = lock.New(LockPathFor(path), nil).OnStale(s.staleRemoved)
	return s
}

// LockPathFor returns the lock marker path paired with a record path.
func LockPathFor(recordPath string) string {
	return strings.TrimSuffix(recordPath, filepath.Ext(recordPath)) + ".lock"
}

// Root sets the directory that relative record paths are resolved against.
func (s *Store) Root(dir string) *Store {
	s.root = dir
	return s
}

// Locker replaces the lock guarding reads and writes.
func (s *Store) Locker(l *lock.Lock) *Store {
	s.locker = l
	return s
}

// SchemaVersion sets the version a record must carry to load.
// Default: SchemaVersion.
func (s *Store) SchemaVersion(v string) *Store {
	s.version = v
	return s
}

// Overrides sets the fields laid over every loaded record.
func (s *Store) Overrides(o Overrides) *Store {
	s.overrides = o
	return s
}

// Codec sets the codec for the record and assets files. Default: JSONCodec.
func (s *Store) Codec(c Codec) *Store {
	s.codec = c
	return s
}

// Path returns the record file path.
func (s *Store) Path() string {
	return s.path
}

// Dir returns the root directory.
func (s *Store) Dir() string {
	return s.root
}

// Lock returns the lock guarding the record.
func (s *Store) Lock() *lock.Lock {
	return s.locker
}

// Exists reports whether the record file is present.
func (s *Store) Exists() bool {
	_, err := os.Stat(s.path)
	return err == nil
}

// Load reads and parses the record. The record and, for non-dev records,
// its assets file are read during one lock hold so a write in progress is
// never observed.
func (s *Store) Load(ctx context.Context) (*Record, error) {
	if _, err := os.Stat(s.path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to stat config %s: %w", s.path, err)
	}

	if err := s.locker.Acquire(ctx, "read"); err != nil {
		return nil, err
	}
	defer s.locker.Release("read")

	data, err := os.ReadFile(s.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrConfigNotFound, s.path)
		}
		return nil, fmt.Errorf("failed to read config %s: %w", s.path, err)
	}
	return s.Parse(data)
}

// Parse decodes raw record bytes, applies overrides, checks the schema
// version and resolves the asset mapping. For non-dev records the mapping is
// read from the assets file named by the record; Parse does not take the
// lock itself.
func (s *Store) Parse(data []byte) (*Record, error) {
	var rec Record
	if err := s.codec.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadJSON, s.path, err)
	}
	return s.accept(&rec)
}

// Accept runs an already decoded record, such as one received on the event
// channel, through the same overrides, version gate and asset resolution as
// Parse. A non-dev record's assets file is read under the lock. rec is not
// modified.
func (s *Store) Accept(ctx context.Context, rec *Record) (*Record, error) {
	if rec.IsDev() {
		return s.accept(rec.Clone())
	}
	if err := s.locker.Acquire(ctx, "read"); err != nil {
		return nil, err
	}
	defer s.locker.Release("read")
	return s.accept(rec.Clone())
}

func (s *Store) accept(rec *Record) (*Record, error) {
	s.overrides.apply(rec)

	if rec.SchemaVersion != s.version {
		return nil, &VersionMismatchError{Got: rec.SchemaVersion, Want: s.version}
	}
	if err := rec.Validate(); err != nil {
		return nil, err
	}

	if !rec.IsDev() {
		assets, err := s.readAssets(rec.AssetsFile)
		if err != nil {
			return nil, err
		}
		rec.Assets = assets
	}
	return rec, nil
}

func (s *Store) readAssets(ref string) (*Assets, error) {
	p := absPath(s.root, ref)
	data, err := os.ReadFile(p)
	if err != nil {
		return nil, fmt.Errorf("failed to read assets file %s: %w", p, err)
	}
	var assets Assets
	if err := s.codec.Unmarshal(data, &assets); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrBadJSON, p, err)
	}
	return &assets, nil
}

// Write persists rec under the lock. A non-dev record carrying embedded
// assets has them split out into its assets file first. The record file is
// rewritten in place so watchers observe a write on the same file.
func (s *Store) Write(ctx context.Context, rec *Record) error {
	out := rec.Clone()
	var assets *Assets
	if !out.IsDev() && out.Assets != nil {
		if out.AssetsFile == "" {
			out.AssetsFile = relPath(s.root, filepath.Join(absPath(s.root, out.Output.Path), DefaultAssetsFile))
		}
		assets = out.Assets
		out.Assets = nil
	}

	data, err := s.codec.Marshal(out)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := s.locker.Acquire(ctx, "write"); err != nil {
		return err
	}
	defer s.locker.Release("write")

	if assets != nil {
		if err := s.writeAssets(out.AssetsFile, assets); err != nil {
			return err
		}
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil { //nolint:gosec // record is read by other processes
		return fmt.Errorf("failed to write config %s: %w", s.path, err)
	}
	return nil
}

func (s *Store) writeAssets(ref string, assets *Assets) error {
	p := absPath(s.root, ref)
	data, err := s.codec.Marshal(assets)
	if err != nil {
		return fmt.Errorf("failed to encode assets: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(p), 0o750); err != nil {
		return fmt.Errorf("failed to create assets dir: %w", err)
	}
	if err := os.WriteFile(p, data, 0o644); err != nil { //nolint:gosec // assets are read by other processes
		return fmt.Errorf("failed to write assets file %s: %w", p, err)
	}
	return nil
}

// Remove deletes the record file. A missing file is not an error.
func (s *Store) Remove() error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to remove config %s: %w", s.path, err)
	}
	return nil
}

func (*Store) staleRemoved(path string, age time.Duration) {
	capitan.Emit(context.Background(), LockStaleRemoved,
		KeyPath.Field(path),
		KeyElapsed.Field(age),
	)
}
