package tether

import (
	"encoding/json"
	"fmt"
	"maps"

	"github.com/go-playground/validator/v10"
)

// SchemaVersion is the record schema this build of tether reads and writes.
// A record carrying any other version is rejected.
const SchemaVersion = "1.0.0"

// Record is the document exchanged between the producer and its consumers.
//
// Paths are stored relative to the producer's root, slash separated, so a
// record can be read from a checkout at a different absolute location.
type Record struct {
	SchemaVersion string     `json:"version" validate:"required"`
	Valid         bool       `json:"valid"`
	Timestamp     int64      `json:"timestamp" validate:"gte=0"`
	Context       string     `json:"context"`
	Output        Output     `json:"output"`
	Dev           *DevServer `json:"devServer,omitempty"`
	Assets        *Assets    `json:"assets,omitempty"`
	AssetsFile    string     `json:"assetsFile,omitempty"`
}

// Output describes where the build writes its files.
type Output struct {
	Path       string `json:"path"`
	Filename   string `json:"filename"`
	PublicPath string `json:"publicPath"`
}

// DevServer is present when the build runs under a live-reload server that
// keeps its output in memory.
type DevServer struct {
	Enabled    bool   `json:"enabled" yaml:"enabled"`
	URL        string `json:"url,omitempty" yaml:"url,omitempty" validate:"omitempty,url"`
	AddURL     bool   `json:"addUrl,omitempty" yaml:"addUrl,omitempty"`
	SkipSetEnv bool   `json:"skipSetEnv,omitempty" yaml:"skipSetEnv,omitempty"`
}

// Assets is the logical-to-physical mapping produced by a build.
//
// Marked values are kept as raw JSON: a string is a hashed file name, anything
// else (a CSS class map, for example) is opaque data handed back untouched.
type Assets struct {
	Marked map[string]json.RawMessage `json:"marked"`
	Chunks map[string]string          `json:"chunks,omitempty"`
}

// IsDev reports whether assets are embedded in the record rather than stored
// in a sibling assets file.
func (r *Record) IsDev() bool {
	return r != nil && r.Dev != nil && r.Dev.Enabled
}

// validate is the shared validator instance.
var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterStructValidation(validateRecord, Record{})
	return v
}

// validateRecord enforces where the mapping lives: embedded for dev records
// (once valid), in the assets file for everything else.
func validateRecord(sl validator.StructLevel) {
	r, ok := sl.Current().Interface().(Record)
	if !ok {
		return
	}
	if r.IsDev() {
		if r.Valid && r.Assets == nil {
			sl.ReportError(r.Assets, "Assets", "assets", "required_when_valid", "")
		}
		return
	}
	if r.AssetsFile == "" {
		sl.ReportError(r.AssetsFile, "AssetsFile", "assetsFile", "required_without_dev", "")
	}
}

// Validate checks the structural invariants of a record.
func (r *Record) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRecord, err)
	}
	return nil
}

// Clone returns a deep copy so callers never share maps with the store.
func (r *Record) Clone() *Record {
	if r == nil {
		return nil
	}
	out := *r
	if r.Dev != nil {
		dev := *r.Dev
		out.Dev = &dev
	}
	out.Assets = r.Assets.Clone()
	return &out
}

// Clone returns a deep copy of the asset mapping.
func (a *Assets) Clone() *Assets {
	if a == nil {
		return nil
	}
	out := &Assets{
		Marked: make(map[string]json.RawMessage, len(a.Marked)),
		Chunks: maps.Clone(a.Chunks),
	}
	for k, v := range a.Marked {
		out.Marked[k] = append(json.RawMessage(nil), v...)
	}
	return out
}

// Mark records a string asset value for key.
func (a *Assets) Mark(key, value string) {
	raw, _ := json.Marshal(value) //nolint:errcheck // strings always marshal
	if a.Marked == nil {
		a.Marked = make(map[string]json.RawMessage)
	}
	a.Marked[key] = raw
}

// MarkValue records an arbitrary JSON-encodable asset value for key.
func (a *Assets) MarkValue(key string, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal asset %s: %w", key, err)
	}
	if a.Marked == nil {
		a.Marked = make(map[string]json.RawMessage)
	}
	a.Marked[key] = raw
	return nil
}

// Asset is the result of resolving a marked request.
type Asset struct {
	// URL is set when the marked value is a string.
	URL string

	// Value holds the raw marked value when it is not a string.
	Value json.RawMessage
}

// IsURL reports whether the asset resolved to a URL.
func (a Asset) IsURL() bool {
	return a.Value == nil
}
