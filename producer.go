package tether

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"sync"

	"github.com/zoobzio/clockz"
)

// BuildOptions describe the build a Producer publishes records for. Paths may
// be absolute; they are stored relative to the root.
type BuildOptions struct {
	Context        string     `json:"context" yaml:"context"`
	OutputPath     string     `json:"outputPath" yaml:"outputPath" validate:"required"`
	OutputFilename string     `json:"outputFilename" yaml:"outputFilename"`
	PublicPath     string     `json:"publicPath" yaml:"publicPath"`
	AssetsFile     string     `json:"assetsFile,omitempty" yaml:"assetsFile,omitempty" validate:"omitempty,excludesall=/\\"`
	Dev            *DevServer `json:"devServer,omitempty" yaml:"devServer,omitempty"`
}

// Validate checks the options a build descriptor must carry.
func (o BuildOptions) Validate() error {
	if err := validate.Struct(o); err != nil {
		return fmt.Errorf("invalid build options: %w", err)
	}
	return nil
}

// Producer turns build lifecycle points into records and publishes them.
//
// Dev builds publish through a debounced Writer (and the event channel when
// one is attached). One-shot builds write synchronously when the build is
// done and never publish an invalid record.
type Producer struct {
	store   *Store
	opts    BuildOptions
	writer  *Writer
	channel *Channel
	clock   clockz.Clock
	logger  *slog.Logger

	mu        sync.Mutex
	last      int64
	observers []func(*Record)
}

// NewProducer creates a Producer writing through store.
func NewProducer(store *Store, opts BuildOptions) *Producer {
	return &Producer{
		store:  store,
		opts:   opts,
		writer: NewWriter(store),
		clock:  clockz.RealClock,
		logger: slog.Default(),
	}
}

// Writer replaces the debounced writer used for dev builds.
func (p *Producer) Writer(w *Writer) *Producer {
	p.writer = w
	return p
}

// Channel attaches an event channel that receives every published record.
func (p *Producer) Channel(ch *Channel) *Producer {
	p.channel = ch
	return p
}

// Clock sets the clock used for record timestamps.
func (p *Producer) Clock(clock clockz.Clock) *Producer {
	p.clock = clock
	return p
}

// Logger sets the logger for build diagnostics.
func (p *Producer) Logger(l *slog.Logger) *Producer {
	p.logger = l
	return p
}

// OnUpdate registers fn to receive every published record. Observers run
// synchronously in registration order.
func (p *Producer) OnUpdate(fn func(*Record)) {
	p.mu.Lock()
	p.observers = append(p.observers, fn)
	p.mu.Unlock()
}

// Start runs the debounced writer until ctx is canceled.
func (p *Producer) Start(ctx context.Context) error {
	return p.writer.Start(ctx)
}

// Close writes anything still queued.
func (p *Producer) Close(ctx context.Context) error {
	return p.writer.Flush(ctx)
}

// CreateConfig builds a record for the current build state.
func (p *Producer) CreateConfig(valid bool, assets *Assets) *Record {
	root := p.store.Dir()
	rec := &Record{
		SchemaVersion: SchemaVersion,
		Valid:         valid,
		Timestamp:     p.nextTimestamp(),
		Context:       relPath(root, p.opts.Context),
		Output: Output{
			Path:       relPath(root, p.opts.OutputPath),
			Filename:   relPath(root, p.opts.OutputFilename),
			PublicPath: p.opts.PublicPath,
		},
		Assets: assets.Clone(),
	}
	if p.opts.Dev != nil {
		dev := *p.opts.Dev
		rec.Dev = &dev
	}
	if !rec.IsDev() {
		name := p.opts.AssetsFile
		if name == "" {
			name = DefaultAssetsFile
		}
		rec.AssetsFile = path.Join(rec.Output.Path, name)
	}
	return rec
}

// nextTimestamp returns max(now, last+1) in milliseconds so timestamps are
// strictly increasing within a producer.
func (p *Producer) nextTimestamp() int64 {
	now := p.clock.Now().UnixMilli()
	p.mu.Lock()
	defer p.mu.Unlock()
	if now <= p.last {
		now = p.last + 1
	}
	p.last = now
	return now
}

// NotifyUpdate publishes rec to observers, the event channel and the store.
func (p *Producer) NotifyUpdate(ctx context.Context, rec *Record) error {
	p.mu.Lock()
	observers := make([]func(*Record), len(p.observers))
	copy(observers, p.observers)
	p.mu.Unlock()

	for _, fn := range observers {
		fn(rec.Clone())
	}

	if rec.IsDev() {
		p.send(rec)
		p.writer.Schedule(rec)
		return nil
	}
	if !rec.Valid {
		p.logger.Debug("skip writing invalid config for one-shot build", "path", p.store.Path())
		return nil
	}
	// The assets file must exist before a consumer is told about it.
	if err := p.store.Write(ctx, rec); err != nil {
		p.logger.Error("failed to write config", "path", p.store.Path(), "error", err)
		return err
	}
	p.send(rec)
	return nil
}

func (p *Producer) send(rec *Record) {
	if p.channel == nil {
		return
	}
	if err := p.channel.Send(rec); err != nil {
		p.logger.Warn("failed to send config message", "error", err)
	}
}

// BuildStarted announces that a build is in progress.
func (p *Producer) BuildStarted(ctx context.Context) error {
	return p.NotifyUpdate(ctx, p.CreateConfig(false, nil))
}

// Invalidate announces that sources changed and a rebuild is coming.
func (p *Producer) Invalidate(ctx context.Context) error {
	return p.NotifyUpdate(ctx, p.CreateConfig(false, nil))
}

// BuildDone publishes the outcome of a build. A failed build leaves the
// record invalid so consumers keep their previous mapping.
func (p *Producer) BuildDone(ctx context.Context, assets *Assets, buildErr error) error {
	if buildErr != nil {
		p.logger.Error("build failed", "error", buildErr)
		return p.NotifyUpdate(ctx, p.CreateConfig(false, nil))
	}
	if assets == nil {
		assets = &Assets{}
	}
	return p.NotifyUpdate(ctx, p.CreateConfig(true, assets))
}
