package tether

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/zoobzio/capitan"
	"github.com/zoobzio/clockz"
	"github.com/zoobzio/tether/lock"
)

// Default consumer timings.
const (
	DefaultPollInterval      = 200 * time.Millisecond
	DefaultNoticeDelay       = 5 * time.Second
	DefaultStartupTimeout    = time.Minute
	DefaultValidPollInterval = 200 * time.Millisecond
	DefaultReloadDelay       = 10 * time.Millisecond

	noticeStep    = time.Second
	maxNoticeStep = 5 * time.Second
)

// Consumer loads the record published by a producer, installs its asset
// mapping and keeps it current as the producer rebuilds.
//
// Startup runs WaitingForFile → Loading → Validating → (Ready |
// WaitingForValid) → Active, or ends in Failed. Once active, change
// notifications move it between Active and Reloading. A record is adopted
// only when its timestamp is strictly newer than the installed one.
type Consumer struct {
	store             *Store
	watcher           Watcher
	source            RecordSource
	env               Env
	clock             clockz.Clock
	startDelay        time.Duration
	pollInterval      time.Duration
	noticeDelay       time.Duration
	startupTimeout    time.Duration
	validPollInterval time.Duration
	reloadDelay       time.Duration
	metrics           MetricsProvider
	logger            *slog.Logger
	errorHistory      *errorRing

	state      atomic.Int32
	current    atomic.Pointer[Record]
	lastError  atomic.Pointer[error]
	sawInvalid atomic.Bool
	setMarker  atomic.Bool

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	// loadMu serializes loads with adoption and teardown.
	loadMu sync.Mutex

	resolveMu  sync.RWMutex
	publicPath *string
	mapper     func(string) (string, error)

	observerMu sync.Mutex
	observers  []func(*Record)
	receivers  []func(*Record)
}

// NewConsumer creates a Consumer reading the record through store.
func NewConsumer(store *Store) *Consumer {
	c := &Consumer{
		store:             store,
		clock:             clockz.RealClock,
		pollInterval:      DefaultPollInterval,
		noticeDelay:       DefaultNoticeDelay,
		startupTimeout:    DefaultStartupTimeout,
		validPollInterval: DefaultValidPollInterval,
		reloadDelay:       DefaultReloadDelay,
		metrics:           NoOpMetricsProvider{},
		logger:            slog.Default(),
	}
	c.state.Store(int32(StateIdle))
	return c
}

// -----------------------------------------------------------------------------
// Chainable Instance Configuration
// -----------------------------------------------------------------------------

// Watcher sets the change watcher. Default: a FileWatcher on the record path.
// Must be called before LoadAssets().
func (c *Consumer) Watcher(w Watcher) *Consumer {
	c.watcher = w
	return c
}

// Channel sets a source of records pushed directly by a parent producer.
// When set and the environment allows it, no file polling or watching
// happens. Must be called before LoadAssets().
func (c *Consumer) Channel(src RecordSource) *Consumer {
	c.source = src
	return c
}

// Env sets the process environment consulted for the channel fast path.
func (c *Consumer) Env(e Env) *Consumer {
	c.env = e
	return c
}

// Clock sets a custom clock for time operations.
func (c *Consumer) Clock(clock clockz.Clock) *Consumer {
	c.clock = clock
	return c
}

// StartDelay delays startup so a build started alongside gets a head start.
// Default: 0.
func (c *Consumer) StartDelay(d time.Duration) *Consumer {
	c.startDelay = d
	return c
}

// PollInterval sets how often startup checks for the record file.
// Default: 200ms.
func (c *Consumer) PollInterval(d time.Duration) *Consumer {
	c.pollInterval = d
	return c
}

// NoticeDelay sets how long startup waits before the first notice that the
// record has not appeared yet. Default: 5s.
func (c *Consumer) NoticeDelay(d time.Duration) *Consumer {
	c.noticeDelay = d
	return c
}

// StartupTimeout bounds the whole startup. Zero waits forever.
// Default: 1m.
func (c *Consumer) StartupTimeout(d time.Duration) *Consumer {
	c.startupTimeout = d
	return c
}

// ValidPollInterval sets how often startup re-reads a record that announces
// a build in progress. Default: 200ms.
func (c *Consumer) ValidPollInterval(d time.Duration) *Consumer {
	c.validPollInterval = d
	return c
}

// ReloadDelay sets the settle time after a change before reloading.
// Default: 10ms.
func (c *Consumer) ReloadDelay(d time.Duration) *Consumer {
	c.reloadDelay = d
	return c
}

// Metrics sets a metrics provider for observability integration.
func (c *Consumer) Metrics(provider MetricsProvider) *Consumer {
	if provider == nil {
		provider = NoOpMetricsProvider{}
	}
	c.metrics = provider
	return c
}

// Logger sets the logger for user-facing notices and diagnostics.
func (c *Consumer) Logger(l *slog.Logger) *Consumer {
	c.logger = l
	return c
}

// ErrorHistorySize sets the number of recent errors to retain.
// Use 0 (default) to only retain the most recent error via LastError().
func (c *Consumer) ErrorHistorySize(n int) *Consumer {
	c.errorHistory = newErrorRing(n)
	return c
}

// -----------------------------------------------------------------------------
// Accessors
// -----------------------------------------------------------------------------

// State returns the current state of the Consumer.
func (c *Consumer) State() State {
	return State(c.state.Load())
}

// Current returns a copy of the installed record, or nil.
func (c *Consumer) Current() *Record {
	return c.current.Load().Clone()
}

// IsDev reports whether the installed record came from a dev build.
func (c *Consumer) IsDev() bool {
	return c.current.Load().IsDev()
}

// LastError returns the last error encountered, or nil if no error occurred.
func (c *Consumer) LastError() error {
	ptr := c.lastError.Load()
	if ptr == nil {
		return nil
	}
	return *ptr
}

// ErrorHistory returns the recent error history, oldest first.
// Returns nil if error history is not enabled (see ErrorHistorySize).
func (c *Consumer) ErrorHistory() []error {
	return c.errorHistory.all()
}

// OnUpdate registers fn to receive every adopted record. Observers run
// synchronously in registration order and must not call Deactivate.
func (c *Consumer) OnUpdate(fn func(*Record)) {
	c.observerMu.Lock()
	c.observers = append(c.observers, fn)
	c.observerMu.Unlock()
}

// OnReceive registers fn to see every record read or pushed, whether or not
// it is adopted. Records announcing a build in progress pass through here
// but never reach OnUpdate. The same record may be seen more than once.
func (c *Consumer) OnReceive(fn func(*Record)) {
	c.observerMu.Lock()
	c.receivers = append(c.receivers, fn)
	c.observerMu.Unlock()
}

// -----------------------------------------------------------------------------
// Lifecycle
// -----------------------------------------------------------------------------

// Initialize installs rec directly, as when the host already holds the
// record. A nil rec runs LoadAssets instead.
func (c *Consumer) Initialize(ctx context.Context, rec *Record) error {
	if rec == nil {
		return c.LoadAssets(ctx)
	}

	c.transition(ctx, StateValidating)
	accepted, err := c.store.Accept(ctx, rec)
	if err != nil {
		c.setError(err)
		c.transition(ctx, StateFailed)
		return err
	}
	c.received(accepted)
	if !installable(accepted) {
		c.transition(ctx, StateWaitingForValid)
		return ErrWaitingForValid
	}

	c.loadMu.Lock()
	c.adopt(ctx, accepted, c.clock.Now())
	c.loadMu.Unlock()
	c.transition(ctx, StateReady)
	c.transition(ctx, StateActive)
	return nil
}

// LoadAssets runs startup and blocks until the consumer is Active or Failed.
// Watching continues in the background until ctx is canceled or the consumer
// is deactivated.
func (c *Consumer) LoadAssets(ctx context.Context) error {
	c.mu.Lock()
	if c.running {
		c.mu.Unlock()
		return ErrAlreadyStarted
	}
	runCtx, cancel := context.WithCancel(ctx)
	c.running = true
	c.cancel = cancel
	c.mu.Unlock()

	err := c.startup(runCtx)
	if err != nil {
		c.mu.Lock()
		c.running = false
		c.cancel = nil
		c.mu.Unlock()
		cancel()
	}
	return err
}

// Reload forces a reload of the record. A consumer that was never started
// runs LoadAssets. If the record announces a build in progress the installed
// mapping is kept and ErrWaitingForValid is returned.
func (c *Consumer) Reload(ctx context.Context) error {
	c.mu.Lock()
	running := c.running
	c.mu.Unlock()
	if !running || c.current.Load() == nil {
		return c.LoadAssets(ctx)
	}
	return c.reload(ctx)
}

// Deactivate stops watching, drops the installed record and mapping, and
// returns to Idle. It is safe to call repeatedly or before initialization.
func (c *Consumer) Deactivate() {
	c.mu.Lock()
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.running = false
	c.mu.Unlock()

	c.wg.Wait()

	c.loadMu.Lock()
	c.current.Store(nil)
	c.lastError.Store(nil)
	c.errorHistory.clear()
	c.sawInvalid.Store(false)
	if c.setMarker.Swap(false) {
		if err := os.Unsetenv(DevMarkerEnv); err != nil {
			c.logger.Warn("failed to clear dev marker", "error", err)
		}
	}
	c.loadMu.Unlock()

	if c.transition(context.Background(), StateIdle) {
		capitan.Emit(context.Background(), ConsumerDeactivated,
			KeyPath.Field(c.store.Path()),
		)
	}
}

// -----------------------------------------------------------------------------
// Startup
// -----------------------------------------------------------------------------

func (c *Consumer) startup(ctx context.Context) error {
	if c.startDelay > 0 {
		if err := sleepCtx(ctx, c.clock, c.startDelay); err != nil {
			return c.abort(ctx, err)
		}
	}

	startCtx := ctx
	if c.startupTimeout > 0 {
		var cancel context.CancelFunc
		startCtx, cancel = c.clock.WithTimeout(ctx, c.startupTimeout)
		defer cancel()
	}

	if c.source != nil && c.env.ChannelAllowed() {
		return c.startFromChannel(ctx, startCtx)
	}
	return c.startFromFile(ctx, startCtx)
}

func (c *Consumer) startFromFile(ctx, startCtx context.Context) error {
	began := c.clock.Now()

	c.transition(ctx, StateWaitingForFile)
	for {
		if err := c.waitForFile(ctx, startCtx, began); err != nil {
			return err
		}

		c.transition(ctx, StateLoading)
		start := c.clock.Now()
		rec, err := c.loadRecord(startCtx)
		if err != nil {
			switch {
			case ctx.Err() != nil:
				return c.abort(ctx, ctx.Err())
			case startCtx.Err() != nil:
				return c.fail(ctx, c.timeoutError(StateLoading))
			case errors.Is(err, ErrConfigNotFound):
				// Removed between the existence check and the read.
				continue
			default:
				return c.fail(ctx, err)
			}
		}

		c.received(rec)
		c.transition(ctx, StateValidating)
		if !installable(rec) {
			c.waitingForValid(ctx)
			if err := sleepCtx(startCtx, c.clock, c.validPollInterval); err != nil {
				if ctx.Err() != nil {
					return c.abort(ctx, ctx.Err())
				}
				return c.fail(ctx, c.timeoutError(StateWaitingForValid))
			}
			continue
		}

		c.loadMu.Lock()
		if ctx.Err() != nil {
			c.loadMu.Unlock()
			return c.abort(ctx, ctx.Err())
		}
		c.adopt(ctx, rec, start)
		c.loadMu.Unlock()

		c.transition(ctx, StateReady)
		if !c.startWatching(ctx) {
			return c.abort(ctx, ctx.Err())
		}
		c.catchUp(ctx)
		if ctx.Err() != nil {
			return c.abort(ctx, ctx.Err())
		}
		c.transition(ctx, StateActive)
		return nil
	}
}

// waitForFile polls until the record exists, emitting notices on a growing
// cadence, and fails once the startup deadline passes.
func (c *Consumer) waitForFile(ctx, startCtx context.Context, began time.Time) error {
	if c.store.Exists() {
		return nil
	}
	c.transition(ctx, StateWaitingForFile)

	nextNotice := began.Add(c.noticeDelay)
	step := noticeStep

	for {
		if c.store.Exists() {
			return nil
		}

		now := c.clock.Now()
		if !now.Before(nextNotice) {
			elapsed := now.Sub(began)
			c.logger.Info("waiting for config file to be generated", "path", c.store.Path(), "elapsed", elapsed)
			capitan.Emit(ctx, ConsumerWaiting,
				KeyPath.Field(c.store.Path()),
				KeyElapsed.Field(elapsed),
			)
			nextNotice = now.Add(step)
			step = min(step+noticeStep, maxNoticeStep)
		}

		if err := sleepCtx(startCtx, c.clock, c.pollInterval); err != nil {
			if ctx.Err() != nil {
				return c.abort(ctx, ctx.Err())
			}
			return c.fail(ctx, c.timeoutError(StateWaitingForFile))
		}
	}
}

func (c *Consumer) startFromChannel(ctx, startCtx context.Context) error {
	c.transition(ctx, StateWaitingForFile)
	records := c.source.Listen(ctx)

	for {
		select {
		case <-startCtx.Done():
			if ctx.Err() != nil {
				return c.abort(ctx, ctx.Err())
			}
			return c.fail(ctx, c.timeoutError(c.State()))

		case rec, ok := <-records:
			if !ok {
				return c.fail(ctx, fmt.Errorf("%w: event channel closed before a config arrived", ErrConfigNotFound))
			}
			c.metrics.OnChangeReceived()
			start := c.clock.Now()

			c.transition(ctx, StateValidating)
			accepted, err := c.store.Accept(ctx, rec)
			if err != nil {
				return c.fail(ctx, err)
			}
			c.received(accepted)
			if !installable(accepted) {
				c.waitingForValid(ctx)
				continue
			}

			c.loadMu.Lock()
			c.adopt(ctx, accepted, start)
			c.loadMu.Unlock()

			c.transition(ctx, StateReady)
			if !c.track(ctx) {
				return c.abort(ctx, ctx.Err())
			}
			go c.listen(ctx, records)
			c.transition(ctx, StateActive)
			return nil
		}
	}
}

func (c *Consumer) waitingForValid(ctx context.Context) {
	c.sawInvalid.Store(true)
	c.transition(ctx, StateWaitingForValid)
	c.logger.Info("config is INVALID, waiting for valid config", "path", c.store.Path())
	capitan.Emit(ctx, RecordInvalid,
		KeyPath.Field(c.store.Path()),
	)
}

func (c *Consumer) timeoutError(during State) error {
	if during == StateWaitingForValid {
		return fmt.Errorf("%w: %s still invalid after %s; check that the build tool's dev server is healthy",
			ErrWaitingForValid, c.store.Path(), c.startupTimeout)
	}
	return fmt.Errorf("%w: %s not found after %s; check that the build tool's dev server is running and healthy",
		ErrConfigNotFound, c.store.Path(), c.startupTimeout)
}

// fail records err and enters the terminal Failed state.
func (c *Consumer) fail(ctx context.Context, err error) error {
	c.setError(err)
	c.transition(ctx, StateFailed)
	c.logger.Error("failed to load config", "path", c.store.Path(), "error", err)
	capitan.Emit(ctx, ConsumerFailed,
		KeyPath.Field(c.store.Path()),
		KeyError.Field(err.Error()),
	)
	return err
}

// abort handles startup interrupted by cancellation or Deactivate.
func (c *Consumer) abort(ctx context.Context, err error) error {
	c.transition(ctx, StateIdle)
	return err
}

// -----------------------------------------------------------------------------
// Loading and adoption
// -----------------------------------------------------------------------------

// installable reports whether a record's mapping may be installed. Non-dev
// records are authoritative as soon as they are readable.
func installable(rec *Record) bool {
	return rec.Valid || !rec.IsDev()
}

// loadRecord reads the record through the store and reports failures.
func (c *Consumer) loadRecord(ctx context.Context) (*Record, error) {
	start := c.clock.Now()
	rec, err := c.store.Load(ctx)
	if err != nil {
		c.setError(err)
		c.metrics.OnLoadFailure(failureStage(err), c.clock.Since(start))
		capitan.Emit(ctx, RecordLoadFailed,
			KeyPath.Field(c.store.Path()),
			KeyError.Field(err.Error()),
		)
		return nil, err
	}
	return rec, nil
}

func failureStage(err error) string {
	switch {
	case errors.Is(err, ErrVersionMismatch):
		return "version"
	case errors.Is(err, ErrBadJSON), errors.Is(err, ErrInvalidRecord):
		return "parse"
	case errors.Is(err, lock.ErrAcquire):
		return "lock"
	case errors.Is(err, ErrConfigNotFound):
		return "read"
	default:
		return "assets"
	}
}

// adopt installs rec if it is newer than the installed record. The caller
// holds loadMu.
func (c *Consumer) adopt(ctx context.Context, rec *Record, start time.Time) bool {
	if cur := c.current.Load(); cur != nil && rec.Timestamp <= cur.Timestamp {
		c.logger.Debug("skip reload. timestamp did not change", "path", c.store.Path(), "timestamp", rec.Timestamp)
		c.metrics.OnReloadSkipped("stale")
		capitan.Emit(ctx, RecordSkipped,
			KeyPath.Field(c.store.Path()),
			KeyTimestamp.Field(int(rec.Timestamp)),
		)
		return false
	}

	c.current.Store(rec)
	c.lastError.Store(nil)
	c.errorHistory.clear()

	if rec.IsDev() && !rec.Dev.SkipSetEnv && os.Getenv(DevMarkerEnv) != "true" {
		if err := os.Setenv(DevMarkerEnv, "true"); err != nil {
			c.logger.Warn("failed to set dev marker", "error", err)
		} else {
			c.setMarker.Store(true)
		}
	}
	if c.sawInvalid.Swap(false) {
		c.logger.Info("config is now VALID", "path", c.store.Path())
	}

	c.metrics.OnLoadSuccess(c.clock.Since(start))
	capitan.Emit(ctx, RecordApplied,
		KeyPath.Field(c.store.Path()),
		KeyTimestamp.Field(int(rec.Timestamp)),
	)

	c.notify(&c.observers, rec)
	return true
}

func (c *Consumer) received(rec *Record) {
	c.notify(&c.receivers, rec)
}

// notify calls each fn in *list with its own copy of rec. list points at one
// of the observer slices, read under observerMu.
func (c *Consumer) notify(list *[]func(*Record), rec *Record) {
	c.observerMu.Lock()
	fns := make([]func(*Record), len(*list))
	copy(fns, *list)
	c.observerMu.Unlock()
	for _, fn := range fns {
		fn(rec.Clone())
	}
}

// reload re-reads the record while Active.
func (c *Consumer) reload(ctx context.Context) error {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if c.current.Load() == nil {
		// Deactivated while the reload was pending.
		return nil
	}

	c.transition(ctx, StateReloading)
	defer c.transition(ctx, StateActive)

	start := c.clock.Now()
	rec, err := c.loadRecord(ctx)
	if err != nil {
		return err
	}
	c.received(rec)
	if !installable(rec) {
		c.sawInvalid.Store(true)
		c.logger.Info("config is INVALID, keeping previous config", "path", c.store.Path())
		c.metrics.OnReloadSkipped("invalid")
		capitan.Emit(ctx, RecordInvalid,
			KeyPath.Field(c.store.Path()),
		)
		return ErrWaitingForValid
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	c.adopt(ctx, rec, start)
	return nil
}

// apply handles a record pushed over the event channel while Active.
func (c *Consumer) apply(ctx context.Context, rec *Record) {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()

	if ctx.Err() != nil || c.current.Load() == nil {
		return
	}

	c.transition(ctx, StateReloading)
	defer c.transition(ctx, StateActive)

	start := c.clock.Now()
	accepted, err := c.store.Accept(ctx, rec)
	if err != nil {
		c.setError(err)
		c.logger.Error("failed to apply config message", "error", err)
		return
	}
	c.received(accepted)
	if !installable(accepted) {
		c.sawInvalid.Store(true)
		c.logger.Info("config is INVALID, keeping previous config")
		c.metrics.OnReloadSkipped("invalid")
		return
	}
	c.adopt(ctx, accepted, start)
}

// -----------------------------------------------------------------------------
// Watching
// -----------------------------------------------------------------------------

// startWatching arms the change watcher. It reports false only when the
// consumer was deactivated meanwhile; a watcher that fails to start is logged
// and the installed mapping stays.
func (c *Consumer) startWatching(ctx context.Context) bool {
	w := c.watcher
	if w == nil {
		w = NewFileWatcher(c.store.Path())
	}

	changes, err := w.Watch(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return false
		}
		// The mapping is installed; it just will not follow rebuilds.
		c.setError(err)
		c.logger.Error("failed to start config watcher", "path", c.store.Path(), "error", err)
		return true
	}

	if !c.track(ctx) {
		return false
	}
	go c.watch(ctx, changes)
	return true
}

// track registers a background goroutine unless the run was canceled.
// Registration happens under mu, which Deactivate holds while canceling, so
// it never races with the wait in Deactivate.
func (c *Consumer) track(ctx context.Context) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if ctx.Err() != nil {
		return false
	}
	c.wg.Add(1)
	return true
}

// catchUp re-reads the record once the watcher is armed, picking up a write
// that landed between the startup load and the watch.
func (c *Consumer) catchUp(ctx context.Context) {
	start := c.clock.Now()
	rec, err := c.store.Load(ctx)
	if err != nil {
		// The watcher reports the next change.
		return
	}
	c.received(rec)
	if !installable(rec) {
		return
	}

	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if ctx.Err() != nil {
		return
	}
	if cur := c.current.Load(); cur != nil && rec.Timestamp <= cur.Timestamp {
		return
	}
	c.adopt(ctx, rec, start)
}

// watch coalesces change notifications and reloads after the settle delay.
func (c *Consumer) watch(ctx context.Context, changes <-chan Event) {
	defer c.wg.Done()

	var (
		timer   clockz.Timer
		pending bool
	)

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
			// Wait for the watcher to release its resources.
			for range changes {
			}
			return

		case ev, ok := <-changes:
			if !ok {
				return
			}

			c.metrics.OnChangeReceived()
			capitan.Emit(ctx, RecordChangeReceived,
				KeyPath.Field(ev.Path),
			)

			if ev.Op != OpChange {
				c.logger.Warn("unexpected config file watch event", "op", ev.Op.String(), "path", ev.Path)
				continue
			}
			pending = true

			if timer == nil {
				timer = c.clock.NewTimer(c.reloadDelay)
			} else {
				if !timer.Stop() {
					select {
					case <-timer.C():
					default:
					}
				}
				timer.Reset(c.reloadDelay)
			}

		case <-timerC:
			if !pending {
				continue
			}
			pending = false
			if err := c.reload(ctx); err != nil && !errors.Is(err, ErrWaitingForValid) && ctx.Err() == nil {
				c.logger.Error("file watcher load assets error", "path", c.store.Path(), "error", err)
			}
		}
	}
}

// listen applies records arriving on the event channel after startup.
func (c *Consumer) listen(ctx context.Context, records <-chan *Record) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case rec, ok := <-records:
			if !ok {
				return
			}
			c.metrics.OnChangeReceived()
			capitan.Emit(ctx, RecordChangeReceived,
				KeyPath.Field(ChannelName),
			)
			c.apply(ctx, rec)
		}
	}
}

// -----------------------------------------------------------------------------
// Helpers
// -----------------------------------------------------------------------------

// transition updates the state and emits a state change event if changed.
func (c *Consumer) transition(ctx context.Context, to State) bool {
	from := State(c.state.Swap(int32(to)))
	if from == to {
		return false
	}
	capitan.Emit(ctx, ConsumerStateChanged,
		KeyOldState.Field(from.String()),
		KeyNewState.Field(to.String()),
	)
	c.metrics.OnStateChange(from, to)
	return true
}

// setError stores an error atomically and adds it to the error history.
func (c *Consumer) setError(err error) {
	e := err
	c.lastError.Store(&e)
	c.errorHistory.push(err)
}

func sleepCtx(ctx context.Context, clock clockz.Clock, d time.Duration) error {
	timer := clock.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C():
		return nil
	}
}

type consumerKey struct{}

// WithConsumer returns a context carrying c.
func WithConsumer(ctx context.Context, c *Consumer) context.Context {
	return context.WithValue(ctx, consumerKey{}, c)
}

// ConsumerFrom returns the Consumer carried by ctx.
func ConsumerFrom(ctx context.Context) (*Consumer, bool) {
	c, ok := ctx.Value(consumerKey{}).(*Consumer)
	return c, ok && c != nil
}
