package tether

import "time"

// MetricsProvider allows integration with metrics systems like Prometheus, StatsD, etc.
// Implement this interface to receive callbacks on key consumer events.
type MetricsProvider interface {
	// OnStateChange is called when the consumer transitions between states.
	OnStateChange(from, to State)

	// OnLoadSuccess is called when a record is loaded and installed.
	// Duration covers read, parse and install.
	OnLoadSuccess(duration time.Duration)

	// OnLoadFailure is called when loading fails at any stage.
	// Stage is one of "read", "parse", "version", "assets" or "lock".
	OnLoadFailure(stage string, duration time.Duration)

	// OnReloadSkipped is called when a reload is discarded.
	// Reason is "stale" or "invalid".
	OnReloadSkipped(reason string)

	// OnChangeReceived is called for each change notification.
	OnChangeReceived()
}

// NoOpMetricsProvider is a no-op implementation of MetricsProvider.
// Use this as an embedded type to implement only the methods you need.
type NoOpMetricsProvider struct{}

func (NoOpMetricsProvider) OnStateChange(_, _ State)                {}
func (NoOpMetricsProvider) OnLoadSuccess(_ time.Duration)           {}
func (NoOpMetricsProvider) OnLoadFailure(_ string, _ time.Duration) {}
func (NoOpMetricsProvider) OnReloadSkipped(_ string)                {}
func (NoOpMetricsProvider) OnChangeReceived()                       {}
