// Package prom exports consumer metrics to Prometheus.
package prom

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/zoobzio/tether"
)

// Provider implements tether.MetricsProvider with Prometheus collectors.
type Provider struct {
	state       prometheus.Gauge
	transitions *prometheus.CounterVec
	loads       prometheus.Counter
	failures    *prometheus.CounterVec
	skipped     *prometheus.CounterVec
	changes     prometheus.Counter
	duration    prometheus.Histogram
}

// New creates a Provider and registers its collectors with reg.
func New(reg prometheus.Registerer) *Provider {
	p := &Provider{
		state: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tether_consumer_state",
			Help: "Current consumer state as its numeric value",
		}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tether_consumer_transitions_total",
			Help: "Total number of consumer state transitions by target state",
		}, []string{"state"}),
		loads: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tether_record_loads_total",
			Help: "Total number of records adopted",
		}),
		failures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tether_record_load_failures_total",
			Help: "Total number of failed record loads by stage",
		}, []string{"stage"}),
		skipped: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tether_record_reloads_skipped_total",
			Help: "Total number of reloads that kept the installed record, by reason",
		}, []string{"reason"}),
		changes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tether_record_changes_total",
			Help: "Total number of change notifications received",
		}),
		duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tether_record_load_duration_seconds",
			Help:    "Duration of successful record loads",
			Buckets: []float64{0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1, 5},
		}),
	}

	reg.MustRegister(
		p.state,
		p.transitions,
		p.loads,
		p.failures,
		p.skipped,
		p.changes,
		p.duration,
	)
	return p
}

// OnStateChange records the new state.
func (p *Provider) OnStateChange(_, to tether.State) {
	p.state.Set(float64(to))
	p.transitions.WithLabelValues(to.String()).Inc()
}

// OnLoadSuccess counts an adopted record.
func (p *Provider) OnLoadSuccess(d time.Duration) {
	p.loads.Inc()
	p.duration.Observe(d.Seconds())
}

// OnLoadFailure counts a failed load.
func (p *Provider) OnLoadFailure(stage string, _ time.Duration) {
	p.failures.WithLabelValues(stage).Inc()
}

// OnReloadSkipped counts a reload that kept the installed record.
func (p *Provider) OnReloadSkipped(reason string) {
	p.skipped.WithLabelValues(reason).Inc()
}

// OnChangeReceived counts a change notification.
func (p *Provider) OnChangeReceived() {
	p.changes.Inc()
}

var _ tether.MetricsProvider = (*Provider)(nil)
