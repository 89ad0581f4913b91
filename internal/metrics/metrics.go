// Package metrics exposes Prometheus instruments for the poll loop.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "halftime_bot"

// Poll results.
const (
	PollOK    = "ok"
	PollError = "error"
)

// Notification results.
const (
	NotifySent   = "sent"
	NotifyFailed = "failed"
)

// Metrics holds the bot's collectors on a private registry.
type Metrics struct {
	registry *prometheus.Registry

	polls         *prometheus.CounterVec
	ticksDropped  prometheus.Counter
	notifications *prometheus.CounterVec
	liveMatches   prometheus.Gauge
	candidates    prometheus.Gauge
	pollDuration  prometheus.Histogram
}

// New registers all collectors, including Go runtime and process metrics.
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		polls: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "polls_total",
			Help:      "Poll cycles by result.",
		}, []string{"result"}),
		ticksDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "ticks_dropped_total",
			Help:      "Poll ticks skipped because a cycle was still running.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Halftime alerts by delivery result.",
		}, []string{"result"}),
		liveMatches: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "live_matches",
			Help:      "Live matches returned by the last successful poll.",
		}),
		candidates: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitored_matches",
			Help:      "Live matches in monitored leagues during the last poll.",
		}),
		pollDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "poll_duration_seconds",
			Help:      "Duration of a poll cycle.",
			Buckets:   prometheus.DefBuckets,
		}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.polls,
		m.ticksDropped,
		m.notifications,
		m.liveMatches,
		m.candidates,
		m.pollDuration,
	)
	return m
}

// ObservePoll records a finished cycle.
func (m *Metrics) ObservePoll(result string, live, monitored int, d time.Duration) {
	if m == nil {
		return
	}
	m.polls.WithLabelValues(result).Inc()
	if result == PollOK {
		m.liveMatches.Set(float64(live))
	}
	m.candidates.Set(float64(monitored))
	m.pollDuration.Observe(d.Seconds())
}

// TickDropped records a tick skipped because a cycle was running.
func (m *Metrics) TickDropped() {
	if m == nil {
		return
	}
	m.ticksDropped.Inc()
}

// Notification records an alert delivery attempt.
func (m *Metrics) Notification(result string) {
	if m == nil {
		return
	}
	m.notifications.WithLabelValues(result).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
