// Package observability exposes the Prometheus metrics of a tracemon
// process. Metrics are registered on an injected Registerer so tests and
// embedded engines never touch the default registry.
package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/roach88/tracemon/internal/ir"
)

const namespace = "tracemon"

// Metrics holds every collector tracemon updates.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	events        *prometheus.CounterVec
	verdicts      *prometheus.CounterVec
	violations    *prometheus.CounterVec
	blocked       *prometheus.CounterVec
	monitorErrors *prometheus.CounterVec
	monitors      prometheus.Gauge
	queueLength   prometheus.Gauge
	processTime   prometheus.Histogram
	httpRequests  *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "events_total",
			Help:      "Events appended, by trace.",
		}, []string{"trace"}),
		verdicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verdicts_total",
			Help:      "Monitor verdicts after each observed event.",
		}, []string{"monitor", "verdict"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "violations_total",
			Help:      "Violations newly recorded, by monitor.",
		}, []string{"monitor"}),
		blocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "blocked_events_total",
			Help:      "Events rejected by a realtime monitor, by trace.",
		}, []string{"trace"}),
		monitorErrors: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "monitor_errors_total",
			Help:      "Evaluation errors that disabled a monitor.",
		}, []string{"monitor"}),
		monitors: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "monitors",
			Help:      "Monitors currently registered.",
		}),
		queueLength: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_length",
			Help:      "Requests waiting for the engine writer.",
		}),
		processTime: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "process_duration_seconds",
			Help:      "Time to persist and evaluate one event.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 14),
		}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by route and status code.",
		}, []string{"route", "code"}),
	}
	reg.MustRegister(
		m.events, m.verdicts, m.violations, m.blocked, m.monitorErrors,
		m.monitors, m.queueLength, m.processTime, m.httpRequests,
	)
	return m
}

// ObserveEvent counts an appended event and how long it took to process.
func (m *Metrics) ObserveEvent(trace string, took time.Duration) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(trace).Inc()
	m.processTime.Observe(took.Seconds())
}

// ObserveVerdict counts the verdict of a monitor after one event.
func (m *Metrics) ObserveVerdict(monitorID string, v ir.Verdict) {
	if m == nil {
		return
	}
	m.verdicts.WithLabelValues(monitorID, v.String()).Inc()
}

// IncViolation counts a newly recorded violation.
func (m *Metrics) IncViolation(monitorID string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(monitorID).Inc()
}

// IncBlocked counts an event rejected by a realtime monitor.
func (m *Metrics) IncBlocked(trace string) {
	if m == nil {
		return
	}
	m.blocked.WithLabelValues(trace).Inc()
}

// IncMonitorError counts a monitor disabled by an evaluation error.
func (m *Metrics) IncMonitorError(monitorID string) {
	if m == nil {
		return
	}
	m.monitorErrors.WithLabelValues(monitorID).Inc()
}

// SetMonitors sets the number of registered monitors.
func (m *Metrics) SetMonitors(n int) {
	if m == nil {
		return
	}
	m.monitors.Set(float64(n))
}

// SetQueueLength sets the engine backlog.
func (m *Metrics) SetQueueLength(n int) {
	if m == nil {
		return
	}
	m.queueLength.Set(float64(n))
}

// IncHTTPRequest counts a served HTTP request.
func (m *Metrics) IncHTTPRequest(route string, code int) {
	if m == nil {
		return
	}
	m.httpRequests.WithLabelValues(route, statusLabel(code)).Inc()
}

func statusLabel(code int) string {
	switch {
	case code >= 500:
		return "5xx"
	case code >= 400:
		return "4xx"
	case code >= 300:
		return "3xx"
	default:
		return "2xx"
	}
}
