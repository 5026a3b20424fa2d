// Package metrics exposes dashboard runtime metrics to Prometheus
package metrics

import (
	"net/http"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all application metrics. A nil *Metrics is valid and records nothing.
type Metrics struct {
	// Page visit tracking
	ActiveVisits atomic.Int64
	TotalVisits  atomic.Uint64

	// Realtime subscriptions
	ActiveSubscriptions atomic.Int64

	toasts        *prometheus.CounterVec
	events        *prometheus.CounterVec
	modelControl  *prometheus.CounterVec
	forwarded     *prometheus.CounterVec
	backendErrors *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with Prometheus collectors
func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
	}
	m.registerPrometheusMetrics()
	return m
}

func (m *Metrics) registerPrometheusMetrics() {
	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "terra_eye_page_visits_active",
			Help: "Page visits currently mounted",
		},
		func() float64 { return float64(m.ActiveVisits.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "terra_eye_page_visits_total",
			Help: "Page visits mounted since start",
		},
		func() float64 { return float64(m.TotalVisits.Load()) },
	))

	m.registry.MustRegister(prometheus.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "terra_eye_realtime_subscriptions_active",
			Help: "Open realtime channels",
		},
		func() float64 { return float64(m.ActiveSubscriptions.Load()) },
	))

	m.toasts = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "terra_eye_toasts_total",
		Help: "Toasts emitted by source and type",
	}, []string{"source", "type"})

	m.events = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "terra_eye_realtime_events_total",
		Help: "Change events received by table",
	}, []string{"table"})

	m.modelControl = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "terra_eye_model_control_total",
		Help: "Model control commands by action and result",
	}, []string{"action", "result"})

	m.forwarded = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "terra_eye_alerts_forwarded_total",
		Help: "Alerts forwarded to external sinks by sink and result",
	}, []string{"sink", "result"})

	m.backendErrors = prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "terra_eye_backend_errors_total",
		Help: "Failed backend calls by operation",
	}, []string{"op"})

	m.registry.MustRegister(m.toasts, m.events, m.modelControl, m.forwarded, m.backendErrors)
}

func result(err error) string {
	if err != nil {
		return "error"
	}
	return "ok"
}

// ObserveToast counts an emitted toast
func (m *Metrics) ObserveToast(source, typ string) {
	if m == nil {
		return
	}
	m.toasts.WithLabelValues(source, typ).Inc()
}

// ObserveEvent counts a received change event
func (m *Metrics) ObserveEvent(table string) {
	if m == nil {
		return
	}
	m.events.WithLabelValues(table).Inc()
}

// ObserveModelControl counts a model control command
func (m *Metrics) ObserveModelControl(action string, err error) {
	if m == nil {
		return
	}
	m.modelControl.WithLabelValues(action, result(err)).Inc()
}

// ObserveForward counts an alert forwarded to an external sink
func (m *Metrics) ObserveForward(sink string, err error) {
	if m == nil {
		return
	}
	m.forwarded.WithLabelValues(sink, result(err)).Inc()
}

// ObserveBackendError counts a failed backend operation
func (m *Metrics) ObserveBackendError(op string) {
	if m == nil {
		return
	}
	m.backendErrors.WithLabelValues(op).Inc()
}

// VisitMounted tracks a new page visit
func (m *Metrics) VisitMounted() {
	if m == nil {
		return
	}
	m.ActiveVisits.Add(1)
	m.TotalVisits.Add(1)
}

// VisitDisposed tracks a disposed page visit
func (m *Metrics) VisitDisposed() {
	if m == nil {
		return
	}
	m.ActiveVisits.Add(-1)
}

// SubscriptionOpened tracks an opened realtime channel
func (m *Metrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Add(1)
}

// SubscriptionClosed tracks a closed realtime channel
func (m *Metrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.ActiveSubscriptions.Add(-1)
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus HTTP handler
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
