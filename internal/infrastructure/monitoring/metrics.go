package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics.
// All Record/Set methods are safe to call on a nil *Metrics.
type Metrics struct {
	registry *prometheus.Registry

	// HTTP metrics
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec

	// Event bus metrics
	BusEmits         *prometheus.CounterVec
	BusDeliveries    *prometheus.CounterVec
	BusHandlerErrors *prometheus.CounterVec
	BusSlowHandlers  *prometheus.CounterVec
	BusRejected      *prometheus.CounterVec
	BusSubscriptions prometheus.Gauge

	// Application metrics
	AppsRegistered prometheus.Gauge
	AppsLoaded     prometheus.Gauge
	AppsActive     prometheus.Gauge
	AppTransitions *prometheus.CounterVec
	AppLoadTime    *prometheus.HistogramVec

	// Boot metrics
	BootStepDuration *prometheus.HistogramVec
	BootFailures     *prometheus.CounterVec

	// Error handler metrics
	ErrorsHandled *prometheus.CounterVec

	// WebSocket metrics
	WSConnections prometheus.Gauge

	Uptime    prometheus.GaugeFunc
	startTime time.Time
}

// NewMetrics creates a metrics collector backed by its own registry, so
// multiple shells (and tests) never collide on registration.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector())
	factory := promauto.With(reg)

	m := &Metrics{
		registry:  reg,
		startTime: time.Now(),

		RequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		RequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mizu_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5},
			},
			[]string{"method", "path"},
		),

		BusEmits: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_bus_emits_total",
				Help: "Total number of events emitted",
			},
			[]string{"event"},
		),
		BusDeliveries: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_bus_deliveries_total",
				Help: "Total number of handler invocations",
			},
			[]string{"event"},
		),
		BusHandlerErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_bus_handler_errors_total",
				Help: "Handlers that returned an error or panicked",
			},
			[]string{"event"},
		),
		BusSlowHandlers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_bus_slow_handlers_total",
				Help: "Handlers that exceeded the soft timeout",
			},
			[]string{"event"},
		),
		BusRejected: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_bus_rejected_subscriptions_total",
				Help: "Subscriptions refused by the per-event ceiling",
			},
			[]string{"event"},
		),
		BusSubscriptions: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mizu_bus_subscriptions",
				Help: "Current number of subscriptions",
			},
		),

		AppsRegistered: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mizu_apps_registered",
				Help: "Number of registered applications",
			},
		),
		AppsLoaded: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mizu_apps_loaded",
				Help: "Number of loaded application instances",
			},
		),
		AppsActive: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mizu_apps_active",
				Help: "Number of mounted applications",
			},
		),
		AppTransitions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_app_transitions_total",
				Help: "Application lifecycle transitions",
			},
			[]string{"app", "status"},
		),
		AppLoadTime: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mizu_app_load_duration_seconds",
				Help:    "Time to construct and initialise an application",
				Buckets: []float64{.0005, .001, .005, .01, .05, .1, .5, 1, 5},
			},
			[]string{"app", "kind"},
		),

		BootStepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "mizu_boot_step_duration_seconds",
				Help:    "Duration of each boot step",
				Buckets: []float64{.001, .01, .1, .5, 1, 5, 10},
			},
			[]string{"phase", "step"},
		),
		BootFailures: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_boot_failures_total",
				Help: "Boot steps that aborted the sequence",
			},
			[]string{"phase", "step"},
		),

		ErrorsHandled: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "mizu_errors_total",
				Help: "Errors routed through the error handler",
			},
			[]string{"kind"},
		),

		WSConnections: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "mizu_ws_connections",
				Help: "Number of open WebSocket connections",
			},
		),
	}

	m.Uptime = factory.NewGaugeFunc(
		prometheus.GaugeOpts{
			Name: "mizu_uptime_seconds",
			Help: "Seconds since the shell started",
		},
		func() float64 { return time.Since(m.startTime).Seconds() },
	)

	return m
}

// Registry exposes the underlying registry, mainly for tests.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler returns the Prometheus exposition handler.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// RecordHTTPRequest records an HTTP request
func (m *Metrics) RecordHTTPRequest(method, path, status string, duration time.Duration) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method, path, status).Inc()
	m.RequestDuration.WithLabelValues(method, path).Observe(duration.Seconds())
}

// RecordEmit records one emit and the number of handlers it reached
func (m *Metrics) RecordEmit(event string, delivered int) {
	if m == nil {
		return
	}
	m.BusEmits.WithLabelValues(event).Inc()
	m.BusDeliveries.WithLabelValues(event).Add(float64(delivered))
}

func (m *Metrics) RecordHandlerError(event string) {
	if m == nil {
		return
	}
	m.BusHandlerErrors.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordSlowHandler(event string) {
	if m == nil {
		return
	}
	m.BusSlowHandlers.WithLabelValues(event).Inc()
}

func (m *Metrics) RecordRejectedSubscription(event string) {
	if m == nil {
		return
	}
	m.BusRejected.WithLabelValues(event).Inc()
}

// SetSubscriptions sets the current subscription count
func (m *Metrics) SetSubscriptions(count int) {
	if m == nil {
		return
	}
	m.BusSubscriptions.Set(float64(count))
}

// SetAppsRegistered sets the registered app count
func (m *Metrics) SetAppsRegistered(count int) {
	if m == nil {
		return
	}
	m.AppsRegistered.Set(float64(count))
}

// SetAppCounts sets loaded and mounted app gauges
func (m *Metrics) SetAppCounts(loaded, active int) {
	if m == nil {
		return
	}
	m.AppsLoaded.Set(float64(loaded))
	m.AppsActive.Set(float64(active))
}

// RecordTransition records an app lifecycle transition
func (m *Metrics) RecordTransition(app, status string) {
	if m == nil {
		return
	}
	m.AppTransitions.WithLabelValues(app, status).Inc()
}

// RecordAppLoad records how long an app took to load
func (m *Metrics) RecordAppLoad(app, kind string, duration time.Duration) {
	if m == nil {
		return
	}
	m.AppLoadTime.WithLabelValues(app, kind).Observe(duration.Seconds())
}

// RecordBootStep records a boot step's duration and outcome
func (m *Metrics) RecordBootStep(phase, step string, duration time.Duration, failed bool) {
	if m == nil {
		return
	}
	m.BootStepDuration.WithLabelValues(phase, step).Observe(duration.Seconds())
	if failed {
		m.BootFailures.WithLabelValues(phase, step).Inc()
	}
}

// RecordError records an error routed through the error handler
func (m *Metrics) RecordError(kind string) {
	if m == nil {
		return
	}
	m.ErrorsHandled.WithLabelValues(kind).Inc()
}

// IncWSConnections increments WebSocket connections
func (m *Metrics) IncWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Inc()
}

// DecWSConnections decrements WebSocket connections
func (m *Metrics) DecWSConnections() {
	if m == nil {
		return
	}
	m.WSConnections.Dec()
}
