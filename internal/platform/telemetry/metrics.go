// Package telemetry owns the Prometheus collectors. Components receive a
// *Metrics and call its helpers; a nil *Metrics records nothing, which keeps
// unit tests free of registry plumbing.
package telemetry

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/ehr/careguard/internal/platform/apperr"
)

const namespace = "careguard"

type Metrics struct {
	registry *prometheus.Registry

	httpInFlight        prometheus.Gauge
	httpRequestsTotal   *prometheus.CounterVec
	httpRequestDuration *prometheus.HistogramVec

	GuardDecisions       *prometheus.CounterVec
	AuditEvents          *prometheus.CounterVec
	NotificationsCreated prometheus.Counter
	ChannelSends         *prometheus.CounterVec
}

// NewMetrics creates the collectors and registers them on a fresh registry
// together with the Go runtime and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		httpInFlight: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "http_in_flight_requests",
			Help:      "In-flight HTTP requests.",
		}),
		httpRequestsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Total number of HTTP requests.",
		}, []string{"method", "route", "status"}),
		httpRequestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latencies in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		GuardDecisions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guard_decisions_total",
			Help:      "Access decisions by resource type, action and outcome.",
		}, []string{"resource_type", "action", "outcome"}),
		AuditEvents: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "audit_events_total",
			Help:      "Audit events by write result.",
		}, []string{"result"}),
		NotificationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_created_total",
			Help:      "In-app notification records created.",
		}),
		ChannelSends: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notification_channel_sends_total",
			Help:      "Out-of-band notification sends by channel and result.",
		}, []string{"channel", "result"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.httpInFlight,
		m.httpRequestsTotal,
		m.httpRequestDuration,
		m.GuardDecisions,
		m.AuditEvents,
		m.NotificationsCreated,
		m.ChannelSends,
	)
	return m
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry for tests and extra collectors.
func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

func (m *Metrics) ObserveDecision(resourceType, action, outcome string) {
	if m == nil {
		return
	}
	m.GuardDecisions.WithLabelValues(resourceType, action, outcome).Inc()
}

func (m *Metrics) ObserveAudit(ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.AuditEvents.WithLabelValues(result).Inc()
}

func (m *Metrics) ObserveNotifications(n int) {
	if m == nil {
		return
	}
	m.NotificationsCreated.Add(float64(n))
}

func (m *Metrics) ObserveChannelSend(channel string, ok bool) {
	if m == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "error"
	}
	m.ChannelSends.WithLabelValues(channel, result).Inc()
}

// Middleware records request count, latency and in-flight gauge. The route
// label is the registered path pattern, not the raw URL, to bound
// cardinality.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			m.httpInFlight.Inc()
			defer m.httpInFlight.Dec()

			start := time.Now()
			err := next(c)

			status := statusOf(c, err)
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			labels := []string{c.Request().Method, route, strconv.Itoa(status)}
			m.httpRequestsTotal.WithLabelValues(labels...).Inc()
			m.httpRequestDuration.WithLabelValues(labels...).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// statusOf returns the status the error handler will write for err. The
// response is not final yet when a handler error reaches this middleware.
func statusOf(c echo.Context, err error) int {
	if err == nil || c.Response().Committed {
		return c.Response().Status
	}
	var ae *apperr.Error
	var he *echo.HTTPError
	switch {
	case errors.As(err, &ae):
		return ae.Kind.HTTPStatus()
	case errors.As(err, &he):
		return he.Code
	}
	return http.StatusInternalServerError
}
