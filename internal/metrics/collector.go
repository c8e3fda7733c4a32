// Package metrics exposes the runtime's Prometheus instrumentation.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector owns every metric the runtime emits. All methods are safe on a
// nil receiver so instrumentation can be left unwired in tests.
type Collector struct {
	invocationsTotal   *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	suspensionsTotal   *prometheus.CounterVec
	resumesTotal       *prometheus.CounterVec
	permissionDenials  prometheus.Counter
	classifierFallback prometheus.Counter
	httpRequestsTotal  *prometheus.CounterVec
	httpDuration       *prometheus.HistogramVec
}

// NewCollector registers the runtime metrics on the given registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		invocationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "invocations_total",
			Help:      "Workflow invocations by handler and outcome.",
		}, []string{"handler", "outcome"}),
		invocationDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrun",
			Name:      "invocation_duration_seconds",
			Help:      "End-to-end workflow invocation latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler"}),
		suspensionsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "suspensions_total",
			Help:      "Workflows suspended for approval, by topic.",
		}, []string{"topic"}),
		resumesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "resumes_total",
			Help:      "Resume attempts by outcome.",
		}, []string{"outcome"}),
		permissionDenials: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "permission_denials_total",
			Help:      "Requests refused by a permission check.",
		}),
		classifierFallback: factory.NewCounter(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "classifier_fallbacks_total",
			Help:      "Invocations routed to general chat because classification failed.",
		}),
		httpRequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "agentrun",
			Name:      "http_requests_total",
			Help:      "HTTP requests by route and status code.",
		}, []string{"route", "code"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "agentrun",
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"route"}),
	}
}

// ObserveInvocation records one completed or failed invocation.
func (c *Collector) ObserveInvocation(handler, outcome string, elapsed time.Duration) {
	if c == nil {
		return
	}
	if handler == "" {
		handler = "unknown"
	}
	c.invocationsTotal.WithLabelValues(handler, outcome).Inc()
	c.invocationDuration.WithLabelValues(handler).Observe(elapsed.Seconds())
}

// ObserveSuspension records a workflow pausing for approval.
func (c *Collector) ObserveSuspension(topic string) {
	if c == nil {
		return
	}
	c.suspensionsTotal.WithLabelValues(topic).Inc()
}

// ObserveResume records a resume attempt's outcome.
func (c *Collector) ObserveResume(outcome string) {
	if c == nil {
		return
	}
	c.resumesTotal.WithLabelValues(outcome).Inc()
}

// ObservePermissionDenial records a refused permission check.
func (c *Collector) ObservePermissionDenial() {
	if c == nil {
		return
	}
	c.permissionDenials.Inc()
}

// ObserveClassifierFallback records a degraded routing decision.
func (c *Collector) ObserveClassifierFallback() {
	if c == nil {
		return
	}
	c.classifierFallback.Inc()
}

// ObserveHTTPRequest records one served HTTP request.
func (c *Collector) ObserveHTTPRequest(route, code string, elapsed time.Duration) {
	if c == nil {
		return
	}
	c.httpRequestsTotal.WithLabelValues(route, code).Inc()
	c.httpDuration.WithLabelValues(route).Observe(elapsed.Seconds())
}
