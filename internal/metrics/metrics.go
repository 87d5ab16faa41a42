package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "docrequest"

type Registry struct {
	reg *prometheus.Registry

	requestDuration   *prometheus.HistogramVec
	authOutcomes      *prometheus.CounterVec
	rateLimitDecision *prometheus.CounterVec
	requestsCreated   prometheus.Counter
	validationErrors  prometheus.Counter
	notifications     *prometheus.CounterVec
}

func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	r := &Registry{
		reg: reg,
		requestDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route and status.",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		}, []string{"method", "route", "status"}),
		authOutcomes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "auth_outcomes_total",
			Help:      "Authentication results by outcome.",
		}, []string{"outcome"}),
		rateLimitDecision: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rate_limit_decisions_total",
			Help:      "Rate window decisions by result.",
		}, []string{"result"}),
		requestsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_created_total",
			Help:      "Document requests committed.",
		}),
		validationErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "submission_rejections_total",
			Help:      "Submissions rejected by requirement validation.",
		}),
		notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "notifications_total",
			Help:      "Notification hand-offs by result.",
		}, []string{"result"}),
	}

	reg.MustRegister(
		r.requestDuration,
		r.authOutcomes,
		r.rateLimitDecision,
		r.requestsCreated,
		r.validationErrors,
		r.notifications,
	)

	return r
}

func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.reg, promhttp.HandlerOpts{Registry: r.reg})
}

// A nil *Registry is a valid no-op recorder so components can be built
// without metrics in tests.

func (r *Registry) ObserveRequest(method string, route string, status int, d time.Duration) {
	if r == nil {
		return
	}
	if route == "" {
		route = "unmatched"
	}
	r.requestDuration.WithLabelValues(method, route, strconv.Itoa(status)).Observe(d.Seconds())
}

func (r *Registry) IncAuth(outcome string) {
	if r == nil {
		return
	}
	r.authOutcomes.WithLabelValues(outcome).Inc()
}

func (r *Registry) IncRateLimit(allowed bool) {
	if r == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	r.rateLimitDecision.WithLabelValues(result).Inc()
}

func (r *Registry) IncRateLimitError() {
	if r == nil {
		return
	}
	r.rateLimitDecision.WithLabelValues("error").Inc()
}

func (r *Registry) IncRequestsCreated() {
	if r == nil {
		return
	}
	r.requestsCreated.Inc()
}

func (r *Registry) IncValidationRejected() {
	if r == nil {
		return
	}
	r.validationErrors.Inc()
}

func (r *Registry) IncNotification(ok bool) {
	if r == nil {
		return
	}
	result := "sent"
	if !ok {
		result = "failed"
	}
	r.notifications.WithLabelValues(result).Inc()
}
