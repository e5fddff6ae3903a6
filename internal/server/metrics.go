package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/StricklySoft/stricklysoft-identity/pkg/auth"
)

// Login results, the values of the result label of identity_logins_total.
const (
	loginSuccess           = "success"
	loginBadRequest        = "bad_request"
	loginMissingToken      = "missing_token"
	loginTokenInvalid      = "token_invalid"
	loginTokenExpired      = "token_expired"
	loginKeySetUnavailable = "keyset_unavailable"
	loginError             = "error"
)

type metrics struct {
	requests *prometheus.CounterVec
	duration *prometheus.HistogramVec
	logins   *prometheus.CounterVec
	filter   *prometheus.CounterVec
}

func newMetrics(reg *prometheus.Registry, withRuntime bool) *metrics {
	if withRuntime {
		reg.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
	}
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_http_requests_total",
				Help: "Total number of HTTP requests, by method, route and status code.",
			},
			[]string{"method", "route", "code"},
		),
		duration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "identity_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),
		logins: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_logins_total",
				Help: "Total number of login attempts, by result.",
			},
			[]string{"result"},
		),
		filter: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "identity_session_filter_outcomes_total",
				Help: "Total number of requests classified by the session filter, by outcome.",
			},
			[]string{"outcome"},
		),
	}
}

func (m *metrics) login(result string) {
	m.logins.WithLabelValues(result).Inc()
}

func (m *metrics) observeFilter(o auth.Outcome) {
	m.filter.WithLabelValues(string(o)).Inc()
}
