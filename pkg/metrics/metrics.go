package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	StatusRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "status_http_requests_total", Help: "Status HTTP requests"},
		[]string{"method", "path", "status"},
	)
	StatusRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "status_http_request_duration_seconds",
			Help:    "Status HTTP request duration",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	RunsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatcher_runs_total", Help: "Campaign runs by terminal state"},
		[]string{"state"},
	)
	SendsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatcher_sends_total", Help: "Successful sends per account"},
		[]string{"account"},
	)
	SendFailuresTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatcher_send_failures_total", Help: "Failed delivery attempts per account"},
		[]string{"account"},
	)
	SkippedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{Name: "dispatcher_skipped_total", Help: "Recipients skipped by reason"},
		[]string{"reason"},
	)
	EventPublishFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Name: "dispatcher_event_publish_failures_total", Help: "Send events that could not be published"},
	)
	SendDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatcher_send_duration_seconds",
			Help:    "Time spent in one delivery attempt",
			Buckets: prometheus.DefBuckets,
		},
	)
	PacingDelay = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "dispatcher_pacing_delay_seconds",
			Help:    "Randomized delay between sends",
			Buckets: prometheus.LinearBuckets(0, 5, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(
		StatusRequestsTotal, StatusRequestDuration,
		RunsTotal, SendsTotal, SendFailuresTotal, SkippedTotal, EventPublishFailures, SendDuration, PacingDelay,
	)
}

func Handler() http.Handler { return promhttp.Handler() }
