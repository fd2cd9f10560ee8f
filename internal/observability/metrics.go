package observability

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	registerOnce sync.Once

	httpRequestsTotal  *prometheus.CounterVec
	httpLatencySeconds *prometheus.HistogramVec
	httpErrorsTotal    *prometheus.CounterVec

	attemptsStartedTotal   *prometheus.CounterVec
	submissionsTotal       *prometheus.CounterVec
	proctorEventsTotal     *prometheus.CounterVec
	attemptsFlaggedTotal   *prometheus.CounterVec
	gradingDurationSeconds prometheus.Histogram
	eventsPublishedTotal   *prometheus.CounterVec
)

// RegisterMetrics initialises the Prometheus collectors used by the API.
func RegisterMetrics() {
	registerOnce.Do(func() {
		httpRequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobify_http_requests_total",
			Help: "Total number of API requests served.",
		}, []string{"method", "route", "status"})

		httpLatencySeconds = prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "jobify_http_latency_seconds",
			Help:    "Latency distribution for API requests.",
			Buckets: []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0, 2.0, 5.0, 15.0},
		}, []string{"method", "route"})

		httpErrorsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobify_http_errors_total",
			Help: "Total number of error responses returned by the API.",
		}, []string{"method", "route", "status"})

		attemptsStartedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobify_assessment_starts_total",
			Help: "Start calls by outcome (created, resumed, restarted, already_submitted).",
		}, []string{"outcome"})

		submissionsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobify_assessment_submissions_total",
			Help: "Submit calls by result.",
		}, []string{"result"})

		proctorEventsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobify_assessment_proctor_events_total",
			Help: "Proctoring events recorded by type.",
		}, []string{"type"})

		attemptsFlaggedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobify_assessment_flags_total",
			Help: "Attempts flagged by reason.",
		}, []string{"reason"})

		gradingDurationSeconds = prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "jobify_assessment_grading_duration_seconds",
			Help:    "Time spent grading a submitted attempt.",
			Buckets: []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60, 120},
		})

		eventsPublishedTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "jobify_assessment_events_published_total",
			Help: "Advisory assessment events published by kind and outcome.",
		}, []string{"kind", "outcome"})

		prometheus.MustRegister(
			httpRequestsTotal, httpLatencySeconds, httpErrorsTotal,
			attemptsStartedTotal, submissionsTotal, proctorEventsTotal,
			attemptsFlaggedTotal, gradingDurationSeconds, eventsPublishedTotal,
		)
	})
}

// HTTPRequests exposes the request counter.
func HTTPRequests() *prometheus.CounterVec {
	RegisterMetrics()
	return httpRequestsTotal
}

// HTTPLatency exposes the request latency histogram.
func HTTPLatency() *prometheus.HistogramVec {
	RegisterMetrics()
	return httpLatencySeconds
}

// HTTPErrors exposes the error response counter.
func HTTPErrors() *prometheus.CounterVec {
	RegisterMetrics()
	return httpErrorsTotal
}

func AttemptStarts() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsStartedTotal
}

func Submissions() *prometheus.CounterVec {
	RegisterMetrics()
	return submissionsTotal
}

func ProctorEvents() *prometheus.CounterVec {
	RegisterMetrics()
	return proctorEventsTotal
}

func AttemptsFlagged() *prometheus.CounterVec {
	RegisterMetrics()
	return attemptsFlaggedTotal
}

// GradingDuration exposes the histogram observed once per scored submit.
func GradingDuration() prometheus.Histogram {
	RegisterMetrics()
	return gradingDurationSeconds
}

func EventsPublished() *prometheus.CounterVec {
	RegisterMetrics()
	return eventsPublishedTotal
}
