// Package metrics collects Prometheus metrics for workflow transitions and
// HTTP traffic and exposes them for scraping.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/pwannenmacher/ConfReview/internal/models"
)

// Finalization step outcomes
const (
	StepApplied = "applied"
	StepSkipped = "skipped"
	StepFailed  = "failed"
)

// Recorder is the metrics interface consumed by the services
type Recorder interface {
	RecordConferenceTransition(from, to models.ConferenceState)
	RecordPaperTransition(from, to models.PaperState)
	RecordFinalizationStep(outcome string)
}

// NopRecorder discards everything
type NopRecorder struct{}

func (NopRecorder) RecordConferenceTransition(from, to models.ConferenceState) {}
func (NopRecorder) RecordPaperTransition(from, to models.PaperState)           {}
func (NopRecorder) RecordFinalizationStep(outcome string)                      {}

// Collector is the Prometheus implementation of Recorder
type Collector struct {
	conferenceTransitions *prometheus.CounterVec
	paperTransitions      *prometheus.CounterVec
	finalizationSteps     *prometheus.CounterVec
	httpRequests          *prometheus.CounterVec
	httpDuration          *prometheus.HistogramVec
}

var _ Recorder = (*Collector)(nil)

// NewCollector creates a Collector and registers its metrics with reg
func NewCollector(reg prometheus.Registerer) *Collector {
	c := &Collector{
		conferenceTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confreview_conference_transitions_total",
			Help: "Conference state transitions by source and target state",
		}, []string{"from", "to"}),
		paperTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confreview_paper_transitions_total",
			Help: "Paper state transitions by source and target state",
		}, []string{"from", "to"}),
		finalizationSteps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confreview_finalization_steps_total",
			Help: "Paper resolution steps processed while ending conferences",
		}, []string{"outcome"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "confreview_http_requests_total",
			Help: "HTTP requests by method, route and status code",
		}, []string{"method", "route", "status"}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "confreview_http_request_duration_seconds",
			Help:    "HTTP request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		c.conferenceTransitions,
		c.paperTransitions,
		c.finalizationSteps,
		c.httpRequests,
		c.httpDuration,
	)

	return c
}

// RecordConferenceTransition counts a conference state change
func (c *Collector) RecordConferenceTransition(from, to models.ConferenceState) {
	c.conferenceTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordPaperTransition counts a paper state change
func (c *Collector) RecordPaperTransition(from, to models.PaperState) {
	c.paperTransitions.WithLabelValues(string(from), string(to)).Inc()
}

// RecordFinalizationStep counts one processed resolution step
func (c *Collector) RecordFinalizationStep(outcome string) {
	c.finalizationSteps.WithLabelValues(outcome).Inc()
}

// RecordHTTPRequest records one served request
func (c *Collector) RecordHTTPRequest(method, route string, status int, duration time.Duration) {
	c.httpRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
	c.httpDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Middleware records request counts and latency labelled by chi route pattern
func (c *Collector) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}

		next.ServeHTTP(rec, r)

		route := "unmatched"
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			if pattern := rctx.RoutePattern(); pattern != "" {
				route = pattern
			}
		}
		c.RecordHTTPRequest(r.Method, route, rec.status, time.Since(start))
	})
}

// Handler returns the Prometheus scrape handler
func Handler(gatherer prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})
}
