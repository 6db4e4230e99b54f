package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	globalMetrics *Metrics
	globalMu      sync.RWMutex
)

// Metrics holds all Prometheus metrics for phishdrill
type Metrics struct {
	// Campaign activity
	CampaignsLaunchedTotal prometheus.Counter
	ResultsCreatedTotal    prometheus.Counter
	TrackingEventsTotal    *prometheus.CounterVec

	// AI adapter
	AIRequestsTotal          *prometheus.CounterVec
	AIRequestDurationSeconds *prometheus.HistogramVec

	// Mailer
	EmailsTotal *prometheus.CounterVec

	// API metrics
	APIRequestsTotal          *prometheus.CounterVec
	APIRequestDurationSeconds *prometheus.HistogramVec
	APIErrorsTotal            *prometheus.CounterVec

	registry *prometheus.Registry
}

// New creates a new Metrics instance with all metrics registered
func New() *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		CampaignsLaunchedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishdrill_campaigns_launched_total",
				Help: "Total number of launched campaigns",
			},
		),
		ResultsCreatedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "phishdrill_results_created_total",
				Help: "Total number of per-target results created by launches",
			},
		),
		TrackingEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdrill_tracking_events_total",
				Help: "Total number of recorded tracking callbacks",
			},
			[]string{"action"},
		),

		AIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdrill_ai_requests_total",
				Help: "Total number of AI adapter calls",
			},
			[]string{"operation", "outcome"},
		),
		AIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phishdrill_ai_request_duration_seconds",
				Help:    "AI provider call duration in seconds",
				Buckets: []float64{.25, .5, 1, 2.5, 5, 10, 20, 30, 60},
			},
			[]string{"operation"},
		),

		EmailsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdrill_emails_total",
				Help: "Total number of simulated phishing emails by delivery status",
			},
			[]string{"status"},
		),

		APIRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdrill_api_requests_total",
				Help: "Total number of API requests",
			},
			[]string{"method", "path", "status"},
		),
		APIRequestDurationSeconds: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "phishdrill_api_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"method", "path"},
		),
		APIErrorsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "phishdrill_api_errors_total",
				Help: "Total number of API errors",
			},
			[]string{"error_type"},
		),

		registry: reg,
	}

	reg.MustRegister(
		m.CampaignsLaunchedTotal,
		m.ResultsCreatedTotal,
		m.TrackingEventsTotal,
		m.AIRequestsTotal,
		m.AIRequestDurationSeconds,
		m.EmailsTotal,
		m.APIRequestsTotal,
		m.APIRequestDurationSeconds,
		m.APIErrorsTotal,
	)

	return m
}

// Registry returns the Prometheus registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// SetGlobal sets the global metrics instance
func SetGlobal(m *Metrics) {
	globalMu.Lock()
	defer globalMu.Unlock()
	globalMetrics = m
}

// Global returns the global metrics instance
func Global() *Metrics {
	globalMu.RLock()
	defer globalMu.RUnlock()
	return globalMetrics
}

// IncCampaignLaunched records a launch and the results it created
func IncCampaignLaunched(results int) {
	m := Global()
	if m != nil {
		m.CampaignsLaunchedTotal.Inc()
		m.ResultsCreatedTotal.Add(float64(results))
	}
}

// IncTrackingEvent increments the tracking counter for an action
func IncTrackingEvent(action string) {
	m := Global()
	if m != nil {
		m.TrackingEventsTotal.WithLabelValues(action).Inc()
	}
}

// ObserveAIRequest records one AI adapter call
func ObserveAIRequest(operation, outcome string, seconds float64) {
	m := Global()
	if m != nil {
		m.AIRequestsTotal.WithLabelValues(operation, outcome).Inc()
		m.AIRequestDurationSeconds.WithLabelValues(operation).Observe(seconds)
	}
}

// IncEmails increments the email counter for a delivery status
func IncEmails(status string) {
	m := Global()
	if m != nil {
		m.EmailsTotal.WithLabelValues(status).Inc()
	}
}

// IncAPIErrors increments API error counter
func IncAPIErrors(errorType string) {
	m := Global()
	if m != nil {
		m.APIErrorsTotal.WithLabelValues(errorType).Inc()
	}
}
