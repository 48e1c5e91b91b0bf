// Package observability holds the Prometheus collectors and tracing helpers of the service.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "proposal_risk"

// Metrics groups every collector the service records to
type Metrics struct {
	AnalysesCreated   *prometheus.CounterVec
	RiskScore         prometheus.Histogram
	NarrativeDuration prometheus.Histogram
	NarrativeFailures prometheus.Counter
	Refreshes         *prometheus.CounterVec
	HTTPRequests      *prometheus.CounterVec
	HTTPDuration      *prometheus.HistogramVec
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		AnalysesCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_created_total",
			Help:      "Analyses persisted, by source kind and risk band.",
		}, []string{"source", "band"}),
		RiskScore: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "risk_score_percent",
			Help:      "Distribution of assessed risk scores.",
			Buckets:   prometheus.LinearBuckets(0, 10, 11),
		}),
		NarrativeDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "narrative_generation_seconds",
			Help:      "Latency of narrative generation calls.",
			Buckets:   prometheus.ExponentialBuckets(0.25, 2, 10),
		}),
		NarrativeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "narrative_failures_total",
			Help:      "Narrative generation calls that fell back to the failure text.",
		}),
		Refreshes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sheet_refreshes_total",
			Help:      "Spreadsheet-backed analyses recomputed, by result.",
		}, []string{"result"}),
		HTTPRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "HTTP requests served, by method, route and status code.",
		}, []string{"method", "route", "status"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency by route.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}

	reg.MustRegister(
		m.AnalysesCreated,
		m.RiskScore,
		m.NarrativeDuration,
		m.NarrativeFailures,
		m.Refreshes,
		m.HTTPRequests,
		m.HTTPDuration,
	)

	return m
}

// NewNopMetrics returns collectors registered on a throwaway registry, for tests and tools.
func NewNopMetrics() *Metrics {
	return NewMetrics(prometheus.NewRegistry())
}
