// Package metrics defines the Prometheus instruments shared by all services.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// JobsSubmitted counts accepted job submissions.
	JobsSubmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weathercards_jobs_submitted_total",
		Help: "Total number of jobs accepted at the API.",
	})

	// JobsDispatched counts dispatch outcomes.
	JobsDispatched = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weathercards_jobs_dispatched_total",
		Help: "Total number of dispatch attempts by outcome.",
	}, []string{"outcome"})

	// ItemsProcessed counts per-item worker outcomes.
	ItemsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weathercards_items_processed_total",
		Help: "Total number of processed work items by outcome.",
	}, []string{"outcome"})

	// PlaceholdersGenerated counts placeholder substitutions.
	PlaceholdersGenerated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "weathercards_placeholders_generated_total",
		Help: "Total number of placeholder images substituted for failed fetches.",
	})

	// ProviderRequests counts upstream calls by provider and result.
	ProviderRequests = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "weathercards_provider_requests_total",
		Help: "Total number of upstream provider calls.",
	}, []string{"provider", "result"})

	// ItemProcessingDuration measures end-to-end work-item latency.
	ItemProcessingDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "weathercards_item_processing_seconds",
		Help:    "Duration of a single work-item processing run in seconds.",
		Buckets: prometheus.DefBuckets,
	})

	// HTTPRequestDuration measures API request latency per route.
	HTTPRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "weathercards_http_request_seconds",
		Help:    "Duration of HTTP requests in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"method", "route", "status"})
)
