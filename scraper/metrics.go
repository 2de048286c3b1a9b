package scraper

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics bundles Prometheus collectors for the harvester.
type Metrics struct {
	Registry               *prometheus.Registry
	RequestsTotal          *prometheus.CounterVec
	RequestDuration        prometheus.Histogram
	ProductsHarvestedTotal prometheus.Counter
	ReviewsTotal           prometheus.Counter
	ReviewPagesTotal       prometheus.Counter
	FieldFallbacksTotal    *prometheus.CounterVec
	ErrorsTotal            *prometheus.CounterVec
}

// NewMetrics constructs and registers all metrics on a dedicated registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	requests := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_requests_total",
			Help: "Total HTTP requests issued to the storefront.",
		},
		[]string{"method"},
	)
	requestDuration := prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "harvester_request_duration_seconds",
			Help:    "HTTP request latency for storefront requests.",
			Buckets: prometheus.DefBuckets,
		},
	)
	products := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_products_total",
			Help: "Total number of wishlist products harvested.",
		},
	)
	reviews := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_reviews_total",
			Help: "Total number of reviews collected.",
		},
	)
	reviewPages := prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "harvester_review_pages_total",
			Help: "Total number of review pages fetched.",
		},
	)
	fallbacks := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_field_fallbacks_total",
			Help: "Product fields that fell back to their default value.",
		},
		[]string{"field"},
	)
	errorsTotal := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "harvester_errors_total",
			Help: "Total number of harvester errors by type.",
		},
		[]string{"error_type"},
	)

	registry.MustRegister(requests, requestDuration, products, reviews, reviewPages, fallbacks, errorsTotal)

	return &Metrics{
		Registry:               registry,
		RequestsTotal:          requests,
		RequestDuration:        requestDuration,
		ProductsHarvestedTotal: products,
		ReviewsTotal:           reviews,
		ReviewPagesTotal:       reviewPages,
		FieldFallbacksTotal:    fallbacks,
		ErrorsTotal:            errorsTotal,
	}
}

// IncRequest increments the requests total counter.
func (m *Metrics) IncRequest(method string) {
	if m == nil {
		return
	}
	m.RequestsTotal.WithLabelValues(method).Inc()
}

// ObserveDuration records an HTTP request duration.
func (m *Metrics) ObserveDuration(d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.Observe(d.Seconds())
}

// IncProducts increments the products counter.
func (m *Metrics) IncProducts() {
	if m == nil {
		return
	}
	m.ProductsHarvestedTotal.Inc()
}

// AddReviews adds n collected reviews.
func (m *Metrics) AddReviews(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.ReviewsTotal.Add(float64(n))
}

// IncReviewPages increments the review pages counter.
func (m *Metrics) IncReviewPages() {
	if m == nil {
		return
	}
	m.ReviewPagesTotal.Inc()
}

// IncFallback counts a field that collapsed to its default.
func (m *Metrics) IncFallback(field string) {
	if m == nil {
		return
	}
	m.FieldFallbacksTotal.WithLabelValues(field).Inc()
}

// IncError increments the errors counter for a type label.
func (m *Metrics) IncError(errorType string) {
	if m == nil {
		return
	}
	m.ErrorsTotal.WithLabelValues(errorType).Inc()
}
