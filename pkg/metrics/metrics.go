package metrics

import (
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics. A nil *Metrics is valid and records
// nothing.
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Business metrics
	EntitlementChecks *prometheus.CounterVec
	WebhookEvents     *prometheus.CounterVec
	TierChanges       *prometheus.CounterVec
	UnmappedProducts  *prometheus.CounterVec
	ClaimUpdates      *prometheus.CounterVec
	OCRRequests       *prometheus.CounterVec
	OCRDuration       prometheus.Histogram
	UsersRegistered   prometheus.Counter
	LoginAttempts     *prometheus.CounterVec
}

// New creates a new Metrics instance registered on the default registry
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry registers the metrics on reg
func NewWithRegistry(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		HTTPRequestsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "path", "status"},
		),
		HTTPRequestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "http_request_duration_seconds",
				Help:    "HTTP request latency in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "path", "status"},
		),

		EntitlementChecks: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "entitlement_checks_total",
				Help: "Quota checks by category, tier and result",
			},
			[]string{"category", "tier", "result"}, // allowed, denied
		),
		WebhookEvents: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_webhook_events_total",
				Help: "Billing webhook events by type and outcome",
			},
			[]string{"source", "type", "outcome"}, // applied, noop, error
		),
		TierChanges: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "family_tier_changes_total",
				Help: "Tier writes attempted by the reconciler",
			},
			[]string{"tier", "result"}, // applied, stale
		),
		UnmappedProducts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "billing_unmapped_products_total",
				Help: "Events whose product id had no tier mapping",
			},
			[]string{"product_id"},
		),
		ClaimUpdates: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "custom_claim_updates_total",
				Help: "Custom claim writes by reason",
			},
			[]string{"reason", "status"}, // family_changed, admin_granted
		),
		OCRRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ocr_requests_total",
				Help: "Vision API calls by status",
			},
			[]string{"status"},
		),
		OCRDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "ocr_request_duration_seconds",
			Help:    "Vision API latency in seconds",
			Buckets: []float64{0.25, 0.5, 1, 2, 5, 10, 20, 30},
		}),
		UsersRegistered: factory.NewCounter(prometheus.CounterOpts{
			Name: "users_registered_total",
			Help: "Total number of users registered",
		}),
		LoginAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "login_attempts_total",
				Help: "Total number of login attempts",
			},
			[]string{"status"}, // success, failed
		),
	}
}

// Middleware creates an Echo middleware for Prometheus metrics
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)

			path := c.Path() // route pattern, e.g. /api/v1/families/:id/join
			status := strconv.Itoa(c.Response().Status)
			m.HTTPRequestsTotal.WithLabelValues(c.Request().Method, path, status).Inc()
			m.HTTPRequestDuration.WithLabelValues(c.Request().Method, path, status).Observe(time.Since(start).Seconds())

			return err
		}
	}
}

// RecordEntitlementCheck counts a quota decision
func (m *Metrics) RecordEntitlementCheck(category, tier string, allowed bool) {
	if m == nil {
		return
	}
	result := "denied"
	if allowed {
		result = "allowed"
	}
	m.EntitlementChecks.WithLabelValues(category, tier, result).Inc()
}

// RecordWebhookEvent counts a processed billing event
func (m *Metrics) RecordWebhookEvent(source, eventType, outcome string) {
	if m == nil {
		return
	}
	m.WebhookEvents.WithLabelValues(source, eventType, outcome).Inc()
}

// RecordTierChange counts a tier write and whether it won the timestamp race
func (m *Metrics) RecordTierChange(tier string, applied bool) {
	if m == nil {
		return
	}
	result := "stale"
	if applied {
		result = "applied"
	}
	m.TierChanges.WithLabelValues(tier, result).Inc()
}

// RecordUnmappedProduct counts a product that fell back to the default tier
func (m *Metrics) RecordUnmappedProduct(productID string) {
	if m == nil {
		return
	}
	m.UnmappedProducts.WithLabelValues(productID).Inc()
}

// RecordClaimUpdate counts a custom claim write
func (m *Metrics) RecordClaimUpdate(reason string, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.ClaimUpdates.WithLabelValues(reason, status).Inc()
}

// RecordOCRRequest counts a vision call and its latency
func (m *Metrics) RecordOCRRequest(duration time.Duration, err error) {
	if m == nil {
		return
	}
	status := "success"
	if err != nil {
		status = "failed"
	}
	m.OCRRequests.WithLabelValues(status).Inc()
	m.OCRDuration.Observe(duration.Seconds())
}

// RecordUserRegistered increments users registered counter
func (m *Metrics) RecordUserRegistered() {
	if m == nil {
		return
	}
	m.UsersRegistered.Inc()
}

// RecordLoginAttempt increments login attempts counter
func (m *Metrics) RecordLoginAttempt(success bool) {
	if m == nil {
		return
	}
	status := "failed"
	if success {
		status = "success"
	}
	m.LoginAttempts.WithLabelValues(status).Inc()
}
