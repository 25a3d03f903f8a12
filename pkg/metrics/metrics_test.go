package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestRecorders(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())

	m.RecordEntitlementCheck("lists", "free", false)
	m.RecordEntitlementCheck("lists", "free", false)
	m.RecordWebhookEvent("revenuecat", "RENEWAL", "applied")
	m.RecordTierChange("premium", false)
	m.RecordClaimUpdate("admin_granted", errors.New("boom"))
	m.RecordOCRRequest(time.Second, nil)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.EntitlementChecks.WithLabelValues("lists", "free", "denied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.WebhookEvents.WithLabelValues("revenuecat", "RENEWAL", "applied")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.TierChanges.WithLabelValues("premium", "stale")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.ClaimUpdates.WithLabelValues("admin_granted", "failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.OCRRequests.WithLabelValues("success")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordEntitlementCheck("ocr", "premium", true)
		m.RecordWebhookEvent("stripe", "EXPIRATION", "noop")
		m.RecordUnmappedProduct("unknown")
		m.RecordLoginAttempt(true)
	})
}

func TestMiddleware(t *testing.T) {
	m := NewWithRegistry(prometheus.NewRegistry())
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/health", func(c echo.Context) error { return c.String(http.StatusOK, "ok") })

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.HTTPRequestsTotal.WithLabelValues("GET", "/health", "200")))
}
