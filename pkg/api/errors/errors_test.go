package errors

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// newContext creates an echo.Context backed by an httptest.NewRecorder for the
// given HTTP method and path.
func newContext(method, path string) (echo.Context, *httptest.ResponseRecorder) {
	e := echo.New()
	req := httptest.NewRequest(method, path, nil)
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func parseBody(t *testing.T, rec *httptest.ResponseRecorder) models.ErrorResponse {
	t.Helper()
	var resp models.ErrorResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp
}

// captureLog points the package logger at a buffer for the duration of fn
func captureLog(fn func()) string {
	var buf bytes.Buffer
	orig := log
	SetLogger(logger.NewWithWriter(&buf, "debug", "json"))
	defer SetLogger(orig)
	fn()
	return buf.String()
}

func TestResponses(t *testing.T) {
	tests := []struct {
		name       string
		write      func(c echo.Context) error
		wantStatus int
		wantCode   string
	}{
		{"unauthenticated", func(c echo.Context) error { return Unauthenticated(c, "missing bearer") }, http.StatusUnauthorized, CodeUnauthenticated},
		{"invalid argument", func(c echo.Context) error { return InvalidArgument(c, errors.New("name: required")) }, http.StatusBadRequest, CodeInvalidArgument},
		{"permission denied", func(c echo.Context) error { return PermissionDenied(c, "") }, http.StatusForbidden, CodePermissionDenied},
		{"not found", func(c echo.Context) error { return NotFound(c, "user") }, http.StatusNotFound, CodeNotFound},
		{"resource exhausted", func(c echo.Context) error { return ResourceExhausted(c, "limit reached") }, http.StatusTooManyRequests, CodeResourceExhausted},
		{"failed precondition", func(c echo.Context) error { return FailedPrecondition(c, "not configured") }, http.StatusPreconditionFailed, CodeFailedPrecondition},
		{"conflict", func(c echo.Context) error { return Conflict(c, "Email already registered") }, http.StatusConflict, CodeConflict},
		{"internal", func(c echo.Context) error { return Internal(c, errors.New("boom")) }, http.StatusInternalServerError, CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, rec := newContext(http.MethodPost, "/api/v1/actions/create-list")
			require.NoError(t, tt.write(c))

			assert.Equal(t, tt.wantStatus, rec.Code)
			assert.Contains(t, rec.Header().Get("Content-Type"), "application/json")

			resp := parseBody(t, rec)
			assert.Equal(t, tt.wantCode, resp.Error)
			assert.NotEmpty(t, resp.Message)
		})
	}
}

func TestResourceExhausted_CarriesReason(t *testing.T) {
	reason := "You've reached the limit of 4 shopping lists on the free plan. Upgrade to create more lists."
	c, rec := newContext(http.MethodPost, "/api/v1/actions/create-list")
	_ = ResourceExhausted(c, reason)

	assert.Equal(t, reason, parseBody(t, rec).Message)
}

func TestNotFound_NamesResource(t *testing.T) {
	c, rec := newContext(http.MethodGet, "/api/v1/families/x")
	_ = NotFound(c, "family group")

	assert.Equal(t, "The requested family group was not found.", parseBody(t, rec).Message)
}

func TestInternal_NoUpstreamDetails(t *testing.T) {
	internalMsg := "vision request failed: error, status code: 401, message: Incorrect API key sk-live-abc"
	c, rec := newContext(http.MethodPost, "/api/v1/actions/process-ocr")
	_ = Internal(c, errors.New(internalMsg))

	assert.NotContains(t, rec.Body.String(), "sk-live")
	assert.NotContains(t, rec.Body.String(), "status code")
}

func TestInternal_LogsDetail(t *testing.T) {
	internalMsg := "redis: connection pool timeout"
	logged := captureLog(func() {
		c, _ := newContext(http.MethodPost, "/webhooks/revenuecat")
		_ = Internal(c, errors.New(internalMsg))
	})

	assert.Contains(t, logged, internalMsg)
	assert.Contains(t, logged, "/webhooks/revenuecat")
}

func TestInvalidArgument_LogsButHidesDetail(t *testing.T) {
	detail := "Key: 'CreateListRequest.Name' Error:Field validation for 'Name' failed on the 'required' tag"
	var body string
	logged := captureLog(func() {
		c, rec := newContext(http.MethodPost, "/api/v1/actions/create-list")
		_ = InvalidArgument(c, errors.New(detail))
		body = rec.Body.String()
	})

	assert.Contains(t, logged, "CreateListRequest.Name")
	assert.NotContains(t, body, "CreateListRequest")
}

func TestUnauthenticated_DoesNotLeakReason(t *testing.T) {
	c, rec := newContext(http.MethodPost, "/webhooks/revenuecat")
	_ = Unauthenticated(c, "token mismatch")

	assert.NotContains(t, rec.Body.String(), "mismatch")
}
