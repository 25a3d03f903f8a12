package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
)

var testOrigins = []string{"http://localhost:19006", "https://app.familycart.app"}

func newCORSEcho(origins []string) *echo.Echo {
	e := echo.New()
	e.Use(middleware.CORSWithConfig(CORSConfig(origins)))
	e.GET("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	e.POST("/test", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})
	return e
}

func TestCORS_AllowedOrigins(t *testing.T) {
	for _, origin := range testOrigins {
		t.Run(origin, func(t *testing.T) {
			e := newCORSEcho(testOrigins)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Origin", origin)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Equal(t, http.StatusOK, rec.Code)
			assert.Equal(t, origin, rec.Header().Get("Access-Control-Allow-Origin"))
			assert.Equal(t, "true", rec.Header().Get("Access-Control-Allow-Credentials"))
		})
	}
}

func TestCORS_BlockedOrigins(t *testing.T) {
	tests := []struct {
		name   string
		origin string
	}{
		{"unknown external site", "https://evil.com"},
		{"similar domain attack", "https://app.familycart.app.evil.com"},
		{"http instead of https", "http://app.familycart.app"},
		{"different port on localhost", "http://localhost:3000"},
		{"null origin", "null"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := newCORSEcho(testOrigins)

			req := httptest.NewRequest(http.MethodGet, "/test", nil)
			req.Header.Set("Origin", tt.origin)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)

			assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
		})
	}
}

func TestCORS_PreflightAllowedOrigin(t *testing.T) {
	e := newCORSEcho(testOrigins)

	req := httptest.NewRequest(http.MethodOptions, "/test", nil)
	req.Header.Set("Origin", "https://app.familycart.app")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Content-Type")
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "https://app.familycart.app", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), "Authorization")
}

func TestCORSConfig_DropsWildcard(t *testing.T) {
	cfg := CORSConfig([]string{"*", "", "https://app.familycart.app"})
	assert.Equal(t, []string{"https://app.familycart.app"}, cfg.AllowOrigins)
	assert.True(t, cfg.AllowCredentials)
	assert.NotContains(t, cfg.AllowMethods, http.MethodOptions)
}
