package middleware

import (
	"net/http"

	"github.com/labstack/echo/v4/middleware"
)

// CORSConfig returns the CORS configuration for the given origins. Wildcards
// are dropped since credentials are allowed.
func CORSConfig(origins []string) middleware.CORSConfig {
	allowed := make([]string, 0, len(origins))
	for _, o := range origins {
		if o != "" && o != "*" {
			allowed = append(allowed, o)
		}
	}

	return middleware.CORSConfig{
		AllowOrigins: allowed,
		AllowMethods: []string{
			http.MethodGet,
			http.MethodPost,
			http.MethodPut,
			http.MethodPatch,
			http.MethodDelete,
		},
		AllowCredentials: true,
		AllowHeaders: []string{
			"Origin",
			"Content-Type",
			"Accept",
			"Authorization",
		},
	}
}
