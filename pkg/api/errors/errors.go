package errors

import (
	"net/http"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/labstack/echo/v4"
)

// Error codes returned in models.ErrorResponse.Error
const (
	CodeUnauthenticated    = "unauthenticated"
	CodeInvalidArgument    = "invalid_argument"
	CodePermissionDenied   = "permission_denied"
	CodeNotFound           = "not_found"
	CodeResourceExhausted  = "resource_exhausted"
	CodeFailedPrecondition = "failed_precondition"
	CodeConflict           = "conflict"
	CodeInternal           = "internal"
)

var log = logger.Default()

// SetLogger replaces the logger used for error details
func SetLogger(l logger.Logger) {
	log = l
}

// Unauthenticated returns a 401 without revealing why the credential failed
func Unauthenticated(c echo.Context, reason string) error {
	log.Debug("unauthenticated request", "path", c.Request().URL.Path, "reason", reason)

	return c.JSON(http.StatusUnauthorized, models.ErrorResponse{
		Error:   CodeUnauthenticated,
		Message: "Authentication is required to access this resource.",
	})
}

// InvalidArgument returns a generic validation error without exposing internal details
func InvalidArgument(c echo.Context, err error) error {
	log.Info("invalid argument", "path", c.Request().URL.Path, "error", err)

	return c.JSON(http.StatusBadRequest, models.ErrorResponse{
		Error:   CodeInvalidArgument,
		Message: "Invalid request data. Please check your input and try again.",
	})
}

// PermissionDenied returns a 403
func PermissionDenied(c echo.Context, message string) error {
	if message == "" {
		message = "You do not have permission to access this resource."
	}
	return c.JSON(http.StatusForbidden, models.ErrorResponse{
		Error:   CodePermissionDenied,
		Message: message,
	})
}

// NotFound returns a 404 naming the resource kind
func NotFound(c echo.Context, resource string) error {
	message := "The requested resource was not found."
	if resource != "" {
		message = "The requested " + resource + " was not found."
	}
	return c.JSON(http.StatusNotFound, models.ErrorResponse{
		Error:   CodeNotFound,
		Message: message,
	})
}

// ResourceExhausted returns a 429 whose message is the human-readable quota reason
func ResourceExhausted(c echo.Context, reason string) error {
	return c.JSON(http.StatusTooManyRequests, models.ErrorResponse{
		Error:   CodeResourceExhausted,
		Message: reason,
	})
}

// FailedPrecondition returns a 412 for requests the server cannot serve in its
// current configuration
func FailedPrecondition(c echo.Context, message string) error {
	return c.JSON(http.StatusPreconditionFailed, models.ErrorResponse{
		Error:   CodeFailedPrecondition,
		Message: message,
	})
}

// Conflict returns a 409
func Conflict(c echo.Context, message string) error {
	return c.JSON(http.StatusConflict, models.ErrorResponse{
		Error:   CodeConflict,
		Message: message, // Message is safe to expose (e.g., "Email already registered")
	})
}

// Internal returns a generic 500. The detail is logged and reported to Sentry
// through the request hub.
func Internal(c echo.Context, err error) error {
	log.Error("internal error",
		"method", c.Request().Method,
		"path", c.Request().URL.Path,
		"error", err,
	)

	if hub := sentryecho.GetHubFromContext(c); hub != nil {
		hub.WithScope(func(scope *sentry.Scope) {
			scope.SetTag("path", c.Path())
			hub.CaptureException(err)
		})
	}

	return c.JSON(http.StatusInternalServerError, models.ErrorResponse{
		Error:   CodeInternal,
		Message: "An internal error occurred. Please try again later.",
	})
}
