// Package handlers contains the HTTP handlers of the API.
package handlers

import (
	"context"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	apierrors "github.com/jordanlanch/familycart/pkg/api/errors"
	"github.com/jordanlanch/familycart/pkg/auth"
	"github.com/jordanlanch/familycart/pkg/claims"
	"github.com/jordanlanch/familycart/pkg/entitlement"
	"github.com/jordanlanch/familycart/pkg/family"
	"github.com/jordanlanch/familycart/pkg/lists"
	"github.com/jordanlanch/familycart/pkg/ocr"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/labstack/echo/v4"
)

const requestTimeout = 10 * time.Second

var errInvalidLimit = errors.New("limit must be a positive integer")

// requestContext derives a bounded context from the request
func requestContext(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// bind decodes and validates the request body into req. A non-nil error has
// already been written to the response.
func bind(c echo.Context, v *validator.Validate, req interface{}) (bool, error) {
	if err := c.Bind(req); err != nil {
		return false, apierrors.InvalidArgument(c, err)
	}
	if err := v.Struct(req); err != nil {
		return false, apierrors.InvalidArgument(c, err)
	}
	return true, nil
}

// respondError maps a domain error to its HTTP response
func respondError(c echo.Context, err error) error {
	var exhausted *entitlement.ExhaustedError

	switch {
	case errors.As(err, &exhausted):
		return apierrors.ResourceExhausted(c, exhausted.Error())
	case errors.Is(err, family.ErrNotMember):
		return apierrors.PermissionDenied(c, "You are not a member of this family group.")
	case errors.Is(err, lists.ErrListNotFound):
		return apierrors.NotFound(c, "shopping list")
	case errors.Is(err, store.ErrNotFound):
		return apierrors.NotFound(c, "")
	case errors.Is(err, lists.ErrEmptyName),
		errors.Is(err, ocr.ErrInvalidImage),
		errors.Is(err, entitlement.ErrUnknownCategory),
		errors.Is(err, auth.ErrPasswordTooLong),
		errors.Is(err, errInvalidLimit):
		return apierrors.InvalidArgument(c, err)
	case errors.Is(err, family.ErrNoGroup):
		return apierrors.FailedPrecondition(c, "You are not in a family group.")
	case errors.Is(err, ocr.ErrNotConfigured):
		return apierrors.FailedPrecondition(c, "Receipt scanning is not available.")
	case errors.Is(err, auth.ErrEmailTaken):
		return apierrors.Conflict(c, "Email already registered")
	case errors.Is(err, auth.ErrInvalidCredentials):
		return apierrors.Unauthenticated(c, err.Error())
	case errors.Is(err, claims.ErrBootstrapUnavailable):
		return apierrors.NotFound(c, "")
	default:
		return apierrors.Internal(c, err)
	}
}
