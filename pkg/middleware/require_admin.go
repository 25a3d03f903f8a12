package middleware

import (
	"context"
	"time"

	apierrors "github.com/jordanlanch/familycart/pkg/api/errors"
	apimw "github.com/jordanlanch/familycart/pkg/api/middleware"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/labstack/echo/v4"
)

// ClaimsReader loads the stored custom claims of a user.
type ClaimsReader interface {
	GetClaims(ctx context.Context, userID string) (models.CustomClaims, error)
}

// RequireAdmin ensures the authenticated user holds the admin claim.
// It must run after JWTMiddleware. The token claim is checked first and the
// stored claims confirm it, so a revoked admin is rejected even with an
// unexpired token.
func RequireAdmin(claims ClaimsReader) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			userID := apimw.UserID(c)
			if userID == "" {
				return apierrors.Unauthenticated(c, "no user in context")
			}
			if !apimw.Claims(c).IsAdmin() {
				return apierrors.PermissionDenied(c, "Admin access required")
			}

			ctx, cancel := context.WithTimeout(c.Request().Context(), 3*time.Second)
			defer cancel()

			stored, err := claims.GetClaims(ctx, userID)
			if err != nil {
				return apierrors.Internal(c, err)
			}
			if !stored.IsAdmin() {
				return apierrors.PermissionDenied(c, "Admin access required")
			}

			return next(c)
		}
	}
}
