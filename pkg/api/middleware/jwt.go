package middleware

import (
	"strings"

	apierrors "github.com/jordanlanch/familycart/pkg/api/errors"
	"github.com/jordanlanch/familycart/pkg/auth"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/labstack/echo/v4"
)

// Context keys set by JWTMiddleware
const (
	ContextUserID    = "user_id"
	ContextUserEmail = "user_email"
	ContextClaims    = "user_claims"
	ContextToken     = "token"
)

// JWTMiddleware creates a JWT authentication middleware
func JWTMiddleware(secret string) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			// Get authorization header
			authHeader := c.Request().Header.Get("Authorization")
			if authHeader == "" {
				return apierrors.Unauthenticated(c, "missing authorization header")
			}

			// Check Bearer prefix
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" || parts[1] == "" {
				return apierrors.Unauthenticated(c, "malformed authorization header")
			}
			token := parts[1]

			claims, err := auth.ValidateJWT(token, secret)
			if err != nil {
				return apierrors.Unauthenticated(c, err.Error())
			}

			c.Set(ContextToken, token)

			// Set user info in context
			c.Set(ContextUserID, claims.UserID)
			c.Set(ContextUserEmail, claims.Email)
			c.Set(ContextClaims, claims.Custom)

			return next(c)
		}
	}
}

// UserID returns the authenticated user id, or "".
func UserID(c echo.Context) string {
	id, _ := c.Get(ContextUserID).(string)
	return id
}

// Claims returns the custom claims of the authenticated token. The result is
// never nil.
func Claims(c echo.Context) models.CustomClaims {
	claims, _ := c.Get(ContextClaims).(models.CustomClaims)
	if claims == nil {
		return models.CustomClaims{}
	}
	return claims
}
