package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-playground/validator/v10"
	apimw "github.com/jordanlanch/familycart/pkg/api/middleware"
	"github.com/jordanlanch/familycart/pkg/auth"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/labstack/echo/v4"
)

// ProfileStore reads everything GET /me reports.
type ProfileStore interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetClaims(ctx context.Context, userID string) (models.CustomClaims, error)
	GetClaimsUpdatedAt(ctx context.Context, userID string) (*int64, error)
	GetUsage(ctx context.Context, userID string) (*models.UsageCounters, bool, error)
	GetFamilyGroup(ctx context.Context, id string) (*models.FamilyGroup, error)
}

// AuthHandler handles authentication endpoints
type AuthHandler struct {
	auth      *auth.Service
	profiles  ProfileStore
	validator *validator.Validate
}

// NewAuthHandler creates a new auth handler
func NewAuthHandler(a *auth.Service, profiles ProfileStore) *AuthHandler {
	return &AuthHandler{
		auth:      a,
		profiles:  profiles,
		validator: validator.New(),
	}
}

// Register godoc
// @Summary Register a new user
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Registration data"
// @Success 201 {object} models.AuthResponse
// @Failure 400 {object} models.ErrorResponse "Invalid request"
// @Failure 409 {object} models.ErrorResponse "User already exists"
// @Router /auth/register [post]
func (h *AuthHandler) Register(c echo.Context) error {
	var req models.RegisterRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := h.auth.Register(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// Login godoc
// @Summary Log in with email and password
// @Tags Authentication
// @Accept json
// @Produce json
// @Param request body models.LoginRequest true "Credentials"
// @Success 200 {object} models.AuthResponse
// @Failure 401 {object} models.ErrorResponse "Invalid credentials"
// @Router /auth/login [post]
func (h *AuthHandler) Login(c echo.Context) error {
	var req models.LoginRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := h.auth.Login(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Refresh godoc
// @Summary Re-issue a token from the current stored claims
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.AuthResponse
// @Router /auth/refresh [post]
func (h *AuthHandler) Refresh(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := h.auth.Refresh(ctx, apimw.UserID(c))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}

// Me godoc
// @Summary Current user profile, claims and usage
// @Tags Authentication
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.ProfileResponse
// @Router /me [get]
func (h *AuthHandler) Me(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	userID := apimw.UserID(c)
	u, err := h.profiles.GetUser(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}

	claims, err := h.profiles.GetClaims(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	updatedAt, err := h.profiles.GetClaimsUpdatedAt(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	usage, _, err := h.profiles.GetUsage(ctx, userID)
	if err != nil {
		return respondError(c, err)
	}
	if usage == nil {
		usage = &models.UsageCounters{}
	}

	resp := models.ProfileResponse{
		User:            u,
		Claims:          claims,
		ClaimsUpdatedAt: updatedAt,
		Usage:           usage,
	}
	if u.FamilyGroupID != "" {
		g, err := h.profiles.GetFamilyGroup(ctx, u.FamilyGroupID)
		switch {
		case err == nil:
			resp.Tier = g.SubscriptionTier
		case errors.Is(err, store.ErrNotFound):
			resp.Tier = models.TierFree
		default:
			return respondError(c, err)
		}
	}

	return c.JSON(http.StatusOK, resp)
}
