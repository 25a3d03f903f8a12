package handlers

import (
	"context"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/jordanlanch/familycart/pkg/claims"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/labstack/echo/v4"
)

// WebhookLog reads the diagnostic billing event log.
type WebhookLog interface {
	RecentWebhookLog(ctx context.Context, limit int) ([]models.WebhookLogEntry, error)
}

// AdminHandler serves the admin claim endpoints
type AdminHandler struct {
	claims    *claims.Service
	webhooks  WebhookLog
	validator *validator.Validate
}

// NewAdminHandler creates a new admin handler
func NewAdminHandler(cs *claims.Service, webhooks WebhookLog) *AdminHandler {
	return &AdminHandler{
		claims:    cs,
		webhooks:  webhooks,
		validator: validator.New(),
	}
}

// GrantAdmin godoc
// @Summary Grant the admin claim to a user
// @Tags Admin
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.GrantAdminRequest true "Target user"
// @Success 200 {object} models.SuccessResponse
// @Failure 403 {object} models.ErrorResponse "Caller is not an admin"
// @Failure 404 {object} models.ErrorResponse "User not found"
// @Router /admin/claims/admin [post]
func (h *AdminHandler) GrantAdmin(c echo.Context) error {
	var req models.GrantAdminRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.claims.GrantAdmin(ctx, req.UserID); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Admin claim granted"})
}

// BootstrapAdmin godoc
// @Summary Create the first admin account
// @Description Unauthenticated and usable once per deployment when enabled
// @Tags Admin
// @Accept json
// @Produce json
// @Param request body models.RegisterRequest true "Admin credentials"
// @Success 201 {object} models.AuthResponse
// @Failure 404 {object} models.ErrorResponse "Disabled or already used"
// @Router /bootstrap/admin [post]
func (h *AdminHandler) BootstrapAdmin(c echo.Context) error {
	var req models.RegisterRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	resp, err := h.claims.BootstrapAdmin(ctx, req.Email, req.Password)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, resp)
}

// WebhookEvents godoc
// @Summary Recent billing webhook events
// @Tags Admin
// @Produce json
// @Security BearerAuth
// @Param limit query int false "Max entries (default 100)"
// @Success 200 {object} map[string]interface{}
// @Router /admin/webhooks [get]
func (h *AdminHandler) WebhookEvents(c echo.Context) error {
	limit := 100
	if raw := c.QueryParam("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			return respondError(c, errInvalidLimit)
		}
		limit = n
	}
	if limit > store.WebhookLogLimit {
		limit = store.WebhookLogLimit
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	entries, err := h.webhooks.RecentWebhookLog(ctx, limit)
	if err != nil {
		return respondError(c, err)
	}
	if entries == nil {
		entries = []models.WebhookLogEntry{}
	}

	return c.JSON(http.StatusOK, map[string]interface{}{
		"events": entries,
		"count":  len(entries),
	})
}
