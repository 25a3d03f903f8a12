package handlers

import (
	"net/http"

	"github.com/go-playground/validator/v10"
	apimw "github.com/jordanlanch/familycart/pkg/api/middleware"
	"github.com/jordanlanch/familycart/pkg/family"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/labstack/echo/v4"
)

// FamilyHandler manages family group membership
type FamilyHandler struct {
	families  *family.Service
	validator *validator.Validate
}

// NewFamilyHandler creates a new family handler
func NewFamilyHandler(f *family.Service) *FamilyHandler {
	return &FamilyHandler{
		families:  f,
		validator: validator.New(),
	}
}

// Create godoc
// @Summary Create a family group and join it as owner
// @Tags Families
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateFamilyRequest true "Group"
// @Success 201 {object} models.FamilyGroup
// @Router /families [post]
func (h *FamilyHandler) Create(c echo.Context) error {
	var req models.CreateFamilyRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	g, err := h.families.Create(ctx, apimw.UserID(c), req.Name)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, g)
}

// Join godoc
// @Summary Join a family group
// @Tags Families
// @Produce json
// @Security BearerAuth
// @Param id path string true "Family group ID"
// @Success 200 {object} models.FamilyGroup
// @Failure 404 {object} models.ErrorResponse "Group not found"
// @Router /families/{id}/join [post]
func (h *FamilyHandler) Join(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	g, err := h.families.Join(ctx, apimw.UserID(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}

// Leave godoc
// @Summary Leave the current family group
// @Tags Families
// @Produce json
// @Security BearerAuth
// @Success 200 {object} models.SuccessResponse
// @Failure 412 {object} models.ErrorResponse "Not in a group"
// @Router /families/leave [post]
func (h *FamilyHandler) Leave(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	if err := h.families.Leave(ctx, apimw.UserID(c)); err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, models.SuccessResponse{Success: true, Message: "Left family group"})
}

// Get godoc
// @Summary Get a family group the caller belongs to
// @Tags Families
// @Produce json
// @Security BearerAuth
// @Param id path string true "Family group ID"
// @Success 200 {object} models.FamilyGroup
// @Failure 403 {object} models.ErrorResponse "Not a member"
// @Router /families/{id} [get]
func (h *FamilyHandler) Get(c echo.Context) error {
	ctx, cancel := requestContext(c)
	defer cancel()

	g, err := h.families.Get(ctx, apimw.UserID(c), c.Param("id"))
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, g)
}
