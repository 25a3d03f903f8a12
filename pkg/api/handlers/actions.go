package handlers

import (
	"context"
	"net/http"

	"github.com/go-playground/validator/v10"
	apimw "github.com/jordanlanch/familycart/pkg/api/middleware"
	"github.com/jordanlanch/familycart/pkg/lists"
	custommw "github.com/jordanlanch/familycart/pkg/middleware"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/ocr"
	"github.com/labstack/echo/v4"
)

// ActionsHandler serves the quota-gated actions
type ActionsHandler struct {
	lists     *lists.Service
	ocr       *ocr.Service
	claims    custommw.ClaimsReader
	validator *validator.Validate
}

// NewActionsHandler creates a new actions handler
func NewActionsHandler(l *lists.Service, o *ocr.Service, claims custommw.ClaimsReader) *ActionsHandler {
	return &ActionsHandler{
		lists:     l,
		ocr:       o,
		claims:    claims,
		validator: validator.New(),
	}
}

// caller resolves the acting user. The quota bypass needs the admin claim in
// both the token and the stored claims, so a revoked admin loses it at once.
func (h *ActionsHandler) caller(ctx context.Context, c echo.Context) (lists.Caller, error) {
	who := lists.Caller{UserID: apimw.UserID(c)}
	if !apimw.Claims(c).IsAdmin() {
		return who, nil
	}
	stored, err := h.claims.GetClaims(ctx, who.UserID)
	if err != nil {
		return who, err
	}
	who.Admin = stored.IsAdmin()
	return who, nil
}

// CreateList godoc
// @Summary Create a shopping list
// @Description Counts against the lifetime list quota of the caller's tier
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateListRequest true "List"
// @Success 201 {object} models.ShoppingList
// @Failure 403 {object} models.ErrorResponse "Not a member of the family group"
// @Failure 429 {object} models.ErrorResponse "List quota exhausted"
// @Router /actions/create-list [post]
func (h *ActionsHandler) CreateList(c echo.Context) error {
	var req models.CreateListRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	who, err := h.caller(ctx, c)
	if err != nil {
		return respondError(c, err)
	}
	list, err := h.lists.CreateList(ctx, who, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, list)
}

// CreateUrgentItem godoc
// @Summary Add an urgent item to a list
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.CreateUrgentItemRequest true "Item"
// @Success 201 {object} models.ListItem
// @Failure 404 {object} models.ErrorResponse "List not found"
// @Failure 429 {object} models.ErrorResponse "Monthly urgent item quota exhausted"
// @Router /actions/create-urgent-item [post]
func (h *ActionsHandler) CreateUrgentItem(c echo.Context) error {
	var req models.CreateUrgentItemRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	who, err := h.caller(ctx, c)
	if err != nil {
		return respondError(c, err)
	}
	item, err := h.lists.CreateUrgentItem(ctx, who, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusCreated, item)
}

// ProcessOCR godoc
// @Summary Extract text from a receipt image
// @Tags Actions
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body models.ProcessOCRRequest true "Base64 image"
// @Success 200 {object} models.ProcessOCRResponse
// @Failure 412 {object} models.ErrorResponse "Scanning not configured"
// @Failure 429 {object} models.ErrorResponse "Monthly scan quota exhausted"
// @Router /actions/process-ocr [post]
func (h *ActionsHandler) ProcessOCR(c echo.Context) error {
	var req models.ProcessOCRRequest
	if ok, err := bind(c, h.validator, &req); !ok {
		return err
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	who, err := h.caller(ctx, c)
	if err != nil {
		return respondError(c, err)
	}
	resp, err := h.ocr.Process(ctx, who.UserID, who.Admin, req)
	if err != nil {
		return respondError(c, err)
	}
	return c.JSON(http.StatusOK, resp)
}
