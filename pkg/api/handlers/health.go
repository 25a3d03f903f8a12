package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/labstack/echo/v4"
)

// Pinger reports backend liveness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// HealthHandler serves GET /health
type HealthHandler struct {
	store   Pinger
	version string
}

// NewHealthHandler creates a new health handler
func NewHealthHandler(store Pinger, version string) *HealthHandler {
	return &HealthHandler{store: store, version: version}
}

// Health godoc
// @Summary Liveness and store connectivity
// @Tags Health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health [get]
func (h *HealthHandler) Health(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	storeStatus := "ok"
	if err := h.store.Ping(ctx); err != nil {
		status = http.StatusServiceUnavailable
		storeStatus = "unavailable"
	}

	return c.JSON(status, map[string]interface{}{
		"status":  http.StatusText(status),
		"store":   storeStatus,
		"version": h.version,
	})
}
