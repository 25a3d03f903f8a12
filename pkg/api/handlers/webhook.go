package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	apierrors "github.com/jordanlanch/familycart/pkg/api/errors"
	"github.com/jordanlanch/familycart/pkg/billing"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/metrics"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/labstack/echo/v4"
)

// maxWebhookBody caps webhook payloads
const maxWebhookBody = 1 << 20

var errMissingEvent = errors.New("payload has no event")

// WebhookHandler receives billing provider events
type WebhookHandler struct {
	reconciler *billing.Reconciler
	stripe     *billing.StripeAdapter
	authToken  string
	log        logger.Logger
	metrics    *metrics.Metrics
}

// NewWebhookHandler creates a new webhook handler. An empty authToken rejects
// every RevenueCat delivery.
func NewWebhookHandler(r *billing.Reconciler, stripe *billing.StripeAdapter, authToken string, log logger.Logger, m *metrics.Metrics) *WebhookHandler {
	return &WebhookHandler{
		reconciler: r,
		stripe:     stripe,
		authToken:  authToken,
		log:        log.With("component", "webhooks"),
		metrics:    m,
	}
}

// RevenueCat godoc
// @Summary RevenueCat subscription webhook
// @Description Authenticated with a shared bearer token. Duplicate and stale events return 200.
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} models.ErrorResponse "Malformed payload"
// @Failure 401 {object} models.ErrorResponse "Bad token"
// @Failure 500 {object} models.ErrorResponse "Reconciliation failed"
// @Router /webhooks/revenuecat [post]
func (h *WebhookHandler) RevenueCat(c echo.Context) error {
	if header := c.Request().Header.Get("Authorization"); !h.authorized(header) {
		h.log.Warn("webhook rejected", "remote_ip", c.RealIP(), "token", logger.MaskToken(header))
		h.metrics.RecordWebhookEvent("revenuecat", "unknown", "unauthorized")
		return apierrors.Unauthenticated(c, "webhook token mismatch")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return apierrors.InvalidArgument(c, err)
	}

	event, err := decodeRevenueCat(body)
	if err != nil {
		h.metrics.RecordWebhookEvent("revenuecat", "unknown", "invalid")
		return apierrors.InvalidArgument(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := h.reconciler.Reconcile(ctx, *event)
	if err != nil {
		h.metrics.RecordWebhookEvent("revenuecat", string(event.Type), billing.OutcomeError)
		return apierrors.Internal(c, err)
	}

	h.metrics.RecordWebhookEvent("revenuecat", string(event.Type), out.Result())
	h.log.Info("webhook processed",
		"event_id", event.ID,
		"type", string(event.Type),
		"outcome", out.Result(),
	)
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// Stripe godoc
// @Summary Stripe subscription webhook
// @Description Verified with the Stripe-Signature header
// @Tags Webhooks
// @Accept json
// @Produce json
// @Success 200 {object} map[string]string
// @Failure 400 {object} models.ErrorResponse "Malformed event"
// @Failure 401 {object} models.ErrorResponse "Bad signature"
// @Failure 404 {object} models.ErrorResponse "Stripe not configured"
// @Router /webhooks/stripe [post]
func (h *WebhookHandler) Stripe(c echo.Context) error {
	if h.stripe == nil || !h.stripe.Enabled() {
		return apierrors.NotFound(c, "")
	}

	body, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody))
	if err != nil {
		return apierrors.InvalidArgument(c, err)
	}

	ctx, cancel := requestContext(c)
	defer cancel()

	out, err := h.stripe.HandleWebhook(ctx, body, c.Request().Header.Get("Stripe-Signature"))
	switch {
	case errors.Is(err, billing.ErrStripeDisabled):
		return apierrors.NotFound(c, "")
	case errors.Is(err, billing.ErrInvalidSignature):
		h.metrics.RecordWebhookEvent("stripe", "unknown", "unauthorized")
		return apierrors.Unauthenticated(c, err.Error())
	case errors.Is(err, billing.ErrMalformedEvent):
		h.metrics.RecordWebhookEvent("stripe", "unknown", "invalid")
		return apierrors.InvalidArgument(c, err)
	case err != nil:
		h.metrics.RecordWebhookEvent("stripe", "unknown", billing.OutcomeError)
		return apierrors.Internal(c, err)
	}

	eventType := string(out.Type)
	if eventType == "" {
		eventType = "unhandled"
	}
	h.metrics.RecordWebhookEvent("stripe", eventType, out.Result())
	return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
}

// authorized compares the bearer token in constant time
func (h *WebhookHandler) authorized(header string) bool {
	if h.authToken == "" {
		return false
	}
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(strings.TrimSpace(token)), []byte(h.authToken)) == 1
}

func decodeRevenueCat(body []byte) (*models.WebhookEvent, error) {
	var payload models.WebhookPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("failed to decode webhook payload: %w", err)
	}
	if payload.Event == nil {
		return nil, errMissingEvent
	}
	if payload.Event.Type == "" {
		return nil, fmt.Errorf("%w type", errMissingEvent)
	}
	if payload.Event.EventTimestampMs <= 0 {
		return nil, fmt.Errorf("%w timestamp", errMissingEvent)
	}
	return payload.Event, nil
}
