package billing

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
)

// StripeUserMetadataKey is the subscription metadata key holding the app user id.
const StripeUserMetadataKey = "app_user_id"

var (
	// ErrStripeDisabled is returned when no webhook secret is configured.
	ErrStripeDisabled = errors.New("stripe webhooks are not configured")
	// ErrInvalidSignature is returned when Stripe-Signature does not verify.
	ErrInvalidSignature = errors.New("stripe signature verification failed")
	// ErrMalformedEvent is returned when the event object cannot be decoded.
	ErrMalformedEvent = errors.New("malformed stripe event")
)

// StripeAdapter verifies Stripe webhooks and feeds them to the reconciler
type StripeAdapter struct {
	secret     string
	reconciler *Reconciler
	log        logger.Logger
}

// NewStripeAdapter creates an adapter; an empty secret disables it
func NewStripeAdapter(secret string, r *Reconciler, log logger.Logger) *StripeAdapter {
	return &StripeAdapter{
		secret:     secret,
		reconciler: r,
		log:        log.With("component", "stripe"),
	}
}

// Enabled reports whether a webhook secret is configured
func (a *StripeAdapter) Enabled() bool {
	return a.secret != ""
}

// HandleWebhook processes Stripe webhook events
func (a *StripeAdapter) HandleWebhook(ctx context.Context, payload []byte, signature string) (*Outcome, error) {
	if !a.Enabled() {
		return nil, ErrStripeDisabled
	}

	// Verify webhook signature
	event, err := webhook.ConstructEventWithOptions(payload, signature, a.secret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}

	a.log.Info("stripe webhook received", "event_id", event.ID, "type", string(event.Type))

	translated, ok, err := TranslateStripeEvent(event)
	if err != nil {
		return nil, err
	}
	if !ok {
		a.log.Debug("unhandled stripe event type", "type", string(event.Type))
		return &Outcome{EventID: event.ID, Note: "unhandled event type"}, nil
	}

	return a.reconciler.Reconcile(ctx, *translated)
}

// TranslateStripeEvent converts a Stripe event into a billing lifecycle
// event. The boolean is false for event types that carry no tier change.
func TranslateStripeEvent(event stripe.Event) (*models.WebhookEvent, bool, error) {
	out := &models.WebhookEvent{
		ID:               event.ID,
		EventTimestampMs: event.Created * 1000,
	}

	switch event.Type {
	case "customer.subscription.created",
		"customer.subscription.updated",
		"customer.subscription.deleted":
		var sub stripe.Subscription
		if err := json.Unmarshal(event.Data.Raw, &sub); err != nil {
			return nil, false, fmt.Errorf("%w: failed to unmarshal subscription: %v", ErrMalformedEvent, err)
		}
		out.AppUserID = sub.Metadata[StripeUserMetadataKey]
		out.ProductID = subscriptionPriceID(&sub)

		switch event.Type {
		case "customer.subscription.deleted":
			out.Type = models.EventExpiration
		case "customer.subscription.created":
			// incomplete subscriptions have not been paid for yet
			t, ok := subscriptionStatusEvent(sub.Status)
			if !ok || t != models.EventProductChange {
				return nil, false, nil
			}
			out.Type = models.EventInitialPurchase
		default:
			t, ok := subscriptionStatusEvent(sub.Status)
			if !ok {
				return nil, false, nil
			}
			out.Type = t
		}

	case "invoice.paid", "invoice.payment_failed":
		var invoice stripe.Invoice
		if err := json.Unmarshal(event.Data.Raw, &invoice); err != nil {
			return nil, false, fmt.Errorf("%w: failed to unmarshal invoice: %v", ErrMalformedEvent, err)
		}
		out.AppUserID = invoiceUserID(&invoice)
		out.ProductID = invoicePriceID(&invoice)

		out.Type = models.EventRenewal
		if event.Type == "invoice.payment_failed" {
			out.Type = models.EventBillingIssue
		} else if out.ProductID == "" {
			// nothing billable to renew
			return nil, false, nil
		}

	default:
		return nil, false, nil
	}

	return out, true, nil
}

func subscriptionStatusEvent(status stripe.SubscriptionStatus) (models.WebhookEventType, bool) {
	switch status {
	case stripe.SubscriptionStatusActive, stripe.SubscriptionStatusTrialing:
		return models.EventProductChange, true
	case stripe.SubscriptionStatusCanceled,
		stripe.SubscriptionStatusUnpaid,
		stripe.SubscriptionStatusIncompleteExpired:
		return models.EventExpiration, true
	}
	// past_due, incomplete and paused keep the current tier
	return "", false
}

func subscriptionPriceID(sub *stripe.Subscription) string {
	if sub.Items == nil {
		return ""
	}
	for _, item := range sub.Items.Data {
		if item != nil && item.Price != nil && item.Price.ID != "" {
			return item.Price.ID
		}
	}
	return ""
}

func invoiceUserID(invoice *stripe.Invoice) string {
	if invoice.SubscriptionDetails != nil {
		if id := invoice.SubscriptionDetails.Metadata[StripeUserMetadataKey]; id != "" {
			return id
		}
	}
	return invoice.Metadata[StripeUserMetadataKey]
}

// invoicePriceID returns the price the invoice bills for. Regular lines win
// over prorations; credit lines for the replaced price are never used.
func invoicePriceID(invoice *stripe.Invoice) string {
	if invoice.Lines == nil {
		return ""
	}
	var prorated string
	for _, line := range invoice.Lines.Data {
		if line == nil || line.Price == nil || line.Price.ID == "" || line.Amount < 0 {
			continue
		}
		if !line.Proration {
			return line.Price.ID
		}
		if prorated == "" && line.Amount > 0 {
			prorated = line.Price.ID
		}
	}
	return prorated
}
