package billing

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testStripeSecret = "whsec_test_secret"

func stripeEventJSON(t *testing.T, id, eventType string, created int64, object interface{}) []byte {
	t.Helper()
	obj, err := json.Marshal(object)
	require.NoError(t, err)
	return []byte(fmt.Sprintf(
		`{"id":%q,"object":"event","api_version":%q,"created":%d,"type":%q,"data":{"object":%s}}`,
		id, stripe.APIVersion, created, eventType, obj,
	))
}

func subscriptionObject(userID, status, priceID string) map[string]interface{} {
	return map[string]interface{}{
		"id":       "sub_123",
		"object":   "subscription",
		"status":   status,
		"metadata": map[string]string{StripeUserMetadataKey: userID},
		"items": map[string]interface{}{
			"object": "list",
			"data": []interface{}{
				map[string]interface{}{
					"id":     "si_123",
					"object": "subscription_item",
					"price":  map[string]interface{}{"id": priceID, "object": "price"},
				},
			},
		},
	}
}

func invoiceObject(userID, priceID string) map[string]interface{} {
	return invoiceWithLines(userID, invoiceLine(priceID, 999, false))
}

func invoiceLine(priceID string, amount int64, proration bool) map[string]interface{} {
	return map[string]interface{}{
		"id":        "il_" + priceID,
		"object":    "line_item",
		"amount":    amount,
		"proration": proration,
		"price":     map[string]interface{}{"id": priceID, "object": "price"},
	}
}

func invoiceWithLines(userID string, lines ...map[string]interface{}) map[string]interface{} {
	data := make([]interface{}, 0, len(lines))
	for _, l := range lines {
		data = append(data, l)
	}
	return map[string]interface{}{
		"id":     "in_123",
		"object": "invoice",
		"subscription_details": map[string]interface{}{
			"metadata": map[string]string{StripeUserMetadataKey: userID},
		},
		"lines": map[string]interface{}{
			"object": "list",
			"data":   data,
		},
	}
}

func sign(payload []byte) string {
	signed := webhook.GenerateTestSignedPayload(&webhook.UnsignedPayload{
		Payload:   payload,
		Secret:    testStripeSecret,
		Timestamp: time.Now(),
	})
	return signed.Header
}

func decodeStripeEvent(t *testing.T, payload []byte) stripe.Event {
	t.Helper()
	var event stripe.Event
	require.NoError(t, json.Unmarshal(payload, &event))
	return event
}

func TestTranslateStripeEvent(t *testing.T) {
	tests := []struct {
		name      string
		eventType string
		object    map[string]interface{}
		wantType  models.WebhookEventType
		wantOK    bool
	}{
		{"subscription created", "customer.subscription.created", subscriptionObject("u1", "active", "family_monthly"), models.EventInitialPurchase, true},
		{"subscription created trialing", "customer.subscription.created", subscriptionObject("u1", "trialing", "family_monthly"), models.EventInitialPurchase, true},
		{"subscription created incomplete", "customer.subscription.created", subscriptionObject("u1", "incomplete", "family_monthly"), "", false},
		{"subscription created incomplete expired", "customer.subscription.created", subscriptionObject("u1", "incomplete_expired", "family_monthly"), "", false},
		{"subscription updated active", "customer.subscription.updated", subscriptionObject("u1", "active", "family_monthly"), models.EventProductChange, true},
		{"subscription updated trialing", "customer.subscription.updated", subscriptionObject("u1", "trialing", "family_monthly"), models.EventProductChange, true},
		{"subscription updated unpaid", "customer.subscription.updated", subscriptionObject("u1", "unpaid", "family_monthly"), models.EventExpiration, true},
		{"subscription updated canceled", "customer.subscription.updated", subscriptionObject("u1", "canceled", "family_monthly"), models.EventExpiration, true},
		{"subscription updated past due", "customer.subscription.updated", subscriptionObject("u1", "past_due", "family_monthly"), "", false},
		{"subscription deleted", "customer.subscription.deleted", subscriptionObject("u1", "canceled", "family_monthly"), models.EventExpiration, true},
		{"invoice paid", "invoice.paid", invoiceObject("u1", "family_monthly"), models.EventRenewal, true},
		{"invoice payment failed", "invoice.payment_failed", invoiceObject("u1", "family_monthly"), models.EventBillingIssue, true},
		{"upgrade invoice skips credit line", "invoice.paid", invoiceWithLines("u1",
			invoiceLine("premium_monthly", -450, true),
			invoiceLine("family_monthly", 999, false),
		), models.EventRenewal, true},
		{"proration only invoice uses charged price", "invoice.paid", invoiceWithLines("u1",
			invoiceLine("premium_monthly", -450, true),
			invoiceLine("family_monthly", 620, true),
		), models.EventRenewal, true},
		{"credit only invoice", "invoice.paid", invoiceWithLines("u1",
			invoiceLine("premium_monthly", -450, true),
		), "", false},
		{"unrelated", "customer.created", map[string]interface{}{"id": "cus_1", "object": "customer"}, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := decodeStripeEvent(t, stripeEventJSON(t, "evt_1", tt.eventType, 1700000000, tt.object))

			got, ok, err := TranslateStripeEvent(event)
			require.NoError(t, err)
			assert.Equal(t, tt.wantOK, ok)
			if !tt.wantOK {
				return
			}
			assert.Equal(t, tt.wantType, got.Type)
			assert.Equal(t, "evt_1", got.ID)
			assert.Equal(t, "u1", got.AppUserID)
			assert.Equal(t, "family_monthly", got.ProductID)
			assert.Equal(t, int64(1700000000000), got.EventTimestampMs)
		})
	}
}

func TestStripeAdapter_HandleWebhook(t *testing.T) {
	r, s, _ := setupReconciler(t)
	u, g := memberOfNewGroup(t, s)
	adapter := NewStripeAdapter(testStripeSecret, r, logger.Nop())
	ctx := context.Background()

	payload := stripeEventJSON(t, "evt_paid", "invoice.paid", 1700000000, invoiceObject(u.ID, "family_annual"))
	out, err := adapter.HandleWebhook(ctx, payload, sign(payload))
	require.NoError(t, err)
	assert.Equal(t, OutcomeApplied, out.Result())

	tier, ts := groupTier(t, s, g.ID)
	assert.Equal(t, models.TierFamily, tier)
	assert.Equal(t, int64(1700000000000), *ts)

	// an older deletion delivered late does not downgrade
	late := stripeEventJSON(t, "evt_old", "customer.subscription.deleted", 1699999999, subscriptionObject(u.ID, "canceled", "family_annual"))
	out, err = adapter.HandleWebhook(ctx, late, sign(late))
	require.NoError(t, err)
	assert.Equal(t, OutcomeStale, out.Result())

	tier, _ = groupTier(t, s, g.ID)
	assert.Equal(t, models.TierFamily, tier)
}

func TestStripeAdapter_RejectsBadSignature(t *testing.T) {
	r, s, _ := setupReconciler(t)
	u, g := memberOfNewGroup(t, s)
	adapter := NewStripeAdapter(testStripeSecret, r, logger.Nop())

	payload := stripeEventJSON(t, "evt_1", "customer.subscription.created", 1700000000, subscriptionObject(u.ID, "active", "family_monthly"))
	_, err := adapter.HandleWebhook(context.Background(), payload, "t=1,v1=deadbeef")
	assert.ErrorIs(t, err, ErrInvalidSignature)

	tier, ts := groupTier(t, s, g.ID)
	assert.Equal(t, models.TierFree, tier)
	assert.Nil(t, ts)
}

func TestStripeAdapter_Disabled(t *testing.T) {
	r, _, _ := setupReconciler(t)
	adapter := NewStripeAdapter("", r, logger.Nop())

	assert.False(t, adapter.Enabled())
	_, err := adapter.HandleWebhook(context.Background(), []byte(`{}`), "")
	assert.ErrorIs(t, err, ErrStripeDisabled)
}

func TestStripeAdapter_UpgradeInvoiceKeepsNewTier(t *testing.T) {
	r, s, _ := setupReconciler(t)
	u, g := memberOfNewGroup(t, s)
	adapter := NewStripeAdapter(testStripeSecret, r, logger.Nop())
	ctx := context.Background()

	updated := stripeEventJSON(t, "evt_upgrade", "customer.subscription.updated", 1700000000, subscriptionObject(u.ID, "active", "family_monthly"))
	_, err := adapter.HandleWebhook(ctx, updated, sign(updated))
	require.NoError(t, err)

	paid := stripeEventJSON(t, "evt_prorated", "invoice.paid", 1700000001, invoiceWithLines(u.ID,
		invoiceLine("premium_monthly", -450, true),
		invoiceLine("family_monthly", 999, false),
	))
	_, err = adapter.HandleWebhook(ctx, paid, sign(paid))
	require.NoError(t, err)

	tier, _ := groupTier(t, s, g.ID)
	assert.Equal(t, models.TierFamily, tier)
}

func TestStripeAdapter_IncompleteSubscriptionGrantsNothing(t *testing.T) {
	r, s, _ := setupReconciler(t)
	u, g := memberOfNewGroup(t, s)
	adapter := NewStripeAdapter(testStripeSecret, r, logger.Nop())

	payload := stripeEventJSON(t, "evt_incomplete", "customer.subscription.created", 1700000000, subscriptionObject(u.ID, "incomplete", "family_monthly"))
	out, err := adapter.HandleWebhook(context.Background(), payload, sign(payload))
	require.NoError(t, err)
	assert.Empty(t, out.Changes)

	tier, ts := groupTier(t, s, g.ID)
	assert.Equal(t, models.TierFree, tier)
	assert.Nil(t, ts)
}
