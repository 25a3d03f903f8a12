package handlers

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func webhookBody(id string, eventType models.WebhookEventType, appUserID, productID string, ts int64) string {
	return fmt.Sprintf(`{"api_version":"1.0","event":{"id":%q,"type":%q,"app_user_id":%q,"product_id":%q,"event_timestamp_ms":%d}}`,
		id, eventType, appUserID, productID, ts)
}

func (ts *testServer) postWebhook(t *testing.T, authHeader, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/webhooks/revenuecat", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rec := httptest.NewRecorder()
	ts.e.ServeHTTP(rec, req)
	return rec
}

func TestRevenueCat_BadTokenChangesNothing(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	user, group := ts.memberWithGroup(t)
	body := webhookBody("evt-1", models.EventInitialPurchase, user.User.ID, "family_monthly", 1_700_000_000_000)

	for _, header := range []string{"", "Bearer wrong-token", testWebhookToken, "Basic " + testWebhookToken} {
		rec := ts.postWebhook(t, header, body)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "header %q", header)
	}

	assert.Equal(t, models.TierFree, ts.tier(t, group.ID))
	entries, err := ts.store.RecentWebhookLog(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestRevenueCat_MalformedPayload(t *testing.T) {
	ts := newTestServer(t, serverOptions{})

	for _, body := range []string{`{"api_version":"1.0"}`, `not json`, `{"event":{"id":"x"}}`} {
		rec := ts.postWebhook(t, "Bearer "+testWebhookToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}
}

func TestRevenueCat_MissingTimestampRejected(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	user, group := ts.memberWithGroup(t)

	bodies := []string{
		fmt.Sprintf(`{"event":{"id":"evt-nots","type":"INITIAL_PURCHASE","app_user_id":%q,"product_id":"family_monthly"}}`, user.User.ID),
		webhookBody("evt-zero", models.EventInitialPurchase, user.User.ID, "family_monthly", 0),
		webhookBody("evt-neg", models.EventInitialPurchase, user.User.ID, "family_monthly", -1),
	}
	for _, body := range bodies {
		rec := ts.postWebhook(t, "Bearer "+testWebhookToken, body)
		assert.Equal(t, http.StatusBadRequest, rec.Code, body)
	}

	assert.Equal(t, models.TierFree, ts.tier(t, group.ID))
}

func TestRevenueCat_MethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, http.MethodGet, "/webhooks/revenuecat", "", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestRevenueCat_DuplicateRenewal(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	user, group := ts.memberWithGroup(t)
	body := webhookBody("evt-renew", models.EventRenewal, user.User.ID, "premium_monthly", 1_700_000_000_000)

	for i := 0; i < 2; i++ {
		rec := ts.postWebhook(t, "Bearer "+testWebhookToken, body)
		require.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
	}

	assert.Equal(t, models.TierPremium, ts.tier(t, group.ID))

	entries, err := ts.store.RecentWebhookLog(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	outcomes := []string{entries[0].Outcome, entries[1].Outcome}
	assert.ElementsMatch(t, []string{"applied", "stale"}, outcomes)
}

func TestRevenueCat_OutOfOrderDelivery(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	user, group := ts.memberWithGroup(t)

	rec := ts.postWebhook(t, "Bearer "+testWebhookToken,
		webhookBody("evt-exp", models.EventExpiration, user.User.ID, "premium_monthly", 2_000))
	require.Equal(t, http.StatusOK, rec.Code)

	rec = ts.postWebhook(t, "Bearer "+testWebhookToken,
		webhookBody("evt-renew", models.EventRenewal, user.User.ID, "premium_monthly", 1_000))
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, models.TierFree, ts.tier(t, group.ID))
}

func TestRevenueCat_UnknownUserIsNoop(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.postWebhook(t, "Bearer "+testWebhookToken,
		webhookBody("evt-ghost", models.EventRenewal, "no-such-user", "premium_monthly", 1_000))
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRevenueCat_UpgradeLiftsQuota(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	user, group := ts.memberWithGroup(t)

	rec := ts.postWebhook(t, "Bearer "+testWebhookToken,
		webhookBody("evt-fam", models.EventInitialPurchase, user.User.ID, "family_annual", 1_000))
	require.Equal(t, http.StatusOK, rec.Code)

	for i := 0; i < 6; i++ {
		rec := ts.do(t, http.MethodPost, "/api/v1/actions/create-list", user.Token, models.CreateListRequest{
			FamilyGroupID: group.ID,
			Name:          fmt.Sprintf("List %d", i),
		})
		require.Equal(t, http.StatusCreated, rec.Code)
	}
}

func TestStripe_NotConfigured(t *testing.T) {
	ts := newTestServer(t, serverOptions{})
	rec := ts.do(t, http.MethodPost, "/webhooks/stripe", "", `{}`)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
