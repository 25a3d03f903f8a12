package models

import "time"

// WebhookEventType is a billing lifecycle event name.
type WebhookEventType string

const (
	EventInitialPurchase     WebhookEventType = "INITIAL_PURCHASE"
	EventRenewal             WebhookEventType = "RENEWAL"
	EventUncancellation      WebhookEventType = "UNCANCELLATION"
	EventProductChange       WebhookEventType = "PRODUCT_CHANGE"
	EventNonRenewingPurchase WebhookEventType = "NON_RENEWING_PURCHASE"
	EventTransfer            WebhookEventType = "TRANSFER"
	EventExpiration          WebhookEventType = "EXPIRATION"
	EventCancellation        WebhookEventType = "CANCELLATION"
	EventBillingIssue        WebhookEventType = "BILLING_ISSUE"
)

// WebhookEvent is a provider event normalized for reconciliation.
// EventTimestampMs is set by the provider and is not arrival order.
type WebhookEvent struct {
	ID               string           `json:"id"`
	Type             WebhookEventType `json:"type"`
	AppUserID        string           `json:"app_user_id"`
	ProductID        string           `json:"product_id,omitempty"`
	EventTimestampMs int64            `json:"event_timestamp_ms"`
	TransferredFrom  []string         `json:"transferred_from,omitempty"`
	TransferredTo    []string         `json:"transferred_to,omitempty"`
}

// WebhookPayload is the envelope posted by the billing provider.
type WebhookPayload struct {
	APIVersion string        `json:"api_version"`
	Event      *WebhookEvent `json:"event"`
}

// WebhookLogEntry is a diagnostic record of a received event.
type WebhookLogEntry struct {
	EventID    string           `json:"eventId"`
	Type       WebhookEventType `json:"type"`
	AppUserID  string           `json:"appUserId"`
	ProductID  string           `json:"productId,omitempty"`
	Outcome    string           `json:"outcome"`
	ReceivedAt time.Time        `json:"receivedAt"`
}

// TierChange describes one tier mutation attempted by the reconciler.
type TierChange struct {
	FamilyGroupID string `json:"familyGroupId"`
	Tier          Tier   `json:"tier"`
	EventTimeMs   int64  `json:"eventTimeMs"`
	Applied       bool   `json:"applied"`
}
