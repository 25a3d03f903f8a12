// Package billing reconciles subscription lifecycle events from billing
// providers into family group tiers.
package billing

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/metrics"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
)

// Outcome labels used for metrics and the webhook log.
const (
	OutcomeApplied      = "applied"
	OutcomeStale        = "stale"
	OutcomeNoop         = "noop"
	OutcomeBillingIssue = "billing_issue"
	OutcomeError        = "error"
)

// Store is the persistence the reconciler needs.
type Store interface {
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetFamilyGroup(ctx context.Context, id string) (*models.FamilyGroup, error)
	SetFamilyTier(ctx context.Context, groupID string, tier models.Tier, eventMs int64) (bool, error)
	AppendWebhookLog(ctx context.Context, entry models.WebhookLogEntry) error
}

// Outcome reports what a single event did.
type Outcome struct {
	EventID string
	Type    models.WebhookEventType
	Changes []models.TierChange
	Note    string
}

// Result summarizes the outcome as one label.
func (o *Outcome) Result() string {
	if o.Type == models.EventBillingIssue {
		return OutcomeBillingIssue
	}
	if len(o.Changes) == 0 {
		return OutcomeNoop
	}
	for _, c := range o.Changes {
		if c.Applied {
			return OutcomeApplied
		}
	}
	return OutcomeStale
}

// Applied returns the tier changes that were written.
func (o *Outcome) Applied() []models.TierChange {
	var applied []models.TierChange
	for _, c := range o.Changes {
		if c.Applied {
			applied = append(applied, c)
		}
	}
	return applied
}

// Reconciler is the only writer of family group tiers.
type Reconciler struct {
	store    Store
	products *ProductMap
	log      logger.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewReconciler creates a reconciler
func NewReconciler(s Store, products *ProductMap, log logger.Logger, m *metrics.Metrics) *Reconciler {
	if products == nil {
		products = NewProductMap(nil)
	}
	return &Reconciler{
		store:    s,
		products: products,
		log:      log.With("component", "billing"),
		metrics:  m,
		now:      time.Now,
	}
}

// Reconcile applies event to the affected family groups. Every tier write is
// last-write-wins on the event timestamp, so redelivered and out-of-order
// events are safe to process.
func (r *Reconciler) Reconcile(ctx context.Context, event models.WebhookEvent) (*Outcome, error) {
	out := &Outcome{EventID: event.ID, Type: event.Type}

	var err error
	switch event.Type {
	case models.EventInitialPurchase,
		models.EventRenewal,
		models.EventUncancellation,
		models.EventProductChange,
		models.EventNonRenewingPurchase:
		err = r.applyToUser(ctx, out, event.AppUserID, r.tierFor(event.ProductID), event.EventTimestampMs)

	case models.EventTransfer:
		err = r.transfer(ctx, out, event)

	case models.EventExpiration:
		err = r.applyToUser(ctx, out, event.AppUserID, models.TierFree, event.EventTimestampMs)

	case models.EventCancellation:
		out.Note = "access persists until expiration"

	case models.EventBillingIssue:
		out.Note = "billing issue reported"
		r.log.Warn("billing issue",
			"event_id", event.ID,
			"app_user_id", event.AppUserID,
			"product_id", event.ProductID,
		)

	default:
		out.Note = "unhandled event type"
		r.log.Info("ignoring webhook event", "event_id", event.ID, "type", string(event.Type))
	}

	r.appendLog(ctx, event, out, err)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// transfer downgrades every source group and upgrades the destination group.
func (r *Reconciler) transfer(ctx context.Context, out *Outcome, event models.WebhookEvent) error {
	dest := event.AppUserID
	if dest == "" && len(event.TransferredTo) > 0 {
		dest = event.TransferredTo[0]
	}
	destGroup, err := r.groupOf(ctx, dest)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	for _, src := range event.TransferredFrom {
		groupID, err := r.groupOf(ctx, src)
		if err != nil {
			return err
		}
		// a shared group keeps the entitlement
		if groupID == "" || groupID == destGroup || seen[groupID] {
			continue
		}
		seen[groupID] = true
		if err := r.apply(ctx, out, groupID, models.TierFree, event.EventTimestampMs); err != nil {
			return err
		}
	}

	if destGroup == "" {
		out.Note = "transfer destination has no family group"
		return nil
	}
	return r.apply(ctx, out, destGroup, r.tierFor(event.ProductID), event.EventTimestampMs)
}

func (r *Reconciler) applyToUser(ctx context.Context, out *Outcome, userID string, tier models.Tier, eventMs int64) error {
	groupID, err := r.groupOf(ctx, userID)
	if err != nil {
		return err
	}
	if groupID == "" {
		out.Note = "subject has no family group"
		return nil
	}
	return r.apply(ctx, out, groupID, tier, eventMs)
}

// groupOf returns the family group of userID, or "" when the user is unknown
// or not in a group.
func (r *Reconciler) groupOf(ctx context.Context, userID string) (string, error) {
	if userID == "" {
		return "", nil
	}
	u, err := r.store.GetUser(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Debug("webhook subject not found", "app_user_id", userID)
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve user %s: %w", userID, err)
	}
	return u.FamilyGroupID, nil
}

func (r *Reconciler) apply(ctx context.Context, out *Outcome, groupID string, tier models.Tier, eventMs int64) error {
	applied, err := r.store.SetFamilyTier(ctx, groupID, tier, eventMs)
	if errors.Is(err, store.ErrNotFound) {
		r.log.Warn("family group referenced by user does not exist", "family_group_id", groupID)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to set tier of family group %s: %w", groupID, err)
	}

	r.metrics.RecordTierChange(string(tier), applied)
	out.Changes = append(out.Changes, models.TierChange{
		FamilyGroupID: groupID,
		Tier:          tier,
		EventTimeMs:   eventMs,
		Applied:       applied,
	})

	if applied {
		r.log.Info("family tier updated", "family_group_id", groupID, "tier", string(tier), "event_ms", eventMs)
	} else {
		r.log.Info("stale tier update skipped", "family_group_id", groupID, "tier", string(tier), "event_ms", eventMs)
	}
	return nil
}

func (r *Reconciler) tierFor(productID string) models.Tier {
	tier, mapped := r.products.Resolve(productID)
	if !mapped {
		r.log.Warn("unmapped product, granting default tier", "product_id", productID, "tier", string(tier))
		r.metrics.RecordUnmappedProduct(productID)
	}
	return tier
}

func (r *Reconciler) appendLog(ctx context.Context, event models.WebhookEvent, out *Outcome, procErr error) {
	outcome := out.Result()
	if procErr != nil {
		outcome = OutcomeError
	}
	entry := models.WebhookLogEntry{
		EventID:    event.ID,
		Type:       event.Type,
		AppUserID:  event.AppUserID,
		ProductID:  event.ProductID,
		Outcome:    outcome,
		ReceivedAt: r.now().UTC(),
	}
	if err := r.store.AppendWebhookLog(ctx, entry); err != nil {
		r.log.Warn("failed to append webhook log", "event_id", event.ID, "error", err)
	}
}
