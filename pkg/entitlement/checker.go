// Package entitlement decides whether a user may consume quota for an action,
// based on the subscription tier of their family group.
package entitlement

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

// ErrUnknownCategory is returned for a category outside the limits table.
var ErrUnknownCategory = errors.New("unknown limit category")

// Store is the persistence the checker needs.
type Store interface {
	GetFamilyGroup(ctx context.Context, id string) (*models.FamilyGroup, error)
	GetUsage(ctx context.Context, userID string) (*models.UsageCounters, bool, error)
	ResetMonthlyUsage(ctx context.Context, userID string, at time.Time) error
}

// Request identifies the caller and the quota they want to use.
type Request struct {
	UserID        string
	FamilyGroupID string
	Category      models.LimitCategory
	Admin         bool
}

// Checker evaluates usage counters against tier limits
type Checker struct {
	store   Store
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewChecker creates a checker
func NewChecker(s Store, log logger.Logger, m *metrics.Metrics) *Checker {
	return &Checker{
		store:   s,
		log:     log.With("component", "entitlement"),
		metrics: m,
		now:     time.Now,
	}
}

// Check returns whether the request is within quota. A counter reset for a
// new month is persisted even when the result is a denial.
func (c *Checker) Check(ctx context.Context, req Request) (*models.EntitlementResult, error) {
	if _, ok := models.LimitsForTier(models.TierFree).For(req.Category); !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownCategory, req.Category)
	}

	if req.Admin {
		return &models.EntitlementResult{Allowed: true, Category: req.Category}, nil
	}

	tier, err := c.resolveTier(ctx, req.FamilyGroupID)
	if err != nil {
		return nil, err
	}

	usage, err := c.loadUsage(ctx, req.UserID)
	if err != nil {
		return nil, err
	}

	limit, _ := models.LimitsForTier(tier).For(req.Category)
	used := usage.Count(req.Category)
	result := &models.EntitlementResult{
		Allowed:  true,
		Tier:     tier,
		Category: req.Category,
		Used:     used,
		Limit:    limit,
	}

	if limit != nil && used >= *limit {
		result.Allowed = false
		result.Reason = denialReason(req.Category, tier, *limit)
		c.log.Info("quota exhausted",
			"user_id", req.UserID,
			"family_group_id", req.FamilyGroupID,
			"category", string(req.Category),
			"tier", string(tier),
			"used", used,
			"limit", *limit,
		)
	}

	c.metrics.RecordEntitlementCheck(string(req.Category), string(tier), result.Allowed)
	return result, nil
}

// ExhaustedError is returned by Require when the quota is used up.
type ExhaustedError struct {
	Result *models.EntitlementResult
}

func (e *ExhaustedError) Error() string {
	return e.Result.Reason
}

// Require is Check with a denial turned into an *ExhaustedError
func (c *Checker) Require(ctx context.Context, req Request) (*models.EntitlementResult, error) {
	result, err := c.Check(ctx, req)
	if err != nil {
		return nil, err
	}
	if !result.Allowed {
		return result, &ExhaustedError{Result: result}
	}
	return result, nil
}

// resolveTier returns the group's tier, free when the group or tier is absent
func (c *Checker) resolveTier(ctx context.Context, groupID string) (models.Tier, error) {
	if groupID == "" {
		return models.TierFree, nil
	}

	group, err := c.store.GetFamilyGroup(ctx, groupID)
	if errors.Is(err, store.ErrNotFound) {
		return models.TierFree, nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to resolve family tier: %w", err)
	}

	if !group.SubscriptionTier.Valid() {
		if group.SubscriptionTier != "" {
			c.log.Warn("unknown stored tier, treating as free",
				"family_group_id", groupID, "tier", string(group.SubscriptionTier))
		}
		return models.TierFree, nil
	}
	return group.SubscriptionTier, nil
}

// loadUsage returns the user's counters, applying the monthly reset
func (c *Checker) loadUsage(ctx context.Context, userID string) (*models.UsageCounters, error) {
	now := c.now().UTC()

	usage, found, err := c.store.GetUsage(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load usage: %w", err)
	}
	if !found {
		return &models.UsageCounters{LastResetDate: now}, nil
	}

	if NeedsMonthlyReset(usage.LastResetDate, now) {
		if err := c.store.ResetMonthlyUsage(ctx, userID, now); err != nil {
			return nil, fmt.Errorf("failed to reset monthly usage: %w", err)
		}
		c.log.Debug("monthly usage reset", "user_id", userID, "last_reset", usage.LastResetDate)

		usage.OCRProcessed = 0
		usage.UrgentItemsCreated = 0
		usage.LastResetDate = now
	}
	return usage, nil
}

// NeedsMonthlyReset reports whether now falls in a different calendar month
// (UTC) than lastReset.
func NeedsMonthlyReset(lastReset, now time.Time) bool {
	ly, lm, _ := lastReset.UTC().Date()
	ny, nm, _ := now.UTC().Date()
	return ly != ny || lm != nm
}

func denialReason(category models.LimitCategory, tier models.Tier, limit int) string {
	switch category {
	case models.CategoryLists:
		return fmt.Sprintf("You've reached the limit of %d shopping lists on the %s plan. Upgrade to create more lists.", limit, tier)
	case models.CategoryOCR:
		return fmt.Sprintf("You've used all %d receipt scans included in the %s plan this month. Upgrade for more scans.", limit, tier)
	case models.CategoryUrgentItems:
		return fmt.Sprintf("You've used all %d urgent items included in the %s plan this month. Upgrade for more urgent items.", limit, tier)
	}
	return fmt.Sprintf("Limit of %d reached on the %s plan.", limit, tier)
}
