// Package claims keeps the custom claims embedded in auth tokens in step with
// stored state: family membership and admin rights.
package claims

import (
	"context"
	"fmt"
	"time"

	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/metrics"
	"github.com/jordanlanch/familycart/pkg/models"
)

// Metric reasons for claim writes.
const (
	ReasonFamilyChanged = "family_changed"
	ReasonAdminGranted  = "admin_granted"
)

// Writer is the claim persistence used by the propagator.
type Writer interface {
	MergeClaims(ctx context.Context, userID string, set models.CustomClaims, unset ...string) (models.CustomClaims, error)
	SetClaimsUpdatedAt(ctx context.Context, userID string, at time.Time) error
}

// Propagator mirrors a user's family group reference into their claims
type Propagator struct {
	store   Writer
	log     logger.Logger
	metrics *metrics.Metrics
	now     func() time.Time
}

// NewPropagator creates a propagator
func NewPropagator(s Writer, log logger.Logger, m *metrics.Metrics) *Propagator {
	return &Propagator{
		store:   s,
		log:     log.With("component", "claims"),
		metrics: m,
		now:     time.Now,
	}
}

// FamilyGroupChanged sets or clears the familyGroupId claim after the user's
// stored group reference moved from before to after. Other claims are kept.
func (p *Propagator) FamilyGroupChanged(ctx context.Context, userID, before, after string) error {
	if before == after {
		return nil
	}

	var err error
	if after == "" {
		_, err = p.store.MergeClaims(ctx, userID, nil, models.ClaimFamilyGroupID)
	} else {
		_, err = p.store.MergeClaims(ctx, userID, models.CustomClaims{models.ClaimFamilyGroupID: after})
	}
	if err == nil {
		err = p.store.SetClaimsUpdatedAt(ctx, userID, p.now().UTC())
	}

	p.metrics.RecordClaimUpdate(ReasonFamilyChanged, err)
	if err != nil {
		p.log.Error("failed to propagate family group claim",
			"user_id", userID, "before", before, "after", after, "error", err)
		return fmt.Errorf("failed to propagate family group claim for %s: %w", userID, err)
	}

	p.log.Info("family group claim updated", "user_id", userID, "family_group_id", after)
	return nil
}
