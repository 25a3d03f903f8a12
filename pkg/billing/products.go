package billing

import (
	"github.com/jordanlanch/familycart/pkg/models"
)

// DefaultProductTiers maps store product identifiers to tiers.
var DefaultProductTiers = map[string]models.Tier{
	"premium_monthly": models.TierPremium,
	"premium_annual":  models.TierPremium,
	"family_monthly":  models.TierFamily,
	"family_annual":   models.TierFamily,
}

// ProductMap resolves product identifiers to tiers
type ProductMap struct {
	tiers    map[string]models.Tier
	fallback models.Tier
}

// NewProductMap returns the default mapping with overrides applied. Override
// values that are not a known tier are ignored.
func NewProductMap(overrides map[string]string) *ProductMap {
	tiers := make(map[string]models.Tier, len(DefaultProductTiers)+len(overrides))
	for product, tier := range DefaultProductTiers {
		tiers[product] = tier
	}
	for product, raw := range overrides {
		tier := models.Tier(raw)
		if !tier.Valid() {
			continue
		}
		tiers[product] = tier
	}
	return &ProductMap{tiers: tiers, fallback: models.TierPremium}
}

// Resolve returns the tier for productID and whether it was mapped. Unmapped
// products resolve to premium.
func (p *ProductMap) Resolve(productID string) (models.Tier, bool) {
	if tier, ok := p.tiers[productID]; ok {
		return tier, true
	}
	return p.fallback, false
}
