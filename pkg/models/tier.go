package models

// Tier is a family group's subscription level.
type Tier string

const (
	TierFree    Tier = "free"
	TierPremium Tier = "premium"
	TierFamily  Tier = "family"
)

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	switch t {
	case TierFree, TierPremium, TierFamily:
		return true
	}
	return false
}

// LimitCategory identifies a quota-gated action.
type LimitCategory string

const (
	CategoryLists       LimitCategory = "lists"
	CategoryOCR         LimitCategory = "ocr"
	CategoryUrgentItems LimitCategory = "urgentItems"
)

// TierLimits holds the quota for each category. A nil limit means unlimited.
type TierLimits struct {
	MaxLists               *int `json:"maxLists"`
	MaxOCRPerMonth         *int `json:"maxOCRPerMonth"`
	MaxUrgentItemsPerMonth *int `json:"maxUrgentItemsPerMonth"`
}

func limit(n int) *int { return &n }

var tierLimits = map[Tier]TierLimits{
	TierFree: {
		MaxLists:               limit(4),
		MaxOCRPerMonth:         limit(1),
		MaxUrgentItemsPerMonth: limit(1),
	},
	TierPremium: {
		MaxLists:               nil,
		MaxOCRPerMonth:         limit(20),
		MaxUrgentItemsPerMonth: limit(3),
	},
	TierFamily: {},
}

// LimitsForTier returns the limits table entry for a tier. Unknown tiers get
// the free limits.
func LimitsForTier(t Tier) TierLimits {
	if l, ok := tierLimits[t]; ok {
		return l
	}
	return tierLimits[TierFree]
}

// For returns the limit for a category and whether the category is known.
func (l TierLimits) For(category LimitCategory) (*int, bool) {
	switch category {
	case CategoryLists:
		return l.MaxLists, true
	case CategoryOCR:
		return l.MaxOCRPerMonth, true
	case CategoryUrgentItems:
		return l.MaxUrgentItemsPerMonth, true
	}
	return nil, false
}
