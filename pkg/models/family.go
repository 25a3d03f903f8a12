package models

import "time"

// FamilyGroup is the billing and sharing unit. TierUpdatedAt holds the provider
// timestamp (unix ms) of the last accepted billing event, nil if none.
type FamilyGroup struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	OwnerID          string    `json:"ownerId"`
	SubscriptionTier Tier      `json:"subscriptionTier"`
	TierUpdatedAt    *int64    `json:"tierUpdatedAt,omitempty"`
	MemberIDs        []string  `json:"memberIds"`
	CreatedAt        time.Time `json:"createdAt"`
}

// CreateFamilyRequest is the body of POST /families.
type CreateFamilyRequest struct {
	Name string `json:"name" validate:"required,min=1,max=80"`
}
