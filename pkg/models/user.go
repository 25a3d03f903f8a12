package models

import "time"

// Custom claim keys carried in auth tokens.
const (
	ClaimAdmin         = "admin"
	ClaimFamilyGroupID = "familyGroupId"
)

// User is an account. FamilyGroupID is empty when the user has no group.
type User struct {
	ID            string    `json:"id"`
	Email         string    `json:"email"`
	PasswordHash  string    `json:"-"`
	FamilyGroupID string    `json:"familyGroupId,omitempty"`
	CreatedAt     time.Time `json:"createdAt"`
}

// UsageCounters tracks quota consumption for a user. ListsCreated is a
// lifetime counter, the other two reset every calendar month.
type UsageCounters struct {
	ListsCreated       int       `json:"listsCreated"`
	OCRProcessed       int       `json:"ocrProcessed"`
	UrgentItemsCreated int       `json:"urgentItemsCreated"`
	LastResetDate      time.Time `json:"lastResetDate"`
}

// Count returns the counter value for a category.
func (u UsageCounters) Count(category LimitCategory) int {
	switch category {
	case CategoryLists:
		return u.ListsCreated
	case CategoryOCR:
		return u.OCRProcessed
	case CategoryUrgentItems:
		return u.UrgentItemsCreated
	}
	return 0
}

// CustomClaims is the open key/value set embedded in a user's auth token.
type CustomClaims map[string]interface{}

// IsAdmin reports whether the admin claim is set to true.
func (c CustomClaims) IsAdmin() bool {
	v, _ := c[ClaimAdmin].(bool)
	return v
}

// FamilyGroupID returns the familyGroupId claim, or "".
func (c CustomClaims) FamilyGroupID() string {
	v, _ := c[ClaimFamilyGroupID].(string)
	return v
}

// ProfileResponse is returned by GET /me.
type ProfileResponse struct {
	User            *User          `json:"user"`
	Claims          CustomClaims   `json:"claims"`
	ClaimsUpdatedAt *int64         `json:"claimsUpdatedAt,omitempty"`
	Usage           *UsageCounters `json:"usage"`
	Tier            Tier           `json:"tier,omitempty"`
}
