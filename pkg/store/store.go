// Package store defines the persistence contract shared by the Redis and SQL
// backends. Every method that touches more than one record is atomic.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/jordanlanch/familycart/pkg/models"
)

var (
	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("record not found")
	// ErrAlreadyExists is returned on unique constraint violations.
	ErrAlreadyExists = errors.New("record already exists")
	// ErrFlagConsumed is returned by AcquireFlag when the flag is already held.
	ErrFlagConsumed = errors.New("flag already consumed")
)

// Users persists accounts and their family group reference.
type Users interface {
	CreateUser(ctx context.Context, u *models.User) error
	GetUser(ctx context.Context, id string) (*models.User, error)
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
	// SetUserFamilyGroup points the user at groupID ("" clears it), moves the
	// membership between the member sets and returns the previous reference.
	SetUserFamilyGroup(ctx context.Context, userID, groupID string) (string, error)
}

// Claims persists custom auth claims and the claims-updated marker.
type Claims interface {
	GetClaims(ctx context.Context, userID string) (models.CustomClaims, error)
	// MergeClaims sets the given keys and removes the unset keys, leaving every
	// other claim untouched, and returns the resulting claim set.
	MergeClaims(ctx context.Context, userID string, set models.CustomClaims, unset ...string) (models.CustomClaims, error)
	SetClaimsUpdatedAt(ctx context.Context, userID string, at time.Time) error
	GetClaimsUpdatedAt(ctx context.Context, userID string) (*int64, error)
}

// Usage persists per-user quota counters.
type Usage interface {
	// GetUsage returns the counters and whether a record exists.
	GetUsage(ctx context.Context, userID string) (*models.UsageCounters, bool, error)
	// ResetMonthlyUsage zeroes the monthly counters and stamps lastResetDate.
	ResetMonthlyUsage(ctx context.Context, userID string, at time.Time) error
}

// Families persists family groups and their subscription tier.
type Families interface {
	CreateFamilyGroup(ctx context.Context, g *models.FamilyGroup) error
	GetFamilyGroup(ctx context.Context, id string) (*models.FamilyGroup, error)
	// SetFamilyTier writes tier and tierUpdatedAt only if no timestamp is
	// stored or eventMs is strictly greater than the stored one. It reports
	// whether the write happened and returns ErrNotFound for unknown groups.
	SetFamilyTier(ctx context.Context, groupID string, tier models.Tier, eventMs int64) (bool, error)
}

// Lists persists quota-gated documents. Each create also increments the
// matching usage counter of the creator in the same atomic write.
type Lists interface {
	CreateList(ctx context.Context, l *models.ShoppingList) error
	GetList(ctx context.Context, id string) (*models.ShoppingList, error)
	CreateUrgentItem(ctx context.Context, item *models.ListItem) error
	SaveReceiptScan(ctx context.Context, scan *models.ReceiptScan) error
}

// Webhooks keeps a bounded diagnostic log of billing events.
type Webhooks interface {
	AppendWebhookLog(ctx context.Context, entry models.WebhookLogEntry) error
	RecentWebhookLog(ctx context.Context, limit int) ([]models.WebhookLogEntry, error)
}

// Flags are one-shot markers.
type Flags interface {
	// AcquireFlag sets name, failing with ErrFlagConsumed if it is already set.
	AcquireFlag(ctx context.Context, name string) error
	ReleaseFlag(ctx context.Context, name string) error
}

// Store is the full persistence surface.
type Store interface {
	Users
	Claims
	Usage
	Families
	Lists
	Webhooks
	Flags

	Ping(ctx context.Context) error
	Close() error
}

// WebhookLogLimit caps the diagnostic log.
const WebhookLogLimit = 1000
