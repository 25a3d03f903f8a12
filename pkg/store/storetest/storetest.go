// Package storetest holds the behaviour every store.Store backend must share.
package storetest

import (
	"context"
	"testing"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/google/uuid"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one subtest.
type Factory func(t *testing.T) store.Store

// Run executes the conformance suite against a backend.
func Run(t *testing.T, newStore Factory) {
	t.Run("Users", func(t *testing.T) { testUsers(t, newStore(t)) })
	t.Run("FamilyMembership", func(t *testing.T) { testFamilyMembership(t, newStore(t)) })
	t.Run("Claims", func(t *testing.T) { testClaims(t, newStore(t)) })
	t.Run("Usage", func(t *testing.T) { testUsage(t, newStore(t)) })
	t.Run("FamilyTierLastWriteWins", func(t *testing.T) { testFamilyTier(t, newStore(t)) })
	t.Run("Lists", func(t *testing.T) { testLists(t, newStore(t)) })
	t.Run("WebhookLog", func(t *testing.T) { testWebhookLog(t, newStore(t)) })
	t.Run("Flags", func(t *testing.T) { testFlags(t, newStore(t)) })
}

// NewUser builds a user fixture.
func NewUser() *models.User {
	return &models.User{
		ID:           uuid.NewString(),
		Email:        gofakeit.Email(),
		PasswordHash: "$2a$10$" + gofakeit.LetterN(53),
		CreatedAt:    time.Now().UTC().Truncate(time.Millisecond),
	}
}

// NewFamily builds a group fixture owned by ownerID.
func NewFamily(ownerID string) *models.FamilyGroup {
	return &models.FamilyGroup{
		ID:               uuid.NewString(),
		Name:             gofakeit.LastName() + " household",
		OwnerID:          ownerID,
		SubscriptionTier: models.TierFree,
		CreatedAt:        time.Now().UTC().Truncate(time.Millisecond),
	}
}

func testUsers(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser()

	require.NoError(t, s.CreateUser(ctx, u))

	dup := NewUser()
	dup.Email = u.Email
	assert.ErrorIs(t, s.CreateUser(ctx, dup), store.ErrAlreadyExists)

	got, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u.Email, got.Email)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)
	assert.Empty(t, got.FamilyGroupID)
	assert.True(t, u.CreatedAt.Equal(got.CreatedAt))

	byEmail, err := s.GetUserByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = s.GetUser(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testFamilyMembership(t *testing.T, s store.Store) {
	ctx := context.Background()
	u := NewUser()
	require.NoError(t, s.CreateUser(ctx, u))

	g1 := NewFamily(u.ID)
	g2 := NewFamily(u.ID)
	require.NoError(t, s.CreateFamilyGroup(ctx, g1))
	require.NoError(t, s.CreateFamilyGroup(ctx, g2))
	assert.ErrorIs(t, s.CreateFamilyGroup(ctx, g1), store.ErrAlreadyExists)

	prev, err := s.SetUserFamilyGroup(ctx, u.ID, g1.ID)
	require.NoError(t, err)
	assert.Empty(t, prev)

	prev, err = s.SetUserFamilyGroup(ctx, u.ID, g2.ID)
	require.NoError(t, err)
	assert.Equal(t, g1.ID, prev)

	got1, err := s.GetFamilyGroup(ctx, g1.ID)
	require.NoError(t, err)
	assert.NotContains(t, got1.MemberIDs, u.ID)
	got2, err := s.GetFamilyGroup(ctx, g2.ID)
	require.NoError(t, err)
	assert.Contains(t, got2.MemberIDs, u.ID)
	assert.Equal(t, models.TierFree, got2.SubscriptionTier)
	assert.Nil(t, got2.TierUpdatedAt)

	prev, err = s.SetUserFamilyGroup(ctx, u.ID, "")
	require.NoError(t, err)
	assert.Equal(t, g2.ID, prev)

	user, err := s.GetUser(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, user.FamilyGroupID)

	_, err = s.SetUserFamilyGroup(ctx, "missing", g1.ID)
	assert.ErrorIs(t, err, store.ErrNotFound)

	_, err = s.GetFamilyGroup(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testClaims(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := uuid.NewString()

	claims, err := s.GetClaims(ctx, uid)
	require.NoError(t, err)
	assert.Empty(t, claims)

	claims, err = s.MergeClaims(ctx, uid, models.CustomClaims{models.ClaimFamilyGroupID: "g1"})
	require.NoError(t, err)
	assert.Equal(t, "g1", claims.FamilyGroupID())

	claims, err = s.MergeClaims(ctx, uid, models.CustomClaims{models.ClaimAdmin: true})
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Equal(t, "g1", claims.FamilyGroupID())

	claims, err = s.MergeClaims(ctx, uid, nil, models.ClaimFamilyGroupID)
	require.NoError(t, err)
	assert.True(t, claims.IsAdmin())
	assert.Empty(t, claims.FamilyGroupID())

	stored, err := s.GetClaims(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, claims, stored)

	marker, err := s.GetClaimsUpdatedAt(ctx, uid)
	require.NoError(t, err)
	assert.Nil(t, marker)

	at := time.Now()
	require.NoError(t, s.SetClaimsUpdatedAt(ctx, uid, at))
	marker, err = s.GetClaimsUpdatedAt(ctx, uid)
	require.NoError(t, err)
	require.NotNil(t, marker)
	assert.Equal(t, at.UnixMilli(), *marker)
}

func testUsage(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := uuid.NewString()

	_, found, err := s.GetUsage(ctx, uid)
	require.NoError(t, err)
	assert.False(t, found)

	created := time.Date(2026, 1, 15, 12, 0, 0, 0, time.UTC)
	for i := 0; i < 2; i++ {
		require.NoError(t, s.CreateList(ctx, &models.ShoppingList{
			ID: uuid.NewString(), FamilyGroupID: "g", Name: "weekly", CreatedBy: uid, CreatedAt: created,
		}))
	}
	require.NoError(t, s.SaveReceiptScan(ctx, &models.ReceiptScan{
		ID: uuid.NewString(), UserID: uid, FamilyGroupID: "g", Text: "MILK 1.99", CreatedAt: created,
	}))

	usage, found, err := s.GetUsage(ctx, uid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 2, usage.ListsCreated)
	assert.Equal(t, 1, usage.OCRProcessed)
	assert.True(t, created.Equal(usage.LastResetDate))

	resetAt := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.ResetMonthlyUsage(ctx, uid, resetAt))

	usage, _, err = s.GetUsage(ctx, uid)
	require.NoError(t, err)
	assert.Equal(t, 2, usage.ListsCreated)
	assert.Equal(t, 0, usage.OCRProcessed)
	assert.Equal(t, 0, usage.UrgentItemsCreated)
	assert.True(t, resetAt.Equal(usage.LastResetDate))
}

func testFamilyTier(t *testing.T, s store.Store) {
	ctx := context.Background()
	g := NewFamily(uuid.NewString())
	require.NoError(t, s.CreateFamilyGroup(ctx, g))

	applied, err := s.SetFamilyTier(ctx, g.ID, models.TierPremium, 1000)
	require.NoError(t, err)
	assert.True(t, applied, "first event applies when nothing is stored")

	applied, err = s.SetFamilyTier(ctx, g.ID, models.TierFamily, 1000)
	require.NoError(t, err)
	assert.False(t, applied, "equal timestamp is discarded")

	applied, err = s.SetFamilyTier(ctx, g.ID, models.TierFree, 999)
	require.NoError(t, err)
	assert.False(t, applied, "older timestamp is discarded")

	got, err := s.GetFamilyGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierPremium, got.SubscriptionTier)
	require.NotNil(t, got.TierUpdatedAt)
	assert.Equal(t, int64(1000), *got.TierUpdatedAt)

	applied, err = s.SetFamilyTier(ctx, g.ID, models.TierFamily, 2000)
	require.NoError(t, err)
	assert.True(t, applied)

	got, err = s.GetFamilyGroup(ctx, g.ID)
	require.NoError(t, err)
	assert.Equal(t, models.TierFamily, got.SubscriptionTier)
	assert.Equal(t, int64(2000), *got.TierUpdatedAt)

	_, err = s.SetFamilyTier(ctx, "missing", models.TierFamily, 3000)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func testLists(t *testing.T, s store.Store) {
	ctx := context.Background()
	uid := uuid.NewString()
	now := time.Now().UTC().Truncate(time.Millisecond)

	list := &models.ShoppingList{ID: uuid.NewString(), FamilyGroupID: "g", Name: "party", CreatedBy: uid, CreatedAt: now}
	require.NoError(t, s.CreateList(ctx, list))

	got, err := s.GetList(ctx, list.ID)
	require.NoError(t, err)
	assert.Equal(t, "party", got.Name)
	assert.Equal(t, "g", got.FamilyGroupID)

	_, err = s.GetList(ctx, "missing")
	assert.ErrorIs(t, err, store.ErrNotFound)

	require.NoError(t, s.CreateUrgentItem(ctx, &models.ListItem{
		ID: uuid.NewString(), ListID: list.ID, FamilyGroupID: "g", Name: "ice", Quantity: 2, Urgent: true, CreatedBy: uid, CreatedAt: now,
	}))

	usage, found, err := s.GetUsage(ctx, uid)
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, usage.ListsCreated)
	assert.Equal(t, 1, usage.UrgentItemsCreated)
}

func testWebhookLog(t *testing.T, s store.Store) {
	ctx := context.Background()
	base := time.Now().UTC().Truncate(time.Millisecond)

	for i, typ := range []models.WebhookEventType{models.EventInitialPurchase, models.EventBillingIssue, models.EventRenewal} {
		require.NoError(t, s.AppendWebhookLog(ctx, models.WebhookLogEntry{
			EventID:    uuid.NewString(),
			Type:       typ,
			AppUserID:  "u1",
			Outcome:    "ok",
			ReceivedAt: base.Add(time.Duration(i) * time.Second),
		}))
	}

	entries, err := s.RecentWebhookLog(ctx, 2)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, models.EventRenewal, entries[0].Type)
	assert.Equal(t, models.EventBillingIssue, entries[1].Type)
}

func testFlags(t *testing.T, s store.Store) {
	ctx := context.Background()

	require.NoError(t, s.AcquireFlag(ctx, "bootstrap_admin"))
	assert.ErrorIs(t, s.AcquireFlag(ctx, "bootstrap_admin"), store.ErrFlagConsumed)

	require.NoError(t, s.ReleaseFlag(ctx, "bootstrap_admin"))
	assert.NoError(t, s.AcquireFlag(ctx, "bootstrap_admin"))
}
