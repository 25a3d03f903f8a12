package sqlstore

import (
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/jordanlanch/familycart/pkg/database"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/jordanlanch/familycart/pkg/store/storetest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) *Store {
	client, err := database.NewSQLite(context.Background(), "file:"+uuid.NewString()+"?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return New(client)
}

func TestSQLStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		return setupTestStore(t)
	})
}

func TestSQLStore_TierUpdateIsConditional(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()

	g := storetest.NewFamily("owner")
	require.NoError(t, s.CreateFamilyGroup(ctx, g))

	applied, err := s.SetFamilyTier(ctx, g.ID, models.TierPremium, 2000)
	require.NoError(t, err)
	require.True(t, applied)

	// an expiration from the past must not downgrade
	applied, err = s.SetFamilyTier(ctx, g.ID, models.TierFree, 1500)
	require.NoError(t, err)
	assert.False(t, applied)

	var tier string
	require.NoError(t, s.db.QueryRowContext(ctx, `SELECT subscription_tier FROM family_groups WHERE id = $1`, g.ID).Scan(&tier))
	assert.Equal(t, "premium", tier)
}

func TestSQLStore_UsageRowCreatedOnFirstIncrement(t *testing.T) {
	s := setupTestStore(t)
	ctx := context.Background()
	uid := uuid.NewString()

	require.NoError(t, s.ResetMonthlyUsage(ctx, uid, storetest.NewUser().CreatedAt))

	usage, found, err := s.GetUsage(ctx, uid)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 0, usage.ListsCreated)
}
