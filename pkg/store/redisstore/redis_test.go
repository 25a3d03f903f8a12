package redisstore

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/jordanlanch/familycart/pkg/cache"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/jordanlanch/familycart/pkg/store/storetest"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	mr := miniredis.RunT(t)
	client := cache.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })
	return New(client), mr
}

func TestRedisStore_Conformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store {
		s, _ := setupTestStore(t)
		return s
	})
}

func TestRedisStore_TierLayout(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	g := storetest.NewFamily("owner")
	require.NoError(t, s.CreateFamilyGroup(ctx, g))

	applied, err := s.SetFamilyTier(ctx, g.ID, models.TierFamily, 1700000000000)
	require.NoError(t, err)
	assert.True(t, applied)

	assert.Equal(t, "family", mr.HGet("fc:family:"+g.ID, "subscriptionTier"))
	assert.Equal(t, "1700000000000", mr.HGet("fc:family:"+g.ID, "tierUpdatedAt"))
}

func TestRedisStore_WebhookLogIsCapped(t *testing.T) {
	s, mr := setupTestStore(t)
	ctx := context.Background()

	for i := 0; i < store.WebhookLogLimit+5; i++ {
		require.NoError(t, s.AppendWebhookLog(ctx, models.WebhookLogEntry{EventID: "e", Type: models.EventRenewal}))
	}

	items, err := mr.List("fc:webhook_log")
	require.NoError(t, err)
	assert.Len(t, items, store.WebhookLogLimit)
}
