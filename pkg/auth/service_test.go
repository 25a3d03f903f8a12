package auth

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/familycart/pkg/cache"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/models"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/jordanlanch/familycart/pkg/store/redisstore"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func setupService(t *testing.T) (*Service, *redisstore.Store) {
	t.Helper()
	bcryptCost = bcrypt.MinCost

	mr := miniredis.RunT(t)
	client := cache.Wrap(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { client.Close() })

	s := redisstore.New(client)
	return NewService(s, testSecret, 24, logger.Nop(), nil), s
}

func TestService_RegisterAndLogin(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	email := gofakeit.Email()

	reg, err := svc.Register(ctx, "  "+email+" ", "correct horse")
	require.NoError(t, err)
	assert.NotEmpty(t, reg.Token)
	assert.NotEmpty(t, reg.User.ID)

	login, err := svc.Login(ctx, email, "correct horse")
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, login.User.ID)

	claims, err := svc.ValidateToken(login.Token)
	require.NoError(t, err)
	assert.Equal(t, reg.User.ID, claims.UserID)
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	email := gofakeit.Email()

	_, err := svc.Register(ctx, email, "password-1")
	require.NoError(t, err)

	_, err = svc.Register(ctx, email, "password-2")
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestService_LoginFailures(t *testing.T) {
	svc, _ := setupService(t)
	ctx := context.Background()
	email := gofakeit.Email()

	_, err := svc.Register(ctx, email, "password-1")
	require.NoError(t, err)

	_, err = svc.Login(ctx, email, "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	_, err = svc.Login(ctx, "nobody@example.com", "password-1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestService_RefreshPicksUpStoredClaims(t *testing.T) {
	svc, s := setupService(t)
	ctx := context.Background()

	reg, err := svc.Register(ctx, gofakeit.Email(), "password-1")
	require.NoError(t, err)

	before, err := svc.ValidateToken(reg.Token)
	require.NoError(t, err)
	assert.False(t, before.Custom.IsAdmin())

	_, err = s.MergeClaims(ctx, reg.User.ID, models.CustomClaims{models.ClaimAdmin: true, models.ClaimFamilyGroupID: "g1"})
	require.NoError(t, err)

	refreshed, err := svc.Refresh(ctx, reg.User.ID)
	require.NoError(t, err)

	after, err := svc.ValidateToken(refreshed.Token)
	require.NoError(t, err)
	assert.True(t, after.Custom.IsAdmin())
	assert.Equal(t, "g1", after.Custom.FamilyGroupID())
}

func TestService_RefreshUnknownUser(t *testing.T) {
	svc, _ := setupService(t)

	_, err := svc.Refresh(context.Background(), "ghost")
	assert.ErrorIs(t, err, store.ErrNotFound)
}
