package config

import (
	"context"
	"testing"
	"time"

	"github.com/jordanlanch/familycart/pkg/secrets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapSecrets map[string]string

func (m mapSecrets) GetSecret(ctx context.Context, key string) (string, error) {
	if v, ok := m[key]; ok {
		return v, nil
	}
	return "", secrets.ErrNotFound
}

func (m mapSecrets) GetSecretJSON(ctx context.Context, key string, dest interface{}) error {
	return secrets.ErrNotFound
}

func (m mapSecrets) RefreshCache(ctx context.Context) error { return nil }
func (m mapSecrets) Close() error                           { return nil }

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.APIPort)
	assert.Equal(t, "redis", cfg.StoreBackend)
	assert.Equal(t, 24, cfg.JWTExpirationHours)
	assert.False(t, cfg.BootstrapAdminEnabled)
	assert.Equal(t, 30*time.Second, cfg.VisionTimeout)
	assert.Empty(t, cfg.ProductTierMap)
	assert.False(t, cfg.IsProduction())
}

func TestLoad_FromEnvironment(t *testing.T) {
	t.Setenv("API_ENVIRONMENT", "production")
	t.Setenv("STORE_BACKEND", "postgres")
	t.Setenv("JWT_EXPIRATION_HOURS", "2")
	t.Setenv("BOOTSTRAP_ADMIN_ENABLED", "true")
	t.Setenv("CORS_ALLOWED_ORIGINS", "https://a.example, ,https://b.example")
	t.Setenv("PRODUCT_TIER_MAP", "fam_yearly:family, pro:premium,broken")
	t.Setenv("VISION_TIMEOUT_SECONDS", "5")

	cfg := Load()

	assert.True(t, cfg.IsProduction())
	assert.Equal(t, "postgres", cfg.StoreBackend)
	assert.Equal(t, 2, cfg.JWTExpirationHours)
	assert.True(t, cfg.BootstrapAdminEnabled)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSAllowedOrigins)
	assert.Equal(t, map[string]string{"fam_yearly": "family", "pro": "premium"}, cfg.ProductTierMap)
	assert.Equal(t, 5*time.Second, cfg.VisionTimeout)
}

func TestLoad_InvalidNumbersFallBack(t *testing.T) {
	t.Setenv("JWT_EXPIRATION_HOURS", "a day")
	t.Setenv("BOOTSTRAP_ADMIN_ENABLED", "maybe")

	cfg := Load()
	assert.Equal(t, 24, cfg.JWTExpirationHours)
	assert.False(t, cfg.BootstrapAdminEnabled)
}

func TestLoadSecrets_OverlaysManagerValues(t *testing.T) {
	t.Setenv("JWT_SECRET", "from-env")
	t.Setenv("VISION_API_KEY", "sk-env")

	cfg := Load()
	err := cfg.LoadSecrets(context.Background(), mapSecrets{
		"JWT_SECRET":         "from-manager",
		"WEBHOOK_AUTH_TOKEN": "rc-token",
	})
	require.NoError(t, err)

	assert.Equal(t, "from-manager", cfg.JWTSecret)
	assert.Equal(t, "rc-token", cfg.WebhookAuthToken)
	assert.Equal(t, "sk-env", cfg.VisionAPIKey, "missing entries keep the env value")
}

func TestLoadSecrets_ProductionRequiresJWTSecret(t *testing.T) {
	t.Setenv("API_ENVIRONMENT", "production")
	t.Setenv("JWT_SECRET", "from-env")

	cfg := Load()
	assert.Error(t, cfg.LoadSecrets(context.Background(), mapSecrets{}))

	require.NoError(t, cfg.LoadSecrets(context.Background(), mapSecrets{"JWT_SECRET": "prod-secret"}))
	assert.Equal(t, "prod-secret", cfg.JWTSecret)
}
