package secrets

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSecretsAPI struct {
	values map[string]string
	calls  int
	err    error
}

func (f *fakeSecretsAPI) GetSecretValueWithContext(ctx aws.Context, input *secretsmanager.GetSecretValueInput, opts ...request.Option) (*secretsmanager.GetSecretValueOutput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	v, ok := f.values[aws.StringValue(input.SecretId)]
	if !ok {
		return nil, awserr.New(secretsmanager.ErrCodeResourceNotFoundException, "not found", nil)
	}
	return &secretsmanager.GetSecretValueOutput{SecretString: aws.String(v)}, nil
}

func TestEnvironmentManager_GetSecret(t *testing.T) {
	t.Setenv("FC_TEST_SECRET", "test-value")
	m := NewEnvironmentManager()

	value, err := m.GetSecret(context.Background(), "FC_TEST_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "test-value", value)

	_, err = m.GetSecret(context.Background(), "FC_MISSING_SECRET")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestEnvironmentManager_GetSecretJSON(t *testing.T) {
	t.Setenv("FC_JSON_SECRET", `{"token":"abc"}`)
	m := NewEnvironmentManager()

	var dest struct {
		Token string `json:"token"`
	}
	require.NoError(t, m.GetSecretJSON(context.Background(), "FC_JSON_SECRET", &dest))
	assert.Equal(t, "abc", dest.Token)
}

func TestAWSSecretsManager_CachesValues(t *testing.T) {
	api := &fakeSecretsAPI{values: map[string]string{"familycart/WEBHOOK_AUTH_TOKEN": "s3cret"}}
	m := newAWSSecretsManager(api, Config{Prefix: "familycart/", CacheDuration: time.Minute})

	for i := 0; i < 3; i++ {
		value, err := m.GetSecret(context.Background(), "WEBHOOK_AUTH_TOKEN")
		require.NoError(t, err)
		assert.Equal(t, "s3cret", value)
	}
	assert.Equal(t, 1, api.calls)

	require.NoError(t, m.RefreshCache(context.Background()))
	_, err := m.GetSecret(context.Background(), "WEBHOOK_AUTH_TOKEN")
	require.NoError(t, err)
	assert.Equal(t, 2, api.calls)
}

func TestAWSSecretsManager_CacheExpires(t *testing.T) {
	api := &fakeSecretsAPI{values: map[string]string{"JWT_SECRET": "one"}}
	m := newAWSSecretsManager(api, Config{CacheDuration: time.Minute})
	now := time.Now()
	m.now = func() time.Time { return now }

	_, err := m.GetSecret(context.Background(), "JWT_SECRET")
	require.NoError(t, err)

	now = now.Add(2 * time.Minute)
	api.values["JWT_SECRET"] = "two"
	value, err := m.GetSecret(context.Background(), "JWT_SECRET")
	require.NoError(t, err)
	assert.Equal(t, "two", value)
}

func TestAWSSecretsManager_NotFound(t *testing.T) {
	m := newAWSSecretsManager(&fakeSecretsAPI{values: map[string]string{}}, DefaultConfig())

	_, err := m.GetSecret(context.Background(), "VISION_API_KEY")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestLoadString_Fallback(t *testing.T) {
	m := newAWSSecretsManager(&fakeSecretsAPI{err: errors.New("throttled")}, DefaultConfig())

	assert.Equal(t, "fallback", LoadString(context.Background(), m, "JWT_SECRET", "fallback"))

	_, err := LoadStringRequired(context.Background(), m, "JWT_SECRET")
	assert.Error(t, err)
}

func TestNewManager_UnsupportedBackend(t *testing.T) {
	_, err := NewManager(Config{Backend: "vault"})
	assert.Error(t, err)
}
