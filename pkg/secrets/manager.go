package secrets

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/aws/request"
	"github.com/aws/aws-sdk-go/aws/session"
	"github.com/aws/aws-sdk-go/service/secretsmanager"
)

// ErrNotFound is returned when a secret has no value in the backend.
var ErrNotFound = errors.New("secret not found")

// Manager defines the interface for secrets management
type Manager interface {
	// GetSecret retrieves a secret by key
	GetSecret(ctx context.Context, key string) (string, error)

	// GetSecretJSON retrieves a secret and unmarshals it as JSON
	GetSecretJSON(ctx context.Context, key string, dest interface{}) error

	// RefreshCache drops every cached value
	RefreshCache(ctx context.Context) error

	Close() error
}

// Config holds secrets manager configuration
type Config struct {
	Backend       string        // "env" or "aws-secrets-manager"
	AWSRegion     string        // AWS region for Secrets Manager
	Prefix        string        // Prepended to keys looked up in AWS, e.g. "familycart/prod/"
	CacheDuration time.Duration // How long to cache secrets
}

// DefaultConfig returns default configuration
func DefaultConfig() Config {
	return Config{
		Backend:       "env",
		AWSRegion:     "us-east-1",
		CacheDuration: 5 * time.Minute,
	}
}

// NewManager creates a new secrets manager based on configuration
func NewManager(cfg Config) (Manager, error) {
	switch cfg.Backend {
	case "aws-secrets-manager", "aws":
		log.Printf("🔐 Initializing AWS Secrets Manager (region: %s)", cfg.AWSRegion)
		return NewAWSSecretsManager(cfg)
	case "env", "environment", "":
		return NewEnvironmentManager(), nil
	default:
		return nil, fmt.Errorf("unsupported secrets backend: %s", cfg.Backend)
	}
}

// EnvironmentManager reads secrets straight from the process environment.
type EnvironmentManager struct{}

// NewEnvironmentManager creates a new environment-based secrets manager
func NewEnvironmentManager() *EnvironmentManager {
	return &EnvironmentManager{}
}

// GetSecret retrieves a secret from environment variables
func (m *EnvironmentManager) GetSecret(ctx context.Context, key string) (string, error) {
	value := os.Getenv(key)
	if value == "" {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	return value, nil
}

// GetSecretJSON retrieves a secret and unmarshals it as JSON
func (m *EnvironmentManager) GetSecretJSON(ctx context.Context, key string, dest interface{}) error {
	return getJSON(ctx, m, key, dest)
}

// RefreshCache is a no-op, the environment is read on every call
func (m *EnvironmentManager) RefreshCache(ctx context.Context) error {
	return nil
}

// Close is a no-op for environment manager
func (m *EnvironmentManager) Close() error {
	return nil
}

// secretsAPI is the slice of the Secrets Manager client we use.
type secretsAPI interface {
	GetSecretValueWithContext(ctx aws.Context, input *secretsmanager.GetSecretValueInput, opts ...request.Option) (*secretsmanager.GetSecretValueOutput, error)
}

// AWSSecretsManager loads secrets from AWS Secrets Manager with a TTL cache
type AWSSecretsManager struct {
	client secretsAPI
	config Config
	now    func() time.Time

	mu    sync.RWMutex
	cache map[string]cachedSecret
}

type cachedSecret struct {
	value     string
	expiresAt time.Time
}

// NewAWSSecretsManager creates a new AWS Secrets Manager client
func NewAWSSecretsManager(cfg Config) (*AWSSecretsManager, error) {
	sess, err := session.NewSession(&aws.Config{
		Region: aws.String(cfg.AWSRegion),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create AWS session: %w", err)
	}

	return newAWSSecretsManager(secretsmanager.New(sess), cfg), nil
}

func newAWSSecretsManager(client secretsAPI, cfg Config) *AWSSecretsManager {
	if cfg.CacheDuration <= 0 {
		cfg.CacheDuration = DefaultConfig().CacheDuration
	}
	return &AWSSecretsManager{
		client: client,
		config: cfg,
		now:    time.Now,
		cache:  make(map[string]cachedSecret),
	}
}

// GetSecret retrieves a secret from AWS Secrets Manager
func (m *AWSSecretsManager) GetSecret(ctx context.Context, key string) (string, error) {
	if value, ok := m.cached(key); ok {
		return value, nil
	}

	result, err := m.client.GetSecretValueWithContext(ctx, &secretsmanager.GetSecretValueInput{
		SecretId: aws.String(m.config.Prefix + key),
	})
	if err != nil {
		var aerr awserr.Error
		if errors.As(err, &aerr) && aerr.Code() == secretsmanager.ErrCodeResourceNotFoundException {
			return "", fmt.Errorf("%w: %s", ErrNotFound, key)
		}
		return "", fmt.Errorf("failed to get secret %s: %w", key, err)
	}

	if result.SecretString == nil {
		return "", fmt.Errorf("secret %s has no string value", key)
	}

	m.store(key, *result.SecretString)
	return *result.SecretString, nil
}

// GetSecretJSON retrieves a secret and unmarshals it as JSON
func (m *AWSSecretsManager) GetSecretJSON(ctx context.Context, key string, dest interface{}) error {
	return getJSON(ctx, m, key, dest)
}

// RefreshCache forces a reload of all cached secrets
func (m *AWSSecretsManager) RefreshCache(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache = make(map[string]cachedSecret)
	log.Printf("🔄 AWS Secrets Manager cache cleared")
	return nil
}

// Close is a no-op, AWS SDK sessions don't need explicit cleanup
func (m *AWSSecretsManager) Close() error {
	return nil
}

func (m *AWSSecretsManager) cached(key string) (string, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.cache[key]
	if !ok || m.now().After(c.expiresAt) {
		return "", false
	}
	return c.value, true
}

func (m *AWSSecretsManager) store(key, value string) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.cache[key] = cachedSecret{
		value:     value,
		expiresAt: m.now().Add(m.config.CacheDuration),
	}
}

func getJSON(ctx context.Context, m Manager, key string, dest interface{}) error {
	value, err := m.GetSecret(ctx, key)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(value), dest); err != nil {
		return fmt.Errorf("failed to decode secret %s: %w", key, err)
	}
	return nil
}
