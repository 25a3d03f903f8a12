package config

import (
	"context"
	"log"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/jordanlanch/familycart/pkg/secrets"
)

// Config holds all application configuration
type Config struct {
	// API Configuration
	APIPort        string
	APIHost        string
	APIEnvironment string

	// Storage
	StoreBackend string // redis, postgres, sqlite
	RedisURL     string
	DatabaseURL  string
	DBSSLMode    string

	// JWT & Security
	JWTSecret             string
	JWTExpirationHours    int
	BootstrapAdminEnabled bool

	// CORS
	CORSAllowedOrigins []string

	// Rate Limiting
	RateLimitRequestsPerMinute int
	RateLimitBurst             int

	// Billing webhooks
	WebhookAuthToken    string
	StripeWebhookSecret string
	ProductTierMap      map[string]string

	// Vision API (receipt OCR)
	VisionAPIKey  string
	VisionModel   string
	VisionBaseURL string
	VisionTimeout time.Duration

	// Receipt archive
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	ReceiptBucket      string

	// Secrets
	SecretsBackend string

	// Logging
	LogLevel  string
	LogFormat string

	// Monitoring
	SentryDSN         string
	SentryEnvironment string
}

// Load loads configuration from environment variables
func Load() *Config {
	return &Config{
		// API
		APIPort:        getEnv("API_PORT", "8080"),
		APIHost:        getEnv("API_HOST", "0.0.0.0"),
		APIEnvironment: getEnv("API_ENVIRONMENT", "development"),

		// Storage
		StoreBackend: getEnv("STORE_BACKEND", "redis"),
		RedisURL:     getEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DBSSLMode:    getEnv("DB_SSL_MODE", ""),

		// JWT
		JWTSecret:             getEnv("JWT_SECRET", "change-this-secret-in-production"),
		JWTExpirationHours:    getEnvAsInt("JWT_EXPIRATION_HOURS", 24),
		BootstrapAdminEnabled: getEnvAsBool("BOOTSTRAP_ADMIN_ENABLED", false),

		// CORS
		CORSAllowedOrigins: getEnvAsSlice("CORS_ALLOWED_ORIGINS", []string{"http://localhost:8081", "http://localhost:19006"}),

		// Rate Limiting
		RateLimitRequestsPerMinute: getEnvAsInt("RATE_LIMIT_REQUESTS_PER_MINUTE", 120),
		RateLimitBurst:             getEnvAsInt("RATE_LIMIT_BURST", 30),

		// Billing webhooks
		WebhookAuthToken:    getEnv("WEBHOOK_AUTH_TOKEN", ""),
		StripeWebhookSecret: getEnv("STRIPE_WEBHOOK_SECRET", ""),
		ProductTierMap:      getEnvAsMap("PRODUCT_TIER_MAP"),

		// Vision
		VisionAPIKey:  getEnv("VISION_API_KEY", ""),
		VisionModel:   getEnv("VISION_MODEL", "gpt-4o-mini"),
		VisionBaseURL: getEnv("VISION_BASE_URL", ""),
		VisionTimeout: time.Duration(getEnvAsInt("VISION_TIMEOUT_SECONDS", 30)) * time.Second,

		// Receipt archive
		AWSRegion:          getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		ReceiptBucket:      getEnv("RECEIPT_BUCKET", ""),

		// Secrets
		SecretsBackend: getEnv("SECRETS_BACKEND", "env"),

		// Logging
		LogLevel:  getEnv("LOG_LEVEL", "info"),
		LogFormat: getEnv("LOG_FORMAT", "json"),

		// Monitoring
		SentryDSN:         getEnv("SENTRY_DSN", ""),
		SentryEnvironment: getEnv("SENTRY_ENVIRONMENT", "development"),
	}
}

// LoadSecrets overlays server-held credentials from the secrets manager.
// Values already present in the environment are kept when the manager has
// no entry for them. In production the JWT secret must come from the manager.
func (c *Config) LoadSecrets(ctx context.Context, m secrets.Manager) error {
	if c.IsProduction() {
		secret, err := secrets.LoadStringRequired(ctx, m, "JWT_SECRET")
		if err != nil {
			return err
		}
		c.JWTSecret = secret
	} else {
		c.JWTSecret = secrets.LoadString(ctx, m, "JWT_SECRET", c.JWTSecret)
	}
	c.WebhookAuthToken = secrets.LoadString(ctx, m, "WEBHOOK_AUTH_TOKEN", c.WebhookAuthToken)
	c.StripeWebhookSecret = secrets.LoadString(ctx, m, "STRIPE_WEBHOOK_SECRET", c.StripeWebhookSecret)
	c.VisionAPIKey = secrets.LoadString(ctx, m, "VISION_API_KEY", c.VisionAPIKey)

	if c.WebhookAuthToken == "" {
		log.Printf("⚠️  WEBHOOK_AUTH_TOKEN is empty, billing webhooks will be rejected")
	}
	return nil
}

// IsProduction reports whether the API runs in production.
func (c *Config) IsProduction() bool {
	return c.APIEnvironment == "production"
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt gets an environment variable as int or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool gets an environment variable as bool or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsSlice splits a comma separated variable
func getEnvAsSlice(key string, defaultValue []string) []string {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(valueStr, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// getEnvAsMap parses "key:value,key:value" pairs
func getEnvAsMap(key string) map[string]string {
	out := make(map[string]string)
	for _, pair := range getEnvAsSlice(key, nil) {
		k, v, ok := strings.Cut(pair, ":")
		if !ok {
			log.Printf("⚠️  Ignoring malformed %s entry: %q", key, pair)
			continue
		}
		out[strings.TrimSpace(k)] = strings.TrimSpace(v)
	}
	return out
}
