package main

// @title FamilyCart API
// @version 1.0
// @description Shared shopping lists with tiered quotas and subscription billing.

// @BasePath /api/v1

// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
// @description Type "Bearer" followed by a space and JWT token.

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/getsentry/sentry-go"
	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/jordanlanch/familycart/config"
	apierrors "github.com/jordanlanch/familycart/pkg/api/errors"
	"github.com/jordanlanch/familycart/pkg/api/handlers"
	"github.com/jordanlanch/familycart/pkg/auth"
	"github.com/jordanlanch/familycart/pkg/billing"
	"github.com/jordanlanch/familycart/pkg/cache"
	"github.com/jordanlanch/familycart/pkg/claims"
	"github.com/jordanlanch/familycart/pkg/database"
	"github.com/jordanlanch/familycart/pkg/entitlement"
	"github.com/jordanlanch/familycart/pkg/family"
	"github.com/jordanlanch/familycart/pkg/lists"
	"github.com/jordanlanch/familycart/pkg/logger"
	"github.com/jordanlanch/familycart/pkg/metrics"
	custommiddleware "github.com/jordanlanch/familycart/pkg/middleware"
	"github.com/jordanlanch/familycart/pkg/ocr"
	"github.com/jordanlanch/familycart/pkg/secrets"
	"github.com/jordanlanch/familycart/pkg/storage"
	"github.com/jordanlanch/familycart/pkg/store"
	"github.com/jordanlanch/familycart/pkg/store/redisstore"
	"github.com/jordanlanch/familycart/pkg/store/sqlstore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const version = "1.0.0"

func main() {
	// Load configuration
	cfg := config.Load()
	log.Printf("🔧 Configuration loaded (environment: %s)", cfg.APIEnvironment)

	ctx, stop := context.WithCancel(context.Background())
	defer stop()

	// Overlay secrets
	secretsCfg := secrets.DefaultConfig()
	secretsCfg.Backend = cfg.SecretsBackend
	secretsCfg.AWSRegion = cfg.AWSRegion
	secretManager, err := secrets.NewManager(secretsCfg)
	if err != nil {
		log.Fatalf("❌ Failed to initialize secrets manager: %v", err)
	}
	defer secretManager.Close()
	if err := cfg.LoadSecrets(ctx, secretManager); err != nil {
		log.Fatalf("❌ Failed to load secrets: %v", err)
	}

	appLog := logger.New(cfg.LogLevel, cfg.LogFormat)
	apierrors.SetLogger(appLog)

	// Initialize Sentry for error tracking
	if cfg.SentryDSN != "" {
		err := sentry.Init(sentry.ClientOptions{
			Dsn:              cfg.SentryDSN,
			Environment:      cfg.SentryEnvironment,
			Release:          "familycart@" + version,
			AttachStacktrace: true,
		})
		if err != nil {
			log.Printf("⚠️  Failed to initialize Sentry: %v", err)
		} else {
			log.Printf("✅ Sentry initialized (environment: %s)", cfg.SentryEnvironment)
			defer sentry.Flush(2 * time.Second)
		}
	} else {
		log.Printf("ℹ️  Sentry disabled (no DSN configured)")
	}

	st, err := openStore(ctx, cfg)
	if err != nil {
		log.Fatalf("❌ Failed to open %s store: %v", cfg.StoreBackend, err)
	}
	defer st.Close()
	log.Printf("✅ Store ready (backend: %s)", cfg.StoreBackend)

	// Initialize Prometheus metrics
	prometheusMetrics := metrics.New()

	// Services
	authService := auth.NewService(st, cfg.JWTSecret, cfg.JWTExpirationHours, appLog, prometheusMetrics)
	propagator := claims.NewPropagator(st, appLog, prometheusMetrics)
	familyService := family.NewService(st, propagator, appLog)
	checker := entitlement.NewChecker(st, appLog, prometheusMetrics)
	listService := lists.NewService(st, checker, familyService, appLog)
	claimsService := claims.NewService(st, authService, cfg.BootstrapAdminEnabled, appLog, prometheusMetrics)
	reconciler := billing.NewReconciler(st, billing.NewProductMap(cfg.ProductTierMap), appLog, prometheusMetrics)
	stripeAdapter := billing.NewStripeAdapter(cfg.StripeWebhookSecret, reconciler, appLog)

	var vision ocr.Vision
	if cfg.VisionAPIKey != "" {
		vision = ocr.NewOpenAIVision(ocr.VisionConfig{
			APIKey:  cfg.VisionAPIKey,
			Model:   cfg.VisionModel,
			BaseURL: cfg.VisionBaseURL,
			Timeout: cfg.VisionTimeout,
		}, appLog)
		log.Printf("✅ Receipt scanning enabled (model: %s)", cfg.VisionModel)
	} else {
		log.Printf("ℹ️  Receipt scanning disabled (no VISION_API_KEY)")
	}

	var archive ocr.Archive
	if cfg.ReceiptBucket != "" {
		receipts, err := storage.NewReceiptArchive(ctx, storage.Config{
			AWSAccessKeyID:     cfg.AWSAccessKeyID,
			AWSSecretAccessKey: cfg.AWSSecretAccessKey,
			AWSRegion:          cfg.AWSRegion,
			Bucket:             cfg.ReceiptBucket,
		})
		if err != nil {
			log.Printf("⚠️  Receipt archive disabled: %v", err)
		} else {
			archive = receipts
			log.Printf("✅ Receipt archive: s3://%s", cfg.ReceiptBucket)
		}
	}
	ocrService := ocr.NewService(st, checker, familyService, vision, archive, appLog, prometheusMetrics)

	// Initialize Echo
	e := echo.New()
	e.HideBanner = true

	// Rate limiters
	globalRateLimiter := custommiddleware.NewRateLimiter(cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	authRateLimiter := custommiddleware.NewRateLimiter(10, 3)
	webhookRateLimiter := custommiddleware.NewRateLimiter(600, 100)
	for _, rl := range []*custommiddleware.RateLimiter{globalRateLimiter, authRateLimiter, webhookRateLimiter} {
		go rl.Cleanup(ctx, 3*time.Minute)
	}

	// Global middleware
	e.Use(middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogStatus:   true,
		LogURI:      true,
		LogMethod:   true,
		LogLatency:  true,
		LogError:    true,
		HandleError: true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			if v.Error != nil {
				appLog.Error("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency, "error", v.Error)
				return nil
			}
			appLog.Info("request", "method", v.Method, "uri", v.URI, "status", v.Status, "latency", v.Latency)
			return nil
		},
	}))
	e.Use(middleware.Recover())

	// Sentry error tracking middleware (if configured)
	if cfg.SentryDSN != "" {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic: true,
		}))
	}

	e.Use(prometheusMetrics.Middleware())
	e.Use(middleware.CORSWithConfig(custommiddleware.CORSConfig(cfg.CORSAllowedOrigins)))
	e.Use(custommiddleware.SecurityHeaders(custommiddleware.SecurityHeadersConfig{}))
	e.Use(middleware.BodyLimit("12M"))
	e.Use(globalRateLimiter.RateLimitMiddleware())

	e.GET("/metrics", echo.WrapHandler(promhttp.Handler()))

	handlers.Routes{
		Auth:           handlers.NewAuthHandler(authService, st),
		Actions:        handlers.NewActionsHandler(listService, ocrService, st),
		Family:         handlers.NewFamilyHandler(familyService),
		Admin:          handlers.NewAdminHandler(claimsService, st),
		Webhooks:       handlers.NewWebhookHandler(reconciler, stripeAdapter, cfg.WebhookAuthToken, appLog, prometheusMetrics),
		Health:         handlers.NewHealthHandler(st, version),
		JWTSecret:      cfg.JWTSecret,
		Claims:         st,
		AuthLimiter:    authRateLimiter,
		WebhookLimiter: webhookRateLimiter,
	}.Register(e)

	// Start server
	address := fmt.Sprintf("%s:%s", cfg.APIHost, cfg.APIPort)
	log.Printf("🚀 FamilyCart API starting on %s", address)
	log.Printf("📝 Log level: %s, Log format: %s", cfg.LogLevel, cfg.LogFormat)
	log.Printf("🔐 JWT expiration: %d hours", cfg.JWTExpirationHours)
	log.Printf("🌍 CORS: %v", cfg.CORSAllowedOrigins)
	log.Printf("🛡️  Rate limiting: %d req/min (burst: %d)", cfg.RateLimitRequestsPerMinute, cfg.RateLimitBurst)
	if cfg.BootstrapAdminEnabled {
		log.Printf("⚠️  Admin bootstrap endpoint is enabled")
	}
	if stripeAdapter.Enabled() {
		log.Printf("💳 Stripe webhook enabled")
	}

	// Graceful shutdown
	go func() {
		if err := e.Start(address); err != nil && err != http.ErrServerClosed {
			log.Fatalf("❌ Failed to start server: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Println("🛑 Shutting down server...")
	stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Fatalf("❌ Server forced to shutdown: %v", err)
	}

	log.Println("✅ Server gracefully stopped")
}

// openStore connects the configured backend
func openStore(ctx context.Context, cfg *config.Config) (store.Store, error) {
	switch cfg.StoreBackend {
	case "redis":
		client, err := cache.NewClient(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		return redisstore.New(client), nil

	case "postgres", "sqlite":
		var (
			client *database.Client
			err    error
		)
		if cfg.StoreBackend == "postgres" {
			client, err = database.NewPostgres(ctx, cfg.DatabaseURL, &database.SSLConfig{Mode: cfg.DBSSLMode})
		} else {
			dsn := cfg.DatabaseURL
			if dsn == "" {
				dsn = "file:familycart.db?_foreign_keys=on"
			}
			client, err = database.NewSQLite(ctx, dsn)
		}
		if err != nil {
			return nil, err
		}
		return sqlstore.New(client), nil

	default:
		return nil, fmt.Errorf("unknown store backend %q", cfg.StoreBackend)
	}
}
