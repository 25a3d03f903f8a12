package handlers

import (
	apimw "github.com/jordanlanch/familycart/pkg/api/middleware"
	custommw "github.com/jordanlanch/familycart/pkg/middleware"
	"github.com/labstack/echo/v4"
)

// Routes wires handlers to paths. Nil limiters are skipped.
type Routes struct {
	Auth     *AuthHandler
	Actions  *ActionsHandler
	Family   *FamilyHandler
	Admin    *AdminHandler
	Webhooks *WebhookHandler
	Health   *HealthHandler

	JWTSecret string
	Claims    custommw.ClaimsReader

	AuthLimiter    *custommw.RateLimiter
	WebhookLimiter *custommw.RateLimiter
}

// Register mounts every route on e
func (r Routes) Register(e *echo.Echo) {
	e.GET("/health", r.Health.Health)

	hooks := e.Group("/webhooks", limit(r.WebhookLimiter)...)
	hooks.POST("/revenuecat", r.Webhooks.RevenueCat)
	hooks.POST("/stripe", r.Webhooks.Stripe)

	v1 := e.Group("/api/v1")

	public := v1.Group("", limit(r.AuthLimiter)...)
	public.POST("/auth/register", r.Auth.Register)
	public.POST("/auth/login", r.Auth.Login)
	public.POST("/bootstrap/admin", r.Admin.BootstrapAdmin)

	protected := v1.Group("", apimw.JWTMiddleware(r.JWTSecret))
	protected.POST("/auth/refresh", r.Auth.Refresh)
	protected.GET("/me", r.Auth.Me)

	protected.POST("/families", r.Family.Create)
	protected.POST("/families/leave", r.Family.Leave)
	protected.POST("/families/:id/join", r.Family.Join)
	protected.GET("/families/:id", r.Family.Get)

	protected.POST("/actions/create-list", r.Actions.CreateList)
	protected.POST("/actions/create-urgent-item", r.Actions.CreateUrgentItem)
	protected.POST("/actions/process-ocr", r.Actions.ProcessOCR)

	admin := protected.Group("/admin", custommw.RequireAdmin(r.Claims))
	admin.POST("/claims/admin", r.Admin.GrantAdmin)
	admin.GET("/webhooks", r.Admin.WebhookEvents)
}

func limit(rl *custommw.RateLimiter) []echo.MiddlewareFunc {
	if rl == nil {
		return nil
	}
	return []echo.MiddlewareFunc{rl.RateLimitMiddleware()}
}
