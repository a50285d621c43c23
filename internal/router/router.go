// Package router wires handlers and middleware onto echo.
package router

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/webshop-accounts/internal/config"
	"github.com/iliyamo/webshop-accounts/internal/handler"
	"github.com/iliyamo/webshop-accounts/internal/metrics"
	"github.com/iliyamo/webshop-accounts/internal/middleware"
	"github.com/iliyamo/webshop-accounts/internal/model"
)

// APIPrefix is where the account API is mounted.
const APIPrefix = "/api/users"

// Deps is everything the routes need.  Redis and Metrics may be nil.
type Deps struct {
	Auth    *handler.AuthHandler
	Profile *handler.ProfileHandler
	Admin   *handler.AdminHandler
	Health  *handler.HealthHandler

	Tokens   middleware.TokenVerifier
	Accounts middleware.AccountLoader

	RateLimit config.RateLimitConfig
	Redis     *redis.Client
	Metrics   *metrics.Metrics
	Log       *slog.Logger
}

// RegisterRoutes mounts the service endpoints:
//
//	GET  /                 banner
//	GET  /health, /healthz database ping
//	GET  /metrics          prometheus
//	     /api/users/...    account API
func RegisterRoutes(e *echo.Echo, d Deps) {
	e.GET("/", d.Health.Root)
	e.GET("/health", d.Health.Healthz)
	e.GET("/healthz", d.Health.Healthz)
	if d.Metrics != nil {
		e.GET("/metrics", echo.WrapHandler(d.Metrics.Handler()))
	}

	api := e.Group(APIPrefix)
	registerAuth(api, d)
	registerProfile(api, d)
	registerAdmin(api, d)
}

// registerAuth mounts the credential endpoints.  Register and login are
// throttled per client IP and route.
func registerAuth(g *echo.Group, d Deps) {
	throttle := middleware.NewTokenBucket(d.RateLimit, d.Redis, d.Log)
	gate := middleware.Authenticate(d.Tokens, d.Accounts, d.Metrics)

	g.POST("/register", d.Auth.Register, throttle)
	g.POST("/login", d.Auth.Login, throttle)
	g.POST("/confirm-email", d.Auth.ConfirmEmail, throttle)
	g.POST("/logout", d.Auth.Logout, gate)
}

func registerProfile(g *echo.Group, d Deps) {
	gate := middleware.Authenticate(d.Tokens, d.Accounts, d.Metrics)

	g.GET("/me", d.Profile.Me, gate)
	g.PUT("/me", d.Profile.UpdateMe, gate)
	g.PUT("/me/password", d.Profile.ChangePassword, gate)
	g.GET("/:id", d.Profile.Get, gate)
}

// registerAdmin mounts /admin/users behind the gate and the admin role.
func registerAdmin(g *echo.Group, d Deps) {
	admin := g.Group("/admin/users",
		middleware.Authenticate(d.Tokens, d.Accounts, d.Metrics),
		middleware.RequireRole(model.RoleAdmin, d.Metrics),
	)
	admin.GET("", d.Admin.List)
	admin.DELETE("/:id", d.Admin.Delete)
	admin.PATCH("/:id/status", d.Admin.SetStatus)
	admin.PATCH("/:id/verification", d.Admin.SetVerification)
	admin.POST("/:id/force-logout", d.Admin.ForceLogout)
}
