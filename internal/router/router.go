package router // package router defines how HTTP routes are registered for the API

import (
	"github.com/labstack/echo/v4" // import the Echo web framework to handle routing
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/qr-access-control/internal/config"
	"github.com/iliyamo/qr-access-control/internal/handler"    // import the handlers that implement business logic
	"github.com/iliyamo/qr-access-control/internal/middleware" // import middleware for JWT authentication and role enforcement
)

// Handlers bundles every handler the router needs so main only makes one
// call after wiring dependencies.
type Handlers struct {
	Auth  *handler.AuthHandler
	Scan  *handler.ScanHandler
	Pass  *handler.PassHandler
	Guest *handler.GuestHandler
}

// RegisterRoutes registers routes that do not require authentication on the
// provided Echo instance.  Currently it exposes only a health check.
func RegisterRoutes(e *echo.Echo) {
	// Load balancers and monitoring systems use this endpoint to verify
	// that the service is up and running.
	e.GET("/healthz", handler.Health)
}

// RegisterAuth registers authentication routes and their middleware.
// Unauthenticated operations live under /v1/auth; protected endpoints
// are registered by RegisterAccess.
func RegisterAuth(e *echo.Echo, a *handler.AuthHandler) {
	g := e.Group("/v1/auth")
	// Login and token exchange do not require an existing session.
	g.POST("/login", a.Login)
	// Refresh rotates the refresh token and returns a new pair.
	g.POST("/refresh", a.Refresh)
	// refresh-access issues a new access token without rotating the refresh token.
	g.POST("/refresh-access", a.RefreshAccess)
	// Logout accepts either a refresh_token body (single session) or a
	// bearer token (all sessions) and does not require JWT middleware, so
	// sessions can be terminated even after the access token expired.
	g.POST("/logout", a.Logout)
}

// RegisterAccess registers the access-control endpoints.  Every route
// requires a valid access token; guard registration additionally requires
// the ADMIN role.  The scan endpoint carries a Redis token-bucket rate
// limit so a stuck or malicious scanner cannot flood the decision path.
func RegisterAccess(e *echo.Echo, h Handlers, cfg config.Config, rl config.RateLimitConfig, rdb *redis.Client) {
	auth := e.Group("/v1")
	auth.Use(middleware.JWTAuth(cfg.JWTSecret))
	auth.Use(middleware.RequireRole("ADMIN", "GUARD"))

	auth.GET("/me", h.Auth.Me)

	// QR validation is the hot path at the gate.
	scan := auth.Group("/qr")
	if rdb != nil && rl.Enabled {
		scan.Use(middleware.NewTokenBucket(rl, rdb))
	}
	scan.POST("/validate", h.Scan.Validate)

	// Pass issuance and guest registration are desk operations.
	auth.POST("/passes", h.Pass.Issue)
	auth.POST("/passes/ensure", h.Pass.Ensure)
	auth.GET("/passes", h.Pass.List)
	auth.POST("/guests", h.Guest.Create)
	auth.GET("/guests/:id", h.Guest.Get)

	// Only admins create guard accounts.
	admin := e.Group("/v1/admin")
	admin.Use(middleware.JWTAuth(cfg.JWTSecret))
	admin.Use(middleware.RequireRole("ADMIN"))
	admin.POST("/guards", h.Auth.Register)
}
