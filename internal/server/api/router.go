package api

import (
	"drive/internal/server/config"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// SetupRouter creates and configures the echo router with all routes and middleware.
func SetupRouter(handler *Handler, authn Authenticator, cfg *config.Config) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	// Global middleware
	e.Use(middleware.Recover())
	e.Use(middleware.CORSWithConfig(middleware.CORSConfig{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders: []string{"Content-Type", "Authorization"},
	}))
	e.Use(RequestLogger())

	e.GET("/health", handler.HandleHealth)

	api := e.Group("/api", OwnerAuth(authn))

	// Rate limiter on upload endpoint only
	uploadLimiter := NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	api.GET("/folders", handler.HandleListRoot)
	api.GET("/folders/:id", handler.HandleListFolder)
	api.POST("/folders", handler.HandleCreateFolder)
	api.PATCH("/folders/:id", handler.HandleRenameFolder)
	api.DELETE("/folders/:id", handler.HandleDeleteFolder)

	api.POST("/files", handler.HandleUpload, uploadLimiter.Middleware())
	api.GET("/files/:id/download", handler.HandleDownload)
	api.DELETE("/files/:id", handler.HandleDeleteFile)

	api.POST("/move", handler.HandleMove)
	api.GET("/usage", handler.HandleUsage)

	return e
}
