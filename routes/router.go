package routes

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	"github.com/clipvault/clipvault/config"
	"github.com/clipvault/clipvault/controllers"
	"github.com/clipvault/clipvault/middleware"
	"github.com/clipvault/clipvault/utils"
)

// Controllers bundles the handlers wired by SetupRouter.
type Controllers struct {
	Auth     *controllers.AuthController
	Download *controllers.DownloadController
	File     *controllers.FileController
	Stats    *controllers.StatsController
}

// SetupRouter wires routes, middlewares, and controllers.
func SetupRouter(c Controllers) *gin.Engine {
	cfg := config.Get()
	switch strings.ToLower(cfg.GinMode) {
	case "debug":
		gin.SetMode(gin.DebugMode)
	case "test":
		gin.SetMode(gin.TestMode)
	default:
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	// Replace default console logger with file-based zap logger
	gl, err := utils.NewRollingFileLogger(cfg.GinPath, cfg.LogLevel, cfg.LogMaxSizeMB, cfg.LogMaxBackups, cfg.LogMaxAgeDays, cfg.LogCompress)
	if err == nil {
		r.Use(utils.Ginzap(gl, time.RFC3339, true))
		r.Use(utils.RecoveryWithZap(gl, false))
	} else {
		r.Use(gin.Recovery())
	}

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Authorization", "Content-Type", "Range"},
		ExposeHeaders:    []string{"Content-Length", "Content-Range", "Accept-Ranges"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if len(cfg.AllowedOrigins) == 1 && cfg.AllowedOrigins[0] == "*" {
		corsCfg.AllowAllOrigins = true
	} else {
		corsCfg.AllowOrigins = cfg.AllowedOrigins
	}
	r.Use(cors.New(corsCfg))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api/v1")
	api.Use(middleware.RateLimitMiddleware())
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", c.Auth.Register)
			auth.POST("/login", c.Auth.Login)
			auth.GET("/oauth/google", c.Auth.OAuthRedirect)
			auth.GET("/oauth/google/callback", c.Auth.OAuthCallback)
		}

		api.GET("/stats", c.Stats.Totals)

		protected := api.Group("")
		protected.Use(middleware.AuthRequired())
		{
			protected.POST("/auth/logout", c.Auth.Logout)
			protected.GET("/auth/me", c.Auth.Me)

			protected.POST("/download", c.Download.Request)
			protected.GET("/download/status", c.Download.Status)
			protected.POST("/download/reset-cooldown", c.Download.ResetCooldown)
			protected.POST("/ads/session", c.Download.AdSession)

			protected.GET("/download/:id", c.File.Serve)
		}
	}

	return r
}
