// api/routes/router.go
package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/auth"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/notifications"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/config"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/database"
	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/middleware"
)

// Router holds all route dependencies
type Router struct {
	config *config.Config
	db     *database.DB
	tokens *auth.TokenService
	mailer notifications.EmailSender
}

// NewRouter creates a new router instance
func NewRouter(cfg *config.Config, db *database.DB, tokens *auth.TokenService, mailer notifications.EmailSender) *Router {
	return &Router{
		config: cfg,
		db:     db,
		tokens: tokens,
		mailer: mailer,
	}
}

// SetupRoutes configures all application routes
func (r *Router) SetupRoutes(engine *gin.Engine) {
	// Health check and basic info endpoints
	r.setupHealthRoutes(engine)

	// Bearer filter runs for every API request; it fails open and the
	// per-group guards do the rejecting.
	api := engine.Group(r.config.GetAPIBasePath())
	api.Use(middleware.Authenticate(r.tokens))
	{
		r.setupAuthRoutes(api)
	}
}

// setupHealthRoutes sets up health check and system status routes
func (r *Router) setupHealthRoutes(engine *gin.Engine) {
	engine.GET("/health", func(c *gin.Context) {
		if err := r.db.HealthCheck(c.Request.Context()); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{
				"status":    "unhealthy",
				"error":     err.Error(),
				"timestamp": time.Now(),
				"service":   "monyorms-auth",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"status":    "healthy",
			"timestamp": time.Now(),
			"service":   "monyorms-auth",
		})
	})

	engine.GET("/ping", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "pong",
			"version": r.config.APIVersion,
		})
	})

	engine.GET("/status", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":      "operational",
			"api_version": r.config.APIVersion,
			"timestamp":   time.Now(),
		})
	})
}

// setupAuthRoutes configures authentication and user-administration routes
func (r *Router) setupAuthRoutes(rg *gin.RouterGroup) {
	pg := r.db.GetPostgreSQL()

	authRepo := auth.NewRepository(pg)
	refreshStore := auth.NewRefreshTokenStore(pg, r.config.JWT.RefreshExpiresIn)
	resetStore := auth.NewPasswordResetTokenStore(pg, r.config.JWT.ResetExpiresIn)

	authService := auth.NewService(authRepo, r.tokens, refreshStore, resetStore, r.mailer, r.config)
	authController := auth.NewController(authService)
	authRouter := auth.NewRouter(authController)

	authRouter.SetupRoutes(rg)
}
