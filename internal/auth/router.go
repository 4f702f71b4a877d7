package auth

import (
	"github.com/gin-gonic/gin"

	"github.com/karimlifatimaa/MonyoRMSAuth/internal/shared/middleware"
)

// Router handles auth-related routes
type Router struct {
	controller *Controller
}

// NewRouter creates a new auth router
func NewRouter(controller *Controller) *Router {
	return &Router{
		controller: controller,
	}
}

// SetupRoutes registers all auth and user-administration routes. The bearer
// filter runs engine-wide; only the guards are attached here.
func (authRouter *Router) SetupRoutes(rg *gin.RouterGroup) {
	auth := rg.Group("/auth")
	{
		// Public routes (no authentication required)
		auth.POST("/register", authRouter.controller.Register)
		auth.POST("/login", authRouter.controller.Login)
		auth.POST("/refresh-token", authRouter.controller.RefreshToken)
		auth.POST("/forgot-password", authRouter.controller.ForgotPassword)
		auth.POST("/reset-password", authRouter.controller.ResetPassword)

		// Protected routes (authentication required)
		protected := auth.Group("")
		protected.Use(middleware.RequireAuth())
		{
			protected.POST("/logout", authRouter.controller.Logout)
		}
	}

	// Admin-only user administration
	admin := rg.Group("/users")
	admin.Use(middleware.RequireAuth(), middleware.RequireAdmin())
	{
		admin.DELETE("/:id", authRouter.controller.DeleteUser)
		admin.PUT("/:id/role", authRouter.controller.UpdateUserRole)
	}
}
