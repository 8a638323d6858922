package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/handlers"
	"github.com/charlesng35/keyward/internal/middleware"
)

func registerAPIKeyRoutes(api *gin.RouterGroup, handler *handlers.APIKeyHandler, guard *middleware.Guard) {
	keys := api.Group("/api-keys")
	keys.Use(guard.Authorize(auth.CredentialToken))
	{
		keys.POST("", handler.Create)
		keys.GET("", handler.List)
		keys.GET("/:id", handler.Get)
		keys.DELETE("/:id", handler.Delete)
		keys.PATCH("/:id/activate", handler.Activate)
		keys.PATCH("/:id/deactivate", handler.Deactivate)
	}
}
