package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/handlers"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
)

func registerUserRoutes(api *gin.RouterGroup, handler *handlers.UserHandler, guard *middleware.Guard) {
	users := api.Group("/users")
	{
		users.GET("/me", guard.Authorize(auth.CredentialToken), handler.Me)
		users.GET("", guard.Authorize(auth.CredentialToken, permissions.AllOf("users:read")), handler.List)
		users.POST("", guard.Authorize(auth.CredentialToken, permissions.AllOf("users:write")), handler.Create)
		users.GET("/:id", guard.Authorize(auth.CredentialToken, permissions.AllOf("users:read")), handler.Get)
		users.DELETE("/:id", guard.Authorize(auth.CredentialToken, permissions.AllOf("users:delete")), handler.Delete)
		users.PATCH("/:id/activate", guard.Authorize(auth.CredentialToken, permissions.AllOf("users:write")), handler.Activate)
		users.PATCH("/:id/deactivate", guard.Authorize(auth.CredentialToken, permissions.AllOf("users:write")), handler.Deactivate)
		users.POST("/:id/roles/:role_id", guard.Authorize(auth.CredentialToken, permissions.AnyOf(models.RoleAdmin)), handler.AssignRole)
		users.DELETE("/:id/roles/:role_id", guard.Authorize(auth.CredentialToken, permissions.AnyOf(models.RoleAdmin)), handler.RemoveRole)
	}
}
