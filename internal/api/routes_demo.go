package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/handlers"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
)

func registerDemoRoutes(api *gin.RouterGroup, handler *handlers.DemoHandler, guard *middleware.Guard) {
	demo := api.Group("/demo")
	{
		demo.GET("/public", handler.Public)
		demo.GET("/jwt-only", guard.Authorize(auth.CredentialToken),
			handler.Echo("Success! You accessed this endpoint with JWT token"))
		demo.GET("/apikey-only", guard.Authorize(auth.CredentialKey),
			handler.Echo("Success! You accessed this endpoint with API Key"))
		demo.GET("/either-auth", guard.Authorize(auth.CredentialEither),
			handler.Echo("Success! You accessed this endpoint with either JWT or API Key"))
		demo.GET("/admin-only", guard.Authorize(auth.CredentialEither, permissions.AnyOf(models.RoleAdmin)),
			handler.Echo("Success! You have admin role"))
		demo.GET("/read-users-permission", guard.Authorize(auth.CredentialEither, permissions.AllOf("users:read")),
			handler.Echo("Success! You have users:read permission"))
		demo.GET("/write-users-permission", guard.Authorize(auth.CredentialEither, permissions.AllOf("users:write")),
			handler.Echo("Success! You have users:write permission"))
	}
}
