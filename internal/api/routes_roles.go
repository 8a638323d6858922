package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/handlers"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
)

func registerRoleRoutes(api *gin.RouterGroup, handler *handlers.RoleHandler, guard *middleware.Guard) {
	read := guard.Authorize(auth.CredentialToken)
	manage := guard.Authorize(auth.CredentialToken, permissions.AnyOf(models.RoleAdmin))

	roles := api.Group("/roles")
	{
		roles.POST("/permissions", manage, handler.CreatePermission)
		roles.GET("/permissions", read, handler.ListPermissions)
		roles.POST("", manage, handler.Create)
		roles.GET("", read, handler.List)
		roles.GET("/:id", read, handler.Get)
		roles.DELETE("/:id", manage, handler.Delete)
		roles.POST("/:id/permissions/:permission_id", manage, handler.AttachPermission)
		roles.DELETE("/:id/permissions/:permission_id", manage, handler.DetachPermission)
	}
}
