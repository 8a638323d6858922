package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/handlers"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/permissions"
)

func registerAuditRoutes(api *gin.RouterGroup, handler *handlers.AuditHandler, guard *middleware.Guard) {
	api.GET("/audit", guard.Authorize(auth.CredentialEither, permissions.AnyOf(models.RoleAdmin)), handler.List)
}
