package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/handlers"
	"github.com/charlesng35/keyward/internal/middleware"
)

func registerAuthRoutes(api *gin.RouterGroup, handler *handlers.AuthHandler, guard *middleware.Guard) {
	group := api.Group("/auth")
	{
		group.GET("/providers", handler.Providers)
		group.GET("/me", guard.Authorize(auth.CredentialEither), handler.Me)
		group.GET("/:provider/login", handler.Login)
		group.GET("/:provider/callback", handler.Callback)
	}
}
