package api

import (
	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/handlers"
)

func registerHealthRoutes(r *gin.Engine, handler *handlers.HealthHandler) {
	r.GET("/", handler.Root)
	r.GET("/health", handler.Health)
}
