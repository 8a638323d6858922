package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/permissions"
	"github.com/charlesng35/keyward/pkg/response"
)

// DemoHandler serves sample endpoints showing each credential and requirement combination.
type DemoHandler struct{}

func NewDemoHandler() *DemoHandler {
	return &DemoHandler{}
}

// GET /api/v1/demo/public
func (h *DemoHandler) Public(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{
		"message": "This is a public endpoint - no authentication required",
		"status":  "public",
	})
}

// Echo returns a handler that reports who called and how.
func (h *DemoHandler) Echo(message string) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := currentPrincipal(c)
		if !ok {
			return
		}

		body := gin.H{
			"message":   message,
			"user_id":   principal.User.ID,
			"email":     principal.User.Email,
			"auth_type": authType(principal.Method),
		}
		if grants, ok := middleware.GrantsFromContext(c); ok {
			body["roles"] = grants.Roles
			body["permissions"] = grants.Permissions
		} else {
			body["roles"] = permissions.ForPrincipal(principal.User).Roles
		}
		response.Success(c, http.StatusOK, body)
	}
}

func authType(method auth.Method) string {
	if method == auth.MethodAPIKey {
		return "API_KEY"
	}
	return "JWT"
}
