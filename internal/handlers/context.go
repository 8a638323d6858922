package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/response"
)

// requestContext safely returns the request context with a background fallback for tests.
func requestContext(c *gin.Context) context.Context {
	if c == nil {
		return context.Background()
	}
	if req := c.Request; req != nil {
		return req.Context()
	}
	return context.Background()
}

// currentPrincipal returns the authenticated principal or writes a 401 and returns false.
func currentPrincipal(c *gin.Context) (*auth.Principal, bool) {
	principal, ok := middleware.PrincipalFromContext(c)
	if !ok || principal.User == nil {
		response.Error(c, errors.ErrUnauthorized)
		return nil, false
	}
	return principal, true
}
