package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/keyward/internal/auditctx"
	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/permissions"
	"github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/logger"
	"github.com/charlesng35/keyward/pkg/metrics"
	"github.com/charlesng35/keyward/pkg/response"
)

const (
	CtxPrincipalKey = "authPrincipal"
	CtxGrantsKey    = "authGrants"
	CtxUserIDKey    = "userID"
)

// Guard authenticates requests through the resolver and enforces route requirements.
type Guard struct {
	resolver  *auth.Resolver
	keyHeader string
}

// NewGuard returns a Guard reading API keys from keyHeader (X-API-Key when blank).
func NewGuard(resolver *auth.Resolver, keyHeader string) *Guard {
	keyHeader = strings.TrimSpace(keyHeader)
	if keyHeader == "" {
		keyHeader = auth.DefaultAPIKeyHeader
	}
	return &Guard{resolver: resolver, keyHeader: keyHeader}
}

// KeyHeader returns the header API keys are read from.
func (g *Guard) KeyHeader() string {
	return g.keyHeader
}

// Authorize resolves the credential demanded by cred and then evaluates every
// requirement against the request's effective grants.
func (g *Guard) Authorize(cred auth.CredentialRequirement, reqs ...permissions.Requirement) gin.HandlerFunc {
	label := requirementLabel(cred, reqs)

	return func(c *gin.Context) {
		ctx := c.Request.Context()
		res := g.resolver.Begin(auth.Credentials{
			Authorization: c.GetHeader("Authorization"),
			APIKey:        c.GetHeader(g.keyHeader),
		})

		principal, err := res.Require(ctx, cred)
		if err != nil {
			abortWith(c, err)
			return
		}

		if principal != nil {
			c.Set(CtxPrincipalKey, principal)
			c.Set(CtxUserIDKey, principal.User.ID)
			actor := auditctx.Actor{
				UserID:    principal.User.ID,
				Email:     principal.User.Email,
				Method:    string(principal.Method),
				IPAddress: c.ClientIP(),
				UserAgent: c.Request.UserAgent(),
			}
			if principal.APIKey != nil {
				actor.APIKeyID = principal.APIKey.ID
			}
			c.Request = c.Request.WithContext(auditctx.WithActor(ctx, actor))
		}

		if len(reqs) == 0 {
			c.Next()
			return
		}

		if principal == nil {
			metrics.PermissionChecks.WithLabelValues(label, "unauthenticated").Inc()
			abortWith(c, errors.ErrUnauthorized)
			return
		}

		grants := res.Grants(ctx, cred)
		c.Set(CtxGrantsKey, grants)
		if err := permissions.Check(grants, reqs...); err != nil {
			metrics.PermissionChecks.WithLabelValues(label, "denied").Inc()
			logger.WithModule("authz").Debug("requirement not met",
				zap.String("user_id", principal.User.ID),
				zap.String("requirement", label),
				zap.String("path", c.FullPath()),
			)
			abortWith(c, err)
			return
		}
		metrics.PermissionChecks.WithLabelValues(label, "allowed").Inc()
		c.Next()
	}
}

// PrincipalFromContext returns the principal set by Authorize, if any.
func PrincipalFromContext(c *gin.Context) (*auth.Principal, bool) {
	v, ok := c.Get(CtxPrincipalKey)
	if !ok {
		return nil, false
	}
	principal, ok := v.(*auth.Principal)
	return principal, ok && principal != nil
}

// GrantsFromContext returns the grants evaluated by Authorize, if any.
func GrantsFromContext(c *gin.Context) (permissions.Grants, bool) {
	v, ok := c.Get(CtxGrantsKey)
	if !ok {
		return permissions.Grants{}, false
	}
	grants, ok := v.(permissions.Grants)
	return grants, ok
}

func abortWith(c *gin.Context, err error) {
	appErr := errors.FromError(err)
	if appErr.StatusCode >= http.StatusInternalServerError {
		logger.WithModule("authz").Error("authorization failed", zap.Error(err))
	}
	response.Error(c, appErr)
	c.Abort()
}

func requirementLabel(cred auth.CredentialRequirement, reqs []permissions.Requirement) string {
	if len(reqs) == 0 {
		return cred.String()
	}
	parts := make([]string, 0, len(reqs))
	for _, req := range reqs {
		if req != nil {
			parts = append(parts, req.String())
		}
	}
	return strings.Join(parts, "+")
}
