package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/auth/providers"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/models"
	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/pkg/errors"
	"github.com/charlesng35/keyward/pkg/logger"
	"github.com/charlesng35/keyward/pkg/metrics"
	"github.com/charlesng35/keyward/pkg/response"
)

const (
	nonceCookieName = "keyward_oauth_nonce"
	nonceCookiePath = "/api/v1/auth"
)

// AuthHandler runs the OAuth login round-trip and reports the current principal.
type AuthHandler struct {
	registry      *providers.Registry
	states        *auth.StateCodec
	identities    *services.IdentityService
	tokens        *auth.JWTService
	secureCookies bool
}

func NewAuthHandler(registry *providers.Registry, states *auth.StateCodec, identities *services.IdentityService, tokens *auth.JWTService, secureCookies bool) *AuthHandler {
	return &AuthHandler{
		registry:      registry,
		states:        states,
		identities:    identities,
		tokens:        tokens,
		secureCookies: secureCookies,
	}
}

type loginResponse struct {
	AccessToken string       `json:"access_token"`
	TokenType   string       `json:"token_type"`
	User        *models.User `json:"user"`
}

var errInvalidState = errors.NewBadRequest("Invalid state parameter")

// GET /api/v1/auth/:provider/login
func (h *AuthHandler) Login(c *gin.Context) {
	provider, ok := h.provider(c)
	if !ok {
		return
	}

	payload, err := h.states.Begin(provider.Name(), c.GetString(middleware.CtxRequestIDKey))
	if err != nil {
		response.Error(c, errors.Wrap(err, "Failed to start login"))
		return
	}
	state, err := h.states.Encode(payload)
	if err != nil {
		response.Error(c, errors.Wrap(err, "Failed to start login"))
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(nonceCookieName, payload.Nonce, int(h.states.TTL().Seconds()), nonceCookiePath, "", h.secureCookies, true)
	c.Redirect(http.StatusTemporaryRedirect, provider.AuthCodeURL(state, payload.Verifier))
}

// GET /api/v1/auth/:provider/callback
func (h *AuthHandler) Callback(c *gin.Context) {
	provider, ok := h.provider(c)
	if !ok {
		return
	}
	log := logger.WithRequestID(logger.WithModule("oauth"), c.GetString(middleware.CtxRequestIDKey)).
		With(zap.String("provider", provider.Name()))
	method := "oauth_" + provider.Name()

	if upstream := strings.TrimSpace(c.Query("error")); upstream != "" {
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		response.Error(c, errors.ErrUpstreamIdentity.WithMessage("OAuth authentication failed: "+upstream))
		return
	}

	payload, err := h.states.Decode(c.Query("state"), provider.Name())
	if err != nil {
		log.Info("oauth state rejected", zap.Error(err))
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		response.Error(c, errInvalidState.WithInternal(err))
		return
	}
	nonce, _ := c.Cookie(nonceCookieName)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(nonceCookieName, "", -1, nonceCookiePath, "", h.secureCookies, true)
	if !payload.VerifyNonce(nonce) {
		log.Info("oauth nonce mismatch")
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		response.Error(c, errInvalidState)
		return
	}

	code := strings.TrimSpace(c.Query("code"))
	if code == "" {
		response.Error(c, errors.NewBadRequest("code is required"))
		return
	}

	ctx := requestContext(c)
	profile, err := provider.Exchange(ctx, code, payload.Verifier)
	if err != nil {
		log.Warn("oauth exchange failed", zap.Error(err))
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		response.Error(c, errors.ErrUpstreamIdentity.WithInternal(err))
		return
	}

	user, err := h.identities.Reconcile(ctx, provider.Name(), profile)
	if err != nil {
		metrics.AuthAttempts.WithLabelValues(method, "failure").Inc()
		response.Error(c, err)
		return
	}

	token, err := h.tokens.IssueFor(user)
	if err != nil {
		response.Error(c, errors.Wrap(err, "Failed to issue token"))
		return
	}

	metrics.AuthAttempts.WithLabelValues(method, "success").Inc()
	log.Info("oauth login completed", zap.String("user_id", user.ID))
	response.Success(c, http.StatusOK, loginResponse{AccessToken: token, TokenType: "bearer", User: user})
}

// GET /api/v1/auth/me
func (h *AuthHandler) Me(c *gin.Context) {
	principal, ok := currentPrincipal(c)
	if !ok {
		return
	}
	response.Success(c, http.StatusOK, principal.User)
}

// GET /api/v1/auth/providers
func (h *AuthHandler) Providers(c *gin.Context) {
	response.Success(c, http.StatusOK, gin.H{"providers": h.registry.Names()})
}

func (h *AuthHandler) provider(c *gin.Context) (providers.Provider, bool) {
	name := strings.ToLower(strings.TrimSpace(c.Param("provider")))
	provider, ok := h.registry.Get(name)
	if !ok {
		response.Error(c, errors.ErrProviderUnconfigured.WithMessage(fmt.Sprintf("%s OAuth is not configured", name)))
		return nil, false
	}
	return provider, true
}
