package api

import (
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/auth/providers"
	"github.com/charlesng35/keyward/internal/handlers"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/internal/store"
)

// Dependencies are the long-lived collaborators the router wires into handlers.
type Dependencies struct {
	DB       *gorm.DB
	Tokens   *auth.JWTService
	Registry *providers.Registry
	States   *auth.StateCodec
}

// Options tune transport behaviour.
type Options struct {
	Name             string
	Version          string
	APIKeyHeader     string
	RateLimit        int
	RateWindow       time.Duration
	RateStore        middleware.RateStore
	SecureCookies    bool
	IdentityTokenKey []byte
}

// NewRouter builds the Gin engine, wires middleware and registers every route.
func NewRouter(deps Dependencies, opts Options) (*gin.Engine, error) {
	if deps.DB == nil {
		return nil, errors.New("database handle must be provided")
	}
	if deps.Tokens == nil {
		return nil, errors.New("jwt service must be provided")
	}
	if deps.States == nil {
		return nil, errors.New("oauth state codec must be provided")
	}

	st, err := store.NewGormStore(deps.DB)
	if err != nil {
		return nil, err
	}
	audit, err := services.NewAuditService(deps.DB)
	if err != nil {
		return nil, err
	}
	userSvc, err := services.NewUserService(st, audit)
	if err != nil {
		return nil, err
	}
	roleSvc, err := services.NewRoleService(st, audit)
	if err != nil {
		return nil, err
	}
	keySvc, err := services.NewAPIKeyService(st, audit)
	if err != nil {
		return nil, err
	}
	var identityOpts []services.IdentityServiceOption
	if len(opts.IdentityTokenKey) > 0 {
		identityOpts = append(identityOpts, services.WithTokenEncryptionKey(opts.IdentityTokenKey))
	}
	identitySvc, err := services.NewIdentityService(st, audit, identityOpts...)
	if err != nil {
		return nil, err
	}
	resolver, err := auth.NewResolver(deps.Tokens, st)
	if err != nil {
		return nil, err
	}
	sqlDB, err := deps.DB.DB()
	if err != nil {
		return nil, fmt.Errorf("database handle: %w", err)
	}

	guard := middleware.NewGuard(resolver, opts.APIKeyHeader)

	r := gin.New()

	// Global middleware
	r.Use(middleware.RequestID())
	r.Use(middleware.Recovery())
	r.Use(middleware.Logger())
	r.Use(middleware.Metrics())
	r.Use(middleware.SecurityHeaders())
	r.Use(middleware.RateLimit(opts.RateStore, opts.RateLimit, opts.RateWindow))

	registerHealthRoutes(r, handlers.NewHealthHandler(sqlDB, opts.Name, opts.Version))
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	v1 := r.Group("/api/v1")
	registerAuthRoutes(v1, handlers.NewAuthHandler(deps.Registry, deps.States, identitySvc, deps.Tokens, opts.SecureCookies), guard)
	registerAPIKeyRoutes(v1, handlers.NewAPIKeyHandler(keySvc), guard)
	registerRoleRoutes(v1, handlers.NewRoleHandler(roleSvc), guard)
	registerUserRoutes(v1, handlers.NewUserHandler(userSvc), guard)
	registerAuditRoutes(v1, handlers.NewAuditHandler(audit), guard)
	registerDemoRoutes(v1, handlers.NewDemoHandler(), guard)

	r.NoRoute(middleware.NotFoundHandler)

	return r, nil
}
