package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/charlesng35/keyward/internal/api"
	"github.com/charlesng35/keyward/internal/app"
	"github.com/charlesng35/keyward/internal/app/maintenance"
	"github.com/charlesng35/keyward/internal/auth"
	"github.com/charlesng35/keyward/internal/auth/providers"
	"github.com/charlesng35/keyward/internal/cache"
	"github.com/charlesng35/keyward/internal/database"
	"github.com/charlesng35/keyward/internal/middleware"
	"github.com/charlesng35/keyward/internal/services"
	"github.com/charlesng35/keyward/pkg/logger"
)

const rateSweepInterval = time.Minute

// runtimeStack bundles long-lived services used by the HTTP server.
type runtimeStack struct {
	DB       *gorm.DB
	Tokens   *auth.JWTService
	Registry *providers.Registry
	Cleaner  *maintenance.Cleaner
	Router   *gin.Engine

	stopRates context.CancelFunc
}

// bootstrapRuntime initialises the database, identity providers, maintenance jobs and
// the HTTP router.
func bootstrapRuntime(ctx context.Context, cfg *app.Config, log *zap.Logger) (*runtimeStack, error) {
	stack := &runtimeStack{}
	var err error
	success := false

	defer func() {
		if !success {
			stack.Shutdown(context.Background(), log)
		}
	}()

	if debug, _ := os.LookupEnv("GIN_DEBUG"); debug != "true" {
		gin.SetMode(gin.ReleaseMode)
	}

	stack.DB, err = initialiseDatabase(cfg)
	if err != nil {
		return nil, err
	}

	stack.Tokens, err = auth.NewJWTService(cfg.Auth.JWTServiceConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise jwt service: %w", err)
	}

	states, err := cfg.Auth.StateCodec()
	if err != nil {
		return nil, fmt.Errorf("initialise oauth state: %w", err)
	}

	stack.Registry, err = providers.NewRegistry(ctx, cfg.Auth.ProvidersConfig())
	if err != nil {
		return nil, fmt.Errorf("initialise identity providers: %w", err)
	}

	identityKey, err := cfg.Auth.IdentityKey()
	if err != nil {
		return nil, err
	}

	auditSvc, err := services.NewAuditService(stack.DB)
	if err != nil {
		return nil, fmt.Errorf("initialise audit service: %w", err)
	}

	cleanerOpts := []maintenance.Option{
		maintenance.WithAuditRetentionDays(cfg.Maintenance.AuditRetentionDays),
		maintenance.WithAuditSchedule(cfg.Maintenance.Schedule),
		maintenance.WithKeySchedule(cfg.Maintenance.Schedule),
		maintenance.WithExpiredKeyGrace(cfg.Maintenance.ExpiredKeyGrace),
	}

	var rateStore middleware.RateStore
	if cfg.RateLimit.Requests > 0 {
		switch strings.ToLower(strings.TrimSpace(cfg.RateLimit.Store)) {
		case "database":
			counter, err := cache.NewDatabaseCounter(stack.DB)
			if err != nil {
				return nil, err
			}
			rateStore = counter
			cleanerOpts = append(cleanerOpts, maintenance.WithCounterPurger(counter))
		case "", "memory":
			rateCtx, cancel := context.WithCancel(context.Background())
			stack.stopRates = cancel
			rateStore = middleware.NewMemoryRateStore(rateCtx, rateSweepInterval)
		default:
			return nil, fmt.Errorf("unsupported ratelimit.store %q", cfg.RateLimit.Store)
		}
		log.Info("rate limiting enabled",
			zap.Int("requests", cfg.RateLimit.Requests),
			zap.Duration("window", cfg.RateLimit.Window),
			zap.String("store", cfg.RateLimit.Store),
		)
	}

	stack.Cleaner = maintenance.NewCleaner(stack.DB, auditSvc, cleanerOpts...)
	if err := stack.Cleaner.Start(); err != nil {
		return nil, fmt.Errorf("start maintenance jobs: %w", err)
	}

	stack.Router, err = api.NewRouter(api.Dependencies{
		DB:       stack.DB,
		Tokens:   stack.Tokens,
		Registry: stack.Registry,
		States:   states,
	}, api.Options{
		Name:             "keyward",
		Version:          version,
		APIKeyHeader:     cfg.Auth.APIKeyHeader,
		RateLimit:        cfg.RateLimit.Requests,
		RateWindow:       cfg.RateLimit.Window,
		RateStore:        rateStore,
		SecureCookies:    cfg.Server.SecureCookies,
		IdentityTokenKey: identityKey,
	})
	if err != nil {
		return nil, fmt.Errorf("build api router: %w", err)
	}

	success = true
	return stack, nil
}

// Shutdown gracefully stops background jobs and releases resources.
func (s *runtimeStack) Shutdown(ctx context.Context, log *zap.Logger) {
	if s == nil {
		return
	}

	if s.stopRates != nil {
		s.stopRates()
	}

	if s.Cleaner != nil {
		stopCtx := s.Cleaner.Stop()
		if stopCtx != nil {
			ctx = stopCtx
		}
		if err := s.Cleaner.RunOnce(ctx); err != nil {
			log.Warn("maintenance shutdown cleanup failed", zap.Error(err))
		}
	}

	if s.DB != nil {
		closeDatabase(s.DB, log)
	}
}

func initialiseDatabase(cfg *app.Config) (*gorm.DB, error) {
	dbCfg := cfg.Database.DatabaseOptions()
	db, err := database.Open(dbCfg)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := database.AutoMigrateAndSeed(db); err != nil {
		_ = database.Close(db)
		return nil, fmt.Errorf("auto-migrate database: %w", err)
	}

	log := logger.WithModule("database")
	log.Info("database connected", zap.String("driver", strings.ToLower(strings.TrimSpace(dbCfg.Driver))))

	return db, nil
}

func closeDatabase(db *gorm.DB, log *zap.Logger) {
	if err := database.Close(db); err != nil {
		log.Warn("failed to close database", zap.Error(err))
	}
}
