package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"

	"github.com/charlesng35/keyward/internal/database"
)

// Config represents the runtime configuration for the keyward server.
type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Maintenance MaintenanceConfig `mapstructure:"maintenance"`
	Log         LogConfig         `mapstructure:"log"`
	RateLimit   RateLimitConfig   `mapstructure:"ratelimit"`
}

// ServerConfig configures the HTTP server.
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	CORSOrigins     []string      `mapstructure:"cors_origins"`
	SecureCookies   bool          `mapstructure:"secure_cookies"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig describes connection options for the supported databases.
type DatabaseConfig struct {
	Driver   string `mapstructure:"driver"`
	Path     string `mapstructure:"path"`
	DSN      string `mapstructure:"dsn"`
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Name     string `mapstructure:"name"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`

	// Options are appended to the driver DSN, e.g. sslmode or search_path.
	Options map[string]string `mapstructure:"options"`
}

// AuthConfig captures all authentication-related settings.
type AuthConfig struct {
	JWT              JWTSettings   `mapstructure:"jwt"`
	APIKeyHeader     string        `mapstructure:"api_key_header"`
	OAuth            OAuthSettings `mapstructure:"oauth"`
	IdentityTokenKey string        `mapstructure:"identity_token_key"`
}

// JWTSettings configures JWT access tokens.
type JWTSettings struct {
	Secret    string        `mapstructure:"secret"`
	Issuer    string        `mapstructure:"issuer"`
	Algorithm string        `mapstructure:"algorithm"`
	TTL       time.Duration `mapstructure:"access_token_ttl"`
}

// OAuthSettings configures the upstream identity providers.
type OAuthSettings struct {
	Google      OAuthClient   `mapstructure:"google"`
	GitHub      OAuthClient   `mapstructure:"github"`
	StateTTL    time.Duration `mapstructure:"state_ttl"`
	HTTPTimeout time.Duration `mapstructure:"http_timeout"`
}

// OAuthClient holds one provider's client registration.
type OAuthClient struct {
	ClientID     string `mapstructure:"client_id"`
	ClientSecret string `mapstructure:"client_secret"`
	RedirectURI  string `mapstructure:"redirect_uri"`
}

// MaintenanceConfig controls background retention jobs.
type MaintenanceConfig struct {
	AuditRetentionDays int           `mapstructure:"audit_retention_days"`
	Schedule           string        `mapstructure:"schedule"`
	ExpiredKeyGrace    time.Duration `mapstructure:"expired_key_grace"`
}

// LogConfig configures the global logger.
type LogConfig struct {
	Level    string `mapstructure:"level"`
	Encoding string `mapstructure:"encoding"`
}

// RateLimitConfig configures the per-client request limiter. Zero requests disables it.
// Store selects "memory" (per process) or "database" (shared across instances).
type RateLimitConfig struct {
	Requests int           `mapstructure:"requests"`
	Window   time.Duration `mapstructure:"window"`
	Store    string        `mapstructure:"store"`
}

// LoadConfig reads .env, config.yaml and KEYWARD_* environment variables, in increasing
// order of precedence.
func LoadConfig(paths ...string) (*Config, error) {
	_ = godotenv.Load(".env")

	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.AddConfigPath("./config")
	v.AddConfigPath(".")
	for _, path := range paths {
		v.AddConfigPath(path)
	}

	setDefaults(v)

	v.SetEnvPrefix("KEYWARD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var cfgErr viper.ConfigFileNotFoundError
		if !errors.As(err, &cfgErr) {
			return nil, fmt.Errorf("config: read file: %w", err)
		}
	}

	var config Config
	if err := v.Unmarshal(&config, decodeHook()); err != nil {
		return nil, fmt.Errorf("config: unmarshal: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.cors_origins", []string{})
	v.SetDefault("server.secure_cookies", false)
	v.SetDefault("server.shutdown_timeout", "15s")

	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/keyward.sqlite")
	v.SetDefault("database.dsn", "")
	v.SetDefault("database.host", "")
	v.SetDefault("database.port", 0)
	v.SetDefault("database.name", "")
	v.SetDefault("database.user", "")
	v.SetDefault("database.password", "")

	v.SetDefault("auth.jwt.secret", "")
	v.SetDefault("auth.jwt.issuer", "keyward")
	v.SetDefault("auth.jwt.algorithm", "HS256")
	v.SetDefault("auth.jwt.access_token_ttl", "30m")
	v.SetDefault("auth.api_key_header", "X-API-Key")
	v.SetDefault("auth.identity_token_key", "")

	for _, provider := range []string{"google", "github"} {
		v.SetDefault("auth.oauth."+provider+".client_id", "")
		v.SetDefault("auth.oauth."+provider+".client_secret", "")
		v.SetDefault("auth.oauth."+provider+".redirect_uri", "")
	}
	v.SetDefault("auth.oauth.state_ttl", "10m")
	v.SetDefault("auth.oauth.http_timeout", "10s")

	v.SetDefault("maintenance.audit_retention_days", 90)
	v.SetDefault("maintenance.schedule", "@daily")
	v.SetDefault("maintenance.expired_key_grace", "0s")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.encoding", "json")

	v.SetDefault("ratelimit.requests", 0)
	v.SetDefault("ratelimit.window", "1m")
	v.SetDefault("ratelimit.store", "memory")
}

func decodeHook() viper.DecoderConfigOption {
	return func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}
}

// DatabaseOptions converts DatabaseConfig into the parameters expected by database.Open.
func (c DatabaseConfig) DatabaseOptions() database.Config {
	return database.Config{
		Driver:   c.Driver,
		Path:     c.Path,
		DSN:      c.DSN,
		Host:     c.Host,
		Port:     c.Port,
		Name:     c.Name,
		User:     c.User,
		Password: c.Password,
		Options:  c.Options,
	}
}
