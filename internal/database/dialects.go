package database

import (
	"errors"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"

	mysqldriver "github.com/go-sql-driver/mysql"
	gormmysql "gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// ApplicationName identifies keyward connections in server-side session views.
const ApplicationName = "keyward"

const (
	defaultPostgresPort = 5432
	defaultMySQLPort    = 3306
	mysqlCollation      = "utf8mb4_unicode_ci"
)

func openPostgres(cfg Config) (*gorm.DB, error) {
	dsn, err := postgresDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(postgres.Open(dsn), gormConfig())
}

func openMySQL(cfg Config) (*gorm.DB, error) {
	dsn, err := mysqlDSN(cfg)
	if err != nil {
		return nil, err
	}
	return gorm.Open(gormmysql.Open(dsn), gormConfig())
}

// postgresDSN renders a postgres:// URL with sessions pinned to UTC.
func postgresDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("database: postgres requires user and database name")
	}

	query := url.Values{}
	query.Set("sslmode", "disable")
	query.Set("application_name", ApplicationName)
	query.Set("timezone", "UTC")
	for key, value := range cfg.Options {
		query.Set(key, value)
	}

	u := url.URL{
		Scheme:   "postgres",
		User:     url.User(cfg.User),
		Host:     hostPort(cfg, "localhost", defaultPostgresPort),
		Path:     "/" + cfg.Name,
		RawQuery: query.Encode(),
	}
	if cfg.Password != "" {
		u.User = url.UserPassword(cfg.User, cfg.Password)
	}
	return u.String(), nil
}

// mysqlDSN renders a go-sql-driver DSN with parsed UTC timestamps.
func mysqlDSN(cfg Config) (string, error) {
	if cfg.DSN != "" {
		return cfg.DSN, nil
	}
	if cfg.User == "" || cfg.Name == "" {
		return "", errors.New("database: mysql requires user and database name")
	}

	mc := mysqldriver.NewConfig()
	mc.User = cfg.User
	mc.Passwd = cfg.Password
	mc.Net = "tcp"
	mc.Addr = hostPort(cfg, "127.0.0.1", defaultMySQLPort)
	mc.DBName = cfg.Name
	mc.ParseTime = true
	mc.Loc = time.UTC
	mc.Collation = mysqlCollation
	if len(cfg.Options) > 0 {
		mc.Params = make(map[string]string, len(cfg.Options))
		for key, value := range cfg.Options {
			mc.Params[key] = value
		}
	}
	return mc.FormatDSN(), nil
}

func hostPort(cfg Config, fallbackHost string, fallbackPort int) string {
	host := strings.TrimSpace(cfg.Host)
	if host == "" {
		host = fallbackHost
	}
	port := cfg.Port
	if port == 0 {
		port = fallbackPort
	}
	return net.JoinHostPort(host, strconv.Itoa(port))
}
