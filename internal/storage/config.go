package storage

import (
	"errors"
	"strings"
	"time"

	"github.com/eventcanon-io/eventcanon/internal/config"
)

// Connection pool defaults sized for a single-service deployment.
const (
	defaultMaxOpenConns    = 25
	defaultMaxIdleConns    = 5
	defaultConnMaxLifetime = 30 * time.Minute
	defaultConnMaxIdleTime = 10 * time.Minute
)

// ErrDatabaseURLEmpty is returned when the database url is an empty string.
var ErrDatabaseURLEmpty = errors.New("database URL cannot be empty")

// Config holds PostgreSQL connection configuration. The connection string
// stays unexported so it cannot leak through struct logging; use
// MaskDatabaseURL for log output.
type Config struct {
	databaseURL     string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	ConnMaxIdleTime time.Duration
}

// LoadConfig reads PostgreSQL settings from environment variables, falling
// back to the pool defaults above.
func LoadConfig() *Config {
	return &Config{
		databaseURL:     config.GetEnvStr("DATABASE_URL", ""),
		MaxOpenConns:    config.GetEnvInt("DATABASE_MAX_OPEN_CONNS", defaultMaxOpenConns),
		MaxIdleConns:    config.GetEnvInt("DATABASE_MAX_IDLE_CONNS", defaultMaxIdleConns),
		ConnMaxLifetime: config.GetEnvDuration("DATABASE_CONN_MAX_LIFETIME", defaultConnMaxLifetime),
		ConnMaxIdleTime: config.GetEnvDuration("DATABASE_CONN_MAX_IDLE_TIME", defaultConnMaxIdleTime),
	}
}

// Validate checks that a connection string is configured.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.databaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	return nil
}

// MaskDatabaseURL returns the connection string with any password replaced
// by "***", safe for logging.
func (c *Config) MaskDatabaseURL() string {
	scheme, rest, found := strings.Cut(c.databaseURL, "://")
	if !found {
		return c.databaseURL
	}

	// The last @ separates userinfo from host; earlier ones belong to the password.
	at := strings.LastIndex(rest, "@")
	if at == -1 {
		return c.databaseURL
	}

	user, password, found := strings.Cut(rest[:at], ":")
	if !found || password == "" {
		return c.databaseURL
	}

	return scheme + "://" + user + ":***" + rest[at:]
}
