package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/eventcanon-io/eventcanon/internal/config"
)

var (
	// ErrDatabaseURLEmpty is returned when no connection string is configured.
	ErrDatabaseURLEmpty = errors.New("DATABASE_URL cannot be empty")

	// ErrMigrationTableEmpty is returned when the tracking table name is blank.
	ErrMigrationTableEmpty = errors.New("MIGRATION_TABLE cannot be empty")
)

// Config holds the migration tool settings.
type Config struct {
	// DatabaseURL is the PostgreSQL connection string.
	DatabaseURL string

	// MigrationTable tracks applied schema versions.
	MigrationTable string
}

// LoadConfig reads settings from the environment.
func LoadConfig() (*Config, error) {
	cfg := &Config{
		DatabaseURL:    config.GetEnvStr("DATABASE_URL", ""),
		MigrationTable: config.GetEnvStr("MIGRATION_TABLE", "schema_migrations"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.DatabaseURL) == "" {
		return ErrDatabaseURLEmpty
	}

	if strings.TrimSpace(c.MigrationTable) == "" {
		return ErrMigrationTableEmpty
	}

	return nil
}

// String returns a log-safe representation with credentials masked.
func (c *Config) String() string {
	return fmt.Sprintf("Config{DatabaseURL: %s, MigrationTable: %s}",
		maskDatabaseURL(c.DatabaseURL), c.MigrationTable)
}

// maskDatabaseURL hides the password portion of a connection string.
func maskDatabaseURL(url string) string {
	schemeEnd := strings.Index(url, "://")
	if schemeEnd == -1 {
		return url
	}

	authority := url[schemeEnd+3:]
	if pathStart := strings.IndexAny(authority, "/?#"); pathStart != -1 {
		authority = authority[:pathStart]
	}

	atPos := strings.LastIndex(authority, "@")
	if atPos == -1 {
		return url
	}

	userinfo := authority[:atPos]

	colonPos := strings.Index(userinfo, ":")
	if colonPos == -1 || colonPos == len(userinfo)-1 {
		return url
	}

	prefix := url[:schemeEnd+3+colonPos+1]
	suffix := url[schemeEnd+3+atPos:]

	return prefix + "***" + suffix
}
