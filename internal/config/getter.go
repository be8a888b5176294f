// Package config provides functions for reading config settings from ENV.
package config

import (
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

// GetEnvStr returns a string environment variable value or a default if not set.
//
// Example:
//
//	s := GetEnvStr("EVENTCANON_SERVER_HOST", "localhost")
func GetEnvStr(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}

	return defaultValue
}

// GetEnvInt returns an int environment variable value or a default if not set
// or not parseable.
//
// Example:
//
//	i := GetEnvInt("EVENTCANON_SERVER_PORT", 8000)
func GetEnvInt(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvInt64 returns an int64 environment variable value or a default if not
// set or not parseable.
//
// Example:
//
//	i := GetEnvInt64("EVENTCANON_MAX_REQUEST_SIZE", 1048576)
func GetEnvInt64(key string, defaultValue int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// GetEnvBool returns a bool environment variable value or a default if not set.
// Accepts "true", "1", "yes" as true and "false", "0", "no" as false,
// case-insensitive. Anything else falls back to the default.
//
// Example:
//
//	b := GetEnvBool("EVENTCANON_AUTH_ENABLED", false)
func GetEnvBool(key string, defaultValue bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	default:
		return defaultValue
	}
}

// GetEnvDuration returns a time.Duration environment variable value, parsed
// with time.ParseDuration, or a default if not set or not parseable.
//
// Example:
//
//	d := GetEnvDuration("EVENTCANON_SERVER_TIMEOUT", 30*time.Second)
func GetEnvDuration(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}

	return parsed
}

// logLevelNames maps accepted LOG_LEVEL spellings to slog levels.
var logLevelNames = map[string]slog.Level{
	"debug":   slog.LevelDebug,
	"info":    slog.LevelInfo,
	"warn":    slog.LevelWarn,
	"warning": slog.LevelWarn,
	"error":   slog.LevelError,
}

// GetEnvLogLevel returns a slog.Level environment variable value or a default
// if not set or unrecognized.
//
// Example:
//
//	l := GetEnvLogLevel("EVENTCANON_LOG_LEVEL", slog.LevelInfo)
func GetEnvLogLevel(key string, defaultValue slog.Level) slog.Level {
	name := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	if level, ok := logLevelNames[name]; ok {
		return level
	}

	return defaultValue
}

// ParseCommaSeparatedList splits a comma-separated string into trimmed,
// non-empty elements. An empty input yields an empty slice, not nil.
func ParseCommaSeparatedList(input string) []string {
	parts := strings.Split(input, ",")
	result := make([]string, 0, len(parts))

	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
