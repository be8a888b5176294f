// Package mapping provides per-producer field mapping configuration for normalization.
//
// Upstream producers emit the same logical event with different field layouts
// (nested payloads, renamed fields, flat documents). This package holds, per
// producer identifier, a declarative description of where each canonical field
// lives inside the raw document, so new producers can be onboarded through
// configuration without touching the normalization logic.
package mapping

import (
	"errors"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"
)

// Config holds producer field mappings loaded from .eventcanon.yaml.
type Config struct {
	// ProducerMappings maps producer identifiers to their field mappings.
	// Key is the producer identifier (e.g., "client_A"), value describes where
	// to find each canonical field in that producer's raw documents.
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	ProducerMappings map[string]FieldMapping `yaml:"producer_mappings"`
}

// FieldMapping describes where to find each canonical field in a raw document.
// Paths are dot-delimited sequences of nested-property accesses
// (e.g., "payload.amount" selects rawDocument["payload"]["amount"]).
type FieldMapping struct {
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	ClientIDField string `yaml:"client_id_field"`
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	MetricField string `yaml:"metric_field"`
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	AmountField string `yaml:"amount_field"`
	//nolint:tagliatelle // snake_case is intentional for YAML config files
	TimestampField string `yaml:"timestamp_field"`
}

// DefaultConfigPath is the default location for the eventcanon configuration file.
// Uses hidden file format following common tool conventions (.eslintrc, .prettierrc, etc.).
const DefaultConfigPath = ".eventcanon.yaml"

// ConfigPathEnvVar is the environment variable name for custom config path.
const ConfigPathEnvVar = "EVENTCANON_CONFIG_PATH"

// LoadConfig loads producer mapping configuration from a YAML file at the given path.
//
// Behavior:
//   - Returns empty config (not error) if file doesn't exist - file mappings are optional,
//     the compiled-in defaults still apply
//   - Returns empty config + logs warning if YAML is invalid (graceful degradation)
//   - Returns populated config on success
//
// This graceful degradation ensures the server can start even without a mapping
// file configured, since the built-in producer mappings cover the known producers.
func LoadConfig(path string) (*Config, error) {
	cfg := &Config{
		ProducerMappings: make(map[string]FieldMapping),
	}

	data, err := os.ReadFile(path) //nolint:gosec // path is from trusted config source
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			// Missing file is OK - file mappings are optional
			slog.Debug("Mapping config file not found, using built-in mappings",
				slog.String("path", path))

			return cfg, nil
		}

		// Other read errors (permissions, etc.) - log warning and continue
		slog.Warn("Failed to read mapping config file, using built-in mappings",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return cfg, nil
	}

	// Empty file is valid - just no extra mappings
	if len(data) == 0 {
		return cfg, nil
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		// Invalid YAML - log warning and continue with empty config
		slog.Warn("Failed to parse mapping config file, using built-in mappings",
			slog.String("path", path),
			slog.String("error", err.Error()))

		return &Config{ProducerMappings: make(map[string]FieldMapping)}, nil
	}

	// Ensure map is initialized even if YAML had nil/empty section
	if cfg.ProducerMappings == nil {
		cfg.ProducerMappings = make(map[string]FieldMapping)
	}

	return cfg, nil
}

// ConfigPath returns the mapping config path from the environment or the default.
func ConfigPath() string {
	if path := os.Getenv(ConfigPathEnvVar); path != "" {
		return path
	}

	return DefaultConfigPath
}
