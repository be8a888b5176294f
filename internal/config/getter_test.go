package config

import (
	"log/slog"
	"testing"
	"time"
)

func TestGetEnvStr(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("TEST_STR", "custom")

	if got := GetEnvStr("TEST_STR", "default"); got != "custom" {
		t.Errorf("GetEnvStr() = %q, expected %q", got, "custom")
	}

	if got := GetEnvStr("TEST_STR_UNSET", "default"); got != "default" {
		t.Errorf("GetEnvStr() = %q, expected default", got)
	}
}

func TestGetEnvInt(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		value    string
		expected int
	}{
		{name: "valid integer", value: "42", expected: 42},
		{name: "negative integer", value: "-7", expected: -7},
		{name: "not a number", value: "abc", expected: 10},
		{name: "empty", value: "", expected: 10},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv("TEST_INT", tt.value)

			if got := GetEnvInt("TEST_INT", 10); got != tt.expected {
				t.Errorf("GetEnvInt() = %d, expected %d", got, tt.expected)
			}
		})
	}
}

func TestGetEnvInt64(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("TEST_INT64", "1048576")

	if got := GetEnvInt64("TEST_INT64", 0); got != 1048576 {
		t.Errorf("GetEnvInt64() = %d, expected 1048576", got)
	}

	t.Setenv("TEST_INT64", "not-a-number")

	if got := GetEnvInt64("TEST_INT64", 99); got != 99 {
		t.Errorf("GetEnvInt64() = %d, expected fallback 99", got)
	}
}

func TestGetEnvBool(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		value        string
		defaultValue bool
		expected     bool
	}{
		{value: "true", defaultValue: false, expected: true},
		{value: "1", defaultValue: false, expected: true},
		{value: "YES", defaultValue: false, expected: true},
		{value: "false", defaultValue: true, expected: false},
		{value: "0", defaultValue: true, expected: false},
		{value: "no", defaultValue: true, expected: false},
		{value: "maybe", defaultValue: true, expected: true},
		{value: "", defaultValue: false, expected: false},
	}

	for _, tt := range tests {
		t.Run("value "+tt.value, func(t *testing.T) {
			t.Setenv("TEST_BOOL", tt.value)

			if got := GetEnvBool("TEST_BOOL", tt.defaultValue); got != tt.expected {
				t.Errorf("GetEnvBool(%q) = %v, expected %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestGetEnvDuration(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	t.Setenv("TEST_DURATION", "45s")

	if got := GetEnvDuration("TEST_DURATION", time.Minute); got != 45*time.Second {
		t.Errorf("GetEnvDuration() = %v, expected 45s", got)
	}

	t.Setenv("TEST_DURATION", "bogus")

	if got := GetEnvDuration("TEST_DURATION", time.Minute); got != time.Minute {
		t.Errorf("GetEnvDuration() = %v, expected fallback 1m", got)
	}
}

func TestGetEnvLogLevel(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		value    string
		expected slog.Level
	}{
		{value: "debug", expected: slog.LevelDebug},
		{value: "INFO", expected: slog.LevelInfo},
		{value: "warn", expected: slog.LevelWarn},
		{value: "warning", expected: slog.LevelWarn},
		{value: "error", expected: slog.LevelError},
		{value: "verbose", expected: slog.LevelInfo},
		{value: "", expected: slog.LevelInfo},
	}

	for _, tt := range tests {
		t.Run("value "+tt.value, func(t *testing.T) {
			t.Setenv("TEST_LOG_LEVEL", tt.value)

			if got := GetEnvLogLevel("TEST_LOG_LEVEL", slog.LevelInfo); got != tt.expected {
				t.Errorf("GetEnvLogLevel(%q) = %v, expected %v", tt.value, got, tt.expected)
			}
		})
	}
}

func TestParseCommaSeparatedList(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "simple list", input: "a,b,c", expected: []string{"a", "b", "c"}},
		{name: "trims whitespace", input: " a , b ", expected: []string{"a", "b"}},
		{name: "drops empty elements", input: "a,,b,", expected: []string{"a", "b"}},
		{name: "empty input", input: "", expected: []string{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ParseCommaSeparatedList(tt.input)

			if len(got) != len(tt.expected) {
				t.Fatalf("ParseCommaSeparatedList(%q) = %v, expected %v", tt.input, got, tt.expected)
			}

			for i := range tt.expected {
				if got[i] != tt.expected[i] {
					t.Errorf("element %d = %q, expected %q", i, got[i], tt.expected[i])
				}
			}
		})
	}
}
