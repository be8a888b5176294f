package storage

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestGenerateAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	key, err := GenerateAPIKey("client_A")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	if !strings.HasPrefix(key, keyPrefix) {
		t.Errorf("GenerateAPIKey() = %q, want %q prefix", key, keyPrefix)
	}

	if len(key) != apiKeyLength {
		t.Errorf("GenerateAPIKey() length = %d, want %d", len(key), apiKeyLength)
	}

	// Keys must be unique
	second, err := GenerateAPIKey("client_A")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	if key == second {
		t.Error("GenerateAPIKey() returned identical keys")
	}
}

func TestGenerateAPIKey_EmptyProducer(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	if _, err := GenerateAPIKey(""); !errors.Is(err, ErrProducerIDEmpty) {
		t.Errorf("GenerateAPIKey(\"\") error = %v, want ErrProducerIDEmpty", err)
	}
}

func TestParseAPIKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	valid, err := GenerateAPIKey("client_A")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain key", valid, valid, nil},
		{"bearer prefix", "Bearer " + valid, valid, nil},
		{"empty", "", "", ErrKeyStringEmpty},
		{"wrong prefix", "other_ak_" + strings.Repeat("a", 64), "", ErrInvalidKeyFormat},
		{"wrong length", keyPrefix + "abc", "", ErrInvalidKeyLength},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseAPIKey(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("ParseAPIKey() error = %v, want %v", err, tt.wantErr)
			}

			if got != tt.want {
				t.Errorf("ParseAPIKey() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestKeyValidateKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	expired := time.Now().Add(-time.Hour)
	future := time.Now().Add(time.Hour)

	tests := []struct {
		name     string
		key      *Key
		provided string
		want     bool
	}{
		{
			name:     "valid active key",
			key:      &Key{Key: "k1", Active: true},
			provided: "k1",
			want:     true,
		},
		{
			name:     "wrong key value",
			key:      &Key{Key: "k1", Active: true},
			provided: "k2",
			want:     false,
		},
		{
			name:     "inactive key",
			key:      &Key{Key: "k1", Active: false},
			provided: "k1",
			want:     false,
		},
		{
			name:     "expired key",
			key:      &Key{Key: "k1", Active: true, ExpiresAt: &expired},
			provided: "k1",
			want:     false,
		},
		{
			name:     "not yet expired key",
			key:      &Key{Key: "k1", Active: true, ExpiresAt: &future},
			provided: "k1",
			want:     true,
		},
		{
			name:     "empty provided key",
			key:      &Key{Key: "k1", Active: true},
			provided: "",
			want:     false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.key.ValidateKey(tt.provided); got != tt.want {
				t.Errorf("ValidateKey() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMaskKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	full, err := GenerateAPIKey("client_A")
	if err != nil {
		t.Fatalf("GenerateAPIKey() error = %v", err)
	}

	masked := MaskKey(full)
	if masked == full {
		t.Error("MaskKey() did not mask the key")
	}

	if !strings.HasPrefix(masked, full[:prefixLen]) {
		t.Errorf("MaskKey() = %q, want %q prefix retained", masked, full[:prefixLen])
	}

	if !strings.HasSuffix(masked, full[len(full)-suffixLen:]) {
		t.Errorf("MaskKey() = %q, want %q suffix retained", masked, full[len(full)-suffixLen:])
	}

	// Non-standard lengths are masked completely
	if got := MaskKey("short"); got != "*****" {
		t.Errorf("MaskKey(\"short\") = %q, want full mask", got)
	}

	if got := MaskKey(""); got != "" {
		t.Errorf("MaskKey(\"\") = %q, want empty", got)
	}
}

func TestNewKey(t *testing.T) {
	if !testing.Short() {
		t.Skip("skipping unit test in non-short mode")
	}

	key, err := NewKey("client_A", "ingest key", []string{"events:write"})
	if err != nil {
		t.Fatalf("NewKey() error = %v", err)
	}

	if key.ID == "" {
		t.Error("NewKey() did not assign an ID")
	}

	if key.ProducerID != "client_A" {
		t.Errorf("ProducerID = %q, want client_A", key.ProducerID)
	}

	if !key.Active {
		t.Error("NewKey() key not active")
	}

	if !key.HasPermission("events:write") {
		t.Error("NewKey() key missing granted permission")
	}

	if key.HasPermission("admin") {
		t.Error("NewKey() key has ungranted permission")
	}
}
