// Package config provides configuration management for SegmentKeeper.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strings"
	"time"
)

// EnvPrefix prefixes every environment variable SegmentKeeper reads.
const EnvPrefix = "SK"

// Config is the complete service configuration.
type Config struct {
	API      APIConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Rules    RulesConfig
	Export   ExportConfig
}

// APIConfig holds configuration for the gRPC evaluation API.
type APIConfig struct {
	Host           string
	Port           int
	RequestTimeout time.Duration
	// MetricsAddr is the listen address of the Prometheus endpoint; empty
	// disables it.
	MetricsAddr string
}

// DatabaseConfig holds the database connection URL.
type DatabaseConfig struct {
	URL string
}

// RedisConfig configures the event count cache. An empty URL disables it.
type RedisConfig struct {
	URL      string
	CountTTL time.Duration
}

// RulesConfig holds settings handed to the builtin rule variants.
type RulesConfig struct {
	TrackingPageEnabled bool
}

// ExportConfig holds export/import defaults.
type ExportConfig struct {
	DefaultLocale string
}

// Default returns configuration with default values.
func Default() *Config {
	return &Config{
		API: APIConfig{
			Host:           "0.0.0.0",
			Port:           50061,
			RequestTimeout: 30 * time.Second,
			MetricsAddr:    ":9090",
		},
		Redis: RedisConfig{
			CountTTL: 5 * time.Minute,
		},
		Rules: RulesConfig{
			TrackingPageEnabled: true,
		},
		Export: ExportConfig{
			DefaultLocale: "en-US",
		},
	}
}

// HMACSecrets extracts API key HMAC secrets from environment variables.
// Supports SK_HMAC_SECRET (single) and SK_HMAC_SECRET_N (rotation).
// Returns map of secret_id -> decoded secret bytes.
// Secret IDs are UUIDv7 (32 hex chars without hyphens) matching API key format.
func HMACSecrets() (map[string][]byte, error) {
	secrets := make(map[string][]byte)

	add := func(key, val string) error {
		secretID, decoded, err := ParseHMACSecretWithID(val)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if _, exists := secrets[secretID]; exists {
			return fmt.Errorf("duplicate secret_id '%s' found in environment variables (check %s_HMAC_SECRET and %s_HMAC_SECRET_* for conflicts)",
				secretID, EnvPrefix, EnvPrefix)
		}
		secrets[secretID] = decoded
		return nil
	}

	// Format: <secret_id>:<base64_secret>
	single := EnvPrefix + "_HMAC_SECRET"
	if val := os.Getenv(single); val != "" {
		if err := add(single, val); err != nil {
			return nil, err
		}
	}

	// Numbered secrets keep old and new keys valid during rotation.
	// Numbering stops at the first gap.
	for i := 1; ; i++ {
		key := fmt.Sprintf("%s_HMAC_SECRET_%d", EnvPrefix, i)
		val := os.Getenv(key)
		if val == "" {
			break
		}
		if err := add(key, val); err != nil {
			return nil, err
		}
	}

	return secrets, nil
}

// ParseHMACSecretWithID parses secret_id:base64_secret format.
// Secret ID must be 32 hex chars (UUIDv7 without hyphens).
func ParseHMACSecretWithID(envValue string) (secretID string, secret []byte, err error) {
	parts := strings.SplitN(strings.TrimSpace(envValue), ":", 2)
	if len(parts) != 2 {
		return "", nil, fmt.Errorf("format must be <secret_id>:<base64_secret>")
	}

	secretID = parts[0]
	if len(secretID) != 32 {
		return "", nil, fmt.Errorf("secret_id must be 32 hex chars (UUIDv7 without hyphens)")
	}
	for _, c := range secretID {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return "", nil, fmt.Errorf("secret_id must be lowercase hex chars only")
		}
	}

	secret, err = base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return "", nil, fmt.Errorf("invalid base64 encoding: %w", err)
	}
	if len(secret) < 32 {
		return "", nil, fmt.Errorf("secret must be at least 32 bytes, got %d", len(secret))
	}

	return secretID, secret, nil
}
