package config

import (
	"fmt"
	"strings"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// FlagBindings maps config keys to command-line flag names. Flags that were
// not set on the command line do not override other sources.
type FlagBindings map[string]string

// LoadConfig loads configuration from file, environment and flags using viper.
// CLI flags > environment > config file > defaults precedence.
func LoadConfig(configPath string, flags *pflag.FlagSet, bindings FlagBindings) (*Config, error) {
	v := viper.New()

	def := Default()
	v.SetDefault("api.host", def.API.Host)
	v.SetDefault("api.port", def.API.Port)
	v.SetDefault("api.request_timeout", def.API.RequestTimeout.String())
	v.SetDefault("api.metrics_addr", def.API.MetricsAddr)
	v.SetDefault("database.url", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.count_ttl", def.Redis.CountTTL.String())
	v.SetDefault("rules.tracking_page_enabled", def.Rules.TrackingPageEnabled)
	v.SetDefault("export.default_locale", def.Export.DefaultLocale)

	// SK_API_PORT, SK_DATABASE_URL, ...
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Secrets must be environment-only per 12-factor principles
	if err := validateNoSecretsInConfig(v); err != nil {
		return nil, err
	}

	if flags != nil {
		for key, name := range bindings {
			f := flags.Lookup(name)
			if f == nil {
				return nil, fmt.Errorf("unknown flag %q bound to %s", name, key)
			}
			if f.Changed {
				if err := v.BindPFlag(key, f); err != nil {
					return nil, fmt.Errorf("failed to bind flag %s: %w", name, err)
				}
			}
		}
	}

	cfg := &Config{
		API: APIConfig{
			Host:           v.GetString("api.host"),
			Port:           v.GetInt("api.port"),
			RequestTimeout: v.GetDuration("api.request_timeout"),
			MetricsAddr:    v.GetString("api.metrics_addr"),
		},
		Database: DatabaseConfig{
			URL: v.GetString("database.url"),
		},
		Redis: RedisConfig{
			URL:      v.GetString("redis.url"),
			CountTTL: v.GetDuration("redis.count_ttl"),
		},
		Rules: RulesConfig{
			TrackingPageEnabled: v.GetBool("rules.tracking_page_enabled"),
		},
		Export: ExportConfig{
			DefaultLocale: v.GetString("export.default_locale"),
		},
	}

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// validateConfig checks port range, positive durations and the locale tag.
func validateConfig(cfg *Config) error {
	if cfg.API.Port <= 0 || cfg.API.Port > 65535 {
		return fmt.Errorf("api.port must be between 1 and 65535, got %d", cfg.API.Port)
	}
	if cfg.API.RequestTimeout <= 0 {
		return fmt.Errorf("api.request_timeout must be positive, got %v", cfg.API.RequestTimeout)
	}
	if cfg.Redis.CountTTL <= 0 {
		return fmt.Errorf("redis.count_ttl must be positive, got %v", cfg.Redis.CountTTL)
	}
	if _, err := language.Parse(cfg.Export.DefaultLocale); err != nil {
		return fmt.Errorf("export.default_locale %q is not a BCP 47 tag: %w", cfg.Export.DefaultLocale, err)
	}
	return nil
}

// validateNoSecretsInConfig enforces environment-only secrets (12-factor principle).
func validateNoSecretsInConfig(v *viper.Viper) error {
	if v.InConfig("hmac_secret") || v.InConfig("api.hmac_secret") {
		return fmt.Errorf("HMAC secrets not allowed in config files (use %s_HMAC_SECRET environment variable)", EnvPrefix)
	}
	return nil
}
