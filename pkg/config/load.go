package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// DefaultConfigPaths lists where config files are searched, first match
// wins.
var DefaultConfigPaths = []string{
	"identra.yaml",
	"identra.yml",
	"/etc/identra/config.yaml",
	"/etc/identra/config.yml",
}

// ConfigPathEnvVar overrides the config file search.
const ConfigPathEnvVar = "IDENTRA_CONFIG"

// EnvPrefix is the prefix of all configuration environment variables.
const EnvPrefix = "IDENTRA_"

// Load builds the configuration from three layers: built-in defaults,
// an optional YAML file, and IDENTRA_* environment variables.
func Load() (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("load defaults: %w", err)
	}

	if path := findConfigFile(); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransform), nil); err != nil {
		return nil, fmt.Errorf("load environment: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("unmarshal configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func findConfigFile() string {
	if envPath := os.Getenv(ConfigPathEnvVar); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath
		}
	}
	for _, path := range DefaultConfigPaths {
		if _, err := os.Stat(path); err == nil {
			return path
		}
	}
	return ""
}

// envMappings pins every recognized environment variable to its config
// path. Unmapped variables are ignored so unrelated IDENTRA_* vars
// cannot pollute the config.
var envMappings = map[string]string{
	"server_host":             "server.host",
	"server_port":             "server.port",
	"server_read_timeout":     "server.read_timeout",
	"server_write_timeout":    "server.write_timeout",
	"server_shutdown_timeout": "server.shutdown_timeout",

	"database_path":           "database.path",
	"database_max_open_conns": "database.max_open_conns",
	"database_max_idle_conns": "database.max_idle_conns",
	"database_wal":            "database.wal",

	"bus_embedded":  "bus.embedded",
	"bus_url":       "bus.url",
	"bus_stream":    "bus.stream",
	"bus_max_age":   "bus.max_age",
	"bus_max_bytes": "bus.max_bytes",

	"issuer":                 "oidc.issuer",
	"access_token_lifetime":  "oidc.access_token_lifetime",
	"refresh_token_lifetime": "oidc.refresh_token_lifetime",
	"refresh_idle_lifetime":  "oidc.refresh_idle_lifetime",
	"auth_request_ttl":       "oidc.auth_request_ttl",
	"require_signed_jar":     "oidc.require_signed_jar",
	"signing_key":            "oidc.signing_key",
	"jar_key":                "oidc.jar_key",
	"keeper_url":             "oidc.keeper_url",
	"key_ciphertext":         "oidc.key_ciphertext",

	"projection_interval":          "projections.interval",
	"projection_batch_size":        "projections.batch_size",
	"projection_failure_threshold": "projections.failure_threshold",

	"cache_ttl":            "cache.default_ttl",
	"cache_sweep_interval": "cache.sweep_interval",
	"policy_ttl":           "cache.policy_ttl",

	"log_level":  "logging.level",
	"log_format": "logging.format",
	"log_caller": "logging.caller",
}

// envTransform maps IDENTRA_SERVER_PORT style names onto koanf paths
// like server.port.
func envTransform(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	if mapped, ok := envMappings[key]; ok {
		return mapped
	}
	return ""
}
