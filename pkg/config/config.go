// Package config loads the service configuration from defaults, an
// optional YAML file, and environment variables, in that order of
// precedence (env wins).
package config

import (
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Config is the root configuration of the identrad service.
type Config struct {
	Server      ServerConfig     `koanf:"server"`
	Database    DatabaseConfig   `koanf:"database"`
	Bus         BusConfig        `koanf:"bus"`
	OIDC        OIDCConfig       `koanf:"oidc"`
	Projections ProjectionConfig `koanf:"projections"`
	Cache       CacheConfig      `koanf:"cache"`
	Logging     LoggingConfig    `koanf:"logging"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host            string        `koanf:"host" validate:"required"`
	Port            int           `koanf:"port" validate:"min=1,max=65535"`
	ReadTimeout     time.Duration `koanf:"read_timeout" validate:"gt=0"`
	WriteTimeout    time.Duration `koanf:"write_timeout" validate:"gt=0"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" validate:"gt=0"`
}

// Addr returns the host:port listen address.
func (c ServerConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// DatabaseConfig holds the SQLite event store settings.
type DatabaseConfig struct {
	Path         string `koanf:"path" validate:"required"`
	MaxOpenConns int    `koanf:"max_open_conns" validate:"min=1"`
	MaxIdleConns int    `koanf:"max_idle_conns" validate:"min=1"`
	WALMode      bool   `koanf:"wal"`
}

// BusConfig holds the NATS event bus settings. With Embedded set the
// service runs its own JetStream server and ignores URL.
type BusConfig struct {
	Embedded   bool          `koanf:"embedded"`
	URL        string        `koanf:"url" validate:"required"`
	StreamName string        `koanf:"stream" validate:"required"`
	MaxAge     time.Duration `koanf:"max_age" validate:"gt=0"`
	MaxBytes   int64         `koanf:"max_bytes" validate:"gt=0"`
}

// OIDCConfig holds the token issuer settings. Exactly one of SigningKey
// (hex, for development) or KeeperURL+KeyCiphertext (a Go Cloud secrets
// keeper holding the key) must be configured.
type OIDCConfig struct {
	Issuer               string        `koanf:"issuer" validate:"required,url"`
	AccessTokenLifetime  time.Duration `koanf:"access_token_lifetime" validate:"gt=0"`
	RefreshTokenLifetime time.Duration `koanf:"refresh_token_lifetime" validate:"gt=0"`
	RefreshIdleLifetime  time.Duration `koanf:"refresh_idle_lifetime" validate:"gt=0"`
	AuthRequestTTL       time.Duration `koanf:"auth_request_ttl" validate:"gt=0"`
	RequireSignedJAR     bool          `koanf:"require_signed_jar"`
	SigningKey           string        `koanf:"signing_key"`
	JARKey               string        `koanf:"jar_key"`
	KeeperURL            string        `koanf:"keeper_url"`
	KeyCiphertext        string        `koanf:"key_ciphertext"`
}

// SigningKeyBytes decodes the hex-encoded static signing key.
func (c OIDCConfig) SigningKeyBytes() ([]byte, error) {
	key, err := hex.DecodeString(c.SigningKey)
	if err != nil {
		return nil, fmt.Errorf("oidc.signing_key is not valid hex: %w", err)
	}
	return key, nil
}

// JARKeyBytes decodes the hex-encoded request object verification key.
// Returns nil when no key is configured.
func (c OIDCConfig) JARKeyBytes() ([]byte, error) {
	if c.JARKey == "" {
		return nil, nil
	}
	key, err := hex.DecodeString(c.JARKey)
	if err != nil {
		return nil, fmt.Errorf("oidc.jar_key is not valid hex: %w", err)
	}
	return key, nil
}

// ProjectionConfig holds the projection engine settings.
type ProjectionConfig struct {
	Interval         time.Duration `koanf:"interval" validate:"gt=0"`
	BatchSize        int           `koanf:"batch_size" validate:"min=1"`
	FailureThreshold int           `koanf:"failure_threshold" validate:"min=1"`
}

// CacheConfig holds the in-memory cache and policy resolver settings.
type CacheConfig struct {
	DefaultTTL    time.Duration `koanf:"default_ttl" validate:"gt=0"`
	SweepInterval time.Duration `koanf:"sweep_interval" validate:"gt=0"`
	PolicyTTL     time.Duration `koanf:"policy_ttl" validate:"gt=0"`
}

// LoggingConfig holds the zerolog settings.
type LoggingConfig struct {
	Level  string `koanf:"level" validate:"oneof=trace debug info warn error"`
	Format string `koanf:"format" validate:"oneof=json console"`
	Caller bool   `koanf:"caller"`
}

// NewLogger builds the root logger from the configured level and format.
func (c LoggingConfig) NewLogger() zerolog.Logger {
	level, err := zerolog.ParseLevel(c.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var logger zerolog.Logger
	if c.Format == "console" {
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr})
	} else {
		logger = zerolog.New(os.Stderr)
	}
	ctx := logger.Level(level).With().Timestamp()
	if c.Caller {
		ctx = ctx.Caller()
	}
	return ctx.Logger()
}

// Default returns the configuration used when no file or environment
// overrides are present.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Database: DatabaseConfig{
			Path:         "/data/identra.db",
			MaxOpenConns: 10,
			MaxIdleConns: 5,
			WALMode:      true,
		},
		Bus: BusConfig{
			Embedded:   true,
			URL:        nats.DefaultURL,
			StreamName: "IDENTRA_EVENTS",
			MaxAge:     7 * 24 * time.Hour,
			MaxBytes:   1024 * 1024 * 1024,
		},
		OIDC: OIDCConfig{
			Issuer:               "https://identra.localhost",
			AccessTokenLifetime:  time.Hour,
			RefreshTokenLifetime: 90 * 24 * time.Hour,
			RefreshIdleLifetime:  30 * 24 * time.Hour,
			AuthRequestTTL:       10 * time.Minute,
			RequireSignedJAR:     false,
		},
		Projections: ProjectionConfig{
			Interval:         200 * time.Millisecond,
			BatchSize:        200,
			FailureThreshold: 5,
		},
		Cache: CacheConfig{
			DefaultTTL:    5 * time.Minute,
			SweepInterval: time.Minute,
			PolicyTTL:     5 * time.Minute,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Caller: false,
		},
	}
}

// Validate checks struct constraints plus the cross-field rules the
// tags cannot express.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if c.OIDC.SigningKey == "" && c.OIDC.KeeperURL == "" {
		return fmt.Errorf("invalid configuration: one of oidc.signing_key or oidc.keeper_url must be set")
	}
	if c.OIDC.SigningKey != "" && c.OIDC.KeeperURL != "" {
		return fmt.Errorf("invalid configuration: oidc.signing_key and oidc.keeper_url are mutually exclusive")
	}
	if c.OIDC.KeeperURL != "" && c.OIDC.KeyCiphertext == "" {
		return fmt.Errorf("invalid configuration: oidc.keeper_url requires oidc.key_ciphertext")
	}
	if c.OIDC.SigningKey != "" {
		if _, err := c.OIDC.SigningKeyBytes(); err != nil {
			return fmt.Errorf("invalid configuration: %w", err)
		}
	}
	if _, err := c.OIDC.JARKeyBytes(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.OIDC.RefreshIdleLifetime > c.OIDC.RefreshTokenLifetime {
		return fmt.Errorf("invalid configuration: oidc.refresh_idle_lifetime exceeds oidc.refresh_token_lifetime")
	}
	return nil
}
