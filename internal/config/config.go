// Package config loads runtime configuration for mailgate from the
// environment. A .env file is honored when present so local development
// matches deployed configuration.
package config

import (
	"encoding/base64"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config contains runtime configuration values.
type Config struct {
	// Server
	ServerHost string `env:"SERVER_HOST" envDefault:"0.0.0.0"`
	ServerPort int    `env:"SERVER_PORT" envDefault:"8002"`

	// Credential store
	DatabaseURL    string        `env:"DATABASE_URL,required"`
	DBMinConns     int32         `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConns     int32         `env:"DB_MAX_CONNS" envDefault:"5"`
	DBQueryTimeout time.Duration `env:"DB_QUERY_TIMEOUT" envDefault:"10s"`

	// EncryptionKey is the AES-256 key used for token storage at rest,
	// base64 encoded (32 bytes decoded). Generate with: openssl rand -base64 32
	EncryptionKey string `env:"ENCRYPTION_KEY,required"`

	// Microsoft OAuth
	MicrosoftClientID     string `env:"MICROSOFT_CLIENT_ID,required"`
	MicrosoftClientSecret string `env:"MICROSOFT_CLIENT_SECRET,required"`
	MicrosoftTenantID     string `env:"MICROSOFT_TENANT_ID" envDefault:"common"`

	// Outbound HTTP
	GraphTimeout time.Duration `env:"GRAPH_HTTP_TIMEOUT" envDefault:"30s"`

	// Auth mode: when true the caller identity is trusted from the
	// X-User-ID header injected by the identity sidecar.
	TrustUserIDHeader bool `env:"TRUST_X_USER_ID" envDefault:"true"`

	// Logging
	LogLevel string `env:"LOG_LEVEL" envDefault:"info"`

	// Email field projections sent as $select to Microsoft Graph.
	EmailListFields   string `env:"EMAIL_LIST_FIELDS" envDefault:"id,subject,from,toRecipients,ccRecipients,receivedDateTime,bodyPreview,hasAttachments,importance,isRead"`
	EmailDetailFields string `env:"EMAIL_DETAIL_FIELDS" envDefault:"id,subject,from,toRecipients,ccRecipients,bccRecipients,receivedDateTime,bodyPreview,body,hasAttachments,importance,isRead"`
}

// Load reads configuration from the environment, honoring a local .env file
// if one exists.
func Load() (Config, error) {
	_ = godotenv.Load()

	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks derived constraints that tag-level parsing cannot express.
func (c Config) Validate() error {
	if c.ServerPort < 1 || c.ServerPort > 65535 {
		return fmt.Errorf("invalid SERVER_PORT %d", c.ServerPort)
	}
	if c.DBMinConns < 0 || c.DBMaxConns < 1 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("invalid connection pool bounds min=%d max=%d", c.DBMinConns, c.DBMaxConns)
	}
	if _, err := c.EncryptionKeyBytes(); err != nil {
		return err
	}
	return nil
}

// EncryptionKeyBytes decodes the configured encryption key and verifies it is
// a valid AES-256 key.
func (c Config) EncryptionKeyBytes() ([]byte, error) {
	key, err := base64.StdEncoding.DecodeString(c.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be base64 encoded: %w", err)
	}
	if len(key) != 32 {
		return nil, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes (got %d bytes)", len(key))
	}
	return key, nil
}

// TokenURL returns the Microsoft identity platform token endpoint for the
// configured tenant.
func (c Config) TokenURL() string {
	return fmt.Sprintf("https://login.microsoftonline.com/%s/oauth2/v2.0/token", c.MicrosoftTenantID)
}

// ListenAddr returns the host:port the MCP HTTP server binds to.
func (c Config) ListenAddr() string {
	return fmt.Sprintf("%s:%d", c.ServerHost, c.ServerPort)
}
