// Package config loads server settings from MCPCTX_* environment variables.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/joeshaw/envdecode"
)

// Store backends.
const (
	StoreMemory = "memory"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Authentication modes for the HTTP transport.
const (
	AuthNone      = "none"
	AuthHMAC      = "hmac"
	AuthStatic    = "static"
	AuthDiscovery = "discovery"
)

// Config is the full server configuration. Defaults are carried in the env
// tags.
type Config struct {
	// HTTPAddr is the listen address for `serve http`. ENV: MCPCTX_HTTP_ADDR
	HTTPAddr string `env:"MCPCTX_HTTP_ADDR,default=:8080"`
	// BaseURL is the externally visible URL of the MCP endpoint. When set,
	// protected resource metadata is published for it. ENV: MCPCTX_BASE_URL
	BaseURL string `env:"MCPCTX_BASE_URL"`

	Store          string `env:"MCPCTX_STORE,default=memory"`
	RedisURL       string `env:"MCPCTX_REDIS_URL,default=redis://localhost:6379/0"`
	RedisKeyPrefix string `env:"MCPCTX_REDIS_KEY_PREFIX,default=mcpctx:"`
	SQLiteDSN      string `env:"MCPCTX_SQLITE_DSN,default=mcpctx.db"`
	// SeedDir is loaded into the memory store at startup and watched.
	SeedDir string `env:"MCPCTX_SEED_DIR"`
	// SeedOwner owns seeded documents. Without one they are public.
	SeedOwner string `env:"MCPCTX_SEED_OWNER"`
	// Org is the organization seeded records belong to, and the fallback
	// organization for principals without an org claim.
	Org      string `env:"MCPCTX_ORG"`
	OrgClaim string `env:"MCPCTX_ORG_CLAIM,default=org"`
	PageSize int    `env:"MCPCTX_PAGE_SIZE,default=50"`

	AuthMode   string `env:"MCPCTX_AUTH_MODE,default=none"`
	Issuer     string `env:"MCPCTX_ISSUER"`
	Audience   string `env:"MCPCTX_AUDIENCE"`
	JWKSURI    string `env:"MCPCTX_JWKS_URI"`
	HMACSecret string `env:"MCPCTX_HMAC_SECRET"`
	// Scopes is a comma separated list; every one must be granted.
	Scopes string `env:"MCPCTX_SCOPES"`

	SessionTimeout time.Duration `env:"MCPCTX_SESSION_TIMEOUT,default=30m"`
	LogLevel       string        `env:"MCPCTX_LOG_LEVEL,default=info"`
	PolicyFile     string        `env:"MCPCTX_POLICY_FILE"`
}

// Default returns the configuration used when no variable is set.
func Default() Config {
	return Config{
		HTTPAddr:       ":8080",
		Store:          StoreMemory,
		RedisURL:       "redis://localhost:6379/0",
		RedisKeyPrefix: "mcpctx:",
		SQLiteDSN:      "mcpctx.db",
		OrgClaim:       "org",
		PageSize:       50,
		AuthMode:       AuthNone,
		SessionTimeout: 30 * time.Minute,
		LogLevel:       "info",
	}
}

// Load decodes the environment and validates the result.
func Load() (Config, error) {
	var c Config
	if err := envdecode.Decode(&c); err != nil {
		if !errors.Is(err, envdecode.ErrNoTargetFieldsAreSet) {
			return Config{}, fmt.Errorf("config: %w", err)
		}
		c = Default()
	}
	if err := c.Validate(); err != nil {
		return Config{}, err
	}
	return c, nil
}

// Validate checks enumerations and the settings each mode requires.
func (c Config) Validate() error {
	switch c.Store {
	case StoreMemory, StoreRedis, StoreSQLite:
	default:
		return fmt.Errorf("config: unknown store %q", c.Store)
	}
	switch c.AuthMode {
	case AuthNone:
	case AuthHMAC:
		if c.HMACSecret == "" {
			return errors.New("config: MCPCTX_HMAC_SECRET is required for hmac auth")
		}
	case AuthStatic:
		if c.JWKSURI == "" {
			return errors.New("config: MCPCTX_JWKS_URI is required for static auth")
		}
	case AuthDiscovery:
	default:
		return fmt.Errorf("config: unknown auth mode %q", c.AuthMode)
	}
	if c.AuthMode != AuthNone && (c.Issuer == "" || c.Audience == "") {
		return fmt.Errorf("config: MCPCTX_ISSUER and MCPCTX_AUDIENCE are required for %s auth", c.AuthMode)
	}
	if c.SeedDir != "" && c.Org == "" {
		return errors.New("config: MCPCTX_ORG is required with MCPCTX_SEED_DIR")
	}
	if c.PageSize <= 0 {
		return fmt.Errorf("config: page size must be positive, got %d", c.PageSize)
	}
	if _, err := c.Level(); err != nil {
		return err
	}
	return nil
}

// Level parses LogLevel.
func (c Config) Level() (slog.Level, error) {
	var l slog.Level
	if err := l.UnmarshalText([]byte(c.LogLevel)); err != nil {
		return 0, fmt.Errorf("config: log level: %w", err)
	}
	return l, nil
}

// RequiredScopes splits Scopes.
func (c Config) RequiredScopes() []string {
	var out []string
	for _, s := range strings.Split(c.Scopes, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
