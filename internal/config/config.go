// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

// Package config loads and validates service configuration from YAML
// files and command line flags.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/gobwas/glob"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/idlink/idlink/internal/auth"
)

// Server holds the HTTP listener settings.
type Server struct {
	// Addr is the API listen address.
	Addr string `koanf:"addr" json:"addr,omitempty"`
	// MetricsAddr is the metrics/health listen address. Empty disables
	// the observability server.
	MetricsAddr string `koanf:"metrics_addr" json:"metrics_addr,omitempty"`
	// BaseURL is the externally reachable URL, used to build the email
	// verification link.
	BaseURL string `koanf:"base_url" json:"base_url,omitempty"`
	// Environment is either development or production. Production makes
	// the refresh cookie Secure.
	Environment string `koanf:"environment" json:"environment,omitempty"`
	// CORSOrigins lists allowed origins. Entries are glob patterns, so
	// "https://*.example.com" admits every subdomain.
	CORSOrigins     []string      `koanf:"cors_origins" json:"cors_origins,omitempty"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout" json:"shutdown_timeout,omitempty" jsonschema:"oneof_type=string;integer"`
}

// Database holds the PostgreSQL settings. URL falls back to the
// DATABASE_URL environment variable when unset.
type Database struct {
	URL string `koanf:"url" json:"url,omitempty"`
}

// Session holds token issuance and refresh cookie settings.
type Session struct {
	// Secret signs access and refresh tokens. Required.
	Secret          string        `koanf:"secret" json:"secret,omitempty"`
	AccessTokenTTL  time.Duration `koanf:"access_token_ttl" json:"access_token_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
	RefreshTokenTTL time.Duration `koanf:"refresh_token_ttl" json:"refresh_token_ttl,omitempty" jsonschema:"oneof_type=string;integer"`
	// CookieName and CookiePath shape the refresh cookie. The Secure flag
	// follows Environment.
	CookieName string `koanf:"cookie_name" json:"cookie_name,omitempty"`
	CookiePath string `koanf:"cookie_path" json:"cookie_path,omitempty"`
}

// Mail holds SMTP delivery settings. An empty Host selects the log-only
// sender, which is the development default.
type Mail struct {
	Host     string `koanf:"host" json:"host,omitempty"`
	Port     int    `koanf:"port" json:"port,omitempty"`
	Username string `koanf:"username" json:"username,omitempty"`
	Password string `koanf:"password" json:"password,omitempty"`
	From     string `koanf:"from" json:"from,omitempty"`
}

// OAuthClient holds one provider's OAuth client settings.
type OAuthClient struct {
	ClientID     string `koanf:"client_id" json:"client_id,omitempty"`
	ClientSecret string `koanf:"client_secret" json:"client_secret,omitempty"`
	RedirectURL  string `koanf:"redirect_url" json:"redirect_url,omitempty"`
}

// Providers holds the OAuth client settings per provider. Providers with
// no credentials stay registered: token-only flows work without them.
type Providers struct {
	Google   OAuthClient `koanf:"google" json:"google,omitempty"`
	GitHub   OAuthClient `koanf:"github" json:"github,omitempty"`
	Facebook OAuthClient `koanf:"facebook" json:"facebook,omitempty"`
	LinkedIn OAuthClient `koanf:"linkedin" json:"linkedin,omitempty"`
	// Timeout bounds each provider network call.
	Timeout time.Duration `koanf:"timeout" json:"timeout,omitempty" jsonschema:"oneof_type=string;integer"`
}

// Log holds logging settings.
type Log struct {
	Format string `koanf:"format" json:"format,omitempty"`
	Level  string `koanf:"level" json:"level,omitempty"`
}

// Config is the full service configuration.
type Config struct {
	Server    Server    `koanf:"server" json:"server,omitempty"`
	Database  Database  `koanf:"database" json:"database,omitempty"`
	Session   Session   `koanf:"session" json:"session,omitempty"`
	Mail      Mail      `koanf:"mail" json:"mail,omitempty"`
	Providers Providers `koanf:"providers" json:"providers,omitempty"`
	Log       Log       `koanf:"log" json:"log,omitempty"`
}

// Default values for server flags and the config file.
const (
	DefaultAddr        = ":8000"
	DefaultMetricsAddr = "127.0.0.1:9100"
	DefaultBaseURL     = "http://localhost:8000"
	DefaultLogFormat   = "json"
	DefaultLogLevel    = "info"
)

// Default returns the configuration used when no file or flag overrides
// a value.
func Default() *Config {
	return &Config{
		Server: Server{
			Addr:            DefaultAddr,
			MetricsAddr:     DefaultMetricsAddr,
			BaseURL:         DefaultBaseURL,
			Environment:     "development",
			CORSOrigins:     []string{"http://localhost:*"},
			ShutdownTimeout: 5 * time.Second,
		},
		Session: Session{
			AccessTokenTTL:  auth.DefaultAccessTokenTTL,
			RefreshTokenTTL: auth.DefaultRefreshTokenTTL,
			CookieName:      "refresh_token",
			CookiePath:      "/auth",
		},
		Mail: Mail{
			Port: 587,
			From: "no-reply@localhost",
		},
		Providers: Providers{
			Timeout: auth.DefaultProviderTimeout,
		},
		Log: Log{
			Format: DefaultLogFormat,
			Level:  DefaultLogLevel,
		},
	}
}

// Load builds the configuration from defaults, then the YAML file at
// path (if non-empty), then any changed flags. Later sources win. The
// file is schema-validated before unmarshalling, so misspelled keys and
// wrong types are reported with their path instead of being silently
// dropped.
func Load(path string, flags *pflag.FlagSet) (*Config, error) {
	k := koanf.New(".")

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
		if err := ValidateSchema(data); err != nil {
			return nil, fmt.Errorf("invalid config file %s: %s", path, FormatSchemaError(err))
		}
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if flags != nil {
		if err := k.Load(posflag.ProviderWithValue(flags, ".", k, flagKey), nil); err != nil {
			return nil, fmt.Errorf("failed to load flags: %w", err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}
	return cfg, nil
}

// flagKey maps flag names onto config keys. Flags outside the map, such
// as --config itself, are skipped.
func flagKey(key, value string) (string, any) {
	switch key {
	case "addr":
		return "server.addr", value
	case "metrics-addr":
		return "server.metrics_addr", value
	case "log-format":
		return "log.format", value
	case "log-level":
		return "log.level", value
	}
	return "", nil
}

// Validate checks that the configuration is usable. The database URL is
// not checked here: commands fall back to DATABASE_URL and report its
// absence themselves.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return fmt.Errorf("server.addr is required")
	}
	if c.Server.Environment != "development" && c.Server.Environment != "production" {
		return fmt.Errorf("server.environment must be 'development' or 'production', got %q", c.Server.Environment)
	}
	for _, origin := range c.Server.CORSOrigins {
		if _, err := glob.Compile(origin); err != nil {
			return fmt.Errorf("server.cors_origins: invalid pattern %q: %w", origin, err)
		}
	}
	if c.Session.Secret == "" {
		return fmt.Errorf("session.secret is required")
	}
	if c.Session.AccessTokenTTL <= 0 {
		return fmt.Errorf("session.access_token_ttl must be positive, got %s", c.Session.AccessTokenTTL)
	}
	if c.Session.RefreshTokenTTL <= 0 {
		return fmt.Errorf("session.refresh_token_ttl must be positive, got %s", c.Session.RefreshTokenTTL)
	}
	if c.Session.CookieName == "" {
		return fmt.Errorf("session.cookie_name is required")
	}
	if c.Mail.Host != "" && (c.Mail.Port < 1 || c.Mail.Port > 65535) {
		return fmt.Errorf("mail.port must be 1-65535, got %d", c.Mail.Port)
	}
	if c.Providers.Timeout <= 0 {
		return fmt.Errorf("providers.timeout must be positive, got %s", c.Providers.Timeout)
	}
	if c.Log.Format != "json" && c.Log.Format != "text" {
		return fmt.Errorf("log.format must be 'json' or 'text', got %q", c.Log.Format)
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	return nil
}

// Production reports whether the server runs with production hardening,
// such as the Secure flag on the refresh cookie.
func (c *Config) Production() bool {
	return c.Server.Environment == "production"
}
