// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlink/idlink/internal/auth"
	"github.com/idlink/idlink/internal/config"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "idlink.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestDefault(t *testing.T) {
	cfg := config.Default()

	assert.Equal(t, config.DefaultAddr, cfg.Server.Addr)
	assert.Equal(t, config.DefaultMetricsAddr, cfg.Server.MetricsAddr)
	assert.Equal(t, config.DefaultBaseURL, cfg.Server.BaseURL)
	assert.Equal(t, "development", cfg.Server.Environment)
	assert.Equal(t, []string{"http://localhost:*"}, cfg.Server.CORSOrigins)
	assert.Equal(t, 5*time.Second, cfg.Server.ShutdownTimeout)
	assert.Equal(t, auth.DefaultAccessTokenTTL, cfg.Session.AccessTokenTTL)
	assert.Equal(t, auth.DefaultRefreshTokenTTL, cfg.Session.RefreshTokenTTL)
	assert.Equal(t, "refresh_token", cfg.Session.CookieName)
	assert.Equal(t, "/auth", cfg.Session.CookiePath)
	assert.Equal(t, 587, cfg.Mail.Port)
	assert.Equal(t, auth.DefaultProviderTimeout, cfg.Providers.Timeout)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level)
	assert.False(t, cfg.Production())
}

func TestLoad(t *testing.T) {
	t.Run("returns defaults without file or flags", func(t *testing.T) {
		cfg, err := config.Load("", nil)
		require.NoError(t, err)
		assert.Equal(t, config.Default(), cfg)
	})

	t.Run("fails on missing file", func(t *testing.T) {
		_, err := config.Load(filepath.Join(t.TempDir(), "absent.yaml"), nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to read config file")
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  addr: ":9090"
  environment: production
  cors_origins:
    - "https://app.example.com"
    - "https://*.example.com"
session:
  secret: super-secret
  access_token_ttl: 30m
providers:
  google:
    client_id: g-cid
    client_secret: g-secret
`)

		cfg, err := config.Load(path, nil)
		require.NoError(t, err)

		assert.Equal(t, ":9090", cfg.Server.Addr)
		assert.True(t, cfg.Production())
		assert.Equal(t, []string{"https://app.example.com", "https://*.example.com"}, cfg.Server.CORSOrigins)
		assert.Equal(t, "super-secret", cfg.Session.Secret)
		assert.Equal(t, 30*time.Minute, cfg.Session.AccessTokenTTL)
		assert.Equal(t, "g-cid", cfg.Providers.Google.ClientID)
		assert.Equal(t, "g-secret", cfg.Providers.Google.ClientSecret)

		// Values the file does not mention keep their defaults.
		assert.Equal(t, config.DefaultMetricsAddr, cfg.Server.MetricsAddr)
		assert.Equal(t, auth.DefaultRefreshTokenTTL, cfg.Session.RefreshTokenTTL)
	})

	t.Run("changed flags override the file", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  addr: ":9090"
log:
  format: text
`)

		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("addr", config.DefaultAddr, "")
		flags.String("log-format", config.DefaultLogFormat, "")
		require.NoError(t, flags.Set("addr", ":7070"))

		cfg, err := config.Load(path, flags)
		require.NoError(t, err)

		assert.Equal(t, ":7070", cfg.Server.Addr, "changed flag wins over file")
		assert.Equal(t, "text", cfg.Log.Format, "unchanged flag default does not shadow file")
	})

	t.Run("skips unmapped flags", func(t *testing.T) {
		flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
		flags.String("config", "/etc/idlink.yaml", "")
		flags.String("metrics-addr", config.DefaultMetricsAddr, "")
		require.NoError(t, flags.Set("metrics-addr", "127.0.0.1:9200"))

		cfg, err := config.Load("", flags)
		require.NoError(t, err)

		assert.Equal(t, "127.0.0.1:9200", cfg.Server.MetricsAddr)
	})

	t.Run("fails on malformed file", func(t *testing.T) {
		path := writeConfigFile(t, "server: [unterminated")

		_, err := config.Load(path, nil)
		require.Error(t, err)
	})

	t.Run("rejects unknown keys", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  adress: ":9090"
`)

		_, err := config.Load(path, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config file")
	})

	t.Run("rejects wrong value types", func(t *testing.T) {
		path := writeConfigFile(t, `
server:
  cors_origins: "https://app.example.com"
`)

		_, err := config.Load(path, nil)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "invalid config file")
	})
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *config.Config {
		cfg := config.Default()
		cfg.Session.Secret = "super-secret"
		return cfg
	}

	t.Run("accepts defaults plus secret", func(t *testing.T) {
		require.NoError(t, valid().Validate())
	})

	tests := []struct {
		name    string
		mutate  func(*config.Config)
		wantErr string
	}{
		{
			name:    "empty addr",
			mutate:  func(c *config.Config) { c.Server.Addr = "" },
			wantErr: "server.addr is required",
		},
		{
			name:    "unknown environment",
			mutate:  func(c *config.Config) { c.Server.Environment = "staging" },
			wantErr: "server.environment",
		},
		{
			name:    "malformed cors pattern",
			mutate:  func(c *config.Config) { c.Server.CORSOrigins = []string{"https://[invalid"} },
			wantErr: "server.cors_origins",
		},
		{
			name:    "missing session secret",
			mutate:  func(c *config.Config) { c.Session.Secret = "" },
			wantErr: "session.secret is required",
		},
		{
			name:    "zero access token ttl",
			mutate:  func(c *config.Config) { c.Session.AccessTokenTTL = 0 },
			wantErr: "session.access_token_ttl",
		},
		{
			name:    "negative refresh token ttl",
			mutate:  func(c *config.Config) { c.Session.RefreshTokenTTL = -time.Hour },
			wantErr: "session.refresh_token_ttl",
		},
		{
			name:    "empty cookie name",
			mutate:  func(c *config.Config) { c.Session.CookieName = "" },
			wantErr: "session.cookie_name",
		},
		{
			name: "mail port out of range",
			mutate: func(c *config.Config) {
				c.Mail.Host = "smtp.example.com"
				c.Mail.Port = 0
			},
			wantErr: "mail.port",
		},
		{
			name:    "zero provider timeout",
			mutate:  func(c *config.Config) { c.Providers.Timeout = 0 },
			wantErr: "providers.timeout",
		},
		{
			name:    "unknown log format",
			mutate:  func(c *config.Config) { c.Log.Format = "xml" },
			wantErr: "log.format",
		},
		{
			name:    "unknown log level",
			mutate:  func(c *config.Config) { c.Log.Level = "trace" },
			wantErr: "log.level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}

	t.Run("ignores mail port when host is empty", func(t *testing.T) {
		cfg := valid()
		cfg.Mail.Host = ""
		cfg.Mail.Port = 0
		require.NoError(t, cfg.Validate())
	})
}
