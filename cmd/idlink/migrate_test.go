// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package main

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/idlink/idlink/pkg/errutil"
)

func TestMigrateCommand_HasExpectedSubcommands(t *testing.T) {
	cmd := NewMigrateCmd()
	buf := new(bytes.Buffer)
	cmd.SetOut(buf)
	cmd.SetArgs([]string{"--help"})

	require.NoError(t, cmd.Execute())

	output := buf.String()
	for _, sub := range []string{"up", "down", "version", "force"} {
		assert.Contains(t, output, sub, "Help missing %q command", sub)
	}
}

func TestParseForceVersion(t *testing.T) {
	tests := []struct {
		name        string
		input       string
		wantVersion int
		wantErr     bool
		wantErrCode string
	}{
		{
			name:        "valid integer",
			input:       "3",
			wantVersion: 3,
		},
		{
			name:        "zero is valid",
			input:       "0",
			wantVersion: 0,
		},
		{
			name:        "non-numeric returns error",
			input:       "abc",
			wantErr:     true,
			wantErrCode: "INVALID_VERSION",
		},
		{
			name:        "empty string returns error",
			input:       "",
			wantErr:     true,
			wantErrCode: "INVALID_VERSION",
		},
		{
			name:        "whitespace only returns error",
			input:       "   ",
			wantErr:     true,
			wantErrCode: "INVALID_VERSION",
		},
		{
			name:        "leading whitespace is handled",
			input:       "  42",
			wantVersion: 42,
		},
		{
			name:        "negative parses (store layer rejects it)",
			input:       "-1",
			wantVersion: -1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			version, err := parseForceVersion(tt.input)

			if tt.wantErr {
				require.Error(t, err)
				errutil.AssertErrorCode(t, err, tt.wantErrCode)
				assert.Equal(t, 0, version)
			} else {
				require.NoError(t, err)
				assert.Equal(t, tt.wantVersion, version)
			}
		})
	}
}

func TestMigrateDatabaseURL(t *testing.T) {
	t.Run("fails when nothing is configured", func(t *testing.T) {
		configFile = ""
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("DATABASE_URL", "")

		_, err := migrateDatabaseURL()

		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})

	t.Run("falls back to the environment", func(t *testing.T) {
		configFile = ""
		t.Setenv("XDG_CONFIG_HOME", t.TempDir())
		t.Setenv("DATABASE_URL", "postgres://localhost:5432/idlink")

		url, err := migrateDatabaseURL()

		require.NoError(t, err)
		assert.Equal(t, "postgres://localhost:5432/idlink", url)
	})

	t.Run("config file wins over the environment", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "idlink.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
database:
  url: postgres://filehost:5432/idlink
`), 0o600))
		prev := configFile
		configFile = path
		t.Cleanup(func() { configFile = prev })
		t.Setenv("DATABASE_URL", "postgres://envhost:5432/idlink")

		url, err := migrateDatabaseURL()

		require.NoError(t, err)
		assert.Equal(t, "postgres://filehost:5432/idlink", url)
	})

	t.Run("discovers the config file in the XDG directory", func(t *testing.T) {
		xdgHome := t.TempDir()
		require.NoError(t, os.MkdirAll(filepath.Join(xdgHome, "idlink"), 0o750))
		require.NoError(t, os.WriteFile(filepath.Join(xdgHome, "idlink", "config.yaml"), []byte(`
database:
  url: postgres://xdghost:5432/idlink
`), 0o600))
		configFile = ""
		t.Setenv("XDG_CONFIG_HOME", xdgHome)
		t.Setenv("DATABASE_URL", "")

		url, err := migrateDatabaseURL()

		require.NoError(t, err)
		assert.Equal(t, "postgres://xdghost:5432/idlink", url)
	})

	t.Run("fails on an invalid config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "idlink.yaml")
		require.NoError(t, os.WriteFile(path, []byte("database: [nope"), 0o600))
		prev := configFile
		configFile = path
		t.Cleanup(func() { configFile = prev })

		_, err := migrateDatabaseURL()

		require.Error(t, err)
		errutil.AssertErrorCode(t, err, "CONFIG_INVALID")
	})
}
