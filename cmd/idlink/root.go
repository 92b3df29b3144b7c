// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/idlink/idlink/internal/xdg"
)

// Global flags available to all subcommands.
var configFile string

// resolveConfigFile returns the explicit --config path, or the config file
// in the XDG config directory when one exists. An empty return means no
// config file: defaults and flags alone apply.
func resolveConfigFile() string {
	if configFile != "" {
		return configFile
	}
	candidate := filepath.Join(xdg.ConfigDir(), "config.yaml")
	if _, err := os.Stat(candidate); err == nil {
		return candidate
	}
	return ""
}

// NewRootCmd creates the root command for the idlink CLI.
func NewRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "idlink",
		Short: "idlink - social login and identity linking",
		Long: `idlink is an authentication service that verifies OAuth2/OIDC
identities against social providers (Google, GitHub, Facebook, LinkedIn),
links them to local accounts, and issues JWT sessions.`,
	}

	// Global flag for config file path
	cmd.PersistentFlags().StringVar(&configFile, "config", "",
		"config file path (default: $XDG_CONFIG_HOME/idlink/config.yaml if present)")

	// Add subcommands
	cmd.AddCommand(NewServeCmd())
	cmd.AddCommand(NewMigrateCmd())
	cmd.AddCommand(NewConfigCmd())
	cmd.AddCommand(NewVersionCmd())

	return cmd
}
