// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 idlink Contributors

package main

import (
	"os"

	"github.com/samber/oops"
	"github.com/spf13/cobra"

	"github.com/idlink/idlink/internal/config"
)

// NewConfigCmd creates the config subcommand.
func NewConfigCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect and validate configuration",
	}

	cmd.AddCommand(newConfigSchemaCmd())
	cmd.AddCommand(newConfigValidateCmd())

	return cmd
}

func newConfigSchemaCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "schema",
		Short: "Print the config file JSON schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			schema, err := config.GenerateSchema()
			if err != nil {
				return oops.Code("SCHEMA_GENERATION_FAILED").Wrap(err)
			}
			cmd.Println(string(schema))
			return nil
		},
	}
}

func newConfigValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate [file]",
		Short: "Validate a config file",
		Long: `Validate a config file against the schema and semantic rules.
Without an argument, validates --config or the file in the XDG config
directory.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := resolveConfigFile()
			if len(args) == 1 {
				path = args[0]
			}
			if path == "" {
				return oops.Code("CONFIG_INVALID").
					Errorf("no config file: pass a path or set --config")
			}

			data, err := os.ReadFile(path)
			if err != nil {
				return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
			}
			if err := config.ValidateSchema(data); err != nil {
				return oops.Code("CONFIG_INVALID").
					With("path", path).
					Errorf("%s", config.FormatSchemaError(err))
			}

			cfg, err := config.Load(path, nil)
			if err != nil {
				return oops.Code("CONFIG_INVALID").Wrap(err)
			}
			if err := cfg.Validate(); err != nil {
				return oops.Code("CONFIG_INVALID").With("path", path).Wrap(err)
			}

			cmd.Printf("%s is valid\n", path)
			return nil
		},
	}
}
