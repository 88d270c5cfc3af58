// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, --config and flag overrides.

The output is a valid --config file and a starting point for editing.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cfg.Write(os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(configCmd)
}
