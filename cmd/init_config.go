// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/Thermoquad/hmtlnode/internal/config"
	"github.com/spf13/cobra"
)

var (
	initConfigPath  string
	initConfigForce bool
)

var initConfigCmd = &cobra.Command{
	Use:   "init-config",
	Short: "Write a default node configuration",
	Long: `Write the default node configuration as YAML.

The default configuration listens for HMTL over UDP on port 6000 and drives
an RGB output on pins 9, 10 and 11 plus a value output on pin 13. An
existing file is only replaced with --force.`,
	Args: cobra.NoArgs,
	RunE: runInitConfig,
}

func init() {
	rootCmd.AddCommand(initConfigCmd)
	initConfigCmd.Flags().StringVarP(&initConfigPath, "config", "c", "", "Config file (default: user config dir)")
	initConfigCmd.Flags().BoolVar(&initConfigForce, "force", false, "Overwrite an existing file")
}

func runInitConfig(cmd *cobra.Command, args []string) error {
	path := initConfigPath
	if path == "" {
		var err error
		if path, err = config.DefaultConfigPath(); err != nil {
			return err
		}
	}

	if !initConfigForce {
		_, err := os.Stat(path)
		if err == nil {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if !errors.Is(err, fs.ErrNotExist) {
			return err
		}
	}

	if err := config.Write(path, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Wrote %s\n", path)
	return nil
}
