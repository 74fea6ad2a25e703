// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/config"
	"github.com/Thermoquad/thermonode/pkg/transport"
)

var configDefaults bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective node configuration",
	Long: `Print the node configuration as TOML, after the configuration file and
command line flags are applied. Use --defaults to print the built-in defaults,
a starting point for a new file. The serial ports present on this host are
listed as a comment.`,
	RunE: runConfig,
}

func init() {
	rootCmd.AddCommand(configCmd)
	configCmd.Flags().BoolVar(&configDefaults, "defaults", false, "Print the built-in defaults")
}

func runConfig(cmd *cobra.Command, args []string) error {
	cfg := nodeConfig
	if configDefaults {
		cfg = config.Default()
	}

	if ports, err := transport.ListSerialPorts(); err == nil {
		for _, p := range ports {
			fmt.Printf("# serial port: %s\n", p)
		}
	}
	return config.Write(os.Stdout, cfg)
}
