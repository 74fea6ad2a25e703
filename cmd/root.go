// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/config"
	"github.com/Thermoquad/thermonode/pkg/logging"
)

var (
	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	configPath string
	logLevel   string

	// nodeConfig is the loaded configuration with flags applied
	nodeConfig config.Config
)

var rootCmd = &cobra.Command{
	Use:   "thermonode",
	Short: "Thermal sensor node and SERP link tools",
	Long: `Thermonode - A thermal sensor node speaking the SERP serial protocol.

Runs the node (button, indicator, temperature sensor and character display
behind a SERP link) and provides host-side tools to monitor the link, send
commands and simulate a node without hardware.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]

For WebSocket authentication, the password is read from the THERMONODE_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadSettings,
}

func init() {
	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Node configuration file (TOML)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level (trace, debug, info, warn, error, off)")
}

// loadSettings reads the config file, lets explicit flags override it and
// configures logging.
func loadSettings(cmd *cobra.Command, args []string) error {
	cfg := config.Default()
	if configPath != "" {
		var err error
		cfg, err = config.Load(configPath)
		if err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		cfg.Serial.Port = portName
		cfg.Serial.URL = ""
	}
	if flags.Changed("baud") {
		cfg.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		cfg.Serial.URL = wsURL
		cfg.Serial.Port = ""
	}
	if flags.Changed("username") {
		cfg.Serial.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		cfg.Serial.NoSSLVerify = wsNoSSLVerify
	}
	if logLevel != "" {
		if _, ok := logging.ParseLevel(logLevel); !ok {
			return fmt.Errorf("unknown log level %q", logLevel)
		}
		cfg.Log.Level = logLevel
	}

	profile := logging.ParseProfile(cfg.Log.Profile)
	if tuiMode {
		profile = logging.ProfileTUI
	}
	logging.Configure(profile, cfg.Log.Level)

	nodeConfig = cfg
	return cfg.Validate()
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
