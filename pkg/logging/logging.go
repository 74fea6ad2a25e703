// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package logging configures the global zerolog logger.
package logging

import (
	"io"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	EnvLogLevel     = "THERMONODE_LOG_LEVEL"
	EnvLogTimestamp = "THERMONODE_LOG_TIMESTAMP"
	EnvLogNoColor   = "THERMONODE_LOG_NOCOLOR"
)

// Profile selects the base logging configuration
type Profile int

const (
	ProfileRuntime Profile = iota
	ProfileTest
	// ProfileTUI keeps the terminal for the panel: only errors, to stderr
	ProfileTUI
)

// ParseProfile maps a config file name to a profile
func ParseProfile(name string) Profile {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "test":
		return ProfileTest
	case "tui":
		return ProfileTUI
	default:
		return ProfileRuntime
	}
}

// Config is a resolved logging configuration
type Config struct {
	Level     zerolog.Level
	Timestamp bool
	NoColor   bool
	Output    io.Writer
}

var configureOnce sync.Once

// ConfigureRuntime configures logging for the CLI
func ConfigureRuntime() {
	Configure(ProfileRuntime, "")
}

// ConfigureTests configures logging for tests
func ConfigureTests() {
	Configure(ProfileTest, "")
}

// Configure installs the global logger once. level, if non-empty, wins
// over the environment and the profile.
func Configure(profile Profile, level string) {
	configureOnce.Do(func() {
		cfg := DefaultConfig(profile)
		applyEnvOverrides(&cfg)
		if lvl, ok := ParseLevel(level); ok {
			cfg.Level = lvl
		}
		log.Logger = New(cfg)
		zerolog.SetGlobalLevel(cfg.Level)
	})
}

// DefaultConfig returns the base configuration of a profile
func DefaultConfig(profile Profile) Config {
	cfg := Config{Output: os.Stderr}
	switch profile {
	case ProfileTest:
		cfg.Level = zerolog.DebugLevel
		cfg.Timestamp = false
		cfg.NoColor = true
	case ProfileTUI:
		cfg.Level = zerolog.ErrorLevel
		cfg.Timestamp = true
		cfg.NoColor = true
	default:
		cfg.Level = zerolog.InfoLevel
		cfg.Timestamp = true
	}
	return cfg
}

// New builds a console logger from cfg
func New(cfg Config) zerolog.Logger {
	out := cfg.Output
	if out == nil {
		out = os.Stderr
	}
	w := zerolog.ConsoleWriter{
		Out:        out,
		NoColor:    cfg.NoColor,
		TimeFormat: "15:04:05.000",
	}
	ctx := zerolog.New(w).Level(cfg.Level).With()
	if cfg.Timestamp {
		ctx = ctx.Timestamp()
	}
	return ctx.Logger()
}

func applyEnvOverrides(cfg *Config) {
	if lvl, ok := ParseLevel(os.Getenv(EnvLogLevel)); ok {
		cfg.Level = lvl
	}
	if v, ok := parseBool(os.Getenv(EnvLogTimestamp)); ok {
		cfg.Timestamp = v
	}
	if v, ok := parseBool(os.Getenv(EnvLogNoColor)); ok {
		cfg.NoColor = v
	}
}

// ParseLevel parses a level name; ok is false for empty or unknown names
func ParseLevel(raw string) (zerolog.Level, bool) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "":
		return zerolog.InfoLevel, false
	case "trace":
		return zerolog.TraceLevel, true
	case "debug":
		return zerolog.DebugLevel, true
	case "info":
		return zerolog.InfoLevel, true
	case "warn", "warning":
		return zerolog.WarnLevel, true
	case "error":
		return zerolog.ErrorLevel, true
	case "disabled", "off", "none":
		return zerolog.Disabled, true
	default:
		return zerolog.InfoLevel, false
	}
}

func parseBool(raw string) (bool, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return false, false
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false, false
	}
	return v, true
}

func init() {
	zerolog.DurationFieldUnit = time.Millisecond
}
