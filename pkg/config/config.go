// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config loads the TOML configuration of a thermonode.
package config

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"

	"github.com/Thermoquad/thermonode/pkg/hal"
)

// Config is the node configuration file
type Config struct {
	Serial  SerialConfig  `toml:"serial"`
	Timer   TimerConfig   `toml:"timer"`
	GPIO    GPIOConfig    `toml:"gpio"`
	Sensor  SensorConfig  `toml:"sensor"`
	Display DisplayConfig `toml:"display"`
	Bridge  BridgeConfig  `toml:"bridge"`
	Log     LogConfig     `toml:"log"`
}

// SerialConfig selects the link to the host
type SerialConfig struct {
	Port        string `toml:"port"`
	Baud        int    `toml:"baud"`
	URL         string `toml:"url"`
	Username    string `toml:"username"`
	NoSSLVerify bool   `toml:"no_ssl_verify"`
}

// TimerConfig sets the heartbeat / sampling period
type TimerConfig struct {
	Clock      string `toml:"clock"`
	Prescaler  uint16 `toml:"prescaler"`
	Postscaler uint8  `toml:"postscaler"`
	Compare    uint8  `toml:"compare"`
	FoscHz     uint32 `toml:"fosc_hz"`
	Exclusive  bool   `toml:"exclusive_isr"`
}

// GPIOConfig maps the button and indicator to character device lines
type GPIOConfig struct {
	Enabled    bool   `toml:"enabled"`
	Chip       string `toml:"chip"`
	Button     int    `toml:"button"`
	Indicator  int    `toml:"indicator"`
	DebounceMs int    `toml:"debounce_ms"`
}

// SensorConfig selects the ADC behind the temperature sensor
type SensorConfig struct {
	Source  string   `toml:"source"` // "sim" or "file"
	Path    string   `toml:"path"`
	Samples []uint16 `toml:"samples"`
	Drift   int      `toml:"drift"`
	Seed    int64    `toml:"seed"`
}

// DisplayConfig sets the character display
type DisplayConfig struct {
	Backlight bool `toml:"backlight"`
}

// BridgeConfig sets the optional MQTT bridge
type BridgeConfig struct {
	Broker string `toml:"broker"`
	NodeID string `toml:"node_id"`
	Queue  int    `toml:"queue"`
}

// LogConfig sets the log profile and level
type LogConfig struct {
	Profile string `toml:"profile"`
	Level   string `toml:"level"`
}

// Sensor sources
const (
	SensorSim  = "sim"
	SensorFile = "file"
)

// ConfigurationError reports an invalid setting
type ConfigurationError struct {
	Section string
	Field   string
	Reason  string
	Err     error
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config [%s]: %v", e.Section, e.Err)
	}
	return fmt.Sprintf("config [%s] %s: %s", e.Section, e.Field, e.Reason)
}

// Unwrap returns the underlying error
func (e *ConfigurationError) Unwrap() error {
	return e.Err
}

// Default returns the configuration used when no file is given
func Default() Config {
	t := hal.DefaultTimerConfig()
	return Config{
		Serial: SerialConfig{
			Baud: 115200,
		},
		Timer: TimerConfig{
			Clock:      t.ClockSource.String(),
			Prescaler:  t.Prescaler,
			Postscaler: t.Postscaler,
			Compare:    t.Compare,
			FoscHz:     hal.DefaultFoscHz,
		},
		GPIO: GPIOConfig{
			Chip:       "gpiochip0",
			Button:     4,
			Indicator:  17,
			DebounceMs: int(hal.DefaultDebounce / time.Millisecond),
		},
		Sensor: SensorConfig{
			Source: SensorSim,
			Drift:  2,
			Seed:   1,
		},
		Display: DisplayConfig{
			Backlight: true,
		},
		Bridge: BridgeConfig{
			Queue: 64,
		},
		Log: LogConfig{
			Profile: "default",
		},
	}
}

// Load reads path over the defaults and validates the result
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("config load failed (%s): %w", path, err)
	}
	meta, err := toml.Decode(string(data), &cfg)
	if err != nil {
		return Config{}, fmt.Errorf("config parse failed (%s): %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, &ConfigurationError{
			Section: undecoded[0][0],
			Field:   undecoded[0].String(),
			Reason:  "unknown key",
		}
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Write encodes cfg as TOML
func Write(w io.Writer, cfg Config) error {
	enc := toml.NewEncoder(w)
	if err := enc.Encode(cfg); err != nil {
		return fmt.Errorf("encode config: %w", err)
	}
	return nil
}

// Validate checks every section
func (c Config) Validate() error {
	if c.Serial.Port != "" && c.Serial.URL != "" {
		return &ConfigurationError{Section: "serial", Field: "port", Reason: "port and url are exclusive"}
	}
	if c.Serial.Baud <= 0 {
		return &ConfigurationError{Section: "serial", Field: "baud", Reason: "must be positive"}
	}
	if c.Serial.URL != "" && !strings.HasPrefix(c.Serial.URL, "ws://") && !strings.HasPrefix(c.Serial.URL, "wss://") {
		return &ConfigurationError{Section: "serial", Field: "url", Reason: "must use ws:// or wss://"}
	}

	tc, err := c.TimerSettings()
	if err != nil {
		return err
	}
	if _, err := tc.Period(c.Timer.FoscHz); err != nil {
		return &ConfigurationError{Section: "timer", Err: err}
	}

	if c.GPIO.Enabled {
		if strings.TrimSpace(c.GPIO.Chip) == "" {
			return &ConfigurationError{Section: "gpio", Field: "chip", Reason: "required when enabled"}
		}
		if c.GPIO.Button < 0 || c.GPIO.Indicator < 0 {
			return &ConfigurationError{Section: "gpio", Field: "button", Reason: "line offsets must not be negative"}
		}
		if c.GPIO.Button == c.GPIO.Indicator {
			return &ConfigurationError{Section: "gpio", Field: "indicator", Reason: "must differ from the button line"}
		}
	}
	if c.GPIO.DebounceMs < 0 {
		return &ConfigurationError{Section: "gpio", Field: "debounce_ms", Reason: "must not be negative"}
	}

	switch c.Sensor.Source {
	case SensorSim:
		for _, s := range c.Sensor.Samples {
			if s > hal.ADCMax {
				return &ConfigurationError{Section: "sensor", Field: "samples", Reason: fmt.Sprintf("%d exceeds %d", s, hal.ADCMax)}
			}
		}
		if c.Sensor.Drift < 0 {
			return &ConfigurationError{Section: "sensor", Field: "drift", Reason: "must not be negative"}
		}
	case SensorFile:
		if strings.TrimSpace(c.Sensor.Path) == "" {
			return &ConfigurationError{Section: "sensor", Field: "path", Reason: "required for file source"}
		}
	default:
		return &ConfigurationError{Section: "sensor", Field: "source", Reason: fmt.Sprintf("unknown source %q", c.Sensor.Source)}
	}

	if c.Bridge.Queue < 1 {
		return &ConfigurationError{Section: "bridge", Field: "queue", Reason: "must be at least 1"}
	}
	return nil
}

// TimerSettings converts the [timer] section
func (c Config) TimerSettings() (hal.TimerConfig, error) {
	clock, err := hal.ParseClockSource(c.Timer.Clock)
	if err != nil {
		return hal.TimerConfig{}, &ConfigurationError{Section: "timer", Err: err}
	}
	return hal.TimerConfig{
		ClockSource: clock,
		Prescaler:   c.Timer.Prescaler,
		Postscaler:  c.Timer.Postscaler,
		Compare:     c.Timer.Compare,
	}, nil
}

// Debounce returns the button debounce period
func (c Config) Debounce() time.Duration {
	return time.Duration(c.GPIO.DebounceMs) * time.Millisecond
}

// NewADC builds the ADC selected by the [sensor] section
func (c Config) NewADC() hal.ADC {
	if c.Sensor.Source == SensorFile {
		return hal.NewFileADC(c.Sensor.Path)
	}
	return hal.NewSimADC(c.Sensor.Samples, c.Sensor.Drift, c.Sensor.Seed)
}
