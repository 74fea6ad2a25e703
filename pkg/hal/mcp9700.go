// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// MCP9700 transfer limits with a 3.3 V reference and 10-bit ADC
const (
	mcpADCMin  = 31
	mcpADCMax  = 558
	mcpTempMin = -40
	mcpTempMax = 125

	// SensorTimeout bounds one conversion
	SensorTimeout = time.Second
)

// MCP9700 converts readings of an analog MCP9700 sensor to °C.
type MCP9700 struct {
	adc    ADC
	logger zerolog.Logger
}

// NewMCP9700 creates a sensor reading from adc
func NewMCP9700(adc ADC) *MCP9700 {
	return &MCP9700{
		adc:    adc,
		logger: log.With().Str("component", "mcp9700").Logger(),
	}
}

// Temperature returns the current temperature in whole degrees Celsius.
// Any ADC failure is reported as ErrSensor.
func (m *MCP9700) Temperature() (int16, error) {
	raw, err := m.RawValue()
	if err != nil {
		return 0, err
	}
	return ConvertMCP9700(raw), nil
}

// RawValue returns the unconverted ADC reading
func (m *MCP9700) RawValue() (uint16, error) {
	if m.adc == nil {
		return 0, fmt.Errorf("%w: %w", ErrSensor, errNoADC)
	}
	raw, err := m.adc.RawValue(SensorTimeout)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", ErrSensor, err)
	}
	m.logger.Trace().Uint16("raw", raw).Msg("adc value")
	return raw, nil
}

// ConvertMCP9700 interpolates a raw reading linearly between the sensor
// limits, clamping outside them.
func ConvertMCP9700(raw uint16) int16 {
	switch {
	case raw <= mcpADCMin:
		return mcpTempMin
	case raw >= mcpADCMax:
		return mcpTempMax
	}
	span := int32(mcpTempMax - mcpTempMin)
	return int16(mcpTempMin + (int32(raw)-mcpADCMin)*span/(mcpADCMax-mcpADCMin))
}
