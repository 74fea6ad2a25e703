// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package hal holds the peripherals of a thermonode: timer, button,
// indicator, ADC, temperature sensor and character display.
//
// Each peripheral has a software implementation used by simulations and
// tests, and where it makes sense a Linux implementation backed by the GPIO
// character device or sysfs.
package hal

import (
	"errors"
	"fmt"
)

var (
	// ErrSensor is returned when a temperature reading cannot be produced.
	ErrSensor = errors.New("hal: sensor error")
	// ErrNoCallback is returned when starting a peripheral nobody listens to.
	ErrNoCallback = errors.New("hal: no callback registered")
	// ErrNilCallback is returned when registering a nil callback.
	ErrNilCallback = errors.New("hal: nil callback")
	// ErrTimeout is returned when a conversion does not complete in time.
	ErrTimeout = errors.New("hal: timeout")
	// ErrUnsupported is returned by hardware peripherals on platforms without them.
	ErrUnsupported = errors.New("hal: not supported on this platform")
)

// ConfigurationError reports an invalid peripheral setting.
// A node cannot run with one and halts.
type ConfigurationError struct {
	Field  string
	Value  interface{}
	Reason string
}

// Error implements the error interface
func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("invalid %s %v: %s", e.Field, e.Value, e.Reason)
}
