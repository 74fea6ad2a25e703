// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build !linux

package hal

import (
	"time"

	"github.com/Thermoquad/thermonode/pkg/isr"
)

// DefaultDebounce filters contact bounce on the button line
const DefaultDebounce = 20 * time.Millisecond

// GPIOButton is not available on non-Linux platforms.
type GPIOButton struct {
	edgeLatch
}

// NewGPIOButton returns ErrUnsupported on non-Linux platforms.
func NewGPIOButton(v *isr.Vector, chip string, offset int, debounce time.Duration) (*GPIOButton, error) {
	return nil, ErrUnsupported
}

// Close is a no-op on non-Linux platforms.
func (b *GPIOButton) Close() error {
	return nil
}

// GPIOIndicator is not available on non-Linux platforms.
type GPIOIndicator struct{}

// NewGPIOIndicator returns ErrUnsupported on non-Linux platforms.
func NewGPIOIndicator(chip string, offset int) (*GPIOIndicator, error) {
	return nil, ErrUnsupported
}

// Toggle is not implemented on non-Linux platforms.
func (g *GPIOIndicator) Toggle() error {
	return ErrUnsupported
}

// Level is not implemented on non-Linux platforms.
func (g *GPIOIndicator) Level() bool {
	return false
}

// Close is a no-op on non-Linux platforms.
func (g *GPIOIndicator) Close() error {
	return nil
}
