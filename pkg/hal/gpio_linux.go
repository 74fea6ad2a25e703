// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

//go:build linux

package hal

import (
	"fmt"
	"sync"
	"time"

	"github.com/warthog618/go-gpiocdev"

	"github.com/Thermoquad/thermonode/pkg/isr"
)

// DefaultDebounce filters contact bounce on the button line
const DefaultDebounce = 20 * time.Millisecond

// GPIOButton watches a button line on a GPIO character device for falling edges.
type GPIOButton struct {
	edgeLatch
	line *gpiocdev.Line
}

// NewGPIOButton requests offset on chip as a pulled-up input with falling
// edge detection.
func NewGPIOButton(v *isr.Vector, chip string, offset int, debounce time.Duration) (*GPIOButton, error) {
	b := &GPIOButton{}
	if err := b.attach(v); err != nil {
		return nil, err
	}

	line, err := gpiocdev.RequestLine(chip, offset,
		gpiocdev.AsInput,
		gpiocdev.WithPullUp,
		gpiocdev.WithFallingEdge,
		gpiocdev.WithDebounce(debounce),
		gpiocdev.WithEventHandler(b.handleEvent),
	)
	if err != nil {
		v.Unregister(isr.PeripheralGPIO)
		return nil, fmt.Errorf("request button line %s:%d: %w", chip, offset, err)
	}
	b.line = line
	return b, nil
}

func (b *GPIOButton) handleEvent(evt gpiocdev.LineEvent) {
	if evt.Type == gpiocdev.LineEventFallingEdge {
		b.latch()
	}
}

// Close releases the line and detaches from the vector
func (b *GPIOButton) Close() error {
	b.vector.Unregister(isr.PeripheralGPIO)
	if b.line == nil {
		return nil
	}
	if err := b.line.Close(); err != nil {
		return fmt.Errorf("close button line: %w", err)
	}
	return nil
}

// GPIOIndicator drives an output line on a GPIO character device.
type GPIOIndicator struct {
	mu    sync.Mutex
	line  *gpiocdev.Line
	level bool
}

// NewGPIOIndicator requests offset on chip as an output, initially low.
func NewGPIOIndicator(chip string, offset int) (*GPIOIndicator, error) {
	line, err := gpiocdev.RequestLine(chip, offset, gpiocdev.AsOutput(0))
	if err != nil {
		return nil, fmt.Errorf("request indicator line %s:%d: %w", chip, offset, err)
	}
	return &GPIOIndicator{line: line}, nil
}

// Toggle inverts the output level
func (g *GPIOIndicator) Toggle() error {
	g.mu.Lock()
	defer g.mu.Unlock()

	value := 1
	if g.level {
		value = 0
	}
	if err := g.line.SetValue(value); err != nil {
		return fmt.Errorf("set indicator: %w", err)
	}
	g.level = !g.level
	return nil
}

// Level returns the last level written
func (g *GPIOIndicator) Level() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.level
}

// Close drives the line low and releases it
func (g *GPIOIndicator) Close() error {
	var errs []error
	if err := g.line.SetValue(0); err != nil {
		errs = append(errs, fmt.Errorf("reset indicator: %w", err))
	}
	if err := g.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close indicator line: %w", err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
