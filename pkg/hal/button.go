// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"fmt"
	"sync/atomic"

	"github.com/Thermoquad/thermonode/pkg/isr"
)

// EdgeFunc is called from interrupt context on a button press.
// It returns true when it handled the event.
type EdgeFunc func(p isr.Peripheral) bool

// Button is a push-button that reports falling edges.
type Button interface {
	RegisterEdgeCallback(fn EdgeFunc) error
}

// edgeLatch is the interrupt flag shared by the button implementations.
type edgeLatch struct {
	vector  *isr.Vector
	pending atomic.Bool
	cb      atomic.Pointer[EdgeFunc]
}

func (l *edgeLatch) attach(v *isr.Vector) error {
	l.vector = v
	if err := v.Register(isr.PeripheralGPIO, l.handleInterrupt); err != nil {
		return fmt.Errorf("register gpio interrupt: %w", err)
	}
	return nil
}

// RegisterEdgeCallback installs the press handler, replacing any previous one
func (l *edgeLatch) RegisterEdgeCallback(fn EdgeFunc) error {
	if fn == nil {
		return ErrNilCallback
	}
	l.cb.Store(&fn)
	return nil
}

// latch marks an edge and raises the vector
func (l *edgeLatch) latch() {
	l.pending.Store(true)
	l.vector.Raise()
}

func (l *edgeLatch) handleInterrupt() bool {
	if !l.pending.Swap(false) {
		return false
	}
	if cb := l.cb.Load(); cb != nil {
		(*cb)(isr.PeripheralGPIO)
	}
	return true
}

// SoftButton is a button pressed by software: the TUI, simulations and tests.
type SoftButton struct {
	edgeLatch
	presses atomic.Uint64
}

// NewSoftButton creates a software button on the GPIO interrupt line.
func NewSoftButton(v *isr.Vector) (*SoftButton, error) {
	b := &SoftButton{}
	if err := b.attach(v); err != nil {
		return nil, err
	}
	return b, nil
}

// Press simulates one falling edge
func (b *SoftButton) Press() {
	b.presses.Add(1)
	b.latch()
}

// Presses returns the number of presses so far
func (b *SoftButton) Presses() uint64 {
	return b.presses.Load()
}
