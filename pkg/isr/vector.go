// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package isr provides the shared interrupt vector of a thermonode.
//
// Peripheral goroutines latch their own pending condition and call Raise.
// The vector then scans the registered handlers in priority order, one
// interrupt at a time, and each handler checks and clears its own flag.
package isr

import (
	"errors"
	"fmt"
	"sync"
)

// Peripheral identifies a handler slot. Declaration order is priority order.
type Peripheral int

const (
	PeripheralTimer Peripheral = iota
	PeripheralSerial
	PeripheralGPIO

	peripheralCount
)

// String returns the peripheral name
func (p Peripheral) String() string {
	switch p {
	case PeripheralTimer:
		return "timer"
	case PeripheralSerial:
		return "serial"
	case PeripheralGPIO:
		return "gpio"
	default:
		return fmt.Sprintf("peripheral(%d)", int(p))
	}
}

// Valid reports whether p names a vector slot
func (p Peripheral) Valid() bool {
	return p >= PeripheralTimer && p < peripheralCount
}

// Handler checks whether its peripheral raised the interrupt and services it.
// It returns true when the interrupt was its own.
type Handler func() bool

var (
	// ErrNilHandler is returned when registering a nil handler.
	ErrNilHandler = errors.New("isr: nil handler")
	// ErrInvalidPeripheral is returned for peripherals outside the vector.
	ErrInvalidPeripheral = errors.New("isr: invalid peripheral")
)

// Vector dispatches raised interrupts to the registered handlers.
type Vector struct {
	// run serializes handler chains: no handler preempts another
	run sync.Mutex

	mu        sync.RWMutex
	handlers  [peripheralCount]Handler
	exclusive bool
}

// NewVector creates an interrupt vector.
// In exclusive mode a scan stops at the first handler that claims the
// interrupt; otherwise every registered handler runs on each Raise.
func NewVector(exclusive bool) *Vector {
	return &Vector{exclusive: exclusive}
}

// Register installs h for peripheral p, replacing any previous handler.
func (v *Vector) Register(p Peripheral, h Handler) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPeripheral, int(p))
	}
	if h == nil {
		return ErrNilHandler
	}
	v.mu.Lock()
	v.handlers[p] = h
	v.mu.Unlock()
	return nil
}

// Unregister removes the handler for peripheral p.
func (v *Vector) Unregister(p Peripheral) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %d", ErrInvalidPeripheral, int(p))
	}
	v.mu.Lock()
	v.handlers[p] = nil
	v.mu.Unlock()
	return nil
}

// Raise runs one interrupt scan and returns how many handlers claimed it.
// Safe to call from any goroutine; concurrent raises are serialized.
func (v *Vector) Raise() int {
	v.mu.RLock()
	handlers := v.handlers
	v.mu.RUnlock()

	v.run.Lock()
	defer v.run.Unlock()

	claimed := 0
	for _, h := range handlers {
		if h == nil {
			continue
		}
		if h() {
			claimed++
			if v.exclusive {
				break
			}
		}
	}
	return claimed
}
