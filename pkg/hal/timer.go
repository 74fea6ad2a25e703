// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/thermonode/pkg/isr"
)

// ClockSource selects the timer input clock
type ClockSource uint8

const (
	ClockT0CKI ClockSource = iota
	ClockT0CKIInverted
	ClockFoscDiv4
	ClockHFINTOSC
	ClockLFINTOSC
	ClockSOSC
	ClockMFINTOSC
	ClockCLC1

	clockSourceCount
)

// Oscillator frequencies
const (
	DefaultFoscHz = 32_000_000
	HFINTOSCHz    = 64_000_000
	LFINTOSCHz    = 31_000
	SOSCHz        = 32_768
	MFINTOSCHz    = 500_000
)

// Timer limits
const (
	MaxPrescaler  = 32768
	MaxPostscaler = 16
)

var clockSourceNames = [...]string{
	ClockT0CKI:         "t0cki",
	ClockT0CKIInverted: "t0cki_inv",
	ClockFoscDiv4:      "fosc4",
	ClockHFINTOSC:      "hfintosc",
	ClockLFINTOSC:      "lfintosc",
	ClockSOSC:          "sosc",
	ClockMFINTOSC:      "mfintosc",
	ClockCLC1:          "clc1",
}

// String returns the clock source name used in config files
func (c ClockSource) String() string {
	if c < clockSourceCount {
		return clockSourceNames[c]
	}
	return fmt.Sprintf("clock(%d)", uint8(c))
}

// ParseClockSource parses a clock source name
func ParseClockSource(s string) (ClockSource, error) {
	for i, name := range clockSourceNames {
		if strings.EqualFold(s, name) {
			return ClockSource(i), nil
		}
	}
	return 0, &ConfigurationError{Field: "clock source", Value: s, Reason: "unknown"}
}

// TimerConfig sets the tick period:
//
//	period = Compare * Prescaler * Postscaler / clock frequency
type TimerConfig struct {
	ClockSource ClockSource
	Prescaler   uint16 // power of two, 1..32768
	Postscaler  uint8  // 1..16
	Compare     uint8
}

// DefaultTimerConfig ticks about once per second from LFINTOSC
func DefaultTimerConfig() TimerConfig {
	return TimerConfig{
		ClockSource: ClockLFINTOSC,
		Prescaler:   128,
		Postscaler:  1,
		Compare:     242,
	}
}

// Validate checks every field against the hardware ranges
func (c TimerConfig) Validate() error {
	if c.ClockSource >= clockSourceCount {
		return &ConfigurationError{Field: "clock source", Value: uint8(c.ClockSource), Reason: "out of range"}
	}
	if c.Prescaler == 0 || c.Prescaler&(c.Prescaler-1) != 0 {
		return &ConfigurationError{Field: "prescaler", Value: c.Prescaler, Reason: "must be a power of two up to 32768"}
	}
	if c.Postscaler < 1 || c.Postscaler > MaxPostscaler {
		return &ConfigurationError{Field: "postscaler", Value: c.Postscaler, Reason: "must be 1..16"}
	}
	if c.Compare == 0 {
		return &ConfigurationError{Field: "compare value", Value: c.Compare, Reason: "must be non-zero"}
	}
	return nil
}

// ClockHz returns the input clock frequency for the configured source.
// External sources have no fixed frequency.
func (c TimerConfig) ClockHz(foscHz uint32) (uint32, error) {
	switch c.ClockSource {
	case ClockFoscDiv4:
		if foscHz == 0 {
			return 0, &ConfigurationError{Field: "fosc", Value: foscHz, Reason: "must be non-zero"}
		}
		return foscHz / 4, nil
	case ClockHFINTOSC:
		return HFINTOSCHz, nil
	case ClockLFINTOSC:
		return LFINTOSCHz, nil
	case ClockSOSC:
		return SOSCHz, nil
	case ClockMFINTOSC:
		return MFINTOSCHz, nil
	default:
		return 0, &ConfigurationError{Field: "clock source", Value: c.ClockSource, Reason: "external clock cannot be simulated"}
	}
}

// Period returns the tick period for a system oscillator of foscHz
func (c TimerConfig) Period(foscHz uint32) (time.Duration, error) {
	if err := c.Validate(); err != nil {
		return 0, err
	}
	hz, err := c.ClockHz(foscHz)
	if err != nil {
		return 0, err
	}
	counts := uint64(c.Compare) * uint64(c.Prescaler) * uint64(c.Postscaler)
	return time.Duration(counts * uint64(time.Second) / uint64(hz)), nil
}

// Timer raises the timer interrupt once per configured period.
type Timer struct {
	vector  *isr.Vector
	foscHz  uint32
	logger  zerolog.Logger
	pending atomic.Bool
	cb      atomic.Pointer[func()]

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

// NewTimer creates a timer and connects it to the interrupt vector.
func NewTimer(v *isr.Vector, foscHz uint32) (*Timer, error) {
	t := &Timer{
		vector: v,
		foscHz: foscHz,
		logger: log.With().Str("component", "timer").Logger(),
	}
	if err := v.Register(isr.PeripheralTimer, t.handleInterrupt); err != nil {
		return nil, fmt.Errorf("register timer interrupt: %w", err)
	}
	return t, nil
}

// RegisterTickCallback installs the function called on every tick, from
// interrupt context.
func (t *Timer) RegisterTickCallback(fn func()) error {
	if fn == nil {
		return ErrNilCallback
	}
	t.cb.Store(&fn)
	t.pending.Store(false)
	return nil
}

// Start (re)starts the timer with cfg.
// It fails without a registered callback or with an invalid configuration.
func (t *Timer) Start(cfg TimerConfig) error {
	if t.cb.Load() == nil {
		return ErrNoCallback
	}
	period, err := cfg.Period(t.foscHz)
	if err != nil {
		return err
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.halt()
	t.stop = make(chan struct{})
	t.done = make(chan struct{})
	go t.run(period, t.stop, t.done)

	t.logger.Debug().
		Str("clock", cfg.ClockSource.String()).
		Uint16("prescaler", cfg.Prescaler).
		Uint8("postscaler", cfg.Postscaler).
		Uint8("compare", cfg.Compare).
		Dur("period", period).
		Msg("timer started")
	return nil
}

// Stop halts the timer. Stopping a timer that was never armed fails.
func (t *Timer) Stop() error {
	if t.cb.Load() == nil {
		return ErrNoCallback
	}
	t.mu.Lock()
	t.halt()
	t.mu.Unlock()
	return nil
}

// Running reports whether the timer is ticking
func (t *Timer) Running() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.stop != nil
}

// halt stops the tick goroutine; t.mu must be held
func (t *Timer) halt() {
	if t.stop == nil {
		return
	}
	close(t.stop)
	<-t.done
	t.stop = nil
	t.done = nil
}

func (t *Timer) run(period time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			t.pending.Store(true)
			t.vector.Raise()
		}
	}
}

// handleInterrupt claims the interrupt when a tick is pending
func (t *Timer) handleInterrupt() bool {
	if !t.pending.Swap(false) {
		return false
	}
	if cb := t.cb.Load(); cb != nil {
		(*cb)()
	}
	return true
}
