// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/thermonode/pkg/isr"
)

func TestTimerConfig_Period(t *testing.T) {
	tests := []struct {
		name     string
		cfg      TimerConfig
		fosc     uint32
		expected time.Duration
	}{
		{
			name:     "mfintosc",
			cfg:      TimerConfig{ClockSource: ClockMFINTOSC, Prescaler: 1, Postscaler: 1, Compare: 250},
			expected: 500 * time.Microsecond,
		},
		{
			name:     "fosc/4 at 32MHz",
			cfg:      TimerConfig{ClockSource: ClockFoscDiv4, Prescaler: 8, Postscaler: 4, Compare: 250},
			fosc:     DefaultFoscHz,
			expected: time.Millisecond,
		},
		{
			name:     "lfintosc",
			cfg:      TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: 64, Postscaler: 1, Compare: 250},
			expected: 516129032 * time.Nanosecond,
		},
		{
			name:     "largest period",
			cfg:      TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: MaxPrescaler, Postscaler: MaxPostscaler, Compare: 255},
			expected: time.Duration(uint64(255*MaxPrescaler*MaxPostscaler) * uint64(time.Second) / LFINTOSCHz),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.cfg.Period(tt.fosc)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestTimerConfig_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		cfg   TimerConfig
		field string
	}{
		{"clock out of range", TimerConfig{ClockSource: clockSourceCount, Prescaler: 1, Postscaler: 1, Compare: 1}, "clock source"},
		{"external clock", TimerConfig{ClockSource: ClockT0CKI, Prescaler: 1, Postscaler: 1, Compare: 1}, "clock source"},
		{"zero prescaler", TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: 0, Postscaler: 1, Compare: 1}, "prescaler"},
		{"odd prescaler", TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: 3, Postscaler: 1, Compare: 1}, "prescaler"},
		{"zero postscaler", TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: 1, Postscaler: 0, Compare: 1}, "postscaler"},
		{"large postscaler", TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: 1, Postscaler: 17, Compare: 1}, "postscaler"},
		{"zero compare", TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: 1, Postscaler: 1, Compare: 0}, "compare value"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.cfg.Period(DefaultFoscHz)
			var ce *ConfigurationError
			require.True(t, errors.As(err, &ce), "expected ConfigurationError, got %v", err)
			assert.Equal(t, tt.field, ce.Field)
		})
	}
}

func TestParseClockSource(t *testing.T) {
	c, err := ParseClockSource("LFINTOSC")
	require.NoError(t, err)
	assert.Equal(t, ClockLFINTOSC, c)

	c, err = ParseClockSource("fosc4")
	require.NoError(t, err)
	assert.Equal(t, ClockFoscDiv4, c)

	_, err = ParseClockSource("crystal")
	var ce *ConfigurationError
	assert.True(t, errors.As(err, &ce))
}

func TestTimer_StartRequiresCallback(t *testing.T) {
	timer, err := NewTimer(isr.NewVector(false), DefaultFoscHz)
	require.NoError(t, err)

	assert.ErrorIs(t, timer.Start(DefaultTimerConfig()), ErrNoCallback)
	assert.ErrorIs(t, timer.Stop(), ErrNoCallback)
	assert.ErrorIs(t, timer.RegisterTickCallback(nil), ErrNilCallback)
	assert.False(t, timer.Running())
}

func TestTimer_StartRejectsBadConfig(t *testing.T) {
	timer, err := NewTimer(isr.NewVector(false), DefaultFoscHz)
	require.NoError(t, err)
	require.NoError(t, timer.RegisterTickCallback(func() {}))

	err = timer.Start(TimerConfig{ClockSource: ClockLFINTOSC, Prescaler: 5, Postscaler: 1, Compare: 1})
	var ce *ConfigurationError
	assert.True(t, errors.As(err, &ce))
	assert.False(t, timer.Running())
}

func TestTimer_TicksThroughVector(t *testing.T) {
	v := isr.NewVector(false)
	timer, err := NewTimer(v, DefaultFoscHz)
	require.NoError(t, err)

	var ticks atomic.Int32
	require.NoError(t, timer.RegisterTickCallback(func() { ticks.Add(1) }))
	require.NoError(t, timer.Start(TimerConfig{ClockSource: ClockMFINTOSC, Prescaler: 1, Postscaler: 1, Compare: 250}))
	assert.True(t, timer.Running())

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, time.Millisecond)

	require.NoError(t, timer.Stop())
	assert.False(t, timer.Running())

	stopped := ticks.Load()
	time.Sleep(10 * time.Millisecond)
	assert.Equal(t, stopped, ticks.Load(), "no ticks after Stop")
}

func TestTimer_HandlerIgnoresForeignInterrupt(t *testing.T) {
	v := isr.NewVector(false)
	timer, err := NewTimer(v, DefaultFoscHz)
	require.NoError(t, err)

	ticks := 0
	require.NoError(t, timer.RegisterTickCallback(func() { ticks++ }))

	// Raised by another peripheral: no tick pending
	assert.Zero(t, v.Raise())
	assert.Zero(t, ticks)
}
