// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"strconv"
	"strings"
	"sync"
	"time"
)

// ADCMax is the largest 10-bit conversion result
const ADCMax = 1023

// ADC returns raw conversion results.
type ADC interface {
	// RawValue blocks until a conversion completes or timeout elapses.
	RawValue(timeout time.Duration) (uint16, error)
}

// SimADC returns scripted samples, then drifts around the last one.
type SimADC struct {
	mu      sync.Mutex
	samples []uint16
	index   int
	last    uint16
	drift   int
	rng     *rand.Rand

	// ReadError, if set, is returned by RawValue.
	ReadError error
}

// NewSimADC creates a simulated ADC.
// Once samples are exhausted each reading moves the last value by up to
// ±drift counts, staying inside the 10-bit range.
func NewSimADC(samples []uint16, drift int, seed int64) *SimADC {
	last := uint16(155) // ~ 0 °C on an MCP9700
	if len(samples) > 0 {
		last = samples[0]
	}
	return &SimADC{
		samples: samples,
		last:    last,
		drift:   drift,
		rng:     rand.New(rand.NewSource(seed)),
	}
}

// RawValue returns the next sample
func (s *SimADC) RawValue(timeout time.Duration) (uint16, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ReadError != nil {
		return 0, s.ReadError
	}

	if s.index < len(s.samples) {
		s.last = s.samples[s.index]
		s.index++
		return s.last, nil
	}

	if s.drift > 0 {
		v := int(s.last) + s.rng.Intn(2*s.drift+1) - s.drift
		switch {
		case v < 0:
			v = 0
		case v > ADCMax:
			v = ADCMax
		}
		s.last = uint16(v)
	}
	return s.last, nil
}

// Set drops any remaining script and continues drifting from raw.
func (s *SimADC) Set(raw uint16) {
	if raw > ADCMax {
		raw = ADCMax
	}
	s.mu.Lock()
	s.samples = nil
	s.index = 0
	s.last = raw
	s.mu.Unlock()
}

// SetError makes subsequent readings fail with err, or succeed again with nil
func (s *SimADC) SetError(err error) {
	s.mu.Lock()
	s.ReadError = err
	s.mu.Unlock()
}

// FileADC reads a raw conversion from a sysfs IIO channel file such as
// /sys/bus/iio/devices/iio:device0/in_voltage0_raw.
type FileADC struct {
	path string
}

// NewFileADC creates an ADC reading path
func NewFileADC(path string) *FileADC {
	return &FileADC{path: path}
}

// RawValue reads and parses the channel file
func (f *FileADC) RawValue(timeout time.Duration) (uint16, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	type result struct {
		value uint16
		err   error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := f.read()
		ch <- result{v, err}
	}()

	select {
	case r := <-ch:
		return r.value, r.err
	case <-ctx.Done():
		return 0, fmt.Errorf("read %s: %w", f.path, ErrTimeout)
	}
}

func (f *FileADC) read() (uint16, error) {
	data, err := os.ReadFile(f.path)
	if err != nil {
		return 0, fmt.Errorf("read adc: %w", err)
	}
	v, err := strconv.ParseUint(strings.TrimSpace(string(data)), 10, 16)
	if err != nil {
		return 0, fmt.Errorf("parse adc value %q: %w", strings.TrimSpace(string(data)), err)
	}
	if v > ADCMax {
		return 0, fmt.Errorf("adc value %d out of range", v)
	}
	return uint16(v), nil
}

var errNoADC = errors.New("no adc configured")
