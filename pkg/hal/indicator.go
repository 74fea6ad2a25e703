// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package hal

import (
	"sync"
)

// Indicator is the liveness output (an LED on the board).
type Indicator interface {
	Toggle() error
	Level() bool
}

// SoftIndicator keeps the output level in memory.
type SoftIndicator struct {
	mu       sync.Mutex
	level    bool
	toggles  int
	onChange func(level bool)
}

// NewSoftIndicator creates an indicator, initially low.
// onChange, if non-nil, is called after every toggle.
func NewSoftIndicator(onChange func(level bool)) *SoftIndicator {
	return &SoftIndicator{onChange: onChange}
}

// Toggle inverts the output level
func (s *SoftIndicator) Toggle() error {
	s.mu.Lock()
	s.level = !s.level
	s.toggles++
	level, hook := s.level, s.onChange
	s.mu.Unlock()

	if hook != nil {
		hook(level)
	}
	return nil
}

// Level returns the current output level
func (s *SoftIndicator) Level() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.level
}

// Toggles returns how many times the output was toggled
func (s *SoftIndicator) Toggles() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.toggles
}
