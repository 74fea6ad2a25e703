// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

// Statistics tracks frame counters for one engine.
// It is updated from the receive path and the sender, and read by monitors,
// so every method takes the lock.
type Statistics struct {
	mu   sync.Mutex
	snap StatsSnapshot
}

// StatsSnapshot is a point-in-time copy of the counters
type StatsSnapshot struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Receive counters
	TotalFrames      uint64
	Delivered        uint64
	ShortFrames      uint64
	LengthMismatches uint64
	Overflows        uint64
	RxErrors         uint64

	// Transmit counters
	Sent       uint64
	SendErrors uint64

	// Per message id
	ByID map[MsgID]uint64
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	s := &Statistics{}
	s.Reset()
	return s
}

// RecordMessage counts a delivered message
func (s *Statistics) RecordMessage(m *Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.TotalFrames++
	s.snap.Delivered++
	s.snap.ByID[m.ID]++
	s.snap.LastUpdateTime = time.Now()
}

// RecordFrameError counts a dropped frame
func (s *Statistics) RecordFrameError(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snap.TotalFrames++
	var fe *FrameError
	if errors.As(err, &fe) {
		switch fe.Type {
		case FrameShort:
			s.snap.ShortFrames++
		case FrameLengthMismatch:
			s.snap.LengthMismatches++
		case FrameOverflow:
			s.snap.Overflows++
		}
	}
	s.snap.LastUpdateTime = time.Now()
}

// RecordRxError counts a transport-level receive failure
func (s *Statistics) RecordRxError() {
	s.mu.Lock()
	s.snap.RxErrors++
	s.mu.Unlock()
}

// RecordSend counts an outbound frame
func (s *Statistics) RecordSend(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err != nil {
		s.snap.SendErrors++
		return
	}
	s.snap.Sent++
}

// Snapshot returns a copy of the counters
func (s *Statistics) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.snap
	snap.ByID = make(map[MsgID]uint64, len(s.snap.ByID))
	for id, n := range s.snap.ByID {
		snap.ByID[id] = n
	}
	return snap
}

// Dropped returns the number of frames dropped by the decoder
func (s StatsSnapshot) Dropped() uint64 {
	return s.ShortFrames + s.LengthMismatches + s.Overflows
}

// FrameRate returns delivered frames per second since start
func (s StatsSnapshot) FrameRate() float64 {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed <= 0 {
		return 0
	}
	return float64(s.Delivered) / elapsed
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	snap := s.Snapshot()

	var deliveredPercent float64
	if snap.TotalFrames > 0 {
		deliveredPercent = float64(snap.Delivered) * 100.0 / float64(snap.TotalFrames)
	}

	elapsed := time.Since(snap.StartTime)

	result := fmt.Sprintf("=== Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Total Frames:    %8d\n", snap.TotalFrames)
	result += fmt.Sprintf("Delivered:       %8d (%.1f%%)\n", snap.Delivered, deliveredPercent)

	if dropped := snap.Dropped(); dropped > 0 {
		result += fmt.Sprintf("Dropped:         %8d\n", dropped)
		if snap.ShortFrames > 0 {
			result += fmt.Sprintf("  Short:            %5d\n", snap.ShortFrames)
		}
		if snap.LengthMismatches > 0 {
			result += fmt.Sprintf("  Length Mismatch:  %5d\n", snap.LengthMismatches)
		}
		if snap.Overflows > 0 {
			result += fmt.Sprintf("  Overflow:         %5d\n", snap.Overflows)
		}
	}
	if snap.RxErrors > 0 {
		result += fmt.Sprintf("Receive Errors:  %8d\n", snap.RxErrors)
	}

	result += fmt.Sprintf("Sent:            %8d\n", snap.Sent)
	if snap.SendErrors > 0 {
		result += fmt.Sprintf("Send Errors:     %8d\n", snap.SendErrors)
	}
	result += fmt.Sprintf("Frame Rate:      %8.1f frames/sec\n", snap.FrameRate())
	result += "================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	now := time.Now()
	s.mu.Lock()
	s.snap = StatsSnapshot{
		StartTime:      now,
		LastUpdateTime: now,
		ByID:           make(map[MsgID]uint64),
	}
	s.mu.Unlock()
}
