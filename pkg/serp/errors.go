// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import (
	"errors"
	"fmt"
)

var (
	// ErrEncoding is matched by every failure to build or accept an outbound frame.
	ErrEncoding = errors.New("serp: encoding error")
	// ErrNotInitialized is returned by Send before Initialize succeeded.
	ErrNotInitialized = fmt.Errorf("%w: engine not initialized", ErrEncoding)
	// ErrTransport is matched by failures while bytes are placed on the wire.
	ErrTransport = errors.New("serp: transport error")
	// ErrNullCallback is returned when registering a nil callback.
	ErrNullCallback = errors.New("serp: nil callback")
)

// FrameErrorType classifies dropped inbound frames
type FrameErrorType int

const (
	FrameShort FrameErrorType = iota
	FrameLengthMismatch
	FrameOverflow
)

// String returns the short name of the frame error type
func (t FrameErrorType) String() string {
	switch t {
	case FrameShort:
		return "short"
	case FrameLengthMismatch:
		return "length_mismatch"
	case FrameOverflow:
		return "overflow"
	default:
		return "unknown"
	}
}

// FrameError describes an inbound frame that was dropped by the decoder
type FrameError struct {
	Type    FrameErrorType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (e *FrameError) Error() string {
	return e.Message
}
