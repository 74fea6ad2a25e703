// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import (
	"encoding/binary"
	"fmt"
	"time"
)

// Decoder implements the SERP receive state machine.
// A Decoder is not safe for concurrent use; it belongs to the receive path.
type Decoder struct {
	state  int
	buffer []byte
	index  int
}

// NewDecoder creates a new protocol decoder
func NewDecoder() *Decoder {
	return &Decoder{
		state:  stateIdle,
		buffer: make([]byte, bufferCapacity),
	}
}

// Reset drops any partial frame and returns the decoder to idle
func (d *Decoder) Reset() {
	d.state = stateIdle
	d.index = 0
}

// Idle reports whether the decoder is waiting for a START byte
func (d *Decoder) Idle() bool {
	return d.state == stateIdle
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed message, or nil while a frame is incomplete.
// Returns a *FrameError when a frame is dropped; the decoder is idle again
// afterwards and no further action is needed.
func (d *Decoder) DecodeByte(b byte) (*Message, error) {
	switch d.state {
	case stateIdle:
		// Anything but START is line noise
		if b == StartByte {
			d.index = 0
			d.state = stateAccumulating
		}
		return nil, nil

	case stateAccumulating:
		switch b {
		case StopByte:
			d.state = stateIdle
			return d.assemble()
		case EscapeByte:
			d.state = stateEscapePending
			return nil, nil
		}
		return nil, d.store(b)

	case stateEscapePending:
		d.state = stateAccumulating
		return nil, d.store(b)

	default:
		d.Reset()
		return nil, fmt.Errorf("invalid state: %d", d.state)
	}
}

// store appends one unescaped byte to the accumulation buffer
func (d *Decoder) store(b byte) error {
	if d.index >= len(d.buffer) {
		d.Reset()
		return &FrameError{
			Type:    FrameOverflow,
			Message: fmt.Sprintf("buffer overflow: frame exceeds %d bytes", bufferCapacity),
			Details: map[string]interface{}{"capacity": bufferCapacity},
		}
	}
	d.buffer[d.index] = b
	d.index++
	return nil
}

// assemble interprets the accumulated bytes as [id, len LSB, len MSB, payload...]
func (d *Decoder) assemble() (*Message, error) {
	n := d.index
	d.index = 0

	if n < HeaderSize {
		return nil, &FrameError{
			Type:    FrameShort,
			Message: fmt.Sprintf("frame too short: %d bytes (min %d)", n, HeaderSize),
			Details: map[string]interface{}{"length": n, "minimum": HeaderSize},
		}
	}

	declared := int(binary.LittleEndian.Uint16(d.buffer[1:HeaderSize]))
	actual := n - HeaderSize
	if declared != actual {
		return nil, &FrameError{
			Type:    FrameLengthMismatch,
			Message: fmt.Sprintf("length mismatch: declared %d, received %d", declared, actual),
			Details: map[string]interface{}{"declared": declared, "received": actual, "msg_id": d.buffer[0]},
		}
	}

	payload := make([]byte, actual)
	copy(payload, d.buffer[HeaderSize:n])

	return &Message{
		ID:        MsgID(d.buffer[0]),
		Payload:   payload,
		Timestamp: time.Now(),
	}, nil
}
