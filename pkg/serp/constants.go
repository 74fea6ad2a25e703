// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package serp implements the SERP serial framing protocol spoken by a
// thermonode and its host.
//
// A frame carries one message: START, message id, 16-bit little-endian payload
// length, payload, STOP. Any byte between the delimiters that equals START,
// STOP or ESCAPE is preceded by one ESCAPE byte on the wire. There is no
// checksum; corrupted frames are caught by the declared length only.
package serp

import "time"

// Protocol framing bytes
const (
	StartByte  = 0x6F
	StopByte   = 0x65
	EscapeByte = 0x64
)

// Frame size limits
const (
	MaxPayloadSize = 50
	HeaderSize     = 3 // msg id + length LSB + length MSB

	// Receive accumulation capacity: header plus the largest payload.
	bufferCapacity = MaxPayloadSize + HeaderSize
)

// ByteTimeout bounds the transmission of a single frame byte.
const ByteTimeout = 100 * time.Millisecond

// MsgID identifies the message carried by a frame.
type MsgID uint8

// Message identifiers
const (
	MsgStartMeasure MsgID = 17
	MsgStopMeasure  MsgID = 18
	MsgLiveSign     MsgID = 19
	MsgCustom       MsgID = 20
	MsgTemperature  MsgID = 21
)

// Decoder states (internal)
const (
	stateIdle = iota
	stateAccumulating
	stateEscapePending
)
