// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import "fmt"

// Encode creates a complete wire-formatted frame for a message.
// Returns the frame bytes ready for transmission, including delimiters and escapes.
func Encode(id MsgID, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: payload too large: %d bytes (max %d)", ErrEncoding, len(payload), MaxPayloadSize)
	}

	length := uint16(len(payload))

	// Worst case every header and payload byte is escaped
	frame := make([]byte, 0, 2+2*(HeaderSize+len(payload)))
	frame = append(frame, StartByte)
	frame = stuffBytes(frame, byte(id), byte(length), byte(length>>8))
	frame = stuffBytes(frame, payload...)
	frame = append(frame, StopByte)

	return frame, nil
}

// EncodeMessage encodes an existing Message to wire format.
func EncodeMessage(m *Message) ([]byte, error) {
	return Encode(m.ID, m.Payload)
}

// stuffBytes appends data to dst, escaping the reserved byte values.
func stuffBytes(dst []byte, data ...byte) []byte {
	for _, b := range data {
		if isReserved(b) {
			dst = append(dst, EscapeByte)
		}
		dst = append(dst, b)
	}
	return dst
}

func isReserved(b byte) bool {
	return b == StartByte || b == StopByte || b == EscapeByte
}
