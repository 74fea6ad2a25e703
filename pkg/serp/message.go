// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import (
	"bytes"
	"time"
)

// Message is one application-level unit carried by a frame.
type Message struct {
	ID        MsgID
	Payload   []byte
	Timestamp time.Time // decode time, zero for outbound messages
}

// NewMessage creates an outbound message. The payload is not copied.
func NewMessage(id MsgID, payload []byte) *Message {
	return &Message{ID: id, Payload: payload}
}

// Len returns the payload length
func (m *Message) Len() int {
	return len(m.Payload)
}

// Temperature returns the reading of a TEMPERATURE message.
func (m *Message) Temperature() (int8, bool) {
	if m.ID != MsgTemperature || len(m.Payload) != 1 {
		return 0, false
	}
	return int8(m.Payload[0]), true
}

// Text returns the payload as a string, cut at the first NUL byte.
func (m *Message) Text() string {
	if i := bytes.IndexByte(m.Payload, 0); i >= 0 {
		return string(m.Payload[:i])
	}
	return string(m.Payload)
}

// TemperaturePayload encodes a reading as the one signed byte carried by a
// TEMPERATURE message, saturating at the int8 range.
func TemperaturePayload(celsius int16) []byte {
	switch {
	case celsius > 127:
		celsius = 127
	case celsius < -128:
		celsius = -128
	}
	return []byte{byte(int8(celsius))}
}

// TextPayload encodes s as a NUL-terminated payload.
func TextPayload(s string) []byte {
	p := make([]byte, 0, len(s)+1)
	p = append(p, s...)
	return append(p, 0)
}
