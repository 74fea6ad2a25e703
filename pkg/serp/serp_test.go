// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import (
	"bytes"
	"errors"
	"testing"
)

// ============================================================
// Test Helpers
// ============================================================

// decodeAll feeds data through a fresh decoder and collects results
func decodeAll(t *testing.T, data []byte) ([]*Message, []error) {
	t.Helper()
	d := NewDecoder()
	var msgs []*Message
	var errs []error
	for _, b := range data {
		m, err := d.DecodeByte(b)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if m != nil {
			msgs = append(msgs, m)
		}
	}
	return msgs, errs
}

func mustEncode(t *testing.T, id MsgID, payload []byte) []byte {
	t.Helper()
	frame, err := Encode(id, payload)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}
	return frame
}

// ============================================================
// Decoder Scenarios
// ============================================================

func TestDecoder_LiveSignEmptyPayload(t *testing.T) {
	msgs, errs := decodeAll(t, []byte{0x6F, 0x13, 0x00, 0x00, 0x65})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != MsgLiveSign {
		t.Errorf("expected LIVE_SIGN (19), got %d", msgs[0].ID)
	}
	if msgs[0].Len() != 0 {
		t.Errorf("expected empty payload, got %v", msgs[0].Payload)
	}
}

func TestDecoder_EscapedPayload(t *testing.T) {
	msgs, errs := decodeAll(t, []byte{0x6F, 0x14, 0x02, 0x00, 0x64, 0x6F, 0x41, 0x65})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %d", len(msgs))
	}
	if msgs[0].ID != MsgCustom {
		t.Errorf("expected CUSTOM (20), got %d", msgs[0].ID)
	}
	if !bytes.Equal(msgs[0].Payload, []byte{0x6F, 0x41}) {
		t.Errorf("expected payload [6F 41], got % X", msgs[0].Payload)
	}
}

func TestDecoder_IgnoresBytesWhileIdle(t *testing.T) {
	stream := []byte{0x00, 0x65, 0x64, 0xFF, 0x13}
	stream = append(stream, 0x6F, 0x13, 0x00, 0x00, 0x65)

	msgs, errs := decodeAll(t, stream)
	if len(errs) != 0 {
		t.Fatalf("noise before START should be silent, got %v", errs)
	}
	if len(msgs) != 1 || msgs[0].ID != MsgLiveSign {
		t.Fatalf("expected one LIVE_SIGN after noise, got %v", msgs)
	}
}

func TestDecoder_BackToBackFrames(t *testing.T) {
	first := mustEncode(t, MsgCustom, []byte{0x01, 0x02, 0x03})
	second := mustEncode(t, MsgTemperature, []byte{0xE9})

	msgs, errs := decodeAll(t, append(first, second...))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(msgs) != 2 {
		t.Fatalf("expected 2 messages, got %d", len(msgs))
	}
	if msgs[0].ID != MsgCustom || !bytes.Equal(msgs[0].Payload, []byte{0x01, 0x02, 0x03}) {
		t.Errorf("first message wrong: id=%d payload=% X", msgs[0].ID, msgs[0].Payload)
	}
	if msgs[1].ID != MsgTemperature || !bytes.Equal(msgs[1].Payload, []byte{0xE9}) {
		t.Errorf("second message wrong: id=%d payload=% X", msgs[1].ID, msgs[1].Payload)
	}

	// Payloads must not alias the decoder buffer
	msgs[0].Payload[0] = 0xAA
	if msgs[1].Payload[0] != 0xE9 {
		t.Error("messages share payload storage")
	}
}

func TestDecoder_OverflowResetsSilently(t *testing.T) {
	d := NewDecoder()
	stream := []byte{StartByte}
	for i := 0; i < bufferCapacity+10; i++ {
		stream = append(stream, 0x01)
	}
	stream = append(stream, StopByte)

	overflows := 0
	for _, b := range stream {
		m, err := d.DecodeByte(b)
		if m != nil {
			t.Fatalf("overflowing frame must not be delivered, got %+v", m)
		}
		var fe *FrameError
		if errors.As(err, &fe) {
			if fe.Type != FrameOverflow {
				t.Errorf("expected overflow error, got %v", fe.Type)
			}
			overflows++
		}
	}

	if overflows != 1 {
		t.Errorf("expected exactly 1 overflow, got %d", overflows)
	}
	if !d.Idle() {
		t.Error("decoder should be idle after overflow")
	}
}

func TestDecoder_OverflowDuringEscape(t *testing.T) {
	d := NewDecoder()
	d.DecodeByte(StartByte)
	for i := 0; i < bufferCapacity; i++ {
		if _, err := d.DecodeByte(0x01); err != nil {
			t.Fatalf("byte %d: unexpected error: %v", i, err)
		}
	}

	if _, err := d.DecodeByte(EscapeByte); err != nil {
		t.Fatalf("escape should not overflow by itself: %v", err)
	}
	_, err := d.DecodeByte(0x6F)
	var fe *FrameError
	if !errors.As(err, &fe) || fe.Type != FrameOverflow {
		t.Fatalf("expected overflow on escaped byte, got %v", err)
	}
	if !d.Idle() {
		t.Error("decoder should be idle after overflow")
	}
}

func TestDecoder_MaxPayloadFits(t *testing.T) {
	payload := bytes.Repeat([]byte{EscapeByte}, MaxPayloadSize)
	msgs, errs := decodeAll(t, mustEncode(t, MsgCustom, payload))
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Payload, payload) {
		t.Fatal("max-size payload did not round trip")
	}
}

func TestDecoder_DropsBadFrames(t *testing.T) {
	tests := []struct {
		name     string
		data     []byte
		expected FrameErrorType
	}{
		{
			name:     "empty frame",
			data:     []byte{0x6F, 0x65},
			expected: FrameShort,
		},
		{
			name:     "id only",
			data:     []byte{0x6F, 0x14, 0x65},
			expected: FrameShort,
		},
		{
			name:     "declared longer than received",
			data:     []byte{0x6F, 0x14, 0x05, 0x00, 0x41, 0x65},
			expected: FrameLengthMismatch,
		},
		{
			name:     "declared shorter than received",
			data:     []byte{0x6F, 0x14, 0x00, 0x00, 0x41, 0x42, 0x65},
			expected: FrameLengthMismatch,
		},
		{
			name:     "length msb set",
			data:     []byte{0x6F, 0x14, 0x01, 0x01, 0x41, 0x65},
			expected: FrameLengthMismatch,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, errs := decodeAll(t, tt.data)
			if len(msgs) != 0 {
				t.Fatalf("bad frame must not be delivered, got %d messages", len(msgs))
			}
			if len(errs) != 1 {
				t.Fatalf("expected 1 error, got %v", errs)
			}
			var fe *FrameError
			if !errors.As(errs[0], &fe) {
				t.Fatalf("expected *FrameError, got %T", errs[0])
			}
			if fe.Type != tt.expected {
				t.Errorf("expected %s, got %s", tt.expected, fe.Type)
			}
		})
	}
}

func TestDecoder_RecoversAfterBadFrame(t *testing.T) {
	stream := []byte{0x6F, 0x14, 0x05, 0x00, 0x41, 0x65}
	stream = append(stream, mustEncode(t, MsgLiveSign, nil)...)

	msgs, errs := decodeAll(t, stream)
	if len(errs) != 1 {
		t.Errorf("expected 1 dropped frame, got %d", len(errs))
	}
	if len(msgs) != 1 || msgs[0].ID != MsgLiveSign {
		t.Fatalf("expected LIVE_SIGN after bad frame, got %v", msgs)
	}
}

func TestDecoder_StartByteInsideFrameIsData(t *testing.T) {
	// An unescaped START while accumulating is stored, not a resync
	msgs, errs := decodeAll(t, []byte{0x6F, 0x14, 0x01, 0x00, 0x6F, 0x65})
	if len(errs) != 0 {
		t.Fatalf("unexpected errors: %v", errs)
	}
	if len(msgs) != 1 || !bytes.Equal(msgs[0].Payload, []byte{0x6F}) {
		t.Fatalf("expected payload [6F], got %v", msgs)
	}
}

// ============================================================
// Encoder Tests
// ============================================================

func TestEncode_Layout(t *testing.T) {
	frame := mustEncode(t, MsgTemperature, []byte{0x17})
	expected := []byte{StartByte, 0x15, 0x01, 0x00, 0x17, StopByte}
	if !bytes.Equal(frame, expected) {
		t.Errorf("expected % X, got % X", expected, frame)
	}
}

func TestEncode_EscapesReservedPayloadBytes(t *testing.T) {
	frame := mustEncode(t, MsgCustom, []byte{StartByte, 0x41, StopByte, EscapeByte})
	expected := []byte{
		StartByte, 0x14, 0x04, 0x00,
		EscapeByte, StartByte,
		0x41,
		EscapeByte, StopByte,
		EscapeByte, EscapeByte,
		StopByte,
	}
	if !bytes.Equal(frame, expected) {
		t.Errorf("expected % X, got % X", expected, frame)
	}
}

func TestEncode_EscapesReservedHeaderBytes(t *testing.T) {
	frame := mustEncode(t, MsgID(StopByte), nil)
	expected := []byte{StartByte, EscapeByte, StopByte, 0x00, 0x00, StopByte}
	if !bytes.Equal(frame, expected) {
		t.Errorf("expected % X, got % X", expected, frame)
	}

	msgs, errs := decodeAll(t, frame)
	if len(errs) != 0 || len(msgs) != 1 {
		t.Fatalf("expected 1 message, got %v / %v", msgs, errs)
	}
	if msgs[0].ID != MsgID(StopByte) {
		t.Errorf("expected id 0x65, got 0x%02X", uint8(msgs[0].ID))
	}
}

func TestEncode_HelloWorldGreeting(t *testing.T) {
	payload := TextPayload("Hello World")
	if len(payload) != 12 {
		t.Fatalf("greeting should be 12 bytes with terminator, got %d", len(payload))
	}

	frame := mustEncode(t, MsgCustom, payload)
	// 'e', 'o', 'o', 'd' are reserved values
	if len(frame) != 1+HeaderSize+len(payload)+4+1 {
		t.Errorf("unexpected frame length %d: % X", len(frame), frame)
	}

	msgs, _ := decodeAll(t, frame)
	if len(msgs) != 1 || msgs[0].Text() != "Hello World" {
		t.Fatalf("greeting did not round trip: %v", msgs)
	}
}

func TestEncode_PayloadTooLarge(t *testing.T) {
	_, err := Encode(MsgCustom, make([]byte, MaxPayloadSize+1))
	if !errors.Is(err, ErrEncoding) {
		t.Fatalf("expected ErrEncoding, got %v", err)
	}
}

func TestEncodeDecode_RoundTrip(t *testing.T) {
	tests := []struct {
		name    string
		id      MsgID
		payload []byte
	}{
		{"live sign", MsgLiveSign, nil},
		{"start measure", MsgStartMeasure, nil},
		{"stop measure", MsgStopMeasure, []byte{}},
		{"negative temperature", MsgTemperature, TemperaturePayload(-40)},
		{"all reserved", MsgCustom, []byte{StartByte, StopByte, EscapeByte, StartByte, StopByte, EscapeByte}},
		{"binary", MsgCustom, []byte{0x00, 0xFF, 0x7E, 0x7D, 0x63, 0x66, 0x70}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msgs, errs := decodeAll(t, mustEncode(t, tt.id, tt.payload))
			if len(errs) != 0 {
				t.Fatalf("decoder errors: %v", errs)
			}
			if len(msgs) != 1 {
				t.Fatalf("expected 1 message, got %d", len(msgs))
			}
			if msgs[0].ID != tt.id {
				t.Errorf("id mismatch: expected %d, got %d", tt.id, msgs[0].ID)
			}
			if !bytes.Equal(msgs[0].Payload, tt.payload) && !(len(tt.payload) == 0 && msgs[0].Len() == 0) {
				t.Errorf("payload mismatch: expected % X, got % X", tt.payload, msgs[0].Payload)
			}
		})
	}
}

// ============================================================
// Message Helpers
// ============================================================

func TestTemperaturePayload_Saturates(t *testing.T) {
	tests := []struct {
		in       int16
		expected int8
	}{
		{23, 23},
		{-40, -40},
		{125, 125},
		{300, 127},
		{-300, -128},
	}
	for _, tt := range tests {
		m := NewMessage(MsgTemperature, TemperaturePayload(tt.in))
		got, ok := m.Temperature()
		if !ok || got != tt.expected {
			t.Errorf("TemperaturePayload(%d) = %d, %v; want %d", tt.in, got, ok, tt.expected)
		}
	}
}

func TestMessageTemperature_WrongShape(t *testing.T) {
	if _, ok := NewMessage(MsgCustom, []byte{0x01}).Temperature(); ok {
		t.Error("CUSTOM message should not yield a temperature")
	}
	if _, ok := NewMessage(MsgTemperature, []byte{0x01, 0x02}).Temperature(); ok {
		t.Error("two-byte payload should not yield a temperature")
	}
}
