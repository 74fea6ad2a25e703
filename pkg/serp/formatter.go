// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import (
	"fmt"
	"strings"
)

// FormatMessage formats a message into a human-readable string
func FormatMessage(m *Message) string {
	timestamp := m.Timestamp.Format("15:04:05.000")
	msgType := FormatMessageType(m.ID)

	result := fmt.Sprintf("[%s] %s (0x%02X) len=%d\n", timestamp, msgType, uint8(m.ID), m.Len())
	result += FormatPayload(m)

	return result
}

// FormatMessageType returns the human-readable name for a message id
func FormatMessageType(id MsgID) string {
	switch id {
	case MsgStartMeasure:
		return "START_MEASURE"
	case MsgStopMeasure:
		return "STOP_MEASURE"
	case MsgLiveSign:
		return "LIVE_SIGN"
	case MsgCustom:
		return "CUSTOM"
	case MsgTemperature:
		return "TEMPERATURE"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats the payload based on message id
func FormatPayload(m *Message) string {
	switch m.ID {
	case MsgStartMeasure, MsgStopMeasure, MsgLiveSign:
		if m.Len() == 0 {
			return "  (no payload)\n"
		}

	case MsgTemperature:
		if t, ok := m.Temperature(); ok {
			return fmt.Sprintf("  Temperature: %d°C\n", t)
		}

	case MsgCustom:
		if text := m.Text(); text != "" && isPrintable(text) {
			return fmt.Sprintf("  Text: %q\n", text)
		}
	}

	return formatHexDump(m.Payload)
}

func formatHexDump(payload []byte) string {
	if len(payload) == 0 {
		return "  (no payload)\n"
	}

	var sb strings.Builder
	sb.WriteString("  Payload: ")
	for i, b := range payload {
		if i > 0 && i%16 == 0 {
			sb.WriteString("\n           ")
		}
		fmt.Fprintf(&sb, "%02X ", b)
	}
	sb.WriteString("\n")
	return sb.String()
}

func isPrintable(s string) bool {
	for _, r := range s {
		if r < 0x20 || r > 0x7E {
			return false
		}
	}
	return true
}
