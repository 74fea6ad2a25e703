// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package bridge forwards decoded SERP messages to an MQTT broker.
//
// Each message becomes one CBOR record on thermonode/<node>/messages.
package bridge

import (
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"

	"github.com/Thermoquad/thermonode/pkg/serp"
)

// TopicPrefix is the first topic level of every record
const TopicPrefix = "thermonode"

// Topic returns the message topic for a node
func Topic(node string) string {
	return fmt.Sprintf("%s/%s/messages", TopicPrefix, node)
}

// Record is the bridge representation of one message.
// Integer keys keep records small on constrained subscribers.
type Record struct {
	Node        string    `cbor:"0,keyasint"`
	ID          uint8     `cbor:"1,keyasint"`
	Name        string    `cbor:"2,keyasint"`
	Payload     []byte    `cbor:"3,keyasint"`
	Timestamp   time.Time `cbor:"4,keyasint"`
	Temperature *int8     `cbor:"5,keyasint,omitempty"`
	Text        string    `cbor:"6,keyasint,omitempty"`
}

// NewRecord builds the record for m
func NewRecord(node string, m *serp.Message) Record {
	ts := m.Timestamp
	if ts.IsZero() {
		ts = time.Now()
	}
	r := Record{
		Node:      node,
		ID:        uint8(m.ID),
		Name:      serp.FormatMessageType(m.ID),
		Payload:   m.Payload,
		Timestamp: ts.UTC(),
	}
	if t, ok := m.Temperature(); ok {
		r.Temperature = &t
	}
	if m.ID == serp.MsgCustom {
		r.Text = m.Text()
	}
	return r
}

var encMode cbor.EncMode

func init() {
	opts := cbor.CoreDetEncOptions()
	opts.Time = cbor.TimeRFC3339Nano
	mode, err := opts.EncMode()
	if err != nil {
		panic(err)
	}
	encMode = mode
}

// EncodeRecord serializes a record
func EncodeRecord(r Record) ([]byte, error) {
	data, err := encMode.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return data, nil
}

// DecodeRecord parses a serialized record
func DecodeRecord(data []byte) (Record, error) {
	var r Record
	if err := cbor.Unmarshal(data, &r); err != nil {
		return Record{}, fmt.Errorf("decode record: %w", err)
	}
	return r, nil
}
