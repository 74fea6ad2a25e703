// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package bridge

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/denisbrodbeck/machineid"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/thermonode/pkg/serp"
)

// Publisher publishes message records.
type Publisher interface {
	// Publish sends one message. Failures must not stop the caller.
	Publish(m *serp.Message) error

	// Close disconnects from the broker.
	Close() error
}

// NodeID returns a stable identifier for this host, derived from the
// machine id without exposing it.
func NodeID() (string, error) {
	id, err := machineid.ProtectedID(TopicPrefix)
	if err != nil {
		return "", fmt.Errorf("machine id: %w", err)
	}
	if len(id) > 12 {
		id = id[:12]
	}
	return id, nil
}

// MQTTPublisher publishes records to an MQTT broker.
type MQTTPublisher struct {
	client paho.Client
	node   string
	topic  string
}

// NewMQTTPublisher connects to broker and publishes as node
func NewMQTTPublisher(broker, node string) (*MQTTPublisher, error) {
	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(TopicPrefix + "-" + node).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second)

	client := paho.NewClient(opts)
	token := client.Connect()
	if !token.WaitTimeout(10 * time.Second) {
		return nil, fmt.Errorf("connection timeout")
	}
	if err := token.Error(); err != nil {
		return nil, fmt.Errorf("connect to broker: %w", err)
	}

	return &MQTTPublisher{
		client: client,
		node:   node,
		topic:  Topic(node),
	}, nil
}

// Publish sends one record at QoS 0
func (p *MQTTPublisher) Publish(m *serp.Message) error {
	payload, err := EncodeRecord(NewRecord(p.node, m))
	if err != nil {
		return err
	}

	token := p.client.Publish(p.topic, 0, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		return fmt.Errorf("publish timeout")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// IsConnected reports whether the broker connection is up
func (p *MQTTPublisher) IsConnected() bool {
	return p.client.IsConnected()
}

// Close disconnects from the broker
func (p *MQTTPublisher) Close() error {
	p.client.Disconnect(1000)
	return nil
}

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	mu sync.Mutex

	// Node is used when encoding Payloads
	Node string

	// Messages contains all messages that were published.
	Messages []*serp.Message

	// Payloads contains the encoded records.
	Payloads [][]byte

	// PublishError, if set, will be returned by Publish.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher(node string) *FakePublisher {
	return &FakePublisher{Node: node}
}

// Publish records the message
func (f *FakePublisher) Publish(m *serp.Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.PublishError != nil {
		return f.PublishError
	}
	payload, err := EncodeRecord(NewRecord(f.Node, m))
	if err != nil {
		return err
	}
	f.Messages = append(f.Messages, m)
	f.Payloads = append(f.Payloads, payload)
	return nil
}

// Count returns the number of published messages
func (f *FakePublisher) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.Messages)
}

// Close marks the publisher as closed
func (f *FakePublisher) Close() error {
	f.mu.Lock()
	f.Closed = true
	f.mu.Unlock()
	return nil
}

// ErrQueueFull is counted when the forwarder drops a message
var ErrQueueFull = errors.New("bridge: queue full")

// Forwarder moves messages from the receive path to a Publisher.
// Handle never blocks: when the queue is full the message is dropped.
type Forwarder struct {
	pub     Publisher
	queue   chan *serp.Message
	logger  zerolog.Logger
	dropped atomic.Uint64
	failed  atomic.Uint64
	sent    atomic.Uint64
}

// NewForwarder creates a forwarder with room for depth pending messages
func NewForwarder(pub Publisher, depth int) *Forwarder {
	if depth < 1 {
		depth = 1
	}
	return &Forwarder{
		pub:    pub,
		queue:  make(chan *serp.Message, depth),
		logger: log.With().Str("component", "bridge").Logger(),
	}
}

// Handle queues m. It has the serp.ReceiveFunc signature.
func (f *Forwarder) Handle(m *serp.Message) {
	select {
	case f.queue <- m:
	default:
		f.dropped.Add(1)
		f.logger.Warn().Err(ErrQueueFull).Uint8("msg_id", uint8(m.ID)).Msg("message dropped")
	}
}

// Run publishes queued messages until ctx ends, then flushes what is left.
func (f *Forwarder) Run(ctx context.Context) {
	for {
		select {
		case m := <-f.queue:
			f.publish(m)
		case <-ctx.Done():
			for {
				select {
				case m := <-f.queue:
					f.publish(m)
				default:
					return
				}
			}
		}
	}
}

func (f *Forwarder) publish(m *serp.Message) {
	if err := f.pub.Publish(m); err != nil {
		f.failed.Add(1)
		f.logger.Error().Err(err).Msg("publish failed")
		return
	}
	f.sent.Add(1)
}

// Counters returns messages published, failed and dropped
func (f *Forwarder) Counters() (sent, failed, dropped uint64) {
	return f.sent.Load(), f.failed.Load(), f.dropped.Load()
}
