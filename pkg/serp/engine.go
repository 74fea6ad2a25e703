// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package serp

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// Transport is the byte channel under the framing engine.
type Transport interface {
	// SendByte blocks until b is written or timeout elapses.
	SendByte(b byte, timeout time.Duration) error

	// RegisterRxCallback installs the function invoked for received bytes.
	// It is called from interrupt context, one chunk at a time.
	RegisterRxCallback(fn RxFunc) error
}

// RxFunc receives bytes from a transport, or the receive error status.
type RxFunc func(data []byte, err error)

// ReceiveFunc is the application callback for completed messages.
// It runs on the receive path and must not block.
type ReceiveFunc func(m *Message)

// Engine encodes outbound messages onto a Transport and decodes the inbound
// byte stream into messages for one registered callback.
type Engine struct {
	transport   Transport
	decoder     *Decoder
	stats       *Statistics
	logger      zerolog.Logger
	initialized atomic.Bool

	mu       sync.RWMutex
	callback ReceiveFunc
}

// NewEngine creates a framing engine on top of t.
// Initialize must be called before Send.
func NewEngine(t Transport) *Engine {
	return &Engine{
		transport: t,
		decoder:   NewDecoder(),
		stats:     NewStatistics(),
		logger:    log.With().Str("component", "serp").Logger(),
	}
}

// Initialize hooks the engine into the transport's receive path.
func (e *Engine) Initialize() error {
	if err := e.transport.RegisterRxCallback(e.handleRx); err != nil {
		return fmt.Errorf("register rx callback: %w", err)
	}
	e.initialized.Store(true)
	return nil
}

// RegisterReceiveCallback installs the application callback for decoded
// messages, replacing any previous one.
func (e *Engine) RegisterReceiveCallback(cb ReceiveFunc) error {
	if cb == nil {
		return ErrNullCallback
	}
	e.mu.Lock()
	e.callback = cb
	e.mu.Unlock()
	return nil
}

// Statistics returns the engine's frame counters
func (e *Engine) Statistics() *Statistics {
	return e.stats
}

// Send encodes a message and writes it byte by byte.
// The first byte that cannot be written aborts the frame; the peer's
// decoder is left mid-frame until its next START.
func (e *Engine) Send(id MsgID, payload []byte) error {
	if !e.initialized.Load() {
		return ErrNotInitialized
	}

	frame, err := Encode(id, payload)
	if err != nil {
		return err
	}

	for i, b := range frame {
		if err := e.transport.SendByte(b, ByteTimeout); err != nil {
			err = fmt.Errorf("%w: byte %d of %d: %w", ErrTransport, i+1, len(frame), err)
			e.stats.RecordSend(err)
			return err
		}
	}

	e.stats.RecordSend(nil)
	e.logger.Debug().Uint8("msg_id", uint8(id)).Int("len", len(payload)).Msg("frame sent")
	return nil
}

// handleRx is the transport receive callback
func (e *Engine) handleRx(data []byte, err error) {
	if err != nil {
		e.stats.RecordRxError()
		e.logger.Warn().Err(err).Msg("receive error")
		return
	}
	for _, b := range data {
		e.decodeByte(b)
	}
}

func (e *Engine) decodeByte(b byte) {
	msg, err := e.decoder.DecodeByte(b)
	if err != nil {
		e.stats.RecordFrameError(err)
		e.logger.Warn().Err(err).Msg("frame dropped")
		return
	}
	if msg == nil {
		return
	}

	e.stats.RecordMessage(msg)

	e.mu.RLock()
	cb := e.callback
	e.mu.RUnlock()

	if cb == nil {
		e.logger.Debug().Uint8("msg_id", uint8(msg.ID)).Msg("no receive callback, message discarded")
		return
	}
	cb(msg)
}
