// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package transport

import (
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/thermonode/pkg/isr"
	"github.com/Thermoquad/thermonode/pkg/serp"
)

var (
	// ErrTimeout is returned when a byte cannot be sent in time.
	ErrTimeout = errors.New("transport: send timeout")
	// ErrClosed is returned after Close.
	ErrClosed = errors.New("transport: closed")
)

const readChunk = 256

// Serial is the duplex byte channel of a node. It implements serp.Transport.
//
// Received bytes are queued by a reader goroutine, which then raises the
// serial interrupt; the interrupt handler hands them to the receive callback
// one byte at a time. Transmission goes through a single writer goroutine so
// that a blocked link shows up as a timeout instead of a stuck caller.
type Serial struct {
	conn   Conn
	vector *isr.Vector
	logger zerolog.Logger
	cb     atomic.Pointer[serp.RxFunc]

	writes chan writeRequest

	rxMu    sync.Mutex
	rxQueue []byte
	rxErr   error

	rxBytes atomic.Uint64
	txBytes atomic.Uint64

	done      chan struct{}
	stopped   chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

type writeRequest struct {
	b      byte
	result chan error
}

// NewSerial starts a transport over conn.
// With a nil vector the transport uses a private one, which is what host
// tools without other peripherals want.
func NewSerial(conn Conn, v *isr.Vector) (*Serial, error) {
	if v == nil {
		v = isr.NewVector(false)
	}
	s := &Serial{
		conn:    conn,
		vector:  v,
		logger:  log.With().Str("component", "serial").Logger(),
		writes:  make(chan writeRequest),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
	}
	if err := v.Register(isr.PeripheralSerial, s.handleInterrupt); err != nil {
		return nil, fmt.Errorf("register serial interrupt: %w", err)
	}

	s.wg.Add(2)
	go s.readLoop()
	go s.writeLoop()
	return s, nil
}

// RegisterRxCallback installs the receive callback, replacing any previous one
func (s *Serial) RegisterRxCallback(fn serp.RxFunc) error {
	if fn == nil {
		return serp.ErrNullCallback
	}
	s.cb.Store(&fn)
	return nil
}

// SendByte writes one byte, failing with ErrTimeout if the link does not
// accept it within timeout.
func (s *Serial) SendByte(b byte, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	req := writeRequest{b: b, result: make(chan error, 1)}
	select {
	case s.writes <- req:
	case <-timer.C:
		return ErrTimeout
	case <-s.done:
		return ErrClosed
	}

	select {
	case err := <-req.result:
		return err
	case <-timer.C:
		return ErrTimeout
	case <-s.done:
		return ErrClosed
	}
}

// Counters returns the number of bytes received and sent
func (s *Serial) Counters() (rx, tx uint64) {
	return s.rxBytes.Load(), s.txBytes.Load()
}

// Stopped is closed once the receiver has ended, after a read error or Close
func (s *Serial) Stopped() <-chan struct{} {
	return s.stopped
}

// Close stops both goroutines, closes the link and detaches from the vector
func (s *Serial) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.conn.Close()
		s.wg.Wait()
		s.vector.Unregister(isr.PeripheralSerial)
	})
	return err
}

func (s *Serial) writeLoop() {
	defer s.wg.Done()
	buf := make([]byte, 1)
	for {
		select {
		case <-s.done:
			return
		case req := <-s.writes:
			buf[0] = req.b
			_, err := s.conn.Write(buf)
			if err == nil {
				s.txBytes.Add(1)
			}
			req.result <- err
		}
	}
}

func (s *Serial) readLoop() {
	defer s.wg.Done()
	defer close(s.stopped)
	buf := make([]byte, readChunk)
	for {
		n, err := s.conn.Read(buf)
		if n > 0 {
			s.rxBytes.Add(uint64(n))
			s.rxMu.Lock()
			s.rxQueue = append(s.rxQueue, buf[:n]...)
			s.rxMu.Unlock()
			s.vector.Raise()
		}
		if err != nil {
			select {
			case <-s.done:
				return
			default:
			}
			s.logger.Warn().Err(err).Msg("read failed, receiver stopped")
			s.rxMu.Lock()
			s.rxErr = err
			s.rxMu.Unlock()
			s.vector.Raise()
			return
		}
	}
}

// handleInterrupt delivers queued bytes and the read status
func (s *Serial) handleInterrupt() bool {
	s.rxMu.Lock()
	data := s.rxQueue
	err := s.rxErr
	s.rxQueue = nil
	s.rxErr = nil
	s.rxMu.Unlock()

	if len(data) == 0 && err == nil {
		return false
	}

	cb := s.cb.Load()
	if cb == nil {
		s.logger.Debug().Int("bytes", len(data)).Msg("no receive callback, bytes discarded")
		return true
	}
	for i := range data {
		(*cb)(data[i:i+1], nil)
	}
	if err != nil {
		(*cb)(nil, err)
	}
	return true
}
