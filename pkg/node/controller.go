// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package node implements the application controller of a thermonode.
//
// Interrupt handlers post events into a single pending slot and wake the
// main loop; the main loop drains the slot and performs the side effects.
// The slot holds one event: posting again before a drain replaces the
// unconsumed event.
package node

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/thermonode/pkg/isr"
	"github.com/Thermoquad/thermonode/pkg/serp"
)

// State is the controller state
type State int32

const (
	StateSuspended State = iota
	StateRunning
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateSuspended:
		return "SUSPENDED"
	case StateRunning:
		return "RUNNING"
	default:
		return fmt.Sprintf("STATE(%d)", int32(s))
	}
}

// Event is the content of the pending-event slot
type Event int32

const (
	EventNone Event = iota
	EventTimer
	EventButtonPressed
)

// String returns the event name
func (e Event) String() string {
	switch e {
	case EventNone:
		return "NONE"
	case EventTimer:
		return "TIMER"
	case EventButtonPressed:
		return "BUTTON_PRESSED"
	default:
		return fmt.Sprintf("EVENT(%d)", int32(e))
	}
}

// Greeting is sent when measuring starts from the button
const Greeting = "Hello World"

// Screen texts
const (
	IdleLine1    = "Thermonode"
	IdleLine2    = "Press button"
	RunningLine  = "Running"
	SensorFailed = "Sensor error"
)

// Sender transmits one message
type Sender interface {
	Send(id serp.MsgID, payload []byte) error
}

// Display is the character display the controller renders to
type Display interface {
	Clear() error
	SetCursor(col, row int) error
	WriteText(text string) error
}

// Sensor reads the temperature in whole degrees Celsius
type Sensor interface {
	Temperature() (int16, error)
}

// Indicator is the liveness output
type Indicator interface {
	Toggle() error
}

// Peripherals are the collaborators of a Controller
type Peripherals struct {
	Sender    Sender
	Display   Display
	Sensor    Sensor
	Indicator Indicator
}

// ErrMissingPeripheral is returned when a Controller is built without one
// of its collaborators.
var ErrMissingPeripheral = errors.New("node: missing peripheral")

func (p Peripherals) validate() error {
	switch {
	case p.Sender == nil:
		return fmt.Errorf("%w: sender", ErrMissingPeripheral)
	case p.Display == nil:
		return fmt.Errorf("%w: display", ErrMissingPeripheral)
	case p.Sensor == nil:
		return fmt.Errorf("%w: sensor", ErrMissingPeripheral)
	case p.Indicator == nil:
		return fmt.Errorf("%w: indicator", ErrMissingPeripheral)
	}
	return nil
}

// Stats are the controller counters
type Stats struct {
	State       State
	Drained     uint64 // passes that handled an event
	Overwritten uint64 // events replaced before they were drained
	SendErrors  uint64
	Readings    uint64
	SensorFails uint64
}

// Controller is the two-state application state machine.
type Controller struct {
	p      Peripherals
	logger zerolog.Logger

	state   atomic.Int32
	pending atomic.Int32
	wake    chan struct{}

	drained     atomic.Uint64
	overwritten atomic.Uint64
	sendErrors  atomic.Uint64
	readings    atomic.Uint64
	sensorFails atomic.Uint64
}

// NewController creates a suspended controller
func NewController(p Peripherals) (*Controller, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}
	return &Controller{
		p:      p,
		logger: log.With().Str("component", "node").Logger(),
		wake:   make(chan struct{}, 1),
	}, nil
}

// Start draws the idle screen. Call it once before Run.
func (c *Controller) Start() error {
	return c.renderIdle()
}

// State returns the current state
func (c *Controller) State() State {
	return State(c.state.Load())
}

// Pending returns the unconsumed event, if any
func (c *Controller) Pending() Event {
	return Event(c.pending.Load())
}

// Stats returns a snapshot of the counters
func (c *Controller) Stats() Stats {
	return Stats{
		State:       c.State(),
		Drained:     c.drained.Load(),
		Overwritten: c.overwritten.Load(),
		SendErrors:  c.sendErrors.Load(),
		Readings:    c.readings.Load(),
		SensorFails: c.sensorFails.Load(),
	}
}

// PostEvent stores e in the pending slot and wakes the main loop.
// Safe from interrupt context.
func (c *Controller) PostEvent(e Event) {
	if prev := Event(c.pending.Swap(int32(e))); prev != EventNone {
		c.overwritten.Add(1)
	}
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

// OnTick is the timer callback
func (c *Controller) OnTick() {
	c.PostEvent(EventTimer)
}

// OnButton is the button edge callback
func (c *Controller) OnButton(p isr.Peripheral) bool {
	if p != isr.PeripheralGPIO {
		return false
	}
	c.logger.Info().Msg("Button Pressed!")
	c.PostEvent(EventButtonPressed)
	return true
}

// HandleMessage is the receive callback of the framing engine. Measurement
// commands change the state at once, without going through the slot.
func (c *Controller) HandleMessage(m *serp.Message) {
	switch m.ID {
	case serp.MsgStartMeasure:
		c.state.Store(int32(StateRunning))
		c.logger.Info().Msg("measurement started by host")

	case serp.MsgStopMeasure:
		c.state.Store(int32(StateSuspended))
		c.logger.Info().Msg("measurement stopped by host")
		if err := c.renderIdle(); err != nil {
			c.logger.Error().Err(err).Msg("render idle screen")
		}

	default:
		c.logger.Debug().
			Uint8("msg_id", uint8(m.ID)).
			Str("type", serp.FormatMessageType(m.ID)).
			Int("len", m.Len()).
			Msg("message ignored")
	}
}

// Drain runs one main-loop pass: it handles the pending event, if any, and
// clears the slot. It returns the event it saw.
func (c *Controller) Drain() Event {
	e := Event(c.pending.Load())
	if e == EventNone {
		return e
	}

	switch c.State() {
	case StateSuspended:
		c.handleSuspended(e)
	case StateRunning:
		c.handleRunning(e)
	}

	// An event posted during the pass is lost here
	c.pending.Store(int32(EventNone))
	c.drained.Add(1)
	return e
}

// Run is the main loop. It drains the slot every time an event is posted,
// until ctx ends.
func (c *Controller) Run(ctx context.Context) error {
	c.Drain()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.wake:
			c.Drain()
		}
	}
}

func (c *Controller) handleSuspended(e Event) {
	switch e {
	case EventTimer:
		c.send(serp.MsgLiveSign, nil)

	case EventButtonPressed:
		c.state.Store(int32(StateRunning))
		if err := c.render(RunningLine, ""); err != nil {
			c.logger.Error().Err(err).Msg("render running screen")
		}
		c.send(serp.MsgCustom, serp.TextPayload(Greeting))

	default:
		c.logger.Warn().Str("event", e.String()).Str("state", StateSuspended.String()).Msg("unexpected event")
	}
}

func (c *Controller) handleRunning(e Event) {
	switch e {
	case EventTimer:
		c.measure()
		if err := c.p.Indicator.Toggle(); err != nil {
			c.logger.Error().Err(err).Msg("toggle indicator")
		}

	case EventButtonPressed:
		c.state.Store(int32(StateSuspended))
		if err := c.renderIdle(); err != nil {
			c.logger.Error().Err(err).Msg("render idle screen")
		}

	default:
		c.logger.Warn().Str("event", e.String()).Str("state", StateRunning.String()).Msg("unexpected event")
	}
}

func (c *Controller) measure() {
	temp, err := c.p.Sensor.Temperature()
	if err != nil {
		c.sensorFails.Add(1)
		c.logger.Error().Err(err).Msg("Unable to retrieve temperature data")
		if err := c.render(RunningLine, SensorFailed); err != nil {
			c.logger.Error().Err(err).Msg("render sensor error")
		}
		return
	}

	c.readings.Add(1)
	c.logger.Info().Int16("celsius", temp).Msg("temperature")
	if err := c.render(RunningLine, fmt.Sprintf("Temp: %d C", temp)); err != nil {
		c.logger.Error().Err(err).Msg("render temperature")
	}
	c.send(serp.MsgTemperature, serp.TemperaturePayload(temp))
}

func (c *Controller) send(id serp.MsgID, payload []byte) {
	if err := c.p.Sender.Send(id, payload); err != nil {
		c.sendErrors.Add(1)
		c.logger.Error().Err(err).Str("type", serp.FormatMessageType(id)).Msg("send failed")
	}
}

func (c *Controller) renderIdle() error {
	return c.render(IdleLine1, IdleLine2)
}

// render replaces the screen with up to two lines
func (c *Controller) render(line1, line2 string) error {
	if err := c.p.Display.Clear(); err != nil {
		return err
	}
	if err := c.p.Display.WriteText(line1); err != nil {
		return err
	}
	if line2 == "" {
		return nil
	}
	if err := c.p.Display.SetCursor(0, 1); err != nil {
		return err
	}
	return c.p.Display.WriteText(line2)
}
