// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package node

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Thermoquad/thermonode/pkg/hal"
	"github.com/Thermoquad/thermonode/pkg/isr"
	"github.com/Thermoquad/thermonode/pkg/serp"
)

// ============================================================
// Test Doubles
// ============================================================

type sentMessage struct {
	id      serp.MsgID
	payload []byte
}

type fakeSender struct {
	mu   sync.Mutex
	sent []sentMessage
	err  error
}

func (f *fakeSender) Send(id serp.MsgID, payload []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, sentMessage{id, append([]byte(nil), payload...)})
	return nil
}

func (f *fakeSender) messages() []sentMessage {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]sentMessage(nil), f.sent...)
}

// countingDisplay counts screen updates; every render starts with Clear
type countingDisplay struct {
	*hal.CharDisplay
	mu      sync.Mutex
	updates int
}

func (d *countingDisplay) Clear() error {
	d.mu.Lock()
	d.updates++
	d.mu.Unlock()
	return d.CharDisplay.Clear()
}

func (d *countingDisplay) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.updates
}

func (d *countingDisplay) line(row int) string {
	return strings.TrimRight(d.Lines()[row], " ")
}

type fakeSensor struct {
	temp int16
	err  error
}

func (f *fakeSensor) Temperature() (int16, error) {
	return f.temp, f.err
}

type fixture struct {
	ctrl      *Controller
	sender    *fakeSender
	display   *countingDisplay
	sensor    *fakeSensor
	indicator *hal.SoftIndicator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		sender:    &fakeSender{},
		display:   &countingDisplay{CharDisplay: hal.NewCharDisplay(nil)},
		sensor:    &fakeSensor{temp: 23},
		indicator: hal.NewSoftIndicator(nil),
	}
	ctrl, err := NewController(Peripherals{
		Sender:    f.sender,
		Display:   f.display,
		Sensor:    f.sensor,
		Indicator: f.indicator,
	})
	require.NoError(t, err)
	require.NoError(t, ctrl.Start())
	f.ctrl = ctrl
	return f
}

// running moves the fixture to RUNNING through the button and forgets
// the side effects of the transition
func (f *fixture) running(t *testing.T) {
	t.Helper()
	f.ctrl.PostEvent(EventButtonPressed)
	require.Equal(t, EventButtonPressed, f.ctrl.Drain())
	require.Equal(t, StateRunning, f.ctrl.State())
	f.sender.sent = nil
	f.display.updates = 0
}

// ============================================================
// Construction
// ============================================================

func TestNewController_MissingPeripheral(t *testing.T) {
	_, err := NewController(Peripherals{})
	assert.ErrorIs(t, err, ErrMissingPeripheral)

	_, err = NewController(Peripherals{Sender: &fakeSender{}, Display: hal.NewCharDisplay(nil), Sensor: &fakeSensor{}})
	assert.ErrorIs(t, err, ErrMissingPeripheral)
	assert.Contains(t, err.Error(), "indicator")
}

func TestController_StartsSuspendedOnIdleScreen(t *testing.T) {
	f := newFixture(t)

	assert.Equal(t, StateSuspended, f.ctrl.State())
	assert.Equal(t, EventNone, f.ctrl.Pending())
	assert.Equal(t, IdleLine1, f.display.line(0))
	assert.Equal(t, IdleLine2, f.display.line(1))
}

// ============================================================
// Transitions
// ============================================================

func TestController_SuspendedTimerSendsLiveSign(t *testing.T) {
	f := newFixture(t)

	f.ctrl.OnTick()
	assert.Equal(t, EventTimer, f.ctrl.Drain())

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serp.MsgLiveSign, msgs[0].id)
	assert.Empty(t, msgs[0].payload)
	assert.Equal(t, StateSuspended, f.ctrl.State())
	assert.Equal(t, EventNone, f.ctrl.Pending())
	assert.Zero(t, f.indicator.Toggles())
}

func TestController_SuspendedButtonStartsRunning(t *testing.T) {
	f := newFixture(t)
	f.display.updates = 0

	assert.True(t, f.ctrl.OnButton(isr.PeripheralGPIO))
	f.ctrl.Drain()

	assert.Equal(t, StateRunning, f.ctrl.State())
	assert.Equal(t, 1, f.display.count(), "exactly one display update")
	assert.Equal(t, RunningLine, f.display.line(0))

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serp.MsgCustom, msgs[0].id)
	assert.Equal(t, []byte("Hello World\x00"), msgs[0].payload)
	assert.Len(t, msgs[0].payload, 12)
}

func TestController_RunningTimerReportsTemperature(t *testing.T) {
	f := newFixture(t)
	f.running(t)
	f.sensor.temp = -12

	f.ctrl.PostEvent(EventTimer)
	f.ctrl.Drain()

	assert.Equal(t, "Temp: -12 C", f.display.line(1))
	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serp.MsgTemperature, msgs[0].id)
	assert.Equal(t, []byte{0xF4}, msgs[0].payload)
	assert.Equal(t, 1, f.indicator.Toggles())
	assert.Equal(t, StateRunning, f.ctrl.State())
}

func TestController_RunningTimerSensorFailure(t *testing.T) {
	f := newFixture(t)
	f.running(t)
	f.sensor.err = hal.ErrSensor

	f.ctrl.PostEvent(EventTimer)
	f.ctrl.Drain()

	assert.Equal(t, SensorFailed, f.display.line(1))
	assert.Empty(t, f.sender.messages())
	assert.Equal(t, 1, f.indicator.Toggles(), "indicator toggles exactly once")
	assert.Equal(t, uint64(1), f.ctrl.Stats().SensorFails)
}

func TestController_RunningButtonSuspends(t *testing.T) {
	f := newFixture(t)
	f.running(t)

	f.ctrl.OnButton(isr.PeripheralGPIO)
	f.ctrl.Drain()

	assert.Equal(t, StateSuspended, f.ctrl.State())
	assert.Equal(t, IdleLine1, f.display.line(0))
	assert.Equal(t, IdleLine2, f.display.line(1))
	assert.Empty(t, f.sender.messages())
}

func TestController_TemperatureClamped(t *testing.T) {
	f := newFixture(t)
	f.running(t)
	f.sensor.temp = 300

	f.ctrl.PostEvent(EventTimer)
	f.ctrl.Drain()

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, []byte{0x7F}, msgs[0].payload)
}

// ============================================================
// Pending Slot
// ============================================================

func TestController_TwoPressesCoalesce(t *testing.T) {
	f := newFixture(t)

	f.ctrl.OnButton(isr.PeripheralGPIO)
	f.ctrl.OnButton(isr.PeripheralGPIO)
	f.ctrl.Drain()

	assert.Equal(t, StateRunning, f.ctrl.State(), "one transition, not two")
	assert.Len(t, f.sender.messages(), 1)
	assert.Equal(t, uint64(1), f.ctrl.Stats().Overwritten)
	assert.Equal(t, EventNone, f.ctrl.Drain())
}

func TestController_LatestEventWins(t *testing.T) {
	f := newFixture(t)

	f.ctrl.OnTick()
	f.ctrl.OnButton(isr.PeripheralGPIO)
	assert.Equal(t, EventButtonPressed, f.ctrl.Drain())

	msgs := f.sender.messages()
	require.Len(t, msgs, 1)
	assert.Equal(t, serp.MsgCustom, msgs[0].id, "the timer event was replaced")
}

func TestController_DrainEmptySlot(t *testing.T) {
	f := newFixture(t)
	f.display.updates = 0

	assert.Equal(t, EventNone, f.ctrl.Drain())
	assert.Empty(t, f.sender.messages())
	assert.Zero(t, f.display.count())
	assert.Zero(t, f.ctrl.Stats().Drained)
}

func TestController_UnknownEventIgnored(t *testing.T) {
	f := newFixture(t)

	f.ctrl.PostEvent(Event(42))
	assert.Equal(t, Event(42), f.ctrl.Drain())
	assert.Equal(t, StateSuspended, f.ctrl.State())
	assert.Empty(t, f.sender.messages())
	assert.Equal(t, EventNone, f.ctrl.Pending())
}

func TestController_ForeignEdgeNotClaimed(t *testing.T) {
	f := newFixture(t)
	assert.False(t, f.ctrl.OnButton(isr.PeripheralTimer))
	assert.Equal(t, EventNone, f.ctrl.Pending())
}

func TestController_SendFailureNotRetried(t *testing.T) {
	f := newFixture(t)
	f.sender.err = serp.ErrTransport

	f.ctrl.OnTick()
	f.ctrl.Drain()
	f.ctrl.Drain()

	assert.Equal(t, uint64(1), f.ctrl.Stats().SendErrors)
	assert.Equal(t, EventNone, f.ctrl.Pending())
}

// ============================================================
// Host Commands
// ============================================================

func TestController_HostCommands(t *testing.T) {
	f := newFixture(t)

	f.ctrl.HandleMessage(serp.NewMessage(serp.MsgStartMeasure, nil))
	assert.Equal(t, StateRunning, f.ctrl.State(), "takes effect without a drain")

	f.ctrl.OnTick()
	f.ctrl.Drain()
	assert.Equal(t, 1, f.indicator.Toggles())

	f.display.updates = 0
	f.ctrl.HandleMessage(serp.NewMessage(serp.MsgStopMeasure, nil))
	assert.Equal(t, StateSuspended, f.ctrl.State())
	assert.Equal(t, 1, f.display.count())
	assert.Equal(t, IdleLine1, f.display.line(0))

	f.ctrl.HandleMessage(serp.NewMessage(serp.MsgLiveSign, nil))
	f.ctrl.HandleMessage(serp.NewMessage(serp.MsgCustom, []byte("x")))
	assert.Equal(t, StateSuspended, f.ctrl.State())
	assert.Equal(t, EventNone, f.ctrl.Pending())
}

// ============================================================
// Main Loop
// ============================================================

func TestController_RunDrainsPostedEvents(t *testing.T) {
	f := newFixture(t)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- f.ctrl.Run(ctx) }()

	v := isr.NewVector(false)
	button, err := hal.NewSoftButton(v)
	require.NoError(t, err)
	require.NoError(t, button.RegisterEdgeCallback(f.ctrl.OnButton))

	button.Press()
	require.Eventually(t, func() bool { return f.ctrl.State() == StateRunning }, 2*time.Second, time.Millisecond)
	require.Eventually(t, func() bool { return len(f.sender.messages()) == 1 }, 2*time.Second, time.Millisecond)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestHalt_BlinksUntilCancelled(t *testing.T) {
	ind := hal.NewSoftIndicator(nil)
	cause := errors.New("bad prescaler")

	ctx, cancel := context.WithTimeout(context.Background(), 3*HaltBlinkPeriod+HaltBlinkPeriod/2)
	defer cancel()

	err := Halt(ctx, ind, cause)
	assert.ErrorIs(t, err, cause)
	assert.GreaterOrEqual(t, ind.Toggles(), 2)
}

func TestStateAndEventNames(t *testing.T) {
	assert.Equal(t, "SUSPENDED", StateSuspended.String())
	assert.Equal(t, "RUNNING", StateRunning.String())
	assert.Equal(t, "TIMER", EventTimer.String())
	assert.Equal(t, "BUTTON_PRESSED", EventButtonPressed.String())
	assert.Equal(t, "EVENT(9)", Event(9).String())
}
