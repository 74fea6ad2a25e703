// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Thermoquad/thermonode/pkg/config"
	"github.com/Thermoquad/thermonode/pkg/hal"
	"github.com/Thermoquad/thermonode/pkg/isr"
	"github.com/Thermoquad/thermonode/pkg/node"
	"github.com/Thermoquad/thermonode/pkg/serp"
	"github.com/Thermoquad/thermonode/pkg/transport"
)

// nodeHooks observe the simulated outputs
type nodeHooks struct {
	onDisplay   func(lines [hal.DisplayRows]string)
	onIndicator func(level bool)
}

// nodeRig is one assembled node: peripherals, link and controller
type nodeRig struct {
	vector    *isr.Vector
	timer     *hal.Timer
	timerCfg  hal.TimerConfig
	period    time.Duration
	button    hal.Button
	soft      *hal.SoftButton // nil when the button is a GPIO line
	indicator hal.Indicator
	display   *hal.CharDisplay
	adc       hal.ADC
	serial    *transport.Serial
	engine    *serp.Engine
	ctrl      *node.Controller

	closers []io.Closer
}

// newIndicator builds the indicator first so a node that fails to come up
// can still signal it.
func newIndicator(cfg config.Config, hooks nodeHooks) (hal.Indicator, io.Closer, error) {
	if cfg.GPIO.Enabled {
		ind, err := hal.NewGPIOIndicator(cfg.GPIO.Chip, cfg.GPIO.Indicator)
		if err != nil {
			return nil, nil, err
		}
		return ind, ind, nil
	}
	return hal.NewSoftIndicator(hooks.onIndicator), nil, nil
}

// buildNode wires a node onto conn. On error everything opened so far is
// closed, except ind.
func buildNode(cfg config.Config, conn transport.Conn, ind hal.Indicator, hooks nodeHooks) (*nodeRig, error) {
	r := &nodeRig{
		vector:    isr.NewVector(cfg.Timer.Exclusive),
		indicator: ind,
	}

	var err error
	if r.timerCfg, err = cfg.TimerSettings(); err != nil {
		return nil, err
	}
	if r.period, err = r.timerCfg.Period(cfg.Timer.FoscHz); err != nil {
		return nil, err
	}

	if r.timer, err = hal.NewTimer(r.vector, cfg.Timer.FoscHz); err != nil {
		return nil, err
	}

	if cfg.GPIO.Enabled {
		btn, err := hal.NewGPIOButton(r.vector, cfg.GPIO.Chip, cfg.GPIO.Button, cfg.Debounce())
		if err != nil {
			return nil, err
		}
		r.button = btn
		r.closers = append(r.closers, btn)
	} else {
		if r.soft, err = hal.NewSoftButton(r.vector); err != nil {
			return nil, err
		}
		r.button = r.soft
	}

	r.display = hal.NewCharDisplay(hooks.onDisplay)
	r.display.SetBacklight(cfg.Display.Backlight)
	r.adc = cfg.NewADC()

	if r.serial, err = transport.NewSerial(conn, r.vector); err != nil {
		r.close()
		return nil, err
	}
	r.closers = append(r.closers, r.serial)

	r.engine = serp.NewEngine(r.serial)
	if err = r.engine.Initialize(); err != nil {
		r.close()
		return nil, err
	}

	r.ctrl, err = node.NewController(node.Peripherals{
		Sender:    r.engine,
		Display:   r.display,
		Sensor:    hal.NewMCP9700(r.adc),
		Indicator: ind,
	})
	if err != nil {
		r.close()
		return nil, err
	}

	if err = r.engine.RegisterReceiveCallback(r.ctrl.HandleMessage); err != nil {
		r.close()
		return nil, err
	}
	if err = r.timer.RegisterTickCallback(r.ctrl.OnTick); err != nil {
		r.close()
		return nil, err
	}
	if err = r.button.RegisterEdgeCallback(r.ctrl.OnButton); err != nil {
		r.close()
		return nil, err
	}
	return r, nil
}

// run starts the node and blocks until ctx ends
func (r *nodeRig) run(ctx context.Context) error {
	if err := r.ctrl.Start(); err != nil {
		return fmt.Errorf("render idle screen: %w", err)
	}
	if err := r.timer.Start(r.timerCfg); err != nil {
		return err
	}
	log.Info().
		Str("clock", r.timerCfg.ClockSource.String()).
		Dur("period", r.period).
		Msg("node running")

	return r.ctrl.Run(ctx)
}

func (r *nodeRig) close() {
	if r.timer != nil && r.timer.Running() {
		if err := r.timer.Stop(); err != nil {
			log.Warn().Err(err).Msg("stop timer")
		}
	}
	for i := len(r.closers) - 1; i >= 0; i-- {
		if err := r.closers[i].Close(); err != nil && !errors.Is(err, transport.ErrClosed) {
			log.Warn().Err(err).Msg("close")
		}
	}
	r.closers = nil
}

// isConfigurationError reports whether err means the node cannot run as
// configured
func isConfigurationError(err error) bool {
	var he *hal.ConfigurationError
	var ce *config.ConfigurationError
	return errors.As(err, &he) || errors.As(err, &ce)
}
