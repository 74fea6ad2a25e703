// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/hal"
	"github.com/Thermoquad/thermonode/pkg/node"
)

var (
	tuiMode bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the thermal sensor node on a SERP link",
	Long: `Run the node: a periodic timer, a button, an indicator, a temperature
sensor and a 16x2 character display, talking SERP to a host.

The node starts suspended and sends a LIVE_SIGN frame on every timer period.
A button press switches it to running: it greets the host with a CUSTOM frame,
then measures and reports TEMPERATURE on every period. START_MEASURE and
STOP_MEASURE from the host switch states as well.

Peripherals come from the configuration file (--config). Without GPIO lines
the button and indicator are simulated; use --tui to press the button, watch
the display and steer the simulated ADC.

An invalid timer or GPIO configuration halts the node: the indicator blinks
until the process is interrupted.`,
	RunE: runNode,
}

func init() {
	rootCmd.AddCommand(runCmd)
	runCmd.Flags().BoolVar(&tuiMode, "tui", false, "Show the node panel")
}

func runNode(cmd *cobra.Command, args []string) error {
	cfg := nodeConfig

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var prog atomic.Pointer[tea.Program]
	hooks := nodeHooks{
		onDisplay: func(lines [hal.DisplayRows]string) {
			if p := prog.Load(); p != nil {
				p.Send(panelDisplayMsg(lines))
				return
			}
			log.Debug().Str("row0", lines[0]).Str("row1", lines[1]).Msg("display")
		},
		onIndicator: func(level bool) {
			if p := prog.Load(); p != nil {
				p.Send(panelIndicatorMsg(level))
				return
			}
			log.Debug().Bool("level", level).Msg("indicator")
		},
	}

	ind, indCloser, err := newIndicator(cfg, hooks)
	if err != nil {
		return err
	}
	if indCloser != nil {
		defer indCloser.Close()
	}

	conn, connInfo, err := OpenConnection(cfg.Serial)
	if err != nil {
		return err
	}

	rig, err := buildNode(cfg, conn, ind, hooks)
	if err != nil {
		conn.Close()
		if isConfigurationError(err) {
			return node.Halt(ctx, ind, err)
		}
		return err
	}
	defer rig.close()

	if tuiMode {
		return runPanel(ctx, rig, connInfo, &prog)
	}

	fmt.Printf("Thermonode - Node\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := rig.run(ctx); err != nil {
		if isConfigurationError(err) {
			return node.Halt(ctx, ind, err)
		}
		return err
	}

	stats := rig.ctrl.Stats()
	fmt.Printf("\nState: %s, events: %d, readings: %d, sensor errors: %d\n",
		stats.State, stats.Drained, stats.Readings, stats.SensorFails)
	fmt.Print(rig.engine.Statistics().String())
	return nil
}
