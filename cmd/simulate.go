// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/serp"
	"github.com/Thermoquad/thermonode/pkg/transport"
)

var (
	simDuration int
	simPress    int
	simStop     int
	simMQTT     string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run a node and a host monitor over an in-memory link",
	Long: `Run a simulated node wired to a host monitor without any hardware.

The node uses the configured timer and sensor settings with a simulated
button and indicator. The host prints every frame the node sends.

Script:
  --press N  press the button after N seconds (node starts measuring)
  --stop N   host sends STOP_MEASURE after N seconds
  --duration N  end the simulation after N seconds

Set a script time to 0 to skip that step.`,
	RunE: runSimulate,
}

func init() {
	rootCmd.AddCommand(simulateCmd)
	simulateCmd.Flags().IntVar(&simDuration, "duration", 10, "Simulation length in seconds (0 = until Ctrl+C)")
	simulateCmd.Flags().IntVar(&simPress, "press", 2, "Press the button after N seconds")
	simulateCmd.Flags().IntVar(&simStop, "stop", 7, "Send STOP_MEASURE after N seconds")
	simulateCmd.Flags().StringVar(&simMQTT, "mqtt", "", "MQTT broker URL to publish host-side frames")
}

func runSimulate(cmd *cobra.Command, args []string) error {
	cfg := nodeConfig
	cfg.GPIO.Enabled = false
	if cmd.Flags().Changed("mqtt") {
		cfg.Bridge.Broker = simMQTT
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if simDuration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, time.Duration(simDuration)*time.Second)
		defer cancel()
	}

	nodeEnd, hostEnd := net.Pipe()

	hooks := nodeHooks{
		onDisplay: func(lines [2]string) {
			fmt.Printf("  [LCD] %q %q\n", lines[0], lines[1])
		},
	}
	ind, _, err := newIndicator(cfg, hooks)
	if err != nil {
		return err
	}
	rig, err := buildNode(cfg, nodeEnd, ind, hooks)
	if err != nil {
		nodeEnd.Close()
		hostEnd.Close()
		return err
	}
	defer rig.close()

	hostLink, err := transport.NewSerial(hostEnd, nil)
	if err != nil {
		return err
	}
	defer hostLink.Close()

	host := serp.NewEngine(hostLink)
	if err := host.Initialize(); err != nil {
		return err
	}

	fwd, closeBridge, err := startBridge(ctx, cfg.Bridge)
	if err != nil {
		return err
	}
	defer closeBridge()

	if err := host.RegisterReceiveCallback(func(m *serp.Message) {
		fmt.Print(serp.FormatMessage(m))
		if fwd != nil {
			fwd.Handle(m)
		}
	}); err != nil {
		return err
	}

	fmt.Printf("Thermonode - Simulation\n")
	fmt.Printf("Timer period: %s\n\n", rig.period)

	runDone := make(chan error, 1)
	go func() {
		runDone <- rig.run(ctx)
	}()

	var pressAt, stopAt <-chan time.Time
	if simPress > 0 {
		pressAt = time.After(time.Duration(simPress) * time.Second)
	}
	if simStop > 0 {
		stopAt = time.After(time.Duration(simStop) * time.Second)
	}

	for {
		select {
		case <-pressAt:
			fmt.Println("  [SIM] button pressed")
			rig.soft.Press()
		case <-stopAt:
			fmt.Println("  [SIM] host sends STOP_MEASURE")
			if err := host.Send(serp.MsgStopMeasure, nil); err != nil {
				log.Error().Err(err).Msg("host send failed")
			}
		case err := <-runDone:
			stats := rig.ctrl.Stats()
			fmt.Printf("\nNode: state %s, %d readings, %d sensor errors\n",
				stats.State, stats.Readings, stats.SensorFails)
			fmt.Print(host.Statistics().String())
			return err
		}
	}
}
