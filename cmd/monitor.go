// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/bridge"
	"github.com/Thermoquad/thermonode/pkg/config"
	"github.com/Thermoquad/thermonode/pkg/serp"
	"github.com/Thermoquad/thermonode/pkg/transport"
)

var (
	monitorStatsInterval int
	mqttBroker           string
	mqttNodeID           string
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode and display SERP frames as they arrive",
	Long: `Continuously decode and display SERP frames from a node, showing each
frame with timestamp, message type and decoded payload.

With --mqtt every decoded frame is also published as a CBOR record to
thermonode/<node-id>/messages. The node id defaults to an id derived from
this host's machine id.

Supports both serial and WebSocket connections.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().IntVar(&monitorStatsInterval, "stats", 0, "Print statistics every N seconds (0 = only on exit)")
	monitorCmd.Flags().StringVar(&mqttBroker, "mqtt", "", "MQTT broker URL (tcp://host:1883)")
	monitorCmd.Flags().StringVar(&mqttNodeID, "node-id", "", "Node id used in the MQTT topic")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	cfg := nodeConfig
	if cmd.Flags().Changed("mqtt") {
		cfg.Bridge.Broker = mqttBroker
	}
	if cmd.Flags().Changed("node-id") {
		cfg.Bridge.NodeID = mqttNodeID
	}

	conn, connInfo, err := OpenConnection(cfg.Serial)
	if err != nil {
		return err
	}
	link, err := transport.NewSerial(conn, nil)
	if err != nil {
		conn.Close()
		return err
	}
	defer link.Close()

	engine := serp.NewEngine(link)
	if err := engine.Initialize(); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Thermonode - Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)

	fwd, closeBridge, err := startBridge(ctx, cfg.Bridge)
	if err != nil {
		return err
	}
	defer closeBridge()

	fmt.Printf("Press Ctrl+C to exit\n\n")

	if err := engine.RegisterReceiveCallback(func(m *serp.Message) {
		fmt.Print(serp.FormatMessage(m))
		if fwd != nil {
			fwd.Handle(m)
		}
	}); err != nil {
		return err
	}

	var tick <-chan time.Time
	if monitorStatsInterval > 0 {
		ticker := time.NewTicker(time.Duration(monitorStatsInterval) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-tick:
			fmt.Print(engine.Statistics().String())
		case <-link.Stopped():
			fmt.Println("Connection closed")
			fmt.Print(engine.Statistics().String())
			return nil
		case <-ctx.Done():
			fmt.Println()
			fmt.Print(engine.Statistics().String())
			return nil
		}
	}
}

// startBridge connects the MQTT bridge when a broker is configured. The
// returned close function drains the queue and disconnects.
func startBridge(ctx context.Context, bc config.BridgeConfig) (*bridge.Forwarder, func(), error) {
	if bc.Broker == "" {
		return nil, func() {}, nil
	}

	nodeID := bc.NodeID
	if nodeID == "" {
		var err error
		if nodeID, err = bridge.NodeID(); err != nil {
			return nil, nil, err
		}
	}

	pub, err := bridge.NewMQTTPublisher(bc.Broker, nodeID)
	if err != nil {
		return nil, nil, err
	}
	fmt.Printf("Bridge: %s -> %s\n", bc.Broker, bridge.Topic(nodeID))

	fwd := bridge.NewForwarder(pub, bc.Queue)
	fwdCtx, cancel := context.WithCancel(ctx)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		fwd.Run(fwdCtx)
	}()

	return fwd, func() {
		cancel()
		wg.Wait()
		sent, failed, dropped := fwd.Counters()
		fmt.Printf("Bridge: %d published, %d failed, %d dropped\n", sent, failed, dropped)
		pub.Close()
	}, nil
}
