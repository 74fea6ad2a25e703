// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/serp"
	"github.com/Thermoquad/thermonode/pkg/transport"
)

var (
	packetTestTimeout int
)

var packetTestCmd = &cobra.Command{
	Use:   "packet_test",
	Short: "Test connection by waiting for a valid SERP frame",
	Long: `Wait for a valid SERP frame on the connection until timeout.

This command connects to a serial port or WebSocket and waits for any valid
SERP frame. Noise and malformed frames are skipped. A suspended node sends
LIVE_SIGN once per timer period, so a healthy link passes quickly.

Exit codes:
  0 - Frame received before timeout
  1 - Timeout reached without receiving a valid frame
  2 - Connection error`,
	RunE: runPacketTest,
}

func init() {
	rootCmd.AddCommand(packetTestCmd)
	packetTestCmd.Flags().IntVar(&packetTestTimeout, "timeout", 10, "Timeout in seconds to wait for a frame")
}

func runPacketTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(nodeConfig.Serial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	link, err := transport.NewSerial(conn, nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer link.Close()

	fmt.Printf("Thermonode - Packet Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Timeout: %d seconds\n", packetTestTimeout)
	fmt.Printf("Waiting for valid SERP frame...\n\n")

	engine := serp.NewEngine(link)
	if err := engine.Initialize(); err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	msgChan := make(chan *serp.Message, 1)
	if err := engine.RegisterReceiveCallback(func(m *serp.Message) {
		select {
		case msgChan <- m:
		default:
		}
	}); err != nil {
		return err
	}

	select {
	case m := <-msgChan:
		snap := engine.Statistics().Snapshot()
		if dropped := snap.Dropped(); dropped > 0 {
			fmt.Printf("(skipped %d malformed frames before sync)\n", dropped)
		}
		fmt.Printf("SUCCESS: Received valid frame\n")
		fmt.Printf("  Type: %s (%d)\n", serp.FormatMessageType(m.ID), m.ID)
		fmt.Printf("  Length: %d bytes\n", m.Len())
		link.Close()
		os.Exit(0)

	case <-link.Stopped():
		fmt.Fprintf(os.Stderr, "Read error: connection closed\n")
		os.Exit(2)

	case <-time.After(time.Duration(packetTestTimeout) * time.Second):
		fmt.Fprintf(os.Stderr, "TIMEOUT: No valid frame received within %d seconds\n", packetTestTimeout)
		link.Close()
		os.Exit(1)
	}

	return nil
}
