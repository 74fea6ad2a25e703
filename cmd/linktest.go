// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/serp"
)

var linkTestDuration int

var linkTestCmd = &cobra.Command{
	Use:   "link_test",
	Short: "Test raw link stability without decoding into messages",
	Long: `Connect and log every chunk of bytes received, in hex, for the given
duration. A decoder runs alongside and marks where frames complete or fail,
which helps to tell line noise from a node that is not framing correctly.

Nothing is sent on the link.

Exit codes:
  0 - Test completed normally
  1 - Connection lost during the test
  2 - Connection error`,
	RunE: runLinkTest,
}

func init() {
	rootCmd.AddCommand(linkTestCmd)
	linkTestCmd.Flags().IntVar(&linkTestDuration, "duration", 30, "Test duration in seconds")
}

func runLinkTest(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection(nodeConfig.Serial)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	fmt.Printf("Thermonode - Link Test\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Duration: %d seconds\n\n", linkTestDuration)

	readChan := make(chan []byte, 100)
	errChan := make(chan error, 1)

	go func() {
		buf := make([]byte, 256)
		for {
			n, err := conn.Read(buf)
			if n > 0 {
				data := make([]byte, n)
				copy(data, buf[:n])
				readChan <- data
			}
			if err != nil {
				errChan <- err
				return
			}
		}
	}()

	start := time.Now()
	endTime := start.Add(time.Duration(linkTestDuration) * time.Second)
	decoder := serp.NewDecoder()
	bytesReceived, frames, bad := 0, 0, 0

	report := func(result string) {
		fmt.Printf("\n--- Test Results ---\n")
		fmt.Printf("Duration: %v\n", time.Since(start).Round(time.Millisecond))
		fmt.Printf("Bytes received: %d\n", bytesReceived)
		fmt.Printf("Frames: %d valid, %d malformed\n", frames, bad)
		fmt.Printf("Result: %s\n", result)
	}

	fmt.Printf("Listening for data...\n\n")

	heartbeat := time.NewTicker(time.Second)
	defer heartbeat.Stop()

	for time.Now().Before(endTime) {
		select {
		case data := <-readChan:
			bytesReceived += len(data)
			fmt.Printf("[%s] Received %d bytes: %x\n",
				time.Now().Format("15:04:05.000"), len(data), data)
			for _, b := range data {
				m, err := decoder.DecodeByte(b)
				switch {
				case err != nil:
					bad++
					fmt.Printf("    ✗ %v\n", err)
				case m != nil:
					frames++
					fmt.Printf("    ✓ %s len=%d\n", serp.FormatMessageType(m.ID), m.Len())
				}
			}

		case err := <-errChan:
			fmt.Printf("\n[%s] Connection error: %v\n",
				time.Now().Format("15:04:05.000"), err)
			report("FAILED (connection error)")
			os.Exit(1)

		case <-heartbeat.C:
			remaining := time.Until(endTime).Seconds()
			if remaining > 0 {
				fmt.Printf("[%s] Still connected... (%.0fs remaining)\n",
					time.Now().Format("15:04:05.000"), remaining)
			}
		}
	}

	report("PASSED (connection stable)")
	return nil
}
