// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/thermonode/pkg/serp"
	"github.com/Thermoquad/thermonode/pkg/transport"
)

var sendCmd = &cobra.Command{
	Use:   "send start|stop|custom <text>",
	Short: "Send one SERP command frame to a node",
	Long: `Send one frame to a node and exit.

  start          START_MEASURE: switch the node to running
  stop           STOP_MEASURE: suspend the node
  custom <text>  CUSTOM with the text (NUL terminated) as payload

Supports both serial and WebSocket connections.`,
	Args:      cobra.MinimumNArgs(1),
	ValidArgs: []string{"start", "stop", "custom"},
	RunE:      runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)
}

// commandFrame maps the send arguments to a message
func commandFrame(args []string) (serp.MsgID, []byte, error) {
	switch strings.ToLower(args[0]) {
	case "start":
		return serp.MsgStartMeasure, nil, nil
	case "stop":
		return serp.MsgStopMeasure, nil, nil
	case "custom":
		if len(args) < 2 {
			return 0, nil, fmt.Errorf("custom needs a text argument")
		}
		payload := serp.TextPayload(strings.Join(args[1:], " "))
		if len(payload) > serp.MaxPayloadSize {
			return 0, nil, fmt.Errorf("%w: text is %d bytes with terminator, limit %d",
				serp.ErrEncoding, len(payload), serp.MaxPayloadSize)
		}
		return serp.MsgCustom, payload, nil
	default:
		return 0, nil, fmt.Errorf("unknown command %q (use start, stop or custom)", args[0])
	}
}

func runSend(cmd *cobra.Command, args []string) error {
	id, payload, err := commandFrame(args)
	if err != nil {
		return err
	}

	conn, connInfo, err := OpenConnection(nodeConfig.Serial)
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

	msg := serp.NewMessage(id, payload)
	if err := engine.Send(id, payload); err != nil {
		return fmt.Errorf("send %s: %w", serp.FormatMessageType(id), err)
	}

	fmt.Printf("Sent to %s:\n", connInfo)
	fmt.Print(serp.FormatMessage(msg))
	return nil
}
