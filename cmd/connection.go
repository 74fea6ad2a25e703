// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"github.com/Thermoquad/thermonode/pkg/config"
	"github.com/Thermoquad/thermonode/pkg/transport"
)

// EnvPassword holds the WebSocket password
const EnvPassword = "THERMONODE_PASSWORD"

// GetPassword retrieves password from environment or prompts user
func GetPassword() (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}

	fmt.Fprint(os.Stderr, "Password: ")

	passwordBytes, err := term.ReadPassword(int(syscall.Stdin))
	if err != nil {
		// Not a terminal: read a plain line
		reader := bufio.NewReader(os.Stdin)
		password, err := reader.ReadString('\n')
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		fmt.Fprintln(os.Stderr)
		return strings.TrimSpace(password), nil
	}

	fmt.Fprintln(os.Stderr)
	return string(passwordBytes), nil
}

// OpenConnection opens either a serial or WebSocket connection based on the
// [serial] section
func OpenConnection(sc config.SerialConfig) (transport.Conn, string, error) {
	if sc.URL != "" {
		password := ""
		if sc.Username != "" {
			var err error
			password, err = GetPassword()
			if err != nil {
				return nil, "", err
			}
		}

		conn, err := transport.DialWebSocket(sc.URL, sc.Username, password, sc.NoSSLVerify)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("WebSocket: %s", sc.URL), nil
	}

	if sc.Port != "" {
		conn, err := transport.OpenSerial(sc.Port, sc.Baud)
		if err != nil {
			return nil, "", err
		}
		return conn, fmt.Sprintf("Serial: %s @ %d baud", sc.Port, sc.Baud), nil
	}

	if ports, err := transport.ListSerialPorts(); err == nil && len(ports) > 0 {
		return nil, "", fmt.Errorf("either --port or --url must be specified (available ports: %s)", strings.Join(ports, ", "))
	}
	return nil, "", fmt.Errorf("either --port or --url must be specified")
}
