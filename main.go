// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Thermonode - Thermal sensor node
//
// Runs a thermal sensor node speaking the SERP serial protocol, and the
// host-side tools to monitor, command and simulate it.

package main

import (
	"os"

	"github.com/Thermoquad/thermonode/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
