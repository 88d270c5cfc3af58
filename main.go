// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// armctl - Assistive Arm Actuator Control
//
// Drives the two Cubemars joint actuators of a sit-to-stand assistive arm:
// calibration, fixed-rate torque assistance and bus diagnostics.

package main

import (
	"fmt"
	"os"

	"github.com/abilitylab/armctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
