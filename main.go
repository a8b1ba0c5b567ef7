// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad
//
// Camlink - FPV camera control link tool
//
// A CLI tool for driving FPV cameras over the RunCam Device serial
// protocol: feature discovery, menu navigation, settings and stick gestures.

package main

import (
	"os"

	"github.com/Thermoquad/camlink/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
