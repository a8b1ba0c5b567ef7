// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/camera"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Query camera identity and supported features",
	Long: `Query the camera's device information and print its feature mask.

V2 cameras are asked with GetDeviceInfo. Legacy split cameras have no
information query; an identify control frame is sent instead and an echo
confirms the camera is present.

Exit codes:
  0 - Camera answered
  1 - Query failed (timeout or invalid response)
  2 - Connection error`,
	RunE: runInfo,
}

func init() {
	rootCmd.AddCommand(infoCmd)
}

func runInfo(cmd *cobra.Command, args []string) error {
	session, err := openSession(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer session.Close()

	fmt.Printf("Camlink - Device Info\n")
	fmt.Printf("Connection: %s\n", session.Description)
	fmt.Printf("Generation: %s\n", session.Engine.Generation())
	fmt.Printf("Device ID: %d\n\n", session.Engine.DeviceID())

	if err := session.Device.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "QUERY FAILED: %v\n", err)
		os.Exit(1)
	}

	printDeviceInfo(session.Device.Info())
	return nil
}

func printDeviceInfo(info camera.DeviceInfo) {
	firmware := info.FirmwareVersion
	if firmware == "" {
		firmware = "n/a"
	}

	fmt.Printf("Protocol version: %d\n", info.ProtocolVersion)
	fmt.Printf("Firmware: %s\n", firmware)
	fmt.Printf("Features: 0x%04X\n", info.Features)

	registry := info.Registry()
	for _, feature := range camera.AllFeatures {
		mark := " "
		if registry.IsSupported(feature) {
			mark = "x"
		}
		fmt.Printf("  [%s] %s\n", mark, feature)
	}
}
