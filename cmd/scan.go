// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/camera"
	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

var scanCmd = &cobra.Command{
	Use:   "scan",
	Short: "Probe every V2 device id for a camera",
	Long: `Send GetDeviceInfo to each V2 device id (1-15) and list the ones that answer.

Each id gets a single attempt with the configured response timeout, so a
full scan takes at most 15 timeouts. Legacy split cameras have no device id
and cannot be scanned.

Exit codes:
  0 - At least one device found
  1 - No devices found
  2 - Connection error`,
	RunE: runScan,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

type scanResult struct {
	id   uint8
	info camera.DeviceInfo
}

func runScan(cmd *cobra.Command, args []string) error {
	if cfg.Generation() == rcdevice.GenerationLegacy {
		fmt.Fprintf(os.Stderr, "scan requires the V2 protocol\n")
		os.Exit(2)
	}

	session, err := openSession(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer session.Close()

	fmt.Printf("Camlink - Device Scan\n")
	fmt.Printf("Connection: %s\n", session.Description)
	fmt.Printf("Timeout per id: %s\n\n", cfg.Link.ResponseTimeout)

	clock := link.NewSystemClock()
	found := make([]scanResult, 0)

	for id := uint8(1); id <= rcdevice.MaxDeviceID; id++ {
		engine := link.NewEngine(session.Transport(), clock, engineOptions(id, nil))
		frame, err := engine.SendAndAwait(link.Request{
			Command:  rcdevice.CmdGetDeviceInfo,
			Attempts: 1,
		})
		if err != nil {
			fmt.Printf("  id %2d: no response\n", id)
			continue
		}

		info, err := camera.ParseDeviceInfo(frame.Payload())
		if err != nil {
			fmt.Printf("  id %2d: invalid response: %v\n", id, err)
			continue
		}

		found = append(found, scanResult{id: id, info: info})
		fmt.Printf("  id %2d: %s\n", id, info)
	}

	fmt.Printf("\n")
	if len(found) == 0 {
		fmt.Printf("No devices found\n")
		os.Exit(1)
	}

	fmt.Printf("Found %d device(s)\n", len(found))
	return nil
}
