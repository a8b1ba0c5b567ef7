// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// cameraButtons maps command line names to camera control operations
var cameraButtons = map[string]uint8{
	"wifi":            rcdevice.CameraOpWifiButton,
	"power":           rcdevice.CameraOpPowerButton,
	"mode":            rcdevice.CameraOpChangeMode,
	"start-recording": rcdevice.CameraOpStartRecord,
	"stop-recording":  rcdevice.CameraOpStopRecord,
}

var buttonCmd = &cobra.Command{
	Use:   "button <wifi|power|mode|start-recording|stop-recording>",
	Short: "Simulate a camera button press",
	Long: `Simulate a press of one of the camera's physical buttons.

The camera does not acknowledge button presses, so success only means the
frame was written. The camera is queried first and the press is refused if
the feature mask does not list the button.

Exit codes:
  0 - Button frame sent
  1 - Button not supported or send failed
  2 - Connection error`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: buttonNames(),
	RunE:      runButton,
}

func init() {
	rootCmd.AddCommand(buttonCmd)
}

func buttonNames() []string {
	names := make([]string, 0, len(cameraButtons))
	for name := range cameraButtons {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func runButton(cmd *cobra.Command, args []string) error {
	operation, ok := cameraButtons[strings.ToLower(args[0])]
	if !ok {
		return fmt.Errorf("unknown button %q (valid: %s)", args[0], strings.Join(buttonNames(), ", "))
	}

	session, err := openSession(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer session.Close()

	fmt.Printf("Camlink - Camera Button\n")
	fmt.Printf("Connection: %s\n\n", session.Description)

	if err := session.Device.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "QUERY FAILED: %v\n", err)
		os.Exit(1)
	}

	if err := session.Device.SimulateCameraButton(operation); err != nil {
		fmt.Fprintf(os.Stderr, "BUTTON FAILED: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Sent %s\n", rcdevice.FormatCameraOperation(operation))
	return nil
}
