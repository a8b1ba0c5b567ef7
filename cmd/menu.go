// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/camera"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// menuKeys maps command line names to 5-key press operations
var menuKeys = map[string]uint8{
	"enter": rcdevice.KeyOpSet,
	"set":   rcdevice.KeyOpSet,
	"left":  rcdevice.KeyOpLeft,
	"right": rcdevice.KeyOpRight,
	"up":    rcdevice.KeyOpUp,
	"down":  rcdevice.KeyOpDown,
}

var menuCmd = &cobra.Command{
	Use:   "menu",
	Short: "Drive the camera OSD menu through the simulated 5-key cable",
	Long: `Send 5-key OSD cable commands to the camera.

A press must be followed by a release before the camera accepts the next
key. The camera closes its menu on its own if the connection is not used.

Examples:
  camlink menu open --port /dev/ttyUSB0
  camlink menu press down --port /dev/ttyUSB0
  camlink menu release --port /dev/ttyUSB0

Exit codes:
  0 - Command acknowledged
  1 - Command failed or unsupported
  2 - Connection error`,
}

var menuOpenCmd = &cobra.Command{
	Use:   "open",
	Short: "Open the 5-key connection (shows the camera menu)",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu("open", func(d *camera.Device) error { return d.OpenConnection() })
	},
}

var menuCloseCmd = &cobra.Command{
	Use:   "close",
	Short: "Close the 5-key connection",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu("close", func(d *camera.Device) error { return d.CloseConnection() })
	},
}

var menuPressCmd = &cobra.Command{
	Use:       "press <enter|left|right|up|down>",
	Short:     "Press one of the five keys",
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"enter", "left", "right", "up", "down"},
	RunE: func(cmd *cobra.Command, args []string) error {
		operation, ok := menuKeys[strings.ToLower(args[0])]
		if !ok {
			return fmt.Errorf("unknown key %q", args[0])
		}
		label := "press " + strings.ToLower(rcdevice.FormatKeyOperation(operation))
		return runMenu(label, func(d *camera.Device) error { return d.PressKey(operation) })
	},
}

var menuReleaseCmd = &cobra.Command{
	Use:   "release",
	Short: "Release the pressed key",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runMenu("release", func(d *camera.Device) error { return d.ReleaseKey() })
	},
}

func init() {
	rootCmd.AddCommand(menuCmd)
	menuCmd.AddCommand(menuOpenCmd, menuCloseCmd, menuPressCmd, menuReleaseCmd)
}

func runMenu(label string, action func(*camera.Device) error) error {
	session, err := openSession(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer session.Close()

	fmt.Printf("Camlink - Menu\n")
	fmt.Printf("Connection: %s\n\n", session.Description)

	if err := session.Device.Init(); err != nil {
		fmt.Fprintf(os.Stderr, "QUERY FAILED: %v\n", err)
		os.Exit(1)
	}

	if err := action(session.Device); err != nil {
		fmt.Fprintf(os.Stderr, "%s FAILED: %v\n", strings.ToUpper(label), err)
		os.Exit(1)
	}

	fmt.Printf("%s: OK\n", label)
	return nil
}
