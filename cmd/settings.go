// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/camera"
)

var settingsParent uint8

var settingsCmd = &cobra.Command{
	Use:   "settings",
	Short: "Read and write camera settings",
	Long: `Access the camera's settings tree (V2 cameras with settings access).

Settings form a tree of folders. Each setting has a numeric id, a name and
a typed value with optional range constraints.

Examples:
  camlink settings list --port /dev/ttyUSB0
  camlink settings detail 21 --port /dev/ttyUSB0
  camlink settings write 21 -25 --port /dev/ttyUSB0
  camlink settings export camera.yaml --port /dev/ttyUSB0
  camlink settings inspect camera.yaml

Exit codes:
  0 - Success
  1 - Query failed, refused or unsupported
  2 - Connection error`,
}

var settingsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the settings under a folder",
	Args:  cobra.NoArgs,
	RunE:  runSettingsList,
}

var settingsDetailCmd = &cobra.Command{
	Use:   "detail <id>",
	Short: "Show a setting's type, value and constraints",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsDetail,
}

var settingsWriteCmd = &cobra.Command{
	Use:   "write <id> <value>",
	Short: "Write a new value to a setting",
	Long: `Write a new value to a setting.

The setting's detail is read first so the value can be parsed and range
checked according to its type. Text selections accept either the option
text or its index.`,
	Args: cobra.ExactArgs(2),
	RunE: runSettingsWrite,
}

var settingsExportCmd = &cobra.Command{
	Use:   "export <file>",
	Short: "Save the whole settings tree to a .yaml or .cbor file",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsExport,
}

var settingsInspectCmd = &cobra.Command{
	Use:   "inspect <file>",
	Short: "Print a saved settings snapshot (no camera needed)",
	Args:  cobra.ExactArgs(1),
	RunE:  runSettingsInspect,
}

func init() {
	rootCmd.AddCommand(settingsCmd)
	settingsCmd.AddCommand(settingsListCmd, settingsDetailCmd, settingsWriteCmd, settingsExportCmd, settingsInspectCmd)
	settingsListCmd.Flags().Uint8Var(&settingsParent, "parent", camera.RootSettingID, "Folder id to list (0 is the root)")
}

// openInitialisedSession opens a session and queries the camera features,
// exiting with the command's error codes on failure
func openInitialisedSession(title string) *Session {
	session, err := openSession(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}

	fmt.Printf("Camlink - %s\n", title)
	fmt.Printf("Connection: %s\n\n", session.Description)

	if err := session.Device.Init(); err != nil {
		session.Close()
		fmt.Fprintf(os.Stderr, "QUERY FAILED: %v\n", err)
		os.Exit(1)
	}
	return session
}

func parseSettingID(s string) (uint8, error) {
	id, err := strconv.ParseUint(s, 0, 8)
	if err != nil {
		return 0, fmt.Errorf("invalid setting id %q", s)
	}
	return uint8(id), nil
}

func runSettingsList(cmd *cobra.Command, args []string) error {
	session := openInitialisedSession("Settings")
	defer session.Close()

	settings, err := session.Device.GetSettings(settingsParent)
	if err != nil {
		fmt.Fprintf(os.Stderr, "LIST FAILED: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("%-4s %-20s %s\n", "ID", "NAME", "VALUE")
	for _, s := range settings {
		fmt.Printf("%-4d %-20s %s\n", s.ID, s.Name, s.Value)
	}
	fmt.Printf("\n%d setting(s) under %d\n", len(settings), settingsParent)
	return nil
}

func runSettingsDetail(cmd *cobra.Command, args []string) error {
	id, err := parseSettingID(args[0])
	if err != nil {
		return err
	}

	session := openInitialisedSession("Setting Detail")
	defer session.Close()

	detail, err := session.Device.GetSettingDetail(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAIL FAILED: %v\n", err)
		os.Exit(1)
	}

	printSettingDetail(detail, "")
	return nil
}

func printSettingDetail(d *camera.SettingDetail, indent string) {
	fmt.Printf("%sID: %d\n", indent, d.ID)
	fmt.Printf("%sType: %s\n", indent, d.Type)
	fmt.Printf("%sValue: %s\n", indent, d.FormatValue())

	switch d.Type {
	case camera.SettingUint8, camera.SettingInt8, camera.SettingUint16, camera.SettingInt16, camera.SettingFloat:
		lo := camera.SettingDetail{Type: d.Type, Value: d.Min, DecimalPoint: d.DecimalPoint}
		hi := camera.SettingDetail{Type: d.Type, Value: d.Max, DecimalPoint: d.DecimalPoint}
		fmt.Printf("%sRange: %s .. %s\n", indent, lo.FormatValue(), hi.FormatValue())
		if d.Step != 0 {
			step := camera.SettingDetail{Type: d.Type, Value: d.Step, DecimalPoint: d.DecimalPoint}
			fmt.Printf("%sStep: %s\n", indent, step.FormatValue())
		}
	case camera.SettingTextSelection:
		for i, option := range d.Selections {
			fmt.Printf("%s  %d: %s\n", indent, i, option)
		}
	case camera.SettingString:
		fmt.Printf("%sMax length: %d\n", indent, d.MaxStringSize)
	}
}

func runSettingsWrite(cmd *cobra.Command, args []string) error {
	id, err := parseSettingID(args[0])
	if err != nil {
		return err
	}

	session := openInitialisedSession("Setting Write")
	defer session.Close()

	detail, err := session.Device.GetSettingDetail(id)
	if err != nil {
		fmt.Fprintf(os.Stderr, "DETAIL FAILED: %v\n", err)
		os.Exit(1)
	}

	data, err := detail.EncodeValue(args[1])
	if err != nil {
		fmt.Fprintf(os.Stderr, "INVALID VALUE: %v\n", err)
		os.Exit(1)
	}

	result, err := session.Device.WriteSetting(id, data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "WRITE FAILED: %v\n", err)
		os.Exit(1)
	}
	if !result.OK() {
		fmt.Fprintf(os.Stderr, "WRITE REFUSED: result code %d\n", result.ResultCode)
		os.Exit(1)
	}

	fmt.Printf("Setting %d written: %s\n", id, args[1])
	if result.NeedUpdateMenuItems {
		fmt.Printf("Camera reports menu items changed; list settings again to refresh\n")
	}
	return nil
}

func runSettingsExport(cmd *cobra.Command, args []string) error {
	path := args[0]
	format, err := camera.SnapshotFormat(path)
	if err != nil {
		return err
	}

	session := openInitialisedSession("Settings Export")
	defer session.Close()

	snap, err := session.Device.TakeSnapshot()
	if err != nil {
		fmt.Fprintf(os.Stderr, "SNAPSHOT FAILED: %v\n", err)
		os.Exit(1)
	}

	data, err := camera.EncodeSnapshot(snap, format)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}

	fmt.Printf("Saved %d setting(s) to %s (%s)\n", len(snap.Settings), path, format)
	return nil
}

func runSettingsInspect(cmd *cobra.Command, args []string) error {
	path := args[0]
	format, err := camera.SnapshotFormat(path)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}
	snap, err := camera.DecodeSnapshot(data, format)
	if err != nil {
		return err
	}

	fmt.Printf("Snapshot taken %s\n", snap.TakenAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Printf("Device: %s\n\n", snap.Device)
	for _, entry := range snap.Settings {
		fmt.Printf("[%d] %s (parent %d)\n", entry.Setting.ID, entry.Setting.Name, entry.Parent)
		if entry.Detail != nil {
			printSettingDetail(entry.Detail, "    ")
		} else {
			fmt.Printf("    Value: %s\n", entry.Setting.Value)
		}
	}
	return nil
}
