// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

var rawLogCmd = &cobra.Command{
	Use:   "raw_log",
	Short: "Display every frame on the link in human-readable format",
	Long: `Continuously decode and display camera link frames as they arrive.

Requests and responses share one frame format, so on a tapped line both
directions are shown. Each frame is printed with timestamp, command and
decoded payload. Decode errors are printed with the bytes that were dropped.

Supports both serial and WebSocket connections.`,
	RunE: runRawLog,
}

func init() {
	rootCmd.AddCommand(rawLogCmd)
}

func runRawLog(cmd *cobra.Command, args []string) error {
	conn, connInfo, err := OpenConnection()
	if err != nil {
		return err
	}
	defer conn.Close()

	fmt.Printf("Camlink - Raw Frame Log\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Generation: %s, device %d\n", cfg.Generation(), cfg.Device.DeviceID)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	decoder := configuredDecoder()
	buf := make([]byte, 128)

	for {
		n, err := conn.Read(buf)
		if err != nil {
			// A WebSocket read error means the connection is gone
			if errors.Is(err, ErrConnectionClosed) {
				logger.Info("connection closed")
				return nil
			}
			return fmt.Errorf("read error: %w", err)
		}

		for i := 0; i < n; i++ {
			var partial []byte
			if decoder.State() != rcdevice.StateAwaitHeader {
				partial = append(partial, decoder.GetRawBytes()...)
			}
			frame, err := decoder.DecodeByte(buf[i])
			if err != nil {
				fmt.Printf("[ERROR] %v (dropped %s)\n", err, rcdevice.FormatHex(append(partial, buf[i])))
				continue
			}
			if frame != nil {
				fmt.Print(rcdevice.FormatFrame(frame))
			}
		}
	}
}
