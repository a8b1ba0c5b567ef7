// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/camera"
	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

var (
	pingCount    int
	pingInterval time.Duration
)

var pingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Measure link round trip time with repeated device info queries",
	Long: `Send GetDeviceInfo repeatedly and report the round trip time of each answer.

Each ping is a single transmission with no retry, so losses show up directly
in the summary. Legacy cameras are pinged with the identify control frame.

This is useful for verifying:
  - The serial line or WebSocket bridge carries traffic both ways
  - The configured device id is correct
  - The response timeout suits the link

Exit codes:
  0 - All pings answered
  1 - One or more pings failed
  2 - Connection error`,
	RunE: runPing,
}

func init() {
	rootCmd.AddCommand(pingCmd)
	pingCmd.Flags().IntVar(&pingCount, "count", 5, "Number of pings to send")
	pingCmd.Flags().DurationVar(&pingInterval, "interval", 100*time.Millisecond, "Delay between pings")
}

func runPing(cmd *cobra.Command, args []string) error {
	session, err := openSession(nil)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer session.Close()

	fmt.Printf("Camlink - Ping\n")
	fmt.Printf("Connection: %s\n", session.Description)
	fmt.Printf("Timeout: %s per ping\n", cfg.Link.ResponseTimeout)
	fmt.Printf("Count: %d pings\n\n", pingCount)

	req := link.Request{Command: rcdevice.CmdGetDeviceInfo, Attempts: 1}
	if session.Engine.Generation() == rcdevice.GenerationLegacy {
		req = link.Request{Payload: []byte{rcdevice.LegacyArgIdentify}, Attempts: 1}
	}

	successCount := 0
	failCount := 0
	var minRTT, maxRTT, totalRTT time.Duration

	for i := 1; i <= pingCount; i++ {
		fmt.Printf("Ping %d/%d: ", i, pingCount)

		start := time.Now()
		frame, err := session.Engine.SendAndAwait(req)
		rtt := time.Since(start)

		switch {
		case errors.Is(err, rcdevice.ErrTimeout):
			fmt.Printf("TIMEOUT (no response in %s)\n", cfg.Link.ResponseTimeout)
			failCount++
		case err != nil:
			fmt.Printf("FAILED: %v\n", err)
			failCount++
		default:
			fmt.Printf("reply from device %d, %s, rtt=%v\n", frame.DeviceID(), pingReply(frame), rtt.Round(time.Microsecond))
			successCount++
			totalRTT += rtt
			if minRTT == 0 || rtt < minRTT {
				minRTT = rtt
			}
			if rtt > maxRTT {
				maxRTT = rtt
			}
		}

		if i < pingCount {
			time.Sleep(pingInterval)
		}
	}

	// Summary
	fmt.Printf("\n--- Ping statistics ---\n")
	fmt.Printf("%d pings sent, %d responses received, %.0f%% loss\n",
		pingCount, successCount, float64(failCount)/float64(pingCount)*100)
	if successCount > 0 {
		fmt.Printf("rtt min/avg/max = %v/%v/%v\n",
			minRTT.Round(time.Microsecond),
			(totalRTT / time.Duration(successCount)).Round(time.Microsecond),
			maxRTT.Round(time.Microsecond))
	}

	stats := session.Engine.Statistics()
	if stats.CRCErrors > 0 || stats.FramingErrors > 0 {
		fmt.Printf("%d checksum errors, %d framing errors\n", stats.CRCErrors, stats.FramingErrors)
	}

	if failCount > 0 {
		os.Exit(1)
	}
	return nil
}

func pingReply(f *rcdevice.Frame) string {
	if f.Generation() == rcdevice.GenerationLegacy {
		return "identify echo"
	}
	info, err := camera.ParseDeviceInfo(f.Payload())
	if err != nil {
		return fmt.Sprintf("unparsable info: %v", err)
	}
	return "firmware " + info.FirmwareVersion
}
