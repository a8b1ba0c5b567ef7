// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"fmt"
	"os"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

var (
	showAll       bool
	statsInterval int
	useTUI        bool
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Passively decode camera responses and track link errors",
	Long: `Listen on the link without transmitting and decode every camera frame.

Attach to the camera's TX line (or a bridge forwarding it) while a flight
controller drives the camera. Each frame is validated and these problems
are reported:
  - CRC errors and framing failures
  - Responses whose payload does not match the command
  - Statistics and trends (frame rate, error rate)

Decode errors before the first valid frame are counted as sync noise, not
errors. By default, only errors are displayed. Use --show-all to display
valid frames too.`,
	RunE: runMonitor,
}

func init() {
	rootCmd.AddCommand(monitorCmd)
	monitorCmd.Flags().BoolVar(&showAll, "show-all", false, "Show all frames (not just errors)")
	monitorCmd.Flags().IntVar(&statsInterval, "stats-interval", 10, "Statistics update interval (seconds)")
	monitorCmd.Flags().BoolVar(&useTUI, "tui", true, "Use terminal UI (false for text mode)")
}

func runMonitor(cmd *cobra.Command, args []string) error {
	if simulate {
		return fmt.Errorf("monitor needs a real link; --simulate has no traffic to observe")
	}

	conn, connInfo, err := OpenConnection()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Connection error: %v\n", err)
		os.Exit(2)
	}
	defer conn.Close()

	if useTUI {
		return runMonitorTUI(conn, connInfo)
	}
	return runMonitorText(conn, connInfo)
}

// frameMonitor decodes a passive byte stream and tracks synchronisation.
// Decode errors before the first valid frame are sync noise.
type frameMonitor struct {
	decoder      *rcdevice.Decoder
	synchronized bool
	invalidBytes int
}

// monitorEvent is one decoded outcome of the byte stream
type monitorEvent struct {
	frame            *rcdevice.Frame
	decodeErr        error
	validationErrors []rcdevice.ValidationError
	synced           bool // first valid frame
	invalidBytes     int  // bytes skipped before sync
}

func newFrameMonitor() *frameMonitor {
	return &frameMonitor{decoder: configuredDecoder()}
}

// configuredDecoder creates a decoder for the configured device
func configuredDecoder() *rcdevice.Decoder {
	decoder := rcdevice.NewDecoder(cfg.Generation(), cfg.Device.DeviceID)
	decoder.SetCRC(cfg.CRC())
	return decoder
}

// feed decodes data and returns the events it produced
func (m *frameMonitor) feed(data []byte) []monitorEvent {
	var out []monitorEvent
	for _, b := range data {
		frame, decodeErr := m.decoder.DecodeByte(b)
		switch {
		case decodeErr != nil:
			if m.synchronized {
				out = append(out, monitorEvent{decodeErr: decodeErr})
			} else {
				m.invalidBytes++
			}
		case frame != nil:
			ev := monitorEvent{frame: frame, validationErrors: rcdevice.ValidateResponse(frame)}
			if !m.synchronized {
				m.synchronized = true
				ev.synced = true
				ev.invalidBytes = m.invalidBytes
			}
			out = append(out, ev)
		}
	}
	return out
}

// record updates stats with an event
func (ev monitorEvent) record(stats *link.Statistics) {
	if ev.decodeErr != nil {
		stats.RecordDecodeError(ev.decodeErr)
		return
	}
	stats.RecordFrame(ev.validationErrors)
}

// readLoop copies conn into out until a read fails
func readLoop(conn Connection, out chan<- []byte, errs chan<- error) {
	buf := make([]byte, 128)
	for {
		n, err := conn.Read(buf)
		if err != nil {
			errs <- err
			return
		}
		data := make([]byte, n)
		copy(data, buf[:n])
		out <- data
	}
}

// printDecodeError prints a decode error in highlighted format
func printDecodeError(err error) {
	timestamp := time.Now().Format("15:04:05.000")
	fmt.Printf("[%s] \033[1;31mDECODE ERROR:\033[0m %v\n", timestamp, err)
	fmt.Printf("  >>> DECODE FAILED <<<\n\n")
}

// printValidationErrors prints validation errors for a frame
func printValidationErrors(f *rcdevice.Frame, errs []rcdevice.ValidationError) {
	timestamp := f.Timestamp().Format("15:04:05.000")

	fmt.Printf("[%s] \033[1;33mVALIDATION ERROR:\033[0m %s (0x%02X)\n", timestamp, rcdevice.FormatCommand(f.Command()), f.Command())
	fmt.Printf("  CRC: \033[1;32mOK\033[0m\n")

	for i, err := range errs {
		switch err.Type {
		case rcdevice.AnomalyLengthMismatch:
			fmt.Printf("  Issue %d: \033[1;31m%s\033[0m\n", i+1, err.Message)
			if received, ok := err.Details["length"].(int); ok {
				if expected, ok := err.Details["expected"].(int); ok {
					fmt.Printf("    Length: received=%d, expected=%d\n", received, expected)
				}
			}
		case rcdevice.AnomalyInvalidValue:
			fmt.Printf("  Issue %d: \033[1;33m%s\033[0m\n", i+1, err.Message)
		default:
			fmt.Printf("  Issue %d: %s\n", i+1, err.Message)
		}
	}

	fmt.Printf("  Payload: %s\n", rcdevice.FormatHex(f.Payload()))
	fmt.Printf("  >>> FRAME REJECTED <<<\n\n")
}

// runMonitorText prints frames and errors as they arrive
func runMonitorText(conn Connection, connInfo string) error {
	fmt.Printf("Camlink - Link Monitor\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Generation: %s\n", cfg.Generation())
	fmt.Printf("Statistics interval: %d seconds\n", statsInterval)
	if showAll {
		fmt.Printf("Mode: All frames\n")
	} else {
		fmt.Printf("Mode: Errors only\n")
	}
	fmt.Printf("Press Ctrl+C to exit\n\n")

	mon := newFrameMonitor()
	stats := link.NewStatistics()

	statsTicker := time.NewTicker(time.Duration(statsInterval) * time.Second)
	defer statsTicker.Stop()

	data := make(chan []byte, 10)
	readErr := make(chan error, 1)
	go readLoop(conn, data, readErr)

	for {
		select {
		case chunk := <-data:
			for _, ev := range mon.feed(chunk) {
				ev.record(stats)

				if ev.synced {
					if ev.invalidBytes > 0 {
						fmt.Printf("[SYNC] Synchronized after skipping %d invalid bytes\n\n", ev.invalidBytes)
					} else {
						fmt.Printf("[SYNC] Synchronized\n\n")
					}
				}

				switch {
				case ev.decodeErr != nil:
					printDecodeError(ev.decodeErr)
				case len(ev.validationErrors) > 0:
					printValidationErrors(ev.frame, ev.validationErrors)
				case showAll:
					fmt.Print(rcdevice.FormatFrame(ev.frame))
				}
			}

		case err := <-readErr:
			fmt.Println()
			fmt.Print(stats.String())
			return fmt.Errorf("read error: %w", err)

		case <-statsTicker.C:
			fmt.Println()
			fmt.Print(stats.String())
			fmt.Println()
		}
	}
}

// runMonitorTUI runs the monitor in the terminal UI
func runMonitorTUI(conn Connection, connInfo string) error {
	quietForTUI(logger)

	m := newMonitorModel(connInfo, showAll)
	p := tea.NewProgram(m, tea.WithAltScreen())

	go func() {
		mon := newFrameMonitor()
		data := make(chan []byte, 10)
		readErr := make(chan error, 1)
		go readLoop(conn, data, readErr)

		for {
			select {
			case chunk := <-data:
				for _, ev := range mon.feed(chunk) {
					p.Send(ev)
				}
			case err := <-readErr:
				p.Send(linkClosedMsg{err: err})
				return
			}
		}
	}()

	if _, err := p.Run(); err != nil {
		return fmt.Errorf("TUI error: %v", err)
	}
	return nil
}
