// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2025 Kaz Walker, Thermoquad

package cmd

import (
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/Thermoquad/camlink/internal/config"
)

var (
	configPath string

	// Serial connection flags
	portName string
	baudRate int

	// WebSocket connection flags
	wsURL         string
	wsUsername    string
	wsNoSSLVerify bool

	// Device flags
	generationName string
	deviceID       uint8
	crcName        string
	simulate       bool

	// Logging flags
	logLevel  string
	logFormat string

	// Set by loadConfig before any command runs
	cfg    *config.Config
	logger *logrus.Logger
)

var rootCmd = &cobra.Command{
	Use:   "camlink",
	Short: "FPV camera control link tool",
	Long: `Camlink - A CLI tool for driving FPV cameras over their serial control link.

Speaks both protocol generations: the V2 device protocol (feature discovery,
5-key menu simulation, settings access, display port) and the legacy fixed
5-byte control protocol.

Connection modes:
  Serial:    --port /dev/ttyUSB0 [--baud 115200]
  WebSocket: --url ws://host/path [--username user]
  Simulated: --simulate

Settings can also come from a YAML file (--config). Flags that are set
explicitly override the file.

For WebSocket authentication, the password is read from the CAMLINK_PASSWORD
environment variable, or prompted interactively if not set. The --password
flag is intentionally not provided to avoid leaking credentials in shell history.`,
	Version:           "1.0.0",
	SilenceUsage:      true,
	PersistentPreRunE: loadConfig,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "YAML configuration file")

	// Serial connection flags
	rootCmd.PersistentFlags().StringVarP(&portName, "port", "p", "", "Serial port device")
	rootCmd.PersistentFlags().IntVarP(&baudRate, "baud", "b", 115200, "Baud rate (serial only)")

	// WebSocket connection flags
	rootCmd.PersistentFlags().StringVarP(&wsURL, "url", "u", "", "WebSocket URL (ws:// or wss://)")
	rootCmd.PersistentFlags().StringVar(&wsUsername, "username", "", "Username for HTTP Basic auth")
	rootCmd.PersistentFlags().BoolVar(&wsNoSSLVerify, "no-ssl-verify", false, "Skip TLS certificate verification (wss:// only)")

	// Device flags
	rootCmd.PersistentFlags().StringVarP(&generationName, "generation", "g", "v2", "Protocol generation (v2 or legacy)")
	rootCmd.PersistentFlags().Uint8Var(&deviceID, "device-id", 2, "Device id (V2 only, 1-15)")
	rootCmd.PersistentFlags().StringVar(&crcName, "crc", "poly31", "V2 frame checksum (poly31 or dvb-s2)")
	rootCmd.PersistentFlags().BoolVar(&simulate, "simulate", false, "Talk to a built-in simulated camera")

	// Logging flags
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "Log format (text or json)")
}

// loadConfig builds the effective configuration: defaults, then the config
// file, then explicitly set flags
func loadConfig(cmd *cobra.Command, args []string) error {
	c := config.Default()
	if configPath != "" {
		var err error
		if c, err = config.Load(configPath); err != nil {
			return err
		}
	}

	flags := cmd.Flags()
	if flags.Changed("port") {
		c.Serial.Port = portName
	}
	if flags.Changed("baud") {
		c.Serial.Baud = baudRate
	}
	if flags.Changed("url") {
		c.WebSocket.URL = wsURL
	}
	if flags.Changed("username") {
		c.WebSocket.Username = wsUsername
	}
	if flags.Changed("no-ssl-verify") {
		c.WebSocket.NoSSLVerify = wsNoSSLVerify
	}
	if flags.Changed("generation") {
		c.Device.Generation = generationName
	}
	if flags.Changed("device-id") {
		c.Device.DeviceID = deviceID
	}
	if flags.Changed("crc") {
		c.Device.CRC = crcName
	}
	if flags.Changed("log-level") {
		c.Log.Level = logLevel
	}
	if flags.Changed("log-format") {
		c.Log.Format = logFormat
	}

	if err := c.Validate(); err != nil {
		return err
	}

	cfg = c
	logger = setupLogger(c.Log)
	return nil
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
