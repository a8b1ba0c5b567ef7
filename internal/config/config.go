// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package config holds camlink's YAML configuration
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Thermoquad/camlink/pkg/gesture"
	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

type Config struct {
	Serial    SerialConfig    `yaml:"serial"`
	WebSocket WebSocketConfig `yaml:"websocket"`
	Device    DeviceConfig    `yaml:"device"`
	Link      LinkConfig      `yaml:"link"`
	Gesture   GestureConfig   `yaml:"gesture"`
	Log       LogConfig       `yaml:"log"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Events    EventsConfig    `yaml:"events"`
}

type SerialConfig struct {
	Port string `yaml:"port"`
	Baud int    `yaml:"baud"`
}

type WebSocketConfig struct {
	URL         string `yaml:"url"`
	Username    string `yaml:"username"`
	NoSSLVerify bool   `yaml:"no_ssl_verify"`
}

type DeviceConfig struct {
	Name       string `yaml:"name"`
	Generation string `yaml:"generation"`
	DeviceID   uint8  `yaml:"device_id"`
	CRC        string `yaml:"crc"` // poly31 or dvb-s2, V2 only
}

type LinkConfig struct {
	ResponseTimeout    time.Duration `yaml:"response_timeout"`
	ConnectionAttempts int           `yaml:"connection_attempts"`
	PressAttempts      int           `yaml:"press_attempts"`
	PollInterval       time.Duration `yaml:"poll_interval"`
}

type GestureConfig struct {
	LowThreshold     uint16        `yaml:"low_threshold"`
	HighThreshold    uint16        `yaml:"high_threshold"`
	DisconnectHold   time.Duration `yaml:"disconnect_hold"`
	FailurePolicy    string        `yaml:"failure_policy"`
	HandshakeGesture string        `yaml:"handshake_gesture"`
	TickInterval     time.Duration `yaml:"tick_interval"`
}

type LogConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

type EventsConfig struct {
	Log   bool        `yaml:"log"`
	Redis RedisConfig `yaml:"redis"`
}

type RedisConfig struct {
	Enabled    bool   `yaml:"enabled"`
	Addr       string `yaml:"addr"`
	Password   string `yaml:"password"`
	DB         int    `yaml:"db"`
	Channel    string `yaml:"channel"`
	HistoryLen int64  `yaml:"history_len"`
}

// Default returns the built-in configuration
func Default() *Config {
	return &Config{
		Serial: SerialConfig{
			Baud: 115200,
		},
		Device: DeviceConfig{
			Name:       "camera",
			Generation: "v2",
			DeviceID:   rcdevice.DefaultDeviceID,
			CRC:        rcdevice.CRCPoly31.String(),
		},
		Link: LinkConfig{
			ResponseTimeout:    link.DefaultResponseTimeout,
			ConnectionAttempts: link.ConnectionAttempts,
			PressAttempts:      link.PressAttempts,
			PollInterval:       link.DefaultPollInterval,
		},
		Gesture: GestureConfig{
			LowThreshold:     gesture.DefaultLowThreshold,
			HighThreshold:    gesture.DefaultHighThreshold,
			DisconnectHold:   gesture.DefaultDisconnectHold,
			FailurePolicy:    gesture.DisconnectOnAnyFailure.String(),
			HandshakeGesture: gesture.HandshakeEnterAndUp.String(),
			TickInterval:     20 * time.Millisecond,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
		Metrics: MetricsConfig{
			Addr: ":9090",
		},
		Events: EventsConfig{
			Redis: RedisConfig{
				Addr:    "localhost:6379",
				Channel: "camlink:events",
			},
		},
	}
}

// Load reads path over the defaults. Keys missing from the file keep their
// default values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file %s: %w", path, err)
	}
	return cfg, nil
}

// Marshal renders the configuration as YAML
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// Validate checks every section and returns all problems found
func (c *Config) Validate() error {
	var errs []error

	if c.Serial.Baud <= 0 {
		errs = append(errs, fmt.Errorf("serial.baud must be positive, got %d", c.Serial.Baud))
	}
	if _, ok := rcdevice.ParseGeneration(c.Device.Generation); !ok {
		errs = append(errs, fmt.Errorf("device.generation must be v2 or legacy, got %q", c.Device.Generation))
	}
	if c.Device.DeviceID > rcdevice.MaxDeviceID {
		errs = append(errs, fmt.Errorf("device.device_id must be at most %d, got %d", rcdevice.MaxDeviceID, c.Device.DeviceID))
	}
	if _, err := rcdevice.ParseCRCAlgorithm(c.Device.CRC); err != nil {
		errs = append(errs, fmt.Errorf("device.crc must be poly31 or dvb-s2, got %q", c.Device.CRC))
	}

	if c.Link.ResponseTimeout <= 0 {
		errs = append(errs, errors.New("link.response_timeout must be positive"))
	}
	if c.Link.ConnectionAttempts < 1 || c.Link.PressAttempts < 1 {
		errs = append(errs, errors.New("link attempts must be at least 1"))
	}
	if c.Link.PollInterval < 0 {
		errs = append(errs, errors.New("link.poll_interval must not be negative"))
	}

	if err := c.Thresholds().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("gesture: %w", err))
	}
	if c.Gesture.DisconnectHold <= 0 {
		errs = append(errs, errors.New("gesture.disconnect_hold must be positive"))
	}
	if c.Gesture.TickInterval <= 0 {
		errs = append(errs, errors.New("gesture.tick_interval must be positive"))
	}
	if _, err := gesture.ParseFailurePolicy(c.Gesture.FailurePolicy); err != nil {
		errs = append(errs, fmt.Errorf("gesture.failure_policy: %w", err))
	}
	if _, err := gesture.ParseHandshakeGesture(c.Gesture.HandshakeGesture); err != nil {
		errs = append(errs, fmt.Errorf("gesture.handshake_gesture: %w", err))
	}

	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("log.format must be text or json, got %q", c.Log.Format))
	}
	switch strings.ToLower(c.Log.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Log.FilePath == "" {
			errs = append(errs, errors.New("log.file_path is required when log.output is file"))
		}
	default:
		errs = append(errs, fmt.Errorf("log.output must be stdout, stderr or file, got %q", c.Log.Output))
	}

	if c.Metrics.Enabled && c.Metrics.Addr == "" {
		errs = append(errs, errors.New("metrics.addr is required when metrics are enabled"))
	}
	if c.Events.Redis.Enabled && c.Events.Redis.Addr == "" {
		errs = append(errs, errors.New("events.redis.addr is required when redis events are enabled"))
	}

	return errors.Join(errs...)
}

// Generation returns the configured protocol generation
func (c *Config) Generation() rcdevice.Generation {
	gen, _ := rcdevice.ParseGeneration(c.Device.Generation)
	return gen
}

// CRC returns the configured V2 checksum algorithm
func (c *Config) CRC() rcdevice.CRCAlgorithm {
	alg, _ := rcdevice.ParseCRCAlgorithm(c.Device.CRC)
	return alg
}

// Thresholds returns the configured stick thresholds
func (c *Config) Thresholds() gesture.Thresholds {
	return gesture.Thresholds{Low: c.Gesture.LowThreshold, High: c.Gesture.HighThreshold}
}

// GestureOptions builds decoder options from the gesture section. Invalid
// policy names fall back to the defaults; Validate reports them.
func (c *Config) GestureOptions() gesture.Options {
	policy, _ := gesture.ParseFailurePolicy(c.Gesture.FailurePolicy)
	handshake, _ := gesture.ParseHandshakeGesture(c.Gesture.HandshakeGesture)
	return gesture.Options{
		Thresholds:     c.Thresholds(),
		DisconnectHold: c.Gesture.DisconnectHold,
		FailurePolicy:  policy,
		Handshake:      handshake,
	}
}
