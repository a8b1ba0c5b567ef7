// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package gesture turns flight stick positions into 5-key menu commands.
//
// The Decoder samples roll, pitch, yaw and throttle every control tick,
// classifies each channel as Low, Mid or High and runs the menu connection
// state machine on top of a camera.Device: handshake, directional presses,
// hold-to-disconnect and the release that must follow every press.
package gesture

import "fmt"

// Default stick thresholds in microseconds
const (
	DefaultLowThreshold  = 1250
	DefaultHighThreshold = 1750
)

// Position is a classified stick channel
type Position uint8

const (
	PositionMid Position = iota
	PositionLow
	PositionHigh
)

// String returns the position name
func (p Position) String() string {
	switch p {
	case PositionLow:
		return "low"
	case PositionHigh:
		return "high"
	default:
		return "mid"
	}
}

// Sticks holds one sample of the four stick channels
type Sticks struct {
	Roll     uint16
	Pitch    uint16
	Yaw      uint16
	Throttle uint16
}

// Centered returns sticks with every channel at 1500
func Centered() Sticks {
	return Sticks{Roll: 1500, Pitch: 1500, Yaw: 1500, Throttle: 1500}
}

// String formats the sample for logs
func (s Sticks) String() string {
	return fmt.Sprintf("roll=%d pitch=%d yaw=%d throttle=%d", s.Roll, s.Pitch, s.Yaw, s.Throttle)
}

// Thresholds split a channel into Low, Mid and High. The band between them
// is deliberately wide so stick jitter cannot trigger a press.
type Thresholds struct {
	Low  uint16
	High uint16
}

// DefaultThresholds returns the standard 1250/1750 split
func DefaultThresholds() Thresholds {
	return Thresholds{Low: DefaultLowThreshold, High: DefaultHighThreshold}
}

// Validate checks that Low is below High
func (t Thresholds) Validate() error {
	if t.Low >= t.High {
		return fmt.Errorf("low threshold %d must be below high threshold %d", t.Low, t.High)
	}
	return nil
}

// Classify maps a channel value to a position
func (t Thresholds) Classify(value uint16) Position {
	switch {
	case value < t.Low:
		return PositionLow
	case value > t.High:
		return PositionHigh
	default:
		return PositionMid
	}
}

// positions is a classified sample
type positions struct {
	roll, pitch, yaw, throttle Position
}

func (t Thresholds) classify(s Sticks) positions {
	return positions{
		roll:     t.Classify(s.Roll),
		pitch:    t.Classify(s.Pitch),
		yaw:      t.Classify(s.Yaw),
		throttle: t.Classify(s.Throttle),
	}
}

func (p positions) centered() bool {
	return p.roll == PositionMid && p.pitch == PositionMid && p.yaw == PositionMid
}
