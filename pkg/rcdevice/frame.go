// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcdevice

import "time"

// Frame represents a decoded or outgoing control link frame.
//
// For legacy frames the command is always LegacyCtrlByte and the payload holds
// the single control argument.
type Frame struct {
	generation Generation
	deviceID   uint8
	command    uint8
	payload    []byte
	crc        uint8
	timestamp  time.Time
}

// NewFrame creates a V2 frame. The CRC is filled in when the frame is encoded.
func NewFrame(deviceID, command uint8, payload []byte) *Frame {
	return &Frame{
		generation: GenerationV2,
		deviceID:   deviceID,
		command:    command,
		payload:    payload,
		timestamp:  time.Now(),
	}
}

// NewLegacyFrame creates a legacy control frame carrying argument
func NewLegacyFrame(argument uint8) *Frame {
	return &Frame{
		generation: GenerationLegacy,
		command:    LegacyCtrlByte,
		payload:    []byte{argument},
		timestamp:  time.Now(),
	}
}

// Generation returns the protocol generation of the frame
func (f *Frame) Generation() Generation {
	return f.generation
}

// DeviceID returns the 4-bit device id (zero for legacy frames)
func (f *Frame) DeviceID() uint8 {
	return f.deviceID
}

// Command returns the frame's command
func (f *Frame) Command() uint8 {
	return f.command
}

// Payload returns the raw payload bytes
func (f *Frame) Payload() []byte {
	return f.payload
}

// Length returns the payload length
func (f *Frame) Length() int {
	return len(f.payload)
}

// Argument returns the control argument of a legacy frame
func (f *Frame) Argument() uint8 {
	if len(f.payload) == 0 {
		return 0
	}
	return f.payload[0]
}

// CRC returns the frame's CRC value
func (f *Frame) CRC() uint8 {
	return f.crc
}

// Timestamp returns the frame's decode timestamp
func (f *Frame) Timestamp() time.Time {
	return f.timestamp
}
