// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package rcdevice implements the wire layer of the RunCam Device control
// link used by FPV cameras.
//
// Two protocol generations share the serial line: the legacy split protocol,
// a fixed 5-byte control frame, and the V2 protocol, a length-delimited frame
// carrying a 4-bit device id and a 4-bit command. This package provides frame
// encoding, a byte-at-a-time decoder, CRC calculation and frame formatting.
package rcdevice

// Generation selects the protocol generation spoken on the link
type Generation int

const (
	GenerationV2 Generation = iota
	GenerationLegacy
)

// String returns the configuration name of the generation
func (g Generation) String() string {
	switch g {
	case GenerationV2:
		return "v2"
	case GenerationLegacy:
		return "legacy"
	default:
		return "unknown"
	}
}

// ParseGeneration parses a generation name as used in configuration files
func ParseGeneration(s string) (Generation, bool) {
	switch s {
	case "v2", "V2", "1.0":
		return GenerationV2, true
	case "legacy", "split", "rcsplit":
		return GenerationLegacy, true
	default:
		return GenerationV2, false
	}
}

// Protocol framing bytes
const (
	HeaderV2       = 0xCC
	HeaderLegacy   = 0x55
	TailLegacy     = 0xAA
	LegacyCtrlByte = 0x01
)

// Frame size limits
const (
	MaxPayloadSize   = 62
	MaxFrameSize     = 4 + MaxPayloadSize // header, dev|cmd, length, payload, crc
	LegacyFrameSize  = 5
	MaxFirmwareChars = 10
)

// DefaultDeviceID is the device id of the camera on the V2 bus
const DefaultDeviceID = 0x2

// Protocol version bytes reported by GetDeviceInfo
const (
	ProtocolVersionSplit = 0x00
	ProtocolVersionV1    = 0x01
)

// V2 commands
const (
	CmdGetDeviceInfo  = 0x00
	CmdCameraControl  = 0x01
	Cmd5KeyPress      = 0x02
	Cmd5KeyRelease    = 0x03
	Cmd5KeyConnection = 0x04

	CmdGetSettings       = 0x10
	CmdReadSettingDetail = 0x11
	CmdReadSetting       = 0x12
	CmdWriteSetting      = 0x13

	CmdDispFillRegion   = 0x20
	CmdDispWriteChar    = 0x21
	CmdDispWriteHorzStr = 0x22
	CmdDispWriteVertStr = 0x24
	CmdDispWriteChars   = 0x25
)

// Field limits of the device|command byte
const (
	MaxDeviceID = 0x0F
	MaxCommand  = 0x0F
)

// CmdExtended marks a frame whose real command is the first payload byte.
// Settings and display commands do not fit the 4-bit command field. The
// escape is a camlink framing convention, not part of the camera protocol;
// real devices see these ids only through tooling that shares it.
const CmdExtended = 0x0F

// IsExtendedCommand reports whether cmd travels behind CmdExtended
func IsExtendedCommand(cmd uint8) bool {
	switch cmd {
	case CmdGetSettings, CmdReadSettingDetail, CmdReadSetting, CmdWriteSetting,
		CmdDispFillRegion, CmdDispWriteChar, CmdDispWriteHorzStr, CmdDispWriteVertStr, CmdDispWriteChars:
		return true
	}
	return false
}

// Camera control operations carried by CmdCameraControl
const (
	CameraOpWifiButton  = 0x00
	CameraOpPowerButton = 0x01
	CameraOpChangeMode  = 0x02
	CameraOpStartRecord = 0x03
	CameraOpStopRecord  = 0x04
	CameraOpUnknown     = 0xFF
)

// 5-key press operations carried by Cmd5KeyPress
const (
	KeyOpSet   = 0x01
	KeyOpLeft  = 0x02
	KeyOpRight = 0x03
	KeyOpUp    = 0x04
	KeyOpDown  = 0x05
)

// 5-key connection operations carried by Cmd5KeyConnection
const (
	ConnectionOpOpen  = 0x01
	ConnectionOpClose = 0x02
)

// ConnectionResultAccepted is the result nibble of an accepted connection request
const ConnectionResultAccepted = 0x01

// Legacy control arguments
const (
	LegacyArgWifi       = 0x01
	LegacyArgPower      = 0x02
	LegacyArgChangeMode = 0x03
	LegacyArgIdentify   = 0xFF
)

// Decoder states
const (
	StateAwaitHeader DecodeState = iota
	StateAwaitDeviceCommand
	StateAwaitLength
	StateAwaitPayload
	StateAwaitCrc
	StateAwaitTail
)

// DecodeState is the position of the decoder within a frame
type DecodeState int

// String returns the state name
func (s DecodeState) String() string {
	switch s {
	case StateAwaitHeader:
		return "AwaitHeader"
	case StateAwaitDeviceCommand:
		return "AwaitDeviceCommand"
	case StateAwaitLength:
		return "AwaitLength"
	case StateAwaitPayload:
		return "AwaitPayload"
	case StateAwaitCrc:
		return "AwaitCrc"
	case StateAwaitTail:
		return "AwaitTail"
	default:
		return "Unknown"
	}
}
