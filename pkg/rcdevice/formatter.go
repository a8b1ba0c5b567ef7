// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcdevice

import (
	"encoding/binary"
	"fmt"
	"strings"
)

// FormatFrame formats a frame into a human-readable string
func FormatFrame(f *Frame) string {
	timestamp := f.timestamp.Format("15:04:05.000")

	if f.generation == GenerationLegacy {
		return fmt.Sprintf("[%s] LEGACY_CONTROL arg=%s (0x%02X) crc=0x%02X\n",
			timestamp, FormatLegacyArgument(f.Argument()), f.Argument(), f.crc)
	}

	result := fmt.Sprintf("[%s] %s (0x%02X) dev=%d len=%d crc=0x%02X\n",
		timestamp, FormatCommand(f.command), f.command, f.deviceID, len(f.payload), f.crc)
	result += FormatPayload(f.command, f.payload)
	return result
}

// FormatCommand returns the human-readable name for a V2 command
func FormatCommand(cmd uint8) string {
	switch cmd {
	case CmdGetDeviceInfo:
		return "GET_DEVICE_INFO"
	case CmdCameraControl:
		return "CAMERA_CONTROL"
	case Cmd5KeyPress:
		return "5KEY_PRESS"
	case Cmd5KeyRelease:
		return "5KEY_RELEASE"
	case Cmd5KeyConnection:
		return "5KEY_CONNECTION"

	case CmdGetSettings:
		return "GET_SETTINGS"
	case CmdReadSettingDetail:
		return "READ_SETTING_DETAIL"
	case CmdReadSetting:
		return "READ_SETTING"
	case CmdWriteSetting:
		return "WRITE_SETTING"

	case CmdDispFillRegion:
		return "DISP_FILL_REGION"
	case CmdDispWriteChar:
		return "DISP_WRITE_CHAR"
	case CmdDispWriteHorzStr:
		return "DISP_WRITE_HORZ_STRING"
	case CmdDispWriteVertStr:
		return "DISP_WRITE_VERT_STRING"
	case CmdDispWriteChars:
		return "DISP_WRITE_CHARS"

	default:
		return "UNKNOWN"
	}
}

// FormatLegacyArgument returns the name of a legacy control argument
func FormatLegacyArgument(arg uint8) string {
	switch arg {
	case LegacyArgWifi:
		return "WIFI"
	case LegacyArgPower:
		return "POWER"
	case LegacyArgChangeMode:
		return "CHANGE_MODE"
	case LegacyArgIdentify:
		return "IDENTIFY"
	default:
		return "UNKNOWN"
	}
}

// FormatCameraOperation returns the name of a camera control operation
func FormatCameraOperation(op uint8) string {
	switch op {
	case CameraOpWifiButton:
		return "WIFI_BUTTON"
	case CameraOpPowerButton:
		return "POWER_BUTTON"
	case CameraOpChangeMode:
		return "CHANGE_MODE"
	case CameraOpStartRecord:
		return "START_RECORDING"
	case CameraOpStopRecord:
		return "STOP_RECORDING"
	default:
		return "UNKNOWN"
	}
}

// FormatKeyOperation returns the name of a 5-key press operation
func FormatKeyOperation(op uint8) string {
	switch op {
	case KeyOpSet:
		return "SET"
	case KeyOpLeft:
		return "LEFT"
	case KeyOpRight:
		return "RIGHT"
	case KeyOpUp:
		return "UP"
	case KeyOpDown:
		return "DOWN"
	default:
		return "UNKNOWN"
	}
}

func formatConnectionOperation(op uint8) string {
	switch op {
	case ConnectionOpOpen:
		return "OPEN"
	case ConnectionOpClose:
		return "CLOSE"
	default:
		return "UNKNOWN"
	}
}

// FormatPayload formats a V2 payload based on command.
// Request and response payloads of the same command are told apart by shape.
func FormatPayload(cmd uint8, p []byte) string {
	switch cmd {
	case CmdGetDeviceInfo:
		if len(p) < 3 {
			return "  (request)\n"
		}
		features := binary.LittleEndian.Uint16(p[1:3])
		return fmt.Sprintf("  Protocol: %d, Features: 0x%04X, Firmware: %q\n",
			p[0], features, strings.TrimRight(string(p[3:]), "\x00"))

	case CmdCameraControl:
		if len(p) < 1 {
			break
		}
		return fmt.Sprintf("  Operation: %s (%d)\n", FormatCameraOperation(p[0]), p[0])

	case Cmd5KeyPress:
		if len(p) < 1 {
			return "  (acknowledged)\n"
		}
		return fmt.Sprintf("  Key: %s (%d)\n", FormatKeyOperation(p[0]), p[0])

	case Cmd5KeyRelease:
		return "  (no payload)\n"

	case Cmd5KeyConnection:
		if len(p) < 1 {
			break
		}
		// Requests carry the bare operation, responses operation<<4 | result
		if p[0]>>4 == 0 {
			return fmt.Sprintf("  Operation: %s\n", formatConnectionOperation(p[0]))
		}
		return fmt.Sprintf("  Operation: %s, Result: %d\n", formatConnectionOperation(p[0]>>4), p[0]&0x0F)

	case CmdGetSettings, CmdReadSettingDetail, CmdReadSetting, CmdWriteSetting:
		if len(p) < 1 {
			break
		}
		return fmt.Sprintf("  Setting: %d, Data: %s\n", p[0], FormatHex(p[1:]))
	}

	if len(p) == 0 {
		return "  (no payload)\n"
	}
	return fmt.Sprintf("  Data: %s\n", FormatHex(p))
}

// FormatHex formats bytes as space separated hex
func FormatHex(data []byte) string {
	if len(data) == 0 {
		return "-"
	}
	parts := make([]string, len(data))
	for i, b := range data {
		parts[i] = fmt.Sprintf("%02X", b)
	}
	return strings.Join(parts, " ")
}
