// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcdevice

import "fmt"

// AnomalyType represents different types of response anomalies
type AnomalyType int

const (
	AnomalyLengthMismatch AnomalyType = iota
	AnomalyInvalidValue
	AnomalyUnexpectedCommand
)

// String returns the anomaly name
func (a AnomalyType) String() string {
	switch a {
	case AnomalyLengthMismatch:
		return "length mismatch"
	case AnomalyInvalidValue:
		return "invalid value"
	case AnomalyUnexpectedCommand:
		return "unexpected command"
	default:
		return "unknown"
	}
}

// ValidationError represents a response validation failure
type ValidationError struct {
	Type    AnomalyType
	Message string
	Details map[string]interface{}
}

// Error implements the error interface
func (v *ValidationError) Error() string {
	return v.Message
}

// Unwrap allows errors.Is(err, ErrInvalidResponse)
func (v *ValidationError) Unwrap() error {
	return ErrInvalidResponse
}

// ValidateResponse checks the payload shape of a response frame.
// Returns a slice of validation errors (empty if the frame is valid).
func ValidateResponse(f *Frame) []ValidationError {
	if f.generation == GenerationLegacy {
		return validateLegacyEcho(f)
	}

	switch f.command {
	case CmdGetDeviceInfo:
		return validateDeviceInfo(f)
	case Cmd5KeyConnection:
		return validateConnection(f)
	case Cmd5KeyPress, Cmd5KeyRelease:
		return expectLength(f, 0)
	case CmdGetSettings, CmdReadSettingDetail, CmdReadSetting, CmdWriteSetting:
		return expectMinLength(f, 1)
	case CmdCameraControl:
		return []ValidationError{{
			Type:    AnomalyUnexpectedCommand,
			Message: "CAMERA_CONTROL has no response",
			Details: map[string]interface{}{"command": f.command},
		}}
	}

	return []ValidationError{}
}

func validateDeviceInfo(f *Frame) []ValidationError {
	if errs := expectMinLength(f, 3); len(errs) > 0 {
		return errs
	}

	errors := []ValidationError{}
	if version := f.payload[0]; version > ProtocolVersionV1 {
		errors = append(errors, ValidationError{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Unknown protocol version=%d", version),
			Details: map[string]interface{}{"version": version},
		})
	}
	if fw := len(f.payload) - 3; fw > MaxFirmwareChars {
		errors = append(errors, ValidationError{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("Firmware version too long (%d chars, max %d)", fw, MaxFirmwareChars),
			Details: map[string]interface{}{"length": fw, "max": MaxFirmwareChars},
		})
	}
	return errors
}

func validateConnection(f *Frame) []ValidationError {
	if errs := expectLength(f, 1); len(errs) > 0 {
		return errs
	}
	op := f.payload[0] >> 4
	if op != ConnectionOpOpen && op != ConnectionOpClose {
		return []ValidationError{{
			Type:    AnomalyInvalidValue,
			Message: fmt.Sprintf("Invalid connection operation=%d", op),
			Details: map[string]interface{}{"operation": op},
		}}
	}
	return []ValidationError{}
}

func validateLegacyEcho(f *Frame) []ValidationError {
	switch f.Argument() {
	case LegacyArgWifi, LegacyArgPower, LegacyArgChangeMode, LegacyArgIdentify:
		return []ValidationError{}
	}
	return []ValidationError{{
		Type:    AnomalyInvalidValue,
		Message: fmt.Sprintf("Unknown legacy argument=0x%02X", f.Argument()),
		Details: map[string]interface{}{"argument": f.Argument()},
	}}
}

func expectLength(f *Frame, n int) []ValidationError {
	if len(f.payload) != n {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload length %d (expected %d)", FormatCommand(f.command), len(f.payload), n),
			Details: map[string]interface{}{"length": len(f.payload), "expected": n},
		}}
	}
	return []ValidationError{}
}

func expectMinLength(f *Frame, n int) []ValidationError {
	if len(f.payload) < n {
		return []ValidationError{{
			Type:    AnomalyLengthMismatch,
			Message: fmt.Sprintf("%s payload too short (expected at least %d bytes)", FormatCommand(f.command), n),
			Details: map[string]interface{}{"length": len(f.payload), "expected": n},
		}}
	}
	return []ValidationError{}
}
