// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcdevice

import (
	"errors"
	"fmt"
)

// Errors reported by the control link
var (
	ErrFraming             = errors.New("framing error")
	ErrChecksumMismatch    = errors.New("checksum mismatch")
	ErrTimeout             = errors.New("timeout waiting for response")
	ErrUnsupportedFeature  = errors.New("feature not supported by device")
	ErrTransactionInFlight = errors.New("transaction already in flight")
	ErrPayloadTooLarge     = errors.New("payload too large")
	ErrInvalidResponse     = errors.New("invalid response")
	ErrRejected            = errors.New("request rejected by device")
)

// FramingError describes a frame dropped for a structural reason
type FramingError struct {
	State  DecodeState
	Byte   byte
	Reason string
}

// Error implements the error interface
func (e *FramingError) Error() string {
	return fmt.Sprintf("framing error in %s at byte 0x%02X: %s", e.State, e.Byte, e.Reason)
}

// Unwrap allows errors.Is(err, ErrFraming)
func (e *FramingError) Unwrap() error {
	return ErrFraming
}

// ChecksumError describes a frame discarded because its CRC did not match
type ChecksumError struct {
	Expected uint8
	Got      uint8
}

// Error implements the error interface
func (e *ChecksumError) Error() string {
	return fmt.Sprintf("CRC mismatch: expected 0x%02X, got 0x%02X", e.Expected, e.Got)
}

// Unwrap allows errors.Is(err, ErrChecksumMismatch)
func (e *ChecksumError) Unwrap() error {
	return ErrChecksumMismatch
}
