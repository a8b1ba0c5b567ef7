// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gesture

import (
	"fmt"
	"strings"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Key is the symbol decoded from one tick
type Key uint8

const (
	KeyNone Key = iota
	KeyEnter
	KeyLeft
	KeyUp
	KeyRight
	KeyDown
	KeyHoldLeftLong   // disconnect
	KeyHoldEnterAndUp // handshake
	KeyRelease
)

// String returns the key name
func (k Key) String() string {
	switch k {
	case KeyNone:
		return "none"
	case KeyEnter:
		return "enter"
	case KeyLeft:
		return "left"
	case KeyUp:
		return "up"
	case KeyRight:
		return "right"
	case KeyDown:
		return "down"
	case KeyHoldLeftLong:
		return "disconnect"
	case KeyHoldEnterAndUp:
		return "handshake"
	case KeyRelease:
		return "release"
	default:
		return fmt.Sprintf("key(%d)", uint8(k))
	}
}

// ConnectionAffecting reports whether the key changes or depends on the
// menu connection. These keys get the larger retry budget.
func (k Key) ConnectionAffecting() bool {
	return k == KeyHoldLeftLong || k == KeyHoldEnterAndUp || k == KeyRelease
}

// keyOperation maps a directional key to its 5-key press operation
func (k Key) keyOperation() (uint8, bool) {
	switch k {
	case KeyEnter:
		return rcdevice.KeyOpSet, true
	case KeyLeft:
		return rcdevice.KeyOpLeft, true
	case KeyUp:
		return rcdevice.KeyOpUp, true
	case KeyRight:
		return rcdevice.KeyOpRight, true
	case KeyDown:
		return rcdevice.KeyOpDown, true
	default:
		return 0, false
	}
}

// ============================================================
// Policies
// ============================================================

// FailurePolicy selects how a failed send affects the menu connection
type FailurePolicy uint8

const (
	// DisconnectOnAnyFailure drops the connection whenever any send fails
	DisconnectOnAnyFailure FailurePolicy = iota
	// KeepOnPressFailure drops it only when a connection-affecting send fails
	KeepOnPressFailure
)

// String returns the policy's configuration name
func (p FailurePolicy) String() string {
	switch p {
	case KeepOnPressFailure:
		return "keep-on-press-failure"
	default:
		return "disconnect-on-any-failure"
	}
}

// ParseFailurePolicy parses a configuration name
func ParseFailurePolicy(s string) (FailurePolicy, error) {
	switch strings.ToLower(s) {
	case "", "disconnect-on-any-failure":
		return DisconnectOnAnyFailure, nil
	case "keep-on-press-failure":
		return KeepOnPressFailure, nil
	default:
		return 0, fmt.Errorf("unknown failure policy %q", s)
	}
}

// HandshakeGesture selects the stick pattern that opens the menu
type HandshakeGesture uint8

const (
	// HandshakeEnterAndUp is throttle mid, pitch high and yaw high
	HandshakeEnterAndUp HandshakeGesture = iota
	// HandshakeEnter is throttle, roll and pitch mid with yaw high
	HandshakeEnter
)

// String returns the gesture's configuration name
func (g HandshakeGesture) String() string {
	switch g {
	case HandshakeEnter:
		return "enter"
	default:
		return "enter-and-up"
	}
}

// ParseHandshakeGesture parses a configuration name
func ParseHandshakeGesture(s string) (HandshakeGesture, error) {
	switch strings.ToLower(s) {
	case "", "enter-and-up":
		return HandshakeEnterAndUp, nil
	case "enter":
		return HandshakeEnter, nil
	default:
		return 0, fmt.Errorf("unknown handshake gesture %q", s)
	}
}

func (g HandshakeGesture) matches(p positions) bool {
	if p.throttle != PositionMid || p.yaw != PositionHigh {
		return false
	}
	if g == HandshakeEnter {
		return p.roll == PositionMid && p.pitch == PositionMid
	}
	return p.pitch == PositionHigh
}
