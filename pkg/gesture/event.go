// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gesture

// EventType identifies what an Event reports
type EventType uint8

const (
	EventKeySent EventType = iota
	EventKeyReleased
	EventKeyFailed
	EventConnected
	EventDisconnected
	EventCameraButton
)

// String returns the event type name
func (t EventType) String() string {
	switch t {
	case EventKeySent:
		return "key-sent"
	case EventKeyReleased:
		return "key-released"
	case EventKeyFailed:
		return "key-failed"
	case EventConnected:
		return "connected"
	case EventDisconnected:
		return "disconnected"
	case EventCameraButton:
		return "camera-button"
	default:
		return "unknown"
	}
}

// Event is emitted by the decoder and the switch toggles
type Event struct {
	Type      EventType
	Key       Key
	Operation uint8 // camera operation of EventCameraButton
	State     State
	Connected bool
	Err       error
	At        uint64 // clock milliseconds
}
