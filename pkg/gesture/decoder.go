// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gesture

import (
	"io"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/pkg/link"
)

// DefaultDisconnectHold is how long yaw must stay low to close the menu
const DefaultDisconnectHold = 2000 * time.Millisecond

// MenuDevice is the part of camera.Device the decoder drives
type MenuDevice interface {
	OpenConnection() error
	CloseConnection() error
	PressKey(operation uint8) error
	ReleaseKey() error
	KeySimulationSupported() bool
}

// State is the decoder's menu connection state
type State uint8

const (
	StateDisconnected State = iota
	StateConnectedIdle
	StateAwaitingRelease
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateConnectedIdle:
		return "connected"
	case StateAwaitingRelease:
		return "awaiting-release"
	default:
		return "disconnected"
	}
}

// Options configure a Decoder. Zero values select the defaults.
type Options struct {
	Thresholds     Thresholds
	DisconnectHold time.Duration
	FailurePolicy  FailurePolicy
	Handshake      HandshakeGesture
	Logger         *logrus.Logger

	// OnEvent receives every key sent, failure and connection change
	OnEvent func(Event)
}

// Decoder is the gesture state machine for one camera. It is not safe for
// concurrent use; call OnTick from a single control loop.
type Decoder struct {
	device MenuDevice
	clock  link.Clock
	opts   Options
	holdMs uint64
	log    *logrus.Entry

	connected      bool
	releasePending bool

	holding   bool
	holdStart uint64
}

// NewDecoder creates a decoder in the Disconnected state
func NewDecoder(device MenuDevice, clock link.Clock, opts Options) *Decoder {
	if opts.Thresholds == (Thresholds{}) {
		opts.Thresholds = DefaultThresholds()
	}
	if opts.DisconnectHold <= 0 {
		opts.DisconnectHold = DefaultDisconnectHold
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Decoder{
		device: device,
		clock:  clock,
		opts:   opts,
		holdMs: uint64(opts.DisconnectHold / time.Millisecond),
		log:    logger.WithField("component", "gesture"),
	}
}

// IsConnected reports whether the camera menu connection is open
func (d *Decoder) IsConnected() bool {
	return d.connected
}

// ReleasePending reports whether a release must be sent before the next key
func (d *Decoder) ReleasePending() bool {
	return d.releasePending
}

// State returns the current state
func (d *Decoder) State() State {
	switch {
	case d.releasePending:
		return StateAwaitingRelease
	case d.connected:
		return StateConnectedIdle
	default:
		return StateDisconnected
	}
}

// Thresholds returns the thresholds in use
func (d *Decoder) Thresholds() Thresholds {
	return d.opts.Thresholds
}

// Reset forgets the connection without talking to the camera
func (d *Decoder) Reset() {
	d.setConnected(false)
	d.releasePending = false
	d.holding = false
}

// OnTick runs one control tick. It may block for the bounded duration of
// a single transaction.
func (d *Decoder) OnTick(sticks Sticks, armed, suppressUI bool) {
	if suppressUI || !d.device.KeySimulationSupported() {
		return
	}

	p := d.opts.Thresholds.classify(sticks)

	if d.releasePending {
		if p.centered() {
			d.release()
		}
		return
	}

	if d.connected && p.roll == PositionMid && p.pitch == PositionMid && p.yaw == PositionLow {
		now := d.clock.NowMillis()
		if !d.holding {
			d.holding = true
			d.holdStart = now
		}
		if now-d.holdStart >= d.holdMs {
			d.holding = false
			d.send(KeyHoldLeftLong)
		}
		return
	}
	d.holding = false

	if !d.connected {
		if !armed && d.opts.Handshake.matches(p) {
			d.send(KeyHoldEnterAndUp)
		}
		return
	}

	if key := d.directionalKey(p); key != KeyNone {
		d.send(key)
	}
}

// directionalKey maps a sample to a press while connected, first match wins
func (d *Decoder) directionalKey(p positions) Key {
	if d.opts.Handshake == HandshakeEnterAndUp && d.opts.Handshake.matches(p) {
		return KeyNone
	}
	switch {
	case p.roll == PositionLow:
		return KeyLeft
	case p.pitch == PositionHigh:
		return KeyUp
	case p.roll == PositionHigh:
		return KeyRight
	case p.pitch == PositionLow:
		return KeyDown
	case HandshakeEnter.matches(p):
		return KeyEnter
	default:
		return KeyNone
	}
}

func (d *Decoder) send(key Key) {
	var err error
	switch key {
	case KeyHoldEnterAndUp:
		err = d.device.OpenConnection()
	case KeyHoldLeftLong:
		err = d.device.CloseConnection()
	default:
		op, _ := key.keyOperation()
		err = d.device.PressKey(op)
	}

	if err != nil {
		d.fail(key, err)
		return
	}

	switch key {
	case KeyHoldEnterAndUp:
		d.setConnected(true)
	case KeyHoldLeftLong:
		d.setConnected(false)
	}
	d.releasePending = true

	d.log.WithField("key", key.String()).Info("key sent")
	d.emit(Event{Type: EventKeySent, Key: key})
}

func (d *Decoder) release() {
	if err := d.device.ReleaseKey(); err != nil {
		// The camera's real state is unknown, start over from a handshake
		d.releasePending = false
		d.fail(KeyRelease, err)
		return
	}
	d.releasePending = false
	d.log.Debug("key released")
	d.emit(Event{Type: EventKeyReleased, Key: KeyRelease})
}

func (d *Decoder) fail(key Key, err error) {
	d.log.WithError(err).WithField("key", key.String()).Warn("key failed")
	d.emit(Event{Type: EventKeyFailed, Key: key, Err: err})

	if key.ConnectionAffecting() || d.opts.FailurePolicy == DisconnectOnAnyFailure {
		d.setConnected(false)
	}
}

func (d *Decoder) setConnected(connected bool) {
	if d.connected == connected {
		return
	}
	d.connected = connected

	t := EventDisconnected
	if connected {
		t = EventConnected
	}
	d.log.WithField("state", d.State().String()).Info("menu connection changed")
	d.emit(Event{Type: t})
}

func (d *Decoder) emit(e Event) {
	if d.opts.OnEvent == nil {
		return
	}
	e.State = d.State()
	e.Connected = d.connected
	e.At = d.clock.NowMillis()
	d.opts.OnEvent(e)
}
