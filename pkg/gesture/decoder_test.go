// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gesture

import (
	"errors"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/Thermoquad/camlink/pkg/link/linktest"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// ============================================================
// Test Helpers
// ============================================================

// fakeMenu records the calls the decoder makes
type fakeMenu struct {
	calls       []string
	unsupported bool
	failOn      map[string]error
}

func (f *fakeMenu) record(call string) error {
	f.calls = append(f.calls, call)
	return f.failOn[call]
}

func (f *fakeMenu) OpenConnection() error  { return f.record("open") }
func (f *fakeMenu) CloseConnection() error { return f.record("close") }
func (f *fakeMenu) ReleaseKey() error      { return f.record("release") }
func (f *fakeMenu) PressKey(op uint8) error {
	return f.record("press:" + strings.ToLower(rcdevice.FormatKeyOperation(op)))
}
func (f *fakeMenu) KeySimulationSupported() bool { return !f.unsupported }

var (
	centered  = Sticks{Roll: 1500, Pitch: 1500, Yaw: 1500, Throttle: 1500}
	handshake = Sticks{Roll: 1500, Pitch: 1800, Yaw: 1800, Throttle: 1500}
	rollLeft  = Sticks{Roll: 1100, Pitch: 1500, Yaw: 1500, Throttle: 1500}
	yawLow    = Sticks{Roll: 1500, Pitch: 1500, Yaw: 1100, Throttle: 1500}
)

func newTestDecoder(opts Options) (*Decoder, *fakeMenu, *linktest.Clock, *[]Event) {
	menu := &fakeMenu{failOn: map[string]error{}}
	clock := linktest.NewClock(1000)
	events := &[]Event{}
	opts.OnEvent = func(e Event) { *events = append(*events, e) }
	return NewDecoder(menu, clock, opts), menu, clock, events
}

// connect runs a handshake and the following release
func connect(t *testing.T, d *Decoder, menu *fakeMenu) {
	t.Helper()
	d.OnTick(handshake, false, false)
	d.OnTick(centered, false, false)
	if !d.IsConnected() || d.ReleasePending() {
		t.Fatalf("expected connected and idle, got %s", d.State())
	}
	menu.calls = nil
}

// ============================================================
// Classification Tests
// ============================================================

func TestThresholds_Classify(t *testing.T) {
	th := DefaultThresholds()
	tests := []struct {
		value uint16
		want  Position
	}{
		{1000, PositionLow},
		{1249, PositionLow},
		{1250, PositionMid},
		{1500, PositionMid},
		{1750, PositionMid},
		{1751, PositionHigh},
		{2000, PositionHigh},
	}

	for _, tt := range tests {
		if got := th.Classify(tt.value); got != tt.want {
			t.Errorf("Classify(%d) = %s, want %s", tt.value, got, tt.want)
		}
	}
}

func TestThresholds_Validate(t *testing.T) {
	if err := DefaultThresholds().Validate(); err != nil {
		t.Errorf("default thresholds rejected: %v", err)
	}
	if err := (Thresholds{Low: 1700, High: 1300}).Validate(); err == nil {
		t.Error("expected inverted thresholds to be rejected")
	}
}

// ============================================================
// Handshake Tests
// ============================================================

func TestHandshake_ConnectsAndAwaitsRelease(t *testing.T) {
	d, menu, _, events := newTestDecoder(Options{})

	d.OnTick(handshake, false, false)

	if !d.IsConnected() {
		t.Fatal("expected connected after handshake")
	}
	if d.State() != StateAwaitingRelease {
		t.Errorf("expected awaiting-release, got %s", d.State())
	}
	if !reflect.DeepEqual(menu.calls, []string{"open"}) {
		t.Errorf("unexpected calls %v", menu.calls)
	}

	// Still held: nothing more is sent
	d.OnTick(handshake, false, false)
	if len(menu.calls) != 1 {
		t.Errorf("expected no further calls while held, got %v", menu.calls)
	}

	d.OnTick(centered, false, false)
	if d.State() != StateConnectedIdle {
		t.Errorf("expected connected idle after release, got %s", d.State())
	}
	if !reflect.DeepEqual(menu.calls, []string{"open", "release"}) {
		t.Errorf("unexpected calls %v", menu.calls)
	}

	var types []EventType
	for _, e := range *events {
		types = append(types, e.Type)
	}
	want := []EventType{EventConnected, EventKeySent, EventKeyReleased}
	if !reflect.DeepEqual(types, want) {
		t.Errorf("events %v, want %v", types, want)
	}
}

func TestHandshake_IgnoredWhileArmed(t *testing.T) {
	d, menu, _, _ := newTestDecoder(Options{})

	d.OnTick(handshake, true, false)
	if d.IsConnected() || len(menu.calls) != 0 {
		t.Errorf("handshake must not run while armed, calls %v", menu.calls)
	}
}

func TestHandshake_Gestures(t *testing.T) {
	tests := []struct {
		name    string
		gesture HandshakeGesture
		sticks  Sticks
		want    bool
	}{
		{"enter-and-up accepts pitch high", HandshakeEnterAndUp, handshake, true},
		{"enter-and-up rejects pitch mid", HandshakeEnterAndUp, Sticks{Roll: 1500, Pitch: 1500, Yaw: 1800, Throttle: 1500}, false},
		{"enter accepts pitch mid", HandshakeEnter, Sticks{Roll: 1500, Pitch: 1500, Yaw: 1800, Throttle: 1500}, true},
		{"enter rejects pitch high", HandshakeEnter, handshake, false},
		{"throttle must be mid", HandshakeEnterAndUp, Sticks{Roll: 1500, Pitch: 1800, Yaw: 1800, Throttle: 1000}, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, _, _, _ := newTestDecoder(Options{Handshake: tt.gesture})
			d.OnTick(tt.sticks, false, false)
			if d.IsConnected() != tt.want {
				t.Errorf("connected = %v, want %v", d.IsConnected(), tt.want)
			}
		})
	}
}

func TestHandshake_Failure(t *testing.T) {
	d, menu, _, events := newTestDecoder(Options{})
	menu.failOn["open"] = rcdevice.ErrTimeout

	d.OnTick(handshake, false, false)
	if d.IsConnected() || d.ReleasePending() {
		t.Errorf("expected disconnected after a failed handshake, got %s", d.State())
	}
	if len(*events) != 1 || (*events)[0].Type != EventKeyFailed || !errors.Is((*events)[0].Err, rcdevice.ErrTimeout) {
		t.Errorf("expected one key-failed event, got %+v", *events)
	}

	// The next tick tries again from scratch
	delete(menu.failOn, "open")
	d.OnTick(handshake, false, false)
	if !d.IsConnected() {
		t.Error("expected a later handshake to succeed")
	}
}

// ============================================================
// Directional Key Tests
// ============================================================

func TestLeftPress_OnceUntilReleased(t *testing.T) {
	d, menu, _, _ := newTestDecoder(Options{})
	connect(t, d, menu)

	for i := 0; i < 5; i++ {
		d.OnTick(rollLeft, false, false)
	}
	if !reflect.DeepEqual(menu.calls, []string{"press:left"}) {
		t.Fatalf("expected exactly one left press, got %v", menu.calls)
	}

	d.OnTick(centered, false, false)
	d.OnTick(rollLeft, false, false)
	want := []string{"press:left", "release", "press:left"}
	if !reflect.DeepEqual(menu.calls, want) {
		t.Errorf("calls %v, want %v", menu.calls, want)
	}
}

func TestPress_NeedsSuccessfulRelease(t *testing.T) {
	d, menu, _, _ := newTestDecoder(Options{})
	connect(t, d, menu)

	d.OnTick(rollLeft, false, false)
	menu.failOn["release"] = rcdevice.ErrTimeout
	d.OnTick(centered, false, false)

	if d.IsConnected() {
		t.Error("a failed release must force disconnected")
	}
	if d.ReleasePending() {
		t.Error("a failed release must clear the pending flag")
	}

	d.OnTick(rollLeft, false, false)
	want := []string{"press:left", "release"}
	if !reflect.DeepEqual(menu.calls, want) {
		t.Errorf("no press may follow a failed release, calls %v", menu.calls)
	}
}

func TestDirectionalMapping(t *testing.T) {
	tests := []struct {
		name   string
		sticks Sticks
		want   string
	}{
		{"left", Sticks{Roll: 1100, Pitch: 1500, Yaw: 1500, Throttle: 1500}, "press:left"},
		{"right", Sticks{Roll: 1900, Pitch: 1500, Yaw: 1500, Throttle: 1500}, "press:right"},
		{"up", Sticks{Roll: 1500, Pitch: 1900, Yaw: 1500, Throttle: 1500}, "press:up"},
		{"down", Sticks{Roll: 1500, Pitch: 1100, Yaw: 1500, Throttle: 1500}, "press:down"},
		{"enter", Sticks{Roll: 1500, Pitch: 1500, Yaw: 1900, Throttle: 1500}, "press:set"},
		{"left wins over up", Sticks{Roll: 1100, Pitch: 1900, Yaw: 1500, Throttle: 1500}, "press:left"},
		{"up wins over right", Sticks{Roll: 1900, Pitch: 1900, Yaw: 1500, Throttle: 1500}, "press:up"},
		{"enter needs throttle mid", Sticks{Roll: 1500, Pitch: 1500, Yaw: 1900, Throttle: 1000}, ""},
		{"handshake held is ignored", handshake, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, menu, _, _ := newTestDecoder(Options{})
			connect(t, d, menu)

			d.OnTick(tt.sticks, false, false)

			var want []string
			if tt.want != "" {
				want = []string{tt.want}
			}
			if !reflect.DeepEqual(menu.calls, want) {
				t.Errorf("calls %v, want %v", menu.calls, want)
			}
			if (tt.want != "") != d.ReleasePending() {
				t.Errorf("release pending = %v after %q", d.ReleasePending(), tt.want)
			}
		})
	}
}

func TestPressFailure_Policies(t *testing.T) {
	tests := []struct {
		name          string
		policy        FailurePolicy
		wantConnected bool
	}{
		{"disconnect on any failure", DisconnectOnAnyFailure, false},
		{"keep on press failure", KeepOnPressFailure, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			d, menu, _, events := newTestDecoder(Options{FailurePolicy: tt.policy})
			connect(t, d, menu)
			*events = nil

			menu.failOn["press:left"] = rcdevice.ErrTimeout
			d.OnTick(rollLeft, false, false)

			if d.IsConnected() != tt.wantConnected {
				t.Errorf("connected = %v, want %v", d.IsConnected(), tt.wantConnected)
			}
			if d.ReleasePending() {
				t.Error("a failed press must not leave a release pending")
			}
			if len(*events) == 0 || (*events)[0].Type != EventKeyFailed || (*events)[0].Key != KeyLeft {
				t.Errorf("expected a key-failed event for left, got %+v", *events)
			}
		})
	}
}

// ============================================================
// Disconnect Tests
// ============================================================

func TestDisconnect_HoldDuration(t *testing.T) {
	d, menu, clock, _ := newTestDecoder(Options{})
	connect(t, d, menu)

	d.OnTick(yawLow, false, false)
	clock.Advance(1000)
	d.OnTick(yawLow, false, false)
	clock.Advance(999)
	d.OnTick(yawLow, false, false)
	if len(menu.calls) != 0 {
		t.Fatalf("no disconnect before 2000 ms, calls %v", menu.calls)
	}

	clock.Advance(1)
	d.OnTick(yawLow, false, false)
	if !reflect.DeepEqual(menu.calls, []string{"close"}) {
		t.Fatalf("expected one disconnect at 2000 ms, got %v", menu.calls)
	}
	if d.IsConnected() {
		t.Error("expected disconnected")
	}

	// Keep holding: no second disconnect
	for i := 0; i < 5; i++ {
		clock.Advance(1000)
		d.OnTick(yawLow, false, false)
	}
	if len(menu.calls) != 1 {
		t.Errorf("expected exactly one disconnect, got %v", menu.calls)
	}

	d.OnTick(centered, false, false)
	if d.State() != StateDisconnected {
		t.Errorf("expected disconnected after release, got %s", d.State())
	}
}

func TestDisconnect_TimerResetsWhenGestureLeft(t *testing.T) {
	d, menu, clock, _ := newTestDecoder(Options{})
	connect(t, d, menu)

	d.OnTick(yawLow, false, false)
	clock.Advance(1500)
	d.OnTick(centered, false, false)
	clock.Advance(10)
	d.OnTick(yawLow, false, false)
	clock.Advance(1500)
	d.OnTick(yawLow, false, false)

	if len(menu.calls) != 0 {
		t.Errorf("interrupted hold must restart the timer, calls %v", menu.calls)
	}
}

func TestDisconnect_CustomHold(t *testing.T) {
	d, menu, clock, _ := newTestDecoder(Options{DisconnectHold: 500 * time.Millisecond})
	connect(t, d, menu)

	d.OnTick(yawLow, false, false)
	clock.Advance(500)
	d.OnTick(yawLow, false, false)
	if !reflect.DeepEqual(menu.calls, []string{"close"}) {
		t.Errorf("expected a disconnect after 500 ms, got %v", menu.calls)
	}
}

func TestDisconnect_NotWhileDisconnected(t *testing.T) {
	d, menu, clock, _ := newTestDecoder(Options{})

	d.OnTick(yawLow, false, false)
	clock.Advance(3000)
	d.OnTick(yawLow, false, false)
	if len(menu.calls) != 0 {
		t.Errorf("unexpected calls %v", menu.calls)
	}
}

// ============================================================
// Suppression Tests
// ============================================================

func TestOnTick_SuppressedByUI(t *testing.T) {
	d, menu, _, _ := newTestDecoder(Options{})

	d.OnTick(handshake, false, true)
	if len(menu.calls) != 0 || d.IsConnected() {
		t.Errorf("decoding must be suppressed while the local menu is shown, calls %v", menu.calls)
	}
}

func TestOnTick_NoKeySimulation(t *testing.T) {
	d, menu, _, _ := newTestDecoder(Options{})
	menu.unsupported = true

	d.OnTick(handshake, false, false)
	if len(menu.calls) != 0 {
		t.Errorf("unexpected calls %v", menu.calls)
	}
}

func TestReset(t *testing.T) {
	d, menu, _, events := newTestDecoder(Options{})
	d.OnTick(handshake, false, false)
	*events = nil

	d.Reset()
	if d.State() != StateDisconnected {
		t.Errorf("expected disconnected after reset, got %s", d.State())
	}
	if len(*events) != 1 || (*events)[0].Type != EventDisconnected {
		t.Errorf("expected a disconnected event, got %+v", *events)
	}
	if len(menu.calls) != 1 {
		t.Errorf("reset must not talk to the camera, calls %v", menu.calls)
	}
}

func TestParsePolicies(t *testing.T) {
	if p, err := ParseFailurePolicy("keep-on-press-failure"); err != nil || p != KeepOnPressFailure {
		t.Errorf("ParseFailurePolicy = %v, %v", p, err)
	}
	if _, err := ParseFailurePolicy("never"); err == nil {
		t.Error("expected error for unknown failure policy")
	}
	if g, err := ParseHandshakeGesture("ENTER"); err != nil || g != HandshakeEnter {
		t.Errorf("ParseHandshakeGesture = %v, %v", g, err)
	}
	if _, err := ParseHandshakeGesture("wave"); err == nil {
		t.Error("expected error for unknown handshake gesture")
	}
}
