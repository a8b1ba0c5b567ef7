// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gesture

import (
	"errors"
	"reflect"
	"testing"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

type fakeButtons struct {
	pressed []uint8
	err     error
}

func (f *fakeButtons) SimulateCameraButton(op uint8) error {
	if f.err != nil {
		return f.err
	}
	f.pressed = append(f.pressed, op)
	return nil
}

// ============================================================
// Switch Toggle Tests
// ============================================================

func TestSwitches_HighAtStartupDoesNotFire(t *testing.T) {
	buttons := &fakeButtons{}
	s := NewSwitches(buttons, nil, nil)

	if err := s.Update(ModeCamera1, true); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if len(buttons.pressed) != 0 {
		t.Errorf("a switch high at startup must not fire, pressed %v", buttons.pressed)
	}
}

func TestSwitches_OneShotPerActivation(t *testing.T) {
	buttons := &fakeButtons{}
	var events []Event
	s := NewSwitches(buttons, nil, func(e Event) { events = append(events, e) })

	sequence := []struct {
		mode   CameraMode
		active bool
	}{
		{ModeCamera2, false},
		{ModeCamera2, true},
		{ModeCamera2, true},
		{ModeCamera2, true},
		{ModeCamera2, false},
		{ModeCamera2, true},
		{ModeCamera3, false},
		{ModeCamera3, true},
	}
	for _, step := range sequence {
		if err := s.Update(step.mode, step.active); err != nil {
			t.Fatalf("Update(%s, %v) failed: %v", step.mode, step.active, err)
		}
	}

	want := []uint8{rcdevice.CameraOpPowerButton, rcdevice.CameraOpPowerButton, rcdevice.CameraOpChangeMode}
	if !reflect.DeepEqual(buttons.pressed, want) {
		t.Errorf("pressed %v, want %v", buttons.pressed, want)
	}
	if len(events) != 3 || events[0].Type != EventCameraButton || events[0].Operation != rcdevice.CameraOpPowerButton {
		t.Errorf("unexpected events %+v", events)
	}
	if !s.State(ModeCamera2).IsActivated {
		t.Error("expected CAMERA2 latched")
	}
}

func TestSwitches_UnsupportedIsSkipped(t *testing.T) {
	s := NewSwitches(&fakeButtons{err: rcdevice.ErrUnsupportedFeature}, nil, nil)

	_ = s.Update(ModeCamera1, false)
	if err := s.Update(ModeCamera1, true); err != nil {
		t.Errorf("unsupported buttons must be skipped silently, got %v", err)
	}
	if !s.State(ModeCamera1).IsActivated {
		t.Error("the latch is set even when the button is skipped")
	}
}

func TestSwitches_SendError(t *testing.T) {
	sendErr := errors.New("write failed")
	s := NewSwitches(&fakeButtons{err: sendErr}, nil, nil)

	_ = s.Update(ModeCamera1, false)
	if err := s.Update(ModeCamera1, true); !errors.Is(err, sendErr) {
		t.Errorf("expected the send error, got %v", err)
	}
	if err := s.Update(CameraMode(7), true); err == nil {
		t.Error("expected error for unknown mode")
	}
}

func TestCameraMode_Operation(t *testing.T) {
	tests := map[CameraMode]uint8{
		ModeCamera1: rcdevice.CameraOpWifiButton,
		ModeCamera2: rcdevice.CameraOpPowerButton,
		ModeCamera3: rcdevice.CameraOpChangeMode,
	}
	for mode, want := range tests {
		if got := mode.Operation(); got != want {
			t.Errorf("%s.Operation() = %d, want %d", mode, got, want)
		}
	}
}
