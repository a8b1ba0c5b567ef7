// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package gesture

import (
	"errors"
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// ButtonDevice is the part of camera.Device the switch toggles drive
type ButtonDevice interface {
	SimulateCameraButton(operation uint8) error
}

// CameraMode is an RC mode switch bound to a camera button
type CameraMode uint8

const (
	ModeCamera1 CameraMode = iota // wifi button
	ModeCamera2                   // power button
	ModeCamera3                   // change mode
	modeCount
)

// String returns the mode name
func (m CameraMode) String() string {
	switch m {
	case ModeCamera1:
		return "CAMERA1"
	case ModeCamera2:
		return "CAMERA2"
	case ModeCamera3:
		return "CAMERA3"
	default:
		return fmt.Sprintf("CAMERA?(%d)", uint8(m))
	}
}

// Operation returns the camera operation the mode triggers
func (m CameraMode) Operation() uint8 {
	switch m {
	case ModeCamera2:
		return rcdevice.CameraOpPowerButton
	case ModeCamera3:
		return rcdevice.CameraOpChangeMode
	default:
		return rcdevice.CameraOpWifiButton
	}
}

// SwitchState is the one-shot latch of a single mode switch
type SwitchState struct {
	IsActivated bool
}

// Switches fires a camera button once each time a mode switch goes active.
// A switch must return low before it can fire again. Every latch starts
// activated so a switch already high at startup does not fire.
type Switches struct {
	device  ButtonDevice
	states  [modeCount]SwitchState
	log     *logrus.Entry
	onEvent func(Event)
}

// NewSwitches creates the toggles for device
func NewSwitches(device ButtonDevice, logger *logrus.Logger, onEvent func(Event)) *Switches {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	s := &Switches{
		device:  device,
		log:     logger.WithField("component", "switches"),
		onEvent: onEvent,
	}
	for i := range s.states {
		s.states[i].IsActivated = true
	}
	return s
}

// State returns the latch of a mode
func (s *Switches) State(mode CameraMode) SwitchState {
	if mode >= modeCount {
		return SwitchState{}
	}
	return s.states[mode]
}

// Update feeds the current position of a mode switch. It returns the send
// error, if any; a button the camera does not support is skipped silently.
func (s *Switches) Update(mode CameraMode, active bool) error {
	if mode >= modeCount {
		return fmt.Errorf("unknown camera mode %d", mode)
	}

	state := &s.states[mode]
	if !active {
		state.IsActivated = false
		return nil
	}
	if state.IsActivated {
		return nil
	}
	state.IsActivated = true

	op := mode.Operation()
	err := s.device.SimulateCameraButton(op)
	if errors.Is(err, rcdevice.ErrUnsupportedFeature) {
		s.log.WithField("mode", mode.String()).Debug("camera button not supported")
		return nil
	}
	if err != nil {
		s.log.WithError(err).WithField("mode", mode.String()).Warn("camera button failed")
		return err
	}

	s.log.WithField("operation", rcdevice.FormatCameraOperation(op)).Info("camera button")
	if s.onEvent != nil {
		s.onEvent(Event{Type: EventCameraButton, Operation: op})
	}
	return nil
}
