// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package camera implements the device level operations of the camera
// control link: feature discovery, camera button simulation, 5-key menu
// simulation, settings access and display port output.
package camera

import (
	"fmt"
	"io"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Options configure a Device
type Options struct {
	ConnectionAttempts int // handshake, disconnect, release, queries
	PressAttempts      int // directional key presses
	Logger             *logrus.Logger
}

// Device is one camera reached through a link engine
type Device struct {
	engine             *link.Engine
	connectionAttempts int
	pressAttempts      int
	log                *logrus.Entry

	info        DeviceInfo
	features    FeatureRegistry
	initialized bool
}

// New creates a device on top of engine. Call Init before anything else.
func New(engine *link.Engine, opts Options) *Device {
	if opts.ConnectionAttempts < 1 {
		opts.ConnectionAttempts = link.ConnectionAttempts
	}
	if opts.PressAttempts < 1 {
		opts.PressAttempts = link.PressAttempts
	}

	logger := opts.Logger
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	return &Device{
		engine:             engine,
		connectionAttempts: opts.ConnectionAttempts,
		pressAttempts:      opts.PressAttempts,
		log:                logger.WithField("component", "camera"),
		info:               DeviceInfo{Generation: engine.Generation()},
	}
}

// Engine returns the link engine the device talks through
func (d *Device) Engine() *link.Engine {
	return d.engine
}

// Init queries the device identity and features. On failure the device is
// still usable but reports no features, and the error is returned for
// the caller's information.
func (d *Device) Init() error {
	d.initialized = true

	var err error
	if d.engine.Generation() == rcdevice.GenerationLegacy {
		err = d.identifyLegacy()
	} else {
		err = d.queryDeviceInfo()
	}

	if err != nil {
		d.info = DeviceInfo{Generation: d.engine.Generation()}
		d.features = NewFeatureRegistry(0)
		d.log.WithError(err).Warn("feature query failed, no features available")
		return err
	}

	d.features = d.info.Registry()
	d.log.WithFields(logrus.Fields{
		"firmware": d.info.FirmwareVersion,
		"features": d.features.String(),
	}).Info("camera initialised")
	return nil
}

func (d *Device) queryDeviceInfo() error {
	frame, err := d.engine.SendAndAwait(link.Request{
		Command:  rcdevice.CmdGetDeviceInfo,
		Attempts: d.connectionAttempts,
	})
	if err != nil {
		return err
	}
	info, err := ParseDeviceInfo(frame.Payload())
	if err != nil {
		return err
	}
	d.info = info
	return nil
}

func (d *Device) identifyLegacy() error {
	if _, err := d.engine.SendAndAwait(link.Request{
		Payload:  []byte{rcdevice.LegacyArgIdentify},
		Attempts: d.connectionAttempts,
	}); err != nil {
		return err
	}
	d.info = DeviceInfo{
		ProtocolVersion: rcdevice.ProtocolVersionSplit,
		Generation:      rcdevice.GenerationLegacy,
		Features:        uint16(legacyFeatures),
	}
	return nil
}

// Initialized reports whether Init has run
func (d *Device) Initialized() bool {
	return d.initialized
}

// Info returns the device information recorded at init
func (d *Device) Info() DeviceInfo {
	return d.info
}

// Features returns the feature registry recorded at init
func (d *Device) Features() FeatureRegistry {
	return d.features
}

// IsFeatureSupported reports whether the device advertised feature
func (d *Device) IsFeatureSupported(feature Feature) bool {
	return d.features.IsSupported(feature)
}

// KeySimulationSupported reports whether 5-key menu simulation is available
func (d *Device) KeySimulationSupported() bool {
	return d.IsFeatureSupported(FeatureSimulate5KeyOSDCable)
}

func (d *Device) require(feature Feature) error {
	if !d.IsFeatureSupported(feature) {
		return fmt.Errorf("%s: %w", feature, rcdevice.ErrUnsupportedFeature)
	}
	return nil
}

// SimulateCameraButton presses a camera button. The device does not answer,
// so success only means the frame was written.
func (d *Device) SimulateCameraButton(operation uint8) error {
	feature, ok := cameraOperationFeature(operation)
	if !ok {
		return fmt.Errorf("unknown camera operation %d", operation)
	}
	if err := d.require(feature); err != nil {
		return err
	}

	d.log.WithField("operation", rcdevice.FormatCameraOperation(operation)).Debug("camera button")

	if d.engine.Generation() == rcdevice.GenerationLegacy {
		arg, ok := legacyArgument(operation)
		if !ok {
			return fmt.Errorf("%s on legacy camera: %w", feature, rcdevice.ErrUnsupportedFeature)
		}
		return d.engine.Send(rcdevice.CmdCameraControl, []byte{arg})
	}
	return d.engine.Send(rcdevice.CmdCameraControl, []byte{operation})
}

func cameraOperationFeature(operation uint8) (Feature, bool) {
	switch operation {
	case rcdevice.CameraOpWifiButton:
		return FeatureSimulateWifiButton, true
	case rcdevice.CameraOpPowerButton:
		return FeatureSimulatePowerButton, true
	case rcdevice.CameraOpChangeMode:
		return FeatureChangeMode, true
	case rcdevice.CameraOpStartRecord:
		return FeatureStartRecording, true
	case rcdevice.CameraOpStopRecord:
		return FeatureStopRecording, true
	default:
		return 0, false
	}
}

func legacyArgument(operation uint8) (uint8, bool) {
	switch operation {
	case rcdevice.CameraOpWifiButton:
		return rcdevice.LegacyArgWifi, true
	case rcdevice.CameraOpPowerButton:
		return rcdevice.LegacyArgPower, true
	case rcdevice.CameraOpChangeMode:
		return rcdevice.LegacyArgChangeMode, true
	default:
		return 0, false
	}
}
