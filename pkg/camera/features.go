// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import "strings"

// Feature is one bit of the device feature mask
type Feature uint16

const (
	FeatureSimulatePowerButton Feature = 1 << iota
	FeatureSimulateWifiButton
	FeatureChangeMode
	FeatureSimulate5KeyOSDCable
	FeatureDeviceSettingsAccess
	FeatureDisplayPort
	FeatureStartRecording
	FeatureStopRecording
)

// AllFeatures lists the known features in bit order
var AllFeatures = []Feature{
	FeatureSimulatePowerButton,
	FeatureSimulateWifiButton,
	FeatureChangeMode,
	FeatureSimulate5KeyOSDCable,
	FeatureDeviceSettingsAccess,
	FeatureDisplayPort,
	FeatureStartRecording,
	FeatureStopRecording,
}

// legacyFeatures is what a legacy split camera supports once it answers
const legacyFeatures = FeatureSimulatePowerButton | FeatureSimulateWifiButton | FeatureChangeMode

// String returns the feature name
func (f Feature) String() string {
	switch f {
	case FeatureSimulatePowerButton:
		return "power-button"
	case FeatureSimulateWifiButton:
		return "wifi-button"
	case FeatureChangeMode:
		return "change-mode"
	case FeatureSimulate5KeyOSDCable:
		return "5-key-osd-cable"
	case FeatureDeviceSettingsAccess:
		return "settings-access"
	case FeatureDisplayPort:
		return "displayport"
	case FeatureStartRecording:
		return "start-recording"
	case FeatureStopRecording:
		return "stop-recording"
	default:
		return "unknown"
	}
}

// FeatureRegistry records which optional features the device reported.
// It is filled once at init; a failed query leaves every bit clear.
type FeatureRegistry struct {
	mask uint16
}

// NewFeatureRegistry creates a registry from a raw feature mask
func NewFeatureRegistry(mask uint16) FeatureRegistry {
	return FeatureRegistry{mask: mask}
}

// IsSupported reports whether feature's bit is set
func (r FeatureRegistry) IsSupported(feature Feature) bool {
	return r.mask&uint16(feature) != 0
}

// Mask returns the raw feature mask
func (r FeatureRegistry) Mask() uint16 {
	return r.mask
}

// Supported returns the known features that are set
func (r FeatureRegistry) Supported() []Feature {
	var out []Feature
	for _, f := range AllFeatures {
		if r.IsSupported(f) {
			out = append(out, f)
		}
	}
	return out
}

// String returns a comma separated list of supported features
func (r FeatureRegistry) String() string {
	supported := r.Supported()
	if len(supported) == 0 {
		return "none"
	}
	names := make([]string, len(supported))
	for i, f := range supported {
		names[i] = f.String()
	}
	return strings.Join(names, ",")
}
