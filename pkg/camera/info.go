// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import (
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// DeviceInfo is what the camera reported at init
type DeviceInfo struct {
	FirmwareVersion string              `cbor:"1,keyasint" yaml:"firmware_version"`
	ProtocolVersion uint8               `cbor:"2,keyasint" yaml:"protocol_version"`
	Generation      rcdevice.Generation `cbor:"3,keyasint" yaml:"generation"`
	Features        uint16              `cbor:"4,keyasint" yaml:"features"`
}

// Registry returns the feature registry described by the info
func (i DeviceInfo) Registry() FeatureRegistry {
	return NewFeatureRegistry(i.Features)
}

// String returns a one line summary
func (i DeviceInfo) String() string {
	fw := i.FirmwareVersion
	if fw == "" {
		fw = "unknown"
	}
	return fmt.Sprintf("%s protocol=%d firmware=%s features=0x%04X (%s)",
		i.Generation, i.ProtocolVersion, fw, i.Features, i.Registry())
}

// ParseDeviceInfo decodes a GetDeviceInfo response payload:
// [protocolVersion][features u16 LE][firmware version...]
func ParseDeviceInfo(payload []byte) (DeviceInfo, error) {
	if len(payload) < 3 {
		return DeviceInfo{}, fmt.Errorf("%w: device info payload too short (%d bytes)", rcdevice.ErrInvalidResponse, len(payload))
	}

	fw := payload[3:]
	if len(fw) > rcdevice.MaxFirmwareChars {
		fw = fw[:rcdevice.MaxFirmwareChars]
	}

	return DeviceInfo{
		ProtocolVersion: payload[0],
		Features:        binary.LittleEndian.Uint16(payload[1:3]),
		FirmwareVersion: strings.TrimRight(string(fw), "\x00"),
		Generation:      rcdevice.GenerationV2,
	}, nil
}

// EncodeDeviceInfo builds a GetDeviceInfo response payload
func EncodeDeviceInfo(info DeviceInfo) []byte {
	fw := []byte(info.FirmwareVersion)
	if len(fw) > rcdevice.MaxFirmwareChars {
		fw = fw[:rcdevice.MaxFirmwareChars]
	}
	payload := make([]byte, 3, 3+len(fw))
	payload[0] = info.ProtocolVersion
	binary.LittleEndian.PutUint16(payload[1:3], info.Features)
	return append(payload, fw...)
}
