// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcdevice

import "fmt"

// Encoder encodes frames for one device on the link.
type Encoder struct {
	generation Generation
	deviceID   uint8
	crc        CRCAlgorithm
}

// NewEncoder creates an encoder for the given generation and V2 device id.
func NewEncoder(gen Generation, deviceID uint8) *Encoder {
	return &Encoder{generation: gen, deviceID: deviceID}
}

// Generation returns the generation the encoder produces
func (e *Encoder) Generation() Generation {
	return e.generation
}

// SetCRC selects the checksum used for V2 frames. Legacy frames are unaffected.
func (e *Encoder) SetCRC(alg CRCAlgorithm) {
	e.crc = alg
}

// Encode encodes a request to wire format.
//
// For the legacy generation the command is ignored and payload must hold the
// single control argument.
func (e *Encoder) Encode(command uint8, payload []byte) ([]byte, error) {
	if e.generation == GenerationLegacy {
		if len(payload) != 1 {
			return nil, fmt.Errorf("legacy control frame needs exactly 1 argument byte, got %d", len(payload))
		}
		return EncodeLegacyControl(payload[0]), nil
	}
	return EncodeFrameWithCRC(e.crc, e.deviceID, command, payload)
}

// EncodeFrame encodes an existing Frame to wire format.
func (e *Encoder) EncodeFrame(f *Frame) ([]byte, error) {
	if f.generation == GenerationLegacy {
		return EncodeLegacyControl(f.Argument()), nil
	}
	return EncodeFrameWithCRC(e.crc, f.deviceID, f.command, f.payload)
}

// EncodeFrameFromValues creates a complete wire-formatted V2 frame:
// [0xCC][deviceId:4|command:4][length][payload][crc8 poly 0x31]
func EncodeFrameFromValues(deviceID, command uint8, payload []byte) ([]byte, error) {
	return EncodeFrameWithCRC(CRCPoly31, deviceID, command, payload)
}

// EncodeFrameWithCRC creates a V2 frame whose trailing checksum uses alg.
func EncodeFrameWithCRC(alg CRCAlgorithm, deviceID, command uint8, payload []byte) ([]byte, error) {
	if deviceID > MaxDeviceID {
		return nil, fmt.Errorf("device id 0x%02X does not fit in 4 bits", deviceID)
	}

	// Ids above 0x0F travel as CmdExtended with the real id as the first
	// payload byte. This is a camlink framing convention shared with its
	// decoder and simulator; cameras do not define this escape.
	body := payload
	if command > MaxCommand || command == CmdExtended {
		if !IsExtendedCommand(command) {
			return nil, fmt.Errorf("command 0x%02X does not fit in 4 bits", command)
		}
		body = make([]byte, 0, len(payload)+1)
		body = append(body, command)
		body = append(body, payload...)
		command = CmdExtended
	}

	if len(body) > MaxPayloadSize {
		return nil, fmt.Errorf("%w: %d bytes (max %d)", ErrPayloadTooLarge, len(body), MaxPayloadSize)
	}

	frame := make([]byte, 0, 4+len(body))
	frame = append(frame, HeaderV2, deviceID<<4|command, uint8(len(body)))
	frame = append(frame, body...)
	frame = append(frame, alg.Checksum(frame))

	return frame, nil
}

// EncodeLegacyControl builds the 5-byte legacy control frame for argument.
//
// The CRC is computed over a draft with the tail in slot 3, then slot 3 is
// overwritten with the CRC and the tail moves to slot 4. Devices check the
// same arithmetic, so the order matters.
func EncodeLegacyControl(argument uint8) []byte {
	draft := []byte{HeaderLegacy, LegacyCtrlByte, argument, TailLegacy}
	crc := LegacyCRC(draft)

	frame := make([]byte, LegacyFrameSize)
	copy(frame, draft[:3])
	frame[3] = crc
	frame[4] = TailLegacy
	return frame
}

// EncodePacket encodes a V2 frame, panicking on error.
// Intended for constant frames in tools and tests.
func EncodePacket(deviceID, command uint8, payload []byte) []byte {
	data, err := EncodeFrameFromValues(deviceID, command, payload)
	if err != nil {
		panic(fmt.Sprintf("rcdevice: encode error: %v", err))
	}
	return data
}
