// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package rcdevice

import "time"

// Decoder implements the byte-at-a-time frame decoder state machine.
//
// Bytes that arrive while waiting for a header are dropped, which is how the
// decoder resynchronises after noise or a discarded frame.
type Decoder struct {
	generation Generation
	deviceID   uint8
	state      DecodeState
	frame      *Frame
	length     int
	crc        uint8
	rawBuffer  []byte // raw bytes of the frame in progress, including the header
	algorithm  CRCAlgorithm
}

// NewDecoder creates a decoder for the given generation. V2 frames addressed
// to any device id other than deviceID are dropped.
func NewDecoder(gen Generation, deviceID uint8) *Decoder {
	return &Decoder{
		generation: gen,
		deviceID:   deviceID,
		state:      StateAwaitHeader,
		rawBuffer:  make([]byte, 0, MaxFrameSize),
	}
}

// SetCRC selects the checksum expected on V2 frames
func (d *Decoder) SetCRC(alg CRCAlgorithm) {
	d.algorithm = alg
}

// Reset returns the decoder to AwaitHeader, dropping any partial frame
func (d *Decoder) Reset() {
	d.state = StateAwaitHeader
	d.frame = nil
	d.length = 0
	d.crc = 0
	d.rawBuffer = d.rawBuffer[:0]
}

// State returns the current decoder state
func (d *Decoder) State() DecodeState {
	return d.state
}

// GetRawBytes returns the raw bytes of the frame in progress
func (d *Decoder) GetRawBytes() []byte {
	return d.rawBuffer
}

// DecodeByte processes a single byte through the decoder state machine.
// Returns a completed frame, or nil if the frame is incomplete.
// Returns a *FramingError or *ChecksumError when a frame is dropped; the
// decoder is already back in AwaitHeader when that happens.
func (d *Decoder) DecodeByte(b byte) (*Frame, error) {
	if d.generation == GenerationLegacy {
		return d.decodeLegacy(b)
	}
	return d.decodeV2(b)
}

// Decode feeds data through the decoder and returns every completed frame.
// Dropped frames are reported through onError when it is not nil.
func (d *Decoder) Decode(data []byte, onError func(error)) []*Frame {
	var frames []*Frame
	for _, b := range data {
		frame, err := d.DecodeByte(b)
		if err != nil && onError != nil {
			onError(err)
		}
		if frame != nil {
			frames = append(frames, frame)
		}
	}
	return frames
}

func (d *Decoder) decodeV2(b byte) (*Frame, error) {
	switch d.state {
	case StateAwaitHeader:
		d.startFrame(b, HeaderV2)
		return nil, nil

	case StateAwaitDeviceCommand:
		if b>>4 != d.deviceID {
			return nil, d.dropFrame(b, HeaderV2, "unexpected device id")
		}
		d.frame.deviceID = d.deviceID
		d.frame.command = b & MaxCommand
		d.rawBuffer = append(d.rawBuffer, b)
		d.state = StateAwaitLength
		return nil, nil

	case StateAwaitLength:
		if b > MaxPayloadSize {
			return nil, d.dropFrame(b, HeaderV2, "invalid length")
		}
		d.rawBuffer = append(d.rawBuffer, b)
		d.length = int(b)
		d.frame.payload = make([]byte, 0, d.length)
		if d.length == 0 {
			d.state = StateAwaitCrc
		} else {
			d.state = StateAwaitPayload
		}
		return nil, nil

	case StateAwaitPayload:
		d.rawBuffer = append(d.rawBuffer, b)
		d.frame.payload = append(d.frame.payload, b)
		if len(d.frame.payload) >= d.length {
			d.state = StateAwaitCrc
		}
		return nil, nil

	case StateAwaitCrc:
		calculated := d.algorithm.Checksum(d.rawBuffer)
		d.rawBuffer = append(d.rawBuffer, b)
		if calculated != b {
			d.Reset()
			return nil, &ChecksumError{Expected: calculated, Got: b}
		}
		if d.frame.command == CmdExtended {
			if len(d.frame.payload) == 0 {
				d.Reset()
				return nil, &FramingError{State: StateAwaitCrc, Byte: b, Reason: "extended frame without command"}
			}
			d.frame.command = d.frame.payload[0]
			d.frame.payload = d.frame.payload[1:]
		}
		return d.completeFrame(b), nil

	default:
		state := d.state
		d.Reset()
		return nil, &FramingError{State: state, Byte: b, Reason: "invalid state"}
	}
}

func (d *Decoder) decodeLegacy(b byte) (*Frame, error) {
	switch d.state {
	case StateAwaitHeader:
		d.startFrame(b, HeaderLegacy)
		return nil, nil

	case StateAwaitDeviceCommand:
		if b != LegacyCtrlByte {
			return nil, d.dropFrame(b, HeaderLegacy, "unexpected command byte")
		}
		d.rawBuffer = append(d.rawBuffer, b)
		d.frame.command = b
		d.state = StateAwaitPayload
		return nil, nil

	case StateAwaitPayload:
		d.rawBuffer = append(d.rawBuffer, b)
		d.frame.payload = []byte{b}
		d.state = StateAwaitCrc
		return nil, nil

	case StateAwaitCrc:
		d.rawBuffer = append(d.rawBuffer, b)
		d.crc = b
		d.state = StateAwaitTail
		return nil, nil

	case StateAwaitTail:
		if b != TailLegacy {
			return nil, d.dropFrame(b, HeaderLegacy, "missing tail byte")
		}
		d.rawBuffer = append(d.rawBuffer, b)
		// Same two-pass arithmetic as the encoder: the tail sits in the CRC slot
		calculated := LegacyCRC([]byte{HeaderLegacy, LegacyCtrlByte, d.frame.Argument(), TailLegacy})
		if calculated != d.crc {
			got := d.crc
			d.Reset()
			return nil, &ChecksumError{Expected: calculated, Got: got}
		}
		return d.completeFrame(d.crc), nil

	default:
		state := d.state
		d.Reset()
		return nil, &FramingError{State: state, Byte: b, Reason: "invalid state"}
	}
}

// startFrame begins a new frame when b is the header, otherwise drops b
func (d *Decoder) startFrame(b, header byte) {
	if b != header {
		return
	}
	d.Reset()
	d.rawBuffer = append(d.rawBuffer, b)
	d.frame = &Frame{generation: d.generation}
	d.state = StateAwaitDeviceCommand
}

// dropFrame discards the frame in progress. A header byte in the offending
// position is taken as the start of the next frame.
func (d *Decoder) dropFrame(b, header byte, reason string) error {
	err := &FramingError{State: d.state, Byte: b, Reason: reason}
	d.Reset()
	d.startFrame(b, header)
	return err
}

func (d *Decoder) completeFrame(crc uint8) *Frame {
	frame := d.frame
	frame.crc = crc
	frame.timestamp = time.Now()
	d.Reset()
	return frame
}
