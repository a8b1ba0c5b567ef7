// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// SettingType is the value type of a device setting
type SettingType uint8

const (
	SettingUint8         SettingType = 0
	SettingInt8          SettingType = 1
	SettingUint16        SettingType = 2
	SettingInt16         SettingType = 3
	SettingFloat         SettingType = 8
	SettingTextSelection SettingType = 9
	SettingString        SettingType = 10
	SettingFolder        SettingType = 11
	SettingInfo          SettingType = 12
)

// Reserved setting ids
const (
	SettingIDDisplayCharset = 0
	SettingIDDisplayColumns = 1
	SettingIDDisplayTVMode  = 2
)

// RootSettingID is the parent id used to list the top level settings
const RootSettingID = 0

const (
	maxSettingChunks    = 32
	textSelectionSep    = ";"
	settingsChunkBudget = rcdevice.MaxPayloadSize - 2 // extended command byte, remaining count
)

// String returns the type name
func (t SettingType) String() string {
	switch t {
	case SettingUint8:
		return "uint8"
	case SettingInt8:
		return "int8"
	case SettingUint16:
		return "uint16"
	case SettingInt16:
		return "int16"
	case SettingFloat:
		return "float"
	case SettingTextSelection:
		return "text-selection"
	case SettingString:
		return "string"
	case SettingFolder:
		return "folder"
	case SettingInfo:
		return "info"
	default:
		return "unknown"
	}
}

// Setting is one entry of a settings listing
type Setting struct {
	ID    uint8  `cbor:"1,keyasint" yaml:"id"`
	Name  string `cbor:"2,keyasint" yaml:"name"`
	Value string `cbor:"3,keyasint" yaml:"value"`
}

// SettingDetail describes a setting's type, value and constraints.
// Float values are fixed point scaled by 10^DecimalPoint.
type SettingDetail struct {
	ID            uint8       `cbor:"1,keyasint" yaml:"id"`
	Type          SettingType `cbor:"2,keyasint" yaml:"type"`
	Value         int64       `cbor:"3,keyasint,omitempty" yaml:"value,omitempty"`
	Min           int64       `cbor:"4,keyasint,omitempty" yaml:"min,omitempty"`
	Max           int64       `cbor:"5,keyasint,omitempty" yaml:"max,omitempty"`
	Step          int64       `cbor:"6,keyasint,omitempty" yaml:"step,omitempty"`
	DecimalPoint  uint8       `cbor:"7,keyasint,omitempty" yaml:"decimal_point,omitempty"`
	Text          string      `cbor:"8,keyasint,omitempty" yaml:"text,omitempty"`
	MaxStringSize uint8       `cbor:"9,keyasint,omitempty" yaml:"max_string_size,omitempty"`
	Selections    []string    `cbor:"10,keyasint,omitempty" yaml:"selections,omitempty"`
}

// WriteResult is the device's answer to WriteSetting
type WriteResult struct {
	ResultCode          uint8
	NeedUpdateMenuItems bool
}

// OK reports whether the device accepted the write
func (r WriteResult) OK() bool {
	return r.ResultCode == 0
}

// GetSettings lists the children of parentID, following chunk continuation
func (d *Device) GetSettings(parentID uint8) ([]Setting, error) {
	if err := d.require(FeatureDeviceSettingsAccess); err != nil {
		return nil, err
	}

	var settings []Setting
	for chunk := 0; chunk < maxSettingChunks; chunk++ {
		frame, err := d.engine.SendAndAwait(link.Request{
			Command:  rcdevice.CmdGetSettings,
			Payload:  []byte{parentID, uint8(chunk)},
			Attempts: d.connectionAttempts,
		})
		if err != nil {
			return nil, fmt.Errorf("settings of %d chunk %d: %w", parentID, chunk, err)
		}

		remaining, list, err := ParseSettingsChunk(frame.Payload())
		if err != nil {
			return nil, err
		}
		settings = append(settings, list...)
		if remaining == 0 {
			return settings, nil
		}
	}
	return nil, fmt.Errorf("%w: settings of %d exceed %d chunks", rcdevice.ErrInvalidResponse, parentID, maxSettingChunks)
}

// GetSettingDetail reads a setting's type, value and constraints
func (d *Device) GetSettingDetail(id uint8) (*SettingDetail, error) {
	if err := d.require(FeatureDeviceSettingsAccess); err != nil {
		return nil, err
	}

	frame, err := d.engine.SendAndAwait(link.Request{
		Command:  rcdevice.CmdReadSettingDetail,
		Payload:  []byte{id},
		Attempts: d.connectionAttempts,
	})
	if err != nil {
		return nil, err
	}
	return ParseSettingDetail(id, frame.Payload())
}

// ReadSetting reads a setting's raw value
func (d *Device) ReadSetting(id uint8) (SettingType, []byte, error) {
	if err := d.require(FeatureDeviceSettingsAccess); err != nil {
		return 0, nil, err
	}

	frame, err := d.engine.SendAndAwait(link.Request{
		Command:  rcdevice.CmdReadSetting,
		Payload:  []byte{id},
		Attempts: d.connectionAttempts,
	})
	if err != nil {
		return 0, nil, err
	}
	p := frame.Payload()
	return SettingType(p[0]), p[1:], nil
}

// WriteSetting writes raw data to a setting
func (d *Device) WriteSetting(id uint8, data []byte) (*WriteResult, error) {
	if err := d.require(FeatureDeviceSettingsAccess); err != nil {
		return nil, err
	}

	payload := append([]byte{id}, data...)
	frame, err := d.engine.SendAndAwait(link.Request{
		Command:  rcdevice.CmdWriteSetting,
		Payload:  payload,
		Attempts: d.connectionAttempts,
	})
	if err != nil {
		return nil, err
	}

	p := frame.Payload()
	result := &WriteResult{ResultCode: p[0]}
	if len(p) > 1 {
		result.NeedUpdateMenuItems = p[1] != 0
	}
	return result, nil
}

// ============================================================
// Wire formats
// ============================================================

// ParseSettingsChunk decodes a GetSettings response:
// [remainingChunks]([id][name\0][value\0])*
func ParseSettingsChunk(payload []byte) (uint8, []Setting, error) {
	if len(payload) < 1 {
		return 0, nil, fmt.Errorf("%w: empty settings chunk", rcdevice.ErrInvalidResponse)
	}

	remaining := payload[0]
	rest := payload[1:]
	var settings []Setting
	for len(rest) > 0 {
		id := rest[0]
		name, after, ok := cutString(rest[1:])
		if !ok {
			return 0, nil, fmt.Errorf("%w: setting %d name not terminated", rcdevice.ErrInvalidResponse, id)
		}
		value, after, ok := cutString(after)
		if !ok {
			return 0, nil, fmt.Errorf("%w: setting %d value not terminated", rcdevice.ErrInvalidResponse, id)
		}
		settings = append(settings, Setting{ID: id, Name: name, Value: value})
		rest = after
	}
	return remaining, settings, nil
}

// EncodeSettingsChunks splits settings into GetSettings response payloads
func EncodeSettingsChunks(settings []Setting) [][]byte {
	var chunks [][]byte
	current := []byte{}
	for _, s := range settings {
		entry := []byte{s.ID}
		entry = append(entry, s.Name...)
		entry = append(entry, 0)
		entry = append(entry, s.Value...)
		entry = append(entry, 0)
		if len(current) > 0 && len(current)+len(entry) > settingsChunkBudget {
			chunks = append(chunks, current)
			current = []byte{}
		}
		current = append(current, entry...)
	}
	chunks = append(chunks, current)

	out := make([][]byte, len(chunks))
	for i, c := range chunks {
		out[i] = append([]byte{uint8(len(chunks) - 1 - i)}, c...)
	}
	return out
}

// ParseSettingDetail decodes a ReadSettingDetail response
func ParseSettingDetail(id uint8, payload []byte) (*SettingDetail, error) {
	if len(payload) < 1 {
		return nil, fmt.Errorf("%w: empty setting detail", rcdevice.ErrInvalidResponse)
	}

	d := &SettingDetail{ID: id, Type: SettingType(payload[0])}
	p := payload[1:]
	short := fmt.Errorf("%w: %s detail of setting %d too short", rcdevice.ErrInvalidResponse, d.Type, id)

	switch d.Type {
	case SettingUint8, SettingInt8:
		if len(p) < 4 {
			return nil, short
		}
		conv := func(b byte) int64 { return int64(b) }
		if d.Type == SettingInt8 {
			conv = func(b byte) int64 { return int64(int8(b)) }
		}
		d.Value, d.Min, d.Max, d.Step = conv(p[0]), conv(p[1]), conv(p[2]), int64(p[3])

	case SettingUint16, SettingInt16:
		if len(p) < 7 {
			return nil, short
		}
		conv := func(b []byte) int64 { return int64(binary.LittleEndian.Uint16(b)) }
		if d.Type == SettingInt16 {
			conv = func(b []byte) int64 { return int64(int16(binary.LittleEndian.Uint16(b))) }
		}
		d.Value, d.Min, d.Max, d.Step = conv(p[0:2]), conv(p[2:4]), conv(p[4:6]), int64(p[6])

	case SettingFloat:
		if len(p) < 17 {
			return nil, short
		}
		conv := func(b []byte) int64 { return int64(int32(binary.LittleEndian.Uint32(b))) }
		d.Value, d.Min, d.Max = conv(p[0:4]), conv(p[4:8]), conv(p[8:12])
		d.DecimalPoint = p[12]
		d.Step = conv(p[13:17])

	case SettingTextSelection:
		if len(p) < 1 {
			return nil, short
		}
		d.Value = int64(p[0])
		list, _, ok := cutString(p[1:])
		if !ok {
			return nil, fmt.Errorf("%w: selections of setting %d not terminated", rcdevice.ErrInvalidResponse, id)
		}
		if list != "" {
			d.Selections = strings.Split(list, textSelectionSep)
		}

	case SettingString:
		text, after, ok := cutString(p)
		if !ok || len(after) < 1 {
			return nil, short
		}
		d.Text = text
		d.MaxStringSize = after[0]

	case SettingInfo:
		text, _, ok := cutString(p)
		if !ok {
			return nil, short
		}
		d.Text = text

	case SettingFolder:

	default:
		return nil, fmt.Errorf("%w: unknown setting type %d", rcdevice.ErrInvalidResponse, payload[0])
	}

	return d, nil
}

// Encode builds the ReadSettingDetail response payload for the detail
func (d *SettingDetail) Encode() []byte {
	out := []byte{uint8(d.Type)}

	switch d.Type {
	case SettingUint8, SettingInt8:
		out = append(out, byte(d.Value), byte(d.Min), byte(d.Max), byte(d.Step))
	case SettingUint16, SettingInt16:
		out = binary.LittleEndian.AppendUint16(out, uint16(d.Value))
		out = binary.LittleEndian.AppendUint16(out, uint16(d.Min))
		out = binary.LittleEndian.AppendUint16(out, uint16(d.Max))
		out = append(out, byte(d.Step))
	case SettingFloat:
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(d.Value)))
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(d.Min)))
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(d.Max)))
		out = append(out, d.DecimalPoint)
		out = binary.LittleEndian.AppendUint32(out, uint32(int32(d.Step)))
	case SettingTextSelection:
		out = append(out, byte(d.Value))
		out = append(out, strings.Join(d.Selections, textSelectionSep)...)
		out = append(out, 0)
	case SettingString:
		out = append(out, d.Text...)
		out = append(out, 0, d.MaxStringSize)
	case SettingInfo:
		out = append(out, d.Text...)
		out = append(out, 0)
	}
	return out
}

// ValueBytes returns the raw value as carried by ReadSetting and WriteSetting
func (d *SettingDetail) ValueBytes() []byte {
	switch d.Type {
	case SettingUint8, SettingInt8, SettingTextSelection:
		return []byte{byte(d.Value)}
	case SettingUint16, SettingInt16:
		return binary.LittleEndian.AppendUint16(nil, uint16(d.Value))
	case SettingFloat:
		return binary.LittleEndian.AppendUint32(nil, uint32(int32(d.Value)))
	case SettingString, SettingInfo:
		return append([]byte(d.Text), 0)
	default:
		return nil
	}
}

// FormatValue renders the current value for display
func (d *SettingDetail) FormatValue() string {
	switch d.Type {
	case SettingFloat:
		return strconv.FormatFloat(float64(d.Value)/math.Pow10(int(d.DecimalPoint)), 'f', int(d.DecimalPoint), 64)
	case SettingTextSelection:
		if d.Value >= 0 && int(d.Value) < len(d.Selections) {
			return d.Selections[d.Value]
		}
		return fmt.Sprintf("#%d", d.Value)
	case SettingString, SettingInfo:
		return d.Text
	case SettingFolder:
		return "<folder>"
	default:
		return strconv.FormatInt(d.Value, 10)
	}
}

// EncodeValue parses input according to the setting type and returns the
// bytes to send with WriteSetting
func (d *SettingDetail) EncodeValue(input string) ([]byte, error) {
	switch d.Type {
	case SettingUint8, SettingInt8, SettingUint16, SettingInt16:
		v, err := strconv.ParseInt(strings.TrimSpace(input), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("setting %d expects an integer: %w", d.ID, err)
		}
		if err := d.checkRange(v, input); err != nil {
			return nil, err
		}
		next := *d
		next.Value = v
		return next.ValueBytes(), nil

	case SettingFloat:
		f, err := strconv.ParseFloat(strings.TrimSpace(input), 64)
		if err != nil {
			return nil, fmt.Errorf("setting %d expects a number: %w", d.ID, err)
		}
		v := int64(math.Round(f * math.Pow10(int(d.DecimalPoint))))
		if err := d.checkRange(v, input); err != nil {
			return nil, err
		}
		next := *d
		next.Value = v
		return next.ValueBytes(), nil

	case SettingTextSelection:
		for i, s := range d.Selections {
			if strings.EqualFold(s, input) {
				return []byte{byte(i)}, nil
			}
		}
		if i, err := strconv.Atoi(input); err == nil && i >= 0 && i < len(d.Selections) {
			return []byte{byte(i)}, nil
		}
		return nil, fmt.Errorf("setting %d: %q is not one of %s", d.ID, input, strings.Join(d.Selections, ", "))

	case SettingString:
		if d.MaxStringSize > 0 && len(input) > int(d.MaxStringSize) {
			return nil, fmt.Errorf("setting %d: string longer than %d", d.ID, d.MaxStringSize)
		}
		return append([]byte(input), 0), nil

	default:
		return nil, fmt.Errorf("setting %d of type %s is not writable", d.ID, d.Type)
	}
}

func (d *SettingDetail) checkRange(v int64, input string) error {
	if d.Min == 0 && d.Max == 0 {
		return nil
	}
	if v < d.Min || v > d.Max {
		return fmt.Errorf("setting %d: %s out of range", d.ID, input)
	}
	return nil
}

// ApplyValue updates the detail from raw WriteSetting data
func (d *SettingDetail) ApplyValue(data []byte) error {
	bad := fmt.Errorf("setting %d: %d bytes is not a %s value", d.ID, len(data), d.Type)
	switch d.Type {
	case SettingUint8, SettingTextSelection:
		if len(data) != 1 {
			return bad
		}
		d.Value = int64(data[0])
	case SettingInt8:
		if len(data) != 1 {
			return bad
		}
		d.Value = int64(int8(data[0]))
	case SettingUint16:
		if len(data) != 2 {
			return bad
		}
		d.Value = int64(binary.LittleEndian.Uint16(data))
	case SettingInt16:
		if len(data) != 2 {
			return bad
		}
		d.Value = int64(int16(binary.LittleEndian.Uint16(data)))
	case SettingFloat:
		if len(data) != 4 {
			return bad
		}
		d.Value = int64(int32(binary.LittleEndian.Uint32(data)))
	case SettingString:
		text, _, ok := cutString(data)
		if !ok {
			text = string(data)
		}
		d.Text = text
	default:
		return fmt.Errorf("setting %d of type %s is not writable", d.ID, d.Type)
	}
	return nil
}

// cutString splits a NUL terminated string off the front of b
func cutString(b []byte) (string, []byte, bool) {
	i := bytes.IndexByte(b, 0)
	if i < 0 {
		return "", nil, false
	}
	return string(b[:i]), b[i+1:], true
}
