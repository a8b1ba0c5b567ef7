// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package simulator provides an in-memory camera that speaks the control
// link protocol. It implements link.Transport, so an engine can be pointed
// at it in place of a serial port.
package simulator

import (
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/pkg/camera"
	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Camera is a simulated camera
type Camera struct {
	mu sync.Mutex

	info     camera.DeviceInfo
	deviceID uint8
	crc      rcdevice.CRCAlgorithm
	decoder  *rcdevice.Decoder
	rx       []byte
	log      *logrus.Entry

	settings map[uint8]*simSetting

	connected  bool
	pressedKey uint8
	buttons    []uint8
	display    []*rcdevice.Frame
	requests   []*rcdevice.Frame

	// Fault injection
	silent           bool
	rejectConnection bool
	dropResponses    int
	corruptResponses int
}

type simSetting struct {
	parent uint8
	name   string
	detail camera.SettingDetail
}

// Option adjusts a simulated camera
type Option func(*Camera)

// WithFeatures sets the advertised feature mask
func WithFeatures(mask uint16) Option {
	return func(c *Camera) { c.info.Features = mask }
}

// WithFirmware sets the reported firmware version
func WithFirmware(version string) Option {
	return func(c *Camera) { c.info.FirmwareVersion = version }
}

// WithDeviceID sets the V2 device id the camera answers to
func WithDeviceID(id uint8) Option {
	return func(c *Camera) { c.deviceID = id }
}

// WithCRC sets the checksum the camera expects and sends on V2 frames
func WithCRC(alg rcdevice.CRCAlgorithm) Option {
	return func(c *Camera) { c.crc = alg }
}

// WithLogger logs every handled request
func WithLogger(logger *logrus.Logger) Option {
	return func(c *Camera) { c.log = logger.WithField("component", "simulator") }
}

// AllFeatures is the mask of every known feature
const AllFeatures = 0x00FF

// NewCamera creates a simulated camera for the given generation
func NewCamera(gen rcdevice.Generation, opts ...Option) *Camera {
	c := &Camera{
		info: camera.DeviceInfo{
			FirmwareVersion: "2.4.1",
			ProtocolVersion: rcdevice.ProtocolVersionV1,
			Generation:      gen,
			Features:        AllFeatures,
		},
		deviceID: rcdevice.DefaultDeviceID,
		settings: defaultSettings(),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.decoder = rcdevice.NewDecoder(gen, c.deviceID)
	c.decoder.SetCRC(c.crc)
	return c
}

// ============================================================
// link.Transport
// ============================================================

// Write feeds host bytes to the camera
func (c *Camera) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for _, b := range p {
		frame, err := c.decoder.DecodeByte(b)
		if err != nil && c.log != nil {
			c.log.WithError(err).Debug("request dropped")
		}
		if frame != nil {
			c.requests = append(c.requests, frame)
			c.handle(frame)
		}
	}
	return len(p), nil
}

// BytesAvailable returns the number of response bytes waiting
func (c *Camera) BytesAvailable() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.rx)
}

// ReadByte pops one response byte
func (c *Camera) ReadByte() (byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if len(c.rx) == 0 {
		return 0, link.ErrNoData
	}
	b := c.rx[0]
	c.rx = c.rx[1:]
	return b, nil
}

// Generation returns the protocol generation the camera speaks
func (c *Camera) Generation() rcdevice.Generation {
	return c.info.Generation
}

// ============================================================
// Fault injection and inspection
// ============================================================

// SetSilent stops (or resumes) all responses
func (c *Camera) SetSilent(silent bool) {
	c.mu.Lock()
	c.silent = silent
	c.mu.Unlock()
}

// SetRejectConnection makes connection requests answer with a failure result
func (c *Camera) SetRejectConnection(reject bool) {
	c.mu.Lock()
	c.rejectConnection = reject
	c.mu.Unlock()
}

// DropResponses swallows the next n responses
func (c *Camera) DropResponses(n int) {
	c.mu.Lock()
	c.dropResponses = n
	c.mu.Unlock()
}

// CorruptResponses damages the CRC of the next n responses
func (c *Camera) CorruptResponses(n int) {
	c.mu.Lock()
	c.corruptResponses = n
	c.mu.Unlock()
}

// Connected reports whether the 5-key menu connection is open
func (c *Camera) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected
}

// PressedKey returns the key operation currently held, zero when released
func (c *Camera) PressedKey() uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pressedKey
}

// Buttons returns the camera button operations received so far
func (c *Camera) Buttons() []uint8 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]uint8(nil), c.buttons...)
}

// DisplayFrames returns the display port frames received so far
func (c *Camera) DisplayFrames() []*rcdevice.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*rcdevice.Frame(nil), c.display...)
}

// Requests returns every decoded request
func (c *Camera) Requests() []*rcdevice.Frame {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*rcdevice.Frame(nil), c.requests...)
}

// SettingValue returns the current detail of a setting
func (c *Camera) SettingValue(id uint8) (camera.SettingDetail, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.settings[id]
	if !ok {
		return camera.SettingDetail{}, false
	}
	return s.detail, true
}

// ============================================================
// Request handling
// ============================================================

func (c *Camera) handle(f *rcdevice.Frame) {
	if c.log != nil {
		c.log.Debugf("request %s", rcdevice.FormatFrame(f))
	}

	if f.Generation() == rcdevice.GenerationLegacy {
		if f.Argument() == rcdevice.LegacyArgIdentify {
			c.respondLegacy(rcdevice.LegacyArgIdentify)
			return
		}
		c.buttons = append(c.buttons, f.Argument())
		return
	}

	p := f.Payload()
	switch f.Command() {
	case rcdevice.CmdGetDeviceInfo:
		c.respond(f.Command(), camera.EncodeDeviceInfo(c.info))

	case rcdevice.CmdCameraControl:
		if len(p) == 1 {
			c.buttons = append(c.buttons, p[0])
		}

	case rcdevice.Cmd5KeyConnection:
		if len(p) != 1 {
			return
		}
		result := uint8(rcdevice.ConnectionResultAccepted)
		if c.rejectConnection {
			result = 0
		} else {
			c.connected = p[0] == rcdevice.ConnectionOpOpen
		}
		c.respond(f.Command(), []byte{p[0]<<4 | result})

	case rcdevice.Cmd5KeyPress:
		if !c.connected || len(p) != 1 {
			return
		}
		c.pressedKey = p[0]
		c.respond(f.Command(), nil)

	case rcdevice.Cmd5KeyRelease:
		c.pressedKey = 0
		c.respond(f.Command(), nil)

	case rcdevice.CmdGetSettings:
		if len(p) != 2 {
			return
		}
		chunks := camera.EncodeSettingsChunks(c.children(p[0]))
		if int(p[1]) < len(chunks) {
			c.respond(f.Command(), chunks[p[1]])
		}

	case rcdevice.CmdReadSettingDetail:
		if s, ok := c.lookup(p); ok {
			c.respond(f.Command(), s.detail.Encode())
		}

	case rcdevice.CmdReadSetting:
		if s, ok := c.lookup(p); ok {
			c.respond(f.Command(), append([]byte{uint8(s.detail.Type)}, s.detail.ValueBytes()...))
		}

	case rcdevice.CmdWriteSetting:
		if len(p) < 1 {
			return
		}
		s, ok := c.settings[p[0]]
		if !ok || s.detail.ApplyValue(p[1:]) != nil {
			c.respond(f.Command(), []byte{1, 0})
			return
		}
		needUpdate := uint8(0)
		if p[0] == camera.SettingIDDisplayTVMode {
			needUpdate = 1
		}
		c.respond(f.Command(), []byte{0, needUpdate})

	case rcdevice.CmdDispFillRegion, rcdevice.CmdDispWriteChar, rcdevice.CmdDispWriteHorzStr,
		rcdevice.CmdDispWriteVertStr, rcdevice.CmdDispWriteChars:
		c.display = append(c.display, f)
	}
}

func (c *Camera) lookup(p []byte) (*simSetting, bool) {
	if len(p) != 1 {
		return nil, false
	}
	s, ok := c.settings[p[0]]
	return s, ok
}

func (c *Camera) children(parent uint8) []camera.Setting {
	var ids []int
	for id, s := range c.settings {
		if s.parent == parent {
			ids = append(ids, int(id))
		}
	}
	sort.Ints(ids)

	out := make([]camera.Setting, 0, len(ids))
	for _, id := range ids {
		s := c.settings[uint8(id)]
		out = append(out, camera.Setting{ID: uint8(id), Name: s.name, Value: s.detail.FormatValue()})
	}
	return out
}

func (c *Camera) respond(command uint8, payload []byte) {
	data, err := rcdevice.EncodeFrameWithCRC(c.crc, c.deviceID, command, payload)
	if err != nil {
		return
	}
	c.queue(data)
}

func (c *Camera) respondLegacy(arg uint8) {
	c.queue(rcdevice.EncodeLegacyControl(arg))
}

func (c *Camera) queue(data []byte) {
	if c.silent {
		return
	}
	if c.dropResponses > 0 {
		c.dropResponses--
		return
	}
	if c.corruptResponses > 0 {
		c.corruptResponses--
		data[len(data)-1] ^= 0x01
	}
	c.rx = append(c.rx, data...)
}
