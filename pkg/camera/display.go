// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import "github.com/Thermoquad/camlink/pkg/rcdevice"

// Display port commands draw on the camera's own OSD. None of them are
// acknowledged by the device.

// displayPayloadBudget is the payload left after the extended command byte
const displayPayloadBudget = rcdevice.MaxPayloadSize - 1

// DisplayChar is one character placed by WriteChars
type DisplayChar struct {
	X, Y uint8
	C    byte
}

// FillRegion fills a width x height rectangle at (x, y) with c
func (d *Device) FillRegion(x, y, width, height uint8, c byte) error {
	if err := d.require(FeatureDisplayPort); err != nil {
		return err
	}
	return d.engine.Send(rcdevice.CmdDispFillRegion, []byte{x, y, width, height, c})
}

// ClearScreen blanks the whole display
func (d *Device) ClearScreen(columns, rows uint8) error {
	return d.FillRegion(0, 0, columns, rows, ' ')
}

// WriteChar places a single character at (x, y)
func (d *Device) WriteChar(x, y uint8, c byte) error {
	if err := d.require(FeatureDisplayPort); err != nil {
		return err
	}
	return d.engine.Send(rcdevice.CmdDispWriteChar, []byte{x, y, c})
}

// WriteString writes text starting at (x, y), clipped to one frame
func (d *Device) WriteString(x, y uint8, text string, vertical bool) error {
	if err := d.require(FeatureDisplayPort); err != nil {
		return err
	}

	if limit := displayPayloadBudget - 2; len(text) > limit {
		text = text[:limit]
	}
	payload := append([]byte{x, y}, text...)

	cmd := uint8(rcdevice.CmdDispWriteHorzStr)
	if vertical {
		cmd = rcdevice.CmdDispWriteVertStr
	}
	return d.engine.Send(cmd, payload)
}

// WriteChars places a batch of characters, splitting it over as many frames
// as needed
func (d *Device) WriteChars(chars []DisplayChar) error {
	if err := d.require(FeatureDisplayPort); err != nil {
		return err
	}

	perFrame := displayPayloadBudget / 3
	for len(chars) > 0 {
		n := len(chars)
		if n > perFrame {
			n = perFrame
		}
		payload := make([]byte, 0, n*3)
		for _, ch := range chars[:n] {
			payload = append(payload, ch.X, ch.Y, ch.C)
		}
		if err := d.engine.Send(rcdevice.CmdDispWriteChars, payload); err != nil {
			return err
		}
		chars = chars[n:]
	}
	return nil
}
