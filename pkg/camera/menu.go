// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera

import (
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// OpenConnection opens the simulated 5-key OSD cable connection so the
// camera shows its menu
func (d *Device) OpenConnection() error {
	return d.connection(rcdevice.ConnectionOpOpen)
}

// CloseConnection closes the simulated 5-key OSD cable connection
func (d *Device) CloseConnection() error {
	return d.connection(rcdevice.ConnectionOpClose)
}

func (d *Device) connection(operation uint8) error {
	if err := d.require(FeatureSimulate5KeyOSDCable); err != nil {
		return err
	}

	_, err := d.engine.SendAndAwait(link.Request{
		Command:  rcdevice.Cmd5KeyConnection,
		Payload:  []byte{operation},
		Attempts: d.connectionAttempts,
		Expect:   expectConnectionResult(operation),
	})
	if err != nil {
		return err
	}

	d.log.WithField("operation", operation).Debug("5-key connection changed")
	return nil
}

// expectConnectionResult checks a [operation:4|result:4] response
func expectConnectionResult(operation uint8) func(*rcdevice.Frame) error {
	return func(f *rcdevice.Frame) error {
		b := f.Payload()[0]
		if b>>4 != operation {
			return fmt.Errorf("%w: connection response for operation %d, sent %d",
				rcdevice.ErrInvalidResponse, b>>4, operation)
		}
		if b&0x0F != rcdevice.ConnectionResultAccepted {
			return fmt.Errorf("connection operation %d: %w (result %d)", operation, rcdevice.ErrRejected, b&0x0F)
		}
		return nil
	}
}

// PressKey simulates pressing one of the five OSD cable keys
func (d *Device) PressKey(operation uint8) error {
	if operation < rcdevice.KeyOpSet || operation > rcdevice.KeyOpDown {
		return fmt.Errorf("unknown key operation %d", operation)
	}
	if err := d.require(FeatureSimulate5KeyOSDCable); err != nil {
		return err
	}

	_, err := d.engine.SendAndAwait(link.Request{
		Command:  rcdevice.Cmd5KeyPress,
		Payload:  []byte{operation},
		Attempts: d.pressAttempts,
	})
	if err == nil {
		d.log.WithFields(logrus.Fields{"key": rcdevice.FormatKeyOperation(operation)}).Debug("key pressed")
	}
	return err
}

// ReleaseKey releases the pressed key
func (d *Device) ReleaseKey() error {
	if err := d.require(FeatureSimulate5KeyOSDCable); err != nil {
		return err
	}

	_, err := d.engine.SendAndAwait(link.Request{
		Command:  rcdevice.Cmd5KeyRelease,
		Attempts: d.connectionAttempts,
	})
	return err
}
