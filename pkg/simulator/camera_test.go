// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package simulator_test

import (
	"errors"
	"testing"

	"github.com/Thermoquad/camlink/pkg/camera"
	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
	"github.com/Thermoquad/camlink/pkg/simulator"
)

// ============================================================
// Test Helpers
// ============================================================

func request(t *testing.T, sim *simulator.Camera, deviceID, command uint8, payload []byte) {
	t.Helper()
	data, err := rcdevice.EncodeFrameFromValues(deviceID, command, payload)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := sim.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}
}

func drain(t *testing.T, sim *simulator.Camera) []byte {
	t.Helper()
	var out []byte
	for {
		b, err := sim.ReadByte()
		if errors.Is(err, link.ErrNoData) {
			return out
		}
		if err != nil {
			t.Fatalf("read failed: %v", err)
		}
		out = append(out, b)
	}
}

func responses(t *testing.T, sim *simulator.Camera, deviceID uint8) []*rcdevice.Frame {
	t.Helper()
	decoder := rcdevice.NewDecoder(sim.Generation(), deviceID)
	return decoder.Decode(drain(t, sim), func(err error) {
		t.Errorf("unexpected decode error: %v", err)
	})
}

// ============================================================
// Request Handling Tests
// ============================================================

func TestCamera_DeviceInfo(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2, simulator.WithFirmware("3.1.0"))
	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.CmdGetDeviceInfo, nil)

	frames := responses(t, sim, rcdevice.DefaultDeviceID)
	if len(frames) != 1 {
		t.Fatalf("expected 1 response, got %d", len(frames))
	}
	info, err := camera.ParseDeviceInfo(frames[0].Payload())
	if err != nil {
		t.Fatalf("ParseDeviceInfo failed: %v", err)
	}
	if info.FirmwareVersion != "3.1.0" {
		t.Errorf("expected firmware 3.1.0, got %q", info.FirmwareVersion)
	}
	if info.Features != simulator.AllFeatures {
		t.Errorf("expected features 0x%04X, got 0x%04X", simulator.AllFeatures, info.Features)
	}
}

func TestCamera_IgnoresOtherDeviceIDs(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2, simulator.WithDeviceID(5))

	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.CmdGetDeviceInfo, nil)
	if n := sim.BytesAvailable(); n != 0 {
		t.Errorf("expected no response for another device id, got %d bytes", n)
	}

	request(t, sim, 5, rcdevice.CmdGetDeviceInfo, nil)
	if frames := responses(t, sim, 5); len(frames) != 1 {
		t.Errorf("expected 1 response for device 5, got %d", len(frames))
	}
}

func TestCamera_DVBS2Checksum(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2, simulator.WithCRC(rcdevice.CRCDVBS2))

	// A default checksum request is dropped by the camera
	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.CmdGetDeviceInfo, nil)
	if n := sim.BytesAvailable(); n != 0 {
		t.Fatalf("expected no response to a poly 0x31 request, got %d bytes", n)
	}

	data, err := rcdevice.EncodeFrameWithCRC(rcdevice.CRCDVBS2, rcdevice.DefaultDeviceID, rcdevice.CmdGetDeviceInfo, nil)
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	if _, err := sim.Write(data); err != nil {
		t.Fatalf("write failed: %v", err)
	}

	decoder := rcdevice.NewDecoder(rcdevice.GenerationV2, rcdevice.DefaultDeviceID)
	decoder.SetCRC(rcdevice.CRCDVBS2)
	frames := decoder.Decode(drain(t, sim), func(err error) {
		t.Errorf("unexpected decode error: %v", err)
	})
	if len(frames) != 1 || frames[0].Command() != rcdevice.CmdGetDeviceInfo {
		t.Fatalf("expected a device info response, got %v", frames)
	}
}

func TestCamera_MenuConnection(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)

	// Presses before the connection is open are ignored
	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.Cmd5KeyPress, []byte{rcdevice.KeyOpUp})
	if n := sim.BytesAvailable(); n != 0 {
		t.Errorf("expected no response while disconnected, got %d bytes", n)
	}

	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.Cmd5KeyConnection, []byte{rcdevice.ConnectionOpOpen})
	frames := responses(t, sim, rcdevice.DefaultDeviceID)
	if len(frames) != 1 {
		t.Fatalf("expected 1 response, got %d", len(frames))
	}
	want := uint8(rcdevice.ConnectionOpOpen<<4 | rcdevice.ConnectionResultAccepted)
	if got := frames[0].Payload(); len(got) != 1 || got[0] != want {
		t.Errorf("expected connection result 0x%02X, got % X", want, got)
	}
	if !sim.Connected() {
		t.Fatal("expected connection to be open")
	}

	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.Cmd5KeyPress, []byte{rcdevice.KeyOpUp})
	drain(t, sim)
	if sim.PressedKey() != rcdevice.KeyOpUp {
		t.Errorf("expected UP held, got 0x%02X", sim.PressedKey())
	}

	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.Cmd5KeyRelease, nil)
	drain(t, sim)
	if sim.PressedKey() != 0 {
		t.Errorf("expected key released, got 0x%02X", sim.PressedKey())
	}
}

func TestCamera_RejectConnection(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)
	sim.SetRejectConnection(true)

	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.Cmd5KeyConnection, []byte{rcdevice.ConnectionOpOpen})
	frames := responses(t, sim, rcdevice.DefaultDeviceID)
	if len(frames) != 1 {
		t.Fatalf("expected 1 response, got %d", len(frames))
	}
	if got := frames[0].Payload()[0] & 0x0F; got == rcdevice.ConnectionResultAccepted {
		t.Error("expected a rejected result")
	}
	if sim.Connected() {
		t.Error("connection should stay closed")
	}
}

func TestCamera_WriteSetting(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)

	request(t, sim, rcdevice.DefaultDeviceID, rcdevice.CmdWriteSetting, []byte{0xEE, 1})
	frames := responses(t, sim, rcdevice.DefaultDeviceID)
	if len(frames) != 1 {
		t.Fatalf("expected 1 response, got %d", len(frames))
	}
	if got := frames[0].Payload(); len(got) != 2 || got[0] == 0 {
		t.Errorf("expected a failure result for an unknown setting, got % X", got)
	}
}

func TestCamera_LegacyIdentifyAndButtons(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationLegacy)

	if _, err := sim.Write(rcdevice.EncodeLegacyControl(rcdevice.LegacyArgIdentify)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	frames := responses(t, sim, 0)
	if len(frames) != 1 || frames[0].Argument() != rcdevice.LegacyArgIdentify {
		t.Fatalf("expected identify echo, got %v", frames)
	}

	if _, err := sim.Write(rcdevice.EncodeLegacyControl(rcdevice.LegacyArgPower)); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	if n := sim.BytesAvailable(); n != 0 {
		t.Errorf("buttons are fire-and-forget, got %d response bytes", n)
	}
	if got := sim.Buttons(); len(got) != 1 || got[0] != rcdevice.LegacyArgPower {
		t.Errorf("expected power button recorded, got %v", got)
	}
}

// ============================================================
// Fault Injection Tests
// ============================================================

func TestCamera_FaultInjection(t *testing.T) {
	tests := []struct {
		name      string
		setup     func(*simulator.Camera)
		wantBytes bool
		wantCRC   bool
	}{
		{"silent", func(c *simulator.Camera) { c.SetSilent(true) }, false, false},
		{"dropped", func(c *simulator.Camera) { c.DropResponses(1) }, false, false},
		{"corrupted", func(c *simulator.Camera) { c.CorruptResponses(1) }, true, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sim := simulator.NewCamera(rcdevice.GenerationV2)
			tt.setup(sim)
			request(t, sim, rcdevice.DefaultDeviceID, rcdevice.CmdGetDeviceInfo, nil)

			data := drain(t, sim)
			if (len(data) > 0) != tt.wantBytes {
				t.Fatalf("expected bytes=%v, got %d bytes", tt.wantBytes, len(data))
			}

			var crcErrors int
			decoder := rcdevice.NewDecoder(rcdevice.GenerationV2, rcdevice.DefaultDeviceID)
			decoder.Decode(data, func(err error) {
				if errors.Is(err, rcdevice.ErrChecksumMismatch) {
					crcErrors++
				}
			})
			if (crcErrors > 0) != tt.wantCRC {
				t.Errorf("expected CRC error=%v, got %d", tt.wantCRC, crcErrors)
			}
		})
	}
}
