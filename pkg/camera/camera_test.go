// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package camera_test

import (
	"bytes"
	"errors"
	"testing"

	"github.com/Thermoquad/camlink/pkg/camera"
	"github.com/Thermoquad/camlink/pkg/link"
	"github.com/Thermoquad/camlink/pkg/link/linktest"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
	"github.com/Thermoquad/camlink/pkg/simulator"
)

// ============================================================
// Test Helpers
// ============================================================

func newTestDevice(t *testing.T, sim *simulator.Camera) (*camera.Device, *linktest.Clock) {
	t.Helper()
	clock := linktest.NewClock(0)
	engine := link.NewEngine(sim, clock, link.Options{
		Generation: sim.Generation(),
		Idle:       func() { clock.Advance(10) },
	})
	return camera.New(engine, camera.Options{}), clock
}

func initDevice(t *testing.T, sim *simulator.Camera) *camera.Device {
	t.Helper()
	device, _ := newTestDevice(t, sim)
	if err := device.Init(); err != nil {
		t.Fatalf("Init failed: %v", err)
	}
	return device
}

// ============================================================
// Init and Feature Tests
// ============================================================

func TestInit_QueriesFeatures(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2,
		simulator.WithFeatures(uint16(camera.FeatureSimulate5KeyOSDCable|camera.FeatureSimulateWifiButton)),
		simulator.WithFirmware("1.0.3"))
	device := initDevice(t, sim)

	if !device.Initialized() {
		t.Error("expected device to be initialised")
	}
	info := device.Info()
	if info.FirmwareVersion != "1.0.3" {
		t.Errorf("expected firmware 1.0.3, got %q", info.FirmwareVersion)
	}
	if info.ProtocolVersion != rcdevice.ProtocolVersionV1 {
		t.Errorf("expected protocol version 1, got %d", info.ProtocolVersion)
	}
	if !device.KeySimulationSupported() {
		t.Error("expected key simulation support")
	}
	if !device.IsFeatureSupported(camera.FeatureSimulateWifiButton) {
		t.Error("expected wifi button support")
	}
	if device.IsFeatureSupported(camera.FeatureSimulatePowerButton) {
		t.Error("power button was not advertised")
	}
}

func TestInit_FailureLeavesNoFeatures(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)
	sim.SetSilent(true)
	device, clock := newTestDevice(t, sim)

	err := device.Init()
	if !errors.Is(err, rcdevice.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if device.Features().Mask() != 0 {
		t.Errorf("expected empty feature mask, got 0x%04X", device.Features().Mask())
	}
	if device.KeySimulationSupported() {
		t.Error("no feature should be supported after a failed query")
	}
	if got := len(sim.Requests()); got != link.ConnectionAttempts {
		t.Errorf("expected %d device info requests, got %d", link.ConnectionAttempts, got)
	}
	if clock.NowMillis() < 3000 {
		t.Errorf("expected the query to block for the full budget, got %d ms", clock.NowMillis())
	}

	// Features stay off even once the camera starts answering
	sim.SetSilent(false)
	if err := device.OpenConnection(); !errors.Is(err, rcdevice.ErrUnsupportedFeature) {
		t.Errorf("expected ErrUnsupportedFeature, got %v", err)
	}
}

func TestInit_RecoversFromCorruptResponse(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)
	sim.CorruptResponses(1)
	device := initDevice(t, sim)

	if device.Features().Mask() != simulator.AllFeatures {
		t.Errorf("expected all features, got 0x%04X", device.Features().Mask())
	}
	if got := len(sim.Requests()); got != 2 {
		t.Errorf("expected 2 requests, got %d", got)
	}
}

func TestInit_Legacy(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationLegacy)
	device := initDevice(t, sim)

	for _, f := range []camera.Feature{camera.FeatureSimulatePowerButton, camera.FeatureSimulateWifiButton, camera.FeatureChangeMode} {
		if !device.IsFeatureSupported(f) {
			t.Errorf("expected legacy camera to support %s", f)
		}
	}
	if device.KeySimulationSupported() {
		t.Error("legacy camera has no 5-key simulation")
	}
	if device.Info().Generation != rcdevice.GenerationLegacy {
		t.Errorf("expected legacy generation, got %s", device.Info().Generation)
	}
}

func TestFeatureRegistry(t *testing.T) {
	tests := []struct {
		name string
		mask uint16
		want string
	}{
		{"none", 0, "none"},
		{"single", uint16(camera.FeatureDisplayPort), "displayport"},
		{"pair", uint16(camera.FeatureSimulatePowerButton | camera.FeatureSimulateWifiButton), "power-button,wifi-button"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := camera.NewFeatureRegistry(tt.mask)
			if got := r.String(); got != tt.want {
				t.Errorf("String() = %q, want %q", got, tt.want)
			}
			if r.Mask() != tt.mask {
				t.Errorf("Mask() = 0x%04X, want 0x%04X", r.Mask(), tt.mask)
			}
		})
	}
}

func TestDeviceInfo_RoundTrip(t *testing.T) {
	info := camera.DeviceInfo{
		FirmwareVersion: "3.1.0",
		ProtocolVersion: rcdevice.ProtocolVersionV1,
		Generation:      rcdevice.GenerationV2,
		Features:        0x0055,
	}
	got, err := camera.ParseDeviceInfo(camera.EncodeDeviceInfo(info))
	if err != nil {
		t.Fatalf("ParseDeviceInfo failed: %v", err)
	}
	if got != info {
		t.Errorf("round trip mismatch: got %+v, want %+v", got, info)
	}

	if _, err := camera.ParseDeviceInfo([]byte{1, 0}); !errors.Is(err, rcdevice.ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse for a short payload, got %v", err)
	}
}

// ============================================================
// Camera Button Tests
// ============================================================

func TestSimulateCameraButton(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2,
		simulator.WithFeatures(uint16(camera.FeatureSimulateWifiButton|camera.FeatureStartRecording)))
	device := initDevice(t, sim)

	if err := device.SimulateCameraButton(rcdevice.CameraOpWifiButton); err != nil {
		t.Fatalf("wifi button failed: %v", err)
	}
	if err := device.SimulateCameraButton(rcdevice.CameraOpStartRecord); err != nil {
		t.Fatalf("start recording failed: %v", err)
	}
	if err := device.SimulateCameraButton(rcdevice.CameraOpPowerButton); !errors.Is(err, rcdevice.ErrUnsupportedFeature) {
		t.Errorf("expected ErrUnsupportedFeature for power button, got %v", err)
	}
	if err := device.SimulateCameraButton(0x42); err == nil {
		t.Error("expected error for unknown operation")
	}

	want := []uint8{rcdevice.CameraOpWifiButton, rcdevice.CameraOpStartRecord}
	if got := sim.Buttons(); !bytes.Equal(got, want) {
		t.Errorf("camera saw buttons %v, want %v", got, want)
	}
	if device.Engine().Busy() {
		t.Error("fire-and-forget must not leave a transaction open")
	}
}

func TestSimulateCameraButton_Legacy(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationLegacy)
	device := initDevice(t, sim)

	if err := device.SimulateCameraButton(rcdevice.CameraOpPowerButton); err != nil {
		t.Fatalf("power button failed: %v", err)
	}
	if err := device.SimulateCameraButton(rcdevice.CameraOpStartRecord); !errors.Is(err, rcdevice.ErrUnsupportedFeature) {
		t.Errorf("expected ErrUnsupportedFeature, got %v", err)
	}
	if got := sim.Buttons(); !bytes.Equal(got, []uint8{rcdevice.LegacyArgPower}) {
		t.Errorf("camera saw %v, want power argument", got)
	}
}

// ============================================================
// 5-Key Menu Tests
// ============================================================

func TestConnectionAndKeys(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)
	device := initDevice(t, sim)

	if err := device.OpenConnection(); err != nil {
		t.Fatalf("OpenConnection failed: %v", err)
	}
	if !sim.Connected() {
		t.Fatal("camera should be connected")
	}

	if err := device.PressKey(rcdevice.KeyOpLeft); err != nil {
		t.Fatalf("PressKey failed: %v", err)
	}
	if sim.PressedKey() != rcdevice.KeyOpLeft {
		t.Errorf("expected left held, got %d", sim.PressedKey())
	}
	if err := device.ReleaseKey(); err != nil {
		t.Fatalf("ReleaseKey failed: %v", err)
	}
	if sim.PressedKey() != 0 {
		t.Error("expected key released")
	}

	if err := device.CloseConnection(); err != nil {
		t.Fatalf("CloseConnection failed: %v", err)
	}
	if sim.Connected() {
		t.Error("camera should be disconnected")
	}
}

func TestOpenConnection_Rejected(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)
	device := initDevice(t, sim)
	before := len(sim.Requests())

	sim.SetRejectConnection(true)
	err := device.OpenConnection()
	if !errors.Is(err, rcdevice.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if got := len(sim.Requests()) - before; got != 1 {
		t.Errorf("a rejection must not be retried, saw %d requests", got)
	}
}

func TestPressKey_TimesOutWithoutRetry(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)
	device := initDevice(t, sim)
	before := len(sim.Requests())

	// Not connected, so the camera ignores the press
	err := device.PressKey(rcdevice.KeyOpUp)
	if !errors.Is(err, rcdevice.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if got := len(sim.Requests()) - before; got != link.PressAttempts {
		t.Errorf("expected %d press request, got %d", link.PressAttempts, got)
	}
}

func TestReleaseKey_Retries(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2)
	device := initDevice(t, sim)
	before := len(sim.Requests())

	sim.DropResponses(2)
	if err := device.ReleaseKey(); err != nil {
		t.Fatalf("ReleaseKey failed: %v", err)
	}
	if got := len(sim.Requests()) - before; got != 3 {
		t.Errorf("expected 3 release requests, got %d", got)
	}
}

func TestPressKey_InvalidOperation(t *testing.T) {
	device := initDevice(t, simulator.NewCamera(rcdevice.GenerationV2))

	for _, op := range []uint8{0, 6, 0xFF} {
		if err := device.PressKey(op); err == nil {
			t.Errorf("expected error for key operation %d", op)
		}
	}
}

func TestMenu_Unsupported(t *testing.T) {
	sim := simulator.NewCamera(rcdevice.GenerationV2, simulator.WithFeatures(uint16(camera.FeatureSimulatePowerButton)))
	device := initDevice(t, sim)
	before := len(sim.Requests())

	calls := map[string]func() error{
		"open":    device.OpenConnection,
		"close":   device.CloseConnection,
		"release": device.ReleaseKey,
		"press":   func() error { return device.PressKey(rcdevice.KeyOpSet) },
	}
	for name, call := range calls {
		if err := call(); !errors.Is(err, rcdevice.ErrUnsupportedFeature) {
			t.Errorf("%s: expected ErrUnsupportedFeature, got %v", name, err)
		}
	}
	if got := len(sim.Requests()) - before; got != 0 {
		t.Errorf("unsupported calls must not reach the wire, saw %d requests", got)
	}
}
