// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/Thermoquad/camlink/pkg/link/linktest"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// ============================================================
// Test Helpers
// ============================================================

var (
	openRequest  = Request{Command: rcdevice.Cmd5KeyConnection, Payload: []byte{rcdevice.ConnectionOpOpen}, Attempts: ConnectionAttempts}
	openAccepted = []byte{0xCC, 0x24, 0x01, 0x11, 0xD5}
	openCorrupt  = []byte{0xCC, 0x24, 0x01, 0x11, 0xD6}
)

func newTestEngine(gen rcdevice.Generation, respond func(n int, tx []byte) []byte) (*Engine, *linktest.Transport, *linktest.Clock) {
	transport := linktest.NewTransport(respond)
	clock := linktest.NewClock(0)
	engine := NewEngine(transport, clock, Options{
		Generation: gen,
		Idle:       func() { clock.Advance(10) },
	})
	return engine, transport, clock
}

func always(reply []byte) func(int, []byte) []byte {
	return func(int, []byte) []byte { return reply }
}

// noiseTransport always has another 0x00 byte pending. Each read takes 1 ms.
type noiseTransport struct {
	clock  *linktest.Clock
	writes int
	reads  int
}

func (n *noiseTransport) Write(p []byte) (int, error) {
	n.writes++
	return len(p), nil
}

func (n *noiseTransport) BytesAvailable() int {
	return 1
}

func (n *noiseTransport) ReadByte() (byte, error) {
	n.reads++
	n.clock.Advance(1)
	return 0x00, nil
}

// ============================================================
// Retry and Timeout Tests
// ============================================================

func TestSendAndAwait_AlwaysTimeout(t *testing.T) {
	engine, transport, clock := newTestEngine(rcdevice.GenerationV2, nil)

	start := clock.NowMillis()
	frame, err := engine.SendAndAwait(openRequest)
	if frame != nil {
		t.Fatal("expected no frame")
	}
	if !errors.Is(err, rcdevice.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if n := transport.WriteCount(); n != 3 {
		t.Errorf("expected exactly 3 transmissions, got %d", n)
	}
	if elapsed := clock.NowMillis() - start; elapsed < 3000 || elapsed > 3100 {
		t.Errorf("expected about 3 timeouts of blocking, got %d ms", elapsed)
	}

	stats := engine.Statistics()
	if stats.TimedOut != 1 || stats.Retries != 2 || stats.Attempts != 3 {
		t.Errorf("unexpected statistics: timedOut=%d retries=%d attempts=%d", stats.TimedOut, stats.Retries, stats.Attempts)
	}
	if engine.Busy() {
		t.Error("engine should be idle after the budget is spent")
	}
}

func TestSendAndAwait_CorruptThenValid(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, func(n int, tx []byte) []byte {
		if n == 1 {
			return openCorrupt
		}
		return openAccepted
	})

	frame, err := engine.SendAndAwait(openRequest)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if frame.Command() != rcdevice.Cmd5KeyConnection || frame.Payload()[0] != 0x11 {
		t.Errorf("unexpected frame %s", rcdevice.FormatFrame(frame))
	}
	if n := transport.WriteCount(); n != 2 {
		t.Errorf("expected success after exactly 2 attempts, got %d", n)
	}
	if stats := engine.Statistics(); stats.CRCErrors != 1 {
		t.Errorf("expected 1 CRC error, got %d", stats.CRCErrors)
	}
	if engine.State() != StateSuccess {
		t.Errorf("expected Success, got %s", engine.State())
	}
}

func TestSendAndAwait_RetransmitsFullRequest(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, nil)
	engine.SendAndAwait(openRequest)

	writes := transport.Writes()
	for i, w := range writes {
		if !bytes.Equal(w, []byte{0xCC, 0x24, 0x01, 0x01, 0x96}) {
			t.Errorf("write %d: unexpected bytes % X", i, w)
		}
	}
}

func TestSendAndAwait_PressBudget(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, nil)
	_, err := engine.SendAndAwait(Request{
		Command:  rcdevice.Cmd5KeyPress,
		Payload:  []byte{rcdevice.KeyOpLeft},
		Attempts: PressAttempts,
	})
	if !errors.Is(err, rcdevice.ErrTimeout) {
		t.Fatalf("expected ErrTimeout, got %v", err)
	}
	if n := transport.WriteCount(); n != 1 {
		t.Errorf("directional press should be sent once, got %d", n)
	}
}

func TestSendAndAwait_ZeroAttemptsMeansOne(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, nil)
	engine.SendAndAwait(Request{Command: rcdevice.Cmd5KeyRelease})
	if n := transport.WriteCount(); n != 1 {
		t.Errorf("expected 1 write, got %d", n)
	}
}

func TestSendAndAwait_EndlessNoiseTimesOut(t *testing.T) {
	clock := linktest.NewClock(0)
	transport := &noiseTransport{clock: clock}
	engine := NewEngine(transport, clock, Options{
		Generation: rcdevice.GenerationV2,
		Idle:       func() { clock.Advance(10) },
	})

	done := make(chan error, 1)
	go func() {
		_, err := engine.SendAndAwait(Request{Command: rcdevice.Cmd5KeyRelease, Attempts: 1})
		done <- err
	}()

	select {
	case err := <-done:
		if !errors.Is(err, rcdevice.ErrTimeout) {
			t.Fatalf("expected ErrTimeout, got %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("SendAndAwait did not return while bytes kept arriving")
	}

	if elapsed := clock.NowMillis(); elapsed < 1000 || elapsed > 1100 {
		t.Errorf("expected about one timeout of reading, got %d ms", elapsed)
	}
	if transport.writes != 1 {
		t.Errorf("expected 1 transmission, got %d", transport.writes)
	}
	if stats := engine.Statistics(); stats.DroppedBytes != uint64(transport.reads) {
		t.Errorf("expected every noise byte dropped, got %d of %d", stats.DroppedBytes, transport.reads)
	}
}

// ============================================================
// Poll Tests
// ============================================================

func TestPoll_ExpiresAtDeadline(t *testing.T) {
	engine, _, clock := newTestEngine(rcdevice.GenerationV2, nil)

	if err := engine.Begin(Request{Command: rcdevice.Cmd5KeyRelease, Attempts: 1}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	if engine.State() != StateAwaitingHeader {
		t.Fatalf("expected AwaitingHeader, got %s", engine.State())
	}

	clock.Set(999)
	if res := engine.Poll(); res.Status != StatusPending {
		t.Fatalf("expected Pending at 999 ms, got %s", res.Status)
	}

	clock.Set(1000)
	res := engine.Poll()
	if res.Status != StatusExpired {
		t.Fatalf("expected Expired at 1000 ms, got %s", res.Status)
	}
	if !errors.Is(res.Err, rcdevice.ErrTimeout) {
		t.Errorf("expected ErrTimeout, got %v", res.Err)
	}
}

func TestPoll_Ready(t *testing.T) {
	engine, _, _ := newTestEngine(rcdevice.GenerationV2, always([]byte{0xCC, 0x23, 0x00, 0xAD}))

	if err := engine.Begin(Request{Command: rcdevice.Cmd5KeyRelease, Attempts: 3}); err != nil {
		t.Fatalf("begin failed: %v", err)
	}
	res := engine.Poll()
	if res.Status != StatusReady || res.Frame == nil {
		t.Fatalf("expected Ready, got %s (%v)", res.Status, res.Err)
	}
}

func TestPoll_PartialResponse(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, nil)

	engine.Begin(Request{Command: rcdevice.Cmd5KeyRelease, Attempts: 1})
	transport.Inject(0xCC, 0x23)
	if res := engine.Poll(); res.Status != StatusPending {
		t.Fatalf("expected Pending, got %s", res.Status)
	}
	if engine.State() != StateAwaitingBody {
		t.Fatalf("expected AwaitingBody, got %s", engine.State())
	}
	transport.Inject(0x00, 0xAD)
	if res := engine.Poll(); res.Status != StatusReady {
		t.Fatalf("expected Ready, got %s", res.Status)
	}
}

func TestPoll_NoTransaction(t *testing.T) {
	engine, _, _ := newTestEngine(rcdevice.GenerationV2, nil)
	if res := engine.Poll(); !errors.Is(res.Err, ErrNoTransaction) {
		t.Errorf("expected ErrNoTransaction, got %v", res.Err)
	}
}

func TestBegin_RejectsOverlap(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, nil)

	if err := engine.Begin(openRequest); err != nil {
		t.Fatalf("first begin failed: %v", err)
	}
	if err := engine.Begin(openRequest); !errors.Is(err, rcdevice.ErrTransactionInFlight) {
		t.Errorf("expected ErrTransactionInFlight, got %v", err)
	}
	if err := engine.Send(rcdevice.CmdCameraControl, []byte{0}); !errors.Is(err, rcdevice.ErrTransactionInFlight) {
		t.Errorf("fire-and-forget during a transaction should be rejected, got %v", err)
	}
	if _, err := engine.SendAndAwait(openRequest); !errors.Is(err, rcdevice.ErrTransactionInFlight) {
		t.Errorf("expected ErrTransactionInFlight, got %v", err)
	}
	if n := transport.WriteCount(); n != 1 {
		t.Errorf("rejected requests must not reach the wire, got %d writes", n)
	}
}

// ============================================================
// Response Validation Tests
// ============================================================

func TestSendAndAwait_Responses(t *testing.T) {
	tests := []struct {
		name     string
		reply    []byte
		wantErr  error
		attempts int
	}{
		{"noise before response", append([]byte{0x00, 0x13, 0x55}, openAccepted...), nil, 1},
		{"other device first", append([]byte{0xCC, 0x32, 0x00, 0x37}, openAccepted...), nil, 1},
		{"wrong command", []byte{0xCC, 0x23, 0x00, 0xAD}, rcdevice.ErrInvalidResponse, 3},
		{"malformed payload", rcdevice.EncodePacket(2, rcdevice.Cmd5KeyConnection, []byte{0x11, 0x00}), rcdevice.ErrInvalidResponse, 3},
		{"corrupt", openCorrupt, rcdevice.ErrInvalidResponse, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, transport, _ := newTestEngine(rcdevice.GenerationV2, always(tt.reply))
			_, err := engine.SendAndAwait(openRequest)
			if tt.wantErr == nil && err != nil {
				t.Fatalf("expected success, got %v", err)
			}
			if tt.wantErr != nil && !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
			if n := transport.WriteCount(); n != tt.attempts {
				t.Errorf("expected %d attempts, got %d", tt.attempts, n)
			}
		})
	}
}

func TestSendAndAwait_RejectedIsNotRetried(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, always([]byte{0xCC, 0x24, 0x01, 0x10, 0xE4}))

	req := openRequest
	req.Expect = func(f *rcdevice.Frame) error {
		if f.Payload()[0]&0x0F != rcdevice.ConnectionResultAccepted {
			return fmt.Errorf("open: %w", rcdevice.ErrRejected)
		}
		return nil
	}

	_, err := engine.SendAndAwait(req)
	if !errors.Is(err, rcdevice.ErrRejected) {
		t.Fatalf("expected ErrRejected, got %v", err)
	}
	if n := transport.WriteCount(); n != 1 {
		t.Errorf("rejection should end the transaction, got %d writes", n)
	}
}

func TestBegin_DiscardsStaleBytes(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, always(openAccepted))
	transport.Inject(0xCC, 0x24, 0x01, 0x21, 0x10)

	frame, err := engine.SendAndAwait(openRequest)
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if frame.Payload()[0] != 0x11 {
		t.Errorf("stale close response was used: payload 0x%02X", frame.Payload()[0])
	}
	if stats := engine.Statistics(); stats.DroppedBytes != 5 {
		t.Errorf("expected 5 dropped bytes, got %d", stats.DroppedBytes)
	}
}

func TestBegin_WriteError(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, nil)
	transport.WriteErr = errors.New("port gone")

	if err := engine.Begin(openRequest); err == nil {
		t.Fatal("expected write error")
	}
	if engine.Busy() {
		t.Error("failed begin must not leave a transaction outstanding")
	}
}

// ============================================================
// Legacy and Fire-and-Forget Tests
// ============================================================

func TestSendAndAwait_LegacyIdentify(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationLegacy, always([]byte{0x55, 0x01, 0xFF, 0xAD, 0xAA}))

	frame, err := engine.SendAndAwait(Request{
		Command:  rcdevice.CmdCameraControl,
		Payload:  []byte{rcdevice.LegacyArgIdentify},
		Attempts: ConnectionAttempts,
	})
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if frame.Argument() != rcdevice.LegacyArgIdentify {
		t.Errorf("unexpected argument 0x%02X", frame.Argument())
	}
	if w := transport.Writes()[0]; !bytes.Equal(w, []byte{0x55, 0x01, 0xFF, 0xAD, 0xAA}) {
		t.Errorf("unexpected request % X", w)
	}
}

func TestSendAndAwait_LegacyWrongEcho(t *testing.T) {
	engine, _, _ := newTestEngine(rcdevice.GenerationLegacy, always(rcdevice.EncodeLegacyControl(rcdevice.LegacyArgPower)))

	_, err := engine.SendAndAwait(Request{Payload: []byte{rcdevice.LegacyArgIdentify}, Attempts: 1})
	if !errors.Is(err, rcdevice.ErrInvalidResponse) {
		t.Errorf("expected ErrInvalidResponse, got %v", err)
	}
}

func TestSend_FireAndForget(t *testing.T) {
	engine, transport, _ := newTestEngine(rcdevice.GenerationV2, nil)

	if err := engine.Send(rcdevice.CmdCameraControl, []byte{rcdevice.CameraOpPowerButton}); err != nil {
		t.Fatalf("send failed: %v", err)
	}
	if w := transport.Writes()[0]; !bytes.Equal(w, rcdevice.EncodePacket(2, rcdevice.CmdCameraControl, []byte{1})) {
		t.Errorf("unexpected frame % X", w)
	}
	if engine.Busy() {
		t.Error("fire-and-forget must not leave a transaction outstanding")
	}
	if stats := engine.Statistics(); stats.FireAndForget != 1 || stats.Transactions != 0 {
		t.Errorf("unexpected statistics %+v", stats)
	}
}

// ============================================================
// Metrics and Statistics Tests
// ============================================================

func TestEngine_Metrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewMetrics(reg)

	transport := linktest.NewTransport(func(n int, tx []byte) []byte {
		if n == 1 {
			return openCorrupt
		}
		return openAccepted
	})
	clock := linktest.NewClock(0)
	engine := NewEngine(transport, clock, Options{Metrics: metrics, Idle: func() { clock.Advance(1) }})

	if _, err := engine.SendAndAwait(openRequest); err != nil {
		t.Fatalf("expected success, got %v", err)
	}

	if v := testutil.ToFloat64(metrics.Transactions.WithLabelValues("5KEY_CONNECTION", "success")); v != 1 {
		t.Errorf("expected 1 successful transaction, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.Attempts.WithLabelValues("5KEY_CONNECTION")); v != 2 {
		t.Errorf("expected 2 attempts, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.DecodeErrors.WithLabelValues("checksum")); v != 1 {
		t.Errorf("expected 1 checksum error, got %v", v)
	}
	if v := testutil.ToFloat64(metrics.BytesSent); v != 10 {
		t.Errorf("expected 10 bytes sent, got %v", v)
	}
}

func TestStatistics_String(t *testing.T) {
	s := NewStatistics()
	s.Transactions = 4
	s.Succeeded = 3
	s.TimedOut = 1
	s.CRCErrors = 2

	out := s.String()
	for _, want := range []string{"Transactions:", "75.0%", "Timed Out:", "CRC Errors:"} {
		if !bytes.Contains([]byte(out), []byte(want)) {
			t.Errorf("expected %q in:\n%s", want, out)
		}
	}

	s.Reset()
	if s.Transactions != 0 || s.StartTime.IsZero() {
		t.Error("reset should clear counters and restart the clock")
	}
}

func TestStatistics_RecordFrame(t *testing.T) {
	s := NewStatistics()
	s.RecordFrame(nil)
	s.RecordFrame([]rcdevice.ValidationError{{Type: rcdevice.AnomalyLengthMismatch, Message: "short"}})
	s.RecordDecodeError(&rcdevice.ChecksumError{Expected: 1, Got: 2})
	s.RecordDecodeError(&rcdevice.FramingError{Reason: "invalid length"})

	if s.FramesReceived != 2 || s.InvalidResponses != 1 {
		t.Errorf("expected 2 frames and 1 invalid, got %d and %d", s.FramesReceived, s.InvalidResponses)
	}
	if s.CRCErrors != 1 || s.FramingErrors != 1 {
		t.Errorf("expected 1 CRC and 1 framing error, got %d and %d", s.CRCErrors, s.FramingErrors)
	}
}

func TestNewEngine_Defaults(t *testing.T) {
	engine := NewEngine(linktest.NewTransport(nil), NewSystemClock(), Options{})
	if engine.DeviceID() != rcdevice.DefaultDeviceID {
		t.Errorf("expected default device id, got %d", engine.DeviceID())
	}
	if engine.timeoutMs != uint64(DefaultResponseTimeout/time.Millisecond) {
		t.Errorf("expected %d ms timeout, got %d", DefaultResponseTimeout/time.Millisecond, engine.timeoutMs)
	}
	if engine.State() != StateIdle {
		t.Errorf("expected Idle, got %s", engine.State())
	}
}
