// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"net"
	"testing"
	"time"
)

// waitFor polls cond until it holds or the deadline passes
func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func TestStreamTransport_ReadWrite(t *testing.T) {
	host, device := net.Pipe()
	defer device.Close()

	transport := NewStreamTransport(host, nil)
	defer transport.Close()

	if transport.BytesAvailable() != 0 {
		t.Fatal("new transport should be empty")
	}
	if _, err := transport.ReadByte(); err != ErrNoData {
		t.Errorf("expected ErrNoData, got %v", err)
	}

	go device.Write([]byte{0xCC, 0x23, 0x00, 0xAD})
	waitFor(t, func() bool { return transport.BytesAvailable() == 4 })

	for i, want := range []byte{0xCC, 0x23, 0x00, 0xAD} {
		b, err := transport.ReadByte()
		if err != nil || b != want {
			t.Fatalf("byte %d: expected 0x%02X, got 0x%02X (%v)", i, want, b, err)
		}
	}

	received := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 8)
		n, _ := device.Read(buf)
		received <- buf[:n]
	}()
	if _, err := transport.Write([]byte{0xCC, 0x20, 0x00, 0x80}); err != nil {
		t.Fatalf("write failed: %v", err)
	}
	select {
	case got := <-received:
		if len(got) != 4 || got[0] != 0xCC {
			t.Errorf("device received % X", got)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("device did not receive the write")
	}
}

func TestStreamTransport_ReaderError(t *testing.T) {
	host, device := net.Pipe()
	transport := NewStreamTransport(host, nil)
	defer transport.Close()

	go func() {
		device.Write([]byte{0x01})
		device.Close()
	}()

	waitFor(t, func() bool { return transport.Err() != nil })

	// Buffered data is still delivered before the error
	if b, err := transport.ReadByte(); err != nil || b != 0x01 {
		t.Fatalf("expected buffered byte, got 0x%02X (%v)", b, err)
	}
	if _, err := transport.ReadByte(); err == nil || err == ErrNoData {
		t.Errorf("expected terminal reader error, got %v", err)
	}
}

func TestSystemClock_Monotonic(t *testing.T) {
	clock := NewSystemClock()
	a := clock.NowMillis()
	time.Sleep(5 * time.Millisecond)
	if b := clock.NowMillis(); b < a+5 {
		t.Errorf("clock moved %d ms across a 5 ms sleep", b-a)
	}
}
