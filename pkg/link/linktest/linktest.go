// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package linktest provides a manual clock and a scripted transport for
// exercising the link engine without hardware.
package linktest

import (
	"errors"
	"sync"
)

// Clock is a link.Clock that only moves when told to
type Clock struct {
	mu  sync.Mutex
	now uint64
}

// NewClock creates a clock reading start milliseconds
func NewClock(start uint64) *Clock {
	return &Clock{now: start}
}

// NowMillis returns the current reading
func (c *Clock) NowMillis() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by ms
func (c *Clock) Advance(ms uint64) {
	c.mu.Lock()
	c.now += ms
	c.mu.Unlock()
}

// Set moves the clock to ms
func (c *Clock) Set(ms uint64) {
	c.mu.Lock()
	c.now = ms
	c.mu.Unlock()
}

// Transport is a link.Transport whose replies are produced by Respond
type Transport struct {
	mu     sync.Mutex
	rx     []byte
	writes [][]byte

	// Respond is called for every write with its 1-based index and returns
	// the bytes the device sends back. Nil means the device never answers.
	Respond func(n int, tx []byte) []byte

	// WriteErr, when set, fails every write
	WriteErr error
}

// NewTransport creates a transport that answers with respond
func NewTransport(respond func(n int, tx []byte) []byte) *Transport {
	return &Transport{Respond: respond}
}

// Write records p and queues the scripted reply
func (t *Transport) Write(p []byte) (int, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.WriteErr != nil {
		return 0, t.WriteErr
	}
	t.writes = append(t.writes, append([]byte(nil), p...))
	if t.Respond != nil {
		t.rx = append(t.rx, t.Respond(len(t.writes), p)...)
	}
	return len(p), nil
}

// BytesAvailable returns the number of queued reply bytes
func (t *Transport) BytesAvailable() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.rx)
}

// ReadByte pops one queued reply byte
func (t *Transport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.rx) == 0 {
		return 0, errors.New("linktest: no data")
	}
	b := t.rx[0]
	t.rx = t.rx[1:]
	return b, nil
}

// Inject queues bytes as if the device had sent them unprompted
func (t *Transport) Inject(data ...byte) {
	t.mu.Lock()
	t.rx = append(t.rx, data...)
	t.mu.Unlock()
}

// Writes returns a copy of every write so far
func (t *Transport) Writes() [][]byte {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([][]byte, len(t.writes))
	copy(out, t.writes)
	return out
}

// WriteCount returns the number of writes so far
func (t *Transport) WriteCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.writes)
}
