// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package link drives request/response transactions with a camera over an
// unreliable half-duplex serial line.
package link

import (
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
)

// Transport is the byte-level serial interface consumed by the engine.
// BytesAvailable and ReadByte must not block.
type Transport interface {
	Write(p []byte) (int, error)
	BytesAvailable() int
	ReadByte() (byte, error)
}

// Clock provides a monotonic millisecond counter
type Clock interface {
	NowMillis() uint64
}

// SystemClock is a Clock backed by the process monotonic clock
type SystemClock struct {
	start time.Time
}

// NewSystemClock creates a clock starting at zero
func NewSystemClock() *SystemClock {
	return &SystemClock{start: time.Now()}
}

// NowMillis returns milliseconds elapsed since the clock was created
func (c *SystemClock) NowMillis() uint64 {
	return uint64(time.Since(c.start).Milliseconds())
}

// ErrNoData is returned by ReadByte when nothing is buffered
var ErrNoData = errors.New("no data available")

// maxBuffered bounds the receive queue; the oldest bytes are dropped beyond it
const maxBuffered = 4096

// StreamTransport adapts a blocking stream (serial port, websocket bridge)
// to the polled Transport interface. A single reader goroutine fills a
// receive queue that the engine drains without blocking.
type StreamTransport struct {
	conn io.ReadWriteCloser
	log  *logrus.Entry

	mu      sync.Mutex
	buf     []byte
	err     error
	dropped uint64

	done chan struct{}
}

// NewStreamTransport starts reading from conn in the background
func NewStreamTransport(conn io.ReadWriteCloser, logger *logrus.Logger) *StreamTransport {
	t := &StreamTransport{
		conn: conn,
		log:  componentLogger(logger, "transport"),
		buf:  make([]byte, 0, 256),
		done: make(chan struct{}),
	}
	go t.readLoop()
	return t
}

func (t *StreamTransport) readLoop() {
	defer close(t.done)

	chunk := make([]byte, 256)
	for {
		n, err := t.conn.Read(chunk)
		if n > 0 {
			t.mu.Lock()
			t.buf = append(t.buf, chunk[:n]...)
			if over := len(t.buf) - maxBuffered; over > 0 {
				t.buf = t.buf[over:]
				t.dropped += uint64(over)
			}
			t.mu.Unlock()
		}
		if err != nil {
			t.mu.Lock()
			t.err = err
			t.mu.Unlock()
			if !errors.Is(err, io.EOF) {
				t.log.WithError(err).Debug("reader stopped")
			}
			return
		}
	}
}

// Write sends p on the underlying stream
func (t *StreamTransport) Write(p []byte) (int, error) {
	return t.conn.Write(p)
}

// BytesAvailable returns the number of buffered bytes
func (t *StreamTransport) BytesAvailable() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.buf)
}

// ReadByte pops one buffered byte. Once the buffer is empty it returns the
// reader's terminal error, or ErrNoData while the stream is still open.
func (t *StreamTransport) ReadByte() (byte, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if len(t.buf) == 0 {
		if t.err != nil {
			return 0, t.err
		}
		return 0, ErrNoData
	}
	b := t.buf[0]
	t.buf = t.buf[1:]
	return b, nil
}

// Err returns the error that stopped the reader, if any
func (t *StreamTransport) Err() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.err
}

// Dropped returns the number of bytes discarded because the queue was full
func (t *StreamTransport) Dropped() uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.dropped
}

// Close closes the stream and waits briefly for the reader to exit
func (t *StreamTransport) Close() error {
	err := t.conn.Close()
	select {
	case <-t.done:
	case <-time.After(time.Second):
		t.log.Warn("reader did not exit after close")
	}
	return err
}

// componentLogger returns a log entry tagged with the component name.
// A nil logger discards everything.
func componentLogger(logger *logrus.Logger, component string) *logrus.Entry {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return logger.WithField("component", component)
}
