// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

// Package events publishes gesture and camera button events so other tools
// (an OSD overlay, a ground station, a log collector) can follow what the
// pilot did to the camera.
package events

import (
	"context"
	"errors"
	"io"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/pkg/gesture"
	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Record is the published form of a gesture.Event
type Record struct {
	Device      string    `json:"device,omitempty"`
	Type        string    `json:"type"`
	Key         string    `json:"key,omitempty"`
	Operation   string    `json:"operation,omitempty"`
	State       string    `json:"state"`
	Connected   bool      `json:"connected"`
	Error       string    `json:"error,omitempty"`
	ClockMillis uint64    `json:"clock_ms"`
	Time        time.Time `json:"time"`
}

// NewRecord converts an event for publishing
func NewRecord(device string, e gesture.Event) Record {
	r := Record{
		Device:      device,
		Type:        e.Type.String(),
		State:       e.State.String(),
		Connected:   e.Connected,
		ClockMillis: e.At,
		Time:        time.Now().UTC(),
	}
	if e.Key != gesture.KeyNone {
		r.Key = e.Key.String()
	}
	if e.Type == gesture.EventCameraButton {
		r.Operation = rcdevice.FormatCameraOperation(e.Operation)
	}
	if e.Err != nil {
		r.Error = e.Err.Error()
	}
	return r
}

// Publisher delivers records somewhere
type Publisher interface {
	Publish(ctx context.Context, r Record) error
	Close() error
}

// ============================================================
// Log publisher
// ============================================================

// LogPublisher writes records to a logrus logger
type LogPublisher struct {
	log *logrus.Entry
}

// NewLogPublisher creates a publisher logging at Info, failures at Warn
func NewLogPublisher(logger *logrus.Logger) *LogPublisher {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	return &LogPublisher{log: logger.WithField("component", "events")}
}

// Publish logs the record
func (p *LogPublisher) Publish(_ context.Context, r Record) error {
	entry := p.log.WithFields(logrus.Fields{
		"event":     r.Type,
		"state":     r.State,
		"connected": r.Connected,
	})
	if r.Key != "" {
		entry = entry.WithField("key", r.Key)
	}
	if r.Operation != "" {
		entry = entry.WithField("operation", r.Operation)
	}
	if r.Error != "" {
		entry.WithField("error", r.Error).Warn("camera event")
		return nil
	}
	entry.Info("camera event")
	return nil
}

// Close does nothing
func (p *LogPublisher) Close() error { return nil }

// ============================================================
// Fan-out
// ============================================================

// Multi publishes to every publisher in turn
type Multi []Publisher

// Publish delivers to all publishers and joins their errors
func (m Multi) Publish(ctx context.Context, r Record) error {
	var errs []error
	for _, p := range m {
		if err := p.Publish(ctx, r); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Close closes all publishers
func (m Multi) Close() error {
	var errs []error
	for _, p := range m {
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// ============================================================
// Async delivery
// ============================================================

// DefaultQueueSize is the record buffer of an Async publisher
const DefaultQueueSize = 64

// Async decouples the control loop from a slow publisher. Records are
// buffered and delivered by one goroutine; when the buffer is full the
// record is dropped and counted.
type Async struct {
	next    Publisher
	queue   chan Record
	done    chan struct{}
	log     *logrus.Entry
	timeout time.Duration

	mu      sync.Mutex
	closed  bool
	dropped uint64
}

// NewAsync starts delivering records to next
func NewAsync(next Publisher, size int, logger *logrus.Logger) *Async {
	if size <= 0 {
		size = DefaultQueueSize
	}
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}
	a := &Async{
		next:    next,
		queue:   make(chan Record, size),
		done:    make(chan struct{}),
		log:     logger.WithField("component", "events"),
		timeout: 2 * time.Second,
	}
	go a.run()
	return a
}

func (a *Async) run() {
	defer close(a.done)
	for r := range a.queue {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		if err := a.next.Publish(ctx, r); err != nil {
			a.log.WithError(err).WithField("event", r.Type).Warn("failed to publish event")
		}
		cancel()
	}
}

// Publish queues the record without blocking
func (a *Async) Publish(_ context.Context, r Record) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.closed {
		return errors.New("publisher closed")
	}
	select {
	case a.queue <- r:
	default:
		a.dropped++
	}
	return nil
}

// Dropped returns how many records were discarded because the queue was full
func (a *Async) Dropped() uint64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.dropped
}

// Close drains the queue and closes the wrapped publisher
func (a *Async) Close() error {
	a.mu.Lock()
	if a.closed {
		a.mu.Unlock()
		return nil
	}
	a.closed = true
	close(a.queue)
	a.mu.Unlock()

	<-a.done
	return a.next.Close()
}

// Listener returns a gesture event callback that publishes through p
func Listener(p Publisher, device string) func(gesture.Event) {
	return func(e gesture.Event) {
		_ = p.Publish(context.Background(), NewRecord(device, e))
	}
}
