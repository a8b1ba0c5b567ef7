// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"runtime"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Timing and retry defaults
const (
	DefaultResponseTimeout = 1000 * time.Millisecond
	DefaultPollInterval    = time.Millisecond

	// ConnectionAttempts is the budget for commands that change or probe
	// the connection: handshake, disconnect, release and feature query
	ConnectionAttempts = 3
	// PressAttempts is the budget for directional key presses
	PressAttempts = 1
)

// ErrNoTransaction is returned by Poll when nothing is outstanding
var ErrNoTransaction = errors.New("no transaction in flight")

// State is the engine's position within a transaction
type State int

const (
	StateIdle State = iota
	StateSending
	StateAwaitingHeader
	StateAwaitingBody
	StateSuccess
	StateFailed
)

// String returns the state name
func (s State) String() string {
	switch s {
	case StateIdle:
		return "Idle"
	case StateSending:
		return "Sending"
	case StateAwaitingHeader:
		return "AwaitingHeader"
	case StateAwaitingBody:
		return "AwaitingBody"
	case StateSuccess:
		return "Success"
	case StateFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Status is the outcome of a single Poll
type Status int

const (
	StatusPending Status = iota
	StatusReady
	StatusExpired
	StatusFailed
)

// String returns the status name
func (s Status) String() string {
	switch s {
	case StatusPending:
		return "Pending"
	case StatusReady:
		return "Ready"
	case StatusExpired:
		return "Expired"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Result is returned by Poll. Frame is set when Status is StatusReady and
// Err when the transaction ended without a usable response.
type Result struct {
	Status Status
	Frame  *rcdevice.Frame
	Err    error
}

// Request describes one request/response exchange.
type Request struct {
	Command  uint8
	Payload  []byte
	Attempts int // transmissions before giving up, at least 1

	// Expect optionally checks the response content. Returned errors
	// should wrap rcdevice.ErrInvalidResponse (retried) or
	// rcdevice.ErrRejected (not retried).
	Expect func(*rcdevice.Frame) error
}

// PendingTransaction is the bookkeeping of the outstanding request
type PendingTransaction struct {
	Request   Request
	Attempt   int
	Attempts  int
	StartedAt uint64
	Deadline  uint64
}

// Options configure an Engine
type Options struct {
	Generation      rcdevice.Generation
	DeviceID        uint8 // zero selects rcdevice.DefaultDeviceID
	CRC             rcdevice.CRCAlgorithm
	ResponseTimeout time.Duration
	PollInterval    time.Duration
	Idle            func() // called between polls in SendAndAwait, overrides PollInterval
	Logger          *logrus.Logger
	Metrics         *Metrics
}

// Engine runs at most one transaction at a time against a single device.
// It is not safe for concurrent use; one owner drives it.
type Engine struct {
	transport  Transport
	clock      Clock
	generation rcdevice.Generation
	deviceID   uint8
	header     byte
	encoder    *rcdevice.Encoder
	decoder    *rcdevice.Decoder
	timeoutMs  uint64
	idle       func()
	log        *logrus.Entry
	metrics    *Metrics
	stats      *Statistics

	state   State
	pending *PendingTransaction
}

// NewEngine creates an engine speaking opts.Generation over t
func NewEngine(t Transport, clock Clock, opts Options) *Engine {
	if opts.DeviceID == 0 {
		opts.DeviceID = rcdevice.DefaultDeviceID
	}
	if opts.ResponseTimeout <= 0 {
		opts.ResponseTimeout = DefaultResponseTimeout
	}

	idle := opts.Idle
	if idle == nil {
		interval := opts.PollInterval
		idle = func() {
			if interval > 0 {
				time.Sleep(interval)
			} else {
				runtime.Gosched()
			}
		}
	}

	header := byte(rcdevice.HeaderV2)
	if opts.Generation == rcdevice.GenerationLegacy {
		header = rcdevice.HeaderLegacy
	}

	encoder := rcdevice.NewEncoder(opts.Generation, opts.DeviceID)
	encoder.SetCRC(opts.CRC)
	decoder := rcdevice.NewDecoder(opts.Generation, opts.DeviceID)
	decoder.SetCRC(opts.CRC)

	return &Engine{
		transport:  t,
		clock:      clock,
		generation: opts.Generation,
		deviceID:   opts.DeviceID,
		header:     header,
		encoder:    encoder,
		decoder:    decoder,
		timeoutMs:  uint64(opts.ResponseTimeout / time.Millisecond),
		idle:       idle,
		log:        componentLogger(opts.Logger, "link"),
		metrics:    opts.Metrics,
		stats:      NewStatistics(),
		state:      StateIdle,
	}
}

// Generation returns the protocol generation spoken by the engine
func (e *Engine) Generation() rcdevice.Generation {
	return e.generation
}

// DeviceID returns the V2 device id the engine addresses
func (e *Engine) DeviceID() uint8 {
	return e.deviceID
}

// State returns the current transaction state
func (e *Engine) State() State {
	return e.state
}

// Busy reports whether a transaction is outstanding
func (e *Engine) Busy() bool {
	return e.pending != nil
}

// Pending returns a copy of the outstanding transaction, or nil
func (e *Engine) Pending() *PendingTransaction {
	if e.pending == nil {
		return nil
	}
	p := *e.pending
	return &p
}

// Statistics returns a snapshot of the link statistics
func (e *Engine) Statistics() Statistics {
	return *e.stats
}

// ResetStatistics clears the link statistics
func (e *Engine) ResetStatistics() {
	e.stats.Reset()
}

// Send transmits a request that has no response
func (e *Engine) Send(command uint8, payload []byte) error {
	if e.pending != nil {
		return rcdevice.ErrTransactionInFlight
	}

	data, err := e.encoder.Encode(command, payload)
	if err != nil {
		return err
	}

	e.log.WithField("command", e.commandName(command, payload)).Debugf("tx % X", data)
	n, err := e.transport.Write(data)
	e.stats.FireAndForget++
	e.stats.BytesSent += uint64(n)
	e.metrics.observeSend(n)
	e.state = StateIdle
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Begin transmits the first attempt of req. It fails with
// rcdevice.ErrTransactionInFlight while another transaction is outstanding.
func (e *Engine) Begin(req Request) error {
	if e.pending != nil {
		return rcdevice.ErrTransactionInFlight
	}

	attempts := req.Attempts
	if attempts < 1 {
		attempts = 1
	}
	e.pending = &PendingTransaction{
		Request:   req,
		Attempts:  attempts,
		StartedAt: e.clock.NowMillis(),
	}
	e.stats.Transactions++

	if err := e.transmit(); err != nil {
		return e.finish(StatusFailed, nil, err).Err
	}
	return nil
}

// Poll advances the outstanding transaction without blocking.
// Failed and expired attempts are retransmitted while budget remains, so a
// terminal StatusExpired or StatusFailed means the budget is spent.
func (e *Engine) Poll() Result {
	p := e.pending
	if p == nil {
		return Result{Status: StatusFailed, Err: ErrNoTransaction}
	}

	for e.transport.BytesAvailable() > 0 {
		// A link that never goes quiet must still expire
		if e.clock.NowMillis() >= p.Deadline {
			return e.attemptFailed(rcdevice.ErrTimeout)
		}
		b, err := e.transport.ReadByte()
		if err != nil {
			break
		}

		if e.state == StateAwaitingHeader {
			if b != e.header {
				e.stats.DroppedBytes++
				continue
			}
			e.state = StateAwaitingBody
		}

		frame, err := e.decoder.DecodeByte(b)
		if err != nil {
			e.stats.RecordDecodeError(err)
			e.metrics.observeDecodeError(err)
			if errors.Is(err, rcdevice.ErrChecksumMismatch) {
				return e.attemptFailed(err)
			}
			e.log.WithError(err).Debug("resynchronising")
			if e.decoder.State() == rcdevice.StateAwaitHeader {
				e.state = StateAwaitingHeader
			}
			continue
		}
		if frame == nil {
			continue
		}

		e.stats.FramesReceived++
		if e.log.Logger.IsLevelEnabled(logrus.DebugLevel) {
			e.log.Debugf("rx % X", e.encodedForLog(frame))
		}

		if err := e.checkResponse(frame); err != nil {
			if errors.Is(err, rcdevice.ErrRejected) {
				return e.finish(StatusFailed, nil, err)
			}
			e.stats.InvalidResponses++
			return e.attemptFailed(err)
		}
		return e.finish(StatusReady, frame, nil)
	}

	if e.clock.NowMillis() >= p.Deadline {
		return e.attemptFailed(rcdevice.ErrTimeout)
	}
	return Result{Status: StatusPending}
}

// SendAndAwait runs req to completion. It blocks for at most
// req.Attempts response timeouts.
func (e *Engine) SendAndAwait(req Request) (*rcdevice.Frame, error) {
	if err := e.Begin(req); err != nil {
		return nil, err
	}
	for {
		res := e.Poll()
		if res.Status != StatusPending {
			return res.Frame, res.Err
		}
		e.idle()
	}
}

func (e *Engine) transmit() error {
	p := e.pending
	p.Attempt++
	e.state = StateSending

	// Anything left over belongs to an earlier exchange. Drain only what is
	// queued now; a noisy line must not hold up the write.
	for n := e.transport.BytesAvailable(); n > 0; n-- {
		if _, err := e.transport.ReadByte(); err != nil {
			break
		}
		e.stats.DroppedBytes++
	}
	e.decoder.Reset()

	data, err := e.encoder.Encode(p.Request.Command, p.Request.Payload)
	if err != nil {
		return err
	}

	e.log.WithFields(logrus.Fields{
		"command": e.commandName(p.Request.Command, p.Request.Payload),
		"attempt": p.Attempt,
	}).Debugf("tx % X", data)

	n, err := e.transport.Write(data)
	e.stats.Attempts++
	e.stats.BytesSent += uint64(n)
	if p.Attempt > 1 {
		e.stats.Retries++
	}
	e.metrics.observeAttempt(p.Request.Command, n)
	if err != nil {
		return fmt.Errorf("write failed: %w", err)
	}

	p.Deadline = e.clock.NowMillis() + e.timeoutMs
	e.state = StateAwaitingHeader
	return nil
}

func (e *Engine) attemptFailed(cause error) Result {
	p := e.pending
	e.state = StateFailed
	name := e.commandName(p.Request.Command, p.Request.Payload)

	if p.Attempt < p.Attempts {
		e.log.WithFields(logrus.Fields{
			"command": name,
			"attempt": p.Attempt,
		}).Warnf("attempt failed, retrying: %v", cause)
		if err := e.transmit(); err != nil {
			return e.finish(StatusFailed, nil, err)
		}
		return Result{Status: StatusPending}
	}

	if errors.Is(cause, rcdevice.ErrTimeout) {
		return e.finish(StatusExpired, nil,
			fmt.Errorf("%s: no response after %d attempts: %w", name, p.Attempts, rcdevice.ErrTimeout))
	}
	if errors.Is(cause, rcdevice.ErrInvalidResponse) {
		return e.finish(StatusFailed, nil, fmt.Errorf("%s after %d attempts: %w", name, p.Attempts, cause))
	}
	return e.finish(StatusFailed, nil,
		fmt.Errorf("%s after %d attempts: %w: %v", name, p.Attempts, rcdevice.ErrInvalidResponse, cause))
}

func (e *Engine) finish(status Status, frame *rcdevice.Frame, err error) Result {
	p := e.pending
	e.pending = nil

	e.stats.RecordOutcome(err)
	e.metrics.observeOutcome(p.Request.Command, err, e.clock.NowMillis()-p.StartedAt)

	if err != nil {
		e.state = StateFailed
		e.log.WithField("attempts", p.Attempt).Debugf("transaction failed: %v", err)
	} else {
		e.state = StateSuccess
	}
	return Result{Status: status, Frame: frame, Err: err}
}

func (e *Engine) checkResponse(frame *rcdevice.Frame) error {
	req := e.pending.Request

	if e.generation == rcdevice.GenerationLegacy {
		if len(req.Payload) == 1 && frame.Argument() != req.Payload[0] {
			return fmt.Errorf("%w: expected echo of 0x%02X, got 0x%02X",
				rcdevice.ErrInvalidResponse, req.Payload[0], frame.Argument())
		}
	} else if frame.Command() != req.Command {
		return fmt.Errorf("%w: expected %s, got %s", rcdevice.ErrInvalidResponse,
			rcdevice.FormatCommand(req.Command), rcdevice.FormatCommand(frame.Command()))
	}

	if errs := rcdevice.ValidateResponse(frame); len(errs) > 0 {
		return &errs[0]
	}
	if req.Expect != nil {
		return req.Expect(frame)
	}
	return nil
}

func (e *Engine) commandName(command uint8, payload []byte) string {
	if e.generation == rcdevice.GenerationLegacy && len(payload) == 1 {
		return "LEGACY_" + rcdevice.FormatLegacyArgument(payload[0])
	}
	return rcdevice.FormatCommand(command)
}

// encodedForLog re-encodes a received frame for hex logging
func (e *Engine) encodedForLog(f *rcdevice.Frame) []byte {
	data, err := e.encoder.EncodeFrame(f)
	if err != nil {
		return f.Payload()
	}
	return data
}
