// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"
	"fmt"
	"time"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Statistics tracks transaction outcomes and link error rates
type Statistics struct {
	StartTime      time.Time
	LastUpdateTime time.Time

	// Transactions
	Transactions  uint64
	Succeeded     uint64
	TimedOut      uint64
	Failed        uint64
	Attempts      uint64
	Retries       uint64
	FireAndForget uint64

	// Link
	FramesReceived   uint64
	CRCErrors        uint64
	FramingErrors    uint64
	InvalidResponses uint64
	DroppedBytes     uint64
	BytesSent        uint64

	// Rates (calculated)
	TransactionRate float64 // transactions/sec
	ErrorRate       float64 // errors/sec
}

// NewStatistics creates a new statistics tracker
func NewStatistics() *Statistics {
	now := time.Now()
	return &Statistics{
		StartTime:      now,
		LastUpdateTime: now,
	}
}

// RecordDecodeError classifies an error returned by the frame decoder
func (s *Statistics) RecordDecodeError(err error) {
	if errors.Is(err, rcdevice.ErrChecksumMismatch) {
		s.CRCErrors++
	} else {
		s.FramingErrors++
	}
	s.LastUpdateTime = time.Now()
}

// RecordFrame counts a frame seen by a passive monitor
func (s *Statistics) RecordFrame(validation []rcdevice.ValidationError) {
	s.FramesReceived++
	if len(validation) > 0 {
		s.InvalidResponses++
	}
	s.LastUpdateTime = time.Now()
}

// RecordOutcome records the terminal result of a transaction
func (s *Statistics) RecordOutcome(err error) {
	switch {
	case err == nil:
		s.Succeeded++
	case errors.Is(err, rcdevice.ErrTimeout):
		s.TimedOut++
	default:
		s.Failed++
	}
	s.LastUpdateTime = time.Now()
}

// CalculateRates calculates transaction and error rates
func (s *Statistics) CalculateRates() {
	elapsed := time.Since(s.StartTime).Seconds()
	if elapsed > 0 {
		s.TransactionRate = float64(s.Transactions) / elapsed
		errorCount := s.CRCErrors + s.FramingErrors + s.InvalidResponses + s.TimedOut
		s.ErrorRate = float64(errorCount) / elapsed
	}
}

// String returns a formatted statistics summary
func (s *Statistics) String() string {
	s.CalculateRates()

	var successPercent float64
	if s.Transactions > 0 {
		successPercent = float64(s.Succeeded) * 100.0 / float64(s.Transactions)
	}

	elapsed := time.Since(s.StartTime)

	result := fmt.Sprintf("=== Link Statistics (%.0f seconds) ===\n", elapsed.Seconds())
	result += fmt.Sprintf("Transactions:    %8d\n", s.Transactions)
	result += fmt.Sprintf("Succeeded:       %8d (%.1f%%)\n", s.Succeeded, successPercent)

	if s.TimedOut > 0 {
		result += fmt.Sprintf("Timed Out:       %8d\n", s.TimedOut)
	}
	if s.Failed > 0 {
		result += fmt.Sprintf("Failed:          %8d\n", s.Failed)
	}
	if s.Retries > 0 {
		result += fmt.Sprintf("Retries:         %8d (%d attempts)\n", s.Retries, s.Attempts)
	}
	if s.FireAndForget > 0 {
		result += fmt.Sprintf("Unacknowledged:  %8d\n", s.FireAndForget)
	}

	result += fmt.Sprintf("Frames Received: %8d\n", s.FramesReceived)
	if s.CRCErrors > 0 {
		result += fmt.Sprintf("CRC Errors:      %8d\n", s.CRCErrors)
	}
	if s.FramingErrors > 0 {
		result += fmt.Sprintf("Framing Errors:  %8d\n", s.FramingErrors)
	}
	if s.InvalidResponses > 0 {
		result += fmt.Sprintf("Invalid Resp:    %8d\n", s.InvalidResponses)
	}
	if s.DroppedBytes > 0 {
		result += fmt.Sprintf("Dropped Bytes:   %8d\n", s.DroppedBytes)
	}

	result += fmt.Sprintf("Bytes Sent:      %8d\n", s.BytesSent)
	result += fmt.Sprintf("Transaction Rate:%8.1f tx/sec\n", s.TransactionRate)
	result += fmt.Sprintf("Error Rate:      %8.1f errors/sec\n", s.ErrorRate)
	result += "=====================================\n"

	return result
}

// Reset resets all statistics counters
func (s *Statistics) Reset() {
	*s = *NewStatistics()
}
