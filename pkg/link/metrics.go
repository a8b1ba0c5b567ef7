// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2025 Kaz Walker, Thermoquad

package link

import (
	"errors"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/Thermoquad/camlink/pkg/rcdevice"
)

// Metrics holds the Prometheus collectors updated by the engine.
// A nil *Metrics is valid and records nothing.
type Metrics struct {
	Transactions *prometheus.CounterVec
	Attempts     *prometheus.CounterVec
	DecodeErrors *prometheus.CounterVec
	Duration     prometheus.Histogram
	BytesSent    prometheus.Counter
}

// NewMetrics creates the link collectors and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transactions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camlink_transactions_total",
				Help: "Completed transactions by command and outcome",
			},
			[]string{"command", "outcome"},
		),
		Attempts: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camlink_transaction_attempts_total",
				Help: "Request transmissions including retries",
			},
			[]string{"command"},
		),
		DecodeErrors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "camlink_decode_errors_total",
				Help: "Frames dropped by the decoder",
			},
			[]string{"kind"},
		),
		Duration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "camlink_transaction_duration_seconds",
			Help:    "Time from first transmission to terminal result",
			Buckets: []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 3},
		}),
		BytesSent: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "camlink_bytes_sent_total",
			Help: "Bytes written to the transport",
		}),
	}

	reg.MustRegister(m.Transactions, m.Attempts, m.DecodeErrors, m.Duration, m.BytesSent)
	return m
}

func (m *Metrics) observeAttempt(command uint8, n int) {
	if m == nil {
		return
	}
	m.Attempts.WithLabelValues(rcdevice.FormatCommand(command)).Inc()
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) observeSend(n int) {
	if m == nil {
		return
	}
	m.BytesSent.Add(float64(n))
}

func (m *Metrics) observeDecodeError(err error) {
	if m == nil {
		return
	}
	kind := "framing"
	if errors.Is(err, rcdevice.ErrChecksumMismatch) {
		kind = "checksum"
	}
	m.DecodeErrors.WithLabelValues(kind).Inc()
}

func (m *Metrics) observeOutcome(command uint8, err error, elapsedMs uint64) {
	if m == nil {
		return
	}
	m.Transactions.WithLabelValues(rcdevice.FormatCommand(command), outcomeLabel(err)).Inc()
	m.Duration.Observe(float64(elapsedMs) / 1000.0)
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, rcdevice.ErrTimeout):
		return "timeout"
	default:
		return "invalid"
	}
}
