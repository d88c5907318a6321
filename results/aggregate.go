// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"math"
	"time"

	"github.com/HdrHistogram/hdrhistogram-go"
	"github.com/absmach/mqbench/engine"
	"github.com/absmach/mqbench/message"
	"github.com/absmach/mqbench/monitor"
	"github.com/absmach/mqbench/scenario"
)

// Latencies are recorded in microseconds, up to one hour.
const (
	histMinMicros  = 1
	histMaxMicros  = int64(time.Hour / time.Microsecond)
	histSigFigures = 3
)

// Input is everything Aggregate needs. The ID and timestamps come from the caller,
// so equal inputs always produce equal results.
type Input struct {
	ID          string
	Scenario    scenario.Scenario
	StartedAt   time.Time
	FinishedAt  time.Time
	Connect     time.Duration
	Disconnect  time.Duration
	Measurement engine.Measurement
	Usage       monitor.Usage
}

// Aggregate derives rates, loss, percentiles and the performance score.
func Aggregate(in Input) Result {
	s, m := in.Scenario, in.Measurement

	var throughput, reception float64
	if secs := m.Processing.Seconds(); secs > 0 {
		throughput = float64(m.Sent) / secs
		reception = float64(m.Received) / secs
	}

	loss := LossRate(s, m.Sent, m.Received)
	success := 1 - loss
	size, unit := FormatDataSize(DataSize(s))
	lat := summarize(m.Latencies)

	status := StatusSuccess
	if !m.Completed {
		status = StatusPartial
	}

	return Result{
		ID:         in.ID,
		Broker:     s.Broker,
		Scenario:   s,
		Status:     status,
		StartedAt:  in.StartedAt,
		FinishedAt: in.FinishedAt,

		ConnectMS:    millis(in.Connect),
		DisconnectMS: millis(in.Disconnect),
		ElapsedMS:    millis(m.Elapsed),
		ProcessingMS: millis(m.Processing),

		Attempted:        m.Attempted,
		Sent:             m.Sent,
		Received:         m.Received,
		ThroughputMPS:    throughput,
		ReceptionRateMPS: reception,

		AvgLatencyMS: lat.mean,
		P50LatencyMS: lat.p50,
		P95LatencyMS: lat.p95,
		P99LatencyMS: lat.p99,
		MaxLatencyMS: lat.max,

		SuccessRate:     success,
		LossRate:        loss,
		DataTransferred: size,
		DataUnit:        unit,
		OutOfOrder:      m.OutOfOrder,
		Reconnections:   m.Reconnections,

		CPU:             in.Usage.CPU,
		MemoryMB:        in.Usage.Memory,
		LastBrokerError: in.Usage.LastError,

		Score: Score(ScoreInput{
			Throughput:    throughput,
			ReceptionRate: reception,
			LatencyMS:     lat.mean,
			SuccessRate:   success,
			LossRate:      loss,
			OutOfOrder:    m.OutOfOrder,
			Reconnections: m.Reconnections,
			CPU:           in.Usage.CPU,
			Memory:        in.Usage.Memory,
		}),
	}
}

// LossRate is the share of expected deliveries that never arrived. QoS 0 compares
// against what was sent, other levels against every subscriber seeing every message.
func LossRate(s scenario.Scenario, sent, received int64) float64 {
	if s.QoS == 0 {
		// Without subscribers every send counts as its own reception.
		if sent <= 0 || s.Subscribers == 0 {
			return 0
		}
		return math.Max(0, 1-float64(received)/float64(sent))
	}
	expected := s.ExpectedDeliveries()
	if expected <= 0 {
		return 0
	}
	return math.Max(0, float64(expected-received)/float64(expected))
}

// DataSize is the number of bytes published, metadata prefix included.
func DataSize(s scenario.Scenario) float64 {
	return float64(s.TotalSends()) * float64(s.MessageSize+message.HeaderSize)
}

var units = []string{"B", "KB", "MB", "GB", "TB", "PB", "EB"}

// FormatDataSize scales bytes to the largest binary unit that keeps the value at or
// above 1 and rounds it to two decimals.
func FormatDataSize(bytes float64) (float64, string) {
	i := 0
	for bytes >= 1024 && i < len(units)-1 {
		bytes /= 1024
		i++
	}
	return round2(bytes), units[i]
}

type latencySummary struct {
	mean, p50, p95, p99, max float64
}

func summarize(latencies []time.Duration) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	h := hdrhistogram.New(histMinMicros, histMaxMicros, histSigFigures)
	var sum time.Duration
	for _, l := range latencies {
		sum += l
		us := min(max(int64(l/time.Microsecond), 0), histMaxMicros)
		_ = h.RecordValue(us)
	}

	return latencySummary{
		mean: millis(sum) / float64(len(latencies)),
		p50:  microsToMillis(h.ValueAtQuantile(50)),
		p95:  microsToMillis(h.ValueAtQuantile(95)),
		p99:  microsToMillis(h.ValueAtQuantile(99)),
		max:  microsToMillis(h.Max()),
	}
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func microsToMillis(us int64) float64 {
	return float64(us) / 1000
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
