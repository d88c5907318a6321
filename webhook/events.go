// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"time"

	"github.com/absmach/mqbench/results"
	"github.com/google/uuid"
)

// Event type constants.
const (
	TypeBenchmarkCompleted = "benchmark.completed"
	TypeBenchmarkFailed    = "benchmark.failed"
)

// Event is the common interface for webhook events.
type Event interface {
	// Type returns the event type identifier (e.g., "benchmark.completed").
	Type() string

	// Broker returns the name of the broker the event concerns.
	Broker() string

	// Wrap wraps the event in a common envelope with metadata.
	Wrap(runnerID string) *Envelope
}

// Envelope is the common wrapper for all webhook events.
type Envelope struct {
	EventType string `json:"event_type"`
	EventID   string `json:"event_id"`
	Timestamp string `json:"timestamp"`
	RunnerID  string `json:"runner_id"`
	Data      any    `json:"data"`
}

func wrap(e Event, runnerID string) *Envelope {
	return &Envelope{
		EventType: e.Type(),
		EventID:   uuid.New().String(),
		Timestamp: time.Now().UTC().Format(time.RFC3339Nano),
		RunnerID:  runnerID,
		Data:      e,
	}
}

// BenchmarkCompleted is emitted for successful and partial runs.
type BenchmarkCompleted struct {
	Result results.Result `json:"result"`
}

func (e BenchmarkCompleted) Type() string                   { return TypeBenchmarkCompleted }
func (e BenchmarkCompleted) Broker() string                 { return e.Result.Broker }
func (e BenchmarkCompleted) Wrap(runnerID string) *Envelope { return wrap(e, runnerID) }

// BenchmarkFailed is emitted for runs that produced no measurement.
type BenchmarkFailed struct {
	Result results.Result `json:"result"`
}

func (e BenchmarkFailed) Type() string                   { return TypeBenchmarkFailed }
func (e BenchmarkFailed) Broker() string                 { return e.Result.Broker }
func (e BenchmarkFailed) Wrap(runnerID string) *Envelope { return wrap(e, runnerID) }

// ResultEvent picks the event matching the result status.
func ResultEvent(r results.Result) Event {
	if r.Status == results.StatusFailed {
		return BenchmarkFailed{Result: r}
	}
	return BenchmarkCompleted{Result: r}
}
