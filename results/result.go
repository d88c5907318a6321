// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package results turns raw load measurements into scored benchmark results.
package results

import (
	"time"

	"github.com/absmach/mqbench/scenario"
	"github.com/google/uuid"
)

// Status is the outcome class of a run.
type Status string

const (
	StatusSuccess Status = "success"
	// StatusPartial marks a run whose delivery wait hit the drain timeout.
	StatusPartial Status = "partial"
	StatusFailed  Status = "failed"
)

// Result is the immutable outcome of one benchmark run.
type Result struct {
	ID         string            `json:"id"`
	Broker     string            `json:"broker"`
	Scenario   scenario.Scenario `json:"scenario"`
	Status     Status            `json:"status"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`

	ConnectMS    float64 `json:"connect_ms"`
	DisconnectMS float64 `json:"disconnect_ms"`
	ElapsedMS    float64 `json:"elapsed_ms"`
	ProcessingMS float64 `json:"processing_ms"`

	Attempted        int64   `json:"attempted"`
	Sent             int64   `json:"sent"`
	Received         int64   `json:"received"`
	ThroughputMPS    float64 `json:"throughput_mps"`
	ReceptionRateMPS float64 `json:"reception_rate_mps"`

	AvgLatencyMS float64 `json:"avg_latency_ms"`
	P50LatencyMS float64 `json:"p50_latency_ms"`
	P95LatencyMS float64 `json:"p95_latency_ms"`
	P99LatencyMS float64 `json:"p99_latency_ms"`
	MaxLatencyMS float64 `json:"max_latency_ms"`

	SuccessRate     float64 `json:"success_rate"`
	LossRate        float64 `json:"loss_rate"`
	DataTransferred float64 `json:"data_transferred"`
	DataUnit        string  `json:"data_unit"`
	OutOfOrder      int64   `json:"out_of_order"`
	Reconnections   int64   `json:"reconnections"`

	CPU             float64 `json:"cpu_percent"`
	MemoryMB        float64 `json:"memory_mb"`
	LastBrokerError string  `json:"last_broker_error,omitempty"`

	Score float64 `json:"score"`
	Error string  `json:"error,omitempty"`
}

// Succeeded reports whether the run produced measurements, fully or partially.
func (r Result) Succeeded() bool {
	return r.Status == StatusSuccess || r.Status == StatusPartial
}

// Failed builds the result of a run that could not be measured.
func Failed(id string, s scenario.Scenario, startedAt time.Time, err error, lastBrokerError string) Result {
	if id == "" {
		id = uuid.NewString()
	}
	msg := "unknown error"
	if err != nil {
		msg = err.Error()
	}
	return Result{
		ID:              id,
		Broker:          s.Broker,
		Scenario:        s,
		Status:          StatusFailed,
		StartedAt:       startedAt,
		FinishedAt:      time.Now(),
		DataUnit:        "B",
		LastBrokerError: lastBrokerError,
		Error:           msg,
	}
}
