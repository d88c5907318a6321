// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package monitor defines the boundary to the broker resource monitor.
package monitor

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrNotStarted is returned by Stop when no monitoring session is active.
var ErrNotStarted = errors.New("monitor not started")

// Usage is what a monitor reports for one benchmark run.
type Usage struct {
	// CPU is the average CPU utilization in percent.
	CPU float64
	// Memory is the average memory consumption in megabytes.
	Memory float64
	// LastError is the last error line the broker logged, if any.
	LastError string
}

// Monitor observes a broker for the duration of a run.
type Monitor interface {
	Start(ctx context.Context, broker string) error
	Stop(ctx context.Context) (Usage, error)
}

// Noop reports zero usage.
type Noop struct{}

func (Noop) Start(context.Context, string) error {
	return nil
}

func (Noop) Stop(context.Context) (Usage, error) {
	return Usage{}, nil
}

// Sample is one probe reading.
type Sample struct {
	CPU    float64
	Memory float64
	// LastError is the broker's most recent error log line, if the probe knows it.
	LastError string
}

// Probe reads the current resource usage of a broker.
type Probe interface {
	Sample(ctx context.Context, broker string) (Sample, error)
}

// ProbeFunc adapts a function to Probe.
type ProbeFunc func(ctx context.Context, broker string) (Sample, error)

func (f ProbeFunc) Sample(ctx context.Context, broker string) (Sample, error) {
	return f(ctx, broker)
}

// Sampler polls a Probe at a fixed interval between Start and Stop and reports the
// averages. Probe errors are kept as the last error line.
type Sampler struct {
	probe    Probe
	interval time.Duration
	logger   *slog.Logger

	mu      sync.Mutex
	cancel  context.CancelFunc
	done    chan struct{}
	cpu     []float64
	memory  []float64
	lastErr string
}

var _ Monitor = (*Sampler)(nil)

// NewSampler creates a sampler polling p every interval.
func NewSampler(p Probe, interval time.Duration, logger *slog.Logger) *Sampler {
	if interval <= 0 {
		interval = time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Sampler{probe: p, interval: interval, logger: logger}
}

func (s *Sampler) Start(ctx context.Context, broker string) error {
	s.mu.Lock()
	prev, prevDone := s.cancel, s.done
	s.mu.Unlock()
	if prev != nil {
		prev()
		<-prevDone
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	ctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	s.cancel = cancel
	s.done = make(chan struct{})
	s.cpu, s.memory, s.lastErr = nil, nil, ""

	go s.loop(ctx, broker, s.done)
	return nil
}

func (s *Sampler) loop(ctx context.Context, broker string, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			sample, err := s.probe.Sample(ctx, broker)
			s.mu.Lock()
			if err != nil {
				if ctx.Err() == nil {
					s.lastErr = err.Error()
				}
			} else {
				s.cpu = append(s.cpu, sample.CPU)
				s.memory = append(s.memory, sample.Memory)
				if sample.LastError != "" {
					s.lastErr = sample.LastError
				}
			}
			s.mu.Unlock()
			if err != nil && ctx.Err() == nil {
				s.logger.Debug("monitor_sample_failed", slog.String("broker", broker), slog.String("error", err.Error()))
			}
		}
	}
}

func (s *Sampler) Stop(ctx context.Context) (Usage, error) {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel = nil
	s.mu.Unlock()
	if cancel == nil {
		return Usage{}, ErrNotStarted
	}

	cancel()
	select {
	case <-done:
	case <-ctx.Done():
		return Usage{}, ctx.Err()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	return Usage{
		CPU:       mean(s.cpu),
		Memory:    mean(s.memory),
		LastError: s.lastErr,
	}, nil
}

func mean(v []float64) float64 {
	if len(v) == 0 {
		return 0
	}
	var sum float64
	for _, x := range v {
		sum += x
	}
	return sum / float64(len(v))
}
