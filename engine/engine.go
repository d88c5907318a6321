// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package engine drives one load phase: subscribers listen on the benchmark filter,
// publishers are released together from a start barrier, and every delivery is
// decoded and timed until all expected messages arrive or the drain timeout ends.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/absmach/mqbench/client"
	"github.com/absmach/mqbench/message"
	"github.com/absmach/mqbench/scenario"
	"golang.org/x/sync/errgroup"
)

// Defaults.
const (
	DefaultDrainTimeout = 30 * time.Second
	DefaultQueueSize    = 4096
)

var (
	// ErrPublishFailure wraps the first publish error that aborted the load phase.
	ErrPublishFailure = errors.New("publish failure")
	// ErrDeliveryTimeout reports that the drain timeout elapsed before every expected
	// message was delivered.
	ErrDeliveryTimeout = errors.New("delivery wait timed out")
)

// Limiter paces one publisher.
type Limiter interface {
	Wait(ctx context.Context) error
}

// Observer receives live run events. Calls may come from many goroutines.
type Observer interface {
	Published(qos byte, size int)
	Delivered(latency time.Duration)
	Reconnected()
}

// Progress is a snapshot of a running load phase.
type Progress struct {
	Sent     int64
	Received int64
	Total    int64
	Expected int64
}

// Config holds the engine tunables.
type Config struct {
	// DrainTimeout bounds the wait for outstanding deliveries after the last publish.
	DrainTimeout time.Duration
	// QueueSize is the capacity of each subscriber's delivery queue.
	QueueSize int
	// Retry is used to re-establish dropped connections.
	Retry client.Retry
	// NewLimiter builds the limiter of each publisher. Nil disables pacing.
	NewLimiter func() Limiter
	// OnProgress is called periodically while publishing.
	OnProgress func(Progress)
	Observer   Observer
}

// Measurement is the raw outcome of one load phase.
type Measurement struct {
	Attempted     int64
	Sent          int64
	Received      int64
	Elapsed       time.Duration
	Processing    time.Duration
	Latencies     []time.Duration
	OutOfOrder    int64
	Reconnections int64
	// Completed is false when the drain timeout elapsed before all deliveries.
	Completed bool
}

// Engine runs load phases.
type Engine struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an engine. Zero config values fall back to defaults.
func New(cfg Config, logger *slog.Logger) *Engine {
	if cfg.DrainTimeout <= 0 {
		cfg.DrainTimeout = DefaultDrainTimeout
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = DefaultQueueSize
	}
	if cfg.Retry.Attempts <= 0 {
		cfg.Retry = client.DefaultRetry
	}
	if cfg.Observer == nil {
		cfg.Observer = nopObserver{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{cfg: cfg, logger: logger}
}

// run is the state shared by the workers of one load phase. Everything else is
// owned by a single worker and merged after the workers exit.
type run struct {
	expected      int64
	total         atomic.Int64
	reconnections atomic.Int64
	sentLive      atomic.Int64

	done     chan struct{}
	doneOnce sync.Once

	mu       sync.Mutex
	stopping bool
	bg       sync.WaitGroup
}

func (r *run) delivered() {
	if r.total.Add(1) == r.expected {
		r.doneOnce.Do(func() { close(r.done) })
	}
}

// spawn starts fn unless the run is shutting down.
func (r *run) spawn(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.stopping {
		return
	}
	r.bg.Add(1)
	go func() {
		defer r.bg.Done()
		fn()
	}()
}

func (r *run) stop() {
	r.mu.Lock()
	r.stopping = true
	r.mu.Unlock()
	r.bg.Wait()
}

// Run executes one load phase. Publishers and subscribers must already be connected
// and are left connected. Every publisher sends every template once.
func (e *Engine) Run(ctx context.Context, s scenario.Scenario, publishers, subscribers []client.Client, templates []message.Template) (Measurement, error) {
	begin := time.Now()
	sends := int64(len(publishers)) * int64(len(templates))
	r := &run{
		expected: int64(len(subscribers)) * sends,
		done:     make(chan struct{}),
	}

	// Consumers outlive the publisher group so stragglers are still counted
	// while draining.
	consumeCtx, stopConsumers := context.WithCancel(ctx)
	defer stopConsumers()
	cg, cctx := errgroup.WithContext(consumeCtx)

	subs := make([]*subscriber, len(subscribers))
	for i, c := range subscribers {
		sub := newSubscriber(i, c, e.cfg.QueueSize)
		subs[i] = sub
		cg.Go(func() error {
			return sub.consume(cctx, r, e.cfg.Observer)
		})
		c.OnConnectionLost(func(err error) {
			r.reconnections.Add(1)
			e.cfg.Observer.Reconnected()
			e.logger.Warn("subscriber_connection_lost",
				slog.Int("subscriber", sub.index),
				slog.String("error", err.Error()))
			r.spawn(func() { e.resubscribe(cctx, sub, s.QoS) })
		})
	}

	abort := func(err error) (Measurement, error) {
		stopConsumers()
		r.stop()
		if cerr := cg.Wait(); cerr != nil {
			err = cerr
		}
		return e.measure(begin, 0, sends, nil, subs, r, false), err
	}

	for _, sub := range subs {
		if err := sub.client.Subscribe(cctx, message.Filter, s.QoS, sub.enqueue(cctx)); err != nil {
			return abort(fmt.Errorf("subscriber %d: %w", sub.index, err))
		}
	}
	e.logger.Debug("subscribers_ready", slog.Int("subscribers", len(subs)), slog.Int64("expected", r.expected))

	start := make(chan struct{})
	sent := make([]int64, len(publishers))
	pg, pctx := errgroup.WithContext(cctx)
	for i, c := range publishers {
		pg.Go(func() error {
			return e.publish(pctx, i, c, templates, start, &sent[i], r, sends)
		})
	}

	processStart := time.Now()
	close(start)

	if err := pg.Wait(); err != nil {
		return abort(err)
	}
	processing := time.Since(processStart)

	completed := true
	if len(subs) > 0 && r.expected > 0 {
		timer := time.NewTimer(e.cfg.DrainTimeout)
		select {
		case <-r.done:
			processing = time.Since(processStart)
		case <-timer.C:
			processing = time.Since(processStart)
			completed = false
			e.logger.Warn("delivery_wait_timed_out",
				slog.Int64("received", r.total.Load()),
				slog.Int64("expected", r.expected),
				slog.Duration("drain_timeout", e.cfg.DrainTimeout),
				slog.String("error", ErrDeliveryTimeout.Error()))
		case <-cctx.Done():
			timer.Stop()
			if err := ctx.Err(); err != nil {
				return abort(err)
			}
			return abort(context.Cause(cctx))
		}
		timer.Stop()
	}

	stopConsumers()
	r.stop()
	if err := cg.Wait(); err != nil {
		return e.measure(begin, processing, sends, sent, subs, r, false), err
	}
	return e.measure(begin, processing, sends, sent, subs, r, completed), nil
}

func (e *Engine) measure(begin time.Time, processing time.Duration, attempted int64, sent []int64, subs []*subscriber, r *run, completed bool) Measurement {
	m := Measurement{
		Attempted:     attempted,
		Elapsed:       time.Since(begin),
		Processing:    processing,
		Reconnections: r.reconnections.Load(),
		Completed:     completed,
	}
	for _, n := range sent {
		m.Sent += n
	}
	var count int
	for _, sub := range subs {
		count += len(sub.latencies)
	}
	m.Latencies = make([]time.Duration, 0, count)
	for _, sub := range subs {
		m.Received += sub.received
		m.OutOfOrder += sub.outOfOrder
		m.Latencies = append(m.Latencies, sub.latencies...)
	}
	return m
}

func (e *Engine) publish(ctx context.Context, idx int, c client.Client, templates []message.Template, start <-chan struct{}, sent *int64, r *run, total int64) error {
	var limiter Limiter
	if e.cfg.NewLimiter != nil {
		limiter = e.cfg.NewLimiter()
	}
	every := max(total/100, 1)

	select {
	case <-start:
	case <-ctx.Done():
		return ctx.Err()
	}

	for seq, t := range templates {
		if !c.IsConnected() {
			if _, err := client.ConnectWithRetry(ctx, c, e.cfg.Retry); err != nil {
				return fmt.Errorf("publisher %d: %w", idx, err)
			}
			r.reconnections.Add(1)
			e.cfg.Observer.Reconnected()
			e.logger.Warn("publisher_reconnected", slog.Int("publisher", idx))
		}
		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				return fmt.Errorf("publisher %d: %w", idx, err)
			}
		}

		payload := message.Encode(message.Tag{Timestamp: message.Now(), Sequence: int32(seq)}, t.Payload)
		if err := c.Publish(ctx, t.Topic, payload, t.QoS, t.Retain); err != nil {
			return fmt.Errorf("%w: publisher %d message %d: %w", ErrPublishFailure, idx, seq, err)
		}
		*sent++
		e.cfg.Observer.Published(t.QoS, len(payload))

		if e.cfg.OnProgress != nil {
			if n := r.sentLive.Add(1); n%every == 0 || n == total {
				e.cfg.OnProgress(Progress{
					Sent:     n,
					Received: r.total.Load(),
					Total:    total,
					Expected: r.expected,
				})
			}
		}
	}
	return nil
}

// resubscribe restores a dropped subscriber connection and its subscription.
func (e *Engine) resubscribe(ctx context.Context, sub *subscriber, qos byte) {
	if _, err := client.ConnectWithRetry(ctx, sub.client, e.cfg.Retry); err != nil {
		if ctx.Err() == nil {
			e.logger.Error("subscriber_reconnect_failed", slog.Int("subscriber", sub.index), slog.String("error", err.Error()))
		}
		return
	}
	if err := sub.client.Subscribe(ctx, message.Filter, qos, sub.enqueue(ctx)); err != nil && ctx.Err() == nil {
		e.logger.Error("subscriber_resubscribe_failed", slog.Int("subscriber", sub.index), slog.String("error", err.Error()))
	}
}

type nopObserver struct{}

func (nopObserver) Published(byte, int)     {}
func (nopObserver) Delivered(time.Duration) {}
func (nopObserver) Reconnected()            {}
