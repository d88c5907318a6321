// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/absmach/mqbench/config"
	"github.com/sony/gobreaker"
)

// ErrClosed is returned by Notify after Close.
var ErrClosed = errors.New("webhook notifier closed")

// GenericNotifier implements webhook notifications with worker pool and circuit breaker.
type GenericNotifier struct {
	cfg        config.WebhookConfig
	runnerID   string
	endpoints  []endpointConfig
	eventQueue chan eventJob
	breakers   map[string]*gobreaker.CircuitBreaker
	sender     Sender
	logger     *slog.Logger
	wg         sync.WaitGroup
	ctx        context.Context
	cancel     context.CancelFunc
}

type endpointConfig struct {
	name          string
	url           string
	eventFilters  map[string]bool
	brokerFilters map[string]bool
	headers       map[string]string
	timeout       time.Duration
	retryConfig   config.RetryConfig
}

type eventJob struct {
	event    Event
	endpoint endpointConfig
	attempt  int
}

// NewNotifier creates a new generic webhook notifier.
func NewNotifier(cfg config.WebhookConfig, runnerID string, sender Sender, logger *slog.Logger) (*GenericNotifier, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if sender == nil {
		return nil, fmt.Errorf("sender cannot be nil")
	}

	ctx, cancel := context.WithCancel(context.Background())

	endpoints := make([]endpointConfig, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		timeout := cfg.Defaults.Timeout
		if ep.Timeout > 0 {
			timeout = ep.Timeout
		}

		retryConfig := cfg.Defaults.Retry
		if ep.Retry != nil {
			retryConfig = *ep.Retry
		}

		endpoints = append(endpoints, endpointConfig{
			name:          ep.Name,
			url:           ep.URL,
			eventFilters:  set(ep.Events),
			brokerFilters: set(ep.Brokers),
			headers:       ep.Headers,
			timeout:       timeout,
			retryConfig:   retryConfig,
		})
	}

	breakers := make(map[string]*gobreaker.CircuitBreaker)
	for _, ep := range endpoints {
		breakers[ep.name] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        ep.name,
			MaxRequests: 1,
			Interval:    0,
			Timeout:     cfg.Defaults.CircuitBreaker.ResetTimeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= uint32(cfg.Defaults.CircuitBreaker.FailureThreshold)
			},
			OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
				logger.Warn("webhook circuit breaker state changed",
					slog.String("endpoint", name),
					slog.String("from", from.String()),
					slog.String("to", to.String()))
			},
		})
	}

	queueSize := cfg.QueueSize
	if queueSize < 1 {
		queueSize = 1
	}
	workers := cfg.Workers
	if workers < 1 {
		workers = 1
	}

	n := &GenericNotifier{
		cfg:        cfg,
		runnerID:   runnerID,
		endpoints:  endpoints,
		eventQueue: make(chan eventJob, queueSize),
		breakers:   breakers,
		sender:     sender,
		logger:     logger,
		ctx:        ctx,
		cancel:     cancel,
	}

	for i := 0; i < workers; i++ {
		n.wg.Add(1)
		go n.worker()
	}

	logger.Info("webhook notifier started",
		slog.Int("workers", workers),
		slog.Int("queue_size", queueSize),
		slog.Int("endpoints", len(endpoints)))

	return n, nil
}

func set(values []string) map[string]bool {
	m := make(map[string]bool, len(values))
	for _, v := range values {
		m[v] = true
	}
	return m
}

// Notify queues the event for all matching endpoints.
func (n *GenericNotifier) Notify(ctx context.Context, ev Event) error {
	if n.ctx.Err() != nil {
		return ErrClosed
	}

	for _, endpoint := range n.endpoints {
		if !shouldNotify(endpoint, ev) {
			continue
		}
		n.enqueue(eventJob{event: ev, endpoint: endpoint})
	}

	return nil
}

func (n *GenericNotifier) enqueue(job eventJob) {
	select {
	case n.eventQueue <- job:
		return
	default:
	}

	if n.cfg.DropPolicy == "oldest" {
		select {
		case <-n.eventQueue:
		default:
		}
		select {
		case n.eventQueue <- job:
			return
		default:
		}
	}
	n.logger.Error("webhook queue full, event dropped",
		slog.String("event_type", job.event.Type()),
		slog.String("endpoint", job.endpoint.name))
}

func shouldNotify(endpoint endpointConfig, event Event) bool {
	if len(endpoint.eventFilters) > 0 && !endpoint.eventFilters[event.Type()] {
		return false
	}
	if len(endpoint.brokerFilters) > 0 && !endpoint.brokerFilters[event.Broker()] {
		return false
	}
	return true
}

// worker processes events until Close, then flushes what is still queued.
func (n *GenericNotifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.ctx.Done():
			for {
				select {
				case job := <-n.eventQueue:
					n.processJob(job)
				default:
					return
				}
			}
		case job := <-n.eventQueue:
			n.processJob(job)
		}
	}
}

// processJob sends a webhook with retry logic.
func (n *GenericNotifier) processJob(job eventJob) {
	breaker := n.breakers[job.endpoint.name]

	_, err := breaker.Execute(func() (interface{}, error) {
		return nil, n.sendWebhook(job)
	})
	if err == nil {
		return
	}

	if job.attempt >= job.endpoint.retryConfig.MaxAttempts-1 || n.ctx.Err() != nil {
		n.logger.Error("webhook delivery failed",
			slog.String("endpoint", job.endpoint.name),
			slog.String("event_type", job.event.Type()),
			slog.Int("attempts", job.attempt+1),
			slog.String("error", err.Error()))
		return
	}

	job.attempt++
	delay := retryDelay(job.attempt, job.endpoint.retryConfig)

	n.logger.Debug("webhook delivery failed, retrying",
		slog.String("endpoint", job.endpoint.name),
		slog.String("event_type", job.event.Type()),
		slog.Int("attempt", job.attempt),
		slog.Duration("retry_after", delay),
		slog.String("error", err.Error()))

	time.AfterFunc(delay, func() {
		if n.ctx.Err() != nil {
			return
		}
		select {
		case n.eventQueue <- job:
		default:
			n.logger.Error("failed to requeue event for retry",
				slog.String("endpoint", job.endpoint.name),
				slog.String("event_type", job.event.Type()))
		}
	})
}

// sendWebhook marshals the event and delegates to the protocol-specific sender.
func (n *GenericNotifier) sendWebhook(job eventJob) error {
	payload, err := json.Marshal(job.event.Wrap(n.runnerID))
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), job.endpoint.timeout)
	defer cancel()

	if err := n.sender.Send(ctx, job.endpoint.url, job.endpoint.headers, payload, job.endpoint.timeout); err != nil {
		return err
	}

	n.logger.Debug("webhook delivered",
		slog.String("endpoint", job.endpoint.name),
		slog.String("event_type", job.event.Type()))

	return nil
}

// retryDelay returns the exponential backoff delay for attempt, capped at MaxInterval.
func retryDelay(attempt int, cfg config.RetryConfig) time.Duration {
	delay := float64(cfg.InitialInterval) * math.Pow(cfg.Multiplier, float64(attempt-1))
	if cfg.MaxInterval > 0 && delay > float64(cfg.MaxInterval) {
		delay = float64(cfg.MaxInterval)
	}
	return time.Duration(delay)
}

// Close stops accepting events and waits for queued ones to be sent.
func (n *GenericNotifier) Close() error {
	n.logger.Info("shutting down webhook notifier")

	n.cancel()

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	timeout := n.cfg.ShutdownTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	select {
	case <-done:
		n.logger.Info("webhook notifier stopped gracefully")
	case <-time.After(timeout):
		n.logger.Warn("webhook notifier shutdown timeout, some events may be lost",
			slog.Int("queue_depth", len(n.eventQueue)))
	}

	return nil
}
