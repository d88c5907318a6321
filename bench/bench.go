// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package bench orchestrates benchmark runs: it connects the workers, drives the load
// engine, observes the broker and turns every run into a result, including runs
// that fail.
package bench

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/absmach/mqbench/client"
	"github.com/absmach/mqbench/engine"
	"github.com/absmach/mqbench/message"
	"github.com/absmach/mqbench/monitor"
	"github.com/absmach/mqbench/ratelimit"
	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/scenario"
	"github.com/absmach/mqbench/storage"
	"github.com/absmach/mqbench/webhook"
	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// Error kinds a failed result may carry.
var (
	ErrConnectionFailure          = client.ErrConnectionFailure
	ErrDisconnectionFailure       = client.ErrDisconnectionFailure
	ErrPublishFailure             = engine.ErrPublishFailure
	ErrDeliveryTimeout            = engine.ErrDeliveryTimeout
	ErrPayloadDecode              = message.ErrPayloadDecode
	ErrUnsupportedProtocolVersion = scenario.ErrUnsupportedProtocolVersion

	// ErrBrokerUnavailable marks scenarios skipped after repeated failures on the same broker.
	ErrBrokerUnavailable = errors.New("broker unavailable")
	// ErrMonitor wraps resource monitor start failures.
	ErrMonitor = errors.New("resource monitor failure")
)

// Defaults.
const (
	DefaultBreakerThreshold  = 3
	DefaultBreakerCooldown   = 5 * time.Minute
	DefaultDisconnectTimeout = 10 * time.Second
)

const tracerName = "github.com/absmach/mqbench/bench"

// Metrics records run telemetry.
type Metrics interface {
	Observer(broker string) engine.Observer
	RecordRun(ctx context.Context, r results.Result)
}

// ProgressFunc receives engine progress for the running scenario.
type ProgressFunc func(s scenario.Scenario, p engine.Progress)

// Config holds orchestrator settings.
type Config struct {
	Engine engine.Config
	// PublishBurst is the token bucket burst of paced publishers.
	PublishBurst int
	// BreakerThreshold is the number of consecutive failed scenarios after which
	// the remaining scenarios of that broker are skipped.
	BreakerThreshold int
	// BreakerCooldown is how long a tripped broker stays skipped.
	BreakerCooldown   time.Duration
	DisconnectTimeout time.Duration
}

// Option configures a Runner.
type Option func(*Runner)

// WithFactory sets the wire client factory. Defaults to the paho clients.
func WithFactory(f client.Factory) Option {
	return func(r *Runner) { r.factory = f }
}

// WithMonitor sets the broker resource monitor.
func WithMonitor(m monitor.Monitor) Option {
	return func(r *Runner) { r.monitor = m }
}

// WithStore persists every result.
func WithStore(s storage.Store) Option {
	return func(r *Runner) { r.store = s }
}

// WithNotifier publishes every result as a webhook event.
func WithNotifier(n webhook.Notifier) Option {
	return func(r *Runner) { r.notifier = n }
}

// WithMetrics records run telemetry.
func WithMetrics(m Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithProgress reports load progress.
func WithProgress(fn ProgressFunc) Option {
	return func(r *Runner) { r.progress = fn }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// Runner executes benchmark scenarios.
type Runner struct {
	cfg      Config
	factory  client.Factory
	monitor  monitor.Monitor
	store    storage.Store
	notifier webhook.Notifier
	metrics  Metrics
	progress ProgressFunc
	tracer   trace.Tracer
	logger   *slog.Logger

	mu       sync.Mutex
	breakers map[string]*gobreaker.CircuitBreaker
}

// New creates a Runner.
func New(cfg Config, opts ...Option) *Runner {
	if cfg.Engine.Retry.Attempts <= 0 {
		cfg.Engine.Retry = client.DefaultRetry
	}
	if cfg.BreakerThreshold <= 0 {
		cfg.BreakerThreshold = DefaultBreakerThreshold
	}
	if cfg.BreakerCooldown <= 0 {
		cfg.BreakerCooldown = DefaultBreakerCooldown
	}
	if cfg.DisconnectTimeout <= 0 {
		cfg.DisconnectTimeout = DefaultDisconnectTimeout
	}

	r := &Runner{
		cfg:      cfg,
		factory:  client.Paho,
		monitor:  monitor.Noop{},
		notifier: webhook.Nop{},
		tracer:   otel.Tracer(tracerName),
		logger:   slog.Default(),
		breakers: make(map[string]*gobreaker.CircuitBreaker),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RunBenchmark runs one scenario. It never returns an error: failures are reported
// as results with status failed.
func (r *Runner) RunBenchmark(ctx context.Context, s scenario.Scenario) results.Result {
	s = s.WithDefaults()
	id := uuid.NewString()

	ctx, span := r.tracer.Start(ctx, "benchmark.run", trace.WithAttributes(
		attribute.String("benchmark.id", id),
		attribute.String("broker", s.Broker),
		attribute.String("mqtt.version", s.Version.String()),
		attribute.Int("publishers", s.Publishers),
		attribute.Int("subscribers", s.Subscribers),
		attribute.Int("messages", s.Messages),
		attribute.Int("message_size", s.MessageSize),
		attribute.Int("qos", int(s.QoS)),
	))
	defer span.End()

	logger := r.logger.With(slog.String("broker", s.Broker), slog.String("run_id", id))
	logger.Info("benchmark_started",
		slog.String("version", s.Version.String()),
		slog.Int("publishers", s.Publishers),
		slog.Int("subscribers", s.Subscribers),
		slog.Int("messages", s.Messages),
		slog.Int("message_size", s.MessageSize),
		slog.Int("qos", int(s.QoS)))

	res := r.run(ctx, id, s, logger)

	span.SetAttributes(
		attribute.String("status", string(res.Status)),
		attribute.Float64("score", res.Score),
		attribute.Int64("received", res.Received),
	)
	if res.Status == results.StatusFailed {
		span.SetStatus(codes.Error, res.Error)
		logger.Error("benchmark_failed", slog.String("error", res.Error))
	} else {
		logger.Info("benchmark_completed",
			slog.String("status", string(res.Status)),
			slog.Int64("sent", res.Sent),
			slog.Int64("received", res.Received),
			slog.Float64("throughput_mps", res.ThroughputMPS),
			slog.Float64("p99_latency_ms", res.P99LatencyMS),
			slog.Float64("score", res.Score))
	}

	r.record(ctx, res, logger)
	return res
}

func (r *Runner) run(ctx context.Context, id string, s scenario.Scenario, logger *slog.Logger) results.Result {
	startedAt := time.Now()

	if err := s.Validate(); err != nil {
		return results.Failed(id, s, startedAt, err, "")
	}

	if err := r.monitor.Start(ctx, s.Broker); err != nil {
		return results.Failed(id, s, startedAt, fmt.Errorf("%w: %w", ErrMonitor, err), "")
	}

	clients, connectDur, err := client.ConnectAll(ctx, r.factory, s, r.cfg.Engine.Retry)
	if err != nil {
		return r.fail(ctx, id, s, startedAt, clients, err, logger)
	}
	logger.Debug("workers_connected", slog.Int("workers", len(clients)), slog.Duration("took", connectDur))

	eng := engine.New(r.engineConfig(s), logger)
	subs, pubs := client.Split(s, clients)
	m, err := eng.Run(ctx, s, pubs, subs, message.Generate(s))
	if err != nil {
		return r.fail(ctx, id, s, startedAt, clients, err, logger)
	}

	disconnectDur, derr := r.disconnect(ctx, clients)
	usage := r.stopMonitor(ctx, logger)
	if derr != nil {
		return results.Failed(id, s, startedAt, derr, usage.LastError)
	}

	return results.Aggregate(results.Input{
		ID:          id,
		Scenario:    s,
		StartedAt:   startedAt,
		FinishedAt:  time.Now(),
		Connect:     connectDur,
		Disconnect:  disconnectDur,
		Measurement: m,
		Usage:       usage,
	})
}

func (r *Runner) engineConfig(s scenario.Scenario) engine.Config {
	cfg := r.cfg.Engine
	if f := ratelimit.PublisherFactory(s.PublishRate, r.cfg.PublishBurst); f != nil {
		cfg.NewLimiter = f
	}
	if r.metrics != nil {
		cfg.Observer = r.metrics.Observer(s.Broker)
	}
	if r.progress != nil {
		cfg.OnProgress = func(p engine.Progress) { r.progress(s, p) }
	}
	return cfg
}

// fail releases whatever was connected and builds the failed result.
func (r *Runner) fail(ctx context.Context, id string, s scenario.Scenario, startedAt time.Time, clients []client.Client, err error, logger *slog.Logger) results.Result {
	if _, derr := r.disconnect(ctx, clients); derr != nil {
		logger.Warn("cleanup_disconnect_failed", slog.String("error", derr.Error()))
	}
	usage := r.stopMonitor(ctx, logger)
	return results.Failed(id, s, startedAt, err, usage.LastError)
}

// disconnect runs even when ctx is already cancelled so connections are not leaked.
func (r *Runner) disconnect(ctx context.Context, clients []client.Client) (time.Duration, error) {
	dctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), r.cfg.DisconnectTimeout)
	defer cancel()
	return client.DisconnectAll(dctx, clients)
}

func (r *Runner) stopMonitor(ctx context.Context, logger *slog.Logger) monitor.Usage {
	usage, err := r.monitor.Stop(context.WithoutCancel(ctx))
	if err != nil {
		logger.Warn("monitor_stop_failed", slog.String("error", err.Error()))
	}
	return usage
}

// record hands the result to the store, the notifier and the metrics.
func (r *Runner) record(ctx context.Context, res results.Result, logger *slog.Logger) {
	ctx = context.WithoutCancel(ctx)
	if r.store != nil {
		if err := r.store.Save(ctx, res); err != nil {
			logger.Error("result_save_failed", slog.String("error", err.Error()))
		}
	}
	if err := r.notifier.Notify(ctx, webhook.ResultEvent(res)); err != nil {
		logger.Warn("result_notify_failed", slog.String("error", err.Error()))
	}
	if r.metrics != nil {
		r.metrics.RecordRun(ctx, res)
	}
}

// RunAll runs scenarios sequentially. A failed scenario never stops the others, but
// once a broker fails BreakerThreshold scenarios in a row its remaining scenarios
// are reported as failed with ErrBrokerUnavailable without being run. Cancelling
// ctx stops after the running scenario.
func (r *Runner) RunAll(ctx context.Context, scenarios []scenario.Scenario) []results.Result {
	out := make([]results.Result, 0, len(scenarios))
	for i, s := range scenarios {
		if ctx.Err() != nil {
			r.logger.Warn("benchmark_session_cancelled", slog.Int("remaining", len(scenarios)-i))
			break
		}

		var res results.Result
		_, err := r.breaker(s.Broker).Execute(func() (any, error) {
			res = r.RunBenchmark(ctx, s)
			if res.Status == results.StatusFailed {
				return nil, errors.New(res.Error)
			}
			return nil, nil
		})
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			res = results.Failed("", s.WithDefaults(), time.Now(), fmt.Errorf("%w: %s", ErrBrokerUnavailable, s.Broker), "")
			logger := r.logger.With(slog.String("broker", s.Broker), slog.String("run_id", res.ID))
			logger.Warn("benchmark_skipped", slog.String("error", res.Error))
			r.record(ctx, res, logger)
		}
		out = append(out, res)
	}
	return out
}

func (r *Runner) breaker(broker string) *gobreaker.CircuitBreaker {
	r.mu.Lock()
	defer r.mu.Unlock()

	cb, ok := r.breakers[broker]
	if ok {
		return cb
	}
	threshold := uint32(r.cfg.BreakerThreshold)
	cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        broker,
		MaxRequests: 1,
		Timeout:     r.cfg.BreakerCooldown,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= threshold
		},
		OnStateChange: func(name string, from, to gobreaker.State) {
			r.logger.Warn("broker_circuit_breaker_state_changed",
				slog.String("broker", name),
				slog.String("from", from.String()),
				slog.String("to", to.String()))
		},
	})
	r.breakers[broker] = cb
	return cb
}
