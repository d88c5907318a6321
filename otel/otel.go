// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"github.com/absmach/mqbench/config"
	mqtls "github.com/absmach/mqbench/pkg/tls"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"google.golang.org/grpc/credentials"
)

const (
	defaultExportInterval = 10 * time.Second
	exportTimeout         = 30 * time.Second
)

// Run describes the benchmark session exported telemetry belongs to.
type Run struct {
	ID        string
	Brokers   []string
	Scenarios int
}

// InitProvider installs the global tracer and meter providers for one benchmark
// session and returns their shutdown func, which flushes pending exports. With
// telemetry disabled the global providers stay no-ops.
func InitProvider(ctx context.Context, cfg config.TelemetryConfig, run Run) (func(context.Context) error, error) {
	if !cfg.Enabled {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
		return func(context.Context) error { return nil }, nil
	}

	res, err := newResource(ctx, cfg, run)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	creds, err := exporterCredentials(cfg.TLS)
	if err != nil {
		return nil, fmt.Errorf("failed to load exporter TLS: %w", err)
	}

	var shutdowns []func(context.Context) error
	shutdown := func(ctx context.Context) error {
		var errs []error
		for _, fn := range slices.Backward(shutdowns) {
			if err := fn(ctx); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	}

	if cfg.TracesEnabled {
		tp, err := newTracerProvider(ctx, cfg, res, creds)
		if err != nil {
			return nil, err
		}
		otel.SetTracerProvider(tp)
		shutdowns = append(shutdowns, tp.Shutdown)
	} else {
		otel.SetTracerProvider(tracenoop.NewTracerProvider())
	}

	if cfg.MetricsEnabled {
		mp, err := newMeterProvider(ctx, cfg, res, creds)
		if err != nil {
			_ = shutdown(ctx)
			return nil, err
		}
		otel.SetMeterProvider(mp)
		shutdowns = append(shutdowns, mp.Shutdown)
	}

	return shutdown, nil
}

// newResource tags every export with the session: runner id, the brokers under
// test, the scenario count and any configured attributes.
func newResource(ctx context.Context, cfg config.TelemetryConfig, run Run) (*resource.Resource, error) {
	attrs := []attribute.KeyValue{
		semconv.ServiceNameKey.String(cfg.ServiceName),
		semconv.ServiceVersionKey.String(cfg.ServiceVersion),
		semconv.ServiceInstanceIDKey.String(run.ID),
		attribute.StringSlice("mqbench.brokers", run.Brokers),
		attribute.Int("mqbench.scenarios", run.Scenarios),
	}
	keys := make([]string, 0, len(cfg.Attributes))
	for k := range cfg.Attributes {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		attrs = append(attrs, attribute.String(k, cfg.Attributes[k]))
	}

	return resource.New(ctx,
		resource.WithHost(),
		resource.WithAttributes(attrs...),
	)
}

// exporterCredentials returns nil for a plaintext collector.
func exporterCredentials(c mqtls.Config) (credentials.TransportCredentials, error) {
	if c.IsZero() {
		return nil, nil
	}
	tlsCfg, err := mqtls.LoadTLSConfig(c)
	if err != nil {
		return nil, err
	}
	return credentials.NewTLS(tlsCfg), nil
}

func exportInterval(cfg config.TelemetryConfig) time.Duration {
	if cfg.ExportInterval > 0 {
		return cfg.ExportInterval
	}
	return defaultExportInterval
}

func newTracerProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, creds credentials.TransportCredentials) (*trace.TracerProvider, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(cfg.Endpoint),
		otlptracegrpc.WithTimeout(exportTimeout),
	}
	if creds != nil {
		opts = append(opts, otlptracegrpc.WithTLSCredentials(creds))
	} else {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create trace exporter: %w", err)
	}

	// One span per benchmark run: small batches flushed on the export interval.
	return trace.NewTracerProvider(
		trace.WithResource(res),
		trace.WithSampler(trace.ParentBased(trace.TraceIDRatioBased(cfg.TraceSampleRate))),
		trace.WithBatcher(exporter,
			trace.WithMaxExportBatchSize(64),
			trace.WithBatchTimeout(exportInterval(cfg)),
		),
	), nil
}

func newMeterProvider(ctx context.Context, cfg config.TelemetryConfig, res *resource.Resource, creds credentials.TransportCredentials) (*metric.MeterProvider, error) {
	opts := []otlpmetricgrpc.Option{
		otlpmetricgrpc.WithEndpoint(cfg.Endpoint),
		otlpmetricgrpc.WithTimeout(exportTimeout),
	}
	if creds != nil {
		opts = append(opts, otlpmetricgrpc.WithTLSCredentials(creds))
	} else {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create metric exporter: %w", err)
	}

	return metric.NewMeterProvider(
		metric.WithResource(res),
		metric.WithReader(metric.NewPeriodicReader(exporter,
			metric.WithInterval(exportInterval(cfg)),
		)),
	), nil
}
