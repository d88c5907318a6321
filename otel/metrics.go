// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package otel

import (
	"context"
	"fmt"
	"time"

	"github.com/absmach/mqbench/engine"
	"github.com/absmach/mqbench/results"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/absmach/mqbench"

// Metrics holds OpenTelemetry metric instruments for benchmark runs.
type Metrics struct {
	meter metric.Meter

	// Counters
	messagesSent     metric.Int64Counter
	bytesSent        metric.Int64Counter
	messagesReceived metric.Int64Counter
	reconnections    metric.Int64Counter
	outOfOrder       metric.Int64Counter
	runs             metric.Int64Counter

	// Histograms
	latency metric.Float64Histogram
	score   metric.Float64Histogram
}

// NewMetrics creates the instruments on mp, or on the global provider when mp is nil.
func NewMetrics(mp metric.MeterProvider) (*Metrics, error) {
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	m := &Metrics{meter: mp.Meter(meterName)}

	var err error
	if m.messagesSent, err = m.meter.Int64Counter(
		"mqbench.messages.sent",
		metric.WithDescription("Messages published by benchmark publishers"),
	); err != nil {
		return nil, fmt.Errorf("failed to create messagesSent counter: %w", err)
	}

	if m.bytesSent, err = m.meter.Int64Counter(
		"mqbench.bytes.sent",
		metric.WithDescription("Payload bytes published, metadata header included"),
		metric.WithUnit("By"),
	); err != nil {
		return nil, fmt.Errorf("failed to create bytesSent counter: %w", err)
	}

	if m.messagesReceived, err = m.meter.Int64Counter(
		"mqbench.messages.received",
		metric.WithDescription("Messages delivered to benchmark subscribers"),
	); err != nil {
		return nil, fmt.Errorf("failed to create messagesReceived counter: %w", err)
	}

	if m.reconnections, err = m.meter.Int64Counter(
		"mqbench.reconnections",
		metric.WithDescription("Worker connections re-established during a run"),
	); err != nil {
		return nil, fmt.Errorf("failed to create reconnections counter: %w", err)
	}

	if m.outOfOrder, err = m.meter.Int64Counter(
		"mqbench.out_of_order",
		metric.WithDescription("Out-of-order observations"),
	); err != nil {
		return nil, fmt.Errorf("failed to create outOfOrder counter: %w", err)
	}

	if m.runs, err = m.meter.Int64Counter(
		"mqbench.runs",
		metric.WithDescription("Completed benchmark runs by status"),
	); err != nil {
		return nil, fmt.Errorf("failed to create runs counter: %w", err)
	}

	if m.latency, err = m.meter.Float64Histogram(
		"mqbench.latency.ms",
		metric.WithDescription("End-to-end delivery latency in milliseconds"),
		metric.WithUnit("ms"),
	); err != nil {
		return nil, fmt.Errorf("failed to create latency histogram: %w", err)
	}

	if m.score, err = m.meter.Float64Histogram(
		"mqbench.score",
		metric.WithDescription("Performance score of successful runs"),
	); err != nil {
		return nil, fmt.Errorf("failed to create score histogram: %w", err)
	}

	return m, nil
}

// Observer returns an engine observer that tags every measurement with broker.
func (m *Metrics) Observer(broker string) engine.Observer {
	return &observer{
		m:      m,
		broker: metric.WithAttributes(attribute.String("broker", broker)),
		qos: [3]metric.AddOption{
			metric.WithAttributes(attribute.String("broker", broker), attribute.Int("qos", 0)),
			metric.WithAttributes(attribute.String("broker", broker), attribute.Int("qos", 1)),
			metric.WithAttributes(attribute.String("broker", broker), attribute.Int("qos", 2)),
		},
	}
}

// RecordRun records the outcome of one benchmark.
func (m *Metrics) RecordRun(ctx context.Context, r results.Result) {
	m.runs.Add(ctx, 1, metric.WithAttributes(
		attribute.String("broker", r.Broker),
		attribute.String("status", string(r.Status)),
	))
	if r.Status == results.StatusFailed {
		return
	}
	broker := metric.WithAttributes(attribute.String("broker", r.Broker))
	m.score.Record(ctx, r.Score, broker)
	if r.OutOfOrder > 0 {
		m.outOfOrder.Add(ctx, r.OutOfOrder, broker)
	}
}

type observer struct {
	m      *Metrics
	broker metric.MeasurementOption
	qos    [3]metric.AddOption
}

func (o *observer) Published(qos byte, size int) {
	ctx := context.Background()
	opt := o.broker
	if int(qos) < len(o.qos) {
		o.m.messagesSent.Add(ctx, 1, o.qos[qos])
	} else {
		o.m.messagesSent.Add(ctx, 1, opt)
	}
	o.m.bytesSent.Add(ctx, int64(size), opt)
}

func (o *observer) Delivered(latency time.Duration) {
	ctx := context.Background()
	o.m.messagesReceived.Add(ctx, 1, o.broker)
	o.m.latency.Record(ctx, float64(latency)/float64(time.Millisecond), o.broker)
}

func (o *observer) Reconnected() {
	o.m.reconnections.Add(context.Background(), 1, o.broker)
}
