// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides an in-memory loopback broker whose clients implement
// client.Client, so benchmark runs can be exercised without a network.
package testutil

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"

	"github.com/absmach/mqbench/client"
	"github.com/absmach/mqbench/topics"
)

// ErrConnectionDropped is reported to OnConnectionLost handlers by Client.Drop.
var ErrConnectionDropped = errors.New("connection dropped by test broker")

// PublishHook runs after a publish has been routed. n is the 1-indexed count of
// publishes the broker has accepted so far.
type PublishHook func(b *Broker, c *Client, topic string, payload []byte, n int64)

// Option configures a Broker.
type Option func(*Broker)

// WithRejectedConnects refuses the first n connect attempts across all clients with
// code. A negative n refuses every attempt.
func WithRejectedConnects(n int, code client.ConnAckCode) Option {
	return func(b *Broker) {
		b.rejectFirst = n
		b.rejectCode = code
	}
}

// WithDropEvery acknowledges but never routes every n-th publish.
func WithDropEvery(n int64) Option {
	return func(b *Broker) {
		b.dropEvery = n
	}
}

// WithPublishError makes every publish fail with err.
func WithPublishError(err error) Option {
	return func(b *Broker) {
		b.publishErr = err
	}
}

// WithPublishHook installs fn to run after each routed publish.
func WithPublishHook(fn PublishHook) Option {
	return func(b *Broker) {
		b.hook = fn
	}
}

type subscription struct {
	client  *Client
	filter  string
	handler client.MessageHandler
}

// Broker routes publishes to matching subscriptions synchronously, in the calling
// goroutine, which keeps per-publisher ordering intact.
type Broker struct {
	mu      sync.RWMutex
	clients []*Client
	subs    []subscription

	attempts  atomic.Int64
	published atomic.Int64
	routed    atomic.Int64

	rejectFirst int
	rejectCode  client.ConnAckCode
	dropEvery   int64
	publishErr  error
	hook        PublishHook
}

// NewBroker creates a loopback broker.
func NewBroker(opts ...Option) *Broker {
	b := &Broker{rejectCode: client.ConnRefusedUnavailable}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Factory returns a client.Factory creating clients attached to b.
func (b *Broker) Factory() client.Factory {
	return client.FactoryFunc(func(opts client.Options) (client.Client, error) {
		if opts.ClientID == "" {
			return nil, client.ErrEmptyClientID
		}
		return b.NewClient(opts.ClientID), nil
	})
}

// NewClient creates a disconnected client attached to b.
func (b *Broker) NewClient(id string) *Client {
	c := &Client{id: id, broker: b}
	b.mu.Lock()
	b.clients = append(b.clients, c)
	b.mu.Unlock()
	return c
}

// Clients returns every client created so far.
func (b *Broker) Clients() []*Client {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return slices.Clone(b.clients)
}

// ConnectAttempts returns the number of Connect calls seen.
func (b *Broker) ConnectAttempts() int64 {
	return b.attempts.Load()
}

// Published returns the number of accepted publishes, dropped ones included.
func (b *Broker) Published() int64 {
	return b.published.Load()
}

// Routed returns the number of deliveries handed to subscription handlers.
func (b *Broker) Routed() int64 {
	return b.routed.Load()
}

// Inject delivers payload on topic to every matching subscription as if some
// client had published it.
func (b *Broker) Inject(topic string, payload []byte) {
	b.route(topic, payload)
}

func (b *Broker) connect() client.ConnAckCode {
	n := b.attempts.Add(1)
	if b.rejectFirst < 0 || n <= int64(b.rejectFirst) {
		return b.rejectCode
	}
	return client.ConnAccepted
}

func (b *Broker) route(topic string, payload []byte) {
	b.mu.RLock()
	subs := b.subs
	b.mu.RUnlock()

	for _, s := range subs {
		if !s.client.IsConnected() || !topics.Match(s.filter, topic) {
			continue
		}
		b.routed.Add(1)
		s.handler(topic, slices.Clone(payload))
	}
}

func (b *Broker) subscribe(c *Client, filter string, h client.MessageHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	// Copy on write so route can iterate without holding the lock. A repeated
	// subscription replaces the previous handler, as a session resubscribe does.
	subs := make([]subscription, 0, len(b.subs)+1)
	for _, s := range b.subs {
		if s.client != c || s.filter != filter {
			subs = append(subs, s)
		}
	}
	b.subs = append(subs, subscription{client: c, filter: filter, handler: h})
}

// Client is a loopback connection to a Broker.
type Client struct {
	id     string
	broker *Broker

	connected atomic.Bool
	mu        sync.Mutex
	lost      func(error)
}

var _ client.Client = (*Client)(nil)

func (c *Client) ID() string {
	return c.id
}

func (c *Client) Connect(ctx context.Context) (client.ConnAckCode, error) {
	if err := ctx.Err(); err != nil {
		return client.ConnRefusedUnavailable, fmt.Errorf("%w: %w", client.ErrConnectFailed, err)
	}
	code := c.broker.connect()
	if !code.Accepted() {
		return code, fmt.Errorf("%w: %s", client.ErrConnectRejected, code)
	}
	c.connected.Store(true)
	return code, nil
}

func (c *Client) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if !c.connected.Load() {
		return client.ErrNotConnected
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", client.ErrPublishFailed, err)
	}
	b := c.broker
	if b.publishErr != nil {
		return fmt.Errorf("%w: %w", client.ErrPublishFailed, b.publishErr)
	}

	n := b.published.Add(1)
	if b.dropEvery <= 0 || n%b.dropEvery != 0 {
		b.route(topic, payload)
	}
	if b.hook != nil {
		b.hook(b, c, topic, payload, n)
	}
	return nil
}

func (c *Client) Subscribe(ctx context.Context, filter string, qos byte, handler client.MessageHandler) error {
	if !c.connected.Load() {
		return client.ErrNotConnected
	}
	if err := topics.ValidateTopicFilter(filter); err != nil {
		return fmt.Errorf("%w: %w", client.ErrSubscribeFailed, err)
	}
	c.broker.subscribe(c, filter, handler)
	return nil
}

func (c *Client) Disconnect(ctx context.Context) error {
	c.connected.Store(false)
	return nil
}

func (c *Client) IsConnected() bool {
	return c.connected.Load()
}

func (c *Client) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	c.lost = fn
	c.mu.Unlock()
}

// Drop closes the connection without the client asking for it and fires the
// connection-lost handler.
func (c *Client) Drop() {
	if !c.connected.CompareAndSwap(true, false) {
		return
	}
	c.mu.Lock()
	fn := c.lost
	c.mu.Unlock()
	if fn != nil {
		fn(ErrConnectionDropped)
	}
}
