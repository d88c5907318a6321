// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"net/url"
	"sync"
	"sync/atomic"

	"github.com/absmach/mqbench/topics"
	"github.com/eclipse/paho.golang/paho"
)

type route struct {
	filter  string
	handler MessageHandler
}

// v5 drives MQTT 5.0 connections through eclipse/paho.golang. The library binds a
// client to one net.Conn, so every Connect attempt dials and builds a new one.
type v5 struct {
	opts Options
	addr *url.URL

	mu     sync.RWMutex
	client *paho.Client
	conn   net.Conn
	routes []route
	lost   func(error)

	connected atomic.Bool
}

func newV5(opts Options) (*v5, error) {
	u, err := url.Parse(opts.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnsupportedScheme, err)
	}
	return &v5{opts: opts, addr: u}, nil
}

func (c *v5) ID() string {
	return c.opts.ClientID
}

func (c *v5) Connect(ctx context.Context) (ConnAckCode, error) {
	if c.opts.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.opts.ConnectTimeout)
		defer cancel()
	}

	conn, err := dial(ctx, c.addr, c.opts.TLS)
	if err != nil {
		return ConnRefusedUnavailable, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	// Loss callbacks are bound to the client that raised them, so a late error from
	// a replaced connection cannot tear down its successor.
	var pc *paho.Client
	pc = paho.NewClient(paho.ClientConfig{
		ClientID: c.opts.ClientID,
		Conn:     conn,
		OnPublishReceived: []func(paho.PublishReceived) (bool, error){
			func(pr paho.PublishReceived) (bool, error) {
				c.dispatch(pr.Packet.Topic, pr.Packet.Payload)
				return true, nil
			},
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			c.connectionLost(pc, fmt.Errorf("server disconnect: reason 0x%02x", d.ReasonCode))
		},
		OnClientError: func(err error) {
			c.connectionLost(pc, err)
		},
	})

	cp := &paho.Connect{
		ClientID:   c.opts.ClientID,
		KeepAlive:  uint16(c.opts.KeepAlive.Seconds()),
		CleanStart: c.opts.CleanSession,
	}
	if c.opts.Username != "" {
		cp.Username = c.opts.Username
		cp.UsernameFlag = true
		cp.Password = []byte(c.opts.Password)
		cp.PasswordFlag = true
	}

	ack, err := pc.Connect(ctx, cp)
	if err != nil {
		conn.Close()
		if ack != nil && ack.ReasonCode != 0 {
			code := ConnAckCode(ack.ReasonCode)
			return code, fmt.Errorf("%w: 0x%02x: %w", ErrConnectRejected, ack.ReasonCode, err)
		}
		return ConnRefusedUnavailable, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}

	c.mu.Lock()
	stale := c.conn
	c.client = pc
	c.conn = conn
	c.mu.Unlock()
	if stale != nil {
		stale.Close()
	}
	c.connected.Store(true)
	return ConnAccepted, nil
}

func (c *v5) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	pc, err := c.active()
	if err != nil {
		return err
	}
	_, err = pc.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Retain:  retain,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (c *v5) Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error {
	pc, err := c.active()
	if err != nil {
		return err
	}

	// The route must exist before SUBACK: retained messages may follow it immediately.
	prev := c.setRoute(filter, handler)

	ack, err := pc.Subscribe(ctx, &paho.Subscribe{
		Subscriptions: []paho.SubscribeOptions{{Topic: filter, QoS: qos}},
	})
	if err != nil {
		c.restoreRoute(filter, prev)
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if ack != nil && len(ack.Reasons) > 0 && ack.Reasons[0] >= 0x80 {
		c.restoreRoute(filter, prev)
		return fmt.Errorf("%w: %s rejected with 0x%02x", ErrSubscribeFailed, filter, ack.Reasons[0])
	}
	return nil
}

func (c *v5) Disconnect(ctx context.Context) error {
	if !c.connected.CompareAndSwap(true, false) {
		return nil
	}
	c.mu.RLock()
	pc := c.client
	c.mu.RUnlock()
	if pc == nil {
		return nil
	}

	done := make(chan error, 1)
	go func() {
		done <- pc.Disconnect(&paho.Disconnect{ReasonCode: 0})
	}()
	select {
	case err := <-done:
		if err != nil {
			return fmt.Errorf("%w: %w", ErrDisconnectionFailure, err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDisconnectionFailure, ctx.Err())
	}
}

func (c *v5) IsConnected() bool {
	return c.connected.Load()
}

func (c *v5) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	c.lost = fn
	c.mu.Unlock()
}

func (c *v5) active() (*paho.Client, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.connected.Load() || c.client == nil {
		return nil, ErrNotConnected
	}
	return c.client, nil
}

func (c *v5) dispatch(topic string, payload []byte) {
	c.mu.RLock()
	routes := c.routes
	c.mu.RUnlock()
	for _, r := range routes {
		if topics.Match(r.filter, topic) {
			r.handler(topic, payload)
		}
	}
}

// setRoute installs handler for filter, replacing any handler already bound to it,
// and returns the replaced one.
func (c *v5) setRoute(filter string, handler MessageHandler) MessageHandler {
	c.mu.Lock()
	defer c.mu.Unlock()
	routes := make([]route, 0, len(c.routes)+1)
	var prev MessageHandler
	for _, r := range c.routes {
		if r.filter == filter {
			prev = r.handler
			continue
		}
		routes = append(routes, r)
	}
	c.routes = append(routes, route{filter: filter, handler: handler})
	return prev
}

func (c *v5) restoreRoute(filter string, prev MessageHandler) {
	c.mu.Lock()
	defer c.mu.Unlock()
	routes := make([]route, 0, len(c.routes))
	for _, r := range c.routes {
		if r.filter != filter {
			routes = append(routes, r)
		}
	}
	if prev != nil {
		routes = append(routes, route{filter: filter, handler: prev})
	}
	c.routes = routes
}

// connectionLost fires the loss callback once per established connection and
// closes that connection so its paho client shuts down. Reports from a client that
// is no longer current are ignored. A client-initiated Disconnect clears the flag
// first, so it never reports.
func (c *v5) connectionLost(pc *paho.Client, err error) {
	c.mu.Lock()
	if c.client != pc || !c.connected.CompareAndSwap(true, false) {
		c.mu.Unlock()
		return
	}
	conn := c.conn
	c.client = nil
	c.conn = nil
	fn := c.lost
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	if fn != nil {
		fn(err)
	}
}

func dial(ctx context.Context, u *url.URL, cfg *tls.Config) (net.Conn, error) {
	switch u.Scheme {
	case "tcp", "mqtt":
		var d net.Dialer
		return d.DialContext(ctx, "tcp", u.Host)
	case "ssl", "tls", "mqtts":
		d := tls.Dialer{Config: clientTLS(cfg, u)}
		return d.DialContext(ctx, "tcp", u.Host)
	case "ws", "wss":
		return dialWebSocket(ctx, u, cfg)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
}

// clientTLS returns cfg with ServerName defaulted to the dialed host.
func clientTLS(cfg *tls.Config, u *url.URL) *tls.Config {
	if cfg == nil {
		return &tls.Config{ServerName: u.Hostname()}
	}
	if cfg.ServerName != "" {
		return cfg
	}
	c := cfg.Clone()
	c.ServerName = u.Hostname()
	return c
}
