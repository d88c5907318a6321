// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

// disconnectQuiesce is how long Disconnect lets in-flight work finish, in milliseconds.
const disconnectQuiesce = 250

// v3 drives MQTT 3.1 and 3.1.1 connections through eclipse/paho.mqtt.golang.
type v3 struct {
	id     string
	client paho.Client

	mu   sync.RWMutex
	lost func(error)
}

func newV3(opts Options) *v3 {
	c := &v3{id: opts.ClientID}

	po := paho.NewClientOptions().
		AddBroker(opts.URL).
		SetClientID(opts.ClientID).
		SetCleanSession(opts.CleanSession).
		SetProtocolVersion(uint(opts.Version.Level())).
		SetKeepAlive(opts.KeepAlive).
		SetConnectTimeout(opts.ConnectTimeout).
		SetAutoReconnect(false).
		SetConnectRetry(false).
		// Handlers must run in delivery order so per-subscriber queues see
		// messages the way the broker sent them.
		SetOrderMatters(true).
		SetConnectionLostHandler(func(_ paho.Client, err error) {
			c.mu.RLock()
			fn := c.lost
			c.mu.RUnlock()
			if fn != nil {
				fn(err)
			}
		})
	if opts.TLS != nil {
		po.SetTLSConfig(opts.TLS)
	}
	if opts.Username != "" {
		po.SetUsername(opts.Username)
		po.SetPassword(opts.Password)
	}

	c.client = paho.NewClient(po)
	return c
}

func (c *v3) ID() string {
	return c.id
}

func (c *v3) Connect(ctx context.Context) (ConnAckCode, error) {
	tok := c.client.Connect()
	if err := wait(ctx, tok); err != nil {
		code := ConnRefusedUnavailable
		if ct, ok := tok.(*paho.ConnectToken); ok {
			code = ConnAckCode(ct.ReturnCode())
		}
		if code != ConnAccepted {
			return code, fmt.Errorf("%w: %s: %w", ErrConnectRejected, code, err)
		}
		return code, fmt.Errorf("%w: %w", ErrConnectFailed, err)
	}
	return ConnAccepted, nil
}

func (c *v3) Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	if err := wait(ctx, c.client.Publish(topic, qos, retain, payload)); err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	return nil
}

func (c *v3) Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error {
	if !c.client.IsConnectionOpen() {
		return ErrNotConnected
	}
	cb := func(_ paho.Client, m paho.Message) {
		handler(m.Topic(), m.Payload())
	}
	tok := c.client.Subscribe(filter, qos, cb)
	if err := wait(ctx, tok); err != nil {
		return fmt.Errorf("%w: %w", ErrSubscribeFailed, err)
	}
	if st, ok := tok.(*paho.SubscribeToken); ok {
		if granted, ok := st.Result()[filter]; ok && granted >= 0x80 {
			return fmt.Errorf("%w: %s rejected with 0x%02x", ErrSubscribeFailed, filter, granted)
		}
	}
	return nil
}

func (c *v3) Disconnect(ctx context.Context) error {
	if !c.client.IsConnected() {
		return nil
	}
	done := make(chan struct{})
	go func() {
		c.client.Disconnect(disconnectQuiesce)
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("%w: %w", ErrDisconnectionFailure, ctx.Err())
	}
}

func (c *v3) IsConnected() bool {
	return c.client.IsConnectionOpen()
}

func (c *v3) OnConnectionLost(fn func(error)) {
	c.mu.Lock()
	c.lost = fn
	c.mu.Unlock()
}

// wait blocks until tok completes or ctx ends.
func wait(ctx context.Context, tok paho.Token) error {
	select {
	case <-tok.Done():
		return tok.Error()
	case <-ctx.Done():
		return ctx.Err()
	}
}
