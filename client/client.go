// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package client is the boundary to the MQTT wire client. Benchmark workers only see
// the Client interface; the paho libraries provide the protocol implementation.
package client

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/url"
	"time"

	"github.com/absmach/mqbench/scenario"
	"github.com/google/uuid"
)

// MessageHandler receives every message delivered for a subscription. It may be
// called from transport goroutines and must not block for long.
type MessageHandler func(topic string, payload []byte)

// Client is one broker connection owned by exactly one worker.
type Client interface {
	// ID returns the client identifier sent in CONNECT.
	ID() string

	// Connect performs one connection attempt and returns the broker's CONNACK code.
	Connect(ctx context.Context) (ConnAckCode, error)

	// Publish sends one message and blocks until the QoS flow completes.
	Publish(ctx context.Context, topic string, payload []byte, qos byte, retain bool) error

	// Subscribe registers handler for filter and blocks until SUBACK.
	Subscribe(ctx context.Context, filter string, qos byte, handler MessageHandler) error

	// Disconnect closes the connection gracefully.
	Disconnect(ctx context.Context) error

	// IsConnected reports whether the connection is currently open.
	IsConnected() bool

	// OnConnectionLost sets the callback for unsolicited disconnects.
	OnConnectionLost(fn func(error))
}

// Factory creates unconnected clients.
type Factory interface {
	New(opts Options) (Client, error)
}

// FactoryFunc adapts a function to Factory.
type FactoryFunc func(opts Options) (Client, error)

// New implements Factory.
func (f FactoryFunc) New(opts Options) (Client, error) {
	return f(opts)
}

// Options configures a single client.
type Options struct {
	ClientID       string
	URL            string
	Version        scenario.ProtocolVersion
	CleanSession   bool
	Username       string
	Password       string
	KeepAlive      time.Duration
	ConnectTimeout time.Duration
	TLS            *tls.Config
}

// NewOptions derives client options from s with a freshly generated client ID.
func NewOptions(s scenario.Scenario) Options {
	s = s.WithDefaults()
	return Options{
		ClientID:       "mqbench-" + uuid.NewString(),
		URL:            s.URL(),
		Version:        s.Version,
		CleanSession:   s.CleanSession,
		Username:       s.Username,
		Password:       s.Password,
		KeepAlive:      s.KeepAlive,
		ConnectTimeout: s.ConnectTimeout,
		TLS:            s.TLS,
	}
}

// Validate checks required fields.
func (o Options) Validate() error {
	if o.ClientID == "" {
		return ErrEmptyClientID
	}
	if !o.Version.Valid() {
		return fmt.Errorf("%w: %s", ErrUnsupportedVersion, o.Version)
	}
	u, err := url.Parse(o.URL)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnsupportedScheme, err)
	}
	switch u.Scheme {
	case "tcp", "ssl", "tls", "ws", "wss":
	default:
		return fmt.Errorf("%w: %q", ErrUnsupportedScheme, u.Scheme)
	}
	return nil
}

// Paho is the default Factory: MQTT 3.1 and 3.1.1 clients are served by
// eclipse/paho.mqtt.golang, MQTT 5.0 clients by eclipse/paho.golang.
var Paho Factory = FactoryFunc(NewPaho)

// NewPaho creates a paho-backed client for opts.Version.
func NewPaho(opts Options) (Client, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	if opts.Version == scenario.V500 {
		return newV5(opts)
	}
	return newV3(opts), nil
}
