// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package scenario

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ErrInvalidScenario is wrapped by every Validate failure.
var ErrInvalidScenario = errors.New("invalid scenario")

// Default connection settings used when a scenario leaves them unset.
const (
	DefaultKeepAlive      = 60 * time.Second
	DefaultConnectTimeout = 60 * time.Second
)

// Scenario describes one benchmark run against one broker.
// It is treated as an immutable value; copies are passed around freely.
type Scenario struct {
	Broker         string          `json:"broker" yaml:"broker"`
	Host           string          `json:"host" yaml:"host"`
	Port           int             `json:"port" yaml:"port"`
	Scheme         string          `json:"scheme,omitempty" yaml:"scheme,omitempty"`
	Version        ProtocolVersion `json:"version" yaml:"version"`
	CleanSession   bool            `json:"clean_session" yaml:"clean_session"`
	Username       string          `json:"username,omitempty" yaml:"username,omitempty"`
	Password       string          `json:"-" yaml:"-"`
	KeepAlive      time.Duration   `json:"keep_alive" yaml:"keep_alive"`
	ConnectTimeout time.Duration   `json:"connect_timeout" yaml:"connect_timeout"`
	Publishers     int             `json:"publishers" yaml:"publishers"`
	Subscribers    int             `json:"subscribers" yaml:"subscribers"`
	Messages       int             `json:"messages" yaml:"messages"`
	MessageSize    int             `json:"message_size" yaml:"message_size"`
	QoS            byte            `json:"qos" yaml:"qos"`
	Retain         bool            `json:"retain" yaml:"retain"`

	// PublishRate caps messages per second per publisher; 0 means unlimited.
	PublishRate float64 `json:"publish_rate,omitempty" yaml:"publish_rate,omitempty"`

	// TLS is used by ssl, tls and wss connections. Nil selects the system defaults.
	TLS *tls.Config `json:"-" yaml:"-"`
}

// Workers returns the number of connections the scenario needs (P+S).
func (s Scenario) Workers() int {
	return s.Publishers + s.Subscribers
}

// TotalSends returns P·C, the number of messages publishers intend to send.
func (s Scenario) TotalSends() int64 {
	return int64(s.Publishers) * int64(s.Messages)
}

// ExpectedDeliveries returns S·P·C, the deliveries expected across all subscribers
// when the broker loses nothing.
func (s Scenario) ExpectedDeliveries() int64 {
	return int64(s.Subscribers) * s.TotalSends()
}

// Addr returns the broker host:port.
func (s Scenario) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// URL returns the broker URL including the transport scheme (tcp by default).
func (s Scenario) URL() string {
	scheme := s.Scheme
	if scheme == "" {
		scheme = "tcp"
	}
	return scheme + "://" + s.Addr()
}

// WithDefaults fills zero keep-alive, connect timeout and version values.
func (s Scenario) WithDefaults() Scenario {
	if s.KeepAlive == 0 {
		s.KeepAlive = DefaultKeepAlive
	}
	if s.ConnectTimeout == 0 {
		s.ConnectTimeout = DefaultConnectTimeout
	}
	if s.Version == 0 {
		s.Version = V311
	}
	return s
}

// Validate checks the scenario invariants.
func (s Scenario) Validate() error {
	if s.Host == "" {
		return fmt.Errorf("%w: host cannot be empty", ErrInvalidScenario)
	}
	if s.Port < 1 || s.Port > 65535 {
		return fmt.Errorf("%w: port %d out of range", ErrInvalidScenario, s.Port)
	}
	if !s.Version.Valid() {
		return fmt.Errorf("%w: level %d", ErrUnsupportedProtocolVersion, byte(s.Version))
	}
	switch s.Scheme {
	case "", "tcp", "ssl", "tls", "ws", "wss":
	default:
		return fmt.Errorf("%w: unknown scheme %q", ErrInvalidScenario, s.Scheme)
	}
	if s.Publishers < 0 || s.Subscribers < 0 || s.Messages < 0 {
		return fmt.Errorf("%w: publisher, subscriber and message counts must not be negative", ErrInvalidScenario)
	}
	if s.MessageSize < 0 {
		return fmt.Errorf("%w: message size must not be negative", ErrInvalidScenario)
	}
	if s.QoS > 2 {
		return fmt.Errorf("%w: qos %d not in 0..2", ErrInvalidScenario, s.QoS)
	}
	if s.PublishRate < 0 {
		return fmt.Errorf("%w: publish rate must not be negative", ErrInvalidScenario)
	}
	if s.KeepAlive < 0 || s.ConnectTimeout < 0 {
		return fmt.Errorf("%w: durations must not be negative", ErrInvalidScenario)
	}
	return nil
}

func (s Scenario) String() string {
	return fmt.Sprintf("%s on %s with %s, %d publishers, %d subscribers, %d messages (%d bytes), QoS %d, retain %v",
		s.Broker, s.Addr(), s.Version, s.Publishers, s.Subscribers, s.Messages, s.MessageSize, s.QoS, s.Retain)
}
