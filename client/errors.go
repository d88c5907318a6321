// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import "errors"

// Client errors.
var (
	// Configuration errors.
	ErrEmptyClientID      = errors.New("client ID cannot be empty")
	ErrUnsupportedScheme  = errors.New("unsupported broker URL scheme")
	ErrUnsupportedVersion = errors.New("unsupported protocol version")

	// Connection errors.
	ErrNotConnected         = errors.New("client not connected")
	ErrConnectFailed        = errors.New("connection failed")
	ErrConnectRejected      = errors.New("connection rejected by broker")
	ErrConnectionFailure    = errors.New("worker exhausted its connection attempts")
	ErrDisconnectionFailure = errors.New("disconnection failed")

	// Operation errors.
	ErrPublishFailed   = errors.New("publish failed")
	ErrSubscribeFailed = errors.New("subscription failed")
)

// ConnAckCode is the CONNACK return code (MQTT 3.x) or reason code (MQTT 5.0).
type ConnAckCode byte

// Accepted CONNACK code. Every other value is a refusal.
const ConnAccepted ConnAckCode = 0x00

// MQTT 3.1.1 refusal codes.
const (
	ConnRefusedProtocol    ConnAckCode = 0x01
	ConnRefusedIDRejected  ConnAckCode = 0x02
	ConnRefusedUnavailable ConnAckCode = 0x03
	ConnRefusedBadAuth     ConnAckCode = 0x04
	ConnRefusedNotAuth     ConnAckCode = 0x05
)

// String returns a human-readable description of the code.
func (c ConnAckCode) String() string {
	switch c {
	case ConnAccepted:
		return "connection accepted"
	case ConnRefusedProtocol:
		return "unacceptable protocol version"
	case ConnRefusedIDRejected:
		return "client identifier rejected"
	case ConnRefusedUnavailable:
		return "server unavailable"
	case ConnRefusedBadAuth:
		return "bad username or password"
	case ConnRefusedNotAuth:
		return "not authorized"
	default:
		if c >= 0x80 {
			return "refused by broker (MQTT 5.0 reason code)"
		}
		return "unknown error"
	}
}

// Accepted reports whether the broker accepted the connection.
func (c ConnAckCode) Accepted() bool {
	return c == ConnAccepted
}
