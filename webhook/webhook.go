// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package webhook delivers benchmark results to HTTP endpoints.
package webhook

import (
	"context"
	"time"
)

// Notifier sends webhook notifications asynchronously.
type Notifier interface {
	// Notify queues an event for every matching endpoint (non-blocking).
	Notify(ctx context.Context, event Event) error

	// Close gracefully shuts down, flushing pending events.
	Close() error
}

// Sender is the protocol-specific sender interface.
type Sender interface {
	// Send delivers payload to url. Returns error if the send fails.
	Send(ctx context.Context, url string, headers map[string]string, payload []byte, timeout time.Duration) error
}

// Nop discards every event.
type Nop struct{}

func (Nop) Notify(context.Context, Event) error { return nil }
func (Nop) Close() error                        { return nil }
