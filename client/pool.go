// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/absmach/mqbench/scenario"
	"golang.org/x/sync/errgroup"
)

// ConnectAll creates s.Workers() clients and connects them concurrently. Subscribers
// occupy indices [0, s.Subscribers) and publishers the rest; Split separates them.
// The returned duration covers the whole phase.
//
// On failure the returned slice still holds every client that was created, so the
// caller can disconnect those that did connect. No connect attempt is still running
// when ConnectAll returns. The error names the first worker that exhausted its
// retries.
func ConnectAll(ctx context.Context, f Factory, s scenario.Scenario, r Retry) ([]Client, time.Duration, error) {
	n := s.Workers()
	clients := make([]Client, n)
	start := time.Now()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	for i := range n {
		c, err := f.New(NewOptions(s))
		if err != nil {
			cancel()
			_ = g.Wait()
			return clients, time.Since(start), fmt.Errorf("%w: worker %d: %w", ErrConnectionFailure, i, err)
		}
		clients[i] = c
		g.Go(func() error {
			if _, err := ConnectWithRetry(gctx, c, r); err != nil {
				return fmt.Errorf("worker %d: %w", i, err)
			}
			return nil
		})
	}
	err := g.Wait()
	return clients, time.Since(start), err
}

// Split returns the subscriber and publisher workers of clients as laid out by
// ConnectAll.
func Split(s scenario.Scenario, clients []Client) (subscribers, publishers []Client) {
	n := min(s.Subscribers, len(clients))
	return clients[:n], clients[n:]
}

// DisconnectAll disconnects every connected client concurrently and returns the
// phase duration. Individual failures are joined into one ErrDisconnectionFailure.
func DisconnectAll(ctx context.Context, clients []Client) (time.Duration, error) {
	start := time.Now()
	errs := make([]error, len(clients))

	var g errgroup.Group
	for i, c := range clients {
		if c == nil || !c.IsConnected() {
			continue
		}
		g.Go(func() error {
			if err := c.Disconnect(ctx); err != nil {
				errs[i] = fmt.Errorf("worker %d: %w", i, err)
			}
			return nil
		})
	}
	_ = g.Wait()

	if err := errors.Join(errs...); err != nil {
		return time.Since(start), fmt.Errorf("%w: %w", ErrDisconnectionFailure, err)
	}
	return time.Since(start), nil
}
