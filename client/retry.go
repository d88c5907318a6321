// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package client

import (
	"context"
	"fmt"
	"time"
)

// Retry is a fixed-delay connection retry policy.
type Retry struct {
	// Attempts is the total number of connection attempts, including the first.
	Attempts int
	// Delay is the pause between consecutive attempts.
	Delay time.Duration
}

// DefaultRetry makes 20 attempts one second apart.
var DefaultRetry = Retry{Attempts: 20, Delay: time.Second}

// ConnectWithRetry connects c, retrying refused or failed attempts according to r.
// It returns the number of attempts made. Cancelling ctx stops the retry loop
// between attempts.
func ConnectWithRetry(ctx context.Context, c Client, r Retry) (int, error) {
	attempts := max(r.Attempts, 1)

	var lastErr error
	for i := 1; i <= attempts; i++ {
		_, err := c.Connect(ctx)
		if err == nil {
			return i, nil
		}
		lastErr = err
		if i == attempts {
			break
		}

		timer := time.NewTimer(r.Delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return i, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnectionFailure, c.ID(), i, ctx.Err())
		case <-timer.C:
		}
	}
	return attempts, fmt.Errorf("%w: %s after %d attempts: %w", ErrConnectionFailure, c.ID(), attempts, lastErr)
}
