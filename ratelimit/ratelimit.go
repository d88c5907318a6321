// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package ratelimit paces benchmark publishers.
package ratelimit

import (
	"github.com/absmach/mqbench/engine"
	"golang.org/x/time/rate"
)

// NewPublishLimiter creates a token bucket allowing ratePerSec publishes per second
// with the given burst. It returns nil when ratePerSec is not positive.
func NewPublishLimiter(ratePerSec float64, burst int) *rate.Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	if burst < 1 {
		burst = 1
	}
	return rate.NewLimiter(rate.Limit(ratePerSec), burst)
}

// PublisherFactory returns a constructor giving every publisher its own limiter,
// or nil when pacing is disabled.
func PublisherFactory(ratePerSec float64, burst int) func() engine.Limiter {
	if ratePerSec <= 0 {
		return nil
	}
	return func() engine.Limiter {
		return NewPublishLimiter(ratePerSec, burst)
	}
}
