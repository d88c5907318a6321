// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package ratelimit

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewPublishLimiter(t *testing.T) {
	assert.Nil(t, NewPublishLimiter(0, 10))
	assert.Nil(t, NewPublishLimiter(-1, 10))

	l := NewPublishLimiter(5, 2)
	require.NotNil(t, l)

	// Burst of two is available immediately, the third must wait.
	assert.True(t, l.Allow())
	assert.True(t, l.Allow())
	assert.False(t, l.Allow())

	time.Sleep(250 * time.Millisecond)
	assert.True(t, l.Allow())
}

func TestNewPublishLimiter_MinimumBurst(t *testing.T) {
	l := NewPublishLimiter(100, 0)
	require.NotNil(t, l)
	assert.Equal(t, 1, l.Burst())
}

func TestPublisherFactory(t *testing.T) {
	assert.Nil(t, PublisherFactory(0, 1))

	f := PublisherFactory(1000, 1)
	require.NotNil(t, f)
	a, b := f(), f()
	assert.NotSame(t, a, b, "every publisher owns its limiter")

	ctx := context.Background()
	start := time.Now()
	for range 11 {
		require.NoError(t, a.Wait(ctx))
	}
	// Ten tokens at 1000/s take about 10ms.
	assert.GreaterOrEqual(t, time.Since(start), 8*time.Millisecond)
}

func TestLimiterWaitCancelled(t *testing.T) {
	l := NewPublishLimiter(0.1, 1)
	require.True(t, l.Allow())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.Error(t, l.Wait(ctx))
}
