// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNoop(t *testing.T) {
	var m Monitor = Noop{}
	require.NoError(t, m.Start(context.Background(), "fluxmq"))
	u, err := m.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Usage{}, u)
}

func TestSamplerAverages(t *testing.T) {
	var n atomic.Int64
	probe := ProbeFunc(func(_ context.Context, broker string) (Sample, error) {
		assert.Equal(t, "fluxmq", broker)
		i := n.Add(1)
		if i%2 == 0 {
			return Sample{CPU: 20, Memory: 200}, nil
		}
		return Sample{CPU: 10, Memory: 100}, nil
	})

	s := NewSampler(probe, time.Millisecond, nil)
	require.NoError(t, s.Start(context.Background(), "fluxmq"))
	assert.Eventually(t, func() bool { return n.Load() >= 4 }, time.Second, time.Millisecond)

	u, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 15, u.CPU, 5)
	assert.InDelta(t, 150, u.Memory, 50)
	assert.Empty(t, u.LastError)

	_, err = s.Stop(context.Background())
	assert.ErrorIs(t, err, ErrNotStarted)
}

func TestSamplerKeepsLastError(t *testing.T) {
	var calls atomic.Int64
	probe := ProbeFunc(func(context.Context, string) (Sample, error) {
		calls.Add(1)
		return Sample{}, errors.New("container not running")
	})

	s := NewSampler(probe, time.Millisecond, nil)
	require.NoError(t, s.Start(context.Background(), "nanomq"))
	assert.Eventually(t, func() bool { return calls.Load() >= 2 }, time.Second, time.Millisecond)

	u, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "container not running", u.LastError)
	assert.Zero(t, u.CPU)
}
