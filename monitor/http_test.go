// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package monitor

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		switch r.URL.Query().Get("broker") {
		case "fluxmq":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"cpu_percent": 42.5, "memory_mb": 128, "last_error": "slow consumer"}`))
		case "garbage":
			_, _ = w.Write([]byte(`not json`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	p, err := NewHTTPProbe(server.URL+"/stats?format=json", time.Second)
	require.NoError(t, err)

	s, err := p.Sample(context.Background(), "fluxmq")
	require.NoError(t, err)
	assert.Equal(t, Sample{CPU: 42.5, Memory: 128, LastError: "slow consumer"}, s)

	_, err = p.Sample(context.Background(), "unknown")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 404")

	_, err = p.Sample(context.Background(), "garbage")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to decode stats")
}

func TestNewHTTPProbeInvalid(t *testing.T) {
	_, err := NewHTTPProbe("ftp://localhost/stats", time.Second)
	assert.Error(t, err)
	_, err = NewHTTPProbe("://bad", time.Second)
	assert.Error(t, err)
}

func TestSamplerWithHTTPProbe(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"cpu_percent": 10, "memory_mb": 64, "last_error": "client kicked"}`))
	}))
	defer server.Close()

	p, err := NewHTTPProbe(server.URL, time.Second)
	require.NoError(t, err)
	s := NewSampler(p, 5*time.Millisecond, nil)
	require.NoError(t, s.Start(context.Background(), "emqx"))
	assert.Eventually(t, func() bool {
		s.mu.Lock()
		defer s.mu.Unlock()
		return len(s.cpu) >= 2
	}, 2*time.Second, 5*time.Millisecond)

	u, err := s.Stop(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 10.0, u.CPU)
	assert.Equal(t, 64.0, u.Memory)
	assert.Equal(t, "client kicked", u.LastError)
}
