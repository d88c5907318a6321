// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/absmach/mqbench/config"
	"github.com/absmach/mqbench/engine"
	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBenchConfig(t *testing.T) {
	cfg := benchConfig(config.Default().Run)
	assert.Equal(t, 30*time.Second, cfg.Engine.DrainTimeout)
	assert.Equal(t, 4096, cfg.Engine.QueueSize)
	assert.Equal(t, 20, cfg.Engine.Retry.Attempts)
	assert.Equal(t, time.Second, cfg.Engine.Retry.Delay)
	assert.Equal(t, 1, cfg.PublishBurst)
	assert.Equal(t, 3, cfg.BreakerThreshold)
	assert.Equal(t, 5*time.Minute, cfg.BreakerCooldown)

	run := config.Default().Run
	run.BreakerCooldown = 30 * time.Second
	assert.Equal(t, 30*time.Second, benchConfig(run).BreakerCooldown)
}

func TestPrintResults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "results.jsonl")
	s := scenario.Scenario{Version: scenario.V311}
	rs := []results.Result{
		{ID: "r1", Broker: "fluxmq", Scenario: s, Status: results.StatusSuccess, Score: 80},
		{ID: "r2", Broker: "nanomq", Scenario: s, Status: results.StatusFailed, Error: "connection refused"},
	}

	var buf bytes.Buffer
	require.NoError(t, printResults(&buf, rs, path))
	require.NoError(t, printResults(&bytes.Buffer{}, rs[:1], path))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "id=r1 broker=fluxmq"))
	assert.True(t, strings.HasPrefix(lines[1], "{"))
	assert.Contains(t, lines[2], `error="connection refused"`)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	stored := strings.Split(strings.TrimSpace(string(data)), "\n")
	require.Len(t, stored, 3)
	var r results.Result
	require.NoError(t, json.Unmarshal([]byte(stored[2]), &r))
	assert.Equal(t, "r1", r.ID)
}

func TestWriteReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "report.md")
	rs := []results.Result{{ID: "r1", Broker: "fluxmq", Status: results.StatusSuccess, Score: 80}}
	require.NoError(t, writeReport(path, rs))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# MQTT Benchmark Results")
	assert.Contains(t, string(data), "| 1 | fluxmq | 80.00 | 1 |")
}

func TestProgressLine(t *testing.T) {
	var buf bytes.Buffer
	p := &progressLine{w: &buf}
	s := scenario.Scenario{Broker: "fluxmq", Version: scenario.V500}

	p.update(s, engine.Progress{Sent: 1000, Total: 2000, Received: 500, Expected: 4000})
	// Throttled: not the final update and within the refresh interval.
	p.update(s, engine.Progress{Sent: 1500, Total: 2000})
	p.update(s, engine.Progress{Sent: 2000, Total: 2000, Received: 4000, Expected: 4000})
	p.clear()

	out := buf.String()
	assert.Contains(t, out, "fluxmq v500: sent 1,000/2,000, received 500/4,000")
	assert.NotContains(t, out, "1,500")
	assert.Contains(t, out, "sent 2,000/2,000, received 4,000/4,000")
	assert.True(t, strings.HasSuffix(out, "\r\033[K"))

	buf.Reset()
	p.clear()
	assert.Empty(t, buf.String())
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	logger := newLogger(config.LogConfig{Level: "warn", Format: "json"}, &buf)
	logger.Info("hidden")
	logger.Warn("shown", "broker", "fluxmq")

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "shown", entry["msg"])
	assert.Equal(t, "fluxmq", entry["broker"])
}
