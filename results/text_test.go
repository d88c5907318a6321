// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package results

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSummaryLine(t *testing.T) {
	r := Result{
		ID:            "run-7",
		Broker:        "fluxmq",
		Scenario:      testScenario(2, 3, 10, 1),
		Status:        StatusSuccess,
		Sent:          20,
		Received:      60,
		ThroughputMPS: 1000,
		Score:         71.25,
		ElapsedMS:     1500,
	}
	line := SummaryLine(r)
	assert.Contains(t, line, "id=run-7 broker=fluxmq status=success version=v311")
	assert.Contains(t, line, "sent=20 expected=60 received=60")
	assert.Contains(t, line, "mps_sent=1000.00")
	assert.Contains(t, line, "score=71.25 duration_ms=1500")
	assert.NotContains(t, line, "error=")

	failed := Failed("run-8", testScenario(1, 1, 1, 0), time.Now(), errors.New("connection refused"), "")
	assert.Contains(t, SummaryLine(failed), `status=failed`)
	assert.Contains(t, SummaryLine(failed), `error="connection refused"`)
}

func TestWriteRanking(t *testing.T) {
	rs := []Result{
		{Broker: "mosquitto", Status: StatusSuccess, Score: 40},
		{Broker: "fluxmq", Status: StatusSuccess, Score: 80},
		{Broker: "nanomq", Status: StatusFailed},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteRanking(&buf, rs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, []string{"RANK", "BROKER", "AVG", "SCORE", "RUNS"}, strings.Fields(lines[0]))
	assert.Equal(t, []string{"1", "fluxmq", "80.00", "1"}, strings.Fields(lines[1]))
	assert.Equal(t, []string{"2", "mosquitto", "40.00", "1"}, strings.Fields(lines[2]))
}

func TestWriteTable(t *testing.T) {
	at := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rs := []Result{
		{ID: "a", Broker: "fluxmq", Status: StatusPartial, StartedAt: at, Scenario: testScenario(1, 2, 3, 2), ThroughputMPS: 1500, LossRate: 0.25, Score: 55},
	}
	var buf bytes.Buffer
	require.NoError(t, WriteTable(&buf, rs))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, []string{"a", "fluxmq", "partial", "2024-05-01T12:00:00Z", "v311", "1/2/3", "2", "1,500", "0", "25%", "55"}, strings.Fields(lines[1]))
}
