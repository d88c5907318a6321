// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package bench_test

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/absmach/mqbench/bench"
	"github.com/absmach/mqbench/client"
	"github.com/absmach/mqbench/engine"
	"github.com/absmach/mqbench/monitor"
	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/scenario"
	"github.com/absmach/mqbench/storage"
	"github.com/absmach/mqbench/storage/memory"
	"github.com/absmach/mqbench/testutil"
	"github.com/absmach/mqbench/webhook"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fastRetry = client.Retry{Attempts: 2, Delay: time.Millisecond}

func testConfig() bench.Config {
	return bench.Config{
		Engine: engine.Config{
			DrainTimeout: 200 * time.Millisecond,
			Retry:        fastRetry,
		},
		BreakerThreshold: 2,
	}
}

func newScenario(broker string, port, pubs, subs, msgs int) scenario.Scenario {
	return scenario.Scenario{
		Broker:      broker,
		Host:        "localhost",
		Port:        port,
		Version:     scenario.V311,
		Publishers:  pubs,
		Subscribers: subs,
		Messages:    msgs,
		MessageSize: 32,
		QoS:         1,
	}
}

type recordingNotifier struct {
	mu     sync.Mutex
	events []webhook.Event
}

func (n *recordingNotifier) Notify(_ context.Context, e webhook.Event) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
	return nil
}

func (n *recordingNotifier) Close() error { return nil }

type fakeMonitor struct {
	startErr error
	usage    monitor.Usage
	started  []string
	stopped  int
}

func (m *fakeMonitor) Start(_ context.Context, broker string) error {
	m.started = append(m.started, broker)
	return m.startErr
}

func (m *fakeMonitor) Stop(context.Context) (monitor.Usage, error) {
	m.stopped++
	return m.usage, nil
}

type countingMetrics struct {
	mu   sync.Mutex
	runs []results.Result
}

func (m *countingMetrics) Observer(string) engine.Observer { return nil }

func (m *countingMetrics) RecordRun(_ context.Context, r results.Result) {
	m.mu.Lock()
	m.runs = append(m.runs, r)
	m.mu.Unlock()
}

func TestRunBenchmark(t *testing.T) {
	b := testutil.NewBroker()
	store := memory.New()
	notifier := &recordingNotifier{}
	mon := &fakeMonitor{usage: monitor.Usage{CPU: 12.5, Memory: 48}}
	metrics := &countingMetrics{}

	var mu sync.Mutex
	var last engine.Progress
	r := bench.New(testConfig(),
		bench.WithFactory(b.Factory()),
		bench.WithStore(store),
		bench.WithNotifier(notifier),
		bench.WithMonitor(mon),
		bench.WithMetrics(metrics),
		bench.WithProgress(func(_ scenario.Scenario, p engine.Progress) {
			mu.Lock()
			if p.Sent > last.Sent {
				last = p
			}
			mu.Unlock()
		}),
	)

	res := r.RunBenchmark(context.Background(), newScenario("loopback", 1883, 2, 2, 25))

	require.Equal(t, results.StatusSuccess, res.Status, res.Error)
	assert.NotEmpty(t, res.ID)
	assert.Equal(t, "loopback", res.Broker)
	assert.Equal(t, int64(50), res.Sent)
	assert.Equal(t, int64(100), res.Received)
	assert.Equal(t, 0.0, res.LossRate)
	assert.Equal(t, 12.5, res.CPU)
	assert.Equal(t, 48.0, res.MemoryMB)
	assert.Greater(t, res.Score, 0.0)
	assert.Equal(t, scenario.DefaultKeepAlive, res.Scenario.KeepAlive)

	assert.Equal(t, []string{"loopback"}, mon.started)
	assert.Equal(t, 1, mon.stopped)

	for _, c := range b.Clients() {
		assert.False(t, c.IsConnected(), "client %s left connected", c.ID())
	}

	stored, err := store.Get(context.Background(), res.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Received, stored.Received)

	require.Len(t, notifier.events, 1)
	assert.Equal(t, webhook.TypeBenchmarkCompleted, notifier.events[0].Type())
	require.Len(t, metrics.runs, 1)

	mu.Lock()
	assert.Equal(t, int64(50), last.Sent)
	assert.Equal(t, int64(100), last.Expected)
	mu.Unlock()
}

func TestRunBenchmarkPartial(t *testing.T) {
	b := testutil.NewBroker(testutil.WithDropEvery(3))
	r := bench.New(testConfig(), bench.WithFactory(b.Factory()))

	res := r.RunBenchmark(context.Background(), newScenario("lossy", 1883, 1, 1, 9))

	assert.Equal(t, results.StatusPartial, res.Status)
	assert.Equal(t, int64(9), res.Sent)
	assert.Equal(t, int64(6), res.Received)
	assert.InDelta(t, 1.0/3.0, res.LossRate, 1e-9)
	assert.True(t, res.Succeeded())
}

func TestRunBenchmarkInvalidScenario(t *testing.T) {
	b := testutil.NewBroker()
	mon := &fakeMonitor{}
	r := bench.New(testConfig(), bench.WithFactory(b.Factory()), bench.WithMonitor(mon))

	s := newScenario("loopback", 1883, 1, 1, 1)
	s.Version = scenario.ProtocolVersion(9)
	res := r.RunBenchmark(context.Background(), s)

	assert.Equal(t, results.StatusFailed, res.Status)
	assert.Contains(t, res.Error, bench.ErrUnsupportedProtocolVersion.Error())
	assert.Empty(t, mon.started)
	assert.Zero(t, b.ConnectAttempts())
}

func TestRunBenchmarkConnectionFailure(t *testing.T) {
	b := testutil.NewBroker(testutil.WithRejectedConnects(-1, client.ConnRefusedUnavailable))
	mon := &fakeMonitor{usage: monitor.Usage{LastError: "out of file descriptors"}}
	r := bench.New(testConfig(), bench.WithFactory(b.Factory()), bench.WithMonitor(mon))

	res := r.RunBenchmark(context.Background(), newScenario("down", 1883, 1, 1, 10))

	assert.Equal(t, results.StatusFailed, res.Status)
	assert.Contains(t, res.Error, bench.ErrConnectionFailure.Error())
	assert.Equal(t, "out of file descriptors", res.LastBrokerError)
	assert.Equal(t, 1, mon.stopped)
}

func TestRunBenchmarkPublishFailure(t *testing.T) {
	b := testutil.NewBroker(testutil.WithPublishError(errors.New("quota exceeded")))
	r := bench.New(testConfig(), bench.WithFactory(b.Factory()))

	res := r.RunBenchmark(context.Background(), newScenario("quota", 1883, 2, 1, 10))

	assert.Equal(t, results.StatusFailed, res.Status)
	assert.Contains(t, res.Error, bench.ErrPublishFailure.Error())
	for _, c := range b.Clients() {
		assert.False(t, c.IsConnected())
	}
}

func TestRunBenchmarkMonitorFailure(t *testing.T) {
	b := testutil.NewBroker()
	mon := &fakeMonitor{startErr: errors.New("container not found")}
	r := bench.New(testConfig(), bench.WithFactory(b.Factory()), bench.WithMonitor(mon))

	res := r.RunBenchmark(context.Background(), newScenario("ghost", 1883, 1, 0, 1))

	assert.Equal(t, results.StatusFailed, res.Status)
	assert.Contains(t, res.Error, "container not found")
	assert.Zero(t, b.ConnectAttempts())
}

func TestRunBenchmarkPacedPublishers(t *testing.T) {
	b := testutil.NewBroker()
	r := bench.New(testConfig(), bench.WithFactory(b.Factory()))

	s := newScenario("paced", 1883, 1, 1, 6)
	s.PublishRate = 100
	start := time.Now()
	res := r.RunBenchmark(context.Background(), s)

	require.Equal(t, results.StatusSuccess, res.Status, res.Error)
	// Five tokens beyond the initial burst at 100/s.
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

// routingFactory sends clients of the scenario on port 1884 to the failing broker.
func routingFactory(good, bad *testutil.Broker) client.Factory {
	return client.FactoryFunc(func(opts client.Options) (client.Client, error) {
		if strings.HasSuffix(opts.URL, ":1884") {
			return bad.Factory().New(opts)
		}
		return good.Factory().New(opts)
	})
}

func TestRunAll(t *testing.T) {
	good := testutil.NewBroker()
	bad := testutil.NewBroker(testutil.WithRejectedConnects(-1, client.ConnRefusedUnavailable))
	store := memory.New()
	notifier := &recordingNotifier{}
	r := bench.New(testConfig(),
		bench.WithFactory(routingFactory(good, bad)),
		bench.WithStore(store),
		bench.WithNotifier(notifier),
	)

	scenarios := []scenario.Scenario{
		newScenario("down", 1884, 1, 1, 5),
		newScenario("up", 1883, 1, 1, 5),
		newScenario("down", 1884, 1, 1, 5),
		newScenario("down", 1884, 1, 1, 5),
		newScenario("up", 1883, 2, 1, 5),
		newScenario("down", 1884, 1, 1, 5),
	}
	out := r.RunAll(context.Background(), scenarios)
	require.Len(t, out, len(scenarios))

	assert.Equal(t, results.StatusFailed, out[0].Status)
	assert.Contains(t, out[0].Error, bench.ErrConnectionFailure.Error())
	assert.Equal(t, results.StatusSuccess, out[1].Status)
	assert.Equal(t, results.StatusFailed, out[2].Status)
	assert.Contains(t, out[2].Error, bench.ErrConnectionFailure.Error())

	// The breaker tripped after two consecutive failures on "down".
	for _, i := range []int{3, 5} {
		assert.Equal(t, results.StatusFailed, out[i].Status)
		assert.Contains(t, out[i].Error, bench.ErrBrokerUnavailable.Error())
		assert.NotEmpty(t, out[i].ID)
	}
	// Skipped scenarios never create clients: two runs of two workers each.
	assert.Len(t, bad.Clients(), 4)
	assert.Equal(t, results.StatusSuccess, out[4].Status)
	assert.Equal(t, int64(10), out[4].Received)

	all, err := store.List(context.Background(), storage.Filter{})
	require.NoError(t, err)
	assert.Len(t, all, len(scenarios))
	failed, err := store.List(context.Background(), storage.Filter{Broker: "down", Status: results.StatusFailed})
	require.NoError(t, err)
	assert.Len(t, failed, 4)
	assert.Len(t, notifier.events, len(scenarios))

	ranked := results.Rank(out)
	require.Len(t, ranked, 2)
	assert.Equal(t, "up", ranked[0].Broker)
}

func TestRunAllCancelled(t *testing.T) {
	b := testutil.NewBroker()
	r := bench.New(testConfig(), bench.WithFactory(b.Factory()))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	out := r.RunAll(ctx, []scenario.Scenario{newScenario("loopback", 1883, 1, 1, 1)})
	assert.Empty(t, out)
}
