// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"runtime"
	"sync"
	"syscall"
	"time"

	"github.com/absmach/mqbench/bench"
	"github.com/absmach/mqbench/client"
	"github.com/absmach/mqbench/config"
	"github.com/absmach/mqbench/engine"
	"github.com/absmach/mqbench/monitor"
	"github.com/absmach/mqbench/otel"
	mqtls "github.com/absmach/mqbench/pkg/tls"
	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/scenario"
	"github.com/absmach/mqbench/storage/backend"
	"github.com/absmach/mqbench/webhook"
	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"golang.org/x/term"
)

const version = "0.1.0"

func main() {
	configFile := flag.String("config", "", "Path to configuration file")
	jsonOut := flag.String("json-out", "", "Optional file to append one JSON line per result")
	reportOut := flag.String("report", "", "Optional file to write a markdown report to")
	list := flag.Bool("list", false, "Print the generated scenarios and exit")
	flag.Parse()

	cfg, err := config.Load(*configFile)
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log, os.Stderr)
	slog.SetDefault(logger)

	scenarios, err := cfg.Scenarios()
	if err != nil {
		slog.Error("Failed to generate scenarios", "error", err)
		os.Exit(1)
	}

	if *list {
		for _, s := range scenarios {
			fmt.Println(s)
		}
		return
	}

	if err := run(cfg, scenarios, *jsonOut, *reportOut, logger); err != nil {
		slog.Error("Benchmark failed", "error", err)
		os.Exit(1)
	}
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	logLevel := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: logLevel})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: logLevel})
	}
	return slog.New(handler)
}

func run(cfg *config.Config, scenarios []scenario.Scenario, jsonOut, reportOut string, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	runnerID := uuid.NewString()
	slog.Info("Starting MQTT benchmark", "version", version, "runner_id", runnerID)
	for _, b := range cfg.Brokers {
		tlsCfg, err := mqtls.LoadTLSConfig(b.TLS)
		if err != nil {
			return fmt.Errorf("broker %s: failed to load TLS configuration: %w", b.Name, err)
		}
		slog.Info("Broker configured",
			"name", b.Name,
			"address", fmt.Sprintf("%s:%d", b.Host, b.Port),
			"scheme", b.Scheme,
			"tls", mqtls.SecurityStatus(tlsCfg))
	}
	slog.Info("Configuration loaded",
		"scenarios", len(scenarios),
		"storage", cfg.Storage.Type,
		"drain_timeout", cfg.Run.DrainTimeout,
		"webhooks", cfg.Webhook.Enabled,
		"monitor", cfg.Monitor.Enabled,
		"telemetry", cfg.Telemetry.Enabled)

	brokers := make([]string, len(cfg.Brokers))
	for i, b := range cfg.Brokers {
		brokers[i] = b.Name
	}
	shutdownTelemetry, err := otel.InitProvider(ctx, cfg.Telemetry, otel.Run{
		ID:        runnerID,
		Brokers:   brokers,
		Scenarios: len(scenarios),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize telemetry: %w", err)
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTelemetry(shutdownCtx); err != nil {
			slog.Error("Failed to shutdown telemetry", "error", err)
		}
	}()

	metrics, err := otel.NewMetrics(nil)
	if err != nil {
		return fmt.Errorf("failed to create metrics: %w", err)
	}

	store, err := backend.Open(cfg.Storage)
	if err != nil {
		return fmt.Errorf("failed to open result store: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			slog.Error("Failed to close result store", "error", err)
		}
	}()

	var notifier webhook.Notifier = webhook.Nop{}
	if cfg.Webhook.Enabled {
		n, err := webhook.NewNotifier(cfg.Webhook, runnerID, webhook.NewHTTPSender(), logger)
		if err != nil {
			return fmt.Errorf("failed to create webhook notifier: %w", err)
		}
		notifier = n
		slog.Info("Webhook notifier started", "endpoints", len(cfg.Webhook.Endpoints), "workers", cfg.Webhook.Workers)
	}
	defer func() {
		if err := notifier.Close(); err != nil {
			slog.Error("Failed to close webhook notifier", "error", err)
		}
	}()

	var mon monitor.Monitor = monitor.Noop{}
	if cfg.Monitor.Enabled {
		probe, err := monitor.NewHTTPProbe(cfg.Monitor.URL, cfg.Monitor.Timeout)
		if err != nil {
			return fmt.Errorf("failed to create resource monitor: %w", err)
		}
		mon = monitor.NewSampler(probe, cfg.Monitor.Interval, logger)
	}

	opts := []bench.Option{
		bench.WithFactory(client.Paho),
		bench.WithStore(store),
		bench.WithNotifier(notifier),
		bench.WithMetrics(metrics),
		bench.WithMonitor(mon),
		bench.WithLogger(logger),
	}
	var progress *progressLine
	if term.IsTerminal(int(os.Stdout.Fd())) {
		progress = &progressLine{w: os.Stdout}
		opts = append(opts, bench.WithProgress(progress.update))
	}

	runner := bench.New(benchConfig(cfg.Run), opts...)
	rs := runner.RunAll(ctx, scenarios)
	if progress != nil {
		progress.clear()
	}

	if err := printResults(os.Stdout, rs, jsonOut); err != nil {
		return err
	}
	fmt.Println()
	if err := results.WriteRanking(os.Stdout, rs); err != nil {
		return err
	}

	if reportOut != "" {
		if err := writeReport(reportOut, rs); err != nil {
			return err
		}
		slog.Info("Report written", "path", reportOut)
	}

	if errors.Is(ctx.Err(), context.Canceled) {
		slog.Warn("Benchmark interrupted", "completed", len(rs), "scenarios", len(scenarios))
	}
	return nil
}

func benchConfig(cfg config.RunConfig) bench.Config {
	return bench.Config{
		Engine: engine.Config{
			DrainTimeout: cfg.DrainTimeout,
			QueueSize:    cfg.QueueSize,
			Retry:        client.Retry{Attempts: cfg.ConnectAttempts, Delay: cfg.ConnectDelay},
		},
		PublishBurst:     cfg.PublishBurst,
		BreakerThreshold: cfg.BreakerThreshold,
		BreakerCooldown:  cfg.BreakerCooldown,
	}
}

func printResults(w io.Writer, rs []results.Result, jsonOut string) error {
	for _, r := range rs {
		fmt.Fprintln(w, results.SummaryLine(r))
		line, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("failed to marshal result %s: %w", r.ID, err)
		}
		fmt.Fprintln(w, string(line))

		if jsonOut != "" {
			if err := appendJSONLine(jsonOut, line); err != nil {
				return err
			}
		}
	}
	return nil
}

func appendJSONLine(path string, line []byte) error {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open json output %s: %w", path, err)
	}
	defer f.Close()

	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("failed to write json line: %w", err)
	}
	if _, err := f.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}
	return nil
}

func writeReport(path string, rs []results.Result) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create report %s: %w", path, err)
	}
	if err := results.WriteMarkdown(f, rs, machineInfo()); err != nil {
		f.Close()
		return fmt.Errorf("failed to write report: %w", err)
	}
	return f.Close()
}

func machineInfo() string {
	host, _ := os.Hostname()
	return fmt.Sprintf("%s (%s/%s, %d CPUs, %s)", host, runtime.GOOS, runtime.GOARCH, runtime.NumCPU(), runtime.Version())
}

// progressLine renders load progress in place on a terminal.
type progressLine struct {
	mu     sync.Mutex
	w      io.Writer
	last   time.Time
	active bool
}

func (p *progressLine) update(s scenario.Scenario, pr engine.Progress) {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := time.Now()
	if now.Sub(p.last) < 100*time.Millisecond && pr.Sent < pr.Total {
		return
	}
	p.last = now
	p.active = true
	fmt.Fprintf(p.w, "\r\033[K%s %s: sent %s/%s, received %s/%s",
		s.Broker, s.Version,
		humanize.Comma(pr.Sent), humanize.Comma(pr.Total),
		humanize.Comma(pr.Received), humanize.Comma(pr.Expected))
}

func (p *progressLine) clear() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.active {
		fmt.Fprint(p.w, "\r\033[K")
		p.active = false
	}
}
