// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"fmt"
	"os"
	"time"

	mqtls "github.com/absmach/mqbench/pkg/tls"
	"github.com/absmach/mqbench/scenario"
	"gopkg.in/yaml.v3"
)

// Config holds all configuration for a benchmark session.
type Config struct {
	Brokers   []BrokerConfig  `yaml:"brokers"`
	Matrix    MatrixConfig    `yaml:"matrix"`
	Run       RunConfig       `yaml:"run"`
	Monitor   MonitorConfig   `yaml:"monitor"`
	Log       LogConfig       `yaml:"log"`
	Storage   StorageConfig   `yaml:"storage"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Webhook   WebhookConfig   `yaml:"webhook"`
}

// BrokerConfig describes one broker under test.
type BrokerConfig struct {
	Name     string `yaml:"name"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	Scheme   string `yaml:"scheme"` // tcp, ssl, tls, ws, wss
	Username string `yaml:"username"`
	Password string `yaml:"password"`

	TLS mqtls.Config `yaml:"tls"`
}

// MatrixConfig holds the parameter ranges scenarios are generated from.
// A dimension is varied only when listed in Vary.
type MatrixConfig struct {
	Versions      []string `yaml:"versions"` // v310, v311, v500
	Publishers    []int    `yaml:"publishers"`
	Subscribers   []int    `yaml:"subscribers"`
	Messages      []int    `yaml:"messages"`
	MessageSizes  []int    `yaml:"message_sizes"`
	QoS           []int    `yaml:"qos"`
	Retain        []bool   `yaml:"retain"`
	CleanSessions []bool   `yaml:"clean_sessions"`

	// Vary names the dimensions to expand: versions, publishers, subscribers,
	// messages, message_sizes, qos, retain, clean_sessions.
	Vary []string `yaml:"vary"`

	KeepAlive      time.Duration `yaml:"keep_alive"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	PublishRate    float64       `yaml:"publish_rate"` // messages/s per publisher, 0 = unlimited
}

// RunConfig holds engine and orchestrator settings.
type RunConfig struct {
	DrainTimeout     time.Duration `yaml:"drain_timeout"`
	QueueSize        int           `yaml:"queue_size"`
	ConnectAttempts  int           `yaml:"connect_attempts"`
	ConnectDelay     time.Duration `yaml:"connect_delay"`
	PublishBurst     int           `yaml:"publish_burst"`
	BreakerThreshold int           `yaml:"breaker_threshold"` // consecutive failed scenarios per broker
	BreakerCooldown  time.Duration `yaml:"breaker_cooldown"`  // how long a tripped broker is skipped
}

// MonitorConfig holds the broker resource monitor settings.
type MonitorConfig struct {
	Enabled  bool          `yaml:"enabled"`
	URL      string        `yaml:"url"` // stats endpoint, queried with ?broker=<name>
	Interval time.Duration `yaml:"interval"`
	Timeout  time.Duration `yaml:"timeout"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // text, json
}

// StorageConfig holds storage backend configuration.
type StorageConfig struct {
	Type string `yaml:"type"` // memory, badger, sqlite

	BadgerDir  string `yaml:"badger_dir"`
	SQLitePath string `yaml:"sqlite_path"`
}

// TelemetryConfig holds OpenTelemetry configuration.
type TelemetryConfig struct {
	Enabled         bool              `yaml:"enabled"`
	Endpoint        string            `yaml:"endpoint"` // OTLP gRPC endpoint
	ServiceName     string            `yaml:"service_name"`
	ServiceVersion  string            `yaml:"service_version"`
	MetricsEnabled  bool              `yaml:"metrics_enabled"`
	TracesEnabled   bool              `yaml:"traces_enabled"`
	TraceSampleRate float64           `yaml:"trace_sample_rate"` // 0.0 to 1.0
	ExportInterval  time.Duration     `yaml:"export_interval"`
	Attributes      map[string]string `yaml:"attributes"` // extra resource attributes, e.g. lab or build
	TLS             mqtls.Config      `yaml:"tls"`        // collector TLS, plaintext when empty
}

// WebhookConfig holds webhook notification configuration.
type WebhookConfig struct {
	Enabled         bool              `yaml:"enabled"`
	QueueSize       int               `yaml:"queue_size"`
	DropPolicy      string            `yaml:"drop_policy"`      // "oldest" or "newest"
	Workers         int               `yaml:"workers"`          // Number of worker goroutines
	ShutdownTimeout time.Duration     `yaml:"shutdown_timeout"` // Graceful shutdown timeout
	Defaults        WebhookDefaults   `yaml:"defaults"`
	Endpoints       []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookDefaults holds default settings for webhook endpoints.
type WebhookDefaults struct {
	Timeout        time.Duration        `yaml:"timeout"`
	Retry          RetryConfig          `yaml:"retry"`
	CircuitBreaker CircuitBreakerConfig `yaml:"circuit_breaker"`
}

// RetryConfig holds retry configuration for webhook delivery.
type RetryConfig struct {
	MaxAttempts     int           `yaml:"max_attempts"`
	InitialInterval time.Duration `yaml:"initial_interval"`
	MaxInterval     time.Duration `yaml:"max_interval"`
	Multiplier      float64       `yaml:"multiplier"`
}

// CircuitBreakerConfig holds circuit breaker configuration.
type CircuitBreakerConfig struct {
	FailureThreshold int           `yaml:"failure_threshold"`
	ResetTimeout     time.Duration `yaml:"reset_timeout"`
}

// WebhookEndpoint defines a single webhook endpoint configuration.
type WebhookEndpoint struct {
	Name    string            `yaml:"name"`
	URL     string            `yaml:"url"`
	Events  []string          `yaml:"events"`  // Event type filter (empty = all)
	Brokers []string          `yaml:"brokers"` // Broker name filter (empty = all)
	Headers map[string]string `yaml:"headers"`
	Timeout time.Duration     `yaml:"timeout,omitempty"` // Override default
	Retry   *RetryConfig      `yaml:"retry,omitempty"`   // Override default
}

// Default returns a configuration with sensible defaults.
func Default() *Config {
	return &Config{
		Brokers: []BrokerConfig{
			{Name: "local", Host: "localhost", Port: 1883, Scheme: "tcp"},
		},
		Matrix: MatrixConfig{
			Versions:       []string{"v311"},
			Publishers:     []int{scenario.DefaultPublishers},
			Subscribers:    []int{scenario.DefaultSubscribers},
			Messages:       []int{scenario.DefaultMessages},
			MessageSizes:   []int{scenario.DefaultMessageSize},
			QoS:            []int{scenario.DefaultQoS},
			KeepAlive:      scenario.DefaultKeepAlive,
			ConnectTimeout: scenario.DefaultConnectTimeout,
		},
		Run: RunConfig{
			DrainTimeout:     30 * time.Second,
			QueueSize:        4096,
			ConnectAttempts:  20,
			ConnectDelay:     time.Second,
			PublishBurst:     1,
			BreakerThreshold: 3,
			BreakerCooldown:  5 * time.Minute,
		},
		Monitor: MonitorConfig{
			Enabled:  false,
			Interval: time.Second,
			Timeout:  2 * time.Second,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		Storage: StorageConfig{
			Type:       "memory",
			BadgerDir:  "/tmp/mqbench/data",
			SQLitePath: "/tmp/mqbench/results.db",
		},
		Telemetry: TelemetryConfig{
			Enabled:         false,
			Endpoint:        "localhost:4317",
			ServiceName:     "mqbench",
			ServiceVersion:  "1.0.0",
			MetricsEnabled:  true,
			TracesEnabled:   false,
			TraceSampleRate: 1.0,
			ExportInterval:  10 * time.Second,
		},
		Webhook: WebhookConfig{
			Enabled:         false,
			QueueSize:       1000,
			DropPolicy:      "oldest",
			Workers:         2,
			ShutdownTimeout: 30 * time.Second,
			Defaults: WebhookDefaults{
				Timeout: 5 * time.Second,
				Retry: RetryConfig{
					MaxAttempts:     3,
					InitialInterval: 1 * time.Second,
					MaxInterval:     30 * time.Second,
					Multiplier:      2.0,
				},
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					ResetTimeout:     60 * time.Second,
				},
			},
			Endpoints: []WebhookEndpoint{},
		},
	}
}

// Load loads configuration from a YAML file.
// If the file doesn't exist, returns default configuration.
func Load(filename string) (*Config, error) {
	if filename == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

var varyDimensions = map[string]bool{
	"versions":       true,
	"publishers":     true,
	"subscribers":    true,
	"messages":       true,
	"message_sizes":  true,
	"qos":            true,
	"retain":         true,
	"clean_sessions": true,
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if len(c.Brokers) == 0 {
		return fmt.Errorf("at least one broker must be configured")
	}
	names := make(map[string]bool, len(c.Brokers))
	for i, b := range c.Brokers {
		if b.Name == "" {
			return fmt.Errorf("brokers[%d].name cannot be empty", i)
		}
		if names[b.Name] {
			return fmt.Errorf("brokers[%d].name %q is duplicated", i, b.Name)
		}
		names[b.Name] = true
		if b.Host == "" {
			return fmt.Errorf("brokers[%d].host cannot be empty", i)
		}
		if b.Port < 1 || b.Port > 65535 {
			return fmt.Errorf("brokers[%d].port must be between 1 and 65535", i)
		}
		switch b.Scheme {
		case "", "tcp", "ssl", "tls", "ws", "wss":
		default:
			return fmt.Errorf("brokers[%d].scheme must be one of: tcp, ssl, tls, ws, wss", i)
		}
	}

	for _, v := range c.Matrix.Versions {
		if _, err := scenario.ParseProtocolVersion(v); err != nil {
			return fmt.Errorf("matrix.versions: %w", err)
		}
	}
	for _, q := range c.Matrix.QoS {
		if q < 0 || q > 2 {
			return fmt.Errorf("matrix.qos values must be 0, 1 or 2")
		}
	}
	for _, d := range c.Matrix.Vary {
		if !varyDimensions[d] {
			return fmt.Errorf("matrix.vary: unknown dimension %q", d)
		}
	}
	if c.Matrix.PublishRate < 0 {
		return fmt.Errorf("matrix.publish_rate cannot be negative")
	}

	if c.Run.DrainTimeout < time.Second {
		return fmt.Errorf("run.drain_timeout must be at least 1 second")
	}
	if c.Run.QueueSize < 1 {
		return fmt.Errorf("run.queue_size must be at least 1")
	}
	if c.Run.ConnectAttempts < 1 {
		return fmt.Errorf("run.connect_attempts must be at least 1")
	}
	if c.Run.ConnectDelay < 0 {
		return fmt.Errorf("run.connect_delay cannot be negative")
	}
	if c.Run.BreakerThreshold < 1 {
		return fmt.Errorf("run.breaker_threshold must be at least 1")
	}
	if c.Run.BreakerCooldown < time.Second {
		return fmt.Errorf("run.breaker_cooldown must be at least 1 second")
	}

	if c.Monitor.Enabled {
		if c.Monitor.URL == "" {
			return fmt.Errorf("monitor.url cannot be empty when monitor is enabled")
		}
		if c.Monitor.Interval <= 0 {
			return fmt.Errorf("monitor.interval must be positive")
		}
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Log.Level] {
		return fmt.Errorf("log.level must be one of: debug, info, warn, error")
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[c.Log.Format] {
		return fmt.Errorf("log.format must be one of: text, json")
	}

	validStorage := map[string]bool{"memory": true, "badger": true, "sqlite": true}
	if !validStorage[c.Storage.Type] {
		return fmt.Errorf("storage.type must be one of: memory, badger, sqlite")
	}
	if c.Storage.Type == "badger" && c.Storage.BadgerDir == "" {
		return fmt.Errorf("storage.badger_dir required when type is badger")
	}
	if c.Storage.Type == "sqlite" && c.Storage.SQLitePath == "" {
		return fmt.Errorf("storage.sqlite_path required when type is sqlite")
	}

	if c.Telemetry.Enabled {
		if c.Telemetry.ServiceName == "" {
			return fmt.Errorf("telemetry.service_name cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.Endpoint == "" {
			return fmt.Errorf("telemetry.endpoint cannot be empty when telemetry is enabled")
		}
		if c.Telemetry.TraceSampleRate < 0.0 || c.Telemetry.TraceSampleRate > 1.0 {
			return fmt.Errorf("telemetry.trace_sample_rate must be between 0.0 and 1.0")
		}
		if c.Telemetry.ExportInterval < time.Second {
			return fmt.Errorf("telemetry.export_interval must be at least 1 second")
		}
	}

	// Webhook validation (only if enabled)
	if c.Webhook.Enabled {
		if c.Webhook.QueueSize < 1 {
			return fmt.Errorf("webhook.queue_size must be at least 1")
		}
		if c.Webhook.DropPolicy != "oldest" && c.Webhook.DropPolicy != "newest" {
			return fmt.Errorf("webhook.drop_policy must be 'oldest' or 'newest'")
		}
		if c.Webhook.Workers < 1 {
			return fmt.Errorf("webhook.workers must be at least 1")
		}
		if c.Webhook.ShutdownTimeout < time.Second {
			return fmt.Errorf("webhook.shutdown_timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Timeout < time.Second {
			return fmt.Errorf("webhook.defaults.timeout must be at least 1 second")
		}
		if c.Webhook.Defaults.Retry.MaxAttempts < 1 {
			return fmt.Errorf("webhook.defaults.retry.max_attempts must be at least 1")
		}
		if c.Webhook.Defaults.Retry.Multiplier < 1.0 {
			return fmt.Errorf("webhook.defaults.retry.multiplier must be at least 1.0")
		}
		if c.Webhook.Defaults.CircuitBreaker.FailureThreshold < 1 {
			return fmt.Errorf("webhook.defaults.circuit_breaker.failure_threshold must be at least 1")
		}

		for i, endpoint := range c.Webhook.Endpoints {
			if endpoint.Name == "" {
				return fmt.Errorf("webhook.endpoints[%d].name cannot be empty", i)
			}
			if endpoint.URL == "" {
				return fmt.Errorf("webhook.endpoints[%d].url cannot be empty", i)
			}
		}
	}

	return nil
}

// Targets returns the configured brokers as scenario targets, loading their TLS
// material.
func (c *Config) Targets() ([]scenario.Target, error) {
	out := make([]scenario.Target, len(c.Brokers))
	for i, b := range c.Brokers {
		tlsCfg, err := mqtls.LoadTLSConfig(b.TLS)
		if err != nil {
			return nil, fmt.Errorf("brokers[%d].tls: %w", i, err)
		}
		out[i] = scenario.Target{
			Name:     b.Name,
			Host:     b.Host,
			Port:     b.Port,
			Scheme:   b.Scheme,
			Username: b.Username,
			Password: b.Password,
			TLS:      tlsCfg,
		}
	}
	return out, nil
}

// ScenarioMatrix converts the matrix section.
func (c *Config) ScenarioMatrix() scenario.Matrix {
	vary := make(map[string]bool, len(c.Matrix.Vary))
	for _, d := range c.Matrix.Vary {
		vary[d] = true
	}
	return scenario.Matrix{
		Versions:          c.Matrix.Versions,
		Publishers:        c.Matrix.Publishers,
		Subscribers:       c.Matrix.Subscribers,
		Messages:          c.Matrix.Messages,
		MessageSizes:      c.Matrix.MessageSizes,
		QoS:               c.Matrix.QoS,
		Retain:            c.Matrix.Retain,
		CleanSessions:     c.Matrix.CleanSessions,
		VaryVersions:      vary["versions"],
		VaryPublishers:    vary["publishers"],
		VarySubscribers:   vary["subscribers"],
		VaryMessages:      vary["messages"],
		VaryMessageSizes:  vary["message_sizes"],
		VaryQoS:           vary["qos"],
		VaryRetain:        vary["retain"],
		VaryCleanSessions: vary["clean_sessions"],
		KeepAlive:         c.Matrix.KeepAlive,
		ConnectTimeout:    c.Matrix.ConnectTimeout,
		PublishRate:       c.Matrix.PublishRate,
	}
}

// Scenarios generates every scenario the configuration describes.
func (c *Config) Scenarios() ([]scenario.Scenario, error) {
	targets, err := c.Targets()
	if err != nil {
		return nil, err
	}
	return c.ScenarioMatrix().Generate(targets)
}

// Save writes the configuration to a YAML file.
func (c *Config) Save(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
