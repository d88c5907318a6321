// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/mqbench/scenario"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	if len(cfg.Brokers) != 1 || cfg.Brokers[0].Port != 1883 {
		t.Errorf("expected one default broker on 1883, got %+v", cfg.Brokers)
	}
	if cfg.Run.ConnectAttempts != 20 {
		t.Errorf("expected 20 connect attempts, got %d", cfg.Run.ConnectAttempts)
	}
	if cfg.Run.DrainTimeout != 30*time.Second {
		t.Errorf("expected drain timeout 30s, got %v", cfg.Run.DrainTimeout)
	}
	if cfg.Log.Level != "info" {
		t.Errorf("expected log level info, got %s", cfg.Log.Level)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("default config should be valid: %v", err)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr bool
	}{
		{
			name:    "default config is valid",
			modify:  func(c *Config) {},
			wantErr: false,
		},
		{
			name:    "no brokers",
			modify:  func(c *Config) { c.Brokers = nil },
			wantErr: true,
		},
		{
			name: "duplicate broker names",
			modify: func(c *Config) {
				c.Brokers = append(c.Brokers, c.Brokers[0])
			},
			wantErr: true,
		},
		{
			name:    "broker port out of range",
			modify:  func(c *Config) { c.Brokers[0].Port = 70000 },
			wantErr: true,
		},
		{
			name:    "unknown scheme",
			modify:  func(c *Config) { c.Brokers[0].Scheme = "quic" },
			wantErr: true,
		},
		{
			name:    "unsupported protocol version",
			modify:  func(c *Config) { c.Matrix.Versions = []string{"v400"} },
			wantErr: true,
		},
		{
			name:    "qos out of range",
			modify:  func(c *Config) { c.Matrix.QoS = []int{3} },
			wantErr: true,
		},
		{
			name:    "unknown vary dimension",
			modify:  func(c *Config) { c.Matrix.Vary = []string{"topics"} },
			wantErr: true,
		},
		{
			name:    "drain timeout too short",
			modify:  func(c *Config) { c.Run.DrainTimeout = 10 * time.Millisecond },
			wantErr: true,
		},
		{
			name:    "breaker cooldown unset",
			modify:  func(c *Config) { c.Run.BreakerCooldown = 0 },
			wantErr: true,
		},
		{
			name:    "monitor without url",
			modify:  func(c *Config) { c.Monitor.Enabled = true },
			wantErr: true,
		},
		{
			name: "monitor with url",
			modify: func(c *Config) {
				c.Monitor.Enabled = true
				c.Monitor.URL = "http://localhost:8080/stats"
			},
			wantErr: false,
		},
		{
			name:    "invalid log level",
			modify:  func(c *Config) { c.Log.Level = "invalid" },
			wantErr: true,
		},
		{
			name:    "invalid log format",
			modify:  func(c *Config) { c.Log.Format = "xml" },
			wantErr: true,
		},
		{
			name: "sqlite without path",
			modify: func(c *Config) {
				c.Storage.Type = "sqlite"
				c.Storage.SQLitePath = ""
			},
			wantErr: true,
		},
		{
			name:    "unknown storage",
			modify:  func(c *Config) { c.Storage.Type = "postgres" },
			wantErr: true,
		},
		{
			name: "telemetry sample rate out of range",
			modify: func(c *Config) {
				c.Telemetry.Enabled = true
				c.Telemetry.TraceSampleRate = 2
			},
			wantErr: true,
		},
		{
			name: "webhook endpoint without url",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Endpoints = []WebhookEndpoint{{Name: "ci"}}
			},
			wantErr: true,
		},
		{
			name: "webhook with valid endpoint",
			modify: func(c *Config) {
				c.Webhook.Enabled = true
				c.Webhook.Endpoints = []WebhookEndpoint{{Name: "ci", URL: "http://localhost:9000/hook"}}
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	cfg, err = Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "mqbench.yaml")
	data := `
brokers:
  - name: fluxmq
    host: 127.0.0.1
    port: 1883
  - name: mosquitto
    host: 127.0.0.1
    port: 1884
    scheme: ws
matrix:
  versions: [v311, v500]
  publishers: [1, 5]
  qos: [0, 1, 2]
  vary: [versions, qos]
run:
  drain_timeout: 10s
log:
  level: debug
  format: json
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.Len(t, cfg.Brokers, 2)
	assert.Equal(t, "ws", cfg.Brokers[1].Scheme)
	assert.Equal(t, 10*time.Second, cfg.Run.DrainTimeout)
	assert.Equal(t, 20, cfg.Run.ConnectAttempts)
	assert.Equal(t, "json", cfg.Log.Format)

	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	// 2 brokers x 2 versions x 3 QoS levels; publishers is not varied.
	require.Len(t, scenarios, 12)
	for _, s := range scenarios {
		assert.Equal(t, scenario.DefaultPublishers, s.Publishers)
	}
	assert.Equal(t, "fluxmq", scenarios[0].Broker)
	assert.Equal(t, scenario.V311, scenarios[0].Version)
	assert.Equal(t, byte(0), scenarios[0].QoS)
	assert.Equal(t, "mosquitto", scenarios[11].Broker)
	assert.Equal(t, scenario.V500, scenarios[11].Version)
	assert.Equal(t, byte(2), scenarios[11].QoS)
}

func TestLoadInvalid(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  level: loud\n"), 0o644))

	_, err := Load(path)
	assert.Error(t, err)

	require.NoError(t, os.WriteFile(path, []byte("brokers: [\n"), 0o644))
	_, err = Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "saved.yaml")
	cfg := Default()
	cfg.Storage.Type = "badger"
	cfg.Matrix.Vary = []string{"publishers"}
	require.NoError(t, cfg.Save(path))

	loaded, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Brokers, loaded.Brokers)
	assert.Equal(t, cfg.Run, loaded.Run)
	assert.Equal(t, cfg.Storage, loaded.Storage)
	assert.Equal(t, cfg.Webhook.Defaults, loaded.Webhook.Defaults)
	assert.Equal(t, []string{"publishers"}, loaded.Matrix.Vary)
	assert.Equal(t, cfg.Matrix.KeepAlive, loaded.Matrix.KeepAlive)
}

func TestScenariosTLS(t *testing.T) {
	cfg := Default()
	cfg.Brokers[0].Scheme = "ssl"
	cfg.Brokers[0].TLS.InsecureSkipVerify = true

	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	require.Len(t, scenarios, 1)
	require.NotNil(t, scenarios[0].TLS)
	assert.True(t, scenarios[0].TLS.InsecureSkipVerify)

	cfg.Brokers[0].TLS.CAFile = filepath.Join(t.TempDir(), "missing-ca.pem")
	_, err = cfg.Scenarios()
	assert.ErrorContains(t, err, "brokers[0].tls")
}

func TestLoadExample(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "examples", "config.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "sqlite", cfg.Storage.Type)
	require.Len(t, cfg.Brokers, 2)

	scenarios, err := cfg.Scenarios()
	require.NoError(t, err)
	// 2 brokers x 2 versions x 3 publisher counts x 2 sizes x 2 QoS levels.
	require.Len(t, scenarios, 48)
	assert.Nil(t, scenarios[0].TLS)
	assert.NotNil(t, scenarios[len(scenarios)-1].TLS)
	assert.Equal(t, 1, scenarios[0].Subscribers)
	assert.Equal(t, 5*time.Minute, cfg.Run.BreakerCooldown)
}
