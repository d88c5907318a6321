// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package backend

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/absmach/mqbench/config"
	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/scenario"
	"github.com/absmach/mqbench/storage"
	"github.com/absmach/mqbench/storage/badger"
	"github.com/absmach/mqbench/storage/memory"
	"github.com/absmach/mqbench/storage/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOpen(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name string
		cfg  config.StorageConfig
		want storage.Store
	}{
		{name: "memory", cfg: config.StorageConfig{Type: "memory"}, want: &memory.Store{}},
		{name: "empty type", cfg: config.StorageConfig{}, want: &memory.Store{}},
		{name: "badger", cfg: config.StorageConfig{Type: "badger", BadgerDir: filepath.Join(dir, "badger")}, want: &badger.Store{}},
		{name: "sqlite", cfg: config.StorageConfig{Type: "sqlite", SQLitePath: filepath.Join(dir, "nested", "results.db")}, want: &sqlite.Store{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Open(tt.cfg)
			require.NoError(t, err)
			defer s.Close()
			assert.IsType(t, tt.want, s)

			r := results.Result{ID: "r1", Broker: "fluxmq", Scenario: scenario.Scenario{Version: scenario.V311}, Status: results.StatusSuccess, StartedAt: time.Unix(1700000000, 0).UTC()}
			require.NoError(t, s.Save(context.Background(), r))
			got, err := s.Get(context.Background(), "r1")
			require.NoError(t, err)
			assert.Equal(t, "fluxmq", got.Broker)
		})
	}
}

func TestOpenUnknown(t *testing.T) {
	_, err := Open(config.StorageConfig{Type: "postgres"})
	assert.Error(t, err)
}
