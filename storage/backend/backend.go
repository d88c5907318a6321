// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package backend opens the result store selected by configuration.
package backend

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/absmach/mqbench/config"
	"github.com/absmach/mqbench/storage"
	"github.com/absmach/mqbench/storage/badger"
	"github.com/absmach/mqbench/storage/memory"
	"github.com/absmach/mqbench/storage/sqlite"
)

// Open returns the store named by cfg.Type.
func Open(cfg config.StorageConfig) (storage.Store, error) {
	switch cfg.Type {
	case "", "memory":
		return memory.New(), nil
	case "badger":
		s, err := badger.New(badger.Config{Dir: cfg.BadgerDir})
		if err != nil {
			return nil, err
		}
		return s, nil
	case "sqlite":
		if cfg.SQLitePath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(cfg.SQLitePath), 0o755); err != nil {
				return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
			}
		}
		s, err := sqlite.New(cfg.SQLitePath)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage type %q", cfg.Type)
	}
}
