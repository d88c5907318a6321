// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package memory

import (
	"context"
	"sync"

	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/storage"
)

var _ storage.Store = (*Store)(nil)

// Store keeps results in a map. Nothing survives the process.
type Store struct {
	mu      sync.RWMutex
	results map[string]results.Result
	closed  bool
}

// New creates a new in-memory store.
func New() *Store {
	return &Store{results: make(map[string]results.Result)}
}

func (s *Store) Save(ctx context.Context, r results.Result) error {
	if r.ID == "" {
		return storage.ErrEmptyID
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return storage.ErrClosed
	}
	s.results[r.ID] = r
	return nil
}

func (s *Store) Get(ctx context.Context, id string) (results.Result, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.results[id]
	if !ok {
		return results.Result{}, storage.ErrNotFound
	}
	return r, nil
}

func (s *Store) List(ctx context.Context, f storage.Filter) ([]results.Result, error) {
	s.mu.RLock()
	out := make([]results.Result, 0, len(s.results))
	for _, r := range s.results {
		if f.Matches(r) {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()

	storage.SortNewestFirst(out)
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Close marks the store closed (no-op for memory otherwise).
func (s *Store) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
