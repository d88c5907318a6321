// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

// Package storage persists benchmark results.
package storage

import (
	"context"
	"errors"
	"slices"

	"github.com/absmach/mqbench/results"
)

// Common errors.
var (
	ErrNotFound = errors.New("not found")
	ErrEmptyID  = errors.New("result ID cannot be empty")
	ErrClosed   = errors.New("store closed")
)

// Filter narrows List. Zero values match everything.
type Filter struct {
	Broker string
	Status results.Status
	// Limit caps the number of results; 0 means no limit.
	Limit int
}

// Matches reports whether r passes the filter's field constraints.
func (f Filter) Matches(r results.Result) bool {
	if f.Broker != "" && r.Broker != f.Broker {
		return false
	}
	if f.Status != "" && r.Status != f.Status {
		return false
	}
	return true
}

// Store is the result persistence interface.
type Store interface {
	// Save stores r, replacing any result with the same ID.
	Save(ctx context.Context, r results.Result) error

	// Get returns the result with the given ID or ErrNotFound.
	Get(ctx context.Context, id string) (results.Result, error)

	// List returns matching results, newest first.
	List(ctx context.Context, f Filter) ([]results.Result, error)

	// Close releases the backend.
	Close() error
}

// SortNewestFirst orders results by start time, newest first, ties by ID.
func SortNewestFirst(rs []results.Result) {
	slices.SortStableFunc(rs, func(a, b results.Result) int {
		if c := b.StartedAt.Compare(a.StartedAt); c != 0 {
			return c
		}
		switch {
		case a.ID < b.ID:
			return -1
		case a.ID > b.ID:
			return 1
		}
		return 0
	})
}
