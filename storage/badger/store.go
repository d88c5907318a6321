// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package badger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/absmach/mqbench/results"
	"github.com/absmach/mqbench/storage"
	"github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/klauspost/compress/s2"
)

var _ storage.Store = (*Store)(nil)

// Key layout:
//
//	result:{unix-nano started}:{id} -> s2(json(result))
//	id:{id}                         -> result key
const (
	resultPrefix = "result:"
	idPrefix     = "id:"
)

// Store is a BadgerDB-backed result store.
type Store struct {
	db *badger.DB

	gcStopCh chan struct{}
	gcDone   chan struct{}
	closed   bool
	mu       sync.Mutex
}

// Config holds BadgerDB configuration.
type Config struct {
	Dir string // Directory for BadgerDB data
	// InMemory keeps the database in memory; Dir is ignored.
	InMemory   bool
	GCInterval time.Duration
}

// New opens a BadgerDB-backed store.
func New(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts.Logger = nil // Disable BadgerDB's internal logging
	opts.NumVersionsToKeep = 1
	// Values are compressed before they reach badger.
	opts.Compression = options.None

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}

	s := &Store{
		db:       db,
		gcStopCh: make(chan struct{}),
		gcDone:   make(chan struct{}),
	}

	interval := cfg.GCInterval
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	go s.runGC(interval)

	return s, nil
}

func resultKey(r results.Result) []byte {
	return fmt.Appendf(nil, "%s%020d:%s", resultPrefix, r.StartedAt.UnixNano(), r.ID)
}

func (s *Store) Save(ctx context.Context, r results.Result) error {
	if r.ID == "" {
		return storage.ErrEmptyID
	}
	val, err := encode(r)
	if err != nil {
		return err
	}
	key := resultKey(r)
	idKey := []byte(idPrefix + r.ID)

	return s.db.Update(func(txn *badger.Txn) error {
		// Replacing a result may move its primary key.
		prev, err := txn.Get(idKey)
		switch {
		case err == nil:
			old, err := prev.ValueCopy(nil)
			if err != nil {
				return err
			}
			if err := txn.Delete(old); err != nil {
				return err
			}
		case !errors.Is(err, badger.ErrKeyNotFound):
			return err
		}
		if err := txn.Set(key, val); err != nil {
			return err
		}
		return txn.Set(idKey, key)
	})
}

func (s *Store) Get(ctx context.Context, id string) (results.Result, error) {
	var r results.Result
	err := s.db.View(func(txn *badger.Txn) error {
		ref, err := txn.Get([]byte(idPrefix + id))
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		key, err := ref.ValueCopy(nil)
		if err != nil {
			return err
		}
		item, err := txn.Get(key)
		if err != nil {
			if errors.Is(err, badger.ErrKeyNotFound) {
				return storage.ErrNotFound
			}
			return err
		}
		return item.Value(func(val []byte) error {
			return decode(val, &r)
		})
	})
	return r, err
}

func (s *Store) List(ctx context.Context, f storage.Filter) ([]results.Result, error) {
	var out []results.Result
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(resultPrefix)
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()

		// Reverse iteration starts from the largest key carrying the prefix.
		seek := append([]byte(resultPrefix), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var r results.Result
			if err := it.Item().Value(func(val []byte) error {
				return decode(val, &r)
			}); err != nil {
				return err
			}
			if !f.Matches(r) {
				continue
			}
			out = append(out, r)
			if f.Limit > 0 && len(out) >= f.Limit {
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

const maxPooledCap = 64 * 1024

var encodeBufs = sync.Pool{New: func() any { return new(bytes.Buffer) }}

// encode returns s2(json(r)). The JSON staging buffer is pooled; the returned
// slice is owned by the caller.
func encode(r results.Result) ([]byte, error) {
	buf := encodeBufs.Get().(*bytes.Buffer)
	buf.Reset()
	defer func() {
		if buf.Cap() <= maxPooledCap {
			encodeBufs.Put(buf)
		}
	}()

	if err := json.NewEncoder(buf).Encode(r); err != nil {
		return nil, fmt.Errorf("failed to marshal result: %w", err)
	}
	return s2.Encode(nil, buf.Bytes()), nil
}

func decode(val []byte, r *results.Result) error {
	data, err := s2.Decode(nil, val)
	if err != nil {
		return fmt.Errorf("failed to decompress result: %w", err)
	}
	if err := json.Unmarshal(data, r); err != nil {
		return fmt.Errorf("failed to unmarshal result: %w", err)
	}
	return nil
}

// Close gracefully closes the BadgerDB database.
func (s *Store) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.mu.Unlock()

	close(s.gcStopCh)
	<-s.gcDone

	return s.db.Close()
}

// runGC runs BadgerDB's value log garbage collection periodically.
func (s *Store) runGC(interval time.Duration) {
	defer close(s.gcDone)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			// Returns an error when there was nothing to collect.
			_ = s.db.RunValueLogGC(0.5)
		case <-s.gcStopCh:
			return
		}
	}
}
