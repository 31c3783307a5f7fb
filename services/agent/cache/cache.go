// Copyright (C) 2026 ReConnect TraitBank (traitbank-reconnect.hcmr.gr)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package cache provides a BadgerDB-backed response cache for upstream
// TraitBank calls.
//
// Entries are keyed by the full request URL and expire via Badger's native
// TTL, so a restart does not lose warm data but stale taxonomy never
// outlives the configured window.
//
// License: BadgerDB is Apache 2.0 licensed (github.com/dgraph-io/badger).
package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// DefaultTTL is how long upstream responses stay valid. TraitBank data
// changes on curation timescales, not request timescales.
const DefaultTTL = 24 * time.Hour

// Config holds configuration for a response cache instance.
type Config struct {
	// Path is the directory for BadgerDB files.
	// Ignored when InMemory is true.
	Path string

	// InMemory enables in-memory mode (no disk persistence).
	// Useful for testing.
	InMemory bool

	// TTL is the entry lifetime. Zero means DefaultTTL.
	TTL time.Duration

	// Logger is the logger for BadgerDB operations.
	// If nil, BadgerDB's internal logging is disabled.
	Logger *slog.Logger

	// Hit and Miss are optional metric callbacks, invoked once per Get.
	Hit  func()
	Miss func()
}

// DefaultConfig returns production defaults for the given path.
func DefaultConfig(path string) Config {
	return Config{
		Path: path,
		TTL:  DefaultTTL,
	}
}

// InMemoryConfig returns configuration for testing: in-memory store,
// short TTL.
func InMemoryConfig() Config {
	return Config{
		InMemory: true,
		TTL:      time.Minute,
	}
}

// badgerLogger adapts slog.Logger to BadgerDB's Logger interface.
type badgerLogger struct {
	logger *slog.Logger
}

func (l *badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Info(fmt.Sprintf(format, args...))
}

func (l *badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Debug(fmt.Sprintf(format, args...))
}

// Store is the BadgerDB-backed cache. Safe for concurrent use.
//
// Store satisfies the traitbank.Cache interface: Get/Set with []byte
// values keyed by request URL.
type Store struct {
	db   *badger.DB
	ttl  time.Duration
	hit  func()
	miss func()
}

// Open creates and opens a cache store with the given configuration.
// Caller must call Close() when done.
func Open(cfg Config) (*Store, error) {
	if !cfg.InMemory && cfg.Path == "" {
		return nil, errors.New("path is required for persistent cache")
	}

	var opts badger.Options
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	} else {
		if err := os.MkdirAll(cfg.Path, 0750); err != nil {
			return nil, fmt.Errorf("create cache directory %s: %w", cfg.Path, err)
		}
		opts = badger.DefaultOptions(cfg.Path)
	}

	// The cache is rebuildable from upstream; async writes are fine.
	opts = opts.WithSyncWrites(false)
	opts = opts.WithNumVersionsToKeep(1)

	if cfg.Logger != nil {
		opts = opts.WithLogger(&badgerLogger{logger: cfg.Logger})
	} else {
		opts = opts.WithLogger(nil)
	}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open cache database: %w", err)
	}

	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	nop := func() {}
	hit, miss := cfg.Hit, cfg.Miss
	if hit == nil {
		hit = nop
	}
	if miss == nil {
		miss = nop
	}

	return &Store{db: db, ttl: ttl, hit: hit, miss: miss}, nil
}

// OpenInMemory opens an in-memory cache for testing.
func OpenInMemory() (*Store, error) {
	return Open(InMemoryConfig())
}

// Get returns the cached value for key, if present and not expired.
func (s *Store) Get(key string) ([]byte, bool) {
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if err != nil {
		// ErrKeyNotFound covers both absent and TTL-expired entries.
		s.miss()
		return nil, false
	}
	s.hit()
	return value, true
}

// Set stores value under key with the configured TTL.
func (s *Store) Set(key string, value []byte) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		entry := badger.NewEntry([]byte(key), value).WithTTL(s.ttl)
		return txn.SetEntry(entry)
	})
	if err != nil {
		return fmt.Errorf("cache set %s: %w", key, err)
	}
	return nil
}

// Delete removes an entry. Missing keys are not an error.
func (s *Store) Delete(key string) error {
	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
	if err != nil && !errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("cache delete %s: %w", key, err)
	}
	return nil
}

// Len returns the number of live entries. Intended for tests and the
// health endpoint, not hot paths: it walks the key space.
func (s *Store) Len() (int, error) {
	count := 0
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()
		for it.Rewind(); it.Valid(); it.Next() {
			count++
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("cache len: %w", err)
	}
	return count, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}
