// Package store persists key-value state for the kv command set.
package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	badger "github.com/dgraph-io/badger/v3"
	"github.com/rs/zerolog"
)

var (
	ErrNotFound   = errors.New("store: key not found")
	ErrInvalidKey = errors.New("store: invalid key")
)

// Config selects on-disk or in-memory storage.
type Config struct {
	// Dir is the badger data directory. Empty means in-memory.
	Dir    string
	Logger zerolog.Logger
}

// Store is a string key-value store backed by badger.
type Store struct {
	db *badger.DB
}

func Open(cfg Config) (*Store, error) {
	opts := badger.DefaultOptions(cfg.Dir)
	if strings.TrimSpace(cfg.Dir) == "" {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	opts = opts.WithLogger(badgerLogger{logger: cfg.Logger})
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("store: open badger dir=%q: %w", cfg.Dir, err)
	}
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, key, value string) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), []byte(value))
	})
}

func (s *Store) Get(ctx context.Context, key string) (string, error) {
	if err := checkKey(ctx, key); err != nil {
		return "", err
	}
	var value []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		value, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return "", fmt.Errorf("%w: %s", ErrNotFound, key)
	}
	if err != nil {
		return "", fmt.Errorf("store: get %q: %w", key, err)
	}
	return string(value), nil
}

// Delete is idempotent.
func (s *Store) Delete(ctx context.Context, key string) error {
	if err := checkKey(ctx, key); err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete([]byte(key))
	})
}

// List returns keys with prefix in lexical order.
func (s *Store) List(ctx context.Context, prefix string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var keys []string
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			keys = append(keys, string(it.Item().KeyCopy(nil)))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store: list prefix=%q: %w", prefix, err)
	}
	sort.Strings(keys)
	return keys, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func checkKey(ctx context.Context, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if strings.TrimSpace(key) == "" {
		return fmt.Errorf("%w: empty", ErrInvalidKey)
	}
	return nil
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	logger zerolog.Logger
}

func (l badgerLogger) Errorf(format string, args ...interface{}) {
	l.logger.Error().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Warningf(format string, args ...interface{}) {
	l.logger.Warn().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Infof(format string, args ...interface{}) {
	l.logger.Debug().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}

func (l badgerLogger) Debugf(format string, args ...interface{}) {
	l.logger.Trace().Str("component", "badger").Msgf(strings.TrimSpace(format), args...)
}
