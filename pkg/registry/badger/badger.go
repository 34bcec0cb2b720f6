// Package badger provides a registry.Store persisted in BadgerDB.
//
// Records are stored as JSON under the key "space:<name>".
package badger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	badger "github.com/dgraph-io/badger/v4"
	"github.com/dgraph-io/badger/v4/options"
	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/space"
)

const prefixSpace = "space:"

func keySpace(name string) []byte {
	return []byte(prefixSpace + name)
}

// Config configures the store.
type Config struct {
	// Path is the database directory. Created if missing.
	Path string

	// InMemory keeps the database in memory; Path is ignored.
	InMemory bool
}

// Store is a BadgerDB backed registry.Store.
type Store struct {
	db *badger.DB
}

// New opens (or creates) the database.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := badger.DefaultOptions(cfg.Path)
	if cfg.InMemory {
		opts = badger.DefaultOptions("").WithInMemory(true)
	}
	// Records are small and rarely written
	opts = opts.WithLoggingLevel(badger.WARNING)
	opts = opts.WithCompression(options.None)

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open BadgerDB at %s: %w", cfg.Path, err)
	}

	logger.Debug("Opened space registry database at %s", cfg.Path)
	return &Store{db: db}, nil
}

func (s *Store) Put(ctx context.Context, rec registry.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("failed to encode space %q: %w", rec.Name, err)
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(keySpace(rec.Name), data); err != nil {
			return fmt.Errorf("failed to store space %q: %w", rec.Name, err)
		}
		return nil
	})
}

func (s *Store) Get(ctx context.Context, name string) (registry.Record, error) {
	if err := ctx.Err(); err != nil {
		return registry.Record{}, err
	}

	var rec registry.Record
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(keySpace(name))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("space %q: %w", name, space.ErrNotFound)
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return registry.Record{}, err
	}
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return s.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(keySpace(name)); errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("space %q: %w", name, space.ErrNotFound)
		} else if err != nil {
			return err
		}
		return txn.Delete(keySpace(name))
	})
}

func (s *Store) List(ctx context.Context) ([]registry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var records []registry.Record
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefixSpace)
		opts.PrefetchValues = true

		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			item := it.Item()
			err := item.Value(func(val []byte) error {
				var rec registry.Record
				if err := json.Unmarshal(val, &rec); err != nil {
					return fmt.Errorf("failed to decode %s: %w", item.Key(), err)
				}
				records = append(records, rec)
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	return records, err
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}
