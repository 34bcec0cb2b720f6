// Package memory provides an in-memory registry.Store. Records do not survive
// a restart; spaces are seeded from the configuration file on every start.
package memory

import (
	"context"
	"fmt"
	"maps"
	"sync"

	"github.com/marmos91/stowage/pkg/registry"
	"github.com/marmos91/stowage/pkg/space"
)

// Store keeps records in a map.
type Store struct {
	mu      sync.RWMutex
	records map[string]registry.Record
}

// New returns an empty store.
func New() *Store {
	return &Store{records: make(map[string]registry.Record)}
}

func (s *Store) Put(ctx context.Context, rec registry.Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	rec.Options = maps.Clone(rec.Options)
	s.records[rec.Name] = rec
	return nil
}

func (s *Store) Get(ctx context.Context, name string) (registry.Record, error) {
	if err := ctx.Err(); err != nil {
		return registry.Record{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[name]
	if !ok {
		return registry.Record{}, fmt.Errorf("space %q: %w", name, space.ErrNotFound)
	}
	rec.Options = maps.Clone(rec.Options)
	return rec, nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[name]; !ok {
		return fmt.Errorf("space %q: %w", name, space.ErrNotFound)
	}
	delete(s.records, name)
	return nil
}

func (s *Store) List(ctx context.Context) ([]registry.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]registry.Record, 0, len(s.records))
	for _, rec := range s.records {
		rec.Options = maps.Clone(rec.Options)
		out = append(out, rec)
	}
	return out, nil
}

func (s *Store) Close() error { return nil }
