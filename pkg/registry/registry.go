package registry

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/marmos91/stowage/internal/logger"
	"github.com/marmos91/stowage/pkg/space"
)

// Record is the persisted configuration of a space.
type Record struct {
	Name        string         `json:"name"`
	UUID        string         `json:"uuid"`
	Type        space.Kind     `json:"type"`
	Path        string         `json:"path"`
	StagingPath string         `json:"staging_path"`
	Options     map[string]any `json:"options,omitempty"`

	Verified     bool      `json:"verified"`
	LastVerified time.Time `json:"last_verified,omitempty"`
}

// Store persists space records by name.
//
// Get returns an error wrapping space.ErrNotFound for unknown names.
type Store interface {
	Put(ctx context.Context, rec Record) error
	Get(ctx context.Context, name string) (Record, error)
	Delete(ctx context.Context, name string) error
	List(ctx context.Context) ([]Record, error)
	Close() error
}

// Factory builds the driver for a record.
type Factory func(ctx context.Context, rec Record) (space.Driver, error)

// verifiable is implemented by spaces that track their verification state.
type verifiable interface {
	MarkVerified(at time.Time)
	MarkUnverified()
}

// Registry manages the configured spaces and their drivers.
//
// Drivers are built through the Factory from the records held by the Store.
// Save is the only way records enter the store, so every persisted record
// has passed driver validation.
//
// Example usage:
//
//	reg := registry.New(memory.New(), config.DriverFactory(cfg))
//	rec, err := reg.Save(ctx, registry.Record{Name: "onedata", Type: space.KindOnedata, ...})
//	driver, _ := reg.Get("onedata")
//	tree, err := driver.Browse(ctx, "")
type Registry struct {
	mu      sync.RWMutex
	store   Store
	factory Factory
	drivers map[string]space.Driver
	now     func() time.Time
}

// New creates an empty registry backed by store.
func New(store Store, factory Factory) *Registry {
	return &Registry{
		store:   store,
		factory: factory,
		drivers: make(map[string]space.Driver),
		now:     time.Now,
	}
}

// Open builds drivers for every record already in the store. Records whose
// driver cannot be built are skipped and reported in the returned error.
func (r *Registry) Open(ctx context.Context) error {
	records, err := r.store.List(ctx)
	if err != nil {
		return fmt.Errorf("failed to list spaces: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var errs []error
	for _, rec := range records {
		d, err := r.factory(ctx, rec)
		if err != nil {
			logger.Error("Failed to load space %q: %v", rec.Name, err)
			errs = append(errs, fmt.Errorf("space %q: %w", rec.Name, err))
			continue
		}
		restoreVerification(d, rec)
		r.drivers[rec.Name] = d
	}
	logger.Debug("Loaded %d space(s) from store", len(r.drivers))
	return errors.Join(errs...)
}

// Save validates and persists rec, replacing any space with the same name.
//
// The driver is built first and its Validate must pass; a record that fails
// validation is never persisted. A missing UUID is generated. Returns the
// stored record.
func (r *Registry) Save(ctx context.Context, rec Record) (Record, error) {
	if rec.Name == "" {
		return Record{}, &space.ConfigurationError{Field: "name", Reason: "must not be empty"}
	}

	d, err := r.factory(ctx, rec)
	if err != nil {
		return Record{}, fmt.Errorf("space %q: %w", rec.Name, err)
	}
	if err := d.Validate(); err != nil {
		return Record{}, fmt.Errorf("space %q: %w", rec.Name, err)
	}

	if rec.UUID == "" {
		rec.UUID = uuid.NewString()
	} else if _, err := uuid.Parse(rec.UUID); err != nil {
		return Record{}, &space.ConfigurationError{Field: "uuid", Reason: err.Error()}
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Put(ctx, rec); err != nil {
		return Record{}, fmt.Errorf("failed to store space %q: %w", rec.Name, err)
	}
	restoreVerification(d, rec)
	r.drivers[rec.Name] = d

	logger.Info("Saved space %q (%s, %s) at %s", rec.Name, rec.Type, rec.UUID, rec.Path)
	return rec, nil
}

// Get returns the driver of the named space.
func (r *Registry) Get(name string) (space.Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.drivers[name]
	if !ok {
		return nil, fmt.Errorf("space %q: %w", name, space.ErrNotFound)
	}
	return d, nil
}

// Names returns the names of all loaded spaces in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	names := make([]string, 0, len(r.drivers))
	for name := range r.drivers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Record returns the stored record of the named space.
func (r *Registry) Record(ctx context.Context, name string) (Record, error) {
	return r.store.Get(ctx, name)
}

// List returns every stored record sorted by name.
func (r *Registry) List(ctx context.Context) ([]Record, error) {
	records, err := r.store.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(records, func(i, j int) bool { return records[i].Name < records[j].Name })
	return records, nil
}

// Delete removes the named space from the store and the registry.
func (r *Registry) Delete(ctx context.Context, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if err := r.store.Delete(ctx, name); err != nil {
		return err
	}
	delete(r.drivers, name)
	logger.Info("Deleted space %q", name)
	return nil
}

// Verify browses the root of the named space and records the outcome on the
// stored record and on the space.
func (r *Registry) Verify(ctx context.Context, name string) error {
	d, err := r.Get(name)
	if err != nil {
		return err
	}
	rec, err := r.store.Get(ctx, name)
	if err != nil {
		return err
	}

	_, browseErr := d.Browse(ctx, "")

	v, _ := d.Space().(verifiable)
	if browseErr != nil {
		logger.Warn("Verification of space %q failed: %v", name, browseErr)
		rec.Verified = false
		if v != nil {
			v.MarkUnverified()
		}
	} else {
		rec.Verified = true
		rec.LastVerified = r.now().UTC()
		if v != nil {
			v.MarkVerified(rec.LastVerified)
		}
	}

	if err := r.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("failed to store verification of space %q: %w", name, err)
	}
	return browseErr
}

// Close releases the store.
func (r *Registry) Close() error {
	return r.store.Close()
}

func restoreVerification(d space.Driver, rec Record) {
	if v, ok := d.Space().(verifiable); ok && rec.Verified {
		v.MarkVerified(rec.LastVerified)
	}
}
