package ivfgo

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/hupe1980/ivfgo/metadata"
	"github.com/hupe1980/ivfgo/persistence"
)

// Manager owns a set of named collections. All methods are safe for
// concurrent use.
type Manager struct {
	mu          sync.RWMutex
	collections map[string]*Collection

	logger  *Logger
	metrics MetricsCollector
}

// New creates an empty Manager.
func New(optFns ...Option) *Manager {
	opts := options{
		logger:           NoopLogger(),
		metricsCollector: NoopMetricsCollector{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Manager{
		collections: make(map[string]*Collection),
		logger:      opts.logger,
		metrics:     opts.metricsCollector,
	}
}

// CreateCollection creates a new collection with the given schema. It fails
// with ErrAlreadyExists when the name is taken, unless WithOverwrite is
// passed, in which case the existing collection is dropped first.
func (m *Manager) CreateCollection(ctx context.Context, name string, schema metadata.Schema, optFns ...CreateOption) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := createOptions{
		metric: L2,
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; ok {
		if !opts.overwrite {
			return nil, fmt.Errorf("%w: collection %q", ErrAlreadyExists, name)
		}
		delete(m.collections, name)
		m.logger.WithCollection(name).Info("existing collection dropped for overwrite")
	}

	c, err := newCollection(name, schema, opts.metric, m.logger, m.metrics)
	if err != nil {
		return nil, translateError(err)
	}
	m.collections[name] = c

	m.logger.WithCollection(name).WithDimension(c.Dimension()).Info("collection created")

	return c, nil
}

// DropCollection removes a collection and all its data.
func (m *Manager) DropCollection(ctx context.Context, name string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[name]; !ok {
		return fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	delete(m.collections, name)

	m.logger.WithCollection(name).Info("collection dropped")

	return nil
}

// HasCollection reports whether a collection with the given name exists.
func (m *Manager) HasCollection(name string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()

	_, ok := m.collections[name]
	return ok
}

// ListCollections returns the names of all collections, sorted.
func (m *Manager) ListCollections() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.collections))
	for name := range m.collections {
		names = append(names, name)
	}
	sort.Strings(names)

	return names
}

// Collection returns the collection with the given name.
func (m *Manager) Collection(name string) (*Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.collections[name]
	if !ok {
		return nil, fmt.Errorf("%w: collection %q", ErrNotFound, name)
	}
	return c, nil
}

// Describe reports the current state of the named collection.
func (m *Manager) Describe(name string) (CollectionInfo, error) {
	c, err := m.Collection(name)
	if err != nil {
		return CollectionInfo{}, err
	}
	return c.Describe(), nil
}

// RestoreCollection reads a snapshot and registers the restored collection.
// It fails with ErrAlreadyExists when the snapshot's collection name is
// taken, unless WithOverwrite is passed.
func (m *Manager) RestoreCollection(ctx context.Context, r io.Reader, optFns ...CreateOption) (*Collection, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	opts := createOptions{}
	for _, fn := range optFns {
		fn(&opts)
	}

	snap, err := persistence.Read(r)
	if err != nil {
		return nil, err
	}

	c, err := restoreCollection(snap, m.logger, m.metrics)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.collections[c.name]; ok && !opts.overwrite {
		return nil, fmt.Errorf("%w: collection %q", ErrAlreadyExists, c.name)
	}
	m.collections[c.name] = c

	m.logger.WithCollection(c.name).WithCount(int(c.NumEntities())).Info("collection restored")

	return c, nil
}
