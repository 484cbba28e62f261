package pool

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/litesql/dbmcp/internal/config"
	"github.com/litesql/dbmcp/internal/dberr"
)

const DefaultName = "default"

// Set holds the named connection pools.
type Set struct {
	mu    sync.RWMutex
	pools map[string]*Manager

	defaults config.Profile
}

// NewSet creates an empty set. defaults is the profile used by connect when
// the caller overrides nothing.
func NewSet(defaults config.Profile) *Set {
	return &Set{
		pools:    make(map[string]*Manager),
		defaults: defaults,
	}
}

func (s *Set) Defaults() config.Profile {
	return s.defaults
}

// Open creates a pool and registers it under name, replacing (and shutting
// down) any pool previously registered under the same name. The existing
// pool is left untouched when the new one fails to open.
func (s *Set) Open(ctx context.Context, name string, p config.Profile) (*Manager, error) {
	if name == "" {
		name = DefaultName
	}
	m, err := New(ctx, name, p)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	old := s.pools[name]
	s.pools[name] = m
	s.mu.Unlock()
	if old != nil {
		go shutdownQuietly(old, p.AcquireTimeout)
	}
	return m, nil
}

// Add registers an already opened pool.
func (s *Set) Add(m *Manager) {
	s.mu.Lock()
	old := s.pools[m.Name()]
	s.pools[m.Name()] = m
	s.mu.Unlock()
	if old != nil && old != m {
		go shutdownQuietly(old, old.profile.AcquireTimeout)
	}
}

func (s *Set) Get(name string) (*Manager, error) {
	if name == "" {
		name = DefaultName
	}
	s.mu.RLock()
	m, ok := s.pools[name]
	s.mu.RUnlock()
	if !ok {
		return nil, dberr.New(dberr.PoolUnavailable, "connection", fmt.Sprintf("connection %q is not open", name))
	}
	return m, nil
}

// Remove unregisters the pool and shuts it down.
func (s *Set) Remove(ctx context.Context, name string) error {
	if name == "" {
		name = DefaultName
	}
	s.mu.Lock()
	m, ok := s.pools[name]
	delete(s.pools, name)
	s.mu.Unlock()
	if !ok {
		return dberr.Invalid("disconnect", fmt.Sprintf("connection %q is not open", name))
	}
	return m.Shutdown(ctx)
}

func (s *Set) Names() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.pools))
	for name := range s.pools {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// All returns the registered pools sorted by name.
func (s *Set) All() []*Manager {
	s.mu.RLock()
	defer s.mu.RUnlock()
	all := make([]*Manager, 0, len(s.pools))
	for _, m := range s.pools {
		all = append(all, m)
	}
	slices.SortFunc(all, func(a, b *Manager) int {
		return cmp.Compare(a.name, b.name)
	})
	return all
}

func (s *Set) Close(ctx context.Context) error {
	s.mu.Lock()
	pools := s.pools
	s.pools = make(map[string]*Manager)
	s.mu.Unlock()

	var errs []error
	for name, m := range pools {
		if err := m.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

func shutdownQuietly(m *Manager, timeout time.Duration) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout+30*time.Second)
	defer cancel()
	if err := m.Shutdown(ctx); err != nil {
		slog.Warn("shutdown replaced connection pool", "connection", m.Name(), "error", err)
	}
}
