package library

import (
	"context"
	"errors"
	"fmt"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/cache"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/pkg/logger"
)

// Resolver maps a library identifier to a compiled library.
type Resolver interface {
	ResolveLibrary(ctx context.Context, id elm.VersionedIdentifier) (*Library, error)
}

// Source loads compiled libraries. A Source that does not know a library
// returns an error wrapping er.ErrNotFound so the next source is tried.
type Source interface {
	LoadLibrary(ctx context.Context, id elm.VersionedIdentifier) (*elm.Library, error)
}

// SourceFunc adapts a function to Source.
type SourceFunc func(ctx context.Context, id elm.VersionedIdentifier) (*elm.Library, error)

// LoadLibrary calls f.
func (f SourceFunc) LoadLibrary(ctx context.Context, id elm.VersionedIdentifier) (*elm.Library, error) {
	return f(ctx, id)
}

// Chain tries multiple sources in order.
type Chain struct {
	sources []Source
}

// NewChain creates a source chain.
func NewChain(sources ...Source) *Chain {
	return &Chain{sources: sources}
}

// LoadLibrary tries each source until one succeeds. Errors other than
// not-found stop the chain.
func (c *Chain) LoadLibrary(ctx context.Context, id elm.VersionedIdentifier) (*elm.Library, error) {
	for _, src := range c.sources {
		lib, err := src.LoadLibrary(ctx, id)
		if err == nil && lib != nil {
			return lib, nil
		}
		if err != nil && !errors.Is(err, er.ErrNotFound) {
			return nil, err
		}
	}
	return nil, fmt.Errorf("%w: library %s", er.ErrNotFound, id)
}

// Add appends a source to the chain.
func (c *Chain) Add(src Source) {
	c.sources = append(c.sources, src)
}

// Manager resolves libraries through a chain of sources and caches the
// indexed handles. It is safe for concurrent use.
type Manager struct {
	chain   *Chain
	cache   *cache.Cache[elm.VersionedIdentifier, *Library]
	metrics *er.Metrics
	log     *logger.Logger
}

// ManagerOption configures a Manager.
type ManagerOption func(*Manager)

// WithCacheSize bounds the number of cached handles.
func WithCacheSize(size int) ManagerOption {
	return func(m *Manager) {
		m.cache = cache.New[elm.VersionedIdentifier, *Library](size)
	}
}

// WithMetrics records cache hits and misses into metrics.
func WithMetrics(metrics *er.Metrics) ManagerOption {
	return func(m *Manager) {
		m.metrics = metrics
	}
}

// WithLogger sets the logger.
func WithLogger(l *logger.Logger) ManagerOption {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// NewManager creates a manager over sources.
func NewManager(sources ...Source) *Manager {
	return NewManagerWithOptions(sources, nil)
}

// NewManagerWithOptions creates a manager over sources with options.
func NewManagerWithOptions(sources []Source, opts []ManagerOption) *Manager {
	m := &Manager{
		chain: NewChain(sources...),
		cache: cache.New[elm.VersionedIdentifier, *Library](er.DefaultOptions().LibraryCacheSize),
		log:   logger.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// AddSource appends a source. Libraries already cached are not reloaded.
func (m *Manager) AddSource(src Source) {
	m.chain.Add(src)
}

// ResolveLibrary returns the library handle for id. Handles are cached
// under both the requested and the declared identifier, so a request for
// "Name" and one for "Name|1.0.0" share a handle once either has loaded.
func (m *Manager) ResolveLibrary(ctx context.Context, id elm.VersionedIdentifier) (*Library, error) {
	if id.IsZero() {
		return nil, fmt.Errorf("%w: library with empty identifier", er.ErrNotFound)
	}
	lib, hit, err := m.cache.GetOrLoad(id, func() (*Library, error) {
		tree, err := m.chain.LoadLibrary(ctx, id)
		if err != nil {
			return nil, err
		}
		m.log.Debug("loaded library %s", tree.Identifier)
		return New(tree), nil
	})
	if m.metrics != nil {
		if hit {
			m.metrics.RecordCacheHit()
		} else {
			m.metrics.RecordCacheMiss()
		}
	}
	if err != nil {
		return nil, err
	}
	if !hit {
		lib = m.canonical(id, lib)
	}
	return lib, nil
}

// canonical returns the handle cached under the declared identifier of
// lib, caching lib there when there is none.
func (m *Manager) canonical(requested elm.VersionedIdentifier, lib *Library) *Library {
	declared := lib.Identifier()
	if declared == requested {
		return lib
	}
	if existing, ok := m.cache.Peek(declared); ok {
		m.cache.Set(requested, existing)
		return existing
	}
	m.cache.Set(declared, lib)
	return lib
}

// CacheStats returns statistics of the handle cache.
func (m *Manager) CacheStats() cache.Stats {
	return m.cache.Stats()
}

// Verify interface compliance
var (
	_ Resolver = (*Manager)(nil)
	_ Source   = (*Chain)(nil)
)
