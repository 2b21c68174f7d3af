package library

import (
	"context"
	"fmt"
	"sync"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
)

// MemorySource serves libraries that are already compiled in memory.
type MemorySource struct {
	mu   sync.RWMutex
	libs []*elm.Library
}

// NewMemorySource creates a source holding libs.
func NewMemorySource(libs ...*elm.Library) *MemorySource {
	return &MemorySource{libs: libs}
}

// Add registers lib.
func (s *MemorySource) Add(lib *elm.Library) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libs = append(s.libs, lib)
}

// LoadLibrary returns the library matching id. An exact version match is
// preferred over a version-less match.
func (s *MemorySource) LoadLibrary(_ context.Context, id elm.VersionedIdentifier) (*elm.Library, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var candidate *elm.Library
	for _, lib := range s.libs {
		if lib.Identifier == id {
			return lib, nil
		}
		if candidate == nil && lib.Identifier.Matches(id) {
			candidate = lib
		}
	}
	if candidate != nil {
		return candidate, nil
	}
	return nil, fmt.Errorf("%w: library %s", er.ErrNotFound, id)
}
