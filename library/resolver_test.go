package library

import (
	"context"
	"errors"
	"sync"
	"testing"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
)

func TestMemorySource_PrefersExactVersion(t *testing.T) {
	v1 := &elm.Library{Identifier: elm.VersionedIdentifier{ID: "Lib", Version: "1.0"}}
	v2 := &elm.Library{Identifier: elm.VersionedIdentifier{ID: "Lib", Version: "2.0"}}
	src := NewMemorySource(v1, v2)

	got, err := src.LoadLibrary(context.Background(), elm.VersionedIdentifier{ID: "Lib", Version: "2.0"})
	if err != nil || got != v2 {
		t.Errorf("LoadLibrary(2.0) = %v, %v; want v2", got, err)
	}
	got, err = src.LoadLibrary(context.Background(), elm.VersionedIdentifier{ID: "Lib"})
	if err != nil || got != v1 {
		t.Errorf("LoadLibrary() = %v, %v; want first match", got, err)
	}
	if _, err := src.LoadLibrary(context.Background(), elm.VersionedIdentifier{ID: "Other"}); !errors.Is(err, er.ErrNotFound) {
		t.Errorf("LoadLibrary(Other) error = %v; want ErrNotFound", err)
	}

	src.Add(&elm.Library{Identifier: elm.VersionedIdentifier{ID: "Other"}})
	if _, err := src.LoadLibrary(context.Background(), elm.VersionedIdentifier{ID: "Other"}); err != nil {
		t.Errorf("LoadLibrary(Other) after Add error = %v", err)
	}
}

func TestChain_ContinuesOnNotFound(t *testing.T) {
	want := &elm.Library{Identifier: elm.VersionedIdentifier{ID: "Lib"}}
	chain := NewChain(NewMemorySource(), NewMemorySource(want))

	got, err := chain.LoadLibrary(context.Background(), want.Identifier)
	if err != nil || got != want {
		t.Errorf("LoadLibrary() = %v, %v", got, err)
	}
}

func TestChain_StopsOnOtherErrors(t *testing.T) {
	boom := errors.New("boom")
	failing := SourceFunc(func(context.Context, elm.VersionedIdentifier) (*elm.Library, error) {
		return nil, boom
	})
	want := &elm.Library{Identifier: elm.VersionedIdentifier{ID: "Lib"}}
	chain := NewChain(failing)
	chain.Add(NewMemorySource(want))

	if _, err := chain.LoadLibrary(context.Background(), want.Identifier); !errors.Is(err, boom) {
		t.Errorf("LoadLibrary() error = %v; want %v", err, boom)
	}
}

func TestChain_Empty(t *testing.T) {
	if _, err := NewChain().LoadLibrary(context.Background(), elm.VersionedIdentifier{ID: "X"}); !errors.Is(err, er.ErrNotFound) {
		t.Errorf("LoadLibrary() error = %v; want ErrNotFound", err)
	}
}

func TestManager_CachesHandles(t *testing.T) {
	var (
		mu    sync.Mutex
		loads int
	)
	tree := &elm.Library{Identifier: elm.VersionedIdentifier{ID: "Lib", Version: "1.0"}}
	src := SourceFunc(func(_ context.Context, id elm.VersionedIdentifier) (*elm.Library, error) {
		mu.Lock()
		loads++
		mu.Unlock()
		if id.Matches(tree.Identifier) {
			return tree, nil
		}
		return nil, er.ErrNotFound
	})

	metrics := er.NewMetrics()
	m := NewManagerWithOptions([]Source{src}, []ManagerOption{WithCacheSize(4), WithMetrics(metrics)})

	first, err := m.ResolveLibrary(context.Background(), tree.Identifier)
	if err != nil {
		t.Fatalf("ResolveLibrary() error = %v", err)
	}
	second, err := m.ResolveLibrary(context.Background(), tree.Identifier)
	if err != nil {
		t.Fatalf("ResolveLibrary() error = %v", err)
	}
	if first != second {
		t.Error("ResolveLibrary() should return the cached handle")
	}
	if loads != 1 {
		t.Errorf("loads = %d; want 1", loads)
	}
	if metrics.CacheHits() != 1 || metrics.CacheMisses() != 1 {
		t.Errorf("metrics hits/misses = %d/%d; want 1/1", metrics.CacheHits(), metrics.CacheMisses())
	}
	if stats := m.CacheStats(); stats.Size != 1 || stats.Capacity != 4 {
		t.Errorf("CacheStats() = %+v", stats)
	}
}

func TestManager_SameHandleForMatchingIdentifiers(t *testing.T) {
	var loads int
	versioned := elm.VersionedIdentifier{ID: "Helpers", Version: "2.0.0"}
	unversioned := elm.VersionedIdentifier{ID: "Helpers"}
	// Every load decodes a fresh tree, as FSSource does.
	src := SourceFunc(func(_ context.Context, id elm.VersionedIdentifier) (*elm.Library, error) {
		if !id.Matches(versioned) {
			return nil, er.ErrNotFound
		}
		loads++
		return &elm.Library{Identifier: versioned}, nil
	})

	t.Run("unversioned first", func(t *testing.T) {
		loads = 0
		m := NewManager(src)
		a, err := m.ResolveLibrary(context.Background(), unversioned)
		if err != nil {
			t.Fatalf("ResolveLibrary(Helpers) error = %v", err)
		}
		b, err := m.ResolveLibrary(context.Background(), versioned)
		if err != nil {
			t.Fatalf("ResolveLibrary(Helpers|2.0.0) error = %v", err)
		}
		if a != b || a.ELM() != b.ELM() {
			t.Error("ResolveLibrary() should return one handle for Helpers and Helpers|2.0.0")
		}
		if loads != 1 {
			t.Errorf("loads = %d; want 1", loads)
		}
	})

	t.Run("versioned first", func(t *testing.T) {
		loads = 0
		m := NewManager(src)
		a, err := m.ResolveLibrary(context.Background(), versioned)
		if err != nil {
			t.Fatalf("ResolveLibrary(Helpers|2.0.0) error = %v", err)
		}
		b, err := m.ResolveLibrary(context.Background(), unversioned)
		if err != nil {
			t.Fatalf("ResolveLibrary(Helpers) error = %v", err)
		}
		if a != b {
			t.Error("ResolveLibrary() should return one handle for Helpers|2.0.0 and Helpers")
		}
		c, _ := m.ResolveLibrary(context.Background(), unversioned)
		if c != a {
			t.Error("the unversioned key should now be cached")
		}
	})
}

func TestManager_Errors(t *testing.T) {
	m := NewManager()

	if _, err := m.ResolveLibrary(context.Background(), elm.VersionedIdentifier{}); !errors.Is(err, er.ErrNotFound) {
		t.Errorf("ResolveLibrary(zero) error = %v; want ErrNotFound", err)
	}
	if _, err := m.ResolveLibrary(context.Background(), elm.VersionedIdentifier{ID: "Missing"}); !errors.Is(err, er.ErrNotFound) {
		t.Errorf("ResolveLibrary(Missing) error = %v; want ErrNotFound", err)
	}

	lib := &elm.Library{Identifier: elm.VersionedIdentifier{ID: "Missing"}}
	m.AddSource(NewMemorySource(lib))
	got, err := m.ResolveLibrary(context.Background(), lib.Identifier)
	if err != nil || got.ELM() != lib {
		t.Errorf("ResolveLibrary() after AddSource = %v, %v", got, err)
	}
}
