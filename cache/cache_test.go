package cache

import (
	"errors"
	"sync"
	"testing"
)

func TestCache_Basic(t *testing.T) {
	c := New[string, int](3)

	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Get("a"); !ok || v != 1 {
		t.Errorf("Get(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Get("z"); ok {
		t.Error("Get(z) should return false for missing key")
	}
	if c.Len() != 2 {
		t.Errorf("Len() = %d; want 2", c.Len())
	}
}

func TestCache_Eviction(t *testing.T) {
	c := New[string, int](2)

	c.Set("a", 1)
	c.Set("b", 2)
	c.Get("a")
	c.Set("c", 3)

	if _, ok := c.Get("b"); ok {
		t.Error("'b' should have been evicted")
	}
	if keys := c.Keys(); len(keys) != 2 || keys[0] != "c" || keys[1] != "a" {
		t.Errorf("Keys() = %v; want [c a]", keys)
	}
	if s := c.Stats(); s.Evicts != 1 {
		t.Errorf("Evicts = %d; want 1", s.Evicts)
	}
}

func TestCache_Peek(t *testing.T) {
	c := New[string, int](2)
	c.Set("a", 1)
	c.Set("b", 2)

	if v, ok := c.Peek("a"); !ok || v != 1 {
		t.Errorf("Peek(a) = %d, %v; want 1, true", v, ok)
	}
	if _, ok := c.Peek("z"); ok {
		t.Error("Peek(z) should return false for missing key")
	}
	if s := c.Stats(); s.Hits != 0 || s.Misses != 0 {
		t.Errorf("Stats() after Peek = %+v; want no hits or misses", s)
	}

	// Peek does not refresh a, so it is still the eviction candidate.
	c.Set("c", 3)
	if _, ok := c.Peek("a"); ok {
		t.Error("'a' should have been evicted")
	}
}

func TestCache_GetOrLoad(t *testing.T) {
	c := New[string, int](2)
	calls := 0
	load := func() (int, error) {
		calls++
		return 42, nil
	}

	v, hit, err := c.GetOrLoad("x", load)
	if err != nil || hit || v != 42 {
		t.Errorf("GetOrLoad() = %d, %v, %v; want 42, false, nil", v, hit, err)
	}
	v, hit, err = c.GetOrLoad("x", load)
	if err != nil || !hit || v != 42 {
		t.Errorf("GetOrLoad() = %d, %v, %v; want 42, true, nil", v, hit, err)
	}
	if calls != 1 {
		t.Errorf("load called %d times; want 1", calls)
	}
}

func TestCache_GetOrLoadError(t *testing.T) {
	c := New[string, int](2)
	boom := errors.New("boom")

	_, _, err := c.GetOrLoad("x", func() (int, error) { return 0, boom })
	if !errors.Is(err, boom) {
		t.Errorf("err = %v; want boom", err)
	}
	if c.Len() != 0 {
		t.Error("failed loads must not be cached")
	}
}

func TestCache_DeleteAndClear(t *testing.T) {
	c := New[string, int](0)
	c.Set("a", 1)
	c.Set("b", 2)

	c.Delete("a")
	if _, ok := c.Get("a"); ok {
		t.Error("'a' should be deleted")
	}
	c.Clear()
	if c.Len() != 0 {
		t.Errorf("Len() after Clear = %d; want 0", c.Len())
	}
	if s := c.Stats(); s.Capacity != 100 {
		t.Errorf("Capacity = %d; want default 100", s.Capacity)
	}
}

func TestCache_ConcurrentLoadOnce(t *testing.T) {
	c := New[string, int](4)
	var mu sync.Mutex
	calls := 0
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, _ = c.GetOrLoad("k", func() (int, error) {
				mu.Lock()
				calls++
				mu.Unlock()
				return 1, nil
			})
		}()
	}
	wg.Wait()

	if calls != 1 {
		t.Errorf("load called %d times; want 1", calls)
	}
}
