package report

import (
	"sync"

	"github.com/gofhir/fhirpath"
)

// pathChecker compiles must-support paths as FHIRPath expressions and
// caches the outcome per path.
type pathChecker struct {
	enabled bool

	mu    sync.Mutex
	cache map[string]error
}

func newPathChecker(enabled bool) *pathChecker {
	return &pathChecker{
		enabled: enabled,
		cache:   make(map[string]error),
	}
}

// check returns the compile error of path, or nil when path is a valid
// FHIRPath expression or checking is disabled.
func (c *pathChecker) check(path string) error {
	if !c.enabled {
		return nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if err, ok := c.cache[path]; ok {
		return err
	}
	_, err := fhirpath.Compile(path)
	c.cache[path] = err
	return err
}

// size returns the number of cached paths.
func (c *pathChecker) size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.cache)
}
