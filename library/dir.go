package library

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"slices"
	"strconv"
	"strings"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/loader"
)

// FSSource loads ELM JSON libraries from a file system. A library with id
// Name and version V is looked up as "Name-V.json", then "Name.json". A
// library requested without a version is looked up as "Name.json", then as
// the highest versioned "Name-*.json" declaring it.
type FSSource struct {
	fsys fs.FS
}

// NewDirSource creates a source reading from directory dir.
func NewDirSource(dir string) *FSSource {
	return &FSSource{fsys: os.DirFS(dir)}
}

// NewFSSource creates a source reading from fsys.
func NewFSSource(fsys fs.FS) *FSSource {
	return &FSSource{fsys: fsys}
}

// LoadLibrary decodes the file for id.
func (s *FSSource) LoadLibrary(ctx context.Context, id elm.VersionedIdentifier) (*elm.Library, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	candidates, err := s.candidateFiles(id)
	if err != nil {
		return nil, err
	}
	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		data, err := fs.ReadFile(s.fsys, c.name)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", c.name, err)
		}
		lib, err := loader.DecodeLibrary(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", c.name, err)
		}
		if !lib.Identifier.Matches(id) {
			if c.guessed {
				continue
			}
			return nil, fmt.Errorf("%s declares library %s, want %s", c.name, lib.Identifier, id)
		}
		return lib, nil
	}
	return nil, fmt.Errorf("%w: library %s", er.ErrNotFound, id)
}

// List returns the identifiers of every library file in the root of the
// file system, in directory order.
func (s *FSSource) List() ([]elm.VersionedIdentifier, error) {
	entries, err := fs.ReadDir(s.fsys, ".")
	if err != nil {
		return nil, err
	}
	var ids []elm.VersionedIdentifier
	for _, e := range entries {
		if e.IsDir() || path.Ext(e.Name()) != ".json" {
			continue
		}
		data, err := fs.ReadFile(s.fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		id, err := loader.DecodeIdentifier(data)
		if err != nil {
			return nil, fmt.Errorf("decoding %s: %w", e.Name(), err)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// candidate is a file that may hold a library. A guessed candidate was
// found by pattern and may declare another library.
type candidate struct {
	name    string
	guessed bool
}

func (s *FSSource) candidateFiles(id elm.VersionedIdentifier) ([]candidate, error) {
	base := strings.ReplaceAll(id.ID, "/", "_")
	if id.Version != "" {
		return []candidate{{name: base + "-" + id.Version + ".json"}, {name: base + ".json"}}, nil
	}

	out := []candidate{{name: base + ".json"}}
	matches, err := fs.Glob(s.fsys, base+"-*.json")
	if err != nil {
		return nil, fmt.Errorf("listing versions of %s: %w", id, err)
	}
	versionOf := func(name string) string {
		return strings.TrimSuffix(strings.TrimPrefix(name, base+"-"), ".json")
	}
	slices.SortFunc(matches, func(a, b string) int {
		return compareVersions(versionOf(b), versionOf(a))
	})
	for _, name := range matches {
		out = append(out, candidate{name: name, guessed: true})
	}
	return out, nil
}

// compareVersions orders dotted versions segment by segment, numerically
// where both segments are numbers.
func compareVersions(a, b string) int {
	as, bs := strings.Split(a, "."), strings.Split(b, ".")
	for i := 0; i < len(as) && i < len(bs); i++ {
		x, errX := strconv.Atoi(as[i])
		y, errY := strconv.Atoi(bs[i])
		if errX == nil && errY == nil {
			if c := cmp.Compare(x, y); c != 0 {
				return c
			}
			continue
		}
		if c := strings.Compare(as[i], bs[i]); c != 0 {
			return c
		}
	}
	return cmp.Compare(len(as), len(bs))
}
