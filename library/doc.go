// Package library resolves library identifiers to compiled libraries.
//
// A Manager tries a chain of Sources in order and keeps the resulting
// Library handles in an LRU cache. A Library handle indexes the
// definitions of one compiled library by name.
//
// Usage:
//
//	mgr := library.NewManager(
//	    library.NewMemorySource(helpers),
//	    library.NewDirSource("./elm"),
//	)
//	lib, err := mgr.ResolveLibrary(ctx, elm.VersionedIdentifier{ID: "Common"})
package library
