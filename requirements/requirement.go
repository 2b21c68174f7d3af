// Package requirements holds the values produced by the requirements
// analysis: single requirement records, ordered requirement sets, and the
// data, query and property requirements derived from retrieves and queries.
//
// Requirements compare by (library identifier, element identity). Two
// syntactically identical retrieves in different places are different
// requirements.
package requirements

import "github.com/gofhir/elmrequirements/elm"

// Requirement is one reportable dependency.
type Requirement interface {
	// LibraryIdentifier is the library the element belongs to.
	LibraryIdentifier() elm.VersionedIdentifier

	// Element is the node that is depended upon.
	Element() elm.Element

	// HasRequirement reports whether r is this requirement or is contained
	// in it.
	HasRequirement(r Requirement) bool
}

// key is the equality key of a requirement.
type key struct {
	library elm.VersionedIdentifier
	element elm.Element
}

func keyOf(r Requirement) key {
	return key{library: r.LibraryIdentifier(), element: r.Element()}
}

// Equal reports whether a and b denote the same element of the same library.
func Equal(a, b Requirement) bool {
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	return keyOf(a) == keyOf(b)
}

// Record is a plain requirement: element in library.
type Record struct {
	libraryIdentifier elm.VersionedIdentifier
	element           elm.Element
}

// NewRecord creates a requirement on element in library.
func NewRecord(library elm.VersionedIdentifier, element elm.Element) *Record {
	return &Record{libraryIdentifier: library, element: element}
}

// LibraryIdentifier returns the owning library.
func (r *Record) LibraryIdentifier() elm.VersionedIdentifier {
	return r.libraryIdentifier
}

// Element returns the required node.
func (r *Record) Element() elm.Element {
	return r.element
}

// HasRequirement reports whether other is on the same element.
func (r *Record) HasRequirement(other Requirement) bool {
	return other != nil && other.Element() == r.element
}
