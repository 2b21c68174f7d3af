package requirements

import "github.com/gofhir/elmrequirements/elm"

// Requirements is an ordered set of requirements owned by a node. Order is
// discovery order; a requirement equal to one already present is ignored.
type Requirements struct {
	Record
	items []Requirement
	index map[key]int
}

// NewRequirements creates an empty set owned by owner in library.
func NewRequirements(library elm.VersionedIdentifier, owner elm.Element) *Requirements {
	return &Requirements{
		Record: Record{libraryIdentifier: library, element: owner},
		index:  make(map[key]int),
	}
}

// Report adds r to the set. It returns false if an equal requirement was
// already present.
func (s *Requirements) Report(r Requirement) bool {
	if r == nil {
		return false
	}
	k := keyOf(r)
	if _, ok := s.index[k]; ok {
		return false
	}
	s.index[k] = len(s.items)
	s.items = append(s.items, r)
	return true
}

// Contains reports whether a requirement equal to r is in the set.
func (s *Requirements) Contains(r Requirement) bool {
	if r == nil {
		return false
	}
	_, ok := s.index[keyOf(r)]
	return ok
}

// Get returns the member equal to r.
func (s *Requirements) Get(r Requirement) (Requirement, bool) {
	if r == nil {
		return nil, false
	}
	i, ok := s.index[keyOf(r)]
	if !ok {
		return nil, false
	}
	return s.items[i], true
}

// Requirements returns the members in discovery order.
func (s *Requirements) Requirements() []Requirement {
	out := make([]Requirement, len(s.items))
	copy(out, s.items)
	return out
}

// Len returns the number of members.
func (s *Requirements) Len() int {
	return len(s.items)
}

// HasRequirement reports whether r is the owner or is contained in any
// member.
func (s *Requirements) HasRequirement(r Requirement) bool {
	if s.Record.HasRequirement(r) {
		return true
	}
	for _, item := range s.items {
		if item.HasRequirement(r) {
			return true
		}
	}
	return false
}

// DataRequirements returns the DataRequirement members.
func (s *Requirements) DataRequirements() []*DataRequirement {
	var out []*DataRequirement
	for _, item := range s.items {
		if dr, ok := item.(*DataRequirement); ok {
			out = append(out, dr)
		}
	}
	return out
}

// Filter returns the members whose element satisfies keep.
func (s *Requirements) Filter(keep func(elm.Element) bool) []Requirement {
	var out []Requirement
	for _, item := range s.items {
		if keep(item.Element()) {
			out = append(out, item)
		}
	}
	return out
}
