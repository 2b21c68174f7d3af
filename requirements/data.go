package requirements

import "github.com/gofhir/elmrequirements/elm"

// DataRequirement is a requirement on a retrieve together with the
// properties accessed on the data it returns.
type DataRequirement struct {
	Record
	properties []*PropertyRequirement
}

// NewDataRequirement creates a data requirement for retrieve.
func NewDataRequirement(library elm.VersionedIdentifier, retrieve *elm.Retrieve) *DataRequirement {
	return &DataRequirement{Record: Record{libraryIdentifier: library, element: retrieve}}
}

// Retrieve returns the retrieve node.
func (d *DataRequirement) Retrieve() *elm.Retrieve {
	return d.element.(*elm.Retrieve)
}

// ReportProperty attaches p. Reporting the same property node twice has no
// effect.
func (d *DataRequirement) ReportProperty(p *PropertyRequirement) {
	for _, existing := range d.properties {
		if existing.element == p.element {
			return
		}
	}
	d.properties = append(d.properties, p)
}

// Properties returns the attached property requirements in report order.
func (d *DataRequirement) Properties() []*PropertyRequirement {
	out := make([]*PropertyRequirement, len(d.properties))
	copy(out, d.properties)
	return out
}

// HasRequirement reports whether r is the retrieve or one of its properties.
func (d *DataRequirement) HasRequirement(r Requirement) bool {
	if d.Record.HasRequirement(r) {
		return true
	}
	for _, p := range d.properties {
		if p.HasRequirement(r) {
			return true
		}
	}
	return false
}

// QueryRequirement aggregates the data requirements discovered within one
// query.
type QueryRequirement struct {
	Record
	dataRequirements []*DataRequirement
}

// NewQueryRequirement creates an empty requirement for query.
func NewQueryRequirement(library elm.VersionedIdentifier, query *elm.Query) *QueryRequirement {
	return &QueryRequirement{Record: Record{libraryIdentifier: library, element: query}}
}

// Query returns the query node.
func (q *QueryRequirement) Query() *elm.Query {
	return q.element.(*elm.Query)
}

// AddDataRequirement appends d unless an equal requirement is present.
func (q *QueryRequirement) AddDataRequirement(d *DataRequirement) {
	if d == nil {
		return
	}
	for _, existing := range q.dataRequirements {
		if Equal(existing, d) {
			return
		}
	}
	q.dataRequirements = append(q.dataRequirements, d)
}

// DataRequirements returns the aggregated data requirements.
func (q *QueryRequirement) DataRequirements() []*DataRequirement {
	out := make([]*DataRequirement, len(q.dataRequirements))
	copy(out, q.dataRequirements)
	return out
}

// HasRequirement reports whether r is the query or is contained in one of
// its data requirements.
func (q *QueryRequirement) HasRequirement(r Requirement) bool {
	if q.Record.HasRequirement(r) {
		return true
	}
	for _, d := range q.dataRequirements {
		if d.HasRequirement(r) {
			return true
		}
	}
	return false
}

// PropertyRequirement is a property access resolved to the node it is
// rooted in: an alias source, a let clause, or the source expression of an
// unbound property.
type PropertyRequirement struct {
	Record
	source         elm.Element
	inCurrentScope bool
}

// NewPropertyRequirement creates a property requirement.
func NewPropertyRequirement(library elm.VersionedIdentifier, property *elm.Property, source elm.Element, inCurrentScope bool) *PropertyRequirement {
	return &PropertyRequirement{
		Record:         Record{libraryIdentifier: library, element: property},
		source:         source,
		inCurrentScope: inCurrentScope,
	}
}

// Property returns the property node.
func (p *PropertyRequirement) Property() *elm.Property {
	return p.element.(*elm.Property)
}

// Path returns the dotted property path.
func (p *PropertyRequirement) Path() string {
	return p.Property().Path
}

// Source returns the node the property is rooted in.
func (p *PropertyRequirement) Source() elm.Element {
	return p.source
}

// InCurrentScope reports whether the binding was found in the innermost
// query rather than an enclosing one.
func (p *PropertyRequirement) InCurrentScope() bool {
	return p.inCurrentScope
}
