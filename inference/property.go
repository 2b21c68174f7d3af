package inference

import (
	"fmt"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/requirements"
)

// ReportProperty binds property to what its source is rooted in and
// returns the resulting property requirement. In order of precedence:
//
//  1. An alias, named by the property scope or by an AliasRef source. The
//     current query is searched first, then the enclosing queries.
//  2. A let clause, named by a QueryLetRef source.
//  3. Another property. The paths are joined and the joined property is
//     bound instead.
//  4. Any other source is bound by its result type to a synthesized
//     retrieve shared by all unbound accesses on that type.
//
// When the source type cannot be determined, no requirement is recorded
// and ReportProperty returns nil, nil.
func (c *Context) ReportProperty(property *elm.Property) (*requirements.PropertyRequirement, error) {
	if property == nil {
		er.Violation("ReportProperty", "property required")
	}

	if name, ok := aliasName(property); ok {
		alias, inCurrentScope, err := c.resolveAliasFromCurrent(name)
		if err != nil {
			return nil, err
		}
		pr := requirements.NewPropertyRequirement(c.CurrentLibraryIdentifier(), property, alias.QuerySource(), inCurrentScope)
		alias.ReportProperty(pr)
		return pr, nil
	}

	switch source := property.Source.(type) {
	case *elm.QueryLetRef:
		let, inCurrentScope, err := c.resolveLetFromCurrent(source.Name)
		if err != nil {
			return nil, err
		}
		pr := requirements.NewPropertyRequirement(c.CurrentLibraryIdentifier(), property, let.LetClause(), inCurrentScope)
		let.ReportProperty(pr)
		return pr, nil

	case *elm.Property:
		return c.ReportProperty(qualify(property, source))
	}

	typeName := typeOf(property.Source)
	if typeName.IsZero() {
		c.warn(er.IssueUnresolvedPropertyType, "cannot determine the source type of property %q", property.Path)
		if c.metrics != nil {
			c.metrics.RecordUnresolvedProperty()
		}
		return nil, nil
	}
	dr := c.dataRequirementForType(typeName)
	pr := requirements.NewPropertyRequirement(c.CurrentLibraryIdentifier(), property, property.Source, false)
	dr.ReportProperty(pr)
	return pr, nil
}

func aliasName(property *elm.Property) (string, bool) {
	if property.Scope != "" {
		return property.Scope, true
	}
	if ref, ok := property.Source.(*elm.AliasRef); ok {
		return ref.Name, true
	}
	return "", false
}

// resolveAliasFromCurrent looks name up in the current query, then in the
// enclosing ones. The flag is true when the current query declares it.
func (c *Context) resolveAliasFromCurrent(name string) (*AliasContext, bool, error) {
	current := c.CurrentQueryContext()
	if current == nil {
		return nil, false, fmt.Errorf("%w: alias %q", er.ErrNoQueryContext, name)
	}
	if a := current.ResolveAlias(name); a != nil {
		return a, true, nil
	}
	a, err := c.ResolveAlias(name)
	if err != nil {
		return nil, false, err
	}
	return a, false, nil
}

func (c *Context) resolveLetFromCurrent(name string) (*LetContext, bool, error) {
	current := c.CurrentQueryContext()
	if current == nil {
		return nil, false, fmt.Errorf("%w: let %q", er.ErrNoQueryContext, name)
	}
	if l := current.ResolveLet(name); l != nil {
		return l, true, nil
	}
	l, err := c.ResolveLet(name)
	if err != nil {
		return nil, false, err
	}
	return l, false, nil
}

// qualify joins outer onto inner: the result has inner's source, scope and
// local id, outer's result type, and the path "inner.outer".
func qualify(outer, inner *elm.Property) *elm.Property {
	name, spec := elm.ResultTypeOf(outer)
	q := &elm.Property{
		Path:   inner.Path + "." + outer.Path,
		Scope:  inner.Scope,
		Source: inner.Source,
	}
	q.LocalID = inner.LocalID
	q.Locator = inner.Locator
	elm.SetResultType(q, name, spec)
	return q
}

// typeOf returns the nominal result type of e: its result type name, or
// the name of a named result type specifier.
func typeOf(e elm.Expression) elm.QName {
	if e == nil {
		return elm.QName{}
	}
	name, spec := elm.ResultTypeOf(e)
	if !name.IsZero() {
		return name
	}
	if named, ok := spec.(*elm.NamedTypeSpecifier); ok {
		return named.Name
	}
	return elm.QName{}
}

// dataRequirementForType returns the run-wide data requirement for
// unbound accesses on typeName, synthesizing and reporting its retrieve on
// first use.
func (c *Context) dataRequirementForType(typeName elm.QName) *requirements.DataRequirement {
	if dr, ok := c.unbound[typeName]; ok {
		return dr
	}
	retrieve := &elm.Retrieve{DataType: typeName}
	if typeName.Namespace != "" && typeName.Local != "" {
		retrieve.TemplateID = typeName.Namespace + "/" + typeName.Local
	}
	retrieve.LocalID = c.GenerateLocalID()

	dr := requirements.NewDataRequirement(c.CurrentLibraryIdentifier(), retrieve)
	c.unbound[typeName] = dr
	c.reportRequirement(dr)
	if c.metrics != nil {
		c.metrics.RecordUnboundRequirement()
	}
	c.log.Debug("synthesized retrieve %s for unbound properties of %s", retrieve.LocalID, typeName)
	return dr
}

// UnboundDataRequirements returns the synthesized data requirements keyed
// by type name.
func (c *Context) UnboundDataRequirements() map[elm.QName]*requirements.DataRequirement {
	out := make(map[elm.QName]*requirements.DataRequirement, len(c.unbound))
	for k, v := range c.unbound {
		out[k] = v
	}
	return out
}
