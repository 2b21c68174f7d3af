package inference

import (
	"context"
	"fmt"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/requirements"
)

// prepareLibraryVisit returns the library a reference qualified by
// localName points to. With an empty localName it is the library id
// itself. Otherwise the include is visited if needed and its target is
// pushed as the current library; callers must undo the push with
// unprepareLibraryVisit.
func (c *Context) prepareLibraryVisit(ctx context.Context, id elm.VersionedIdentifier, localName string) (*library.Library, error) {
	target, err := c.ResolveLibrary(ctx, id)
	if err != nil {
		return nil, err
	}
	if localName == "" {
		return target, nil
	}

	include, err := target.ResolveInclude(localName)
	if err != nil {
		return nil, err
	}
	if err := c.visitDefinition(ctx, include); err != nil {
		return nil, err
	}
	target, err = c.ResolveLibraryFromInclude(ctx, include)
	if err != nil {
		return nil, err
	}
	c.EnterLibrary(target.Identifier())
	return target, nil
}

func (c *Context) unprepareLibraryVisit(localName string) {
	if localName != "" {
		c.ExitLibrary()
	}
}

// visitDefinition passes el to the visitor unless it was already visited.
func (c *Context) visitDefinition(ctx context.Context, el elm.Element) error {
	if c.Visited(el) {
		return nil
	}
	return c.visitor.VisitElement(ctx, el, c)
}

// ReportCodeRef visits the code definition ref points to.
func (c *Context) ReportCodeRef(ctx context.Context, ref *elm.CodeRef) error {
	if ref == nil {
		er.Violation("ReportCodeRef", "code reference required")
	}
	target, err := c.prepareLibraryVisit(ctx, c.CurrentLibraryIdentifier(), ref.LibraryName)
	if err != nil {
		return err
	}
	defer c.unprepareLibraryVisit(ref.LibraryName)

	def, err := target.ResolveCode(ref.Name)
	if err != nil {
		return err
	}
	return c.visitDefinition(ctx, def)
}

// ReportCodeSystemRef visits the code system definition ref points to.
func (c *Context) ReportCodeSystemRef(ctx context.Context, ref *elm.CodeSystemRef) error {
	if ref == nil {
		er.Violation("ReportCodeSystemRef", "code system reference required")
	}
	target, err := c.prepareLibraryVisit(ctx, c.CurrentLibraryIdentifier(), ref.LibraryName)
	if err != nil {
		return err
	}
	defer c.unprepareLibraryVisit(ref.LibraryName)

	def, err := target.ResolveCodeSystem(ref.Name)
	if err != nil {
		return err
	}
	return c.visitDefinition(ctx, def)
}

// ReportConceptRef visits the concept definition ref points to.
func (c *Context) ReportConceptRef(ctx context.Context, ref *elm.ConceptRef) error {
	if ref == nil {
		er.Violation("ReportConceptRef", "concept reference required")
	}
	target, err := c.prepareLibraryVisit(ctx, c.CurrentLibraryIdentifier(), ref.LibraryName)
	if err != nil {
		return err
	}
	defer c.unprepareLibraryVisit(ref.LibraryName)

	def, err := target.ResolveConcept(ref.Name)
	if err != nil {
		return err
	}
	return c.visitDefinition(ctx, def)
}

// ReportParameterRef visits the parameter definition ref points to.
func (c *Context) ReportParameterRef(ctx context.Context, ref *elm.ParameterRef) error {
	if ref == nil {
		er.Violation("ReportParameterRef", "parameter reference required")
	}
	target, err := c.prepareLibraryVisit(ctx, c.CurrentLibraryIdentifier(), ref.LibraryName)
	if err != nil {
		return err
	}
	defer c.unprepareLibraryVisit(ref.LibraryName)

	def, err := target.ResolveParameter(ref.Name)
	if err != nil {
		return err
	}
	return c.visitDefinition(ctx, def)
}

// ReportValueSetRef visits the value set definition ref points to.
func (c *Context) ReportValueSetRef(ctx context.Context, ref *elm.ValueSetRef) error {
	if ref == nil {
		er.Violation("ReportValueSetRef", "value set reference required")
	}
	target, err := c.prepareLibraryVisit(ctx, c.CurrentLibraryIdentifier(), ref.LibraryName)
	if err != nil {
		return err
	}
	defer c.unprepareLibraryVisit(ref.LibraryName)

	def, err := target.ResolveValueSet(ref.Name)
	if err != nil {
		return err
	}
	return c.visitDefinition(ctx, def)
}

// ReportExpressionRef makes sure the definition ref points to has been
// analyzed and returns its inferred requirement. The requirements reported
// by the definition that are not part of the inferred requirement are
// reported to the current scope.
//
// A reference to a definition that is still being analyzed fails with
// ErrCyclicDefinition, or yields no requirement when cycle detection is
// disabled.
func (c *Context) ReportExpressionRef(ctx context.Context, ref *elm.ExpressionRef) (requirements.Requirement, error) {
	if ref == nil {
		er.Violation("ReportExpressionRef", "expression reference required")
	}
	target, err := c.prepareLibraryVisit(ctx, c.CurrentLibraryIdentifier(), ref.LibraryName)
	if err != nil {
		return nil, err
	}
	defer c.unprepareLibraryVisit(ref.LibraryName)

	def, err := target.ResolveExpression(ref.Name)
	if err != nil {
		return nil, err
	}
	if c.analyzing(def) {
		if c.options.DetectCycles {
			return nil, fmt.Errorf("%w: %s.%s", er.ErrCyclicDefinition, target.Identifier().ID, def.Name)
		}
		c.warn(er.IssueCyclicDefinition, "definition %s.%s references itself; its requirements are not available yet", target.Identifier().ID, def.Name)
		return nil, nil
	}
	if err := c.visitDefinition(ctx, def); err != nil {
		return nil, err
	}

	inferred := c.inferred[def]
	if reported, ok := c.reported[def]; ok {
		c.ReportRequirements(reported, inferred)
	}
	return inferred, nil
}

// ReportFunctionRef analyzes every function of the target library named
// like ref. Overloads are not distinguished. Each function is analyzed and
// reported once per run.
func (c *Context) ReportFunctionRef(ctx context.Context, ref *elm.FunctionRef) error {
	if ref == nil {
		er.Violation("ReportFunctionRef", "function reference required")
	}
	target, err := c.prepareLibraryVisit(ctx, c.CurrentLibraryIdentifier(), ref.LibraryName)
	if err != nil {
		return err
	}
	defer c.unprepareLibraryVisit(ref.LibraryName)

	overloads := target.Functions(ref.Name)
	if len(overloads) == 0 {
		c.log.Debug("no function %s in library %s", ref.Name, target.Identifier())
		lib, def := c.location()
		c.issues.Inform(er.IssueUnknownFunction, lib, def, "no function %s in library %s", ref.Name, target.Identifier())
	}
	for _, fd := range overloads {
		if c.Visited(fd) || c.analyzing(fd) {
			continue
		}
		if err := c.visitor.VisitElement(ctx, fd, c); err != nil {
			return err
		}
		c.ReportFunctionDef(fd)
	}
	return nil
}

// --- Resolution helpers ---
//
// The helpers below resolve references relative to a given library. They
// do not change the current library or report anything.

// ResolveLibrary returns the library handle for id. The first handle
// resolved for a library is kept for the rest of the run and returned for
// every identifier matching it, so each definition has one node identity
// per run.
func (c *Context) ResolveLibrary(ctx context.Context, id elm.VersionedIdentifier) (*library.Library, error) {
	if lib := c.pinnedLibrary(id, true); lib != nil {
		return lib, nil
	}
	lib, err := c.resolver.ResolveLibrary(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("resolving library %s: %w", id, err)
	}
	if pinned := c.pinnedLibrary(lib.Identifier(), false); pinned != nil {
		return pinned, nil
	}
	c.pinned = append(c.pinned, lib)
	return lib, nil
}

// pinnedLibrary returns the handle kept for id. An exact match wins; with
// matching set, a handle whose identifier Matches id is accepted.
func (c *Context) pinnedLibrary(id elm.VersionedIdentifier, matching bool) *library.Library {
	var match *library.Library
	for _, lib := range c.pinned {
		if lib.Identifier() == id {
			return lib
		}
		if matching && match == nil && lib.Identifier().Matches(id) {
			match = lib
		}
	}
	return match
}

// ResolveIncludeRef returns the include named localName in library id.
func (c *Context) ResolveIncludeRef(ctx context.Context, id elm.VersionedIdentifier, localName string) (*elm.IncludeDef, error) {
	lib, err := c.ResolveLibrary(ctx, id)
	if err != nil {
		return nil, err
	}
	return lib.ResolveInclude(localName)
}

// ResolveLibraryFromInclude returns the library an include points to.
func (c *Context) ResolveLibraryFromInclude(ctx context.Context, include *elm.IncludeDef) (*library.Library, error) {
	if include == nil {
		er.Violation("ResolveLibraryFromInclude", "include required")
	}
	return c.ResolveLibrary(ctx, include.Identifier())
}

// ResolveLibraryRef returns the library known as localName in library id,
// or library id itself when localName is empty.
func (c *Context) ResolveLibraryRef(ctx context.Context, id elm.VersionedIdentifier, localName string) (*library.Library, error) {
	if localName == "" {
		return c.ResolveLibrary(ctx, id)
	}
	include, err := c.ResolveIncludeRef(ctx, id, localName)
	if err != nil {
		return nil, err
	}
	return c.ResolveLibraryFromInclude(ctx, include)
}

// ResolveCodeRef returns the code definition ref points to, relative to
// library id.
func (c *Context) ResolveCodeRef(ctx context.Context, id elm.VersionedIdentifier, ref *elm.CodeRef) (*elm.CodeDef, error) {
	lib, err := c.ResolveLibraryRef(ctx, id, ref.LibraryName)
	if err != nil {
		return nil, err
	}
	return lib.ResolveCode(ref.Name)
}

// ResolveConceptRef returns the concept definition ref points to, relative
// to library id.
func (c *Context) ResolveConceptRef(ctx context.Context, id elm.VersionedIdentifier, ref *elm.ConceptRef) (*elm.ConceptDef, error) {
	lib, err := c.ResolveLibraryRef(ctx, id, ref.LibraryName)
	if err != nil {
		return nil, err
	}
	return lib.ResolveConcept(ref.Name)
}

// ResolveCodeSystemRef returns the code system definition ref points to,
// relative to library id.
func (c *Context) ResolveCodeSystemRef(ctx context.Context, id elm.VersionedIdentifier, ref *elm.CodeSystemRef) (*elm.CodeSystemDef, error) {
	lib, err := c.ResolveLibraryRef(ctx, id, ref.LibraryName)
	if err != nil {
		return nil, err
	}
	return lib.ResolveCodeSystem(ref.Name)
}

// ResolveValueSetRef returns the value set definition ref points to,
// relative to library id.
func (c *Context) ResolveValueSetRef(ctx context.Context, id elm.VersionedIdentifier, ref *elm.ValueSetRef) (*elm.ValueSetDef, error) {
	lib, err := c.ResolveLibraryRef(ctx, id, ref.LibraryName)
	if err != nil {
		return nil, err
	}
	return lib.ResolveValueSet(ref.Name)
}
