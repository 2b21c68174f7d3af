package inference

import (
	"errors"
	"fmt"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/pkg/logger"
	"github.com/gofhir/elmrequirements/requirements"
)

// resultOwner is the owner of the run-wide requirement set.
var resultOwner = elm.VersionedIdentifier{ID: "result"}

// Context is the state of one analysis run.
type Context struct {
	resolver library.Resolver
	visitor  Visitor
	options  *er.Options
	log      *logger.Logger
	metrics  *er.Metrics
	issues   *er.Diagnostics

	nextLocalID int

	libraries []elm.VersionedIdentifier
	pinned    []*library.Library
	defs      []*ExpressionDefContext

	visited      map[elm.Element]struct{}
	requirements *requirements.Requirements

	reported map[elm.ExpressionDefinition]*requirements.Requirements
	inferred map[elm.ExpressionDefinition]requirements.Requirement

	unbound map[elm.QName]*requirements.DataRequirement
}

// NewContext creates the state for one analysis run. Libraries are
// resolved through resolver and definitions that need analysis are passed
// to visitor.
func NewContext(resolver library.Resolver, visitor Visitor, opts ...er.Option) (*Context, error) {
	if resolver == nil {
		return nil, errors.New("inference: library resolver required")
	}
	if visitor == nil {
		return nil, errors.New("inference: visitor required")
	}
	o := er.Apply(opts...)
	return &Context{
		resolver:     resolver,
		visitor:      visitor,
		options:      o,
		log:          o.Logger,
		metrics:      o.Metrics,
		issues:       er.NewDiagnostics(),
		nextLocalID:  o.SyntheticIDStart,
		visited:      make(map[elm.Element]struct{}),
		requirements: requirements.NewRequirements(resultOwner, &elm.Null{}),
		reported:     make(map[elm.ExpressionDefinition]*requirements.Requirements),
		inferred:     make(map[elm.ExpressionDefinition]requirements.Requirement),
		unbound:      make(map[elm.QName]*requirements.DataRequirement),
	}, nil
}

// Options returns the options of the run.
func (c *Context) Options() *er.Options {
	return c.options
}

// Logger returns the logger of the run.
func (c *Context) Logger() *logger.Logger {
	return c.log
}

// Diagnostics returns the issues recorded during the run.
func (c *Context) Diagnostics() *er.Diagnostics {
	return c.issues
}

// warn logs and records a warning against the current library and
// definition.
func (c *Context) warn(code er.IssueCode, format string, args ...any) {
	c.log.Warn(format, args...)
	lib, def := c.location()
	c.issues.Warn(code, lib, def, format, args...)
}

// location names the current library and definition, when active.
func (c *Context) location() (lib, def string) {
	if len(c.libraries) > 0 {
		lib = c.libraries[len(c.libraries)-1].String()
	}
	if len(c.defs) > 0 {
		def = elm.DefOf(c.defs[len(c.defs)-1].def).Name
	}
	return lib, def
}

// Visitor returns the visitor driving the run.
func (c *Context) Visitor() Visitor {
	return c.visitor
}

// Resolver returns the library resolver.
func (c *Context) Resolver() library.Resolver {
	return c.resolver
}

// GenerateLocalID returns a new local id for a synthesized node. Ids are
// "G" followed by an integer greater than the configured start.
func (c *Context) GenerateLocalID() string {
	c.nextLocalID++
	return fmt.Sprintf("G%d", c.nextLocalID)
}

// Requirements returns the run-wide requirement set.
func (c *Context) Requirements() *requirements.Requirements {
	return c.requirements
}

// Visited reports whether el has been reported as a definition.
func (c *Context) Visited(el elm.Element) bool {
	_, ok := c.visited[el]
	return ok
}

// --- Library scope ---

// EnterLibrary makes id the current library.
func (c *Context) EnterLibrary(id elm.VersionedIdentifier) {
	if id.IsZero() {
		er.Violation("EnterLibrary", "library identifier required")
	}
	c.libraries = append(c.libraries, id)
}

// ExitLibrary restores the previous library.
func (c *Context) ExitLibrary() {
	if len(c.libraries) == 0 {
		er.Violation("ExitLibrary", "not in a library context")
	}
	c.libraries = c.libraries[:len(c.libraries)-1]
}

// CurrentLibraryIdentifier returns the current library.
func (c *Context) CurrentLibraryIdentifier() elm.VersionedIdentifier {
	if len(c.libraries) == 0 {
		er.Violation("CurrentLibraryIdentifier", "not in a library context")
	}
	return c.libraries[len(c.libraries)-1]
}

// InLibraryContext reports whether a library is active.
func (c *Context) InLibraryContext() bool {
	return len(c.libraries) > 0
}

// LibraryDepth returns the number of active library scopes.
func (c *Context) LibraryDepth() int {
	return len(c.libraries)
}

// --- Expression definition scope ---

// EnterExpressionDef starts the analysis of def in the current library.
func (c *Context) EnterExpressionDef(def elm.ExpressionDefinition) {
	if def == nil {
		er.Violation("EnterExpressionDef", "expression definition required")
	}
	c.defs = append(c.defs, newExpressionDefContext(c.CurrentLibraryIdentifier(), def))
	c.log.Debug("enter %s.%s", c.CurrentLibraryIdentifier().ID, elm.DefOf(def).Name)
}

// ExitExpressionDef completes the innermost definition. The requirements
// reported while it was active and inferred are memoized for the
// definition, and the definition itself is reported.
func (c *Context) ExitExpressionDef(inferred requirements.Requirement) {
	if len(c.defs) == 0 {
		er.Violation("ExitExpressionDef", "not in an expression definition context")
	}
	ec := c.defs[len(c.defs)-1]
	c.defs = c.defs[:len(c.defs)-1]

	if ec.InQueryContext() {
		er.Violation("ExitExpressionDef", "%d query scopes still open in %s", ec.QueryDepth(), elm.DefOf(ec.def).Name)
	}

	c.reportDefinition(ec.library, ec.def)
	c.reported[ec.def] = ec.reported
	c.inferred[ec.def] = inferred
	if c.metrics != nil {
		c.metrics.RecordDefinitionVisit(ec.library.String())
	}
}

// AbortExpressionDef pops the innermost definition without memoizing or
// reporting it. Visitors call it when the analysis of the body failed.
func (c *Context) AbortExpressionDef() {
	if len(c.defs) == 0 {
		er.Violation("AbortExpressionDef", "not in an expression definition context")
	}
	c.defs = c.defs[:len(c.defs)-1]
}

// CurrentExpressionDefContext returns the innermost definition scope.
func (c *Context) CurrentExpressionDefContext() *ExpressionDefContext {
	if len(c.defs) == 0 {
		er.Violation("CurrentExpressionDefContext", "expression definition is not in progress")
	}
	return c.defs[len(c.defs)-1]
}

// InExpressionDefContext reports whether a definition is being analyzed.
func (c *Context) InExpressionDefContext() bool {
	return len(c.defs) > 0
}

// ExpressionDefDepth returns the number of active definition scopes.
func (c *Context) ExpressionDefDepth() int {
	return len(c.defs)
}

// analyzing reports whether def is on the definition stack.
func (c *Context) analyzing(def elm.ExpressionDefinition) bool {
	for _, ec := range c.defs {
		if ec.def == def {
			return true
		}
	}
	return false
}

// ReportedRequirements returns the requirements reported while def was
// analyzed.
func (c *Context) ReportedRequirements(def elm.ExpressionDefinition) (*requirements.Requirements, bool) {
	r, ok := c.reported[def]
	return r, ok
}

// InferredRequirements returns the requirement inferred for def. The value
// may be nil when the visitor inferred nothing.
func (c *Context) InferredRequirements(def elm.ExpressionDefinition) (requirements.Requirement, bool) {
	r, ok := c.inferred[def]
	return r, ok
}

// --- Query scope ---

// EnterQueryContext pushes a query scope in the current definition.
func (c *Context) EnterQueryContext(query *elm.Query) *QueryContext {
	if !c.InExpressionDefContext() {
		er.Violation("EnterQueryContext", "expression definition is not in progress")
	}
	return c.CurrentExpressionDefContext().EnterQueryContext(query)
}

// ExitQueryContext pops the innermost query scope.
func (c *Context) ExitQueryContext() *QueryContext {
	if !c.InExpressionDefContext() {
		er.Violation("ExitQueryContext", "expression definition is not in progress")
	}
	return c.CurrentExpressionDefContext().ExitQueryContext()
}

// CurrentQueryContext returns the innermost query scope of the current
// definition, or nil.
func (c *Context) CurrentQueryContext() *QueryContext {
	if !c.InExpressionDefContext() {
		return nil
	}
	return c.CurrentExpressionDefContext().CurrentQueryContext()
}

// InQueryContext reports whether a query scope is active in the current
// definition.
func (c *Context) InQueryContext() bool {
	return c.InExpressionDefContext() && c.CurrentExpressionDefContext().InQueryContext()
}

// ResolveAlias resolves name against the queries of the current definition,
// innermost first.
func (c *Context) ResolveAlias(name string) (*AliasContext, error) {
	if !c.InExpressionDefContext() {
		return nil, fmt.Errorf("%w: alias %q", er.ErrNoExpressionDef, name)
	}
	return c.CurrentExpressionDefContext().ResolveAlias(name)
}

// ResolveLet resolves name against the queries of the current definition,
// innermost first.
func (c *Context) ResolveLet(name string) (*LetContext, error) {
	if !c.InExpressionDefContext() {
		return nil, fmt.Errorf("%w: let %q", er.ErrNoExpressionDef, name)
	}
	return c.CurrentExpressionDefContext().ResolveLet(name)
}

// --- Reporting ---

// reportRequirement routes r to its owner. Definitions go to the run-wide
// set and are marked visited; anything else goes to the innermost
// definition scope, or the run-wide set when none is active.
func (c *Context) reportRequirement(r requirements.Requirement) {
	var added bool
	switch {
	case elm.IsDefinition(r.Element()):
		c.visited[r.Element()] = struct{}{}
		added = c.requirements.Report(r)
	case len(c.defs) > 0:
		added = c.defs[len(c.defs)-1].reportRequirement(r)
	default:
		added = c.requirements.Report(r)
	}
	if added && c.metrics != nil {
		c.metrics.RecordRequirement()
	}
}

func (c *Context) reportElement(el elm.Element) {
	c.reportRequirement(requirements.NewRecord(c.CurrentLibraryIdentifier(), el))
}

func (c *Context) reportDefinition(library elm.VersionedIdentifier, def elm.ExpressionDefinition) {
	if elm.IsFunction(def) {
		return
	}
	c.reportRequirement(requirements.NewRecord(library, def))
}

// ReportUsingDef reports a using declaration.
func (c *Context) ReportUsingDef(d *elm.UsingDef) {
	c.reportElement(d)
}

// ReportIncludeDef reports an include declaration.
func (c *Context) ReportIncludeDef(d *elm.IncludeDef) {
	c.reportElement(d)
}

// ReportContextDef reports a context declaration.
func (c *Context) ReportContextDef(d *elm.ContextDef) {
	c.reportElement(d)
}

// ReportCodeDef reports a code definition.
func (c *Context) ReportCodeDef(d *elm.CodeDef) {
	c.reportElement(d)
}

// ReportCodeSystemDef reports a code system definition.
func (c *Context) ReportCodeSystemDef(d *elm.CodeSystemDef) {
	c.reportElement(d)
}

// ReportConceptDef reports a concept definition.
func (c *Context) ReportConceptDef(d *elm.ConceptDef) {
	c.reportElement(d)
}

// ReportParameterDef reports a parameter definition.
func (c *Context) ReportParameterDef(d *elm.ParameterDef) {
	c.reportElement(d)
}

// ReportValueSetDef reports a value set definition.
func (c *Context) ReportValueSetDef(d *elm.ValueSetDef) {
	c.reportElement(d)
}

// ReportExpressionDef reports an expression definition. Function
// definitions are ignored; they are reported by ReportFunctionRef.
func (c *Context) ReportExpressionDef(d elm.ExpressionDefinition) {
	if d == nil || elm.IsFunction(d) {
		return
	}
	c.reportElement(d)
}

// ReportFunctionDef reports a function definition.
func (c *Context) ReportFunctionDef(d *elm.FunctionDef) {
	c.reportElement(d)
}

// ReportRetrieve reports retrieve as a plain requirement of the current
// scope.
func (c *Context) ReportRetrieve(retrieve *elm.Retrieve) {
	if retrieve == nil {
		er.Violation("ReportRetrieve", "retrieve required")
	}
	c.reportElement(retrieve)
}

// ReportRequirements reports each member of an aggregate requirement that
// is not already part of inferred. Requirements sets and query
// requirements are aggregates; anything else is reported as is.
func (c *Context) ReportRequirements(r requirements.Requirement, inferred requirements.Requirement) {
	if r == nil {
		return
	}
	covered := func(child requirements.Requirement) bool {
		return inferred != nil && inferred.HasRequirement(child)
	}

	switch r := r.(type) {
	case *requirements.Requirements:
		for _, child := range r.Requirements() {
			if !covered(child) {
				c.reportRequirement(child)
			}
		}
	case *requirements.QueryRequirement:
		for _, dr := range r.DataRequirements() {
			if !covered(dr) {
				c.reportRequirement(dr)
			}
		}
	default:
		c.reportRequirement(r)
	}
}
