package inference

import (
	"fmt"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/requirements"
)

// binding is the state shared by alias and let bindings: the requirement
// inferred for the bound expression and the properties reported on it.
type binding struct {
	requirement requirements.Requirement
	properties  []*requirements.PropertyRequirement
}

// Requirement returns the requirement inferred for the bound expression,
// or nil if it is not known yet.
func (b *binding) Requirement() requirements.Requirement {
	return b.requirement
}

// ReportProperty attaches p. When the bound expression inferred to a data
// requirement, p is attached to that data requirement instead.
func (b *binding) ReportProperty(p *requirements.PropertyRequirement) {
	if dr, ok := b.requirement.(*requirements.DataRequirement); ok {
		dr.ReportProperty(p)
		return
	}
	b.properties = append(b.properties, p)
}

// Properties returns the property requirements owned by the binding.
func (b *binding) Properties() []*requirements.PropertyRequirement {
	if dr, ok := b.requirement.(*requirements.DataRequirement); ok {
		return dr.Properties()
	}
	out := make([]*requirements.PropertyRequirement, len(b.properties))
	copy(out, b.properties)
	return out
}

// bind sets the inferred requirement and moves properties collected so far
// onto it when it is a data requirement.
func (b *binding) bind(r requirements.Requirement) {
	b.requirement = r
	if dr, ok := r.(*requirements.DataRequirement); ok {
		for _, p := range b.properties {
			dr.ReportProperty(p)
		}
		b.properties = nil
	}
}

// AliasContext binds a query alias to its source.
type AliasContext struct {
	binding
	source *elm.AliasedQuerySource
}

// Alias returns the alias name.
func (a *AliasContext) Alias() string {
	return a.source.Alias
}

// QuerySource returns the aliased source. For relationship clauses this is
// the clause's embedded source.
func (a *AliasContext) QuerySource() *elm.AliasedQuerySource {
	return a.source
}

// LetContext binds a let identifier to its clause.
type LetContext struct {
	binding
	clause *elm.LetClause
}

// Identifier returns the let identifier.
func (l *LetContext) Identifier() string {
	return l.clause.Identifier
}

// LetClause returns the let clause.
func (l *LetContext) LetClause() *elm.LetClause {
	return l.clause
}

// QueryContext is the scope of one query: its aliases and let bindings.
// An alias or let becomes resolvable when its definition exits.
type QueryContext struct {
	library elm.VersionedIdentifier
	query   *elm.Query
	aliases []*AliasContext
	lets    []*LetContext

	pendingAlias *AliasContext
	pendingLet   *LetContext
}

func newQueryContext(library elm.VersionedIdentifier, query *elm.Query) *QueryContext {
	return &QueryContext{library: library, query: query}
}

// Query returns the query node.
func (q *QueryContext) Query() *elm.Query {
	return q.query
}

// LibraryIdentifier returns the library the query belongs to.
func (q *QueryContext) LibraryIdentifier() elm.VersionedIdentifier {
	return q.library
}

// EnterAliasDefinition starts the definition of an alias. Only one alias
// or let may be in definition at a time.
func (q *QueryContext) EnterAliasDefinition(source *elm.AliasedQuerySource) {
	if source == nil {
		er.Violation("EnterAliasDefinition", "query source required")
	}
	if q.pendingAlias != nil || q.pendingLet != nil {
		er.Violation("EnterAliasDefinition", "alias %q entered while another definition is open", source.Alias)
	}
	q.pendingAlias = &AliasContext{source: source}
}

// ExitAliasDefinition completes the open alias definition, binding it to
// the requirement inferred for its source expression.
func (q *QueryContext) ExitAliasDefinition(inferred requirements.Requirement) *AliasContext {
	if q.pendingAlias == nil {
		er.Violation("ExitAliasDefinition", "no alias definition in progress")
	}
	a := q.pendingAlias
	q.pendingAlias = nil
	a.bind(inferred)
	q.aliases = append(q.aliases, a)
	return a
}

// EnterLetDefinition starts the definition of a let clause.
func (q *QueryContext) EnterLetDefinition(clause *elm.LetClause) {
	if clause == nil {
		er.Violation("EnterLetDefinition", "let clause required")
	}
	if q.pendingAlias != nil || q.pendingLet != nil {
		er.Violation("EnterLetDefinition", "let %q entered while another definition is open", clause.Identifier)
	}
	q.pendingLet = &LetContext{clause: clause}
}

// ExitLetDefinition completes the open let definition.
func (q *QueryContext) ExitLetDefinition(inferred requirements.Requirement) *LetContext {
	if q.pendingLet == nil {
		er.Violation("ExitLetDefinition", "no let definition in progress")
	}
	l := q.pendingLet
	q.pendingLet = nil
	l.bind(inferred)
	q.lets = append(q.lets, l)
	return l
}

// ResolveAlias returns the alias declared by this query, or nil.
func (q *QueryContext) ResolveAlias(name string) *AliasContext {
	for _, a := range q.aliases {
		if a.Alias() == name {
			return a
		}
	}
	return nil
}

// ResolveLet returns the let declared by this query, or nil.
func (q *QueryContext) ResolveLet(name string) *LetContext {
	for _, l := range q.lets {
		if l.Identifier() == name {
			return l
		}
	}
	return nil
}

// Aliases returns the aliases in declaration order.
func (q *QueryContext) Aliases() []*AliasContext {
	out := make([]*AliasContext, len(q.aliases))
	copy(out, q.aliases)
	return out
}

// Lets returns the let bindings in declaration order.
func (q *QueryContext) Lets() []*LetContext {
	out := make([]*LetContext, len(q.lets))
	copy(out, q.lets)
	return out
}

// QueryRequirement aggregates the data requirements bound to the query's
// aliases and lets.
func (q *QueryContext) QueryRequirement() *requirements.QueryRequirement {
	qr := requirements.NewQueryRequirement(q.library, q.query)
	for _, a := range q.aliases {
		addDataRequirements(qr, a.requirement)
	}
	for _, l := range q.lets {
		addDataRequirements(qr, l.requirement)
	}
	return qr
}

func addDataRequirements(qr *requirements.QueryRequirement, r requirements.Requirement) {
	switch r := r.(type) {
	case *requirements.DataRequirement:
		qr.AddDataRequirement(r)
	case *requirements.QueryRequirement:
		for _, dr := range r.DataRequirements() {
			qr.AddDataRequirement(dr)
		}
	case *requirements.Requirements:
		for _, dr := range r.DataRequirements() {
			qr.AddDataRequirement(dr)
		}
	}
}

// ExpressionDefContext is the scope of one expression definition under
// analysis. It owns the requirements reported while it is active and the
// stack of queries nested in the definition body.
type ExpressionDefContext struct {
	library  elm.VersionedIdentifier
	def      elm.ExpressionDefinition
	reported *requirements.Requirements
	queries  []*QueryContext
}

func newExpressionDefContext(library elm.VersionedIdentifier, def elm.ExpressionDefinition) *ExpressionDefContext {
	return &ExpressionDefContext{
		library:  library,
		def:      def,
		reported: requirements.NewRequirements(library, def),
	}
}

// Definition returns the definition under analysis.
func (e *ExpressionDefContext) Definition() elm.ExpressionDefinition {
	return e.def
}

// LibraryIdentifier returns the library of the definition.
func (e *ExpressionDefContext) LibraryIdentifier() elm.VersionedIdentifier {
	return e.library
}

// ReportedRequirements returns the requirements reported so far.
func (e *ExpressionDefContext) ReportedRequirements() *requirements.Requirements {
	return e.reported
}

func (e *ExpressionDefContext) reportRequirement(r requirements.Requirement) bool {
	return e.reported.Report(r)
}

// EnterQueryContext pushes a query scope.
func (e *ExpressionDefContext) EnterQueryContext(query *elm.Query) *QueryContext {
	if query == nil {
		er.Violation("EnterQueryContext", "query required")
	}
	q := newQueryContext(e.library, query)
	e.queries = append(e.queries, q)
	return q
}

// ExitQueryContext pops the innermost query scope.
func (e *ExpressionDefContext) ExitQueryContext() *QueryContext {
	if len(e.queries) == 0 {
		er.Violation("ExitQueryContext", "not in a query context")
	}
	q := e.queries[len(e.queries)-1]
	e.queries = e.queries[:len(e.queries)-1]
	return q
}

// CurrentQueryContext returns the innermost query scope, or nil.
func (e *ExpressionDefContext) CurrentQueryContext() *QueryContext {
	if len(e.queries) == 0 {
		return nil
	}
	return e.queries[len(e.queries)-1]
}

// InQueryContext reports whether a query scope is active.
func (e *ExpressionDefContext) InQueryContext() bool {
	return len(e.queries) > 0
}

// QueryDepth returns the number of active query scopes.
func (e *ExpressionDefContext) QueryDepth() int {
	return len(e.queries)
}

// ResolveAlias searches the active queries from innermost to outermost.
func (e *ExpressionDefContext) ResolveAlias(name string) (*AliasContext, error) {
	if len(e.queries) == 0 {
		return nil, fmt.Errorf("%w: alias %q", er.ErrNoQueryContext, name)
	}
	for i := len(e.queries) - 1; i >= 0; i-- {
		if a := e.queries[i].ResolveAlias(name); a != nil {
			return a, nil
		}
	}
	return nil, fmt.Errorf("%w: alias %q", er.ErrNotInScope, name)
}

// ResolveLet searches the active queries from innermost to outermost.
func (e *ExpressionDefContext) ResolveLet(name string) (*LetContext, error) {
	if len(e.queries) == 0 {
		return nil, fmt.Errorf("%w: let %q", er.ErrNoQueryContext, name)
	}
	for i := len(e.queries) - 1; i >= 0; i-- {
		if l := e.queries[i].ResolveLet(name); l != nil {
			return l, nil
		}
	}
	return nil, fmt.Errorf("%w: let %q", er.ErrNotInScope, name)
}
