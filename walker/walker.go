package walker

import (
	"context"
	"fmt"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/inference"
	"github.com/gofhir/elmrequirements/requirements"
)

// Walker is the reference inference.Visitor. It walks definitions and
// expressions, reports what it finds to the inference.Context and computes
// the requirement each expression infers.
type Walker struct{}

// New creates a Walker.
func New() *Walker {
	return &Walker{}
}

var _ inference.Visitor = (*Walker)(nil)

// VisitLibrary visits every declaration of lib with lib as the current
// library. Statements already visited through a reference are skipped.
func (w *Walker) VisitLibrary(ctx context.Context, lib *elm.Library, rc *inference.Context) error {
	if lib == nil {
		return fmt.Errorf("walker: nil library")
	}
	rc.EnterLibrary(lib.Identifier)
	defer rc.ExitLibrary()

	var decls []elm.Element
	for _, d := range lib.Usings {
		decls = append(decls, d)
	}
	for _, d := range lib.Includes {
		decls = append(decls, d)
	}
	for _, d := range lib.CodeSystems {
		decls = append(decls, d)
	}
	for _, d := range lib.ValueSets {
		decls = append(decls, d)
	}
	for _, d := range lib.Codes {
		decls = append(decls, d)
	}
	for _, d := range lib.Concepts {
		decls = append(decls, d)
	}
	for _, d := range lib.Parameters {
		decls = append(decls, d)
	}
	for _, d := range lib.Contexts {
		decls = append(decls, d)
	}
	for _, d := range lib.Statements {
		decls = append(decls, d)
	}

	for _, d := range decls {
		if err := ctx.Err(); err != nil {
			return err
		}
		if rc.Visited(d) {
			continue
		}
		if err := w.VisitElement(ctx, d, rc); err != nil {
			return err
		}
		if fd, ok := d.(*elm.FunctionDef); ok {
			rc.ReportFunctionDef(fd)
		}
	}
	return nil
}

// VisitElement implements inference.Visitor.
func (w *Walker) VisitElement(ctx context.Context, el elm.Element, rc *inference.Context) error {
	switch d := el.(type) {
	case *elm.Library:
		return w.VisitLibrary(ctx, d, rc)
	case *elm.ExpressionDef:
		return w.visitDefinition(ctx, d, rc)
	case *elm.FunctionDef:
		return w.visitDefinition(ctx, d, rc)
	case *elm.UsingDef:
		rc.ReportUsingDef(d)
	case *elm.IncludeDef:
		rc.ReportIncludeDef(d)
	case *elm.ContextDef:
		rc.ReportContextDef(d)
	case *elm.CodeSystemDef:
		rc.ReportCodeSystemDef(d)
	case *elm.ValueSetDef:
		rc.ReportValueSetDef(d)
		for _, cs := range d.CodeSystems {
			if err := rc.ReportCodeSystemRef(ctx, cs); err != nil {
				return err
			}
		}
	case *elm.CodeDef:
		rc.ReportCodeDef(d)
		if d.CodeSystem != nil {
			return rc.ReportCodeSystemRef(ctx, d.CodeSystem)
		}
	case *elm.ConceptDef:
		rc.ReportConceptDef(d)
		for _, code := range d.Codes {
			if err := rc.ReportCodeRef(ctx, code); err != nil {
				return err
			}
		}
	case *elm.ParameterDef:
		rc.ReportParameterDef(d)
		if d.Default != nil {
			_, err := w.expression(ctx, d.Default, rc)
			return err
		}
	case elm.Expression:
		_, err := w.expression(ctx, d, rc)
		return err
	default:
		return fmt.Errorf("walker: unsupported element %T", el)
	}
	return nil
}

func (w *Walker) visitDefinition(ctx context.Context, def elm.ExpressionDefinition, rc *inference.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	rc.Logger().Debug("visiting %s.%s", rc.CurrentLibraryIdentifier(), elm.DefOf(def).Name)

	rc.EnterExpressionDef(def)
	inferred, err := w.expression(ctx, elm.DefOf(def).Expression, rc)
	if err != nil {
		rc.AbortExpressionDef()
		return err
	}
	rc.ExitExpressionDef(inferred)
	return nil
}

// expression reports the requirements of e and returns the requirement it
// infers, or nil.
func (w *Walker) expression(ctx context.Context, e elm.Expression, rc *inference.Context) (requirements.Requirement, error) {
	switch e := e.(type) {
	case nil:
		return nil, nil

	case *elm.Retrieve:
		for _, child := range []elm.Expression{e.Codes, e.DateRange, e.Context} {
			if _, err := w.expression(ctx, child, rc); err != nil {
				return nil, err
			}
		}
		rc.ReportRetrieve(e)
		return requirements.NewDataRequirement(rc.CurrentLibraryIdentifier(), e), nil

	case *elm.Property:
		return w.property(ctx, e, rc)

	case *elm.Query:
		return w.query(ctx, e, rc)

	case *elm.ExpressionRef:
		inferred, err := rc.ReportExpressionRef(ctx, e)
		if err != nil {
			return nil, err
		}
		rc.ReportRequirements(inferred, nil)
		return inferred, nil

	case *elm.FunctionRef:
		operands, err := w.all(ctx, e, e.Operands, rc)
		if err != nil {
			return nil, err
		}
		if err := rc.ReportFunctionRef(ctx, e); err != nil {
			return nil, err
		}
		return operands, nil

	case *elm.CodeRef:
		return nil, rc.ReportCodeRef(ctx, e)
	case *elm.CodeSystemRef:
		return nil, rc.ReportCodeSystemRef(ctx, e)
	case *elm.ConceptRef:
		return nil, rc.ReportConceptRef(ctx, e)
	case *elm.ValueSetRef:
		return nil, rc.ReportValueSetRef(ctx, e)
	case *elm.ParameterRef:
		return nil, rc.ReportParameterRef(ctx, e)

	case *elm.List:
		return w.all(ctx, e, e.Elements, rc)
	case *elm.Tuple:
		values := make([]elm.Expression, 0, len(e.Elements))
		for _, el := range e.Elements {
			values = append(values, el.Value)
		}
		return w.all(ctx, e, values, rc)
	case *elm.Operator:
		return w.all(ctx, e, e.Operands, rc)

	default:
		// AliasRef, QueryLetRef, OperandRef, IdentifierRef, Literal, Null.
		return nil, nil
	}
}

// all visits exprs in order and combines what they infer: nothing, the
// single requirement, or a set owned by owner.
func (w *Walker) all(ctx context.Context, owner elm.Expression, exprs []elm.Expression, rc *inference.Context) (requirements.Requirement, error) {
	var found []requirements.Requirement
	for _, e := range exprs {
		r, err := w.expression(ctx, e, rc)
		if err != nil {
			return nil, err
		}
		if r != nil {
			found = append(found, r)
		}
	}
	switch len(found) {
	case 0:
		return nil, nil
	case 1:
		return found[0], nil
	}
	set := requirements.NewRequirements(rc.CurrentLibraryIdentifier(), owner)
	for _, r := range found {
		set.Report(r)
	}
	return set, nil
}

// property visits the innermost source of a property chain, unless it is
// a query alias or let, then binds the property.
func (w *Walker) property(ctx context.Context, p *elm.Property, rc *inference.Context) (requirements.Requirement, error) {
	source := p.Source
	for {
		inner, ok := source.(*elm.Property)
		if !ok {
			break
		}
		source = inner.Source
	}
	switch source.(type) {
	case *elm.AliasRef, *elm.QueryLetRef:
	default:
		if _, err := w.expression(ctx, source, rc); err != nil {
			return nil, err
		}
	}

	pr, err := rc.ReportProperty(p)
	if err != nil || pr == nil {
		return nil, err
	}
	return pr, nil
}

// query visits a query inside its own scope. Sources and relationships
// bind their aliases, lets bind their identifiers, and the remaining
// clauses are visited with those bindings in scope. The query infers the
// data requirements of its aliases and lets. Queries are only valid inside
// an expression definition; one in a parameter default is an error.
func (w *Walker) query(ctx context.Context, q *elm.Query, rc *inference.Context) (requirements.Requirement, error) {
	if !rc.InExpressionDefContext() {
		return nil, fmt.Errorf("walker: query: %w", er.ErrNoExpressionDef)
	}
	qc := rc.EnterQueryContext(q)
	defer rc.ExitQueryContext()

	for _, source := range q.Sources {
		qc.EnterAliasDefinition(source)
		r, err := w.expression(ctx, source.Expression, rc)
		if err != nil {
			return nil, err
		}
		qc.ExitAliasDefinition(r)
	}

	for _, let := range q.Lets {
		qc.EnterLetDefinition(let)
		r, err := w.expression(ctx, let.Expression, rc)
		if err != nil {
			return nil, err
		}
		qc.ExitLetDefinition(r)
	}

	for _, rel := range q.Relationships {
		qc.EnterAliasDefinition(&rel.AliasedQuerySource)
		r, err := w.expression(ctx, rel.Expression, rc)
		if err != nil {
			return nil, err
		}
		qc.ExitAliasDefinition(r)
		if _, err := w.expression(ctx, rel.SuchThat, rc); err != nil {
			return nil, err
		}
	}

	if _, err := w.expression(ctx, q.Where, rc); err != nil {
		return nil, err
	}
	if q.Return != nil {
		if _, err := w.expression(ctx, q.Return.Expression, rc); err != nil {
			return nil, err
		}
	}
	if q.Sort != nil {
		for _, by := range q.Sort.By {
			if _, err := w.expression(ctx, by.Expression, rc); err != nil {
				return nil, err
			}
		}
	}

	return qc.QueryRequirement(), nil
}
