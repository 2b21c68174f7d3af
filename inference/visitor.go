package inference

import (
	"context"

	"github.com/gofhir/elmrequirements/elm"
)

// Visitor walks an element and reports what it finds to rc. The Context
// calls VisitElement whenever it needs a definition that has not been
// analyzed yet.
type Visitor interface {
	VisitElement(ctx context.Context, el elm.Element, rc *Context) error
}

// VisitorFunc adapts a function to Visitor.
type VisitorFunc func(ctx context.Context, el elm.Element, rc *Context) error

// VisitElement calls f.
func (f VisitorFunc) VisitElement(ctx context.Context, el elm.Element, rc *Context) error {
	return f(ctx, el, rc)
}
