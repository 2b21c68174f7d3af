package elm

// Element is any node of the tree.
type Element interface {
	base() *Base
}

// Base carries the fields shared by every node.
type Base struct {
	// LocalID addresses the node within its library. Translators emit
	// numeric ids; nodes synthesized by the analysis get "G"-prefixed ids.
	LocalID string

	// Locator is the "line:col-line:col" source span, when known.
	Locator string
}

func (b *Base) base() *Base { return b }

// LocalIDOf returns the local id of e, or "" for a nil element.
func LocalIDOf(e Element) string {
	if e == nil {
		return ""
	}
	return e.base().LocalID
}

// SetLocalID assigns the local id of e.
func SetLocalID(e Element, id string) {
	e.base().LocalID = id
}

// Expression is a node that produces a value.
type Expression interface {
	Element
	expression() *ExpressionBase
}

// ExpressionBase carries the resolved result type of an expression.
type ExpressionBase struct {
	Base
	ResultTypeName      QName
	ResultTypeSpecifier TypeSpecifier
}

func (e *ExpressionBase) expression() *ExpressionBase { return e }

// ResultTypeOf returns the resolved result type name and specifier of e.
func ResultTypeOf(e Expression) (QName, TypeSpecifier) {
	if e == nil {
		return QName{}, nil
	}
	eb := e.expression()
	return eb.ResultTypeName, eb.ResultTypeSpecifier
}

// SetResultType records the resolved result type of e.
func SetResultType(e Expression, name QName, spec TypeSpecifier) {
	eb := e.expression()
	eb.ResultTypeName = name
	eb.ResultTypeSpecifier = spec
}
