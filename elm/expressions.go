package elm

// Retrieve fetches data of a clinical type, optionally filtered.
type Retrieve struct {
	ExpressionBase
	DataType     QName
	TemplateID   string
	CodeProperty string
	Codes        Expression
	DateProperty string
	DateRange    Expression
	Context      Expression
}

// Property accesses Path on Source, or on the alias named by Scope.
type Property struct {
	ExpressionBase
	Path   string
	Scope  string
	Source Expression
}

// AliasRef references a query source alias.
type AliasRef struct {
	ExpressionBase
	Name string
}

// QueryLetRef references a let clause of a query.
type QueryLetRef struct {
	ExpressionBase
	Name string
}

// OperandRef references a function operand.
type OperandRef struct {
	ExpressionBase
	Name string
}

// IdentifierRef references an identifier that was not resolved to a more
// specific node.
type IdentifierRef struct {
	ExpressionBase
	Name        string
	LibraryName string
}

// ExpressionRef references an expression definition, possibly in an
// included library.
type ExpressionRef struct {
	ExpressionBase
	Name        string
	LibraryName string
}

// FunctionRef invokes a function definition.
type FunctionRef struct {
	ExpressionRef
	Operands []Expression
}

// CodeRef references a code definition.
type CodeRef struct {
	ExpressionBase
	Name        string
	LibraryName string
}

// CodeSystemRef references a code system definition.
type CodeSystemRef struct {
	ExpressionBase
	Name        string
	LibraryName string
}

// ConceptRef references a concept definition.
type ConceptRef struct {
	ExpressionBase
	Name        string
	LibraryName string
}

// ValueSetRef references a value set definition.
type ValueSetRef struct {
	ExpressionBase
	Name        string
	LibraryName string
}

// ParameterRef references a parameter definition.
type ParameterRef struct {
	ExpressionBase
	Name        string
	LibraryName string
}

// Literal is a primitive constant.
type Literal struct {
	ExpressionBase
	ValueType QName
	Value     string
}

// Null is the null literal.
type Null struct {
	ExpressionBase
}

// List is a list selector.
type List struct {
	ExpressionBase
	Elements []Expression
}

// TupleElement is one element of a tuple selector.
type TupleElement struct {
	Name  string
	Value Expression
}

// Tuple is a tuple selector.
type Tuple struct {
	ExpressionBase
	Elements []TupleElement
}

// Operator is any other operator (And, Equal, In, Exists, ...). Name holds
// the ELM node type; Operands are visited in order.
type Operator struct {
	ExpressionBase
	Name     string
	Operands []Expression
}

// Query is a CQL query.
type Query struct {
	ExpressionBase
	Sources       []*AliasedQuerySource
	Lets          []*LetClause
	Relationships []*RelationshipClause
	Where         Expression
	Return        *ReturnClause
	Sort          *SortClause
}

// AliasedQuerySource binds Alias to the values of Expression.
type AliasedQuerySource struct {
	Base
	Alias      string
	Expression Expression
}

// Relationship kinds.
const (
	RelationshipWith    = "With"
	RelationshipWithout = "Without"
)

// RelationshipClause is a with/without clause.
type RelationshipClause struct {
	AliasedQuerySource
	Kind     string
	SuchThat Expression
}

// LetClause binds Identifier to Expression within a query.
type LetClause struct {
	Base
	Identifier string
	Expression Expression
}

// ReturnClause shapes query results.
type ReturnClause struct {
	Base
	Distinct   bool
	Expression Expression
}

// SortByItem is one sort key.
type SortByItem struct {
	Base
	Direction  string
	Path       string
	Expression Expression
}

// SortClause orders query results.
type SortClause struct {
	Base
	By []*SortByItem
}
