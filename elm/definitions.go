package elm

// Library is a compiled library.
type Library struct {
	Base
	Identifier  VersionedIdentifier
	Usings      []*UsingDef
	Includes    []*IncludeDef
	Parameters  []*ParameterDef
	CodeSystems []*CodeSystemDef
	ValueSets   []*ValueSetDef
	Codes       []*CodeDef
	Concepts    []*ConceptDef
	Contexts    []*ContextDef
	Statements  []ExpressionDefinition
}

// UsingDef declares a data model.
type UsingDef struct {
	Base
	LocalIdentifier string
	URI             string
	Version         string
}

// IncludeDef declares a dependency on another library.
type IncludeDef struct {
	Base
	LocalIdentifier string
	Path            string
	Version         string
}

// Identifier returns the identifier of the included library.
func (d *IncludeDef) Identifier() VersionedIdentifier {
	return IdentifierFromPath(d.Path, d.Version)
}

// CodeSystemDef declares a code system.
type CodeSystemDef struct {
	Base
	Name    string
	ID      string
	Version string
}

// ValueSetDef declares a value set.
type ValueSetDef struct {
	Base
	Name        string
	ID          string
	Version     string
	CodeSystems []*CodeSystemRef
}

// CodeDef declares a code.
type CodeDef struct {
	Base
	Name       string
	ID         string
	Display    string
	CodeSystem *CodeSystemRef
}

// ConceptDef declares a concept made of codes.
type ConceptDef struct {
	Base
	Name    string
	Display string
	Codes   []*CodeRef
}

// ParameterDef declares a parameter.
type ParameterDef struct {
	Base
	Name                   string
	Default                Expression
	ParameterTypeSpecifier TypeSpecifier
}

// ContextDef declares an evaluation context such as Patient.
type ContextDef struct {
	Base
	Name string
}

// ExpressionDefinition is an ExpressionDef or a FunctionDef.
type ExpressionDefinition interface {
	Element
	definition() *ExpressionDef
}

// ExpressionDef is a named expression.
type ExpressionDef struct {
	Base
	Name        string
	Context     string
	AccessLevel string
	Expression  Expression
}

func (d *ExpressionDef) definition() *ExpressionDef { return d }

// OperandDef is one declared operand of a function.
type OperandDef struct {
	Base
	Name                 string
	OperandTypeSpecifier TypeSpecifier
}

// FunctionDef is a named function. Several FunctionDefs may share a name.
type FunctionDef struct {
	ExpressionDef
	Operands []*OperandDef
	External bool
}

// DefOf returns the common fields of d. The returned pointer must not be
// used as the identity of d: for a FunctionDef it points inside it.
func DefOf(d ExpressionDefinition) *ExpressionDef {
	return d.definition()
}

// IsFunction reports whether d is a FunctionDef.
func IsFunction(d ExpressionDefinition) bool {
	_, ok := d.(*FunctionDef)
	return ok
}

// IsDefinition reports whether e is a top-level declaration rather than an
// expression sub-node.
func IsDefinition(e Element) bool {
	switch e.(type) {
	case *Library, *UsingDef, *IncludeDef, *CodeSystemDef, *ValueSetDef,
		*CodeDef, *ConceptDef, *ParameterDef, *ContextDef,
		*ExpressionDef, *FunctionDef:
		return true
	default:
		return false
	}
}
