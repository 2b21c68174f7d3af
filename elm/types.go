package elm

// TypeSpecifier describes a resolved result type.
type TypeSpecifier interface {
	typeSpecifier()
}

// NamedTypeSpecifier names a single model or system type.
type NamedTypeSpecifier struct {
	Name QName
}

// ListTypeSpecifier is a list of ElementType.
type ListTypeSpecifier struct {
	ElementType TypeSpecifier
}

// IntervalTypeSpecifier is an interval of PointType.
type IntervalTypeSpecifier struct {
	PointType TypeSpecifier
}

// TupleElementDefinition is one named element of a tuple type.
type TupleElementDefinition struct {
	Name        string
	ElementType TypeSpecifier
}

// TupleTypeSpecifier is an anonymous tuple type.
type TupleTypeSpecifier struct {
	Elements []TupleElementDefinition
}

// ChoiceTypeSpecifier is a choice between several types.
type ChoiceTypeSpecifier struct {
	Choices []TypeSpecifier
}

func (*NamedTypeSpecifier) typeSpecifier()    {}
func (*ListTypeSpecifier) typeSpecifier()     {}
func (*IntervalTypeSpecifier) typeSpecifier() {}
func (*TupleTypeSpecifier) typeSpecifier()    {}
func (*ChoiceTypeSpecifier) typeSpecifier()   {}
