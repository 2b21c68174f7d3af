package library

import (
	"fmt"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
)

// Library is a compiled library with its definitions indexed by name.
type Library struct {
	lib *elm.Library

	includes    map[string]*elm.IncludeDef
	codeSystems map[string]*elm.CodeSystemDef
	valueSets   map[string]*elm.ValueSetDef
	codes       map[string]*elm.CodeDef
	concepts    map[string]*elm.ConceptDef
	parameters  map[string]*elm.ParameterDef
	expressions map[string]*elm.ExpressionDef
	functions   map[string][]*elm.FunctionDef
}

// New indexes lib. When a name is declared twice the first declaration wins.
func New(lib *elm.Library) *Library {
	l := &Library{
		lib:         lib,
		includes:    make(map[string]*elm.IncludeDef, len(lib.Includes)),
		codeSystems: make(map[string]*elm.CodeSystemDef, len(lib.CodeSystems)),
		valueSets:   make(map[string]*elm.ValueSetDef, len(lib.ValueSets)),
		codes:       make(map[string]*elm.CodeDef, len(lib.Codes)),
		concepts:    make(map[string]*elm.ConceptDef, len(lib.Concepts)),
		parameters:  make(map[string]*elm.ParameterDef, len(lib.Parameters)),
		expressions: make(map[string]*elm.ExpressionDef, len(lib.Statements)),
		functions:   make(map[string][]*elm.FunctionDef),
	}
	for _, d := range lib.Includes {
		addFirst(l.includes, d.LocalIdentifier, d)
	}
	for _, d := range lib.CodeSystems {
		addFirst(l.codeSystems, d.Name, d)
	}
	for _, d := range lib.ValueSets {
		addFirst(l.valueSets, d.Name, d)
	}
	for _, d := range lib.Codes {
		addFirst(l.codes, d.Name, d)
	}
	for _, d := range lib.Concepts {
		addFirst(l.concepts, d.Name, d)
	}
	for _, d := range lib.Parameters {
		addFirst(l.parameters, d.Name, d)
	}
	for _, s := range lib.Statements {
		switch d := s.(type) {
		case *elm.FunctionDef:
			l.functions[d.Name] = append(l.functions[d.Name], d)
		case *elm.ExpressionDef:
			addFirst(l.expressions, d.Name, d)
		}
	}
	return l
}

func addFirst[T any](m map[string]T, name string, v T) {
	if _, ok := m[name]; !ok {
		m[name] = v
	}
}

// Identifier returns the library identifier.
func (l *Library) Identifier() elm.VersionedIdentifier {
	return l.lib.Identifier
}

// ELM returns the underlying tree.
func (l *Library) ELM() *elm.Library {
	return l.lib
}

// Statements returns every expression and function definition in
// declaration order.
func (l *Library) Statements() []elm.ExpressionDefinition {
	return l.lib.Statements
}

func (l *Library) notFound(kind, name string) error {
	return fmt.Errorf("%w: %s %q in library %s", er.ErrNotFound, kind, name, l.lib.Identifier)
}

// ResolveInclude returns the include declared with local name.
func (l *Library) ResolveInclude(name string) (*elm.IncludeDef, error) {
	if d, ok := l.includes[name]; ok {
		return d, nil
	}
	return nil, l.notFound("include", name)
}

// ResolveCodeSystem returns the named code system definition.
func (l *Library) ResolveCodeSystem(name string) (*elm.CodeSystemDef, error) {
	if d, ok := l.codeSystems[name]; ok {
		return d, nil
	}
	return nil, l.notFound("code system", name)
}

// ResolveValueSet returns the named value set definition.
func (l *Library) ResolveValueSet(name string) (*elm.ValueSetDef, error) {
	if d, ok := l.valueSets[name]; ok {
		return d, nil
	}
	return nil, l.notFound("value set", name)
}

// ResolveCode returns the named code definition.
func (l *Library) ResolveCode(name string) (*elm.CodeDef, error) {
	if d, ok := l.codes[name]; ok {
		return d, nil
	}
	return nil, l.notFound("code", name)
}

// ResolveConcept returns the named concept definition.
func (l *Library) ResolveConcept(name string) (*elm.ConceptDef, error) {
	if d, ok := l.concepts[name]; ok {
		return d, nil
	}
	return nil, l.notFound("concept", name)
}

// ResolveParameter returns the named parameter definition.
func (l *Library) ResolveParameter(name string) (*elm.ParameterDef, error) {
	if d, ok := l.parameters[name]; ok {
		return d, nil
	}
	return nil, l.notFound("parameter", name)
}

// ResolveExpression returns the named expression definition. Functions are
// not considered; use Functions for those.
func (l *Library) ResolveExpression(name string) (*elm.ExpressionDef, error) {
	if d, ok := l.expressions[name]; ok {
		return d, nil
	}
	return nil, l.notFound("expression", name)
}

// Functions returns every overload named name, in declaration order.
func (l *Library) Functions(name string) []*elm.FunctionDef {
	return l.functions[name]
}
