// Package report turns a finished analysis into a FHIR-facing summary:
// the data requirements of the library with their code filters and
// must-support paths, and the codes, concepts, value sets and parameters
// it depends on.
package report

import (
	"context"
	"fmt"
	"slices"

	"github.com/gofhir/fhir/r4"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/engine"
	"github.com/gofhir/elmrequirements/inference"
	"github.com/gofhir/elmrequirements/requirements"
)

// Report summarizes one analysis run.
type Report struct {
	RunID            string               `json:"runId"`
	Library          string               `json:"library"`
	DataRequirements []DataRequirement    `json:"dataRequirements,omitempty"`
	Codes            []r4.Coding          `json:"codes,omitempty"`
	Concepts         []r4.CodeableConcept `json:"concepts,omitempty"`
	ValueSets        []ValueSet           `json:"valueSets,omitempty"`
	Parameters       []Parameter          `json:"parameters,omitempty"`
	Definitions      []Definition         `json:"definitions,omitempty"`
	Issues           []er.Issue           `json:"issues,omitempty"`
}

// DataRequirement describes the data one retrieve needs.
type DataRequirement struct {
	Type        string      `json:"type"`
	Profile     string      `json:"profile,omitempty"`
	Library     string      `json:"library"`
	CodeFilter  *CodeFilter `json:"codeFilter,omitempty"`
	MustSupport []string    `json:"mustSupport,omitempty"`
}

// CodeFilter restricts a retrieve by terminology.
type CodeFilter struct {
	Path     string      `json:"path"`
	ValueSet string      `json:"valueSet,omitempty"`
	Codes    []r4.Coding `json:"code,omitempty"`
}

// ValueSet is a value set the library depends on.
type ValueSet struct {
	Name    string `json:"name"`
	URL     string `json:"url"`
	Version string `json:"version,omitempty"`
	Library string `json:"library"`
}

// Parameter is a parameter the library depends on.
type Parameter struct {
	Name    string `json:"name"`
	Type    string `json:"type,omitempty"`
	Library string `json:"library"`
}

// Definition lists the data types one expression definition retrieves.
type Definition struct {
	Name      string   `json:"name"`
	DataTypes []string `json:"dataTypes,omitempty"`
}

// Build assembles the report of res. Terminology references are resolved
// relative to the library each requirement was recorded in.
func Build(ctx context.Context, res *engine.Result) (*Report, error) {
	if res == nil || res.Context() == nil {
		return nil, fmt.Errorf("report: result required")
	}
	b := &builder{
		rc:     res.Context(),
		paths:  newPathChecker(res.Context().Options().ValidateMustSupport),
		issues: er.NewDiagnostics(),
	}

	rep := &Report{
		RunID:   res.RunID,
		Library: res.Library.String(),
	}

	for _, dr := range res.DataRequirements() {
		out, err := b.dataRequirement(ctx, dr)
		if err != nil {
			return nil, err
		}
		rep.DataRequirements = append(rep.DataRequirements, out)
	}

	for _, req := range res.Requirements.Requirements() {
		lib := req.LibraryIdentifier()
		switch def := req.Element().(type) {
		case *elm.CodeDef:
			code, err := ToCode(ctx, b.rc, lib, def)
			if err != nil {
				return nil, err
			}
			rep.Codes = append(rep.Codes, code)
		case *elm.ConceptDef:
			concept, err := ToConcept(ctx, b.rc, lib, def)
			if err != nil {
				return nil, err
			}
			rep.Concepts = append(rep.Concepts, concept)
		case *elm.ValueSetDef:
			rep.ValueSets = append(rep.ValueSets, ValueSet{
				Name:    def.Name,
				URL:     def.ID,
				Version: def.Version,
				Library: lib.String(),
			})
		case *elm.ParameterDef:
			rep.Parameters = append(rep.Parameters, Parameter{
				Name:    def.Name,
				Type:    typeName(def.ParameterTypeSpecifier),
				Library: lib.String(),
			})
		}
	}

	for _, d := range res.Definitions {
		rep.Definitions = append(rep.Definitions, Definition{
			Name:      d.Name,
			DataTypes: dataTypes(d.Reported),
		})
	}
	rep.Issues = append(slices.Clone(res.Issues), b.issues.Issues()...)
	return rep, nil
}

type builder struct {
	rc     *inference.Context
	paths  *pathChecker
	issues *er.Diagnostics
}

func (b *builder) dataRequirement(ctx context.Context, dr *requirements.DataRequirement) (DataRequirement, error) {
	rt := dr.Retrieve()
	out := DataRequirement{
		Type:    rt.DataType.Local,
		Profile: rt.TemplateID,
		Library: dr.LibraryIdentifier().String(),
	}

	if rt.CodeProperty != "" && rt.Codes != nil {
		filter := &CodeFilter{Path: rt.CodeProperty}
		if err := b.codeFilter(ctx, dr.LibraryIdentifier(), rt.Codes, filter); err != nil {
			return DataRequirement{}, err
		}
		out.CodeFilter = filter
	}

	for _, p := range dr.Properties() {
		path := p.Path()
		if slices.Contains(out.MustSupport, path) {
			continue
		}
		if err := b.paths.check(path); err != nil {
			b.rc.Logger().Warn("dropping must-support path %q of %s: %v", path, rt.DataType, err)
			b.issues.Warn(er.IssueInvalidMustSupportPath, out.Library, "",
				"must-support path %q of %s is not valid FHIRPath: %v", path, rt.DataType.Local, err)
			continue
		}
		out.MustSupport = append(out.MustSupport, path)
	}
	return out, nil
}

// codeFilter fills filter from the terminology expression of a retrieve.
// Other expression shapes contribute nothing.
func (b *builder) codeFilter(ctx context.Context, lib elm.VersionedIdentifier, e elm.Expression, filter *CodeFilter) error {
	switch e := e.(type) {
	case *elm.ValueSetRef:
		vs, err := b.rc.ResolveValueSetRef(ctx, lib, e)
		if err != nil {
			return err
		}
		filter.ValueSet = vs.ID
	case *elm.CodeRef:
		owner, err := b.owner(ctx, lib, e.LibraryName)
		if err != nil {
			return err
		}
		def, err := b.rc.ResolveCodeRef(ctx, lib, e)
		if err != nil {
			return err
		}
		code, err := ToCode(ctx, b.rc, owner, def)
		if err != nil {
			return err
		}
		filter.Codes = append(filter.Codes, code)
	case *elm.ConceptRef:
		owner, err := b.owner(ctx, lib, e.LibraryName)
		if err != nil {
			return err
		}
		def, err := b.rc.ResolveConceptRef(ctx, lib, e)
		if err != nil {
			return err
		}
		concept, err := ToConcept(ctx, b.rc, owner, def)
		if err != nil {
			return err
		}
		filter.Codes = append(filter.Codes, concept.Coding...)
	case *elm.List:
		for _, el := range e.Elements {
			if err := b.codeFilter(ctx, lib, el, filter); err != nil {
				return err
			}
		}
	case *elm.Operator:
		// ToList, ToConcept and similar wrappers.
		for _, op := range e.Operands {
			if err := b.codeFilter(ctx, lib, op, filter); err != nil {
				return err
			}
		}
	}
	return nil
}

// owner returns the library a reference qualified by localName lives in.
func (b *builder) owner(ctx context.Context, lib elm.VersionedIdentifier, localName string) (elm.VersionedIdentifier, error) {
	return ownerOf(ctx, b.rc, lib, localName)
}

func ownerOf(ctx context.Context, rc *inference.Context, lib elm.VersionedIdentifier, localName string) (elm.VersionedIdentifier, error) {
	if localName == "" {
		return lib, nil
	}
	target, err := rc.ResolveLibraryRef(ctx, lib, localName)
	if err != nil {
		return elm.VersionedIdentifier{}, err
	}
	return target.Identifier(), nil
}

// ToCode converts a code definition of library lib to a Coding. The code
// system is resolved relative to lib.
func ToCode(ctx context.Context, rc *inference.Context, lib elm.VersionedIdentifier, def *elm.CodeDef) (r4.Coding, error) {
	coding := r4.Coding{Code: strPtr(def.ID), Display: strPtr(def.Display)}
	if def.CodeSystem == nil {
		return coding, nil
	}
	cs, err := rc.ResolveCodeSystemRef(ctx, lib, def.CodeSystem)
	if err != nil {
		return r4.Coding{}, err
	}
	coding.System = strPtr(cs.ID)
	coding.Version = strPtr(cs.Version)
	return coding, nil
}

// ToConcept converts a concept definition of library lib to a
// CodeableConcept.
func ToConcept(ctx context.Context, rc *inference.Context, lib elm.VersionedIdentifier, def *elm.ConceptDef) (r4.CodeableConcept, error) {
	concept := r4.CodeableConcept{Text: strPtr(def.Display)}
	for _, ref := range def.Codes {
		owner, err := ownerOf(ctx, rc, lib, ref.LibraryName)
		if err != nil {
			return r4.CodeableConcept{}, err
		}
		code, err := rc.ResolveCodeRef(ctx, lib, ref)
		if err != nil {
			return r4.CodeableConcept{}, err
		}
		coding, err := ToCode(ctx, rc, owner, code)
		if err != nil {
			return r4.CodeableConcept{}, err
		}
		concept.Coding = append(concept.Coding, coding)
	}
	return concept, nil
}

func strPtr(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// typeName renders a type specifier in CQL notation.
func typeName(spec elm.TypeSpecifier) string {
	switch s := spec.(type) {
	case *elm.NamedTypeSpecifier:
		return s.Name.Local
	case *elm.ListTypeSpecifier:
		return "List<" + typeName(s.ElementType) + ">"
	case *elm.IntervalTypeSpecifier:
		return "Interval<" + typeName(s.PointType) + ">"
	case *elm.TupleTypeSpecifier:
		return "Tuple"
	case *elm.ChoiceTypeSpecifier:
		return "Choice"
	}
	return ""
}

// dataTypes returns the sorted data types retrieved by the members of set.
func dataTypes(set *requirements.Requirements) []string {
	if set == nil {
		return nil
	}
	var out []string
	for _, r := range set.Requirements() {
		rt, ok := r.Element().(*elm.Retrieve)
		if !ok || slices.Contains(out, rt.DataType.Local) {
			continue
		}
		out = append(out, rt.DataType.Local)
	}
	slices.Sort(out)
	return out
}
