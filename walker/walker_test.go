package walker

import (
	"context"
	"io"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/inference"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/loader"
	"github.com/gofhir/elmrequirements/pkg/logger"
	"github.com/gofhir/elmrequirements/requirements"
)

const fhirNS = "http://hl7.org/fhir"

var (
	mainID    = elm.VersionedIdentifier{ID: "Main", Version: "1.0.0"}
	helpersID = elm.VersionedIdentifier{ID: "FHIRHelpers", Version: "4.0.1"}
)

func fhirType(name string) elm.QName {
	return elm.QName{Namespace: fhirNS, Local: name}
}

func retrieve(typeName string) *elm.Retrieve {
	return &elm.Retrieve{DataType: fhirType(typeName)}
}

func exprDef(name string, e elm.Expression) *elm.ExpressionDef {
	return &elm.ExpressionDef{Name: name, Context: "Patient", Expression: e}
}

// fhirHelpers is a stand-in for the FHIRHelpers library with a single
// ToString function.
func fhirHelpers() *elm.Library {
	toString := &elm.FunctionDef{
		ExpressionDef: elm.ExpressionDef{Name: "ToString", Context: "Patient", Expression: &elm.Property{Path: "value", Source: &elm.OperandRef{Name: "value"}}},
		Operands:      []*elm.OperandDef{{Name: "value"}},
	}
	return &elm.Library{Identifier: helpersID, Statements: []elm.ExpressionDefinition{toString}}
}

func newRun(t *testing.T, libs ...*elm.Library) (*inference.Context, *Walker) {
	t.Helper()
	w := New()
	mgr := library.NewManager(library.NewMemorySource(libs...))
	rc, err := inference.NewContext(mgr, w, er.WithLogger(logger.New(io.Discard, logger.LevelNone)))
	require.NoError(t, err)
	return rc, w
}

func loadScreening(t *testing.T) *elm.Library {
	t.Helper()
	data, err := os.ReadFile("../loader/testdata/Screening-1.0.0.json")
	require.NoError(t, err)
	lib, err := loader.DecodeLibrary(data)
	require.NoError(t, err)
	return lib
}

func statement(t *testing.T, lib *elm.Library, name string) elm.ExpressionDefinition {
	t.Helper()
	for _, s := range lib.Statements {
		if elm.DefOf(s).Name == name {
			return s
		}
	}
	t.Fatalf("no statement %q", name)
	return nil
}

func paths(dr *requirements.DataRequirement) []string {
	var out []string
	for _, p := range dr.Properties() {
		out = append(out, p.Path())
	}
	return out
}

func count(reqs []requirements.Requirement, el elm.Element) int {
	n := 0
	for _, r := range reqs {
		if r.Element() == el {
			n++
		}
	}
	return n
}

func TestWalker_Screening(t *testing.T) {
	screening := loadScreening(t)
	rc, w := newRun(t, screening, fhirHelpers())

	require.NoError(t, w.VisitLibrary(context.Background(), screening, rc))
	assert.Equal(t, 0, rc.LibraryDepth())
	assert.Equal(t, 0, rc.ExpressionDefDepth())

	colonoscopies := statement(t, screening, "Colonoscopies")
	reported, ok := rc.ReportedRequirements(colonoscopies)
	require.True(t, ok)
	assert.Len(t, reported.DataRequirements(), 0)
	assert.Equal(t, 2, reported.Len(), "procedure and encounter retrieves")

	inferred, ok := rc.InferredRequirements(colonoscopies)
	require.True(t, ok)
	qr, ok := inferred.(*requirements.QueryRequirement)
	require.True(t, ok)
	drs := qr.DataRequirements()
	require.Len(t, drs, 2)
	assert.Equal(t, fhirType("Procedure"), drs[0].Retrieve().DataType)
	assert.ElementsMatch(t, []string{"status", "encounter.reference"}, paths(drs[0]))
	assert.Equal(t, fhirType("Encounter"), drs[1].Retrieve().DataType)
	assert.Equal(t, []string{"id"}, paths(drs[1]))

	global := rc.Requirements().Requirements()
	assert.Equal(t, 1, count(global, screening.ValueSets[0]))
	assert.Equal(t, 1, count(global, screening.Codes[0]))
	assert.Equal(t, 1, count(global, screening.CodeSystems[0]))
	assert.Equal(t, 1, count(global, screening.Concepts[0]))
	assert.Equal(t, 1, count(global, screening.Parameters[0]))
	assert.Equal(t, 1, count(global, screening.Includes[0]))
	for _, s := range screening.Statements {
		assert.True(t, rc.Visited(s), elm.DefOf(s).Name)
	}
}

func TestWalker_FunctionInIncludedLibrary(t *testing.T) {
	screening := loadScreening(t)
	helpers := fhirHelpers()
	rc, w := newRun(t, screening, helpers)

	rc.EnterLibrary(screening.Identifier)
	require.NoError(t, w.VisitElement(context.Background(), statement(t, screening, "Colonoscopies"), rc))

	toString := helpers.Statements[0]
	assert.True(t, rc.Visited(toString))
	assert.Equal(t, 1, count(rc.Requirements().Requirements(), toString))
	assert.Equal(t, 1, rc.LibraryDepth(), "the included library is left on return")
}

func TestWalker_ReferencedDefinition(t *testing.T) {
	encounters := retrieve("Encounter")
	b := exprDef("B", encounters)
	a := exprDef("A", &elm.Operator{Name: "Exists", Operands: []elm.Expression{&elm.ExpressionRef{Name: "B"}}})
	main := &elm.Library{Identifier: mainID, Statements: []elm.ExpressionDefinition{a, b}}
	rc, w := newRun(t, main)

	require.NoError(t, w.VisitLibrary(context.Background(), main, rc))

	reported, _ := rc.ReportedRequirements(a)
	assert.Equal(t, 1, reported.Len())
	assert.Equal(t, 1, count(reported.Requirements(), encounters))

	inferred, ok := rc.InferredRequirements(a)
	require.True(t, ok)
	dr, ok := inferred.(*requirements.DataRequirement)
	require.True(t, ok)
	assert.Same(t, encounters, dr.Retrieve())
}

func TestWalker_AliasOverExpressionRef(t *testing.T) {
	conditions := retrieve("Condition")
	base := exprDef("Conditions", conditions)
	source := &elm.AliasedQuerySource{Alias: "C", Expression: &elm.ExpressionRef{Name: "Conditions"}}
	active := exprDef("Active", &elm.Query{
		Sources: []*elm.AliasedQuerySource{source},
		Where:   &elm.Operator{Name: "Equal", Operands: []elm.Expression{&elm.Property{Path: "clinicalStatus", Scope: "C"}, &elm.Literal{Value: "active"}}},
	})
	main := &elm.Library{Identifier: mainID, Statements: []elm.ExpressionDefinition{active, base}}
	rc, w := newRun(t, main)

	require.NoError(t, w.VisitLibrary(context.Background(), main, rc))

	inferred, _ := rc.InferredRequirements(active)
	qr, ok := inferred.(*requirements.QueryRequirement)
	require.True(t, ok)
	require.Len(t, qr.DataRequirements(), 1)
	dr := qr.DataRequirements()[0]
	assert.Same(t, conditions, dr.Retrieve())
	assert.Equal(t, []string{"clinicalStatus"}, paths(dr))
}

func TestWalker_UnboundProperty(t *testing.T) {
	source := &elm.ExpressionRef{Name: "Patient"}
	elm.SetResultType(source, fhirType("Patient"), nil)
	birth := exprDef("Birth", &elm.Property{Path: "birthDate", Source: source})
	gender := exprDef("Gender", &elm.Property{Path: "gender", Source: &elm.Property{Path: "extension", Source: source}})
	patient := exprDef("Patient", &elm.Operator{Name: "SingletonFrom", Operands: []elm.Expression{retrieve("Patient")}})
	main := &elm.Library{Identifier: mainID, Statements: []elm.ExpressionDefinition{birth, gender, patient}}
	rc, w := newRun(t, main)

	require.NoError(t, w.VisitLibrary(context.Background(), main, rc))

	unbound := rc.UnboundDataRequirements()
	require.Len(t, unbound, 1)
	dr := unbound[fhirType("Patient")]
	require.NotNil(t, dr)
	assert.ElementsMatch(t, []string{"birthDate", "extension.gender"}, paths(dr))
	assert.NotEmpty(t, elm.LocalIDOf(dr.Retrieve()))
}

func TestWalker_QueryInParameterDefault(t *testing.T) {
	param := &elm.ParameterDef{
		Name: "Recent",
		Default: &elm.Query{
			Sources: []*elm.AliasedQuerySource{{Alias: "E", Expression: retrieve("Encounter")}},
		},
	}
	main := &elm.Library{Identifier: mainID, Parameters: []*elm.ParameterDef{param}}
	rc, w := newRun(t, main)

	var err error
	require.NotPanics(t, func() {
		err = w.VisitLibrary(context.Background(), main, rc)
	})
	assert.ErrorIs(t, err, er.ErrNoExpressionDef)
	assert.Equal(t, 0, rc.LibraryDepth())
	assert.False(t, rc.InQueryContext())
}

func TestWalker_ErrorsUnwindScopes(t *testing.T) {
	broken := exprDef("Broken", &elm.Query{
		Sources: []*elm.AliasedQuerySource{{Alias: "X", Expression: &elm.ExpressionRef{Name: "Missing"}}},
	})
	main := &elm.Library{Identifier: mainID, Statements: []elm.ExpressionDefinition{broken}}
	rc, w := newRun(t, main)

	err := w.VisitLibrary(context.Background(), main, rc)
	require.ErrorIs(t, err, er.ErrNotFound)
	assert.Equal(t, 0, rc.LibraryDepth())
	assert.Equal(t, 0, rc.ExpressionDefDepth())
	assert.False(t, rc.Visited(broken))
}

func TestWalker_CyclicDefinition(t *testing.T) {
	a := exprDef("A", &elm.ExpressionRef{Name: "B"})
	b := exprDef("B", &elm.ExpressionRef{Name: "A"})
	main := &elm.Library{Identifier: mainID, Statements: []elm.ExpressionDefinition{a, b}}

	rc, w := newRun(t, main)
	err := w.VisitLibrary(context.Background(), main, rc)
	assert.ErrorIs(t, err, er.ErrCyclicDefinition)

	mgr := library.NewManager(library.NewMemorySource(main))
	rc, err = inference.NewContext(mgr, w, er.WithCycleDetection(false), er.WithLogger(logger.New(io.Discard, logger.LevelNone)))
	require.NoError(t, err)
	require.NoError(t, w.VisitLibrary(context.Background(), main, rc))
	assert.True(t, rc.Visited(a))
	assert.True(t, rc.Visited(b))
}

func TestWalker_CancelledContext(t *testing.T) {
	main := &elm.Library{Identifier: mainID, Statements: []elm.ExpressionDefinition{exprDef("A", retrieve("Patient"))}}
	rc, w := newRun(t, main)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, w.VisitLibrary(ctx, main, rc), context.Canceled)
}

func TestWalker_VisitElement(t *testing.T) {
	rc, w := newRun(t)
	rc.EnterLibrary(mainID)

	r := retrieve("Observation")
	require.NoError(t, w.VisitElement(context.Background(), r, rc))
	assert.Equal(t, 1, count(rc.Requirements().Requirements(), r), "a retrieve outside any definition belongs to the global set")

	assert.Error(t, w.VisitElement(context.Background(), &elm.AliasedQuerySource{}, rc))
	assert.Error(t, w.VisitLibrary(context.Background(), nil, rc))
}
