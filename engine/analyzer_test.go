package engine

import (
	"context"
	"io"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/pkg/logger"
	"github.com/gofhir/elmrequirements/requirements"
)

const fhirNS = "http://hl7.org/fhir"

var (
	screeningID = elm.VersionedIdentifier{ID: "Screening", Version: "1.0.0"}
	helpersID   = elm.VersionedIdentifier{ID: "FHIRHelpers", Version: "4.0.1"}
	mainID      = elm.VersionedIdentifier{ID: "Main", Version: "1.0.0"}
)

func fhirType(name string) elm.QName {
	return elm.QName{Namespace: fhirNS, Local: name}
}

func fhirHelpers() *elm.Library {
	toString := &elm.FunctionDef{
		ExpressionDef: elm.ExpressionDef{Name: "ToString", Context: "Patient", Expression: &elm.OperandRef{Name: "value"}},
		Operands:      []*elm.OperandDef{{Name: "value"}},
	}
	return &elm.Library{Identifier: helpersID, Statements: []elm.ExpressionDefinition{toString}}
}

func quiet() er.Option {
	return er.WithLogger(logger.New(io.Discard, logger.LevelNone))
}

func newScreeningAnalyzer(t testing.TB, opts ...er.Option) *Analyzer {
	t.Helper()
	sources := []library.Source{
		library.NewDirSource("../loader/testdata"),
		library.NewMemorySource(fhirHelpers()),
	}
	a, err := NewFromSources(sources, append([]er.Option{quiet()}, opts...)...)
	require.NoError(t, err)
	return a
}

func TestNew(t *testing.T) {
	_, err := New(nil)
	assert.Error(t, err)

	a, err := New(library.NewManager(), er.WithWorkerCount(2))
	require.NoError(t, err)
	assert.NotNil(t, a.Metrics())
	assert.Equal(t, 2, a.Options().WorkerCount)
	assert.NotNil(t, a.Resolver())

	m := er.NewMetrics()
	a, err = New(library.NewManager(), er.WithMetrics(m))
	require.NoError(t, err)
	assert.Same(t, m, a.Metrics())
}

func TestAnalyze_Screening(t *testing.T) {
	a := newScreeningAnalyzer(t)

	res, err := a.Analyze(context.Background(), screeningID)
	require.NoError(t, err)

	assert.Equal(t, screeningID, res.Library)
	assert.NotEmpty(t, res.RunID)
	assert.NotNil(t, res.Context())

	names := make([]string, 0, len(res.Definitions))
	for _, d := range res.Definitions {
		names = append(names, d.Name)
	}
	assert.Equal(t, []string{"Patient", "Colonoscopies", "Has FOBT", "In Colonoscopy"}, names)

	colonoscopies, ok := res.Definition("Colonoscopies")
	require.True(t, ok)
	qr, ok := colonoscopies.Inferred.(*requirements.QueryRequirement)
	require.True(t, ok)
	assert.Len(t, qr.DataRequirements(), 2)

	types := make([]elm.QName, 0)
	for _, dr := range res.DataRequirements() {
		types = append(types, dr.Retrieve().DataType)
	}
	assert.Equal(t, []elm.QName{
		fhirType("Patient"), fhirType("Procedure"), fhirType("Encounter"), fhirType("Observation"),
	}, types)

	assert.Equal(t, uint64(1), a.Metrics().RunsTotal())
	assert.Zero(t, a.Metrics().RunsFailed())
	assert.Positive(t, a.Metrics().DefinitionsVisited())
}

func TestAnalyze_SelectedExpressions(t *testing.T) {
	a := newScreeningAnalyzer(t)

	res, err := a.Analyze(context.Background(), screeningID, "Has FOBT")
	require.NoError(t, err)
	require.Len(t, res.Definitions, 1)
	assert.Equal(t, "Has FOBT", res.Definitions[0].Name)

	drs := res.DataRequirements()
	require.Len(t, drs, 1)
	assert.Equal(t, fhirType("Observation"), drs[0].Retrieve().DataType)

	_, ok := res.Definition("Colonoscopies")
	assert.False(t, ok)

	_, err = a.Analyze(context.Background(), screeningID, "Nope")
	assert.ErrorIs(t, err, er.ErrNotFound)
}

func TestAnalyze_RunsAreIndependent(t *testing.T) {
	a := newScreeningAnalyzer(t)

	first, err := a.Analyze(context.Background(), screeningID)
	require.NoError(t, err)
	second, err := a.Analyze(context.Background(), screeningID)
	require.NoError(t, err)

	assert.NotEqual(t, first.RunID, second.RunID)
	assert.Equal(t, first.Requirements.Len(), second.Requirements.Len())
	assert.NotSame(t, first.Requirements, second.Requirements)
	assert.Equal(t, uint64(2), a.Metrics().CacheMisses(), "Screening and FHIRHelpers are loaded once across runs")
}

const identityMainJSON = `{"library": {
  "identifier": {"id": "Main", "version": "1.0.0"},
  "includes": {"def": [{"localIdentifier": "H", "path": "Helpers"}]},
  "statements": {"def": [
    {"name": "UsesA", "context": "Patient", "expression": {"type": "ExpressionRef", "libraryName": "H", "name": "A"}},
    {"name": "UsesB", "context": "Patient", "expression": {"type": "ExpressionRef", "libraryName": "H", "name": "B"}}
  ]}}}`

const identityHelpersJSON = `{"library": {
  "identifier": {"id": "Helpers", "version": "2.0.0"},
  "statements": {"def": [
    {"name": "A", "context": "Patient", "expression": {"type": "Retrieve", "dataType": "{http://hl7.org/fhir}Encounter"}},
    {"name": "B", "context": "Patient", "expression": {"type": "ExpressionRef", "name": "A"}}
  ]}}}`

func TestAnalyze_OneIdentityPerDefinition(t *testing.T) {
	fsys := fstest.MapFS{
		"Main-1.0.0.json": {Data: []byte(identityMainJSON)},
		"Helpers.json":    {Data: []byte(identityHelpersJSON)},
	}

	tests := []struct {
		name      string
		id        elm.VersionedIdentifier
		cacheSize int
	}{
		{"versioned request", mainID, 10},
		{"unversioned request", elm.VersionedIdentifier{ID: "Main"}, 10},
		{"evicting cache", mainID, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := NewFromSources([]library.Source{library.NewFSSource(fsys)}, quiet(), er.WithLibraryCacheSize(tt.cacheSize))
			require.NoError(t, err)

			res, err := a.Analyze(context.Background(), tt.id)
			require.NoError(t, err)
			assert.Equal(t, mainID, res.Library)

			defs := make(map[string]int)
			for _, req := range res.Requirements.Requirements() {
				if def, ok := req.Element().(elm.ExpressionDefinition); ok {
					defs[req.LibraryIdentifier().String()+"."+elm.DefOf(def).Name]++
				}
			}
			assert.Equal(t, map[string]int{
				"Main|1.0.0.UsesA": 1,
				"Main|1.0.0.UsesB": 1,
				"Helpers|2.0.0.A":  1,
				"Helpers|2.0.0.B":  1,
			}, defs)

			var encounters int
			for _, dr := range res.DataRequirements() {
				if dr.Retrieve().DataType.Local == "Encounter" {
					encounters++
				}
			}
			assert.Equal(t, 1, encounters)
		})
	}
}

func TestAnalyze_Errors(t *testing.T) {
	a := newScreeningAnalyzer(t)

	_, err := a.Analyze(context.Background(), elm.VersionedIdentifier{ID: "Missing"})
	assert.ErrorIs(t, err, er.ErrNotFound)

	cyclic := &elm.Library{Identifier: mainID, Statements: []elm.ExpressionDefinition{
		&elm.ExpressionDef{Name: "A", Expression: &elm.ExpressionRef{Name: "A"}},
	}}
	b, err := New(library.NewManager(library.NewMemorySource(cyclic)), quiet())
	require.NoError(t, err)
	_, err = b.Analyze(context.Background(), mainID)
	assert.ErrorIs(t, err, er.ErrCyclicDefinition)
	assert.Equal(t, uint64(1), b.Metrics().RunsFailed())

	lenient, err := New(library.NewManager(library.NewMemorySource(cyclic)), append(er.LenientOptions(), quiet())...)
	require.NoError(t, err)
	res, err := lenient.Analyze(context.Background(), mainID)
	require.NoError(t, err)
	require.Len(t, res.Issues, 1)
	assert.Equal(t, er.IssueCyclicDefinition, res.Issues[0].Code)
	assert.Equal(t, "A", res.Issues[0].Definition)
}

func TestAnalyzeBatch(t *testing.T) {
	a := newScreeningAnalyzer(t, er.WithWorkerCount(2))
	ids := []elm.VersionedIdentifier{screeningID, {ID: "Missing"}, helpersID}

	outcomes := a.AnalyzeBatch(context.Background(), ids)
	require.Len(t, outcomes, 3)

	assert.Equal(t, screeningID, outcomes[0].Library)
	assert.NoError(t, outcomes[0].Err)
	assert.NotNil(t, outcomes[0].Result)

	assert.ErrorIs(t, outcomes[1].Err, er.ErrNotFound)
	assert.Nil(t, outcomes[1].Result)

	require.NoError(t, outcomes[2].Err)
	assert.Empty(t, outcomes[2].Result.Definitions, "a library of functions has no listed definitions")

	assert.Equal(t, uint64(3), a.Metrics().RunsTotal())
}

func TestAnalyzeBatch_Cancelled(t *testing.T) {
	a := newScreeningAnalyzer(t, er.WithWorkerCount(1))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for _, o := range a.AnalyzeBatch(ctx, []elm.VersionedIdentifier{screeningID, screeningID}) {
		assert.Error(t, o.Err)
	}
}

func BenchmarkAnalyze_Screening(b *testing.B) {
	a := newScreeningAnalyzer(b)
	ctx := context.Background()

	b.ResetTimer()
	b.ReportAllocs()

	for i := 0; i < b.N; i++ {
		if _, err := a.Analyze(ctx, screeningID); err != nil {
			b.Fatalf("Analyze error: %v", err)
		}
	}
}
