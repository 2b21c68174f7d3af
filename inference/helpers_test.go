package inference

import (
	"context"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/pkg/logger"
	"github.com/gofhir/elmrequirements/requirements"
)

const fhirNS = "http://hl7.org/fhir"

var (
	mainID   = elm.VersionedIdentifier{ID: "Main", Version: "1.0.0"}
	commonID = elm.VersionedIdentifier{ID: "Common", Version: "1.0.0"}
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

func funcDef(name string, e elm.Expression, operands ...string) *elm.FunctionDef {
	fd := &elm.FunctionDef{ExpressionDef: elm.ExpressionDef{Name: name, Context: "Patient", Expression: e}}
	for _, op := range operands {
		fd.Operands = append(fd.Operands, &elm.OperandDef{Name: op})
	}
	return fd
}

// recordingVisitor is a minimal tree walk that counts the definitions it is
// asked to visit.
type recordingVisitor struct {
	visits map[elm.Element]int
}

func newRecordingVisitor() *recordingVisitor {
	return &recordingVisitor{visits: make(map[elm.Element]int)}
}

func (v *recordingVisitor) VisitElement(ctx context.Context, el elm.Element, rc *Context) error {
	v.visits[el]++
	switch d := el.(type) {
	case *elm.ExpressionDef:
		return v.visitDef(ctx, d, rc)
	case *elm.FunctionDef:
		return v.visitDef(ctx, d, rc)
	case *elm.IncludeDef:
		rc.ReportIncludeDef(d)
	case *elm.CodeDef:
		rc.ReportCodeDef(d)
	case *elm.CodeSystemDef:
		rc.ReportCodeSystemDef(d)
	case *elm.ConceptDef:
		rc.ReportConceptDef(d)
	case *elm.ValueSetDef:
		rc.ReportValueSetDef(d)
	case *elm.ParameterDef:
		rc.ReportParameterDef(d)
	}
	return nil
}

func (v *recordingVisitor) visitDef(ctx context.Context, def elm.ExpressionDefinition, rc *Context) error {
	rc.EnterExpressionDef(def)
	inferred, err := v.expr(ctx, elm.DefOf(def).Expression, rc)
	if err != nil {
		rc.AbortExpressionDef()
		return err
	}
	rc.ExitExpressionDef(inferred)
	return nil
}

func (v *recordingVisitor) expr(ctx context.Context, e elm.Expression, rc *Context) (requirements.Requirement, error) {
	switch e := e.(type) {
	case *elm.Retrieve:
		rc.ReportRetrieve(e)
		return requirements.NewDataRequirement(rc.CurrentLibraryIdentifier(), e), nil
	case *elm.ExpressionRef:
		inferred, err := rc.ReportExpressionRef(ctx, e)
		if err != nil {
			return nil, err
		}
		rc.ReportRequirements(inferred, nil)
		return inferred, nil
	case *elm.FunctionRef:
		for _, op := range e.Operands {
			if _, err := v.expr(ctx, op, rc); err != nil {
				return nil, err
			}
		}
		return nil, rc.ReportFunctionRef(ctx, e)
	case *elm.CodeRef:
		return nil, rc.ReportCodeRef(ctx, e)
	case *elm.ValueSetRef:
		return nil, rc.ReportValueSetRef(ctx, e)
	case *elm.ParameterRef:
		return nil, rc.ReportParameterRef(ctx, e)
	case *elm.Operator:
		for _, op := range e.Operands {
			if _, err := v.expr(ctx, op, rc); err != nil {
				return nil, err
			}
		}
	}
	return nil, nil
}

func quietLogger() *logger.Logger {
	return logger.New(io.Discard, logger.LevelNone)
}

// newTestContext returns a context over libs with Main as the current
// library.
func newTestContext(t *testing.T, libs []*elm.Library, opts ...er.Option) (*Context, *recordingVisitor) {
	t.Helper()
	v := newRecordingVisitor()
	mgr := library.NewManager(library.NewMemorySource(libs...))
	opts = append([]er.Option{er.WithLogger(quietLogger())}, opts...)
	rc, err := NewContext(mgr, v, opts...)
	require.NoError(t, err)
	rc.EnterLibrary(mainID)
	return rc, v
}

// requireViolation asserts that f panics with a ContractError for op.
func requireViolation(t *testing.T, op string, f func()) {
	t.Helper()
	defer func() {
		r := recover()
		require.NotNil(t, r, "expected a contract violation")
		ce, ok := r.(*er.ContractError)
		require.True(t, ok, "panic value %v is not a ContractError", r)
		require.Equal(t, op, ce.Op)
	}()
	f()
}

func elements(reqs []requirements.Requirement) []elm.Element {
	out := make([]elm.Element, 0, len(reqs))
	for _, r := range reqs {
		out = append(out, r.Element())
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
