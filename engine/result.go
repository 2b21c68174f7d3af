package engine

import (
	"slices"
	"strings"
	"time"

	er "github.com/gofhir/elmrequirements"
	"github.com/gofhir/elmrequirements/elm"
	"github.com/gofhir/elmrequirements/inference"
	"github.com/gofhir/elmrequirements/library"
	"github.com/gofhir/elmrequirements/requirements"
)

// Result is the outcome of one analysis run.
type Result struct {
	// RunID identifies the run in logs and reports.
	RunID string

	// Library is the identifier of the analyzed library as resolved.
	Library elm.VersionedIdentifier

	// Requirements is the run-wide set: every definition visited, plus
	// requirements reported outside any definition.
	Requirements *requirements.Requirements

	// Definitions holds one entry per analyzed expression definition of
	// the library, in declaration order. Functions are not listed.
	Definitions []Definition

	// Unbound maps a data type to the synthesized requirement collecting
	// property accesses that were not bound to a query source.
	Unbound map[elm.QName]*requirements.DataRequirement

	// Issues holds the non-fatal findings of the run.
	Issues []er.Issue

	// Duration is the wall time of the run.
	Duration time.Duration

	rc *inference.Context
}

// Definition holds the requirements of one expression definition.
type Definition struct {
	Def      elm.ExpressionDefinition
	Name     string
	Reported *requirements.Requirements
	Inferred requirements.Requirement
}

func newResult(runID string, lib *library.Library, targets []elm.ExpressionDefinition, rc *inference.Context) *Result {
	res := &Result{
		RunID:        runID,
		Library:      lib.Identifier(),
		Requirements: rc.Requirements(),
		Unbound:      rc.UnboundDataRequirements(),
		Issues:       rc.Diagnostics().Issues(),
		rc:           rc,
	}
	for _, def := range targets {
		if elm.IsFunction(def) {
			continue
		}
		reported, ok := rc.ReportedRequirements(def)
		if !ok {
			continue
		}
		inferred, _ := rc.InferredRequirements(def)
		res.Definitions = append(res.Definitions, Definition{
			Def:      def,
			Name:     elm.DefOf(def).Name,
			Reported: reported,
			Inferred: inferred,
		})
	}
	return res
}

// Context returns the finished inference state of the run. Its Resolve*
// helpers resolve references relative to the library a requirement was
// recorded in.
func (r *Result) Context() *inference.Context {
	return r.rc
}

// Definition returns the entry for the expression definition named name.
func (r *Result) Definition(name string) (Definition, bool) {
	for _, d := range r.Definitions {
		if d.Name == name {
			return d, true
		}
	}
	return Definition{}, false
}

// DataRequirements returns the data requirements of the run: for every
// definition, the data requirements it infers and the retrieves it
// reports that none of them covers, plus the unbound requirements. Each
// retrieve appears once.
func (r *Result) DataRequirements() []*requirements.DataRequirement {
	var out []*requirements.DataRequirement
	seen := make(map[*elm.Retrieve]bool)
	add := func(dr *requirements.DataRequirement) {
		if dr == nil || seen[dr.Retrieve()] {
			return
		}
		seen[dr.Retrieve()] = true
		out = append(out, dr)
	}

	for _, d := range r.Definitions {
		for _, dr := range dataRequirementsOf(d.Inferred) {
			add(dr)
		}
		for _, req := range d.Reported.Requirements() {
			switch req := req.(type) {
			case *requirements.DataRequirement:
				add(req)
			default:
				if rt, ok := req.Element().(*elm.Retrieve); ok && !seen[rt] {
					add(requirements.NewDataRequirement(req.LibraryIdentifier(), rt))
				}
			}
		}
	}
	for _, dr := range sortedUnbound(r.Unbound) {
		add(dr)
	}
	return out
}

func dataRequirementsOf(r requirements.Requirement) []*requirements.DataRequirement {
	switch r := r.(type) {
	case *requirements.DataRequirement:
		return []*requirements.DataRequirement{r}
	case *requirements.QueryRequirement:
		return r.DataRequirements()
	case *requirements.Requirements:
		var out []*requirements.DataRequirement
		for _, child := range r.Requirements() {
			out = append(out, dataRequirementsOf(child)...)
		}
		return out
	}
	return nil
}

func sortedUnbound(m map[elm.QName]*requirements.DataRequirement) []*requirements.DataRequirement {
	keys := make([]elm.QName, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.SortFunc(keys, func(a, b elm.QName) int {
		return strings.Compare(a.String(), b.String())
	})
	out := make([]*requirements.DataRequirement, 0, len(keys))
	for _, k := range keys {
		out = append(out, m[k])
	}
	return out
}
