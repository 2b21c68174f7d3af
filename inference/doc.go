// Package inference computes the data requirements of ELM expression
// definitions.
//
// A Context is the state of one analysis run. It is driven by a Visitor
// that walks the tree and calls back into the Context at definition
// boundaries (EnterLibrary, EnterExpressionDef, EnterQueryContext and
// their Exit counterparts) and at reference nodes (ReportRetrieve,
// ReportExpressionRef, ReportProperty and the other Report methods).
//
// The Context decides which scope owns each reported requirement:
//
//   - Definitions (usings, includes, code systems, value sets, codes,
//     concepts, parameters, contexts and expression definitions) go to the
//     run-wide set returned by Requirements, once per run.
//   - Any other node goes to the innermost active expression definition,
//     or to the run-wide set when no definition is active.
//
// References that cross library boundaries push the target library for the
// duration of the report, so requirements found while analyzing the target
// definition carry the target library identifier. A definition is analyzed
// once per run; later references reuse its memoized reported and inferred
// requirements.
//
// Property accesses are bound by ReportProperty to the query alias or let
// clause they are rooted in. Accesses with no query root are attached to a
// synthesized retrieve of the source's result type, one per type per run.
//
// A Context is not safe for concurrent use.
package inference
