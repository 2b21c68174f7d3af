// Package elmrequirements computes the data requirements of compiled CQL
// libraries.
//
// Given an ELM library (the compiled syntax tree of a CQL library) and a way
// to resolve the libraries it includes, the analysis reports, for every
// expression definition, the retrieves, codes, concepts, value sets and
// parameters that evaluating the expression depends on. Nothing is evaluated:
// the answer is derived from the tree alone.
//
// # Quick Start
//
//	import (
//	    er "github.com/gofhir/elmrequirements"
//	    "github.com/gofhir/elmrequirements/engine"
//	    "github.com/gofhir/elmrequirements/library"
//	    "github.com/gofhir/elmrequirements/report"
//	)
//
//	sources := []library.Source{library.NewDirSource("./elm")}
//	analyzer, err := engine.NewFromSources(sources, er.WithLibraryCacheSize(50))
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	result, err := analyzer.Analyze(ctx, elm.VersionedIdentifier{ID: "CMS146", Version: "2.0.0"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	rep, err := report.Build(ctx, result)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	report.Write(os.Stdout, rep, er.FormatJSON)
//
// # Architecture
//
//   - elm: the syntax tree shapes consumed by the analysis
//   - requirements: requirement records, sets, data/query/property requirements
//   - inference: the scope stack engine, cross-library resolution and property binding
//   - walker: the tree walk that drives the engine
//   - library: library resolution (cached chain of sources)
//   - loader: ELM JSON decoding
//   - cache: bounded LRU cache of loaded libraries
//   - engine: the analysis facade, single and batch runs
//   - report: FHIR-facing summary of a finished run
//
// Non-fatal findings (unresolved property types, skipped self references,
// unknown functions, invalid must-support paths) are collected as
// Diagnostics and surface on the engine result and the report.
//
// One analysis run owns all of its state. Runs are not safe for concurrent
// use; separate runs may execute in parallel on separate analyzers or calls.
package elmrequirements
