// Package walker provides the tree walk that drives requirements inference
// over ELM libraries.
//
// The Walker implements inference.Visitor. For every node kind it decides
// which inference.Context operation to call and what requirement the node
// infers, bottom-up:
//
//   - A Retrieve infers a DataRequirement on itself.
//   - A Property infers the PropertyRequirement it was bound to.
//   - A Query infers a QueryRequirement over the requirements of its
//     aliases and let clauses.
//   - An ExpressionRef infers the memoized requirement of its target.
//   - Other expressions infer the union of their operands.
//
// # Usage
//
//	w := walker.New()
//	rc, err := inference.NewContext(manager, w)
//	if err != nil {
//		return err
//	}
//	if err := w.VisitLibrary(ctx, lib, rc); err != nil {
//		return err
//	}
//	all := rc.Requirements()
//
// # Scope discipline
//
// Every Enter call made by the walker is paired with its Exit on all
// return paths, so a failed resolution leaves the library, definition and
// query stacks as they were before the call. Definitions whose body fails
// are aborted, not memoized. A query met outside any expression
// definition, as in a parameter default, fails with
// elmrequirements.ErrNoExpressionDef.
//
// # Thread Safety
//
// A Walker holds no per-run state and may be shared. The inference.Context
// it drives is not safe for concurrent use.
package walker
