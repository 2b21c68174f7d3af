// Package elm models the compiled CQL syntax tree (ELM) consumed by the
// requirements analysis.
//
// Only the node kinds the analysis distinguishes are modelled precisely.
// Everything else is carried by the generic Operator node, which keeps the
// operands so a tree walk can still reach nested references.
//
// Nodes are always handled by pointer. Two nodes are the same node only if
// they are the same pointer; structurally equal subtrees are distinct.
package elm
