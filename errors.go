package elmrequirements

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is returned when a library, include or named definition
	// cannot be resolved.
	ErrNotFound = errors.New("not found")

	// ErrCyclicDefinition is returned when a definition references itself,
	// directly or through other definitions.
	ErrCyclicDefinition = errors.New("cyclic definition reference")

	// ErrNotInScope is returned when an alias or let name is not declared by
	// any enclosing query.
	ErrNotInScope = errors.New("name not in scope")

	// ErrNoQueryContext is returned when an alias or let is referenced
	// outside of any query.
	ErrNoQueryContext = errors.New("not in a query context")

	// ErrNoExpressionDef is returned when a query-scoped operation is
	// attempted outside of any expression definition.
	ErrNoExpressionDef = errors.New("not in an expression definition context")
)

// ContractError describes a misuse of the analysis API: an unbalanced
// enter/exit pair, a missing required argument, or an operation invoked
// outside the scope it requires. It is raised with panic.
type ContractError struct {
	Op  string
	Msg string
}

func (e *ContractError) Error() string {
	return fmt.Sprintf("%s: %s", e.Op, e.Msg)
}

// Violation panics with a ContractError for op.
func Violation(op, format string, args ...any) {
	panic(&ContractError{Op: op, Msg: fmt.Sprintf(format, args...)})
}
