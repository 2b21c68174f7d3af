package elmrequirements

import (
	"fmt"
	"sync"
)

// Severity is the severity of an analysis issue.
type Severity string

// Severity levels.
const (
	SeverityWarning     Severity = "warning"
	SeverityInformation Severity = "information"
)

// IssueCode classifies an analysis issue.
type IssueCode string

// Issue codes.
const (
	// IssueUnresolvedPropertyType: a property was accessed on a source whose
	// type is unknown; no requirement was recorded for it.
	IssueUnresolvedPropertyType IssueCode = "unresolved-property-type"

	// IssueCyclicDefinition: a self-referential definition was skipped
	// because cycle detection is disabled.
	IssueCyclicDefinition IssueCode = "cyclic-definition"

	// IssueUnknownFunction: a function reference matched no definition.
	IssueUnknownFunction IssueCode = "unknown-function"

	// IssueInvalidMustSupportPath: a must-support path did not compile as
	// FHIRPath and was left out of the report.
	IssueInvalidMustSupportPath IssueCode = "invalid-must-support-path"
)

// Issue is a non-fatal finding of an analysis run.
type Issue struct {
	Severity    Severity  `json:"severity"`
	Code        IssueCode `json:"code"`
	Diagnostics string    `json:"diagnostics"`
	Library     string    `json:"library,omitempty"`
	Definition  string    `json:"definition,omitempty"`
}

// IsWarning reports whether the issue is a warning.
func (i Issue) IsWarning() bool {
	return i.Severity == SeverityWarning
}

// Diagnostics collects the issues of a run.
// All methods are safe for concurrent use and on a nil receiver, where
// recording is a no-op.
type Diagnostics struct {
	mu     sync.Mutex
	issues []Issue
}

// NewDiagnostics creates an empty collection.
func NewDiagnostics() *Diagnostics {
	return &Diagnostics{issues: make([]Issue, 0, 8)}
}

// Add records issue.
func (d *Diagnostics) Add(issue Issue) {
	if d == nil {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.issues = append(d.issues, issue)
}

// Warn records a warning about definition in library.
func (d *Diagnostics) Warn(code IssueCode, library, definition, format string, args ...any) {
	d.Add(Issue{
		Severity:    SeverityWarning,
		Code:        code,
		Diagnostics: fmt.Sprintf(format, args...),
		Library:     library,
		Definition:  definition,
	})
}

// Inform records an informational issue about definition in library.
func (d *Diagnostics) Inform(code IssueCode, library, definition, format string, args ...any) {
	d.Add(Issue{
		Severity:    SeverityInformation,
		Code:        code,
		Diagnostics: fmt.Sprintf(format, args...),
		Library:     library,
		Definition:  definition,
	})
}

// Issues returns a copy of the recorded issues in recording order.
func (d *Diagnostics) Issues() []Issue {
	if d == nil {
		return nil
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Issue, len(d.issues))
	copy(out, d.issues)
	return out
}

// Len returns the number of recorded issues.
func (d *Diagnostics) Len() int {
	if d == nil {
		return 0
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.issues)
}

// WarningCount returns the number of warnings.
func (d *Diagnostics) WarningCount() int {
	count := 0
	for _, issue := range d.Issues() {
		if issue.IsWarning() {
			count++
		}
	}
	return count
}

// ByCode returns the issues with code.
func (d *Diagnostics) ByCode(code IssueCode) []Issue {
	var out []Issue
	for _, issue := range d.Issues() {
		if issue.Code == code {
			out = append(out, issue)
		}
	}
	return out
}

// Merge appends the issues of other.
func (d *Diagnostics) Merge(other *Diagnostics) {
	if d == nil || other == nil || d == other {
		return
	}
	issues := other.Issues()
	d.mu.Lock()
	defer d.mu.Unlock()
	d.issues = append(d.issues, issues...)
}
