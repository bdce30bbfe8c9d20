package outline

import "fmt"

// Kind classifies a lint finding.
type Kind string

const (
	IndentMismatch   Kind = "indent-mismatch"
	SkippedLevel     Kind = "skipped-level"
	MissingBullet    Kind = "missing-bullet"
	MissingReference Kind = "missing-reference"
	Duplicate        Kind = "duplicate"
)

// LintError is a structural problem on one line of an outline.
type LintError struct {
	Kind    Kind
	Line    int
	Text    string
	Message string
}

func (e *LintError) Error() string {
	return fmt.Sprintf("outline: line %d: %s: %s", e.Line, e.Kind, e.Message)
}

// Is matches any *LintError of the same kind, so callers can test with
// errors.Is(err, &outline.LintError{Kind: outline.SkippedLevel}).
func (e *LintError) Is(target error) bool {
	t, ok := target.(*LintError)
	return ok && t.Kind == e.Kind
}
