package semtree

import (
	"fmt"
	"strings"

	"github.com/starford/bonsai/internal/outline"
)

// Diagnostic kinds produced by the tree layer, on top of the outline kinds.
const (
	KindCircularInclusion = "circular-inclusion"
	KindRootNotFound      = "root-not-found"
	KindOrphan            = "orphan"
	KindUnreachable       = "unreachable-subroot"
	KindCrossDuplicate    = "duplicate-across-docs"
	KindTemplateEntry     = "template-entry"
)

// Diagnostic is one line of a lint report.
type Diagnostic struct {
	File    string `json:"file"`
	Line    int    `json:"line,omitempty"`
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

func (d Diagnostic) String() string {
	if d.Line > 0 {
		return fmt.Sprintf("%s:%d: %s: %s", d.File, d.Line, d.Kind, d.Message)
	}
	return fmt.Sprintf("%s: %s: %s", d.File, d.Kind, d.Message)
}

// Report separates degraded-but-usable findings from those that abort a
// build.
type Report struct {
	Warnings []Diagnostic `json:"warnings"`
	Errors   []Diagnostic `json:"errors"`
}

// OK reports whether there are no errors.
func (r Report) OK() bool { return len(r.Errors) == 0 }

func (r *Report) warn(file string, line int, kind, msg string) {
	r.Warnings = append(r.Warnings, Diagnostic{File: file, Line: line, Kind: kind, Message: msg})
}

func (r *Report) fail(file string, line int, kind, msg string) {
	r.Errors = append(r.Errors, Diagnostic{File: file, Line: line, Kind: kind, Message: msg})
}

func (r *Report) addOutline(file string, res outline.Result) {
	for _, w := range res.Warnings {
		r.warn(file, w.Line, string(w.Kind), w.Message)
	}
	for _, e := range res.Errors {
		r.fail(file, e.Line, string(e.Kind), e.Message)
	}
}

// String renders the report as plain text, errors first.
func (r Report) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "errors: %d\n", len(r.Errors))
	for _, d := range r.Errors {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	fmt.Fprintf(&b, "warnings: %d\n", len(r.Warnings))
	for _, d := range r.Warnings {
		fmt.Fprintf(&b, "  %s\n", d)
	}
	return b.String()
}
