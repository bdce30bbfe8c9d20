// Package outline parses the body of an index document into a flat list of
// depth-tagged entries. Each non-blank line is one entry; indentation sets
// its depth and a bulleted [[wikiref]] names the document it places.
package outline

import (
	"fmt"
	"regexp"
	"strings"
)

// IndentKind is the character used for one level of indentation.
type IndentKind string

const (
	IndentSpace IndentKind = "space"
	IndentTab   IndentKind = "tab"
)

// Options control how strictly a body is parsed.
type Options struct {
	IndentKind IndentKind
	// IndentSize is the number of spaces per level. Zero means detect it from
	// the first indented line. Ignored for tabs.
	IndentSize int
	// MkdnBullet requires every entry to start with "- ", "* " or "+ ".
	MkdnBullet bool
	// WikiLink requires every entry to be a [[reference]].
	WikiLink bool
}

// DefaultOptions returns two-space indentation with bullets and wikirefs.
func DefaultOptions() Options {
	return Options{
		IndentKind: IndentSpace,
		IndentSize: 2,
		MkdnBullet: true,
		WikiLink:   true,
	}
}

// Entry is one outline line.
type Entry struct {
	Text        string `json:"text"`
	Depth       int    `json:"depth"`
	IsReference bool   `json:"is_reference"`
	Line        int    `json:"line"`
}

// Warning is a non-fatal finding.
type Warning struct {
	Kind    Kind   `json:"kind"`
	Line    int    `json:"line"`
	Text    string `json:"text"`
	Message string `json:"message"`
}

func (w Warning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Message)
}

// Result holds everything Parse found, including errors, so callers that
// only lint can report all of them at once.
type Result struct {
	Entries  []Entry
	Warnings []Warning
	Errors   []*LintError
}

var (
	bulletRe = regexp.MustCompile(`^[-*+] `)
	wikiRe   = regexp.MustCompile(`^\[\[([^\[\]]+)\]\]$`)
)

// Parse reads body and returns its entries. The body must already have its
// front matter removed. When any line is malformed the first *LintError is
// returned alongside the full Result.
func Parse(body string, opts Options) (Result, error) {
	p := parser{opts: opts, prev: -1, seen: make(map[string]int)}
	for i, line := range strings.Split(body, "\n") {
		p.line(i+1, strings.TrimRight(line, " \t\r"))
	}
	if len(p.res.Errors) > 0 {
		return p.res, p.res.Errors[0]
	}
	return p.res, nil
}

type parser struct {
	opts Options
	res  Result
	prev int
	size int
	seen map[string]int
}

func (p *parser) line(n int, line string) {
	if strings.TrimSpace(line) == "" {
		return
	}
	trimmed := strings.TrimLeft(line, " \t")
	indent := line[:len(line)-len(trimmed)]

	depth, err := p.depth(indent)
	if err != nil {
		p.fail(IndentMismatch, n, trimmed, err.Error())
		return
	}
	if depth > p.prev+1 {
		p.fail(SkippedLevel, n, trimmed, fmt.Sprintf("depth %d follows depth %d", depth, p.prev))
		return
	}

	text, isRef, kind, msg := RawText(trimmed, p.opts)
	if kind != "" {
		p.fail(kind, n, trimmed, msg)
		return
	}
	p.prev = depth

	if first, dup := p.seen[text]; dup {
		p.res.Warnings = append(p.res.Warnings, Warning{
			Kind:    Duplicate,
			Line:    n,
			Text:    text,
			Message: fmt.Sprintf("duplicate entry %q (first on line %d)", text, first),
		})
	} else {
		p.seen[text] = n
	}
	p.res.Entries = append(p.res.Entries, Entry{Text: text, Depth: depth, IsReference: isRef, Line: n})
}

func (p *parser) depth(indent string) (int, error) {
	if indent == "" {
		return 0, nil
	}
	if p.opts.IndentKind == IndentTab {
		if strings.Contains(indent, " ") {
			return 0, fmt.Errorf("expected tabs, found spaces")
		}
		return len(indent), nil
	}
	if strings.Contains(indent, "\t") {
		return 0, fmt.Errorf("expected spaces, found tabs")
	}
	size := p.opts.IndentSize
	if size <= 0 {
		if p.size == 0 {
			p.size = len(indent)
		}
		size = p.size
	}
	if len(indent)%size != 0 {
		return 0, fmt.Errorf("indent of %d spaces is not a multiple of %d", len(indent), size)
	}
	return len(indent) / size, nil
}

func (p *parser) fail(kind Kind, line int, text, msg string) {
	p.res.Errors = append(p.res.Errors, &LintError{Kind: kind, Line: line, Text: text, Message: msg})
}

// RawText strips the bullet and reference brackets from a trimmed line and
// returns the identifier it names. A non-empty kind reports why the line is
// not a valid entry under opts.
func RawText(line string, opts Options) (text string, isRef bool, kind Kind, msg string) {
	text = line
	if loc := bulletRe.FindStringIndex(text); loc != nil {
		text = strings.TrimSpace(text[loc[1]:])
	} else if opts.MkdnBullet {
		return "", false, MissingBullet, "entry has no markdown bullet"
	}
	if m := wikiRe.FindStringSubmatch(text); m != nil {
		text, _, _ = strings.Cut(m[1], "|")
		text = strings.TrimSpace(text)
		isRef = true
	} else if opts.WikiLink {
		return "", false, MissingReference, "entry is not a [[wikiref]]"
	}
	if text == "" {
		return "", false, MissingReference, "entry is empty"
	}
	return text, isRef, "", ""
}
