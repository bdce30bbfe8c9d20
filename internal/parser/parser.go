// Package parser splits a Markdown document into its attributes and body and
// scans the body for wikirefs.
package parser

import (
	"bytes"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/starford/bonsai/internal/graph"
)

// Reserved attribute keys.
const (
	AttrID       = "id"
	AttrTitle    = "title"
	AttrNodeType = "nodetype"
	AttrTags     = "tags"
)

var (
	// wikirefRe matches [[target]], [[target|label]], ![[embed]] and
	// :type::[[typed link]].
	wikirefRe = regexp.MustCompile(`(!)?(?::([^\n\r!:^|\[\]]+?) *:: *)?\[\[([^\[\]\n]+?)\]\]`)
	// attrLineRe matches a caml attribute line such as ":author::[[ada]]".
	attrLineRe = regexp.MustCompile(`^: ?([^\n\r!:^|\[\]]+?) *::(.*)$`)
	tagRe      = regexp.MustCompile(`(?:^|\s)#([A-Za-z][A-Za-z0-9_/-]*)`)
)

var mediaExts = map[string]struct{}{
	".png": {}, ".jpg": {}, ".jpeg": {}, ".gif": {}, ".svg": {}, ".webp": {}, ".bmp": {}, ".ico": {},
	".mp3": {}, ".wav": {}, ".m4a": {}, ".ogg": {}, ".flac": {}, ".3gp": {},
	".mp4": {}, ".webm": {}, ".ogv": {}, ".mov": {}, ".mkv": {},
	".pdf": {},
}

// Ref is one reference found in a document.
type Ref struct {
	Kind   graph.EdgeKind `json:"kind"`
	Type   string         `json:"type,omitempty"`
	Target string         `json:"target"`
}

// Document is the parsed form of a Markdown file.
type Document struct {
	Attrs    map[string]interface{} `json:"attrs,omitempty"`
	ID       string                 `json:"id,omitempty"`
	Title    string                 `json:"title,omitempty"`
	NodeType string                 `json:"nodetype,omitempty"`
	Tags     []string               `json:"tags,omitempty"`
	// Body has the front matter and the leading attribute block removed,
	// along with any leading blank lines.
	Body string `json:"body"`
	Refs []Ref  `json:"refs,omitempty"`
}

// Parse extracts attributes, body and references from raw Markdown bytes.
// Malformed front matter is treated as body text.
func Parse(data []byte) (*Document, error) {
	fm, body, err := splitFrontmatter(data)
	if err != nil {
		return nil, err
	}
	attrs, attrRefs, body := splitAttrBlock(body)
	if fm == nil {
		fm = make(map[string]interface{})
	}
	for k, v := range attrs {
		if _, ok := fm[k]; !ok {
			fm[k] = v
		}
	}

	refs := append(frontmatterRefs(fm), attrRefs...)
	refs = append(refs, Scan(body)...)

	doc := &Document{
		Attrs:    fm,
		ID:       stringAttr(fm, AttrID),
		NodeType: stringAttr(fm, AttrNodeType),
		Tags:     extractTags(body, fm),
		Title:    deriveTitle(fm, body),
		Body:     body,
		Refs:     dedupeRefs(refs),
	}
	if len(doc.Attrs) == 0 {
		doc.Attrs = nil
	}
	return doc, nil
}

// Scan returns the inline references of body: links, typed links and embeds.
// Media targets are skipped and duplicates collapse.
func Scan(body string) []Ref {
	var out []Ref
	for _, m := range wikirefRe.FindAllStringSubmatch(body, -1) {
		target := cleanTarget(m[3])
		if target == "" || IsMedia(target) {
			continue
		}
		switch {
		case m[1] != "":
			out = append(out, Ref{Kind: graph.EdgeEmbed, Target: target})
		default:
			out = append(out, Ref{Kind: graph.EdgeLink, Type: strings.TrimSpace(m[2]), Target: target})
		}
	}
	return dedupeRefs(out)
}

// IsMedia reports whether a wikiref target names an image, audio, video or
// pdf file rather than a document.
func IsMedia(target string) bool {
	_, ok := mediaExts[strings.ToLower(filepath.Ext(target))]
	return ok
}

// Filename returns the wikiref name of a document path: its base name
// without the extension.
func Filename(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// splitFrontmatter separates YAML frontmatter (between leading --- delimiters)
// from the Markdown body. If no frontmatter is found the entire content is body.
func splitFrontmatter(data []byte) (map[string]interface{}, string, error) {
	const delim = "---"
	trimmed := bytes.TrimLeft(data, "\n\r")

	if !bytes.HasPrefix(trimmed, []byte(delim)) {
		return nil, trimBlankLines(string(data)), nil
	}

	rest := trimmed[len(delim):]
	idx := bytes.Index(rest, []byte("\n"+delim))
	if idx < 0 {
		return nil, trimBlankLines(string(data)), nil
	}

	yamlBlock := rest[:idx]
	afterDelim := rest[idx+1+len(delim):]
	body := trimBlankLines(string(afterDelim))

	var fm map[string]interface{}
	if err := yaml.Unmarshal(yamlBlock, &fm); err != nil {
		return nil, trimBlankLines(string(data)), nil
	}

	return fm, body, nil
}

// splitAttrBlock consumes the caml attribute lines at the top of body.
// Wikiref values become Attr refs typed by the key; anything else is kept as
// a plain attribute.
func splitAttrBlock(body string) (map[string]interface{}, []Ref, string) {
	attrs := make(map[string]interface{})
	var refs []Ref
	lines := strings.Split(body, "\n")
	i := 0
	for ; i < len(lines); i++ {
		m := attrLineRe.FindStringSubmatch(strings.TrimRight(lines[i], "\r"))
		if m == nil {
			break
		}
		key := strings.TrimSpace(m[1])
		value := strings.TrimSpace(m[2])
		targets := wikirefTargets(value)
		if len(targets) == 0 {
			attrs[key] = value
			continue
		}
		for _, t := range targets {
			refs = append(refs, Ref{Kind: graph.EdgeAttr, Type: key, Target: t})
		}
	}
	if i == 0 {
		return nil, nil, body
	}
	return attrs, refs, trimBlankLines(strings.Join(lines[i:], "\n"))
}

// frontmatterRefs turns YAML fields holding wikirefs into Attr refs.
func frontmatterRefs(fm map[string]interface{}) []Ref {
	var refs []Ref
	for key, raw := range fm {
		var values []string
		switch v := raw.(type) {
		case string:
			values = []string{v}
		case []interface{}:
			for _, item := range v {
				if s, ok := item.(string); ok {
					values = append(values, s)
				}
			}
		}
		for _, v := range values {
			for _, t := range wikirefTargets(v) {
				refs = append(refs, Ref{Kind: graph.EdgeAttr, Type: key, Target: t})
			}
		}
	}
	return refs
}

func wikirefTargets(s string) []string {
	var out []string
	for _, m := range wikirefRe.FindAllStringSubmatch(s, -1) {
		if t := cleanTarget(m[3]); t != "" && !IsMedia(t) {
			out = append(out, t)
		}
	}
	return out
}

func cleanTarget(raw string) string {
	target, _, _ := strings.Cut(raw, "|")
	return strings.TrimSpace(target)
}

// dedupeRefs keeps the first of each (kind, type, target) and orders attrs
// by type so map iteration over front matter stays deterministic.
func dedupeRefs(refs []Ref) []Ref {
	seen := make(map[Ref]struct{}, len(refs))
	var out []Ref
	for _, r := range refs {
		if _, ok := seen[r]; ok {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	sortAttrs(out)
	return out
}

func sortAttrs(refs []Ref) {
	// attrs always lead, so only adjacent attr pairs swap
	for i := 1; i < len(refs); i++ {
		for j := i; j > 0; j-- {
			a, b := refs[j-1], refs[j]
			if a.Kind != graph.EdgeAttr || b.Kind != graph.EdgeAttr || a.Type <= b.Type {
				break
			}
			refs[j-1], refs[j] = b, a
		}
	}
}

func stringAttr(fm map[string]interface{}, key string) string {
	if fm == nil {
		return ""
	}
	switch v := fm[key].(type) {
	case string:
		return strings.TrimSpace(v)
	case int, int64, float64:
		return strings.TrimSpace(strings.Trim(yamlScalar(v), "\n"))
	}
	return ""
}

func yamlScalar(v interface{}) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return ""
	}
	return string(out)
}

func trimBlankLines(s string) string {
	for {
		line, rest, found := strings.Cut(s, "\n")
		if !found || strings.TrimSpace(line) != "" {
			return s
		}
		s = rest
	}
}

// extractTags collects #tags from body and from frontmatter "tags" field.
func extractTags(body string, fm map[string]interface{}) []string {
	seen := make(map[string]struct{})
	var out []string

	if raw, ok := fm[AttrTags]; ok {
		if list, ok := raw.([]interface{}); ok {
			for _, item := range list {
				if s, ok := item.(string); ok {
					s = strings.TrimSpace(s)
					if _, dup := seen[s]; s != "" && !dup {
						seen[s] = struct{}{}
						out = append(out, s)
					}
				}
			}
		}
	}

	for _, m := range tagRe.FindAllStringSubmatch(body, -1) {
		t := m[1]
		if _, dup := seen[t]; !dup {
			seen[t] = struct{}{}
			out = append(out, t)
		}
	}

	return out
}

// deriveTitle returns the frontmatter "title" if present, otherwise the first
// H1 heading, otherwise empty string.
func deriveTitle(fm map[string]interface{}, body string) string {
	if s := stringAttr(fm, AttrTitle); s != "" {
		return s
	}
	for _, line := range strings.Split(body, "\n") {
		trimmed := strings.TrimSpace(line)
		if strings.HasPrefix(trimmed, "# ") {
			return strings.TrimSpace(trimmed[2:])
		}
	}
	return ""
}
