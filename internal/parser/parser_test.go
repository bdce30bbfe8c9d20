package parser

import (
	"testing"

	"github.com/starford/bonsai/internal/graph"
)

func TestParse_FrontmatterAndBody(t *testing.T) {
	input := []byte("---\ntitle: Hello\ntags:\n  - go\n  - bonsai\n---\n# Hello\nBody text.\n")
	d, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Title != "Hello" {
		t.Errorf("title = %q, want %q", d.Title, "Hello")
	}
	if len(d.Tags) < 2 || d.Tags[0] != "go" || d.Tags[1] != "bonsai" {
		t.Errorf("tags = %v, want [go bonsai]", d.Tags)
	}
	if d.Body != "# Hello\nBody text.\n" {
		t.Errorf("body = %q", d.Body)
	}
}

func TestParse_NoFrontmatter(t *testing.T) {
	d, err := Parse([]byte("# Just a heading\nSome text.\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Attrs != nil {
		t.Errorf("expected nil attrs, got %v", d.Attrs)
	}
	if d.Title != "Just a heading" {
		t.Errorf("title = %q, want %q", d.Title, "Just a heading")
	}
}

func TestParse_InvalidYAMLFallback(t *testing.T) {
	d, err := Parse([]byte("---\n: invalid: yaml: {{{\n---\nBody\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Attrs != nil {
		t.Errorf("expected nil attrs on invalid YAML, got %v", d.Attrs)
	}
}

func TestParse_ReservedAttrs(t *testing.T) {
	d, err := Parse([]byte("---\nid: abc123\nnodetype: index\n---\n- [[child]]\n"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.ID != "abc123" {
		t.Errorf("id = %q, want abc123", d.ID)
	}
	if d.NodeType != "index" {
		t.Errorf("nodetype = %q, want index", d.NodeType)
	}
}

func TestParse_AttrBlock(t *testing.T) {
	input := []byte(":author::[[ada]]\n:status::draft\n\nText links [[b]].\n")
	d, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.Body != "Text links [[b]].\n" {
		t.Errorf("body = %q", d.Body)
	}
	if got := d.Attrs["status"]; got != "draft" {
		t.Errorf("status attr = %v, want draft", got)
	}
	want := []Ref{
		{Kind: graph.EdgeAttr, Type: "author", Target: "ada"},
		{Kind: graph.EdgeLink, Target: "b"},
	}
	if len(d.Refs) != len(want) {
		t.Fatalf("refs = %v, want %v", d.Refs, want)
	}
	for i := range want {
		if d.Refs[i] != want[i] {
			t.Errorf("refs[%d] = %v, want %v", i, d.Refs[i], want[i])
		}
	}
}

func TestParse_FrontmatterWikirefs(t *testing.T) {
	input := []byte("---\nrelated:\n  - \"[[x]]\"\n  - \"[[y|Why]]\"\nauthor: \"[[ada]]\"\n---\nbody\n")
	d, err := Parse(input)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := []Ref{
		{Kind: graph.EdgeAttr, Type: "author", Target: "ada"},
		{Kind: graph.EdgeAttr, Type: "related", Target: "x"},
		{Kind: graph.EdgeAttr, Type: "related", Target: "y"},
	}
	if len(d.Refs) != len(want) {
		t.Fatalf("refs = %v, want %v", d.Refs, want)
	}
	for i := range want {
		if d.Refs[i] != want[i] {
			t.Errorf("refs[%d] = %v, want %v", i, d.Refs[i], want[i])
		}
	}
}

func TestScan_Kinds(t *testing.T) {
	body := "See [[Note A]] and [[Note B|alias]].\n" +
		"Also [[Note A]] again, :cites::[[paper]] and ![[snippet]].\n" +
		"Images are skipped: ![[diagram.png]] [[song.mp3]]."
	refs := Scan(body)
	want := []Ref{
		{Kind: graph.EdgeLink, Target: "Note A"},
		{Kind: graph.EdgeLink, Target: "Note B"},
		{Kind: graph.EdgeLink, Type: "cites", Target: "paper"},
		{Kind: graph.EdgeEmbed, Target: "snippet"},
	}
	if len(refs) != len(want) {
		t.Fatalf("refs = %v, want %v", refs, want)
	}
	for i := range want {
		if refs[i] != want[i] {
			t.Errorf("refs[%d] = %v, want %v", i, refs[i], want[i])
		}
	}
}

func TestScan_EmptyTarget(t *testing.T) {
	if refs := Scan("see [[ ]] and [[|alias]]"); len(refs) != 0 {
		t.Errorf("expected no refs, got %v", refs)
	}
}

func TestFilename(t *testing.T) {
	cases := map[string]string{
		"notes/alpha.md": "alpha",
		"beta.md":        "beta",
		"deep/a/b/c.md":  "c",
		"no-extension":   "no-extension",
		"dotted.name.md": "dotted.name",
	}
	for in, want := range cases {
		if got := Filename(in); got != want {
			t.Errorf("Filename(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestExtractTags_InlineAndFrontmatter(t *testing.T) {
	fm := map[string]any{
		"tags": []any{"alpha"},
	}
	tags := extractTags("Some text #beta and #alpha again.", fm)
	if len(tags) != 2 || tags[0] != "alpha" || tags[1] != "beta" {
		t.Errorf("tags = %v, want [alpha beta]", tags)
	}
}

func TestDeriveTitle_FrontmatterOverH1(t *testing.T) {
	fm := map[string]any{"title": "FM Title"}
	if title := deriveTitle(fm, "# H1 Title\ntext"); title != "FM Title" {
		t.Errorf("title = %q, want %q", title, "FM Title")
	}
}

func TestDeriveTitle_H1Fallback(t *testing.T) {
	if title := deriveTitle(nil, "some text\n# My Heading\nmore"); title != "My Heading" {
		t.Errorf("title = %q, want %q", title, "My Heading")
	}
}
