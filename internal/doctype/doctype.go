// Package doctype resolves the document type of a file from its name, its
// attributes and its location, and recognises template documents.
package doctype

import (
	"fmt"
	"math/rand/v2"
	"path"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/starford/bonsai/internal/graph"
)

// Type declares how documents of one type are recognised.
type Type struct {
	// Prefix is a filename prefix. It may contain the placeholders :id,
	// :date, :year, :month, :day, :hour and :minute.
	Prefix string `yaml:"prefix" json:"prefix,omitempty"`
	// Attr is the nodetype attribute value that selects this type. When
	// empty the type name itself is matched.
	Attr string `yaml:"attr" json:"attr,omitempty"`
	// Path is a vault-relative directory whose documents take this type.
	Path string `yaml:"path" json:"path,omitempty"`
}

// Config configures a Resolver.
type Config struct {
	Types        map[string]Type
	TemplatePath string
	IDAlphabet   string
	IDSize       int
}

// DefaultConfig declares only the index type, recognised by the "i." prefix.
func DefaultConfig() Config {
	return Config{
		Types:      map[string]Type{graph.TypeIndex: {Prefix: "i."}},
		IDAlphabet: "abcdefghijklmnopqrstuvwxyz0123456789",
		IDSize:     6,
	}
}

var placeholderRe = regexp.MustCompile(`:(id|date|year|month|day|hour|minute)`)

type compiled struct {
	name   string
	typ    Type
	prefix *regexp.Regexp
	dir    string
}

// Resolver maps documents to type names. It is immutable after New.
type Resolver struct {
	types    []compiled
	template string
	idPat    string
	alphabet string
	idSize   int
}

// New compiles cfg. An empty IDAlphabet or IDSize falls back to the defaults.
func New(cfg Config) (*Resolver, error) {
	def := DefaultConfig()
	if cfg.IDAlphabet == "" {
		cfg.IDAlphabet = def.IDAlphabet
	}
	if cfg.IDSize <= 0 {
		cfg.IDSize = def.IDSize
	}
	r := &Resolver{
		template: cleanDir(cfg.TemplatePath),
		idPat:    fmt.Sprintf("[%s]{%d}", regexp.QuoteMeta(cfg.IDAlphabet), cfg.IDSize),
		alphabet: cfg.IDAlphabet,
		idSize:   cfg.IDSize,
	}
	for name, t := range cfg.Types {
		c := compiled{name: name, typ: t, dir: cleanDir(t.Path)}
		if t.Prefix != "" {
			re, err := regexp.Compile("^" + r.pattern(t.Prefix))
			if err != nil {
				return nil, fmt.Errorf("doctype: type %q: prefix %q: %w", name, t.Prefix, err)
			}
			c.prefix = re
		}
		r.types = append(r.types, c)
	}
	// Longer prefixes first so "i.sub." beats "i.".
	sort.Slice(r.types, func(i, j int) bool {
		a, b := r.types[i], r.types[j]
		if len(a.typ.Prefix) != len(b.typ.Prefix) {
			return len(a.typ.Prefix) > len(b.typ.Prefix)
		}
		return a.name < b.name
	})
	return r, nil
}

// Resolve returns the type of a document. Precedence is filename prefix,
// then the nodetype attribute, then the longest matching directory, then
// graph.TypeDefault. relPath is the vault-relative path and may be empty.
func (r *Resolver) Resolve(filename, relPath string, attrs map[string]interface{}) string {
	for _, t := range r.types {
		if t.prefix != nil && t.prefix.MatchString(filename) {
			return t.name
		}
	}
	if v, ok := attrs["nodetype"].(string); ok && v != "" {
		for _, t := range r.types {
			want := t.typ.Attr
			if want == "" {
				want = t.name
			}
			if v == want {
				return t.name
			}
		}
	}
	best, bestLen := graph.TypeDefault, -1
	dir := path.Dir(toSlash(relPath))
	for _, t := range r.types {
		if t.dir == "" || !within(dir, t.dir) {
			continue
		}
		if len(t.dir) > bestLen {
			best, bestLen = t.name, len(t.dir)
		}
	}
	return best
}

// IsTemplate reports whether relPath lies in the template directory.
func (r *Resolver) IsTemplate(relPath string) bool {
	if r.template == "" {
		return false
	}
	return within(path.Dir(toSlash(relPath)), r.template)
}

// Kind returns the graph kind for a document at relPath.
func (r *Resolver) Kind(relPath string) graph.Kind {
	if r.IsTemplate(relPath) {
		return graph.KindTemplate
	}
	return graph.KindDoc
}

// Names lists the configured type names in sorted order.
func (r *Resolver) Names() []string {
	out := make([]string, 0, len(r.types))
	for _, t := range r.types {
		out = append(out, t.name)
	}
	sort.Strings(out)
	return out
}

// Affix prepends the prefix of typ to name, filling placeholders from now and
// newID. A name that already carries the prefix is returned unchanged.
func (r *Resolver) Affix(typ, name string, now time.Time, newID func() string) string {
	for _, t := range r.types {
		if t.name != typ || t.typ.Prefix == "" {
			continue
		}
		if t.prefix.MatchString(name) {
			return name
		}
		return fill(t.typ.Prefix, now, newID) + name
	}
	return name
}

// NewID returns a random id drawn from the configured alphabet, the value an
// :id placeholder takes in a new filename.
func (r *Resolver) NewID() string {
	out := make([]byte, r.idSize)
	for i := range out {
		out[i] = r.alphabet[rand.IntN(len(r.alphabet))]
	}
	return string(out)
}

// Strip removes a recognised type prefix from filename.
func (r *Resolver) Strip(filename string) string {
	for _, t := range r.types {
		if t.prefix == nil {
			continue
		}
		if loc := t.prefix.FindStringIndex(filename); loc != nil {
			return filename[loc[1]:]
		}
	}
	return filename
}

func (r *Resolver) pattern(prefix string) string {
	var b strings.Builder
	last := 0
	for _, loc := range placeholderRe.FindAllStringSubmatchIndex(prefix, -1) {
		b.WriteString(regexp.QuoteMeta(prefix[last:loc[0]]))
		switch prefix[loc[2]:loc[3]] {
		case "id":
			b.WriteString(r.idPat)
		case "date":
			b.WriteString(`\d{4}-\d{2}-\d{2}`)
		case "year":
			b.WriteString(`\d{4}`)
		default:
			b.WriteString(`\d{2}`)
		}
		last = loc[1]
	}
	b.WriteString(regexp.QuoteMeta(prefix[last:]))
	return b.String()
}

func fill(prefix string, now time.Time, newID func() string) string {
	return placeholderRe.ReplaceAllStringFunc(prefix, func(m string) string {
		switch m {
		case ":id":
			if newID == nil {
				return ""
			}
			return newID()
		case ":date":
			return now.Format("2006-01-02")
		case ":year":
			return now.Format("2006")
		case ":month":
			return now.Format("01")
		case ":day":
			return now.Format("02")
		case ":hour":
			return now.Format("15")
		case ":minute":
			return now.Format("04")
		}
		return m
	})
}

func cleanDir(p string) string {
	if p == "" {
		return ""
	}
	p = path.Clean(toSlash(p))
	if p == "." || p == "/" {
		return ""
	}
	return strings.TrimPrefix(p, "/")
}

func within(dir, root string) bool {
	return dir == root || strings.HasPrefix(dir, root+"/")
}

func toSlash(p string) string {
	return strings.ReplaceAll(p, "\\", "/")
}
