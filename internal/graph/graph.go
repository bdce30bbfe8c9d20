// Package graph holds the in-memory model of a document garden: an arena of
// nodes keyed by generated ids and side tables of typed edges between them.
//
// Nodes are documents (Doc), documents excluded from the graph proper
// (Template), or placeholders for referenced documents that do not exist yet
// (Zombie). Family edges form the semantic tree; Attr, Link and Embed edges
// form the web.
package graph

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"
)

// Kind discriminates what backs a node.
type Kind string

const (
	KindDoc      Kind = "doc"
	KindZombie   Kind = "zombie"
	KindTemplate Kind = "template"
)

// Well-known document types.
const (
	TypeDefault = "default"
	TypeIndex   = "index"
)

// Field names a node attribute for Find, Filter and Edit.
type Field string

const (
	FieldID       Field = "id"
	FieldKind     Field = "kind"
	FieldType     Field = "type"
	FieldURI      Field = "uri"
	FieldFilename Field = "filename"
	FieldTitle    Field = "title"
)

// NodeData is the document-facing payload of a node. URI is empty for zombies.
type NodeData struct {
	URI      string `json:"uri,omitempty"`
	Filename string `json:"filename"`
	Title    string `json:"title,omitempty"`
}

// Node is a single graph vertex. Values returned by Graph methods are copies.
type Node struct {
	ID   string   `json:"id"`
	Kind Kind     `json:"kind"`
	Type string   `json:"type"`
	Data NodeData `json:"data"`
}

// IsZombie reports whether the node stands in for a missing document.
func (n Node) IsZombie() bool { return n.Kind == KindZombie }

// Init carries the identity hints for Create. Empty fields get defaults.
type Init struct {
	ID   string
	Kind Kind
	Type string
}

// Option configures a Graph.
type Option func(*Graph)

// WithIDGenerator replaces the default uuid-based id generator.
func WithIDGenerator(fn func() string) Option {
	return func(g *Graph) { g.newID = fn }
}

// WithLogger sets the logger used for diagnostics.
func WithLogger(l *slog.Logger) Option {
	return func(g *Graph) { g.logger = l }
}

// ref is one non-family edge. Two refs are the same edge only if all four
// fields match, so differing refTypes may coexist between the same nodes.
type ref struct {
	kind    EdgeKind
	source  string
	target  string
	refType string
}

// Graph is the node store and relationship index.
//
// All methods are safe for concurrent use, but mutations are expected to
// come from a single logical thread of control; the lock only protects
// readers (HTTP handlers, MCP tools) from observing a half-applied change.
type Graph struct {
	mu     sync.RWMutex
	newID  func() string
	logger *slog.Logger

	nodes      map[string]*Node
	seq        map[string]uint64
	next       uint64
	byFilename map[string]string
	byURI      map[string]string

	root string
	family

	refs map[ref]struct{}
	out  map[string]map[ref]struct{}
	in   map[string]map[ref]struct{}
}

// New returns an empty graph.
func New(opts ...Option) *Graph {
	g := &Graph{
		newID:  uuid.NewString,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(g)
	}
	g.reset()
	return g
}

func (g *Graph) reset() {
	g.nodes = make(map[string]*Node)
	g.seq = make(map[string]uint64)
	g.next = 0
	g.byFilename = make(map[string]string)
	g.byURI = make(map[string]string)
	g.root = ""
	g.family = newFamily()
	g.refs = make(map[ref]struct{})
	g.out = make(map[string]map[ref]struct{})
	g.in = make(map[string]map[ref]struct{})
}

// Len returns the number of nodes, zombies included.
func (g *Graph) Len() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.nodes)
}
