package graph

import (
	"fmt"

	"github.com/disiqueira/gotree/v3"
)

// Snapshot is a serialisable copy of the whole node and edge set.
type Snapshot struct {
	Root  string `json:"root,omitempty"`
	Nodes []Node `json:"nodes"`
	Edges []Edge `json:"edges"`
}

// Dump captures the current state. Nodes are in insertion order and family
// edges in child order, so Restore reproduces the same graph.
func (g *Graph) Dump() Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := Snapshot{Root: g.root, Nodes: make([]Node, 0, len(g.nodes))}
	for _, id := range g.orderedIDs() {
		s.Nodes = append(s.Nodes, *g.nodes[id])
	}
	s.Edges = g.edgesLocked(kindSet(nil))
	return s
}

// Restore replaces the graph's contents with s. The snapshot is validated in
// full first; an invalid one leaves the graph untouched.
func (g *Graph) Restore(s Snapshot) error {
	fresh := New(WithIDGenerator(g.newID), WithLogger(g.logger))
	for _, n := range s.Nodes {
		if n.ID == "" || n.Data.Filename == "" {
			return fmt.Errorf("%w: node without id or filename", ErrInvalidSnapshot)
		}
		if _, dup := fresh.nodes[n.ID]; dup {
			return fmt.Errorf("%w: duplicate id %q", ErrInvalidSnapshot, n.ID)
		}
		if _, dup := fresh.byFilename[n.Data.Filename]; dup {
			return fmt.Errorf("%w: duplicate filename %q", ErrInvalidSnapshot, n.Data.Filename)
		}
		if n.Kind != KindZombie && n.Data.URI != "" {
			if _, dup := fresh.byURI[n.Data.URI]; dup {
				return fmt.Errorf("%w: duplicate uri %q", ErrInvalidSnapshot, n.Data.URI)
			}
		}
		node := n
		fresh.insert(&node)
	}
	for _, e := range s.Edges {
		if err := fresh.requireLocked(e.Source, e.Target); err != nil {
			return fmt.Errorf("%w: edge %s %s->%s: %v", ErrInvalidSnapshot, e.Kind, e.Source, e.Target, err)
		}
		if e.Kind != EdgeFamily {
			fresh.addRef(ref{kind: e.Kind, source: e.Source, target: e.Target, refType: e.RefType})
			continue
		}
		if _, taken := fresh.parent[e.Target]; taken {
			return fmt.Errorf("%w: %q has two parents", ErrInvalidSnapshot, e.Target)
		}
		if err := checkGraft(fresh.family, e.Source, e.Target); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidSnapshot, err)
		}
		fresh.attach(e.Source, e.Target, -1)
	}
	if s.Root != "" {
		if _, ok := fresh.nodes[s.Root]; !ok {
			return fmt.Errorf("%w: root %q is not a node", ErrInvalidSnapshot, s.Root)
		}
		if _, ok := fresh.parent[s.Root]; ok {
			return fmt.Errorf("%w: root %q has a parent", ErrInvalidSnapshot, s.Root)
		}
		fresh.root = s.Root
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	g.nodes, g.seq, g.next = fresh.nodes, fresh.seq, fresh.next
	g.byFilename, g.byURI = fresh.byFilename, fresh.byURI
	g.root, g.family = fresh.root, fresh.family
	g.refs, g.out, g.in = fresh.refs, fresh.out, fresh.in
	mutations.WithLabelValues("restore").Inc()
	return nil
}

// PrintTree renders the family forest using the given field as the label.
// The root's tree comes first, followed by any other parentless node that
// has children. Zombies are marked with a trailing "*".
func (g *Graph) PrintTree(field Field) string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	var tops []string
	if g.root != "" {
		tops = append(tops, g.root)
	}
	for _, id := range g.orderedIDs() {
		if id == g.root {
			continue
		}
		if _, hasParent := g.parent[id]; !hasParent && len(g.children[id]) > 0 {
			tops = append(tops, id)
		}
	}

	var out string
	for _, id := range tops {
		t := gotree.New(g.label(id, field))
		g.addSubtree(t, id, field, map[string]struct{}{id: {}})
		out += t.Print()
	}
	return out
}

func (g *Graph) addSubtree(t gotree.Tree, id string, field Field, seen map[string]struct{}) {
	for _, c := range g.children[id] {
		if _, ok := seen[c]; ok {
			continue
		}
		seen[c] = struct{}{}
		g.addSubtree(t.Add(g.label(c, field)), c, field, seen)
	}
}

func (g *Graph) label(id string, field Field) string {
	n := g.nodes[id]
	l := fieldValue(n, field)
	if l == "" {
		l = n.Data.Filename
	}
	if n.Kind == KindZombie {
		l += "*"
	}
	return l
}
