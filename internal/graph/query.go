package graph

import "sort"

// Root returns the tree origin, if one is set.
func (g *Graph) Root() (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[g.root]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Parent returns the family parent of id.
func (g *Graph) Parent(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.parent[id]
	if !ok {
		return Node{}, false
	}
	return *g.nodes[p], true
}

// Children returns the ordered family children of id.
func (g *Graph) Children(id string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.children[id])
}

// Ancestors returns the family chain above id, root first.
func (g *Graph) Ancestors(id string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.ancestorIDs(id))
}

// Descendants returns every node below id in pre-order.
func (g *Graph) Descendants(id string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.collect(g.descendantIDs(id))
}

// Lineage returns the ancestors of id, id itself, then its descendants.
func (g *Graph) Lineage(id string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if _, ok := g.nodes[id]; !ok {
		return nil
	}
	ids := g.ancestorIDs(id)
	ids = append(ids, id)
	ids = append(ids, g.descendantIDs(id)...)
	return g.collect(ids)
}

// Siblings returns the other children of id's parent, in order.
func (g *Graph) Siblings(id string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	p, ok := g.parent[id]
	if !ok {
		return nil
	}
	return g.collect(without(g.children[p], id))
}

// Neighbors returns every node one edge away from id in either direction,
// restricted to the given kinds (all kinds when none are given).
func (g *Graph) Neighbors(id string, kinds ...EdgeKind) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()

	want := kindSet(kinds)
	seen := map[string]struct{}{id: {}}
	var ids []string
	push := func(other string) {
		if _, ok := seen[other]; ok {
			return
		}
		seen[other] = struct{}{}
		ids = append(ids, other)
	}
	if want[EdgeFamily] {
		if p, ok := g.parent[id]; ok {
			push(p)
		}
		for _, c := range g.children[id] {
			push(c)
		}
	}
	for _, r := range g.sortedRefs(g.out[id]) {
		if want[r.kind] {
			push(r.target)
		}
	}
	for _, r := range g.sortedRefs(g.in[id]) {
		if want[r.kind] {
			push(r.source)
		}
	}
	return g.collect(ids)
}

// ForeAttrs returns the targets of id's attribute references, optionally
// limited to the given reference types.
func (g *Graph) ForeAttrs(id string, refTypes ...string) []Node {
	return g.fore(id, EdgeAttr, refTypes)
}

// BackAttrs returns the sources of attribute references pointing at id.
func (g *Graph) BackAttrs(id string, refTypes ...string) []Node {
	return g.back(id, EdgeAttr, refTypes)
}

// ForeLinks returns the targets of id's inline links.
func (g *Graph) ForeLinks(id string, refTypes ...string) []Node {
	return g.fore(id, EdgeLink, refTypes)
}

// BackLinks returns the sources of inline links pointing at id.
func (g *Graph) BackLinks(id string, refTypes ...string) []Node {
	return g.back(id, EdgeLink, refTypes)
}

// ForeEmbeds returns the documents id embeds.
func (g *Graph) ForeEmbeds(id string) []Node {
	return g.fore(id, EdgeEmbed, nil)
}

// BackEmbeds returns the documents embedding id.
func (g *Graph) BackEmbeds(id string) []Node {
	return g.back(id, EdgeEmbed, nil)
}

// ForeRefs returns every outgoing Attr, Link and Embed edge of id.
func (g *Graph) ForeRefs(id string) []Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Reference
	for _, r := range g.sortedRefs(g.out[id]) {
		out = append(out, Reference{Kind: r.kind, RefType: r.refType, Node: *g.nodes[r.target]})
	}
	return out
}

// BackRefs returns every incoming Attr, Link and Embed edge of id.
func (g *Graph) BackRefs(id string) []Reference {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Reference
	for _, r := range g.sortedRefs(g.in[id]) {
		out = append(out, Reference{Kind: r.kind, RefType: r.refType, Node: *g.nodes[r.source]})
	}
	return out
}

// Isolates returns non-template nodes with no web edges that are also
// outside the tree.
func (g *Graph) Isolates() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for _, id := range g.orderedIDs() {
		if !g.webless(id) {
			continue
		}
		if _, ok := g.parent[id]; ok || len(g.children[id]) > 0 || id == g.root {
			continue
		}
		out = append(out, *g.nodes[id])
	}
	return out
}

// Floaters returns non-template nodes with no web edges, whether or not they
// sit in the tree.
func (g *Graph) Floaters() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for _, id := range g.orderedIDs() {
		if g.webless(id) {
			out = append(out, *g.nodes[id])
		}
	}
	return out
}

// HasEdge reports whether the exact edge exists.
func (g *Graph) HasEdge(kind EdgeKind, source, target, refType string) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if kind == EdgeFamily {
		p, ok := g.parent[target]
		return ok && p == source
	}
	_, ok := g.refs[ref{kind: kind, source: source, target: target, refType: refType}]
	return ok
}

// Edges lists the edges of the given kinds (all when none are given). Family
// edges come first in tree order, then references ordered by source.
func (g *Graph) Edges(kinds ...EdgeKind) []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.edgesLocked(kindSet(kinds))
}

func (g *Graph) edgesLocked(want map[EdgeKind]bool) []Edge {
	var out []Edge
	ids := g.orderedIDs()
	if want[EdgeFamily] {
		for _, id := range ids {
			for _, c := range g.children[id] {
				out = append(out, Edge{Kind: EdgeFamily, Source: id, Target: c})
			}
		}
	}
	for _, id := range ids {
		for _, r := range g.sortedRefs(g.out[id]) {
			if want[r.kind] {
				out = append(out, r.edge())
			}
		}
	}
	return out
}

func (g *Graph) webless(id string) bool {
	if g.nodes[id].Kind == KindTemplate {
		return false
	}
	return len(g.out[id]) == 0 && len(g.in[id]) == 0
}

func (g *Graph) fore(id string, kind EdgeKind, refTypes []string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for _, r := range g.sortedRefs(g.out[id]) {
		if r.kind == kind && matchType(r.refType, refTypes) {
			ids = append(ids, r.target)
		}
	}
	return g.collect(dedupe(ids))
}

func (g *Graph) back(id string, kind EdgeKind, refTypes []string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []string
	for _, r := range g.sortedRefs(g.in[id]) {
		if r.kind == kind && matchType(r.refType, refTypes) {
			ids = append(ids, r.source)
		}
	}
	return g.collect(dedupe(ids))
}

func (g *Graph) ancestorIDs(id string) []string {
	var chain []string
	seen := map[string]struct{}{id: {}}
	for cur, ok := g.parent[id]; ok; cur, ok = g.parent[cur] {
		if _, loop := seen[cur]; loop {
			break
		}
		seen[cur] = struct{}{}
		chain = append(chain, cur)
	}
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}
	return chain
}

func (g *Graph) descendantIDs(id string) []string {
	var out []string
	seen := map[string]struct{}{id: {}}
	var walk func(string)
	walk = func(cur string) {
		for _, c := range g.children[cur] {
			if _, ok := seen[c]; ok {
				continue
			}
			seen[c] = struct{}{}
			out = append(out, c)
			walk(c)
		}
	}
	walk(id)
	return out
}

func (g *Graph) collect(ids []string) []Node {
	if len(ids) == 0 {
		return nil
	}
	out := make([]Node, 0, len(ids))
	for _, id := range ids {
		if n, ok := g.nodes[id]; ok {
			out = append(out, *n)
		}
	}
	return out
}

// sortedRefs orders a ref set by the insertion order of the far endpoints,
// then kind and reference type, so query results are deterministic.
func (g *Graph) sortedRefs(set map[ref]struct{}) []ref {
	out := make([]ref, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if g.seq[a.source] != g.seq[b.source] {
			return g.seq[a.source] < g.seq[b.source]
		}
		if g.seq[a.target] != g.seq[b.target] {
			return g.seq[a.target] < g.seq[b.target]
		}
		if a.kind != b.kind {
			return a.kind < b.kind
		}
		return a.refType < b.refType
	})
	return out
}

func kindSet(kinds []EdgeKind) map[EdgeKind]bool {
	if len(kinds) == 0 {
		kinds = []EdgeKind{EdgeFamily, EdgeAttr, EdgeLink, EdgeEmbed}
	}
	set := make(map[EdgeKind]bool, len(kinds))
	for _, k := range kinds {
		set[k] = true
	}
	return set
}

func matchType(refType string, want []string) bool {
	if len(want) == 0 {
		return true
	}
	for _, w := range want {
		if w == refType {
			return true
		}
	}
	return false
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
