package graph

import (
	"fmt"
	"log/slog"
)

// FamilyOpKind selects what a FamilyOp does.
type FamilyOpKind int

const (
	OpGraft FamilyOpKind = iota
	OpPrune
	// OpRoot makes Child the tree origin, detaching it from any parent.
	OpRoot
)

// FamilyOp is one step of an atomic tree edit. Index is the position among
// the parent's children for grafts; -1 appends. OpRoot ignores Parent.
type FamilyOp struct {
	Op     FamilyOpKind
	Parent string
	Child  string
	Index  int
}

func (op FamilyOp) String() string {
	switch op.Op {
	case OpPrune:
		return fmt.Sprintf("prune %s -/- %s", op.Parent, op.Child)
	case OpRoot:
		return fmt.Sprintf("root %s", op.Child)
	}
	return fmt.Sprintf("graft %s -> %s @%d", op.Parent, op.Child, op.Index)
}

// Connect adds an edge and returns false when either endpoint is missing or
// is a template. Adding an identical edge again is a no-op. A family edge
// replaces any existing parent of target; the caller is responsible for tree
// shape.
func (g *Graph) Connect(kind EdgeKind, source, target, refType string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()

	for _, id := range []string{source, target} {
		if n, ok := g.nodes[id]; !ok || n.Kind == KindTemplate {
			return false
		}
	}
	switch kind {
	case EdgeFamily:
		if source == target {
			return false
		}
		if g.parent[target] != source {
			g.attach(source, target, -1)
			mutations.WithLabelValues("connect").Inc()
		}
		return true
	case EdgeEmbed:
		refType = ""
	case EdgeAttr, EdgeLink:
	default:
		return false
	}
	if g.addRef(ref{kind: kind, source: source, target: target, refType: refType}) {
		mutations.WithLabelValues("connect").Inc()
	}
	return true
}

// Flush removes the outgoing edges of the given kinds from id and returns how
// many were removed. With no kinds it flushes Attr, Link and Embed, which is
// what a document rescan needs. Flushing EdgeFamily detaches id's children.
func (g *Graph) Flush(id string, kinds ...EdgeKind) int {
	if len(kinds) == 0 {
		kinds = RefKinds
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	n := 0
	for _, kind := range kinds {
		if kind == EdgeFamily {
			for _, c := range g.children[id] {
				delete(g.parent, c)
				n++
			}
			delete(g.children, id)
			continue
		}
		for r := range g.out[id] {
			if r.kind == kind {
				g.dropRef(r)
				n++
			}
		}
	}
	if n > 0 {
		mutations.WithLabelValues("flush").Inc()
	}
	return n
}

// Transfer re-points every Attr, Link and Embed edge touching from so that it
// touches to instead. Edges that would then duplicate an existing one merge.
// A node without edges makes this a no-op.
func (g *Graph) Transfer(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLocked(from, to); err != nil {
		return err
	}
	g.transferLocked(from, to)
	return nil
}

// Replace moves the tree position of from onto to: to takes from's slot
// among its siblings, from's children move under to, and root follows. When
// from holds no position this is a no-op.
func (g *Graph) Replace(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLocked(from, to); err != nil {
		return err
	}
	g.replaceLocked(from, to)
	return nil
}

// Supersede runs the full zombie replacement: Transfer, Replace and Remove of
// from. Afterwards no edge references from.
func (g *Graph) Supersede(from, to string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLocked(from, to); err != nil {
		return err
	}
	g.supersedeLocked(from, to)
	return nil
}

// Graft appends child under parent.
func (g *Graph) Graft(parent, child string) error {
	return g.GraftAt(parent, child, -1)
}

// GraftAt places child at index among parent's children. Unlike Connect it
// refuses to create a cycle.
func (g *Graph) GraftAt(parent, child string, index int) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if err := g.requireLocked(parent, child); err != nil {
		return err
	}
	if err := checkGraft(g.family, parent, child); err != nil {
		return err
	}
	g.attach(parent, child, index)
	mutations.WithLabelValues("graft").Inc()
	return nil
}

// SetRoot designates the tree origin. The root never has a parent. An empty
// id clears the root.
func (g *Graph) SetRoot(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if id == "" {
		g.root = ""
		return nil
	}
	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	g.detach(id)
	g.root = id
	return nil
}

// ApplyFamily applies a batch of grafts and prunes atomically. Every step is
// validated against a scratch copy of the tree; on the first failure nothing
// is changed.
func (g *Graph) ApplyFamily(ops []FamilyOp) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	scratch := g.family.clone()
	root := g.root
	for i, op := range ops {
		if op.Op == OpRoot {
			if err := g.requireLocked(op.Child); err != nil {
				return fmt.Errorf("graph: op %d (%s): %w", i, op, err)
			}
			scratch.detach(op.Child)
			root = op.Child
			continue
		}
		if err := g.requireLocked(op.Parent, op.Child); err != nil {
			return fmt.Errorf("graph: op %d (%s): %w", i, op, err)
		}
		switch op.Op {
		case OpGraft:
			if err := checkGraft(scratch, op.Parent, op.Child); err != nil {
				return fmt.Errorf("graph: op %d (%s): %w", i, op, err)
			}
			if op.Child == root {
				return fmt.Errorf("graph: op %d (%s): %w: root cannot have a parent", i, op, ErrInvalidFamilyOp)
			}
			scratch.attach(op.Parent, op.Child, op.Index)
		case OpPrune:
			if scratch.parent[op.Child] != op.Parent {
				return fmt.Errorf("graph: op %d (%s): %w: not a child", i, op, ErrInvalidFamilyOp)
			}
			scratch.detach(op.Child)
		default:
			return fmt.Errorf("graph: op %d: %w", i, ErrInvalidFamilyOp)
		}
	}
	g.family = scratch
	g.root = root
	if len(ops) > 0 {
		mutations.WithLabelValues("apply_family").Inc()
	}
	return nil
}

// PruneZombies removes zombies that hold no edge of any kind and are not the
// root. With no ids every zombie is considered. The removed filenames are
// returned.
func (g *Graph) PruneZombies(ids ...string) []string {
	g.mu.Lock()
	defer g.mu.Unlock()

	if len(ids) == 0 {
		ids = g.orderedIDs()
	}
	var removed []string
	for _, id := range ids {
		n, ok := g.nodes[id]
		if !ok || n.Kind != KindZombie || id == g.root {
			continue
		}
		if len(g.out[id]) > 0 || len(g.in[id]) > 0 {
			continue
		}
		if _, ok := g.parent[id]; ok || len(g.children[id]) > 0 {
			continue
		}
		removed = append(removed, n.Data.Filename)
		g.removeLocked(id)
		zombiesCollected.Inc()
	}
	if len(removed) > 0 {
		g.logger.Debug("graph: zombies collected", slog.Int("count", len(removed)))
	}
	return removed
}

func checkGraft(f family, parent, child string) error {
	if parent == child {
		return fmt.Errorf("%w: %q cannot be its own parent", ErrInvalidFamilyOp, child)
	}
	if f.isAncestor(child, parent) {
		return fmt.Errorf("%w: %q is an ancestor of %q", ErrInvalidFamilyOp, child, parent)
	}
	return nil
}

func (g *Graph) requireLocked(ids ...string) error {
	for _, id := range ids {
		if _, ok := g.nodes[id]; !ok {
			return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
		}
	}
	return nil
}

func (g *Graph) supersedeLocked(from, to string) {
	g.transferLocked(from, to)
	g.replaceLocked(from, to)
	g.removeLocked(from)
	mutations.WithLabelValues("supersede").Inc()
	g.logger.Debug("graph: node superseded", slog.String("from", from), slog.String("to", to))
}

func (g *Graph) transferLocked(from, to string) {
	if from == to {
		return
	}
	var moved []ref
	for r := range g.out[from] {
		moved = append(moved, r)
	}
	for r := range g.in[from] {
		if r.source != from {
			moved = append(moved, r)
		}
	}
	for _, r := range moved {
		g.dropRef(r)
		if r.source == from {
			r.source = to
		}
		if r.target == from {
			r.target = to
		}
		g.addRef(r)
	}
	if len(moved) > 0 {
		mutations.WithLabelValues("transfer").Inc()
	}
}

func (g *Graph) replaceLocked(from, to string) {
	if from == to {
		return
	}
	parent, hasParent := g.parent[from]
	kids := append([]string(nil), g.children[from]...)
	isRoot := g.root == from
	if !hasParent && len(kids) == 0 && !isRoot {
		return
	}

	if g.isAncestor(to, from) {
		// to already sits above from; from just dissolves into it.
		g.detach(from)
	} else {
		g.detach(to)
		if hasParent {
			idx := g.indexOf(parent, from)
			g.detach(from)
			g.attach(parent, to, idx)
		}
	}
	for _, c := range kids {
		if c == to {
			continue
		}
		g.attach(to, c, -1)
	}
	delete(g.children, from)
	if isRoot {
		g.detach(to)
		g.root = to
	}
	mutations.WithLabelValues("replace").Inc()
}

func (g *Graph) addRef(r ref) bool {
	if _, ok := g.refs[r]; ok {
		return false
	}
	g.refs[r] = struct{}{}
	if g.out[r.source] == nil {
		g.out[r.source] = make(map[ref]struct{})
	}
	g.out[r.source][r] = struct{}{}
	if g.in[r.target] == nil {
		g.in[r.target] = make(map[ref]struct{})
	}
	g.in[r.target][r] = struct{}{}
	return true
}

func (g *Graph) dropRef(r ref) {
	delete(g.refs, r)
	if m := g.out[r.source]; m != nil {
		delete(m, r)
		if len(m) == 0 {
			delete(g.out, r.source)
		}
	}
	if m := g.in[r.target]; m != nil {
		delete(m, r)
		if len(m) == 0 {
			delete(g.in, r.target)
		}
	}
}
