// Package semtree composes the outlines of index documents into one semantic
// tree and keeps it in step with the graph's family edges.
//
// A full Build replaces every family edge in the graph. Reconcile re-reads a
// single index document (plus any index documents it includes), takes every
// other outline from the last successful plan, and applies only the grafts
// and prunes that differ. Either way the tree equals a Build over the same
// documents. The two never run at the same time: a reconciliation that
// arrives during a build is rejected with ErrRebuildInProgress and the
// caller reschedules it.
package semtree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/outline"
)

// Store is the part of the graph the tree needs.
type Store interface {
	Get(id string) (graph.Node, bool)
	Find(field graph.Field, value string) (graph.Node, bool)
	Add(filename string) (string, error)
	Root() (graph.Node, bool)
	Children(id string) []graph.Node
	Edges(kinds ...graph.EdgeKind) []graph.Edge
	ApplyFamily(ops []graph.FamilyOp) error
}

// Source supplies index documents. Body returns the document with its front
// matter and leading blank lines removed.
type Source interface {
	IndexDocs() []string
	Body(ctx context.Context, filename string) (string, error)
}

// MapSource is a Source backed by a filename to body map.
type MapSource map[string]string

func (m MapSource) IndexDocs() []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func (m MapSource) Body(_ context.Context, filename string) (string, error) {
	body, ok := m[filename]
	if !ok {
		return "", fmt.Errorf("semtree: no index document %q", filename)
	}
	return body, nil
}

// State is the lifecycle of the tree as a whole.
type State int

const (
	StateUnbuilt State = iota
	StateBuilt
	StateReconciling
	StateError
)

var stateNames = map[State]string{
	StateUnbuilt:     "unbuilt",
	StateBuilt:       "built",
	StateReconciling: "reconciling",
	StateError:       "error",
}

func (s State) String() string { return stateNames[s] }

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Tree is the metadata of the semantic tree, by filename. The edges
// themselves live in the graph.
type Tree struct {
	Root       string            `json:"root"`
	Trunk      []string          `json:"trunk"`
	PetioleMap map[string]string `json:"petiole_map"`
	Orphans    []string          `json:"orphans"`
}

func (t Tree) clone() Tree {
	c := Tree{
		Root:       t.Root,
		Trunk:      append([]string(nil), t.Trunk...),
		Orphans:    append([]string(nil), t.Orphans...),
		PetioleMap: make(map[string]string, len(t.PetioleMap)),
	}
	for k, v := range t.PetioleMap {
		c.PetioleMap[k] = v
	}
	return c
}

// Option configures a Builder.
type Option func(*Builder)

// WithOutline sets the outline parsing options.
func WithOutline(opts outline.Options) Option {
	return func(b *Builder) { b.opts = opts }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// Builder owns the tree metadata and the exclusive section that serialises
// builds and reconciliations.
type Builder struct {
	work   sync.Mutex
	store  Store
	opts   outline.Options
	logger *slog.Logger

	// outlines holds what the current tree was planned from. Guarded by work.
	outlines map[string]outline.Result

	mu      sync.RWMutex
	state   State
	tree    Tree
	report  Report
	lastErr error
}

// New returns an unbuilt tree over store.
func New(store Store, opts ...Option) *Builder {
	b := &Builder{
		store:  store,
		opts:   outline.DefaultOptions(),
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Tree returns a copy of the current tree metadata and its state.
func (b *Builder) Tree() (Tree, State) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.tree.clone(), b.state
}

// State returns the current lifecycle state.
func (b *Builder) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// LastReport returns the report of the most recent build or reconciliation
// and the error it ended with, if any.
func (b *Builder) LastReport() (Report, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.report, b.lastErr
}

// Petiole returns the nearest trunk ancestor of filename.
func (b *Builder) Petiole(filename string) (string, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	p, ok := b.tree.PetioleMap[filename]
	return p, ok
}

// IsTrunk reports whether filename is an index document on the trunk.
func (b *Builder) IsTrunk(filename string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return indexOf(b.tree.Trunk, filename) >= 0
}

// IsOrphan reports whether filename is an index document off the tree.
func (b *Builder) IsOrphan(filename string) bool {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return indexOf(b.tree.Orphans, filename) >= 0
}

// Build composes the tree rooted at the index document root from every index
// document in src and replaces the graph's family edges with it. On failure
// the graph and the previous tree are left as they were.
func (b *Builder) Build(ctx context.Context, root string, src Source) (Report, error) {
	b.work.Lock()
	defer b.work.Unlock()

	start := time.Now()
	prior := b.State()
	rep, ops, err := b.build(ctx, root, src)
	buildDuration.Observe(time.Since(start).Seconds())
	b.finish("build", rep, err, prior)
	if err == nil {
		b.logger.Info("semtree: built", slog.String("root", root), slog.Int("ops", ops),
			slog.Int("warnings", len(rep.Warnings)))
	}
	return rep, err
}

func (b *Builder) build(ctx context.Context, root string, src Source) (Report, int, error) {
	var rep Report
	docs := src.IndexDocs()
	isIndex := setOf(docs)
	if !isIndex[root] {
		rep.fail(root, 0, KindRootNotFound, "root index document does not exist")
		return rep, 0, fmt.Errorf("%w: %q", ErrRootNotFound, root)
	}
	ops, err := b.plant(ctx, &rep, root, docs, isIndex, b.fresh(ctx, src))
	return rep, ops, err
}

// Reconcile re-reads the index document subroot, whose new body is content,
// and applies the minimal family changes. Index documents it includes are
// read from src; every other document keeps the outline the current tree was
// planned from, so an entry listed both under subroot and elsewhere lands
// where a full Build would put it. A subroot that is not on the trunk is
// skipped with ErrUnreachableSubroot. Nothing is applied unless the whole
// tree plans cleanly.
func (b *Builder) Reconcile(ctx context.Context, subroot, content string, src Source) (Report, error) {
	if !b.work.TryLock() {
		reconciles.WithLabelValues("rebuild_in_progress").Inc()
		return Report{}, ErrRebuildInProgress
	}
	defer b.work.Unlock()

	b.mu.Lock()
	if b.tree.Root == "" {
		b.mu.Unlock()
		return Report{}, ErrNotBuilt
	}
	prev := b.tree.clone()
	prior := b.state
	b.state = StateReconciling
	b.mu.Unlock()

	rep, ops, err := b.reconcile(ctx, prev, subroot, content, src)
	b.finish("reconcile", rep, err, prior)
	if err == nil {
		reconcileOps.Observe(float64(ops))
		b.logger.Debug("semtree: reconciled", slog.String("subroot", subroot), slog.Int("ops", ops))
	}
	return rep, err
}

func (b *Builder) reconcile(ctx context.Context, prev Tree, subroot, content string, src Source) (Report, int, error) {
	var rep Report
	if indexOf(prev.Trunk, subroot) < 0 {
		rep.fail(subroot, 0, KindUnreachable, "not reachable from the tree root; reconciliation skipped")
		return rep, 0, fmt.Errorf("%w: %q", ErrUnreachableSubroot, subroot)
	}
	if _, ok := b.store.Root(); !ok {
		return rep, 0, ErrNotBuilt
	}

	docs := src.IndexDocs()
	isIndex := setOf(docs)
	isIndex[prev.Root] = true
	isIndex[subroot] = true

	parse := b.fresh(ctx, src)
	load := func(file string, stack []string) (outline.Result, error) {
		switch {
		case file == subroot:
			res, _ := outline.Parse(content, b.opts)
			return res, nil
		case indexOf(stack, subroot) >= 0:
			return parse(file, stack)
		}
		if res, ok := b.outlines[file]; ok {
			return res, nil
		}
		return parse(file, stack)
	}
	ops, err := b.plant(ctx, &rep, prev.Root, docs, isIndex, load)
	return rep, ops, err
}

// plant plans the whole tree from root and moves the graph's family edges to
// match it with the fewest grafts and prunes. Nothing changes unless every
// document plans cleanly.
func (b *Builder) plant(ctx context.Context, rep *Report, root string, docs []string, isIndex map[string]bool, load loader) (int, error) {
	p := newPlanner(func(f string) bool { return isIndex[f] }, b.isTemplate, load, rep)
	p.placed[root] = root
	if err := p.include(root, nil); err != nil {
		return 0, err
	}
	orphans := b.orphans(rep, docs, p.placed)
	if p.failed {
		return 0, fmt.Errorf("%w: %d errors", ErrMalformedOutline, len(rep.Errors))
	}
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	ids, err := b.resolve(p.placed)
	if err != nil {
		return 0, err
	}
	current := make(map[string][]string)
	for _, e := range b.store.Edges(graph.EdgeFamily) {
		current[e.Source] = append(current[e.Source], e.Target)
	}
	ops := diffFamily(current, byID(p.children, ids))
	if cur, ok := b.store.Root(); !ok || cur.ID != ids[root] {
		ops = withRoot(ops, ids[root])
	}
	if err := b.store.ApplyFamily(ops); err != nil {
		return 0, fmt.Errorf("semtree: apply: %w", err)
	}

	tree := b.derive(ids[root], isIndex)
	tree.Orphans = orphans
	b.commit(tree)
	b.outlines = p.outlines
	return len(ops), nil
}

// fresh parses documents straight from src.
func (b *Builder) fresh(ctx context.Context, src Source) loader {
	return func(file string, _ []string) (outline.Result, error) {
		if err := ctx.Err(); err != nil {
			return outline.Result{}, err
		}
		body, err := src.Body(ctx, file)
		if err != nil {
			return outline.Result{}, err
		}
		res, _ := outline.Parse(body, b.opts)
		return res, nil
	}
}

func (b *Builder) isTemplate(filename string) bool {
	n, ok := b.store.Find(graph.FieldFilename, filename)
	return ok && n.Kind == graph.KindTemplate
}

// Resume adopts the family edges already in the graph, such as after a
// restore from a snapshot, as the built tree rooted at root. Nothing in the
// graph changes.
func (b *Builder) Resume(root string, src Source) error {
	b.work.Lock()
	defer b.work.Unlock()

	rootNode, ok := b.store.Root()
	if !ok || rootNode.Data.Filename != root {
		return fmt.Errorf("%w: %q", ErrRootNotFound, root)
	}
	var rep Report
	docs := src.IndexDocs()
	tree := b.derive(rootNode.ID, setOf(docs))
	tree.Orphans = b.orphans(&rep, docs, tree.PetioleMap, tree.Root)
	b.commit(tree)
	b.outlines = nil
	b.finish("resume", rep, nil, StateUnbuilt)
	return nil
}

// Lint plans the whole tree without touching the graph and returns every
// finding. Orphan index documents are reported and their outlines checked
// too, though nothing is placed from them.
func (b *Builder) Lint(ctx context.Context, root string, src Source) Report {
	var rep Report
	docs := src.IndexDocs()
	isIndex := setOf(docs)
	if !isIndex[root] {
		rep.fail(root, 0, KindRootNotFound, "root index document does not exist")
		return rep
	}
	parse := b.fresh(ctx, src)
	p := newPlanner(func(f string) bool { return isIndex[f] }, b.isTemplate, parse, &rep)
	p.placed[root] = root
	if err := p.include(root, nil); err != nil {
		return rep
	}
	for _, o := range b.orphans(&rep, docs, p.placed) {
		res, err := parse(o, nil)
		if err != nil {
			rep.fail(o, 0, "read", err.Error())
			continue
		}
		rep.addOutline(o, res)
	}
	return rep
}

// finish records the outcome. A skipped reconciliation leaves the state as it
// was; any other failure moves to StateError with the previous tree kept.
func (b *Builder) finish(op string, rep Report, err error, prior State) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.report = rep
	b.lastErr = err
	if errors.Is(err, ErrUnreachableSubroot) {
		b.state = prior
		builds.WithLabelValues(op, "skipped").Inc()
		b.logger.Warn("semtree: "+op+" skipped", slog.String("error", err.Error()))
		return
	}
	if err != nil {
		b.state = StateError
		builds.WithLabelValues(op, "error").Inc()
		b.logger.Warn("semtree: "+op+" failed", slog.String("error", err.Error()),
			slog.Int("errors", len(rep.Errors)))
		return
	}
	b.state = StateBuilt
	builds.WithLabelValues(op, "ok").Inc()
}

func (b *Builder) commit(t Tree) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.tree = t
}

// resolve maps every placed filename to a node id, creating zombies for the
// ones the graph has never seen.
func (b *Builder) resolve(placed map[string]string) (map[string]string, error) {
	ids := make(map[string]string, len(placed))
	for name := range placed {
		if n, ok := b.store.Find(graph.FieldFilename, name); ok {
			ids[name] = n.ID
			continue
		}
		id, err := b.store.Add(name)
		if err != nil {
			return nil, fmt.Errorf("semtree: add %q: %w", name, err)
		}
		ids[name] = id
	}
	return ids, nil
}

// derive reads trunk and petiole map back off the graph. The petiole of a
// node is its nearest index-typed ancestor.
func (b *Builder) derive(rootID string, isIndex map[string]bool) Tree {
	rootNode, _ := b.store.Get(rootID)
	t := Tree{
		Root:       rootNode.Data.Filename,
		Trunk:      []string{rootNode.Data.Filename},
		PetioleMap: make(map[string]string),
	}
	var walk func(id, petiole string, seen map[string]struct{})
	walk = func(id, petiole string, seen map[string]struct{}) {
		for _, c := range b.store.Children(id) {
			if _, ok := seen[c.ID]; ok {
				continue
			}
			seen[c.ID] = struct{}{}
			name := c.Data.Filename
			t.PetioleMap[name] = petiole
			next := petiole
			if isIndex[name] {
				t.Trunk = append(t.Trunk, name)
				next = name
			}
			walk(c.ID, next, seen)
		}
	}
	walk(rootID, t.Root, map[string]struct{}{rootID: {}})
	return t
}

// orphans lists the index documents missing from reached and reports each
// one as a warning.
func (b *Builder) orphans(rep *Report, docs []string, reached map[string]string, extra ...string) []string {
	var out []string
	for _, d := range docs {
		if _, ok := reached[d]; ok || indexOf(extra, d) >= 0 {
			continue
		}
		out = append(out, d)
		rep.warn(d, 0, KindOrphan, "index document is not reachable from the root")
	}
	sort.Strings(out)
	return out
}

func withRoot(ops []graph.FamilyOp, rootID string) []graph.FamilyOp {
	out := make([]graph.FamilyOp, 0, len(ops)+1)
	i := 0
	for ; i < len(ops) && ops[i].Op == graph.OpPrune; i++ {
		out = append(out, ops[i])
	}
	out = append(out, graph.FamilyOp{Op: graph.OpRoot, Child: rootID})
	return append(out, ops[i:]...)
}

func byID(children map[string][]string, ids map[string]string) map[string][]string {
	out := make(map[string][]string, len(children))
	for parent, kids := range children {
		list := make([]string, 0, len(kids))
		for _, k := range kids {
			list = append(list, ids[k])
		}
		out[ids[parent]] = list
	}
	return out
}

func setOf(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, v := range list {
		set[v] = true
	}
	return set
}
