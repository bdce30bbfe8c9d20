package workspace

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/starford/bonsai/internal/apperr"
	"github.com/starford/bonsai/internal/doctype"
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/semtree"
	"github.com/starford/bonsai/internal/storage"
	"github.com/starford/bonsai/internal/testutil"
)

func garden() map[string]string {
	return map[string]string{
		"i.bonsai.md": "- [[a]]\n  - [[b]]\n- [[i.notes]]\n",
		"i.notes.md":  "- [[c]]\n",
		"a.md":        "links to [[b]] and [[ghost]]\n",
		"b.md":        ":author::[[a]]\nbody of b\n",
		"c.md":        "![[a]]\n",
	}
}

type recorder struct {
	mu     sync.Mutex
	events []string
}

func (r *recorder) PublishDocEvent(kind, p string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, kind+":"+p)
}

func (r *recorder) PublishTreeEvent(state, root string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, "tree:"+state+":"+root)
}

func (r *recorder) has(event string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.events {
		if e == event {
			return true
		}
	}
	return false
}

func open(t *testing.T, store storage.Provider, opts ...Option) *Workspace {
	t.Helper()
	w, err := New(store, opts...)
	require.NoError(t, err)
	t.Cleanup(w.Close)
	require.NoError(t, w.Load(context.Background()))
	return w
}

func node(t *testing.T, w *Workspace, filename string) graph.Node {
	t.Helper()
	n, ok := w.Graph().Find(graph.FieldFilename, filename)
	require.True(t, ok, "no node %q", filename)
	return n
}

func children(t *testing.T, w *Workspace, filename string) []string {
	t.Helper()
	var out []string
	for _, c := range w.Graph().Children(node(t, w, filename).ID) {
		out = append(out, c.Data.Filename)
	}
	return out
}

func read(t *testing.T, dir, rel string) string {
	t.Helper()
	data, err := os.ReadFile(filepath.Join(dir, filepath.FromSlash(rel)))
	require.NoError(t, err)
	return string(data)
}

func TestLoadBuildsTreeAndWeb(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)

	tree, state := w.Tree().Tree()
	assert.Equal(t, semtree.StateBuilt, state)
	assert.Equal(t, DefaultRoot, tree.Root)
	assert.Equal(t, []string{"i.bonsai", "i.notes"}, tree.Trunk)
	assert.Equal(t, []string{"a", "i.notes"}, children(t, w, "i.bonsai"))
	assert.Equal(t, []string{"b"}, children(t, w, "a"))
	assert.Equal(t, []string{"c"}, children(t, w, "i.notes"))

	a, b := node(t, w, "a"), node(t, w, "b")
	assert.Equal(t, graph.KindDoc, a.Kind)
	assert.Equal(t, graph.TypeIndex, node(t, w, "i.notes").Type)
	assert.True(t, w.Graph().HasEdge(graph.EdgeLink, a.ID, b.ID, ""))
	assert.True(t, w.Graph().HasEdge(graph.EdgeAttr, b.ID, a.ID, "author"))
	assert.True(t, node(t, w, "ghost").IsZombie())

	body, ok := w.EmbedContent("a")
	require.True(t, ok, "embedded document is cached")
	assert.Contains(t, body, "[[ghost]]")

	assert.Equal(t, []string{"a.md", "b.md", "c.md", "i.bonsai.md", "i.notes.md"}, w.Paths())
	assert.True(t, w.Lint(context.Background()).OK())
}

func TestLoadWithoutRoot(t *testing.T) {
	_, store := testutil.TestVault(t, map[string]string{"a.md": "[[b]]"})
	w := open(t, store)

	_, state := w.Tree().Tree()
	assert.Equal(t, semtree.StateError, state)
	assert.True(t, node(t, w, "b").IsZombie(), "web is indexed without a tree")
}

func TestCreateFillsZombie(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	rec := &recorder{}
	w := open(t, store, WithNotifier(rec))
	ghost := node(t, w, "ghost")

	doc, err := w.CreateDocument(context.Background(), "ghost.md", []byte("# Ghost\n"))
	require.NoError(t, err)
	assert.Equal(t, ghost.ID, doc.ID)
	assert.Equal(t, "Ghost", doc.Title)

	n := node(t, w, "ghost")
	assert.Equal(t, graph.KindDoc, n.Kind)
	assert.Equal(t, "ghost.md", n.Data.URI)
	assert.True(t, w.Graph().HasEdge(graph.EdgeLink, node(t, w, "a").ID, ghost.ID, ""))
	assert.True(t, rec.has("created:ghost.md"))
}

func TestCreateWithClaimedIDSupersedesZombie(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)
	ghost := node(t, w, "ghost")

	_, err := w.CreateDocument(context.Background(), "ghost.md", []byte("---\nid: custom\n---\nhi\n"))
	require.NoError(t, err)

	n := node(t, w, "ghost")
	assert.Equal(t, "custom", n.ID)
	_, still := w.Graph().Get(ghost.ID)
	assert.False(t, still, "zombie is removed")
	assert.True(t, w.Graph().HasEdge(graph.EdgeLink, node(t, w, "a").ID, "custom", ""))
}

func TestCreateRejectsTakenFilename(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)
	ctx := context.Background()

	_, err := w.CreateDocument(ctx, "a.md", []byte("x"))
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	_, err = w.CreateDocument(ctx, "sub/a.md", []byte("x"))
	assert.ErrorIs(t, err, apperr.ErrAlreadyExists)
	_, err = w.CreateDocument(ctx, "notes.txt", []byte("x"))
	assert.ErrorIs(t, err, graph.ErrInvalidFilename)
}

func TestUpdateIndexReconciles(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)
	ctx := context.Background()

	_, err := w.UpdateDocument(ctx, "i.notes.md", []byte("- [[c]]\n- [[d]]\n"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "d"}, children(t, w, "i.notes"))
	assert.True(t, node(t, w, "d").IsZombie())
	p, ok := w.Tree().Petiole("d")
	require.True(t, ok)
	assert.Equal(t, "i.notes", p)

	_, err = w.UpdateDocument(ctx, "i.notes.md", []byte("- [[c]]\n"), "")
	require.NoError(t, err)
	_, ok = w.Graph().Find(graph.FieldFilename, "d")
	assert.False(t, ok, "zombie left without edges is collected")
}

func TestUpdateChecksumPrecondition(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)
	ctx := context.Background()

	_, err := w.UpdateDocument(ctx, "c.md", []byte("new"), "stale")
	assert.ErrorIs(t, err, apperr.ErrConflict)

	cur, err := w.Document(ctx, "c")
	require.NoError(t, err)
	_, err = w.UpdateDocument(ctx, "c.md", []byte("new"), cur.Checksum)
	require.NoError(t, err)

	_, err = w.UpdateDocument(ctx, "missing.md", []byte("x"), "")
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestUpdateRescansReferences(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)
	ghost := node(t, w, "ghost")

	_, err := w.UpdateDocument(context.Background(), "a.md", []byte("only [[c]]\n"), "")
	require.NoError(t, err)

	a := node(t, w, "a")
	assert.True(t, w.Graph().HasEdge(graph.EdgeLink, a.ID, node(t, w, "c").ID, ""))
	assert.False(t, w.Graph().HasEdge(graph.EdgeLink, a.ID, node(t, w, "b").ID, ""))
	_, ok := w.Graph().Get(ghost.ID)
	assert.False(t, ok)

	body, _ := w.EmbedContent("a")
	assert.Contains(t, body, "only [[c]]")
}

func TestUpdateTurnsDocumentIntoIndex(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)

	_, err := w.UpdateDocument(context.Background(), "a.md", []byte("---\nnodetype: index\n---\n- [[x]]\n"), "")
	require.NoError(t, err)

	assert.Equal(t, graph.TypeIndex, node(t, w, "a").Type)
	tree, state := w.Tree().Tree()
	assert.Equal(t, semtree.StateBuilt, state)
	assert.Contains(t, tree.Trunk, "a")
	assert.Equal(t, []string{"x", "b"}, children(t, w, "a"))
	p, ok := w.Tree().Petiole("x")
	require.True(t, ok)
	assert.Equal(t, "a", p)
}

func TestMoveKeepsIdentityAndRetargets(t *testing.T) {
	dir, store := testutil.TestVault(t, garden())
	w := open(t, store)
	ctx := context.Background()
	b := node(t, w, "b")

	require.NoError(t, w.MoveDocument(ctx, "b.md", "sub/bee.md"))

	n := node(t, w, "bee")
	assert.Equal(t, b.ID, n.ID)
	assert.Equal(t, "sub/bee.md", n.Data.URI)
	_, ok := w.Graph().Find(graph.FieldFilename, "b")
	assert.False(t, ok)

	assert.Equal(t, "links to [[bee]] and [[ghost]]\n", read(t, dir, "a.md"))
	assert.Contains(t, read(t, dir, "i.bonsai.md"), "[[bee]]")
	assert.Equal(t, []string{"bee"}, children(t, w, "a"))
	assert.True(t, w.Graph().HasEdge(graph.EdgeLink, node(t, w, "a").ID, b.ID, ""))

	require.ErrorIs(t, w.MoveDocument(ctx, "nope.md", "x.md"), apperr.ErrNotFound)
	require.ErrorIs(t, w.MoveDocument(ctx, "c.md", "a.md"), apperr.ErrAlreadyExists)
}

func TestMoveOntoZombieSupersedes(t *testing.T) {
	dir, store := testutil.TestVault(t, garden())
	w := open(t, store)
	c := node(t, w, "c")
	ghost := node(t, w, "ghost")

	require.NoError(t, w.MoveDocument(context.Background(), "c.md", "ghost.md"))

	n := node(t, w, "ghost")
	assert.Equal(t, c.ID, n.ID)
	_, ok := w.Graph().Get(ghost.ID)
	assert.False(t, ok)
	assert.True(t, w.Graph().HasEdge(graph.EdgeLink, node(t, w, "a").ID, c.ID, ""))
	assert.Equal(t, "- [[ghost]]\n", read(t, dir, "i.notes.md"))
	assert.Equal(t, []string{"ghost"}, children(t, w, "i.notes"))
}

func TestMoveRootIndex(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)

	require.NoError(t, w.MoveDocument(context.Background(), "i.bonsai.md", "i.garden.md"))

	assert.Equal(t, "i.garden", w.Root())
	tree, state := w.Tree().Tree()
	assert.Equal(t, semtree.StateBuilt, state)
	assert.Equal(t, "i.garden", tree.Root)
}

func TestDeleteLeavesZombie(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	rec := &recorder{}
	w := open(t, store, WithNotifier(rec))
	a := node(t, w, "a")

	require.NoError(t, w.DeleteDocument(context.Background(), "a.md"))

	z := node(t, w, "a")
	assert.True(t, z.IsZombie())
	assert.NotEqual(t, a.ID, z.ID)
	assert.True(t, w.Graph().HasEdge(graph.EdgeAttr, node(t, w, "b").ID, z.ID, "author"))
	assert.Equal(t, []string{"a", "i.notes"}, children(t, w, "i.bonsai"))
	assert.Equal(t, []string{"b"}, children(t, w, "a"))

	_, ok := w.Graph().Find(graph.FieldFilename, "ghost")
	assert.False(t, ok, "zombie only a referenced is collected")
	_, ok = w.EmbedContent("a")
	assert.False(t, ok)
	assert.True(t, rec.has("deleted:a.md"))

	assert.ErrorIs(t, w.DeleteDocument(context.Background(), "a.md"), apperr.ErrNotFound)
}

func TestDeleteIndexRebuilds(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)

	require.NoError(t, w.DeleteDocument(context.Background(), "i.notes.md"))

	tree, state := w.Tree().Tree()
	assert.Equal(t, semtree.StateBuilt, state)
	assert.Equal(t, []string{"i.bonsai"}, tree.Trunk)
	assert.True(t, node(t, w, "i.notes").IsZombie())
}

func TestDirectoryMoveAndDelete(t *testing.T) {
	files := garden()
	files["notes/x.md"] = "[[y]]"
	files["notes/y.md"] = "y"
	_, store := testutil.TestVault(t, files)
	w := open(t, store)
	ctx := context.Background()
	x := node(t, w, "x")

	require.NoError(t, w.MoveDocument(ctx, "notes", "archive"))
	n := node(t, w, "x")
	assert.Equal(t, x.ID, n.ID)
	assert.Equal(t, "archive/x.md", n.Data.URI)
	assert.Contains(t, w.Paths(), "archive/y.md")

	require.NoError(t, w.DeleteDocument(ctx, "archive"))
	_, ok := w.Graph().Find(graph.FieldFilename, "x")
	assert.False(t, ok)
	_, ok = w.Graph().Find(graph.FieldFilename, "y")
	assert.False(t, ok)
	assert.NotContains(t, w.Paths(), "archive/y.md")

	assert.ErrorIs(t, w.DeleteDocument(ctx, "archive"), apperr.ErrNotFound)
}

func TestTypedPathAndTitleFallback(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)

	assert.Equal(t, "topics/i.garden.md", w.TypedPath("index", "topics/garden.md"))
	assert.Equal(t, "topics/i.garden.md", w.TypedPath("index", "topics/i.garden.md"))
	assert.Equal(t, "garden.md", w.TypedPath("", "garden.md"))
	assert.Equal(t, "garden.md", w.TypedPath("unknown", "garden.md"))

	doc, err := w.CreateDocument(context.Background(), w.TypedPath("index", "garden.md"), []byte("- [[a]]\n"))
	require.NoError(t, err)
	assert.Equal(t, "i.garden.md", doc.Path)
	assert.Equal(t, "garden", doc.Title)
	assert.Equal(t, "garden", node(t, w, "i.garden").Data.Title)
}

func TestTemplatesStayOutOfTheWeb(t *testing.T) {
	files := garden()
	files["templates/t.md"] = "[[a]] [[nowhere]]"
	_, store := testutil.TestVault(t, files)
	w := open(t, store, WithTypes(templateTypes(t)))

	tpl := node(t, w, "t")
	assert.Equal(t, graph.KindTemplate, tpl.Kind)
	assert.Empty(t, w.Graph().ForeRefs(tpl.ID))
	_, ok := w.Graph().Find(graph.FieldFilename, "nowhere")
	assert.False(t, ok)
}

func templateTypes(t *testing.T) *doctype.Resolver {
	t.Helper()
	cfg := doctype.DefaultConfig()
	cfg.TemplatePath = "templates"
	types, err := doctype.New(cfg)
	require.NoError(t, err)
	return types
}

func TestTemplatesStayOutOfTheTree(t *testing.T) {
	files := garden()
	files["templates/t.md"] = "- [[x]]\n"
	files["i.bonsai.md"] = "- [[a]]\n  - [[b]]\n- [[t]]\n  - [[under]]\n- [[i.notes]]\n"
	files["c.md"] = "![[a]] and [[t]]\n"
	_, store := testutil.TestVault(t, files)
	w := open(t, store, WithTypes(templateTypes(t)))

	tpl := node(t, w, "t")
	assert.Equal(t, graph.KindTemplate, tpl.Kind)
	_, hasParent := w.Graph().Parent(tpl.ID)
	assert.False(t, hasParent)
	assert.Empty(t, w.Graph().BackRefs(tpl.ID))
	assert.Equal(t, []string{"a", "i.notes"}, children(t, w, DefaultRoot))
	_, ok := w.Graph().Find(graph.FieldFilename, "under")
	assert.False(t, ok)
	tree, _ := w.Tree().Tree()
	assert.NotContains(t, tree.PetioleMap, "t")
}

func TestMoveIntoTemplatesLeavesTreeAndWeb(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store, WithTypes(templateTypes(t)))
	b := node(t, w, "b")

	require.NoError(t, w.MoveDocument(context.Background(), "b.md", "templates/b.md"))

	n := node(t, w, "b")
	assert.Equal(t, b.ID, n.ID)
	assert.Equal(t, graph.KindTemplate, n.Kind)
	_, hasParent := w.Graph().Parent(n.ID)
	assert.False(t, hasParent)
	assert.Empty(t, children(t, w, "a"))
	assert.Empty(t, w.Graph().BackRefs(n.ID))
	assert.Empty(t, w.Graph().ForeRefs(n.ID))
	_, placed := w.Tree().Petiole("b")
	assert.False(t, placed)
}

func TestRebuildDrainsParkedReconciliations(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store, WithRetryDelay(time.Hour))

	w.state.Lock()
	w.bodies["i.notes"] = "- [[c]]\n- [[late]]\n"
	w.state.Unlock()
	w.park("i.notes")
	require.Equal(t, []string{"i.notes"}, w.Pending())

	_, err := w.Rebuild(context.Background())
	require.NoError(t, err)

	assert.Empty(t, w.Pending())
	assert.Equal(t, []string{"c", "late"}, children(t, w, "i.notes"))
}

func TestPruneWaitsForEveryBuild(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)
	loose, err := w.Graph().Add("loose")
	require.NoError(t, err)

	w.building.Add(1)
	w.building.Add(1)
	w.building.Add(-1)
	w.pruneAll()
	_, ok := w.Graph().Get(loose)
	assert.True(t, ok, "a build is still running")

	w.building.Add(-1)
	w.pruneAll()
	_, ok = w.Graph().Get(loose)
	assert.False(t, ok)
}

func TestWarmStartRestoresIdentity(t *testing.T) {
	dir, store := testutil.TestVault(t, garden())
	db := testutil.TestDB(t)
	first := open(t, store, WithCache(db))
	ids := map[string]string{}
	for _, n := range first.Graph().All() {
		ids[n.Data.Filename] = n.ID
	}
	wantTree, _ := first.Tree().Tree()

	second := open(t, store, WithCache(db))
	for name, id := range ids {
		assert.Equal(t, id, node(t, second, name).ID, "node %s restored from cache", name)
	}
	gotTree, state := second.Tree().Tree()
	assert.Equal(t, semtree.StateBuilt, state)
	assert.Equal(t, wantTree, gotTree)
	body, ok := second.EmbedContent("a")
	require.True(t, ok)
	assert.Contains(t, body, "[[ghost]]")

	_, err := second.UpdateDocument(context.Background(), "i.notes.md", []byte("- [[c]]\n- [[e]]\n"), "")
	require.NoError(t, err)
	assert.Equal(t, []string{"c", "e"}, children(t, second, "i.notes"))

	// A file changed behind the cache's back forces a cold start.
	testutil.WriteFile(t, dir, "c.md", "changed")
	third := open(t, store, WithCache(db))
	assert.NotEqual(t, ids["a"], node(t, third, "a").ID)
	_, ok = third.EmbedContent("a")
	assert.False(t, ok)
}

func TestPersistWritesSnapshot(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	db := testutil.TestDB(t)
	w := open(t, store, WithCache(db))

	_, err := w.CreateDocument(context.Background(), "d.md", []byte("d"))
	require.NoError(t, err)

	snap, err := db.LoadSnapshot(context.Background())
	require.NoError(t, err)
	require.NotNil(t, snap)
	assert.Len(t, snap.Documents, 6)
	assert.Equal(t, "built", snap.Meta["tree_state"])
	assert.Equal(t, DefaultRoot, snap.Meta["tree_root"])
}

func TestParkedReconciliationIsRetried(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store, WithRetryDelay(10*time.Millisecond))

	w.state.Lock()
	w.bodies["i.notes"] = "- [[c]]\n- [[late]]\n"
	w.state.Unlock()
	w.park("i.notes")
	assert.Equal(t, []string{"i.notes"}, w.Pending())

	require.Eventually(t, func() bool { return len(w.Pending()) == 0 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		w.mu.Lock()
		defer w.mu.Unlock()
		n, ok := w.Graph().Find(graph.FieldFilename, "late")
		if !ok {
			return false
		}
		p, ok := w.Graph().Parent(n.ID)
		return ok && p.Data.Filename == "i.notes"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestSyncPairsRenames(t *testing.T) {
	dir, store := testutil.TestVault(t, garden())
	w := open(t, store)
	ctx := context.Background()
	c := node(t, w, "c")

	require.NoError(t, os.Rename(filepath.Join(dir, "c.md"), filepath.Join(dir, "see.md")))
	testutil.WriteFile(t, dir, "fresh.md", "fresh")
	require.NoError(t, os.Remove(filepath.Join(dir, "b.md")))
	testutil.WriteFile(t, dir, "a.md", "rewritten")

	require.NoError(t, w.Sync(ctx))

	assert.Equal(t, c.ID, node(t, w, "see").ID)
	assert.Equal(t, graph.KindDoc, node(t, w, "fresh").Kind)
	assert.True(t, node(t, w, "b").IsZombie(), "b is still listed in the root outline")
	assert.Equal(t, "- [[see]]\n", read(t, dir, "i.notes.md"))
	assert.Empty(t, w.Graph().ForeRefs(node(t, w, "a").ID))
}

func TestRebuildAndDump(t *testing.T) {
	_, store := testutil.TestVault(t, garden())
	w := open(t, store)

	rep, err := w.Rebuild(context.Background())
	require.NoError(t, err)
	assert.True(t, rep.OK())

	d := w.Dump()
	assert.Equal(t, semtree.StateBuilt, d.State)
	assert.Equal(t, DefaultRoot, d.Tree.Root)
	assert.Len(t, d.Graph.Nodes, w.Graph().Len())
}
