package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"sort"
	"strings"
	"time"

	"github.com/starford/bonsai/internal/apperr"
	"github.com/starford/bonsai/internal/checksum"
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/models"
	"github.com/starford/bonsai/internal/parser"
	"github.com/starford/bonsai/internal/semtree"
)

const extMD = ".md"

// TypedPath names a new document of type typ at p: the base name takes the
// type's filename prefix, placeholders filled. An empty or prefixless type
// leaves p as it is, as does a path that is not Markdown.
func (w *Workspace) TypedPath(typ, p string) string {
	if typ == "" || !strings.HasSuffix(p, extMD) {
		return p
	}
	dir, base := path.Split(p)
	name := strings.TrimSuffix(base, extMD)
	return dir + w.types.Affix(typ, name, time.Now(), w.types.NewID) + extMD
}

// CreateDocument writes a new document and adds it to the graph. A zombie
// holding the same filename is promoted in place.
func (w *Workspace) CreateDocument(ctx context.Context, p string, content []byte) (*models.Document, error) {
	p, err := cleanDocPath(p)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	if _, ok := w.lookup(p); ok {
		return nil, apperr.ErrAlreadyExists
	}
	if _, err := w.store.Read(p); err == nil {
		return nil, apperr.ErrAlreadyExists
	}
	if n, ok := w.graph.Find(graph.FieldFilename, parser.Filename(p)); ok && !n.IsZombie() {
		return nil, fmt.Errorf("%w: %s is taken by %s", apperr.ErrAlreadyExists, n.Data.Filename, n.Data.URI)
	}
	if err := w.store.Write(p, content); err != nil {
		return nil, err
	}
	if err := w.applyCreate(ctx, p, content); err != nil {
		return nil, err
	}
	w.persist(ctx)
	return w.document(p, content)
}

// UpdateDocument overwrites a document. A non-empty ifMatch must equal the
// checksum of the current content.
func (w *Workspace) UpdateDocument(ctx context.Context, p string, content []byte, ifMatch string) (*models.Document, error) {
	p, err := cleanDocPath(p)
	if err != nil {
		return nil, err
	}
	w.mu.Lock()
	defer w.mu.Unlock()

	info, ok := w.lookup(p)
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if ifMatch != "" && ifMatch != info.checksum {
		return nil, apperr.ErrConflict
	}
	if err := w.store.Write(p, content); err != nil {
		return nil, err
	}
	if err := w.applySave(ctx, p, content); err != nil {
		return nil, err
	}
	w.persist(ctx)
	return w.document(p, content)
}

// DeleteDocument removes a document, or a directory and every document in
// it when p does not name a Markdown file.
func (w *Workspace) DeleteDocument(ctx context.Context, p string) error {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	w.mu.Lock()
	defer w.mu.Unlock()

	if strings.HasSuffix(p, extMD) {
		if _, ok := w.lookup(p); !ok {
			return apperr.ErrNotFound
		}
		if err := w.store.Delete(p); err != nil {
			return err
		}
		err := w.applyDelete(ctx, p)
		w.persist(ctx)
		return err
	}
	if len(w.under(p)) == 0 {
		return apperr.ErrNotFound
	}
	if err := w.store.DeleteDir(p); err != nil {
		return err
	}
	err := w.applyDeleteDir(ctx, p)
	w.persist(ctx)
	return err
}

// MoveDocument renames or moves a document, or a whole directory when from
// does not name a Markdown file. Node identity is kept.
func (w *Workspace) MoveDocument(ctx context.Context, from, to string) error {
	from = path.Clean(strings.TrimPrefix(from, "/"))
	to = path.Clean(strings.TrimPrefix(to, "/"))
	w.mu.Lock()
	defer w.mu.Unlock()

	if strings.HasSuffix(from, extMD) {
		info, ok := w.lookup(from)
		if !ok {
			return apperr.ErrNotFound
		}
		if !strings.HasSuffix(to, extMD) {
			return fmt.Errorf("%w: %s is not a Markdown path", apperr.ErrConflict, to)
		}
		if _, taken := w.lookup(to); taken {
			return apperr.ErrAlreadyExists
		}
		name := parser.Filename(to)
		if n, ok := w.graph.Find(graph.FieldFilename, name); ok && !n.IsZombie() && n.ID != info.id {
			return fmt.Errorf("%w: %s is taken by %s", apperr.ErrAlreadyExists, name, n.Data.URI)
		}
		if err := w.store.Move(from, to); err != nil {
			return err
		}
		err := w.applyRename(ctx, from, to)
		w.persist(ctx)
		return err
	}
	if len(w.under(from)) == 0 {
		return apperr.ErrNotFound
	}
	if err := w.store.Move(from, to); err != nil {
		return err
	}
	err := w.applyRenameDir(ctx, from, to)
	w.persist(ctx)
	return err
}

// Document reads the document holding filename.
func (w *Workspace) Document(_ context.Context, filename string) (*models.Document, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	n, ok := w.graph.Find(graph.FieldFilename, filename)
	if !ok || n.IsZombie() {
		return nil, apperr.ErrNotFound
	}
	data, err := w.store.Read(n.Data.URI)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, apperr.ErrNotFound
		}
		return nil, err
	}
	return w.document(n.Data.URI, data)
}

func (w *Workspace) document(p string, data []byte) (*models.Document, error) {
	doc, err := parser.Parse(data)
	if err != nil {
		return nil, err
	}
	out := &models.Document{
		Path:     p,
		Filename: parser.Filename(p),
		Title:    doc.Title,
		Attrs:    doc.Attrs,
		Tags:     doc.Tags,
		Body:     doc.Body,
		Checksum: checksum.Sum(data),
	}
	if info, ok := w.lookup(p); ok {
		out.ID = info.id
		out.Kind = string(info.kind)
		out.Type = info.typ
		out.UpdatedAt = info.updated
	}
	if out.Title == "" {
		out.Title = w.types.Strip(out.Filename)
	}
	return out, nil
}

// applyCreate handles a document that now exists on disk.
func (w *Workspace) applyCreate(ctx context.Context, p string, data []byte) error {
	if _, ok := w.lookup(p); ok {
		return w.applySave(ctx, p, data)
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("workspace: parse %s: %w", p, err)
	}
	petiole, placed := w.tree.Petiole(parser.Filename(p))
	info, err := w.createNode(p, doc)
	if err != nil {
		return err
	}
	info.checksum = checksum.Sum(data)
	info.updated = time.Now()
	prev := w.scan(info, doc)
	w.prune(prev)
	w.remember(info, doc)
	w.cacheEmbeds(info.id)
	w.indexChanged(ctx, info, false)
	if placed && info.kind == graph.KindTemplate {
		// The zombie it replaced held a place in the tree.
		w.reconcileLocked(ctx, petiole)
	}

	lifecycle.WithLabelValues("create").Inc()
	documents.Inc()
	w.notify(EventCreated, p)
	w.logger.Debug("workspace: created", slog.String("path", p), slog.String("id", info.id))
	return nil
}

// applySave handles new content for a known document. Unchanged content is
// ignored.
func (w *Workspace) applySave(ctx context.Context, p string, data []byte) error {
	info, ok := w.lookup(p)
	if !ok {
		return w.applyCreate(ctx, p, data)
	}
	sum := checksum.Sum(data)
	if sum == info.checksum {
		return nil
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("workspace: parse %s: %w", p, err)
	}
	wasIndex := isIndex(info)
	w.retype(info, doc)

	prev := w.scan(info, doc)
	w.prune(prev)
	info.checksum = sum
	info.updated = time.Now()
	w.remember(info, doc)
	w.cacheEmbeds(info.id)
	w.indexChanged(ctx, info, wasIndex)

	lifecycle.WithLabelValues("save").Inc()
	w.notify(EventUpdated, p)
	return nil
}

// applyRename handles a document that moved from one path to another on
// disk. A changed filename keeps the node's identity; a zombie already
// holding the new filename is superseded, and wikirefs to the old filename
// in other documents are rewritten.
func (w *Workspace) applyRename(ctx context.Context, from, to string) error {
	info, ok := w.lookup(from)
	if !ok {
		data, err := w.store.Read(to)
		if err != nil {
			return err
		}
		return w.applyCreate(ctx, to, data)
	}
	if _, taken := w.lookup(to); taken {
		return fmt.Errorf("%w: %s", graph.ErrDuplicateIdentity, to)
	}
	data, err := w.store.Read(to)
	if err != nil {
		return err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return fmt.Errorf("workspace: parse %s: %w", to, err)
	}

	oldName, newName := info.filename, parser.Filename(to)
	wasIndex := isIndex(info)
	inTree := w.inTree(info.id)

	if newName != oldName {
		if holder, ok := w.graph.Find(graph.FieldFilename, newName); ok {
			if !holder.IsZombie() {
				return fmt.Errorf("%w: filename %q", graph.ErrDuplicateIdentity, newName)
			}
			if err := w.graph.Supersede(holder.ID, info.id); err != nil {
				return err
			}
		}
		if err := w.graph.Edit(info.id, graph.FieldFilename, newName); err != nil {
			return err
		}
	}
	if err := w.graph.Edit(info.id, graph.FieldURI, to); err != nil {
		return err
	}
	if kind := w.types.Kind(to); kind != info.kind {
		if err := w.graph.Edit(info.id, graph.FieldKind, string(kind)); err != nil {
			return err
		}
		info.kind = kind
	}

	w.state.Lock()
	delete(w.docs, from)
	delete(w.bodies, oldName)
	if body, ok := w.embeds[oldName]; ok {
		delete(w.embeds, oldName)
		w.embeds[newName] = body
	}
	info.path, info.filename = to, newName
	info.checksum = checksum.Sum(data)
	info.updated = time.Now()
	w.docs[to] = info
	w.state.Unlock()

	w.retype(info, doc)
	prev := w.scan(info, doc)
	w.prune(prev)
	w.remember(info, doc)
	if info.kind == graph.KindTemplate {
		w.unlink(info)
	}

	if oldName == w.root && newName != oldName {
		w.logger.Info("workspace: root renamed", slog.String("from", oldName), slog.String("to", newName))
		w.root = newName
	}
	if newName != oldName {
		w.retarget(ctx, oldName, newName)
	}
	switch {
	case wasIndex || isIndex(info):
		if newName != oldName || wasIndex != isIndex(info) {
			w.buildLocked(ctx)
			w.treeChanged()
		}
	case inTree && (newName != oldName || info.kind == graph.KindTemplate):
		if petiole, ok := w.tree.Petiole(oldName); ok {
			w.reconcileLocked(ctx, petiole)
		}
	}

	lifecycle.WithLabelValues("rename").Inc()
	w.notify(EventDeleted, from)
	w.notify(EventCreated, to)
	w.logger.Debug("workspace: renamed", slog.String("from", from), slog.String("to", to))
	return nil
}

// applyDelete handles a document that no longer exists on disk. Documents
// that referenced it are rescanned so their references fall back to a
// zombie, and its branch of the tree is reconciled the same way.
func (w *Workspace) applyDelete(ctx context.Context, p string) error {
	info, ok := w.lookup(p)
	if !ok {
		return nil
	}
	referrers := w.referrers(info.id)
	petiole, placed := w.tree.Petiole(info.filename)
	wasIndex := isIndex(info)
	wasRoot := info.filename == w.root

	if err := w.graph.Remove(info.id); err != nil && !errors.Is(err, graph.ErrNodeNotFound) {
		return err
	}
	w.state.Lock()
	delete(w.docs, p)
	delete(w.bodies, info.filename)
	delete(w.embeds, info.filename)
	delete(w.pending, info.filename)
	w.state.Unlock()

	for _, rp := range referrers {
		if err := w.rescan(rp); err != nil {
			w.logger.Warn("workspace: rescan failed", slog.String("path", rp), slog.String("error", err.Error()))
		}
	}
	switch {
	case wasIndex || wasRoot:
		w.buildLocked(ctx)
		w.treeChanged()
	case placed:
		w.reconcileLocked(ctx, petiole)
	}
	w.pruneAll()

	lifecycle.WithLabelValues("delete").Inc()
	documents.Dec()
	w.notify(EventDeleted, p)
	w.logger.Debug("workspace: deleted", slog.String("path", p))
	return nil
}

// applyDeleteDir removes every document under dir.
func (w *Workspace) applyDeleteDir(ctx context.Context, dir string) error {
	var errs []error
	for _, p := range w.under(dir) {
		if err := w.applyDelete(ctx, p); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// applyRenameDir moves every document under from to the same relative path
// under to.
func (w *Workspace) applyRenameDir(ctx context.Context, from, to string) error {
	var errs []error
	for _, p := range w.under(from) {
		dst := path.Join(to, strings.TrimPrefix(p, from+"/"))
		if err := w.applyRename(ctx, p, dst); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// createNode adds the node for a new document, filling a zombie that holds
// the same filename when the document does not claim another id.
func (w *Workspace) createNode(p string, doc *parser.Document) (*docInfo, error) {
	name := parser.Filename(p)
	kind := w.types.Kind(p)
	typ := w.types.Resolve(name, p, doc.Attrs)
	data := graph.NodeData{URI: p, Filename: name, Title: w.titleOf(doc, name)}
	info := &docInfo{path: p, filename: name, kind: kind, typ: typ}

	if z, ok := w.graph.Find(graph.FieldFilename, name); ok && z.IsZombie() &&
		kind == graph.KindDoc && (doc.ID == "" || doc.ID == z.ID) {
		if _, err := w.graph.Fill(z.ID, data); err != nil {
			return nil, err
		}
		if err := w.graph.Edit(z.ID, graph.FieldType, typ); err != nil {
			return nil, err
		}
		info.id = z.ID
		return info, nil
	}
	id, err := w.graph.Create(data, graph.Init{ID: doc.ID, Kind: kind, Type: typ})
	if err != nil {
		return nil, fmt.Errorf("workspace: create %s: %w", p, err)
	}
	info.id = id
	return info, nil
}

// retype refreshes the node's title and type from freshly parsed content.
func (w *Workspace) retype(info *docInfo, doc *parser.Document) {
	typ := w.types.Resolve(info.filename, info.path, doc.Attrs)
	if err := w.graph.Edit(info.id, graph.FieldTitle, w.titleOf(doc, info.filename)); err != nil {
		w.logger.Warn("workspace: retitle failed", slog.String("path", info.path), slog.String("error", err.Error()))
	}
	if typ != info.typ {
		if err := w.graph.Edit(info.id, graph.FieldType, typ); err != nil {
			w.logger.Warn("workspace: retype failed", slog.String("path", info.path), slog.String("error", err.Error()))
			return
		}
		info.typ = typ
	}
}

// indexChanged keeps the tree in step after an index document changed.
// Becoming or ceasing to be an index document moves the trunk, which needs a
// full build; a body change only needs its subtree reconciled.
func (w *Workspace) indexChanged(ctx context.Context, info *docInfo, wasIndex bool) {
	nowIndex := isIndex(info)
	switch {
	case !wasIndex && !nowIndex:
		return
	case wasIndex != nowIndex:
		w.buildLocked(ctx)
		w.treeChanged()
	default:
		w.reconcileLocked(ctx, info.filename)
	}
}

// reconcileLocked reconciles one index document's subtree. A rejection
// because a rebuild is running parks the document for a retry.
func (w *Workspace) reconcileLocked(ctx context.Context, filename string) (semtree.Report, error) {
	w.state.RLock()
	body, ok := w.bodies[filename]
	w.state.RUnlock()
	if !ok {
		return semtree.Report{}, fmt.Errorf("%w: %q is not an index document", apperr.ErrNotFound, filename)
	}

	rep, err := w.tree.Reconcile(ctx, filename, body, source{w})
	switch {
	case err == nil:
		w.pruneAll()
		w.treeChanged()
	case errors.Is(err, semtree.ErrRebuildInProgress):
		w.park(filename)
	case errors.Is(err, semtree.ErrNotBuilt):
		if filename == w.root {
			w.buildLocked(ctx)
			w.treeChanged()
			return w.tree.LastReport()
		}
	case errors.Is(err, semtree.ErrUnreachableSubroot):
		w.logger.Debug("workspace: orphan index document changed", slog.String("filename", filename))
	default:
		w.logger.Warn("workspace: reconcile failed", slog.String("filename", filename), slog.String("error", err.Error()))
	}
	return rep, err
}

// park queues filename for reconciliation once the running rebuild is done.
func (w *Workspace) park(filename string) {
	w.state.Lock()
	defer w.state.Unlock()
	w.pending[filename] = struct{}{}
	reconcileRetries.Inc()
	if w.retry == nil {
		w.retry = time.AfterFunc(w.retryDelay, w.retryPending)
		return
	}
	w.retry.Reset(w.retryDelay)
}

func (w *Workspace) retryPending() {
	w.mu.Lock()
	defer w.mu.Unlock()
	ctx := context.Background()
	w.drainPending(ctx)
	w.persist(ctx)
}

func (w *Workspace) drainPending(ctx context.Context) {
	w.state.Lock()
	names := make([]string, 0, len(w.pending))
	for f := range w.pending {
		names = append(names, f)
	}
	w.pending = make(map[string]struct{})
	w.state.Unlock()

	sort.Strings(names)
	for _, f := range names {
		w.reconcileLocked(ctx, f) //nolint:errcheck // logged and re-parked inside
	}
}

// rescan re-reads a document from disk and refreshes its references even
// when its content has not changed.
func (w *Workspace) rescan(p string) error {
	info, ok := w.lookup(p)
	if !ok {
		return nil
	}
	data, err := w.store.Read(p)
	if err != nil {
		return err
	}
	doc, err := parser.Parse(data)
	if err != nil {
		return err
	}
	w.prune(w.scan(info, doc))
	w.remember(info, doc)
	return nil
}

// unlink rescans the documents that reference a node that just became a
// template, which drops their edges to it.
func (w *Workspace) unlink(info *docInfo) {
	for _, p := range w.referrers(info.id) {
		if err := w.rescan(p); err != nil {
			w.logger.Warn("workspace: rescan failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}

// prune collects the zombies among ids that were left without edges. It
// waits while a rebuild may still be grafting fresh zombies.
func (w *Workspace) prune(ids []string) {
	if len(ids) == 0 || w.building.Load() > 0 {
		return
	}
	w.logPruned(w.graph.PruneZombies(ids...))
}

// pruneAll collects every zombie left without edges.
func (w *Workspace) pruneAll() {
	if w.building.Load() > 0 {
		return
	}
	w.logPruned(w.graph.PruneZombies())
}

func (w *Workspace) logPruned(removed []string) {
	if len(removed) > 0 {
		w.logger.Debug("workspace: zombies pruned", slog.Any("filenames", removed))
	}
}

func (w *Workspace) inTree(id string) bool {
	if _, ok := w.graph.Parent(id); ok {
		return true
	}
	root, ok := w.graph.Root()
	return ok && root.ID == id
}

func (w *Workspace) lookup(p string) (*docInfo, bool) {
	w.state.RLock()
	defer w.state.RUnlock()
	info, ok := w.docs[p]
	return info, ok
}

// under lists the known document paths inside dir.
func (w *Workspace) under(dir string) []string {
	w.state.RLock()
	defer w.state.RUnlock()
	prefix := strings.TrimSuffix(dir, "/") + "/"
	var out []string
	for p := range w.docs {
		if strings.HasPrefix(p, prefix) {
			out = append(out, p)
		}
	}
	sort.Strings(out)
	return out
}

func (w *Workspace) notify(kind, p string) {
	if w.events != nil {
		w.events.PublishDocEvent(kind, p)
	}
}

func (w *Workspace) treeChanged() {
	if w.events == nil {
		return
	}
	t, st := w.tree.Tree()
	w.events.PublishTreeEvent(st.String(), t.Root)
}

func isIndex(info *docInfo) bool {
	return info.kind == graph.KindDoc && info.typ == graph.TypeIndex
}

// titleOf falls back to the filename without its type prefix.
func (w *Workspace) titleOf(doc *parser.Document, filename string) string {
	if doc.Title != "" {
		return doc.Title
	}
	return w.types.Strip(filename)
}

func cleanDocPath(p string) (string, error) {
	p = path.Clean(strings.TrimPrefix(p, "/"))
	if !strings.HasSuffix(p, extMD) || p == extMD {
		return "", fmt.Errorf("%w: %q is not a Markdown path", graph.ErrInvalidFilename, p)
	}
	return p, nil
}
