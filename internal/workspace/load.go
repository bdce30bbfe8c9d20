package workspace

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/starford/bonsai/internal/checksum"
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/index"
	"github.com/starford/bonsai/internal/models"
	"github.com/starford/bonsai/internal/parser"
	"github.com/starford/bonsai/internal/semtree"
)

// loaded is one document read and parsed during a full load.
type loaded struct {
	meta models.DocumentMeta
	data []byte
	doc  *parser.Document
}

// Load populates the workspace from the vault. When a snapshot cache is
// configured and every document checksum matches it, the graph and tree are
// restored from the cache; otherwise everything is rebuilt from the files.
// A tree that fails to build is reported but does not fail the load.
func (w *Workspace) Load(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	start := time.Now()
	metas, err := w.store.List("")
	if err != nil {
		return fmt.Errorf("workspace: load: %w", err)
	}

	warm, err := w.warmStart(ctx, metas)
	if err != nil {
		w.logger.Warn("workspace: cache unusable, rebuilding", slog.String("error", err.Error()))
		if cerr := w.cache.Clear(ctx); cerr != nil {
			w.logger.Warn("workspace: clear cache", slog.String("error", cerr.Error()))
		}
	}
	if !warm {
		if err := w.coldStart(ctx, metas); err != nil {
			return err
		}
	}

	documents.Set(float64(len(metas)))
	loadDuration.WithLabelValues(startKind(warm)).Observe(time.Since(start).Seconds())
	w.logger.Info("workspace: loaded",
		slog.Int("documents", len(metas)),
		slog.Int("nodes", w.graph.Len()),
		slog.Bool("cached", warm),
		slog.Duration("took", time.Since(start)))
	w.treeChanged()
	return nil
}

func startKind(warm bool) string {
	if warm {
		return "warm"
	}
	return "cold"
}

// warmStart restores from the cache when it is current. It reports false,
// with a nil error, when there is nothing usable to restore.
func (w *Workspace) warmStart(ctx context.Context, metas []models.DocumentMeta) (bool, error) {
	if w.cache == nil {
		return false, nil
	}
	sums, err := w.cache.AllChecksums(ctx)
	if err != nil || len(sums) == 0 {
		return false, err
	}
	if !current(sums, metas) {
		w.logger.Debug("workspace: cache is stale")
		return false, nil
	}
	snap, err := w.cache.LoadSnapshot(ctx)
	if err != nil || snap == nil {
		return false, err
	}
	if err := w.graph.Restore(snap.Graph); err != nil {
		return false, err
	}

	byURI := make(map[string]graph.Node, len(snap.Graph.Nodes))
	for _, n := range snap.Graph.Nodes {
		if n.Data.URI != "" {
			byURI[n.Data.URI] = n
		}
	}
	docs := make(map[string]*docInfo, len(metas))
	bodies := make(map[string]string)
	embeds := make(map[string]string)
	for _, m := range metas {
		n, ok := byURI[m.Path]
		if !ok {
			return false, fmt.Errorf("workspace: cache has no node for %s", m.Path)
		}
		docs[m.Path] = &docInfo{
			path: m.Path, filename: n.Data.Filename, id: n.ID,
			kind: n.Kind, typ: n.Type, checksum: m.Checksum, updated: m.UpdatedAt,
		}
		needIndex := n.Kind == graph.KindDoc && n.Type == graph.TypeIndex
		needEmbed := len(w.graph.BackEmbeds(n.ID)) > 0
		if !needIndex && !needEmbed {
			continue
		}
		data, err := w.store.Read(m.Path)
		if err != nil {
			return false, err
		}
		doc, err := parser.Parse(data)
		if err != nil {
			return false, err
		}
		if needIndex {
			bodies[n.Data.Filename] = doc.Body
		}
		if needEmbed {
			embeds[n.Data.Filename] = doc.Body
		}
	}

	w.state.Lock()
	w.docs, w.bodies, w.embeds = docs, bodies, embeds
	w.state.Unlock()

	if root, ok := snap.Meta["tree_root"]; ok && root == w.root {
		if err := w.tree.Resume(w.root, source{w}); err == nil {
			return true, nil
		}
	}
	w.buildLocked(ctx)
	return true, nil
}

// current reports whether cached and disk hold exactly the same checksums.
func current(cached map[string]string, disk []models.DocumentMeta) bool {
	if len(cached) != len(disk) {
		return false
	}
	for _, d := range disk {
		if cs, ok := cached[d.Path]; !ok || cs != d.Checksum {
			return false
		}
	}
	return true
}

// coldStart reads every document, creates its node, scans its references and
// builds the tree.
func (w *Workspace) coldStart(ctx context.Context, metas []models.DocumentMeta) error {
	files := make([]loaded, len(metas))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.readLimit)
	for i, m := range metas {
		g.Go(func() error {
			data, err := w.store.Read(m.Path)
			if err != nil {
				return err
			}
			if err := gctx.Err(); err != nil {
				return err
			}
			doc, err := parser.Parse(data)
			if err != nil {
				return fmt.Errorf("parse %s: %w", m.Path, err)
			}
			m.Checksum = checksum.Sum(data)
			files[i] = loaded{meta: m, data: data, doc: doc}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return fmt.Errorf("workspace: load: %w", err)
	}

	if err := w.graph.Restore(graph.Snapshot{}); err != nil {
		return fmt.Errorf("workspace: reset graph: %w", err)
	}
	w.state.Lock()
	w.docs = make(map[string]*docInfo, len(files))
	w.bodies = make(map[string]string)
	w.embeds = make(map[string]string)
	w.state.Unlock()

	var created []*docInfo
	var docs []*parser.Document
	for _, f := range files {
		info, err := w.createNode(f.meta.Path, f.doc)
		if err != nil {
			w.logger.Warn("workspace: skipping document",
				slog.String("path", f.meta.Path), slog.String("error", err.Error()))
			continue
		}
		info.checksum = f.meta.Checksum
		info.updated = f.meta.UpdatedAt
		created = append(created, info)
		docs = append(docs, f.doc)
	}
	for i, info := range created {
		w.scan(info, docs[i])
		w.remember(info, docs[i])
	}

	w.buildLocked(ctx)
	w.pruneAll()
	w.persist(ctx)
	return nil
}

// buildLocked runs a full tree build while the lifecycle lock is held.
func (w *Workspace) buildLocked(ctx context.Context) {
	w.building.Add(1)
	rep, err := w.tree.Build(ctx, w.root, source{w})
	w.building.Add(-1)
	if err != nil {
		w.logger.Warn("workspace: tree build failed",
			slog.String("root", w.root), slog.String("error", err.Error()),
			slog.Int("errors", len(rep.Errors)))
		return
	}
	w.drainPending(ctx)
}

// persist writes the current snapshot to the cache. Failures are logged; the
// cache is only an accelerator.
func (w *Workspace) persist(ctx context.Context) {
	if w.cache == nil {
		return
	}
	w.state.RLock()
	metas := make([]models.DocumentMeta, 0, len(w.docs))
	for _, d := range w.docs {
		metas = append(metas, models.DocumentMeta{Path: d.path, Checksum: d.checksum, UpdatedAt: d.updated})
	}
	w.state.RUnlock()

	t, st := w.tree.Tree()
	meta := map[string]string{"tree_state": st.String()}
	if st == semtree.StateBuilt {
		meta["tree_root"] = t.Root
	}
	err := w.cache.SaveSnapshot(ctx, index.Snapshot{Graph: w.graph.Dump(), Documents: metas, Meta: meta})
	if err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("workspace: persist failed", slog.String("error", err.Error()))
	}
}
