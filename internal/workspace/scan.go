package workspace

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/parser"
)

// scan replaces the outgoing references of info's node with the ones found
// in doc and returns the targets it pointed at before, so that zombies left
// without edges can be collected. Templates carry no references.
func (w *Workspace) scan(info *docInfo, doc *parser.Document) []string {
	var prev []string
	for _, r := range w.graph.ForeRefs(info.id) {
		prev = append(prev, r.Node.ID)
	}
	w.graph.Flush(info.id)
	if info.kind == graph.KindTemplate {
		return prev
	}

	for _, ref := range doc.Refs {
		if ref.Target == info.filename {
			continue
		}
		tid, err := w.graph.Add(ref.Target)
		if err != nil {
			w.logger.Debug("workspace: bad reference",
				slog.String("path", info.path), slog.String("target", ref.Target), slog.String("error", err.Error()))
			continue
		}
		w.graph.Connect(ref.Kind, info.id, tid, ref.Type)
	}
	return prev
}

// remember records info and the bodies the tree and the embed cache serve.
func (w *Workspace) remember(info *docInfo, doc *parser.Document) {
	embedded := len(w.graph.BackEmbeds(info.id)) > 0

	w.state.Lock()
	defer w.state.Unlock()
	w.docs[info.path] = info
	if isIndex(info) {
		w.bodies[info.filename] = doc.Body
	} else {
		delete(w.bodies, info.filename)
	}
	if embedded {
		w.embeds[info.filename] = doc.Body
	} else {
		delete(w.embeds, info.filename)
	}
}

// cacheEmbeds loads the bodies of the documents id embeds that are not cached
// yet.
func (w *Workspace) cacheEmbeds(id string) {
	for _, n := range w.graph.ForeEmbeds(id) {
		if n.Kind != graph.KindDoc || n.Data.URI == "" {
			continue
		}
		w.state.RLock()
		_, cached := w.embeds[n.Data.Filename]
		w.state.RUnlock()
		if cached {
			continue
		}
		data, err := w.store.Read(n.Data.URI)
		if err != nil {
			w.logger.Warn("workspace: embed read failed", slog.String("path", n.Data.URI), slog.String("error", err.Error()))
			continue
		}
		doc, err := parser.Parse(data)
		if err != nil {
			continue
		}
		w.state.Lock()
		w.embeds[n.Data.Filename] = doc.Body
		w.state.Unlock()
	}
}

// referrers returns the paths of the documents holding a web edge to id.
func (w *Workspace) referrers(id string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, r := range w.graph.BackRefs(id) {
		if r.Node.ID == id || r.Node.Data.URI == "" {
			continue
		}
		if _, ok := seen[r.Node.Data.URI]; ok {
			continue
		}
		seen[r.Node.Data.URI] = struct{}{}
		out = append(out, r.Node.Data.URI)
	}
	return out
}

// retarget rewrites [[oldName]] and [[oldName|label]] to newName in every
// document that references oldName and in every index document that lists
// it, then applies the new content.
func (w *Workspace) retarget(ctx context.Context, oldName, newName string) {
	re := regexp.MustCompile(`\[\[` + regexp.QuoteMeta(oldName) + `(\|[^\[\]]*)?\]\]`)

	n, ok := w.graph.Find(graph.FieldFilename, newName)
	if !ok {
		return
	}
	paths := w.referrers(n.ID)
	seen := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		seen[p] = struct{}{}
	}
	w.state.RLock()
	for _, d := range w.docs {
		if _, ok := seen[d.path]; ok || !isIndex(d) {
			continue
		}
		if strings.Contains(w.bodies[d.filename], "[["+oldName) {
			paths = append(paths, d.path)
		}
	}
	w.state.RUnlock()

	for _, p := range paths {
		data, err := w.store.Read(p)
		if err != nil {
			w.logger.Warn("workspace: retarget read failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		out := re.ReplaceAll(data, []byte("[["+newName+"${1}]]"))
		if string(out) == string(data) {
			continue
		}
		if err := w.store.Write(p, out); err != nil {
			w.logger.Warn("workspace: retarget write failed", slog.String("path", p), slog.String("error", err.Error()))
			continue
		}
		if err := w.applySave(ctx, p, out); err != nil {
			w.logger.Warn("workspace: retarget apply failed", slog.String("path", p), slog.String("error", err.Error()))
		}
	}
}
