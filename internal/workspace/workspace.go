// Package workspace keeps the document graph and the semantic tree in step
// with a vault of Markdown documents.
//
// Every lifecycle event (create, save, rename, delete) runs to completion
// under a single lock before the next one starts. Full tree rebuilds run
// outside that lock; a reconciliation rejected because a rebuild holds the
// tree is parked and retried.
package workspace

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/starford/bonsai/internal/doctype"
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/index"
	"github.com/starford/bonsai/internal/outline"
	"github.com/starford/bonsai/internal/semtree"
	"github.com/starford/bonsai/internal/storage"
)

// DefaultRoot is the filename of the root index document.
const DefaultRoot = "i.bonsai"

// Notifier receives change notifications. *sse.Broker implements it.
type Notifier interface {
	PublishDocEvent(kind, path string)
	PublishTreeEvent(state, root string)
}

// Event kinds passed to Notifier.PublishDocEvent.
const (
	EventCreated = "created"
	EventUpdated = "updated"
	EventDeleted = "deleted"
)

// docInfo is what the workspace remembers about one file on disk.
type docInfo struct {
	path     string
	filename string
	id       string
	kind     graph.Kind
	typ      string
	checksum string
	updated  time.Time
}

// Option configures a Workspace.
type Option func(*Workspace)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(w *Workspace) { w.logger = l }
}

// WithRoot sets the filename of the root index document.
func WithRoot(filename string) Option {
	return func(w *Workspace) { w.root = filename }
}

// WithTypes sets the document type resolver.
func WithTypes(r *doctype.Resolver) Option {
	return func(w *Workspace) { w.types = r }
}

// WithOutline sets the outline lint options.
func WithOutline(opts outline.Options) Option {
	return func(w *Workspace) { w.outline = opts }
}

// WithCache enables snapshot persistence.
func WithCache(c index.Cache) Option {
	return func(w *Workspace) { w.cache = c }
}

// WithNotifier sets the receiver of change notifications.
func WithNotifier(n Notifier) Option {
	return func(w *Workspace) { w.events = n }
}

// WithReadConcurrency bounds the number of files read in parallel during a
// full load.
func WithReadConcurrency(n int) Option {
	return func(w *Workspace) { w.readLimit = n }
}

// WithRetryDelay sets how long a rejected reconciliation waits before it is
// tried again.
func WithRetryDelay(d time.Duration) Option {
	return func(w *Workspace) { w.retryDelay = d }
}

// WithIDGenerator replaces the graph's node id generator.
func WithIDGenerator(fn func() string) Option {
	return func(w *Workspace) { w.newID = fn }
}

// Workspace owns the graph, the tree and the in-memory view of the vault.
type Workspace struct {
	store      storage.Provider
	graph      *graph.Graph
	tree       *semtree.Builder
	types      *doctype.Resolver
	cache      index.Cache
	events     Notifier
	logger     *slog.Logger
	outline    outline.Options
	readLimit  int
	retryDelay time.Duration
	newID      func() string

	// mu serialises lifecycle events.
	mu   sync.Mutex
	root string
	// building counts the full builds queued or running.
	building atomic.Int32

	// state guards the maps below, which the tree reads during builds.
	state   sync.RWMutex
	docs    map[string]*docInfo // by vault-relative path
	bodies  map[string]string   // index document bodies by filename
	embeds  map[string]string   // embedded document bodies by filename
	pending map[string]struct{} // index filenames awaiting reconciliation
	retry   *time.Timer
}

// New returns an empty workspace over store. Call Load to populate it.
func New(store storage.Provider, opts ...Option) (*Workspace, error) {
	w := &Workspace{
		store:      store,
		logger:     slog.Default(),
		root:       DefaultRoot,
		outline:    outline.DefaultOptions(),
		readLimit:  8,
		retryDelay: 250 * time.Millisecond,
		docs:       make(map[string]*docInfo),
		bodies:     make(map[string]string),
		embeds:     make(map[string]string),
		pending:    make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	if w.types == nil {
		r, err := doctype.New(doctype.DefaultConfig())
		if err != nil {
			return nil, fmt.Errorf("workspace: types: %w", err)
		}
		w.types = r
	}
	gopts := []graph.Option{graph.WithLogger(w.logger)}
	if w.newID != nil {
		gopts = append(gopts, graph.WithIDGenerator(w.newID))
	}
	w.graph = graph.New(gopts...)
	w.tree = semtree.New(w.graph, semtree.WithOutline(w.outline), semtree.WithLogger(w.logger))
	return w, nil
}

// Graph returns the live graph for queries.
func (w *Workspace) Graph() *graph.Graph { return w.graph }

// Tree returns the tree builder for queries.
func (w *Workspace) Tree() *semtree.Builder { return w.tree }

// Types returns the document type resolver.
func (w *Workspace) Types() *doctype.Resolver { return w.types }

// Root returns the filename of the root index document.
func (w *Workspace) Root() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.root
}

// Paths lists the vault-relative paths of every known document.
func (w *Workspace) Paths() []string {
	w.state.RLock()
	defer w.state.RUnlock()
	out := make([]string, 0, len(w.docs))
	for p := range w.docs {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// EmbedContent returns the cached body of a document that other documents
// embed.
func (w *Workspace) EmbedContent(filename string) (string, bool) {
	w.state.RLock()
	defer w.state.RUnlock()
	body, ok := w.embeds[filename]
	return body, ok
}

// Pending lists index documents whose reconciliation is waiting for a
// rebuild to finish.
func (w *Workspace) Pending() []string {
	w.state.RLock()
	defer w.state.RUnlock()
	out := make([]string, 0, len(w.pending))
	for f := range w.pending {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// Rebuild recomposes the whole tree from the current index documents.
// Reconciliations parked while it ran are applied before it returns.
func (w *Workspace) Rebuild(ctx context.Context) (semtree.Report, error) {
	w.building.Add(1)
	rep, err := w.tree.Build(ctx, w.Root(), source{w})
	w.building.Add(-1)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err == nil {
		w.drainPending(ctx)
	}
	w.pruneAll()
	w.treeChanged()
	w.persist(ctx)
	return rep, err
}

// Reconcile re-reads the index document filename from the in-memory view and
// reconciles its subtree.
func (w *Workspace) Reconcile(ctx context.Context, filename string) (semtree.Report, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	rep, err := w.reconcileLocked(ctx, filename)
	if err == nil {
		w.persist(ctx)
	}
	return rep, err
}

// Lint plans the tree from the current index documents without changing it.
func (w *Workspace) Lint(ctx context.Context) semtree.Report {
	return w.tree.Lint(ctx, w.Root(), source{w})
}

// Dump is the debug view of the whole workspace.
type Dump struct {
	Graph graph.Snapshot `json:"graph"`
	Tree  semtree.Tree   `json:"tree"`
	State semtree.State  `json:"state"`
}

// Dump returns the debug snapshot.
func (w *Workspace) Dump() Dump {
	t, st := w.tree.Tree()
	return Dump{Graph: w.graph.Dump(), Tree: t, State: st}
}

// Close stops the retry timer.
func (w *Workspace) Close() {
	w.state.Lock()
	defer w.state.Unlock()
	if w.retry != nil {
		w.retry.Stop()
	}
}

// source serves index documents to the tree builder.
type source struct{ w *Workspace }

func (s source) IndexDocs() []string {
	s.w.state.RLock()
	defer s.w.state.RUnlock()
	out := make([]string, 0, len(s.w.bodies))
	for f := range s.w.bodies {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

func (s source) Body(_ context.Context, filename string) (string, error) {
	s.w.state.RLock()
	defer s.w.state.RUnlock()
	body, ok := s.w.bodies[filename]
	if !ok {
		return "", fmt.Errorf("workspace: no index document %q", filename)
	}
	return body, nil
}
