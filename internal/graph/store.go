package graph

import (
	"fmt"
	"log/slog"
	"sort"
)

// Add returns the id of the node holding filename, creating a zombie for it
// when no such node exists. Repeated calls return the same id. A filename
// held by a template fails with ErrTemplate.
func (g *Graph) Add(filename string) (string, error) {
	if filename == "" {
		return "", ErrInvalidFilename
	}
	g.mu.Lock()
	defer g.mu.Unlock()

	if id, ok := g.byFilename[filename]; ok {
		if g.nodes[id].Kind == KindTemplate {
			return "", fmt.Errorf("%w: %q", ErrTemplate, filename)
		}
		return id, nil
	}
	id := g.newID()
	if _, taken := g.nodes[id]; taken {
		return "", fmt.Errorf("%w: id %q", ErrDuplicateIdentity, id)
	}
	g.insert(&Node{
		ID:   id,
		Kind: KindZombie,
		Type: TypeDefault,
		Data: NodeData{Filename: filename},
	})
	mutations.WithLabelValues("add").Inc()
	g.logger.Debug("graph: zombie created", slog.String("filename", filename), slog.String("id", id))
	return id, nil
}

// Create adds a node backed by a real document. It fails with
// ErrDuplicateIdentity when the id, uri or filename is already held by a
// non-zombie. A zombie holding the same filename is superseded: its edges and
// tree position move to the new node and the zombie is removed. A template
// never inherits them; the zombie is removed with its edges.
func (g *Graph) Create(data NodeData, init Init) (string, error) {
	if data.Filename == "" {
		return "", ErrInvalidFilename
	}
	kind := init.Kind
	switch kind {
	case "":
		kind = KindDoc
	case KindDoc, KindTemplate:
	default:
		return "", fmt.Errorf("graph: create: cannot create node of kind %q", kind)
	}
	typ := init.Type
	if typ == "" {
		typ = TypeDefault
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	id := init.ID
	if id == "" {
		id = g.newID()
	}
	if _, taken := g.nodes[id]; taken {
		return "", fmt.Errorf("%w: id %q", ErrDuplicateIdentity, id)
	}
	if data.URI != "" {
		if _, taken := g.byURI[data.URI]; taken {
			return "", fmt.Errorf("%w: uri %q", ErrDuplicateIdentity, data.URI)
		}
	}
	zombie := ""
	if holder, ok := g.byFilename[data.Filename]; ok {
		if g.nodes[holder].Kind != KindZombie {
			return "", fmt.Errorf("%w: filename %q", ErrDuplicateIdentity, data.Filename)
		}
		zombie = holder
	}

	switch {
	case zombie != "" && kind == KindTemplate:
		g.removeLocked(zombie)
		g.insert(&Node{ID: id, Kind: kind, Type: typ, Data: data})
	case zombie != "":
		g.insert(&Node{ID: id, Kind: kind, Type: typ, Data: data})
		g.supersedeLocked(zombie, id)
	default:
		g.insert(&Node{ID: id, Kind: kind, Type: typ, Data: data})
	}
	mutations.WithLabelValues("create").Inc()
	return id, nil
}

// Fill promotes the zombie id to a document in place. The id is kept so every
// edge that pointed at the zombie stays valid. An empty data.Filename keeps
// the zombie's filename.
func (g *Graph) Fill(id string, data NodeData) (Node, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return Node{}, fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	if n.Kind != KindZombie {
		return Node{}, fmt.Errorf("%w: %q", ErrNotAZombie, n.Data.Filename)
	}
	if data.Filename == "" {
		data.Filename = n.Data.Filename
	}
	if holder, taken := g.byFilename[data.Filename]; taken && holder != id {
		return Node{}, fmt.Errorf("%w: filename %q", ErrDuplicateIdentity, data.Filename)
	}
	if data.URI != "" {
		if _, taken := g.byURI[data.URI]; taken {
			return Node{}, fmt.Errorf("%w: uri %q", ErrDuplicateIdentity, data.URI)
		}
	}

	delete(g.byFilename, n.Data.Filename)
	n.Kind = KindDoc
	n.Data = data
	g.index(n)
	mutations.WithLabelValues("fill").Inc()
	return *n, nil
}

// Edit sets a single field of a node. Filename and uri stay unique; the id
// never changes through Edit.
func (g *Graph) Edit(id string, field Field, value string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	n, ok := g.nodes[id]
	if !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	switch field {
	case FieldFilename:
		if value == "" {
			return ErrInvalidFilename
		}
		if holder, taken := g.byFilename[value]; taken && holder != id {
			return fmt.Errorf("%w: filename %q", ErrDuplicateIdentity, value)
		}
		delete(g.byFilename, n.Data.Filename)
		n.Data.Filename = value
		g.byFilename[value] = id
	case FieldURI:
		if n.Kind == KindZombie {
			return fmt.Errorf("%w: zombies have no uri", ErrInvalidField)
		}
		if holder, taken := g.byURI[value]; taken && holder != id {
			return fmt.Errorf("%w: uri %q", ErrDuplicateIdentity, value)
		}
		if g.byURI[n.Data.URI] == id {
			delete(g.byURI, n.Data.URI)
		}
		n.Data.URI = value
		if value != "" {
			g.byURI[value] = id
		}
	case FieldTitle:
		n.Data.Title = value
	case FieldType:
		if value == "" {
			value = TypeDefault
		}
		n.Type = value
	case FieldKind:
		k := Kind(value)
		if n.Kind == KindZombie || (k != KindDoc && k != KindTemplate) {
			return fmt.Errorf("%w: kind %q -> %q", ErrInvalidField, n.Kind, value)
		}
		n.Kind = k
	default:
		return fmt.Errorf("%w: %q", ErrInvalidField, field)
	}
	mutations.WithLabelValues("edit").Inc()
	return nil
}

// Remove deletes a node and every edge touching it. Its children stay in the
// store without a parent.
func (g *Graph) Remove(id string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.nodes[id]; !ok {
		return fmt.Errorf("%w: %q", ErrNodeNotFound, id)
	}
	g.removeLocked(id)
	mutations.WithLabelValues("remove").Inc()
	return nil
}

// Get returns the node with the given id.
func (g *Graph) Get(id string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n, ok := g.nodes[id]
	if !ok {
		return Node{}, false
	}
	return *n, true
}

// Find returns the first node whose field equals value.
func (g *Graph) Find(field Field, value string) (Node, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	n := g.findLocked(field, value)
	if n == nil {
		return Node{}, false
	}
	return *n, true
}

// Filter returns every node whose field equals value, in insertion order.
func (g *Graph) Filter(field Field, value string) []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Node
	for _, id := range g.orderedIDs() {
		n := g.nodes[id]
		if fieldValue(n, field) == value {
			out = append(out, *n)
		}
	}
	return out
}

// All returns every node in insertion order.
func (g *Graph) All() []Node {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Node, 0, len(g.nodes))
	for _, id := range g.orderedIDs() {
		out = append(out, *g.nodes[id])
	}
	return out
}

// Zombies returns every zombie node in insertion order.
func (g *Graph) Zombies() []Node {
	return g.Filter(FieldKind, string(KindZombie))
}

func (g *Graph) findLocked(field Field, value string) *Node {
	switch field {
	case FieldID:
		return g.nodes[value]
	case FieldFilename:
		return g.nodes[g.byFilename[value]]
	case FieldURI:
		return g.nodes[g.byURI[value]]
	}
	for _, id := range g.orderedIDs() {
		if n := g.nodes[id]; fieldValue(n, field) == value {
			return n
		}
	}
	return nil
}

func fieldValue(n *Node, field Field) string {
	switch field {
	case FieldID:
		return n.ID
	case FieldKind:
		return string(n.Kind)
	case FieldType:
		return n.Type
	case FieldURI:
		return n.Data.URI
	case FieldFilename:
		return n.Data.Filename
	case FieldTitle:
		return n.Data.Title
	}
	return ""
}

func (g *Graph) insert(n *Node) {
	g.nodes[n.ID] = n
	g.next++
	g.seq[n.ID] = g.next
	g.index(n)
}

func (g *Graph) index(n *Node) {
	g.byFilename[n.Data.Filename] = n.ID
	if n.Kind != KindZombie && n.Data.URI != "" {
		g.byURI[n.Data.URI] = n.ID
	}
}

func (g *Graph) removeLocked(id string) {
	n := g.nodes[id]
	for r := range g.out[id] {
		g.dropRef(r)
	}
	for r := range g.in[id] {
		g.dropRef(r)
	}
	g.detach(id)
	for _, c := range g.children[id] {
		delete(g.parent, c)
	}
	delete(g.children, id)
	if g.root == id {
		g.root = ""
	}
	if g.byFilename[n.Data.Filename] == id {
		delete(g.byFilename, n.Data.Filename)
	}
	if n.Data.URI != "" && g.byURI[n.Data.URI] == id {
		delete(g.byURI, n.Data.URI)
	}
	delete(g.nodes, id)
	delete(g.seq, id)
}

func (g *Graph) orderedIDs() []string {
	ids := make([]string, 0, len(g.nodes))
	for id := range g.nodes {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return g.seq[ids[i]] < g.seq[ids[j]] })
	return ids
}

func without(list []string, id string) []string {
	out := list[:0:0]
	for _, v := range list {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
