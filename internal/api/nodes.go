package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bonsai/internal/graph"
)

// ListNodes handles GET /api/nodes.
//
//	@Summary		List graph nodes, optionally of one kind
//	@Tags			nodes
//	@Produce		json
//	@Param			kind	query		string	false	"Node kind"	Enums(doc, zombie, template)
//	@Param			type	query		string	false	"Document type"
//	@Success		200		{object}	NodeListResponse
//	@Security		BearerAuth
//	@Router			/nodes [get]
func (h *Handler) ListNodes(w http.ResponseWriter, r *http.Request) {
	g := h.ws.Graph()
	var nodes []graph.Node
	switch kind, typ := r.URL.Query().Get("kind"), r.URL.Query().Get("type"); {
	case kind != "":
		nodes = g.Filter(graph.FieldKind, kind)
		if typ != "" {
			nodes = filterType(nodes, typ)
		}
	case typ != "":
		nodes = g.Filter(graph.FieldType, typ)
	default:
		nodes = g.All()
	}
	writeNodes(w, nodes)
}

// GetNode handles GET /api/nodes/{filename}.
//
//	@Summary		Get a node by filename with its tree position and web degree
//	@Tags			nodes
//	@Produce		json
//	@Param			filename	path		string	true	"Node filename"
//	@Success		200			{object}	NodeDetail
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{filename} [get]
func (h *Handler) GetNode(w http.ResponseWriter, r *http.Request) {
	n, ok := h.node(w, r)
	if !ok {
		return
	}
	g, tree := h.ws.Graph(), h.ws.Tree()
	d := NodeDetail{
		Node:     n,
		Children: len(g.Children(n.ID)),
		ForeRefs: len(g.ForeRefs(n.ID)),
		BackRefs: len(g.BackRefs(n.ID)),
		Trunk:    tree.IsTrunk(n.Data.Filename),
		Orphan:   tree.IsOrphan(n.Data.Filename),
	}
	if p, ok := g.Parent(n.ID); ok {
		d.Parent = p.Data.Filename
	}
	if p, ok := tree.Petiole(n.Data.Filename); ok {
		d.Petiole = p
	}
	if body, ok := h.ws.EmbedContent(n.Data.Filename); ok {
		d.EmbedBody = body
	}
	writeJSON(w, http.StatusOK, d)
}

// NodeRelation handles GET /api/nodes/{filename}/{relation}.
//
//	@Summary		Walk the tree or the web from a node
//	@Tags			nodes
//	@Produce		json
//	@Param			filename	path		string	true	"Node filename"
//	@Param			relation	path		string	true	"Relation"	Enums(ancestors, children, descendants, lineage, siblings, neighbors, backrefs, forerefs)
//	@Success		200			{object}	NodeListResponse
//	@Failure		404			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/nodes/{filename}/{relation} [get]
func (h *Handler) NodeRelation(w http.ResponseWriter, r *http.Request) {
	n, ok := h.node(w, r)
	if !ok {
		return
	}
	g := h.ws.Graph()
	switch chi.URLParam(r, "relation") {
	case "ancestors":
		writeNodes(w, g.Ancestors(n.ID))
	case "children":
		writeNodes(w, g.Children(n.ID))
	case "descendants":
		writeNodes(w, g.Descendants(n.ID))
	case "lineage":
		writeNodes(w, g.Lineage(n.ID))
	case "siblings":
		writeNodes(w, g.Siblings(n.ID))
	case "neighbors":
		writeNodes(w, g.Neighbors(n.ID))
	case "backrefs":
		writeRefs(w, g.BackRefs(n.ID))
	case "forerefs":
		writeRefs(w, g.ForeRefs(n.ID))
	default:
		writeJSON(w, http.StatusNotFound, errorBody("unknown relation"))
	}
}

// Isolates handles GET /api/isolates.
//
//	@Summary		Nodes with no web edges that are also outside the tree
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	NodeListResponse
//	@Security		BearerAuth
//	@Router			/isolates [get]
func (h *Handler) Isolates(w http.ResponseWriter, _ *http.Request) {
	writeNodes(w, h.ws.Graph().Isolates())
}

// Floaters handles GET /api/floaters.
//
//	@Summary		Nodes with no web edges
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	NodeListResponse
//	@Security		BearerAuth
//	@Router			/floaters [get]
func (h *Handler) Floaters(w http.ResponseWriter, _ *http.Request) {
	writeNodes(w, h.ws.Graph().Floaters())
}

// Zombies handles GET /api/zombies.
//
//	@Summary		Referenced documents that do not exist yet
//	@Tags			nodes
//	@Produce		json
//	@Success		200	{object}	NodeListResponse
//	@Security		BearerAuth
//	@Router			/zombies [get]
func (h *Handler) Zombies(w http.ResponseWriter, _ *http.Request) {
	writeNodes(w, h.ws.Graph().Zombies())
}

func (h *Handler) node(w http.ResponseWriter, r *http.Request) (graph.Node, bool) {
	name := chi.URLParam(r, "filename")
	n, ok := h.ws.Graph().Find(graph.FieldFilename, name)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody("node not found"))
		return graph.Node{}, false
	}
	return n, true
}

func writeNodes(w http.ResponseWriter, nodes []graph.Node) {
	if nodes == nil {
		nodes = []graph.Node{}
	}
	writeJSON(w, http.StatusOK, NodeListResponse{Nodes: nodes, Total: len(nodes)})
}

func writeRefs(w http.ResponseWriter, refs []graph.Reference) {
	if refs == nil {
		refs = []graph.Reference{}
	}
	writeJSON(w, http.StatusOK, ReferenceListResponse{References: refs})
}

func filterType(nodes []graph.Node, typ string) []graph.Node {
	var out []graph.Node
	for _, n := range nodes {
		if n.Type == typ {
			out = append(out, n)
		}
	}
	return out
}
