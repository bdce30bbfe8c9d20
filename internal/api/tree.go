package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/semtree"
)

// Tree handles GET /api/tree.
//
//	@Summary		Get the semantic tree metadata and a text rendering
//	@Tags			tree
//	@Produce		json
//	@Param			label	query		string	false	"Node field used as label"	Enums(filename, title, id)
//	@Success		200		{object}	TreeResponse
//	@Security		BearerAuth
//	@Router			/tree [get]
func (h *Handler) Tree(w http.ResponseWriter, r *http.Request) {
	label := graph.FieldFilename
	if l := r.URL.Query().Get("label"); l != "" {
		label = graph.Field(l)
	}
	t, st := h.ws.Tree().Tree()
	writeJSON(w, http.StatusOK, TreeResponse{Tree: t, State: st, Text: h.ws.Graph().PrintTree(label)})
}

// BuildTree handles POST /api/tree/build.
//
//	@Summary		Rebuild the whole tree from the index documents
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	ReportResponse
//	@Failure		404	{object}	ReportResponse
//	@Failure		422	{object}	ReportResponse
//	@Security		BearerAuth
//	@Router			/tree/build [post]
func (h *Handler) BuildTree(w http.ResponseWriter, r *http.Request) {
	rep, err := h.ws.Rebuild(r.Context())
	h.writeReport(w, "build tree", rep, err)
}

// ReconcileTree handles POST /api/tree/reconcile.
//
//	@Summary		Reconcile the subtree of one index document
//	@Tags			tree
//	@Accept			json
//	@Produce		json
//	@Param			body	body		ReconcileRequest	true	"Index document"
//	@Success		200		{object}	ReportResponse
//	@Failure		404		{object}	ReportResponse
//	@Failure		409		{object}	ReportResponse
//	@Failure		422		{object}	ReportResponse
//	@Security		BearerAuth
//	@Router			/tree/reconcile [post]
func (h *Handler) ReconcileTree(w http.ResponseWriter, r *http.Request) {
	var req ReconcileRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Filename == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("filename is required"))
		return
	}
	rep, err := h.ws.Reconcile(r.Context(), req.Filename)
	h.writeReport(w, "reconcile tree", rep, err)
}

// Lint handles GET /api/lint.
//
//	@Summary		Check every index document without changing the tree
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	ReportResponse
//	@Security		BearerAuth
//	@Router			/lint [get]
func (h *Handler) Lint(w http.ResponseWriter, r *http.Request) {
	rep := h.ws.Lint(r.Context())
	writeJSON(w, http.StatusOK, ReportResponse{Report: rep, State: h.ws.Tree().State()})
}

// Dump handles GET /api/dump.
//
//	@Summary		Debug dump of nodes, edges and tree
//	@Tags			tree
//	@Produce		json
//	@Success		200	{object}	workspace.Dump
//	@Security		BearerAuth
//	@Router			/dump [get]
func (h *Handler) Dump(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, h.ws.Dump())
}

func (h *Handler) writeReport(w http.ResponseWriter, op string, rep semtree.Report, err error) {
	resp := ReportResponse{Report: rep, State: h.ws.Tree().State()}
	if err == nil {
		writeJSON(w, http.StatusOK, resp)
		return
	}
	resp.Error = err.Error()
	switch {
	case errors.Is(err, semtree.ErrRootNotFound):
		writeJSON(w, http.StatusNotFound, resp)
	case errors.Is(err, semtree.ErrRebuildInProgress):
		writeJSON(w, http.StatusConflict, resp)
	case errors.Is(err, semtree.ErrCircularInclusion),
		errors.Is(err, semtree.ErrMalformedOutline),
		errors.Is(err, semtree.ErrUnreachableSubroot),
		errors.Is(err, semtree.ErrNotBuilt):
		writeJSON(w, http.StatusUnprocessableEntity, resp)
	default:
		writeError(w, op, err)
	}
}
