package api

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bonsai/internal/checksum"
	"github.com/starford/bonsai/internal/parser"
	"github.com/starford/bonsai/internal/workspace"
)

// Handler holds API route handlers.
type Handler struct {
	ws *workspace.Workspace
}

// NewHandler creates a new Handler.
func NewHandler(ws *workspace.Workspace) *Handler {
	return &Handler{ws: ws}
}

// docPath extracts the document path from the URL (everything after /api/docs/).
// Supports encoded slashes from OpenAPI clients (e.g. topics%2Fdoc.md).
func docPath(r *http.Request) string {
	raw := strings.TrimPrefix(chi.URLParam(r, "*"), "/")
	if raw == "" {
		return ""
	}
	decoded, err := url.PathUnescape(raw)
	if err != nil {
		return raw
	}
	return decoded
}

// GetDoc handles GET /api/docs/*.
//
//	@Summary		Get a single document by path
//	@Tags			docs
//	@Produce		json
//	@Param			path	path		string	true	"Document path"
//	@Success		200		{object}	Document
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/{path} [get]
func (h *Handler) GetDoc(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	doc, err := h.ws.Document(r.Context(), parser.Filename(path))
	if err != nil {
		writeError(w, "get doc", err)
		return
	}
	if doc.Path != path {
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
		return
	}
	w.Header().Set("ETag", checksum.ETag(doc.Checksum))
	writeJSON(w, http.StatusOK, doc)
}

// CreateDoc handles POST /api/docs.
//
//	@Summary		Create a new document
//	@Tags			docs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateDocRequest	true	"Document to create"
//	@Success		201		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs [post]
func (h *Handler) CreateDoc(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	var req CreateDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Path == "" || req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path and content are required"))
		return
	}
	doc, err := h.ws.CreateDocument(r.Context(), h.ws.TypedPath(req.Type, req.Path), []byte(req.Content))
	if err != nil {
		writeError(w, "create doc", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(doc.Checksum))
	writeJSON(w, http.StatusCreated, doc)
}

// UpdateDoc handles PUT /api/docs/*.
//
//	@Summary		Update a document with optimistic concurrency
//	@Tags			docs
//	@Accept			json
//	@Produce		json
//	@Param			path		path	string				true	"Document path"
//	@Param			If-Match	header	string				false	"SHA-256 checksum for optimistic concurrency"
//	@Param			body		body	UpdateDocRequest	true	"Updated content"
//	@Success		200		{object}	Document
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/{path} [put]
func (h *Handler) UpdateDoc(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 10<<20)
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}

	var req UpdateDocRequest
	if err := json.Unmarshal(body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.Content == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("content is required"))
		return
	}

	ifMatch := checksum.FromETag(r.Header.Get("If-Match"))

	doc, err := h.ws.UpdateDocument(r.Context(), path, []byte(req.Content), ifMatch)
	if err != nil {
		writeError(w, "update doc", err)
		return
	}
	w.Header().Set("ETag", checksum.ETag(doc.Checksum))
	writeJSON(w, http.StatusOK, doc)
}

// DeleteDoc handles DELETE /api/docs/*. A path without the .md extension
// deletes a directory.
//
//	@Summary		Delete a document or directory
//	@Tags			docs
//	@Param			path	path	string	true	"Document or directory path"
//	@Success		204		"Deleted"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/{path} [delete]
func (h *Handler) DeleteDoc(w http.ResponseWriter, r *http.Request) {
	path := docPath(r)
	if path == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("path is required"))
		return
	}
	if err := h.ws.DeleteDocument(r.Context(), path); err != nil {
		slog.Debug("delete doc failed", slog.String("path", path), slog.String("error", err.Error()))
		writeError(w, "delete doc", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// MoveDoc handles POST /api/docs/move.
//
//	@Summary		Rename or move a document or directory, keeping node identity
//	@Tags			docs
//	@Accept			json
//	@Param			body	body	MoveDocRequest	true	"Source and destination"
//	@Success		204		"Moved"
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/docs/move [post]
func (h *Handler) MoveDoc(w http.ResponseWriter, r *http.Request) {
	var req MoveDocRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	if req.From == "" || req.To == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("from and to are required"))
		return
	}
	if err := h.ws.MoveDocument(r.Context(), req.From, req.To); err != nil {
		writeError(w, "move doc", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
