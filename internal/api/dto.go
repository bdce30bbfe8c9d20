package api

import (
	"github.com/starford/bonsai/internal/graph"
	"github.com/starford/bonsai/internal/models"
	"github.com/starford/bonsai/internal/semtree"
)

// CreateDocRequest is the request body for creating a document.
type CreateDocRequest struct {
	Path    string `json:"path" example:"notes/hello.md" validate:"required"`
	Content string `json:"content" example:"# Hello\nSee [[world]]" validate:"required"`
	// Type prefixes the filename the way documents of that type are named.
	Type string `json:"type,omitempty" example:"index"`
}

// UpdateDocRequest is the request body for updating a document.
type UpdateDocRequest struct {
	Content string `json:"content" example:"# Updated\nContent" validate:"required"`
}

// MoveDocRequest is the request body for renaming or moving a document or a
// directory.
type MoveDocRequest struct {
	From string `json:"from" example:"notes/hello.md" validate:"required"`
	To   string `json:"to" example:"archive/hello.md" validate:"required"`
}

// ReconcileRequest names the index document whose subtree is reconciled.
type ReconcileRequest struct {
	Filename string `json:"filename" example:"i.projects" validate:"required"`
}

// Document is the full document response type (aliased from the domain layer).
type Document = models.Document

// NodeDetail is a node together with its place in the tree and its web
// degree.
type NodeDetail struct {
	graph.Node
	Parent    string `json:"parent,omitempty" example:"i.bonsai"`
	Petiole   string `json:"petiole,omitempty" example:"i.bonsai"`
	Children  int    `json:"children" example:"3"`
	ForeRefs  int    `json:"forerefs" example:"2"`
	BackRefs  int    `json:"backrefs" example:"5"`
	Trunk     bool   `json:"trunk"`
	Orphan    bool   `json:"orphan"`
	EmbedBody string `json:"embed_body,omitempty"`
}

// NodeListResponse wraps node listings.
type NodeListResponse struct {
	Nodes []graph.Node `json:"nodes" validate:"required"`
	Total int          `json:"total" example:"42" validate:"required"`
}

// ReferenceListResponse wraps incoming or outgoing web references.
type ReferenceListResponse struct {
	References []graph.Reference `json:"references" validate:"required"`
}

// TreeResponse is the semantic tree metadata, its state and a text
// rendering.
type TreeResponse struct {
	Tree  semtree.Tree  `json:"tree" validate:"required"`
	State semtree.State `json:"state" example:"built" validate:"required"`
	Text  string        `json:"text,omitempty"`
}

// ReportResponse carries a build, reconcile or lint report and the error the
// operation ended with, if any.
type ReportResponse struct {
	Report semtree.Report `json:"report" validate:"required"`
	State  semtree.State  `json:"state" example:"built"`
	Error  string         `json:"error,omitempty"`
}
