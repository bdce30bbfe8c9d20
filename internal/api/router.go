package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bonsai/internal/workspace"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(ws *workspace.Workspace, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	h := NewHandler(ws)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Graph queries.
	r.Get("/nodes", h.ListNodes)
	r.Get("/nodes/{filename}", h.GetNode)
	r.Get("/nodes/{filename}/{relation}", h.NodeRelation)
	r.Get("/isolates", h.Isolates)
	r.Get("/floaters", h.Floaters)
	r.Get("/zombies", h.Zombies)

	// Semantic tree.
	r.Get("/tree", h.Tree)
	r.Post("/tree/build", h.BuildTree)
	r.Post("/tree/reconcile", h.ReconcileTree)
	r.Get("/lint", h.Lint)
	r.Get("/dump", h.Dump)

	// Document lifecycle.
	r.Post("/docs", h.CreateDoc)
	r.Post("/docs/move", h.MoveDoc)
	r.Get("/docs/*", h.GetDoc)
	r.Put("/docs/*", h.UpdateDoc)
	r.Delete("/docs/*", h.DeleteDoc)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
