package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/starford/bangd/internal/intercept"
)

// Engine decides what happens to intercepted requests and typed queries.
type Engine interface {
	Handle(ctx context.Context, d intercept.Descriptor) intercept.Decision
	HandleQuery(ctx context.Context, query string) intercept.Decision
	FallbackURL(query string) string
}

// Intercept handles POST /api/intercept.
//
//	@Summary		Decide whether an outgoing browser request carries a bang
//	@Tags			intercept
//	@Accept			json
//	@Produce		json
//	@Param			body	body		intercept.Descriptor	true	"Request descriptor"
//	@Success		200		{object}	intercept.Decision
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/intercept [post]
func (h *Handler) Intercept(w http.ResponseWriter, r *http.Request) {
	var d intercept.Descriptor
	if !decodeJSON(w, r, &d) {
		return
	}
	writeJSON(w, http.StatusOK, h.engine.Handle(r.Context(), d))
}

// Search handles GET /search, the URL registered as the browser's custom
// search engine. It redirects to the bang's first target, or to the fallback
// search engine when the query has no usable bang.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	dec := h.engine.HandleQuery(r.Context(), q)
	if dec.Action == intercept.ActionRedirect {
		http.Redirect(w, r, dec.Navigations[0].URL, http.StatusFound)
		return
	}
	if u := h.engine.FallbackURL(q); u != "" {
		http.Redirect(w, r, u, http.StatusFound)
		return
	}
	writeJSON(w, http.StatusNotFound, errorBody("no bang matched and no fallback search is configured"))
}
