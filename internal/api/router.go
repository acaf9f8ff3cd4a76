package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
)

// NewRouter creates a chi router with all API routes mounted.
// authEnabled controls whether Bearer token auth is enforced.
// sseHandler, if non-nil, is mounted at GET /events inside the auth group.
func NewRouter(h *Handler, authEnabled bool, token string, sseHandler http.Handler) chi.Router {
	r := chi.NewRouter()
	r.Use(AuthMiddleware(authEnabled, token))

	// Interception.
	r.Post("/intercept", h.Intercept)

	// Custom bangs.
	r.Get("/bangs", h.ListBangs)
	r.Post("/bangs", h.CreateBang)
	r.Post("/bangs/undo", h.UndoDelete)
	r.Put("/bangs/order", h.ReorderBangs)
	r.Get("/bangs/{bang}", h.GetBang)
	r.Put("/bangs/{bang}", h.UpdateBang)
	r.Delete("/bangs/{bang}", h.DeleteBang)

	// Default bangs.
	r.Get("/defaults", h.ListDefaults)
	r.Put("/defaults/{bang}/active", h.SetActive)

	// Settings.
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.SaveSettings)
	r.Get("/usage", h.Usage)
	r.Post("/refresh", h.Refresh)

	// Backups.
	r.Get("/backups", h.ListBackups)
	r.Post("/backups", h.ExportBackup)
	r.Get("/backups/export", h.DownloadBackup)
	r.Post("/backups/import", h.ImportBackup)
	r.Post("/backups/{name}/import", h.RestoreBackup)

	// SSE endpoint (protected by same auth middleware).
	if sseHandler != nil {
		r.Get("/events", sseHandler.ServeHTTP)
	}

	return r
}
