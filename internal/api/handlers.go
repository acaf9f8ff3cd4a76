package api

import (
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/bangd/internal/bangservice"
)

// Handler holds API route handlers.
type Handler struct {
	svc    *bangservice.Service
	engine Engine
}

// NewHandler creates a new Handler.
func NewHandler(svc *bangservice.Service, engine Engine) *Handler {
	return &Handler{svc: svc, engine: engine}
}

func listQuery(r *http.Request) bangservice.ListQuery {
	q := r.URL.Query()
	page, _ := strconv.Atoi(q.Get("page"))
	inactive, _ := strconv.ParseBool(q.Get("inactive"))
	return bangservice.ListQuery{Search: q.Get("q"), Page: page, InactiveOnly: inactive}
}

// ListBangs handles GET /api/bangs.
//
//	@Summary		List custom bangs in their configured order
//	@Tags			bangs
//	@Produce		json
//	@Param			q		query		string	false	"Case-insensitive search over name and bang"
//	@Param			page	query		int		false	"Page number (clamped)"
//	@Success		200		{object}	BangListResponse
//	@Security		BearerAuth
//	@Router			/bangs [get]
func (h *Handler) ListBangs(w http.ResponseWriter, r *http.Request) {
	page, err := h.svc.ListCustom(r.Context(), listQuery(r))
	if err != nil {
		writeError(w, "list bangs", err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// GetBang handles GET /api/bangs/{bang}.
//
//	@Summary		Get a custom or default bang
//	@Tags			bangs
//	@Produce		json
//	@Param			bang	path		string	true	"Bang token"
//	@Success		200		{object}	models.BangDefinition
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bangs/{bang} [get]
func (h *Handler) GetBang(w http.ResponseWriter, r *http.Request) {
	def, err := h.svc.GetBang(r.Context(), chi.URLParam(r, "bang"))
	if err != nil {
		writeError(w, "get bang", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// CreateBang handles POST /api/bangs.
//
//	@Summary		Create a custom bang
//	@Tags			bangs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		BangRequest	true	"Bang to create"
//	@Success		201		{object}	models.BangDefinition
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Failure		507		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bangs [post]
func (h *Handler) CreateBang(w http.ResponseWriter, r *http.Request) {
	var req BangRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	def, err := h.svc.AddBang(r.Context(), req)
	if err != nil {
		writeError(w, "create bang", err)
		return
	}
	writeJSON(w, http.StatusCreated, def)
}

// UpdateBang handles PUT /api/bangs/{bang}.
//
//	@Summary		Edit a custom bang, optionally renaming it
//	@Tags			bangs
//	@Accept			json
//	@Produce		json
//	@Param			bang	path		string		true	"Current bang token"
//	@Param			body	body		BangRequest	true	"New definition"
//	@Success		200		{object}	models.BangDefinition
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bangs/{bang} [put]
func (h *Handler) UpdateBang(w http.ResponseWriter, r *http.Request) {
	var req BangRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	def, err := h.svc.EditBang(r.Context(), chi.URLParam(r, "bang"), req)
	if err != nil {
		writeError(w, "update bang", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// DeleteBang handles DELETE /api/bangs/{bang}.
//
//	@Summary		Delete a custom bang
//	@Tags			bangs
//	@Produce		json
//	@Param			bang	path		string	true	"Bang token"
//	@Success		200		{object}	DeleteBangResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bangs/{bang} [delete]
func (h *Handler) DeleteBang(w http.ResponseWriter, r *http.Request) {
	undo, err := h.svc.DeleteBang(r.Context(), chi.URLParam(r, "bang"))
	if err != nil {
		writeError(w, "delete bang", err)
		return
	}
	writeJSON(w, http.StatusOK, DeleteBangResponse{
		UndoToken: undo,
		ExpiresIn: h.svc.UndoWindow().String(),
	})
}

// UndoDelete handles POST /api/bangs/undo.
//
//	@Summary		Restore a bang deleted within the undo window
//	@Tags			bangs
//	@Accept			json
//	@Produce		json
//	@Param			body	body		UndoRequest	true	"Undo token"
//	@Success		200		{object}	models.BangDefinition
//	@Failure		404		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bangs/undo [post]
func (h *Handler) UndoDelete(w http.ResponseWriter, r *http.Request) {
	var req UndoRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.UndoToken == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("undoToken is required"))
		return
	}
	def, err := h.svc.UndoDelete(r.Context(), req.UndoToken)
	if err != nil {
		writeError(w, "undo delete", err)
		return
	}
	writeJSON(w, http.StatusOK, def)
}

// ReorderBangs handles PUT /api/bangs/order.
//
//	@Summary		Reorder custom bangs
//	@Tags			bangs
//	@Accept			json
//	@Param			body	body	ReorderRequest	true	"Every custom bang token in the new order"
//	@Success		204		"Reordered"
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/bangs/order [put]
func (h *Handler) ReorderBangs(w http.ResponseWriter, r *http.Request) {
	var req ReorderRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.Reorder(r.Context(), req.Bangs); err != nil {
		writeError(w, "reorder bangs", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ListDefaults handles GET /api/defaults.
//
//	@Summary		List the provider's default bangs
//	@Tags			defaults
//	@Produce		json
//	@Param			q			query		string	false	"Case-insensitive search over name and bang"
//	@Param			page		query		int		false	"Page number (clamped)"
//	@Param			inactive	query		bool	false	"Only deactivated bangs"
//	@Success		200			{object}	BangListResponse
//	@Security		BearerAuth
//	@Router			/defaults [get]
func (h *Handler) ListDefaults(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.svc.ListDefaults(r.Context(), listQuery(r)))
}

// SetActive handles PUT /api/defaults/{bang}/active.
//
//	@Summary		Activate or deactivate a default bang
//	@Tags			defaults
//	@Accept			json
//	@Param			bang	path	string			true	"Bang token"
//	@Param			body	body	ActiveRequest	true	"Desired state"
//	@Success		204		"Updated"
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/defaults/{bang}/active [put]
func (h *Handler) SetActive(w http.ResponseWriter, r *http.Request) {
	var req ActiveRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if err := h.svc.SetActive(r.Context(), chi.URLParam(r, "bang"), req.Active); err != nil {
		writeError(w, "set active", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// GetSettings handles GET /api/settings.
//
//	@Summary		Get settings
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	SettingsDTO
//	@Security		BearerAuth
//	@Router			/settings [get]
func (h *Handler) GetSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.GetSettings(r.Context())
	if err != nil {
		writeError(w, "get settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// SaveSettings handles PUT /api/settings.
//
//	@Summary		Save settings
//	@Tags			settings
//	@Accept			json
//	@Produce		json
//	@Param			body	body		SettingsDTO	true	"Settings"
//	@Success		200		{object}	SettingsDTO
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/settings [put]
func (h *Handler) SaveSettings(w http.ResponseWriter, r *http.Request) {
	var req SettingsDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	s, err := h.svc.SaveSettings(r.Context(), req)
	if err != nil {
		writeError(w, "save settings", err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// Usage handles GET /api/usage.
//
//	@Summary		Storage quota usage
//	@Tags			settings
//	@Produce		json
//	@Success		200	{object}	UsageResponse
//	@Security		BearerAuth
//	@Router			/usage [get]
func (h *Handler) Usage(w http.ResponseWriter, r *http.Request) {
	u, err := h.svc.Usage(r.Context())
	if err != nil {
		writeError(w, "usage", err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}

// ListBackups handles GET /api/backups.
//
//	@Summary		List stored backups, newest first
//	@Tags			backups
//	@Produce		json
//	@Success		200	{object}	BackupListResponse
//	@Security		BearerAuth
//	@Router			/backups [get]
func (h *Handler) ListBackups(w http.ResponseWriter, r *http.Request) {
	files, err := h.svc.ListBackups(r.Context())
	if err != nil {
		writeError(w, "list backups", err)
		return
	}
	writeJSON(w, http.StatusOK, BackupListResponse{Backups: files})
}

// ExportBackup handles POST /api/backups.
//
//	@Summary		Write a backup of bangs and settings
//	@Tags			backups
//	@Produce		json
//	@Success		201	{object}	models.BackupFile
//	@Security		BearerAuth
//	@Router			/backups [post]
func (h *Handler) ExportBackup(w http.ResponseWriter, r *http.Request) {
	file, err := h.svc.Export(r.Context())
	if err != nil {
		writeError(w, "export backup", err)
		return
	}
	writeJSON(w, http.StatusCreated, file)
}

// DownloadBackup handles GET /api/backups/export.
//
//	@Summary		Download the current configuration as a backup document
//	@Tags			backups
//	@Produce		json
//	@Success		200
//	@Security		BearerAuth
//	@Router			/backups/export [get]
func (h *Handler) DownloadBackup(w http.ResponseWriter, r *http.Request) {
	data, err := h.svc.ExportDocument(r.Context())
	if err != nil {
		writeError(w, "download backup", err)
		return
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("Content-Disposition", `attachment; filename="`+bangservice.BackupName(h.svc.Now())+`"`)
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// ImportBackup handles POST /api/backups/import. The body is a backup
// document of any supported version.
//
//	@Summary		Import a backup document
//	@Tags			backups
//	@Accept			json
//	@Produce		json
//	@Success		200	{object}	bangservice.ImportResult
//	@Failure		400	{object}	errResponse
//	@Failure		507	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/import [post]
func (h *Handler) ImportBackup(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	data, err := io.ReadAll(r.Body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("failed to read body"))
		return
	}
	res, err := h.svc.Import(r.Context(), data)
	if err != nil {
		writeError(w, "import backup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// RestoreBackup handles POST /api/backups/{name}/import.
//
//	@Summary		Import a stored backup
//	@Tags			backups
//	@Produce		json
//	@Param			name	path		string	true	"Backup file name"
//	@Success		200		{object}	bangservice.ImportResult
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/backups/{name}/import [post]
func (h *Handler) RestoreBackup(w http.ResponseWriter, r *http.Request) {
	res, err := h.svc.ImportFile(r.Context(), chi.URLParam(r, "name"))
	if err != nil {
		writeError(w, "restore backup", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// Refresh handles POST /api/refresh.
//
//	@Summary		Re-fetch default bangs and rebuild the session
//	@Tags			settings
//	@Success		204	"Refreshed"
//	@Security		BearerAuth
//	@Router			/refresh [post]
func (h *Handler) Refresh(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Refresh(r.Context()); err != nil {
		writeError(w, "refresh", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
