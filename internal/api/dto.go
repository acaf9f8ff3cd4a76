package api

import (
	"github.com/starford/bangd/internal/bangservice"
	"github.com/starford/bangd/internal/models"
)

// BangRequest is the request body for creating or editing a bang.
type BangRequest = bangservice.BangInput

// BangListResponse wraps a page of bangs.
type BangListResponse = bangservice.Page[models.BangDefinition]

// DeleteBangResponse carries the token that undoes a deletion.
type DeleteBangResponse struct {
	UndoToken string `json:"undoToken" validate:"required"`
	ExpiresIn string `json:"expiresIn" example:"5s" validate:"required"`
}

// UndoRequest is the request body for undoing a deletion.
type UndoRequest struct {
	UndoToken string `json:"undoToken" validate:"required"`
}

// ReorderRequest lists every custom bang token in the new order.
type ReorderRequest struct {
	Bangs []string `json:"bangs" example:"yt,gh,w" validate:"required"`
}

// ActiveRequest toggles a default bang.
type ActiveRequest struct {
	Active bool `json:"active"`
}

// SettingsDTO is the settings payload.
type SettingsDTO = bangservice.Settings

// UsageResponse reports quota consumption.
type UsageResponse = bangservice.UsageReport

// BackupListResponse wraps stored backups.
type BackupListResponse struct {
	Backups []models.BackupFile `json:"backups" validate:"required"`
}
