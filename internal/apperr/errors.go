package apperr

import "errors"

var (
	ErrNotFound        = errors.New("not found")
	ErrConflict        = errors.New("conflict")
	ErrAlreadyExists   = errors.New("already exists")
	ErrInvalid         = errors.New("invalid input")
	ErrQuotaExceeded   = errors.New("storage quota exceeded")
	ErrMalformedBackup = errors.New("malformed backup file")
)
