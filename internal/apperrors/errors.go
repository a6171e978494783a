package apperrors

import "errors"

var (
	ErrNotFound          = errors.New("not found")
	ErrConflict          = errors.New("conflict")
	ErrSheetDisabled     = errors.New("source sheet is disabled")
	ErrLocked            = errors.New("sync already running for sheet")
	ErrSourceRead        = errors.New("failed to read source sheet")
	ErrStoreUnavailable  = errors.New("destination store unavailable")
	ErrInvalidIdentifier = errors.New("invalid identifier")
)
