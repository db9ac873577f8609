package apperr

import "errors"

var (
	ErrNotFound    = errors.New("not found")
	ErrConflict    = errors.New("conflict")
	ErrDuplicateID = errors.New("duplicate id")
	ErrSyncFailed  = errors.New("sync failed")
)
