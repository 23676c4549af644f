package store

import (
	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
)

// Sentinel errors returned by both stores. They are domain errors, so
// callers match them with errors.Is against either package.
var (
	ErrNotFound      = domainerrors.ErrNotFound
	ErrAlreadyExists = domainerrors.ErrAlreadyExists
	ErrInvalidInput  = domainerrors.ErrValidation
)

// NotFound returns ErrNotFound with a message naming the missing entity.
func NotFound(kind string, key any) error {
	return domainerrors.NotFoundf("%s %v not found", kind, key)
}

// AlreadyExists returns ErrAlreadyExists with a message naming the entity.
func AlreadyExists(kind string, key any) error {
	return domainerrors.AlreadyExistsf("%s %v already exists", kind, key)
}
