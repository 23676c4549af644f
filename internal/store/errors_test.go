package store_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	domainerrors "github.com/neobackupapp/neobackup-server/internal/errors"
	"github.com/neobackupapp/neobackup-server/internal/store"
)

func TestNotFound(t *testing.T) {
	err := store.NotFound("schedule", 7)

	assert.True(t, errors.Is(err, store.ErrNotFound))
	assert.True(t, errors.Is(err, domainerrors.ErrNotFound))
	assert.Contains(t, err.Error(), "schedule 7 not found")
	assert.Equal(t, http.StatusNotFound, domainerrors.CodeOf(err).HTTPStatus())
}

func TestAlreadyExists(t *testing.T) {
	err := store.AlreadyExists("schedule", "Nightly")

	assert.ErrorIs(t, err, store.ErrAlreadyExists)
	assert.False(t, errors.Is(err, store.ErrNotFound))
	assert.Equal(t, http.StatusConflict, domainerrors.CodeOf(err).HTTPStatus())
}
