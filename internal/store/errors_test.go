package store_test

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/booksyapp/booksy-server/internal/store"
)

func TestError_Error(t *testing.T) {
	err := &store.Error{Kind: store.KindNotFound, Message: "not found"}

	assert.Equal(t, "not found", err.Error())
}

func TestError_ErrorWithCause(t *testing.T) {
	cause := errors.New("disk I/O error")
	err := store.ErrNotFound.WithCause(cause)

	assert.Contains(t, err.Error(), "resource not found")
	assert.Contains(t, err.Error(), "disk I/O error")
	assert.ErrorIs(t, err, cause)
}

func TestError_IsMatchesKindAcrossMessages(t *testing.T) {
	err := fmt.Errorf("get download: %w", store.ErrNotFound.WithMessage("download dl-1 not found"))

	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.NotErrorIs(t, err, store.ErrAlreadyExists)
}
