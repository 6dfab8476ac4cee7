package apperrors

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidationError_NamesField(t *testing.T) {
	err := NewValidationError("lat", "must be between -90 and 90")

	assert.Equal(t, "invalid lat: must be between -90 and 90", err.Error())
	assert.True(t, IsValidation(fmt.Errorf("add facility: %w", err)))
	assert.False(t, IsStorage(err))
}

func TestNewStorageError_WrapsCause(t *testing.T) {
	cause := errors.New("connection reset by peer")
	err := NewStorageError("insert facility", cause)

	assert.True(t, IsStorage(err))
	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "insert facility")
}

func TestNewStorageError_PreservesSentinels(t *testing.T) {
	assert.Same(t, ErrNotFound, NewStorageError("update facility", ErrNotFound))
	assert.ErrorIs(t, NewStorageError("update facility", fmt.Errorf("row: %w", ErrConflict)), ErrConflict)
	assert.NoError(t, NewStorageError("noop", nil))
}

func TestNewStorageError_DoesNotDoubleWrap(t *testing.T) {
	inner := NewStorageError("inner", errors.New("boom"))
	outer := NewStorageError("outer", inner)

	assert.Same(t, inner, outer)
}
