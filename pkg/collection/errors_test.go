package collection

import (
	"errors"
	"fmt"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreErrorMessage(t *testing.T) {
	withPath := NewStoreError(ErrNotFound, "document not found", "/music/Band/.band_metadata.json")
	assert.Equal(t, "document not found: /music/Band/.band_metadata.json", withPath.Error())

	withoutPath := NewStoreError(ErrValidation, "band name is required", "")
	assert.Equal(t, "band name is required", withoutPath.Error())
}

func TestCodeOfThroughWrapping(t *testing.T) {
	inner := WrapError(ErrCorrupt, "bad JSON", "x.json", errors.New("unexpected end of input"))
	outer := fmt.Errorf("loading band: %w", inner)

	code, ok := CodeOf(outer)
	require.True(t, ok)
	assert.Equal(t, ErrCorrupt, code)

	assert.True(t, IsCode(outer, ErrCorrupt))
	assert.False(t, IsCode(outer, ErrNotFound))
}

func TestCodeOfPlainError(t *testing.T) {
	_, ok := CodeOf(errors.New("plain"))
	assert.False(t, ok)
	assert.False(t, IsCode(nil, ErrIO))
}

func TestUnwrapPreservesCause(t *testing.T) {
	wrapped := WrapError(ErrIO, "write failed", "y.json", os.ErrPermission)
	assert.True(t, errors.Is(wrapped, os.ErrPermission))
}
