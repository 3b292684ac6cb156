package errors

import (
	stderrors "errors"
	"io/fs"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrapKeepsCode(t *testing.T) {
	base := MalformedFiber("line %d has %d values", 3, 7)
	wrapped := Wrapf(base, "reading %s", "tract.txt")

	assert.Equal(t, CodeMalformedFiber, GetCode(wrapped))
	assert.True(t, HasCode(wrapped, CodeMalformedFiber))
	assert.Contains(t, wrapped.Error(), "reading tract.txt")
	assert.Contains(t, wrapped.Error(), "line 3 has 7 values")
}

func TestWrapPlainError(t *testing.T) {
	wrapped := Wrap(fs.ErrNotExist, "open")

	assert.Equal(t, CodeInternalError, GetCode(wrapped))
	assert.True(t, stderrors.Is(wrapped, fs.ErrNotExist))
}

func TestNilPassthrough(t *testing.T) {
	assert.Nil(t, Wrap(nil, "x"))
	assert.Nil(t, Wrapf(nil, "x %d", 1))
	assert.Nil(t, WithCode(CodeOutputWrite, nil, "x"))
	assert.False(t, HasCode(nil, CodeOutputWrite))
	assert.Equal(t, "UNKNOWN", GetCode(stderrors.New("plain")))
}

func TestConstructors(t *testing.T) {
	tests := []struct {
		name string
		err  *AppError
		code string
	}{
		{"input load", InputLoad("field.txt", fs.ErrNotExist), CodeInputLoad},
		{"config", InvalidConfiguration("unknown strategy %q", "max_ec"), CodeInvalidConfiguration},
		{"model", ModelLoad("bad version %d", 2), CodeModelLoad},
		{"shape", FeatureShapeMismatch("fiber 4", 33, 30), CodeFeatureShapeMismatch},
		{"output", OutputWrite("out.json", fs.ErrPermission), CodeOutputWrite},
		{"incomplete", IncompleteResult("missing %d", 1), CodeIncompleteResult},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.NotEmpty(t, tt.err.Error())
		})
	}

	assert.Equal(t, "fiber 4: expected 33 features, got 30", FeatureShapeMismatch("fiber 4", 33, 30).Error())
}
