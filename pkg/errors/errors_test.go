package errors

import (
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestWrap_KeepsKindAndCause(t *testing.T) {
	err := Wrap("mmap", ErrMap, io.ErrUnexpectedEOF)

	assert.True(t, Is(err, ErrMap))
	assert.True(t, Is(err, io.ErrUnexpectedEOF))
	assert.Contains(t, err.Error(), "mmap")
}

func TestWrap_NilCause(t *testing.T) {
	err := Wrap("region create", ErrHandleInUse, nil)

	assert.True(t, Is(err, ErrHandleInUse))
	assert.Equal(t, "region create: region already owns a handle", err.Error())
}

func TestErrorCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, ""},
		{"allocation", Wrap("create", ErrAllocation, io.EOF), CodeAllocation},
		{"invalid size", ErrInvalidSize, CodeAllocation},
		{"map", ErrMap, CodeMap},
		{"size mismatch", ErrSizeMismatch, CodeMap},
		{"init", Wrap("attach", ErrInit, nil), CodeInit},
		{"handle", ErrInvalidHandle, CodeInvalidHandle},
		{"layout", ErrLayoutMismatch, CodeLayout},
		{"state", ErrAlreadyMapped, CodeState},
		{"transfer", ErrTransfer, CodeTransfer},
		{"unsupported", ErrUnsupported, CodeUnsupported},
		{"unknown", io.EOF, CodeInternalError},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, ErrorCode(tc.err))
		})
	}
}

func TestIsRecoverable(t *testing.T) {
	assert.False(t, IsRecoverable(nil))
	assert.True(t, IsRecoverable(Wrap("create", ErrAllocation, io.EOF)))
	assert.True(t, IsRecoverable(ErrMap))
	assert.False(t, IsRecoverable(ErrLayoutMismatch))
	assert.False(t, IsRecoverable(ErrInit))
}
