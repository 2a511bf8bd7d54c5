package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAppError_ErrorString(t *testing.T) {
	withCause := &AppError{Code: "INTERNAL_ERROR", Message: "something broke", Err: fmt.Errorf("db connection lost")}
	assert.Equal(t, "INTERNAL_ERROR: something broke: db connection lost", withCause.Error())

	bare := &AppError{Code: "NOT_FOUND", Message: "book not found"}
	assert.Equal(t, "NOT_FOUND: book not found", bare.Error())
}

func TestConstructors_StatusAndSentinel(t *testing.T) {
	tests := []struct {
		name     string
		err      *AppError
		code     string
		status   int
		sentinel error
	}{
		{"not found", NotFound("book", "b-1"), "NOT_FOUND", http.StatusNotFound, ErrNotFound},
		{"already exists", AlreadyExists("user", "email", "a@b.c"), "ALREADY_EXISTS", http.StatusConflict, ErrAlreadyExists},
		{"invalid input", InvalidInput("bad"), "INVALID_INPUT", http.StatusBadRequest, ErrInvalidInput},
		{"validation", Validation("rating must be between 1 and 5"), "VALIDATION_ERROR", http.StatusBadRequest, ErrInvalidInput},
		{"unauthorized", Unauthorized("no token"), "UNAUTHORIZED", http.StatusUnauthorized, ErrUnauthorized},
		{"forbidden", Forbidden("not yours"), "FORBIDDEN", http.StatusForbidden, ErrForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.code, tt.err.Code)
			assert.Equal(t, tt.status, tt.err.Status)
			assert.ErrorIs(t, tt.err, tt.sentinel)
			assert.Equal(t, tt.status, HTTPStatus(tt.err))
		})
	}
}

func TestNotFound_Message(t *testing.T) {
	err := NotFound("review", "r-42")
	assert.Equal(t, "review with id r-42 not found", err.Message)
}

func TestDuplicate_KeepsGenericSentinel(t *testing.T) {
	specific := fmt.Errorf("%w: pair taken", ErrAlreadyExists)
	err := Duplicate("DUPLICATE_REVIEW", "already reviewed", specific)

	assert.Equal(t, "DUPLICATE_REVIEW", err.Code)
	assert.Equal(t, http.StatusConflict, err.Status)
	assert.ErrorIs(t, err, specific)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestDuplicate_NilCause(t *testing.T) {
	err := Duplicate("DUP", "dup", nil)
	assert.ErrorIs(t, err, ErrAlreadyExists)
}

func TestInternal_HidesCause(t *testing.T) {
	cause := errors.New("pool exhausted")
	err := Internal(cause)
	assert.Equal(t, "an internal error occurred", err.Message)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(err))
}

func TestHTTPStatus_WrappedSentinels(t *testing.T) {
	assert.Equal(t, http.StatusNotFound, HTTPStatus(Wrap(ErrNotFound, "get book")))
	assert.Equal(t, http.StatusConflict, HTTPStatus(Wrap(ErrConflict, "update")))
	assert.Equal(t, http.StatusForbidden, HTTPStatus(fmt.Errorf("retract: %w", ErrForbidden)))
	assert.Equal(t, http.StatusInternalServerError, HTTPStatus(errors.New("boom")))
}

func TestHTTPStatus_WrappedAppError(t *testing.T) {
	err := fmt.Errorf("submit review: %w", Forbidden("nope"))
	require.Equal(t, http.StatusForbidden, HTTPStatus(err))
}
