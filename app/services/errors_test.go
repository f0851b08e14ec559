package services

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindOf(t *testing.T) {
	assert.Equal(t, ErrorKind(""), KindOf(nil))
	assert.Equal(t, ErrorKindTransient, KindOf(errors.New("boom")))

	wrapped := fmt.Errorf("publish: %w", NewPermanentError(ErrTokenExpired.Error(), "expired", 400, ErrTokenExpired))
	assert.True(t, IsPermanent(wrapped))
	assert.ErrorIs(t, wrapped, ErrTokenExpired)

	assert.True(t, IsConfig(NewConfigError("X", "missing")))
	assert.True(t, IsValidation(NewValidationError("X", "bad")))
	assert.False(t, IsTransient(nil))
}

func TestClassifyHTTPStatus(t *testing.T) {
	tests := map[int]ErrorKind{
		http.StatusTooManyRequests:       ErrorKindTransient,
		http.StatusRequestTimeout:        ErrorKindTransient,
		http.StatusBadGateway:            ErrorKindTransient,
		http.StatusUnauthorized:          ErrorKindConfig,
		http.StatusBadRequest:            ErrorKindPermanent,
		http.StatusForbidden:             ErrorKindPermanent,
		http.StatusRequestEntityTooLarge: ErrorKindPermanent,
	}
	for status, want := range tests {
		assert.Equal(t, want, classifyHTTPStatus(status), "status %d", status)
	}
}

func TestDispatchError_Error(t *testing.T) {
	assert.Equal(t, "PUSH_REJECTED (500): busy", (&DispatchError{Code: "PUSH_REJECTED", Message: "busy", StatusCode: 500}).Error())
	assert.Equal(t, "MISSING_IMAGE: no image", NewValidationError("MISSING_IMAGE", "no image").Error())
}
