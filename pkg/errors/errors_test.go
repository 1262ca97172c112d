package errors

import (
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodeMapping(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NotFound("patient", nil), http.StatusNotFound},
		{InvalidToken("bad link", nil), http.StatusBadRequest},
		{Expired("expired"), http.StatusBadRequest},
		{AlreadyUsed("used"), http.StatusBadRequest},
		{AlreadyActivated("active"), http.StatusBadRequest},
		{AlreadyCompleted("done"), http.StatusBadRequest},
		{Conflict("dup"), http.StatusConflict},
		{Forbidden("no"), http.StatusForbidden},
		{Validation("short"), http.StatusBadRequest},
		{Storage("insert", fmt.Errorf("x")), http.StatusServiceUnavailable},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Internal(fmt.Errorf("boom")), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.StatusCode(), string(tc.err.Code))
	}
}

func TestCodeOfWrapped(t *testing.T) {
	err := fmt.Errorf("activate: %w", Expired("activation link has expired"))

	assert.Equal(t, ErrExpired, CodeOf(err))
	assert.True(t, HasCode(err, ErrExpired))
	assert.False(t, HasCode(err, ErrAlreadyUsed))
	assert.Equal(t, ErrInternal, CodeOf(fmt.Errorf("plain")))
	assert.False(t, HasCode(nil, ErrInternal))
}

func TestIsMatchesByCode(t *testing.T) {
	err := fmt.Errorf("wrap: %w", Conflict("relative account already exists for this email"))

	assert.True(t, Is(err, Conflict("")))
	assert.False(t, Is(err, Validation("")))
}

func TestErrorStringIncludesCause(t *testing.T) {
	err := Storage("store token", fmt.Errorf("connection refused"))
	assert.Equal(t, "store token failed: connection refused", err.Error())
	assert.Equal(t, "conflict", Conflict("conflict").Error())
}
