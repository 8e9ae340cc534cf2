package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAppError_Error(t *testing.T) {
	cause := errors.New("connection refused")

	assert.Equal(t, "not here", NotFound("not here").Error())
	assert.Equal(t, "lookup failed: connection refused", Wrap(cause, ErrCodeUnavailable, "lookup failed").Error())
	assert.Equal(t, "role u-1 rejected: connection refused", Wrapf(cause, ErrCodeInternal, "role %s rejected", "u-1").Error())
}

func TestWrap(t *testing.T) {
	cause := errors.New("boom")
	err := fmt.Errorf("outer: %w", Wrap(cause, ErrCodeTimeout, "slow"))

	assert.ErrorIs(t, err, cause)
	assert.True(t, IsTimeout(err))
	assert.False(t, IsNotFound(err))
	assert.Nil(t, Wrap(nil, ErrCodeInternal, "unused"))
}

func TestPredicatesAndAccessors(t *testing.T) {
	v := ValidationField("role", "bad role")
	assert.True(t, IsValidation(v))
	assert.Equal(t, "role", GetField(v))
	assert.Equal(t, ErrCodeValidation, GetCode(v))

	assert.True(t, IsNotFound(NotFound("x")))
	assert.True(t, IsUnavailable(Wrap(errors.New("x"), ErrCodeUnavailable, "down")))
	assert.Empty(t, GetCode(errors.New("plain")))
	assert.Empty(t, GetField(Validation("no field")))
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{NotFound("x"), http.StatusNotFound},
		{&AppError{Code: ErrCodeConflict}, http.StatusConflict},
		{Validation("x"), http.StatusBadRequest},
		{&AppError{Code: ErrCodeUnavailable}, http.StatusServiceUnavailable},
		{&AppError{Code: ErrCodeTimeout}, http.StatusGatewayTimeout},
		{&AppError{Code: ErrCodeCanceled}, 499},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(tt.err), tt.err.Error())
	}
}
