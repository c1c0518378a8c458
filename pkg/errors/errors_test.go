package errors

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatusCodes(t *testing.T) {
	cases := []struct {
		err  *AppError
		want int
	}{
		{NotFound("report", nil), http.StatusNotFound},
		{Validation("invalid report"), http.StatusBadRequest},
		{InvalidTransition("report", "sign", "draft"), http.StatusConflict},
		{Conflict("report"), http.StatusConflict},
		{InvalidCertificate("malformed envelope"), http.StatusUnprocessableEntity},
		{Integrity("sequence collision", nil), http.StatusInternalServerError},
		{Unauthorized(nil), http.StatusUnauthorized},
		{Internal(errors.New("connection reset")), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, tc.err.StatusCode(), tc.err.Message)
	}
}

func TestErrorIncludesViolations(t *testing.T) {
	err := Validation("invalid encounter",
		FieldViolation{Field: "reason", Message: "reason is required"},
		FieldViolation{Field: "duration_minutes", Message: "out of range"},
	)

	assert.Contains(t, err.Error(), "reason: reason is required")
	assert.Contains(t, err.Error(), "duration_minutes: out of range")
}

func TestIsCodeThroughWrapping(t *testing.T) {
	err := fmt.Errorf("handling request: %w", NotFound("encounter", nil))

	assert.True(t, IsCode(err, ErrNotFound))
	assert.False(t, IsCode(err, ErrConflict))
	assert.False(t, IsCode(errors.New("plain"), ErrNotFound))
}

func TestFrom(t *testing.T) {
	appErr := Conflict("report")
	assert.Same(t, appErr, From(fmt.Errorf("wrapped: %w", appErr)))

	plain := errors.New("boom")
	converted := From(plain)
	assert.Equal(t, ErrInternal, converted.Code)
	assert.ErrorIs(t, converted, plain)
}

func TestCodeStrings(t *testing.T) {
	assert.Equal(t, "invalid_transition", ErrInvalidTransition.String())
	assert.Equal(t, "invalid_certificate", ErrInvalidCertificate.String())
	assert.Equal(t, "internal", ErrInternal.String())
}
