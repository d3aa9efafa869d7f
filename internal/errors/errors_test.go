package errors_test

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	apperror "gomorgue/internal/errors"
)

func TestMapToHTTPStatus_TypedErrors(t *testing.T) {
	cases := []struct {
		name     string
		err      error
		status   int
		category string
	}{
		{"validation", apperror.NewValidationError("x"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{"not found", apperror.NewNotFoundError("x"), http.StatusNotFound, "NOT_FOUND"},
		{"capacity", apperror.NewCapacityExceededError("A", 2), http.StatusConflict, "CAPACITY_EXCEEDED"},
		{"precondition", apperror.NewCertificateNotIssuedError("OB-2026-00001"), http.StatusPreconditionFailed, "PRECONDITION_FAILED"},
		{"concurrency", apperror.NewConcurrencyConflictError("x", nil), http.StatusConflict, "CONCURRENCY_CONFLICT"},
		{"conflict", apperror.NewConflictError("x"), http.StatusConflict, "CONFLICT"},
		{"invariant", apperror.NewInvariantViolationError("x"), http.StatusInternalServerError, "INVARIANT_VIOLATION"},
		{"unauthorized", apperror.NewUnauthorizedError("x"), http.StatusUnauthorized, "UNAUTHORIZED"},
		{"internal", apperror.NewInternalError("x", errors.New("boom")), http.StatusInternalServerError, "INTERNAL_ERROR"},
		{"wrapped", fmt.Errorf("contexto: %w", apperror.NewNotFoundError("x")), http.StatusNotFound, "NOT_FOUND"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			status, category, message := apperror.MapToHTTPStatus(tc.err)
			assert.Equal(t, tc.status, status)
			assert.Equal(t, tc.category, category)
			assert.NotEmpty(t, message)
		})
	}
}

func TestMapToHTTPStatus_UntypedError(t *testing.T) {
	status, category, message := apperror.MapToHTTPStatus(errors.New("falha qualquer"))

	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, "UNKNOWN_ERROR", category)
	assert.Equal(t, "Ocorreu um erro inesperado.", message)
}

func TestReasonOf(t *testing.T) {
	assert.Equal(t, apperror.ReasonAlreadyReleased, apperror.ReasonOf(apperror.NewAlreadyReleasedError("OB-2026-00001")))
	assert.Equal(t, apperror.ReasonInvalidTransition, apperror.ReasonOf(apperror.NewInvalidTransitionError("OB-2026-00001", "ADMITTED", "RELEASED")))
	assert.Empty(t, apperror.ReasonOf(apperror.NewNotFoundError("x")))
}

func TestWrap(t *testing.T) {
	typed := apperror.NewCapacityExceededError("A", 1)
	assert.Same(t, typed, apperror.Wrap(typed, "ignorado"))

	raw := errors.New("driver caiu")
	wrapped := apperror.Wrap(raw, "Falha interna.")
	assert.IsType(t, &apperror.InternalError{}, wrapped)
	assert.ErrorIs(t, wrapped, raw)

	assert.NoError(t, apperror.Wrap(nil, "nada"))
}

func TestNewDBError_KeepsCause(t *testing.T) {
	cause := errors.New("connection reset")
	err := apperror.NewDBError("Falha ao buscar câmara", cause)

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "(DB): connection reset")
}
