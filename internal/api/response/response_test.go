package response

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperror "gomorgue/internal/errors"
)

type payload struct {
	Name string `json:"name"`
}

func TestDecode_ValidBody(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Maria"}`))

	var p payload
	require.NoError(t, Decode(httptest.NewRecorder(), req, &p))

	assert.Equal(t, "Maria", p.Name)
}

func TestDecode_UnknownFieldIsValidationError(t *testing.T) {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"name":"Maria","extra":1}`))

	var p payload
	err := Decode(httptest.NewRecorder(), req, &p)

	var vErr *apperror.ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestDecode_OversizedBodyIsRejected(t *testing.T) {
	body := `{"name":"` + strings.Repeat("a", MaxBodyBytes) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))

	var p payload
	err := Decode(httptest.NewRecorder(), req, &p)

	var vErr *apperror.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, err.Error(), "limite")
	assert.Empty(t, p.Name)
}
