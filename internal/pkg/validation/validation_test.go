package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
)

func TestStruct_ValidAdmission(t *testing.T) {
	v := New()

	err := v.Struct(domain.CaseAdmission{DeceasedName: "Maria da Silva", ChamberCode: "A"})

	assert.NoError(t, err)
}

func TestStruct_ReportsJSONFieldNames(t *testing.T) {
	v := New()

	err := v.Struct(domain.CaseAdmission{Origin: strings.Repeat("x", 101)})

	var vErr *apperror.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Msg, "deceased_name: campo obrigatório")
	assert.Contains(t, vErr.Msg, "chamber_code: campo obrigatório")
	assert.Contains(t, vErr.Msg, "origin: deve ter no máximo 100 caracteres")
}

func TestStruct_NumericRules(t *testing.T) {
	v := New()

	err := v.Struct(domain.Chamber{Code: "A", Capacity: 0})

	var vErr *apperror.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Msg, "capacity: deve ser maior que 0")
}

func TestStruct_RecipientRequiresDestination(t *testing.T) {
	v := New()

	err := v.Struct(domain.Recipient{Name: "João", Document: "123"})

	var vErr *apperror.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.Msg, "destination")
}
