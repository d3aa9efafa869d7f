package validation

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"

	apperror "gomorgue/internal/errors"
)

// Validator valida structs com tags `validate` e devolve ValidationError legível.
type Validator struct {
	v *validator.Validate
}

// New cria o validador usando os nomes das tags json nos erros.
func New() *Validator {
	v := validator.New(validator.WithRequiredStructEnabled())
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &Validator{v: v}
}

// Struct valida s. Erros de regra viram um único apperror.ValidationError.
func (val *Validator) Struct(s interface{}) error {
	err := val.v.Struct(s)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) {
		return apperror.NewValidationError(err.Error())
	}

	msgs := make([]string, 0, len(fieldErrs))
	for _, fe := range fieldErrs {
		msgs = append(msgs, fmt.Sprintf("%s: %s", fe.Field(), message(fe)))
	}
	return apperror.NewValidationError(strings.Join(msgs, "; "))
}

func message(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "campo obrigatório"
	case "max":
		if fe.Kind() == reflect.String {
			return "deve ter no máximo " + fe.Param() + " caracteres"
		}
		return "deve ser no máximo " + fe.Param()
	case "gt":
		return "deve ser maior que " + fe.Param()
	case "gte":
		return "deve ser maior ou igual a " + fe.Param()
	case "oneof":
		return "deve ser um de: " + fe.Param()
	default:
		return "valor inválido"
	}
}
