// Package response padroniza a escrita de respostas JSON e de erros dos handlers.
package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/logger"
)

// Handle processa o resultado do serviço: data com successStatus, ou err traduzido para o corpo de erro padrão.
func Handle(w http.ResponseWriter, r *http.Request, log logger.Logger, data interface{}, err error, successStatus int) {
	if err == nil {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(successStatus)
		if data != nil {
			if jsonErr := json.NewEncoder(w).Encode(data); jsonErr != nil {
				log.Error("Falha ao codificar JSON de resposta", jsonErr)
			}
		}
		return
	}

	status, category, message := apperror.MapToHTTPStatus(err)

	if status >= 500 {
		log.Error(fmt.Sprintf("Erro de Servidor: %s", category), err)
	} else {
		log.Debug(fmt.Sprintf("Requisição rejeitada com status %d. Categoria: %s", status, category), map[string]interface{}{"path": r.URL.Path})
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(domain.ErrorResponse{
		Code:     status,
		Category: category,
		Reason:   apperror.ReasonOf(err),
		Message:  message,
	})
}

// MaxBodyBytes é o maior corpo de requisição aceito por Decode.
const MaxBodyBytes = 64 << 10

// Decode lê o corpo JSON em dst. Campos desconhecidos e corpos acima de MaxBodyBytes são rejeitados.
func Decode(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, MaxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return apperror.NewValidationError(fmt.Sprintf("Payload excede o limite de %d bytes.", MaxBodyBytes))
		}
		return apperror.NewValidationError("Payload inválido. Verifique o formato JSON.")
	}
	return nil
}
