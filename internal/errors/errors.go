package errors

import (
	"errors"
	"fmt"
	"net/http"
)

// AppError é a interface central para todos os erros customizados do GoMorgue.
// Ela permite que o código externo (Handler) acesse a Categoria e a Mensagem do erro.
type AppError interface {
	Error() string    // Implementa a interface error padrão do Go
	Category() string // Categoria do erro (e.g., "VALIDATION", "NOT_FOUND", "INTERNAL")
	HTTPStatus() int  // Código HTTP sugerido para o Handler
	Unwrap() error    // Permite encapsular erros subjacentes (original error)
}

// Razões possíveis de um PreconditionFailedError.
const (
	ReasonCertificateNotIssued   = "CERTIFICATE_NOT_ISSUED"
	ReasonAlreadyReleased        = "ALREADY_RELEASED"
	ReasonInvalidTransition      = "INVALID_TRANSITION"
	ReasonChamberInactive        = "CHAMBER_INACTIVE"
	ReasonChamberOccupied        = "CHAMBER_OCCUPIED"
	ReasonCapacityBelowOccupancy = "CAPACITY_BELOW_OCCUPANCY"
)

// --- Tipos de Erro Específicos (Erros de Domínio) ---

// ValidationError representa falhas de validação de dados de entrada.
type ValidationError struct {
	Msg string
}

func (e *ValidationError) Error() string    { return fmt.Sprintf("Erro de Validação: %s", e.Msg) }
func (e *ValidationError) Category() string { return "VALIDATION_ERROR" }
func (e *ValidationError) HTTPStatus() int  { return http.StatusBadRequest } // 400
func (e *ValidationError) Unwrap() error    { return nil }                   // Não encapsula erro subjacente

// NewValidationError cria um novo erro de validação.
func NewValidationError(msg string) AppError {
	return &ValidationError{Msg: msg}
}

// NotFoundError representa a ausência de um recurso solicitado (câmara, caso ou guia).
type NotFoundError struct {
	Msg string
}

func (e *NotFoundError) Error() string    { return fmt.Sprintf("Recurso não encontrado: %s", e.Msg) }
func (e *NotFoundError) Category() string { return "NOT_FOUND" }
func (e *NotFoundError) HTTPStatus() int  { return http.StatusNotFound } // 404
func (e *NotFoundError) Unwrap() error    { return nil }

// NewNotFoundError cria um novo erro de recurso não encontrado.
func NewNotFoundError(msg string) AppError {
	return &NotFoundError{Msg: msg}
}

// CapacityExceededError indica que a câmara não possui vaga livre.
type CapacityExceededError struct {
	ChamberCode string
	Capacity    int
}

func (e *CapacityExceededError) Error() string {
	return fmt.Sprintf("Capacidade excedida: a câmara %s está lotada (capacidade %d).", e.ChamberCode, e.Capacity)
}
func (e *CapacityExceededError) Category() string { return "CAPACITY_EXCEEDED" }
func (e *CapacityExceededError) HTTPStatus() int  { return http.StatusConflict } // 409
func (e *CapacityExceededError) Unwrap() error    { return nil }

// NewCapacityExceededError cria um erro de câmara lotada.
func NewCapacityExceededError(chamberCode string, capacity int) AppError {
	return &CapacityExceededError{ChamberCode: chamberCode, Capacity: capacity}
}

// PreconditionFailedError representa uma regra de negócio que impede a operação
// (certidão não emitida, caso já liberado, transição inválida...).
type PreconditionFailedError struct {
	Reason string
	Msg    string
}

func (e *PreconditionFailedError) Error() string {
	return fmt.Sprintf("Pré-condição não atendida (%s): %s", e.Reason, e.Msg)
}
func (e *PreconditionFailedError) Category() string { return "PRECONDITION_FAILED" }
func (e *PreconditionFailedError) HTTPStatus() int  { return http.StatusPreconditionFailed } // 412
func (e *PreconditionFailedError) Unwrap() error    { return nil }

// NewPreconditionFailedError cria um erro de pré-condição com a razão informada.
func NewPreconditionFailedError(reason, msg string) AppError {
	return &PreconditionFailedError{Reason: reason, Msg: msg}
}

// NewCertificateNotIssuedError é um atalho para a razão CERTIFICATE_NOT_ISSUED.
func NewCertificateNotIssuedError(caseCode string) AppError {
	return NewPreconditionFailedError(ReasonCertificateNotIssued,
		fmt.Sprintf("A certidão de óbito do caso %s ainda não foi emitida.", caseCode))
}

// NewAlreadyReleasedError é um atalho para a razão ALREADY_RELEASED.
func NewAlreadyReleasedError(caseCode string) AppError {
	return NewPreconditionFailedError(ReasonAlreadyReleased,
		fmt.Sprintf("O caso %s já foi liberado.", caseCode))
}

// NewInvalidTransitionError é um atalho para a razão INVALID_TRANSITION.
func NewInvalidTransitionError(caseCode, from, to string) AppError {
	return NewPreconditionFailedError(ReasonInvalidTransition,
		fmt.Sprintf("O caso %s não pode passar de %s para %s.", caseCode, from, to))
}

// ConflictError representa a violação de unicidade de um recurso (e.g., código de câmara repetido).
type ConflictError struct {
	Msg string
}

func (e *ConflictError) Error() string    { return fmt.Sprintf("Conflito: %s", e.Msg) }
func (e *ConflictError) Category() string { return "CONFLICT" }
func (e *ConflictError) HTTPStatus() int  { return http.StatusConflict } // 409
func (e *ConflictError) Unwrap() error    { return nil }

// NewConflictError cria um novo erro de conflito.
func NewConflictError(msg string) AppError {
	return &ConflictError{Msg: msg}
}

// ConcurrencyConflictError representa o esgotamento das tentativas de uma transação
// que sofreu conflitos de escrita (serialização ou deadlock).
type ConcurrencyConflictError struct {
	Msg string
	Err error
}

func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("Conflito de concorrência: %s", e.Msg)
}
func (e *ConcurrencyConflictError) Category() string { return "CONCURRENCY_CONFLICT" }
func (e *ConcurrencyConflictError) HTTPStatus() int  { return http.StatusConflict } // 409
func (e *ConcurrencyConflictError) Unwrap() error    { return e.Err }

// NewConcurrencyConflictError cria um erro de conflito de concorrência.
func NewConcurrencyConflictError(msg string, err error) AppError {
	return &ConcurrencyConflictError{Msg: msg, Err: err}
}

// InvariantViolationError sinaliza um estado que nunca deveria ocorrer com chamadores corretos
// (e.g., liberar uma vaga de uma câmara com ocupação zero).
type InvariantViolationError struct {
	Msg string
}

func (e *InvariantViolationError) Error() string    { return fmt.Sprintf("Invariante violada: %s", e.Msg) }
func (e *InvariantViolationError) Category() string { return "INVARIANT_VIOLATION" }
func (e *InvariantViolationError) HTTPStatus() int  { return http.StatusInternalServerError } // 500
func (e *InvariantViolationError) Unwrap() error    { return nil }

// NewInvariantViolationError cria um erro de invariante violada.
func NewInvariantViolationError(msg string) AppError {
	return &InvariantViolationError{Msg: msg}
}

// UnauthorizedError representa falhas de autenticação/autorização.
type UnauthorizedError struct {
	Msg string
}

func (e *UnauthorizedError) Error() string    { return fmt.Sprintf("Não autorizado: %s", e.Msg) }
func (e *UnauthorizedError) Category() string { return "UNAUTHORIZED" }
func (e *UnauthorizedError) HTTPStatus() int  { return http.StatusUnauthorized } // 401
func (e *UnauthorizedError) Unwrap() error    { return nil }

// NewUnauthorizedError cria um novo erro de autorização.
func NewUnauthorizedError(msg string) AppError {
	return &UnauthorizedError{Msg: msg}
}

// --- Tipos de Erro de Infraestrutura (Encapsulamento) ---

// InternalError representa falhas inesperadas no servidor, serviço ou repositório.
type InternalError struct {
	Msg string
	Err error // Erro original subjacente (e.g., erro do driver SQL)
}

func (e *InternalError) Error() string    { return fmt.Sprintf("Erro Interno: %s", e.Msg) }
func (e *InternalError) Category() string { return "INTERNAL_ERROR" }
func (e *InternalError) HTTPStatus() int  { return http.StatusInternalServerError } // 500
func (e *InternalError) Unwrap() error    { return e.Err }

// NewInternalError cria um erro de servidor (para falhas de lógica ou código não esperado).
func NewInternalError(msg string, err error) AppError {
	return &InternalError{Msg: msg, Err: err}
}

// NewDBError é um atalho para criar um InternalError específico de falhas no DB.
func NewDBError(msg string, err error) AppError {
	return NewInternalError(fmt.Sprintf("%s (DB): %s", msg, err.Error()), err)
}

// Wrap mantém erros já tipados e encapsula os demais em um InternalError com a mensagem dada.
func Wrap(err error, msg string) error {
	if err == nil {
		return nil
	}
	var appErr AppError
	if errors.As(err, &appErr) {
		return err
	}
	return NewInternalError(msg, err)
}

// --- Helper para o Handler (Tradução Final) ---

// MapToHTTPStatus recebe um erro e o traduz para o código HTTP e corpo de resposta.
func MapToHTTPStatus(err error) (int, string, string) {
	var appErr AppError
	if errors.As(err, &appErr) {
		// O erro é tipado (ValidationError, NotFoundError, etc.)
		return appErr.HTTPStatus(), appErr.Category(), appErr.Error()
	}

	// Erro não tipado (e.g., erro simples de pacote Go que não implementa AppError)
	return http.StatusInternalServerError, "UNKNOWN_ERROR", "Ocorreu um erro inesperado."
}

// ReasonOf retorna a razão de um PreconditionFailedError, ou "" para outros erros.
func ReasonOf(err error) string {
	var pf *PreconditionFailedError
	if errors.As(err, &pf) {
		return pf.Reason
	}
	return ""
}
