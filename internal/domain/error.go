package domain

// ErrorResponse é a estrutura padronizada para respostas de erro na API.
// @Description Estrutura padronizada para respostas de erro na API.
type ErrorResponse struct {
	Code     int    `json:"code" example:"409"`
	Category string `json:"category" example:"CAPACITY_EXCEEDED"`
	Reason   string `json:"reason,omitempty" example:"CERTIFICATE_NOT_ISSUED"`
	Message  string `json:"message" example:"Capacidade excedida: a câmara A está lotada (capacidade 2)."`
}
