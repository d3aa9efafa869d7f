package exitguide

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gomorgue/internal/api/response"
	"gomorgue/internal/domain"
	"gomorgue/internal/pkg/logger"
)

// ExitGuideService define o contrato que o Handler espera da camada de Serviço.
type ExitGuideService interface {
	Issue(ctx context.Context, caseCode string, recipient domain.Recipient) (domain.ExitGuide, error)
	GetByCase(ctx context.Context, caseCode string) (domain.ExitGuide, error)
}

// Handler agrupa os métodos de Handler de guias de saída.
type Handler struct {
	Service ExitGuideService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc ExitGuideService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

// Register registra as rotas de guias de saída.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/cases/{code}/exit-guide", h.IssueHandler)
	r.Get("/v1/cases/{code}/exit-guide", h.GetHandler)
}

// IssueHandler lida com a requisição POST /v1/cases/{code}/exit-guide.
// @Summary Emite a guia de saída
// @Description Exige certidão de óbito registrada. Libera a vaga da câmara e finaliza o caso como RELEASED.
// @Tags exit-guides
// @Accept json
// @Produce json
// @Param code path string true "Código do caso"
// @Param recipient body domain.Recipient true "Dados de quem retira o corpo"
// @Success 201 {object} domain.ExitGuide
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 404 {object} domain.ErrorResponse "Caso não encontrado"
// @Failure 412 {object} domain.ErrorResponse "CERTIFICATE_NOT_ISSUED ou ALREADY_RELEASED"
// @Security ApiKeyAuth
// @Router /cases/{code}/exit-guide [post]
func (h *Handler) IssueHandler(w http.ResponseWriter, r *http.Request) {
	var recipient domain.Recipient
	if err := response.Decode(w, r, &recipient); err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusBadRequest)
		return
	}

	guide, err := h.Service.Issue(r.Context(), chi.URLParam(r, "code"), recipient)
	response.Handle(w, r, h.Logger, guide, err, http.StatusCreated)
}

// GetHandler lida com a requisição GET /v1/cases/{code}/exit-guide.
// @Summary Obtém a guia de saída de um caso
// @Tags exit-guides
// @Produce json
// @Param code path string true "Código do caso"
// @Success 200 {object} domain.ExitGuide
// @Failure 404 {object} domain.ErrorResponse "Guia não encontrada"
// @Security ApiKeyAuth
// @Router /cases/{code}/exit-guide [get]
func (h *Handler) GetHandler(w http.ResponseWriter, r *http.Request) {
	guide, err := h.Service.GetByCase(r.Context(), chi.URLParam(r, "code"))
	response.Handle(w, r, h.Logger, guide, err, http.StatusOK)
}
