package chamber

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"

	"gomorgue/internal/api/response"
	"gomorgue/internal/domain"
	"gomorgue/internal/pkg/logger"
)

// ChamberService define o contrato que o Handler espera da camada de Serviço.
type ChamberService interface {
	Occupancy(ctx context.Context, code string) ([]domain.ChamberOccupancy, error)
	CreateChamber(ctx context.Context, c domain.Chamber) (domain.Chamber, error)
	UpdateCapacity(ctx context.Context, code string, req domain.CapacityUpdateRequest) (domain.Chamber, error)
	Deactivate(ctx context.Context, code string) (domain.Chamber, error)
	Activate(ctx context.Context, code string) (domain.Chamber, error)
}

// Handler agrupa todos os métodos de Handler de câmaras.
type Handler struct {
	Service ChamberService
	Logger  logger.Logger
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc ChamberService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log}
}

// Register registra as rotas de câmaras. adminOnly protege as rotas de administração.
func (h *Handler) Register(r chi.Router, adminOnly ...func(http.Handler) http.Handler) {
	r.Get("/v1/chambers", h.OccupancyHandler)

	admin := r.With(adminOnly...)
	admin.Post("/v1/chambers", h.CreateChamberHandler)
	admin.Put("/v1/chambers/{code}/capacity", h.UpdateCapacityHandler)
	admin.Post("/v1/chambers/{code}/deactivate", h.DeactivateHandler)
	admin.Post("/v1/chambers/{code}/activate", h.ActivateHandler)
}

// OccupancyHandler lida com a requisição GET /v1/chambers.
// @Summary Ocupação das câmaras
// @Description Lista capacidade, ocupação e vagas livres. Com ?code=, retorna apenas a câmara informada.
// @Tags chambers
// @Produce json
// @Param code query string false "Código da câmara"
// @Success 200 {array} domain.ChamberOccupancy
// @Failure 404 {object} domain.ErrorResponse "Câmara não encontrada"
// @Router /chambers [get]
func (h *Handler) OccupancyHandler(w http.ResponseWriter, r *http.Request) {
	result, err := h.Service.Occupancy(r.Context(), r.URL.Query().Get("code"))
	response.Handle(w, r, h.Logger, result, err, http.StatusOK)
}

// CreateChamberHandler lida com a requisição POST /v1/chambers.
// @Summary Cadastra uma câmara
// @Tags chambers
// @Accept json
// @Produce json
// @Param chamber body domain.Chamber true "Código, nome e capacidade"
// @Success 201 {object} domain.Chamber
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 409 {object} domain.ErrorResponse "Câmara já existe"
// @Security ApiKeyAuth
// @Router /chambers [post]
func (h *Handler) CreateChamberHandler(w http.ResponseWriter, r *http.Request) {
	var c domain.Chamber
	if err := response.Decode(w, r, &c); err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusBadRequest)
		return
	}

	created, err := h.Service.CreateChamber(r.Context(), c)
	response.Handle(w, r, h.Logger, created, err, http.StatusCreated)
}

// UpdateCapacityHandler lida com a requisição PUT /v1/chambers/{code}/capacity.
// @Summary Altera a capacidade
// @Tags chambers
// @Accept json
// @Produce json
// @Param code path string true "Código da câmara"
// @Param body body domain.CapacityUpdateRequest true "Nova capacidade"
// @Success 200 {object} domain.Chamber
// @Failure 404 {object} domain.ErrorResponse
// @Failure 412 {object} domain.ErrorResponse "CAPACITY_BELOW_OCCUPANCY"
// @Security ApiKeyAuth
// @Router /chambers/{code}/capacity [put]
func (h *Handler) UpdateCapacityHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.CapacityUpdateRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusBadRequest)
		return
	}

	updated, err := h.Service.UpdateCapacity(r.Context(), chi.URLParam(r, "code"), req)
	response.Handle(w, r, h.Logger, updated, err, http.StatusOK)
}

// DeactivateHandler lida com a requisição POST /v1/chambers/{code}/deactivate.
// @Summary Desativa uma câmara vazia
// @Tags chambers
// @Produce json
// @Param code path string true "Código da câmara"
// @Success 200 {object} domain.Chamber
// @Failure 412 {object} domain.ErrorResponse "CHAMBER_OCCUPIED"
// @Security ApiKeyAuth
// @Router /chambers/{code}/deactivate [post]
func (h *Handler) DeactivateHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.Deactivate(r.Context(), chi.URLParam(r, "code"))
	response.Handle(w, r, h.Logger, updated, err, http.StatusOK)
}

// ActivateHandler lida com a requisição POST /v1/chambers/{code}/activate.
// @Summary Reativa uma câmara
// @Tags chambers
// @Produce json
// @Param code path string true "Código da câmara"
// @Success 200 {object} domain.Chamber
// @Security ApiKeyAuth
// @Router /chambers/{code}/activate [post]
func (h *Handler) ActivateHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.Activate(r.Context(), chi.URLParam(r, "code"))
	response.Handle(w, r, h.Logger, updated, err, http.StatusOK)
}
