package registrycase

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"gomorgue/internal/api/response"
	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/logger"
)

const dateLayout = "2006-01-02"

// defaultStatsWindow é o período usado quando from não é informado.
const defaultStatsWindow = 30 * 24 * time.Hour

// CaseService define o contrato que o Handler espera da camada de Serviço.
type CaseService interface {
	Create(ctx context.Context, in domain.CaseAdmission) (domain.RegistryCase, error)
	Get(ctx context.Context, code string) (domain.RegistryCase, error)
	List(ctx context.Context, filter domain.CaseFilter) ([]domain.RegistryCase, int, error)
	StartConservation(ctx context.Context, code string) (domain.RegistryCase, error)
	MarkDocumentationReady(ctx context.Context, code string) (domain.RegistryCase, error)
	RecordDeathCertificate(ctx context.Context, code string) (domain.RegistryCase, error)
	ChangeChamber(ctx context.Context, code string, req domain.ChamberChangeRequest) (domain.RegistryCase, error)
	Stats(ctx context.Context, from, to time.Time) (domain.CaseStats, error)
}

// CaseList é a página retornada por GET /v1/cases.
type CaseList struct {
	Data  []domain.RegistryCase `json:"data"`
	Total int                   `json:"total"`
	Page  int                   `json:"page"`
	Limit int                   `json:"limit"`
}

// Handler agrupa todos os métodos de Handler do registro de óbitos.
type Handler struct {
	Service CaseService
	Logger  logger.Logger
	now     func() time.Time
}

// NewHandler cria uma nova instância do Handler, injetando o Service e o Logger.
func NewHandler(svc CaseService, log logger.Logger) *Handler {
	return &Handler{Service: svc, Logger: log, now: time.Now}
}

// Register registra as rotas de casos.
func (h *Handler) Register(r chi.Router) {
	r.Post("/v1/cases", h.CreateCaseHandler)
	r.Get("/v1/cases", h.ListCasesHandler)
	r.Get("/v1/cases/stats", h.StatsHandler)
	r.Get("/v1/cases/{code}", h.GetCaseHandler)
	r.Put("/v1/cases/{code}/chamber", h.ChangeChamberHandler)
	r.Post("/v1/cases/{code}/conservation", h.StartConservationHandler)
	r.Post("/v1/cases/{code}/documentation-ready", h.DocumentationReadyHandler)
	r.Post("/v1/cases/{code}/death-certificate", h.DeathCertificateHandler)
}

// CreateCaseHandler lida com a requisição POST /v1/cases.
// @Summary Admite um caso
// @Description Reserva uma vaga na câmara, gera o código OB-<ano>-<NNNNN> e registra o caso como ADMITTED.
// @Tags cases
// @Accept json
// @Produce json
// @Param case body domain.CaseAdmission true "Dados da admissão"
// @Success 201 {object} domain.RegistryCase
// @Failure 400 {object} domain.ErrorResponse "Payload inválido"
// @Failure 404 {object} domain.ErrorResponse "Câmara não encontrada"
// @Failure 409 {object} domain.ErrorResponse "CAPACITY_EXCEEDED"
// @Security ApiKeyAuth
// @Router /cases [post]
func (h *Handler) CreateCaseHandler(w http.ResponseWriter, r *http.Request) {
	var in domain.CaseAdmission
	if err := response.Decode(w, r, &in); err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusBadRequest)
		return
	}

	created, err := h.Service.Create(r.Context(), in)
	response.Handle(w, r, h.Logger, created, err, http.StatusCreated)
}

// GetCaseHandler lida com a requisição GET /v1/cases/{code}.
// @Summary Obtém um caso
// @Tags cases
// @Produce json
// @Param code path string true "Código do caso"
// @Success 200 {object} domain.RegistryCase
// @Failure 404 {object} domain.ErrorResponse "Caso não encontrado"
// @Security ApiKeyAuth
// @Router /cases/{code} [get]
func (h *Handler) GetCaseHandler(w http.ResponseWriter, r *http.Request) {
	c, err := h.Service.Get(r.Context(), chi.URLParam(r, "code"))
	response.Handle(w, r, h.Logger, c, err, http.StatusOK)
}

// ListCasesHandler lida com a requisição GET /v1/cases.
// @Summary Lista casos
// @Tags cases
// @Produce json
// @Param status query string false "Status do caso"
// @Param chamber query string false "Código da câmara"
// @Param page query int false "Página (padrão 1)"
// @Param limit query int false "Itens por página (padrão 50, máximo 200)"
// @Success 200 {object} CaseList
// @Failure 400 {object} domain.ErrorResponse
// @Security ApiKeyAuth
// @Router /cases [get]
func (h *Handler) ListCasesHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := domain.CaseFilter{
		Status:      domain.CaseStatus(q.Get("status")),
		ChamberCode: q.Get("chamber"),
	}

	var err error
	if filter.Page, err = intParam(q.Get("page")); err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusOK)
		return
	}
	if filter.Limit, err = intParam(q.Get("limit")); err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusOK)
		return
	}
	filter = filter.Normalize()

	cases, total, err := h.Service.List(r.Context(), filter)
	if err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusOK)
		return
	}
	if cases == nil {
		cases = []domain.RegistryCase{}
	}
	response.Handle(w, r, h.Logger, CaseList{Data: cases, Total: total, Page: filter.Page, Limit: filter.Limit}, nil, http.StatusOK)
}

func intParam(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, apperror.NewValidationError(fmt.Sprintf("Parâmetro numérico inválido: %q.", raw))
	}
	return n, nil
}

// StatsHandler lida com a requisição GET /v1/cases/stats.
// @Summary Estatísticas de casos
// @Description Contagem por status dos casos admitidos em [from, to) e tempo médio em conservação dos liberados.
// @Description Datas em RFC3339 ou YYYY-MM-DD; um to só com data inclui o dia inteiro.
// @Tags cases
// @Produce json
// @Param from query string false "Início (padrão: to - 30 dias)"
// @Param to query string false "Fim exclusivo (padrão: agora)"
// @Success 200 {object} domain.CaseStats
// @Failure 400 {object} domain.ErrorResponse "Data inválida"
// @Security ApiKeyAuth
// @Router /cases/stats [get]
func (h *Handler) StatsHandler(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	to := h.now().UTC()
	if raw := q.Get("to"); raw != "" {
		parsed, dateOnly, err := parseDate(raw)
		if err != nil {
			response.Handle(w, r, h.Logger, nil, err, http.StatusOK)
			return
		}
		if dateOnly {
			parsed = parsed.AddDate(0, 0, 1)
		}
		to = parsed
	}

	from := to.Add(-defaultStatsWindow)
	if raw := q.Get("from"); raw != "" {
		parsed, _, err := parseDate(raw)
		if err != nil {
			response.Handle(w, r, h.Logger, nil, err, http.StatusOK)
			return
		}
		from = parsed
	}

	stats, err := h.Service.Stats(r.Context(), from, to)
	response.Handle(w, r, h.Logger, stats, err, http.StatusOK)
}

// parseDate aceita RFC3339 ou YYYY-MM-DD (meia-noite UTC).
func parseDate(raw string) (t time.Time, dateOnly bool, err error) {
	if t, err = time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), false, nil
	}
	if t, err = time.Parse(dateLayout, raw); err == nil {
		return t, true, nil
	}
	return time.Time{}, false, apperror.NewValidationError(fmt.Sprintf("Data inválida: %q. Use RFC3339 ou YYYY-MM-DD.", raw))
}

// ChangeChamberHandler lida com a requisição PUT /v1/cases/{code}/chamber.
// @Summary Troca o caso de câmara
// @Tags cases
// @Accept json
// @Produce json
// @Param code path string true "Código do caso"
// @Param body body domain.ChamberChangeRequest true "Câmara de destino"
// @Success 200 {object} domain.RegistryCase
// @Failure 404 {object} domain.ErrorResponse
// @Failure 409 {object} domain.ErrorResponse "CAPACITY_EXCEEDED"
// @Failure 412 {object} domain.ErrorResponse "INVALID_TRANSITION"
// @Security ApiKeyAuth
// @Router /cases/{code}/chamber [put]
func (h *Handler) ChangeChamberHandler(w http.ResponseWriter, r *http.Request) {
	var req domain.ChamberChangeRequest
	if err := response.Decode(w, r, &req); err != nil {
		response.Handle(w, r, h.Logger, nil, err, http.StatusBadRequest)
		return
	}

	updated, err := h.Service.ChangeChamber(r.Context(), chi.URLParam(r, "code"), req)
	response.Handle(w, r, h.Logger, updated, err, http.StatusOK)
}

// StartConservationHandler lida com a requisição POST /v1/cases/{code}/conservation.
// @Summary Inicia a conservação
// @Tags cases
// @Produce json
// @Param code path string true "Código do caso"
// @Success 200 {object} domain.RegistryCase
// @Failure 412 {object} domain.ErrorResponse "INVALID_TRANSITION"
// @Security ApiKeyAuth
// @Router /cases/{code}/conservation [post]
func (h *Handler) StartConservationHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.StartConservation(r.Context(), chi.URLParam(r, "code"))
	response.Handle(w, r, h.Logger, updated, err, http.StatusOK)
}

// DocumentationReadyHandler lida com a requisição POST /v1/cases/{code}/documentation-ready.
// @Summary Marca a documentação como pronta
// @Tags cases
// @Produce json
// @Param code path string true "Código do caso"
// @Success 200 {object} domain.RegistryCase
// @Failure 412 {object} domain.ErrorResponse "INVALID_TRANSITION"
// @Security ApiKeyAuth
// @Router /cases/{code}/documentation-ready [post]
func (h *Handler) DocumentationReadyHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.MarkDocumentationReady(r.Context(), chi.URLParam(r, "code"))
	response.Handle(w, r, h.Logger, updated, err, http.StatusOK)
}

// DeathCertificateHandler lida com a requisição POST /v1/cases/{code}/death-certificate.
// @Summary Registra a emissão da certidão de óbito
// @Tags cases
// @Produce json
// @Param code path string true "Código do caso"
// @Success 200 {object} domain.RegistryCase
// @Failure 412 {object} domain.ErrorResponse "INVALID_TRANSITION"
// @Security ApiKeyAuth
// @Router /cases/{code}/death-certificate [post]
func (h *Handler) DeathCertificateHandler(w http.ResponseWriter, r *http.Request) {
	updated, err := h.Service.RecordDeathCertificate(r.Context(), chi.URLParam(r, "code"))
	response.Handle(w, r, h.Logger, updated, err, http.StatusOK)
}
