package caseservice

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/pkg/metrics"
	"gomorgue/internal/pkg/tracing"
	"gomorgue/internal/pkg/validation"
)

const tracerName = "gomorgue/caseservice"

// CaseRepository define o contrato que o Gerenciador de Casos espera da camada de Persistência.
type CaseRepository interface {
	Create(ctx context.Context, c domain.RegistryCase) (domain.RegistryCase, error)
	Get(ctx context.Context, code string) (domain.RegistryCase, error)
	GetForUpdate(ctx context.Context, code string) (domain.RegistryCase, error)
	Update(ctx context.Context, c domain.RegistryCase) (domain.RegistryCase, error)
	List(ctx context.Context, filter domain.CaseFilter) ([]domain.RegistryCase, int, error)
	Stats(ctx context.Context, from, to time.Time) (domain.CaseStats, error)
}

// ChamberRegistry são as primitivas de vaga usadas pelo ciclo de vida.
type ChamberRegistry interface {
	Reserve(ctx context.Context, code string) (domain.Chamber, error)
	Release(ctx context.Context, code string) (domain.Chamber, error)
	Transfer(ctx context.Context, from, to string) error
}

// SequenceAllocator gera os códigos OB-<ano>-<NNNNN>.
type SequenceAllocator interface {
	NextCode(ctx context.Context, kind domain.SequenceKind, year int) (string, error)
}

// AuditRepository grava entradas na outbox de auditoria.
type AuditRepository interface {
	Append(ctx context.Context, entry domain.AuditEntry) error
}

// Deps agrupa as dependências do serviço.
type Deps struct {
	Tx        database.Transactor
	Repo      CaseRepository
	Chambers  ChamberRegistry
	Sequences SequenceAllocator
	Audit     AuditRepository
	Metrics   *metrics.Metrics // opcional
	Validator *validation.Validator
	Logger    logger.Logger
}

// Option configura o Service.
type Option func(*Service)

// WithClock substitui o relógio usado para admissão, transições e códigos anuais.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service conduz os casos pela máquina de estados
// ADMITTED → IN_CONSERVATION → AWAITING_DOCUMENTATION → RELEASED.
type Service struct {
	tx        database.Transactor
	repo      CaseRepository
	chambers  ChamberRegistry
	sequences SequenceAllocator
	audit     AuditRepository
	metrics   *metrics.Metrics
	validator *validation.Validator
	logger    logger.Logger
	now       func() time.Time
}

// NewService cria e retorna uma nova instância do Gerenciador de Casos.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		tx:        deps.Tx,
		repo:      deps.Repo,
		chambers:  deps.Chambers,
		sequences: deps.Sequences,
		audit:     deps.Audit,
		metrics:   deps.Metrics,
		validator: deps.Validator,
		logger:    deps.Logger,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Service) appendAudit(ctx context.Context, action domain.AuditAction, code string, payload map[string]any) error {
	return s.audit.Append(ctx, domain.NewAuditEntry(ctx, action, domain.EntityCase, code, payload, s.now()))
}

// Create admite um caso: reserva a vaga, aloca o código e persiste com status ADMITTED.
// Qualquer falha desfaz os três passos.
func (s *Service) Create(ctx context.Context, in domain.CaseAdmission) (created domain.RegistryCase, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, tracerName, "case.Create", attribute.String("chamber.code", in.ChamberCode))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("case_create", start, err)
	}()

	s.logger.Debug("Iniciando admissão de caso no serviço.", map[string]interface{}{"chamber_code": in.ChamberCode})

	if err := s.validator.Struct(in); err != nil {
		return domain.RegistryCase{}, err
	}

	now := s.now().UTC()
	admission := now
	if in.AdmissionTime != nil {
		admission = in.AdmissionTime.UTC()
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		if _, err := s.chambers.Reserve(ctx, in.ChamberCode); err != nil {
			return err
		}
		code, err := s.sequences.NextCode(ctx, domain.SequenceCase, now.Year())
		if err != nil {
			return err
		}
		created, err = s.repo.Create(ctx, domain.RegistryCase{
			Code:                   code,
			DeceasedName:           in.DeceasedName,
			DeceasedDocument:       in.DeceasedDocument,
			ExternalReference:      in.ExternalReference,
			CauseOfDeath:           in.CauseOfDeath,
			Origin:                 in.Origin,
			Notes:                  in.Notes,
			ChamberCode:            in.ChamberCode,
			Status:                 domain.StatusAdmitted,
			AdmissionTime:          admission,
			DeathCertificateIssued: in.DeathCertificateIssued,
		})
		if err != nil {
			return err
		}
		return s.appendAudit(ctx, domain.AuditCaseAdmitted, created.Code, map[string]any{
			"chamber_code":       created.ChamberCode,
			"external_reference": created.ExternalReference,
		})
	})
	if err != nil {
		s.logger.Warn("Admissão de caso rejeitada.", map[string]interface{}{"chamber_code": in.ChamberCode, "error": err.Error()})
		return domain.RegistryCase{}, apperror.Wrap(err, "Falha interna ao admitir caso.")
	}

	s.metrics.IncrementCasesAdmitted()
	s.logger.Info("Caso admitido com sucesso.", map[string]interface{}{"case_code": created.Code, "chamber_code": created.ChamberCode})
	return created, nil
}

// transition carrega o caso com lock, aplica mutate e grava o resultado com a entrada de auditoria.
// mutate recebe o contexto da transação e retorna changed=false quando não há nada a gravar.
func (s *Service) transition(ctx context.Context, code, operation string, action domain.AuditAction,
	mutate func(ctx context.Context, c *domain.RegistryCase) (changed bool, payload map[string]any, err error),
) (result domain.RegistryCase, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, tracerName, "case."+operation, attribute.String("case.code", code))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("case_"+operation, start, err)
	}()

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.repo.GetForUpdate(ctx, code)
		if err != nil {
			return err
		}
		changed, payload, err := mutate(ctx, &c)
		if err != nil {
			return err
		}
		if !changed {
			result = c
			return nil
		}
		if result, err = s.repo.Update(ctx, c); err != nil {
			return err
		}
		return s.appendAudit(ctx, action, code, payload)
	})
	if err != nil {
		s.logger.Warn("Transição de caso rejeitada.", map[string]interface{}{"case_code": code, "operation": operation, "error": err.Error()})
		return domain.RegistryCase{}, apperror.Wrap(err, "Falha interna ao atualizar caso.")
	}

	s.logger.Info("Caso atualizado.", map[string]interface{}{"case_code": code, "operation": operation, "status": result.Status})
	return result, nil
}

// StartConservation registra o início da conservação de um caso ADMITTED.
func (s *Service) StartConservation(ctx context.Context, code string) (domain.RegistryCase, error) {
	return s.transition(ctx, code, "start_conservation", domain.AuditConservationStarted,
		func(ctx context.Context, c *domain.RegistryCase) (bool, map[string]any, error) {
			if c.Status != domain.StatusAdmitted {
				return false, nil, apperror.NewInvalidTransitionError(code, string(c.Status), string(domain.StatusInConservation))
			}
			startedAt := s.now().UTC()
			c.Status = domain.StatusInConservation
			c.ConservationStartedAt = &startedAt
			return true, nil, nil
		})
}

// MarkDocumentationReady passa um caso IN_CONSERVATION para AWAITING_DOCUMENTATION.
func (s *Service) MarkDocumentationReady(ctx context.Context, code string) (domain.RegistryCase, error) {
	return s.transition(ctx, code, "documentation_ready", domain.AuditDocumentationReady,
		func(ctx context.Context, c *domain.RegistryCase) (bool, map[string]any, error) {
			if c.Status != domain.StatusInConservation {
				return false, nil, apperror.NewInvalidTransitionError(code, string(c.Status), string(domain.StatusAwaitingDocumentation))
			}
			c.Status = domain.StatusAwaitingDocumentation
			return true, nil, nil
		})
}

// RecordDeathCertificate marca a certidão de óbito como emitida. Idempotente.
func (s *Service) RecordDeathCertificate(ctx context.Context, code string) (domain.RegistryCase, error) {
	return s.transition(ctx, code, "death_certificate", domain.AuditDeathCertificateIssued,
		func(ctx context.Context, c *domain.RegistryCase) (bool, map[string]any, error) {
			if c.Status.IsTerminal() {
				return false, nil, apperror.NewPreconditionFailedError(apperror.ReasonInvalidTransition,
					fmt.Sprintf("O caso %s já foi liberado.", code))
			}
			if c.DeathCertificateIssued {
				return false, nil, nil
			}
			c.DeathCertificateIssued = true
			return true, nil, nil
		})
}

// ChangeChamber move o caso para outra câmara. Em caso de falha, caso e câmaras ficam intactos.
func (s *Service) ChangeChamber(ctx context.Context, code string, req domain.ChamberChangeRequest) (domain.RegistryCase, error) {
	if err := s.validator.Struct(req); err != nil {
		return domain.RegistryCase{}, err
	}

	updated, err := s.transition(ctx, code, "change_chamber", domain.AuditChamberChanged,
		func(ctx context.Context, c *domain.RegistryCase) (bool, map[string]any, error) {
			if c.Status.IsTerminal() {
				return false, nil, apperror.NewPreconditionFailedError(apperror.ReasonInvalidTransition,
					fmt.Sprintf("O caso %s já foi liberado e não pode trocar de câmara.", code))
			}
			from := c.ChamberCode
			if err := s.chambers.Transfer(ctx, from, req.ChamberCode); err != nil {
				return false, nil, err
			}
			c.ChamberCode = req.ChamberCode
			return true, map[string]any{"from": from, "to": req.ChamberCode}, nil
		})
	if err != nil {
		return domain.RegistryCase{}, err
	}

	s.metrics.IncrementChamberTransfers()
	return updated, nil
}

// LoadForUpdate carrega o caso com lock dentro da transação do contexto.
func (s *Service) LoadForUpdate(ctx context.Context, code string) (domain.RegistryCase, error) {
	return s.repo.GetForUpdate(ctx, code)
}

// Release finaliza o caso com a guia de saída e libera sua vaga.
// Deve ser chamado dentro da transação que persiste a guia.
func (s *Service) Release(ctx context.Context, code, exitGuideNumber string) (domain.RegistryCase, error) {
	return s.transition(ctx, code, "release", domain.AuditCaseReleased,
		func(ctx context.Context, c *domain.RegistryCase) (bool, map[string]any, error) {
			if c.Status.IsTerminal() {
				return false, nil, apperror.NewAlreadyReleasedError(code)
			}
			if _, err := s.chambers.Release(ctx, c.ChamberCode); err != nil {
				return false, nil, err
			}
			releasedAt := s.now().UTC()
			number := exitGuideNumber
			c.Status = domain.StatusReleased
			c.ExitGuideNumber = &number
			c.ReleasedAt = &releasedAt
			return true, map[string]any{"exit_guide_number": number, "chamber_code": c.ChamberCode}, nil
		})
}

// Get busca um caso pelo código.
func (s *Service) Get(ctx context.Context, code string) (domain.RegistryCase, error) {
	c, err := s.repo.Get(ctx, code)
	if err != nil {
		return domain.RegistryCase{}, apperror.Wrap(err, "Falha interna ao buscar caso.")
	}
	return c, nil
}

// List retorna uma página de casos e o total de casos do filtro.
func (s *Service) List(ctx context.Context, filter domain.CaseFilter) ([]domain.RegistryCase, int, error) {
	if filter.Status != "" && !filter.Status.IsValid() {
		return nil, 0, apperror.NewValidationError(fmt.Sprintf("Status desconhecido: %q.", filter.Status))
	}

	cases, total, err := s.repo.List(ctx, filter.Normalize())
	if err != nil {
		return nil, 0, apperror.Wrap(err, "Falha interna ao listar casos.")
	}
	return cases, total, nil
}

// Stats agrega os casos admitidos em [from, to). from posterior a to é um período vazio.
func (s *Service) Stats(ctx context.Context, from, to time.Time) (stats domain.CaseStats, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "case.Stats")
	defer func() { tracing.End(span, err) }()

	if !from.Before(to) {
		return domain.NewEmptyCaseStats(from, to), nil
	}

	stats, err = s.repo.Stats(ctx, from, to)
	if err != nil {
		return domain.CaseStats{}, apperror.Wrap(err, "Falha interna ao calcular estatísticas.")
	}
	return stats, nil
}
