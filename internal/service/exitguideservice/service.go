package exitguideservice

import (
	"context"
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

const tracerName = "gomorgue/exitguideservice"

// GuideRepository define o contrato que o Emissor de Guias espera da camada de Persistência.
type GuideRepository interface {
	Create(ctx context.Context, g domain.ExitGuide) (domain.ExitGuide, error)
	GetByCase(ctx context.Context, caseCode string) (domain.ExitGuide, error)
}

// CaseLifecycle é a parte do Gerenciador de Casos usada na liberação.
type CaseLifecycle interface {
	LoadForUpdate(ctx context.Context, code string) (domain.RegistryCase, error)
	Release(ctx context.Context, code, exitGuideNumber string) (domain.RegistryCase, error)
}

// SequenceAllocator gera os números GS-<ano>-<NNNNN>.
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
	Guides    GuideRepository
	Cases     CaseLifecycle
	Sequences SequenceAllocator
	Audit     AuditRepository
	Metrics   *metrics.Metrics // opcional
	Validator *validation.Validator
	Logger    logger.Logger
}

// Option configura o Service.
type Option func(*Service)

// WithClock substitui o relógio usado na data de emissão e no ano da numeração.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service emite a autorização de saída do corpo.
type Service struct {
	tx        database.Transactor
	guides    GuideRepository
	cases     CaseLifecycle
	sequences SequenceAllocator
	audit     AuditRepository
	metrics   *metrics.Metrics
	validator *validation.Validator
	logger    logger.Logger
	now       func() time.Time
}

// NewService cria e retorna uma nova instância do Emissor de Guias.
func NewService(deps Deps, opts ...Option) *Service {
	s := &Service{
		tx:        deps.Tx,
		guides:    deps.Guides,
		cases:     deps.Cases,
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

// Issue valida as pré-condições, numera e persiste a guia, e finaliza o caso liberando a vaga.
// Numeração, guia, liberação e auditoria são confirmadas ou desfeitas juntas.
func (s *Service) Issue(ctx context.Context, caseCode string, recipient domain.Recipient) (guide domain.ExitGuide, err error) {
	start := time.Now()
	ctx, span := tracing.Start(ctx, tracerName, "exit_guide.Issue", attribute.String("case.code", caseCode))
	defer func() {
		tracing.End(span, err)
		s.metrics.ObserveOperation("exit_guide_issue", start, err)
	}()

	if err := s.validator.Struct(recipient); err != nil {
		return domain.ExitGuide{}, err
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		c, err := s.cases.LoadForUpdate(ctx, caseCode)
		if err != nil {
			return err
		}
		if !c.DeathCertificateIssued {
			return apperror.NewCertificateNotIssuedError(caseCode)
		}
		if c.Status.IsTerminal() {
			return apperror.NewAlreadyReleasedError(caseCode)
		}

		now := s.now().UTC()
		number, err := s.sequences.NextCode(ctx, domain.SequenceGuide, now.Year())
		if err != nil {
			return err
		}
		guide, err = s.guides.Create(ctx, domain.ExitGuide{
			Number:                number,
			CaseCode:              caseCode,
			IssuedAt:              now,
			RecipientName:         recipient.Name,
			RecipientDocument:     recipient.Document,
			RecipientRelationship: recipient.Relationship,
			Destination:           recipient.Destination,
			IssuedBy:              domain.ActorFrom(ctx),
		})
		if err != nil {
			return err
		}
		if _, err := s.cases.Release(ctx, caseCode, number); err != nil {
			return err
		}
		return s.audit.Append(ctx, domain.NewAuditEntry(ctx, domain.AuditExitGuideIssued, domain.EntityExitGuide, number,
			map[string]any{"case_code": caseCode, "destination": recipient.Destination}, now))
	})
	if err != nil {
		s.logger.Warn("Emissão de guia de saída rejeitada.", map[string]interface{}{
			"case_code": caseCode,
			"reason":    apperror.ReasonOf(err),
			"error":     err.Error(),
		})
		return domain.ExitGuide{}, apperror.Wrap(err, "Falha interna ao emitir guia de saída.")
	}

	s.metrics.IncrementCasesReleased()
	s.logger.Info("Guia de saída emitida com sucesso.", map[string]interface{}{"case_code": caseCode, "guide_number": guide.Number})
	return guide, nil
}

// GetByCase retorna a guia de saída de um caso.
func (s *Service) GetByCase(ctx context.Context, caseCode string) (domain.ExitGuide, error) {
	g, err := s.guides.GetByCase(ctx, caseCode)
	if err != nil {
		return domain.ExitGuide{}, apperror.Wrap(err, "Falha interna ao buscar guia de saída.")
	}
	return g, nil
}
