package sequenceservice

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
	"gomorgue/internal/pkg/tracing"
)

const tracerName = "gomorgue/sequenceservice"

// SequenceRepository define o contrato que o Alocador de Sequências espera da camada de Persistência.
type SequenceRepository interface {
	Increment(ctx context.Context, kind domain.SequenceKind, year int) (int64, error)
}

// Service aloca identificadores anuais sem colisão para casos e guias.
type Service struct {
	tx     database.Transactor
	repo   SequenceRepository
	logger logger.Logger
}

// NewService cria e retorna uma nova instância do Alocador de Sequências.
func NewService(tx database.Transactor, repo SequenceRepository, logger logger.Logger) *Service {
	return &Service{tx: tx, repo: repo, logger: logger}
}

// Next retorna o próximo valor do contador (kind, year). Chamado dentro de uma transação,
// participa dela: se a transação externa falhar, o valor não é consumido.
func (s *Service) Next(ctx context.Context, kind domain.SequenceKind, year int) (value int64, err error) {
	ctx, span := tracing.Start(ctx, tracerName, "sequence.Next",
		attribute.String("sequence.kind", string(kind)), attribute.Int("sequence.year", year))
	defer func() { tracing.End(span, err) }()

	if _, ok := kind.Prefix(); !ok {
		return 0, apperror.NewValidationError(fmt.Sprintf("Tipo de sequência desconhecido: %q.", kind))
	}
	if year <= 0 {
		return 0, apperror.NewValidationError(fmt.Sprintf("Ano inválido para sequência: %d.", year))
	}

	err = s.tx.RunInTx(ctx, func(ctx context.Context) error {
		var incErr error
		value, incErr = s.repo.Increment(ctx, kind, year)
		return incErr
	})
	if err != nil {
		s.logger.Error("Falha ao alocar valor de sequência.", err)
		return 0, apperror.Wrap(err, "Falha interna ao alocar sequência.")
	}

	s.logger.Debug("Valor de sequência alocado.", map[string]interface{}{"kind": kind, "year": year, "value": value})
	return value, nil
}

// NextCode aloca o próximo valor e o formata como <PREFIXO>-<ano>-<NNNNN>.
func (s *Service) NextCode(ctx context.Context, kind domain.SequenceKind, year int) (string, error) {
	value, err := s.Next(ctx, kind, year)
	if err != nil {
		return "", err
	}
	prefix, _ := kind.Prefix()
	return domain.FormatSequenceCode(prefix, year, value), nil
}
