package sequencerepo

import (
	"context"
	"database/sql"
	"time"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
)

// SequenceRepository mantém os contadores anuais em sequence_counters.
type SequenceRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewSequenceRepository cria e retorna uma nova instância do Repositório de Sequências.
func NewSequenceRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *SequenceRepository {
	return &SequenceRepository{
		DB:        db,
		DBTimeout: dbTimeout,
		logger:    logger,
	}
}

// Increment aloca o próximo valor do par (kind, year) num único comando.
// A primeira alocação do ano cria a linha com valor 1.
func (r *SequenceRepository) Increment(ctx context.Context, kind domain.SequenceKind, year int) (int64, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `
        INSERT INTO sequence_counters (kind, year, last_value)
        VALUES ($1, $2, 1)
        ON CONFLICT (kind, year)
        DO UPDATE SET last_value = sequence_counters.last_value + 1
        RETURNING last_value`

	var value int64
	if err := database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query, string(kind), year).Scan(&value); err != nil {
		r.logger.Error("Falha ao incrementar contador de sequência.", err)
		return 0, apperror.NewDBError("Falha ao alocar sequência", err)
	}

	r.logger.Debug("Sequência alocada.", map[string]interface{}{"kind": kind, "year": year, "value": value})
	return value, nil
}
