package auditrepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
)

// AuditRepository grava entradas na outbox de auditoria, na mesma transação da mutação.
// A publicação (published_at) fica a cargo de um processo externo.
type AuditRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewAuditRepository cria e retorna uma nova instância do Repositório de Auditoria.
func NewAuditRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *AuditRepository {
	return &AuditRepository{
		DB:        db,
		DBTimeout: dbTimeout,
		logger:    logger,
	}
}

// Append insere a entrada na outbox.
func (r *AuditRepository) Append(ctx context.Context, entry domain.AuditEntry) error {
	payload := []byte("{}")
	if len(entry.Payload) > 0 {
		var err error
		if payload, err = json.Marshal(entry.Payload); err != nil {
			return apperror.NewInternalError("Falha ao serializar payload de auditoria", err)
		}
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `
        INSERT INTO audit_outbox (id, action, entity_type, entity_code, actor_id, payload, occurred_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err := database.Conn(ctx, r.DB).ExecContext(ctxTimeout, query,
		entry.ID, string(entry.Action), entry.EntityType, entry.EntityCode, entry.ActorID, payload, entry.OccurredAt)
	if err != nil {
		r.logger.Error("Falha ao gravar entrada de auditoria.", err)
		return apperror.NewDBError("Falha ao gravar auditoria", err)
	}

	r.logger.Debug("Entrada de auditoria registrada.", map[string]interface{}{
		"action":      entry.Action,
		"entity_code": entry.EntityCode,
	})
	return nil
}
