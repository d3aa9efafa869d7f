package caserepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
)

const caseColumns = `code, deceased_name, deceased_document, external_reference, cause_of_death, origin, notes,
        chamber_code, status, admission_time, death_certificate_issued, exit_guide_number,
        conservation_started_at, released_at, created_at, updated_at`

// CaseRepository persiste casos do registro de óbitos no PostgreSQL.
type CaseRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewCaseRepository cria e retorna uma nova instância do Repositório de Casos.
func NewCaseRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *CaseRepository {
	return &CaseRepository{
		DB:        db,
		DBTimeout: dbTimeout,
		logger:    logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCase(row rowScanner) (domain.RegistryCase, error) {
	var (
		c            domain.RegistryCase
		guide        sql.NullString
		conservation sql.NullTime
		released     sql.NullTime
		status       string
	)
	err := row.Scan(
		&c.Code, &c.DeceasedName, &c.DeceasedDocument, &c.ExternalReference, &c.CauseOfDeath, &c.Origin, &c.Notes,
		&c.ChamberCode, &status, &c.AdmissionTime, &c.DeathCertificateIssued, &guide,
		&conservation, &released, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return domain.RegistryCase{}, err
	}
	c.Status = domain.CaseStatus(status)
	if guide.Valid {
		c.ExitGuideNumber = &guide.String
	}
	if conservation.Valid {
		c.ConservationStartedAt = &conservation.Time
	}
	if released.Valid {
		c.ReleasedAt = &released.Time
	}
	return c, nil
}

func nullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func nullTime(t *time.Time) sql.NullTime {
	if t == nil {
		return sql.NullTime{}
	}
	return sql.NullTime{Time: *t, Valid: true}
}

// Create insere o caso com o código já alocado.
func (r *CaseRepository) Create(ctx context.Context, c domain.RegistryCase) (domain.RegistryCase, error) {
	r.logger.Debug("Inserindo caso no repositório.", map[string]interface{}{"case_code": c.Code, "chamber_code": c.ChamberCode})

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `
        INSERT INTO registry_cases (
            code, deceased_name, deceased_document, external_reference, cause_of_death, origin, notes,
            chamber_code, status, admission_time, death_certificate_issued, exit_guide_number,
            conservation_started_at, released_at, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
        RETURNING ` + caseColumns

	created, err := scanCase(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query,
		c.Code, c.DeceasedName, c.DeceasedDocument, c.ExternalReference, c.CauseOfDeath, c.Origin, c.Notes,
		c.ChamberCode, string(c.Status), c.AdmissionTime, c.DeathCertificateIssued, nullString(c.ExitGuideNumber),
		nullTime(c.ConservationStartedAt), nullTime(c.ReleasedAt),
	))
	if database.IsUniqueViolation(err) {
		// Só ocorre se o contador anual for corrompido; o alocador nunca repete valores.
		r.logger.Error("Código de caso duplicado.", err)
		return domain.RegistryCase{}, apperror.NewInvariantViolationError(fmt.Sprintf("código de caso %s já utilizado", c.Code))
	}
	if err != nil {
		r.logger.Error("Falha ao inserir caso no DB.", err)
		return domain.RegistryCase{}, apperror.NewDBError("Falha ao inserir caso", err)
	}

	r.logger.Info("Caso inserido com sucesso.", map[string]interface{}{"case_code": created.Code})
	return created, nil
}

// Get busca um caso pelo código, sem bloqueio.
func (r *CaseRepository) Get(ctx context.Context, code string) (domain.RegistryCase, error) {
	return r.get(ctx, code, false)
}

// GetForUpdate busca o caso bloqueando a linha até o fim da transação corrente.
func (r *CaseRepository) GetForUpdate(ctx context.Context, code string) (domain.RegistryCase, error) {
	return r.get(ctx, code, true)
}

func (r *CaseRepository) get(ctx context.Context, code string, forUpdate bool) (domain.RegistryCase, error) {
	r.logger.Debug("Buscando caso no repositório.", map[string]interface{}{"case_code": code, "for_update": forUpdate})

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `SELECT ` + caseColumns + ` FROM registry_cases WHERE code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	c, err := scanCase(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RegistryCase{}, apperror.NewNotFoundError(fmt.Sprintf("Caso %s não encontrado.", code))
	}
	if err != nil {
		r.logger.Error("Falha ao buscar caso no DB.", err)
		return domain.RegistryCase{}, apperror.NewDBError("Falha ao buscar caso", err)
	}
	return c, nil
}

// Update grava os campos mutáveis do caso (estado, câmara, certidão, guia, marcos temporais).
func (r *CaseRepository) Update(ctx context.Context, c domain.RegistryCase) (domain.RegistryCase, error) {
	r.logger.Debug("Atualizando caso no repositório.", map[string]interface{}{
		"case_code":    c.Code,
		"status":       c.Status,
		"chamber_code": c.ChamberCode,
	})

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `
        UPDATE registry_cases
        SET chamber_code = $2, status = $3, death_certificate_issued = $4, exit_guide_number = $5,
            conservation_started_at = $6, released_at = $7, notes = $8, updated_at = NOW()
        WHERE code = $1
        RETURNING ` + caseColumns

	updated, err := scanCase(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query,
		c.Code, c.ChamberCode, string(c.Status), c.DeathCertificateIssued, nullString(c.ExitGuideNumber),
		nullTime(c.ConservationStartedAt), nullTime(c.ReleasedAt), c.Notes,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.RegistryCase{}, apperror.NewNotFoundError(fmt.Sprintf("Caso %s não encontrado.", c.Code))
	}
	if database.IsCheckViolation(err) {
		r.logger.Error("Restrição guia/estado rejeitada pelo DB.", err)
		return domain.RegistryCase{}, apperror.NewInvariantViolationError(
			fmt.Sprintf("caso %s com estado %s e guia inconsistentes", c.Code, c.Status))
	}
	if err != nil {
		r.logger.Error("Falha ao atualizar caso no DB.", err)
		return domain.RegistryCase{}, apperror.NewDBError("Falha ao atualizar caso", err)
	}
	return updated, nil
}

// List retorna a página de casos do filtro e o total de registros correspondentes.
func (r *CaseRepository) List(ctx context.Context, filter domain.CaseFilter) ([]domain.RegistryCase, int, error) {
	filter = filter.Normalize()

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	var (
		conds []string
		args  []any
	)
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		conds = append(conds, fmt.Sprintf("status = $%d", len(args)))
	}
	if filter.ChamberCode != "" {
		args = append(args, filter.ChamberCode)
		conds = append(conds, fmt.Sprintf("chamber_code = $%d", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	conn := database.Conn(ctx, r.DB)

	var total int
	if err := conn.QueryRowContext(ctxTimeout, `SELECT COUNT(*) FROM registry_cases`+where, args...).Scan(&total); err != nil {
		r.logger.Error("Falha ao contar casos no DB.", err)
		return nil, 0, apperror.NewDBError("Falha ao contar casos", err)
	}

	args = append(args, filter.Limit, filter.Offset())
	query := fmt.Sprintf(`SELECT %s FROM registry_cases%s ORDER BY admission_time DESC, code DESC LIMIT $%d OFFSET $%d`,
		caseColumns, where, len(args)-1, len(args))

	rows, err := conn.QueryContext(ctxTimeout, query, args...)
	if err != nil {
		r.logger.Error("Falha ao listar casos no DB.", err)
		return nil, 0, apperror.NewDBError("Falha ao listar casos", err)
	}
	defer rows.Close()

	cases := []domain.RegistryCase{}
	for rows.Next() {
		c, err := scanCase(rows)
		if err != nil {
			return nil, 0, apperror.NewDBError("Falha ao ler caso", err)
		}
		cases = append(cases, c)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, apperror.NewDBError("Falha ao iterar casos", err)
	}
	return cases, total, nil
}

// Stats agrega os casos admitidos em [from, to): contagem por estado e tempo médio
// em conservação (horas) dos já liberados.
func (r *CaseRepository) Stats(ctx context.Context, from, to time.Time) (domain.CaseStats, error) {
	stats := domain.NewEmptyCaseStats(from, to)

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	conn := database.Conn(ctx, r.DB)

	rows, err := conn.QueryContext(ctxTimeout, `
        SELECT status, COUNT(*)
        FROM registry_cases
        WHERE admission_time >= $1 AND admission_time < $2
        GROUP BY status`, from, to)
	if err != nil {
		r.logger.Error("Falha ao agregar casos por estado.", err)
		return domain.CaseStats{}, apperror.NewDBError("Falha ao agregar casos", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			status string
			count  int
		)
		if err := rows.Scan(&status, &count); err != nil {
			return domain.CaseStats{}, apperror.NewDBError("Falha ao ler agregação de casos", err)
		}
		stats.ByStatus[domain.CaseStatus(status)] = count
		stats.Total += count
	}
	if err := rows.Err(); err != nil {
		return domain.CaseStats{}, apperror.NewDBError("Falha ao iterar agregação de casos", err)
	}

	err = conn.QueryRowContext(ctxTimeout, `
        SELECT COUNT(*),
               COALESCE(AVG(EXTRACT(EPOCH FROM (released_at - COALESCE(conservation_started_at, admission_time)))) / 3600.0, 0)
        FROM registry_cases
        WHERE status = 'RELEASED' AND released_at IS NOT NULL
          AND admission_time >= $1 AND admission_time < $2`, from, to).
		Scan(&stats.ReleasedCount, &stats.AverageConservationHours)
	if err != nil {
		r.logger.Error("Falha ao calcular tempo médio em conservação.", err)
		return domain.CaseStats{}, apperror.NewDBError("Falha ao calcular tempo médio em conservação", err)
	}

	return stats, nil
}
