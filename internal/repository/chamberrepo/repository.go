package chamberrepo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
)

const chamberColumns = `code, name, capacity, current_occupancy, active, created_at, updated_at`

// ChamberRepository persiste câmaras frias no PostgreSQL.
// Dentro de RunInTx, as consultas usam a transação do contexto.
type ChamberRepository struct {
	DB        *sql.DB
	DBTimeout time.Duration
	logger    logger.Logger
}

// NewChamberRepository cria e retorna uma nova instância do Repositório de Câmaras.
func NewChamberRepository(db *sql.DB, dbTimeout time.Duration, logger logger.Logger) *ChamberRepository {
	return &ChamberRepository{
		DB:        db,
		DBTimeout: dbTimeout,
		logger:    logger,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanChamber(row rowScanner) (domain.Chamber, error) {
	var c domain.Chamber
	err := row.Scan(&c.Code, &c.Name, &c.Capacity, &c.CurrentOccupancy, &c.Active, &c.CreatedAt, &c.UpdatedAt)
	return c, err
}

// Create insere uma nova câmara. Código repetido resulta em ConflictError.
func (r *ChamberRepository) Create(ctx context.Context, c domain.Chamber) (domain.Chamber, error) {
	r.logger.Debug("Inserindo câmara no repositório.", map[string]interface{}{"chamber_code": c.Code, "capacity": c.Capacity})

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `
        INSERT INTO chambers (code, name, capacity, current_occupancy, active, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
        RETURNING ` + chamberColumns

	created, err := scanChamber(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query,
		c.Code, c.Name, c.Capacity, c.CurrentOccupancy, c.Active))
	if database.IsUniqueViolation(err) {
		return domain.Chamber{}, apperror.NewConflictError(fmt.Sprintf("A câmara %s já existe.", c.Code))
	}
	if err != nil {
		r.logger.Error("Falha ao inserir câmara no DB.", err)
		return domain.Chamber{}, apperror.NewDBError("Falha ao inserir câmara", err)
	}

	r.logger.Info("Câmara criada com sucesso.", map[string]interface{}{"chamber_code": created.Code})
	return created, nil
}

// Get busca uma câmara pelo código, sem bloqueio.
func (r *ChamberRepository) Get(ctx context.Context, code string) (domain.Chamber, error) {
	return r.get(ctx, code, false)
}

// GetForUpdate busca a câmara bloqueando a linha até o fim da transação corrente.
func (r *ChamberRepository) GetForUpdate(ctx context.Context, code string) (domain.Chamber, error) {
	return r.get(ctx, code, true)
}

func (r *ChamberRepository) get(ctx context.Context, code string, forUpdate bool) (domain.Chamber, error) {
	r.logger.Debug("Buscando câmara no repositório.", map[string]interface{}{"chamber_code": code, "for_update": forUpdate})

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `SELECT ` + chamberColumns + ` FROM chambers WHERE code = $1`
	if forUpdate {
		query += ` FOR UPDATE`
	}

	c, err := scanChamber(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chamber{}, apperror.NewNotFoundError(fmt.Sprintf("Câmara %s não encontrada.", code))
	}
	if err != nil {
		r.logger.Error("Falha ao buscar câmara no DB.", err)
		return domain.Chamber{}, apperror.NewDBError("Falha ao buscar câmara", err)
	}
	return c, nil
}

// List retorna todas as câmaras ordenadas pelo código.
func (r *ChamberRepository) List(ctx context.Context) ([]domain.Chamber, error) {
	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	rows, err := database.Conn(ctx, r.DB).QueryContext(ctxTimeout, `SELECT `+chamberColumns+` FROM chambers ORDER BY code`)
	if err != nil {
		r.logger.Error("Falha ao listar câmaras no DB.", err)
		return nil, apperror.NewDBError("Falha ao listar câmaras", err)
	}
	defer rows.Close()

	chambers := []domain.Chamber{}
	for rows.Next() {
		c, err := scanChamber(rows)
		if err != nil {
			return nil, apperror.NewDBError("Falha ao ler câmara", err)
		}
		chambers = append(chambers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, apperror.NewDBError("Falha ao iterar câmaras", err)
	}
	return chambers, nil
}

// Update grava capacidade, ocupação, nome e estado da câmara.
func (r *ChamberRepository) Update(ctx context.Context, c domain.Chamber) (domain.Chamber, error) {
	r.logger.Debug("Atualizando câmara no repositório.", map[string]interface{}{
		"chamber_code":      c.Code,
		"capacity":          c.Capacity,
		"current_occupancy": c.CurrentOccupancy,
		"active":            c.Active,
	})

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `
        UPDATE chambers
        SET name = $2, capacity = $3, current_occupancy = $4, active = $5, updated_at = NOW()
        WHERE code = $1
        RETURNING ` + chamberColumns

	updated, err := scanChamber(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query,
		c.Code, c.Name, c.Capacity, c.CurrentOccupancy, c.Active))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Chamber{}, apperror.NewNotFoundError(fmt.Sprintf("Câmara %s não encontrada.", c.Code))
	}
	if database.IsCheckViolation(err) {
		r.logger.Error("Restrição de ocupação rejeitada pelo DB.", err)
		return domain.Chamber{}, apperror.NewInvariantViolationError(
			fmt.Sprintf("ocupação %d fora de [0, %d] na câmara %s", c.CurrentOccupancy, c.Capacity, c.Code))
	}
	if err != nil {
		r.logger.Error("Falha ao atualizar câmara no DB.", err)
		return domain.Chamber{}, apperror.NewDBError("Falha ao atualizar câmara", err)
	}
	return updated, nil
}
