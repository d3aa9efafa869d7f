package guiderepo

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gomorgue/internal/domain"
	apperror "gomorgue/internal/errors"
	"gomorgue/internal/pkg/cache"
	"gomorgue/internal/pkg/database"
	"gomorgue/internal/pkg/logger"
)

const guideColumns = `number, case_code, issued_at, recipient_name, recipient_document, recipient_relationship, destination, issued_by`

// GuideRepository persiste guias de saída e mantém um cache-aside no Redis.
// Guias nunca mudam depois de criadas, então o cache não precisa de invalidação.
type GuideRepository struct {
	DB        *sql.DB
	Cache     cache.Client // opcional
	DBTimeout time.Duration
	CacheTTL  time.Duration
	logger    logger.Logger
}

// NewGuideRepository cria e retorna uma nova instância do Repositório de Guias.
func NewGuideRepository(db *sql.DB, cacheClient cache.Client, dbTimeout, cacheTTL time.Duration, logger logger.Logger) *GuideRepository {
	return &GuideRepository{
		DB:        db,
		Cache:     cacheClient,
		DBTimeout: dbTimeout,
		CacheTTL:  cacheTTL,
		logger:    logger,
	}
}

func cacheKey(caseCode string) string {
	return "exit-guide:" + caseCode
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanGuide(row rowScanner) (domain.ExitGuide, error) {
	var g domain.ExitGuide
	err := row.Scan(&g.Number, &g.CaseCode, &g.IssuedAt, &g.RecipientName, &g.RecipientDocument,
		&g.RecipientRelationship, &g.Destination, &g.IssuedBy)
	return g, err
}

// Create insere a guia. Uma segunda guia para o mesmo caso viola a unicidade de case_code.
func (r *GuideRepository) Create(ctx context.Context, g domain.ExitGuide) (domain.ExitGuide, error) {
	r.logger.Debug("Inserindo guia de saída no repositório.", map[string]interface{}{"guide_number": g.Number, "case_code": g.CaseCode})

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	query := `
        INSERT INTO exit_guides (` + guideColumns + `)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
        RETURNING ` + guideColumns

	created, err := scanGuide(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout, query,
		g.Number, g.CaseCode, g.IssuedAt, g.RecipientName, g.RecipientDocument, g.RecipientRelationship, g.Destination, g.IssuedBy))
	if database.IsUniqueViolation(err) {
		return domain.ExitGuide{}, apperror.NewAlreadyReleasedError(g.CaseCode)
	}
	if err != nil {
		r.logger.Error("Falha ao inserir guia de saída no DB.", err)
		return domain.ExitGuide{}, apperror.NewDBError("Falha ao inserir guia de saída", err)
	}

	r.logger.Info("Guia de saída inserida com sucesso.", map[string]interface{}{"guide_number": created.Number})
	return created, nil
}

// GetByCase busca a guia de um caso. Fora de transação, consulta o cache antes do DB.
func (r *GuideRepository) GetByCase(ctx context.Context, caseCode string) (domain.ExitGuide, error) {
	_, inTx := database.TxFrom(ctx)
	useCache := r.Cache != nil && !inTx

	if useCache {
		if g, ok := r.fromCache(ctx, caseCode); ok {
			return g, nil
		}
	}

	ctxTimeout, cancel := context.WithTimeout(ctx, r.DBTimeout)
	defer cancel()

	g, err := scanGuide(database.Conn(ctx, r.DB).QueryRowContext(ctxTimeout,
		`SELECT `+guideColumns+` FROM exit_guides WHERE case_code = $1`, caseCode))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.ExitGuide{}, apperror.NewNotFoundError(fmt.Sprintf("Guia de saída do caso %s não encontrada.", caseCode))
	}
	if err != nil {
		r.logger.Error("Falha ao buscar guia de saída no DB.", err)
		return domain.ExitGuide{}, apperror.NewDBError("Falha ao buscar guia de saída", err)
	}

	if useCache {
		r.toCache(ctx, g)
	}
	return g, nil
}

// Falhas de cache nunca interrompem a leitura; apenas caem para o DB.
func (r *GuideRepository) fromCache(ctx context.Context, caseCode string) (domain.ExitGuide, bool) {
	raw, err := r.Cache.Get(ctx, cacheKey(caseCode))
	if errors.Is(err, cache.ErrCacheMiss) {
		return domain.ExitGuide{}, false
	}
	if err != nil {
		r.logger.Warn("Falha ao ler guia do cache. Consultando o DB.", map[string]interface{}{"case_code": caseCode, "error": err.Error()})
		return domain.ExitGuide{}, false
	}

	var g domain.ExitGuide
	if err := json.Unmarshal([]byte(raw), &g); err != nil {
		r.logger.Warn("Entrada de cache corrompida. Removendo.", map[string]interface{}{"case_code": caseCode})
		_ = r.Cache.Delete(ctx, cacheKey(caseCode))
		return domain.ExitGuide{}, false
	}
	r.logger.Debug("Guia de saída servida do cache.", map[string]interface{}{"case_code": caseCode})
	return g, true
}

func (r *GuideRepository) toCache(ctx context.Context, g domain.ExitGuide) {
	payload, err := json.Marshal(g)
	if err != nil {
		return
	}
	if err := r.Cache.Set(ctx, cacheKey(g.CaseCode), payload, r.CacheTTL); err != nil {
		r.logger.Warn("Falha ao gravar guia no cache.", map[string]interface{}{"case_code": g.CaseCode, "error": err.Error()})
	}
}
